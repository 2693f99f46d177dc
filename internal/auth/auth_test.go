package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/llm-gateway/gateway/internal/store"
)

func header(pairs ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

func TestExtractCredentialPrecedence(t *testing.T) {
	cases := []struct {
		name    string
		h       http.Header
		want    string
		wantErr bool
	}{
		{"bearer", header("Authorization", "Bearer abc123"), "abc123", false},
		{"malformed bearer is hard error", header("Authorization", "Basic abc123"), "", true},
		{"goog key", header("x-goog-api-key", "gkey"), "gkey", false},
		{"anthropic key", header("x-api-key", "akey"), "akey", false},
		{"azure key", header("api-key", "zkey"), "zkey", false},
		{"bearer beats others", header("Authorization", "Bearer abc", "x-api-key", "akey"), "abc", false},
		{"nothing present", header(), "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractCredential(tc.h)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

type fakeTokenStore struct {
	tok *store.Token
}

func (f *fakeTokenStore) TokenByKeyValue(keyValue string) (*store.Token, error) {
	return f.tok, nil
}

func TestAuthenticateRejectsUnknownToken(t *testing.T) {
	db := &fakeTokenStore{tok: nil}
	_, err := Authenticate(db, header("Authorization", "Bearer nope"))
	if err == nil {
		t.Fatal("expected error for unknown token")
	}
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	db := &fakeTokenStore{tok: &store.Token{ID: "t1", KeyValue: "k", Enabled: true, ExpiresAt: &past}}
	_, err := Authenticate(db, header("Authorization", "Bearer k"))
	if err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestAuthenticateAcceptsValidToken(t *testing.T) {
	future := time.Now().Add(time.Hour)
	db := &fakeTokenStore{tok: &store.Token{ID: "t1", KeyValue: "k", Enabled: true, ExpiresAt: &future}}
	tok, err := Authenticate(db, header("Authorization", "Bearer k"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.ID != "t1" {
		t.Fatalf("got token %+v", tok)
	}
}

func TestExtractOutputFormatPrecedence(t *testing.T) {
	h := header("X-Output-Format", "anthropic")
	if got := ExtractOutputFormat(h, "output_format=gemini"); got != "anthropic" {
		t.Fatalf("expected header to win, got %q", got)
	}
	if got := ExtractOutputFormat(http.Header{}, "output_format=gemini"); got != "gemini" {
		t.Fatalf("expected query param, got %q", got)
	}
	if got := ExtractOutputFormat(http.Header{}, ""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
