// Package auth implements client credential extraction and validation.
// Grounded on original_source/src-tauri/src/server/middleware.rs's
// extract_bearer_token: a strict header-precedence scheme where a malformed
// Authorization header is a hard failure rather than a fallback to the next
// scheme.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/llm-gateway/gateway/internal/apperror"
	"github.com/llm-gateway/gateway/internal/store"
)

// tokenStore is the subset of *store.Store auth depends on.
type tokenStore interface {
	TokenByKeyValue(keyValue string) (*store.Token, error)
}

// ExtractCredential returns the raw token string from the first matching
// header, in the strict order spec.md §4.4 requires. An Authorization
// header that does not start with "Bearer " is an immediate error, not a
// fallback to the other schemes.
func ExtractCredential(h http.Header) (string, error) {
	if auth := h.Get("Authorization"); auth != "" {
		if !strings.HasPrefix(auth, "Bearer ") {
			return "", apperror.Unauthorized("Invalid Authorization format")
		}
		return strings.TrimPrefix(auth, "Bearer "), nil
	}

	if key := h.Get("x-goog-api-key"); key != "" {
		return key, nil
	}
	if key := h.Get("x-api-key"); key != "" {
		return key, nil
	}
	if key := h.Get("api-key"); key != "" {
		return key, nil
	}

	return "", apperror.Unauthorized("Missing Authorization header")
}

// Authenticate extracts a credential from h and resolves it to an enabled,
// unexpired token row.
func Authenticate(db tokenStore, h http.Header) (*store.Token, error) {
	cred, err := ExtractCredential(h)
	if err != nil {
		return nil, err
	}

	tok, err := db.TokenByKeyValue(cred)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, apperror.Unauthorized("Invalid API key")
	}
	if tok.ExpiresAt != nil {
		now := time.Now().UTC().Format(time.RFC3339)
		if tok.ExpiresAt.UTC().Format(time.RFC3339) < now {
			return nil, apperror.Unauthorized("API key expired")
		}
	}
	return tok, nil
}

// ExtractOutputFormat resolves the client's desired output format: the
// X-Output-Format header takes precedence over an output_format query
// parameter; an empty return means "same as input format".
func ExtractOutputFormat(h http.Header, query string) string {
	if v := h.Get("X-Output-Format"); v != "" {
		return v
	}
	if query == "" {
		return ""
	}
	for _, pair := range strings.Split(query, "&") {
		if v, ok := strings.CutPrefix(pair, "output_format="); ok {
			return v
		}
	}
	return ""
}
