package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/llm-gateway/gateway/internal/balancer"
	"github.com/llm-gateway/gateway/internal/circuitbreaker"
	"github.com/llm-gateway/gateway/internal/codec"
	_ "github.com/llm-gateway/gateway/internal/codec/openai"
	"github.com/llm-gateway/gateway/internal/store"
)

type fakeRoutingStore struct {
	candidates []store.RoutingCandidate
	keys       map[string][]store.ChannelAPIKey
}

func (f *fakeRoutingStore) RoutingCandidatesForModel(publicName string) ([]store.RoutingCandidate, error) {
	return f.candidates, nil
}
func (f *fakeRoutingStore) EnabledChannelsPassthrough(model string) ([]store.RoutingCandidate, error) {
	return nil, nil
}
func (f *fakeRoutingStore) EnabledAPIKeysForChannel(channelID string) ([]store.ChannelAPIKey, error) {
	return f.keys[channelID], nil
}

type fakeLogStore struct {
	token *store.Token
	logs  []*store.RequestLog
	quota int64

	updatedResponseBody     string
	updatedPromptTokens     int
	updatedCompletionTokens int
}

func (f *fakeLogStore) TokenByKeyValue(keyValue string) (*store.Token, error) { return f.token, nil }
func (f *fakeLogStore) InsertRequestLog(l *store.RequestLog) error {
	f.logs = append(f.logs, l)
	return nil
}
func (f *fakeLogStore) UpdateRequestLogResponseBody(id string, responseBody string, status int, latencyMS int64, promptTokens, completionTokens int) error {
	f.updatedResponseBody = responseBody
	f.updatedPromptTokens = promptTokens
	f.updatedCompletionTokens = completionTokens
	return nil
}
func (f *fakeLogStore) IncrementQuotaUsed(tokenID string, delta int64) error {
	f.quota += delta
	return nil
}

func TestProxyChatNonStreamingOpenAIRoundTrip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer up-key" {
			t.Errorf("expected upstream auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id":"resp1","object":"chat.completion","model":"gpt-4",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}
		}`))
	}))
	defer upstream.Close()

	routing := &fakeRoutingStore{
		candidates: []store.RoutingCandidate{{
			Channel: store.Channel{ID: "ch1", Provider: "openai", BaseURL: upstream.URL, Priority: 0, Weight: 1, Enabled: true},
			Mapping: store.ModelMapping{PublicName: "gpt-4", ChannelID: "ch1", ActualName: "gpt-4", Modality: "chat"},
		}},
		keys: map[string][]store.ChannelAPIKey{
			"ch1": {{ID: "k1", ChannelID: "ch1", KeyValue: "up-key", Enabled: true}},
		},
	}
	bal := balancer.New(routing, circuitbreaker.New(3, time.Minute))
	logs := &fakeLogStore{token: &store.Token{ID: "tok1", KeyValue: "client-key", Enabled: true}}

	p := New(logs, bal, circuitbreaker.New(3, time.Minute), upstream.Client())

	headers := http.Header{}
	headers.Set("Authorization", "Bearer client-key")
	reqBody := []byte(`{"model":"gpt-4","messages":[{"role":"user","content":"hello"}]}`)

	result, err := p.ProxyChat(codec.FormatOpenAIChat, headers, "", reqBody, "", nil)
	if err != nil {
		t.Fatalf("ProxyChat: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", result.StatusCode)
	}
	if len(logs.logs) != 1 {
		t.Fatalf("expected one log row, got %d", len(logs.logs))
	}
	if logs.quota != 5 {
		t.Fatalf("expected quota incremented by 5, got %d", logs.quota)
	}
}

func TestProxyChatRejectsUnauthenticated(t *testing.T) {
	logs := &fakeLogStore{token: nil}
	bal := balancer.New(&fakeRoutingStore{}, circuitbreaker.New(3, time.Minute))
	p := New(logs, bal, circuitbreaker.New(3, time.Minute), http.DefaultClient)

	_, err := p.ProxyChat(codec.FormatOpenAIChat, http.Header{}, "", []byte(`{}`), "", nil)
	if err == nil {
		t.Fatal("expected unauthenticated error")
	}
}
