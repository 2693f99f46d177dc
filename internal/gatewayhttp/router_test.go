package gatewayhttp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/llm-gateway/gateway/internal/balancer"
	"github.com/llm-gateway/gateway/internal/cache"
	"github.com/llm-gateway/gateway/internal/circuitbreaker"
	"github.com/llm-gateway/gateway/internal/proxy"
	"github.com/llm-gateway/gateway/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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
}

func (f *fakeLogStore) TokenByKeyValue(keyValue string) (*store.Token, error) { return f.token, nil }
func (f *fakeLogStore) InsertRequestLog(l *store.RequestLog) error            { return nil }
func (f *fakeLogStore) UpdateRequestLogResponseBody(id string, responseBody string, status int, latencyMS int64, promptTokens, completionTokens int) error {
	return nil
}
func (f *fakeLogStore) IncrementQuotaUsed(tokenID string, delta int64) error { return nil }

type fakeModelStore struct{}

func (fakeModelStore) ListDistinctModelMappings() ([]store.ModelMappingEntry, error) {
	return []store.ModelMappingEntry{{PublicName: "gpt-4", Provider: "openai"}}, nil
}

func TestRouterProxiesChatCompletions(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id":"resp1","object":"chat.completion","model":"gpt-4",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}
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
	logs := &fakeLogStore{token: &store.Token{ID: "tok1", KeyValue: "client-key", Enabled: true}}
	bal := balancer.New(routing, circuitbreaker.New(3, time.Minute))
	pipeline := proxy.New(logs, bal, circuitbreaker.New(3, time.Minute), upstream.Client())

	r := NewRouter(&Server{
		Pipeline:   pipeline,
		DB:         fakeModelStore{},
		ModelCache: &cache.ModelListCache{},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(
		`{"model":"gpt-4","messages":[{"role":"user","content":"hello"}]}`))
	req.Header.Set("Authorization", "Bearer client-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"hi"`) {
		t.Fatalf("expected upstream content in response, got %s", w.Body.String())
	}
}

func TestRouterRejectsMissingAuth(t *testing.T) {
	logs := &fakeLogStore{token: nil}
	bal := balancer.New(&fakeRoutingStore{}, circuitbreaker.New(3, time.Minute))
	pipeline := proxy.New(logs, bal, circuitbreaker.New(3, time.Minute), http.DefaultClient)

	r := NewRouter(&Server{
		Pipeline:   pipeline,
		DB:         fakeModelStore{},
		ModelCache: &cache.ModelListCache{},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSplitGeminiPathParam(t *testing.T) {
	model, stream := splitGeminiPathParam("gemini-1.5-pro:generateContent")
	if model != "gemini-1.5-pro" {
		t.Fatalf("expected bare model name, got %q", model)
	}
	if stream == nil || *stream {
		t.Fatalf("expected non-streaming action to resolve false, got %v", stream)
	}

	model, stream = splitGeminiPathParam("gemini-1.5-pro:streamGenerateContent")
	if model != "gemini-1.5-pro" {
		t.Fatalf("expected bare model name, got %q", model)
	}
	if stream == nil || !*stream {
		t.Fatalf("expected streaming action to resolve true, got %v", stream)
	}
}

func TestRouterListModels(t *testing.T) {
	bal := balancer.New(&fakeRoutingStore{}, circuitbreaker.New(3, time.Minute))
	pipeline := proxy.New(&fakeLogStore{}, bal, circuitbreaker.New(3, time.Minute), http.DefaultClient)

	r := NewRouter(&Server{
		Pipeline:   pipeline,
		DB:         fakeModelStore{},
		ModelCache: &cache.ModelListCache{},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"gpt-4"`) {
		t.Fatalf("expected model list body, got %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"owned_by":"OpenAI"`) {
		t.Fatalf("expected owned_by resolved from the model's provider slug, got %s", w.Body.String())
	}
}
