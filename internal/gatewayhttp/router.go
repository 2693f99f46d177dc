// Package gatewayhttp wires the gateway's HTTP surface: one route per input
// wire format feeding proxy.Pipeline.ProxyChat, plus /v1/models and /health.
// Grounded on the teacher's gin-gonic + logrus stack (its go.mod requires
// both; the router/middleware idiom itself is standard gin and not tied to
// any single teacher file, since the retrieved teacher sources for this
// repo cover only the translator/cache/registry layers, not its HTTP
// transport).
package gatewayhttp

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/llm-gateway/gateway/internal/cache"
	"github.com/llm-gateway/gateway/internal/codec"
	_ "github.com/llm-gateway/gateway/internal/codec/anthropic"
	_ "github.com/llm-gateway/gateway/internal/codec/azure"
	_ "github.com/llm-gateway/gateway/internal/codec/gemini"
	_ "github.com/llm-gateway/gateway/internal/codec/moonshot"
	_ "github.com/llm-gateway/gateway/internal/codec/openai"
	_ "github.com/llm-gateway/gateway/internal/codec/responses"
	"github.com/llm-gateway/gateway/internal/proxy"
	"github.com/llm-gateway/gateway/internal/registry"
	"github.com/llm-gateway/gateway/internal/store"
)

// modelStore is the subset of *store.Store the /v1/models handler needs.
type modelStore interface {
	ListDistinctModelMappings() ([]store.ModelMappingEntry, error)
}

// Server bundles everything the HTTP layer depends on.
type Server struct {
	Pipeline   *proxy.Pipeline
	DB         modelStore
	ModelCache *cache.ModelListCache
}

// NewRouter builds the gin engine: logrus access logging, panic recovery,
// and the five proxy routes plus /v1/models and /health spec.md §2 lists.
func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(accessLogMiddleware(), gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/v1/models", s.handleListModels)

	r.POST("/v1/chat/completions", s.proxyHandler(codec.FormatOpenAIChat))
	r.POST("/v1/responses", s.proxyHandler(codec.FormatOpenAIResponses))
	r.POST("/v1/messages", s.proxyHandler(codec.FormatAnthropic))
	r.POST("/v1beta/models/:model", s.proxyHandler(codec.FormatGemini))
	r.POST("/v1/chat/completions/moonshot", s.proxyHandler(codec.FormatMoonshot))

	return r
}

func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request handled")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// modelsResponse mirrors OpenAI's GET /v1/models envelope, since every
// supported client format expects this shape when listing models.
type modelsResponse struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

func (s *Server) handleListModels(c *gin.Context) {
	entries, err := s.ModelCache.Get(func() ([]cache.ModelEntry, error) {
		mappings, err := s.DB.ListDistinctModelMappings()
		if err != nil {
			return nil, err
		}
		out := make([]cache.ModelEntry, 0, len(mappings))
		for _, m := range mappings {
			out = append(out, cache.ModelEntry{ID: m.PublicName, OwnedBy: registry.BrandForProvider(m.Provider)})
		}
		return out, nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorEnvelope(err))
		return
	}

	resp := modelsResponse{Object: "list"}
	for _, e := range entries {
		resp.Data = append(resp.Data, modelEntry{ID: e.ID, Object: "model", OwnedBy: e.OwnedBy})
	}
	c.JSON(http.StatusOK, resp)
}

// proxyHandler builds the gin handler for one input wire format. It reads
// the body under the 32 MiB cap spec.md §4.5 requires, delegates to the
// pipeline, and either writes a JSON body or pipes the SSE stream.
func (s *Server) proxyHandler(format codec.Format) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, proxy.MaxRequestBodyBytes)
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "request body too large", "type": "bad_request"}})
			return
		}

		var pathModel string
		var streamOverride *bool
		if format == codec.FormatGemini {
			pathModel, streamOverride = splitGeminiPathParam(c.Param("model"))
		}

		result, err := s.Pipeline.ProxyChat(format, c.Request.Header, c.Request.URL.RawQuery, body, pathModel, streamOverride)
		if err != nil {
			writeError(c, err)
			return
		}

		if result.Stream != nil {
			streamResponse(c, s.Pipeline, result.Stream)
			return
		}

		c.Data(result.StatusCode, "application/json", result.Body)
	}
}
