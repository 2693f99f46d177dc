package gatewayhttp

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/llm-gateway/gateway/internal/apperror"
	"github.com/llm-gateway/gateway/internal/proxy"
)

// splitGeminiPathParam splits gin's :model capture (e.g.
// "gemini-1.5-pro:streamGenerateContent") into the bare model name and
// whether the action verb requests streaming. Gemini decides streaming
// entirely from this URL action, never from the request body.
func splitGeminiPathParam(raw string) (model string, stream *bool) {
	name, action, found := strings.Cut(raw, ":")
	if !found {
		return raw, nil
	}
	isStream := action == "streamGenerateContent"
	return name, &isStream
}

// errorEnvelope builds the {"error": {...}} body spec.md §7 requires.
func errorEnvelope(err error) gin.H {
	return gin.H{"error": gin.H{
		"message": apperror.ClientMessage(err),
		"type":    apperror.TypeTag(err),
	}}
}

// writeError maps an error to its HTTP status and writes the JSON envelope.
func writeError(c *gin.Context, err error) {
	c.JSON(apperror.StatusCode(err), errorEnvelope(err))
}

// streamResponse pipes an upstream SSE stream to the client as spec.md §4.6
// requires: SSE headers, then one flush per transduced line.
func streamResponse(c *gin.Context, p *proxy.Pipeline, h *proxy.StreamHandoff) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(200)

	err := p.Transduce(h, func(line string) error {
		if _, werr := c.Writer.WriteString(line); werr != nil {
			return werr
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		// The stream is already committed to the client at this point, so
		// there is nothing left to do but record it.
		c.Error(err)
	}
}
