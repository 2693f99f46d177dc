package proxy

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/llm-gateway/gateway/internal/ir"
	"github.com/llm-gateway/gateway/internal/tokencount"
)

// Transduce implements spec.md §4.6: it reads upstream's SSE byte stream,
// decodes each data line via h.Decoder, re-encodes via h.Encoder (which is
// held by value for this stream only, never shared), and calls emit for
// every downstream SSE line produced. On upstream EOF it flushes any
// deferred terminal events via StreamDoneSignal and persists the
// accumulated chunks into the request log.
//
// Grounded on original_source/src-tauri/src/server/proxy.rs's proxy_stream,
// translated from its async_stream! generator into a blocking read loop —
// Go has no native async generators, so the buffer-and-scan logic is
// reproduced directly rather than via a channel-based imitation of streams.
func (p *Pipeline) Transduce(h *StreamHandoff, emit func(line string) error) error {
	defer h.UpstreamBody.Close()

	var buffer strings.Builder
	var chunks []string
	var lastUsage *ir.Usage
	streamDone := false

	reader := bufio.NewReaderSize(h.UpstreamBody, 32*1024)
	buf := make([]byte, 32*1024)

	for !streamDone {
		n, err := reader.Read(buf)
		if n > 0 {
			buffer.Write(buf[:n])
			streamDone = processBuffer(&buffer, h, &chunks, &lastUsage, emit)
		}
		if err != nil {
			if err != io.EOF {
				logrus.WithError(err).Warn("proxy: upstream stream read error")
			}
			break
		}
	}

	if !streamDone {
		if done := h.Encoder.StreamDoneSignal(); done != "" {
			chunks = append(chunks, done)
			if err := emit(done + "\n\n"); err != nil {
				return err
			}
		}
	}

	responseBody := ""
	if len(chunks) > 0 {
		responseBody = "[" + strings.Join(chunks, ",") + "]"
	}

	// spec.md §4.7: quota accounting only ever trusts usage the upstream
	// itself reports. When a streaming response never carries one, estimate
	// prompt_tokens from the accumulated request text purely so the
	// request_logs row has a plausible figure; completion_tokens stays 0.
	var promptTokens, completionTokens int
	if lastUsage != nil {
		promptTokens = lastUsage.PromptTokens
		completionTokens = lastUsage.CompletionTokens
	} else {
		promptTokens = tokencount.EstimatePromptTokens(h.PromptText)
	}

	latency := time.Since(h.StartedAt).Milliseconds()
	if err := p.DB.UpdateRequestLogResponseBody(h.LogID, responseBody, 200, latency, promptTokens, completionTokens); err != nil {
		logrus.WithError(err).Error("proxy: failed to update streamed log row")
	}
	return nil
}

// processBuffer repeatedly extracts complete "\n\n"-delimited event blocks
// from buffer, handling each data: line, and reports whether the upstream's
// own done sentinel was observed.
func processBuffer(buffer *strings.Builder, h *StreamHandoff, chunks *[]string, lastUsage **ir.Usage, emit func(line string) error) bool {
	content := buffer.String()
	done := false

	for {
		idx := strings.Index(content, "\n\n")
		if idx < 0 {
			break
		}
		block := content[:idx]
		content = content[idx+2:]

		if handleEventBlock(block, h, chunks, lastUsage, emit) {
			done = true
			break
		}
	}

	buffer.Reset()
	buffer.WriteString(content)
	return done
}

// handleEventBlock processes every data: line in one SSE event block,
// returning true once the upstream's stream-done sentinel is seen.
func handleEventBlock(block string, h *StreamHandoff, chunks *[]string, lastUsage **ir.Usage, emit func(line string) error) bool {
	for _, line := range strings.Split(block, "\n") {
		data, ok := stripDataPrefix(line)
		if !ok {
			continue
		}

		if h.Decoder.IsStreamDone(data) {
			if done := h.Encoder.StreamDoneSignal(); done != "" {
				*chunks = append(*chunks, done)
				_ = emit(done + "\n\n")
			}
			return true
		}

		chunk, err := h.Decoder.DecodeStreamChunk(data)
		if err != nil {
			logrus.WithError(err).Warn("proxy: decode stream chunk failed")
			continue
		}
		if chunk == nil {
			continue
		}
		if chunk.Usage != nil {
			*lastUsage = chunk.Usage
		}

		encoded, err := h.Encoder.EncodeStreamChunk(chunk)
		if err != nil {
			logrus.WithError(err).Warn("proxy: encode stream chunk failed")
			continue
		}
		if encoded == "" {
			continue
		}
		*chunks = append(*chunks, encoded)
		_ = emit(encoded + "\n\n")
	}
	return false
}

// stripDataPrefix strips a leading "data: " or "data:" prefix, per spec.md
// §4.6 step 3; any other prefix (including "event:") is ignored since the
// JSON payload self-identifies its event type.
func stripDataPrefix(line string) (string, bool) {
	switch {
	case strings.HasPrefix(line, "data: "):
		return strings.TrimSpace(strings.TrimPrefix(line, "data: ")), true
	case strings.HasPrefix(line, "data:"):
		return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
	default:
		return "", false
	}
}
