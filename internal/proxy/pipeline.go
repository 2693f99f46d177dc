package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/llm-gateway/gateway/internal/apperror"
	"github.com/llm-gateway/gateway/internal/auth"
	"github.com/llm-gateway/gateway/internal/balancer"
	"github.com/llm-gateway/gateway/internal/circuitbreaker"
	"github.com/llm-gateway/gateway/internal/codec"
	"github.com/llm-gateway/gateway/internal/ir"
	"github.com/llm-gateway/gateway/internal/store"
)

// logStore is the subset of *store.Store the pipeline needs for auth and
// request logging.
type logStore interface {
	TokenByKeyValue(keyValue string) (*store.Token, error)
	InsertRequestLog(l *store.RequestLog) error
	UpdateRequestLogResponseBody(id string, responseBody string, status int, latencyMS int64, promptTokens, completionTokens int) error
	IncrementQuotaUsed(tokenID string, delta int64) error
}

// Pipeline wires together everything proxy_chat needs: the store, the
// balancer, the circuit breaker, and the shared HTTP client.
type Pipeline struct {
	DB      logStore
	Balance *balancer.Balancer
	Circuit *circuitbreaker.Breaker
	Client  *http.Client
}

// New constructs a Pipeline from its dependencies.
func New(db logStore, bal *balancer.Balancer, circuit *circuitbreaker.Breaker, client *http.Client) *Pipeline {
	return &Pipeline{DB: db, Balance: bal, Circuit: circuit, Client: client}
}

// Result is what ProxyChat hands back to the HTTP handler: either a
// completed non-streaming response body, or a started stream the caller
// must pipe to the client via the transducer.
type Result struct {
	StatusCode int
	Body       []byte
	Stream     *StreamHandoff
}

// StreamHandoff carries everything Transduce needs once the upstream call
// has already succeeded.
type StreamHandoff struct {
	UpstreamBody io.ReadCloser
	Decoder      codec.Decoder
	Encoder      codec.Encoder
	LogID        string
	StartedAt    time.Time
	// PromptText is the request's system prompt plus every message's text
	// content, joined for tokencount.EstimatePromptTokens when the upstream
	// stream ends without ever reporting usage.
	PromptText string
}

// ProxyChat implements spec.md §4.5's full sequence for one input format.
// headers/query/body come straight off the inbound HTTP request; query is
// the raw (unparsed) query string. pathModel is the model segment from the
// URL path for formats (Gemini) that address the model outside the JSON
// body; pass "" for every other format. streamOverride is non-nil for
// formats (Gemini) whose URL action verb, not the body, decides whether the
// call streams.
func (p *Pipeline) ProxyChat(inputFormat codec.Format, headers http.Header, query string, body []byte, pathModel string, streamOverride *bool) (*Result, error) {
	start := time.Now()

	// 1. Authenticate.
	tok, err := auth.Authenticate(p.DB, headers)
	if err != nil {
		return nil, err
	}

	// 2. Decode request body -> IR.
	inputDecoder, ok := codec.GetDecoder(inputFormat)
	if !ok {
		return nil, apperror.Internal(fmt.Sprintf("no decoder registered for format %q", inputFormat))
	}
	reqIR, err := inputDecoder.DecodeRequest(body)
	if err != nil {
		return nil, apperror.BadRequest(err.Error())
	}
	if pathModel != "" {
		reqIR.Model = pathModel
	}
	if streamOverride != nil {
		reqIR.Stream = *streamOverride
	}

	// 3. Resolve output format.
	outputFormatStr := auth.ExtractOutputFormat(headers, query)
	outputFormat := inputFormat
	if outputFormatStr != "" && codec.Format(outputFormatStr).Valid() {
		outputFormat = codec.Format(outputFormatStr)
	}

	// 4. Select channel via the balancer.
	sel, err := p.Balance.Select(reqIR.Model)
	if err != nil {
		return nil, err
	}

	inputFmtStr := string(inputFormat)
	outputFmtStr := string(sel.Channel.Provider)
	requestBodyStr := string(body)

	// 5. Upstream format from the selected channel's provider tag.
	upstreamFormat := codec.Format(sel.Channel.Provider)
	if !upstreamFormat.Valid() {
		return nil, apperror.Internal(fmt.Sprintf("unknown provider %q on channel %s", sel.Channel.Provider, sel.Channel.ID))
	}

	// 6. Re-encode IR -> upstream wire format.
	upstreamEncoder, ok := codec.GetEncoder(upstreamFormat)
	if !ok {
		return nil, apperror.Internal(fmt.Sprintf("no encoder registered for format %q", upstreamFormat))
	}
	upstreamBody, err := upstreamEncoder.EncodeRequest(reqIR, sel.Mapping.ActualName)
	if err != nil {
		return nil, apperror.Codec("encode upstream request", err)
	}

	// 7. Build upstream URL.
	upstreamURL := buildUpstreamURL(sel.Channel.BaseURL, upstreamFormat, sel.Mapping.ActualName, reqIR.Stream)

	// 8/9. Build and send the upstream request.
	httpReq, err := http.NewRequest(http.MethodPost, upstreamURL, bytes.NewReader(upstreamBody))
	if err != nil {
		return nil, apperror.Internal(err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	applyAuth(httpReq, upstreamFormat, sel.APIKey)

	upstreamResp, err := p.Client.Do(httpReq)
	if err != nil {
		p.Circuit.RecordFailure(sel.Channel.ID)
		latency := time.Since(start).Milliseconds()
		p.logAttempt(tok.ID, sel.Channel.ID, reqIR.Model, inputFmtStr, outputFmtStr, 0, latency, requestBodyStr, err.Error())
		return nil, apperror.HTTPClient(err)
	}

	// 10. Outcome handling.
	if upstreamResp.StatusCode < 200 || upstreamResp.StatusCode >= 300 {
		p.Circuit.RecordFailure(sel.Channel.ID)
		errBody, _ := readAllDecompressed(upstreamResp)
		latency := time.Since(start).Milliseconds()
		p.logAttempt(tok.ID, sel.Channel.ID, reqIR.Model, inputFmtStr, outputFmtStr, upstreamResp.StatusCode, latency, requestBodyStr, string(errBody))
		return nil, apperror.Upstream(upstreamResp.StatusCode, string(errBody))
	}
	p.Circuit.RecordSuccess(sel.Channel.ID)

	// 12. Streaming path: log eagerly, hand off to the transducer.
	if reqIR.Stream {
		outputEncoder, ok := codec.GetEncoder(outputFormat)
		if !ok {
			upstreamResp.Body.Close()
			return nil, apperror.Internal(fmt.Sprintf("no encoder registered for format %q", outputFormat))
		}
		upstreamDecoder, ok := codec.GetDecoder(upstreamFormat)
		if !ok {
			upstreamResp.Body.Close()
			return nil, apperror.Internal(fmt.Sprintf("no decoder registered for format %q", upstreamFormat))
		}

		logID := uuid.NewString()
		latency := time.Since(start).Milliseconds()
		if err := p.DB.InsertRequestLog(&store.RequestLog{
			ID: logID, TokenID: tok.ID, ChannelID: sel.Channel.ID, Model: reqIR.Model, Modality: "chat",
			InputFormat: inputFmtStr, OutputFormat: outputFmtStr, Status: 200, LatencyMS: latency,
			RequestBody: requestBodyStr, ResponseBody: nil, CreatedAt: time.Now(),
		}); err != nil {
			logrus.WithError(err).Error("proxy: failed to log streaming request")
		}

		return &Result{
			StatusCode: http.StatusOK,
			Stream: &StreamHandoff{
				UpstreamBody: upstreamResp.Body,
				Decoder:      upstreamDecoder,
				Encoder:      outputEncoder,
				LogID:        logID,
				StartedAt:    start,
				PromptText:   promptText(reqIR),
			},
		}, nil
	}

	// 11. Non-streaming path.
	respBytes, err := readAllDecompressed(upstreamResp)
	if err != nil {
		return nil, apperror.Internal(err.Error())
	}

	upstreamDecoder, ok := codec.GetDecoder(upstreamFormat)
	if !ok {
		return nil, apperror.Internal(fmt.Sprintf("no decoder registered for format %q", upstreamFormat))
	}
	respIR, err := upstreamDecoder.DecodeResponse(respBytes)
	if err != nil {
		return nil, apperror.Codec("decode upstream response", err)
	}

	outputEncoder, ok := codec.GetEncoder(outputFormat)
	if !ok {
		return nil, apperror.Internal(fmt.Sprintf("no encoder registered for format %q", outputFormat))
	}
	outputBytes, err := outputEncoder.EncodeResponse(respIR)
	if err != nil {
		return nil, apperror.Codec("encode output response", err)
	}

	latency := time.Since(start).Milliseconds()
	var promptTokens, completionTokens int
	if respIR.Usage != nil {
		promptTokens = respIR.Usage.PromptTokens
		completionTokens = respIR.Usage.CompletionTokens
	}
	respBodyStr := string(outputBytes)
	if err := p.DB.InsertRequestLog(&store.RequestLog{
		ID: uuid.NewString(), TokenID: tok.ID, ChannelID: sel.Channel.ID, Model: reqIR.Model, Modality: "chat",
		InputFormat: inputFmtStr, OutputFormat: outputFmtStr, Status: 200, LatencyMS: latency,
		PromptTokens: promptTokens, CompletionTokens: completionTokens,
		RequestBody: requestBodyStr, ResponseBody: &respBodyStr, CreatedAt: time.Now(),
	}); err != nil {
		logrus.WithError(err).Error("proxy: failed to log request")
	}

	if respIR.Usage != nil {
		if err := p.DB.IncrementQuotaUsed(tok.ID, int64(promptTokens+completionTokens)); err != nil {
			logrus.WithError(err).Error("proxy: failed to increment quota")
		}
	}

	return &Result{StatusCode: http.StatusOK, Body: outputBytes}, nil
}

// promptText joins the system prompt and every message's text content for
// tokencount.EstimatePromptTokens, used only when a streaming upstream never
// reports usage.
func promptText(req *ir.ChatRequest) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString(req.System)
	}
	for _, m := range req.Messages {
		if text := m.Content.ToText(); text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}
	return b.String()
}

func (p *Pipeline) logAttempt(tokenID, channelID, model, inputFmt, outputFmt string, status int, latencyMS int64, requestBody, responseBody string) {
	if err := p.DB.InsertRequestLog(&store.RequestLog{
		ID: uuid.NewString(), TokenID: tokenID, ChannelID: channelID, Model: model, Modality: "chat",
		InputFormat: inputFmt, OutputFormat: outputFmt, Status: status, LatencyMS: latencyMS,
		RequestBody: requestBody, ResponseBody: &responseBody, CreatedAt: time.Now(),
	}); err != nil {
		logrus.WithError(err).Error("proxy: failed to log failed attempt")
	}
}

// buildUpstreamURL implements spec.md §4.5 step 7.
func buildUpstreamURL(baseURL string, format codec.Format, model string, stream bool) string {
	base := strings.TrimRight(baseURL, "/")
	if format == codec.FormatGemini {
		return base + codec.GeminiPath(model, stream)
	}
	return base + codec.URLSuffix(format)
}

// applyAuth implements spec.md §4.5 step 8.
func applyAuth(req *http.Request, format codec.Format, apiKey string) {
	switch format {
	case codec.FormatOpenAIChat, codec.FormatOpenAIResponses, codec.FormatMoonshot:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	case codec.FormatAzureOpenAI:
		req.Header.Set("api-key", apiKey)
	case codec.FormatAnthropic:
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	case codec.FormatGemini:
		req.Header.Set("x-goog-api-key", apiKey)
	}
}

