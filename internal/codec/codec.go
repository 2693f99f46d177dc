// Package codec defines the universal Decoder/Encoder contract every
// provider wire format implements, and the registry that looks up a codec
// by format slug. Mirrors the dynamic-polymorphism guidance of spec.md §9:
// a small tag/enum (Format) selects one of five concrete implementations
// behind two interfaces.
package codec

import "github.com/llm-gateway/gateway/internal/ir"

// Format is a wire-format slug. It doubles as the `provider` tag stored on
// a Channel row and the input/output format recorded on a RequestLog row.
type Format string

const (
	FormatOpenAIChat      Format = "openai"
	FormatOpenAIResponses Format = "openai-responses"
	FormatAnthropic       Format = "anthropic"
	FormatGemini          Format = "gemini"
	FormatMoonshot        Format = "moonshot"
	FormatAzureOpenAI     Format = "azure"
)

// Valid reports whether f is one of the recognized format slugs.
func (f Format) Valid() bool {
	switch f {
	case FormatOpenAIChat, FormatOpenAIResponses, FormatAnthropic, FormatGemini, FormatMoonshot, FormatAzureOpenAI:
		return true
	default:
		return false
	}
}

// Decoder decodes wire-format bytes into the IR. A decoder MAY keep state
// across a single stream (the Anthropic decoder tracks content-block types
// and tool-call IDs by index), so GetDecoder returns a fresh instance per
// call and one instance is used for one request/stream only.
type Decoder interface {
	DecodeRequest(body []byte) (*ir.ChatRequest, error)
	DecodeResponse(body []byte) (*ir.ChatResponse, error)
	DecodeStreamChunk(dataLine string) (*ir.StreamChunk, error)
	IsStreamDone(dataLine string) bool
}

// Encoder encodes the IR into wire-format bytes. Unlike Decoder, an Encoder
// MAY be stateful across a single stream (the OpenAI Responses and Anthropic
// encoders accumulate text/tool-call state); callers must construct a fresh
// Encoder per request/stream rather than share one across requests.
//
// EncodeStreamChunk and StreamDoneSignal return the complete SSE text ready
// to write to the client for that increment — "data: <payload>" for
// single-event formats, or multiple "event: <type>\ndata: <payload>" blocks
// joined by blank lines for formats with named events (Anthropic). The
// caller appends exactly one trailing "\n\n" after each returned string; an
// empty return means nothing further needs to be sent for that increment.
type Encoder interface {
	EncodeRequest(req *ir.ChatRequest, model string) ([]byte, error)
	EncodeResponse(resp *ir.ChatResponse) ([]byte, error)
	EncodeStreamChunk(chunk *ir.StreamChunk) (string, error)
	StreamDoneSignal() string
}

// DecoderFactory returns a fresh decoder for one format.
type DecoderFactory func() Decoder

// EncoderFactory returns a fresh encoder for one format. Always call this
// per request/stream — never cache or share the result.
type EncoderFactory func() Encoder

var decoderFactories = map[Format]DecoderFactory{}
var encoderFactories = map[Format]EncoderFactory{}

// Register wires a format's decoder/encoder factories into the global
// registry. Called from each provider subpackage's init().
func Register(format Format, dec DecoderFactory, enc EncoderFactory) {
	decoderFactories[format] = dec
	encoderFactories[format] = enc
}

// GetDecoder returns a decoder for format, or false if unregistered.
func GetDecoder(format Format) (Decoder, bool) {
	f, ok := decoderFactories[format]
	if !ok {
		return nil, false
	}
	return f(), true
}

// GetEncoder returns a fresh encoder for format, or false if unregistered.
func GetEncoder(format Format) (Encoder, bool) {
	f, ok := encoderFactories[format]
	if !ok {
		return nil, false
	}
	return f(), true
}

// URLSuffix returns the upstream-path suffix for format per spec.md §4.5
// step 7. Gemini's suffix depends on both the model name and whether the
// request streams, so it is handled separately by callers via GeminiPath.
func URLSuffix(format Format) string {
	switch format {
	case FormatOpenAIChat, FormatMoonshot, FormatAzureOpenAI:
		return "/v1/chat/completions"
	case FormatOpenAIResponses:
		return "/v1/responses"
	case FormatAnthropic:
		return "/v1/messages"
	default:
		return ""
	}
}

// GeminiPath builds the v1beta model-in-URL path spec.md §4.5/§4.1 requires.
// Streaming is decided entirely by the URL — the encoded body never carries
// a stream flag for Gemini (spec.md §9 Open Question, preserved as-is).
func GeminiPath(model string, stream bool) string {
	if stream {
		return "/v1beta/models/" + model + ":streamGenerateContent?alt=sse"
	}
	return "/v1beta/models/" + model + ":generateContent"
}
