// Package gemini implements the bidirectional Google Gemini generateContent
// codec. Grounded on the teacher's internal/translator_new/ir/util_gemini.go
// schema cleaning and finish-reason mapping, generalized from Gemini's
// role/parts wire shape described in spec.md §4.1.
package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llm-gateway/gateway/internal/apperror"
	"github.com/llm-gateway/gateway/internal/codec"
	"github.com/llm-gateway/gateway/internal/ir"
	"github.com/tidwall/gjson"
)

func init() {
	codec.Register(codec.FormatGemini,
		func() codec.Decoder { return &Codec{} },
		func() codec.Encoder { return &Codec{} },
	)
}

// Codec implements codec.Decoder and codec.Encoder for Gemini. Streaming
// chunks are self-contained JSON objects on the wire (no named events, no
// sentinel), so the struct carries no accumulator state; it exists as a
// pointer receiver purely for interface symmetry with the other codecs.
type Codec struct{}

type wirePart struct {
	Text             string          `json:"text,omitempty"`
	InlineData       *wireInlineData `json:"inlineData,omitempty"`
	FunctionCall     *wireFuncCall   `json:"functionCall,omitempty"`
	FunctionResponse *wireFuncResp   `json:"functionResponse,omitempty"`
}

type wireInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireFuncCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type wireFuncResp struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireFuncDecl struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type wireRequest struct {
	Contents          []wireContent    `json:"contents"`
	SystemInstruction *wireContent     `json:"systemInstruction,omitempty"`
	GenerationConfig  *wireGenConfig   `json:"generationConfig,omitempty"`
	Tools             []wireToolsEntry `json:"tools,omitempty"`
	ToolConfig        *wireToolConfig  `json:"toolConfig,omitempty"`
}

type wireGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type wireToolsEntry struct {
	FunctionDeclarations []wireFuncDecl `json:"functionDeclarations"`
}

type wireToolConfig struct {
	FunctionCallingConfig struct {
		Mode                 string   `json:"mode"`
		AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
	} `json:"functionCallingConfig"`
}

// DecodeRequest implements codec.Decoder. model is not read from the body —
// Gemini carries it in the URL path, so callers must set ir.ChatRequest.Model
// themselves from the path segment.
func (c *Codec) DecodeRequest(body []byte) (*ir.ChatRequest, error) {
	var w wireRequest
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, apperror.Codec("gemini: decode request", err)
	}

	req := &ir.ChatRequest{}
	if w.SystemInstruction != nil {
		req.System = contentText(*w.SystemInstruction)
	}
	if w.GenerationConfig != nil {
		req.Temperature = w.GenerationConfig.Temperature
		req.TopP = w.GenerationConfig.TopP
		req.MaxTokens = w.GenerationConfig.MaxOutputTokens
		req.Stop = w.GenerationConfig.StopSequences
	}

	for _, content := range w.Contents {
		msgs, err := decodeWireContent(content)
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, msgs...)
	}

	for _, t := range w.Tools {
		for _, fd := range t.FunctionDeclarations {
			req.Tools = append(req.Tools, ir.Tool{
				Name:        fd.Name,
				Description: fd.Description,
				Parameters:  fd.Parameters,
			})
		}
	}
	if w.ToolConfig != nil {
		req.ToolChoice = decodeToolConfig(*w.ToolConfig)
	}

	return req, nil
}

func decodeToolConfig(tc wireToolConfig) *ir.ToolChoice {
	switch strings.ToUpper(tc.FunctionCallingConfig.Mode) {
	case "NONE":
		return &ir.ToolChoice{Mode: ir.ToolChoiceNone}
	case "ANY":
		if len(tc.FunctionCallingConfig.AllowedFunctionNames) == 1 {
			return &ir.ToolChoice{Mode: ir.ToolChoiceTool, Name: tc.FunctionCallingConfig.AllowedFunctionNames[0]}
		}
		return &ir.ToolChoice{Mode: ir.ToolChoiceAny}
	default:
		return &ir.ToolChoice{Mode: ir.ToolChoiceAuto}
	}
}

func contentText(c wireContent) string {
	var sb strings.Builder
	for _, p := range c.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// decodeWireContent converts one Gemini content turn into one or more IR
// messages; a functionResponse part becomes its own RoleTool message.
func decodeWireContent(c wireContent) ([]ir.Message, error) {
	role := mapGeminiRole(c.Role)

	var out []ir.Message
	var parts []ir.ContentPart
	var toolCalls []ir.ToolCall

	for _, p := range c.Parts {
		switch {
		case p.FunctionCall != nil:
			argsJSON, err := json.Marshal(p.FunctionCall.Args)
			if err != nil {
				return nil, apperror.Codec("gemini: encode functionCall args", err)
			}
			toolCalls = append(toolCalls, ir.ToolCall{
				ID:        "call_" + p.FunctionCall.Name,
				Name:      p.FunctionCall.Name,
				Arguments: string(argsJSON),
			})
		case p.FunctionResponse != nil:
			respJSON, err := json.Marshal(p.FunctionResponse.Response)
			if err != nil {
				return nil, apperror.Codec("gemini: encode functionResponse", err)
			}
			out = append(out, ir.Message{
				Role:       ir.RoleTool,
				Name:       p.FunctionResponse.Name,
				ToolCallID: "call_" + p.FunctionResponse.Name,
				Content:    ir.NewTextContent(string(respJSON)),
			})
		case p.InlineData != nil:
			parts = append(parts, ir.ContentPart{
				Type:  ir.ContentPartImage,
				Image: &ir.Image{MimeType: p.InlineData.MimeType, Data: p.InlineData.Data},
			})
		default:
			parts = append(parts, ir.ContentPart{Type: ir.ContentPartText, Text: p.Text})
		}
	}

	if len(toolCalls) > 0 {
		out = append(out, ir.Message{Role: ir.RoleAssistant, Content: contentFromParts(parts), ToolCalls: toolCalls})
	} else if len(parts) > 0 {
		out = append(out, ir.Message{Role: role, Content: contentFromParts(parts)})
	}
	return out, nil
}

func contentFromParts(parts []ir.ContentPart) ir.Content {
	if len(parts) == 1 && parts[0].Type == ir.ContentPartText {
		return ir.NewTextContent(parts[0].Text)
	}
	return ir.Content{Parts: parts}
}

func mapGeminiRole(role string) ir.Role {
	switch role {
	case "model":
		return ir.RoleAssistant
	case "function":
		return ir.RoleTool
	default:
		return ir.RoleUser
	}
}

// DecodeResponse implements codec.Decoder.
func (c *Codec) DecodeResponse(body []byte) (*ir.ChatResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, apperror.Codec("gemini: invalid response JSON", fmt.Errorf("invalid json"))
	}
	root := gjson.ParseBytes(body)
	candidate := root.Get("candidates.0")
	if !candidate.Exists() {
		return nil, apperror.Codec("gemini: response has no candidates", fmt.Errorf("missing candidates[0]"))
	}

	var parts []ir.ContentPart
	var toolCalls []ir.ToolCall
	for _, p := range candidate.Get("content.parts").Array() {
		if fc := p.Get("functionCall"); fc.Exists() {
			toolCalls = append(toolCalls, ir.ToolCall{
				ID:        "call_" + fc.Get("name").String(),
				Name:      fc.Get("name").String(),
				Arguments: fc.Get("args").Raw,
			})
			continue
		}
		if text := p.Get("text"); text.Exists() {
			parts = append(parts, ir.ContentPart{Type: ir.ContentPartText, Text: text.String()})
		}
	}

	resp := &ir.ChatResponse{
		Model:   root.Get("modelVersion").String(),
		Message: ir.Message{Role: ir.RoleAssistant, Content: contentFromParts(parts), ToolCalls: toolCalls},
	}
	if id := root.Get("responseId"); id.Exists() {
		resp.ID = id.String()
	} else {
		resp.ID = ir.GenerateUUID()
	}

	if fr, ok := ir.MapGeminiFinishReason(candidate.Get("finishReason").String(), len(toolCalls) > 0); ok {
		resp.FinishReason = fr
		resp.HasFinish = true
	}
	resp.FinishReason = ir.OverrideFinishReasonForToolCalls(resp.FinishReason, len(toolCalls) > 0)
	if len(toolCalls) > 0 {
		resp.HasFinish = true
	}

	if u := root.Get("usageMetadata"); u.Exists() {
		resp.Usage = &ir.Usage{
			PromptTokens:     int(u.Get("promptTokenCount").Int()),
			CompletionTokens: int(u.Get("candidatesTokenCount").Int()),
			TotalTokens:      int(u.Get("totalTokenCount").Int()),
			HasTotalTokens:   true,
		}
	}

	return resp, nil
}

// DecodeStreamChunk implements codec.Decoder. Each streamed Gemini object has
// the same shape as the non-stream response; the difference lies only in
// transport framing (which the proxy's SSE transducer handles).
func (c *Codec) DecodeStreamChunk(dataLine string) (*ir.StreamChunk, error) {
	if !gjson.Valid(dataLine) {
		return nil, apperror.Codec("gemini: invalid stream chunk JSON", fmt.Errorf("invalid json"))
	}
	root := gjson.Parse(dataLine)
	candidate := root.Get("candidates.0")

	chunk := &ir.StreamChunk{Model: root.Get("modelVersion").String()}
	if id := root.Get("responseId"); id.Exists() {
		chunk.ID = id.String()
	}

	var hasFunctionCall bool
	for _, p := range candidate.Get("content.parts").Array() {
		if fc := p.Get("functionCall"); fc.Exists() {
			hasFunctionCall = true
			chunk.DeltaToolCalls = append(chunk.DeltaToolCalls, ir.ToolCallDelta{
				Index:     len(chunk.DeltaToolCalls),
				ID:        "call_" + fc.Get("name").String(),
				Name:      fc.Get("name").String(),
				Arguments: fc.Get("args").Raw,
			})
			continue
		}
		if text := p.Get("text"); text.Exists() {
			chunk.DeltaContent += text.String()
		}
	}

	if fr := candidate.Get("finishReason"); fr.Exists() {
		if mapped, ok := ir.MapGeminiFinishReason(fr.String(), hasFunctionCall); ok {
			chunk.FinishReason = mapped
			chunk.HasFinish = true
		}
	}
	if u := root.Get("usageMetadata"); u.Exists() {
		chunk.Usage = &ir.Usage{
			PromptTokens:     int(u.Get("promptTokenCount").Int()),
			CompletionTokens: int(u.Get("candidatesTokenCount").Int()),
			TotalTokens:      int(u.Get("totalTokenCount").Int()),
			HasTotalTokens:   true,
		}
	}

	return chunk, nil
}

// IsStreamDone implements codec.Decoder. Gemini has no in-band done
// sentinel; the stream ends when the upstream connection closes, which the
// proxy's SSE transducer already detects independently of codec logic.
func (c *Codec) IsStreamDone(dataLine string) bool {
	return false
}
