// Package openai implements the bidirectional OpenAI Chat Completions codec.
// Grounded on the teacher's internal/translator_new/{to_ir,from_ir}/openai.go
// (map-based JSON construction, gjson-assisted parsing) generalized to the
// IR this repository's spec defines.
package openai

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
	codec.Register(codec.FormatOpenAIChat,
		func() codec.Decoder { return Codec{} },
		func() codec.Encoder { return &Codec{} },
	)
}

// Codec implements codec.Decoder and codec.Encoder for OpenAI Chat
// Completions. It carries no per-stream state (OpenAI Chat chunks are
// self-contained), so the same zero value works for both roles.
type Codec struct{}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireRequest struct {
	Model       string          `json:"model"`
	Messages    []wireMessage   `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Stop        json.RawMessage `json:"stop,omitempty"`
	Tools       []wireTool      `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description,omitempty"`
		Parameters  map[string]interface{} `json:"parameters,omitempty"`
	} `json:"function"`
}

// DecodeRequest implements codec.Decoder.
func (Codec) DecodeRequest(body []byte) (*ir.ChatRequest, error) {
	var w wireRequest
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, apperror.Codec("openai: decode request", err)
	}

	req := &ir.ChatRequest{
		Model:       w.Model,
		Temperature: w.Temperature,
		TopP:        w.TopP,
		MaxTokens:   w.MaxTokens,
		Stream:      w.Stream,
	}

	if len(w.Stop) > 0 {
		req.Stop = decodeStopField(w.Stop)
	}

	systemSeen := false
	for _, m := range w.Messages {
		if m.Role == "system" || m.Role == "developer" {
			if !systemSeen {
				req.System = decodeContentToText(m.Content)
				systemSeen = true
			}
			continue
		}
		msg, err := decodeMessage(m)
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range w.Tools {
		req.Tools = append(req.Tools, ir.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	if len(w.ToolChoice) > 0 {
		tc, err := decodeToolChoice(w.ToolChoice)
		if err != nil {
			return nil, err
		}
		req.ToolChoice = tc
	}

	return req, nil
}

func decodeStopField(raw json.RawMessage) []string {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var arr []string
		_ = json.Unmarshal(raw, &arr)
		return arr
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return []string{s}
	}
	return nil
}

func decodeToolChoice(raw json.RawMessage) (*ir.ToolChoice, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, apperror.Codec("openai: decode tool_choice", err)
		}
		switch s {
		case "auto":
			return &ir.ToolChoice{Mode: ir.ToolChoiceAuto}, nil
		case "none":
			return &ir.ToolChoice{Mode: ir.ToolChoiceNone}, nil
		case "required":
			return &ir.ToolChoice{Mode: ir.ToolChoiceAny}, nil
		default:
			return &ir.ToolChoice{Mode: ir.ToolChoiceAuto}, nil
		}
	}
	name := gjson.GetBytes(raw, "function.name").String()
	if name != "" {
		return &ir.ToolChoice{Mode: ir.ToolChoiceTool, Name: name}, nil
	}
	return &ir.ToolChoice{Mode: ir.ToolChoiceAuto}, nil
}

// decodeContentToText extracts plain text from a bare-string or part-array
// content field, used for system/tool messages which are always plain text.
func decodeContentToText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		_ = json.Unmarshal(raw, &s)
		return s
	}
	content := decodeContent(raw)
	return content.ToText()
}

// decodeContent parses the bare-string-or-parts-array shape into ir.Content,
// normalizing a single-text-part array down to the plain-string form per
// spec.md §4.1.
func decodeContent(raw json.RawMessage) ir.Content {
	if len(raw) == 0 {
		return ir.NewTextContent("")
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		_ = json.Unmarshal(raw, &s)
		return ir.NewTextContent(s)
	}
	if !strings.HasPrefix(trimmed, "[") {
		return ir.NewTextContent("")
	}

	var rawParts []json.RawMessage
	_ = json.Unmarshal(raw, &rawParts)
	var parts []ir.ContentPart
	for _, rp := range rawParts {
		typ := gjson.GetBytes(rp, "type").String()
		switch typ {
		case "text":
			parts = append(parts, ir.ContentPart{Type: ir.ContentPartText, Text: gjson.GetBytes(rp, "text").String()})
		case "image_url":
			url := gjson.GetBytes(rp, "image_url.url").String()
			mime, data := splitDataURL(url)
			img := &ir.Image{URL: url}
			if mime != "" {
				img.URL = ""
				img.MimeType = mime
				img.Data = data
			}
			parts = append(parts, ir.ContentPart{Type: ir.ContentPartImage, Image: img})
		}
	}
	if len(parts) == 1 && parts[0].Type == ir.ContentPartText {
		return ir.NewTextContent(parts[0].Text)
	}
	return ir.Content{Parts: parts}
}

// splitDataURL splits a "data:<mime>;base64,<data>" URL into its parts. If
// url is not a data URL, both return values are empty.
func splitDataURL(url string) (mime, data string) {
	const prefix = "data:"
	if !strings.HasPrefix(url, prefix) {
		return "", ""
	}
	rest := url[len(prefix):]
	semi := strings.Index(rest, ";base64,")
	if semi < 0 {
		return "", ""
	}
	return rest[:semi], rest[semi+len(";base64,"):]
}

func decodeMessage(m wireMessage) (ir.Message, error) {
	role := ir.MapStandardRole(m.Role)
	msg := ir.Message{Role: role, Name: m.Name, ToolCallID: m.ToolCallID}

	if role == ir.RoleAssistant && len(m.ToolCalls) > 0 {
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ir.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	msg.Content = decodeContent(m.Content)
	return msg, nil
}

// DecodeResponse implements codec.Decoder.
func (Codec) DecodeResponse(body []byte) (*ir.ChatResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, apperror.Codec("openai: invalid response JSON", fmt.Errorf("invalid json"))
	}
	root := gjson.ParseBytes(body)
	choice := root.Get("choices.0")
	if !choice.Exists() {
		return nil, apperror.Codec("openai: response has no choices", fmt.Errorf("missing choices[0]"))
	}

	msgResult := choice.Get("message")
	msg := ir.Message{Role: ir.RoleAssistant}
	if text := msgResult.Get("content"); text.Exists() && text.Type == gjson.String {
		msg.Content = ir.NewTextContent(text.String())
	}
	var hasToolCalls bool
	if tcs := msgResult.Get("tool_calls"); tcs.Exists() {
		for _, tc := range tcs.Array() {
			msg.ToolCalls = append(msg.ToolCalls, ir.ToolCall{
				ID:        tc.Get("id").String(),
				Name:      tc.Get("function.name").String(),
				Arguments: tc.Get("function.arguments").String(),
			})
			hasToolCalls = true
		}
	}

	resp := &ir.ChatResponse{
		ID:      root.Get("id").String(),
		Model:   root.Get("model").String(),
		Message: msg,
	}

	if fr, ok := ir.MapOpenAIFinishReason(choice.Get("finish_reason").String()); ok {
		resp.FinishReason = fr
		resp.HasFinish = true
	}
	resp.FinishReason = ir.OverrideFinishReasonForToolCalls(resp.FinishReason, hasToolCalls)
	if hasToolCalls {
		resp.HasFinish = true
	}

	if u := root.Get("usage"); u.Exists() {
		resp.Usage = &ir.Usage{
			PromptTokens:     int(u.Get("prompt_tokens").Int()),
			CompletionTokens: int(u.Get("completion_tokens").Int()),
		}
		if t := u.Get("total_tokens"); t.Exists() {
			resp.Usage.TotalTokens = int(t.Int())
			resp.Usage.HasTotalTokens = true
		}
	}

	return resp, nil
}

// DecodeStreamChunk implements codec.Decoder.
func (Codec) DecodeStreamChunk(dataLine string) (*ir.StreamChunk, error) {
	if !gjson.Valid(dataLine) {
		return nil, apperror.Codec("openai: invalid stream chunk JSON", fmt.Errorf("invalid json"))
	}
	root := gjson.Parse(dataLine)
	choice := root.Get("choices.0")

	chunk := &ir.StreamChunk{
		ID:    root.Get("id").String(),
		Model: root.Get("model").String(),
	}

	delta := choice.Get("delta")
	if roleVal := delta.Get("role"); roleVal.Exists() {
		chunk.DeltaRole = ir.MapStandardRole(roleVal.String())
		chunk.HasDeltaRole = true
	}
	if content := delta.Get("content"); content.Exists() {
		chunk.DeltaContent = content.String()
	}
	if tcs := delta.Get("tool_calls"); tcs.Exists() {
		for _, tc := range tcs.Array() {
			d := ir.ToolCallDelta{Index: int(tc.Get("index").Int())}
			if id := tc.Get("id"); id.Exists() {
				d.ID = id.String()
			}
			if name := tc.Get("function.name"); name.Exists() {
				d.Name = name.String()
			}
			if args := tc.Get("function.arguments"); args.Exists() {
				d.Arguments = args.String()
			}
			chunk.DeltaToolCalls = append(chunk.DeltaToolCalls, d)
		}
	}
	if fr := choice.Get("finish_reason"); fr.Exists() && fr.Type == gjson.String {
		if mapped, ok := ir.MapOpenAIFinishReason(fr.String()); ok {
			chunk.FinishReason = mapped
			chunk.HasFinish = true
		}
	}
	if u := root.Get("usage"); u.Exists() {
		chunk.Usage = &ir.Usage{
			PromptTokens:     int(u.Get("prompt_tokens").Int()),
			CompletionTokens: int(u.Get("completion_tokens").Int()),
		}
		if t := u.Get("total_tokens"); t.Exists() {
			chunk.Usage.TotalTokens = int(t.Int())
			chunk.Usage.HasTotalTokens = true
		}
	}

	return chunk, nil
}

// IsStreamDone implements codec.Decoder.
func (Codec) IsStreamDone(dataLine string) bool {
	return strings.TrimSpace(dataLine) == "[DONE]"
}
