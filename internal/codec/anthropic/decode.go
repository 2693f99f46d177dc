// Package anthropic implements the bidirectional Anthropic Messages codec,
// including the stateful SSE stream transcoding both directions require.
// Grounded on original_source/src-tauri/src/modality/chat/ir.rs for the
// content-block shapes and the teacher's ResponsesStreamState pattern
// (internal/translator_new/from_ir/openai.go) for the stateful-accumulator
// approach to streaming.
package anthropic

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
	codec.Register(codec.FormatAnthropic,
		func() codec.Decoder { return &Codec{} },
		func() codec.Encoder { return &Codec{} },
	)
}

// Codec implements codec.Decoder and codec.Encoder for Anthropic Messages.
// Unlike the OpenAI Chat codec, both directions carry per-stream state
// (content_block index -> block type, and the in-progress tool_use JSON
// buffer), so a fresh Codec must back every stream rather than being shared.
type Codec struct {
	// decode-side stream state
	blockTypes map[int]string
	toolIDs    map[int]string
	toolNames  map[int]string

	// encode-side stream state, populated lazily on first EncodeStreamChunk
	enc *encodeStreamState
}

type wireContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    *wireImageSrc   `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type wireImageSrc struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type wireTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

type wireRequest struct {
	Model       string          `json:"model"`
	System      json.RawMessage `json:"system,omitempty"`
	Messages    []wireMessage   `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	StopSeq     []string        `json:"stop_sequences,omitempty"`
	Tools       []wireTool      `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
}

// DecodeRequest implements codec.Decoder.
func (c *Codec) DecodeRequest(body []byte) (*ir.ChatRequest, error) {
	var w wireRequest
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, apperror.Codec("anthropic: decode request", err)
	}

	req := &ir.ChatRequest{
		Model:       w.Model,
		Temperature: w.Temperature,
		TopP:        w.TopP,
		MaxTokens:   w.MaxTokens,
		Stream:      w.Stream,
		Stop:        w.StopSeq,
	}
	if len(w.System) > 0 {
		req.System = decodeSystemField(w.System)
	}

	for _, m := range w.Messages {
		msg, err := decodeWireMessage(m)
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, msg...)
	}

	for _, t := range w.Tools {
		req.Tools = append(req.Tools, ir.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}

	if len(w.ToolChoice) > 0 {
		req.ToolChoice = decodeToolChoice(w.ToolChoice)
	}

	return req, nil
}

// decodeSystemField handles Anthropic's system field, which is either a bare
// string or an array of {type:"text",text} blocks.
func decodeSystemField(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		_ = json.Unmarshal(raw, &s)
		return s
	}
	var blocks []wireContentBlock
	_ = json.Unmarshal(raw, &blocks)
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func decodeToolChoice(raw json.RawMessage) *ir.ToolChoice {
	typ := gjson.GetBytes(raw, "type").String()
	switch typ {
	case "any":
		return &ir.ToolChoice{Mode: ir.ToolChoiceAny}
	case "tool":
		return &ir.ToolChoice{Mode: ir.ToolChoiceTool, Name: gjson.GetBytes(raw, "name").String()}
	case "none":
		return &ir.ToolChoice{Mode: ir.ToolChoiceNone}
	default:
		return &ir.ToolChoice{Mode: ir.ToolChoiceAuto}
	}
}

// decodeWireMessage expands one Anthropic message into one or more IR
// messages: a tool_result block becomes its own RoleTool message, since the
// IR represents tool results as standalone messages rather than content
// blocks embedded in a user turn.
func decodeWireMessage(m wireMessage) ([]ir.Message, error) {
	role := ir.MapStandardRole(m.Role)
	trimmed := strings.TrimSpace(string(m.Content))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		_ = json.Unmarshal(m.Content, &s)
		return []ir.Message{{Role: role, Content: ir.NewTextContent(s)}}, nil
	}

	var blocks []wireContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return nil, apperror.Codec("anthropic: decode message content", err)
	}

	var out []ir.Message
	var parts []ir.ContentPart
	var toolCalls []ir.ToolCall

	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, ir.ContentPart{Type: ir.ContentPartText, Text: b.Text})
		case "image":
			if b.Source != nil {
				parts = append(parts, ir.ContentPart{
					Type: ir.ContentPartImage,
					Image: &ir.Image{
						MimeType: b.Source.MediaType,
						Data:     b.Source.Data,
					},
				})
			}
		case "tool_use":
			toolCalls = append(toolCalls, ir.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: string(b.Input),
			})
		case "tool_result":
			out = append(out, ir.Message{
				Role:       ir.RoleTool,
				ToolCallID: b.ToolUseID,
				Content:    ir.NewTextContent(decodeToolResultContent(b.Content)),
			})
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

// decodeToolResultContent handles tool_result.content, which may be a bare
// string or an array of {type:"text",text} blocks.
func decodeToolResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		_ = json.Unmarshal(raw, &s)
		return s
	}
	var blocks []wireContentBlock
	_ = json.Unmarshal(raw, &blocks)
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// DecodeResponse implements codec.Decoder.
func (c *Codec) DecodeResponse(body []byte) (*ir.ChatResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, apperror.Codec("anthropic: invalid response JSON", fmt.Errorf("invalid json"))
	}
	root := gjson.ParseBytes(body)

	var parts []ir.ContentPart
	var toolCalls []ir.ToolCall
	for _, b := range root.Get("content").Array() {
		switch b.Get("type").String() {
		case "text":
			parts = append(parts, ir.ContentPart{Type: ir.ContentPartText, Text: b.Get("text").String()})
		case "tool_use":
			toolCalls = append(toolCalls, ir.ToolCall{
				ID:        b.Get("id").String(),
				Name:      b.Get("name").String(),
				Arguments: b.Get("input").Raw,
			})
		}
	}

	msg := ir.Message{Role: ir.RoleAssistant, Content: contentFromParts(parts), ToolCalls: toolCalls}

	resp := &ir.ChatResponse{
		ID:      root.Get("id").String(),
		Model:   root.Get("model").String(),
		Message: msg,
	}
	if fr, ok := ir.MapClaudeFinishReason(root.Get("stop_reason").String()); ok {
		resp.FinishReason = fr
		resp.HasFinish = true
	}
	resp.FinishReason = ir.OverrideFinishReasonForToolCalls(resp.FinishReason, len(toolCalls) > 0)
	if len(toolCalls) > 0 {
		resp.HasFinish = true
	}

	if u := root.Get("usage"); u.Exists() {
		in := int(u.Get("input_tokens").Int())
		out := int(u.Get("output_tokens").Int())
		resp.Usage = &ir.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
			HasTotalTokens:   true,
		}
	}

	return resp, nil
}

// DecodeStreamChunk implements codec.Decoder. It dispatches on the event
// envelope's own "type" field rather than a separate SSE "event:" line,
// since the gateway's SSE transducer only forwards the data: payload.
func (c *Codec) DecodeStreamChunk(dataLine string) (*ir.StreamChunk, error) {
	if c.blockTypes == nil {
		c.blockTypes = map[int]string{}
		c.toolIDs = map[int]string{}
		c.toolNames = map[int]string{}
	}
	if !gjson.Valid(dataLine) {
		return nil, apperror.Codec("anthropic: invalid stream event JSON", fmt.Errorf("invalid json"))
	}
	root := gjson.Parse(dataLine)
	chunk := &ir.StreamChunk{}

	switch root.Get("type").String() {
	case "message_start":
		chunk.ID = root.Get("message.id").String()
		chunk.Model = root.Get("message.model").String()
		chunk.DeltaRole = ir.RoleAssistant
		chunk.HasDeltaRole = true
		return chunk, nil

	case "content_block_start":
		idx := int(root.Get("index").Int())
		typ := root.Get("content_block.type").String()
		c.blockTypes[idx] = typ
		if typ == "tool_use" {
			c.toolIDs[idx] = root.Get("content_block.id").String()
			c.toolNames[idx] = root.Get("content_block.name").String()
			chunk.DeltaToolCalls = []ir.ToolCallDelta{{
				Index: idx,
				ID:    c.toolIDs[idx],
				Name:  c.toolNames[idx],
			}}
		}
		return chunk, nil

	case "content_block_delta":
		idx := int(root.Get("index").Int())
		delta := root.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			chunk.DeltaContent = delta.Get("text").String()
		case "input_json_delta":
			chunk.DeltaToolCalls = []ir.ToolCallDelta{{
				Index:     idx,
				Arguments: delta.Get("partial_json").String(),
			}}
		}
		return chunk, nil

	case "content_block_stop":
		return chunk, nil

	case "message_delta":
		if fr, ok := ir.MapClaudeFinishReason(root.Get("delta.stop_reason").String()); ok {
			chunk.FinishReason = fr
			chunk.HasFinish = true
		}
		if u := root.Get("usage"); u.Exists() {
			out := int(u.Get("output_tokens").Int())
			chunk.Usage = &ir.Usage{CompletionTokens: out}
		}
		return chunk, nil

	case "message_stop":
		return chunk, nil

	case "ping":
		return chunk, nil

	default:
		return chunk, nil
	}
}

// IsStreamDone implements codec.Decoder. Anthropic signals stream end via
// the message_stop event rather than a sentinel string, so this inspects
// the event's own type field.
func (c *Codec) IsStreamDone(dataLine string) bool {
	return gjson.Get(dataLine, "type").String() == "message_stop"
}
