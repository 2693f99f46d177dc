package anthropic

import (
	"encoding/json"

	"github.com/llm-gateway/gateway/internal/apperror"
	"github.com/llm-gateway/gateway/internal/ir"
)

// EncodeRequest implements codec.Encoder.
func (c *Codec) EncodeRequest(req *ir.ChatRequest, model string) ([]byte, error) {
	body := map[string]interface{}{
		"model":  model,
		"stream": req.Stream,
	}
	maxTokens := 4096
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	body["max_tokens"] = maxTokens

	if req.System != "" {
		body["system"] = req.System
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		body["stop_sequences"] = req.Stop
	}
	if len(req.Tools) > 0 {
		body["tools"] = encodeTools(req.Tools)
	}
	if req.ToolChoice != nil {
		body["tool_choice"] = encodeToolChoice(req.ToolChoice)
	}

	body["messages"] = encodeMessages(req.Messages)

	out, err := json.Marshal(body)
	if err != nil {
		return nil, apperror.Codec("anthropic: encode request", err)
	}
	return out, nil
}

// encodeMessages merges consecutive IR tool-result messages into the
// tool_result content blocks of a single "user" turn, since Anthropic has no
// standalone tool-role message the way OpenAI does.
func encodeMessages(msgs []ir.Message) []map[string]interface{} {
	var out []map[string]interface{}
	i := 0
	for i < len(msgs) {
		m := msgs[i]
		if m.Role == ir.RoleTool {
			var blocks []map[string]interface{}
			for i < len(msgs) && msgs[i].Role == ir.RoleTool {
				blocks = append(blocks, map[string]interface{}{
					"type":        "tool_result",
					"tool_use_id": msgs[i].ToolCallID,
					"content":     msgs[i].Content.ToText(),
				})
				i++
			}
			out = append(out, map[string]interface{}{"role": "user", "content": blocks})
			continue
		}

		entry := map[string]interface{}{"role": anthropicRole(m.Role)}
		var blocks []map[string]interface{}
		if !m.Content.IsEmpty() {
			blocks = append(blocks, encodeContentBlocks(m.Content)...)
		}
		for _, tc := range m.ToolCalls {
			var input json.RawMessage = json.RawMessage(tc.Arguments)
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			blocks = append(blocks, map[string]interface{}{
				"type":  "tool_use",
				"id":    tc.ID,
				"name":  tc.Name,
				"input": input,
			})
		}
		entry["content"] = blocks
		out = append(out, entry)
		i++
	}
	return out
}

func anthropicRole(r ir.Role) string {
	if r == ir.RoleAssistant {
		return "assistant"
	}
	return "user"
}

func encodeContentBlocks(c ir.Content) []map[string]interface{} {
	if !c.IsParts() {
		return []map[string]interface{}{{"type": "text", "text": c.Text}}
	}
	var out []map[string]interface{}
	for _, p := range c.Parts {
		switch p.Type {
		case ir.ContentPartText:
			out = append(out, map[string]interface{}{"type": "text", "text": p.Text})
		case ir.ContentPartImage:
			src := map[string]interface{}{"type": "base64", "media_type": p.Image.MimeType, "data": p.Image.Data}
			out = append(out, map[string]interface{}{"type": "image", "source": src})
		}
	}
	return out
}

func encodeTools(tools []ir.Tool) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		schema := t.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		out = append(out, map[string]interface{}{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": ir.CleanJSONSchemaForGemini(schema),
		})
	}
	return out
}

func encodeToolChoice(tc *ir.ToolChoice) map[string]interface{} {
	switch tc.Mode {
	case ir.ToolChoiceNone:
		return map[string]interface{}{"type": "none"}
	case ir.ToolChoiceAny:
		return map[string]interface{}{"type": "any"}
	case ir.ToolChoiceTool:
		return map[string]interface{}{"type": "tool", "name": tc.Name}
	default:
		return map[string]interface{}{"type": "auto"}
	}
}

// EncodeResponse implements codec.Encoder.
func (c *Codec) EncodeResponse(resp *ir.ChatResponse) ([]byte, error) {
	blocks := encodeContentBlocks(resp.Message.Content)
	for _, tc := range resp.Message.ToolCalls {
		var input json.RawMessage = json.RawMessage(tc.Arguments)
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, map[string]interface{}{
			"type":  "tool_use",
			"id":    tc.ID,
			"name":  tc.Name,
			"input": input,
		})
	}

	body := map[string]interface{}{
		"id":          resp.ID,
		"type":        "message",
		"role":        "assistant",
		"model":       resp.Model,
		"content":     blocks,
		"stop_reason": ir.MapFinishReasonToClaude(resp.FinishReason),
	}
	if resp.Usage != nil {
		body["usage"] = map[string]interface{}{
			"input_tokens":  resp.Usage.PromptTokens,
			"output_tokens": resp.Usage.CompletionTokens,
		}
	}

	out, err := json.Marshal(body)
	if err != nil {
		return nil, apperror.Codec("anthropic: encode response", err)
	}
	return out, nil
}

// encodeStreamState accumulates the content-block bookkeeping the Anthropic
// SSE format requires: a content_block_start must precede each block's
// deltas, and the block index sequencing differs for text vs tool_use runs.
type encodeStreamState struct {
	started      bool
	textIndex    int
	textStarted  bool
	nextIndex    int
	toolIndex    map[int]int // IR ToolCallDelta.Index -> Anthropic block index
	toolsStarted map[int]bool
	messageID    string
	model        string
}

func newEncodeStreamState() *encodeStreamState {
	return &encodeStreamState{toolIndex: map[int]int{}, toolsStarted: map[int]bool{}}
}

// EncodeStreamChunk implements codec.Encoder. It emits zero or more
// "event: <type>\ndata: <payload>" blocks per IR chunk, joined by blank
// lines, since one IR
// StreamChunk can require multiple Anthropic events (e.g. a role-chunk
// triggers message_start, then the first content delta triggers
// content_block_start before content_block_delta).
func (c *Codec) EncodeStreamChunk(chunk *ir.StreamChunk) (string, error) {
	if c.enc == nil {
		c.enc = newEncodeStreamState()
	}
	s := c.enc
	var events []map[string]interface{}

	if !s.started {
		s.started = true
		s.messageID = chunk.ID
		s.model = chunk.Model
		events = append(events, map[string]interface{}{
			"type": "message_start",
			"message": map[string]interface{}{
				"id":      chunk.ID,
				"type":    "message",
				"role":    "assistant",
				"model":   chunk.Model,
				"content": []interface{}{},
				"usage":   map[string]interface{}{"input_tokens": 0, "output_tokens": 0},
			},
		})
	}

	if chunk.DeltaContent != "" {
		if !s.textStarted {
			s.textStarted = true
			s.textIndex = s.nextIndex
			s.nextIndex++
			events = append(events, map[string]interface{}{
				"type":  "content_block_start",
				"index": s.textIndex,
				"content_block": map[string]interface{}{
					"type": "text",
					"text": "",
				},
			})
		}
		events = append(events, map[string]interface{}{
			"type":  "content_block_delta",
			"index": s.textIndex,
			"delta": map[string]interface{}{"type": "text_delta", "text": chunk.DeltaContent},
		})
	}

	for _, d := range chunk.DeltaToolCalls {
		idx, started := s.toolIndex[d.Index]
		if !started {
			idx = s.nextIndex
			s.nextIndex++
			s.toolIndex[d.Index] = idx
			events = append(events, map[string]interface{}{
				"type":  "content_block_start",
				"index": idx,
				"content_block": map[string]interface{}{
					"type":  "tool_use",
					"id":    d.ID,
					"name":  d.Name,
					"input": map[string]interface{}{},
				},
			})
			s.toolsStarted[d.Index] = true
		}
		if d.Arguments != "" {
			events = append(events, map[string]interface{}{
				"type":  "content_block_delta",
				"index": idx,
				"delta": map[string]interface{}{"type": "input_json_delta", "partial_json": d.Arguments},
			})
		}
	}

	if chunk.HasFinish {
		if s.textStarted {
			events = append(events, map[string]interface{}{"type": "content_block_stop", "index": s.textIndex})
		}
		for _, idx := range s.toolIndex {
			events = append(events, map[string]interface{}{"type": "content_block_stop", "index": idx})
		}

		delta := map[string]interface{}{"stop_reason": ir.MapFinishReasonToClaude(chunk.FinishReason)}
		messageDelta := map[string]interface{}{"type": "message_delta", "delta": delta}
		if chunk.Usage != nil {
			messageDelta["usage"] = map[string]interface{}{"output_tokens": chunk.Usage.CompletionTokens}
		} else {
			messageDelta["usage"] = map[string]interface{}{"output_tokens": 0}
		}
		events = append(events, messageDelta)
		events = append(events, map[string]interface{}{"type": "message_stop"})
	}

	return joinSSEEvents(events)
}

func joinSSEEvents(events []map[string]interface{}) (string, error) {
	var sb []byte
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return "", apperror.Codec("anthropic: encode stream event", err)
		}
		if i > 0 {
			sb = append(sb, '\n', '\n')
		}
		sb = append(sb, []byte("event: "+ev["type"].(string)+"\ndata: ")...)
		sb = append(sb, data...)
	}
	return string(sb), nil
}

// StreamDoneSignal implements codec.Encoder. Anthropic streams end with the
// message_stop event itself (already emitted in EncodeStreamChunk on
// finish), so no additional terminal payload is needed.
func (c *Codec) StreamDoneSignal() string {
	return ""
}
