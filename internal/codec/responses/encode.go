package responses

import (
	"encoding/json"
	"fmt"

	"github.com/llm-gateway/gateway/internal/apperror"
	"github.com/llm-gateway/gateway/internal/ir"
)

// EncodeRequest implements codec.Encoder.
func (Codec) EncodeRequest(req *ir.ChatRequest, model string) ([]byte, error) {
	body := map[string]interface{}{
		"model":  model,
		"stream": req.Stream,
	}
	if req.System != "" {
		body["instructions"] = req.System
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		body["max_output_tokens"] = *req.MaxTokens
	}

	var input []interface{}
	pendingCallNames := map[string]string{}
	for _, m := range req.Messages {
		switch m.Role {
		case ir.RoleTool:
			input = append(input, map[string]interface{}{
				"type":    "function_call_output",
				"call_id": m.ToolCallID,
				"output":  m.Content.ToText(),
			})
		case ir.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				for _, tc := range m.ToolCalls {
					pendingCallNames[tc.ID] = tc.Name
					input = append(input, map[string]interface{}{
						"type":      "function_call",
						"call_id":   tc.ID,
						"name":      tc.Name,
						"arguments": tc.Arguments,
					})
				}
				if !m.Content.IsEmpty() {
					input = append(input, encodeMessageItem(m))
				}
				continue
			}
			input = append(input, encodeMessageItem(m))
		default:
			input = append(input, encodeMessageItem(m))
		}
	}
	if len(input) > 0 {
		body["input"] = input
	}

	if len(req.Tools) > 0 {
		var tools []map[string]interface{}
		for _, t := range req.Tools {
			params := t.Parameters
			if params == nil {
				params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
			}
			tools = append(tools, map[string]interface{}{
				"type":        "function",
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			})
		}
		body["tools"] = tools
	}
	if req.ToolChoice != nil {
		body["tool_choice"] = encodeToolChoice(req.ToolChoice)
	}

	out, err := json.Marshal(body)
	if err != nil {
		return nil, apperror.Codec("responses: encode request", err)
	}
	return out, nil
}

func encodeMessageItem(m ir.Message) map[string]interface{} {
	partType := "input_text"
	if m.Role == ir.RoleAssistant {
		partType = "output_text"
	}
	return map[string]interface{}{
		"type": "message",
		"role": string(m.Role),
		"content": []map[string]interface{}{
			{"type": partType, "text": m.Content.ToText()},
		},
	}
}

func encodeToolChoice(tc *ir.ToolChoice) interface{} {
	switch tc.Mode {
	case ir.ToolChoiceNone:
		return "none"
	case ir.ToolChoiceAny:
		return "required"
	case ir.ToolChoiceTool:
		return map[string]interface{}{"type": "function", "name": tc.Name}
	default:
		return "auto"
	}
}

// EncodeResponse implements codec.Encoder.
func (Codec) EncodeResponse(resp *ir.ChatResponse) ([]byte, error) {
	var output []interface{}
	text := resp.Message.Content.ToText()
	if text != "" {
		output = append(output, map[string]interface{}{
			"id": fmt.Sprintf("msg_%s", resp.ID), "type": "message", "status": "completed", "role": "assistant",
			"content": []interface{}{map[string]interface{}{"type": "output_text", "text": text, "annotations": []interface{}{}}},
		})
	}
	for _, tc := range resp.Message.ToolCalls {
		output = append(output, map[string]interface{}{
			"id": fmt.Sprintf("fc_%s", tc.ID), "type": "function_call", "status": "completed",
			"call_id": tc.ID, "name": tc.Name, "arguments": tc.Arguments,
		})
	}

	body := map[string]interface{}{
		"id": resp.ID, "object": "response", "status": "completed", "model": resp.Model,
	}
	if len(output) > 0 {
		body["output"] = output
	}
	if text != "" {
		body["output_text"] = text
	}
	if resp.Usage != nil {
		body["usage"] = encodeUsage(resp.Usage)
	}

	out, err := json.Marshal(body)
	if err != nil {
		return nil, apperror.Codec("responses: encode response", err)
	}
	return out, nil
}

func encodeUsage(u *ir.Usage) map[string]interface{} {
	total := u.TotalTokens
	if !u.HasTotalTokens {
		total = u.PromptTokens + u.CompletionTokens
	}
	return map[string]interface{}{
		"input_tokens":  u.PromptTokens,
		"output_tokens": u.CompletionTokens,
		"total_tokens":  total,
	}
}

// encodeStreamState accumulates the Responses API's required event ordering
// across a stream: a response.created/in_progress pair must precede any
// output, each output item needs an added/done bracket, and the terminal
// response.completed event is held back until StreamDoneSignal — never
// emitted from EncodeStreamChunk, even on a chunk carrying finish_reason.
// Some clients (e.g. Codex) close the connection the moment they see
// response.completed, so it must not appear until after the request log has
// been persisted, which happens strictly after the stream finishes.
type encodeStreamState struct {
	started     bool
	responseID  string
	seq         int
	msgID       string
	msgStarted  bool
	textBuffer  string
	toolIDs     map[int]string
	toolNames   map[int]string
	toolArgs    map[int]string
	toolOrder   []int // indices in the order their output_item.added first fired
	finished    bool
	finishUsage *ir.Usage
}

func newEncodeStreamState() *encodeStreamState {
	return &encodeStreamState{
		toolIDs:   map[int]string{},
		toolNames: map[int]string{},
		toolArgs:  map[int]string{},
	}
}

func (s *encodeStreamState) nextSeq() int {
	s.seq++
	return s.seq
}

func sseEvent(eventType string, payload map[string]interface{}) string {
	b, _ := json.Marshal(payload)
	return fmt.Sprintf("event: %s\ndata: %s", eventType, string(b))
}

// EncodeStreamChunk implements codec.Encoder. c must back a single stream —
// construct a fresh Codec per request, never share one across streams.
func (c *Codec) EncodeStreamChunk(chunk *ir.StreamChunk) (string, error) {
	if c.enc == nil {
		c.enc = newEncodeStreamState()
	}
	s := c.enc
	var events []string

	if !s.started {
		s.started = true
		s.responseID = chunk.ID
		if s.responseID == "" {
			s.responseID = ir.GenerateUUID()
		}
		events = append(events, sseEvent("response.created", map[string]interface{}{
			"type": "response.created", "sequence_number": s.nextSeq(),
			"response": map[string]interface{}{"id": s.responseID, "object": "response", "status": "in_progress", "output": []interface{}{}},
		}))
		events = append(events, sseEvent("response.in_progress", map[string]interface{}{
			"type": "response.in_progress", "sequence_number": s.nextSeq(),
			"response": map[string]interface{}{"id": s.responseID, "object": "response", "status": "in_progress", "output": []interface{}{}},
		}))
	}

	if chunk.DeltaContent != "" {
		if !s.msgStarted {
			s.msgStarted = true
			s.msgID = fmt.Sprintf("msg_%s", s.responseID)
			events = append(events, sseEvent("response.output_item.added", map[string]interface{}{
				"type": "response.output_item.added", "sequence_number": s.nextSeq(), "output_index": 0,
				"item": map[string]interface{}{"id": s.msgID, "type": "message", "status": "in_progress", "role": "assistant", "content": []interface{}{}},
			}))
			events = append(events, sseEvent("response.content_part.added", map[string]interface{}{
				"type": "response.content_part.added", "sequence_number": s.nextSeq(), "item_id": s.msgID,
				"output_index": 0, "content_index": 0, "part": map[string]interface{}{"type": "output_text", "text": ""},
			}))
		}
		s.textBuffer += chunk.DeltaContent
		events = append(events, sseEvent("response.output_text.delta", map[string]interface{}{
			"type": "response.output_text.delta", "sequence_number": s.nextSeq(), "item_id": s.msgID,
			"output_index": 0, "content_index": 0, "delta": chunk.DeltaContent,
		}))
	}

	for _, d := range chunk.DeltaToolCalls {
		if _, ok := s.toolIDs[d.Index]; !ok {
			id := d.ID
			if id == "" {
				id = ir.GenToolCallID()
			}
			s.toolIDs[d.Index] = id
			s.toolNames[d.Index] = d.Name
			s.toolOrder = append(s.toolOrder, d.Index)
			events = append(events, sseEvent("response.output_item.added", map[string]interface{}{
				"type": "response.output_item.added", "sequence_number": s.nextSeq(), "output_index": d.Index + 1,
				"item": map[string]interface{}{
					"id": fmt.Sprintf("fc_%s", id), "type": "function_call", "status": "in_progress",
					"call_id": id, "name": d.Name, "arguments": "",
				},
			}))
		}
		if d.Arguments != "" {
			s.toolArgs[d.Index] += d.Arguments
			events = append(events, sseEvent("response.function_call_arguments.delta", map[string]interface{}{
				"type": "response.function_call_arguments.delta", "sequence_number": s.nextSeq(),
				"item_id": fmt.Sprintf("fc_%s", s.toolIDs[d.Index]), "output_index": d.Index + 1, "delta": d.Arguments,
			}))
		}
	}

	if chunk.HasFinish {
		// finish_reason and usage are captured but not emitted here — the
		// terminal sequence (output_text.done / content_part.done /
		// output_item.done×N / response.completed) is only produced by
		// StreamDoneSignal, after the caller has had a chance to log.
		s.finished = true
		s.finishUsage = chunk.Usage
	}

	return joinEvents(events), nil
}

func joinEvents(events []string) string {
	joined := ""
	for i, e := range events {
		if i > 0 {
			joined += "\n\n"
		}
		joined += e
	}
	return joined
}

// StreamDoneSignal implements codec.Encoder. It emits the deferred
// termination sequence — response.output_text.done, response.content_part.
// done, one response.output_item.done per output item, and finally
// response.completed — which must never appear from EncodeStreamChunk.
func (c *Codec) StreamDoneSignal() string {
	if c.enc == nil || !c.enc.started {
		return ""
	}
	s := c.enc
	var events []string

	if s.msgStarted {
		events = append(events, sseEvent("response.output_text.done", map[string]interface{}{
			"type": "response.output_text.done", "sequence_number": s.nextSeq(), "item_id": s.msgID,
			"output_index": 0, "content_index": 0, "text": s.textBuffer,
		}))
		events = append(events, sseEvent("response.content_part.done", map[string]interface{}{
			"type": "response.content_part.done", "sequence_number": s.nextSeq(), "item_id": s.msgID,
			"output_index": 0, "content_index": 0, "part": map[string]interface{}{"type": "output_text", "text": s.textBuffer},
		}))
		events = append(events, sseEvent("response.output_item.done", map[string]interface{}{
			"type": "response.output_item.done", "sequence_number": s.nextSeq(), "output_index": 0,
			"item": map[string]interface{}{
				"id": s.msgID, "type": "message", "status": "completed", "role": "assistant",
				"content": []interface{}{map[string]interface{}{"type": "output_text", "text": s.textBuffer}},
			},
		}))
	}

	for _, idx := range s.toolOrder {
		id := s.toolIDs[idx]
		args := s.toolArgs[idx]
		events = append(events, sseEvent("response.output_item.done", map[string]interface{}{
			"type": "response.output_item.done", "sequence_number": s.nextSeq(), "output_index": idx + 1,
			"item": map[string]interface{}{
				"id": fmt.Sprintf("fc_%s", id), "type": "function_call", "status": "completed",
				"call_id": id, "name": s.toolNames[idx], "arguments": args,
			},
		}))
	}

	usage := map[string]interface{}{}
	if s.finishUsage != nil {
		usage = encodeUsage(s.finishUsage)
	}
	events = append(events, sseEvent("response.completed", map[string]interface{}{
		"type": "response.completed", "sequence_number": s.nextSeq(),
		"response": map[string]interface{}{
			"id": s.responseID, "object": "response", "status": "completed", "usage": usage,
		},
	}))

	return joinEvents(events)
}
