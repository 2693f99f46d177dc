package openai

import (
	"encoding/json"

	"github.com/llm-gateway/gateway/internal/apperror"
	"github.com/llm-gateway/gateway/internal/ir"
)

// EncodeRequest implements codec.Encoder. model overrides req.Model so the
// balancer's channel-specific upstream model name is used on the wire while
// the IR keeps the client-requested name.
func (Codec) EncodeRequest(req *ir.ChatRequest, model string) ([]byte, error) {
	body := map[string]interface{}{
		"model":  model,
		"stream": req.Stream,
	}

	var messages []map[string]interface{}
	if req.System != "" {
		messages = append(messages, map[string]interface{}{
			"role":    "system",
			"content": req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, encodeMessage(m))
	}
	body["messages"] = messages

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		body["max_tokens"] = *req.MaxTokens
	}
	if len(req.Stop) == 1 {
		body["stop"] = req.Stop[0]
	} else if len(req.Stop) > 1 {
		body["stop"] = req.Stop
	}
	if len(req.Tools) > 0 {
		body["tools"] = encodeTools(req.Tools)
	}
	if req.ToolChoice != nil {
		body["tool_choice"] = encodeToolChoice(req.ToolChoice)
	}
	if req.Stream {
		body["stream_options"] = map[string]interface{}{"include_usage": true}
	}

	out, err := json.Marshal(body)
	if err != nil {
		return nil, apperror.Codec("openai: encode request", err)
	}
	return out, nil
}

func encodeMessage(m ir.Message) map[string]interface{} {
	out := map[string]interface{}{"role": string(m.Role)}
	if m.Name != "" {
		out["name"] = m.Name
	}

	switch m.Role {
	case ir.RoleTool:
		out["tool_call_id"] = m.ToolCallID
		out["content"] = m.Content.ToText()
		return out
	case ir.RoleAssistant:
		if len(m.ToolCalls) > 0 {
			var calls []map[string]interface{}
			for _, tc := range m.ToolCalls {
				calls = append(calls, map[string]interface{}{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]interface{}{
						"name":      tc.Name,
						"arguments": tc.Arguments,
					},
				})
			}
			out["tool_calls"] = calls
			return out
		}
	}

	out["content"] = encodeContent(m.Content)
	return out
}

func encodeContent(c ir.Content) interface{} {
	if !c.IsParts() {
		return c.Text
	}
	var parts []map[string]interface{}
	for _, p := range c.Parts {
		switch p.Type {
		case ir.ContentPartText:
			parts = append(parts, map[string]interface{}{"type": "text", "text": p.Text})
		case ir.ContentPartImage:
			url := p.Image.URL
			if url == "" && p.Image.Data != "" {
				url = "data:" + p.Image.MimeType + ";base64," + p.Image.Data
			}
			parts = append(parts, map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]interface{}{"url": url},
			})
		}
	}
	return parts
}

func encodeTools(tools []ir.Tool) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	return out
}

func encodeToolChoice(tc *ir.ToolChoice) interface{} {
	switch tc.Mode {
	case ir.ToolChoiceNone:
		return "none"
	case ir.ToolChoiceAny:
		return "required"
	case ir.ToolChoiceTool:
		return map[string]interface{}{
			"type":     "function",
			"function": map[string]interface{}{"name": tc.Name},
		}
	default:
		return "auto"
	}
}

// EncodeResponse implements codec.Encoder.
func (Codec) EncodeResponse(resp *ir.ChatResponse) ([]byte, error) {
	message := encodeMessage(resp.Message)

	choice := map[string]interface{}{
		"index":         0,
		"message":       message,
		"finish_reason": ir.MapFinishReasonToOpenAI(resp.FinishReason),
	}

	body := map[string]interface{}{
		"id":      resp.ID,
		"object":  "chat.completion",
		"model":   resp.Model,
		"choices": []interface{}{choice},
	}
	if resp.Usage != nil {
		body["usage"] = encodeUsage(resp.Usage)
	}

	out, err := json.Marshal(body)
	if err != nil {
		return nil, apperror.Codec("openai: encode response", err)
	}
	return out, nil
}

func encodeUsage(u *ir.Usage) map[string]interface{} {
	total := u.TotalTokens
	if !u.HasTotalTokens {
		total = u.PromptTokens + u.CompletionTokens
	}
	return map[string]interface{}{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      total,
	}
}

// EncodeStreamChunk implements codec.Encoder. OpenAI Chat chunks are
// stateless on the wire, so Codec needs no accumulator fields.
func (Codec) EncodeStreamChunk(chunk *ir.StreamChunk) (string, error) {
	delta := map[string]interface{}{}
	if chunk.HasDeltaRole {
		delta["role"] = string(chunk.DeltaRole)
	}
	if chunk.DeltaContent != "" {
		delta["content"] = chunk.DeltaContent
	}
	if len(chunk.DeltaToolCalls) > 0 {
		var calls []map[string]interface{}
		for _, d := range chunk.DeltaToolCalls {
			call := map[string]interface{}{"index": d.Index}
			if d.ID != "" {
				call["id"] = d.ID
				call["type"] = "function"
			}
			fn := map[string]interface{}{}
			if d.Name != "" {
				fn["name"] = d.Name
			}
			if d.Arguments != "" {
				fn["arguments"] = d.Arguments
			}
			call["function"] = fn
			calls = append(calls, call)
		}
		delta["tool_calls"] = calls
	}

	choice := map[string]interface{}{
		"index": 0,
		"delta": delta,
	}
	if chunk.HasFinish {
		choice["finish_reason"] = ir.MapFinishReasonToOpenAI(chunk.FinishReason)
	} else {
		choice["finish_reason"] = nil
	}

	body := map[string]interface{}{
		"id":      chunk.ID,
		"object":  "chat.completion.chunk",
		"model":   chunk.Model,
		"choices": []interface{}{choice},
	}
	if chunk.Usage != nil {
		body["usage"] = encodeUsage(chunk.Usage)
	}

	out, err := json.Marshal(body)
	if err != nil {
		return "", apperror.Codec("openai: encode stream chunk", err)
	}
	return "data: " + string(out), nil
}

// StreamDoneSignal implements codec.Encoder.
func (Codec) StreamDoneSignal() string {
	return "data: [DONE]"
}
