package gemini

import (
	"encoding/json"

	"github.com/llm-gateway/gateway/internal/apperror"
	"github.com/llm-gateway/gateway/internal/ir"
)

// EncodeRequest implements codec.Encoder. model is unused — Gemini addresses
// the model via the URL path (see codec.GeminiPath), never the request body.
func (c *Codec) EncodeRequest(req *ir.ChatRequest, model string) ([]byte, error) {
	body := map[string]interface{}{
		"contents": encodeContents(req.Messages),
	}
	if req.System != "" {
		body["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{{"text": req.System}},
		}
	}

	genConfig := map[string]interface{}{}
	if req.Temperature != nil {
		genConfig["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		genConfig["topP"] = *req.TopP
	}
	if req.MaxTokens != nil {
		genConfig["maxOutputTokens"] = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		genConfig["stopSequences"] = req.Stop
	}
	if len(genConfig) > 0 {
		body["generationConfig"] = genConfig
	}

	if len(req.Tools) > 0 {
		var decls []map[string]interface{}
		for _, t := range req.Tools {
			schema := t.Parameters
			if schema == nil {
				schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
			}
			decls = append(decls, map[string]interface{}{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  ir.CleanJSONSchemaForGemini(schema),
			})
		}
		body["tools"] = []map[string]interface{}{{"functionDeclarations": decls}}
	}
	if req.ToolChoice != nil {
		body["toolConfig"] = encodeToolConfig(req.ToolChoice)
	}

	out, err := json.Marshal(body)
	if err != nil {
		return nil, apperror.Codec("gemini: encode request", err)
	}
	return out, nil
}

func encodeToolConfig(tc *ir.ToolChoice) map[string]interface{} {
	cfg := map[string]interface{}{}
	switch tc.Mode {
	case ir.ToolChoiceNone:
		cfg["mode"] = "NONE"
	case ir.ToolChoiceAny:
		cfg["mode"] = "ANY"
	case ir.ToolChoiceTool:
		cfg["mode"] = "ANY"
		cfg["allowedFunctionNames"] = []string{tc.Name}
	default:
		cfg["mode"] = "AUTO"
	}
	return map[string]interface{}{"functionCallingConfig": cfg}
}

// encodeContents merges consecutive IR tool-result messages into a single
// "function" turn, since Gemini has no standalone tool role the way OpenAI
// does — each functionResponse becomes its own part within one content turn.
func encodeContents(msgs []ir.Message) []map[string]interface{} {
	var out []map[string]interface{}
	i := 0
	for i < len(msgs) {
		m := msgs[i]
		if m.Role == ir.RoleTool {
			var parts []map[string]interface{}
			for i < len(msgs) && msgs[i].Role == ir.RoleTool {
				var respObj map[string]interface{}
				if err := json.Unmarshal([]byte(msgs[i].Content.ToText()), &respObj); err != nil || respObj == nil {
					respObj = map[string]interface{}{"result": msgs[i].Content.ToText()}
				}
				parts = append(parts, map[string]interface{}{
					"functionResponse": map[string]interface{}{
						"name":     msgs[i].Name,
						"response": respObj,
					},
				})
				i++
			}
			out = append(out, map[string]interface{}{"role": "function", "parts": parts})
			continue
		}

		var parts []map[string]interface{}
		if !m.Content.IsEmpty() {
			parts = append(parts, encodeParts(m.Content)...)
		}
		for _, tc := range m.ToolCalls {
			var args map[string]interface{}
			_ = json.Unmarshal([]byte(tc.Arguments), &args)
			parts = append(parts, map[string]interface{}{
				"functionCall": map[string]interface{}{"name": tc.Name, "args": args},
			})
		}
		out = append(out, map[string]interface{}{"role": geminiRole(m.Role), "parts": parts})
		i++
	}
	return out
}

func geminiRole(r ir.Role) string {
	if r == ir.RoleAssistant {
		return "model"
	}
	return "user"
}

func encodeParts(c ir.Content) []map[string]interface{} {
	if !c.IsParts() {
		return []map[string]interface{}{{"text": c.Text}}
	}
	var out []map[string]interface{}
	for _, p := range c.Parts {
		switch p.Type {
		case ir.ContentPartText:
			out = append(out, map[string]interface{}{"text": p.Text})
		case ir.ContentPartImage:
			out = append(out, map[string]interface{}{
				"inlineData": map[string]interface{}{"mimeType": p.Image.MimeType, "data": p.Image.Data},
			})
		}
	}
	return out
}

// EncodeResponse implements codec.Encoder.
func (c *Codec) EncodeResponse(resp *ir.ChatResponse) ([]byte, error) {
	parts := encodeParts(resp.Message.Content)
	for _, tc := range resp.Message.ToolCalls {
		var args map[string]interface{}
		_ = json.Unmarshal([]byte(tc.Arguments), &args)
		parts = append(parts, map[string]interface{}{
			"functionCall": map[string]interface{}{"name": tc.Name, "args": args},
		})
	}

	candidate := map[string]interface{}{
		"content":      map[string]interface{}{"role": "model", "parts": parts},
		"finishReason": ir.MapFinishReasonToGemini(resp.FinishReason),
		"index":        0,
	}

	body := map[string]interface{}{
		"candidates":   []interface{}{candidate},
		"modelVersion": resp.Model,
		"responseId":   resp.ID,
	}
	if resp.Usage != nil {
		body["usageMetadata"] = encodeUsageMetadata(resp.Usage)
	}

	out, err := json.Marshal(body)
	if err != nil {
		return nil, apperror.Codec("gemini: encode response", err)
	}
	return out, nil
}

func encodeUsageMetadata(u *ir.Usage) map[string]interface{} {
	total := u.TotalTokens
	if !u.HasTotalTokens {
		total = u.PromptTokens + u.CompletionTokens
	}
	return map[string]interface{}{
		"promptTokenCount":     u.PromptTokens,
		"candidatesTokenCount": u.CompletionTokens,
		"totalTokenCount":      total,
	}
}

// EncodeStreamChunk implements codec.Encoder. Gemini stream objects mirror
// the non-stream response shape, framed as "data: " lines by the SSE
// transducer without named events or a terminal sentinel.
func (c *Codec) EncodeStreamChunk(chunk *ir.StreamChunk) (string, error) {
	var parts []map[string]interface{}
	if chunk.DeltaContent != "" {
		parts = append(parts, map[string]interface{}{"text": chunk.DeltaContent})
	}
	for _, d := range chunk.DeltaToolCalls {
		var args map[string]interface{}
		if d.Arguments != "" {
			_ = json.Unmarshal([]byte(d.Arguments), &args)
		}
		parts = append(parts, map[string]interface{}{
			"functionCall": map[string]interface{}{"name": d.Name, "args": args},
		})
	}

	candidate := map[string]interface{}{
		"content": map[string]interface{}{"role": "model", "parts": parts},
		"index":   0,
	}
	if chunk.HasFinish {
		candidate["finishReason"] = ir.MapFinishReasonToGemini(chunk.FinishReason)
	}

	body := map[string]interface{}{
		"candidates":   []interface{}{candidate},
		"modelVersion": chunk.Model,
		"responseId":   chunk.ID,
	}
	if chunk.Usage != nil {
		body["usageMetadata"] = encodeUsageMetadata(chunk.Usage)
	}

	out, err := json.Marshal(body)
	if err != nil {
		return "", apperror.Codec("gemini: encode stream chunk", err)
	}
	return "data: " + string(out), nil
}

// StreamDoneSignal implements codec.Encoder. Gemini has no terminal
// sentinel payload; the stream simply ends when the upstream body closes.
func (c *Codec) StreamDoneSignal() string {
	return ""
}
