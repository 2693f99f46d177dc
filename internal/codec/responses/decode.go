// Package responses implements the bidirectional OpenAI Responses API codec
// (POST /v1/responses). Grounded on the teacher's
// internal/translator_new/from_ir/openai.go Responses-API functions
// (convertToResponsesAPIRequest, ToResponsesAPIResponse, ResponsesStreamState
// and ToResponsesAPIChunk), simplified to the fields this repository's IR
// carries and adjusted so the terminal stream event is response.completed
// rather than the teacher's response.done.
package responses

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
	codec.Register(codec.FormatOpenAIResponses,
		func() codec.Decoder { return Codec{} },
		func() codec.Encoder { return &Codec{} },
	)
}

// Codec implements codec.Decoder and codec.Encoder for the Responses API.
// Decoding is stateless (one request/response body in, one IR value out);
// encoding a stream is stateful, tracked in the stream-specific fields below.
type Codec struct {
	enc *encodeStreamState
}

type wireContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wireInputItem struct {
	Type      string            `json:"type"`
	Role      string            `json:"role,omitempty"`
	Content   []wireContentPart `json:"content,omitempty"`
	CallID    string            `json:"call_id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Arguments string            `json:"arguments,omitempty"`
	Output    string            `json:"output,omitempty"`
}

type wireFunctionTool struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type wireRequest struct {
	Model            string             `json:"model"`
	Instructions     string             `json:"instructions,omitempty"`
	Input            []wireInputItem    `json:"input,omitempty"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	MaxOutputTokens  *int               `json:"max_output_tokens,omitempty"`
	Stream           bool               `json:"stream,omitempty"`
	Tools            []wireFunctionTool `json:"tools,omitempty"`
	ToolChoice       json.RawMessage    `json:"tool_choice,omitempty"`
}

// DecodeRequest implements codec.Decoder.
func (Codec) DecodeRequest(body []byte) (*ir.ChatRequest, error) {
	var w wireRequest
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, apperror.Codec("responses: decode request", err)
	}

	req := &ir.ChatRequest{
		Model:       w.Model,
		System:      w.Instructions,
		Temperature: w.Temperature,
		TopP:        w.TopP,
		MaxTokens:   w.MaxOutputTokens,
		Stream:      w.Stream,
	}

	callIDToName := map[string]string{}
	for _, t := range w.Tools {
		req.Tools = append(req.Tools, ir.Tool{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}

	for _, item := range w.Input {
		switch item.Type {
		case "message":
			role := ir.MapStandardRole(item.Role)
			text := joinTextParts(item.Content)
			req.Messages = append(req.Messages, ir.Message{Role: role, Content: ir.NewTextContent(text)})
		case "function_call":
			callIDToName[item.CallID] = item.Name
			req.Messages = append(req.Messages, ir.Message{
				Role: ir.RoleAssistant,
				ToolCalls: []ir.ToolCall{{
					ID:        item.CallID,
					Name:      item.Name,
					Arguments: item.Arguments,
				}},
			})
		case "function_call_output":
			req.Messages = append(req.Messages, ir.Message{
				Role:       ir.RoleTool,
				ToolCallID: item.CallID,
				Name:       callIDToName[item.CallID],
				Content:    ir.NewTextContent(item.Output),
			})
		}
	}

	if len(w.ToolChoice) > 0 {
		req.ToolChoice = decodeToolChoice(w.ToolChoice)
	}

	return req, nil
}

func joinTextParts(parts []wireContentPart) string {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func decodeToolChoice(raw json.RawMessage) *ir.ToolChoice {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		_ = json.Unmarshal(raw, &s)
		switch s {
		case "none":
			return &ir.ToolChoice{Mode: ir.ToolChoiceNone}
		case "required":
			return &ir.ToolChoice{Mode: ir.ToolChoiceAny}
		default:
			return &ir.ToolChoice{Mode: ir.ToolChoiceAuto}
		}
	}
	if name := gjson.GetBytes(raw, "name").String(); name != "" {
		return &ir.ToolChoice{Mode: ir.ToolChoiceTool, Name: name}
	}
	return &ir.ToolChoice{Mode: ir.ToolChoiceAuto}
}

// DecodeResponse implements codec.Decoder, for the (rare) case a Responses-
// format channel is queried non-streaming and its reply must be folded back
// into the IR.
func (Codec) DecodeResponse(body []byte) (*ir.ChatResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, apperror.Codec("responses: invalid response JSON", fmt.Errorf("invalid json"))
	}
	root := gjson.ParseBytes(body)

	var textBuf strings.Builder
	var toolCalls []ir.ToolCall
	for _, item := range root.Get("output").Array() {
		switch item.Get("type").String() {
		case "message":
			for _, c := range item.Get("content").Array() {
				if c.Get("type").String() == "output_text" {
					textBuf.WriteString(c.Get("text").String())
				}
			}
		case "function_call":
			toolCalls = append(toolCalls, ir.ToolCall{
				ID:        item.Get("call_id").String(),
				Name:      item.Get("name").String(),
				Arguments: item.Get("arguments").String(),
			})
		}
	}

	resp := &ir.ChatResponse{
		ID:    root.Get("id").String(),
		Model: root.Get("model").String(),
		Message: ir.Message{
			Role:      ir.RoleAssistant,
			Content:   ir.NewTextContent(textBuf.String()),
			ToolCalls: toolCalls,
		},
	}
	resp.FinishReason = ir.OverrideFinishReasonForToolCalls(ir.FinishReasonStop, len(toolCalls) > 0)
	resp.HasFinish = true

	if u := root.Get("usage"); u.Exists() {
		in := int(u.Get("input_tokens").Int())
		out := int(u.Get("output_tokens").Int())
		resp.Usage = &ir.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out, HasTotalTokens: true}
	}

	return resp, nil
}

// DecodeStreamChunk implements codec.Decoder, folding the named Responses
// event stream back into IR chunks for upstream-Responses transcoding.
func (Codec) DecodeStreamChunk(dataLine string) (*ir.StreamChunk, error) {
	if !gjson.Valid(dataLine) {
		return nil, apperror.Codec("responses: invalid stream event JSON", fmt.Errorf("invalid json"))
	}
	root := gjson.Parse(dataLine)
	chunk := &ir.StreamChunk{}

	switch root.Get("type").String() {
	case "response.created":
		chunk.ID = root.Get("response.id").String()
		chunk.DeltaRole = ir.RoleAssistant
		chunk.HasDeltaRole = true
	case "response.output_text.delta":
		chunk.DeltaContent = root.Get("delta").String()
	case "response.function_call_arguments.delta":
		chunk.DeltaToolCalls = []ir.ToolCallDelta{{
			Index:     int(root.Get("output_index").Int()),
			Arguments: root.Get("delta").String(),
		}}
	case "response.output_item.added":
		if root.Get("item.type").String() == "function_call" {
			chunk.DeltaToolCalls = []ir.ToolCallDelta{{
				Index: int(root.Get("output_index").Int()),
				ID:    root.Get("item.call_id").String(),
				Name:  root.Get("item.name").String(),
			}}
		}
	case "response.completed", "response.done":
		chunk.HasFinish = true
		chunk.FinishReason = ir.FinishReasonStop
		if u := root.Get("response.usage"); u.Exists() {
			in := int(u.Get("input_tokens").Int())
			out := int(u.Get("output_tokens").Int())
			chunk.Usage = &ir.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out, HasTotalTokens: true}
		}
	}

	return chunk, nil
}

// IsStreamDone implements codec.Decoder.
func (Codec) IsStreamDone(dataLine string) bool {
	t := gjson.Get(dataLine, "type").String()
	return t == "response.completed" || t == "response.done"
}
