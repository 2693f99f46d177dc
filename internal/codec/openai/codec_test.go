package openai

import (
	"strings"
	"testing"

	"github.com/llm-gateway/gateway/internal/ir"
)

func TestDecodeRequestRoundTrip(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4",
		"messages": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "hello"}
		],
		"temperature": 0.5,
		"stream": true
	}`)

	req, err := (Codec{}).DecodeRequest(body)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.System != "be terse" {
		t.Fatalf("expected system prompt extracted, got %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content.ToText() != "hello" {
		t.Fatalf("expected one user message, got %+v", req.Messages)
	}
	if req.Temperature == nil || *req.Temperature != 0.5 {
		t.Fatalf("expected temperature 0.5, got %v", req.Temperature)
	}
	if !req.Stream {
		t.Fatal("expected stream=true")
	}

	out, err := (Codec{}).EncodeRequest(req, "gpt-4o")
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if !strings.Contains(string(out), `"model":"gpt-4o"`) {
		t.Fatalf("expected upstream model override in encoded body, got %s", out)
	}
	if !strings.Contains(string(out), `"be terse"`) {
		t.Fatalf("expected system content preserved, got %s", out)
	}
}

func TestDecodeRequestToolCallAssistantMessage(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4",
		"messages": [
			{"role": "user", "content": "what's the weather"},
			{"role": "assistant", "content": null, "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"nyc\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_1", "content": "72F"}
		]
	}`)

	req, err := (Codec{}).DecodeRequest(body)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(req.Messages))
	}
	asst := req.Messages[1]
	if len(asst.ToolCalls) != 1 || asst.ToolCalls[0].Name != "get_weather" {
		t.Fatalf("expected decoded tool call, got %+v", asst.ToolCalls)
	}
	toolMsg := req.Messages[2]
	if toolMsg.ToolCallID != "call_1" || toolMsg.Content.ToText() != "72F" {
		t.Fatalf("expected tool result message, got %+v", toolMsg)
	}
}

func TestDecodeResponseAndEncodeResponseRoundTrip(t *testing.T) {
	body := []byte(`{
		"id": "resp1", "object": "chat.completion", "model": "gpt-4",
		"choices": [{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
	}`)

	resp, err := (Codec{}).DecodeResponse(body)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.Message.Content.ToText() != "hi there" {
		t.Fatalf("expected decoded message content, got %q", resp.Message.Content.ToText())
	}
	if resp.FinishReason != ir.FinishReasonStop {
		t.Fatalf("expected stop finish reason, got %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.PromptTokens != 3 || resp.Usage.CompletionTokens != 2 {
		t.Fatalf("expected usage decoded, got %+v", resp.Usage)
	}

	out, err := (Codec{}).EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if !strings.Contains(string(out), `"hi there"`) {
		t.Fatalf("expected content in encoded response, got %s", out)
	}
	if !strings.Contains(string(out), `"finish_reason":"stop"`) {
		t.Fatalf("expected finish_reason preserved, got %s", out)
	}
}

func TestDecodeStreamChunkAndIsStreamDone(t *testing.T) {
	c := Codec{}
	if !c.IsStreamDone("[DONE]") {
		t.Fatal("expected [DONE] to be recognized as stream end")
	}
	if c.IsStreamDone(`{"id":"x"}`) {
		t.Fatal("did not expect a normal chunk to be treated as done")
	}

	chunk, err := c.DecodeStreamChunk(`{"id":"c1","model":"gpt-4","choices":[{"index":0,"delta":{"content":"hi"},"finish_reason":null}]}`)
	if err != nil {
		t.Fatalf("DecodeStreamChunk: %v", err)
	}
	if chunk.DeltaContent != "hi" {
		t.Fatalf("expected delta content, got %q", chunk.DeltaContent)
	}
	if chunk.HasFinish {
		t.Fatal("did not expect finish reason on a null finish_reason chunk")
	}

	encoded, err := c.EncodeStreamChunk(chunk)
	if err != nil {
		t.Fatalf("EncodeStreamChunk: %v", err)
	}
	if !strings.HasPrefix(encoded, "data: ") {
		t.Fatalf("expected data: prefix, got %q", encoded)
	}
	if !strings.Contains(encoded, `"hi"`) {
		t.Fatalf("expected content round-tripped, got %q", encoded)
	}

	if c.StreamDoneSignal() != "data: [DONE]" {
		t.Fatalf("expected OpenAI done signal, got %q", c.StreamDoneSignal())
	}
}
