package anthropic

import (
	"strings"
	"testing"

	"github.com/llm-gateway/gateway/internal/ir"
)

func TestDecodeRequestSplitsToolResultIntoToolMessage(t *testing.T) {
	body := []byte(`{
		"model": "claude-3-5-sonnet",
		"max_tokens": 1024,
		"system": "be terse",
		"messages": [
			{"role": "user", "content": "what's the weather"},
			{"role": "assistant", "content": [{"type":"tool_use","id":"t1","name":"get_weather","input":{"city":"nyc"}}]},
			{"role": "user", "content": [{"type":"tool_result","tool_use_id":"t1","content":"72F"}]}
		]
	}`)

	req, err := (&Codec{}).DecodeRequest(body)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.System != "be terse" {
		t.Fatalf("expected system extracted, got %q", req.System)
	}
	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 IR messages (user, assistant-tool-call, tool-result), got %d: %+v", len(req.Messages), req.Messages)
	}
	if req.Messages[1].Role != ir.RoleAssistant || len(req.Messages[1].ToolCalls) != 1 {
		t.Fatalf("expected assistant tool call message, got %+v", req.Messages[1])
	}
	if req.Messages[2].Role != ir.RoleTool || req.Messages[2].ToolCallID != "t1" || req.Messages[2].Content.ToText() != "72F" {
		t.Fatalf("expected standalone tool-result message, got %+v", req.Messages[2])
	}
}

func TestEncodeRequestMergesToolResultsBackIntoUserTurn(t *testing.T) {
	req := &ir.ChatRequest{
		Messages: []ir.Message{
			{Role: ir.RoleTool, ToolCallID: "t1", Content: ir.NewTextContent("72F")},
		},
	}
	out, err := (&Codec{}).EncodeRequest(req, "claude-3-5-sonnet")
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if !strings.Contains(string(out), `"tool_result"`) || !strings.Contains(string(out), `"tool_use_id":"t1"`) {
		t.Fatalf("expected tool_result block in encoded request, got %s", out)
	}
	if !strings.Contains(string(out), `"max_tokens":4096`) {
		t.Fatalf("expected default max_tokens fallback, got %s", out)
	}
}

func TestDecodeResponseToolUse(t *testing.T) {
	body := []byte(`{
		"id": "msg1", "model": "claude-3-5-sonnet",
		"content": [
			{"type":"text","text":"let me check"},
			{"type":"tool_use","id":"t1","name":"get_weather","input":{"city":"nyc"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`)

	resp, err := (&Codec{}).DecodeResponse(body)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Name != "get_weather" {
		t.Fatalf("expected decoded tool call, got %+v", resp.Message.ToolCalls)
	}
	if resp.FinishReason != ir.FinishReasonToolCalls {
		t.Fatalf("expected tool_calls finish reason override, got %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Fatalf("expected summed usage, got %+v", resp.Usage)
	}
}

func TestStreamChunkLifecycleEmitsNamedSSEEvents(t *testing.T) {
	c := &Codec{}

	start, err := c.EncodeStreamChunk(&ir.StreamChunk{ID: "msg1", Model: "claude-3-5-sonnet"})
	if err != nil {
		t.Fatalf("EncodeStreamChunk (start): %v", err)
	}
	if !strings.Contains(start, "event: message_start") {
		t.Fatalf("expected message_start event on first chunk, got %q", start)
	}

	textEvt, err := c.EncodeStreamChunk(&ir.StreamChunk{DeltaContent: "hi"})
	if err != nil {
		t.Fatalf("EncodeStreamChunk (text): %v", err)
	}
	if !strings.Contains(textEvt, "event: content_block_start") || !strings.Contains(textEvt, "event: content_block_delta") {
		t.Fatalf("expected content_block_start + delta events, got %q", textEvt)
	}

	final, err := c.EncodeStreamChunk(&ir.StreamChunk{HasFinish: true, FinishReason: ir.FinishReasonStop})
	if err != nil {
		t.Fatalf("EncodeStreamChunk (final): %v", err)
	}
	if !strings.Contains(final, "event: message_stop") {
		t.Fatalf("expected message_stop as the terminal event, got %q", final)
	}
	if c.StreamDoneSignal() != "" {
		t.Fatalf("expected no separate done signal, since message_stop already terminates the stream")
	}
}

func TestIsStreamDoneDispatchesOnEventType(t *testing.T) {
	c := &Codec{}
	if !c.IsStreamDone(`{"type":"message_stop"}`) {
		t.Fatal("expected message_stop to be recognized as stream end")
	}
	if c.IsStreamDone(`{"type":"content_block_delta"}`) {
		t.Fatal("did not expect a delta event to be treated as stream end")
	}
}
