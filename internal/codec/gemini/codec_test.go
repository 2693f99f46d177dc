package gemini

import (
	"strings"
	"testing"

	"github.com/llm-gateway/gateway/internal/ir"
)

func TestDecodeRequestDoesNotReadModelFromBody(t *testing.T) {
	body := []byte(`{
		"systemInstruction": {"parts":[{"text":"be terse"}]},
		"contents": [{"role":"user","parts":[{"text":"hello"}]}]
	}`)

	req, err := (&Codec{}).DecodeRequest(body)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if req.Model != "" {
		t.Fatalf("expected no model decoded from the body, got %q", req.Model)
	}
	if req.System != "be terse" {
		t.Fatalf("expected system instruction decoded, got %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content.ToText() != "hello" {
		t.Fatalf("expected one user message, got %+v", req.Messages)
	}
}

func TestFunctionCallRoundTrip(t *testing.T) {
	req := &ir.ChatRequest{
		Messages: []ir.Message{
			{Role: ir.RoleAssistant, ToolCalls: []ir.ToolCall{{ID: "call_get_weather", Name: "get_weather", Arguments: `{"city":"nyc"}`}}},
			{Role: ir.RoleTool, Name: "get_weather", Content: ir.NewTextContent(`{"tempF":72}`)},
		},
	}
	out, err := (&Codec{}).EncodeRequest(req, "gemini-1.5-pro")
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if !strings.Contains(string(out), `"functionCall"`) || !strings.Contains(string(out), `"functionResponse"`) {
		t.Fatalf("expected functionCall and functionResponse parts, got %s", out)
	}
	if !strings.Contains(string(out), `"role":"function"`) {
		t.Fatalf("expected merged function-result turn, got %s", out)
	}

	decoded, err := (&Codec{}).DecodeRequest(out)
	if err != nil {
		t.Fatalf("DecodeRequest (round trip): %v", err)
	}
	if len(decoded.Messages) != 2 {
		t.Fatalf("expected assistant tool-call + standalone tool-result message, got %d: %+v", len(decoded.Messages), decoded.Messages)
	}
	if decoded.Messages[1].Role != ir.RoleTool || decoded.Messages[1].Name != "get_weather" {
		t.Fatalf("expected decoded functionResponse as tool message, got %+v", decoded.Messages[1])
	}
}

func TestDecodeResponseAndEncodeResponse(t *testing.T) {
	body := []byte(`{
		"candidates": [{"content":{"role":"model","parts":[{"text":"hi there"}]},"finishReason":"STOP","index":0}],
		"modelVersion": "gemini-1.5-pro", "responseId": "resp1",
		"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 2, "totalTokenCount": 5}
	}`)

	resp, err := (&Codec{}).DecodeResponse(body)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.Message.Content.ToText() != "hi there" {
		t.Fatalf("expected decoded content, got %q", resp.Message.Content.ToText())
	}
	if resp.FinishReason != ir.FinishReasonStop {
		t.Fatalf("expected stop finish reason, got %q", resp.FinishReason)
	}

	out, err := (&Codec{}).EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if !strings.Contains(string(out), `"hi there"`) {
		t.Fatalf("expected content preserved, got %s", out)
	}
}

func TestStreamDoneSignalIsEmptyAndChunkEncodesAsDataLine(t *testing.T) {
	c := &Codec{}
	if c.StreamDoneSignal() != "" {
		t.Fatal("expected no terminal sentinel, since Gemini streams end on upstream EOF")
	}
	encoded, err := c.EncodeStreamChunk(&ir.StreamChunk{DeltaContent: "hi", Model: "gemini-1.5-pro"})
	if err != nil {
		t.Fatalf("EncodeStreamChunk: %v", err)
	}
	if !strings.HasPrefix(encoded, "data: ") {
		t.Fatalf("expected data: prefix, got %q", encoded)
	}
}
