package proxy

import (
	"io"
	"strings"
	"testing"
	"time"

	openaicodec "github.com/llm-gateway/gateway/internal/codec/openai"
)

func TestTransduceEmitsDoneSentinelWithoutExtraDataPrefix(t *testing.T) {
	upstream := io.NopCloser(strings.NewReader(
		"data: {\"id\":\"c1\",\"model\":\"gpt-4\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"},\"finish_reason\":null}]}\n\n" +
			"data: [DONE]\n\n",
	))
	logs := &fakeLogStore{}
	p := New(logs, nil, nil, nil)

	h := &StreamHandoff{
		UpstreamBody: upstream,
		Decoder:      openaicodec.Codec{},
		Encoder:      &openaicodec.Codec{},
		LogID:        "log1",
		StartedAt:    time.Now(),
	}

	var lines []string
	err := p.Transduce(h, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		t.Fatalf("Transduce: %v", err)
	}

	for _, line := range lines {
		if strings.Contains(line, "data: data: ") {
			t.Fatalf("expected no doubled data: prefix, got %q", line)
		}
	}
	last := lines[len(lines)-1]
	if strings.TrimSpace(last) != "data: [DONE]" {
		t.Fatalf("expected the bare OpenAI done sentinel, got %q", last)
	}
}

func TestTransduceEstimatesPromptTokensWhenUpstreamOmitsUsage(t *testing.T) {
	upstream := io.NopCloser(strings.NewReader(
		"data: {\"id\":\"c1\",\"model\":\"gpt-4\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"},\"finish_reason\":null}]}\n\n" +
			"data: [DONE]\n\n",
	))
	logs := &fakeLogStore{}
	p := New(logs, nil, nil, nil)

	h := &StreamHandoff{
		UpstreamBody: upstream,
		Decoder:      openaicodec.Codec{},
		Encoder:      &openaicodec.Codec{},
		LogID:        "log1",
		StartedAt:    time.Now(),
		PromptText:   "hello world, how are you today",
	}

	if err := p.Transduce(h, func(line string) error { return nil }); err != nil {
		t.Fatalf("Transduce: %v", err)
	}
	if logs.updatedPromptTokens <= 0 {
		t.Fatalf("expected estimated prompt tokens when upstream never reported usage, got %d", logs.updatedPromptTokens)
	}
	if logs.updatedCompletionTokens != 0 {
		t.Fatalf("expected completion tokens to stay 0 on the estimate fallback, got %d", logs.updatedCompletionTokens)
	}
}

func TestTransduceUsesUpstreamUsageWhenPresent(t *testing.T) {
	upstream := io.NopCloser(strings.NewReader(
		"data: {\"id\":\"c1\",\"model\":\"gpt-4\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":7,\"completion_tokens\":4,\"total_tokens\":11}}\n\n" +
			"data: [DONE]\n\n",
	))
	logs := &fakeLogStore{}
	p := New(logs, nil, nil, nil)

	h := &StreamHandoff{
		UpstreamBody: upstream,
		Decoder:      openaicodec.Codec{},
		Encoder:      &openaicodec.Codec{},
		LogID:        "log1",
		StartedAt:    time.Now(),
		PromptText:   "this text must not be used for the estimate",
	}

	if err := p.Transduce(h, func(line string) error { return nil }); err != nil {
		t.Fatalf("Transduce: %v", err)
	}
	if logs.updatedPromptTokens != 7 || logs.updatedCompletionTokens != 4 {
		t.Fatalf("expected upstream-reported usage to win over the estimate, got prompt=%d completion=%d", logs.updatedPromptTokens, logs.updatedCompletionTokens)
	}
}
