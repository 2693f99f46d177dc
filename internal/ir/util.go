package ir

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID generates a UUID v4 string.
func GenerateUUID() string {
	return uuid.NewString()
}

// GenToolCallID generates a unique OpenAI-style tool call ID, e.g. "call_1a2b3c4d".
func GenToolCallID() string {
	return fmt.Sprintf("call_%s", strings.ReplaceAll(GenerateUUID()[:8], "-", ""))
}

// GenClaudeToolCallID generates a Claude-style tool call ID, e.g. "toolu_1a2b3c4d".
func GenClaudeToolCallID() string {
	return fmt.Sprintf("toolu_%s", strings.ReplaceAll(GenerateUUID()[:8], "-", ""))
}

// MapClaudeFinishReason converts Claude's stop_reason to a FinishReason.
func MapClaudeFinishReason(stopReason string) (FinishReason, bool) {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return FinishReasonStop, true
	case "max_tokens":
		return FinishReasonLength, true
	case "tool_use":
		return FinishReasonToolCalls, true
	default:
		return "", false
	}
}

// MapFinishReasonToClaude converts a FinishReason to Claude's stop_reason.
func MapFinishReasonToClaude(reason FinishReason) string {
	switch reason {
	case FinishReasonLength:
		return "max_tokens"
	case FinishReasonToolCalls:
		return "tool_use"
	default:
		return "end_turn"
	}
}

// MapOpenAIFinishReason converts OpenAI's finish_reason to a FinishReason.
func MapOpenAIFinishReason(reason string) (FinishReason, bool) {
	switch reason {
	case "stop":
		return FinishReasonStop, true
	case "length":
		return FinishReasonLength, true
	case "tool_calls", "function_call":
		return FinishReasonToolCalls, true
	case "content_filter":
		return FinishReasonContentFilter, true
	default:
		return "", false
	}
}

// MapFinishReasonToOpenAI converts a FinishReason to OpenAI's finish_reason string.
func MapFinishReasonToOpenAI(reason FinishReason) string {
	switch reason {
	case FinishReasonLength:
		return "length"
	case FinishReasonToolCalls:
		return "tool_calls"
	case FinishReasonContentFilter:
		return "content_filter"
	default:
		return "stop"
	}
}

// MapGeminiFinishReason converts Gemini's finishReason to a FinishReason.
// hasFunctionCall overrides the wire-level reason to ToolCalls, per spec.
func MapGeminiFinishReason(reason string, hasFunctionCall bool) (FinishReason, bool) {
	if hasFunctionCall {
		return FinishReasonToolCalls, true
	}
	switch reason {
	case "STOP":
		return FinishReasonStop, true
	case "MAX_TOKENS":
		return FinishReasonLength, true
	case "SAFETY", "RECITATION":
		return FinishReasonContentFilter, true
	default:
		return "", false
	}
}

// MapFinishReasonToGemini converts a FinishReason to Gemini's finishReason string.
func MapFinishReasonToGemini(reason FinishReason) string {
	switch reason {
	case FinishReasonLength:
		return "MAX_TOKENS"
	case FinishReasonContentFilter:
		return "SAFETY"
	default:
		return "STOP"
	}
}

// OverrideFinishReasonForToolCalls applies the codec-wide rule: a response
// carrying at least one tool call always reports FinishReasonToolCalls,
// regardless of the wire-level stop reason. This is deliberate and must not
// be "fixed" to respect the upstream reason (spec.md Open Questions).
func OverrideFinishReasonForToolCalls(reason FinishReason, hasToolCalls bool) FinishReason {
	if hasToolCalls {
		return FinishReasonToolCalls
	}
	return reason
}

// MapStandardRole normalizes a wire-format role string to the IR Role enum.
// Unrecognized roles fall back to RoleUser, matching the teacher's
// permissive role-mapping behavior rather than erroring on an odd value.
func MapStandardRole(role string) Role {
	switch role {
	case "system", "developer":
		return RoleSystem
	case "assistant", "model":
		return RoleAssistant
	case "tool", "function":
		return RoleTool
	case "user":
		return RoleUser
	default:
		return RoleUser
	}
}

// CombineTextParts returns the message's text content; it is a named
// alias for msg.Content.ToText().
func CombineTextParts(msg Message) string {
	return msg.Content.ToText()
}
