// Package ir defines the protocol-neutral intermediate representation (IR)
// that every codec decodes into and encodes out of. No codec ever converts
// directly between two wire formats — everything routes through these types.
package ir

// Role identifies the speaker of a message in a chat exchange.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason is the normalized reason a response stopped generating.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// ToolChoiceMode is the discriminant of ToolChoice.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ToolChoice mirrors the {Auto, None, Any, Tool{name}} variant from spec.md.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string // only set when Mode == ToolChoiceTool
}

// ContentPartType is the discriminant of ContentPart.
type ContentPartType string

const (
	ContentPartText  ContentPartType = "text"
	ContentPartImage ContentPartType = "image"
)

// Image holds either a remote URL or inline base64 image data. Exactly one
// of URL or Data should be set.
type Image struct {
	URL       string
	MimeType  string
	Data      string // base64-encoded, only meaningful when URL == ""
}

// ContentPart is one element of a Content list: either a text run or an image.
type ContentPart struct {
	Type  ContentPartType
	Text  string
	Image *Image
}

// Content is the tagged sum type backing IrMessage.content: either a bare
// string or an ordered list of parts. Codecs normalize a single-text-part
// array down to the plain-string form on decode so that encoders which only
// understand a bare string (OpenAI Chat's single-string convention) never
// see a spurious one-element array.
type Content struct {
	Text  string
	Parts []ContentPart // nil when the plain-text form is in use
}

// NewTextContent builds a plain-string Content value.
func NewTextContent(text string) Content {
	return Content{Text: text}
}

// IsParts reports whether this Content uses the multi-part array form.
func (c Content) IsParts() bool {
	return c.Parts != nil
}

// ToText concatenates all text runs in the content, ignoring images.
// Mirrors IrContent::to_text in the original implementation.
func (c Content) ToText() string {
	if !c.IsParts() {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == ContentPartText {
			out += p.Text
		}
	}
	return out
}

// IsEmpty reports whether the content carries no text and no parts.
func (c Content) IsEmpty() bool {
	if c.IsParts() {
		return len(c.Parts) == 0
	}
	return c.Text == ""
}

// ToolCall is a single function invocation requested by the assistant.
// Arguments is always a JSON-encoded string, never a parsed value, per
// spec.md's invariant.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is one turn in the IR conversation.
type Message struct {
	Role       Role
	Content    Content
	ToolCalls  []ToolCall // only meaningful on Role == RoleAssistant
	ToolCallID string     // only meaningful on Role == RoleTool
	Name       string     // tool name, used by the Gemini function-response codec
}

// Tool is a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // arbitrary JSON schema, nil-able
}

// Usage is normalized token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	HasTotalTokens   bool
}

// ChatRequest is the universal request IR.
type ChatRequest struct {
	Model       string
	Messages    []Message
	System      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Stream      bool
	Stop        []string
	Tools       []Tool
	ToolChoice  *ToolChoice
}

// ChatResponse is the universal non-streaming response IR.
type ChatResponse struct {
	ID           string
	Model        string
	Message      Message
	FinishReason FinishReason
	HasFinish    bool
	Usage        *Usage
}

// ToolCallDelta is a fragment of a tool call arriving during streaming. The
// first delta for a given Index carries ID and Name; subsequent deltas for
// the same Index carry Arguments fragments that concatenate onto the
// in-flight call.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// StreamChunk is one decoded increment of a streaming response.
type StreamChunk struct {
	ID              string
	Model           string
	DeltaRole       Role
	HasDeltaRole    bool
	DeltaContent    string
	DeltaToolCalls  []ToolCallDelta
	FinishReason    FinishReason
	HasFinish       bool
	Usage           *Usage
}
