// Package llm speaks the converse-style inference API: a message history of
// text, tool-use and tool-result blocks, an optional system prompt and tool
// schema, and an assistant message back.
package llm

// Message roles. The converse protocol only ever exchanges user and
// assistant turns; system text travels separately.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool result statuses.
const (
	StatusError = "error"
)

// Message is one turn of a conversation. Field order matters for the YAML
// persistence layout (role before content).
type Message struct {
	Role    string         `json:"role" yaml:"role"`
	Content []ContentBlock `json:"content" yaml:"content"`
}

// ContentBlock is a tagged union: exactly one of Text, ToolUse, ToolResult
// or Document is set.
type ContentBlock struct {
	Text       string      `json:"text,omitempty" yaml:"text,omitempty"`
	ToolUse    *ToolUse    `json:"toolUse,omitempty" yaml:"toolUse,omitempty"`
	ToolResult *ToolResult `json:"toolResult,omitempty" yaml:"toolResult,omitempty"`
	Document   *Document   `json:"document,omitempty" yaml:"document,omitempty"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Text: text}
}

// UserText builds a single-block user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantText builds a single-block assistant message.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// ToolUse is the model's request to invoke a named tool.
type ToolUse struct {
	ToolUseID string         `json:"toolUseId" yaml:"toolUseId"`
	Name      string         `json:"name" yaml:"name"`
	Input     map[string]any `json:"input" yaml:"input"`
}

// ToolResult answers a ToolUse block with the same id.
type ToolResult struct {
	ToolUseID string              `json:"toolUseId" yaml:"toolUseId"`
	Content   []ToolResultContent `json:"content" yaml:"content"`
	Status    string              `json:"status,omitempty" yaml:"status,omitempty"`
}

// ToolResultContent is one piece of a tool result payload.
type ToolResultContent struct {
	Text string `json:"text" yaml:"text"`
}

// ToolResultMessage builds the user turn answering a tool call. isError
// marks the result with error status so the model can adapt.
func ToolResultMessage(toolUseID, text string, isError bool) Message {
	tr := &ToolResult{
		ToolUseID: toolUseID,
		Content:   []ToolResultContent{{Text: text}},
	}
	if isError {
		tr.Status = StatusError
	}
	return Message{Role: RoleUser, Content: []ContentBlock{{ToolResult: tr}}}
}

// Document attaches a binary document for document-understanding calls.
// Bytes marshal as base64 on the wire.
type Document struct {
	Name   string         `json:"name" yaml:"name"`
	Format string         `json:"format" yaml:"format"`
	Source DocumentSource `json:"source" yaml:"source"`
}

// DocumentSource carries the raw document bytes.
type DocumentSource struct {
	Bytes []byte `json:"bytes" yaml:"bytes"`
}

// SystemBlock is one block of the system prompt.
type SystemBlock struct {
	Text string `json:"text"`
}

// InferenceConfig holds per-call sampling parameters. Temperature is a
// pointer so an explicit zero survives serialization.
type InferenceConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
}

// Temp builds an inference config with the given temperature.
func Temp(t float64) InferenceConfig {
	return InferenceConfig{Temperature: &t}
}

// ToolSpec advertises one tool to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolConfig is the optional tool schema attached to a request.
type ToolConfig struct {
	Tools []ToolSpec `json:"tools"`
}

// Request is the full converse-style request body.
type Request struct {
	ModelID         string          `json:"modelId"`
	Messages        []Message       `json:"messages"`
	System          []SystemBlock   `json:"system,omitempty"`
	InferenceConfig InferenceConfig `json:"inferenceConfig"`
	ToolConfig      *ToolConfig     `json:"toolConfig,omitempty"`
}

// Response is the converse-style response body.
type Response struct {
	Output struct {
		Message Message `json:"message"`
	} `json:"output"`
	StopReason string `json:"stopReason,omitempty"`
}

// Text concatenates the text blocks of the assistant message.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, c := range r.Output.Message.Content {
		if c.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += c.Text
		}
	}
	return out
}
