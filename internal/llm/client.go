// Package llm abstracts the completion service used by the dispatch loop and
// the compactor. The wire implementation lives in openai.go; tests use the
// scripted mock.
package llm

import "context"

// Message roles mirror the completion API's chat roles. Tool-result
// messages carry the id of the call they answer.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the ordered completion context.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that requested tools
	ToolCallID string     // set on tool-result messages
}

// ToolCall is a structured request from the model to invoke a named
// operation.
type ToolCall struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// ToolSpec describes one callable tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// CompletionRequest carries the full message list and, optionally, the tool
// catalogue. Tools are offered with tool_choice=auto; the follow-up and
// summarization calls leave Tools empty.
type CompletionRequest struct {
	Model     string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// CompletionResponse is either a plain text answer or a batch of tool
// calls; the two are mutually exclusive in practice but both fields are
// surfaced so callers can decide.
type CompletionResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// Client is the completion service surface the orchestration core depends
// on.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Summarize(ctx context.Context, instruction, text string) (string, error)
}
