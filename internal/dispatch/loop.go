// Package dispatch drives the completion request/response cycle: one
// completion with the tool catalogue, at most one batch of tool executions,
// and one tools-disabled follow-up. The loop is an explicit two-state
// machine rather than a recursive "ask again" cycle, so worst-case latency
// and cost stay bounded; allowing deeper tool rounds would be an extension
// here, not elsewhere.
package dispatch

import (
	"context"
	"fmt"

	"github.com/aruizmd/medassist/internal/conversation"
	"github.com/aruizmd/medassist/internal/llm"
	"github.com/aruizmd/medassist/internal/tools"
)

// Fixed user-visible fallbacks for empty model output.
const (
	FallbackNoAnswer  = "I could not process that request. Please try again."
	FallbackToolsOnly = "Operation completed."
)

type state int

const (
	awaitingInitial state = iota
	awaitingFollowUp
)

// ToolObserver is notified after each executed tool call; used for metrics.
type ToolObserver func(name string, failed bool)

// Loop executes the dispatch protocol against a completion client and tool
// registry.
type Loop struct {
	client   llm.Client
	registry *tools.Registry
	observe  ToolObserver
}

func NewLoop(client llm.Client, registry *tools.Registry) *Loop {
	return &Loop{client: client, registry: registry}
}

// SetToolObserver installs a per-call observer. Optional.
func (l *Loop) SetToolObserver(fn ToolObserver) { l.observe = fn }

// Run sends the assembled context plus the new user turn and returns the
// final answer text. Tool failures never abort the batch: each becomes a
// structured error result the model sees in the follow-up.
func (l *Loop) Run(ctx context.Context, conv conversation.Conversation, contextMsgs []conversation.ContextMessage, userText string) (string, error) {
	messages := make([]llm.Message, 0, len(contextMsgs)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: conv.SystemPrompt})
	for _, m := range contextMsgs {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userText})

	for st := awaitingInitial; ; {
		switch st {
		case awaitingInitial:
			resp, err := l.client.Complete(ctx, llm.CompletionRequest{
				Model:    conv.Model,
				Messages: messages,
				Tools:    l.registry.Specs(),
			})
			if err != nil {
				return "", fmt.Errorf("initial completion: %w", err)
			}
			if len(resp.ToolCalls) == 0 {
				if resp.Text == "" {
					return FallbackNoAnswer, nil
				}
				return resp.Text, nil
			}

			messages = append(messages, llm.Message{
				Role:      llm.RoleAssistant,
				Content:   resp.Text,
				ToolCalls: resp.ToolCalls,
			})
			// Every call in the batch is attempted; cancellation is not
			// observed between siblings by design.
			for _, call := range resp.ToolCalls {
				result := l.registry.Dispatch(ctx, conv.ClinicianID, call.Name, call.ArgumentsJSON)
				if l.observe != nil {
					l.observe(call.Name, isErrorResult(result))
				}
				messages = append(messages, llm.Message{
					Role:       llm.RoleTool,
					Content:    result,
					ToolCallID: call.ID,
				})
			}
			st = awaitingFollowUp

		case awaitingFollowUp:
			resp, err := l.client.Complete(ctx, llm.CompletionRequest{
				Model:    conv.Model,
				Messages: messages,
			})
			if err != nil {
				return "", fmt.Errorf("follow-up completion: %w", err)
			}
			if resp.Text == "" {
				return FallbackToolsOnly, nil
			}
			return resp.Text, nil
		}
	}
}

func isErrorResult(result string) bool {
	return len(result) > 9 && result[:9] == `{"error":`
}
