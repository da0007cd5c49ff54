// Package conversation owns the per-clinician chat state: the single active
// conversation, its stored turns, and the compacted running summary.
package conversation

import (
	"context"
	"errors"
	"time"
)

// Role of a stored turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrNoActiveConversation = errors.New("no active conversation")

// Conversation is the stateful record coordinating turns, summary, and
// expiry. At most one active conversation exists per clinician.
type Conversation struct {
	ID             string    `json:"id"`
	ClinicianID    string    `json:"clinician_id"`
	Model          string    `json:"model"`
	SystemPrompt   string    `json:"system_prompt"`
	Summary        *string   `json:"summary,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Active         bool      `json:"active"`
	ContextLimit   int       `json:"context_limit"`
}

// Turn is one stored message. Immutable once created; the only mutation is
// deletion when it is folded into the running summary.
type Turn struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Role           string     `json:"role"`
	Content        string     `json:"content"`
	TokenEstimate  int        `json:"token_estimate"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// Store persists conversations and turns. Implementations must enforce the
// single-active-per-clinician invariant atomically: Create for a clinician
// who already has an active conversation returns that conversation instead
// of inserting a second one.
type Store interface {
	ActiveForClinician(ctx context.Context, clinicianID string) (Conversation, error)
	Create(ctx context.Context, conv Conversation) (Conversation, error)
	Deactivate(ctx context.Context, conversationID string) error
	Touch(ctx context.Context, conversationID string, at time.Time) error
	AppendTurn(ctx context.Context, turn Turn) (Turn, error)
	Turns(ctx context.Context, conversationID string) ([]Turn, error)
	// SetSummaryAndDelete persists the merged summary and removes the folded
	// turns as one atomic unit.
	SetSummaryAndDelete(ctx context.Context, conversationID, summary string, turnIDs []string) error
	Close() error
}

// EstimateTokens is a cheap length-based token estimate used for turn
// accounting; four characters per token tracks English prose closely enough
// for window budgeting.
func EstimateTokens(content string) int {
	n := len(content) / 4
	if n == 0 && content != "" {
		n = 1
	}
	return n
}
