package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-process store for local/dev use and tests. The
// store mutex spans the check-and-create in Create, which is what upholds
// the single-active invariant without a database index.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	turns         map[string][]Turn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]*Conversation),
		turns:         make(map[string][]Turn),
	}
}

func (s *InMemoryStore) ActiveForClinician(_ context.Context, clinicianID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := s.activeLocked(clinicianID); c != nil {
		return *c, nil
	}
	return Conversation{}, ErrNoActiveConversation
}

func (s *InMemoryStore) activeLocked(clinicianID string) *Conversation {
	for _, c := range s.conversations {
		if c.ClinicianID == clinicianID && c.Active {
			return c
		}
	}
	return nil
}

func (s *InMemoryStore) Create(_ context.Context, conv Conversation) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.activeLocked(conv.ClinicianID); existing != nil {
		return *existing, nil
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	conv.Active = true
	c := conv
	s.conversations[c.ID] = &c
	return c, nil
}

func (s *InMemoryStore) Deactivate(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok {
		c.Active = false
	}
	return nil
}

func (s *InMemoryStore) Touch(_ context.Context, conversationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok && c.Active {
		c.LastActivityAt = at
	}
	return nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, turn Turn) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	if turn.TokenEstimate == 0 {
		turn.TokenEstimate = EstimateTokens(turn.Content)
	}
	s.turns[turn.ConversationID] = append(s.turns[turn.ConversationID], turn)
	return turn, nil
}

func (s *InMemoryStore) Turns(_ context.Context, conversationID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.turns[conversationID]
	out := make([]Turn, len(src))
	copy(out, src)
	return out, nil
}

func (s *InMemoryStore) SetSummaryAndDelete(_ context.Context, conversationID, summary string, turnIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok {
		sum := summary
		c.Summary = &sum
	}
	drop := make(map[string]bool, len(turnIDs))
	for _, id := range turnIDs {
		drop[id] = true
	}
	kept := s.turns[conversationID][:0]
	for _, t := range s.turns[conversationID] {
		if !drop[t.ID] {
			kept = append(kept, t)
		}
	}
	s.turns[conversationID] = kept
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
