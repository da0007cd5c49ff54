package conversation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Compaction defaults. The threshold and batch are deliberately independent
// of the verbatim window size.
const (
	DefaultContextLimit     = 10
	DefaultSummaryThreshold = 15
	DefaultSummarizeBatch   = 5
	SummaryWordBudget       = 300

	summaryLabel = "Conversation summary so far: "
)

// ContextMessage is one entry of the assembled LLM context.
type ContextMessage struct {
	Role    string
	Content string
}

// Summarizer folds a batch of rendered turns into a running summary. It is
// a remote, fallible call; a failed attempt must leave state untouched.
type Summarizer interface {
	Summarize(ctx context.Context, instruction, text string) (string, error)
}

// Compactor maintains the two-tier context cache: the hot tier is the last
// ContextLimit turns sent verbatim, the cold tier is the running summary
// older turns are folded into.
type Compactor struct {
	store      Store
	summarizer Summarizer
	threshold  int
	batch      int

	warnOnce sync.Once
}

func NewCompactor(store Store, summarizer Summarizer, threshold, batch int) *Compactor {
	if threshold <= 0 {
		threshold = DefaultSummaryThreshold
	}
	if batch <= 0 {
		batch = DefaultSummarizeBatch
	}
	return &Compactor{store: store, summarizer: summarizer, threshold: threshold, batch: batch}
}

// BuildContext assembles the exact turn list sent to the LLM alongside the
// static system prompt: at most one synthetic summary message followed by
// the last ContextLimit stored turns, oldest first.
func (c *Compactor) BuildContext(conv Conversation, turns []Turn) []ContextMessage {
	limit := conv.ContextLimit
	if limit <= 0 {
		limit = DefaultContextLimit
	}

	out := make([]ContextMessage, 0, limit+1)
	if conv.Summary != nil && strings.TrimSpace(*conv.Summary) != "" {
		out = append(out, ContextMessage{Role: "system", Content: summaryLabel + *conv.Summary})
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	for _, t := range turns {
		out = append(out, ContextMessage{Role: t.Role, Content: t.Content})
	}
	return out
}

// CheckAndCompact folds the oldest batch of turns into the running summary
// when the stored count crosses the threshold. Summary write and turn
// deletion happen as one atomic store operation; if the summarization call
// fails, nothing changes and the conversation simply grows until the next
// successful attempt.
func (c *Compactor) CheckAndCompact(ctx context.Context, conv Conversation) (bool, error) {
	if conv.ContextLimit > 0 && c.batch > conv.ContextLimit {
		c.warnOnce.Do(func() {
			log.Printf("compactor: batch %d exceeds context limit %d; turns may be folded before aging out of the window", c.batch, conv.ContextLimit)
		})
	}

	turns, err := c.store.Turns(ctx, conv.ID)
	if err != nil {
		return false, fmt.Errorf("load turns for compaction: %w", err)
	}
	if len(turns) <= c.threshold {
		return false, nil
	}

	batch := turns[:c.batch]
	var rendered strings.Builder
	for _, t := range batch {
		rendered.WriteString(roleLabel(t.Role))
		rendered.WriteString(": ")
		rendered.WriteString(t.Content)
		rendered.WriteString("\n")
	}

	// The caller's conv value may predate a fold earlier in the same
	// request; re-read the stored summary so consecutive folds chain
	// instead of overwriting each other.
	if fresh, err := c.store.ActiveForClinician(ctx, conv.ClinicianID); err == nil && fresh.ID == conv.ID {
		conv.Summary = fresh.Summary
	}

	instruction := summaryInstruction(conv.Summary)
	merged, err := c.summarizer.Summarize(ctx, instruction, rendered.String())
	if err != nil {
		return false, fmt.Errorf("summarize batch: %w", err)
	}
	merged = strings.TrimSpace(merged)
	if merged == "" {
		return false, fmt.Errorf("summarize batch: empty summary")
	}

	ids := make([]string, len(batch))
	for i, t := range batch {
		ids[i] = t.ID
	}
	if err := c.store.SetSummaryAndDelete(ctx, conv.ID, merged, ids); err != nil {
		return false, fmt.Errorf("persist compaction: %w", err)
	}
	return true, nil
}

func summaryInstruction(existing *string) string {
	var b strings.Builder
	b.WriteString("You maintain a running summary of a clinical chat between a clinician and an assistant. ")
	fmt.Fprintf(&b, "Merge the new exchange below into the summary, staying under %d words. ", SummaryWordBudget)
	b.WriteString("Keep only clinically relevant facts: patients named, actions taken, pending items.")
	if existing != nil && strings.TrimSpace(*existing) != "" {
		b.WriteString("\n\nCurrent summary:\n")
		b.WriteString(*existing)
	}
	return b.String()
}

func roleLabel(role string) string {
	switch role {
	case RoleAssistant:
		return "Assistant"
	default:
		return "Clinician"
	}
}
