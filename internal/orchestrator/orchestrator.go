// Package orchestrator runs the inbound message pipeline: dedup, identity
// resolution, session token issuance, conversation lifecycle, completion
// dispatch, compaction, and chunked delivery of the answer.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aruizmd/medassist/internal/chatauth"
	"github.com/aruizmd/medassist/internal/chunker"
	"github.com/aruizmd/medassist/internal/conversation"
	"github.com/aruizmd/medassist/internal/delivery"
	"github.com/aruizmd/medassist/internal/directory"
	"github.com/aruizmd/medassist/internal/dispatch"
	"github.com/aruizmd/medassist/internal/gateway"
	"github.com/aruizmd/medassist/internal/observability"
	"github.com/aruizmd/medassist/internal/policy"
	"github.com/aruizmd/medassist/internal/protocol"
)

// ReplyNotRegistered is sent verbatim to senders the directory does not
// recognize. It must not leak whether the number was ever registered.
const ReplyNotRegistered = "This number is not registered with the assistant. Please contact your administrator."

// DefaultSystemPrompt frames the assistant for clinicians when no prompt is
// configured.
const DefaultSystemPrompt = "You are a concise clinical practice assistant reachable over text messages. " +
	"You help the clinician look up patients, manage appointments, and record history notes using the tools available. " +
	"Answer in short plain-text messages. Never invent patient data."

// Config carries the orchestrator's tunables.
type Config struct {
	SystemPrompt string
	ChunkLimit   int
}

// Orchestrator wires the pipeline stages together. One instance serves all
// clinicians; per-message state lives on the stack.
type Orchestrator struct {
	guard     *delivery.Guard
	resolver  *directory.Resolver
	issuer    *chatauth.Issuer
	manager   *conversation.Manager
	store     conversation.Store
	compactor *conversation.Compactor
	loop      *dispatch.Loop
	sender    gateway.Sender
	metrics   *observability.Metrics
	hub       *Hub

	systemPrompt string
	chunkLimit   int

	mu       sync.Mutex
	lastConv map[string]string // clinician id -> last observed conversation id
}

func New(
	guard *delivery.Guard,
	resolver *directory.Resolver,
	issuer *chatauth.Issuer,
	manager *conversation.Manager,
	store conversation.Store,
	compactor *conversation.Compactor,
	loop *dispatch.Loop,
	sender gateway.Sender,
	metrics *observability.Metrics,
	hub *Hub,
	cfg Config,
) *Orchestrator {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	limit := cfg.ChunkLimit
	if limit <= 0 {
		limit = chunker.DefaultLimit
	}
	o := &Orchestrator{
		guard:        guard,
		resolver:     resolver,
		issuer:       issuer,
		manager:      manager,
		store:        store,
		compactor:    compactor,
		loop:         loop,
		sender:       sender,
		metrics:      metrics,
		hub:          hub,
		systemPrompt: prompt,
		chunkLimit:   limit,
		lastConv:     make(map[string]string),
	}
	loop.SetToolObserver(func(name string, failed bool) {
		status := "ok"
		if failed {
			status = "error"
		}
		metrics.ToolCalls.WithLabelValues(name, status).Inc()
	})
	return o
}

// HandleInbound processes one webhook delivery end to end. Duplicates are
// dropped silently; unknown senders get a fixed reply; a failed completion
// degrades to a fallback answer rather than silence.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg gateway.InboundMessage) error {
	first, err := o.guard.FirstDelivery(ctx, msg.MessageID)
	if err != nil {
		o.metrics.InboundMessages.WithLabelValues("error").Inc()
		return fmt.Errorf("record delivery: %w", err)
	}
	if !first {
		o.metrics.InboundMessages.WithLabelValues("duplicate").Inc()
		o.metrics.DuplicateDeliveries.Inc()
		return nil
	}

	clinician, err := o.resolver.Resolve(ctx, msg.From)
	if err == directory.ErrNotRegistered {
		o.metrics.InboundMessages.WithLabelValues("unregistered").Inc()
		if _, sendErr := o.sender.Send(ctx, msg.From, ReplyNotRegistered); sendErr != nil {
			log.Printf("orchestrator: reject reply to unregistered sender: %v", sendErr)
		}
		return nil
	}
	if err != nil {
		return o.failWithFallback(ctx, msg.From, fmt.Errorf("resolve sender: %w", err))
	}

	if _, err := o.issuer.GetOrCreateSession(ctx, msg.From, clinician.ID); err != nil {
		return o.failWithFallback(ctx, msg.From, fmt.Errorf("issue chat session: %w", err))
	}

	conv, turns, err := o.manager.GetOrCreateActive(ctx, clinician.ID, o.systemPrompt)
	if err != nil {
		return o.failWithFallback(ctx, msg.From, fmt.Errorf("open conversation: %w", err))
	}
	o.noteConversation(clinician.ID, conv.ID)

	contextMsgs := o.compactor.BuildContext(conv, turns)

	userTurn, err := o.store.AppendTurn(ctx, conversation.Turn{
		ConversationID: conv.ID,
		Role:           conversation.RoleUser,
		Content:        msg.Body,
		TokenEstimate:  conversation.EstimateTokens(msg.Body),
	})
	if err != nil {
		return o.failWithFallback(ctx, msg.From, fmt.Errorf("store user turn: %w", err))
	}
	o.publishTurn(clinician.ID, userTurn)
	o.compact(ctx, clinician.ID, conv)

	started := time.Now()
	answer, err := o.loop.Run(ctx, conv, contextMsgs, msg.Body)
	if err != nil {
		o.metrics.ObserveLLMLatency("chat", "error", time.Since(started))
		redacted, _ := policy.RedactPHI(err.Error())
		log.Printf("orchestrator: dispatch for clinician %s: %s", clinician.ID, redacted)
		o.hub.Publish(clinician.ID, protocol.ErrorEvent{
			Type: protocol.TypeErrorEvent,
			Code: "completion_failed",
		})
		answer = dispatch.FallbackNoAnswer
	} else {
		o.metrics.ObserveLLMLatency("chat", "ok", time.Since(started))
	}

	assistantTurn, err := o.store.AppendTurn(ctx, conversation.Turn{
		ConversationID: conv.ID,
		Role:           conversation.RoleAssistant,
		Content:        answer,
		TokenEstimate:  conversation.EstimateTokens(answer),
	})
	if err != nil {
		return o.failWithFallback(ctx, msg.From, fmt.Errorf("store assistant turn: %w", err))
	}
	o.publishTurn(clinician.ID, assistantTurn)
	o.compact(ctx, clinician.ID, conv)

	// Delivery targets the raw transport address the message arrived from;
	// the normalized form is only for identity and token lookups.
	parts := chunker.Split(answer, o.chunkLimit)
	if err := o.sender.SendParts(ctx, msg.From, parts); err != nil {
		o.metrics.InboundMessages.WithLabelValues("error").Inc()
		return fmt.Errorf("deliver reply: %w", err)
	}
	o.metrics.ChunksSent.Add(float64(len(parts)))
	for i := range parts {
		o.hub.Publish(clinician.ID, protocol.ReplyChunkSent{
			Type:           protocol.TypeReplyChunkSent,
			ConversationID: conv.ID,
			Seq:            i + 1,
			Total:          len(parts),
		})
	}

	o.metrics.InboundMessages.WithLabelValues("processed").Inc()
	return nil
}

// Hub exposes the event hub for websocket handlers.
func (o *Orchestrator) Hub() *Hub { return o.hub }

// failWithFallback handles failures after the dedup guard has consumed the
// delivery: the message will never be retried, so the sender must still get
// a reply even though processing broke.
func (o *Orchestrator) failWithFallback(ctx context.Context, to string, err error) error {
	o.metrics.InboundMessages.WithLabelValues("error").Inc()
	if _, sendErr := o.sender.Send(ctx, to, dispatch.FallbackNoAnswer); sendErr != nil {
		log.Printf("orchestrator: fallback reply: %v", sendErr)
	}
	return err
}

func (o *Orchestrator) noteConversation(clinicianID, conversationID string) {
	o.mu.Lock()
	prev := o.lastConv[clinicianID]
	o.lastConv[clinicianID] = conversationID
	n := len(o.lastConv)
	o.mu.Unlock()

	if prev != conversationID {
		o.metrics.ActiveConversations.Set(float64(n))
		o.hub.Publish(clinicianID, protocol.ConversationStarted{
			Type:           protocol.TypeConversationStarted,
			ConversationID: conversationID,
			ClinicianID:    clinicianID,
		})
	}
}

func (o *Orchestrator) publishTurn(clinicianID string, turn conversation.Turn) {
	o.hub.Publish(clinicianID, protocol.TurnStored{
		Type:           protocol.TypeTurnStored,
		ConversationID: turn.ConversationID,
		TurnID:         turn.ID,
		Role:           turn.Role,
		Content:        turn.Content,
	})
}

func (o *Orchestrator) compact(ctx context.Context, clinicianID string, conv conversation.Conversation) {
	compacted, err := o.compactor.CheckAndCompact(ctx, conv)
	if err != nil {
		redacted, _ := policy.RedactPHI(err.Error())
		log.Printf("orchestrator: compaction for conversation %s: %s", conv.ID, redacted)
		return
	}
	if compacted {
		o.metrics.Compactions.Inc()
		o.hub.Publish(clinicianID, protocol.ConversationCompacted{
			Type:           protocol.TypeConversationCompact,
			ConversationID: conv.ID,
		})
	}
}
