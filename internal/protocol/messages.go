// Package protocol defines the websocket payloads pushed to the companion
// web view while a chat is being processed.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies websocket payload variants.
type EventType string

const (
	TypeConversationStarted EventType = "conversation_started"
	TypeTurnStored          EventType = "turn_stored"
	TypeReplyChunkSent      EventType = "reply_chunk_sent"
	TypeConversationCompact EventType = "conversation_compacted"
	TypeErrorEvent          EventType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported event type")

type Envelope struct {
	Type EventType `json:"type"`
}

// ConversationStarted announces a fresh active conversation for the
// clinician behind the token.
type ConversationStarted struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	ClinicianID    string    `json:"clinician_id"`
}

// TurnStored mirrors one stored turn into the companion view.
type TurnStored struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	TurnID         string    `json:"turn_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
}

// ReplyChunkSent reports delivery progress of a fragmented answer.
type ReplyChunkSent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Seq            int       `json:"seq"`
	Total          int       `json:"total"`
}

// ConversationCompacted signals that older turns were folded into the
// running summary.
type ConversationCompacted struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
}

type ErrorEvent struct {
	Type   EventType `json:"type"`
	Code   string    `json:"code"`
	Detail string    `json:"detail,omitempty"`
}

// ParseEvent decodes a serialized event back into its concrete type; the
// companion view uses it in tests and client tooling.
func ParseEvent(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeConversationStarted:
		var msg ConversationStarted
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ConversationID == "" {
			return nil, errors.New("invalid conversation_started")
		}
		return msg, nil
	case TypeTurnStored:
		var msg TurnStored
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ConversationID == "" || msg.Role == "" {
			return nil, errors.New("invalid turn_stored")
		}
		return msg, nil
	case TypeReplyChunkSent:
		var msg ReplyChunkSent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeConversationCompact:
		var msg ConversationCompacted
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeErrorEvent:
		var msg ErrorEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
