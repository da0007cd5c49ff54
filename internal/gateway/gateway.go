// Package gateway talks to the messaging provider: it parses inbound
// webhook callbacks, validates their signatures, and pushes outbound
// message parts through the provider's send API with inter-part pacing.
package gateway

import (
	"errors"
	"net/url"
	"strings"
)

var ErrMissingFields = errors.New("inbound callback missing required fields")

// InboundMessage is the normalized shape of one webhook callback.
type InboundMessage struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
}

// ParseInbound maps the provider's form-encoded callback fields. From/To
// keep their raw channel prefix; normalization happens where addresses are
// compared, not here.
func ParseInbound(form url.Values) (InboundMessage, error) {
	msg := InboundMessage{
		MessageID: strings.TrimSpace(form.Get("MessageSid")),
		From:      form.Get("From"),
		To:        form.Get("To"),
		Body:      form.Get("Body"),
	}
	if msg.MessageID == "" || strings.TrimSpace(msg.From) == "" {
		return InboundMessage{}, ErrMissingFields
	}
	return msg, nil
}
