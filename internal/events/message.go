// Package events carries ledger notifications from the event outbox to the
// message broker and back out to subscribers.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/Panchu11/obscura/internal/ledger/domain"
)

// ContentType is the media type of every published message body
const ContentType = "application/json"

// MessageVersion is bumped when the envelope layout changes incompatibly
const MessageVersion = 1

// Message is the broker envelope around one ledger event
type Message struct {
	Version int          `json:"version"`
	Event   domain.Event `json:"event"`
}

// RoutingKey returns the topic key an event is published under
func RoutingKey(ev *domain.Event) string {
	return string(ev.Type)
}

// Encode serializes an event into a broker message body
func Encode(ev *domain.Event) ([]byte, error) {
	msg := Message{Version: MessageVersion, Event: *ev}
	msg.Event.PublishedAt = nil
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %d: %w", ev.Seq, err)
	}
	return body, nil
}

// Decode parses a broker message body. Unknown versions and envelopes without
// an event type are rejected so consumers can drop them without retrying.
func Decode(body []byte) (*domain.Event, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("malformed event message: %w", err)
	}
	if msg.Version != MessageVersion {
		return nil, fmt.Errorf("unsupported event message version %d", msg.Version)
	}
	if msg.Event.Type == "" {
		return nil, fmt.Errorf("event message has no type")
	}
	if msg.Event.Amount.IsNil() {
		msg.Event.Amount = domain.ZeroAmount()
	}
	return &msg.Event, nil
}
