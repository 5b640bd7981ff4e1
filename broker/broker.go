// Package broker moves domain events from the REST tier into the hub
// when the two run as separate processes. In-process callers can push
// events into the hub directly; the broker is an optional transport.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/phidinhthang/tiny-chat/hub"
)

// EventType tags the payload carried by an Event.
type EventType string

const (
	EventNewMessage      EventType = "new_message"
	EventNewUser         EventType = "new_user"
	EventMessageDeleted  EventType = "message_deleted"
	EventReactionUpdated EventType = "reaction_updated"
)

// Event is the unit published to and consumed from the broker: a type
// tag plus the JSON encoding of the corresponding hub event.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis publish.
func (e Event) MarshalBinary() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *Event) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, e)
}

// MessageBroker abstracts the transport used to move events between
// processes.
type MessageBroker interface {
	// Publish sends an event on the given topic.
	Publish(ctx context.Context, topic string, event Event) error
	// Subscribe starts consuming events from the given topic.
	Subscribe(ctx context.Context, topic string) (<-chan Event, error)
	// Type identifies the implementation for logs and metrics.
	Type() string
	// Close cleans up resources.
	Close() error
}

// Pump drains a broker subscription into the hub until ctx is
// cancelled or the subscription closes.
func Pump(ctx context.Context, b MessageBroker, topic string, h *hub.Hub) error {
	events, err := b.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			Dispatch(event, h)
		}
	}
}

// Dispatch decodes a broker event and hands it to the hub. Events that
// fail to decode are logged and dropped; the stream keeps flowing.
func Dispatch(event Event, h *hub.Hub) {
	switch event.Type {
	case EventNewMessage:
		var ev hub.NewMessage
		if err := json.Unmarshal(event.Data, &ev); err != nil {
			log.Printf("Dropping malformed %s event: %v", event.Type, err)
			return
		}
		h.PublishNewMessage(ev)
	case EventNewUser:
		var ev hub.NewUser
		if err := json.Unmarshal(event.Data, &ev); err != nil {
			log.Printf("Dropping malformed %s event: %v", event.Type, err)
			return
		}
		h.PublishNewUser(ev)
	case EventMessageDeleted:
		var ev hub.MessageDeleted
		if err := json.Unmarshal(event.Data, &ev); err != nil {
			log.Printf("Dropping malformed %s event: %v", event.Type, err)
			return
		}
		h.PublishMessageDeleted(ev)
	case EventReactionUpdated:
		var ev hub.ReactionUpdated
		if err := json.Unmarshal(event.Data, &ev); err != nil {
			log.Printf("Dropping malformed %s event: %v", event.Type, err)
			return
		}
		h.PublishReactionUpdated(ev)
	default:
		log.Printf("Dropping event with unknown type %q", event.Type)
	}
}
