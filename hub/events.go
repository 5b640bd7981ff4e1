package hub

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/phidinhthang/tiny-chat/models"
)

// Wire operation names. Every frame in either direction is an Envelope
// tagged with one of these ops (client->server only uses OpAuth).
const (
	OpAuth            = "auth"
	OpAuthGood        = "auth-good"
	OpHi              = "hi"
	OpUserOnline      = "user_online"
	OpUserOffline     = "user_offline"
	OpNewMessage      = "new_message"
	OpNewUser         = "new_user"
	OpMessageDeleted  = "message_deleted"
	OpReactionUpdated = "reaction_updated"
)

// Envelope is the only wire unit exchanged over a websocket connection:
// an op tag plus an optional JSON payload.
type Envelope struct {
	Op string          `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
}

// NewEnvelope builds an envelope with d set to the JSON encoding of v.
// A nil v produces an envelope without a payload.
func NewEnvelope(op string, v interface{}) (Envelope, error) {
	if v == nil {
		return Envelope{Op: op}, nil
	}
	d, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %q payload: %w", op, err)
	}
	return Envelope{Op: op, D: d}, nil
}

// Encode serializes the envelope to a text frame payload.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// NewMessage announces a freshly created chat message to the members of
// its conversation.
type NewMessage struct {
	Message models.Message `json:"message"`
	Author  models.User    `json:"author"`
}

// NewUser announces a newly registered account to every connected
// session, authenticated or not.
type NewUser struct {
	User models.User `json:"user"`
}

// MessageDeleted tells conversation members to drop a message from
// their local state.
type MessageDeleted struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	AuthorID       uuid.UUID `json:"authorId"`
}

// ReactionUpdateType discriminates reaction_updated events.
type ReactionUpdateType string

const (
	ReactionCreated ReactionUpdateType = "CREATED"
	ReactionDeleted ReactionUpdateType = "DELETED"
)

// ReactionUpdated announces a reaction being added to or removed from a
// message in a conversation.
type ReactionUpdated struct {
	UserID         uuid.UUID          `json:"userId"`
	EmojiName      string             `json:"emojiName"`
	MessageID      uuid.UUID          `json:"messageId"`
	ConversationID uuid.UUID          `json:"conversationId"`
	UpdateType     ReactionUpdateType `json:"updateType"`
}
