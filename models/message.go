package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is a chat message as delivered inside a new_message event.
// Reactions are kept as raw JSON: the realtime layer never inspects
// them, it only relays what the REST tier produced.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	AuthorID       uuid.UUID       `json:"authorId"`
	ConversationID uuid.UUID       `json:"conversationId"`
	Content        *string         `json:"content"`
	IsDeleted      bool            `json:"isDeleted"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      *time.Time      `json:"updatedAt"`
	Reactions      json.RawMessage `json:"reactions"`
	IsImage        bool            `json:"isImage"`
}
