package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Thread is one conversation between a user and the assistant.
type Thread struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ThreadID     string             `bson:"threadId" json:"thread_id"` // stable external ID
	UserID       string             `bson:"userId" json:"user_id"`
	Title        string             `bson:"title,omitempty" json:"title,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"created_at"`
	LastActiveAt time.Time          `bson:"lastActiveAt" json:"last_active_at"`
}

// Message is one stored turn in a thread. BlocksJSON holds the serialized
// reply blocks attached to assistant messages; suggestion extraction reads it
// back without a schema migration when block shapes evolve.
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MessageID  string             `bson:"messageId" json:"message_id"`
	ThreadID   string             `bson:"threadId" json:"thread_id"`
	UserID     string             `bson:"userId" json:"user_id"`
	Role       string             `bson:"role" json:"role"` // "user" | "assistant" | "system"
	Content    string             `bson:"content" json:"content"`
	BlocksJSON string             `bson:"blocksJson,omitempty" json:"-"`
	Mode       string             `bson:"mode,omitempty" json:"mode,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"created_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DefaultHistoryLimit bounds how many stored messages are replayed into the
// model context per turn.
const DefaultHistoryLimit = 20
