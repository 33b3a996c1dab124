package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AutopilotRule is a standing instruction the assistant executes proactively
// ("every Friday suggest dinner spots"). Managed through autopilot_ops mode.
type AutopilotRule struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      string             `bson:"userId" json:"user_id"`
	Description string             `bson:"description" json:"description"`
	Schedule    string             `bson:"schedule,omitempty" json:"schedule,omitempty"` // cron expression, optional
	Paused      bool               `bson:"paused" json:"paused"`
	CreatedAt   time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updated_at"`
}

// AutopilotPayload is the typed payload attached to an autopilot operation in
// an intent record.
type AutopilotPayload struct {
	Description string `json:"description,omitempty"`
	Schedule    string `json:"schedule,omitempty"`
	RuleRef     string `json:"rule_ref,omitempty"` // name or fragment identifying an existing rule
}

// SuggestionPack is a named snapshot of resolved thread suggestions, created
// by pack_creation mode.
type SuggestionPack struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"userId" json:"user_id"`
	Name      string             `bson:"name" json:"name"`
	Items     []ThreadSuggestion `bson:"items" json:"items"`
	ThreadID  string             `bson:"threadId,omitempty" json:"thread_id,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
}
