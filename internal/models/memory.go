package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryFact is one keyed fact about a user. The value is encrypted at rest;
// bucket and key stay plaintext so facts can be queried and deduplicated.
type MemoryFact struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         string             `bson:"userId" json:"user_id"`
	Bucket         string             `bson:"bucket" json:"bucket"`
	Key            string             `bson:"key" json:"key"`
	EncryptedValue string             `bson:"encryptedValue" json:"-"`
	ValueHash      string             `bson:"valueHash" json:"-"` // SHA-256, for (bucket,key,value) dedup
	Source         string             `bson:"source" json:"source"`
	Confidence     float64            `bson:"confidence" json:"confidence"`
	CreatedAt      time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updated_at"`
}

// Memory buckets.
const (
	MemoryBucketProfile    = "profile"
	MemoryBucketPreference = "preference"
)

// Profile fact keys.
const (
	MemoryKeyName     = "name"
	MemoryKeyCity     = "city"
	MemoryKeyHomeArea = "home_area"
)

// QueuedMemoryWrite is a pending fact persistence queued by the intent
// pipeline and drained by the scheduler. Mirrors the extraction job queue:
// the reply path only appends, a background worker does the provider work.
type QueuedMemoryWrite struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     string             `bson:"userId" json:"user_id"`
	Bucket     string             `bson:"bucket" json:"bucket"`
	Key        string             `bson:"key" json:"key"`
	Value      string             `bson:"value" json:"value"`
	Source     string             `bson:"source" json:"source"`
	Confidence float64            `bson:"confidence" json:"confidence"`
	Status     string             `bson:"status" json:"status"`
	CreatedAt  time.Time          `bson:"createdAt" json:"created_at"`
}

// Queued write statuses.
const (
	QueuedWritePending = "pending"
	QueuedWriteApplied = "applied"
	QueuedWriteFailed  = "failed"
)

// PreferenceProfile is the aggregated view handed to the prompt composer.
type PreferenceProfile struct {
	Name     string   `json:"name,omitempty"`
	City     string   `json:"city,omitempty"`
	HomeArea string   `json:"home_area,omitempty"`
	Likes    []string `json:"likes,omitempty"`
	Dislikes []string `json:"dislikes,omitempty"`
}
