package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"aria/internal/crypto"
	"aria/internal/database"
	"aria/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MemoryStore is the keyed-fact persistence collaborator. Values are
// encrypted per user at rest; dedup works on plaintext hashes.
type MemoryStore interface {
	UpsertFact(ctx context.Context, userID, bucket, key, value, source string, confidence float64) error
	ForgetFact(ctx context.Context, userID, bucket, key string) error
	Profile(ctx context.Context, userID string) (*models.PreferenceProfile, error)
	QueueWrite(ctx context.Context, userID, bucket, key, value, source string, confidence float64)
	HasFact(ctx context.Context, userID, bucket, key, value string) bool
}

// MemoryService is the MongoDB-backed memory store.
type MemoryService struct {
	db         *database.MongoDB
	encryption *crypto.EncryptionService
}

// NewMemoryService creates the memory store.
func NewMemoryService(db *database.MongoDB, encryption *crypto.EncryptionService) *MemoryService {
	return &MemoryService{db: db, encryption: encryption}
}

// UpsertFact stores or replaces one (bucket, key) fact for a user.
func (s *MemoryService) UpsertFact(ctx context.Context, userID, bucket, key, value, source string, confidence float64) error {
	encrypted, err := s.encryption.EncryptString(userID, value)
	if err != nil {
		return fmt.Errorf("failed to encrypt fact: %w", err)
	}

	now := time.Now()
	filter := bson.M{"userId": userID, "bucket": bucket, "key": key}
	update := bson.M{
		"$set": bson.M{
			"encryptedValue": encrypted,
			"valueHash":      crypto.HashValue(value),
			"source":         source,
			"confidence":     confidence,
			"updatedAt":      now,
		},
		"$setOnInsert": bson.M{
			"userId":    userID,
			"bucket":    bucket,
			"key":       key,
			"createdAt": now,
		},
	}

	_, err = s.db.Collection(database.CollectionMemoryFacts).
		UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert fact: %w", err)
	}
	return nil
}

// ForgetFact removes one (bucket, key) fact.
func (s *MemoryService) ForgetFact(ctx context.Context, userID, bucket, key string) error {
	_, err := s.db.Collection(database.CollectionMemoryFacts).
		DeleteOne(ctx, bson.M{"userId": userID, "bucket": bucket, "key": key})
	if err != nil {
		return fmt.Errorf("failed to forget fact: %w", err)
	}
	return nil
}

// HasFact reports whether the same (bucket, key, value) is already stored,
// comparing by value hash so no decryption is needed.
func (s *MemoryService) HasFact(ctx context.Context, userID, bucket, key, value string) bool {
	count, err := s.db.Collection(database.CollectionMemoryFacts).CountDocuments(ctx, bson.M{
		"userId":    userID,
		"bucket":    bucket,
		"key":       key,
		"valueHash": crypto.HashValue(value),
	})
	if err != nil {
		return false
	}
	return count > 0
}

// Profile aggregates the user's stored facts into the view handed to the
// prompt composer. Facts that fail to decrypt are skipped.
func (s *MemoryService) Profile(ctx context.Context, userID string) (*models.PreferenceProfile, error) {
	cursor, err := s.db.Collection(database.CollectionMemoryFacts).
		Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer cursor.Close(ctx)

	profile := &models.PreferenceProfile{}
	for cursor.Next(ctx) {
		var fact models.MemoryFact
		if err := cursor.Decode(&fact); err != nil {
			continue
		}
		value, err := s.encryption.DecryptString(userID, fact.EncryptedValue)
		if err != nil {
			log.Printf("⚠️ [MEMORY] Failed to decrypt fact %s/%s: %v", fact.Bucket, fact.Key, err)
			continue
		}

		switch fact.Bucket {
		case models.MemoryBucketProfile:
			switch fact.Key {
			case models.MemoryKeyName:
				profile.Name = value
			case models.MemoryKeyCity:
				profile.City = value
			case models.MemoryKeyHomeArea:
				profile.HomeArea = value
			}
		case models.MemoryBucketPreference:
			switch {
			case strings.HasPrefix(fact.Key, "like:"):
				profile.Likes = append(profile.Likes, value)
			case strings.HasPrefix(fact.Key, "dislike:"):
				profile.Dislikes = append(profile.Dislikes, value)
			}
		}
	}
	return profile, nil
}

// QueueWrite appends a pending fact persistence to the write queue. The reply
// path only appends; the scheduler drains the queue. Facts already stored with
// the same value are skipped so repeated mentions do not churn the queue.
func (s *MemoryService) QueueWrite(ctx context.Context, userID, bucket, key, value, source string, confidence float64) {
	if value == "" {
		return
	}
	if s.HasFact(ctx, userID, bucket, key, value) {
		return
	}

	write := models.QueuedMemoryWrite{
		UserID:     userID,
		Bucket:     bucket,
		Key:        key,
		Value:      value,
		Source:     source,
		Confidence: confidence,
		Status:     models.QueuedWritePending,
		CreatedAt:  time.Now(),
	}
	if _, err := s.db.Collection(database.CollectionMemoryWriteQueue).InsertOne(ctx, write); err != nil {
		log.Printf("⚠️ [MEMORY] Failed to queue write %s/%s: %v", bucket, key, err)
	}
}

// FlushQueue drains pending queue entries into memory facts. Called by the
// scheduler; one failed entry is marked failed and does not stop the batch.
func (s *MemoryService) FlushQueue(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	queue := s.db.Collection(database.CollectionMemoryWriteQueue)
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(int64(batchSize))

	cursor, err := queue.Find(ctx, bson.M{"status": models.QueuedWritePending}, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to query write queue: %w", err)
	}

	var pending []models.QueuedMemoryWrite
	if err := cursor.All(ctx, &pending); err != nil {
		return 0, fmt.Errorf("failed to decode write queue: %w", err)
	}

	applied := 0
	for _, write := range pending {
		status := models.QueuedWriteApplied
		if err := s.UpsertFact(ctx, write.UserID, write.Bucket, write.Key, write.Value, write.Source, write.Confidence); err != nil {
			log.Printf("⚠️ [MEMORY] Queued write failed for %s/%s: %v", write.Bucket, write.Key, err)
			status = models.QueuedWriteFailed
		} else {
			applied++
		}
		if _, err := queue.UpdateOne(ctx,
			bson.M{"_id": write.ID},
			bson.M{"$set": bson.M{"status": status}}); err != nil && err != mongo.ErrNoDocuments {
			log.Printf("⚠️ [MEMORY] Failed to update queue status: %v", err)
		}
	}
	return applied, nil
}
