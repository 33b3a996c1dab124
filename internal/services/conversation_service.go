package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aria/internal/database"
	"aria/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationStore is the thread/message persistence collaborator.
type ConversationStore interface {
	EnsureThread(ctx context.Context, userID, threadID string) (*models.Thread, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	RecentMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error)
	RecentAssistantMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error)
}

// ConversationService is the MongoDB-backed conversation store.
type ConversationService struct {
	db *database.MongoDB
}

// NewConversationService creates the conversation store.
func NewConversationService(db *database.MongoDB) *ConversationService {
	return &ConversationService{db: db}
}

// EnsureThread returns the thread with the given external ID, creating it
// when missing. An empty threadID starts a fresh thread.
func (s *ConversationService) EnsureThread(ctx context.Context, userID, threadID string) (*models.Thread, error) {
	threads := s.db.Collection(database.CollectionThreads)

	if threadID != "" {
		var thread models.Thread
		err := threads.FindOne(ctx, bson.M{"threadId": threadID, "userId": userID}).Decode(&thread)
		if err == nil {
			_, _ = threads.UpdateOne(ctx,
				bson.M{"threadId": threadID},
				bson.M{"$set": bson.M{"lastActiveAt": time.Now()}})
			return &thread, nil
		}
		if err != mongo.ErrNoDocuments {
			return nil, fmt.Errorf("failed to load thread: %w", err)
		}
	}

	now := time.Now()
	thread := &models.Thread{
		ThreadID:     uuid.NewString(),
		UserID:       userID,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if threadID != "" {
		// Honor a caller-supplied ID so clients can pre-generate thread IDs.
		thread.ThreadID = threadID
	}

	if _, err := threads.InsertOne(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return thread, nil
}

// AppendMessage stores one turn. Assistant messages carry their reply blocks
// serialized in BlocksJSON for later suggestion extraction.
func (s *ConversationService) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	if _, err := s.db.Collection(database.CollectionMessages).InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, _ = s.db.Collection(database.CollectionThreads).UpdateOne(ctx,
		bson.M{"threadId": msg.ThreadID},
		bson.M{"$set": bson.M{"lastActiveAt": time.Now()}})
	return nil
}

// RecentMessages returns up to limit messages for a thread in chronological
// order (oldest first), ready to replay into the model context.
func (s *ConversationService) RecentMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error) {
	return s.recent(ctx, bson.M{"threadId": threadID}, limit)
}

// RecentAssistantMessages returns up to limit assistant messages for a thread,
// chronological order. Suggestion extraction walks these newest-first.
func (s *ConversationService) RecentAssistantMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error) {
	return s.recent(ctx, bson.M{"threadId": threadID, "role": models.RoleAssistant}, limit)
}

// ThreadMessages returns recent messages for a thread the user owns. Unknown
// or foreign threads read as not found.
func (s *ConversationService) ThreadMessages(ctx context.Context, userID, threadID string, limit int) ([]models.Message, error) {
	var thread models.Thread
	err := s.db.Collection(database.CollectionThreads).
		FindOne(ctx, bson.M{"threadId": threadID, "userId": userID}).Decode(&thread)
	if err == mongo.ErrNoDocuments {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	return s.recent(ctx, bson.M{"threadId": threadID}, limit)
}

// ErrThreadNotFound reports a thread lookup miss for the caller's user.
var ErrThreadNotFound = errors.New("thread not found")

func (s *ConversationService) recent(ctx context.Context, filter bson.M, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = models.DefaultHistoryLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.db.Collection(database.CollectionMessages).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarshalBlocks serializes reply blocks for storage on a message.
func MarshalBlocks(blocks []models.ReplyBlock) string {
	if len(blocks) == 0 {
		return ""
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return ""
	}
	return string(data)
}

// UnmarshalBlocks reads stored reply blocks back. Malformed data reads as no
// blocks rather than failing the caller.
func UnmarshalBlocks(blocksJSON string) []models.ReplyBlock {
	if blocksJSON == "" {
		return nil
	}
	var blocks []models.ReplyBlock
	if err := json.Unmarshal([]byte(blocksJSON), &blocks); err != nil {
		return nil
	}
	return blocks
}
