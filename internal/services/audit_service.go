package services

import (
	"context"
	"time"

	"aria/internal/database"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

// AuditService appends structured trace records after each mode decision and
// tool outcome. Writes are fire-and-forget: a failed audit write is logged and
// dropped, never surfaced to the reply path.
type AuditService struct {
	db     *database.MongoDB
	logger *logrus.Logger
}

// NewAuditService creates the audit side-channel.
func NewAuditService(db *database.MongoDB) *AuditService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	return &AuditService{db: db, logger: logger}
}

// AuditEvent is one trace record.
type AuditEvent struct {
	Kind       string                 // "mode_decision" | "tool_call" | "write_verification"
	UserID     string
	ThreadID   string
	ResponseID string
	Detail     map[string]interface{}
}

// Record emits the event to the structured log and persists it asynchronously.
func (s *AuditService) Record(event AuditEvent) {
	fields := logrus.Fields{
		"kind":        event.Kind,
		"user_id":     event.UserID,
		"thread_id":   event.ThreadID,
		"response_id": event.ResponseID,
	}
	for k, v := range event.Detail {
		fields[k] = v
	}
	s.logger.WithFields(fields).Info("audit")

	if s.db == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		doc := bson.M{
			"kind":       event.Kind,
			"userId":     event.UserID,
			"threadId":   event.ThreadID,
			"responseId": event.ResponseID,
			"detail":     event.Detail,
			"createdAt":  time.Now(),
		}
		if _, err := s.db.Collection(database.CollectionAuditLog).InsertOne(ctx, doc); err != nil {
			s.logger.WithError(err).Warn("audit write failed")
		}
	}()
}

// ModeDecision records which mode handled a turn.
func (s *AuditService) ModeDecision(userID, threadID, responseID, mode string, extractionOK bool) {
	s.Record(AuditEvent{
		Kind:       "mode_decision",
		UserID:     userID,
		ThreadID:   threadID,
		ResponseID: responseID,
		Detail: map[string]interface{}{
			"mode":          mode,
			"extraction_ok": extractionOK,
		},
	})
}

// ToolOutcome records one tool execution result.
func (s *AuditService) ToolOutcome(userID, threadID, responseID, tool, outcome string) {
	s.Record(AuditEvent{
		Kind:       "tool_call",
		UserID:     userID,
		ThreadID:   threadID,
		ResponseID: responseID,
		Detail: map[string]interface{}{
			"tool":    tool,
			"outcome": outcome,
		},
	})
}
