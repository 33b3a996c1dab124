package services

import (
	"context"
	"fmt"
	"time"

	"aria/internal/database"
	"aria/internal/models"
	"aria/internal/textutil"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AutopilotService manages standing instructions ("every Friday suggest
// dinner spots") and named suggestion packs.
type AutopilotService struct {
	db         *database.MongoDB
	cronParser cron.Parser
}

// NewAutopilotService creates the rule/pack store.
func NewAutopilotService(db *database.MongoDB) *AutopilotService {
	return &AutopilotService{
		db:         db,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// ValidateSchedule checks a cron expression. Empty schedules are allowed:
// such rules fire only when the user asks.
func (s *AutopilotService) ValidateSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := s.cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// CreateRule stores a new rule after validating its schedule.
func (s *AutopilotService) CreateRule(ctx context.Context, userID string, payload *models.AutopilotPayload) (*models.AutopilotRule, error) {
	if payload == nil || payload.Description == "" {
		return nil, fmt.Errorf("rule description is required")
	}
	if err := s.ValidateSchedule(payload.Schedule); err != nil {
		return nil, err
	}

	now := time.Now()
	rule := &models.AutopilotRule{
		UserID:      userID,
		Description: payload.Description,
		Schedule:    payload.Schedule,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.Collection(database.CollectionAutopilotRules).InsertOne(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return rule, nil
}

// ListRules returns the user's rules, most recently updated first.
func (s *AutopilotService) ListRules(ctx context.Context, userID string) ([]models.AutopilotRule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := s.db.Collection(database.CollectionAutopilotRules).Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []models.AutopilotRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	return rules, nil
}

// FindRule matches a rule by the user's loose reference to it, using the
// same fuzzy similarity as calendar-name resolution.
func (s *AutopilotService) FindRule(ctx context.Context, userID, ruleRef string) (*models.AutopilotRule, error) {
	rules, err := s.ListRules(ctx, userID)
	if err != nil {
		return nil, err
	}

	var best *models.AutopilotRule
	bestScore := 0.0
	for i := range rules {
		score := 0.45*textutil.StringSimilarity(ruleRef, rules[i].Description) +
			0.55*textutil.TokenSimilarity(ruleRef, rules[i].Description)
		if score > bestScore {
			bestScore = score
			best = &rules[i]
		}
	}
	if best == nil || bestScore < 0.4 {
		return nil, fmt.Errorf("no rule matching %q", ruleRef)
	}
	return best, nil
}

// DeleteRule removes a rule by reference.
func (s *AutopilotService) DeleteRule(ctx context.Context, userID, ruleRef string) (*models.AutopilotRule, error) {
	rule, err := s.FindRule(ctx, userID, ruleRef)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Collection(database.CollectionAutopilotRules).DeleteOne(ctx, bson.M{"_id": rule.ID}); err != nil {
		return nil, fmt.Errorf("failed to delete rule: %w", err)
	}
	return rule, nil
}

// SetRulePaused pauses or resumes a rule by reference.
func (s *AutopilotService) SetRulePaused(ctx context.Context, userID, ruleRef string, paused bool) (*models.AutopilotRule, error) {
	rule, err := s.FindRule(ctx, userID, ruleRef)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Collection(database.CollectionAutopilotRules).UpdateOne(ctx,
		bson.M{"_id": rule.ID},
		bson.M{"$set": bson.M{"paused": paused, "updatedAt": time.Now()}})
	if err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	rule.Paused = paused
	return rule, nil
}

// CreatePack snapshots resolved suggestions under a name. An empty name is
// derived from the first suggestion's title.
func (s *AutopilotService) CreatePack(ctx context.Context, userID, threadID, name string, items []models.ThreadSuggestion) (*models.SuggestionPack, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("nothing to save into a pack")
	}
	if name == "" {
		name = derivePackName(items)
	}

	pack := &models.SuggestionPack{
		UserID:    userID,
		Name:      name,
		Items:     items,
		ThreadID:  threadID,
		CreatedAt: time.Now(),
	}
	if _, err := s.db.Collection(database.CollectionSuggestionPacks).InsertOne(ctx, pack); err != nil {
		return nil, fmt.Errorf("failed to create pack: %w", err)
	}
	return pack, nil
}

func derivePackName(items []models.ThreadSuggestion) string {
	if len(items) == 0 || items[0].Title == "" {
		return "Saved suggestions"
	}
	if len(items) == 1 {
		return items[0].Title
	}
	return fmt.Sprintf("%s + %d more", items[0].Title, len(items)-1)
}
