package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"aria/internal/models"
)

// SuggestionService recovers previously shown option cards from thread
// history and resolves pronoun references ("these", "option 2") against them.
type SuggestionService struct {
	conversations ConversationStore
	llm           LLMClient
}

// NewSuggestionService creates the suggestion extractor/resolver.
func NewSuggestionService(conversations ConversationStore, llm LLMClient) *SuggestionService {
	return &SuggestionService{conversations: conversations, llm: llm}
}

// Extract walks stored assistant messages newest-first, flattens their reply
// blocks into a uniform suggestion list, de-duplicates by (lowercased title,
// action URL), and stops at the cap. Recency wins over completeness.
func (s *SuggestionService) Extract(ctx context.Context, threadID string) ([]models.ThreadSuggestion, error) {
	messages, err := s.conversations.RecentAssistantMessages(ctx, threadID, models.DefaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load assistant messages: %w", err)
	}

	seen := make(map[string]bool)
	var suggestions []models.ThreadSuggestion

	// Messages arrive oldest-first; walk backwards for recency.
	for i := len(messages) - 1; i >= 0 && len(suggestions) < models.MaxThreadSuggestions; i-- {
		for _, block := range UnmarshalBlocks(messages[i].BlocksJSON) {
			for _, item := range flattenBlock(block) {
				if len(suggestions) >= models.MaxThreadSuggestions {
					break
				}
				dedupKey := strings.ToLower(item.Title) + "|" + item.ActionURL
				if item.Title == "" || seen[dedupKey] {
					continue
				}
				seen[dedupKey] = true
				suggestions = append(suggestions, models.ThreadSuggestion{
					Index:     len(suggestions) + 1,
					Title:     item.Title,
					Subtitle:  item.Subtitle,
					Meta:      item.Meta,
					ActionURL: item.ActionURL,
					Source:    item.Source,
				})
			}
		}
	}
	return suggestions, nil
}

// flattenBlock normalizes single-card, gallery and option_set shapes into a
// flat item list.
func flattenBlock(block models.ReplyBlock) []models.ReplyBlockItem {
	switch block.Kind {
	case models.BlockKindCard:
		return []models.ReplyBlockItem{{
			Title:     block.Title,
			Subtitle:  block.Subtitle,
			Meta:      block.Meta,
			ActionURL: block.ActionURL,
			Source:    block.Source,
		}}
	case models.BlockKindGallery, models.BlockKindOptionSet:
		return block.Items
	default:
		return nil
	}
}

var suggestionResolutionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"selected_indices": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "integer"},
		},
		"confidence": map[string]interface{}{"type": "number"},
		"rationale":  map[string]interface{}{"type": "string"},
	},
	"required":             []string{"selected_indices", "confidence", "rationale"},
	"additionalProperties": false,
}

// Resolve issues one classification call mapping the user's reference onto
// the candidate list. Indices outside the candidate set are discarded. On
// provider failure the resolution is empty with zero confidence; the caller
// decides whether that forces a disambiguation reply.
func (s *SuggestionService) Resolve(ctx context.Context, cfg *models.LLMConfig, message string, candidates []models.ThreadSuggestion) *models.SuggestionResolution {
	if len(candidates) == 0 {
		return &models.SuggestionResolution{}
	}

	var list strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&list, "%d. %s", c.Index, c.Title)
		if c.Subtitle != "" {
			fmt.Fprintf(&list, " — %s", c.Subtitle)
		}
		list.WriteString("\n")
	}

	messages := []map[string]interface{}{
		{
			"role": "system",
			"content": "The user previously saw this numbered list of suggestions:\n\n" + list.String() +
				"\nDecide which suggestions the user's message refers to. " +
				"Return the selected indices, a confidence in [0,1], and a short rationale. " +
				"If the message does not clearly refer to any listed item, return an empty selection with low confidence.",
		},
		{"role": "user", "content": message},
	}

	callCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	var resolution models.SuggestionResolution
	if err := s.llm.StructuredComplete(callCtx, cfg, messages, "suggestion_resolution", suggestionResolutionSchema, &resolution); err != nil {
		log.Printf("⚠️ [SUGGESTIONS] Resolution call failed: %v", err)
		return &models.SuggestionResolution{}
	}

	// Discard indices outside the candidate set.
	valid := make(map[int]bool, len(candidates))
	for _, c := range candidates {
		valid[c.Index] = true
	}
	var kept []int
	for _, idx := range resolution.SelectedIndices {
		if valid[idx] {
			kept = append(kept, idx)
		}
	}
	resolution.SelectedIndices = kept

	if resolution.Confidence < 0 {
		resolution.Confidence = 0
	}
	if resolution.Confidence > 1 {
		resolution.Confidence = 1
	}
	return &resolution
}
