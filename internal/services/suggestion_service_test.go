package services

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"aria/internal/models"
)

func assistantMessageWithBlocks(blocks []models.ReplyBlock) models.Message {
	return models.Message{
		Role:       models.RoleAssistant,
		BlocksJSON: MarshalBlocks(blocks),
	}
}

func TestExtractFlattensAndDeduplicates(t *testing.T) {
	conversations := &fakeConversations{messages: []models.Message{
		assistantMessageWithBlocks([]models.ReplyBlock{
			{Kind: models.BlockKindCard, Title: "Luigi's", Subtitle: "Pizza", ActionURL: "https://example.com/luigis"},
		}),
		{Role: models.RoleUser, Content: "more options"},
		assistantMessageWithBlocks([]models.ReplyBlock{
			{Kind: models.BlockKindOptionSet, Items: []models.ReplyBlockItem{
				{Title: "Luigi's", ActionURL: "https://example.com/luigis"}, // duplicate of the card
				{Title: "Sushi Bar", ActionURL: "https://example.com/sushi"},
			}},
		}),
	}}

	service := NewSuggestionService(conversations, &fakeLLM{})
	suggestions, err := service.Extract(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2 after dedup: %+v", len(suggestions), suggestions)
	}
	// Most recent message wins: the option set comes first.
	if suggestions[0].Title != "Luigi's" || suggestions[1].Title != "Sushi Bar" {
		t.Errorf("unexpected order: %+v", suggestions)
	}
	for i, s := range suggestions {
		if s.Index != i+1 {
			t.Errorf("suggestion %d has index %d, indices must be 1-based and sequential", i, s.Index)
		}
	}
}

func TestExtractStopsAtCap(t *testing.T) {
	var blocks []models.ReplyBlock
	for i := 0; i < models.MaxThreadSuggestions+5; i++ {
		blocks = append(blocks, models.ReplyBlock{
			Kind:  models.BlockKindCard,
			Title: fmt.Sprintf("Option %d", i),
		})
	}
	conversations := &fakeConversations{messages: []models.Message{assistantMessageWithBlocks(blocks)}}

	service := NewSuggestionService(conversations, &fakeLLM{})
	suggestions, err := service.Extract(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(suggestions) != models.MaxThreadSuggestions {
		t.Errorf("got %d suggestions, want the cap of %d", len(suggestions), models.MaxThreadSuggestions)
	}
}

func TestResolveDiscardsUnknownIndices(t *testing.T) {
	candidates := []models.ThreadSuggestion{
		{Index: 1, Title: "Luigi's"},
		{Index: 2, Title: "Sushi Bar"},
	}
	llm := &fakeLLM{structuredQueue: []string{
		`{"selected_indices":[2,7,-1],"confidence":0.8,"rationale":"the second one"}`,
	}}

	service := NewSuggestionService(&fakeConversations{}, llm)
	resolution := service.Resolve(context.Background(), &models.LLMConfig{}, "book the second one", candidates)

	if !reflect.DeepEqual(resolution.SelectedIndices, []int{2}) {
		t.Errorf("SelectedIndices = %v, want [2]", resolution.SelectedIndices)
	}
	if resolution.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", resolution.Confidence)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	candidates := []models.ThreadSuggestion{
		{Index: 1, Title: "Luigi's"},
		{Index: 2, Title: "Sushi Bar"},
	}
	scripted := `{"selected_indices":[1],"confidence":0.9,"rationale":"the pizza place"}`
	llm := &fakeLLM{structuredQueue: []string{scripted, scripted}}

	service := NewSuggestionService(&fakeConversations{}, llm)
	first := service.Resolve(context.Background(), &models.LLMConfig{}, "the pizza one", candidates)
	second := service.Resolve(context.Background(), &models.LLMConfig{}, "the pizza one", candidates)

	if !reflect.DeepEqual(first.SelectedIndices, second.SelectedIndices) {
		t.Errorf("resolution not idempotent: %v vs %v", first.SelectedIndices, second.SelectedIndices)
	}
}

func TestResolveFailureYieldsEmptyResolution(t *testing.T) {
	llm := &fakeLLM{structuredErr: fmt.Errorf("provider down")}
	service := NewSuggestionService(&fakeConversations{}, llm)

	resolution := service.Resolve(context.Background(), &models.LLMConfig{}, "book these",
		[]models.ThreadSuggestion{{Index: 1, Title: "Luigi's"}})

	if len(resolution.SelectedIndices) != 0 || resolution.Confidence != 0 {
		t.Errorf("failed resolution must be empty, got %+v", resolution)
	}
}
