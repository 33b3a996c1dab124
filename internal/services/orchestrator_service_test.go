package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"aria/internal/models"
	"aria/internal/tools"

	"github.com/patrickmn/go-cache"
)

func TestSelectMode(t *testing.T) {
	policy := testPolicy()

	tests := []struct {
		name    string
		intent  models.IntentRecord
		session SessionSnapshot
		want    models.Mode
	}{
		{
			name:   "extraction failure wins over everything",
			intent: models.IntentRecord{ExtractionOK: false, IsCalendarWrite: true, IsGreeting: true},
			want:   models.ModeNeedsClarification,
		},
		{
			name:   "meta conversation without action",
			intent: models.IntentRecord{ExtractionOK: true, IsMetaConversation: true},
			want:   models.ModeInfo,
		},
		{
			name:    "nearby request with unknown home area asks",
			intent:  models.IntentRecord{ExtractionOK: true, WantsNearby: true, IsDiscovery: true},
			session: SessionSnapshot{HomeAreaKnown: false},
			want:    models.ModeNeedsClarification,
		},
		{
			name:    "recent clarifier breaks the loop",
			intent:  models.IntentRecord{ExtractionOK: true, WantsNearby: true, IsDiscovery: true},
			session: SessionSnapshot{HomeAreaKnown: false, ClarifierRecentlyAsked: true},
			want:    models.ModeRecommendation,
		},
		{
			name:   "low confidence autopilot op asks first",
			intent: models.IntentRecord{ExtractionOK: true, AutopilotOp: models.AutopilotOpDelete, AutopilotOpConfidence: 0.3},
			want:   models.ModeNeedsClarification,
		},
		{
			name:   "confident autopilot op executes",
			intent: models.IntentRecord{ExtractionOK: true, AutopilotOp: models.AutopilotOpCreate, AutopilotOpConfidence: 0.9},
			want:   models.ModeAutopilotOps,
		},
		{
			name:   "capability query",
			intent: models.IntentRecord{ExtractionOK: true, IsCapabilityQuery: true},
			want:   models.ModeCapability,
		},
		{
			name:   "pack creation overrides capability",
			intent: models.IntentRecord{ExtractionOK: true, IsCapabilityQuery: true, IsPackCreation: true},
			want:   models.ModePackCreation,
		},
		{
			name:   "plain greeting is smalltalk",
			intent: models.IntentRecord{ExtractionOK: true, IsGreeting: true, IsSmalltalk: true},
			want:   models.ModeSmalltalk,
		},
		{
			name:   "greeting with a write request is not smalltalk",
			intent: models.IntentRecord{ExtractionOK: true, IsGreeting: true, IsCalendarWrite: true},
			want:   models.ModeRecommendation,
		},
		{
			name:   "calendar query without write",
			intent: models.IntentRecord{ExtractionOK: true, IsCalendarQuery: true},
			want:   models.ModeCalendarIntent,
		},
		{
			name:   "calendar query with action command falls through",
			intent: models.IntentRecord{ExtractionOK: true, IsCalendarQuery: true, IsActionCommand: true},
			want:   models.ModeRecommendation,
		},
		{
			name:   "research signal",
			intent: models.IntentRecord{ExtractionOK: true, IsResearch: true},
			want:   models.ModeResearch,
		},
		{
			name:   "location info without action",
			intent: models.IntentRecord{ExtractionOK: true, IsLocationInfo: true},
			want:   models.ModeInfo,
		},
		{
			name:   "default is recommendation",
			intent: models.IntentRecord{ExtractionOK: true, IsDiscovery: true, WantsSuggestions: true},
			want:   models.ModeRecommendation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectMode(&tt.intent, tt.session, policy)
			if got != tt.want {
				t.Errorf("SelectMode = %q, want %q", got, tt.want)
			}
			// Determinism: the same inputs must pick the same mode again.
			if again := SelectMode(&tt.intent, tt.session, policy); again != got {
				t.Errorf("SelectMode not deterministic: %q then %q", got, again)
			}
		})
	}
}

func newTestProviders() *ProviderService {
	return &ProviderService{
		providers: []models.Provider{{
			ID: 1, Name: "test", BaseURL: "http://localhost", DefaultModel: "test-model", Enabled: true,
		}},
		cache: cache.New(time.Minute, time.Minute),
	}
}

func newTestOrchestrator(llm *fakeLLM, provider *fakeCalendar, conversations *fakeConversations) *OrchestratorService {
	policy := testPolicy()
	registry := tools.NewRegistry()
	tools.RegisterCalendarTools(registry, provider)
	resolver := NewCalendarResolver(provider, policy)
	audit := NewAuditService(nil)
	memory := &fakeMemory{}
	toolLoop := NewToolLoopService(llm, registry, provider, resolver, policy, audit)

	return NewOrchestratorService(
		newTestProviders(), llm, NewIntentService(llm, memory),
		conversations, memory, NewSuggestionService(conversations, llm),
		toolLoop, NewPromptComposer(), NewEnrichmentService(),
		NewAutopilotService(nil), &RedisService{}, policy, audit, 20)
}

func TestHandleTurnGreetingIsSmalltalk(t *testing.T) {
	llm := &fakeLLM{
		structuredQueue: []string{primaryJSON(map[string]interface{}{
			"is_greeting":  true,
			"is_smalltalk": true,
		})},
		completeReply: "Hey! How's your day going?",
	}
	conversations := &fakeConversations{}
	orchestrator := newTestOrchestrator(llm, newFakeCalendar(), conversations)

	response := orchestrator.HandleTurn(context.Background(), "u1", &models.ChatRequest{Message: "hi"})

	if response.Reply != "Hey! How's your day going?" {
		t.Errorf("Reply = %q", response.Reply)
	}
	if len(response.Blocks) != 0 {
		t.Errorf("smalltalk must carry no option cards, got %d blocks", len(response.Blocks))
	}
	if strings.Contains(strings.ToLower(response.Reply), "plan") {
		t.Errorf("smalltalk reply %q should not push planning", response.Reply)
	}
	if llm.toolCallsSeen != 0 {
		t.Errorf("smalltalk must not enter the tool loop, saw %d tool-capable calls", llm.toolCallsSeen)
	}
	if response.ThreadID == "" || response.MessageID == "" || response.ResponseID == "" {
		t.Errorf("response identifiers missing: %+v", response)
	}
}

func TestHandleTurnExtractionFailureYieldsSafeClarification(t *testing.T) {
	llm := &fakeLLM{structuredErr: context.DeadlineExceeded}
	conversations := &fakeConversations{}
	provider := newFakeCalendar()
	orchestrator := newTestOrchestrator(llm, provider, conversations)

	response := orchestrator.HandleTurn(context.Background(), "u1", &models.ChatRequest{Message: "asdf qwerty"})

	if response.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0 for a failed extraction", response.Confidence)
	}
	if len(response.Blocks) != 0 {
		t.Error("a safe clarification must carry no cards")
	}
	if provider.created != 0 || provider.updated != 0 || provider.deleted != 0 {
		t.Error("a failed extraction must cause no calendar side effects")
	}
	if response.Reply == "" {
		t.Error("even a failed turn must return a reply")
	}
}

func TestHandleTurnAmbiguousWriteReferenceDisambiguates(t *testing.T) {
	llm := &fakeLLM{
		structuredQueue: []string{primaryJSON(map[string]interface{}{
			"is_action_command":      true,
			"is_calendar_write":      true,
			"references_suggestions": true,
		})},
	}
	conversations := &fakeConversations{} // no prior suggestions in the thread
	provider := newFakeCalendar()
	orchestrator := newTestOrchestrator(llm, provider, conversations)

	response := orchestrator.HandleTurn(context.Background(), "u1",
		&models.ChatRequest{Message: "add these to my calendar"})

	if provider.created != 0 || provider.updated != 0 {
		t.Error("an unresolved reference must cause no tool call")
	}
	if llm.toolCallsSeen != 0 {
		t.Errorf("tool loop ran %d times, want 0", llm.toolCallsSeen)
	}
	if !strings.Contains(response.Reply, "which suggestion") && !strings.Contains(response.Reply, "which of these") {
		t.Errorf("Reply = %q, want a disambiguation question", response.Reply)
	}
}
