package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"aria/internal/models"
	"aria/internal/tools"
)

func newTestToolLoop(llm *fakeLLM, provider *fakeCalendar) *ToolLoopService {
	registry := tools.NewRegistry()
	tools.RegisterCalendarTools(registry, provider)
	resolver := NewCalendarResolver(provider, testPolicy())
	return NewToolLoopService(llm, registry, provider, resolver, testPolicy(), NewAuditService(nil))
}

func createToolCall(title string, start time.Time) ToolCall {
	return ToolCall{
		ID:   "tc-1",
		Name: tools.ToolCalendarCreateEvent,
		Arguments: fmt.Sprintf(`{"calendar_id":"cal-1","title":%q,"start":%q,"end":%q}`,
			title, start.Format(time.RFC3339), start.Add(2*time.Hour).Format(time.RFC3339)),
	}
}

func baseInput() *ToolLoopInput {
	return &ToolLoopInput{
		Config:               &models.LLMConfig{Model: "test-model"},
		SystemPrompt:         "system",
		UserMessage:          "add pizza night friday 7pm",
		RequireCalendarWrite: true,
		ReferenceUnambiguous: true,
		UserID:               "u1",
		ThreadID:             "t1",
		ResponseID:           "r1",
	}
}

func TestToolLoopStrongDuplicateUpdatesInsteadOfCreating(t *testing.T) {
	start := time.Date(2026, 9, 4, 19, 0, 0, 0, time.UTC)
	provider := newFakeCalendar()
	provider.addEvent(models.CalendarEvent{ID: "existing", Title: "Pizza Night", Start: start, End: start.Add(2 * time.Hour)})

	llm := &fakeLLM{
		toolQueue:     []*LLMResult{{ToolCalls: []ToolCall{createToolCall("Pizza Night", start)}}},
		completeReply: "Updated Pizza Night on Friday at 19:00.",
	}
	loop := newTestToolLoop(llm, provider)

	result := loop.Run(context.Background(), baseInput())

	if provider.created != 0 {
		t.Errorf("created %d events, a dominant duplicate must never create", provider.created)
	}
	if provider.updated != 1 {
		t.Errorf("updated %d events, want 1", provider.updated)
	}
	if !result.WriteExecuted || !result.WriteVerified {
		t.Errorf("WriteExecuted=%v WriteVerified=%v, want both true", result.WriteExecuted, result.WriteVerified)
	}
	if result.WriteOperation != "updated" {
		t.Errorf("WriteOperation = %q, want updated", result.WriteOperation)
	}
	if result.Reply != "Updated Pizza Night on Friday at 19:00." {
		t.Errorf("Reply = %q, want the synthesized confirmation", result.Reply)
	}
}

func TestToolLoopPlausibleDuplicateAsksWithoutWriting(t *testing.T) {
	start := time.Date(2026, 9, 4, 19, 0, 0, 0, time.UTC)
	provider := newFakeCalendar()
	// Same title but three hours off: scores in the confirm band, below the
	// silent-update threshold.
	provider.addEvent(models.CalendarEvent{ID: "existing", Title: "Pizza Night", Start: start.Add(-3 * time.Hour), End: start.Add(-time.Hour)})

	llm := &fakeLLM{
		toolQueue: []*LLMResult{{ToolCalls: []ToolCall{createToolCall("Pizza Night", start)}}},
	}
	loop := newTestToolLoop(llm, provider)

	result := loop.Run(context.Background(), baseInput())

	if !result.ConfirmationRequired {
		t.Fatal("expected a confirmation-required result")
	}
	if provider.created != 0 || provider.updated != 0 {
		t.Errorf("created=%d updated=%d, a plausible duplicate must perform no write", provider.created, provider.updated)
	}
	if !strings.Contains(result.Reply, "already have") {
		t.Errorf("Reply = %q, want a disambiguation prompt naming the duplicate", result.Reply)
	}
}

func TestToolLoopCleanCreateIsVerified(t *testing.T) {
	start := time.Date(2026, 9, 4, 19, 0, 0, 0, time.UTC)
	provider := newFakeCalendar()

	llm := &fakeLLM{
		toolQueue:     []*LLMResult{{ToolCalls: []ToolCall{createToolCall("Pizza Night", start)}}},
		completeReply: "Added Pizza Night on Friday at 19:00.",
	}
	loop := newTestToolLoop(llm, provider)

	result := loop.Run(context.Background(), baseInput())

	if provider.created != 1 {
		t.Errorf("created %d events, want 1", provider.created)
	}
	if result.WriteOperation != "added" {
		t.Errorf("WriteOperation = %q, want added", result.WriteOperation)
	}
	if !result.WriteVerified {
		t.Error("a readable created event must verify")
	}
}

func TestToolLoopUnverifiedWriteNeverClaimsSuccess(t *testing.T) {
	start := time.Date(2026, 9, 4, 19, 0, 0, 0, time.UTC)
	provider := newFakeCalendar()
	provider.failVerify = true

	llm := &fakeLLM{
		toolQueue:     []*LLMResult{{ToolCalls: []ToolCall{createToolCall("Pizza Night", start)}}},
		completeReply: "Added Pizza Night!",
	}
	loop := newTestToolLoop(llm, provider)

	result := loop.Run(context.Background(), baseInput())

	if result.WriteVerified {
		t.Fatal("verification must fail when the read-back finds nothing")
	}
	if result.Reply != replyWriteUnverified {
		t.Errorf("Reply = %q, want the deterministic unverified fallback", result.Reply)
	}
	if strings.Contains(strings.ToLower(result.Reply), "added") {
		t.Errorf("Reply %q uses success language for an unverified write", result.Reply)
	}
}

func TestToolLoopRequiredWriteNeverExecutedFallsBack(t *testing.T) {
	provider := newFakeCalendar()
	// The model keeps replying with text and never calls a tool.
	llm := &fakeLLM{completeReply: "All done, added it!"}
	loop := newTestToolLoop(llm, provider)

	result := loop.Run(context.Background(), baseInput())

	if result.WriteExecuted {
		t.Fatal("no write should have executed")
	}
	if result.Reply != replyNoToolEvidence {
		t.Errorf("Reply = %q, want the no-tool-evidence fallback", result.Reply)
	}
	// Enforcement retries: the first call plus MaxRounds re-asks.
	if llm.toolCallsSeen != testPolicy().ToolLoop.MaxRounds+1 {
		t.Errorf("model called %d times, want %d", llm.toolCallsSeen, testPolicy().ToolLoop.MaxRounds+1)
	}
}

func TestToolLoopSynthesisSeesToolResultsAfterToolOnlyFinalRound(t *testing.T) {
	provider := newFakeCalendar()

	// The model spends every round on tool calls and never produces text, so
	// synthesis must carry the tool results itself.
	listCall := func(id string) *LLMResult {
		return &LLMResult{ToolCalls: []ToolCall{{ID: id, Name: tools.ToolCalendarListCalendars, Arguments: `{}`}}}
	}
	var queue []*LLMResult
	for i := 0; i <= testPolicy().ToolLoop.MaxRounds; i++ {
		queue = append(queue, listCall(fmt.Sprintf("tc-%d", i)))
	}
	llm := &fakeLLM{
		toolQueue:     queue,
		completeReply: "You have one calendar: Personal.",
	}
	loop := newTestToolLoop(llm, provider)

	input := baseInput()
	input.RequireCalendarWrite = false
	result := loop.Run(context.Background(), input)

	if result.Reply != "You have one calendar: Personal." {
		t.Errorf("Reply = %q, want the synthesized answer", result.Reply)
	}
	if len(llm.completeMessages) != 1 {
		t.Fatalf("synthesis called %d times, want 1", len(llm.completeMessages))
	}
	var resultsInContext bool
	for _, msg := range llm.completeMessages[0] {
		content, _ := msg["content"].(string)
		if strings.Contains(content, "Verified tool results") && strings.Contains(content, "Personal") {
			resultsInContext = true
		}
	}
	if !resultsInContext {
		t.Error("synthesis context carries no tool results to summarize")
	}
}

func TestToolLoopUnknownToolBecomesStructuredError(t *testing.T) {
	provider := newFakeCalendar()
	llm := &fakeLLM{
		toolQueue: []*LLMResult{
			{ToolCalls: []ToolCall{{ID: "tc-1", Name: "bogus_tool", Arguments: `{}`}}},
			{Content: "Sorry, I could not do that."},
		},
		completeReply: "Nothing was changed.",
	}
	loop := newTestToolLoop(llm, provider)

	input := baseInput()
	input.RequireCalendarWrite = false
	result := loop.Run(context.Background(), input)

	if result.Reply == "" {
		t.Fatal("an unknown tool must not break the turn")
	}
	if llm.toolCallsSeen != 2 {
		t.Errorf("model called %d times, want 2 (error fed back, loop continued)", llm.toolCallsSeen)
	}
}
