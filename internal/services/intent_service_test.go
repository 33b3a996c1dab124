package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"aria/internal/models"
)

// primaryJSON builds a scripted primary-extraction response with the given
// fields set and everything else at its zero value.
func primaryJSON(overrides map[string]interface{}) string {
	payload := map[string]interface{}{}
	for k, v := range overrides {
		payload[k] = v
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestClassifyFallsBackToConservativeDefault(t *testing.T) {
	llm := &fakeLLM{structuredErr: fmt.Errorf("provider timeout")}
	service := NewIntentService(llm, &fakeMemory{})

	record := service.Classify(context.Background(), &models.LLMConfig{}, "u1", "plan something fun", "")

	if record.ExtractionOK {
		t.Error("ExtractionOK must be false when the primary pass fails")
	}
	if record.HasActionableSignal() {
		t.Errorf("conservative default must carry no actionable signal: %+v", record)
	}
	if record.IsCalendarWrite || record.IsActionCommand {
		t.Error("conservative default must never enable a write")
	}
}

func TestRecallGuardForcesWriteFlagsOff(t *testing.T) {
	llm := &fakeLLM{structuredQueue: []string{
		primaryJSON(map[string]interface{}{
			"is_action_command": true,
			"is_calendar_write": true,
		}),
	}}
	service := NewIntentService(llm, &fakeMemory{})

	record := service.Classify(context.Background(), &models.LLMConfig{}, "u1",
		"what did I add to my calendar last week?", "")

	if record.IsCalendarWrite || record.IsActionCommand {
		t.Errorf("recall phrasing must force write flags off, got write=%v action=%v",
			record.IsCalendarWrite, record.IsActionCommand)
	}
}

func TestWriteGuardEnablingRequiresPositiveConfirmation(t *testing.T) {
	t.Run("positive confirmation flips write on", func(t *testing.T) {
		llm := &fakeLLM{structuredQueue: []string{
			primaryJSON(map[string]interface{}{"is_calendar_query": true}),
			`{"answer":true}`,
		}}
		service := NewIntentService(llm, &fakeMemory{})

		record := service.Classify(context.Background(), &models.LLMConfig{}, "u1",
			"move my dentist appointment to friday", "")

		if !record.IsCalendarWrite {
			t.Error("a confirmed write guard must flip the write flag on")
		}
		if !record.IsActionCommand {
			t.Error("an enabled write implies an action command")
		}
	})

	t.Run("failed rescue leaves the record unchanged", func(t *testing.T) {
		llm := &fakeLLM{structuredQueue: []string{
			primaryJSON(map[string]interface{}{"is_calendar_query": true}),
			// No scripted rescue responses: every guard call fails.
		}}
		service := NewIntentService(llm, &fakeMemory{})

		record := service.Classify(context.Background(), &models.LLMConfig{}, "u1",
			"move my dentist appointment to friday", "")

		if record.IsCalendarWrite {
			t.Error("a failed enabling rescue must never set the write flag")
		}
		if !record.IsCalendarQuery {
			t.Error("a failed disabling rescue must be ignored silently")
		}
	})
}

func TestProactiveGuardSuppressesGenericPlanning(t *testing.T) {
	llm := &fakeLLM{structuredQueue: []string{
		primaryJSON(map[string]interface{}{"is_proactive_check": true, "is_upcoming_query": true}),
		`{"user_name":"","user_city":"","home_area":""}`, // profile rescue: nothing stated
		`{"answer":false}`, // write guard: not a write
		`{"answer":false}`, // proactive guard: generic planning talk
	}}
	service := NewIntentService(llm, &fakeMemory{})

	record := service.Classify(context.Background(), &models.LLMConfig{}, "u1",
		"someday I should plan a trip", "")

	if record.IsProactiveCheck || record.IsUpcomingQuery {
		t.Errorf("proactive guard should have cleared the flags, got proactive=%v upcoming=%v",
			record.IsProactiveCheck, record.IsUpcomingQuery)
	}
}

func TestClassifyQueuesExtractedFacts(t *testing.T) {
	llm := &fakeLLM{structuredQueue: []string{
		primaryJSON(map[string]interface{}{
			"is_profile_capture": true,
			"user_name":          "Sam",
			"user_city":          "Berlin",
			"feedback_subject":   "Ramen Place",
			"feedback_sentiment": "negative",
		}),
	}}
	memory := &fakeMemory{}
	service := NewIntentService(llm, memory)

	service.Classify(context.Background(), &models.LLMConfig{}, "u1",
		"I'm Sam, I live in Berlin, and that ramen place was awful", "")

	want := []string{
		"profile/name=Sam",
		"profile/city=Berlin",
		"preference/dislike:ramen place=Ramen Place",
	}
	for _, w := range want {
		found := false
		for _, got := range memory.queued {
			if got == w {
				found = true
			}
		}
		if !found {
			t.Errorf("queued writes %v missing %q", memory.queued, w)
		}
	}
}

func TestCalendarAnchorRescueRunsOnDiscoveryMiss(t *testing.T) {
	llm := &fakeLLM{structuredQueue: []string{
		primaryJSON(map[string]interface{}{"is_discovery": true, "wants_suggestions": true}),
		`{"answer":true}`,  // wants the calendar consulted
		`{"answer":false}`, // not an upcoming-events question
		`{"answer":false}`, // write guard: no write
		`{"answer":true}`,  // proactive guard confirms
	}}
	service := NewIntentService(llm, &fakeMemory{})

	record := service.Classify(context.Background(), &models.LLMConfig{}, "u1",
		"I'm bored this weekend, find me something that fits my schedule", "")

	if !record.IsProactiveCheck {
		t.Error("calendar-anchor rescue should have recovered the proactive-check flag")
	}
	if record.IsUpcomingQuery {
		t.Error("upcoming-query should remain off when its rescue answers no")
	}
}
