package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"aria/internal/calendar"
	"aria/internal/config"
	"aria/internal/models"
	"aria/internal/tools"
)

// ToolLoopService drives bounded rounds of model↔tool interaction. Calendar
// mutations get special handling: duplicate detection before a create,
// read-back verification after every write, and deterministic reply overrides
// so the model can never claim a write it did not perform or that could not
// be confirmed.
type ToolLoopService struct {
	llm      LLMClient
	registry *tools.Registry
	provider calendar.Provider
	resolver *CalendarResolver
	policy   *config.Policy
	audit    *AuditService
}

// NewToolLoopService creates the loop controller.
func NewToolLoopService(llm LLMClient, registry *tools.Registry, provider calendar.Provider, resolver *CalendarResolver, policy *config.Policy, audit *AuditService) *ToolLoopService {
	return &ToolLoopService{
		llm:      llm,
		registry: registry,
		provider: provider,
		resolver: resolver,
		policy:   policy,
		audit:    audit,
	}
}

// ToolLoopInput is one turn's worth of context for the loop.
type ToolLoopInput struct {
	Config       *models.LLMConfig
	SystemPrompt string
	History      []models.Message
	UserMessage  string

	// RequireCalendarWrite makes the loop refuse a "done" reply until a
	// calendar mutation actually executed.
	RequireCalendarWrite bool
	// ReferenceUnambiguous reports whether the user's pointer at prior
	// suggestions resolved confidently; silent duplicate updates require it.
	ReferenceUnambiguous bool

	UserID     string
	ThreadID   string
	ResponseID string
}

// ToolLoopResult is the loop's outcome.
type ToolLoopResult struct {
	Reply                string
	ToolsUsed            bool
	WriteExecuted        bool
	WriteVerified        bool
	WriteOperation       string // "added" | "updated" | "removed"
	ConfirmationRequired bool
}

// Deterministic fallback sentences. Synthesis output is never allowed to
// replace these when a required write is missing or unverified.
const (
	replyWriteNotApplied = "I couldn't find or apply that calendar change — nothing on your calendar was modified. Could you tell me the event name and time again?"
	replyWriteUnverified = "I made the change, but I can't confirm it took effect on your calendar. Please double-check before relying on it."
	replyNoToolEvidence  = "I wasn't able to complete that calendar change — nothing was modified."
)

const enforcementMessage = "You have not performed the calendar change the user asked for. Do not describe or promise the change: call the calendar tools now to perform it."

// Run executes the loop. It always returns a usable reply.
func (s *ToolLoopService) Run(ctx context.Context, input *ToolLoopInput) *ToolLoopResult {
	result := &ToolLoopResult{WriteVerified: true}

	messages := []map[string]interface{}{
		{"role": "system", "content": input.SystemPrompt},
	}
	for _, msg := range input.History {
		messages = append(messages, map[string]interface{}{"role": msg.Role, "content": msg.Content})
	}
	messages = append(messages, map[string]interface{}{"role": "user", "content": input.UserMessage})

	specs := s.registry.Specs()
	maxRounds := s.policy.ToolLoop.MaxRounds
	var lastContent string
	var toolNotes []string

	for round := 0; round <= maxRounds; round++ {
		response, err := s.llm.CompleteWithTools(ctx, input.Config, messages, specs)
		if err != nil {
			log.Printf("⚠️ [TOOLLOOP] Model call failed in round %d: %v", round, err)
			break
		}

		if len(response.ToolCalls) == 0 {
			if input.RequireCalendarWrite && !result.WriteExecuted && round < maxRounds {
				// The model replied without doing the work. Inject an
				// enforcement hint and try again; the guard below is the
				// actual safety mechanism.
				messages = append(messages, map[string]interface{}{"role": "system", "content": enforcementMessage})
				continue
			}
			lastContent = response.Content
			break
		}

		result.ToolsUsed = true
		assistantMsg := map[string]interface{}{
			"role":    "assistant",
			"content": response.Content,
		}
		var toolCallSpecs []map[string]interface{}
		for _, tc := range response.ToolCalls {
			toolCallSpecs = append(toolCallSpecs, map[string]interface{}{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]interface{}{
					"name":      tc.Name,
					"arguments": tc.Arguments,
				},
			})
		}
		assistantMsg["tool_calls"] = toolCallSpecs
		messages = append(messages, assistantMsg)

		for _, tc := range response.ToolCalls {
			output := s.executeToolCall(ctx, input, result, tc)
			messages = append(messages, map[string]interface{}{
				"role":         "tool",
				"tool_call_id": tc.ID,
				"content":      output,
			})
			toolNotes = append(toolNotes, tc.Name+": "+output)
			if result.ConfirmationRequired {
				// A plausible duplicate needs the user's decision before any
				// write; stop the loop rather than letting the model argue.
				return s.finish(ctx, input, result, "", toolNotes)
			}
		}
	}

	return s.finish(ctx, input, result, lastContent, toolNotes)
}

// executeToolCall runs one tool call, routing calendar mutations through the
// duplicate/verification path. Errors become structured tool output, never a
// failed turn.
func (s *ToolLoopService) executeToolCall(ctx context.Context, input *ToolLoopInput, result *ToolLoopResult, tc ToolCall) string {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		toolCalls.WithLabelValues(tc.Name, "error").Inc()
		return fmt.Sprintf(`{"error":"invalid arguments: %s"}`, err.Error())
	}

	tool := s.registry.Get(tc.Name)
	if tool == nil {
		toolCalls.WithLabelValues(tc.Name, "unknown_tool").Inc()
		s.audit.ToolOutcome(input.UserID, input.ThreadID, input.ResponseID, tc.Name, "unknown_tool")
		return fmt.Sprintf(`{"error":"unknown tool: %s"}`, tc.Name)
	}

	var output string
	var err error
	switch tc.Name {
	case tools.ToolCalendarCreateEvent:
		output, err = s.runCreate(ctx, input, result, args)
	case tools.ToolCalendarUpdateEvent:
		output, err = s.runVerifiedWrite(ctx, result, tool, args, "updated")
	case tools.ToolCalendarDeleteEvent:
		output, err = s.runVerifiedWrite(ctx, result, tool, args, "removed")
	default:
		output, err = tool.Execute(ctx, args)
	}

	if err != nil {
		toolCalls.WithLabelValues(tc.Name, "error").Inc()
		s.audit.ToolOutcome(input.UserID, input.ThreadID, input.ResponseID, tc.Name, "error")
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	toolCalls.WithLabelValues(tc.Name, "ok").Inc()
	s.audit.ToolOutcome(input.UserID, input.ThreadID, input.ResponseID, tc.Name, "ok")
	return output
}

// runCreate handles a calendar create: duplicate detection first, then either
// a silent update of a dominant duplicate, a confirmation stop, or a normal
// verified create.
func (s *ToolLoopService) runCreate(ctx context.Context, input *ToolLoopInput, result *ToolLoopResult, args map[string]interface{}) (string, error) {
	proposed, err := tools.EventFromArgs(args)
	if err != nil {
		return "", err
	}

	verdict, err := s.resolver.FindDuplicates(ctx, proposed)
	if err != nil {
		// Duplicate detection failing must not block the user's request;
		// fall through to a normal create.
		log.Printf("⚠️ [TOOLLOOP] Duplicate detection failed: %v", err)
		verdict = &models.DuplicateVerdict{}
	}

	dup := s.policy.Duplicate
	switch {
	case verdict.Best != nil && verdict.Score >= dup.UpdateThreshold && verdict.Margin >= dup.UpdateMargin && input.ReferenceUnambiguous:
		// Strong, unambiguous duplicate: update it instead of creating a twin.
		duplicateVerdicts.WithLabelValues("update").Inc()
		existing := verdict.Best.Event
		proposed.ID = existing.ID
		updated, err := s.provider.UpdateEvent(ctx, existing.CalendarID, proposed)
		if err != nil {
			return "", err
		}
		s.verifyWrite(ctx, result, updated.CalendarID, updated.ID, "updated", false)
		return fmt.Sprintf(`{"action":"updated_existing","event_id":%q,"title":%q,"note":"an equivalent event already existed and was updated in place"}`,
			updated.ID, updated.Title), nil

	case verdict.Best != nil && verdict.Score >= dup.ConfirmThreshold:
		// Plausible but not dominant: ask before writing anything.
		duplicateVerdicts.WithLabelValues("confirm").Inc()
		result.ConfirmationRequired = true
		existing := verdict.Best.Event
		result.Reply = fmt.Sprintf(
			"You already have %q on %s — should I update that event, or create a separate one?",
			existing.Title, existing.Start.Format("Monday 15:04"))
		return fmt.Sprintf(`{"requiresUserConfirmation":true,"duplicate_event_id":%q,"duplicate_title":%q}`,
			existing.ID, existing.Title), nil

	default:
		duplicateVerdicts.WithLabelValues("create").Inc()
		created, err := s.provider.CreateEvent(ctx, stringArg(args, "calendar_id"), proposed)
		if err != nil {
			return "", err
		}
		s.verifyWrite(ctx, result, created.CalendarID, created.ID, "added", false)
		out, _ := json.Marshal(created)
		return string(out), nil
	}
}

// runVerifiedWrite executes an update or delete through the registry tool and
// then verifies the end state by read-back.
func (s *ToolLoopService) runVerifiedWrite(ctx context.Context, result *ToolLoopResult, tool *tools.Tool, args map[string]interface{}, operation string) (string, error) {
	output, err := tool.Execute(ctx, args)
	if err != nil {
		return "", err
	}

	calendarID := stringArg(args, "calendar_id")
	eventID := stringArg(args, "event_id")
	s.verifyWrite(ctx, result, calendarID, eventID, operation, operation == "removed")
	return output, nil
}

// verifyWrite re-fetches the event and confirms the intended end state:
// absent for a delete, present with a matching ID otherwise. A write that
// cannot be verified surfaces as a qualified reply, never as success.
func (s *ToolLoopService) verifyWrite(ctx context.Context, result *ToolLoopResult, calendarID, eventID, operation string, expectAbsent bool) {
	result.WriteExecuted = true
	result.WriteOperation = operation

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	event, err := s.provider.GetEvent(verifyCtx, calendarID, eventID)

	verified := false
	if expectAbsent {
		verified = errors.Is(err, calendar.ErrNotFound)
	} else {
		verified = err == nil && event != nil && event.ID == eventID
	}

	result.WriteVerified = verified
	outcome := "verified"
	if !verified {
		outcome = "unverified"
		log.Printf("⚠️ [TOOLLOOP] Write verification failed for %s %s: %v", operation, eventID, err)
	}
	writeVerifications.WithLabelValues(operation, outcome).Inc()
}

// finish produces the final reply: synthesis over tool outcomes when tools
// ran, with deterministic overrides for missing or unverified writes.
func (s *ToolLoopService) finish(ctx context.Context, input *ToolLoopInput, result *ToolLoopResult, lastContent string, toolNotes []string) *ToolLoopResult {
	if result.ConfirmationRequired {
		// Reply was set where the duplicate was found.
		return result
	}

	// The guards below are the actual safety mechanism: no model output may
	// claim success for a write that did not happen or did not verify.
	if input.RequireCalendarWrite && !result.WriteExecuted {
		if result.ToolsUsed {
			result.Reply = replyWriteNotApplied
		} else {
			result.Reply = replyNoToolEvidence
		}
		return result
	}
	if result.WriteExecuted && !result.WriteVerified {
		result.Reply = replyWriteUnverified
		return result
	}

	if !result.ToolsUsed {
		result.Reply = lastContent
		if result.Reply == "" {
			result.Reply = "Sorry — I couldn't put together an answer for that. Could you rephrase?"
		}
		return result
	}

	// Tools ran and any write verified: one concise status sentence, verb
	// tied to the operation performed.
	result.Reply = s.synthesize(ctx, input, result, lastContent, toolNotes)
	return result
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func (s *ToolLoopService) synthesize(ctx context.Context, input *ToolLoopInput, result *ToolLoopResult, lastContent string, toolNotes []string) string {
	verb := result.WriteOperation
	instruction := "Summarize the verified tool results above for the user in a concise, concrete reply. Do not mention tools."
	if verb != "" {
		instruction = fmt.Sprintf(
			"The calendar change was performed and verified. Reply with one concise confirmation sentence using the verb %q, naming the event and time. Do not promise anything further.", verb)
	}

	messages := []map[string]interface{}{
		{"role": "system", "content": input.SystemPrompt},
		{"role": "user", "content": input.UserMessage},
	}
	if lastContent != "" {
		messages = append(messages, map[string]interface{}{"role": "assistant", "content": lastContent})
	}
	if len(toolNotes) > 0 {
		// The loop may spend its final round on tool calls, so the results
		// must travel into synthesis explicitly.
		messages = append(messages, map[string]interface{}{
			"role":    "system",
			"content": "Verified tool results:\n" + strings.Join(toolNotes, "\n"),
		})
	}
	messages = append(messages, map[string]interface{}{"role": "system", "content": instruction})

	reply, err := s.llm.Complete(ctx, input.Config, messages)
	if err != nil || reply == "" {
		// Synthesis failing after verified tool work falls back to a
		// deterministic status sentence, never a blank reply.
		log.Printf("⚠️ [TOOLLOOP] Synthesis failed: %v", err)
		if verb != "" {
			return fmt.Sprintf("Done — the event was %s on your calendar.", verb)
		}
		if lastContent != "" {
			return lastContent
		}
		return "I checked your calendar; everything is in order."
	}
	return reply
}
