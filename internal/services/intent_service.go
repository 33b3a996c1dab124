package services

import (
	"context"
	"log"
	"regexp"
	"time"

	"aria/internal/models"
	"aria/internal/textutil"
)

// IntentService classifies a raw message into a structured intent record via
// one primary extraction call plus narrow, conditional rescue passes. Every
// call is independently fail-safe: a failed rescue leaves the record
// unchanged, a failed primary yields a conservative default.
type IntentService struct {
	llm    LLMClient
	memory MemoryStore
}

// NewIntentService creates the intent pipeline.
func NewIntentService(llm LLMClient, memory MemoryStore) *IntentService {
	return &IntentService{llm: llm, memory: memory}
}

const primaryTimeout = 10 * time.Second
const rescueTimeout = 5 * time.Second

var intentSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"is_action_command":       map[string]interface{}{"type": "boolean"},
		"is_calendar_write":       map[string]interface{}{"type": "boolean"},
		"is_calendar_query":       map[string]interface{}{"type": "boolean"},
		"is_proactive_check":      map[string]interface{}{"type": "boolean"},
		"references_suggestions":  map[string]interface{}{"type": "boolean"},
		"is_travel":               map[string]interface{}{"type": "boolean"},
		"is_upcoming_query":       map[string]interface{}{"type": "boolean"},
		"is_research":             map[string]interface{}{"type": "boolean"},
		"is_discovery":            map[string]interface{}{"type": "boolean"},
		"is_greeting":             map[string]interface{}{"type": "boolean"},
		"is_smalltalk":            map[string]interface{}{"type": "boolean"},
		"is_capability_query":     map[string]interface{}{"type": "boolean"},
		"is_location_info":        map[string]interface{}{"type": "boolean"},
		"wants_suggestions":       map[string]interface{}{"type": "boolean"},
		"is_meta_conversation":    map[string]interface{}{"type": "boolean"},
		"is_profile_capture":      map[string]interface{}{"type": "boolean"},
		"wants_nearby":            map[string]interface{}{"type": "boolean"},
		"is_pack_creation":        map[string]interface{}{"type": "boolean"},
		"user_name":               map[string]interface{}{"type": "string"},
		"user_city":               map[string]interface{}{"type": "string"},
		"home_area":               map[string]interface{}{"type": "string"},
		"feedback_subject":        map[string]interface{}{"type": "string"},
		"feedback_sentiment":      map[string]interface{}{"type": "string"},
		"feedback_reason":         map[string]interface{}{"type": "string"},
		"autopilot_op":            map[string]interface{}{"type": "string"},
		"autopilot_description":   map[string]interface{}{"type": "string"},
		"autopilot_schedule":      map[string]interface{}{"type": "string"},
		"autopilot_rule_ref":      map[string]interface{}{"type": "string"},
		"autopilot_op_confidence": map[string]interface{}{"type": "number"},
	},
	"required": []string{
		"is_action_command", "is_calendar_write", "is_calendar_query",
		"is_proactive_check", "references_suggestions", "is_travel",
		"is_upcoming_query", "is_research", "is_discovery", "is_greeting",
		"is_smalltalk", "is_capability_query", "is_location_info",
		"wants_suggestions", "is_meta_conversation", "is_profile_capture",
		"wants_nearby", "is_pack_creation", "user_name", "user_city",
		"home_area", "feedback_subject", "feedback_sentiment",
		"feedback_reason", "autopilot_op", "autopilot_description",
		"autopilot_schedule", "autopilot_rule_ref", "autopilot_op_confidence",
	},
	"additionalProperties": false,
}

type rawIntent struct {
	IsActionCommand       bool    `json:"is_action_command"`
	IsCalendarWrite       bool    `json:"is_calendar_write"`
	IsCalendarQuery       bool    `json:"is_calendar_query"`
	IsProactiveCheck      bool    `json:"is_proactive_check"`
	ReferencesSuggestions bool    `json:"references_suggestions"`
	IsTravel              bool    `json:"is_travel"`
	IsUpcomingQuery       bool    `json:"is_upcoming_query"`
	IsResearch            bool    `json:"is_research"`
	IsDiscovery           bool    `json:"is_discovery"`
	IsGreeting            bool    `json:"is_greeting"`
	IsSmalltalk           bool    `json:"is_smalltalk"`
	IsCapabilityQuery     bool    `json:"is_capability_query"`
	IsLocationInfo        bool    `json:"is_location_info"`
	WantsSuggestions      bool    `json:"wants_suggestions"`
	IsMetaConversation    bool    `json:"is_meta_conversation"`
	IsProfileCapture      bool    `json:"is_profile_capture"`
	WantsNearby           bool    `json:"wants_nearby"`
	IsPackCreation        bool    `json:"is_pack_creation"`
	UserName              string  `json:"user_name"`
	UserCity              string  `json:"user_city"`
	HomeArea              string  `json:"home_area"`
	FeedbackSubject       string  `json:"feedback_subject"`
	FeedbackSentiment     string  `json:"feedback_sentiment"`
	FeedbackReason        string  `json:"feedback_reason"`
	AutopilotOp           string  `json:"autopilot_op"`
	AutopilotDescription  string  `json:"autopilot_description"`
	AutopilotSchedule     string  `json:"autopilot_schedule"`
	AutopilotRuleRef      string  `json:"autopilot_rule_ref"`
	AutopilotOpConfidence float64 `json:"autopilot_op_confidence"`
}

const primaryIntentPrompt = `You classify one user message sent to a personal assistant.
Set each boolean strictly: only true when the message clearly carries that signal.
- is_calendar_write: the user asks to add, change or remove a calendar event.
- is_calendar_query: the user asks what is on their calendar.
- is_proactive_check: the user wants the assistant to check their schedule before suggesting things.
- references_suggestions: the message points back at previously shown options ("these", "the second one").
- wants_nearby: the user wants options near their home or current area.
- is_pack_creation: the user asks to save or bundle suggestions into a named collection.
- autopilot_op: one of create/delete/pause/resume when the user manages a standing instruction, else empty.
Extract user_name/user_city/home_area only when explicitly stated. Leave unknown strings empty.
feedback_*: fill only when the user states a clear like or dislike of a specific thing.`

// Classify runs the primary extraction and rescue passes, then queues any new
// profile facts for persistence. Always returns a usable record.
func (s *IntentService) Classify(ctx context.Context, cfg *models.LLMConfig, userID, message, priorAssistant string) *models.IntentRecord {
	record := s.primary(ctx, cfg, message, priorAssistant)

	s.rescueProfileFacts(ctx, cfg, record, message)
	s.rescueCalendarAnchor(ctx, cfg, record, message)
	s.guardCalendarWrite(ctx, cfg, record, message)
	s.guardCalendarRead(ctx, cfg, record, message)
	s.guardProactiveCheck(ctx, cfg, record, message)
	applyRecallGuard(record, message)

	s.queueMemoryWrites(ctx, userID, record)
	return record
}

func (s *IntentService) primary(ctx context.Context, cfg *models.LLMConfig, message, priorAssistant string) *models.IntentRecord {
	messages := []map[string]interface{}{
		{"role": "system", "content": primaryIntentPrompt},
	}
	if priorAssistant != "" {
		messages = append(messages, map[string]interface{}{"role": "assistant", "content": priorAssistant})
	}
	messages = append(messages, map[string]interface{}{"role": "user", "content": message})

	callCtx, cancel := context.WithTimeout(ctx, primaryTimeout)
	defer cancel()

	var raw rawIntent
	if err := s.llm.StructuredComplete(callCtx, cfg, messages, "intent_record", intentSchema, &raw); err != nil {
		log.Printf("⚠️ [INTENT] Primary extraction failed: %v", err)
		intentExtractions.WithLabelValues("failed").Inc()
		return models.ConservativeIntent()
	}
	intentExtractions.WithLabelValues("ok").Inc()

	record := &models.IntentRecord{
		ExtractionOK:          true,
		IsActionCommand:       raw.IsActionCommand,
		IsCalendarWrite:       raw.IsCalendarWrite,
		IsCalendarQuery:       raw.IsCalendarQuery,
		IsProactiveCheck:      raw.IsProactiveCheck,
		ReferencesSuggestions: raw.ReferencesSuggestions,
		IsTravel:              raw.IsTravel,
		IsUpcomingQuery:       raw.IsUpcomingQuery,
		IsResearch:            raw.IsResearch,
		IsDiscovery:           raw.IsDiscovery,
		IsGreeting:            raw.IsGreeting,
		IsSmalltalk:           raw.IsSmalltalk,
		IsCapabilityQuery:     raw.IsCapabilityQuery,
		IsLocationInfo:        raw.IsLocationInfo,
		WantsSuggestions:      raw.WantsSuggestions,
		IsMetaConversation:    raw.IsMetaConversation,
		IsProfileCapture:      raw.IsProfileCapture,
		WantsNearby:           raw.WantsNearby,
		IsPackCreation:        raw.IsPackCreation,
		UserName:              raw.UserName,
		UserCity:              raw.UserCity,
		HomeArea:              raw.HomeArea,
	}
	if raw.FeedbackSubject != "" && raw.FeedbackSentiment != "" {
		record.Feedback = &models.PreferenceFeedback{
			Subject:   raw.FeedbackSubject,
			Sentiment: raw.FeedbackSentiment,
			Reason:    raw.FeedbackReason,
		}
	}
	switch raw.AutopilotOp {
	case models.AutopilotOpCreate, models.AutopilotOpDelete, models.AutopilotOpPause, models.AutopilotOpResume:
		record.AutopilotOp = raw.AutopilotOp
		record.AutopilotOpConfidence = raw.AutopilotOpConfidence
		record.AutopilotPayload = &models.AutopilotPayload{
			Description: raw.AutopilotDescription,
			Schedule:    raw.AutopilotSchedule,
			RuleRef:     raw.AutopilotRuleRef,
		}
	}
	return record
}

// yesNo issues one isolated yes/no rescue call. The bool result is only valid
// when ok is true; a failed call must never flip a flag.
func (s *IntentService) yesNo(ctx context.Context, cfg *models.LLMConfig, question, message string) (answer, ok bool) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"answer": map[string]interface{}{"type": "boolean"},
		},
		"required":             []string{"answer"},
		"additionalProperties": false,
	}
	messages := []map[string]interface{}{
		{"role": "system", "content": question + " Answer with a single boolean."},
		{"role": "user", "content": message},
	}

	callCtx, cancel := context.WithTimeout(ctx, rescueTimeout)
	defer cancel()

	var out struct {
		Answer bool `json:"answer"`
	}
	if err := s.llm.StructuredComplete(callCtx, cfg, messages, "yes_no", schema, &out); err != nil {
		return false, false
	}
	return out.Answer, true
}

// rescueProfileFacts recovers name/city/home-area when the primary pass
// flagged profile-related intent but extracted nothing.
func (s *IntentService) rescueProfileFacts(ctx context.Context, cfg *models.LLMConfig, record *models.IntentRecord, message string) {
	hasFacts := record.UserName != "" || record.UserCity != "" || record.HomeArea != ""
	triggered := record.IsProfileCapture || record.WantsNearby || record.IsProactiveCheck
	if hasFacts || !triggered {
		return
	}

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"user_name": map[string]interface{}{"type": "string"},
			"user_city": map[string]interface{}{"type": "string"},
			"home_area": map[string]interface{}{"type": "string"},
		},
		"required":             []string{"user_name", "user_city", "home_area"},
		"additionalProperties": false,
	}
	messages := []map[string]interface{}{
		{"role": "system", "content": "Extract the user's name, city, and home neighborhood/area from the message, only if explicitly stated. Leave unknown fields empty."},
		{"role": "user", "content": message},
	}

	callCtx, cancel := context.WithTimeout(ctx, rescueTimeout)
	defer cancel()

	var out struct {
		UserName string `json:"user_name"`
		UserCity string `json:"user_city"`
		HomeArea string `json:"home_area"`
	}
	if err := s.llm.StructuredComplete(callCtx, cfg, messages, "profile_facts", schema, &out); err != nil {
		rescuePasses.WithLabelValues("profile_facts", "failed").Inc()
		return
	}
	rescuePasses.WithLabelValues("profile_facts", "ran").Inc()

	record.UserName = out.UserName
	record.UserCity = out.UserCity
	record.HomeArea = out.HomeArea
}

// rescueCalendarAnchor recovers the proactive-check and upcoming-query flags.
// The discovery+suggestions combination is a known miss pattern for the
// primary pass; a failed primary gets the same second look.
func (s *IntentService) rescueCalendarAnchor(ctx context.Context, cfg *models.LLMConfig, record *models.IntentRecord, message string) {
	triggered := (record.IsDiscovery && record.WantsSuggestions) || !record.ExtractionOK
	if !triggered {
		return
	}

	if answer, ok := s.yesNo(ctx, cfg,
		"Does the user want the assistant to check their calendar or schedule before making suggestions?",
		message); ok && answer {
		record.IsProactiveCheck = true
		rescuePasses.WithLabelValues("calendar_anchor", "flipped").Inc()
	}
	if answer, ok := s.yesNo(ctx, cfg,
		"Is the user asking about their upcoming events or plans?",
		message); ok && answer {
		record.IsUpcomingQuery = true
		rescuePasses.WithLabelValues("calendar_anchor", "flipped").Inc()
	}
}

// guardCalendarWrite catches missed write intents and false-positive writes.
// Enabling a write requires a positive confirmation; a failed disabling check
// is ignored silently.
func (s *IntentService) guardCalendarWrite(ctx context.Context, cfg *models.LLMConfig, record *models.IntentRecord, message string) {
	readOnly := record.IsCalendarQuery || record.IsProactiveCheck || record.IsUpcomingQuery

	if readOnly && !record.IsCalendarWrite {
		answer, ok := s.yesNo(ctx, cfg,
			"Does the user explicitly ask to add, change, or remove a calendar event (not just look at the calendar)?",
			message)
		if ok && answer {
			record.IsCalendarWrite = true
			record.IsActionCommand = true
			rescuePasses.WithLabelValues("write_guard", "flipped").Inc()
		} else if !ok {
			rescuePasses.WithLabelValues("write_guard", "failed").Inc()
		}
		return
	}

	if record.IsCalendarWrite && record.WantsSuggestions && record.ReferencesSuggestions {
		answer, ok := s.yesNo(ctx, cfg,
			"Is the user actually instructing the assistant to write to their calendar right now, rather than asking for more suggestions?",
			message)
		if ok && !answer {
			record.IsCalendarWrite = false
			rescuePasses.WithLabelValues("write_guard", "flipped").Inc()
		}
	}
}

// guardCalendarRead suppresses false-positive calendar queries from ambiguous
// phrasing. Only runs when the query flag stands alone.
func (s *IntentService) guardCalendarRead(ctx context.Context, cfg *models.LLMConfig, record *models.IntentRecord, message string) {
	if !record.IsCalendarQuery || record.IsCalendarWrite || record.IsProactiveCheck || record.IsUpcomingQuery {
		return
	}
	answer, ok := s.yesNo(ctx, cfg,
		"Is the user really asking what is on their calendar, as opposed to general conversation about plans?",
		message)
	if ok && !answer {
		record.IsCalendarQuery = false
		rescuePasses.WithLabelValues("read_guard", "flipped").Inc()
	}
}

// guardProactiveCheck avoids treating generic planning language as a calendar
// request.
func (s *IntentService) guardProactiveCheck(ctx context.Context, cfg *models.LLMConfig, record *models.IntentRecord, message string) {
	if (!record.IsProactiveCheck && !record.IsUpcomingQuery) || record.IsCalendarWrite || record.IsActionCommand {
		return
	}
	answer, ok := s.yesNo(ctx, cfg,
		"Does the user specifically want their calendar consulted, as opposed to generic talk about the future?",
		message)
	if ok && !answer {
		record.IsProactiveCheck = false
		record.IsUpcomingQuery = false
		rescuePasses.WithLabelValues("proactive_guard", "flipped").Inc()
	}
}

var recallPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhat did (i|we|you)\b`),
	regexp.MustCompile(`(?i)\bdid i (already|ever)\b`),
	regexp.MustCompile(`(?i)\bhave (i|we) (ever|already)\b`),
	regexp.MustCompile(`(?i)\blast (time|week|month)\b.*\b(did|was|were)\b`),
	regexp.MustCompile(`(?i)\bremind me what\b`),
	regexp.MustCompile(`(?i)\bwhat was on my calendar\b`),
}

// applyRecallGuard is the final deterministic rule: questions about the past
// must never trigger mutations, regardless of what any model pass said.
func applyRecallGuard(record *models.IntentRecord, message string) {
	for _, pattern := range recallPatterns {
		if pattern.MatchString(message) {
			record.IsActionCommand = false
			record.IsCalendarWrite = false
			return
		}
	}
}

// queueMemoryWrites queues extracted profile facts and preference feedback
// for persistence. Dedup against stored facts happens inside the store.
func (s *IntentService) queueMemoryWrites(ctx context.Context, userID string, record *models.IntentRecord) {
	if s.memory == nil {
		return
	}
	if record.UserName != "" {
		s.memory.QueueWrite(ctx, userID, models.MemoryBucketProfile, models.MemoryKeyName, record.UserName, "intent", 0.9)
	}
	if record.UserCity != "" {
		s.memory.QueueWrite(ctx, userID, models.MemoryBucketProfile, models.MemoryKeyCity, record.UserCity, "intent", 0.9)
	}
	if record.HomeArea != "" {
		s.memory.QueueWrite(ctx, userID, models.MemoryBucketProfile, models.MemoryKeyHomeArea, record.HomeArea, "intent", 0.9)
	}
	if record.Feedback != nil && record.Feedback.Subject != "" {
		// Key by subject so multiple preferences coexist under the unique
		// (userId, bucket, key) index.
		prefix := "like:"
		if record.Feedback.Sentiment == "negative" {
			prefix = "dislike:"
		}
		key := prefix + textutil.Normalize(record.Feedback.Subject)
		s.memory.QueueWrite(ctx, userID, models.MemoryBucketPreference, key, record.Feedback.Subject, "feedback", 0.8)
	}
}
