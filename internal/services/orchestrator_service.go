package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"aria/internal/config"
	"aria/internal/models"

	"github.com/google/uuid"
)

// OrchestratorService turns one inbound message into a reply. It runs the
// intent pipeline, selects exactly one mode from a priority-ordered decision
// list, and executes that mode's handler. State is recomputed fresh per turn
// from the intent record and a small session snapshot; nothing is persisted
// between turns except the conversation itself.
type OrchestratorService struct {
	providers     *ProviderService
	llm           LLMClient
	intents       *IntentService
	conversations ConversationStore
	memory        MemoryStore
	suggestions   *SuggestionService
	toolLoop      *ToolLoopService
	composer      *PromptComposer
	enricher      ReplyEnricher
	autopilot     *AutopilotService
	redis         *RedisService
	policy        *config.Policy
	audit         *AuditService
	historyLimit  int
}

// NewOrchestratorService wires the dialogue engine together.
func NewOrchestratorService(
	providers *ProviderService,
	llm LLMClient,
	intents *IntentService,
	conversations ConversationStore,
	memory MemoryStore,
	suggestions *SuggestionService,
	toolLoop *ToolLoopService,
	composer *PromptComposer,
	enricher ReplyEnricher,
	autopilot *AutopilotService,
	redis *RedisService,
	policy *config.Policy,
	audit *AuditService,
	historyLimit int,
) *OrchestratorService {
	if historyLimit <= 0 {
		historyLimit = models.DefaultHistoryLimit
	}
	return &OrchestratorService{
		providers:     providers,
		llm:           llm,
		intents:       intents,
		conversations: conversations,
		memory:        memory,
		suggestions:   suggestions,
		toolLoop:      toolLoop,
		composer:      composer,
		enricher:      enricher,
		autopilot:     autopilot,
		redis:         redis,
		policy:        policy,
		audit:         audit,
		historyLimit:  historyLimit,
	}
}

// SessionSnapshot is the small per-turn context that mode selection may read
// besides the intent record.
type SessionSnapshot struct {
	ClarifierRecentlyAsked bool
	HomeAreaKnown          bool
	SuggestionCount        int
	ResolutionConfident    bool
}

// SelectMode evaluates the priority-ordered decision list. First matching
// entry wins; given the same record and snapshot it always picks the same
// mode.
func SelectMode(intent *models.IntentRecord, session SessionSnapshot, policy *config.Policy) models.Mode {
	switch {
	case !intent.ExtractionOK:
		return models.ModeNeedsClarification

	case intent.IsMetaConversation && !intent.HasActionableSignal():
		return models.ModeInfo

	case intent.WantsNearby && !session.HomeAreaKnown && !session.ClarifierRecentlyAsked:
		// Clarification loop breaking: with a recent clarifier on record this
		// arm is skipped and the turn falls through to best-effort handling.
		return models.ModeNeedsClarification

	case intent.AutopilotOp != "" && intent.AutopilotOpConfidence < policy.Autopilot.MinOpConfidence:
		return models.ModeNeedsClarification

	case intent.AutopilotOp != "":
		return models.ModeAutopilotOps

	case intent.IsCapabilityQuery && !intent.IsPackCreation && !intent.IsProactiveCheck:
		return models.ModeCapability

	case intent.IsPackCreation:
		return models.ModePackCreation

	case (intent.IsGreeting || intent.IsSmalltalk || intent.IsProfileCapture) && !intent.HasActionableSignal():
		return models.ModeSmalltalk

	case (intent.IsCalendarQuery || intent.IsProactiveCheck || intent.IsUpcomingQuery) && !intent.IsCalendarWrite && !intent.IsActionCommand:
		return models.ModeCalendarIntent

	case intent.IsResearch:
		return models.ModeResearch

	case intent.IsLocationInfo && !intent.HasActionableSignal():
		return models.ModeInfo

	default:
		return models.ModeRecommendation
	}
}

// HandleTurn processes one inbound message end to end. Terminal failures
// still produce a response with an honest reply string.
func (s *OrchestratorService) HandleTurn(ctx context.Context, userID string, req *models.ChatRequest) *models.ChatResponse {
	started := time.Now()
	responseID := uuid.NewString()

	cfg, err := s.providers.ResolveLLMConfig(req.Model)
	if err != nil {
		return &models.ChatResponse{
			Reply:          "I'm not able to reach a language model right now. Please try again in a moment.",
			ResponseID:     responseID,
			RequestedModel: req.Model,
		}
	}

	thread, err := s.conversations.EnsureThread(ctx, userID, req.ThreadID)
	if err != nil {
		log.Printf("❌ [ORCHESTRATOR] Thread setup failed: %v", err)
		return &models.ChatResponse{
			Reply:          "Something went wrong starting this conversation. Please try again.",
			ResponseID:     responseID,
			Model:          cfg.Model,
			RequestedModel: req.Model,
		}
	}

	history, err := s.conversations.RecentMessages(ctx, thread.ThreadID, s.historyLimit)
	if err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] History load failed: %v", err)
		history = nil
	}

	priorAssistant := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant {
			priorAssistant = history[i].Content
			break
		}
	}

	intent := s.intents.Classify(ctx, cfg, userID, req.Message, priorAssistant)

	profile, err := s.memory.Profile(ctx, userID)
	if err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Profile load failed: %v", err)
		profile = &models.PreferenceProfile{}
	}

	session := SessionSnapshot{
		ClarifierRecentlyAsked: s.clarifierRecentlyAsked(ctx, userID, thread.ThreadID, history),
		HomeAreaKnown:          profile.HomeArea != "" || intent.HomeArea != "",
	}

	// Suggestion resolution only runs when the message points back at prior
	// output or carries an action that might target it.
	var candidates []models.ThreadSuggestion
	var resolution *models.SuggestionResolution
	if intent.ReferencesSuggestions || intent.IsActionCommand || intent.IsCalendarWrite {
		candidates, err = s.suggestions.Extract(ctx, thread.ThreadID)
		if err != nil {
			log.Printf("⚠️ [ORCHESTRATOR] Suggestion extraction failed: %v", err)
		}
		if intent.ReferencesSuggestions && len(candidates) > 0 {
			resolution = s.suggestions.Resolve(ctx, cfg, req.Message, candidates)
		}
	}
	session.SuggestionCount = len(candidates)
	session.ResolutionConfident = resolution != nil &&
		len(resolution.SelectedIndices) > 0 &&
		resolution.Confidence >= s.policy.Suggestions.MinConfidence

	mode := SelectMode(intent, session, s.policy)
	turnsByMode.WithLabelValues(string(mode)).Inc()
	s.audit.ModeDecision(userID, thread.ThreadID, responseID, string(mode), intent.ExtractionOK)

	systemPrompt := s.composer.Compose(ComposeInput{
		Intent:      intent,
		Profile:     profile,
		Suggestions: candidates,
		Resolution:  resolution,
		Timezone:    req.Timezone,
	})

	turn := &turnContext{
		userID:       userID,
		threadID:     thread.ThreadID,
		responseID:   responseID,
		cfg:          cfg,
		intent:       intent,
		session:      session,
		history:      history,
		message:      req.Message,
		systemPrompt: systemPrompt,
		candidates:   candidates,
		resolution:   resolution,
	}

	reply, blocks, confidence := s.dispatch(ctx, mode, turn)

	s.persistTurn(ctx, turn, req.Message, reply, blocks, string(mode))
	turnDuration.WithLabelValues(string(mode)).Observe(time.Since(started).Seconds())

	return &models.ChatResponse{
		Reply:          reply,
		Blocks:         blocks,
		Confidence:     confidence,
		Model:          cfg.Model,
		RequestedModel: req.Model,
		ResponseID:     responseID,
		ThreadID:       thread.ThreadID,
		MessageID:      turn.assistantMessageID,
	}
}

type turnContext struct {
	userID             string
	threadID           string
	responseID         string
	cfg                *models.LLMConfig
	intent             *models.IntentRecord
	session            SessionSnapshot
	history            []models.Message
	message            string
	systemPrompt       string
	candidates         []models.ThreadSuggestion
	resolution         *models.SuggestionResolution
	assistantMessageID string
}

func (s *OrchestratorService) dispatch(ctx context.Context, mode models.Mode, turn *turnContext) (string, []models.ReplyBlock, float64) {
	// A calendar write that points at prior suggestions must resolve them
	// confidently before any tool call; otherwise disambiguate instead of
	// guessing.
	if turn.intent.IsCalendarWrite && turn.intent.ReferencesSuggestions && !turn.session.ResolutionConfident {
		return s.disambiguationReply(turn), nil, 0.3
	}

	switch mode {
	case models.ModeNeedsClarification:
		return s.handleClarification(ctx, turn)
	case models.ModeSmalltalk:
		return s.handleSmalltalk(ctx, turn)
	case models.ModeCapability:
		return s.handleCapability(ctx, turn)
	case models.ModeAutopilotOps:
		return s.handleAutopilot(ctx, turn)
	case models.ModePackCreation:
		return s.handlePackCreation(ctx, turn)
	case models.ModeCalendarIntent:
		return s.handleToolTurn(ctx, turn, false)
	case models.ModeResearch, models.ModeRecommendation:
		return s.handleToolTurn(ctx, turn, turn.intent.IsCalendarWrite)
	case models.ModeInfo:
		return s.handleInfo(ctx, turn)
	default:
		return s.handleToolTurn(ctx, turn, false)
	}
}

func (s *OrchestratorService) handleClarification(ctx context.Context, turn *turnContext) (string, []models.ReplyBlock, float64) {
	intent := turn.intent

	switch {
	case !intent.ExtractionOK:
		// Safe fallback: no recommendations, no cards, just an honest ask.
		return "I didn't quite catch what you're after — could you say that another way?", nil, 0.0

	case intent.AutopilotOp != "":
		return fmt.Sprintf("Just to make sure: do you want me to %s a standing instruction? Tell me which one and I'll do it.", intent.AutopilotOp), nil, 0.4

	default:
		// Home-area clarifier. Mark it so the next turn breaks the loop.
		s.redis.MarkClarifierAsked(ctx, turn.userID, turn.threadID)
		return "Happy to find options close by — which area do you call home?", nil, 0.5
	}
}

func (s *OrchestratorService) disambiguationReply(turn *turnContext) string {
	if len(turn.candidates) == 0 {
		return "I'm not sure which suggestion you mean — I don't have any recent ones on hand. Could you name the event directly?"
	}
	var b strings.Builder
	b.WriteString("I want to get this right — which of these did you mean?\n")
	for _, c := range turn.candidates {
		fmt.Fprintf(&b, "%d. %s\n", c.Index, c.Title)
	}
	return b.String()
}

func (s *OrchestratorService) handleSmalltalk(ctx context.Context, turn *turnContext) (string, []models.ReplyBlock, float64) {
	messages := []map[string]interface{}{
		{"role": "system", "content": turn.systemPrompt + "\n\nThis is light conversation. Reply warmly and briefly. Do not offer plans, lists, or suggestions unless asked."},
	}
	messages = append(messages, historyMessages(turn.history)...)
	messages = append(messages, map[string]interface{}{"role": "user", "content": turn.message})

	reply, err := s.llm.Complete(ctx, turn.cfg, messages)
	if err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Smalltalk reply failed: %v", err)
		reply = "Hey! What can I do for you?"
	}
	return reply, nil, 0.9
}

func (s *OrchestratorService) handleCapability(ctx context.Context, turn *turnContext) (string, []models.ReplyBlock, float64) {
	messages := []map[string]interface{}{
		{"role": "system", "content": turn.systemPrompt + "\n\nThe user asks what you can do. Answer factually: you can chat, remember preferences, check and manage their calendar, research options, and save suggestion packs. No cards, no examples longer than one line each."},
		{"role": "user", "content": turn.message},
	}
	reply, err := s.llm.Complete(ctx, turn.cfg, messages)
	if err != nil {
		reply = "I can chat with you, remember your preferences, check and manage your calendar, research options for you, and save suggestions into packs."
	}
	return reply, nil, 0.9
}

func (s *OrchestratorService) handleAutopilot(ctx context.Context, turn *turnContext) (string, []models.ReplyBlock, float64) {
	intent := turn.intent
	payload := intent.AutopilotPayload
	if payload == nil {
		payload = &models.AutopilotPayload{}
	}

	var reply string
	var err error
	switch intent.AutopilotOp {
	case models.AutopilotOpCreate:
		var rule *models.AutopilotRule
		rule, err = s.autopilot.CreateRule(ctx, turn.userID, payload)
		if err == nil {
			reply = fmt.Sprintf("Done — I'll keep this running: %q.", rule.Description)
		}
	case models.AutopilotOpDelete:
		var rule *models.AutopilotRule
		rule, err = s.autopilot.DeleteRule(ctx, turn.userID, payload.RuleRef)
		if err == nil {
			reply = fmt.Sprintf("Removed the standing instruction %q.", rule.Description)
		}
	case models.AutopilotOpPause:
		var rule *models.AutopilotRule
		rule, err = s.autopilot.SetRulePaused(ctx, turn.userID, payload.RuleRef, true)
		if err == nil {
			reply = fmt.Sprintf("Paused %q — say the word and I'll resume it.", rule.Description)
		}
	case models.AutopilotOpResume:
		var rule *models.AutopilotRule
		rule, err = s.autopilot.SetRulePaused(ctx, turn.userID, payload.RuleRef, false)
		if err == nil {
			reply = fmt.Sprintf("Resumed %q.", rule.Description)
		}
	default:
		err = fmt.Errorf("unsupported autopilot operation %q", intent.AutopilotOp)
	}

	if err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Autopilot op failed: %v", err)
		return fmt.Sprintf("I couldn't %s that instruction: %s", intent.AutopilotOp, err.Error()), nil, 0.4
	}
	return reply, nil, 0.95
}

func (s *OrchestratorService) handlePackCreation(ctx context.Context, turn *turnContext) (string, []models.ReplyBlock, float64) {
	items := turn.candidates
	if turn.resolution != nil && len(turn.resolution.SelectedIndices) > 0 {
		items = turn.resolution.Selected(turn.candidates)
	}
	if len(items) == 0 {
		return "I don't have any recent suggestions to save. Ask me for some options first, then tell me to save them.", nil, 0.4
	}

	name := ""
	if turn.intent.AutopilotPayload != nil {
		name = turn.intent.AutopilotPayload.Description
	}
	pack, err := s.autopilot.CreatePack(ctx, turn.userID, turn.threadID, name, items)
	if err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Pack creation failed: %v", err)
		return "I couldn't save that pack just now — the suggestions are still in this thread, though.", nil, 0.3
	}
	return fmt.Sprintf("Saved %d suggestions as %q.", len(pack.Items), pack.Name), nil, 0.95
}

func (s *OrchestratorService) handleInfo(ctx context.Context, turn *turnContext) (string, []models.ReplyBlock, float64) {
	messages := []map[string]interface{}{
		{"role": "system", "content": turn.systemPrompt + "\n\nAnswer the informational question directly and concisely. No cards or option lists."},
	}
	messages = append(messages, historyMessages(turn.history)...)
	messages = append(messages, map[string]interface{}{"role": "user", "content": turn.message})

	reply, err := s.llm.Complete(ctx, turn.cfg, messages)
	if err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Info reply failed: %v", err)
		reply = "I couldn't look that up just now — mind asking again in a moment?"
	}
	// Informational turns bypass enrichment.
	return reply, nil, 0.85
}

func (s *OrchestratorService) handleToolTurn(ctx context.Context, turn *turnContext, requireWrite bool) (string, []models.ReplyBlock, float64) {
	result := s.toolLoop.Run(ctx, &ToolLoopInput{
		Config:               turn.cfg,
		SystemPrompt:         turn.systemPrompt,
		History:              turn.history,
		UserMessage:          turn.message,
		RequireCalendarWrite: requireWrite,
		ReferenceUnambiguous: !turn.intent.ReferencesSuggestions || turn.session.ResolutionConfident,
		UserID:               turn.userID,
		ThreadID:             turn.threadID,
		ResponseID:           turn.responseID,
	})

	confidence := 0.9
	switch {
	case result.ConfirmationRequired:
		confidence = 0.5
	case result.WriteExecuted && !result.WriteVerified:
		confidence = 0.4
	case requireWrite && !result.WriteExecuted:
		confidence = 0.3
	}

	// Writes and confirmations stay prose; discovery-style replies may grow
	// option cards.
	var blocks []models.ReplyBlock
	if !result.WriteExecuted && !result.ConfirmationRequired && s.enricher != nil {
		blocks = s.enricher.Enrich(result.Reply)
	}
	return result.Reply, blocks, confidence
}

func (s *OrchestratorService) clarifierRecentlyAsked(ctx context.Context, userID, threadID string, history []models.Message) bool {
	if s.redis.WasClarifierRecentlyAsked(ctx, userID, threadID) {
		return true
	}

	// Fall back to scanning recent assistant turns for known clarifier
	// phrasings; Redis state may have expired or never existed.
	seen := 0
	for i := len(history) - 1; i >= 0 && seen < s.policy.Clarifier.LookbackTurns; i-- {
		if history[i].Role != models.RoleAssistant {
			continue
		}
		seen++
		if IsClarifier(history[i].Content) {
			return true
		}
	}
	return false
}

func (s *OrchestratorService) persistTurn(ctx context.Context, turn *turnContext, userMessage, reply string, blocks []models.ReplyBlock, mode string) {
	if err := s.conversations.AppendMessage(ctx, &models.Message{
		ThreadID: turn.threadID,
		UserID:   turn.userID,
		Role:     models.RoleUser,
		Content:  userMessage,
	}); err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Failed to persist user message: %v", err)
	}

	assistant := &models.Message{
		MessageID:  uuid.NewString(),
		ThreadID:   turn.threadID,
		UserID:     turn.userID,
		Role:       models.RoleAssistant,
		Content:    reply,
		BlocksJSON: MarshalBlocks(blocks),
		Mode:       mode,
	}
	if err := s.conversations.AppendMessage(ctx, assistant); err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Failed to persist assistant message: %v", err)
	}
	turn.assistantMessageID = assistant.MessageID
}

func historyMessages(history []models.Message) []map[string]interface{} {
	var out []map[string]interface{}
	for _, msg := range history {
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		out = append(out, map[string]interface{}{"role": msg.Role, "content": msg.Content})
	}
	return out
}
