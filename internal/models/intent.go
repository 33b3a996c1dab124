package models

// Mode is the single reply-generation strategy selected for a turn.
type Mode string

const (
	ModeNeedsClarification Mode = "needs_clarification"
	ModeSmalltalk          Mode = "smalltalk"
	ModeCapability         Mode = "capability"
	ModeAutopilotOps       Mode = "autopilot_ops"
	ModePackCreation       Mode = "pack_creation"
	ModeCalendarIntent     Mode = "calendar_intent"
	ModeResearch           Mode = "research"
	ModeRecommendation     Mode = "recommendation"
	ModeInfo               Mode = "info"
)

// Autopilot operations an intent can request.
const (
	AutopilotOpCreate = "create"
	AutopilotOpDelete = "delete"
	AutopilotOpPause  = "pause"
	AutopilotOpResume = "resume"
)

// PreferenceFeedback is an explicit like/dislike statement extracted from a
// message ("I hated that ramen place").
type PreferenceFeedback struct {
	Subject   string `json:"subject"`
	Sentiment string `json:"sentiment"` // "positive" | "negative"
	Reason    string `json:"reason,omitempty"`
}

// IntentRecord is the classified interpretation of one message. Created fresh
// per turn by the primary classifier, then mutated in place by rescue passes
// before being frozen and handed to the orchestrator. Never persisted.
type IntentRecord struct {
	ExtractionOK bool `json:"extraction_ok"`

	IsActionCommand       bool `json:"is_action_command"`
	IsCalendarWrite       bool `json:"is_calendar_write"`
	IsCalendarQuery       bool `json:"is_calendar_query"`
	IsProactiveCheck      bool `json:"is_proactive_check"`
	ReferencesSuggestions bool `json:"references_suggestions"`
	IsTravel              bool `json:"is_travel"`
	IsUpcomingQuery       bool `json:"is_upcoming_query"`
	IsResearch            bool `json:"is_research"`
	IsDiscovery           bool `json:"is_discovery"`
	IsGreeting            bool `json:"is_greeting"`
	IsSmalltalk           bool `json:"is_smalltalk"`
	IsCapabilityQuery     bool `json:"is_capability_query"`
	IsLocationInfo        bool `json:"is_location_info"`
	WantsSuggestions      bool `json:"wants_suggestions"`
	IsMetaConversation    bool `json:"is_meta_conversation"`
	IsProfileCapture      bool `json:"is_profile_capture"`
	WantsNearby           bool `json:"wants_nearby"`
	IsPackCreation        bool `json:"is_pack_creation"`

	UserName string `json:"user_name,omitempty"`
	UserCity string `json:"user_city,omitempty"`
	HomeArea string `json:"home_area,omitempty"`

	Feedback *PreferenceFeedback `json:"feedback,omitempty"`

	AutopilotOp           string            `json:"autopilot_op,omitempty"`
	AutopilotPayload      *AutopilotPayload `json:"autopilot_payload,omitempty"`
	AutopilotOpConfidence float64           `json:"autopilot_op_confidence,omitempty"`
}

// ConservativeIntent is the fail-safe default used when primary classification
// errors out: everything false, so no mode can trigger a side effect.
func ConservativeIntent() *IntentRecord {
	return &IntentRecord{ExtractionOK: false}
}

// HasActionableSignal reports whether any flag that should pull the turn out
// of a light conversational reply is set.
func (r *IntentRecord) HasActionableSignal() bool {
	return r.IsActionCommand || r.IsCalendarWrite || r.IsCalendarQuery ||
		r.IsProactiveCheck || r.IsUpcomingQuery || r.IsResearch ||
		r.IsDiscovery || r.WantsSuggestions || r.AutopilotOp != "" ||
		r.IsPackCreation
}
