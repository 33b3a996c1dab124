package models

// ChatRequest is the inbound message-submission payload. ClientMessageID is an
// optional client-generated ID; redelivery of the same ID is dropped instead
// of being processed twice.
type ChatRequest struct {
	Message         string `json:"message"`
	ThreadID        string `json:"thread_id,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
	Mode            string `json:"mode,omitempty"`     // optional mode hint, normally auto-selected
	Timezone        string `json:"timezone,omitempty"` // IANA name, e.g. "Europe/Berlin"
	Model           string `json:"model,omitempty"`    // per-request model override
}

// ChatResponse is the reply envelope for one processed turn. Terminal failures
// still produce a ChatResponse with an honest reply string.
type ChatResponse struct {
	Reply          string       `json:"reply"`
	Blocks         []ReplyBlock `json:"blocks,omitempty"`
	Confidence     float64      `json:"confidence"`
	Model          string       `json:"model"`
	RequestedModel string       `json:"requested_model,omitempty"`
	ResponseID     string       `json:"response_id"`
	ThreadID       string       `json:"thread_id"`
	MessageID      string       `json:"message_id"`
}

// Reply block kinds rendered by clients.
const (
	BlockKindCard      = "card"
	BlockKindGallery   = "gallery"
	BlockKindOptionSet = "option_set"
)

// ReplyBlock is one structured visual element attached to an assistant reply.
// A gallery or option_set block carries Items; a card block carries its own
// title/subtitle directly.
type ReplyBlock struct {
	Kind      string           `json:"kind"`
	Title     string           `json:"title,omitempty"`
	Subtitle  string           `json:"subtitle,omitempty"`
	Meta      string           `json:"meta,omitempty"`
	ActionURL string           `json:"action_url,omitempty"`
	Source    string           `json:"source,omitempty"`
	Items     []ReplyBlockItem `json:"items,omitempty"`
}

// ReplyBlockItem is a single option inside a gallery or option_set block.
type ReplyBlockItem struct {
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle,omitempty"`
	Meta      string `json:"meta,omitempty"`
	ActionURL string `json:"action_url,omitempty"`
	Source    string `json:"source,omitempty"`
}
