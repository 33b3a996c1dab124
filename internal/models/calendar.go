package models

import "time"

// Calendar is one calendar visible to the user on the provider side.
type Calendar struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Primary  bool   `json:"primary"`
	CanWrite bool   `json:"can_write"`
}

// CalendarEvent is a normalized external event. Produced transiently by
// listing or searching a calendar provider; never owned by this system.
type CalendarEvent struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Location     string    `json:"location,omitempty"`
	Attendees    []string  `json:"attendees,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	CalendarID   string    `json:"calendar_id"`
	CalendarName string    `json:"calendar_name,omitempty"`
}

// ScoredEvent pairs a candidate event with its match score against a query.
type ScoredEvent struct {
	Event CalendarEvent `json:"event"`
	Score float64       `json:"score"`
}

// Event resolution strategies.
const (
	ResolveStrategyProviderQuery = "provider_query"
	ResolveStrategyFuzzyLocal    = "fuzzy_local"
)

// EventResolution is the outcome of resolving a natural-language event
// reference against the user's calendars.
type EventResolution struct {
	Match      *CalendarEvent `json:"match,omitempty"`
	Candidates []ScoredEvent  `json:"candidates,omitempty"`
	Strategy   string         `json:"strategy"`
}

// CalendarNameResolution is the outcome of resolving a calendar by name.
// A near-miss returns Suggestions instead of silently picking one.
type CalendarNameResolution struct {
	MatchedID         string     `json:"matched_id,omitempty"`
	Confidence        float64    `json:"confidence"`
	Suggestions       []Calendar `json:"suggestions,omitempty"`
	NeedsConfirmation bool       `json:"needs_confirmation"`
}

// DuplicateVerdict classifies a proposed event create against existing events.
type DuplicateVerdict struct {
	Best     *ScoredEvent `json:"best,omitempty"`
	RunnerUp *ScoredEvent `json:"runner_up,omitempty"`
	Score    float64      `json:"score"`
	Margin   float64      `json:"margin"`
}
