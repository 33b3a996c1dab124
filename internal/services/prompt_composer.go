package services

import (
	"fmt"
	"strings"
	"time"

	"aria/internal/models"
)

// PromptComposer assembles the system-level instruction set for the reply
// call from the resolved intent and session context.
type PromptComposer struct{}

// NewPromptComposer creates the composer.
func NewPromptComposer() *PromptComposer {
	return &PromptComposer{}
}

// ComposeInput is everything the composer may draw on for one turn.
type ComposeInput struct {
	Intent      *models.IntentRecord
	Profile     *models.PreferenceProfile
	Suggestions []models.ThreadSuggestion
	Resolution  *models.SuggestionResolution
	Timezone    string
	Now         time.Time
}

const basePersona = `You are Aria, a personal assistant. Be concise and concrete.
Never claim to have performed an action you did not perform.
When you used tools, report exactly what they did and nothing more.`

// Compose builds the system prompt for the reply-generation call.
func (c *PromptComposer) Compose(input ComposeInput) string {
	var b strings.Builder
	b.WriteString(basePersona)

	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	loc := time.Local
	if input.Timezone != "" {
		if parsed, err := time.LoadLocation(input.Timezone); err == nil {
			loc = parsed
		}
	}
	fmt.Fprintf(&b, "\n\nCurrent time: %s", now.In(loc).Format("Monday, 2 January 2006 15:04 MST"))

	if p := input.Profile; p != nil {
		var facts []string
		if p.Name != "" {
			facts = append(facts, "name: "+p.Name)
		}
		if p.City != "" {
			facts = append(facts, "city: "+p.City)
		}
		if p.HomeArea != "" {
			facts = append(facts, "home area: "+p.HomeArea)
		}
		if len(p.Likes) > 0 {
			facts = append(facts, "likes: "+strings.Join(p.Likes, ", "))
		}
		if len(p.Dislikes) > 0 {
			facts = append(facts, "dislikes: "+strings.Join(p.Dislikes, ", "))
		}
		if len(facts) > 0 {
			b.WriteString("\n\nKnown about the user:\n")
			for _, f := range facts {
				b.WriteString("- " + f + "\n")
			}
		}
	}

	if input.Resolution != nil && len(input.Resolution.SelectedIndices) > 0 {
		selected := input.Resolution.Selected(input.Suggestions)
		if len(selected) > 0 {
			b.WriteString("\nThe user is referring to these previously shown suggestions:\n")
			for _, s := range selected {
				b.WriteString("- " + s.Title)
				if s.Subtitle != "" {
					b.WriteString(" (" + s.Subtitle + ")")
				}
				b.WriteString("\n")
			}
		}
	}

	if intent := input.Intent; intent != nil {
		if intent.IsCalendarWrite {
			b.WriteString("\nThe user asked for a calendar change. Use the calendar tools to perform it; do not just describe it.")
		} else if intent.IsCalendarQuery || intent.IsProactiveCheck || intent.IsUpcomingQuery {
			b.WriteString("\nThe user wants their calendar consulted. Read it with the calendar tools before answering.")
		}
		if intent.WantsNearby && input.Profile != nil && input.Profile.HomeArea != "" {
			b.WriteString("\nPrefer options near " + input.Profile.HomeArea + ".")
		}
	}

	return b.String()
}

// Known clarifier phrasings, matched against recent assistant turns to break
// clarification loops.
var clarifierPhrasings = []string{
	"which area",
	"which neighborhood",
	"what part of town",
	"could you clarify",
	"can you clarify",
	"which of these",
	"which one do you mean",
	"what city are you in",
	"where is home for you",
}

// IsClarifier reports whether an assistant message reads as a clarifying
// question.
func IsClarifier(content string) bool {
	lowered := strings.ToLower(content)
	for _, phrase := range clarifierPhrasings {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
