package models

// ThreadSuggestion is a lightweight projection of a previously rendered
// option/image card, indexed (1-based) for pronoun reference resolution.
type ThreadSuggestion struct {
	Index     int    `json:"index"`
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle,omitempty"`
	Meta      string `json:"meta,omitempty"`
	ActionURL string `json:"action_url,omitempty"`
	Source    string `json:"source,omitempty"`
}

// SuggestionResolution steers the current turn after resolving an ambiguous
// reference ("these", "option 2") to specific suggestions. Transient.
type SuggestionResolution struct {
	SelectedIndices []int   `json:"selected_indices"`
	Confidence      float64 `json:"confidence"`
	Rationale       string  `json:"rationale,omitempty"`
}

// Selected returns the suggestions picked by the resolution, in index order.
func (r *SuggestionResolution) Selected(all []ThreadSuggestion) []ThreadSuggestion {
	byIndex := make(map[int]ThreadSuggestion, len(all))
	for _, s := range all {
		byIndex[s.Index] = s
	}
	var picked []ThreadSuggestion
	for _, idx := range r.SelectedIndices {
		if s, ok := byIndex[idx]; ok {
			picked = append(picked, s)
		}
	}
	return picked
}

// MaxThreadSuggestions caps how many suggestions extraction collects before
// stopping; recency wins over completeness.
const MaxThreadSuggestions = 8
