package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"aria/internal/calendar"
	"aria/internal/config"
	"aria/internal/models"
	"aria/internal/textutil"
)

// CalendarResolver fuzzy-matches natural-language event references against
// the user's calendars and scores duplicate-create candidates.
type CalendarResolver struct {
	provider calendar.Provider
	policy   *config.Policy
}

// NewCalendarResolver creates the resolver.
func NewCalendarResolver(provider calendar.Provider, policy *config.Policy) *CalendarResolver {
	return &CalendarResolver{provider: provider, policy: policy}
}

// ScoreEventMatch scores how well a candidate event matches a free-text
// query. Exact normalized containment scores 1.0, full token containment
// 0.95, otherwise a Jaccard/coverage blend capped at 0.9.
func ScoreEventMatch(query string, event *models.CalendarEvent) float64 {
	nq := textutil.Normalize(query)
	nt := textutil.Normalize(event.Title)
	if nq == "" || nt == "" {
		return 0
	}

	if strings.Contains(nt, nq) || strings.Contains(nq, nt) {
		return 1.0
	}

	queryTokens := textutil.Tokens(query)
	titleSet := textutil.TokenSet(event.Title)
	allFound := len(queryTokens) > 0
	for _, token := range queryTokens {
		if !titleSet[token] {
			allFound = false
			break
		}
	}
	if allFound {
		return 0.95
	}

	score := 0.5*textutil.Jaccard(query, event.Title) + 0.5*textutil.Coverage(query, event.Title)
	if score > 0.9 {
		return 0.9
	}
	return score
}

// ResolveEvent resolves a natural-language event reference within a time
// window. Provider-side search runs first across all readable calendars in
// parallel; when its best hit is weak, every event in the window is fetched
// and scored locally instead.
func (r *CalendarResolver) ResolveEvent(ctx context.Context, query string, from, to time.Time) (*models.EventResolution, error) {
	calendars, err := r.provider.ListCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	if len(calendars) == 0 {
		return &models.EventResolution{Strategy: models.ResolveStrategyProviderQuery}, nil
	}

	searched := r.fanOut(ctx, calendars, func(ctx context.Context, cal models.Calendar) ([]models.CalendarEvent, error) {
		return r.provider.SearchEvents(ctx, cal.ID, query, from, to)
	})
	scored := r.scoreAll(query, searched)

	if len(scored) > 0 && scored[0].Score >= r.policy.Resolver.ProviderAcceptScore {
		match := scored[0].Event
		return &models.EventResolution{
			Match:      &match,
			Candidates: scored,
			Strategy:   models.ResolveStrategyProviderQuery,
		}, nil
	}

	// Provider search came back weak: fetch the window unfiltered and score
	// everything locally.
	listed := r.fanOut(ctx, calendars, func(ctx context.Context, cal models.Calendar) ([]models.CalendarEvent, error) {
		return r.provider.ListEvents(ctx, cal.ID, from, to)
	})
	scored = r.scoreAll(query, listed)

	resolution := &models.EventResolution{
		Candidates: scored,
		Strategy:   models.ResolveStrategyFuzzyLocal,
	}
	if len(scored) > 0 {
		match := scored[0].Event
		resolution.Match = &match
	}
	return resolution, nil
}

// fanOut runs one provider call per calendar in parallel and joins with an
// all-settled pattern: one calendar's failure is logged and skipped so the
// rest still contribute results.
func (r *CalendarResolver) fanOut(ctx context.Context, calendars []models.Calendar, fetch func(context.Context, models.Calendar) ([]models.CalendarEvent, error)) []models.CalendarEvent {
	type result struct {
		events []models.CalendarEvent
		err    error
		cal    string
	}

	results := make(chan result, len(calendars))
	var wg sync.WaitGroup
	for _, cal := range calendars {
		wg.Add(1)
		go func(cal models.Calendar) {
			defer wg.Done()
			events, err := fetch(ctx, cal)
			results <- result{events: events, err: err, cal: cal.Name}
		}(cal)
	}
	wg.Wait()
	close(results)

	var all []models.CalendarEvent
	for res := range results {
		if res.err != nil {
			log.Printf("⚠️ [CALENDAR] Fetch failed for calendar %q: %v", res.cal, res.err)
			continue
		}
		all = append(all, res.events...)
	}
	return all
}

func (r *CalendarResolver) scoreAll(query string, events []models.CalendarEvent) []models.ScoredEvent {
	seen := make(map[string]bool)
	var scored []models.ScoredEvent
	for i := range events {
		event := events[i]
		if event.ID != "" && seen[event.ID] {
			continue
		}
		seen[event.ID] = true
		score := ScoreEventMatch(query, &event)
		if score <= r.policy.Resolver.MinCandidateScore {
			continue
		}
		scored = append(scored, models.ScoredEvent{Event: event, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// ResolveCalendarName resolves a calendar by name. An exact normalized match
// short-circuits with confidence 1.0; a near-miss under the acceptance
// threshold returns ranked suggestions and requires confirmation instead of
// silently picking one.
func (r *CalendarResolver) ResolveCalendarName(ctx context.Context, name string) (*models.CalendarNameResolution, error) {
	calendars, err := r.provider.ListCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	normalized := textutil.Normalize(name)
	type scoredCal struct {
		cal   models.Calendar
		score float64
	}

	var ranked []scoredCal
	for _, cal := range calendars {
		if textutil.Normalize(cal.Name) == normalized {
			return &models.CalendarNameResolution{MatchedID: cal.ID, Confidence: 1.0}, nil
		}
		score := 0.45*textutil.StringSimilarity(name, cal.Name) + 0.55*textutil.TokenSimilarity(name, cal.Name)
		ranked = append(ranked, scoredCal{cal: cal, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if len(ranked) > 0 && ranked[0].score >= r.policy.Resolver.CalendarNameAccept {
		return &models.CalendarNameResolution{MatchedID: ranked[0].cal.ID, Confidence: ranked[0].score}, nil
	}

	resolution := &models.CalendarNameResolution{NeedsConfirmation: true}
	for _, rc := range ranked {
		if rc.score <= r.policy.Resolver.MinCandidateScore {
			continue
		}
		resolution.Suggestions = append(resolution.Suggestions, rc.cal)
	}
	if len(ranked) > 0 {
		resolution.Confidence = ranked[0].score
	}
	return resolution, nil
}

// ScoreDuplicate scores an existing event against a proposed create. Title
// similarity weighs 0.4, combined title+description 0.2, start-time overlap
// within tolerance 0.3 (all or nothing), location token similarity 0.1.
func (r *CalendarResolver) ScoreDuplicate(proposed, existing *models.CalendarEvent) float64 {
	titleScore := ScoreEventMatch(proposed.Title, existing)

	proposedFull := strings.TrimSpace(proposed.Title + " " + proposed.Description)
	existingFull := &models.CalendarEvent{Title: strings.TrimSpace(existing.Title + " " + existing.Description)}
	fullScore := ScoreEventMatch(proposedFull, existingFull)

	timeScore := 0.0
	tolerance := time.Duration(r.policy.Duplicate.TimeToleranceMinutes) * time.Minute
	if !proposed.Start.IsZero() && !existing.Start.IsZero() {
		delta := proposed.Start.Sub(existing.Start)
		if delta < 0 {
			delta = -delta
		}
		if delta <= tolerance {
			timeScore = 1.0
		}
	}

	locationScore := 0.0
	if proposed.Location != "" && existing.Location != "" {
		locationScore = textutil.TokenSimilarity(proposed.Location, existing.Location)
	}

	return 0.4*titleScore + 0.2*fullScore + 0.3*timeScore + 0.1*locationScore
}

// FindDuplicates looks for existing events that a proposed create would
// duplicate, searching a ± window around the requested start across all
// calendars in parallel.
func (r *CalendarResolver) FindDuplicates(ctx context.Context, proposed *models.CalendarEvent) (*models.DuplicateVerdict, error) {
	calendars, err := r.provider.ListCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	window := time.Duration(r.policy.Duplicate.WindowHours) * time.Hour
	from := proposed.Start.Add(-window)
	to := proposed.Start.Add(window)

	events := r.fanOut(ctx, calendars, func(ctx context.Context, cal models.Calendar) ([]models.CalendarEvent, error) {
		return r.provider.ListEvents(ctx, cal.ID, from, to)
	})

	verdict := &models.DuplicateVerdict{}
	for i := range events {
		event := events[i]
		score := r.ScoreDuplicate(proposed, &event)
		candidate := models.ScoredEvent{Event: event, Score: score}
		switch {
		case verdict.Best == nil || score > verdict.Best.Score:
			verdict.RunnerUp = verdict.Best
			verdict.Best = &candidate
		case verdict.RunnerUp == nil || score > verdict.RunnerUp.Score:
			verdict.RunnerUp = &candidate
		}
	}

	if verdict.Best != nil {
		verdict.Score = verdict.Best.Score
		verdict.Margin = verdict.Best.Score
		if verdict.RunnerUp != nil {
			verdict.Margin = verdict.Best.Score - verdict.RunnerUp.Score
		}
	}
	return verdict, nil
}
