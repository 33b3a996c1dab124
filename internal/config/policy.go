package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds the tuned decision constants of the dialogue engine. The
// duplicate thresholds in particular are empirically tuned, so they live in
// policy.yaml rather than in code.
type Policy struct {
	Duplicate struct {
		// Score at or above which (with sufficient margin) an existing
		// event is updated instead of creating a new one.
		UpdateThreshold float64 `yaml:"update_threshold"`
		// Required lead over the runner-up candidate for a silent update.
		UpdateMargin float64 `yaml:"update_margin"`
		// Score at or above which the user is asked before any write.
		ConfirmThreshold float64 `yaml:"confirm_threshold"`
		// Half-width of the search window around the requested time.
		WindowHours int `yaml:"window_hours"`
		// Start-time tolerance for the time-overlap scoring term.
		TimeToleranceMinutes int `yaml:"time_tolerance_minutes"`
	} `yaml:"duplicate"`

	Resolver struct {
		// Minimum top score for accepting the provider_query strategy.
		ProviderAcceptScore float64 `yaml:"provider_accept_score"`
		// Candidates below this score are dropped from results.
		MinCandidateScore float64 `yaml:"min_candidate_score"`
		// Minimum confidence to accept a calendar-name match outright.
		CalendarNameAccept float64 `yaml:"calendar_name_accept"`
	} `yaml:"resolver"`

	Suggestions struct {
		// Resolutions below this confidence on a calendar write force a
		// disambiguation reply.
		MinConfidence float64 `yaml:"min_confidence"`
	} `yaml:"suggestions"`

	ToolLoop struct {
		// Rounds after the first model call (total calls = MaxRounds + 1).
		MaxRounds int `yaml:"max_rounds"`
	} `yaml:"tool_loop"`

	Clarifier struct {
		// Assistant turns scanned for a previously asked clarifier.
		LookbackTurns int `yaml:"lookback_turns"`
	} `yaml:"clarifier"`

	Autopilot struct {
		// Operations below this confidence get a clarifying question.
		MinOpConfidence float64 `yaml:"min_op_confidence"`
	} `yaml:"autopilot"`

	Jobs struct {
		// Cron expression for the memory write queue flush.
		MemoryFlushSchedule string `yaml:"memory_flush_schedule"`
	} `yaml:"jobs"`
}

// DefaultPolicy returns the shipped policy constants.
func DefaultPolicy() *Policy {
	p := &Policy{}
	p.Duplicate.UpdateThreshold = 0.72
	p.Duplicate.UpdateMargin = 0.12
	p.Duplicate.ConfirmThreshold = 0.58
	p.Duplicate.WindowHours = 6
	p.Duplicate.TimeToleranceMinutes = 90
	p.Resolver.ProviderAcceptScore = 0.5
	p.Resolver.MinCandidateScore = 0.2
	p.Resolver.CalendarNameAccept = 0.78
	p.Suggestions.MinConfidence = 0.55
	p.ToolLoop.MaxRounds = 3
	p.Clarifier.LookbackTurns = 6
	p.Autopilot.MinOpConfidence = 0.6
	p.Jobs.MemoryFlushSchedule = "*/1 * * * *"
	return p
}

// LoadPolicy reads policy.yaml, filling unset fields from defaults. A missing
// file is not an error: defaults apply.
func LoadPolicy(filePath string) (*Policy, error) {
	policy := DefaultPolicy()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return policy, nil
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}

	return policy, nil
}
