package services

import (
	"testing"

	"aria/internal/models"
)

func TestValidateSchedule(t *testing.T) {
	service := NewAutopilotService(nil)

	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"empty is on-demand", "", false},
		{"every friday evening", "0 18 * * 5", false},
		{"every minute", "*/1 * * * *", false},
		{"too few fields", "0 18 *", true},
		{"nonsense", "whenever", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.ValidateSchedule(tt.schedule)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchedule(%q) error = %v, wantErr %v", tt.schedule, err, tt.wantErr)
			}
		})
	}
}

func TestDerivePackNameFromFirstSuggestion(t *testing.T) {
	tests := []struct {
		name  string
		items []models.ThreadSuggestion
		want  string
	}{
		{
			"single suggestion keeps its title",
			[]models.ThreadSuggestion{{Index: 1, Title: "Luigi's"}},
			"Luigi's",
		},
		{
			"several suggestions count the rest",
			[]models.ThreadSuggestion{
				{Index: 1, Title: "Luigi's"},
				{Index: 2, Title: "Sushi Bar"},
				{Index: 3, Title: "Taco Stand"},
			},
			"Luigi's + 2 more",
		},
		{
			"untitled first suggestion falls back",
			[]models.ThreadSuggestion{{Index: 1}, {Index: 2, Title: "Sushi Bar"}},
			"Saved suggestions",
		},
		{
			"no items falls back",
			nil,
			"Saved suggestions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := derivePackName(tt.items); got != tt.want {
				t.Errorf("derivePackName() = %q, want %q", got, tt.want)
			}
		})
	}
}
