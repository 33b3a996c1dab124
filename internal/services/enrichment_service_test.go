package services

import (
	"testing"

	"aria/internal/models"
)

func TestEnrichExtractsOptionSetFromLinkedList(t *testing.T) {
	reply := `Here are some ideas for Friday:

- [Luigi's](https://example.com/luigis) - classic wood-fired pizza
- [Sushi Bar](https://example.com/sushi) - omakase counter
- [Taco Stand](https://example.com/tacos) - open late

Let me know which one you like.`

	blocks := NewEnrichmentService().Enrich(reply)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	block := blocks[0]
	if block.Kind != models.BlockKindOptionSet {
		t.Errorf("Kind = %q, want option_set", block.Kind)
	}
	if len(block.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(block.Items))
	}
	if block.Items[0].Title != "Luigi's" || block.Items[0].ActionURL != "https://example.com/luigis" {
		t.Errorf("first item = %+v", block.Items[0])
	}
}

func TestEnrichIgnoresProseAndShortLists(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"plain prose", "Your Friday is free after 6pm. Pizza Night is already on the calendar."},
		{"two-item list", "- [A](https://a.example)\n- [B](https://b.example)"},
		{"unlinked list", "- first thing\n- second thing\n- third thing\n- fourth thing"},
		{"empty", ""},
	}
	service := NewEnrichmentService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if blocks := service.Enrich(tt.reply); len(blocks) != 0 {
				t.Errorf("got %d blocks, want none", len(blocks))
			}
		})
	}
}

func TestIsClarifier(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"Which area do you call home?", true},
		{"Could you clarify what you mean?", true},
		{"Which of these did you mean?", true},
		{"Pizza Night is on Friday at 7pm.", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsClarifier(tt.content); got != tt.want {
			t.Errorf("IsClarifier(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}
