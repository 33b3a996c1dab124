package textutil

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Pizza Night", "pizza night"},
		{"strips punctuation", "pizza, night!!!", "pizza night"},
		{"strips emoji", "🍕 Pizza Night", "pizza night"},
		{"collapses whitespace", "  pizza   night  ", "pizza night"},
		{"empty", "", ""},
		{"only symbols", "!!! ???", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "pizza night", "pizza night", 1.0},
		{"disjoint", "pizza night", "morning run", 0.0},
		{"half overlap", "pizza night", "pizza day", 1.0 / 3.0},
		{"empty side", "", "pizza", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Jaccard(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCoverage(t *testing.T) {
	// Coverage ignores extra candidate tokens.
	if got := Coverage("pizza", "friday pizza night with friends"); got != 1.0 {
		t.Errorf("Coverage = %v, want 1.0", got)
	}
	if got := Coverage("pizza sushi", "pizza night"); got != 0.5 {
		t.Errorf("Coverage = %v, want 0.5", got)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"tavels", "travel", 2},
	}
	for _, tt := range tests {
		if got := Levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestStringSimilarity(t *testing.T) {
	if got := StringSimilarity("Travel Plans", "travel plans"); got != 1.0 {
		t.Errorf("normalized-equal strings should score 1.0, got %v", got)
	}
	typo := StringSimilarity("Tavels Plan", "Travel Plans")
	if typo < 0.6 || typo >= 1.0 {
		t.Errorf("typo similarity = %v, want in [0.6, 1.0)", typo)
	}
	if got := StringSimilarity("Tavels Plan", "Work"); got >= typo {
		t.Errorf("unrelated name scored %v, should be below typo score %v", got, typo)
	}
}

func TestTokenSimilarity(t *testing.T) {
	// Per-token matching tolerates a typo in one word without punishing the
	// whole string.
	tokenScore := TokenSimilarity("Tavels Plan", "Travel Plans")
	if tokenScore < 0.6 {
		t.Errorf("TokenSimilarity = %v, want >= 0.6", tokenScore)
	}
	if got := TokenSimilarity("", "anything"); got != 0 {
		t.Errorf("empty query should score 0, got %v", got)
	}
}
