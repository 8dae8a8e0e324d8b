package orchestrator

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestHeadCutsOnRuneBoundary(t *testing.T) {
	// Cyrillic letters are two bytes each, so an odd byte limit lands
	// inside a rune and must be pulled back.
	s := strings.Repeat("ї", 200)
	got := head(s, 301)

	if !utf8.ValidString(got) {
		t.Fatalf("head produced invalid UTF-8: %q", got[len(got)-4:])
	}
	if len(got) != 300 {
		t.Errorf("head length = %d, want 300", len(got))
	}
	if !strings.HasPrefix(s, got) {
		t.Error("head result is not a prefix of the input")
	}

	if got := head("коротко", 100); got != "коротко" {
		t.Errorf("head must return short strings unchanged, got %q", got)
	}
}
