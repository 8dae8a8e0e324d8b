package embedding

import (
	"strings"
	"testing"
)

func TestSplitForEmbeddingShortText(t *testing.T) {
	chunks := SplitForEmbedding("Суд встановив такі обставини.", 2048, 50)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
}

func TestSplitForEmbeddingEmpty(t *testing.T) {
	if got := SplitForEmbedding("   ", 2048, 50); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestSplitForEmbeddingLongText(t *testing.T) {
	sentence := "Суд апеляційної інстанції дослідив матеріали справи та дійшов висновку про обґрунтованість позовних вимог. "
	text := strings.Repeat(sentence, 80) // ~8000+ chars

	chunks := SplitForEmbedding(text, 2048, 50)
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks for ~%d chars, want several", len(chunks), len(text))
	}

	for i, c := range chunks {
		if len(c) > 2048 {
			t.Errorf("chunk %d has %d chars, exceeds target", i, len(c))
		}
	}

	// Non-final chunks should end on a sentence boundary when the text is
	// made entirely of sentences.
	for i := 0; i < len(chunks)-1; i++ {
		if !strings.HasSuffix(chunks[i], ".") {
			t.Errorf("chunk %d does not end on a sentence boundary: %q", i, chunks[i][len(chunks[i])-20:])
		}
	}
}

func TestSplitForEmbeddingOverlap(t *testing.T) {
	sentence := "Позивач звернувся до суду з вимогою про стягнення заборгованості за договором поставки. "
	text := strings.Repeat(sentence, 60)

	chunks := SplitForEmbedding(text, 2048, 50)
	if len(chunks) < 2 {
		t.Fatalf("need at least 2 chunks, got %d", len(chunks))
	}

	// The start of each subsequent chunk must appear near the end of the
	// previous one: that is what the word overlap buys us.
	for i := 1; i < len(chunks); i++ {
		head := chunks[i]
		if len(head) > 60 {
			head = head[:60]
		}
		if !strings.Contains(chunks[i-1], strings.TrimSpace(head)) {
			t.Errorf("chunk %d does not overlap with chunk %d", i, i-1)
		}
	}
}

func TestSplitForEmbeddingNoOverlapStall(t *testing.T) {
	// Pathological input: one long token with no whitespace. The scanner
	// must still terminate and cover the whole text.
	text := strings.Repeat("а", 10000)
	chunks := SplitForEmbedding(text, 2048, 50)
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total < len(text) {
		t.Errorf("chunks cover %d bytes of %d", total, len(text))
	}
}
