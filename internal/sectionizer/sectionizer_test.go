package sectionizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pravnyk/internal/types"
)

const syntheticDecision = `Встановлено, що між сторонами виник спір щодо якості придбаного товару, який був переданий покупцеві після укладення договору купівлі-продажу в магазині відповідача.

Позивач просить визнати недійсним пункт договору та зобов'язати відповідача замінити товар неналежної якості на аналогічний товар належної якості відповідно до умов гарантії.

Суд вважає, що доводи сторони позивача знайшли своє підтвердження під час розгляду справи, оскільки надані докази підтверджують істотне порушення умов договору з боку продавця.

Ухвалив задовольнити позов повністю та поновити порушене право споживача шляхом заміни товару неналежної якості на новий товар у встановлений законом строк.`

func TestExtractSyntheticDecision(t *testing.T) {
	s := New(nil)
	sections, err := s.Extract(context.Background(), syntheticDecision)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := []types.SectionType{
		types.SectionFacts, types.SectionClaims,
		types.SectionReasoning, types.SectionDecision,
	}
	if len(sections) != len(want) {
		for _, sec := range sections {
			t.Logf("  %s [%d,%d) conf=%.2f", sec.Type, sec.StartIndex, sec.EndIndex, sec.Confidence)
		}
		t.Fatalf("got %d sections, want %d", len(sections), len(want))
	}
	for i, sec := range sections {
		if sec.Type != want[i] {
			t.Errorf("section %d type = %s, want %s", i, sec.Type, want[i])
		}
		if sec.Confidence < 0.7 {
			t.Errorf("section %d (%s) confidence = %.2f, want >= 0.7", i, sec.Type, sec.Confidence)
		}
	}
}

func TestExtractInvariants(t *testing.T) {
	s := New(nil)
	sections, err := s.Extract(context.Background(), syntheticDecision)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(sections) == 0 {
		t.Fatal("no sections extracted")
	}

	for i, sec := range sections {
		// Invariant: text equals the document span.
		if syntheticDecision[sec.StartIndex:sec.EndIndex] != sec.Text {
			t.Errorf("section %d text does not equal its span", i)
		}
		// Invariant: sorted and non-overlapping.
		if i > 0 {
			prev := sections[i-1]
			if sec.StartIndex < prev.EndIndex {
				t.Errorf("section %d overlaps section %d", i, i-1)
			}
		}
		if sec.Confidence < 0 || sec.Confidence > 1 {
			t.Errorf("section %d confidence %.2f outside [0,1]", i, sec.Confidence)
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	s := New(nil)
	first, err := s.Extract(context.Background(), syntheticDecision)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	second, err := s.Extract(context.Background(), syntheticDecision)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated extraction differs (-first +second):\n%s", diff)
	}
}

func TestExtractShortTextProducesNothing(t *testing.T) {
	s := New(nil)
	sections, err := s.Extract(context.Background(), "Встановлено: короткий текст.")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if sections != nil {
		t.Errorf("short text produced %d sections, want none", len(sections))
	}
}

func TestPriorityWinsContestedSpan(t *testing.T) {
	// The reasoning marker opens the text, but a facts marker appears just
	// inside it. FACTS has priority 1 and claims the contested span; the
	// reasoning candidate is discarded as overlapping.
	text := "Суд вважає, що встановлено наступне: " +
		strings.Repeat("сторони уклали договір поставки товару належним чином. ", 6)

	s := New(nil)
	sections, err := s.Extract(context.Background(), text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, sec := range sections {
		if sec.Type == types.SectionReasoning {
			for _, other := range sections {
				if other.Type == types.SectionFacts &&
					sec.StartIndex < other.EndIndex && other.StartIndex < sec.EndIndex {
					t.Error("reasoning section overlaps facts section; priority not honored")
				}
			}
		}
	}
	// The facts candidate must have survived.
	var hasFacts bool
	for _, sec := range sections {
		if sec.Type == types.SectionFacts {
			hasFacts = true
		}
	}
	if !hasFacts {
		t.Error("facts section missing from contested span")
	}
}

func TestShortSectionConfidencePenalty(t *testing.T) {
	// Marker near the end of text leaves under 50 chars of section body:
	// confidence 0.7 - 0.2 = 0.5, right at the keep threshold.
	filler := strings.Repeat("Опис перебігу розгляду справи без жодних ключових фраз. ", 3)
	text := filler + "\n\nУхвалив закрити справу."

	s := New(nil)
	sections, err := s.Extract(context.Background(), text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	var decision *types.Section
	for i := range sections {
		if sections[i].Type == types.SectionDecision {
			decision = &sections[i]
		}
	}
	if decision == nil {
		t.Fatal("decision section not found")
	}
	if decision.Confidence != 0.5 {
		t.Errorf("confidence = %.2f, want 0.5 after short-section penalty", decision.Confidence)
	}
}

type fakeAssist struct {
	sections []types.Section
	err      error
	called   bool
}

func (f *fakeAssist) ExtractSections(ctx context.Context, text string) ([]types.Section, error) {
	f.called = true
	return f.sections, f.err
}

func TestModelFallbackInvoked(t *testing.T) {
	// Text with no marker at all.
	text := strings.Repeat("Нейтральний опис подій без процесуальних формулювань взагалі. ", 5)

	good := types.Section{
		Type: types.SectionFacts, Text: text[0:60], StartIndex: 0, EndIndex: 60, Confidence: 0.8,
	}
	badEnum := types.Section{
		Type: "PREAMBLE", Text: text[60:80], StartIndex: 60, EndIndex: 80, Confidence: 0.8,
	}
	badSpan := types.Section{
		Type: types.SectionDecision, Text: "не той текст", StartIndex: 80, EndIndex: 92, Confidence: 0.8,
	}

	assist := &fakeAssist{sections: []types.Section{good, badEnum, badSpan}}
	s := New(assist)
	sections, err := s.Extract(context.Background(), text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !assist.called {
		t.Fatal("model fallback not invoked")
	}
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1 (invalid ones filtered)", len(sections))
	}
	if sections[0].Type != types.SectionFacts {
		t.Errorf("kept section type = %s", sections[0].Type)
	}
}

func TestModelFallbackError(t *testing.T) {
	text := strings.Repeat("Нейтральний опис подій без процесуальних формулювань взагалі. ", 5)
	assist := &fakeAssist{err: errors.New("model down")}
	s := New(assist)

	_, err := s.Extract(context.Background(), text)
	if types.KindOf(err) != types.KindUnavailable {
		t.Errorf("kind = %s, want UNAVAILABLE", types.KindOf(err))
	}
}

func TestNoFallbackConfigured(t *testing.T) {
	text := strings.Repeat("Нейтральний опис подій без процесуальних формулювань взагалі. ", 5)
	s := New(nil)
	sections, err := s.Extract(context.Background(), text)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(sections) != 0 {
		t.Errorf("got %d sections from markerless text", len(sections))
	}
}
