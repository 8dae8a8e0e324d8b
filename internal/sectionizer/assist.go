package sectionizer

import (
	"context"
	"encoding/json"
	"strings"

	"pravnyk/internal/synthesis"
	"pravnyk/internal/types"
)

// assistConfidence marks sections recovered by the model rather than the
// marker scanner.
const assistConfidence = 0.5

const assistSystemPrompt = `Ти розбираєш текст судового рішення на структурні секції.
Поверни JSON: {"sections": [{"section_type": "...", "text": "..."}]}.
Дозволені section_type: FACTS, CLAIMS, COURT_REASONING, LAW_REFERENCES, DECISION, AMOUNTS.
Поле text має бути ДОСЛІВНИМ фрагментом вхідного тексту, без перефразування.`

var allowedSectionTypes = map[types.SectionType]bool{
	types.SectionFacts:     true,
	types.SectionClaims:    true,
	types.SectionReasoning: true,
	types.SectionLawRefs:   true,
	types.SectionDecision:  true,
	types.SectionAmounts:   true,
}

// SynthesisAssist is the model-backed fallback: it asks the quick model
// to segment a decision no marker matched, then re-anchors every
// returned fragment in the source text so index invariants hold.
type SynthesisAssist struct {
	client synthesis.Client
	model  string
}

// NewSynthesisAssist builds the fallback over a synthesis client.
func NewSynthesisAssist(client synthesis.Client, model string) *SynthesisAssist {
	return &SynthesisAssist{client: client, model: model}
}

// ExtractSections implements ModelAssist.
func (a *SynthesisAssist) ExtractSections(ctx context.Context, text string) ([]types.Section, error) {
	raw, err := a.client.CompleteJSON(ctx, a.model, assistSystemPrompt, text)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Sections []struct {
			SectionType string `json:"section_type"`
			Text        string `json:"text"`
		} `json:"sections"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, types.E(types.KindUnavailable, "sectionizer.assist",
			"model returned malformed JSON: "+err.Error())
	}

	var sections []types.Section
	cursor := 0
	for _, s := range parsed.Sections {
		st := types.SectionType(s.SectionType)
		if !allowedSectionTypes[st] || s.Text == "" {
			continue
		}
		// Fragments that cannot be re-anchored verbatim are dropped: a
		// paraphrased span has no trustworthy indices.
		idx := strings.Index(text[cursor:], s.Text)
		if idx < 0 {
			continue
		}
		start := cursor + idx
		end := start + len(s.Text)
		sections = append(sections, types.Section{
			Type:       st,
			Text:       s.Text,
			StartIndex: start,
			EndIndex:   end,
			Confidence: assistConfidence,
		})
		cursor = end
	}
	return sections, nil
}
