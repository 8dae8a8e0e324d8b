// Package sectionizer converts raw decision text into typed, anchored,
// non-overlapping sections. The scanner is deterministic under the marker
// catalog; an optional model fallback handles decisions that match no
// marker at all.
package sectionizer

import (
	"regexp"

	"pravnyk/internal/types"
)

// markerCatalog maps each section type to its phrase recognizers. The
// catalog is read-only and initialized once; scanning order follows the
// section-type priority (FACTS first, AMOUNTS last).
//
// Phrases reflect the formulaic register of Ukrainian court decisions:
// the descriptive part opens with установив/встановлено, claims with
// позовні вимоги, reasoning with суд вважає/дійшов висновку, the operative
// part with ухвалив/постановив/вирішив.
type markerCatalog map[types.SectionType][]*regexp.Regexp

var catalog = markerCatalog{
	types.SectionFacts: compile(
		`встановлено`,
		`суд\s+установив`,
		`суд\s+встановив`,
		`обставини\s+справи`,
		`з\s+матеріалів\s+справи`,
		`короткий\s+зміст`,
	),
	types.SectionClaims: compile(
		`позивач\s+просить`,
		`позовні\s+вимоги`,
		`звернувся\s+(?:до\s+суду\s+)?з\s+позовом`,
		`просить\s+суд`,
		`вимоги\s+апеляційної\s+скарги`,
		`вимоги\s+касаційної\s+скарги`,
	),
	types.SectionLawRefs: compile(
		`відповідно\s+до\s+ст`,
		`згідно\s+зі?\s+ст`,
		`керуючись\s+ст`,
		`на\s+підставі\s+ст`,
		`положення(?:ми)?\s+статт`,
	),
	types.SectionReasoning: compile(
		`суд\s+вважає`,
		`суд\s+дійшов\s+висновку`,
		`колегія\s+суддів\s+(?:вважає|зазначає)`,
		`суд\s+зазначає`,
		`мотиви,?\s+з\s+яких\s+виходив\s+суд`,
		`оцінюючи\s+докази`,
	),
	types.SectionDecision: compile(
		`ухвалив`,
		`постановив`,
		`вирішив`,
		`резолютивна\s+частина`,
	),
	types.SectionAmounts: compile(
		`стягнути\s+з`,
		`судовий\s+збір`,
		`у\s+розмірі\s+\d`,
		`\d[\d\s]*(?:грн|гривень)`,
	),
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}
