package sectionizer

import (
	"context"
	"regexp"
	"sort"

	"pravnyk/internal/logging"
	"pravnyk/internal/types"
)

// Scanner parameters. Changing any of these changes which sections come
// out for the same text, so they are fixed constants rather than config.
const (
	// maxMarkerHits caps iteration over any one pattern to keep
	// pathological inputs from looping.
	maxMarkerHits = 1000

	// boundarySkip is how many characters after a section start the end
	// scan begins; markers and paragraph breaks inside the skip belong to
	// the section itself.
	boundarySkip = 100

	// maxSectionLength bounds a section when no natural end appears.
	maxSectionLength = 5000

	// minConfidence drops weak candidates after scoring.
	minConfidence = 0.5

	baseConfidence = 0.7

	// modelAssistWindow is how much of the text the fallback model sees.
	modelAssistWindow = 8000
)

var paragraphBreakRe = regexp.MustCompile(`\n\s*\n`)

// ModelAssist is the optional fallback for decisions no marker matches.
// Implementations return sections honoring the same enum and index
// invariants as the scanner.
type ModelAssist interface {
	ExtractSections(ctx context.Context, text string) ([]types.Section, error)
}

// Sectionizer extracts typed sections from decision text.
type Sectionizer struct {
	assist ModelAssist // nil disables the fallback
}

// New creates a sectionizer. assist may be nil.
func New(assist ModelAssist) *Sectionizer {
	return &Sectionizer{assist: assist}
}

// markerHit is one recognizer match, the candidate start of a section.
type markerHit struct {
	pos         int
	sectionType types.SectionType
}

// Extract scans text and returns ordered, non-overlapping sections. For
// text shorter than 100 characters it returns nil: such documents are
// persisted but never sectionized.
func (s *Sectionizer) Extract(ctx context.Context, text string) ([]types.Section, error) {
	if len(text) < 100 {
		return nil, nil
	}

	timer := logging.StartTimer(logging.CategorySections, "Extract")
	defer timer.Stop()

	hits := collectHits(text)
	sections := assemble(text, hits)

	if len(sections) == 0 && s.assist != nil {
		logging.Sections("no marker matched %d chars, invoking model fallback", len(text))
		return s.modelFallback(ctx, text)
	}

	logging.SectionsDebug("extracted %d sections from %d chars", len(sections), len(text))
	return sections, nil
}

// collectHits runs every recognizer over the text, in priority order, and
// returns all candidate starts.
func collectHits(text string) []markerHit {
	var hits []markerHit
	for _, st := range types.AllSectionTypes() {
		for _, re := range catalog[st] {
			matches := re.FindAllStringIndex(text, maxMarkerHits)
			for _, m := range matches {
				hits = append(hits, markerHit{pos: m[0], sectionType: st})
			}
		}
	}
	return hits
}

// assemble turns candidate starts into accepted sections: priority order
// decides contested spans, earlier hits win within one type, and every
// accepted section blocks later intersecting candidates.
func assemble(text string, hits []markerHit) []types.Section {
	// All hit positions, sorted, bound section ends regardless of type.
	allPositions := make([]int, len(hits))
	for i, h := range hits {
		allPositions[i] = h.pos
	}
	sort.Ints(allPositions)

	// Candidates grouped by priority, then position.
	sort.SliceStable(hits, func(i, j int) bool {
		pi, pj := types.SectionPriority(hits[i].sectionType), types.SectionPriority(hits[j].sectionType)
		if pi != pj {
			return pi < pj
		}
		return hits[i].pos < hits[j].pos
	})

	var accepted []types.Section
	for _, h := range hits {
		end := sectionEnd(text, h.pos, allPositions)
		if end <= h.pos {
			continue
		}
		if overlapsAny(accepted, h.pos, end) {
			continue
		}
		conf := score(text, h, end)
		if conf < minConfidence {
			continue
		}
		accepted = append(accepted, types.Section{
			Type:       h.sectionType,
			Text:       text[h.pos:end],
			StartIndex: h.pos,
			EndIndex:   end,
			Confidence: conf,
		})
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].StartIndex < accepted[j].StartIndex })
	return accepted
}

// sectionEnd finds the earliest of: the next marker after the skip, a
// paragraph break after the skip, start+maxSectionLength, end of text.
func sectionEnd(text string, start int, allPositions []int) int {
	end := len(text)
	if start+maxSectionLength < end {
		end = start + maxSectionLength
	}

	threshold := start + boundarySkip
	idx := sort.SearchInts(allPositions, threshold+1)
	if idx < len(allPositions) && allPositions[idx] < end {
		end = allPositions[idx]
	}

	searchTo := end
	if loc := paragraphBreakRe.FindStringIndex(text[min(threshold, len(text)):searchTo]); loc != nil {
		candidate := min(threshold, len(text)) + loc[0]
		if candidate < end {
			end = candidate
		}
	}
	return end
}

func overlapsAny(accepted []types.Section, start, end int) bool {
	for _, a := range accepted {
		if start < a.EndIndex && a.StartIndex < end {
			return true
		}
	}
	return false
}

// score applies the confidence rule: base 0.7, +0.1 per additional marker
// of the same type inside the section, -0.2 for sections under 50 chars,
// -0.1 for sections over 10000 chars, clamped to [0, 1].
func score(text string, h markerHit, end int) float64 {
	conf := baseConfidence

	body := text[h.pos:end]
	extra := 0
	for _, re := range catalog[h.sectionType] {
		extra += len(re.FindAllStringIndex(body, maxMarkerHits))
	}
	if extra > 1 {
		conf += 0.1 * float64(extra-1)
	}

	if len(body) < 50 {
		conf -= 0.2
	}
	if len(body) > 10000 {
		conf -= 0.1
	}

	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

// modelFallback asks the assist model for sections over the head of the
// text, then re-validates the scanner's invariants on what comes back.
func (s *Sectionizer) modelFallback(ctx context.Context, text string) ([]types.Section, error) {
	window := text
	if len(window) > modelAssistWindow {
		window = window[:modelAssistWindow]
	}

	sections, err := s.assist.ExtractSections(ctx, window)
	if err != nil {
		return nil, types.Wrap(types.KindUnavailable, "sectionizer.Extract", err)
	}

	valid := sections[:0]
	known := map[types.SectionType]bool{}
	for _, st := range types.AllSectionTypes() {
		known[st] = true
	}
	for _, sec := range sections {
		if !known[sec.Type] {
			continue
		}
		if sec.StartIndex < 0 || sec.EndIndex > len(text) || sec.StartIndex >= sec.EndIndex {
			continue
		}
		if sec.Text != text[sec.StartIndex:sec.EndIndex] {
			continue
		}
		if overlapsAny(valid, sec.StartIndex, sec.EndIndex) {
			continue
		}
		valid = append(valid, sec)
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].StartIndex < valid[j].StartIndex })
	return valid, nil
}
