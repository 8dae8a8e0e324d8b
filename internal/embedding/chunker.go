package embedding

import (
	"strings"
)

// =============================================================================
// TEXT CHUNKER
// =============================================================================

// Chunk targets for court-decision sections. Sections longer than the
// target are split with word overlap so a ruling that straddles a chunk
// boundary stays retrievable from either side.
const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 2048

	// DefaultOverlapWords is the approximate word overlap between
	// consecutive chunks.
	DefaultOverlapWords = 50

	// boundarySlack is how far (as a fraction of chunk size) a chunk may
	// shrink to end on a sentence boundary.
	boundarySlack = 0.10
)

// SplitForEmbedding splits text into chunks of roughly chunkSize characters
// with roughly overlapWords words of overlap. Chunks prefer to end at a
// sentence boundary when one falls within the slack window. Zero or negative
// arguments select the defaults. Returns nil for empty input.
func SplitForEmbedding(text string, chunkSize, overlapWords int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlapWords < 0 {
		overlapWords = DefaultOverlapWords
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end >= len(text) {
			chunk := strings.TrimSpace(text[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		end = adjustToBoundary(text, start, end, chunkSize)
		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - overlapTail(text[start:end], overlapWords)
		if next <= start {
			// Overlap would stall the scan; move forward regardless.
			next = end
		}
		start = next
	}
	return chunks
}

// adjustToBoundary pulls end back to the nearest sentence terminator if one
// exists within the slack window, otherwise to a whitespace boundary so
// words are never cut mid-rune run.
func adjustToBoundary(text string, start, end, chunkSize int) int {
	slack := int(float64(chunkSize) * boundarySlack)
	floor := end - slack
	if floor < start+1 {
		floor = start + 1
	}

	for i := end - 1; i >= floor; i-- {
		switch text[i] {
		case '.', '!', '?':
			// Skip decimal points and abbreviations like "ст." followed
			// by a digit; sentence ends are followed by space or EOF.
			if i+1 >= len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				return i + 1
			}
		case '\n':
			return i + 1
		}
	}
	for i := end - 1; i >= floor; i-- {
		if text[i] == ' ' || text[i] == '\t' {
			return i + 1
		}
	}
	return end
}

// overlapTail returns the byte length of the last n words of chunk.
func overlapTail(chunk string, n int) int {
	if n == 0 {
		return 0
	}
	words := 0
	inWord := false
	for i := len(chunk) - 1; i >= 0; i-- {
		c := chunk[i]
		if c == ' ' || c == '\n' || c == '\t' {
			if inWord {
				words++
				if words >= n {
					return len(chunk) - i - 1
				}
				inWord = false
			}
		} else {
			inWord = true
		}
	}
	return len(chunk)
}
