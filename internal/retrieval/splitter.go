// Package retrieval provides text chunking and in-memory vector search for
// the scrape tool. Pages are split into overlapping chunks, embedded, and
// ranked by cosine similarity against the query.
package retrieval

import (
	"strings"
)

// Splitter breaks text into overlapping chunks. It splits on progressively
// finer separators (paragraph, line, space) so chunks end on natural
// boundaries where possible.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter creates a splitter with the given chunk size and overlap.
// Overlap must be smaller than the chunk size; invalid values fall back to
// defaults.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   []string{"\n\n", "\n", " ", ""},
	}
}

// Split breaks text into chunks of at most chunkSize runes, with chunkOverlap
// runes carried over between consecutive chunks.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len([]rune(text)) <= s.chunkSize {
		return []string{text}
	}

	pieces := s.splitRecursive(text, s.separators)
	return s.merge(pieces)
}

// splitRecursive splits text on the first separator that yields pieces, then
// recurses into pieces still larger than chunkSize using finer separators.
func (s *Splitter) splitRecursive(text string, separators []string) []string {
	if len(separators) == 0 || len([]rune(text)) <= s.chunkSize {
		return []string{text}
	}

	sep := separators[0]
	rest := separators[1:]

	var parts []string
	if sep == "" {
		// Last resort: hard cut on rune boundaries.
		runes := []rune(text)
		for start := 0; start < len(runes); start += s.chunkSize {
			end := start + s.chunkSize
			if end > len(runes) {
				end = len(runes)
			}
			parts = append(parts, string(runes[start:end]))
		}
		return parts
	}

	for _, piece := range strings.Split(text, sep) {
		if piece == "" {
			continue
		}
		if len([]rune(piece)) > s.chunkSize {
			parts = append(parts, s.splitRecursive(piece, rest)...)
		} else {
			parts = append(parts, piece)
		}
	}
	return parts
}

// merge recombines small pieces into chunks near chunkSize, carrying overlap
// from the tail of each chunk into the next.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current []rune

	for _, piece := range pieces {
		pr := []rune(strings.TrimSpace(piece))
		if len(pr) == 0 {
			continue
		}

		if len(current) > 0 && len(current)+len(pr)+1 > s.chunkSize {
			chunks = append(chunks, strings.TrimSpace(string(current)))
			tail := current
			if len(tail) > s.chunkOverlap {
				tail = tail[len(tail)-s.chunkOverlap:]
			}
			current = append([]rune(nil), tail...)
		}

		if len(current) > 0 {
			current = append(current, ' ')
		}
		current = append(current, pr...)
	}

	if chunk := strings.TrimSpace(string(current)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}
