// Package chunk splits extracted document text into overlapping
// retrieval units. Chunk ends are pulled back to the nearest structural
// boundary (paragraph break, heading, list item, sentence terminator)
// within a tolerance window before the target size; when no boundary is
// found the chunk is hard-cut at the target size.
package chunk

import (
	"unicode"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
)

// Options configures chunking behavior.
type Options struct {
	// Size is the target chunk length in runes.
	Size int

	// Overlap is how many runes each chunk shares with its predecessor.
	Overlap int

	// Tolerance is the window before Size in which a structural
	// boundary may end the chunk early.
	Tolerance int
}

// DefaultOptions returns the defaults used by the ingestion pipeline:
// 1000-rune chunks with 200 runes of overlap and a 200-rune boundary
// tolerance window.
func DefaultOptions() *Options {
	return &Options{
		Size:      1000,
		Overlap:   200,
		Tolerance: 200,
	}
}

// Chunker splits text deterministically: the same input always yields
// the same chunk boundaries, which keeps re-ingestion idempotent.
type Chunker struct {
	opts Options
}

// New creates a Chunker. Nil options select DefaultOptions. Invalid
// values (overlap >= size, non-positive size) are clamped to defaults.
func New(opts *Options) *Chunker {
	o := DefaultOptions()
	if opts != nil {
		if opts.Size > 0 {
			o.Size = opts.Size
		}
		if opts.Overlap >= 0 && opts.Overlap < o.Size {
			o.Overlap = opts.Overlap
		}
		if opts.Tolerance >= 0 {
			o.Tolerance = opts.Tolerance
		}
	}
	if o.Overlap >= o.Size {
		o.Overlap = o.Size / 5
	}
	if o.Tolerance >= o.Size {
		o.Tolerance = o.Size / 5
	}
	return &Chunker{opts: *o}
}

// Split divides text into ordered chunks for one document generation.
// Ordinals are contiguous from 0, every rune of the input appears in at
// least one chunk, no chunk is empty, and no chunk exceeds the target
// size. Returns nil for empty input.
func (c *Chunker) Split(documentID, sessionID, text string) []rag.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []rag.Chunk
	start := 0
	ordinal := 0

	for start < len(runes) {
		end := start + c.opts.Size
		if end >= len(runes) {
			end = len(runes)
		} else if cut := boundaryBefore(runes, end, c.opts.Tolerance, start); cut > start {
			end = cut
		}

		chunks = append(chunks, rag.Chunk{
			ID:         rag.ChunkID(documentID, ordinal),
			DocumentID: documentID,
			SessionID:  sessionID,
			Ordinal:    ordinal,
			Text:       string(runes[start:end]),
			Start:      start,
			End:        end,
		})
		ordinal++

		if end == len(runes) {
			break
		}

		next := end - c.opts.Overlap
		if next <= start {
			next = start + 1
		}
		// Snap the overlap start forward to a boundary so the shared
		// region begins on a sentence or paragraph edge when one exists.
		if snapped := boundaryAfter(runes, next, end); snapped > next && snapped < end {
			next = snapped
		}
		start = next
	}

	return chunks
}

// boundary priorities, strongest first
const (
	boundaryNone = iota
	boundarySentence
	boundaryListItem
	boundaryHeading
	boundaryParagraph
)

// boundaryBefore finds the cut position for a chunk ending near target:
// the latest occurrence of the highest-priority boundary within
// [target-tolerance, target]. Returns 0 when no boundary qualifies.
func boundaryBefore(runes []rune, target, tolerance, floor int) int {
	lo := target - tolerance
	if lo < floor+1 {
		lo = floor + 1
	}

	best := 0
	bestPriority := boundaryNone
	for i := target; i >= lo; i-- {
		p, cut := boundaryAt(runes, i)
		if p > bestPriority {
			bestPriority = p
			best = cut
			if p == boundaryParagraph {
				break
			}
		}
	}
	return best
}

// boundaryAfter finds the first boundary cut in (from, limit) so the
// overlap region can start on a structural edge.
func boundaryAfter(runes []rune, from, limit int) int {
	for i := from; i < limit; i++ {
		if p, cut := boundaryAt(runes, i); p != boundaryNone && cut > from && cut < limit {
			return cut
		}
	}
	return from
}

// boundaryAt classifies position i. The returned cut is the index the
// next chunk would start at (one past the boundary marker).
func boundaryAt(runes []rune, i int) (int, int) {
	if i <= 0 || i >= len(runes) {
		return boundaryNone, 0
	}

	// Paragraph: double line break. Cut after the blank line.
	if runes[i] == '\n' && runes[i-1] == '\n' {
		return boundaryParagraph, i + 1
	}

	// Heading or list item: newline followed by a marker. Cut before
	// the marker line so the heading stays with its section.
	if runes[i-1] == '\n' {
		switch runes[i] {
		case '#':
			return boundaryHeading, i
		case '-', '*', '+':
			if i+1 < len(runes) && runes[i+1] == ' ' {
				return boundaryListItem, i
			}
		}
		if unicode.IsDigit(runes[i]) && i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == ')') {
			return boundaryListItem, i
		}
	}

	// Sentence terminator followed by whitespace. Cut after the space.
	if isSentenceEnd(runes[i-1]) && unicode.IsSpace(runes[i]) {
		return boundarySentence, i + 1
	}

	return boundaryNone, 0
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
