// Package usecases contains application business rules.
// Usecases orchestrate entities and depend on port interfaces only.
package usecases

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
)

// Splitter defaults, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts page text into overlapping chunks, trying paragraph breaks
// first, then line breaks, then words, then single characters.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter creates a Splitter. Non-positive values select the defaults.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// SplitPages chunks every page on its own, so no chunk crosses a page boundary.
func (s *Splitter) SplitPages(pages []entities.Page) []entities.Chunk {
	var chunks []entities.Chunk
	for _, page := range pages {
		for pos, text := range s.SplitText(page.Text) {
			chunks = append(chunks, entities.Chunk{
				ID:       generateChunkID(page.Document, page.File, page.Number, pos),
				File:     page.File,
				Page:     page.Number,
				Position: pos,
				Content:  text,
			})
		}
	}
	return chunks
}

// SplitText splits one text into chunks of at most chunkSize characters
// where the separators allow it.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	// Pick the first separator present in the text.
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = ""
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if separator == "" {
		pieces = splitRunes(text)
	} else {
		pieces = strings.Split(text, separator)
	}

	var final, good []string
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if runeLen(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, separator)...)
	}
	return final
}

// merge packs small pieces into chunks, carrying up to chunkOverlap
// characters of the previous chunk into the next one.
func (s *Splitter) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)

	var docs, current []string
	total := 0
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n+joinCost(len(current), sepLen) > s.chunkSize {
			if len(current) > 0 {
				if doc := joinChunk(current, separator); doc != "" {
					docs = append(docs, doc)
				}
				for total > s.chunkOverlap ||
					(total+n+joinCost(len(current), sepLen) > s.chunkSize && total > 0) {
					total -= runeLen(current[0]) + joinCost(len(current)-1, sepLen)
					current = current[1:]
				}
			}
		}
		current = append(current, piece)
		total += n + joinCost(len(current)-1, sepLen)
	}
	if doc := joinChunk(current, separator); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// joinCost is the separator length added when a piece joins n existing ones.
func joinCost(n, sepLen int) int {
	if n > 0 {
		return sepLen
	}
	return 0
}

func joinChunk(pieces []string, separator string) string {
	return strings.TrimSpace(strings.Join(pieces, separator))
}

func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// generateChunkID creates a deterministic ID for a chunk. Two uploads may
// share a file name, so the document's batch position is part of the key.
func generateChunkID(document int, file string, page, position int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%d|%d", document, file, page, position)))
	return hex.EncodeToString(hash[:8])
}
