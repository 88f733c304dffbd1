// ABOUTME: ChunkEngine splits documents into overlapping word windows for embedding
// ABOUTME: Also provides the paragraph and sentence splitting used by fallback content
package core

import (
	"strings"

	"github.com/harper/distill/internal/models"
)

const (
	// DefaultChunkWords is the window size in words
	DefaultChunkWords = 400
	// DefaultChunkOverlap is how many trailing words seed the next window
	DefaultChunkOverlap = 50
)

// ChunkEngine handles sliding-window text chunking
type ChunkEngine struct {
	window  int
	overlap int
}

// NewChunkEngine creates a ChunkEngine. Non-positive window uses the default;
// overlap is clamped to [0, window-1].
func NewChunkEngine(window, overlap int) *ChunkEngine {
	if window <= 0 {
		window = DefaultChunkWords
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= window {
		overlap = window - 1
	}
	return &ChunkEngine{window: window, overlap: overlap}
}

// Chunk splits text on whitespace into windows of at most window words. Each
// window after the first starts with the last overlap words of the previous
// one. A trailing window is only emitted when it holds words not already
// emitted, so no chunk consists purely of overlap.
func (ce *ChunkEngine) Chunk(text string) []models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []models.Chunk
	var cur []string
	fresh := 0
	for _, w := range words {
		cur = append(cur, w)
		fresh++
		if len(cur) >= ce.window {
			chunks = append(chunks, models.Chunk{Index: len(chunks), Text: strings.Join(cur, " ")})
			seed := make([]string, ce.overlap)
			copy(seed, cur[len(cur)-ce.overlap:])
			cur = seed
			fresh = 0
		}
	}
	if fresh > 0 {
		chunks = append(chunks, models.Chunk{Index: len(chunks), Text: strings.Join(cur, " ")})
	}
	return chunks
}

// Window returns the configured window size in words
func (ce *ChunkEngine) Window() int { return ce.window }

// Overlap returns the configured overlap in words
func (ce *ChunkEngine) Overlap() int { return ce.overlap }

// splitParagraphs splits text by blank lines
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var result []string
	for _, para := range strings.Split(text, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			result = append(result, para)
		}
	}
	return result
}

// splitSentences splits text on sentence-ending punctuation followed by a space
func splitSentences(text string) []string {
	var result []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			result = append(result, strings.Join(strings.Fields(s), " "))
		}
		b.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
				flush()
			}
		} else if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			flush()
		}
	}
	flush()
	return result
}
