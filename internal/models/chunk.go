// ABOUTME: Chunk represents an overlapping word window of a source document
// ABOUTME: Chunks are created in bulk by the chunk engine and never mutated
package models

import "strings"

// Chunk is a contiguous run of words from one document
type Chunk struct {
	Index int    `json:"index" yaml:"index"`
	Text  string `json:"text" yaml:"text"`
}

// Words returns the whitespace-delimited words of the chunk
func (c Chunk) Words() []string {
	return strings.Fields(c.Text)
}

// ChunkTexts flattens chunks to their text, preserving order
func ChunkTexts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}
