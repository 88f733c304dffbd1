// ABOUTME: Retriever ranks a document's chunks against a query by cosine similarity
// ABOUTME: Embeds the query, takes the top-k chunks and joins them into prompt context
package core

import (
	"context"
	"strings"

	"github.com/harper/distill/internal/models"
	"github.com/harper/distill/internal/storage"
)

const (
	// DefaultTopK is the retrieval depth
	DefaultTopK = 6
	MinTopK     = 4
	MaxTopK     = 8
)

// Embedder turns text into fixed-dimension vectors and never fails
type Embedder interface {
	Embed(ctx context.Context, texts []string) [][]float64
	EmbedOne(ctx context.Context, text string) []float64
}

// Retriever performs semantic search over one document's chunks
type Retriever struct {
	embedder Embedder
	topK     int
}

// NewRetriever creates a Retriever. topK is clamped to [MinTopK, MaxTopK].
func NewRetriever(embedder Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK < MinTopK {
		topK = MinTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	return &Retriever{embedder: embedder, topK: topK}
}

// TopK returns the configured retrieval depth
func (r *Retriever) TopK() int {
	return r.topK
}

// Retrieve returns the best-matching chunks, most similar first. An empty
// query or empty document returns nil.
func (r *Retriever) Retrieve(ctx context.Context, query string, chunks []models.Chunk, vectors [][]float64) []models.ScoredChunk {
	if strings.TrimSpace(query) == "" || len(chunks) == 0 {
		return nil
	}
	q := r.embedder.EmbedOne(ctx, query)
	return storage.TopChunks(q, chunks, vectors, r.topK)
}

// JoinContext concatenates retrieved chunk texts in rank order
func JoinContext(hits []models.ScoredChunk) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Chunk.Text
	}
	return strings.Join(parts, "\n\n")
}
