// ABOUTME: Brute-force cosine similarity search over in-memory vectors
// ABOUTME: Recomputed on every query; corpora are single-document chunk sets
package storage

import (
	"math"
	"sort"

	"github.com/harper/distill/internal/models"
)

// CosineSimilarity computes cosine similarity over the shared prefix of a
// and b. A zero vector on either side yields 0.
func CosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dotProduct, normA, normB float64
	for i := 0; i < n; i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push identical vectors a hair past 1
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// MostSimilar ranks corpus against query by descending cosine similarity and
// returns at most topK hits. Equal scores keep corpus order.
func MostSimilar(query []float64, corpus [][]float64, topK int) []models.ScoredIndex {
	if topK <= 0 || len(corpus) == 0 {
		return nil
	}

	results := make([]models.ScoredIndex, len(corpus))
	for i, vec := range corpus {
		results[i] = models.ScoredIndex{Index: i, Score: CosineSimilarity(query, vec)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// TopChunks resolves the best topK chunks for query, keeping their scores.
// chunks and vectors are parallel slices; extra entries on either side are ignored.
func TopChunks(query []float64, chunks []models.Chunk, vectors [][]float64, topK int) []models.ScoredChunk {
	n := len(chunks)
	if len(vectors) < n {
		n = len(vectors)
	}
	hits := MostSimilar(query, vectors[:n], topK)
	out := make([]models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.ScoredChunk{Chunk: chunks[h.Index], Score: h.Score})
	}
	return out
}
