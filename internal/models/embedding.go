// ABOUTME: Embedding helpers and similarity search result structures
// ABOUTME: Vectors are fixed length and clamped to [-1, 1] before storage
package models

// EmbeddingDimension is the length of every embedding vector in the pipeline
const EmbeddingDimension = 384

// ScoredIndex is one similarity search hit against a corpus of vectors
type ScoredIndex struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// ScoredChunk pairs a retrieved chunk with its similarity to the query
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Clamp returns a copy of vec with every value limited to [-1, 1]
func Clamp(vec []float64) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		switch {
		case v > 1:
			out[i] = 1
		case v < -1:
			out[i] = -1
		case v != v: // NaN
			out[i] = 0
		default:
			out[i] = v
		}
	}
	return out
}

// FitDimension pads with zeros or truncates vec to exactly dim values
func FitDimension(vec []float64, dim int) []float64 {
	out := make([]float64, dim)
	copy(out, vec)
	return out
}
