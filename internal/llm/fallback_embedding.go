// ABOUTME: Deterministic lexical-signal embedding used when the remote service fails
// ABOUTME: Leading dims carry term densities and length; the rest is seeded noise
package llm

import (
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"github.com/harper/distill/internal/models"
)

var (
	technicalTerms = termSet("api", "database", "algorithm", "function", "class", "method", "variable", "loop", "condition", "error")
	frameworkTerms = termSet("react", "python", "javascript", "docker", "kubernetes", "aws", "azure", "node", "express", "fastapi")
	learningTerms  = termSet("learn", "understand", "practice", "example", "tutorial", "guide", "step", "process", "method")
)

// lexicalDims is the count of leading dimensions derived from text features.
// Only these dimensions are comparable across implementations.
const lexicalDims = 5

func termSet(terms ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// FallbackEmbedding builds a 384-dim vector from cheap lexical signals.
// The same text always yields the same vector.
func FallbackEmbedding(text string) []float64 {
	return fallbackEmbedding(text, models.EmbeddingDimension)
}

func fallbackEmbedding(text string, dim int) []float64 {
	vec := make([]float64, dim)
	words := strings.Fields(strings.ToLower(text))
	wordCount := len(words)
	denom := float64(max(wordCount, 1))

	var technical, framework, learning int
	for _, w := range words {
		if _, ok := technicalTerms[w]; ok {
			technical++
		}
		if _, ok := frameworkTerms[w]; ok {
			framework++
		}
		if _, ok := learningTerms[w]; ok {
			learning++
		}
	}

	features := []float64{
		min(float64(technical)/denom, 1),
		min(float64(framework)/denom, 1),
		min(float64(learning)/denom, 1),
		min(float64(len(text))/1000, 1),
		min(float64(wordCount)/100, 1),
	}
	copy(vec, features)

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := lexicalDims; i < dim; i++ {
		vec[i] = rng.Float64()*0.2 - 0.1
	}
	return vec
}
