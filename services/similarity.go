package services

import (
	"math"

	"pdf-chat-assistant/models"
)

// MaxSimilarity returns the highest cosine similarity between the query
// vector and any chunk embedding, clamped to [0,1]. Zero-magnitude vectors,
// length mismatches, and an empty corpus all score 0. The corpus is scanned
// linearly; one call per generated answer makes indexing unnecessary.
func MaxSimilarity(query []float64, chunks []models.DocumentChunk) float64 {
	queryNorm := vectorNorm(query)
	if queryNorm == 0 {
		return 0
	}

	best := 0.0
	for _, chunk := range chunks {
		if len(chunk.Embedding) != len(query) {
			continue
		}
		score := cosineSimilarity(query, chunk.Embedding, queryNorm)
		if score > best {
			best = score
		}
	}
	return best
}

func cosineSimilarity(a, b []float64, normA float64) float64 {
	normB := vectorNorm(b)
	if normB == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (normA * normB)
}

func vectorNorm(v []float64) float64 {
	sum := 0.0
	for _, val := range v {
		sum += val * val
	}
	return math.Sqrt(sum)
}
