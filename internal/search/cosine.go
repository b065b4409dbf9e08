package search

import (
	"fmt"
	"math"

	"document-rag/internal/models"
)

// Cosine returns the cosine similarity of a and b. A zero-norm operand scores
// exactly 0. Vectors of different length also score 0; use CheckDims to tell
// the two cases apart.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CheckDims reports models.ErrMalformedVector when either vector is empty or
// their lengths differ.
func CheckDims(query, candidate []float32) error {
	if len(query) == 0 || len(candidate) == 0 {
		return fmt.Errorf("%w: empty embedding", models.ErrMalformedVector)
	}
	if len(query) != len(candidate) {
		return fmt.Errorf("%w: dimension %d != %d", models.ErrMalformedVector, len(candidate), len(query))
	}
	return nil
}
