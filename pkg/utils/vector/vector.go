// Package vector provides the similarity primitives used by the clusterer
// and the evaluation engine.
package vector

import "math"

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity between a and b. Degenerate inputs
// (length mismatch, empty vectors, zero norm) resolve to 0.0 rather than an
// error.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	denom := Norm(a) * Norm(b)
	if denom == 0.0 {
		return 0.0
	}

	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / denom
}

// Mean returns the elementwise arithmetic mean of vectors. An empty input
// yields a zero vector of length dim. Vectors shorter than dim contribute
// only their defined elements.
func Mean(vectors [][]float64, dim int) []float64 {
	acc := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		n++
		for i := 0; i < dim && i < len(v); i++ {
			acc[i] += v[i]
		}
	}
	if n == 0 {
		return acc
	}
	for i := range acc {
		acc[i] /= float64(n)
	}
	return acc
}
