// Package vector holds the in-process similarity math used by stores that
// cannot rank inside the database.
package vector

import (
	"errors"
	"math"
)

var ErrDimensionMismatch = errors.New("vector: dimension mismatch")

// CosineDistance returns 1 - cos(a, b), matching pgvector's <=> operator.
// A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}
