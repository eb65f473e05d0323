// Package matcher implements the distance computation and the match
// decision between two face signatures.
package matcher

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two signatures have different lengths.
var ErrDimensionMismatch = errors.New("signature dimension mismatch")

// Distance computes the Euclidean distance between two signatures.
func Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Matcher decides whether two signatures belong to the same person.
type Matcher struct {
	Threshold float64
}

func New(threshold float64) *Matcher {
	return &Matcher{Threshold: threshold}
}

// Decide returns true when the distance is strictly below the threshold.
// A distance exactly at the threshold is rejected.
func (m *Matcher) Decide(distance float64) bool {
	return distance < m.Threshold
}

// Match computes the distance between a probe and a stored signature and
// applies the threshold decision.
func (m *Matcher) Match(probe, stored []float32) (bool, float64, error) {
	d, err := Distance(probe, stored)
	if err != nil {
		return false, 0, err
	}
	return m.Decide(d), d, nil
}

// Confidence converts a distance into a display-only score in [0, 1].
// It never participates in the match decision.
func Confidence(distance float64) float64 {
	c := 1 - distance
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
