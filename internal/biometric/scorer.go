package biometric

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// DefaultMatchThreshold is the Euclidean distance below which two
// descriptors are considered the same face.
const DefaultMatchThreshold = 0.6

// Distance is the Euclidean distance between a and b.
func Distance(a, b FeatureVector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("%w: empty", ErrMalformedDescriptor)
	}
	return floats.Distance(a, b, 2), nil
}

// Scorer applies the match threshold. Lower distance means more similar.
type Scorer struct {
	Threshold float64
}

// NewScorer returns a Scorer, using DefaultMatchThreshold when threshold <= 0.
func NewScorer(threshold float64) Scorer {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return Scorer{Threshold: threshold}
}

// IsMatch rejects at exactly the threshold.
func (s Scorer) IsMatch(distance float64) bool {
	return distance < s.Threshold
}
