package farm

import (
	"fmt"
	"math"
)

// MaxSteps bounds how many steps a sequence may span. Larger sequences are
// rejected before any point is allocated.
const MaxSteps = 1 << 24

// Generate returns the evenly spaced points from start towards end using step.
// The span is truncated to a whole number of steps, so end itself is included
// only when (end-start) is a multiple of step. Generate is pure: identical
// arguments always yield identical output.
func Generate(start, end, step float64) ([]float64, error) {
	for _, v := range []float64{start, end, step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite bound %v", ErrInvalidSequence, v)
		}
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive, got %v", ErrInvalidSequence, step)
	}

	span := end - start
	span -= math.Mod(span, step)
	if span < 0 {
		return []float64{}, nil
	}
	if span == 0 {
		return []float64{start}, nil
	}

	steps := span / step
	if math.IsNaN(steps) || steps > MaxSteps {
		return nil, fmt.Errorf("%w: %v steps exceed the limit of %d", ErrInvalidSequence, steps, MaxSteps)
	}

	n := int(steps)
	if n == 0 {
		return []float64{start}, nil
	}

	points := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		points = append(points, start+span*float64(i)/float64(n))
	}
	return points, nil
}
