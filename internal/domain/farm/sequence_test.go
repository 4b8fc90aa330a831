package farm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		start, end, step float64
		want             []float64
	}{
		{name: "end before start", start: 1, end: 0, step: 1, want: []float64{}},
		{name: "single point", start: 0, end: 0, step: 1, want: []float64{0}},
		{name: "span shorter than step", start: 0, end: 0.1, step: 1, want: []float64{0}},
		{name: "two points", start: 0, end: 1, step: 1, want: []float64{0, 1}},
		{name: "two points with remainder", start: 0, end: 1.1, step: 1, want: []float64{0, 1}},
		{name: "three points", start: 0, end: 2, step: 1, want: []float64{0, 1, 2}},
		{name: "three points with remainder", start: 0, end: 2.1, step: 1, want: []float64{0, 1, 2}},
		{name: "inclusive end", start: 0, end: 3, step: 1, want: []float64{0, 1, 2, 3}},
		{name: "inclusive end with remainder", start: 0, end: 3.1, step: 1, want: []float64{0, 1, 2, 3}},
		{name: "step two", start: 0, end: 5, step: 2, want: []float64{0, 2, 4}},
		{name: "step two with remainder", start: 0, end: 5.3, step: 2, want: []float64{0, 2, 4}},
		{name: "offset start", start: 10, end: 13, step: 1, want: []float64{10, 11, 12, 13}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Generate(tt.start, tt.end, tt.step)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	t.Parallel()

	first, err := Generate(0, 99, 1)
	require.NoError(t, err)
	second, err := Generate(0, 99, 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 100)
}

func TestGenerateRejectsInvalidBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		start, end, step float64
	}{
		{name: "zero step", start: 0, end: 1, step: 0},
		{name: "negative step", start: 0, end: 1, step: -1},
		{name: "nan end", start: 0, end: math.NaN(), step: 1},
		{name: "infinite start", start: math.Inf(-1), end: 1, step: 1},
		{name: "too many points", start: 0, end: 1e30, step: 1},
		{name: "steps just past limit", start: 0, end: MaxSteps + 1, step: 1},
		{name: "tiny step", start: 0, end: 1, step: 1e-12},
		{name: "span overflows", start: -math.MaxFloat64, end: math.MaxFloat64, step: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var err error
			require.NotPanics(t, func() { _, err = Generate(tt.start, tt.end, tt.step) })
			assert.ErrorIs(t, err, ErrInvalidSequence)
		})
	}
}

func TestGenerateAtStepLimit(t *testing.T) {
	t.Parallel()

	got, err := Generate(0, MaxSteps, 1)
	require.NoError(t, err)
	assert.Len(t, got, MaxSteps+1)
	assert.Equal(t, float64(MaxSteps), got[len(got)-1])
}
