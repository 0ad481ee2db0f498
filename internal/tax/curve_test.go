package tax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCurveSamples(t *testing.T) {
	c := DefaultCurve()

	tests := []struct {
		day  int
		want uint64
	}{
		{-3, 40},
		{0, 40},
		{1, 39},
		{15, 20},
		{29, 2},
		{30, 0},
		{45, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.At(tt.day), "day %d", tt.day)
	}
}

func TestCurveIsNonIncreasing(t *testing.T) {
	c, err := NewCurve([]Knot{{0, 30}, {7, 20}, {14, 20}, {30, 0}, {3, 25}})
	require.NoError(t, err)

	prev := c.At(0)
	for day := 1; day <= MaxDays+1; day++ {
		cur := c.At(day)
		assert.LessOrEqual(t, cur, prev, "day %d", day)
		prev = cur
	}
	assert.Equal(t, uint64(25), c.At(3))
	assert.Equal(t, uint64(20), c.At(10))
	assert.Equal(t, uint64(0), c.At(MaxDays))
}

func TestNewCurveValidation(t *testing.T) {
	tests := []struct {
		name  string
		knots []Knot
	}{
		{"too few", []Knot{{0, 0}}},
		{"late start", []Knot{{1, 40}, {30, 0}}},
		{"nonzero end", []Knot{{0, 40}, {30, 1}}},
		{"short end", []Knot{{0, 40}, {20, 0}}},
		{"rising", []Knot{{0, 10}, {5, 20}, {30, 0}}},
		{"duplicate day", []Knot{{0, 40}, {5, 20}, {5, 10}, {30, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCurve(tt.knots)
			assert.Error(t, err)
		})
	}
}

func TestKnotsReturnsCopy(t *testing.T) {
	c := DefaultCurve()
	k := c.Knots()
	k[0].Percent = 99
	assert.Equal(t, uint64(40), c.Max())
}
