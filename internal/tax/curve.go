// internal/tax/curve.go
package tax

import (
	"fmt"
	"sort"
)

// MaxDays is the age in days after which no fine applies.
const MaxDays = 30

// Knot is one point of the fine curve: Percent applies on day Day.
type Knot struct {
	Day     int    `mapstructure:"day" yaml:"day" json:"day"`
	Percent uint64 `mapstructure:"percent" yaml:"percent" json:"percent"`
}

// Curve is a piecewise-linear fine schedule over whole days.
type Curve struct {
	knots []Knot
}

// DefaultKnots is a straight line from 40% on day 0 to nothing on day 30.
func DefaultKnots() []Knot {
	return []Knot{{Day: 0, Percent: 40}, {Day: MaxDays, Percent: 0}}
}

// DefaultCurve returns the curve built from DefaultKnots.
func DefaultCurve() *Curve {
	c, err := NewCurve(DefaultKnots())
	if err != nil {
		panic(err)
	}
	return c
}

// NewCurve validates knots and builds a curve. The knots must start on day 0,
// end on MaxDays at 0% and never increase.
func NewCurve(knots []Knot) (*Curve, error) {
	if len(knots) < 2 {
		return nil, fmt.Errorf("fine curve needs at least 2 knots, got %d", len(knots))
	}
	sorted := make([]Knot, len(knots))
	copy(sorted, knots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Day < sorted[j].Day })

	if sorted[0].Day != 0 {
		return nil, fmt.Errorf("fine curve must start on day 0, starts on day %d", sorted[0].Day)
	}
	last := sorted[len(sorted)-1]
	if last.Day != MaxDays || last.Percent != 0 {
		return nil, fmt.Errorf("fine curve must end at 0%% on day %d, ends at %d%% on day %d",
			MaxDays, last.Percent, last.Day)
	}
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.Day == prev.Day {
			return nil, fmt.Errorf("fine curve has two knots on day %d", cur.Day)
		}
		if cur.Percent > prev.Percent {
			return nil, fmt.Errorf("fine curve rises from %d%% to %d%% on day %d",
				prev.Percent, cur.Percent, cur.Day)
		}
	}
	return &Curve{knots: sorted}, nil
}

// Knots returns a copy of the knots in day order.
func (c *Curve) Knots() []Knot {
	out := make([]Knot, len(c.knots))
	copy(out, c.knots)
	return out
}

// Max returns the fine on day 0, the largest the curve produces.
func (c *Curve) Max() uint64 {
	return c.knots[0].Percent
}

// At returns the fine for an age in whole days. Between knots the value is
// interpolated and rounded up, so a partial day never lowers the fine early.
func (c *Curve) At(days int) uint64 {
	if days <= 0 {
		return c.knots[0].Percent
	}
	if days >= MaxDays {
		return 0
	}
	i := sort.Search(len(c.knots), func(i int) bool { return c.knots[i].Day >= days })
	hi := c.knots[i]
	if hi.Day == days {
		return hi.Percent
	}
	lo := c.knots[i-1]
	span := uint64(hi.Day - lo.Day)
	left := uint64(hi.Day - days)
	drop := lo.Percent - hi.Percent
	return hi.Percent + (drop*left+span-1)/span
}
