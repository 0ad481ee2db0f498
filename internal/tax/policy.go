// internal/tax/policy.go
package tax

import (
	"fmt"
	"time"

	"github.com/rovshanmuradov/reflex/internal/ledger"
)

// MinTaxPercent is charged to taxless senders.
const MinTaxPercent uint64 = 0

// SecondsPerDay converts elapsed seconds into whole days of holding.
const SecondsPerDay = 86400

// Policy computes the tax percentage owed by a sender.
type Policy struct {
	BaseTax uint64
	Curve   *Curve
}

// NewPolicy validates that the base tax plus the largest fine stays within 100%.
func NewPolicy(baseTax uint64, curve *Curve) (*Policy, error) {
	if curve == nil {
		curve = DefaultCurve()
	}
	p := &Policy{BaseTax: baseTax, Curve: curve}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the combined maximum tax.
func (p *Policy) Validate() error {
	if p.BaseTax+p.Curve.Max() > 100 {
		return fmt.Errorf("base tax %d%% plus maximum fine %d%% exceeds 100%%", p.BaseTax, p.Curve.Max())
	}
	return nil
}

// MaxBaseTax returns the largest base tax the curve allows.
func (p *Policy) MaxBaseTax() uint64 {
	return 100 - p.Curve.Max()
}

// DaysHeld returns the whole days between lastWeighted and at, clamped to
// [0, MaxDays].
func DaysHeld(lastWeighted int64, at time.Time) int {
	elapsed := at.Unix() - lastWeighted
	if elapsed <= 0 {
		return 0
	}
	days := elapsed / SecondsPerDay
	if days > MaxDays {
		return MaxDays
	}
	return int(days)
}

// PercentAt returns the tax percentage for an account with the given flags
// and weighted acquisition time, evaluated at time at.
func (p *Policy) PercentAt(flags ledger.Flags, lastWeighted int64, at time.Time) uint64 {
	if flags.Taxless {
		return MinTaxPercent
	}
	if flags.FineFree {
		return p.BaseTax
	}
	return p.BaseTax + p.Curve.At(DaysHeld(lastWeighted, at))
}
