// internal/ledger/reflection.go
package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/reflex/internal/types"
)

// Coefficient returns the number of reflected units behind one actual unit
// held by an included account:
//
//	(rTotal - excludedReflected) / (tTotal - excludedActual - burned)
//
// The global ratio rTotal/tTotal is used when nothing is held in the included
// space, and the result never drops below the configured floor.
func (l *Ledger) Coefficient() *uint256.Int {
	s := &l.supply
	fallback := new(uint256.Int).Div(s.RTotal, s.TTotal)

	rIncluded := types.SaturatingSub(s.RTotal, s.ExcludedReflected)
	tIncluded := types.SaturatingSub(types.SaturatingSub(s.TTotal, s.ExcludedActual), s.TotalBurned)

	coeff := fallback
	if !tIncluded.IsZero() && !rIncluded.Lt(fallback) {
		coeff = new(uint256.Int).Div(rIncluded, tIncluded)
	}
	if coeff.Lt(s.CoefficientFloor) {
		return s.CoefficientFloor.Clone()
	}
	return coeff
}

// DistributeFee hands amount actual units to every included holder pro rata
// by shrinking the shared reflected pool. The amount must already have been
// debited from its owner.
func (l *Ledger) DistributeFee(amount, coeff *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	reflected, err := types.Mul(amount, coeff)
	if err != nil {
		return fmt.Errorf("distribute fee: %w", err)
	}
	rTotal, err := types.Sub(l.supply.RTotal, reflected)
	if err != nil {
		return fmt.Errorf("distribute fee: %w", err)
	}
	l.supply.RTotal = rTotal
	return nil
}

// BurnHeadroom returns how much can still be burned before the threshold.
func (l *Ledger) BurnHeadroom() *uint256.Int {
	return types.SaturatingSub(l.supply.BurnThreshold, l.supply.TotalBurned)
}

// Burn destroys up to amount actual units, stopping silently at the burn
// threshold. It returns the amount actually burned. The burned units must
// already have been debited from their owner.
func (l *Ledger) Burn(amount, coeff *uint256.Int) (*uint256.Int, error) {
	burned := types.Min(amount, l.BurnHeadroom())
	if burned.IsZero() {
		return burned, nil
	}
	reflected, err := types.Mul(burned, coeff)
	if err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}
	total, err := types.Add(l.supply.TotalBurned, burned)
	if err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}
	// Removing the reflected share keeps the coefficient unchanged by burning.
	rTotal, err := types.Sub(l.supply.RTotal, reflected)
	if err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}
	l.supply.TotalBurned = total
	l.supply.RTotal = rTotal
	return burned, nil
}
