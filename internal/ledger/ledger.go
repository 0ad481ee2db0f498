// internal/ledger/ledger.go
package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/reflex/internal/types"
)

// ErrInsufficientBalance is returned when a debit exceeds the account balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Ledger stores every account in either actual or reflected units and the
// global totals that join the two spaces. It is not safe for concurrent use;
// callers serialize access.
type Ledger struct {
	accounts map[types.Address]*Account
	supply   Supply

	// undo is non-nil between Begin and Commit/Rollback.
	undo *undoLog
}

type undoLog struct {
	accounts map[types.Address]*Account
	supply   Supply
}

// New creates a ledger with the whole supply credited to holder.
func New(total, floor, burnThreshold *uint256.Int, holder types.Address) (*Ledger, error) {
	if total == nil || total.IsZero() {
		return nil, fmt.Errorf("total supply must be positive")
	}
	rTotal, err := types.Mul(total, Scale)
	if err != nil {
		return nil, fmt.Errorf("total supply %s is too large: %w", total.Dec(), err)
	}
	if floor == nil {
		floor = DefaultCoefficientFloor
	}
	if floor.Gt(Scale) {
		return nil, fmt.Errorf("coefficient floor %s exceeds scale %s", floor.Dec(), Scale.Dec())
	}
	if burnThreshold == nil {
		burnThreshold = types.Zero()
	}
	if burnThreshold.Gt(total) {
		return nil, fmt.Errorf("burn threshold %s exceeds total supply", burnThreshold.Dec())
	}

	l := &Ledger{
		accounts: make(map[types.Address]*Account),
		supply: Supply{
			TTotal:            total.Clone(),
			RTotal:            rTotal,
			TotalBurned:       types.Zero(),
			ExcludedActual:    types.Zero(),
			ExcludedReflected: types.Zero(),
			CoefficientFloor:  floor.Clone(),
			BurnThreshold:     burnThreshold.Clone(),
		},
	}
	genesis := newAccount()
	genesis.Reflected = rTotal.Clone()
	l.accounts[holder] = genesis
	return l, nil
}

// Begin starts recording changes so that Rollback can undo them.
func (l *Ledger) Begin() {
	l.undo = &undoLog{
		accounts: make(map[types.Address]*Account),
		supply:   l.supply.clone(),
	}
}

// Commit keeps every change made since Begin.
func (l *Ledger) Commit() {
	l.undo = nil
}

// Rollback restores the ledger to the state it had at Begin.
func (l *Ledger) Rollback() {
	if l.undo == nil {
		return
	}
	for addr, prev := range l.undo.accounts {
		if prev == nil {
			delete(l.accounts, addr)
			continue
		}
		l.accounts[addr] = prev
	}
	l.supply = l.undo.supply
	l.undo = nil
}

// touch returns the account for addr, creating it on first use, and records
// its previous state in the undo log.
func (l *Ledger) touch(addr types.Address) *Account {
	acc, ok := l.accounts[addr]
	if l.undo != nil {
		if _, saved := l.undo.accounts[addr]; !saved {
			if ok {
				l.undo.accounts[addr] = acc.clone()
			} else {
				l.undo.accounts[addr] = nil
			}
		}
	}
	if !ok {
		acc = newAccount()
		l.accounts[addr] = acc
	}
	return acc
}

// lookup returns a read-only view of the account, or a zero account.
func (l *Ledger) lookup(addr types.Address) *Account {
	if acc, ok := l.accounts[addr]; ok {
		return acc
	}
	return newAccount()
}

// Account returns a copy of the account stored at addr.
func (l *Ledger) Account(addr types.Address) Account {
	return *l.lookup(addr).clone()
}

// Addresses returns every address the ledger has touched.
func (l *Ledger) Addresses() []types.Address {
	out := make([]types.Address, 0, len(l.accounts))
	for addr := range l.accounts {
		out = append(out, addr)
	}
	return out
}

// BalanceOf returns the token balance of addr in actual units.
func (l *Ledger) BalanceOf(addr types.Address) *uint256.Int {
	return l.balanceAt(l.lookup(addr), l.Coefficient())
}

// BalanceAt returns the balance of addr priced with the given coefficient.
func (l *Ledger) BalanceAt(addr types.Address, coeff *uint256.Int) *uint256.Int {
	return l.balanceAt(l.lookup(addr), coeff)
}

func (l *Ledger) balanceAt(acc *Account, coeff *uint256.Int) *uint256.Int {
	if acc.Excluded {
		return acc.Raw.Clone()
	}
	return new(uint256.Int).Div(acc.Reflected, coeff)
}

// Credit adds amount actual units to addr.
func (l *Ledger) Credit(addr types.Address, amount, coeff *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	reflected, err := types.Mul(amount, coeff)
	if err != nil {
		return fmt.Errorf("credit %s: %w", addr, err)
	}
	acc := l.touch(addr)
	if !acc.Excluded {
		next, err := types.Add(acc.Reflected, reflected)
		if err != nil {
			return fmt.Errorf("credit %s: %w", addr, err)
		}
		acc.Reflected = next
		return nil
	}

	raw, err := types.Add(acc.Raw, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", addr, err)
	}
	exActual, err := types.Add(l.supply.ExcludedActual, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", addr, err)
	}
	exReflected, err := types.Add(l.supply.ExcludedReflected, reflected)
	if err != nil {
		return fmt.Errorf("credit %s: %w", addr, err)
	}
	acc.Raw = raw
	l.supply.ExcludedActual = exActual
	l.supply.ExcludedReflected = exReflected
	return nil
}

// Debit removes amount actual units from addr.
func (l *Ledger) Debit(addr types.Address, amount, coeff *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	reflected, err := types.Mul(amount, coeff)
	if err != nil {
		return fmt.Errorf("debit %s: %w", addr, err)
	}
	acc := l.touch(addr)
	if !acc.Excluded {
		next, err := types.Sub(acc.Reflected, reflected)
		if err != nil {
			return fmt.Errorf("debit %s: %w", addr, ErrInsufficientBalance)
		}
		acc.Reflected = next
		return nil
	}

	raw, err := types.Sub(acc.Raw, amount)
	if err != nil {
		return fmt.Errorf("debit %s: %w", addr, ErrInsufficientBalance)
	}
	exActual, err := types.Sub(l.supply.ExcludedActual, amount)
	if err != nil {
		return fmt.Errorf("debit %s: excluded total: %w", addr, ErrInsufficientBalance)
	}
	acc.Raw = raw
	l.supply.ExcludedActual = exActual
	// Excluded reflected units were booked at an older, higher coefficient,
	// so the running total may only drift below the exact figure by dust.
	l.supply.ExcludedReflected = types.SaturatingSub(l.supply.ExcludedReflected, reflected)
	return nil
}

// SetExcluded moves addr between the reflected and the actual space without
// changing its balance or anyone else's.
func (l *Ledger) SetExcluded(addr types.Address, excluded bool) error {
	current := l.lookup(addr)
	if current.Excluded == excluded {
		return nil
	}
	coeff := l.Coefficient()
	balance := l.balanceAt(current, coeff)
	acc := l.touch(addr)

	if excluded {
		exActual, err := types.Add(l.supply.ExcludedActual, balance)
		if err != nil {
			return fmt.Errorf("exclude %s: %w", addr, err)
		}
		// The whole reflected amount moves, remainder included, so the
		// included pool shrinks by exactly what the account held.
		exReflected, err := types.Add(l.supply.ExcludedReflected, acc.Reflected)
		if err != nil {
			return fmt.Errorf("exclude %s: %w", addr, err)
		}
		l.supply.ExcludedActual = exActual
		l.supply.ExcludedReflected = exReflected
		acc.Raw = balance
		acc.Reflected = types.Zero()
		acc.Excluded = true
		return nil
	}

	reflected, err := types.Mul(balance, coeff)
	if err != nil {
		return fmt.Errorf("include %s: %w", addr, err)
	}
	exActual, err := types.Sub(l.supply.ExcludedActual, balance)
	if err != nil {
		return fmt.Errorf("include %s: %w", addr, err)
	}
	l.supply.ExcludedActual = exActual
	l.supply.ExcludedReflected = types.SaturatingSub(l.supply.ExcludedReflected, reflected)
	acc.Reflected = reflected
	acc.Raw = types.Zero()
	acc.Excluded = false
	return nil
}

// SetFineFree sets the fine-free flag of addr.
func (l *Ledger) SetFineFree(addr types.Address, v bool) {
	l.touch(addr).FineFree = v
}

// SetTaxless sets the taxless flag of addr.
func (l *Ledger) SetTaxless(addr types.Address, v bool) {
	l.touch(addr).Taxless = v
}

// SetLimitless sets the limitless flag of addr.
func (l *Ledger) SetLimitless(addr types.Address, v bool) {
	l.touch(addr).Limitless = v
}

// SetLastWeighted stores the weighted acquisition time of addr.
func (l *Ledger) SetLastWeighted(addr types.Address, ts int64) {
	l.touch(addr).LastWeighted = ts
}

// Supply returns a copy of the global totals.
func (l *Ledger) Supply() Supply {
	return l.supply.clone()
}

// TotalSupply returns the fixed actual-unit supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	return l.supply.TTotal.Clone()
}

// TotalBurned returns the amount burned so far.
func (l *Ledger) TotalBurned() *uint256.Int {
	return l.supply.TotalBurned.Clone()
}

// TotalExcluded returns the actual units held by excluded accounts.
func (l *Ledger) TotalExcluded() *uint256.Int {
	return l.supply.ExcludedActual.Clone()
}

// BurnThreshold returns the burn cap.
func (l *Ledger) BurnThreshold() *uint256.Int {
	return l.supply.BurnThreshold.Clone()
}

// SetBurnThreshold changes the burn cap. It may not exceed the supply.
func (l *Ledger) SetBurnThreshold(threshold *uint256.Int) error {
	if threshold.Gt(l.supply.TTotal) {
		return fmt.Errorf("burn threshold %s exceeds total supply %s", threshold.Dec(), l.supply.TTotal.Dec())
	}
	l.supply.BurnThreshold = threshold.Clone()
	return nil
}
