// internal/token/snapshot.go
package token

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/reflex/internal/access"
	"github.com/rovshanmuradov/reflex/internal/ledger"
	"github.com/rovshanmuradov/reflex/internal/tax"
	"github.com/rovshanmuradov/reflex/internal/types"
)

// AllowanceEntry is one allowance in a State.
type AllowanceEntry struct {
	Owner   types.Address
	Spender types.Address
	Amount  *uint256.Int
}

// State is a detached copy of a whole token.
type State struct {
	Name            string
	Symbol          string
	Self            types.Address
	Owner           types.Address
	BaseTaxPercent  uint64
	FineCurve       []tax.Knot
	Settings        Settings
	TreasuryPending *uint256.Int
	Allowances      []AllowanceEntry
	Ledger          ledger.Snapshot
}

// Snapshot copies the token state.
func (t *Token) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	var allowances []AllowanceEntry
	for owner, bySpender := range t.allowances {
		for spender, amount := range bySpender {
			allowances = append(allowances, AllowanceEntry{Owner: owner, Spender: spender, Amount: amount.Clone()})
		}
	}
	sort.Slice(allowances, func(i, j int) bool {
		a, b := allowances[i], allowances[j]
		if a.Owner != b.Owner {
			return a.Owner.String() < b.Owner.String()
		}
		return a.Spender.String() < b.Spender.String()
	})

	return State{
		Name:            t.name,
		Symbol:          t.symbol,
		Self:            t.self,
		Owner:           t.owner.Owner(),
		BaseTaxPercent:  t.policy.BaseTax,
		FineCurve:       t.policy.Curve.Knots(),
		Settings:        t.cfg.clone(),
		TreasuryPending: t.treasuryPending.Clone(),
		Allowances:      allowances,
		Ledger:          t.ledger.Snapshot(),
	}
}

// Restore rebuilds a token from a snapshot. A renounced token stays without owner.
func Restore(s State, opts ...Option) (*Token, error) {
	if s.Self.IsZero() {
		return nil, fmt.Errorf("restore token: %w", invalidParam("token address is zero"))
	}
	curve, err := tax.NewCurve(s.FineCurve)
	if err != nil {
		return nil, fmt.Errorf("restore token: %w", invalidParam("%v", err))
	}
	policy := &tax.Policy{BaseTax: s.BaseTaxPercent, Curve: curve}
	if err := checkTaxBudget(policy, s.Settings.BurnPercent); err != nil {
		return nil, fmt.Errorf("restore token: %w", err)
	}
	l, err := ledger.Restore(s.Ledger)
	if err != nil {
		return nil, fmt.Errorf("restore token: %w", err)
	}

	t := &Token{
		name:            s.Name,
		symbol:          s.Symbol,
		self:            s.Self,
		ledger:          l,
		policy:          policy,
		owner:           access.NewOwnership(s.Owner),
		cfg:             s.Settings.clone(),
		treasuryPending: types.Clone(s.TreasuryPending),
		allowances:      make(map[types.Address]map[types.Address]*uint256.Int),
	}
	for _, a := range s.Allowances {
		t.setAllowance(a.Owner, a.Spender, types.Clone(a.Amount))
	}
	t.applyOptions(opts)
	return t, nil
}
