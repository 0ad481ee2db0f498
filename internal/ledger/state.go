// internal/ledger/state.go
package ledger

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/reflex/internal/types"
)

// Scale is the initial number of reflected units per actual unit.
var Scale = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(36))

// DefaultCoefficientFloor keeps at least 1e18 reflected units behind every actual unit.
var DefaultCoefficientFloor = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))

// Supply holds the global accounting totals.
type Supply struct {
	TTotal            *uint256.Int
	RTotal            *uint256.Int
	TotalBurned       *uint256.Int
	ExcludedActual    *uint256.Int
	ExcludedReflected *uint256.Int
	CoefficientFloor  *uint256.Int
	BurnThreshold     *uint256.Int
}

func (s Supply) clone() Supply {
	return Supply{
		TTotal:            types.Clone(s.TTotal),
		RTotal:            types.Clone(s.RTotal),
		TotalBurned:       types.Clone(s.TotalBurned),
		ExcludedActual:    types.Clone(s.ExcludedActual),
		ExcludedReflected: types.Clone(s.ExcludedReflected),
		CoefficientFloor:  types.Clone(s.CoefficientFloor),
		BurnThreshold:     types.Clone(s.BurnThreshold),
	}
}

// AccountEntry pairs an address with a copy of its account.
type AccountEntry struct {
	Address types.Address
	Account Account
}

// Snapshot is a detached copy of the whole ledger.
type Snapshot struct {
	Supply   Supply
	Accounts []AccountEntry
}

// Snapshot copies the ledger. Accounts are ordered by address.
func (l *Ledger) Snapshot() Snapshot {
	entries := make([]AccountEntry, 0, len(l.accounts))
	for addr, acc := range l.accounts {
		entries = append(entries, AccountEntry{Address: addr, Account: *acc.clone()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address.String() < entries[j].Address.String()
	})
	return Snapshot{Supply: l.supply.clone(), Accounts: entries}
}

// Restore rebuilds a ledger from a snapshot.
func Restore(s Snapshot) (*Ledger, error) {
	if s.Supply.TTotal == nil || s.Supply.TTotal.IsZero() {
		return nil, fmt.Errorf("restore ledger: total supply is zero")
	}
	if s.Supply.RTotal == nil || s.Supply.RTotal.IsZero() {
		return nil, fmt.Errorf("restore ledger: reflected supply is zero")
	}
	l := &Ledger{
		accounts: make(map[types.Address]*Account, len(s.Accounts)),
		supply:   s.Supply.clone(),
	}
	for _, e := range s.Accounts {
		acc := e.Account
		l.accounts[e.Address] = acc.clone()
	}
	return l, nil
}
