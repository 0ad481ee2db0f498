// internal/ledger/account.go
package ledger

import (
	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/reflex/internal/types"
)

// Account is a single holder record. Only one of Raw and Reflected is
// meaningful at a time, selected by Excluded.
type Account struct {
	// Raw is the balance in actual units. Used while Excluded.
	Raw *uint256.Int
	// Reflected is the balance in reflected units. Used while included.
	Reflected *uint256.Int
	// LastWeighted is the amount-weighted acquisition time, unix seconds.
	LastWeighted int64

	Excluded  bool
	FineFree  bool
	Taxless   bool
	Limitless bool
}

func newAccount() *Account {
	return &Account{Raw: types.Zero(), Reflected: types.Zero()}
}

func (a *Account) clone() *Account {
	c := *a
	c.Raw = types.Clone(a.Raw)
	c.Reflected = types.Clone(a.Reflected)
	return &c
}

// Flags is the read-only flag set of an account.
type Flags struct {
	Excluded  bool
	FineFree  bool
	Taxless   bool
	Limitless bool
}

// Flags returns the flag set of the account.
func (a Account) Flags() Flags {
	return Flags{
		Excluded:  a.Excluded,
		FineFree:  a.FineFree,
		Taxless:   a.Taxless,
		Limitless: a.Limitless,
	}
}
