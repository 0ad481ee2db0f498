// internal/access/access.go
package access

import (
	"errors"
	"fmt"

	"github.com/rovshanmuradov/reflex/internal/types"
)

var (
	// ErrUnauthorized is returned when a caller is not the owner or a grant is stale.
	ErrUnauthorized = errors.New("caller is not the owner")
	// ErrInvalidOwner is returned when ownership is handed to the zero address.
	ErrInvalidOwner = errors.New("new owner is the zero address")
)

// Grant proves that its holder was the owner when it was issued. A grant
// stops working as soon as ownership changes hands or is renounced.
type Grant struct {
	holder types.Address
	epoch  uint64
	issuer *Ownership
}

// Holder returns the address the grant was issued to.
func (g Grant) Holder() types.Address {
	return g.holder
}

// Ownership tracks the single owner of a token. It is not safe for
// concurrent use; the token serializes access.
type Ownership struct {
	owner types.Address
	epoch uint64
}

// NewOwnership makes owner the first owner.
func NewOwnership(owner types.Address) *Ownership {
	return &Ownership{owner: owner}
}

// Owner returns the current owner, or the zero address once renounced.
func (o *Ownership) Owner() types.Address {
	return o.owner
}

// Authorize issues a grant to caller if caller is the current owner.
func (o *Ownership) Authorize(caller types.Address) (Grant, error) {
	if o.owner.IsZero() || caller != o.owner {
		return Grant{}, fmt.Errorf("authorize %s: %w", caller, ErrUnauthorized)
	}
	return Grant{holder: caller, epoch: o.epoch, issuer: o}, nil
}

// Check verifies that g was issued by o to the current owner.
func (o *Ownership) Check(g Grant) error {
	if g.issuer != o || g.epoch != o.epoch || o.owner.IsZero() || g.holder != o.owner {
		return ErrUnauthorized
	}
	return nil
}

// Transfer hands ownership to next and invalidates every outstanding grant.
func (o *Ownership) Transfer(g Grant, next types.Address) error {
	if err := o.Check(g); err != nil {
		return err
	}
	if next.IsZero() {
		return ErrInvalidOwner
	}
	o.owner = next
	o.epoch++
	return nil
}

// Renounce leaves the token without an owner. No grant can be issued afterwards.
func (o *Ownership) Renounce(g Grant) error {
	if err := o.Check(g); err != nil {
		return err
	}
	o.owner = types.ZeroAddress
	o.epoch++
	return nil
}
