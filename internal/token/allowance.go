// internal/token/allowance.go
package token

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/reflex/internal/events"
	"github.com/rovshanmuradov/reflex/internal/types"
)

// Allowance returns how much spender may still move on behalf of owner.
func (t *Token) Allowance(owner, spender types.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowance(owner, spender)
}

// Approve sets the allowance of spender over the funds of owner.
func (t *Token) Approve(owner, spender types.Address, amount *uint256.Int) error {
	t.mu.Lock()
	err := t.approve(owner, spender, amount)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.emitApproval(owner, spender, amount)
	return nil
}

// IncreaseAllowance raises the allowance of spender by delta.
func (t *Token) IncreaseAllowance(owner, spender types.Address, delta *uint256.Int) error {
	t.mu.Lock()
	next, err := types.Add(t.allowance(owner, spender), delta)
	if err == nil {
		err = t.approve(owner, spender, next)
	}
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("increase allowance: %w", err)
	}
	t.emitApproval(owner, spender, next)
	return nil
}

// DecreaseAllowance lowers the allowance of spender by delta. It fails if
// delta is larger than the current allowance.
func (t *Token) DecreaseAllowance(owner, spender types.Address, delta *uint256.Int) error {
	t.mu.Lock()
	current := t.allowance(owner, spender)
	next, err := types.Sub(current, delta)
	if err != nil {
		err = fmt.Errorf("%w: allowance %s, decrease %s", ErrInsufficientAllowance, current.Dec(), delta.Dec())
	} else {
		err = t.approve(owner, spender, next)
	}
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("decrease allowance: %w", err)
	}
	t.emitApproval(owner, spender, next)
	return nil
}

func (t *Token) approve(owner, spender types.Address, amount *uint256.Int) error {
	if owner.IsZero() || spender.IsZero() {
		return fmt.Errorf("approve: %w: zero address", ErrInvalidRecipient)
	}
	t.setAllowance(owner, spender, amount)
	return nil
}

func (t *Token) allowance(owner, spender types.Address) *uint256.Int {
	return types.Clone(t.allowances[owner][spender])
}

func (t *Token) setAllowance(owner, spender types.Address, amount *uint256.Int) {
	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[types.Address]*uint256.Int)
		t.allowances[owner] = byOwner
	}
	if amount.IsZero() {
		delete(byOwner, spender)
		return
	}
	byOwner[spender] = amount.Clone()
}

func (t *Token) emitApproval(owner, spender types.Address, amount *uint256.Int) {
	t.emit(events.ApprovalEvent{
		BaseEvent: events.NewBase(events.ApprovalChanged, t.clock()),
		Owner:     owner,
		Spender:   spender,
		Amount:    amount.Clone(),
	})
}
