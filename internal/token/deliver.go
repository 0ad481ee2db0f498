// internal/token/deliver.go
package token

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/reflex/internal/events"
	"github.com/rovshanmuradov/reflex/internal/types"
)

// Deliver donates amount of the caller's balance to every included holder,
// the caller among them, without any tax or burn.
func (t *Token) Deliver(from types.Address, amount *uint256.Int, now time.Time) error {
	t.mu.Lock()
	coeff, err := t.deliver(from, amount)
	t.mu.Unlock()
	if err != nil {
		t.logger.Debug("Deliver rejected", zap.String("from", types.ShortAddress(from)), zap.Error(err))
		return fmt.Errorf("deliver: %w", err)
	}

	t.emit(events.DeliveredEvent{
		BaseEvent:   events.NewBase(events.Delivered, now),
		From:        from,
		Amount:      amount.Clone(),
		Coefficient: coeff,
	})
	return nil
}

func (t *Token) deliver(from types.Address, amount *uint256.Int) (*uint256.Int, error) {
	acc := t.ledger.Account(from)
	if acc.Excluded {
		return nil, ErrExcludedDeliver
	}
	coeff := t.ledger.Coefficient()
	if balance := t.ledger.BalanceAt(from, coeff); balance.Lt(amount) {
		return nil, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientBalance, balance.Dec(), amount.Dec())
	}

	t.ledger.Begin()
	if err := t.ledger.Debit(from, amount, coeff); err != nil {
		t.ledger.Rollback()
		return nil, err
	}
	if err := t.ledger.DistributeFee(amount, coeff); err != nil {
		t.ledger.Rollback()
		return nil, err
	}
	t.ledger.Commit()
	return coeff, nil
}
