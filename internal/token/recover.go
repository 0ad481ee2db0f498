// internal/token/recover.go
package token

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/reflex/internal/access"
	"github.com/rovshanmuradov/reflex/internal/events"
	"github.com/rovshanmuradov/reflex/internal/types"
)

// ForeignToken is another token that may hold a balance for this token's address.
type ForeignToken interface {
	Address() types.Address
	Transfer(ctx context.Context, from, to types.Address, amount *uint256.Int) error
}

// RecoverToken sends amount of a foreign token held by this token's address
// to another account. The foreign transfer runs after the lock is released.
func (t *Token) RecoverToken(ctx context.Context, g access.Grant, foreign ForeignToken, to types.Address, amount *uint256.Int) error {
	t.mu.Lock()
	err := t.owner.Check(g)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("recover token: %w", err)
	}
	if foreign.Address() == t.self {
		return fmt.Errorf("recover token: %w", ErrSelfRecoveryForbidden)
	}
	if to.IsZero() {
		return fmt.Errorf("recover token: %w", ErrInvalidRecipient)
	}

	if err := foreign.Transfer(ctx, t.self, to, amount); err != nil {
		return fmt.Errorf("recover token %s: %w", foreign.Address(), err)
	}

	t.logger.Info("Foreign token recovered",
		zap.String("token", foreign.Address().String()),
		zap.String("to", to.String()),
		zap.String("amount", amount.Dec()))
	t.emit(events.TokenRecoveredEvent{
		BaseEvent: events.NewBase(events.TokenRecovered, t.clock()),
		Token:     foreign.Address(),
		To:        to,
		Amount:    amount.Clone(),
	})
	return nil
}
