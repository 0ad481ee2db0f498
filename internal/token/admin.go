// internal/token/admin.go
package token

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/reflex/internal/access"
	"github.com/rovshanmuradov/reflex/internal/events"
	"github.com/rovshanmuradov/reflex/internal/tax"
	"github.com/rovshanmuradov/reflex/internal/types"
)

// guarded runs an owner operation under the lock and publishes its event
// after the lock is released.
func (t *Token) guarded(g access.Grant, op string, fn func() (events.Event, error)) error {
	t.mu.Lock()
	if err := t.owner.Check(g); err != nil {
		t.mu.Unlock()
		t.logger.Debug("Admin call rejected", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	evt, err := fn()
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	t.logger.Info("Admin operation applied", zap.String("operation", op))
	if evt != nil {
		t.emit(evt)
	}
	return nil
}

func (t *Token) changed(name, value string, account types.Address) events.Event {
	return events.ParameterChangedEvent{
		BaseEvent: events.NewBase(events.ParameterChanged, t.clock()),
		Name:      name,
		Value:     value,
		Account:   account,
	}
}

// OpenTrades opens trading for everyone. It cannot be undone; opening twice
// is a no-op.
func (t *Token) OpenTrades(g access.Grant) error {
	return t.guarded(g, "open trades", func() (events.Event, error) {
		if t.cfg.TradingOpen {
			return nil, nil
		}
		t.cfg.TradingOpen = true
		return events.TradingOpenedEvent{BaseEvent: events.NewBase(events.TradingOpened, t.clock())}, nil
	})
}

// IsTradingOpen reports whether trading has been opened.
func (t *Token) IsTradingOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.TradingOpen
}

// TransferOwnership hands the admin rights to next. Grants issued so far stop working.
func (t *Token) TransferOwnership(g access.Grant, next types.Address) error {
	return t.guarded(g, "transfer ownership", func() (events.Event, error) {
		prev := t.owner.Owner()
		if err := t.owner.Transfer(g, next); err != nil {
			if errors.Is(err, access.ErrInvalidOwner) {
				return nil, fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
			}
			return nil, err
		}
		return events.OwnershipTransferredEvent{
			BaseEvent: events.NewBase(events.OwnershipTransferred, t.clock()),
			Previous:  prev,
			Next:      next,
		}, nil
	})
}

// RenounceOwnership leaves the token without an owner for good.
func (t *Token) RenounceOwnership(g access.Grant) error {
	return t.guarded(g, "renounce ownership", func() (events.Event, error) {
		prev := t.owner.Owner()
		if err := t.owner.Renounce(g); err != nil {
			return nil, err
		}
		return events.OwnershipTransferredEvent{
			BaseEvent: events.NewBase(events.OwnershipTransferred, t.clock()),
			Previous:  prev,
		}, nil
	})
}

// SetDexAddr sets the DEX reserve. Transfers from or to it are untaxed and
// its balance does not count as circulation.
func (t *Token) SetDexAddr(g access.Grant, addr types.Address) error {
	return t.guarded(g, "set dex address", func() (events.Event, error) {
		if addr.IsZero() || addr == t.self {
			return nil, invalidParam("dex address %s", addr)
		}
		t.cfg.Dex = addr
		return t.changed("dex", addr.String(), addr), nil
	})
}

// SetDexRouterAddr sets the DEX router. The zero address unsets it.
func (t *Token) SetDexRouterAddr(g access.Grant, addr types.Address) error {
	return t.guarded(g, "set dex router address", func() (events.Event, error) {
		if addr == t.self {
			return nil, invalidParam("dex router address %s", addr)
		}
		t.cfg.DexRouter = addr
		return t.changed("dex_router", addr.String(), addr), nil
	})
}

// SetTreasuryAddr sets where the treasury share is paid.
func (t *Token) SetTreasuryAddr(g access.Grant, addr types.Address) error {
	return t.guarded(g, "set treasury address", func() (events.Event, error) {
		if addr.IsZero() || addr == t.self {
			return nil, invalidParam("treasury address %s", addr)
		}
		t.cfg.Treasury = addr
		return t.changed("treasury", addr.String(), addr), nil
	})
}

// SetPresaleContractAddr selects the presale whose whitelist may trade early.
// The zero address disables early trading.
func (t *Token) SetPresaleContractAddr(g access.Grant, addr types.Address) error {
	return t.guarded(g, "set presale address", func() (events.Event, error) {
		t.cfg.Presale = addr
		return t.changed("presale", addr.String(), addr), nil
	})
}

// SetBaseTaxPercentage sets the base tax. Together with the largest fine and
// the burn it may not exceed 100%.
func (t *Token) SetBaseTaxPercentage(g access.Grant, pct uint64) error {
	return t.guarded(g, "set base tax", func() (events.Event, error) {
		next := &tax.Policy{BaseTax: pct, Curve: t.policy.Curve}
		if err := checkTaxBudget(next, t.cfg.BurnPercent); err != nil {
			return nil, err
		}
		t.policy = next
		return t.changed("base_tax_percent", strconv.FormatUint(pct, 10), types.ZeroAddress), nil
	})
}

// SetInvestPercentage sets the share of the tax paid to the treasury.
func (t *Token) SetInvestPercentage(g access.Grant, pct uint64) error {
	return t.guarded(g, "set invest percentage", func() (events.Event, error) {
		if pct > 100 {
			return nil, invalidParam("invest percentage %d exceeds 100", pct)
		}
		t.cfg.InvestPercent = pct
		return t.changed("invest_percent", strconv.FormatUint(pct, 10), types.ZeroAddress), nil
	})
}

// SetBurnPercentage sets the share of every transfer that is burned.
func (t *Token) SetBurnPercentage(g access.Grant, pct uint64) error {
	return t.guarded(g, "set burn percentage", func() (events.Event, error) {
		if err := checkTaxBudget(t.policy, pct); err != nil {
			return nil, err
		}
		t.cfg.BurnPercent = pct
		return t.changed("burn_percent", strconv.FormatUint(pct, 10), types.ZeroAddress), nil
	})
}

// SetMaxBalanceBps sets the share of circulation, in basis points, added to
// the max-balance floor.
func (t *Token) SetMaxBalanceBps(g access.Grant, bps uint64) error {
	return t.guarded(g, "set max balance", func() (events.Event, error) {
		if bps > 10000 {
			return nil, invalidParam("max balance %d bps exceeds 10000", bps)
		}
		t.cfg.MaxBalanceBps = bps
		return t.changed("max_balance_bps", strconv.FormatUint(bps, 10), types.ZeroAddress), nil
	})
}

// SetBurnThreshold sets the cap on total burned tokens. A cap at or below
// what has already burned stops burning.
func (t *Token) SetBurnThreshold(g access.Grant, threshold *uint256.Int) error {
	return t.guarded(g, "set burn threshold", func() (events.Event, error) {
		if err := t.ledger.SetBurnThreshold(threshold); err != nil {
			return nil, invalidParam("%v", err)
		}
		return t.changed("burn_threshold", threshold.Dec(), types.ZeroAddress), nil
	})
}

// SetTreasuryThreshold sets how much treasury share is collected before it
// is paid out. Zero pays on every transfer.
func (t *Token) SetTreasuryThreshold(g access.Grant, threshold *uint256.Int) error {
	return t.guarded(g, "set treasury threshold", func() (events.Event, error) {
		t.cfg.TreasuryThreshold = threshold.Clone()
		return t.changed("treasury_threshold", threshold.Dec(), types.ZeroAddress), nil
	})
}

// SetIsExcluded moves addr in or out of reflections without changing any balance.
func (t *Token) SetIsExcluded(g access.Grant, addr types.Address, excluded bool) error {
	return t.guarded(g, "set excluded", func() (events.Event, error) {
		if addr == t.self {
			return nil, invalidParam("token address is always excluded")
		}
		t.ledger.Begin()
		if err := t.ledger.SetExcluded(addr, excluded); err != nil {
			t.ledger.Rollback()
			return nil, err
		}
		t.ledger.Commit()
		return t.changed("excluded", strconv.FormatBool(excluded), addr), nil
	})
}

// SetIsFineFree exempts addr from the early-sale fine.
func (t *Token) SetIsFineFree(g access.Grant, addr types.Address, v bool) error {
	return t.guarded(g, "set fine free", func() (events.Event, error) {
		t.ledger.SetFineFree(addr, v)
		return t.changed("fine_free", strconv.FormatBool(v), addr), nil
	})
}

// SetIsTaxless exempts addr from every transfer tax, in both directions.
func (t *Token) SetIsTaxless(g access.Grant, addr types.Address, v bool) error {
	return t.guarded(g, "set taxless", func() (events.Event, error) {
		t.ledger.SetTaxless(addr, v)
		return t.changed("taxless", strconv.FormatBool(v), addr), nil
	})
}

// SetIsLimitless exempts addr from the max balance.
func (t *Token) SetIsLimitless(g access.Grant, addr types.Address, v bool) error {
	return t.guarded(g, "set limitless", func() (events.Event, error) {
		t.ledger.SetLimitless(addr, v)
		return t.changed("limitless", strconv.FormatBool(v), addr), nil
	})
}
