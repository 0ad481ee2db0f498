// internal/token/pipeline.go
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/reflex/internal/events"
	"github.com/rovshanmuradov/reflex/internal/tax"
	"github.com/rovshanmuradov/reflex/internal/types"
)

// split is how a transferred amount is divided.
type split struct {
	percent    uint64
	tax        *uint256.Int
	burn       *uint256.Int
	treasury   *uint256.Int
	reflection *uint256.Int
	net        *uint256.Int
}

// Transfer moves amount from the caller to another account at time now.
func (t *Token) Transfer(from, to types.Address, amount *uint256.Int, now time.Time) (*types.Receipt, error) {
	t.mu.Lock()
	receipt, err := t.transfer(from, to, amount, now)
	t.mu.Unlock()

	t.emitTransfer(from, to, amount, now, receipt, err)
	return receipt, err
}

// TransferFrom moves amount on behalf of from, spending the allowance from
// granted to spender. The allowance is only spent if the transfer succeeds.
func (t *Token) TransferFrom(spender, from, to types.Address, amount *uint256.Int, now time.Time) (*types.Receipt, error) {
	t.mu.Lock()
	receipt, err := t.transferFrom(spender, from, to, amount, now)
	t.mu.Unlock()

	t.emitTransfer(from, to, amount, now, receipt, err)
	return receipt, err
}

func (t *Token) transferFrom(spender, from, to types.Address, amount *uint256.Int, now time.Time) (*types.Receipt, error) {
	allowed := t.allowance(from, spender)
	if allowed.Lt(amount) {
		return nil, fail(StageValidateAllowance, fmt.Errorf("%w: %s allowed, %s requested",
			ErrInsufficientAllowance, allowed.Dec(), amount.Dec()))
	}
	receipt, err := t.transfer(from, to, amount, now)
	if err != nil {
		return nil, err
	}
	t.setAllowance(from, spender, new(uint256.Int).Sub(allowed, amount))
	return receipt, nil
}

// transfer runs the pipeline. Every check happens before the first write.
func (t *Token) transfer(from, to types.Address, amount *uint256.Int, now time.Time) (*types.Receipt, error) {
	if from.IsZero() {
		return nil, fail(StageValidateAddresses, fmt.Errorf("%w: sender is the zero address", ErrInvalidRecipient))
	}
	if to.IsZero() {
		return nil, fail(StageValidateAddresses, fmt.Errorf("%w: zero address", ErrInvalidRecipient))
	}
	if from == t.self || to == t.self {
		return nil, fail(StageValidateAddresses, fmt.Errorf("%w: token address", ErrInvalidRecipient))
	}

	if !t.canTrade(from) {
		return nil, fail(StageValidateOpen, ErrTradingClosed)
	}

	// One coefficient prices the whole transfer.
	coeff := t.ledger.Coefficient()
	balance := t.ledger.BalanceAt(from, coeff)
	if balance.Lt(amount) {
		return nil, fail(StageValidateBalance, fmt.Errorf("%w: balance %s, requested %s",
			ErrInsufficientBalance, balance.Dec(), amount.Dec()))
	}

	pct := t.taxPercent(from, to, now)

	s, err := t.split(amount, pct)
	if err != nil {
		return nil, fail(StageApplySplit, err)
	}

	recipient := t.ledger.Account(to)
	if !recipient.Limitless && to != from {
		after := new(uint256.Int).Add(t.ledger.BalanceAt(to, coeff), s.net)
		limit := t.maxBalance(coeff)
		if after.Gt(limit) {
			return nil, fail(StageValidateMaxBalance, fmt.Errorf("%w: %s above %s",
				ErrMaxBalanceExceeded, types.FormatUnits(after), types.FormatUnits(limit)))
		}
	}

	receipt, err := t.commit(from, to, amount, s, coeff, now)
	if err != nil {
		return nil, fail(StageCommit, err)
	}
	return receipt, nil
}

// canTrade reports whether from may send before trading opens.
func (t *Token) canTrade(from types.Address) bool {
	if t.cfg.TradingOpen || from == t.owner.Owner() || from == t.cfg.Dex {
		return true
	}
	return t.whitelist.IsWhitelisted(t.cfg.Presale, from)
}

func (t *Token) isDexSide(addr types.Address) bool {
	if addr == t.cfg.Dex {
		return true
	}
	return !t.cfg.DexRouter.IsZero() && addr == t.cfg.DexRouter
}

// taxPercent is zero for DEX transfers and for pairs with a taxless side.
func (t *Token) taxPercent(from, to types.Address, now time.Time) uint64 {
	if t.isDexSide(from) || t.isDexSide(to) {
		return 0
	}
	sender := t.ledger.Account(from)
	if sender.Taxless || t.ledger.Account(to).Taxless {
		return tax.MinTaxPercent
	}
	return t.policy.PercentAt(sender.Flags(), sender.LastWeighted, now)
}

// split divides amount into the recipient's net, the tax and the burn. The
// tax is shared between the treasury and reflections; the burn is taken from
// the amount on top of the tax and capped by the burn headroom.
func (t *Token) split(amount *uint256.Int, pct uint64) (split, error) {
	s := split{percent: pct}
	s.tax = types.Percent(amount, pct)
	s.burn = types.Min(types.Percent(amount, t.cfg.BurnPercent), t.ledger.BurnHeadroom())
	s.treasury = types.Percent(s.tax, t.cfg.InvestPercent)
	s.reflection = new(uint256.Int).Sub(s.tax, s.treasury)

	net, err := types.Sub(amount, s.tax)
	if err != nil {
		return split{}, fmt.Errorf("tax above amount: %w", err)
	}
	if s.net, err = types.Sub(net, s.burn); err != nil {
		return split{}, fmt.Errorf("tax and burn above amount: %w", err)
	}
	return s, nil
}

func (t *Token) commit(from, to types.Address, amount *uint256.Int, s split, coeff *uint256.Int, now time.Time) (*types.Receipt, error) {
	recipientBalance := t.ledger.BalanceAt(to, coeff)
	recipient := t.ledger.Account(to)

	t.ledger.Begin()
	flushed, pending, err := t.apply(from, to, amount, s, coeff)
	if err != nil {
		t.ledger.Rollback()
		return nil, err
	}
	if !t.isDexSide(to) {
		ts := tax.WeightedTimestamp(recipientBalance, recipient.LastWeighted, s.net, now.Unix())
		t.ledger.SetLastWeighted(to, ts)
	}
	t.ledger.Commit()
	t.treasuryPending = pending

	t.logger.Debug("Transfer committed",
		zap.String("from", types.ShortAddress(from)),
		zap.String("to", types.ShortAddress(to)),
		zap.String("amount", types.FormatUnits(amount)),
		zap.Uint64("tax_percent", s.percent))

	return &types.Receipt{
		ID:          uuid.New().String(),
		From:        from,
		To:          to,
		Amount:      amount.Clone(),
		Net:         s.net,
		TaxPercent:  s.percent,
		Tax:         s.tax,
		Burned:      s.burn,
		Treasury:    s.treasury,
		Reflection:  s.reflection,
		Flushed:     flushed,
		Coefficient: coeff.Clone(),
		At:          now,
	}, nil
}

// apply performs the ledger writes of a transfer. It returns the treasury
// payout made by this transfer and the new pending treasury balance.
func (t *Token) apply(from, to types.Address, amount *uint256.Int, s split, coeff *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if err := t.ledger.Debit(from, amount, coeff); err != nil {
		return nil, nil, err
	}
	if err := t.ledger.Credit(to, s.net, coeff); err != nil {
		return nil, nil, err
	}
	flushed, pending, err := t.routeTreasury(s.treasury, coeff)
	if err != nil {
		return nil, nil, err
	}
	burned, err := t.ledger.Burn(s.burn, coeff)
	if err != nil {
		return nil, nil, err
	}
	if !burned.Eq(s.burn) {
		return nil, nil, fmt.Errorf("burned %s of %s", burned.Dec(), s.burn.Dec())
	}
	if err := t.ledger.DistributeFee(s.reflection, coeff); err != nil {
		return nil, nil, err
	}
	return flushed, pending, nil
}

// routeTreasury parks share on the token's own address and pays everything
// parked to the treasury once the threshold is reached.
func (t *Token) routeTreasury(share, coeff *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	pending, err := types.Add(t.treasuryPending, share)
	if err != nil {
		return nil, nil, err
	}
	if err := t.ledger.Credit(t.self, share, coeff); err != nil {
		return nil, nil, err
	}
	if pending.IsZero() || pending.Lt(t.cfg.TreasuryThreshold) {
		return types.Zero(), pending, nil
	}
	if err := t.ledger.Debit(t.self, pending, coeff); err != nil {
		return nil, nil, fmt.Errorf("flush treasury: %w", err)
	}
	if err := t.ledger.Credit(t.cfg.Treasury, pending, coeff); err != nil {
		return nil, nil, fmt.Errorf("flush treasury: %w", err)
	}
	return pending, types.Zero(), nil
}

func (t *Token) emitTransfer(from, to types.Address, amount *uint256.Int, now time.Time, receipt *types.Receipt, err error) {
	if err == nil {
		t.emit(events.TransferCompletedEvent{
			BaseEvent: events.NewBase(events.TransferCompleted, now),
			Receipt:   *receipt,
		})
		return
	}

	stage := ""
	var te *TransferError
	if errors.As(err, &te) {
		stage = string(te.Stage)
	}
	t.logger.Debug("Transfer rejected",
		zap.String("from", types.ShortAddress(from)),
		zap.String("to", types.ShortAddress(to)),
		zap.String("stage", stage),
		zap.Error(err))
	t.emit(events.TransferRejectedEvent{
		BaseEvent: events.NewBase(events.TransferRejected, now),
		From:      from,
		To:        to,
		Amount:    types.Clone(amount),
		Stage:     stage,
		Reason:    err.Error(),
	})
}
