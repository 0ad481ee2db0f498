// internal/token/token.go
package token

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/reflex/internal/access"
	"github.com/rovshanmuradov/reflex/internal/events"
	"github.com/rovshanmuradov/reflex/internal/ledger"
	"github.com/rovshanmuradov/reflex/internal/tax"
	"github.com/rovshanmuradov/reflex/internal/types"
)

// Publisher receives events after the call that produced them has returned
// its lock. Publish must not block.
type Publisher interface {
	Publish(event events.Event) error
}

// Whitelist answers whether an account may trade in a presale before
// trading opens.
type Whitelist interface {
	IsWhitelisted(presale, account types.Address) bool
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) error { return nil }

type emptyWhitelist struct{}

func (emptyWhitelist) IsWhitelisted(types.Address, types.Address) bool { return false }

// Option customizes a Token.
type Option func(*Token)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Token) { t.logger = logger.Named("token") }
}

// WithPublisher sets where events go.
func WithPublisher(p Publisher) Option {
	return func(t *Token) { t.publisher = p }
}

// WithWhitelist sets the presale collaborator.
func WithWhitelist(w Whitelist) Option {
	return func(t *Token) { t.whitelist = w }
}

// WithClock sets the clock used to stamp admin events. Transfers are always
// stamped with the time passed by the caller.
func WithClock(now func() time.Time) Option {
	return func(t *Token) { t.clock = now }
}

// Token is a reflection token. Every method holds the token lock for its
// whole duration, so calls are totally ordered.
type Token struct {
	mu sync.Mutex

	name   string
	symbol string
	self   types.Address

	ledger *ledger.Ledger
	policy *tax.Policy
	owner  *access.Ownership
	cfg    Settings

	// treasuryPending is held by self until it reaches the treasury threshold.
	treasuryPending *uint256.Int
	allowances      map[types.Address]map[types.Address]*uint256.Int

	whitelist Whitelist
	publisher Publisher
	clock     func() time.Time
	logger    *zap.Logger
}

// New deploys a token: the whole supply goes to the owner, and the DEX and
// treasury addresses point at the owner until they are set.
func New(p Params, opts ...Option) (*Token, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("new token: %w", err)
	}
	curve, err := tax.NewCurve(p.FineCurve)
	if err != nil {
		return nil, fmt.Errorf("new token: %w", invalidParam("%v", err))
	}
	policy := &tax.Policy{BaseTax: p.BaseTaxPercent, Curve: curve}
	if err := checkTaxBudget(policy, p.BurnPercent); err != nil {
		return nil, fmt.Errorf("new token: %w", err)
	}
	l, err := ledger.New(p.TotalSupply, p.CoefficientFloor, p.BurnThreshold, p.Owner)
	if err != nil {
		return nil, fmt.Errorf("new token: %w", invalidParam("%v", err))
	}
	// The token's own address holds the pending treasury share as plain units.
	if err := l.SetExcluded(p.Self, true); err != nil {
		return nil, fmt.Errorf("new token: %w", err)
	}
	l.SetFineFree(p.Self, true)
	l.SetLimitless(p.Self, true)

	minMax := types.Clone(p.MinMaxBalance)
	if p.MinMaxBalance == nil {
		minMax = types.Bps(p.TotalSupply, DefaultMinMaxBalanceBps)
	}

	t := &Token{
		name:   p.Name,
		symbol: p.Symbol,
		self:   p.Self,
		ledger: l,
		policy: policy,
		owner:  access.NewOwnership(p.Owner),
		cfg: Settings{
			Dex:               p.Owner,
			Treasury:          p.Owner,
			InvestPercent:     p.InvestPercent,
			BurnPercent:       p.BurnPercent,
			MaxBalanceBps:     p.MaxBalanceBps,
			MinMaxBalance:     minMax,
			TreasuryThreshold: types.Clone(p.TreasuryThreshold),
		},
		treasuryPending: types.Zero(),
		allowances:      make(map[types.Address]map[types.Address]*uint256.Int),
	}
	t.applyOptions(opts)

	t.logger.Info("Token deployed",
		zap.String("symbol", t.symbol),
		zap.String("owner", p.Owner.String()),
		zap.String("total_supply", types.FormatUnits(p.TotalSupply)))
	return t, nil
}

func (t *Token) applyOptions(opts []Option) {
	t.whitelist = emptyWhitelist{}
	t.publisher = nopPublisher{}
	t.clock = time.Now
	t.logger = zap.NewNop()
	for _, opt := range opts {
		opt(t)
	}
}

// emit hands events to the publisher. Callers must not hold the lock.
func (t *Token) emit(evts ...events.Event) {
	for _, e := range evts {
		if err := t.publisher.Publish(e); err != nil {
			t.logger.Debug("Event not published",
				zap.String("event_type", string(e.Type())),
				zap.Error(err))
		}
	}
}

// Authorize issues an admin grant to caller if caller is the owner.
func (t *Token) Authorize(caller types.Address) (access.Grant, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owner.Authorize(caller)
}

// Name returns the token name.
func (t *Token) Name() string { return t.name }

// Symbol returns the token symbol.
func (t *Token) Symbol() string { return t.symbol }

// Decimals returns the number of decimals of every amount.
func (t *Token) Decimals() uint8 { return types.Decimals }

// Address returns the token's own address.
func (t *Token) Address() types.Address { return t.self }

// BalanceOf returns the balance of addr.
func (t *Token) BalanceOf(addr types.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.BalanceOf(addr)
}

// TotalSupply returns the fixed supply, burned tokens included.
func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.TotalSupply()
}

// CurrentCoeff returns the reflected units behind one token unit.
func (t *Token) CurrentCoeff() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.Coefficient()
}

// TotalBurned returns the amount burned so far.
func (t *Token) TotalBurned() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.TotalBurned()
}

// TotalExcluded returns the amount held by accounts excluded from reflections.
func (t *Token) TotalExcluded() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.TotalExcluded()
}

// Circulation returns the supply outside the DEX reserve that has not been burned.
func (t *Token) Circulation() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.circulation(t.ledger.Coefficient())
}

// MaxBalance returns the largest balance a non-limitless account may reach.
func (t *Token) MaxBalance() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxBalance(t.ledger.Coefficient())
}

func (t *Token) circulation(coeff *uint256.Int) *uint256.Int {
	c := types.SaturatingSub(t.ledger.TotalSupply(), t.ledger.BalanceAt(t.cfg.Dex, coeff))
	return types.SaturatingSub(c, t.ledger.TotalBurned())
}

func (t *Token) maxBalance(coeff *uint256.Int) *uint256.Int {
	share := types.Bps(t.circulation(coeff), t.cfg.MaxBalanceBps)
	return new(uint256.Int).Add(t.cfg.MinMaxBalance, share)
}

// TaxPercentageAt returns the tax addr would pay when sending at time at.
func (t *Token) TaxPercentageAt(addr types.Address, at time.Time) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	acc := t.ledger.Account(addr)
	return t.policy.PercentAt(acc.Flags(), acc.LastWeighted, at)
}

// IsExcluded reports whether addr is excluded from reflections.
func (t *Token) IsExcluded(addr types.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.Account(addr).Excluded
}

// Flags returns the per-account flags of addr.
func (t *Token) Flags(addr types.Address) ledger.Flags {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.Account(addr).Flags()
}

// IsWhitelisted reports whether addr is in the whitelist of the current presale.
func (t *Token) IsWhitelisted(addr types.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.whitelist.IsWhitelisted(t.cfg.Presale, addr)
}

// Owner returns the owner, or the zero address after renouncing.
func (t *Token) Owner() types.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owner.Owner()
}

// DexAddr returns the DEX reserve address.
func (t *Token) DexAddr() types.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Dex
}

// DexRouterAddr returns the DEX router address.
func (t *Token) DexRouterAddr() types.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.DexRouter
}

// TreasuryAddr returns the treasury address.
func (t *Token) TreasuryAddr() types.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Treasury
}

// BurnThreshold returns the cap on total burned tokens.
func (t *Token) BurnThreshold() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledger.BurnThreshold()
}

// TreasuryThreshold returns the pending amount that triggers a treasury payout.
func (t *Token) TreasuryThreshold() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.TreasuryThreshold.Clone()
}

// TreasuryPending returns the treasury share not paid out yet.
func (t *Token) TreasuryPending() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.treasuryPending.Clone()
}

// InvestPercentage returns the share of the tax sent to the treasury.
func (t *Token) InvestPercentage() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.InvestPercent
}

// BaseTaxPercentage returns the tax every sender pays regardless of age.
func (t *Token) BaseTaxPercentage() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.policy.BaseTax
}

// Settings returns a copy of the owner-controlled parameters.
func (t *Token) Settings() Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.clone()
}

// ReceiveNative rejects every transfer of the host's native currency.
func (t *Token) ReceiveNative(from types.Address, value *uint256.Int) error {
	return fmt.Errorf("receive %s from %s: %w", value.Dec(), from, ErrNativeTransferRejected)
}
