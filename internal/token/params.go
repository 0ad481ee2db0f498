// internal/token/params.go
package token

import (
	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/reflex/internal/ledger"
	"github.com/rovshanmuradov/reflex/internal/tax"
	"github.com/rovshanmuradov/reflex/internal/types"
)

// Default economics.
const (
	DefaultName           = "Reflex"
	DefaultSymbol         = "RFX"
	DefaultBaseTaxPercent = 5
	DefaultInvestPercent  = 50
	DefaultBurnPercent    = 1
	DefaultMaxBalanceBps  = 100
	// DefaultMinMaxBalanceBps sets the max-balance floor to 1% of the supply.
	DefaultMinMaxBalanceBps = 100
)

// DefaultTotalSupply is ten trillion tokens.
var DefaultTotalSupply = types.Units(10_000_000_000_000)

// Params configures a new token.
type Params struct {
	Name   string
	Symbol string

	// Owner receives the whole supply and the admin rights.
	Owner types.Address
	// Self is the token's own address. It holds the pending treasury share.
	Self types.Address

	TotalSupply      *uint256.Int
	CoefficientFloor *uint256.Int

	BaseTaxPercent uint64
	InvestPercent  uint64
	BurnPercent    uint64
	FineCurve      []tax.Knot

	BurnThreshold     *uint256.Int
	TreasuryThreshold *uint256.Int
	MaxBalanceBps     uint64
	// MinMaxBalance is the smallest max balance regardless of circulation.
	MinMaxBalance *uint256.Int
}

// DefaultParams returns the default token economics for owner.
func DefaultParams(owner, self types.Address) Params {
	return Params{
		Name:              DefaultName,
		Symbol:            DefaultSymbol,
		Owner:             owner,
		Self:              self,
		TotalSupply:       DefaultTotalSupply.Clone(),
		CoefficientFloor:  ledger.DefaultCoefficientFloor.Clone(),
		BaseTaxPercent:    DefaultBaseTaxPercent,
		InvestPercent:     DefaultInvestPercent,
		BurnPercent:       DefaultBurnPercent,
		FineCurve:         tax.DefaultKnots(),
		BurnThreshold:     types.Percent(DefaultTotalSupply, 50),
		TreasuryThreshold: types.Zero(),
		MaxBalanceBps:     DefaultMaxBalanceBps,
		MinMaxBalance:     types.Bps(DefaultTotalSupply, DefaultMinMaxBalanceBps),
	}
}

func (p *Params) validate() error {
	if p.Owner.IsZero() {
		return invalidParam("owner is the zero address")
	}
	if p.Self.IsZero() || p.Self == p.Owner {
		return invalidParam("token address must be set and differ from the owner")
	}
	if p.TotalSupply == nil || p.TotalSupply.IsZero() {
		return invalidParam("total supply must be positive")
	}
	if p.InvestPercent > 100 {
		return invalidParam("invest percentage %d exceeds 100", p.InvestPercent)
	}
	if p.MaxBalanceBps > 10000 {
		return invalidParam("max balance %d bps exceeds 10000", p.MaxBalanceBps)
	}
	if p.MinMaxBalance != nil && p.MinMaxBalance.Gt(p.TotalSupply) {
		return invalidParam("min max balance exceeds total supply")
	}
	return nil
}

// Settings are the owner-controlled parameters of a running token.
type Settings struct {
	TradingOpen bool

	Dex       types.Address
	DexRouter types.Address
	Treasury  types.Address
	Presale   types.Address

	InvestPercent uint64
	BurnPercent   uint64
	MaxBalanceBps uint64

	MinMaxBalance     *uint256.Int
	TreasuryThreshold *uint256.Int
}

func (s Settings) clone() Settings {
	s.MinMaxBalance = types.Clone(s.MinMaxBalance)
	s.TreasuryThreshold = types.Clone(s.TreasuryThreshold)
	return s
}

// checkTaxBudget makes sure the largest tax plus the burn never exceeds the
// transferred amount.
func checkTaxBudget(policy *tax.Policy, burnPercent uint64) error {
	if err := policy.Validate(); err != nil {
		return invalidParam("%v", err)
	}
	if policy.BaseTax+policy.Curve.Max()+burnPercent > 100 {
		return invalidParam("base tax %d%%, maximum fine %d%% and burn %d%% exceed 100%%",
			policy.BaseTax, policy.Curve.Max(), burnPercent)
	}
	return nil
}
