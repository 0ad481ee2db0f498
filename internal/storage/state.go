// internal/storage/state.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/reflex/internal/ledger"
	"github.com/rovshanmuradov/reflex/internal/storage/models"
	"github.com/rovshanmuradov/reflex/internal/tax"
	"github.com/rovshanmuradov/reflex/internal/token"
	"github.com/rovshanmuradov/reflex/internal/types"
)

// The document types below pin the stored layout. Amounts are base-unit
// decimal strings and addresses are base58.

type stateDoc struct {
	Name            string         `json:"name"`
	Symbol          string         `json:"symbol"`
	Self            string         `json:"self"`
	Owner           string         `json:"owner"`
	BaseTaxPercent  uint64         `json:"base_tax_percent"`
	FineCurve       []tax.Knot     `json:"fine_curve"`
	Settings        settingsDoc    `json:"settings"`
	TreasuryPending string         `json:"treasury_pending"`
	Allowances      []allowanceDoc `json:"allowances,omitempty"`
	Supply          supplyDoc      `json:"supply"`
	Accounts        []accountDoc   `json:"accounts"`
}

type settingsDoc struct {
	TradingOpen       bool   `json:"trading_open"`
	Dex               string `json:"dex"`
	DexRouter         string `json:"dex_router"`
	Treasury          string `json:"treasury"`
	Presale           string `json:"presale"`
	InvestPercent     uint64 `json:"invest_percent"`
	BurnPercent       uint64 `json:"burn_percent"`
	MaxBalanceBps     uint64 `json:"max_balance_bps"`
	MinMaxBalance     string `json:"min_max_balance"`
	TreasuryThreshold string `json:"treasury_threshold"`
}

type allowanceDoc struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type supplyDoc struct {
	TTotal            string `json:"t_total"`
	RTotal            string `json:"r_total"`
	TotalBurned       string `json:"total_burned"`
	ExcludedActual    string `json:"excluded_actual"`
	ExcludedReflected string `json:"excluded_reflected"`
	CoefficientFloor  string `json:"coefficient_floor"`
	BurnThreshold     string `json:"burn_threshold"`
}

type accountDoc struct {
	Address      string `json:"address"`
	Raw          string `json:"raw,omitempty"`
	Reflected    string `json:"reflected,omitempty"`
	LastWeighted int64  `json:"last_weighted,omitempty"`
	Excluded     bool   `json:"excluded,omitempty"`
	FineFree     bool   `json:"fine_free,omitempty"`
	Taxless      bool   `json:"taxless,omitempty"`
	Limitless    bool   `json:"limitless,omitempty"`
}

func dec(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.Dec()
}

// EncodeState serializes a token state.
func EncodeState(s token.State) ([]byte, error) {
	doc := stateDoc{
		Name:           s.Name,
		Symbol:         s.Symbol,
		Self:           s.Self.String(),
		Owner:          s.Owner.String(),
		BaseTaxPercent: s.BaseTaxPercent,
		FineCurve:      s.FineCurve,
		Settings: settingsDoc{
			TradingOpen:       s.Settings.TradingOpen,
			Dex:               s.Settings.Dex.String(),
			DexRouter:         s.Settings.DexRouter.String(),
			Treasury:          s.Settings.Treasury.String(),
			Presale:           s.Settings.Presale.String(),
			InvestPercent:     s.Settings.InvestPercent,
			BurnPercent:       s.Settings.BurnPercent,
			MaxBalanceBps:     s.Settings.MaxBalanceBps,
			MinMaxBalance:     dec(s.Settings.MinMaxBalance),
			TreasuryThreshold: dec(s.Settings.TreasuryThreshold),
		},
		TreasuryPending: dec(s.TreasuryPending),
		Supply: supplyDoc{
			TTotal:            dec(s.Ledger.Supply.TTotal),
			RTotal:            dec(s.Ledger.Supply.RTotal),
			TotalBurned:       dec(s.Ledger.Supply.TotalBurned),
			ExcludedActual:    dec(s.Ledger.Supply.ExcludedActual),
			ExcludedReflected: dec(s.Ledger.Supply.ExcludedReflected),
			CoefficientFloor:  dec(s.Ledger.Supply.CoefficientFloor),
			BurnThreshold:     dec(s.Ledger.Supply.BurnThreshold),
		},
	}
	for _, a := range s.Allowances {
		doc.Allowances = append(doc.Allowances, allowanceDoc{
			Owner:   a.Owner.String(),
			Spender: a.Spender.String(),
			Amount:  dec(a.Amount),
		})
	}
	doc.Accounts = make([]accountDoc, 0, len(s.Ledger.Accounts))
	for _, e := range s.Ledger.Accounts {
		acc := e.Account
		doc.Accounts = append(doc.Accounts, accountDoc{
			Address:      e.Address.String(),
			Raw:          dec(acc.Raw),
			Reflected:    dec(acc.Reflected),
			LastWeighted: acc.LastWeighted,
			Excluded:     acc.Excluded,
			FineFree:     acc.FineFree,
			Taxless:      acc.Taxless,
			Limitless:    acc.Limitless,
		})
	}
	return json.Marshal(doc)
}

// decoder collects the first parse error so the field list stays readable.
type decoder struct {
	err error
}

func (d *decoder) amount(field, s string) *uint256.Int {
	if d.err != nil {
		return nil
	}
	if s == "" {
		return types.Zero()
	}
	x, err := types.ParseAmount(s)
	if err != nil {
		d.err = fmt.Errorf("%s: %w", field, err)
	}
	return x
}

func (d *decoder) address(field, s string) types.Address {
	if d.err != nil {
		return types.ZeroAddress
	}
	addr, err := types.ParseAddress(s)
	if err != nil {
		d.err = fmt.Errorf("%s: %w", field, err)
	}
	return addr
}

// DecodeState parses what EncodeState produced.
func DecodeState(data []byte) (token.State, error) {
	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return token.State{}, fmt.Errorf("decode state: %w", err)
	}

	d := &decoder{}
	s := token.State{
		Name:           doc.Name,
		Symbol:         doc.Symbol,
		Self:           d.address("self", doc.Self),
		Owner:          d.address("owner", doc.Owner),
		BaseTaxPercent: doc.BaseTaxPercent,
		FineCurve:      doc.FineCurve,
		Settings: token.Settings{
			TradingOpen:       doc.Settings.TradingOpen,
			Dex:               d.address("settings.dex", doc.Settings.Dex),
			DexRouter:         d.address("settings.dex_router", doc.Settings.DexRouter),
			Treasury:          d.address("settings.treasury", doc.Settings.Treasury),
			Presale:           d.address("settings.presale", doc.Settings.Presale),
			InvestPercent:     doc.Settings.InvestPercent,
			BurnPercent:       doc.Settings.BurnPercent,
			MaxBalanceBps:     doc.Settings.MaxBalanceBps,
			MinMaxBalance:     d.amount("settings.min_max_balance", doc.Settings.MinMaxBalance),
			TreasuryThreshold: d.amount("settings.treasury_threshold", doc.Settings.TreasuryThreshold),
		},
		TreasuryPending: d.amount("treasury_pending", doc.TreasuryPending),
		Ledger: ledger.Snapshot{
			Supply: ledger.Supply{
				TTotal:            d.amount("supply.t_total", doc.Supply.TTotal),
				RTotal:            d.amount("supply.r_total", doc.Supply.RTotal),
				TotalBurned:       d.amount("supply.total_burned", doc.Supply.TotalBurned),
				ExcludedActual:    d.amount("supply.excluded_actual", doc.Supply.ExcludedActual),
				ExcludedReflected: d.amount("supply.excluded_reflected", doc.Supply.ExcludedReflected),
				CoefficientFloor:  d.amount("supply.coefficient_floor", doc.Supply.CoefficientFloor),
				BurnThreshold:     d.amount("supply.burn_threshold", doc.Supply.BurnThreshold),
			},
		},
	}
	for i, a := range doc.Allowances {
		s.Allowances = append(s.Allowances, token.AllowanceEntry{
			Owner:   d.address(fmt.Sprintf("allowances[%d].owner", i), a.Owner),
			Spender: d.address(fmt.Sprintf("allowances[%d].spender", i), a.Spender),
			Amount:  d.amount(fmt.Sprintf("allowances[%d].amount", i), a.Amount),
		})
	}
	for i, a := range doc.Accounts {
		s.Ledger.Accounts = append(s.Ledger.Accounts, ledger.AccountEntry{
			Address: d.address(fmt.Sprintf("accounts[%d].address", i), a.Address),
			Account: ledger.Account{
				Raw:          d.amount(fmt.Sprintf("accounts[%d].raw", i), a.Raw),
				Reflected:    d.amount(fmt.Sprintf("accounts[%d].reflected", i), a.Reflected),
				LastWeighted: a.LastWeighted,
				Excluded:     a.Excluded,
				FineFree:     a.FineFree,
				Taxless:      a.Taxless,
				Limitless:    a.Limitless,
			},
		})
	}
	if d.err != nil {
		return token.State{}, fmt.Errorf("decode state: %w", d.err)
	}
	return s, nil
}

// SaveState stores a snapshot of s taken at the given time.
func SaveState(ctx context.Context, j Journal, s token.State, coefficient *uint256.Int, at time.Time) error {
	data, err := EncodeState(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return j.SaveSnapshot(ctx, &models.SnapshotRecord{
		TokenAddress: s.Self.String(),
		Accounts:     len(s.Ledger.Accounts),
		Coefficient:  dec(coefficient),
		TotalBurned:  dec(s.Ledger.Supply.TotalBurned),
		State:        string(data),
		TakenAt:      at.UTC(),
	})
}

// LoadState returns the newest stored state of the token at tokenAddress.
func LoadState(ctx context.Context, j Journal, tokenAddress types.Address) (token.State, error) {
	rec, err := j.LatestSnapshot(ctx, tokenAddress.String())
	if err != nil {
		return token.State{}, err
	}
	return DecodeState([]byte(rec.State))
}
