package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Action names one scenario step.
type Action string

const (
	ActionOpenTrades        Action = "open_trades"
	ActionTransfer          Action = "transfer"
	ActionTransferFrom      Action = "transfer_from"
	ActionApprove           Action = "approve"
	ActionDeliver           Action = "deliver"
	ActionAdvance           Action = "advance"
	ActionWhitelist         Action = "whitelist"
	ActionTransferOwnership Action = "transfer_ownership"
	ActionRenounce          Action = "renounce_ownership"

	ActionSetDex               Action = "set_dex"
	ActionSetDexRouter         Action = "set_dex_router"
	ActionSetTreasury          Action = "set_treasury"
	ActionSetPresale           Action = "set_presale"
	ActionSetBaseTax           Action = "set_base_tax"
	ActionSetInvest            Action = "set_invest"
	ActionSetBurn              Action = "set_burn"
	ActionSetMaxBalanceBps     Action = "set_max_balance_bps"
	ActionSetBurnThreshold     Action = "set_burn_threshold"
	ActionSetTreasuryThreshold Action = "set_treasury_threshold"
	ActionSetExcluded          Action = "set_excluded"
	ActionSetFineFree          Action = "set_fine_free"
	ActionSetTaxless           Action = "set_taxless"
	ActionSetLimitless         Action = "set_limitless"

	ActionExpectBalance Action = "expect_balance"
	ActionExpectTax     Action = "expect_tax"
	ActionExpectBurned  Action = "expect_burned"
)

// Step is one line of a scenario. Which fields matter depends on Action.
// Amounts are whole tokens with up to 18 decimals; "all" on a transfer or
// deliver means the sender's whole balance.
type Step struct {
	Action  Action `yaml:"action"`
	Caller  string `yaml:"caller"` // owner actions; defaults to the owner wallet
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Spender string `yaml:"spender"`
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
	// Value is a percentage, basis points or a boolean flag.
	Value     string `yaml:"value"`
	Duration  string `yaml:"duration"`
	Days      int    `yaml:"days"`
	Tolerance string `yaml:"tolerance"`
	// ExpectError makes the step pass only when it fails with an error
	// containing this text.
	ExpectError string `yaml:"expect_error"`
}

// Scenario is a named list of steps replayed against one token.
type Scenario struct {
	Name  string    `yaml:"name"`
	Start time.Time `yaml:"start"`
	Owner string    `yaml:"owner"`
	Steps []Step    `yaml:"steps"`
}

var knownActions = map[Action]bool{
	ActionOpenTrades: true, ActionTransfer: true, ActionTransferFrom: true,
	ActionApprove: true, ActionDeliver: true, ActionAdvance: true,
	ActionWhitelist: true, ActionTransferOwnership: true, ActionRenounce: true,
	ActionSetDex: true, ActionSetDexRouter: true, ActionSetTreasury: true,
	ActionSetPresale: true, ActionSetBaseTax: true, ActionSetInvest: true,
	ActionSetBurn: true, ActionSetMaxBalanceBps: true, ActionSetBurnThreshold: true,
	ActionSetTreasuryThreshold: true, ActionSetExcluded: true, ActionSetFineFree: true,
	ActionSetTaxless: true, ActionSetLimitless: true,
	ActionExpectBalance: true, ActionExpectTax: true, ActionExpectBurned: true,
}

// Load reads a scenario from a YAML file.
func Load(path string, logger *zap.Logger) (*Scenario, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	logger.Info("Loaded scenario",
		zap.String("name", s.Name),
		zap.Int("steps", len(s.Steps)))
	return s, nil
}

// Parse decodes and validates a YAML scenario. Unknown keys are errors.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("no steps found")
	}
	if s.Owner == "" {
		s.Owner = "owner"
	}
	for i, st := range s.Steps {
		if !knownActions[st.Action] {
			return fmt.Errorf("step %d: unsupported action %q", i+1, st.Action)
		}
		if err := st.validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, st.Action, err)
		}
	}
	return nil
}

func (st Step) validate() error {
	need := func(fields ...string) error {
		values := map[string]string{
			"from": st.From, "to": st.To, "spender": st.Spender,
			"account": st.Account, "amount": st.Amount, "value": st.Value,
		}
		for _, f := range fields {
			if values[f] == "" {
				return fmt.Errorf("%s is required", f)
			}
		}
		return nil
	}

	switch st.Action {
	case ActionTransfer:
		return need("from", "to", "amount")
	case ActionTransferFrom:
		return need("spender", "from", "to", "amount")
	case ActionApprove:
		return need("from", "spender", "amount")
	case ActionDeliver:
		return need("from", "amount")
	case ActionAdvance:
		if st.Duration == "" && st.Days <= 0 {
			return fmt.Errorf("duration or days is required")
		}
		if st.Duration != "" {
			if d, err := time.ParseDuration(st.Duration); err != nil || d < 0 {
				return fmt.Errorf("invalid duration %q", st.Duration)
			}
		}
	case ActionWhitelist, ActionTransferOwnership, ActionSetDex, ActionSetDexRouter,
		ActionSetTreasury, ActionSetPresale:
		return need("account")
	case ActionSetBaseTax, ActionSetInvest, ActionSetBurn, ActionSetMaxBalanceBps:
		return need("value")
	case ActionSetBurnThreshold, ActionSetTreasuryThreshold, ActionExpectBurned:
		return need("amount")
	case ActionSetExcluded, ActionSetFineFree, ActionSetTaxless, ActionSetLimitless:
		return need("account", "value")
	case ActionExpectBalance:
		return need("account", "amount")
	case ActionExpectTax:
		return need("account", "value")
	}
	return nil
}
