// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/reflex/internal/tax"
	"github.com/rovshanmuradov/reflex/internal/token"
	"github.com/rovshanmuradov/reflex/internal/types"
)

type Config struct {
	Owner        string        `mapstructure:"owner"`
	TokenAddress string        `mapstructure:"token_address"`
	WalletsFile  string        `mapstructure:"wallets_file"`
	ScenarioFile string        `mapstructure:"scenario_file"`
	HistoryFile  string        `mapstructure:"history_file"`
	EventBuffer  int           `mapstructure:"event_buffer"`
	Token        TokenConfig   `mapstructure:"token"`
	Log          LogConfig     `mapstructure:"log"`
	Storage      StorageConfig `mapstructure:"storage"`
	Metrics      MetricsConfig `mapstructure:"metrics"`
}

// TokenConfig holds the token economics. Amounts are whole tokens and may
// carry up to 18 decimals.
type TokenConfig struct {
	Name              string     `mapstructure:"name"`
	Symbol            string     `mapstructure:"symbol"`
	TotalSupply       string     `mapstructure:"total_supply"`
	BaseTaxPercent    uint64     `mapstructure:"base_tax_percent"`
	InvestPercent     uint64     `mapstructure:"invest_percent"`
	BurnPercent       uint64     `mapstructure:"burn_percent"`
	BurnThreshold     string     `mapstructure:"burn_threshold"`
	TreasuryThreshold string     `mapstructure:"treasury_threshold"`
	MaxBalanceBps     uint64     `mapstructure:"max_balance_bps"`
	MinMaxBalanceBps  uint64     `mapstructure:"min_max_balance_bps"`
	CoefficientFloor  string     `mapstructure:"coefficient_floor"` // raw reflected units
	FineCurve         []tax.Knot `mapstructure:"fine_curve"`
}

type LogConfig struct {
	File        string `mapstructure:"file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxAge      int    `mapstructure:"max_age"`
	MaxBackups  int    `mapstructure:"max_backups"`
	Compress    bool   `mapstructure:"compress"`
	Development bool   `mapstructure:"development"`
}

type StorageConfig struct {
	Driver       string `mapstructure:"driver"` // postgres, sqlite or empty to disable
	DSN          string `mapstructure:"dsn"`
	Retries      int    `mapstructure:"retries"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

const (
	DefaultEventBuffer  = 1024
	DefaultRetries      = 5
	DefaultMaxOpenConns = 10
	DefaultMaxIdleConns = 5
	DefaultLogFile      = "reflex.log"
	DefaultHistoryFile  = "transfers.csv"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"event_buffer":              DefaultEventBuffer,
		"history_file":              DefaultHistoryFile,
		"token.name":                token.DefaultName,
		"token.symbol":              token.DefaultSymbol,
		"token.total_supply":        types.FormatUnits(token.DefaultTotalSupply),
		"token.base_tax_percent":    token.DefaultBaseTaxPercent,
		"token.invest_percent":      token.DefaultInvestPercent,
		"token.burn_percent":        token.DefaultBurnPercent,
		"token.burn_threshold":      types.FormatUnits(types.Percent(token.DefaultTotalSupply, 50)),
		"token.treasury_threshold":  "0",
		"token.max_balance_bps":     token.DefaultMaxBalanceBps,
		"token.min_max_balance_bps": token.DefaultMinMaxBalanceBps,
		"log.file":                  DefaultLogFile,
		"log.max_size":              100,
		"log.max_age":               7,
		"log.max_backups":           3,
		"log.compress":              true,
		"storage.retries":           DefaultRetries,
		"storage.max_open_conns":    DefaultMaxOpenConns,
		"storage.max_idle_conns":    DefaultMaxIdleConns,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if len(cfg.Token.FineCurve) == 0 {
		cfg.Token.FineCurve = tax.DefaultKnots()
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.Owner == "" {
		return errors.New("missing owner in configuration")
	}
	if cfg.TokenAddress == "" {
		return errors.New("missing token_address in configuration")
	}
	if cfg.EventBuffer <= 0 {
		return errors.New("invalid event_buffer")
	}
	switch cfg.Storage.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver != "" && cfg.Storage.DSN == "" {
		return errors.New("storage.dsn is required when a storage driver is set")
	}
	if cfg.Storage.Retries < 0 {
		return errors.New("invalid storage.retries")
	}
	if _, err := cfg.Token.params(); err != nil {
		return err
	}
	return nil
}

// params converts the token section. Owner and token address are left unset.
func (t TokenConfig) params() (token.Params, error) {
	var p token.Params
	supply, err := types.ParseUnits(t.TotalSupply)
	if err != nil {
		return p, fmt.Errorf("token.total_supply: %w", err)
	}
	burnThreshold, err := types.ParseUnits(t.BurnThreshold)
	if err != nil {
		return p, fmt.Errorf("token.burn_threshold: %w", err)
	}
	treasuryThreshold, err := types.ParseUnits(t.TreasuryThreshold)
	if err != nil {
		return p, fmt.Errorf("token.treasury_threshold: %w", err)
	}
	var floor *uint256.Int
	if t.CoefficientFloor != "" {
		if floor, err = types.ParseAmount(t.CoefficientFloor); err != nil {
			return p, fmt.Errorf("token.coefficient_floor: %w", err)
		}
	}
	if t.MinMaxBalanceBps > 10000 {
		return p, fmt.Errorf("token.min_max_balance_bps %d exceeds 10000", t.MinMaxBalanceBps)
	}
	if _, err := tax.NewCurve(t.FineCurve); err != nil {
		return p, fmt.Errorf("token.fine_curve: %w", err)
	}

	return token.Params{
		Name:              t.Name,
		Symbol:            t.Symbol,
		TotalSupply:       supply,
		CoefficientFloor:  floor,
		BaseTaxPercent:    t.BaseTaxPercent,
		InvestPercent:     t.InvestPercent,
		BurnPercent:       t.BurnPercent,
		FineCurve:         t.FineCurve,
		BurnThreshold:     burnThreshold,
		TreasuryThreshold: treasuryThreshold,
		MaxBalanceBps:     t.MaxBalanceBps,
		MinMaxBalance:     types.Bps(supply, t.MinMaxBalanceBps),
	}, nil
}

// ToParams builds token parameters for the given owner and token address.
func (c *Config) ToParams(owner, self types.Address) (token.Params, error) {
	p, err := c.Token.params()
	if err != nil {
		return p, err
	}
	p.Owner = owner
	p.Self = self
	return p, nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("REFLEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if owner := v.GetString("OWNER"); owner != "" {
		cfg.Owner = owner
	}
	if dsn := v.GetString("STORAGE_DSN"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
	if driver := v.GetString("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if listen := v.GetString("METRICS_LISTEN"); listen != "" {
		cfg.Metrics.Listen = listen
	}
}
