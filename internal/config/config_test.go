package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/reflex/internal/tax"
	"github.com/rovshanmuradov/reflex/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
owner: deployer
token_address: token
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultEventBuffer, cfg.EventBuffer)
	assert.Equal(t, "Reflex", cfg.Token.Name)
	assert.Equal(t, "10000000000000", cfg.Token.TotalSupply)
	assert.Equal(t, uint64(5), cfg.Token.BaseTaxPercent)
	assert.Equal(t, tax.DefaultKnots(), cfg.Token.FineCurve)
	assert.Equal(t, DefaultLogFile, cfg.Log.File)
	assert.Equal(t, DefaultRetries, cfg.Storage.Retries)

	owner, self := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	p, err := cfg.ToParams(owner, self)
	require.NoError(t, err)
	assert.Equal(t, owner, p.Owner)
	assert.Equal(t, self, p.Self)
	assert.Equal(t, types.MustAmount("10000000000000000000000000000000"), p.TotalSupply)
	assert.Equal(t, types.MustAmount("100000000000000000000000000000"), p.MinMaxBalance)
	assert.Nil(t, p.CoefficientFloor)
}

func TestLoadConfigTokenSection(t *testing.T) {
	path := writeConfig(t, `
owner: deployer
token_address: token
token:
  name: Kenshi
  symbol: KENSHI
  total_supply: "1000.5"
  base_tax_percent: 3
  burn_threshold: "100"
  treasury_threshold: "0.25"
  coefficient_floor: "1000"
  fine_curve:
    - {day: 0, percent: 20}
    - {day: 10, percent: 5}
    - {day: 30, percent: 0}
storage:
  driver: sqlite
  dsn: file::memory:
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	p, err := cfg.ToParams(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, "KENSHI", p.Symbol)
	assert.Equal(t, types.MustAmount("1000500000000000000000"), p.TotalSupply)
	assert.Equal(t, types.Units(100), p.BurnThreshold)
	assert.Equal(t, types.MustAmount("250000000000000000"), p.TreasuryThreshold)
	assert.Equal(t, uint64(1000), p.CoefficientFloor.Uint64())
	assert.Len(t, p.FineCurve, 3)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestLoadConfigEnvironment(t *testing.T) {
	path := writeConfig(t, `
owner: deployer
token_address: token
`)
	t.Setenv("REFLEX_OWNER", "treasurer")
	t.Setenv("REFLEX_STORAGE_DRIVER", "postgres")
	t.Setenv("REFLEX_STORAGE_DSN", "postgres://localhost/reflex")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "treasurer", cfg.Owner)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/reflex", cfg.Storage.DSN)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing owner", "token_address: token\n"},
		{"missing token address", "owner: me\n"},
		{"unknown driver", "owner: me\ntoken_address: t\nstorage:\n  driver: mysql\n  dsn: x\n"},
		{"driver without dsn", "owner: me\ntoken_address: t\nstorage:\n  driver: sqlite\n"},
		{"bad supply", "owner: me\ntoken_address: t\ntoken:\n  total_supply: lots\n"},
		{"rising curve", "owner: me\ntoken_address: t\ntoken:\n  fine_curve:\n    - {day: 0, percent: 1}\n    - {day: 30, percent: 2}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
