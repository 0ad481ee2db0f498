package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/reflex/internal/config"
	"github.com/rovshanmuradov/reflex/internal/export"
	"github.com/rovshanmuradov/reflex/internal/scenario"
	"github.com/rovshanmuradov/reflex/internal/types"
)

const transferScenario = `
name: seed
start: 2024-05-01T09:30:00Z
steps:
  - {action: open_trades}
  - {action: transfer, from: deployer, to: alice, amount: "1000"}
  - {action: expect_balance, account: alice, amount: "990"}
`

func loadConfig(t *testing.T, dir, extra string) *config.Config {
	t.Helper()
	body := fmt.Sprintf(`
owner: deployer
token_address: reflex
wallets_file: %s
history_file: %s
%s`, filepath.Join(dir, "wallets.csv"), filepath.Join(dir, "transfers.csv"), extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func TestRunnerPersistsStateAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, fmt.Sprintf(`
storage:
  driver: sqlite
  dsn: %s
metrics:
  listen: 127.0.0.1:0
`, filepath.Join(dir, "journal.db")))
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	first := NewRunner(cfg, logger)
	require.NoError(t, first.Initialize(ctx))

	s, err := scenario.Parse([]byte(transferScenario))
	require.NoError(t, err)
	report, err := first.Run(ctx, s)
	require.NoError(t, err)
	assert.True(t, report.OK(), report.FormatText())
	require.NoError(t, first.Shutdown(ctx))

	stats := first.History().Statistics()
	assert.Equal(t, 1, stats.TotalTransfers)
	assert.Equal(t, 1, stats.Successful)

	paths, err := first.Export(export.FormatCSV, filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.FileExists(t, p)
	}
	assert.Equal(t, "daily_report_20240501.json", filepath.Base(paths[1]))

	second := NewRunner(cfg, logger)
	require.NoError(t, second.Initialize(ctx))
	defer func() { require.NoError(t, second.Shutdown(ctx)) }()

	assert.True(t, second.restored)
	alice, err := second.book.Resolve("alice")
	require.NoError(t, err)
	assert.Equal(t, types.Units(990), second.Token().BalanceOf(alice))
	assert.True(t, second.Token().IsTradingOpen())
}

func TestRunnerWithoutJournal(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, "")
	ctx := context.Background()

	r := NewRunner(cfg, zaptest.NewLogger(t))
	require.NoError(t, r.Initialize(ctx))
	assert.False(t, r.restored)

	paths, err := r.Export(export.FormatJSON, dir)
	require.NoError(t, err)
	assert.Empty(t, paths)

	require.NoError(t, r.Shutdown(ctx))
	assert.FileExists(t, filepath.Join(dir, "wallets.csv"))
}

func TestShutdownAfterFailedInitialize(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, "")
	cfg.WalletsFile = dir // a directory cannot be read as CSV

	r := NewRunner(cfg, zaptest.NewLogger(t))
	require.Error(t, r.Initialize(context.Background()))
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestReadOnlyRunnerDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, "")

	r := NewRunner(cfg, zaptest.NewLogger(t), WithReadOnly())
	require.NoError(t, r.Initialize(context.Background()))
	require.NoError(t, r.Shutdown(context.Background()))
	assert.NoFileExists(t, filepath.Join(dir, "wallets.csv"))
}
