// internal/app/runner.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/reflex/internal/config"
	"github.com/rovshanmuradov/reflex/internal/events"
	"github.com/rovshanmuradov/reflex/internal/export"
	"github.com/rovshanmuradov/reflex/internal/history"
	"github.com/rovshanmuradov/reflex/internal/metrics"
	"github.com/rovshanmuradov/reflex/internal/presale"
	"github.com/rovshanmuradov/reflex/internal/scenario"
	"github.com/rovshanmuradov/reflex/internal/storage"
	"github.com/rovshanmuradov/reflex/internal/storage/postgres"
	"github.com/rovshanmuradov/reflex/internal/storage/sqlite"
	"github.com/rovshanmuradov/reflex/internal/token"
	"github.com/rovshanmuradov/reflex/internal/types"
	"github.com/rovshanmuradov/reflex/internal/wallet"
)

const (
	shutdownTimeout = 10 * time.Second
	historyLimit    = 10000
)

// Runner wires a token to its wallets, event consumers and journal, and
// replays scenarios against it.
type Runner struct {
	logger *zap.Logger
	config *config.Config

	book     *wallet.Book
	clock    *scenario.Clock
	bus      *events.Bus
	presale  *presale.Registry
	token    *token.Token
	history  *history.TransferHistory
	metrics  *metrics.Collector
	journal  storage.Journal
	restored bool
	readOnly bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithReadOnly keeps Shutdown from writing a state snapshot or the wallets file.
func WithReadOnly() Option {
	return func(r *Runner) { r.readOnly = true }
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg *config.Config, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger:  logger,
		config:  cfg,
		clock:   scenario.NewClock(time.Now().UTC()),
		presale: presale.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize loads wallets, opens the journal and deploys or restores the token.
func (r *Runner) Initialize(ctx context.Context) error {
	book, err := r.loadWallets()
	if err != nil {
		return err
	}
	r.book = book

	owner, err := r.resolve(r.config.Owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	self, err := r.resolve(r.config.TokenAddress)
	if err != nil {
		return fmt.Errorf("token_address: %w", err)
	}

	if r.journal, err = r.openJournal(ctx); err != nil {
		return err
	}

	r.bus = events.NewBus(r.logger, r.config.EventBuffer)
	if r.history, err = history.NewTransferHistory(r.config.HistoryFile, historyLimit, r.logger); err != nil {
		return fmt.Errorf("failed to open transfer history: %w", err)
	}
	r.history.Subscribe(r.bus)
	r.metrics = metrics.NewCollector()
	r.metrics.Subscribe(r.bus)
	if r.journal != nil {
		storage.NewRecorder(r.journal, r.logger).Subscribe(r.bus)
	}

	opts := []token.Option{
		token.WithLogger(r.logger),
		token.WithPublisher(r.bus),
		token.WithWhitelist(r.presale),
		token.WithClock(r.clock.Now),
	}
	if r.token, err = r.restoreToken(ctx, self, opts); err != nil {
		return err
	}
	if r.token == nil {
		params, err := r.config.ToParams(owner, self)
		if err != nil {
			return err
		}
		if r.token, err = token.New(params, opts...); err != nil {
			return err
		}
	}
	r.metrics.WatchToken(r.token)

	r.logger.Info(fmt.Sprintf("Token %s ready at %s", r.token.Symbol(), self),
		zap.Bool("restored", r.restored),
		zap.Int("wallets", r.book.Len()))
	return nil
}

func (r *Runner) loadWallets() (*wallet.Book, error) {
	if r.config.WalletsFile == "" {
		return wallet.NewBook()
	}
	book, err := wallet.LoadWallets(r.config.WalletsFile)
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("Wallets file not found, generating wallets on demand",
			zap.String("path", r.config.WalletsFile))
		return wallet.NewBook()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load wallets: %w", err)
	}
	return book, nil
}

// resolve accepts a wallet name or a base58 address.
func (r *Runner) resolve(ref string) (types.Address, error) {
	if addr, err := r.book.Resolve(ref); err == nil {
		return addr, nil
	}
	w, err := r.book.Ensure(ref)
	if err != nil {
		return types.ZeroAddress, err
	}
	return w.PublicKey, nil
}

func (r *Runner) openJournal(ctx context.Context) (storage.Journal, error) {
	sc := r.config.Storage
	var (
		j   *storage.GormJournal
		err error
	)
	switch sc.Driver {
	case "":
		return nil, nil
	case "postgres":
		j, err = postgres.Open(ctx, postgres.Options{
			DSN:          sc.DSN,
			Retries:      sc.Retries,
			MaxOpenConns: sc.MaxOpenConns,
			MaxIdleConns: sc.MaxIdleConns,
		}, r.logger)
	case "sqlite":
		j, err = sqlite.Open(sc.DSN, r.logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := j.RunMigrations(); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

// restoreToken returns nil without error when there is nothing to restore.
func (r *Runner) restoreToken(ctx context.Context, self types.Address, opts []token.Option) (*token.Token, error) {
	if r.journal == nil {
		return nil, nil
	}
	state, err := storage.LoadState(ctx, r.journal, self)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token state: %w", err)
	}
	tok, err := token.Restore(state, opts...)
	if err != nil {
		return nil, err
	}
	r.restored = true
	return tok, nil
}

// Token returns the running token.
func (r *Runner) Token() *token.Token {
	return r.token
}

// History returns the in-memory transfer history.
func (r *Runner) History() *history.TransferHistory {
	return r.history
}

// Run replays s, serving metrics while it runs when a listen address is set.
// SIGINT and SIGTERM stop the replay between steps.
func (r *Runner) Run(ctx context.Context, s *scenario.Scenario) (*scenario.Report, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(gCtx)
	defer finish()

	if addr := r.config.Metrics.Listen; addr != "" {
		srv := &http.Server{Addr: addr, Handler: r.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			r.logger.Info("Serving metrics", zap.String("listen", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var report *scenario.Report
	g.Go(func() error {
		defer finish()
		runner := scenario.NewRunner(r.token, r.book, r.clock, r.logger, scenario.WithPresale(r.presale))
		var err error
		report, err = runner.Run(runCtx, s)
		return err
	})

	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// Export writes the recorded history to outputDir in the given format, plus
// a daily report for the day of the last transfer.
func (r *Runner) Export(format export.ExportFormat, outputDir string) ([]string, error) {
	records := r.history.Recent(0)
	if len(records) == 0 {
		r.logger.Info("Nothing to export")
		return nil, nil
	}
	exporter := export.NewTransferExporter(r.logger)

	path, err := exporter.ExportTransfers(records, export.ExportOptions{Format: format, OutputDir: outputDir})
	if err != nil {
		return nil, err
	}
	daily, err := exporter.ExportDailyReport(records, records[len(records)-1].Timestamp, outputDir)
	if err != nil {
		return []string{path}, err
	}
	return []string{path, daily}, nil
}

// Shutdown drains the event bus, persists the token state and closes every
// resource. It is safe to call after a failed Initialize.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.logger.Info("Shutting down")
	var errs []error

	if r.bus != nil {
		if err := r.bus.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("event bus: %w", err))
		}
		stats := r.bus.Stats()
		r.logger.Info("Event bus drained",
			zap.Uint64("published", stats.Published),
			zap.Uint64("dropped", stats.Dropped),
			zap.Uint64("handler_failures", stats.HandlerFailures))
	}
	if !r.readOnly && r.journal != nil && r.token != nil {
		if err := storage.SaveState(ctx, r.journal, r.token.Snapshot(), r.token.CurrentCoeff(), r.clock.Now()); err != nil {
			errs = append(errs, fmt.Errorf("save state: %w", err))
		}
	}
	if !r.readOnly && r.book != nil && r.config.WalletsFile != "" {
		if err := wallet.SaveWallets(r.config.WalletsFile, r.book); err != nil {
			errs = append(errs, fmt.Errorf("save wallets: %w", err))
		}
	}
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transfer history: %w", err))
		}
	}
	if r.journal != nil {
		if err := r.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
	}
	return errors.Join(errs...)
}
