package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/reflex/internal/events"
	"github.com/rovshanmuradov/reflex/internal/logger"
	"github.com/rovshanmuradov/reflex/internal/types"
)

const flushInterval = 30 * time.Second

// TransferHistory keeps the most recent transfers in memory, appends every
// transfer to a CSV file and maintains running totals.
type TransferHistory struct {
	mu         sync.RWMutex
	csvWriter  *logger.SafeCSVWriter
	records    []Record
	maxRecords int
	logger     *zap.Logger

	total      int
	successful int
	volume     *uint256.Int
	tax        *uint256.Int
	burned     *uint256.Int
	treasury   *uint256.Int
	reflected  *uint256.Int
}

// NewTransferHistory creates the history backed by csvPath.
func NewTransferHistory(csvPath string, maxRecords int, zapLogger *zap.Logger) (*TransferHistory, error) {
	if maxRecords <= 0 {
		return nil, fmt.Errorf("max records must be positive, got %d", maxRecords)
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	zapLogger = zapLogger.Named("history")

	csvWriter, err := logger.NewSafeCSVWriter(csvPath, CSVHeaders(), flushInterval, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	th := &TransferHistory{
		csvWriter:  csvWriter,
		records:    make([]Record, 0, maxRecords),
		maxRecords: maxRecords,
		logger:     zapLogger,
		volume:     types.Zero(),
		tax:        types.Zero(),
		burned:     types.Zero(),
		treasury:   types.Zero(),
		reflected:  types.Zero(),
	}

	zapLogger.Info("Transfer history initialized",
		zap.String("csv_file", csvPath),
		zap.Int("max_memory_records", maxRecords))

	return th, nil
}

// Log stores a record.
func (th *TransferHistory) Log(record Record) error {
	th.mu.Lock()
	defer th.mu.Unlock()

	if err := th.csvWriter.WriteRecord(record.ToCSV()); err != nil {
		th.logger.Error("Failed to write transfer to CSV",
			zap.String("id", record.ID),
			zap.Error(err))
		return fmt.Errorf("failed to write transfer: %w", err)
	}

	if len(th.records) >= th.maxRecords {
		th.records = th.records[1:]
	}
	th.records = append(th.records, record)

	th.total++
	if record.Success {
		th.successful++
		addTo(th.volume, record.Amount)
		addTo(th.tax, record.Tax)
		addTo(th.burned, record.Burned)
		addTo(th.treasury, record.Treasury)
		addTo(th.reflected, record.Reflection)
	}

	th.logger.Debug("Transfer logged",
		zap.String("id", record.ID),
		zap.Stringer("from", record.From),
		zap.Stringer("to", record.To),
		zap.Bool("success", record.Success))
	return nil
}

func addTo(total, x *uint256.Int) {
	if x != nil {
		total.Add(total, x)
	}
}

// Handle implements events.Handler for transfer events.
func (th *TransferHistory) Handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.TransferCompletedEvent:
		return th.Log(FromReceipt(e.Receipt))
	case events.TransferRejectedEvent:
		return th.Log(Record{
			ID:        uuid.NewString(),
			Timestamp: e.Timestamp(),
			From:      e.From,
			To:        e.To,
			Amount:    types.Clone(e.Amount),
			Stage:     e.Stage,
			Error:     e.Reason,
		})
	}
	return nil
}

// Subscribe attaches the history to both transfer event types on bus.
func (th *TransferHistory) Subscribe(bus *events.Bus) []events.Subscription {
	return bus.SubscribeAll(th, events.TransferCompleted, events.TransferRejected)
}

// Recent returns up to limit of the newest records, oldest first. A limit
// of zero or less returns everything kept in memory.
func (th *TransferHistory) Recent(limit int) []Record {
	th.mu.RLock()
	defer th.mu.RUnlock()

	if limit <= 0 || limit > len(th.records) {
		limit = len(th.records)
	}
	result := make([]Record, limit)
	copy(result, th.records[len(th.records)-limit:])
	return result
}

// ByID returns the record with the given id.
func (th *TransferHistory) ByID(id string) (*Record, bool) {
	th.mu.RLock()
	defer th.mu.RUnlock()

	for i := len(th.records) - 1; i >= 0; i-- {
		if th.records[i].ID == id {
			record := th.records[i]
			return &record, true
		}
	}
	return nil, false
}

// ByAccount returns every kept record addr took part in.
func (th *TransferHistory) ByAccount(addr types.Address) []Record {
	th.mu.RLock()
	defer th.mu.RUnlock()

	var result []Record
	for _, r := range th.records {
		if r.Involves(addr) {
			result = append(result, r)
		}
	}
	return result
}

// Statistics returns the running totals.
func (th *TransferHistory) Statistics() Statistics {
	th.mu.RLock()
	defer th.mu.RUnlock()
	return th.statisticsLocked()
}

func (th *TransferHistory) statisticsLocked() Statistics {
	stats := Statistics{
		TotalTransfers: th.total,
		Successful:     th.successful,
		Rejected:       th.total - th.successful,
		Volume:         th.volume.Clone(),
		Tax:            th.tax.Clone(),
		Burned:         th.burned.Clone(),
		Treasury:       th.treasury.Clone(),
		Reflected:      th.reflected.Clone(),
	}
	if th.total > 0 {
		stats.SuccessRate = float64(th.successful) / float64(th.total) * 100
	}
	return stats
}

// Flush forces buffered rows to disk.
func (th *TransferHistory) Flush() error {
	return th.csvWriter.Flush()
}

// Close flushes and closes the CSV file.
func (th *TransferHistory) Close() error {
	th.mu.Lock()
	defer th.mu.Unlock()

	stats := th.statisticsLocked()
	th.logger.Info("Closing transfer history",
		zap.Int("total_transfers", stats.TotalTransfers),
		zap.Int("rejected", stats.Rejected),
		zap.String("volume", types.FormatUnits(stats.Volume)),
		zap.String("tax", types.FormatUnits(stats.Tax)))

	return th.csvWriter.Close()
}

// Statistics holds aggregate transfer statistics.
type Statistics struct {
	TotalTransfers int
	Successful     int
	Rejected       int
	SuccessRate    float64
	Volume         *uint256.Int
	Tax            *uint256.Int
	Burned         *uint256.Int
	Treasury       *uint256.Int
	Reflected      *uint256.Int
}
