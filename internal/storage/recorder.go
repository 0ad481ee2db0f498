// internal/storage/recorder.go
package storage

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/reflex/internal/events"
	"github.com/rovshanmuradov/reflex/internal/storage/models"
	"github.com/rovshanmuradov/reflex/internal/types"
)

// Recorder writes token events to a journal. It is meant to run on the bus
// dispatch goroutine so rows land in publication order.
type Recorder struct {
	journal Journal
	logger  *zap.Logger
}

func NewRecorder(journal Journal, logger *zap.Logger) *Recorder {
	return &Recorder{journal: journal, logger: logger.Named("recorder")}
}

// Subscribe attaches the recorder to every event type the token emits.
func (r *Recorder) Subscribe(bus *events.Bus) []events.Subscription {
	return bus.SubscribeAll(r,
		events.TransferCompleted,
		events.TransferRejected,
		events.ApprovalChanged,
		events.Delivered,
		events.OwnershipTransferred,
		events.ParameterChanged,
		events.TradingOpened,
		events.TokenRecovered,
	)
}

// Handle implements events.Handler.
func (r *Recorder) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.TransferCompletedEvent:
		return r.journal.SaveTransfer(ctx, TransferFromReceipt(e.Receipt))
	case events.TransferRejectedEvent:
		return r.journal.SaveTransfer(ctx, &models.TransferRecord{
			TransferID:   uuid.NewString(),
			FromAddress:  e.From.String(),
			ToAddress:    e.To.String(),
			Amount:       dec(e.Amount),
			Status:       models.TransferRejected,
			Stage:        e.Stage,
			ErrorMessage: e.Reason,
			OccurredAt:   e.Timestamp().UTC(),
		})
	}

	rec := auditOf(event)
	if rec == nil {
		r.logger.Debug("Ignoring event", zap.String("event_type", string(event.Type())))
		return nil
	}
	return r.journal.SaveAudit(ctx, rec)
}

// TransferFromReceipt converts a committed transfer to its journal row.
func TransferFromReceipt(rc types.Receipt) *models.TransferRecord {
	return &models.TransferRecord{
		TransferID:  rc.ID,
		FromAddress: rc.From.String(),
		ToAddress:   rc.To.String(),
		Amount:      dec(rc.Amount),
		Net:         dec(rc.Net),
		TaxPercent:  rc.TaxPercent,
		Tax:         dec(rc.Tax),
		Burned:      dec(rc.Burned),
		Treasury:    dec(rc.Treasury),
		Reflection:  dec(rc.Reflection),
		Flushed:     dec(rc.Flushed),
		Coefficient: dec(rc.Coefficient),
		Status:      models.TransferCompleted,
		OccurredAt:  rc.At.UTC(),
	}
}

func auditOf(event events.Event) *models.AuditRecord {
	rec := &models.AuditRecord{
		EventType:  string(event.Type()),
		OccurredAt: event.Timestamp().UTC(),
	}
	switch e := event.(type) {
	case events.ParameterChangedEvent:
		rec.Name = e.Name
		rec.Value = e.Value
		if !e.Account.IsZero() {
			rec.Account = e.Account.String()
		}
	case events.OwnershipTransferredEvent:
		rec.Name = "owner"
		rec.Value = e.Next.String()
		rec.Account = e.Previous.String()
	case events.TradingOpenedEvent:
		rec.Name = "trading_open"
		rec.Value = strconv.FormatBool(true)
	case events.ApprovalEvent:
		rec.Name = "allowance:" + e.Spender.String()
		rec.Value = dec(e.Amount)
		rec.Account = e.Owner.String()
	case events.DeliveredEvent:
		rec.Name = "deliver"
		rec.Value = dec(e.Amount)
		rec.Account = e.From.String()
	case events.TokenRecoveredEvent:
		rec.Name = "recover:" + e.Token.String()
		rec.Value = dec(e.Amount)
		rec.Account = e.To.String()
	default:
		return nil
	}
	return rec
}
