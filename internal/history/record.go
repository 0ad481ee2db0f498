package history

import (
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"github.com/rovshanmuradov/reflex/internal/types"
)

// Record is one transfer attempt, committed or rejected.
type Record struct {
	ID        string
	Timestamp time.Time
	From      types.Address
	To        types.Address
	Amount    *uint256.Int

	// Split, zero for rejected transfers.
	Net        *uint256.Int
	TaxPercent uint64
	Tax        *uint256.Int
	Burned     *uint256.Int
	Treasury   *uint256.Int
	Reflection *uint256.Int

	Success bool
	Stage   string // pipeline stage that rejected the transfer
	Error   string
}

// FromReceipt builds a successful record from a committed transfer.
func FromReceipt(r types.Receipt) Record {
	return Record{
		ID:         r.ID,
		Timestamp:  r.At,
		From:       r.From,
		To:         r.To,
		Amount:     types.Clone(r.Amount),
		Net:        types.Clone(r.Net),
		TaxPercent: r.TaxPercent,
		Tax:        types.Clone(r.Tax),
		Burned:     types.Clone(r.Burned),
		Treasury:   types.Clone(r.Treasury),
		Reflection: types.Clone(r.Reflection),
		Success:    true,
	}
}

// Involves reports whether addr sent or received the transfer.
func (r *Record) Involves(addr types.Address) bool {
	return r.From == addr || r.To == addr
}

// ToCSV converts the record to a CSV row matching CSVHeaders.
func (r *Record) ToCSV() []string {
	return []string{
		r.ID,
		r.Timestamp.UTC().Format(time.RFC3339),
		r.From.String(),
		r.To.String(),
		formatAmount(r.Amount),
		formatAmount(r.Net),
		formatPercent(r.TaxPercent),
		formatAmount(r.Tax),
		formatAmount(r.Burned),
		formatAmount(r.Treasury),
		formatAmount(r.Reflection),
		strconv.FormatBool(r.Success),
		r.Stage,
		r.Error,
	}
}

// CSVHeaders returns the header row for transfer CSV files.
func CSVHeaders() []string {
	return []string{
		"id",
		"timestamp",
		"from",
		"to",
		"amount",
		"net",
		"tax_percent",
		"tax",
		"burned",
		"treasury",
		"reflection",
		"success",
		"stage",
		"error",
	}
}

func formatAmount(x *uint256.Int) string {
	if x == nil || x.IsZero() {
		return ""
	}
	return types.FormatUnits(x)
}

func formatPercent(p uint64) string {
	if p == 0 {
		return ""
	}
	return strconv.FormatUint(p, 10)
}
