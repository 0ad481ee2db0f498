// internal/types/receipt.go
package types

import (
	"time"

	"github.com/holiman/uint256"
)

// Receipt describes how one committed transfer was split.
type Receipt struct {
	ID   string
	From Address
	To   Address

	Amount     *uint256.Int
	Net        *uint256.Int
	TaxPercent uint64
	Tax        *uint256.Int
	Burned     *uint256.Int
	Treasury   *uint256.Int
	Reflection *uint256.Int
	// Flushed is the pending treasury balance paid out by this transfer.
	Flushed *uint256.Int

	Coefficient *uint256.Int
	At          time.Time
}
