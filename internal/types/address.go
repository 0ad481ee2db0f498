// internal/types/address.go
package types

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Address identifies a ledger account. Accounts are keyed by ed25519 public keys.
type Address = solana.PublicKey

// ZeroAddress is the unset address. It never holds a balance.
var ZeroAddress Address

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	addr, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return ZeroAddress, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}

// ShortAddress returns the first characters of an address for log lines.
func ShortAddress(addr Address) string {
	s := addr.String()
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
