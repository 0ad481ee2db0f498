// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/rovshanmuradov/reflex/internal/types"
)

// ErrUnknownWallet is returned when a name resolves to nothing.
var ErrUnknownWallet = errors.New("unknown wallet")

// Wallet is a named ed25519 key pair. Its public key is the ledger address.
type Wallet struct {
	Name       string
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// NewWallet builds a wallet from a base58-encoded private key.
func NewWallet(name, privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(strings.TrimSpace(privateKeyBase58))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	privateKey := solana.PrivateKey(privateKeyBytes)
	return &Wallet{
		Name:       name,
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}, nil
}

// Generate creates a wallet with a fresh random key.
func Generate(name string) (*Wallet, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key for %s: %w", name, err)
	}
	return &Wallet{Name: name, PrivateKey: key, PublicKey: key.PublicKey()}, nil
}

// Address returns the ledger address of the wallet.
func (w *Wallet) Address() types.Address {
	return w.PublicKey
}

// Sign signs an arbitrary message with the wallet key.
func (w *Wallet) Sign(message []byte) (solana.Signature, error) {
	return w.PrivateKey.Sign(message)
}

// String returns the public key.
func (w *Wallet) String() string {
	return w.PublicKey.String()
}

// Book is a set of wallets addressable by name.
type Book struct {
	wallets map[string]*Wallet
}

// NewBook creates a book from wallets. Names must be unique.
func NewBook(wallets ...*Wallet) (*Book, error) {
	b := &Book{wallets: make(map[string]*Wallet, len(wallets))}
	for _, w := range wallets {
		if err := b.Add(w); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Add inserts a wallet.
func (b *Book) Add(w *Wallet) error {
	if w.Name == "" {
		return fmt.Errorf("wallet %s has no name", w)
	}
	if _, ok := b.wallets[w.Name]; ok {
		return fmt.Errorf("duplicate wallet name %q", w.Name)
	}
	b.wallets[w.Name] = w
	return nil
}

// Get returns the wallet called name.
func (b *Book) Get(name string) (*Wallet, bool) {
	w, ok := b.wallets[name]
	return w, ok
}

// Ensure returns the wallet called name, generating it on first use.
func (b *Book) Ensure(name string) (*Wallet, error) {
	if w, ok := b.wallets[name]; ok {
		return w, nil
	}
	w, err := Generate(name)
	if err != nil {
		return nil, err
	}
	b.wallets[name] = w
	return w, nil
}

// Resolve turns a wallet name or a base58 address into an address.
func (b *Book) Resolve(ref string) (types.Address, error) {
	if w, ok := b.wallets[ref]; ok {
		return w.PublicKey, nil
	}
	if addr, err := solana.PublicKeyFromBase58(ref); err == nil {
		return addr, nil
	}
	return types.ZeroAddress, fmt.Errorf("%w: %q", ErrUnknownWallet, ref)
}

// NameOf returns the wallet name of addr, or the address itself.
func (b *Book) NameOf(addr types.Address) string {
	for name, w := range b.wallets {
		if w.PublicKey == addr {
			return name
		}
	}
	return addr.String()
}

// Names returns all wallet names in order.
func (b *Book) Names() []string {
	names := make([]string, 0, len(b.wallets))
	for name := range b.wallets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of wallets.
func (b *Book) Len() int {
	return len(b.wallets)
}

// LoadWallets reads a CSV file with the columns [Name, PrivateKeyBase58].
// The first row is a header.
func LoadWallets(path string) (*Book, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	b := &Book{wallets: make(map[string]*Wallet)}
	for i, record := range records[1:] {
		if len(record) != 2 {
			return nil, fmt.Errorf("row %d: expected 2 columns, got %d", i+2, len(record))
		}
		w, err := NewWallet(strings.TrimSpace(record[0]), record[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if err := b.Add(w); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	return b, nil
}

// SaveWallets writes the book in the format LoadWallets reads.
func SaveWallets(path string, b *Book) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Name", "PrivateKeyBase58"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, name := range b.Names() {
		w := b.wallets[name]
		if err := writer.Write([]string{name, base58.Encode(w.PrivateKey)}); err != nil {
			return fmt.Errorf("failed to write wallet %s: %w", name, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
