// wallet.go - Plaintext external balances of principals.
//
// The Book is the value-transfer environment around the ledger: principals pay
// into escrow from it and receive refunds and drains back into it.
// It is persisted as a single JSON file.

package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
)

var (
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")
	ErrOverflow            = errors.New("wallet: balance overflow")
)

// Book holds one balance per principal. It is safe for concurrent use.
type Book struct {
	mu       sync.Mutex
	balances map[string]uint64
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{balances: make(map[string]uint64)}
}

// Balance returns the balance of principal (zero when unknown).
func (b *Book) Balance(principal string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[principal]
}

// Credit adds amount to principal.
func (b *Book) Credit(principal string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.balances[principal]
	if amount > math.MaxUint64-cur {
		return fmt.Errorf("%w: %s", ErrOverflow, principal)
	}
	b.balances[principal] = cur + amount
	return nil
}

// Debit removes amount from principal, or fails without change.
func (b *Book) Debit(principal string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.balances[principal]
	if amount > cur {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, principal, cur, amount)
	}
	b.balances[principal] = cur - amount
	return nil
}

// Principals returns the known principals in lexical order.
func (b *Book) Principals() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.balances))
	for p := range b.balances {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type bookFile struct {
	Balances map[string]uint64 `json:"balances"`
}

// Save writes the book to a JSON file, overwriting it if it exists.
func (b *Book) Save(path string) error {
	b.mu.Lock()
	snapshot := bookFile{Balances: make(map[string]uint64, len(b.balances))}
	for p, v := range b.balances {
		snapshot.Balances[p] = v
	}
	b.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

// LoadBook reads a book written by Save.
func LoadBook(path string) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var snapshot bookFile
	if err := json.NewDecoder(f).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode wallet book: %w", err)
	}
	b := NewBook()
	for p, v := range snapshot.Balances {
		b.balances[p] = v
	}
	return b, nil
}
