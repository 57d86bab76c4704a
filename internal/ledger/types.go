package ledger

import (
	"context"
	"math/bits"
	"time"

	"confidential-ledger/internal/cve"
	"confidential-ledger/internal/journal"
)

// Principal identifies an actor.
type Principal string

// Amount is a plaintext quantity of the settlement asset in base units.
type Amount uint64

// Engine is the contract-side view of the Confidential Value Engine.
type Engine interface {
	ID() string
	Encrypt(ctx context.Context, m uint64) (cve.Handle, error)
	Add(ctx context.Context, a, b cve.Handle) (cve.Handle, error)
	GrantContract(ctx context.Context, h cve.Handle) error
	GrantUser(ctx context.Context, h cve.Handle, principal string) error
	// FromInputEquals admits a client-encrypted input from principal that
	// must encrypt m.
	FromInputEquals(ctx context.Context, principal string, payload []byte, m uint64) (cve.Handle, error)
	Settle()
}

// Funds moves plaintext value between principals and escrow.
type Funds interface {
	Debit(principal string, amount uint64) error
	Credit(principal string, amount uint64) error
}

// Journal records accepted operations.
type Journal interface {
	Append(ctx context.Context, e journal.Entry) error
}

// Config holds ledger genesis parameters.
type Config struct {
	// Admin receives the administrator capability and drained escrow.
	Admin Principal
	// ValueScale divides a position's cost before it is encrypted, so that
	// confidential sums stay inside the engine's decryption range. Unit
	// prices must be multiples of it. Zero means 1.
	ValueScale uint64
}

// Listing describes an asset to be listed.
type Listing struct {
	Name           string
	Issuer         string
	ContentRef     string
	TotalValuation Amount
	TotalUnits     uint64
	UnitPrice      Amount
}

// Asset is the public record of a listed asset.
type Asset struct {
	ID             uint64
	Name           string
	Issuer         string
	ContentRef     string
	TotalValuation Amount
	TotalUnits     uint64
	AvailableUnits uint64
	UnitPrice      Amount
	Investors      uint64
	Active         bool
	CreatedAt      time.Time
	FinalPrice     Amount
	ClosedAt       time.Time
}

// Participant is the public view of an enrolled principal.
type Participant struct {
	Principal    Principal
	Registered   bool
	RegisteredAt time.Time
}

// Profile exposes the encrypted aggregates of a participant as opaque handles.
type Profile struct {
	TotalCommitted cve.Handle
	PositionCount  cve.Handle
}

// Position is the view of one (participant, asset) record.
type Position struct {
	Principal Principal
	AssetID   uint64
	Exists    bool
	CreatedAt time.Time
	Units     cve.Handle
	Value     cve.Handle
}

// Receipt summarizes an accepted commitment.
type Receipt struct {
	AssetID   uint64
	Units     uint64
	Cost      Amount
	Refund    Amount
	CreatedAt time.Time
	Position  Position
}

// Stats reports public ledger counters.
type Stats struct {
	Assets       int
	ActiveAssets int
	Participants int
	Positions    int
	Escrow       Amount
}

// mulAmount returns units*price and whether it fits in an Amount.
func mulAmount(units uint64, price Amount) (Amount, bool) {
	hi, lo := bits.Mul64(units, uint64(price))
	return Amount(lo), hi == 0
}
