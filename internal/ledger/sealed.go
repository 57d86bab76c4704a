package ledger

import (
	"context"

	"confidential-ledger/internal/cve"
)

// sealed is an immutable confidential cell: a handle plus the grants that were
// attached to it. seal is its only constructor, so a handle cannot reach ledger
// storage without both the contract grant and the owner grant in place.
// Updating a cell means deriving a new one; the old handle is simply dropped.
type sealed struct {
	handle   cve.Handle
	contract string
	readers  []Principal
}

func seal(ctx context.Context, eng Engine, h cve.Handle, owner Principal) (sealed, error) {
	if err := eng.GrantContract(ctx, h); err != nil {
		return sealed{}, err
	}
	if err := eng.GrantUser(ctx, h, string(owner)); err != nil {
		return sealed{}, err
	}
	return sealed{handle: h, contract: eng.ID(), readers: []Principal{owner}}, nil
}

func encryptSealed(ctx context.Context, eng Engine, m uint64, owner Principal) (sealed, error) {
	h, err := eng.Encrypt(ctx, m)
	if err != nil {
		return sealed{}, err
	}
	return seal(ctx, eng, h, owner)
}

// plus derives s + delta and re-seals the result for the same readers.
func (s sealed) plus(ctx context.Context, eng Engine, delta cve.Handle) (sealed, error) {
	h, err := eng.Add(ctx, s.handle, delta)
	if err != nil {
		return sealed{}, err
	}
	out := sealed{handle: h, contract: eng.ID()}
	if err := eng.GrantContract(ctx, h); err != nil {
		return sealed{}, err
	}
	for _, r := range s.readers {
		if err := eng.GrantUser(ctx, h, string(r)); err != nil {
			return sealed{}, err
		}
	}
	out.readers = append([]Principal(nil), s.readers...)
	return out, nil
}

// Handle returns the opaque handle of the cell.
func (s sealed) Handle() cve.Handle {
	return s.handle
}
