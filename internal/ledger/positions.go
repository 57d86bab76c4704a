package ledger

import (
	"sort"
	"time"
)

type positionKey struct {
	principal Principal
	assetID   uint64
}

// position is created once and never mutated.
type position struct {
	units     sealed
	value     sealed
	createdAt time.Time
}

type positionBook struct {
	entries map[positionKey]*position
}

func newPositionBook() *positionBook {
	return &positionBook{entries: make(map[positionKey]*position)}
}

func (b *positionBook) exists(p Principal, assetID uint64) bool {
	_, ok := b.entries[positionKey{p, assetID}]
	return ok
}

func (b *positionBook) insert(p Principal, assetID uint64, pos *position) {
	b.entries[positionKey{p, assetID}] = pos
}

func (b *positionBook) view(p Principal, assetID uint64) Position {
	pos, ok := b.entries[positionKey{p, assetID}]
	if !ok {
		return Position{Principal: p, AssetID: assetID}
	}
	return Position{
		Principal: p,
		AssetID:   assetID,
		Exists:    true,
		CreatedAt: pos.createdAt,
		Units:     pos.units.Handle(),
		Value:     pos.value.Handle(),
	}
}

// of returns every position held by p, ordered by asset id.
func (b *positionBook) of(p Principal) []Position {
	var out []Position
	for k := range b.entries {
		if k.principal == p {
			out = append(out, b.view(p, k.assetID))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

func (b *positionBook) len() int {
	return len(b.entries)
}
