package ledger

import (
	"strconv"
	"time"
)

// catalog stores assets by 1-based id; assets are never removed.
// Every unit price is a multiple of scale, so encrypted values divide exactly.
type catalog struct {
	scale  uint64
	assets []*Asset
}

func (c *catalog) list(l Listing, at time.Time) (*Asset, error) {
	if l.TotalUnits == 0 {
		return nil, ErrInvalidUnitAmount
	}
	total, ok := mulAmount(l.TotalUnits, l.UnitPrice)
	if !ok || total != l.TotalValuation {
		return nil, reject(ErrValueMismatch, map[string]string{
			"total_valuation": strconv.FormatUint(uint64(l.TotalValuation), 10),
			"total_units":     strconv.FormatUint(l.TotalUnits, 10),
			"unit_price":      strconv.FormatUint(uint64(l.UnitPrice), 10),
		})
	}
	if c.scale > 1 && uint64(l.UnitPrice)%c.scale != 0 {
		err := reject(ErrValueMismatch, map[string]string{
			"unit_price":  strconv.FormatUint(uint64(l.UnitPrice), 10),
			"value_scale": strconv.FormatUint(c.scale, 10),
		})
		err.Message = "unit price is not a multiple of the value scale"
		return nil, err
	}
	a := &Asset{
		ID:             uint64(len(c.assets)) + 1,
		Name:           l.Name,
		Issuer:         l.Issuer,
		ContentRef:     l.ContentRef,
		TotalValuation: l.TotalValuation,
		TotalUnits:     l.TotalUnits,
		AvailableUnits: l.TotalUnits,
		UnitPrice:      l.UnitPrice,
		Active:         true,
		CreatedAt:      at,
	}
	c.assets = append(c.assets, a)
	return a, nil
}

func (c *catalog) get(id uint64) (*Asset, error) {
	if id == 0 || id > uint64(len(c.assets)) {
		return nil, reject(ErrInvalidAssetID, map[string]string{"asset_id": strconv.FormatUint(id, 10)})
	}
	return c.assets[id-1], nil
}

// reservable checks that units can be taken from asset id without changing it.
func (c *catalog) reservable(id, units uint64) (*Asset, error) {
	a, err := c.get(id)
	if err != nil {
		return nil, err
	}
	if !a.Active {
		return nil, reject(ErrAssetNotActive, map[string]string{"asset_id": strconv.FormatUint(id, 10)})
	}
	if units == 0 {
		return nil, ErrInvalidUnitAmount
	}
	if units > a.AvailableUnits {
		return nil, reject(ErrInsufficientUnits, map[string]string{
			"requested": strconv.FormatUint(units, 10),
			"available": strconv.FormatUint(a.AvailableUnits, 10),
		})
	}
	return a, nil
}

// reserve must follow a successful reservable check in the same call.
func (c *catalog) reserve(a *Asset, units uint64) {
	a.AvailableUnits -= units
	a.Investors++
}

func (c *catalog) close(id uint64, finalPrice Amount, at time.Time) (*Asset, error) {
	a, err := c.get(id)
	if err != nil {
		return nil, err
	}
	if !a.Active {
		return nil, reject(ErrAssetNotActive, map[string]string{"asset_id": strconv.FormatUint(id, 10)})
	}
	a.Active = false
	a.FinalPrice = finalPrice
	a.ClosedAt = at
	return a, nil
}

func (c *catalog) snapshot() []Asset {
	out := make([]Asset, len(c.assets))
	for i, a := range c.assets {
		out[i] = *a
	}
	return out
}

func (c *catalog) active() int {
	n := 0
	for _, a := range c.assets {
		if a.Active {
			n++
		}
	}
	return n
}
