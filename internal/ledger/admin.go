package ledger

// AdminCap is the administrator capability. A Coordinator issues exactly one,
// at construction, and every administrative call must present it.
// The zero AdminCap authorizes nothing.
type AdminCap struct {
	key *adminKey
}

type adminKey struct {
	holder Principal
}

// Holder returns the principal that receives drained escrow.
func (c AdminCap) Holder() Principal {
	if c.key == nil {
		return ""
	}
	return c.key.holder
}

func (c *Coordinator) authorize(capability AdminCap) error {
	if capability.key == nil || capability.key != c.admin {
		return ErrUnauthorized
	}
	return nil
}
