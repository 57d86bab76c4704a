// Package ledger implements the confidential fractional-ownership ledger.
//
// Participants register, an administrator lists divisible assets, and participants
// take at most one confidential position per asset. Unit counts gate plaintext
// inventory and are public; the committed value of a position and every
// per-participant rollup live only behind Confidential Value Engine handles.
//
// Structure:
//   - registry.go:  enrolled participants and their encrypted aggregate profiles
//   - catalog.go:   asset metadata, availability counters and lifecycle
//   - positions.go: per-(participant, asset) confidential position records
//   - coordinator.go: the call-serialized facade, escrow and administrative surface
//   - sealed.go:    grant-carrying value cells; the only way a handle reaches storage
//   - admin.go:     the administrator capability issued once at genesis
//
// Every call runs under one lock and either applies completely or leaves no trace
// in ledger state. All engine work for a call happens before the first mutation.
package ledger
