// script.go - Operation scripts replayed against a fresh ledger
package main

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	opFund     = "fund"
	opRegister = "register"
	opList     = "list"
	opCommit   = "commit"
	opClose    = "close"
	opDrain    = "drain"
	opDecrypt  = "decrypt"
)

// Step is one submission. Principal is the caller; administrative steps
// without a principal run as the configured admin. Expect is the rejection
// code the step should produce, empty for success.
type Step struct {
	Op        string `json:"op"`
	Principal string `json:"principal,omitempty"`
	Expect    string `json:"expect,omitempty"`

	// fund
	Amount uint64 `json:"amount,omitempty"`

	// list
	Name       string `json:"name,omitempty"`
	Issuer     string `json:"issuer,omitempty"`
	ContentRef string `json:"content_ref,omitempty"`
	Valuation  uint64 `json:"valuation,omitempty"`
	UnitPrice  uint64 `json:"unit_price,omitempty"`

	// commit, list (total units), close, decrypt
	Asset      uint64 `json:"asset,omitempty"`
	Units      uint64 `json:"units,omitempty"`
	Paid       uint64 `json:"paid,omitempty"`
	FinalPrice uint64 `json:"final_price,omitempty"`

	// commit: count placed in the encrypted input, defaults to Units
	InputUnits *uint64 `json:"input_units,omitempty"`

	// decrypt: target is units, value, total or count. Owner selects whose
	// handle is read and defaults to Principal.
	Target string  `json:"target,omitempty"`
	Owner  string  `json:"owner,omitempty"`
	Want   *uint64 `json:"want,omitempty"`
}

// LoadScript reads a JSON array of steps.
func LoadScript(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("failed to decode script: %w", err)
	}
	return steps, nil
}

func want(v uint64) *uint64 { return &v }

// DefaultScript lists a 100-unit asset at 0.1 per unit (six decimals), has
// Alice take 30 units and walks through every rejection path of a commit,
// including an encrypted input that disagrees with its declared count.
func DefaultScript() []Step {
	return []Step{
		{Op: opFund, Principal: "alice", Amount: 5_000_000},
		{Op: opFund, Principal: "bob", Amount: 5_000_000},
		{Op: opList, Name: "Harbour Warehouse", Issuer: "harbour-holdings", ContentRef: "ipfs://harbour-warehouse",
			Valuation: 10_000_000, UnitPrice: 100_000, Units: 100},
		{Op: opList, Name: "Broken Listing", Valuation: 10_000_001, UnitPrice: 100_000, Units: 100, Expect: "VALUE_MISMATCH"},
		{Op: opList, Name: "Solar Farm", Issuer: "sunfield", ContentRef: "ipfs://solar-farm",
			Valuation: 5_000_000, UnitPrice: 50_000, Units: 100},
		{Op: opRegister, Principal: "alice"},
		{Op: opRegister, Principal: "alice", Expect: "ALREADY_REGISTERED"},
		{Op: opCommit, Principal: "alice", Asset: 1, Units: 30, Paid: 3_000_000},
		{Op: opCommit, Principal: "alice", Asset: 1, Units: 5, Paid: 500_000, Expect: "DUPLICATE_POSITION"},
		{Op: opCommit, Principal: "bob", Asset: 1, Units: 10, Paid: 1_000_000, Expect: "NOT_REGISTERED"},
		{Op: opCommit, Principal: "alice", Asset: 2, Units: 10, Paid: 600_000},
		{Op: opClose, Principal: "mallory", Asset: 1, FinalPrice: 120_000, Expect: "UNAUTHORIZED"},
		{Op: opClose, Asset: 1, FinalPrice: 120_000},
		{Op: opRegister, Principal: "bob"},
		{Op: opCommit, Principal: "bob", Asset: 1, Units: 10, Paid: 1_000_000, Expect: "ASSET_NOT_ACTIVE"},
		{Op: opCommit, Principal: "bob", Asset: 2, Units: 91, Paid: 4_550_000, Expect: "INSUFFICIENT_UNITS"},
		{Op: opCommit, Principal: "bob", Asset: 2, Units: 20, Paid: 999_999, Expect: "INSUFFICIENT_PAYMENT"},
		{Op: opCommit, Principal: "bob", Asset: 2, Units: 20, Paid: 1_000_000, InputUnits: want(25), Expect: "INVALID_INPUT"},
		{Op: opDecrypt, Principal: "alice", Target: "units", Asset: 1, Want: want(30)},
		{Op: opDecrypt, Principal: "alice", Target: "value", Asset: 1, Want: want(3_000)},
		{Op: opDecrypt, Principal: "alice", Target: "count", Want: want(2)},
		{Op: opDecrypt, Principal: "alice", Target: "total", Want: want(3_500)},
		{Op: opDecrypt, Principal: "bob", Owner: "alice", Target: "value", Asset: 1, Expect: "PERMISSION_DENIED"},
		{Op: opDrain, Principal: "alice", Expect: "UNAUTHORIZED"},
		{Op: opDrain},
	}
}
