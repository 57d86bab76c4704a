package cve

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Handle is an opaque reference to a stored ciphertext. The zero Handle is null.
type Handle [32]byte

// String returns the hex form of the handle.
func (h Handle) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the null handle.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// ParseHandle parses the hex form produced by Handle.String.
func ParseHandle(s string) (Handle, error) {
	var h Handle
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse handle: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("parse handle: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// deriveHandle binds a sequence number to the ciphertext bytes so that two
// identical ciphertexts still receive distinct handles.
func deriveHandle(seq uint64, ct Ciphertext) Handle {
	buf, _ := ct.MarshalBinary()
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], seq)
	return Handle(blake2b.Sum256(append(prefix[:], buf...)))
}
