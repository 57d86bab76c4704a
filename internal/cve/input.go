// input.go - Client-side encrypted inputs with a proof of knowledge.
//
// The submitter proves knowledge of (m, r) such that C1 = r*G and C2 = m*G + r*PK.
// The Fiat-Shamir challenge binds the target contract and the submitting principal,
// so a payload cannot be replayed by another principal or against another contract.

package cve

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	fiatshamir "github.com/consensys/gnark-crypto/fiat-shamir"
	"github.com/fxamacker/cbor/v2"
)

const challengeID = "input"

type inputPayload struct {
	Ciphertext []byte `cbor:"1,keyasint"`
	A1         []byte `cbor:"2,keyasint"`
	A2         []byte `cbor:"3,keyasint"`
	Zm         []byte `cbor:"4,keyasint"`
	Zr         []byte `cbor:"5,keyasint"`
}

// EncryptInput encrypts m under pk for submission by principal to contract.
func EncryptInput(pk bls12377.G1Affine, contract, principal string, m uint64) ([]byte, error) {
	r, err := randomScalar()
	if err != nil {
		return nil, fmt.Errorf("sample randomness: %w", err)
	}
	a, err := randomScalar()
	if err != nil {
		return nil, fmt.Errorf("sample nonce: %w", err)
	}
	b, err := randomScalar()
	if err != nil {
		return nil, fmt.Errorf("sample nonce: %w", err)
	}
	ct := encryptWith(&pk, m, &r)

	a1 := mulBase(&b)
	ag := mulBase(&a)
	bpk := mul(&pk, &b)
	a2 := addPoints(&ag, &bpk)

	e, err := challenge(&pk, contract, principal, ct, &a1, &a2)
	if err != nil {
		return nil, err
	}
	var mf, zm, zr fr.Element
	mf.SetUint64(m)
	zm.Mul(&e, &mf).Add(&zm, &a)
	zr.Mul(&e, &r).Add(&zr, &b)

	ctBytes, _ := ct.MarshalBinary()
	a1b, a2b := a1.Bytes(), a2.Bytes()
	zmb, zrb := zm.Bytes(), zr.Bytes()
	return cbor.Marshal(inputPayload{
		Ciphertext: ctBytes,
		A1:         a1b[:],
		A2:         a2b[:],
		Zm:         zmb[:],
		Zr:         zrb[:],
	})
}

// verifyInput decodes payload and checks the proof against contract and principal.
func verifyInput(pk *bls12377.G1Affine, contract, principal string, payload []byte) (Ciphertext, error) {
	var in inputPayload
	if err := cbor.Unmarshal(payload, &in); err != nil {
		return Ciphertext{}, fmt.Errorf("%w: decode: %v", ErrInvalidInput, err)
	}
	var ct Ciphertext
	if err := ct.UnmarshalBinary(in.Ciphertext); err != nil {
		return Ciphertext{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var a1, a2 bls12377.G1Affine
	if _, err := a1.SetBytes(in.A1); err != nil {
		return Ciphertext{}, fmt.Errorf("%w: A1: %v", ErrInvalidInput, err)
	}
	if _, err := a2.SetBytes(in.A2); err != nil {
		return Ciphertext{}, fmt.Errorf("%w: A2: %v", ErrInvalidInput, err)
	}
	if len(in.Zm) != fr.Bytes || len(in.Zr) != fr.Bytes {
		return Ciphertext{}, fmt.Errorf("%w: malformed responses", ErrInvalidInput)
	}
	var zm, zr fr.Element
	zm.SetBytes(in.Zm)
	zr.SetBytes(in.Zr)

	e, err := challenge(pk, contract, principal, ct, &a1, &a2)
	if err != nil {
		return Ciphertext{}, err
	}

	// zr*G == A1 + e*C1
	lhs1 := mulBase(&zr)
	ec1 := mul(&ct.C1, &e)
	rhs1 := addPoints(&a1, &ec1)
	// zm*G + zr*PK == A2 + e*C2
	zmg := mulBase(&zm)
	zrpk := mul(pk, &zr)
	lhs2 := addPoints(&zmg, &zrpk)
	ec2 := mul(&ct.C2, &e)
	rhs2 := addPoints(&a2, &ec2)

	if !lhs1.Equal(&rhs1) || !lhs2.Equal(&rhs2) {
		return Ciphertext{}, fmt.Errorf("%w: proof does not verify", ErrInvalidInput)
	}
	return ct, nil
}

func challenge(pk *bls12377.G1Affine, contract, principal string, ct Ciphertext, a1, a2 *bls12377.G1Affine) (fr.Element, error) {
	var e fr.Element
	t := fiatshamir.NewTranscript(sha256.New(), challengeID)
	g := generator()
	bindings := [][]byte{
		g.Marshal(),
		pk.Marshal(),
		ct.C1.Marshal(),
		ct.C2.Marshal(),
		a1.Marshal(),
		a2.Marshal(),
		lengthPrefixed(contract),
		lengthPrefixed(principal),
	}
	for _, b := range bindings {
		if err := t.Bind(challengeID, b); err != nil {
			return e, fmt.Errorf("bind transcript: %w", err)
		}
	}
	raw, err := t.ComputeChallenge(challengeID)
	if err != nil {
		return e, fmt.Errorf("compute challenge: %w", err)
	}
	e.SetBytes(raw)
	return e, nil
}

func lengthPrefixed(s string) []byte {
	out := make([]byte, 4, 4+len(s))
	binary.BigEndian.PutUint32(out, uint32(len(s)))
	return append(out, s...)
}

// FromInput verifies a client payload submitted by principal and stores its
// ciphertext as a new handle, transiently usable by this contract.
func (c *Contract) FromInput(ctx context.Context, principal string, payload []byte) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	ct, err := verifyInput(&c.engine.key.pk, c.id, principal, payload)
	if err != nil {
		return Handle{}, err
	}
	h := c.engine.put(ct)
	c.markTransient(h)
	return h, nil
}

// FromInputEquals is FromInput for a value the contract already knows in
// plaintext: the ciphertext must also encrypt m. Only the match is revealed.
func (c *Contract) FromInputEquals(ctx context.Context, principal string, payload []byte, m uint64) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	ct, err := verifyInput(&c.engine.key.pk, c.id, principal, payload)
	if err != nil {
		return Handle{}, err
	}
	var mf fr.Element
	mf.SetUint64(m)
	want := mulBase(&mf)
	if got := c.engine.key.decryptPoint(ct); !got.Equal(&want) {
		return Handle{}, fmt.Errorf("%w: ciphertext does not encrypt the declared value", ErrInvalidInput)
	}
	h := c.engine.put(ct)
	c.markTransient(h)
	return h, nil
}
