// elgamal.go - Additively homomorphic ElGamal over the BLS12-377 G1 group.
//
// A plaintext m is encoded as m*G, so ciphertexts add and subtract component-wise.
// Decryption yields m*G back; the discrete log is solved in dlog.go.

package cve

import (
	"fmt"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
)

// Ciphertext is the pair (C1, C2) = (r*G, m*G + r*PK).
type Ciphertext struct {
	C1 bls12377.G1Affine
	C2 bls12377.G1Affine
}

// keyPair is the engine's encryption key (sk scalar, pk = sk*G).
type keyPair struct {
	sk fr.Element
	pk bls12377.G1Affine
}

// generator returns the affine G1 generator.
func generator() bls12377.G1Affine {
	_, _, g1, _ := bls12377.Generators()
	return g1
}

// generateKeyPair samples a fresh BLS12-377 key pair.
func generateKeyPair() (*keyPair, error) {
	sk, err := randomScalar()
	if err != nil {
		return nil, fmt.Errorf("sample secret key: %w", err)
	}
	return &keyPair{sk: sk, pk: mulBase(&sk)}, nil
}

// randomScalar samples a non-zero scalar using crypto/rand.
func randomScalar() (fr.Element, error) {
	var r fr.Element
	for {
		if _, err := r.SetRandom(); err != nil {
			return r, err
		}
		if !r.IsZero() {
			return r, nil
		}
	}
}

func mulBase(s *fr.Element) bls12377.G1Affine {
	g := generator()
	return mul(&g, s)
}

func mul(p *bls12377.G1Affine, s *fr.Element) bls12377.G1Affine {
	var out bls12377.G1Affine
	out.ScalarMultiplication(p, s.BigInt(new(big.Int)))
	return out
}

func addPoints(a, b *bls12377.G1Affine) bls12377.G1Affine {
	var ja, jb bls12377.G1Jac
	ja.FromAffine(a)
	jb.FromAffine(b)
	ja.AddAssign(&jb)
	var out bls12377.G1Affine
	out.FromJacobian(&ja)
	return out
}

func subPoints(a, b *bls12377.G1Affine) bls12377.G1Affine {
	var ja, jb bls12377.G1Jac
	ja.FromAffine(a)
	jb.FromAffine(b)
	ja.SubAssign(&jb)
	var out bls12377.G1Affine
	out.FromJacobian(&ja)
	return out
}

// encryptWith encrypts m under pk using randomness r.
func encryptWith(pk *bls12377.G1Affine, m uint64, r *fr.Element) Ciphertext {
	var mf fr.Element
	mf.SetUint64(m)
	mg := mulBase(&mf)
	rpk := mul(pk, r)
	return Ciphertext{
		C1: mulBase(r),
		C2: addPoints(&mg, &rpk),
	}
}

func (c Ciphertext) add(o Ciphertext) Ciphertext {
	return Ciphertext{C1: addPoints(&c.C1, &o.C1), C2: addPoints(&c.C2, &o.C2)}
}

func (c Ciphertext) sub(o Ciphertext) Ciphertext {
	return Ciphertext{C1: subPoints(&c.C1, &o.C1), C2: subPoints(&c.C2, &o.C2)}
}

// decryptPoint strips the mask and returns m*G.
func (k *keyPair) decryptPoint(c Ciphertext) bls12377.G1Affine {
	mask := mul(&c.C1, &k.sk)
	return subPoints(&c.C2, &mask)
}

// MarshalBinary encodes both points in compressed form.
func (c Ciphertext) MarshalBinary() ([]byte, error) {
	b1 := c.C1.Bytes()
	b2 := c.C2.Bytes()
	out := make([]byte, 0, len(b1)+len(b2))
	out = append(out, b1[:]...)
	return append(out, b2[:]...), nil
}

// UnmarshalBinary decodes the output of MarshalBinary. Points are subgroup-checked.
func (c *Ciphertext) UnmarshalBinary(data []byte) error {
	const n = bls12377.SizeOfG1AffineCompressed
	if len(data) != 2*n {
		return fmt.Errorf("ciphertext: want %d bytes, got %d", 2*n, len(data))
	}
	if _, err := c.C1.SetBytes(data[:n]); err != nil {
		return fmt.Errorf("ciphertext C1: %w", err)
	}
	if _, err := c.C2.SetBytes(data[n:]); err != nil {
		return fmt.Errorf("ciphertext C2: %w", err)
	}
	return nil
}
