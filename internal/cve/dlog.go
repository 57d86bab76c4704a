package cve

import (
	"math"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
)

// dlogTable solves m from m*G for m < bound with baby-step/giant-step.
// The baby table holds ceil(sqrt(bound)) points.
type dlogTable struct {
	bound uint64
	step  uint64
	baby  map[[bls12377.SizeOfG1AffineCompressed]byte]uint64
	giant bls12377.G1Jac // -(step*G)
}

func newDlogTable(bound uint64) *dlogTable {
	step := uint64(math.Ceil(math.Sqrt(float64(bound))))
	if step == 0 {
		step = 1
	}
	g := generator()
	var gj, acc bls12377.G1Jac
	gj.FromAffine(&g)
	acc.FromAffine(&bls12377.G1Affine{})

	baby := make(map[[bls12377.SizeOfG1AffineCompressed]byte]uint64, step)
	var pt bls12377.G1Affine
	for j := uint64(0); j < step; j++ {
		pt.FromJacobian(&acc)
		baby[pt.Bytes()] = j
		acc.AddAssign(&gj)
	}

	var giant bls12377.G1Jac
	giant.ScalarMultiplication(&gj, new(big.Int).SetUint64(step))
	giant.Neg(&giant)

	return &dlogTable{bound: bound, step: step, baby: baby, giant: giant}
}

func (t *dlogTable) solve(p bls12377.G1Affine) (uint64, error) {
	var gamma bls12377.G1Jac
	gamma.FromAffine(&p)
	var pt bls12377.G1Affine
	for i := uint64(0); i <= t.step; i++ {
		pt.FromJacobian(&gamma)
		if j, ok := t.baby[pt.Bytes()]; ok {
			if m := i*t.step + j; m < t.bound {
				return m, nil
			}
			return 0, ErrPlaintextOutOfRange
		}
		gamma.AddAssign(&t.giant)
	}
	return 0, ErrPlaintextOutOfRange
}
