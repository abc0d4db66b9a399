// Package accumulator implements the primitives of a pairing-based dynamic
// accumulator over the BN256 curve: members are scalars, the accumulated
// value and the membership witnesses live in G1 and the public key in G2.
//
// The accumulated value of a set {y_1, ..., y_n} under the trapdoor alpha is
//
//	V = P1 * (alpha + y_1) * ... * (alpha + y_n)
//
// and the witness of y is C = V / (alpha + y), which anybody can check with
//
//	e(C, Q + y*P2) == e(V, P2)
//
// where Q = alpha*P2 is the public key.
package accumulator

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"golang.org/x/xerrors"
)

// Suite is the pairing suite used for every group operation of the package.
var Suite = bn256.NewSuite()

// ErrMalformedEncoding is returned when bytes do not decode to a valid
// element, point or structure.
var ErrMalformedEncoding = xerrors.New("malformed encoding")

// ErrMembershipRevoked is returned when an update removes the member owning
// the witness. The witness cannot be used anymore.
var ErrMembershipRevoked = xerrors.New("membership revoked")

// Sizes of the marshalled values.
var (
	ScalarSize = Suite.G1().ScalarLen()
	G1Size     = Suite.G1().PointLen()
	G2Size     = Suite.G2().PointLen()
)

// P1 returns the generator of G1.
func P1() kyber.Point {
	return Suite.G1().Point().Base()
}

// P2 returns the generator of G2.
func P2() kyber.Point {
	return Suite.G2().Point().Base()
}

// Pair computes e(p1, p2).
func Pair(p1, p2 kyber.Point) kyber.Point {
	return Suite.Pair(p1, p2)
}

func newScalar() kyber.Scalar {
	return Suite.G1().Scalar()
}

func newG1() kyber.Point {
	return Suite.G1().Point()
}

func unmarshalG1(buf []byte) (kyber.Point, error) {
	if len(buf) != G1Size {
		return nil, xerrors.Errorf("G1 point of %d bytes: %w", len(buf), ErrMalformedEncoding)
	}
	p := newG1()
	if err := p.UnmarshalBinary(buf); err != nil {
		return nil, xerrors.Errorf("%v: %w", err, ErrMalformedEncoding)
	}
	return p, nil
}

func unmarshalScalar(buf []byte) (kyber.Scalar, error) {
	if len(buf) != ScalarSize {
		return nil, xerrors.Errorf("scalar of %d bytes: %w", len(buf), ErrMalformedEncoding)
	}
	s := newScalar()
	if err := s.UnmarshalBinary(buf); err != nil {
		return nil, xerrors.Errorf("%v: %w", err, ErrMalformedEncoding)
	}
	return s, nil
}
