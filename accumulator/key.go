package accumulator

import (
	"crypto/cipher"

	"go.dedis.ch/kyber/v3"
	"golang.org/x/xerrors"
)

// SecretKey is the trapdoor alpha of the accumulator. Whoever holds it can
// add and delete members and compute witnesses.
type SecretKey struct {
	alpha kyber.Scalar
}

// NewSecretKey draws a fresh trapdoor.
func NewSecretKey(rand cipher.Stream) *SecretKey {
	return &SecretKey{alpha: newScalar().Pick(rand)}
}

// SecretKeyFromScalar creates a trapdoor from a known scalar.
func SecretKeyFromScalar(s kyber.Scalar) *SecretKey {
	return &SecretKey{alpha: s.Clone()}
}

// SecretKeyFromBytes decodes a trapdoor written by MarshalBinary.
func SecretKeyFromBytes(buf []byte) (*SecretKey, error) {
	s, err := unmarshalScalar(buf)
	if err != nil {
		return nil, err
	}
	return &SecretKey{alpha: s}, nil
}

// MarshalBinary returns the 32 bytes of the trapdoor.
func (sk *SecretKey) MarshalBinary() ([]byte, error) {
	return sk.alpha.MarshalBinary()
}

// Scalar returns a copy of alpha.
func (sk *SecretKey) Scalar() kyber.Scalar {
	return sk.alpha.Clone()
}

// Public returns Q = alpha*P2.
func (sk *SecretKey) Public() *PublicKey {
	return &PublicKey{q: Suite.G2().Point().Mul(sk.alpha, nil)}
}

// Powers returns 1, alpha, alpha^2, ..., alpha^(n-1).
func (sk *SecretKey) Powers(n int) []kyber.Scalar {
	return ScalarPowers(sk.alpha, n)
}

// Product returns (alpha + y_1) * ... * (alpha + y_n). The empty product
// is one.
func (sk *SecretKey) Product(members []Element) kyber.Scalar {
	acc := newScalar().One()
	for _, m := range members {
		f := newScalar().Add(sk.alpha, m.s)
		acc = newScalar().Mul(acc, f)
	}
	return acc
}

// Zeroize overwrites alpha. The key is unusable afterwards.
func (sk *SecretKey) Zeroize() {
	sk.alpha.Zero()
}

// PublicKey is Q = alpha*P2.
type PublicKey struct {
	q kyber.Point
}

// NewPublicKey wraps a G2 point.
func NewPublicKey(q kyber.Point) *PublicKey {
	return &PublicKey{q: q.Clone()}
}

// PublicKeyFromBytes decodes a public key written by MarshalBinary.
func PublicKeyFromBytes(buf []byte) (*PublicKey, error) {
	if len(buf) != G2Size {
		return nil, xerrors.Errorf("G2 point of %d bytes: %w", len(buf), ErrMalformedEncoding)
	}
	q := Suite.G2().Point()
	if err := q.UnmarshalBinary(buf); err != nil {
		return nil, xerrors.Errorf("%v: %w", err, ErrMalformedEncoding)
	}
	return &PublicKey{q: q}, nil
}

// Point returns a copy of Q.
func (pk *PublicKey) Point() kyber.Point {
	return pk.q.Clone()
}

// Equal compares two public keys.
func (pk *PublicKey) Equal(o *PublicKey) bool {
	return o != nil && pk.q.Equal(o.q)
}

// MarshalBinary returns the 128 bytes of Q.
func (pk *PublicKey) MarshalBinary() ([]byte, error) {
	return pk.q.MarshalBinary()
}

// ScalarPowers returns 1, x, x^2, ..., x^(n-1).
func ScalarPowers(x kyber.Scalar, n int) []kyber.Scalar {
	if n <= 0 {
		return nil
	}
	res := make([]kyber.Scalar, n)
	res[0] = newScalar().One()
	for i := 1; i < n; i++ {
		res[i] = newScalar().Mul(res[i-1], x)
	}
	return res
}
