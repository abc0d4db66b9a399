package accumulator

import (
	"go.dedis.ch/kyber/v3"
)

// MembershipWitness is the point C = V / (alpha + y) proving that y is
// accumulated in V.
type MembershipWitness struct {
	c kyber.Point
}

// NewMembershipWitness computes the witness of y directly from the other
// members: C = P1 * prod(alpha + y_i) for y_i != y.
func NewMembershipWitness(sk *SecretKey, y Element, members []Element) *MembershipWitness {
	others := make([]Element, 0, len(members))
	for _, m := range members {
		if !m.Equal(y) {
			others = append(others, m)
		}
	}
	return &MembershipWitness{c: newG1().Mul(sk.Product(others), nil)}
}

// WitnessFromPoint wraps a G1 point.
func WitnessFromPoint(c kyber.Point) *MembershipWitness {
	return &MembershipWitness{c: c.Clone()}
}

// WitnessFromBytes decodes a witness written by MarshalBinary.
func WitnessFromBytes(buf []byte) (*MembershipWitness, error) {
	c, err := unmarshalG1(buf)
	if err != nil {
		return nil, err
	}
	return &MembershipWitness{c: c}, nil
}

// Verify checks e(C, Q + y*P2) == e(V, P2).
func (w *MembershipWitness) Verify(y Element, pk *PublicKey, v *Value) bool {
	if w == nil || pk == nil || v == nil || y.IsNil() {
		return false
	}
	g2 := Suite.G2()
	qy := g2.Point().Add(pk.q, g2.Point().Mul(y.s, nil))
	return Pair(w.c, qy).Equal(Pair(v.v, P2()))
}

// Apply returns C' = (dA(y)*C + omega(y)) / dD(y) where dA and dD are the
// polynomials of the additions and deletions.
func (w *MembershipWitness) Apply(y Element, additions, deletions Polynomial, omega PointPolynomial) (*MembershipWitness, error) {
	return w.ApplyEvaluated(additions.Eval(y.s), deletions.Eval(y.s), omega.Eval(y.s))
}

// ApplyEvaluated returns C' = (a*C + o) / d for already evaluated
// polynomials. A zero d means that y was deleted.
func (w *MembershipWitness) ApplyEvaluated(a, d kyber.Scalar, o kyber.Point) (*MembershipWitness, error) {
	if d.Equal(newScalar().Zero()) {
		return nil, ErrMembershipRevoked
	}
	c := newG1().Add(newG1().Mul(a, w.c), o)
	c = newG1().Mul(newScalar().Inv(d), c)
	return &MembershipWitness{c: c}, nil
}

// Point returns a copy of C.
func (w *MembershipWitness) Point() kyber.Point {
	return w.c.Clone()
}

// Equal compares two witnesses.
func (w *MembershipWitness) Equal(o *MembershipWitness) bool {
	return o != nil && w.c.Equal(o.c)
}

// MarshalBinary returns the 64 bytes of C.
func (w *MembershipWitness) MarshalBinary() ([]byte, error) {
	return w.c.MarshalBinary()
}
