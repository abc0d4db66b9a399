package accumulator

import (
	"go.dedis.ch/kyber/v3"
)

// Value is the accumulated value V in G1.
type Value struct {
	v kyber.Point
}

// NewValue computes V = P1 * prod(alpha + y) over the members. An empty set
// gives P1.
func NewValue(sk *SecretKey, members []Element) *Value {
	return &Value{v: newG1().Mul(sk.Product(members), nil)}
}

// ValueFromPoint wraps a G1 point.
func ValueFromPoint(p kyber.Point) *Value {
	return &Value{v: p.Clone()}
}

// ValueFromBytes decodes a value written by MarshalBinary.
func ValueFromBytes(buf []byte) (*Value, error) {
	p, err := unmarshalG1(buf)
	if err != nil {
		return nil, err
	}
	return &Value{v: p}, nil
}

// Point returns a copy of V.
func (v *Value) Point() kyber.Point {
	return v.v.Clone()
}

// Equal compares two values.
func (v *Value) Equal(o *Value) bool {
	return o != nil && v.v.Equal(o.v)
}

// MarshalBinary returns the 64 bytes of V.
func (v *Value) MarshalBinary() ([]byte, error) {
	return v.v.MarshalBinary()
}

func (v *Value) String() string {
	return v.v.String()
}
