package accumulator

import (
	"crypto/cipher"
	"encoding/hex"

	"go.dedis.ch/kyber/v3"
)

const elementDomain = "allosaur-element"

// Element is a member identifier of the accumulator. It is a scalar that
// must stay secret to its owner once a witness has been issued for it.
type Element struct {
	s kyber.Scalar
}

// NewElement wraps a scalar as an element.
func NewElement(s kyber.Scalar) Element {
	return Element{s: s.Clone()}
}

// HashElement maps arbitrary bytes to an element.
func HashElement(data []byte) Element {
	h := Suite.Hash()
	h.Write([]byte(elementDomain))
	h.Write(data)
	return Element{s: newScalar().SetBytes(h.Sum(nil))}
}

// RandomElement draws a uniformly random element.
func RandomElement(rand cipher.Stream) Element {
	return Element{s: newScalar().Pick(rand)}
}

// ElementFromBytes decodes an element written by MarshalBinary.
func ElementFromBytes(buf []byte) (Element, error) {
	s, err := unmarshalScalar(buf)
	if err != nil {
		return Element{}, err
	}
	return Element{s: s}, nil
}

// Scalar returns a copy of the underlying scalar.
func (e Element) Scalar() kyber.Scalar {
	if e.s == nil {
		return newScalar().Zero()
	}
	return e.s.Clone()
}

// IsNil is true for the zero value of Element.
func (e Element) IsNil() bool {
	return e.s == nil
}

// Equal compares two elements.
func (e Element) Equal(o Element) bool {
	if e.s == nil || o.s == nil {
		return e.s == nil && o.s == nil
	}
	return e.s.Equal(o.s)
}

// MarshalBinary returns the 32 bytes of the element.
func (e Element) MarshalBinary() ([]byte, error) {
	return e.Scalar().MarshalBinary()
}

// Key is a string usable as a map key.
func (e Element) Key() string {
	buf, _ := e.MarshalBinary()
	return string(buf)
}

func (e Element) String() string {
	buf, _ := e.MarshalBinary()
	return hex.EncodeToString(buf[:4])
}
