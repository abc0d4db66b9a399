package allosaur

import (
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3"
)

// Suite is the pairing suite of the accumulator.
var Suite = accumulator.Suite

const paramsDomain = "allosaur-params"

// Params are the public generators used by the membership proofs. Y and Z
// are hashed to G1 so that nobody knows their discrete logarithms.
type Params struct {
	Y kyber.Point
	Z kyber.Point
}

var defaultParams = NewParams([]byte(paramsDomain))

// DefaultParams returns the generators every party uses unless told
// otherwise.
func DefaultParams() *Params {
	return defaultParams
}

// NewParams derives the generators from a seed.
func NewParams(seed []byte) *Params {
	hash := func(tag string) kyber.Point {
		msg := append(append([]byte{}, seed...), tag...)
		return Suite.G1().Point().(interface {
			Hash([]byte) kyber.Point
		}).Hash(msg)
	}
	return &Params{Y: hash("/Y"), Z: hash("/Z")}
}

// PublicData is what a verifier needs to know about the accumulator.
type PublicData struct {
	Params *Params
	Key    *accumulator.PublicKey
	Value  *accumulator.Value
	Epoch  uint64
}

func (p *PublicData) params() *Params {
	if p.Params == nil {
		return defaultParams
	}
	return p.Params
}
