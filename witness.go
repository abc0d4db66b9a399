package allosaur

import (
	"go.dedis.ch/allosaur/accumulator"
)

// Witness is what a member keeps: its secret element, the membership
// witness and the epoch of the value the witness is valid for. A witness of
// an older epoch is stale and must be updated before use.
type Witness struct {
	Y     accumulator.Element
	C     *accumulator.MembershipWitness
	Epoch uint64
}

// Verify checks the witness against a public key and a value.
func (w *Witness) Verify(pk *accumulator.PublicKey, v *accumulator.Value) bool {
	if w == nil {
		return false
	}
	return w.C.Verify(w.Y, pk, v)
}

// VerifyPublic checks the witness against the public data, which must be
// of the same epoch.
func (w *Witness) VerifyPublic(pub *PublicData) bool {
	return w != nil && w.Epoch == pub.Epoch && w.Verify(pub.Key, pub.Value)
}

// Update is a shortcut for u.Apply(w).
func (w *Witness) Update(u *UpdatePolynomial) (*Witness, error) {
	return u.Apply(w)
}
