package allosaur

import (
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3"
	"golang.org/x/xerrors"
)

// UpdatePolynomial moves witnesses from epoch From to epoch To in one step.
// With dA and dD the polynomials of the additions and deletions, a witness
// C of y becomes
//
//	C' = (dA(y)*C + Omega(y)) / dD(y)
//
// where Omega = -V_From*QA + V_To*QD and QA, QD are the quotients of dA and
// dD by (x + alpha).
type UpdatePolynomial struct {
	From      uint64
	To        uint64
	Value     *accumulator.Value
	Additions []accumulator.Element
	Deletions []accumulator.Element
	Omega     accumulator.PointPolynomial
}

// newUpdatePolynomial computes Omega. powers[m] is alpha^m, or a share of
// it, for m < max(|additions|, |deletions|). With shares, the result is a
// share of Omega and is not trimmed.
func newUpdatePolynomial(powers []kyber.Scalar, from, to uint64, start, end *accumulator.Value,
	additions, deletions []accumulator.Element) *UpdatePolynomial {
	qa := accumulator.RootPolynomial(additions).Quotient(powers)
	qd := accumulator.RootPolynomial(deletions).Quotient(powers)
	return &UpdatePolynomial{
		From:      from,
		To:        to,
		Value:     end,
		Additions: additions,
		Deletions: deletions,
		Omega:     accumulator.Omega(start.Point(), end.Point(), qa, qd),
	}
}

func identityUpdate(e uint64, v *accumulator.Value) *UpdatePolynomial {
	return &UpdatePolynomial{From: e, To: e, Value: v}
}

func maxLen(a, b []accumulator.Element) int {
	if len(a) > len(b) {
		return len(a)
	}
	return len(b)
}

// Changes returns the number of additions and deletions covered.
func (u *UpdatePolynomial) Changes() int {
	return len(u.Additions) + len(u.Deletions)
}

// Apply returns the witness moved to the epoch To. It fails with
// ErrMembershipRevoked if the owner was deleted in the range.
func (u *UpdatePolynomial) Apply(w *Witness) (*Witness, error) {
	if w == nil {
		return nil, ErrNoWitness
	}
	if w.Epoch != u.From {
		return nil, xerrors.Errorf("witness at epoch %d, update from %d: %w", w.Epoch, u.From, ErrEpochMismatch)
	}
	c, err := w.C.Apply(w.Y, accumulator.RootPolynomial(u.Additions),
		accumulator.RootPolynomial(u.Deletions), u.Omega)
	if err != nil {
		return nil, err
	}
	return &Witness{Y: w.Y, C: c, Epoch: u.To}, nil
}

// Compose merges the update from a.From to a.To with the one from a.To to
// b.To. The result is the same as the one computed directly by the server
// over the whole range.
func Compose(a, b *UpdatePolynomial) (*UpdatePolynomial, error) {
	if a.To != b.From {
		return nil, xerrors.Errorf("cannot compose [%d, %d] with [%d, %d]: %w",
			a.From, a.To, b.From, b.To, ErrEpochMismatch)
	}
	da := accumulator.RootPolynomial(b.Additions)
	dd := accumulator.RootPolynomial(a.Deletions)
	omega := a.Omega.MulScalar(da).Add(b.Omega.MulScalar(dd)).Trim()
	return &UpdatePolynomial{
		From:      a.From,
		To:        b.To,
		Value:     b.Value,
		Additions: append(append([]accumulator.Element{}, a.Additions...), b.Additions...),
		Deletions: append(append([]accumulator.Element{}, a.Deletions...), b.Deletions...),
		Omega:     omega,
	}, nil
}

// Equal compares two updates, including the order of the changes.
func (u *UpdatePolynomial) Equal(o *UpdatePolynomial) bool {
	if o == nil || u.From != o.From || u.To != o.To || !u.Value.Equal(o.Value) {
		return false
	}
	if !elementsEqual(u.Additions, o.Additions) || !elementsEqual(u.Deletions, o.Deletions) {
		return false
	}
	return u.Omega.Trim().Equal(o.Omega.Trim())
}

func elementsEqual(a, b []accumulator.Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
