package allosaur

import (
	"context"
	"crypto/cipher"

	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// WitnessIssuer hands out witnesses together with the public data of their
// epoch.
type WitnessIssuer interface {
	Witness(ctx context.Context, y accumulator.Element) (*Witness, *PublicData, error)
}

// UpdateProvider returns the update of a range of epochs.
type UpdateProvider interface {
	Update(ctx context.Context, from, to uint64) (*UpdatePolynomial, error)
}

// User is a member keeping its witness current and proving membership.
type User struct {
	id      accumulator.Element
	key     *accumulator.PublicKey
	params  *Params
	witness *Witness
	value   *accumulator.Value
}

// NewUser returns a user without witness.
func NewUser(pk *accumulator.PublicKey, id accumulator.Element) *User {
	return &User{id: id, key: pk, params: DefaultParams()}
}

// ID returns the element of the user.
func (u *User) ID() accumulator.Element {
	return u.id
}

// Witness returns the current witness, nil if there is none.
func (u *User) Witness() *Witness {
	return u.witness
}

// Epoch returns the epoch of the witness.
func (u *User) Epoch() uint64 {
	if u.witness == nil {
		return 0
	}
	return u.witness.Epoch
}

// Public returns the public data the witness is valid for.
func (u *User) Public() *PublicData {
	return &PublicData{Params: u.params, Key: u.key, Value: u.value, Epoch: u.Epoch()}
}

// Check verifies the witness against the value it was last moved to.
func (u *User) Check() bool {
	return u.witness != nil && u.witness.Verify(u.key, u.value)
}

// RequestWitness asks the issuer for a witness and checks it.
func (u *User) RequestWitness(ctx context.Context, issuer WitnessIssuer) error {
	w, pub, err := issuer.Witness(ctx, u.id)
	if err != nil {
		return err
	}
	if !w.Y.Equal(u.id) || !pub.Key.Equal(u.key) || !w.VerifyPublic(pub) {
		return xerrors.Errorf("witness of epoch %d: %w", w.Epoch, ErrInvalidWitness)
	}
	u.witness = w
	u.value = pub.Value
	log.Lvlf3("user %s: witness for epoch %d", u.id, w.Epoch)
	return nil
}

// Update moves the witness to epoch to with one update from the provider.
// A revoked user loses its witness.
func (u *User) Update(ctx context.Context, provider UpdateProvider, to uint64) error {
	if u.witness == nil {
		return ErrNoWitness
	}
	if to == u.witness.Epoch {
		return nil
	}
	up, err := provider.Update(ctx, u.witness.Epoch, to)
	if err != nil {
		return err
	}
	if up.From != u.witness.Epoch || up.To != to {
		return xerrors.Errorf("asked for [%d, %d], got [%d, %d]: %w",
			u.witness.Epoch, to, up.From, up.To, ErrEpochMismatch)
	}
	w, err := up.Apply(u.witness)
	if err != nil {
		if xerrors.Is(err, ErrMembershipRevoked) {
			u.revoke()
		}
		return err
	}
	return u.accept(w, up.Value)
}

func (u *User) accept(w *Witness, v *accumulator.Value) error {
	if !w.Verify(u.key, v) {
		return xerrors.Errorf("witness for epoch %d: %w", w.Epoch, ErrInvalidUpdate)
	}
	log.Lvlf3("user %s: witness moved from epoch %d to %d", u.id, u.witness.Epoch, w.Epoch)
	u.witness = w
	u.value = v
	return nil
}

func (u *User) revoke() {
	log.Lvlf2("user %s: revoked at epoch %d", u.id, u.witness.Epoch)
	u.witness = nil
	u.value = nil
}

// Prove creates a membership proof for the current witness.
func (u *User) Prove(nonce []byte, rand cipher.Stream) (*Proof, error) {
	if u.witness == nil {
		return nil, ErrNoWitness
	}
	return Prove(u.witness, u.Public(), nonce, rand)
}
