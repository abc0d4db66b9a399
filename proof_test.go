package allosaur

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/util/random"
	"golang.org/x/xerrors"
)

func TestProof(t *testing.T) {
	td, srv, members := newTestServer(t, 5)
	w, err := srv.Wit(td, members[2])
	require.NoError(t, err)
	pub := srv.Public()
	nonce := []byte("nonce")

	p, err := Prove(w, pub, nonce, random.New())
	require.NoError(t, err)
	require.True(t, VerifyProof(p, pub, nonce))
	require.False(t, VerifyProof(p, pub, []byte("other nonce")))

	// Proofs are randomized.
	p2, err := Prove(w, pub, nonce, random.New())
	require.NoError(t, err)
	require.False(t, p.U.Equal(p2.U))
	require.False(t, p.R.Equal(p2.R))
	require.False(t, p.Challenge.Equal(p2.Challenge))
	for i, s := range []kyber.Scalar{p.SY, p.SR, p.SRho, p.SDelta, p.STau} {
		s2 := []kyber.Scalar{p2.SY, p2.SR, p2.SRho, p2.SDelta, p2.STau}[i]
		require.False(t, s.Equal(s2), "response %d", i)
	}
	require.True(t, VerifyProof(p2, pub, nonce))

	other := &PublicData{Key: pub.Key, Value: accumulator.NewValue(td, members[1:]), Epoch: pub.Epoch}
	require.False(t, VerifyProof(p, other, nonce))
	otherKey := &PublicData{Key: accumulator.NewSecretKey(random.New()).Public(), Value: pub.Value}
	require.False(t, VerifyProof(p, otherKey, nonce))
	otherParams := &PublicData{Params: NewParams([]byte("other")), Key: pub.Key, Value: pub.Value}
	require.False(t, VerifyProof(p, otherParams, nonce))

	tampered := *p
	tampered.SY = Suite.G1().Scalar().Add(p.SY, Suite.G1().Scalar().One())
	require.False(t, VerifyProof(&tampered, pub, nonce))
	tampered = *p
	tampered.U = Suite.G1().Point().Add(p.U, accumulator.P1())
	require.False(t, VerifyProof(&tampered, pub, nonce))

	require.False(t, VerifyProof(nil, pub, nonce))
	require.False(t, VerifyProof(&Proof{}, pub, nonce))
	require.False(t, VerifyProof(p, nil, nonce))
}

// A witness for an element that is not accumulated never gives a valid
// proof.
func TestProof_InvalidWitness(t *testing.T) {
	td, srv, members := newTestServer(t, 3)
	w, err := srv.Wit(td, members[0])
	require.NoError(t, err)
	_, err = srv.Delete(td, members[0])
	require.NoError(t, err)

	pub := srv.Public()
	p, err := Prove(w, pub, []byte("n"), random.New())
	require.NoError(t, err)
	require.False(t, VerifyProof(p, pub, []byte("n")))

	forged := &Witness{Y: accumulator.RandomElement(random.New()), C: w.C, Epoch: pub.Epoch}
	p, err = Prove(forged, pub, []byte("n"), random.New())
	require.NoError(t, err)
	require.False(t, VerifyProof(p, pub, []byte("n")))

	_, err = Prove(nil, pub, []byte("n"), random.New())
	require.True(t, xerrors.Is(err, ErrNoWitness))
}

func TestVerifier(t *testing.T) {
	td, srv, members := newTestServer(t, 2)
	w, err := srv.Wit(td, members[0])
	require.NoError(t, err)
	pub := srv.Public()

	v, err := NewVerifier(16)
	require.NoError(t, err)
	p, err := Prove(w, pub, []byte("first"), random.New())
	require.NoError(t, err)
	require.True(t, v.Verify(p, pub, []byte("first")))
	require.False(t, v.Verify(p, pub, []byte("first")))

	p, err = Prove(w, pub, []byte("first"), random.New())
	require.NoError(t, err)
	require.False(t, v.Verify(p, pub, []byte("first")))

	// A failed verification does not burn the nonce.
	require.False(t, v.Verify(p, pub, []byte("second")))
	p, err = Prove(w, pub, []byte("second"), random.New())
	require.NoError(t, err)
	require.True(t, v.Verify(p, pub, []byte("second")))

	_, err = NewVerifier(0)
	require.Error(t, err)
}
