package allosaur

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3/util/random"
	"golang.org/x/xerrors"
)

func TestUser(t *testing.T) {
	td, srv, members := newTestServer(t, 3)
	auth, err := NewAuthority(srv, td)
	require.NoError(t, err)
	_, err = NewAuthority(srv, accumulator.NewSecretKey(random.New()))
	require.True(t, xerrors.Is(err, ErrWrongTrapdoor))

	ctx := context.Background()
	user := NewUser(srv.Public().Key, members[0])
	_, err = user.Prove([]byte("n"), random.New())
	require.True(t, xerrors.Is(err, ErrNoWitness))
	require.True(t, xerrors.Is(user.Update(ctx, auth, 1), ErrNoWitness))

	stranger := NewUser(srv.Public().Key, accumulator.RandomElement(random.New()))
	require.True(t, xerrors.Is(stranger.RequestWitness(ctx, auth), ErrUnknownMember))

	require.False(t, user.Check())
	require.NoError(t, user.RequestWitness(ctx, auth))
	require.True(t, user.Check())
	require.Equal(t, uint64(1), user.Epoch())
	require.True(t, user.ID().Equal(members[0]))

	history(t, td, srv, members)
	require.NoError(t, user.Update(ctx, auth, srv.Epoch()))
	require.True(t, user.Witness().VerifyPublic(srv.Public()))
	require.NoError(t, user.Update(ctx, auth, srv.Epoch()))

	nonce := []byte("verifier challenge")
	p, err := user.Prove(nonce, random.New())
	require.NoError(t, err)
	require.True(t, VerifyProof(p, srv.Public(), nonce))

	_, err = srv.Delete(td, members[0])
	require.NoError(t, err)
	err = user.Update(ctx, auth, srv.Epoch())
	require.True(t, xerrors.Is(err, ErrMembershipRevoked))
	require.Nil(t, user.Witness())
	require.False(t, user.Check())
}

type lyingProvider struct {
	UpdateProvider
}

func (l lyingProvider) Update(ctx context.Context, from, to uint64) (*UpdatePolynomial, error) {
	u, err := l.UpdateProvider.Update(ctx, from, to)
	if err != nil {
		return nil, err
	}
	u.Omega = append(accumulator.PointPolynomial{accumulator.P1()}, u.Omega...)
	return u, nil
}

func TestUser_BadUpdate(t *testing.T) {
	td, srv, members := newTestServer(t, 3)
	auth, err := NewAuthority(srv, td)
	require.NoError(t, err)
	ctx := context.Background()
	user := NewUser(srv.Public().Key, members[0])
	require.NoError(t, user.RequestWitness(ctx, auth))
	_, err = srv.Add(td, accumulator.RandomElement(random.New()))
	require.NoError(t, err)

	err = user.Update(ctx, lyingProvider{auth}, srv.Epoch())
	require.True(t, xerrors.Is(err, ErrInvalidUpdate))
	require.Equal(t, uint64(1), user.Epoch())

	other := NewUser(accumulator.NewSecretKey(random.New()).Public(), members[1])
	require.True(t, xerrors.Is(other.RequestWitness(ctx, auth), ErrInvalidWitness))
}

// A user served by a coordinator of threshold servers ends up with the
// same witness as one served by the trapdoor holder.
func TestUser_Threshold(t *testing.T) {
	td, srv, members := newTestServer(t, 4)
	_, servers := newThresholdServers(t, td, 2, 3, 4)
	auth, err := NewAuthority(srv, td)
	require.NoError(t, err)
	ctx := context.Background()

	u1 := NewUser(srv.Public().Key, members[0])
	require.NoError(t, u1.RequestWitness(ctx, auth))
	u2 := NewUser(srv.Public().Key, members[0])
	require.NoError(t, u2.RequestWitness(ctx, auth))

	history(t, td, srv, members)
	syncAll(t, srv, servers)
	coord := NewCoordinator(2, []ContributionSource{servers[0], servers[1], servers[2]})
	require.NoError(t, u1.Update(ctx, coord, srv.Epoch()))
	require.NoError(t, u2.Update(ctx, auth, srv.Epoch()))
	require.True(t, u1.Witness().C.Equal(u2.Witness().C))
}
