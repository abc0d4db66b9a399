package allosaur

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/util/random"
	"golang.org/x/xerrors"
)

func newThresholdServers(t *testing.T, td *accumulator.SecretKey, tt, n, maxBatch int) (*Dealing, []*ThresholdServer) {
	dealing, err := DealTrapdoor(td, tt, n, maxBatch, random.New())
	require.NoError(t, err)
	servers := make([]*ThresholdServer, n)
	for i, s := range dealing.Shares {
		replica := NewAccumulator(td.Public(), 0, accumulator.ValueFromPoint(accumulator.P1()))
		servers[i] = NewThresholdServer(s, replica)
	}
	return dealing, servers
}

func syncAll(t *testing.T, srv *Server, servers []*ThresholdServer) {
	for _, ts := range servers {
		records, err := srv.Accumulator().Records(ts.Accumulator().Epoch(), srv.Epoch())
		require.NoError(t, err)
		require.NoError(t, ts.Sync(records...))
	}
}

func contributions(t *testing.T, servers []*ThresholdServer, from, to uint64) []*Contribution {
	var res []*Contribution
	for _, ts := range servers {
		c, err := ts.Contribute(context.Background(), from, to)
		require.NoError(t, err)
		res = append(res, c)
	}
	return res
}

func TestDealTrapdoor(t *testing.T) {
	td := accumulator.NewSecretKey(random.New())
	dealing, err := DealTrapdoor(td, 3, 5, 4, random.New())
	require.NoError(t, err)
	require.Len(t, dealing.Shares, 5)
	require.True(t, dealing.Commits.Commit().Equal(td.Public().Point()))

	var alphas []*share.PriShare
	for _, s := range dealing.Shares {
		require.Len(t, s.Powers, 3)
		require.Equal(t, 4, s.MaxBatch())
		require.True(t, s.Check(dealing.Commits))
		alphas = append(alphas, &share.PriShare{I: s.Index, V: s.Powers[0]})
	}
	wrong := &TrapdoorShare{Index: 0, Powers: dealing.Shares[1].Powers}
	require.False(t, wrong.Check(dealing.Commits))

	alpha, err := share.RecoverSecret(Suite.G2(), alphas[2:], 3, 5)
	require.NoError(t, err)
	require.True(t, alpha.Equal(td.Scalar()))

	// Two shares are not enough, and interpolating them as if they were
	// does not give the trapdoor.
	_, err = share.RecoverSecret(Suite.G2(), alphas[:2], 3, 5)
	require.Error(t, err)
	guess, err := share.RecoverSecret(Suite.G2(), alphas[:2], 2, 5)
	require.NoError(t, err)
	require.False(t, guess.Equal(td.Scalar()))

	_, err = DealTrapdoor(td, 4, 3, 4, random.New())
	require.Error(t, err)
	_, err = DealTrapdoor(td, 0, 3, 4, random.New())
	require.Error(t, err)
	_, err = DealTrapdoor(td, 2, 3, 0, random.New())
	require.Error(t, err)
}

// Combining any t contributions gives exactly the update of the server
// holding the trapdoor.
func TestCombine_EqualsSingleServer(t *testing.T) {
	for _, c := range []struct{ t, n, batch int }{{1, 1, 4}, {2, 3, 4}, {3, 5, 4}, {4, 4, 6}} {
		td, srv, members := newTestServer(t, 4)
		_, servers := newThresholdServers(t, td, c.t, c.n, c.batch)
		history(t, td, srv, members)
		syncAll(t, srv, servers)

		to := srv.Epoch()
		for _, from := range []uint64{0, 1, 3, to} {
			single, err := srv.Update(td, from, to)
			require.NoError(t, err)
			contribs := contributions(t, servers, from, to)
			combined, err := Combine(c.t, c.n, from, to, contribs)
			require.NoError(t, err)
			require.True(t, single.Equal(combined), "t=%d n=%d from=%d", c.t, c.n, from)

			// Any other subset works too.
			combined, err = Combine(c.t, c.n, from, to, contribs[c.n-c.t:])
			require.NoError(t, err)
			require.True(t, single.Equal(combined))
		}

		w, err := srv.Wit(td, members[0])
		require.NoError(t, err)
		_, err = srv.Add(td, accumulator.RandomElement(random.New()))
		require.NoError(t, err)
		syncAll(t, srv, servers)
		u, err := Combine(c.t, c.n, w.Epoch, srv.Epoch(), contributions(t, servers, w.Epoch, srv.Epoch()))
		require.NoError(t, err)
		w, err = u.Apply(w)
		require.NoError(t, err)
		require.True(t, w.VerifyPublic(srv.Public()))
	}
}

func TestCombine_Insufficient(t *testing.T) {
	td, srv, members := newTestServer(t, 4)
	_, servers := newThresholdServers(t, td, 3, 5, 4)
	history(t, td, srv, members)
	syncAll(t, srv, servers)
	to := srv.Epoch()

	contribs := contributions(t, servers, 1, to)
	_, err := Combine(3, 5, 1, to, contribs[:2])
	require.True(t, xerrors.Is(err, ErrInsufficientShares))
	_, err = Combine(3, 5, 1, to, nil)
	require.True(t, xerrors.Is(err, ErrInsufficientShares))
	// The same contribution twice counts once.
	_, err = Combine(3, 5, 1, to, []*Contribution{contribs[0], contribs[1], contribs[1]})
	require.True(t, xerrors.Is(err, ErrInsufficientShares))
}

func TestCombine_Stale(t *testing.T) {
	td, srv, members := newTestServer(t, 4)
	_, servers := newThresholdServers(t, td, 2, 4, 4)
	history(t, td, srv, members)
	syncAll(t, srv, servers)
	to := srv.Epoch()

	contribs := contributions(t, servers, 1, to)
	old, err := servers[3].Contribute(context.Background(), 1, to-1)
	require.NoError(t, err)
	contribs[3] = old
	single, err := srv.Update(td, 1, to)
	require.NoError(t, err)
	u, err := Combine(2, 4, 1, to, contribs)
	require.NoError(t, err)
	require.True(t, single.Equal(u))

	// A replica that saw other records disagrees with the majority.
	forked := *contribs[2]
	forked.Value = accumulator.ValueFromPoint(accumulator.P1())
	u, err = Combine(2, 4, 1, to, []*Contribution{contribs[0], contribs[1], &forked})
	require.NoError(t, err)
	require.True(t, single.Equal(u))
	_, err = Combine(2, 4, 1, to, []*Contribution{contribs[0], &forked, old})
	require.True(t, xerrors.Is(err, ErrInsufficientShares))
}

func TestCombine_Inconsistent(t *testing.T) {
	td, srv, members := newTestServer(t, 4)
	_, servers := newThresholdServers(t, td, 2, 3, 4)
	history(t, td, srv, members)
	syncAll(t, srv, servers)
	to := srv.Epoch()

	contribs := contributions(t, servers, 1, to)
	bad := *contribs[0]
	chunk := *bad.Chunks[0]
	chunk.Omega = append(accumulator.PointPolynomial{}, chunk.Omega...)
	chunk.Omega[0] = Suite.G1().Point().Add(chunk.Omega[0], accumulator.P1())
	bad.Chunks = append([]*ChunkShare{&chunk}, bad.Chunks[1:]...)

	_, err := Combine(2, 3, 1, to, []*Contribution{&bad, contribs[1], contribs[2]})
	require.True(t, xerrors.Is(err, ErrInconsistentShares))
}

func TestThresholdServer_BatchTooLarge(t *testing.T) {
	td, srv, _ := newTestServer(t, 4)
	_, servers := newThresholdServers(t, td, 1, 2, 3)
	syncAll(t, srv, servers)
	_, err := servers[0].Contribute(context.Background(), 0, 1)
	require.True(t, xerrors.Is(err, ErrBatchTooLarge))

	_, err = servers[0].Contribute(context.Background(), 0, 5)
	require.True(t, xerrors.Is(err, ErrEpochUnavailable))
}

type slowSource struct{}

func (slowSource) Contribute(ctx context.Context, from, to uint64) (*Contribution, error) {
	select {
	case <-time.After(time.Hour):
		return nil, xerrors.New("too late")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type failingSource struct{}

func (failingSource) Contribute(ctx context.Context, from, to uint64) (*Contribution, error) {
	return nil, xerrors.New("unreachable")
}

type staleSource struct {
	*ThresholdServer
}

func (s staleSource) Contribute(ctx context.Context, from, to uint64) (*Contribution, error) {
	return s.ThresholdServer.Contribute(ctx, from, to-1)
}

func TestCoordinator(t *testing.T) {
	td, srv, members := newTestServer(t, 4)
	_, servers := newThresholdServers(t, td, 2, 5, 4)
	history(t, td, srv, members)
	syncAll(t, srv, servers)
	to := srv.Epoch()
	single, err := srv.Update(td, 1, to)
	require.NoError(t, err)

	// One slow, one failing and one stale source do not block the others.
	sources := []ContributionSource{slowSource{}, servers[1], failingSource{},
		staleSource{servers[3]}, servers[4]}
	coord := NewCoordinator(2, sources)
	start := time.Now()
	u, err := coord.Update(context.Background(), 1, to)
	require.NoError(t, err)
	require.True(t, single.Equal(u))
	require.True(t, time.Since(start) < time.Minute)

	coord.Verify = true
	sources[0] = servers[0]
	u, err = coord.Update(context.Background(), 1, to)
	require.NoError(t, err)
	require.True(t, single.Equal(u))
}

type forkedSource struct {
	*ThresholdServer
}

func (s forkedSource) Contribute(ctx context.Context, from, to uint64) (*Contribution, error) {
	c, err := s.ThresholdServer.Contribute(ctx, from, to)
	if err != nil {
		return nil, err
	}
	forked := *c
	forked.Value = accumulator.ValueFromPoint(accumulator.P1())
	return &forked, nil
}

type delayedSource struct {
	*ThresholdServer
}

func (s delayedSource) Contribute(ctx context.Context, from, to uint64) (*Contribution, error) {
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.ThresholdServer.Contribute(ctx, from, to)
}

// A forked replica answering first does not make the coordinator give up
// while enough agreeing replicas are still working.
func TestCoordinator_Forked(t *testing.T) {
	td, srv, members := newTestServer(t, 4)
	_, servers := newThresholdServers(t, td, 2, 4, 4)
	history(t, td, srv, members)
	syncAll(t, srv, servers)
	to := srv.Epoch()
	single, err := srv.Update(td, 1, to)
	require.NoError(t, err)

	sources := []ContributionSource{forkedSource{servers[0]}, delayedSource{servers[1]},
		delayedSource{servers[2]}, delayedSource{servers[3]}}
	for _, verify := range []bool{false, true} {
		coord := NewCoordinator(2, sources)
		coord.Verify = verify
		u, err := coord.Update(context.Background(), 1, to)
		require.NoError(t, err)
		require.True(t, single.Equal(u))
	}

	// One forked and one healthy replica do not agree.
	coord := NewCoordinator(2, []ContributionSource{forkedSource{servers[0]},
		servers[2], failingSource{}})
	_, err = coord.Update(context.Background(), 1, to)
	require.True(t, xerrors.Is(err, ErrInsufficientShares))
}

func TestCoordinator_Timeout(t *testing.T) {
	td, srv, _ := newTestServer(t, 2)
	_, servers := newThresholdServers(t, td, 3, 4, 3)
	syncAll(t, srv, servers)

	coord := NewCoordinator(3, []ContributionSource{servers[0], slowSource{}, servers[2], slowSource{}})
	coord.Timeout = 100 * time.Millisecond
	_, err := coord.Update(context.Background(), 0, 1)
	require.True(t, xerrors.Is(err, ErrInsufficientShares))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	coord.Timeout = 0
	_, err = coord.Update(ctx, 0, 1)
	require.True(t, xerrors.Is(err, ErrInsufficientShares))

	coord = NewCoordinator(3, []ContributionSource{servers[0], failingSource{}, servers[2], failingSource{}})
	_, err = coord.Update(context.Background(), 0, 1)
	require.True(t, xerrors.Is(err, ErrInsufficientShares))
}
