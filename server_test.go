package allosaur

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

func TestMain(m *testing.M) {
	log.MainTest(m)
}

func newElements(n int) []accumulator.Element {
	res := make([]accumulator.Element, n)
	for i := range res {
		res[i] = accumulator.RandomElement(random.New())
	}
	return res
}

func newTestServer(t *testing.T, members int) (*accumulator.SecretKey, *Server, []accumulator.Element) {
	td := accumulator.NewSecretKey(random.New())
	srv := NewServer(td)
	elements := newElements(members)
	if members > 0 {
		_, err := srv.Apply(td, elements, nil)
		require.NoError(t, err)
	}
	return td, srv, elements
}

// Two additions, a witness, a deletion and one update of the old witness.
func TestServer_Scenario(t *testing.T) {
	td := accumulator.NewSecretKey(random.New())
	srv := NewServer(td)
	require.Equal(t, uint64(0), srv.Epoch())
	require.True(t, srv.Public().Value.Point().Equal(accumulator.P1()))

	y1 := accumulator.HashElement([]byte("y1"))
	y2 := accumulator.HashElement([]byte("y2"))
	e, err := srv.Add(td, y1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), e)
	e, err = srv.Add(td, y2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), e)

	w, err := srv.Wit(td, y1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), w.Epoch)
	require.True(t, w.VerifyPublic(srv.Public()))

	e, err = srv.Delete(td, y2)
	require.NoError(t, err)
	require.Equal(t, uint64(3), e)
	require.False(t, w.Verify(srv.Public().Key, srv.Public().Value))

	u, err := srv.Update(td, 2, 3)
	require.NoError(t, err)
	w3, err := u.Apply(w)
	require.NoError(t, err)
	require.Equal(t, uint64(3), w3.Epoch)
	require.True(t, w3.VerifyPublic(srv.Public()))
}

func TestServer_Errors(t *testing.T) {
	td, srv, members := newTestServer(t, 3)

	_, err := srv.Add(td, members[0])
	require.True(t, xerrors.Is(err, ErrDuplicateMember))
	_, err = srv.Delete(td, accumulator.RandomElement(random.New()))
	require.True(t, xerrors.Is(err, ErrUnknownMember))
	_, err = srv.Wit(td, accumulator.RandomElement(random.New()))
	require.True(t, xerrors.Is(err, ErrUnknownMember))

	other := accumulator.NewSecretKey(random.New())
	_, err = srv.Add(other, accumulator.RandomElement(random.New()))
	require.True(t, xerrors.Is(err, ErrWrongTrapdoor))
	_, err = srv.Wit(other, members[0])
	require.True(t, xerrors.Is(err, ErrWrongTrapdoor))
	_, err = srv.Update(other, 0, 1)
	require.True(t, xerrors.Is(err, ErrWrongTrapdoor))
	_, err = srv.Add(nil, accumulator.RandomElement(random.New()))
	require.True(t, xerrors.Is(err, ErrWrongTrapdoor))

	_, err = srv.Update(td, 0, 2)
	require.True(t, xerrors.Is(err, ErrEpochUnavailable))
	_, err = srv.Update(td, 1, 0)
	require.True(t, xerrors.Is(err, ErrEpochUnavailable))

	// Nothing changed after the failures.
	require.Equal(t, uint64(1), srv.Epoch())
	require.Equal(t, 3, srv.Size())
}

func TestServer_ApplyAtomic(t *testing.T) {
	td, srv, members := newTestServer(t, 2)
	v := srv.Public().Value

	fresh := newElements(2)
	_, err := srv.Apply(td, fresh, []accumulator.Element{accumulator.RandomElement(random.New())})
	require.True(t, xerrors.Is(err, ErrUnknownMember))
	_, err = srv.Apply(td, []accumulator.Element{fresh[0], fresh[0]}, nil)
	require.True(t, xerrors.Is(err, ErrDuplicateMember))
	_, err = srv.Apply(td, []accumulator.Element{members[1]}, []accumulator.Element{members[1]})
	require.True(t, xerrors.Is(err, ErrDuplicateMember))
	require.False(t, srv.Contains(fresh[0]))
	require.True(t, v.Equal(srv.Public().Value))

	e, err := srv.Apply(td, nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), e)

	e, err = srv.Apply(td, fresh, members[:1])
	require.NoError(t, err)
	require.Equal(t, uint64(2), e)
	require.Equal(t, 3, srv.Size())
	require.True(t, srv.Contains(fresh[1]))
	require.False(t, srv.Contains(members[0]))
}

// The value is always the one of the active set, whatever the history.
func TestServer_Value(t *testing.T) {
	td, srv, members := newTestServer(t, 4)
	extra := newElements(3)
	for _, y := range extra {
		_, err := srv.Add(td, y)
		require.NoError(t, err)
	}
	_, err := srv.Delete(td, members[2])
	require.NoError(t, err)
	_, err = srv.Apply(td, nil, extra[:2])
	require.NoError(t, err)

	active := []accumulator.Element{members[0], members[1], members[3], extra[2]}
	require.True(t, accumulator.NewValue(td, active).Equal(srv.Public().Value))

	pub := srv.Public()
	for _, y := range active {
		w, err := srv.Wit(td, y)
		require.NoError(t, err)
		require.True(t, w.VerifyPublic(pub))
	}
}

func TestServer_Prune(t *testing.T) {
	td, srv, _ := newTestServer(t, 2)
	for i := 0; i < 3; i++ {
		_, err := srv.Add(td, accumulator.RandomElement(random.New()))
		require.NoError(t, err)
	}
	require.NoError(t, srv.Prune(2))
	_, err := srv.Update(td, 1, 4)
	require.True(t, xerrors.Is(err, ErrEpochUnavailable))
	_, err = srv.Update(td, 2, 4)
	require.NoError(t, err)
	require.Error(t, srv.Prune(10))
	require.NoError(t, srv.Prune(1))
	_, err = srv.Accumulator().ValueAt(1)
	require.True(t, xerrors.Is(err, ErrEpochUnavailable))
}

func TestRestoreServer(t *testing.T) {
	td, srv, members := newTestServer(t, 3)
	_, err := srv.Delete(td, members[1])
	require.NoError(t, err)
	records, err := srv.Accumulator().Records(0, srv.Epoch())
	require.NoError(t, err)

	restored, err := RestoreServer(td, records)
	require.NoError(t, err)
	require.Equal(t, srv.Epoch(), restored.Epoch())
	require.True(t, srv.Public().Value.Equal(restored.Public().Value))
	require.False(t, restored.Contains(members[1]))

	bad := *records[1]
	bad.Value = records[0].Value
	_, err = RestoreServer(td, []*EpochRecord{records[0], &bad})
	require.True(t, xerrors.Is(err, ErrCorruptState))
	_, err = RestoreServer(td, records[1:])
	require.True(t, xerrors.Is(err, ErrCorruptState))
}

// Appending to a returned range does not touch the records that follow.
func TestAccumulator_RecordsCopy(t *testing.T) {
	td, srv, _ := newTestServer(t, 2)
	_, err := srv.Add(td, accumulator.RandomElement(random.New()))
	require.NoError(t, err)
	records, err := srv.Accumulator().Records(0, 1)
	require.NoError(t, err)
	second, err := srv.Accumulator().Records(1, 2)
	require.NoError(t, err)

	_ = append(records, &EpochRecord{Epoch: 42})
	all, err := srv.Accumulator().Records(0, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), all[1].Epoch)
	require.True(t, all[1] == second[0])
}
