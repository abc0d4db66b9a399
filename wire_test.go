package allosaur

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/protobuf"
	"golang.org/x/xerrors"
)

// wireResponder sends requests and responses through their encodings.
type wireResponder struct {
	t   *testing.T
	srv SplitResponder
}

func (w wireResponder) SplitUpdate(ctx context.Context, req *SplitRequest) (*SplitResponse, error) {
	buf, err := req.MarshalBinary()
	require.NoError(w.t, err)
	var decoded SplitRequest
	require.NoError(w.t, decoded.UnmarshalBinary(buf))
	resp, err := w.srv.SplitUpdate(ctx, &decoded)
	if err != nil {
		return nil, err
	}
	buf, err = resp.MarshalBinary()
	require.NoError(w.t, err)
	var res SplitResponse
	require.NoError(w.t, res.UnmarshalBinary(buf))
	return &res, nil
}

func TestWire_Contribution(t *testing.T) {
	td, srv, members := newTestServer(t, 4)
	dealing, servers := newThresholdServers(t, td, 2, 3, 4)
	history(t, td, srv, members)
	syncAll(t, srv, servers)

	var decoded []*Contribution
	for _, c := range contributions(t, servers, 1, srv.Epoch()) {
		buf, err := c.MarshalBinary()
		require.NoError(t, err)
		var c2 Contribution
		require.NoError(t, c2.UnmarshalBinary(buf))
		require.Equal(t, c.digest(), c2.digest())
		decoded = append(decoded, &c2)
	}
	u, err := Combine(2, 3, 1, srv.Epoch(), decoded)
	require.NoError(t, err)
	direct, err := srv.Update(td, 1, srv.Epoch())
	require.NoError(t, err)
	require.True(t, u.Equal(direct))

	bad, err := protobuf.Encode(&contributionEntry{Value: []byte{1, 2}})
	require.NoError(t, err)
	var c Contribution
	require.True(t, xerrors.Is(c.UnmarshalBinary(bad), ErrMalformedEncoding))

	buf, err := dealing.Shares[1].MarshalBinary()
	require.NoError(t, err)
	var s TrapdoorShare
	require.NoError(t, s.UnmarshalBinary(buf))
	require.Equal(t, 1, s.Index)
	require.True(t, s.Check(dealing.Commits))
}

func TestWire_Split(t *testing.T) {
	td, srv, members := newTestServer(t, 4)
	u := newSplitUser(t, td, srv, members[3])
	history(t, td, srv, members)

	responders := []SplitResponder{
		wireResponder{t, srv}, wireResponder{t, srv}, wireResponder{t, srv},
	}
	require.NoError(t, u.SplitUpdate(context.Background(), responders, 2, srv.Epoch(), 0, random.New()))
	require.True(t, u.Witness().VerifyPublic(srv.Public()))

	bad, err := protobuf.Encode(&splitRequestEntry{Powers: [][]byte{{1, 2, 3}}})
	require.NoError(t, err)
	var r SplitRequest
	require.True(t, xerrors.Is(r.UnmarshalBinary(bad), ErrMalformedEncoding))
}
