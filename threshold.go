package allosaur

import (
	"bytes"
	"context"
	"crypto/cipher"
	"encoding/binary"

	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// TrapdoorShare is the share of one threshold server: Powers[m-1] is its
// Shamir share of alpha^m. Index is the share index as used by
// kyber/share, the evaluation point being Index+1.
type TrapdoorShare struct {
	Index  int
	Powers []kyber.Scalar
}

// Dealing is the output of DealTrapdoor.
type Dealing struct {
	Threshold int
	Total     int
	// Commits is a commitment to the sharing of alpha over G2, its constant
	// term is the public key.
	Commits *share.PubPoly
	Shares  []*TrapdoorShare
}

// DealTrapdoor shares alpha, alpha^2, ... alpha^(maxBatch-1) among n
// servers so that any t of them can compute updates holding up to maxBatch
// additions and maxBatch deletions per chunk.
func DealTrapdoor(td *accumulator.SecretKey, t, n, maxBatch int, rand cipher.Stream) (*Dealing, error) {
	if t < 1 || t > n {
		return nil, xerrors.Errorf("invalid threshold %d of %d", t, n)
	}
	if maxBatch < 1 {
		return nil, xerrors.Errorf("invalid batch size %d", maxBatch)
	}
	powers := maxBatch - 1
	if powers < 1 {
		powers = 1
	}
	alphas := td.Powers(powers + 1)
	d := &Dealing{Threshold: t, Total: n, Shares: make([]*TrapdoorShare, n)}
	for i := range d.Shares {
		d.Shares[i] = &TrapdoorShare{Index: i, Powers: make([]kyber.Scalar, powers)}
	}
	for m := 1; m <= powers; m++ {
		poly := share.NewPriPoly(Suite.G2(), t, alphas[m], rand)
		if m == 1 {
			d.Commits = poly.Commit(accumulator.P2())
		}
		for _, s := range poly.Shares(n) {
			d.Shares[s.I].Powers[m-1] = s.V
		}
	}
	log.Lvlf2("dealt trapdoor to %d servers, threshold %d, %d powers", n, t, powers)
	return d, nil
}

// Check verifies the share of alpha against the commitments of the dealer.
func (ts *TrapdoorShare) Check(commits *share.PubPoly) bool {
	if len(ts.Powers) == 0 || commits == nil {
		return false
	}
	return commits.Check(&share.PriShare{I: ts.Index, V: ts.Powers[0]})
}

// MaxBatch is the number of additions, and of deletions, a chunk may hold.
func (ts *TrapdoorShare) MaxBatch() int {
	return len(ts.Powers) + 1
}

// powers returns 1 followed by the shares.
func (ts *TrapdoorShare) powers() []kyber.Scalar {
	return append([]kyber.Scalar{Suite.G1().Scalar().One()}, ts.Powers...)
}

// ChunkShare is the share of the update of a range of epochs. All fields
// but Omega are public and identical for every server.
type ChunkShare struct {
	From      uint64
	To        uint64
	Start     *accumulator.Value
	End       *accumulator.Value
	Additions []accumulator.Element
	Deletions []accumulator.Element
	Omega     accumulator.PointPolynomial
}

// Contribution is one server's share of an update.
type Contribution struct {
	Index  int
	From   uint64
	To     uint64
	Value  *accumulator.Value
	Chunks []*ChunkShare
}

// digest hashes the public part of the contribution.
func (c *Contribution) digest() []byte {
	h := Suite.Hash()
	num := func(v uint64) {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	marshal := func(m interface{ MarshalBinary() ([]byte, error) }) {
		buf, _ := m.MarshalBinary()
		h.Write(buf)
	}
	num(c.From)
	num(c.To)
	if c.Value != nil {
		marshal(c.Value)
	}
	for _, ch := range c.Chunks {
		num(ch.From)
		num(ch.To)
		marshal(ch.Start)
		marshal(ch.End)
		num(uint64(len(ch.Additions)))
		for _, a := range ch.Additions {
			marshal(a)
		}
		num(uint64(len(ch.Deletions)))
		for _, d := range ch.Deletions {
			marshal(d)
		}
		num(uint64(len(ch.Omega)))
	}
	return h.Sum(nil)
}

// ThresholdServer computes contributions from a trapdoor share and a
// replica of the public state.
type ThresholdServer struct {
	share   *TrapdoorShare
	replica *Accumulator
}

// NewThresholdServer returns a server holding share and following replica.
func NewThresholdServer(s *TrapdoorShare, replica *Accumulator) *ThresholdServer {
	return &ThresholdServer{share: s, replica: replica}
}

// Index returns the share index.
func (ts *ThresholdServer) Index() int {
	return ts.share.Index
}

// Accumulator returns the replica.
func (ts *ThresholdServer) Accumulator() *Accumulator {
	return ts.replica
}

// Sync appends new records to the replica.
func (ts *ThresholdServer) Sync(records ...*EpochRecord) error {
	return ts.replica.Append(records...)
}

// Contribute computes this server's share of the update [from, to].
func (ts *ThresholdServer) Contribute(ctx context.Context, from, to uint64) (*Contribution, error) {
	chunks, err := ts.replica.chunks(from, to, ts.share.MaxBatch())
	if err != nil {
		return nil, err
	}
	end, err := ts.replica.ValueAt(to)
	if err != nil {
		return nil, err
	}
	powers := ts.share.powers()
	c := &Contribution{Index: ts.share.Index, From: from, To: to, Value: end}
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u := newUpdatePolynomial(powers, ch.from, ch.to, ch.start, ch.end, ch.additions, ch.deletions)
		c.Chunks = append(c.Chunks, &ChunkShare{
			From:      ch.from,
			To:        ch.to,
			Start:     ch.start,
			End:       ch.end,
			Additions: ch.additions,
			Deletions: ch.deletions,
			Omega:     u.Omega,
		})
	}
	log.Lvlf3("server %d: contribution for [%d, %d] with %d chunks", ts.share.Index, from, to, len(c.Chunks))
	return c, nil
}

// Combine interpolates t contributions into the update [from, to]. The
// contributions of another range or whose public part disagrees with the
// majority are dropped as stale. With more than t valid contributions, two
// different subsets must give the same result.
func Combine(t, n int, from, to uint64, contributions []*Contribution) (*UpdatePolynomial, error) {
	valid, err := validContributions(t, from, to, contributions)
	if err != nil {
		return nil, err
	}
	res, err := interpolate(t, n, valid[:t])
	if err != nil {
		return nil, err
	}
	if len(valid) > t {
		check, err := interpolate(t, n, valid[len(valid)-t:])
		if err != nil {
			return nil, err
		}
		if !res.Equal(check) {
			return nil, xerrors.Errorf("update [%d, %d]: %w", from, to, ErrInconsistentShares)
		}
	}
	return res, nil
}

func validContributions(t int, from, to uint64, contributions []*Contribution) ([]*Contribution, error) {
	type group struct {
		digest []byte
		list   []*Contribution
	}
	var groups []*group
	seen := make(map[int]bool)
	for _, c := range contributions {
		if c == nil {
			continue
		}
		if c.From != from || c.To != to {
			log.Warn(xerrors.Errorf("contribution of %d for [%d, %d] instead of [%d, %d]: %w",
				c.Index, c.From, c.To, from, to, ErrStaleShare))
			continue
		}
		if seen[c.Index] {
			log.Warnf("duplicate contribution of %d", c.Index)
			continue
		}
		seen[c.Index] = true
		d := c.digest()
		var g *group
		for _, cand := range groups {
			if bytes.Equal(cand.digest, d) {
				g = cand
				break
			}
		}
		if g == nil {
			g = &group{digest: d}
			groups = append(groups, g)
		}
		g.list = append(g.list, c)
	}
	var best *group
	for _, g := range groups {
		if best == nil || len(g.list) > len(best.list) {
			best = g
		}
	}
	for _, g := range groups {
		if g != best {
			for _, c := range g.list {
				log.Warn(xerrors.Errorf("contribution of %d disagrees with the others: %w", c.Index, ErrStaleShare))
			}
		}
	}
	if best == nil || len(best.list) < t {
		got := 0
		if best != nil {
			got = len(best.list)
		}
		return nil, xerrors.Errorf("%d valid contributions out of %d, need %d: %w",
			got, len(contributions), t, ErrInsufficientShares)
	}
	return best.list, nil
}

// interpolate recovers every coefficient of every chunk in the exponent
// and composes the chunks.
func interpolate(t, n int, contributions []*Contribution) (*UpdatePolynomial, error) {
	ref := contributions[0]
	res := identityUpdate(ref.From, ref.Value)
	for j, ch := range ref.Chunks {
		omega := make(accumulator.PointPolynomial, len(ch.Omega))
		for k := range omega {
			shares := make([]*share.PubShare, len(contributions))
			for i, c := range contributions {
				shares[i] = &share.PubShare{I: c.Index, V: c.Chunks[j].Omega[k]}
			}
			p, err := share.RecoverCommit(Suite.G1(), shares, t, n)
			if err != nil {
				return nil, xerrors.Errorf("chunk %d coefficient %d: %v: %w", j, k, err, ErrInsufficientShares)
			}
			omega[k] = p
		}
		var err error
		res, err = Compose(res, &UpdatePolynomial{
			From:      ch.From,
			To:        ch.To,
			Value:     ch.End,
			Additions: ch.Additions,
			Deletions: ch.Deletions,
			Omega:     omega.Trim(),
		})
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}
