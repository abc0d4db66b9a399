package allosaur

import (
	"context"
	"crypto/cipher"
	"fmt"
	"math"

	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// A split update lets a user update its witness without revealing its
// element: the user shares y, y^2, ..., y^k among the responders, each one
// evaluates the update polynomials on its shares, and the user
// interpolates the results.

// SplitRequest holds the shares of y^1..y^k for one responder.
type SplitRequest struct {
	From   uint64
	To     uint64
	Index  int
	Powers []kyber.Scalar
}

// SplitChunk holds the shares of dA(y), dD(y) and Omega(y) of a range of
// epochs.
type SplitChunk struct {
	From      uint64
	To        uint64
	Additions kyber.Scalar
	Deletions kyber.Scalar
	Omega     kyber.Point
}

// SplitResponse is the answer of one responder.
type SplitResponse struct {
	Index  int
	From   uint64
	To     uint64
	Value  *accumulator.Value
	Chunks []*SplitChunk
	// Needed is set instead of Chunks when an epoch of the range holds
	// more changes than the request has powers. It is the number of powers
	// that will do.
	Needed int
}

// SplitResponder evaluates updates on shares of y.
type SplitResponder interface {
	SplitUpdate(ctx context.Context, req *SplitRequest) (*SplitResponse, error)
}

// SplitUpdate evaluates the stored updates of the requested range on the
// shares. It uses only public data.
func (a *Accumulator) SplitUpdate(ctx context.Context, req *SplitRequest) (*SplitResponse, error) {
	k := len(req.Powers)
	if k == 0 {
		return nil, xerrors.New("no shares in request")
	}
	largest, err := a.largestBatch(req.From, req.To)
	if err != nil {
		return nil, err
	}
	end, err := a.ValueAt(req.To)
	if err != nil {
		return nil, err
	}
	resp := &SplitResponse{Index: req.Index, From: req.From, To: req.To, Value: end}
	if largest > k {
		log.Lvlf3("split update [%d, %d] for share %d needs %d powers, got %d",
			req.From, req.To, req.Index, largest, k)
		resp.Needed = largest
		return resp, nil
	}
	chunks, err := a.chunks(req.From, req.To, k)
	if err != nil {
		return nil, err
	}
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u, err := ch.replay()
		if err != nil {
			return nil, err
		}
		if len(u.Omega) > k {
			return nil, xerrors.Errorf("chunk [%d, %d] needs %d powers: %w", ch.from, ch.to, len(u.Omega), ErrBatchTooLarge)
		}
		resp.Chunks = append(resp.Chunks, &SplitChunk{
			From:      ch.from,
			To:        ch.to,
			Additions: accumulator.RootPolynomial(u.Additions).EvalShares(req.Powers),
			Deletions: accumulator.RootPolynomial(u.Deletions).EvalShares(req.Powers),
			Omega:     u.Omega.EvalShares(req.Powers),
		})
	}
	log.Lvlf3("split update [%d, %d] for share %d: %d chunks", req.From, req.To, req.Index, len(resp.Chunks))
	return resp, nil
}

// SplitUpdate lets a threshold server answer split updates from its
// replica.
func (ts *ThresholdServer) SplitUpdate(ctx context.Context, req *SplitRequest) (*SplitResponse, error) {
	return ts.replica.SplitUpdate(ctx, req)
}

// SplitUpdate answers split updates from the server's public state.
func (s *Server) SplitUpdate(ctx context.Context, req *SplitRequest) (*SplitResponse, error) {
	return s.acc.SplitUpdate(ctx, req)
}

// ChunkPower returns how many powers of y to share for an update holding
// the given number of changes. It balances the size of the request,
// growing with k, against the number of chunks of the response, shrinking
// with k.
func ChunkPower(changes uint64) int {
	d := int(changes)
	k := int(math.Sqrt(2.5 * float64(d)))
	if k < 1 {
		k = 1
	}
	for 2*k < 5*(d+k-1)/k {
		k++
	}
	return k
}

// NewSplitRequests shares y^1..y^k among n responders with threshold t.
func NewSplitRequests(y accumulator.Element, from, to uint64, k, t, n int, rand cipher.Stream) ([]*SplitRequest, error) {
	if t < 1 || t > n {
		return nil, xerrors.Errorf("invalid threshold %d of %d", t, n)
	}
	if k < 1 {
		return nil, xerrors.Errorf("invalid power %d", k)
	}
	reqs := make([]*SplitRequest, n)
	for i := range reqs {
		reqs[i] = &SplitRequest{From: from, To: to, Index: i, Powers: make([]kyber.Scalar, k)}
	}
	for m, p := range accumulator.ScalarPowers(y.Scalar(), k+1)[1:] {
		poly := share.NewPriPoly(Suite.G1(), t, p, rand)
		for _, s := range poly.Shares(n) {
			reqs[s.I].Powers[m] = s.V
		}
	}
	return reqs, nil
}

// evaluatedChunk is a chunk of a split update after interpolation.
type evaluatedChunk struct {
	additions kyber.Scalar
	deletions kyber.Scalar
	omega     kyber.Point
}

func (r *SplitResponse) layout() string {
	s := fmt.Sprintf("%d-%d", r.From, r.To)
	if r.Value != nil {
		s += r.Value.String()
	}
	for _, ch := range r.Chunks {
		s += fmt.Sprintf("/%d-%d", ch.From, ch.To)
	}
	return s
}

// combineSplit interpolates the responses of at least t responders. The
// responses that disagree with the majority on the layout of the chunks are
// dropped as stale.
func combineSplit(t, n int, responses []*SplitResponse) ([]*evaluatedChunk, *accumulator.Value, error) {
	groups := make(map[string][]*SplitResponse)
	var order []string
	seen := make(map[int]bool)
	for _, r := range responses {
		if r == nil || seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		l := r.layout()
		if _, ok := groups[l]; !ok {
			order = append(order, l)
		}
		groups[l] = append(groups[l], r)
	}
	var best []*SplitResponse
	for _, l := range order {
		if len(groups[l]) > len(best) {
			best = groups[l]
		}
	}
	if len(best) < len(seen) {
		log.Warn(xerrors.Errorf("%d split responses disagree: %w", len(seen)-len(best), ErrStaleShare))
	}
	if len(best) < t {
		return nil, nil, xerrors.Errorf("%d agreeing split responses, need %d: %w", len(best), t, ErrInsufficientShares)
	}
	res, err := interpolateSplit(t, n, best[:t])
	if err != nil {
		return nil, nil, err
	}
	if len(best) > t {
		check, err := interpolateSplit(t, n, best[len(best)-t:])
		if err != nil {
			return nil, nil, err
		}
		for j := range res {
			if !res[j].additions.Equal(check[j].additions) || !res[j].deletions.Equal(check[j].deletions) ||
				!res[j].omega.Equal(check[j].omega) {
				return nil, nil, xerrors.Errorf("split chunk %d: %w", j, ErrInconsistentShares)
			}
		}
	}
	return res, best[0].Value, nil
}

func interpolateSplit(t, n int, responses []*SplitResponse) ([]*evaluatedChunk, error) {
	g := Suite.G1()
	res := make([]*evaluatedChunk, len(responses[0].Chunks))
	for j := range res {
		adds := make([]*share.PriShare, len(responses))
		dels := make([]*share.PriShare, len(responses))
		omegas := make([]*share.PubShare, len(responses))
		for i, r := range responses {
			ch := r.Chunks[j]
			adds[i] = &share.PriShare{I: r.Index, V: ch.Additions}
			dels[i] = &share.PriShare{I: r.Index, V: ch.Deletions}
			omegas[i] = &share.PubShare{I: r.Index, V: ch.Omega}
		}
		a, err := share.RecoverSecret(g, adds, t, n)
		if err != nil {
			return nil, xerrors.Errorf("%v: %w", err, ErrInsufficientShares)
		}
		d, err := share.RecoverSecret(g, dels, t, n)
		if err != nil {
			return nil, xerrors.Errorf("%v: %w", err, ErrInsufficientShares)
		}
		o, err := share.RecoverCommit(g, omegas, t, n)
		if err != nil {
			return nil, xerrors.Errorf("%v: %w", err, ErrInsufficientShares)
		}
		res[j] = &evaluatedChunk{additions: a, deletions: d, omega: o}
	}
	return res, nil
}

// SplitUpdate moves the witness of the user to epoch to by asking the
// responders, without revealing the element to less than t of them. A k
// below one selects ChunkPower from the number of epochs, and a second
// round with more powers if the responders find an epoch too large for it.
func (u *User) SplitUpdate(ctx context.Context, responders []SplitResponder, t int, to uint64, k int,
	rand cipher.Stream) error {
	if u.witness == nil {
		return ErrNoWitness
	}
	from := u.witness.Epoch
	if to == from {
		return nil
	}
	auto := k < 1
	if auto {
		k = ChunkPower(to - from)
	}
	responses, needed, err := u.askSplit(ctx, responders, t, to, k, rand)
	if err != nil {
		return err
	}
	if responses == nil && auto {
		log.Lvlf2("split update [%d, %d]: retrying with %d powers instead of %d", from, to, needed, k)
		k = needed
		responses, needed, err = u.askSplit(ctx, responders, t, to, k, rand)
		if err != nil {
			return err
		}
	}
	if responses == nil {
		return xerrors.Errorf("responders need %d powers of y, got %d: %w", needed, k, ErrBatchTooLarge)
	}
	chunks, value, err := combineSplit(t, len(responders), responses)
	if err != nil {
		return err
	}

	c := u.witness.C
	for _, ch := range chunks {
		c, err = c.ApplyEvaluated(ch.additions, ch.deletions, ch.omega)
		if err != nil {
			u.revoke()
			return err
		}
	}
	return u.accept(&Witness{Y: u.witness.Y, C: c, Epoch: to}, value)
}

// askSplit sends one round of split requests with k powers. If too few
// responders could answer because k is too small, it returns no responses
// and the number of powers they asked for.
func (u *User) askSplit(ctx context.Context, responders []SplitResponder, t int, to uint64, k int,
	rand cipher.Stream) ([]*SplitResponse, int, error) {
	from := u.witness.Epoch
	n := len(responders)
	reqs, err := NewSplitRequests(u.witness.Y, from, to, k, t, n, rand)
	if err != nil {
		return nil, 0, err
	}
	need := t
	if need < n {
		need++
	}
	var responses []*SplitResponse
	needed := 0
	err = fanOut(ctx, n,
		func(ctx context.Context, i int) (interface{}, error) {
			return responders[i].SplitUpdate(ctx, reqs[i])
		},
		func(r reply) bool {
			if r.err != nil {
				log.Warnf("responder %d failed: %v", r.index, r.err)
				return false
			}
			resp := r.value.(*SplitResponse)
			if resp == nil || resp.Index != r.index || resp.From != from || resp.To != to {
				log.Warn(xerrors.Errorf("responder %d: %w", r.index, ErrStaleShare))
				return false
			}
			if resp.Needed > 0 {
				if resp.Needed > k && resp.Needed > needed {
					needed = resp.Needed
				}
				return false
			}
			responses = append(responses, resp)
			return len(responses) >= need
		})
	if err != nil && len(responses) < t {
		if needed > k {
			return nil, needed, nil
		}
		return nil, 0, xerrors.Errorf("got %d of %d split responses: %v: %w", len(responses), t, err, ErrInsufficientShares)
	}
	return responses, 0, nil
}
