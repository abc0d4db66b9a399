package allosaur

import (
	"context"
	"time"

	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// DefaultTimeout bounds the requests of a Coordinator when the context has
// no deadline.
const DefaultTimeout = 10 * time.Second

// ContributionSource is a threshold server, local or remote.
type ContributionSource interface {
	Contribute(ctx context.Context, from, to uint64) (*Contribution, error)
}

// Coordinator asks the threshold servers for their contributions in
// parallel and combines the first threshold of valid ones.
type Coordinator struct {
	Threshold int
	Sources   []ContributionSource
	Timeout   time.Duration
	// Verify waits for one more contribution than the threshold, so that
	// Combine can cross-check two subsets.
	Verify bool
}

// NewCoordinator returns a coordinator with the default timeout.
func NewCoordinator(t int, sources []ContributionSource) *Coordinator {
	return &Coordinator{Threshold: t, Sources: sources, Timeout: DefaultTimeout}
}

// Update implements UpdateProvider.
func (c *Coordinator) Update(ctx context.Context, from, to uint64) (*UpdatePolynomial, error) {
	need := c.Threshold
	if c.Verify && need < len(c.Sources) {
		need++
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	// Contributions are grouped by their public part so that a forked
	// replica does not stop the others from being heard.
	var valid []*Contribution
	groups := make(map[string]int)
	best := 0
	err := fanOut(ctx, len(c.Sources),
		func(ctx context.Context, i int) (interface{}, error) {
			return c.Sources[i].Contribute(ctx, from, to)
		},
		func(r reply) bool {
			if r.err != nil {
				log.Warnf("source %d failed: %v", r.index, r.err)
				return false
			}
			contrib := r.value.(*Contribution)
			if contrib == nil || contrib.From != from || contrib.To != to {
				log.Warn(xerrors.Errorf("source %d: %w", r.index, ErrStaleShare))
				return false
			}
			valid = append(valid, contrib)
			d := string(contrib.digest())
			groups[d]++
			if groups[d] > best {
				best = groups[d]
			}
			return best >= need
		})
	if err != nil && best < c.Threshold {
		return nil, xerrors.Errorf("got %d agreeing of %d contributions, need %d: %v: %w",
			best, len(valid), c.Threshold, err, ErrInsufficientShares)
	}
	u, err := Combine(c.Threshold, len(c.Sources), from, to, valid)
	if err != nil {
		return nil, err
	}
	log.Lvlf2("combined %d contributions for [%d, %d]", len(valid), from, to)
	return u, nil
}

type reply struct {
	index int
	value interface{}
	err   error
}

var errNotEnough = xerrors.New("all replies received")

// fanOut runs call for every index in its own goroutine and hands the
// replies to keep in arrival order until keep returns true. The remaining
// calls are then cancelled. The reply channel is buffered so that no
// goroutine blocks after fanOut returns.
func fanOut(ctx context.Context, n int, call func(context.Context, int) (interface{}, error),
	keep func(reply) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	replies := make(chan reply, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			v, err := call(ctx, i)
			replies <- reply{index: i, value: v, err: err}
		}(i)
	}
	for received := 0; received < n; received++ {
		select {
		case r := <-replies:
			if keep(r) {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errNotEnough
}
