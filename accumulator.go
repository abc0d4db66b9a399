package allosaur

import (
	"sync"

	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// EpochRecord describes the change from epoch Epoch-1 to Epoch. Delta holds
// the update coefficients of that single step.
type EpochRecord struct {
	Epoch     uint64
	Additions []accumulator.Element
	Deletions []accumulator.Element
	Value     *accumulator.Value
	Delta     accumulator.PointPolynomial
}

// Accumulator is the public state: the value of every retained epoch and
// the records leading to it. Servers own one, replicas keep a copy in sync
// with Append.
type Accumulator struct {
	sync.RWMutex
	key       *accumulator.PublicKey
	base      uint64
	baseValue *accumulator.Value
	records   []*EpochRecord
}

// NewAccumulator starts a public state at the given epoch and value.
func NewAccumulator(pk *accumulator.PublicKey, epoch uint64, v *accumulator.Value) *Accumulator {
	return &Accumulator{key: pk, base: epoch, baseValue: v}
}

// Key returns the public key.
func (a *Accumulator) Key() *accumulator.PublicKey {
	return a.key
}

// Epoch returns the latest epoch.
func (a *Accumulator) Epoch() uint64 {
	a.RLock()
	defer a.RUnlock()
	return a.epoch()
}

func (a *Accumulator) epoch() uint64 {
	return a.base + uint64(len(a.records))
}

// Value returns the latest value.
func (a *Accumulator) Value() *accumulator.Value {
	a.RLock()
	defer a.RUnlock()
	return a.valueAt(a.epoch())
}

// ValueAt returns the value of a retained epoch.
func (a *Accumulator) ValueAt(e uint64) (*accumulator.Value, error) {
	a.RLock()
	defer a.RUnlock()
	if e < a.base || e > a.epoch() {
		return nil, xerrors.Errorf("epoch %d not in [%d, %d]: %w", e, a.base, a.epoch(), ErrEpochUnavailable)
	}
	return a.valueAt(e), nil
}

func (a *Accumulator) valueAt(e uint64) *accumulator.Value {
	if e == a.base {
		return a.baseValue
	}
	return a.records[e-a.base-1].Value
}

// Public returns the data needed to check witnesses and proofs.
func (a *Accumulator) Public() *PublicData {
	a.RLock()
	defer a.RUnlock()
	return &PublicData{Key: a.key, Value: a.valueAt(a.epoch()), Epoch: a.epoch()}
}

// Records returns the records of the epochs in (from, to].
func (a *Accumulator) Records(from, to uint64) ([]*EpochRecord, error) {
	a.RLock()
	defer a.RUnlock()
	return a.recordRange(from, to)
}

func (a *Accumulator) recordRange(from, to uint64) ([]*EpochRecord, error) {
	if from > to || from < a.base || to > a.epoch() {
		return nil, xerrors.Errorf("range [%d, %d] outside of [%d, %d]: %w",
			from, to, a.base, a.epoch(), ErrEpochUnavailable)
	}
	return a.records[from-a.base : to-a.base : to-a.base], nil
}

// largestBatch returns the most additions or deletions of a single epoch in
// (from, to].
func (a *Accumulator) largestBatch(from, to uint64) (int, error) {
	a.RLock()
	defer a.RUnlock()
	records, err := a.recordRange(from, to)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, r := range records {
		if len(r.Additions) > max {
			max = len(r.Additions)
		}
		if len(r.Deletions) > max {
			max = len(r.Deletions)
		}
	}
	return max, nil
}

// Append adds the record of the next epoch.
func (a *Accumulator) Append(records ...*EpochRecord) error {
	a.Lock()
	defer a.Unlock()
	for _, r := range records {
		if r.Epoch != a.epoch()+1 {
			return xerrors.Errorf("record for epoch %d while at epoch %d: %w",
				r.Epoch, a.epoch(), ErrEpochUnavailable)
		}
		a.records = append(a.records, r)
	}
	return nil
}

// Prune forgets everything before epoch e. Updates starting before e are
// not available anymore.
func (a *Accumulator) Prune(e uint64) error {
	a.Lock()
	defer a.Unlock()
	if e < a.base {
		return nil
	}
	if e > a.epoch() {
		return xerrors.Errorf("cannot prune up to %d at epoch %d: %w", e, a.epoch(), ErrEpochUnavailable)
	}
	a.baseValue = a.valueAt(e)
	a.records = append([]*EpochRecord{}, a.records[e-a.base:]...)
	log.Lvlf3("pruned epochs %d to %d", a.base, e)
	a.base = e
	return nil
}

// Replay composes the stored deltas of [from, to] into one update. It needs
// no trapdoor.
func (a *Accumulator) Replay(from, to uint64) (*UpdatePolynomial, error) {
	a.RLock()
	defer a.RUnlock()
	records, err := a.recordRange(from, to)
	if err != nil {
		return nil, err
	}
	res := identityUpdate(from, a.valueAt(from))
	for _, r := range records {
		res, err = Compose(res, r.update())
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *EpochRecord) update() *UpdatePolynomial {
	return &UpdatePolynomial{
		From:      r.Epoch - 1,
		To:        r.Epoch,
		Value:     r.Value,
		Additions: r.Additions,
		Deletions: r.Deletions,
		Omega:     r.Delta,
	}
}

// chunk is a range of epochs with a bounded number of changes.
type chunk struct {
	from, to   uint64
	start, end *accumulator.Value
	additions  []accumulator.Element
	deletions  []accumulator.Element
	records    []*EpochRecord
}

// chunks cuts [from, to] at epoch boundaries so that no chunk holds more
// than max additions or max deletions.
func (a *Accumulator) chunks(from, to uint64, max int) ([]*chunk, error) {
	a.RLock()
	defer a.RUnlock()
	records, err := a.recordRange(from, to)
	if err != nil {
		return nil, err
	}
	var res []*chunk
	var cur *chunk
	for _, r := range records {
		if len(r.Additions) > max || len(r.Deletions) > max {
			return nil, xerrors.Errorf("epoch %d has %d additions and %d deletions, max is %d: %w",
				r.Epoch, len(r.Additions), len(r.Deletions), max, ErrBatchTooLarge)
		}
		if cur != nil && (len(cur.additions)+len(r.Additions) > max ||
			len(cur.deletions)+len(r.Deletions) > max) {
			res = append(res, cur)
			cur = nil
		}
		if cur == nil {
			cur = &chunk{from: r.Epoch - 1, start: a.valueAt(r.Epoch - 1)}
		}
		cur.to = r.Epoch
		cur.end = r.Value
		cur.additions = append(cur.additions, r.Additions...)
		cur.deletions = append(cur.deletions, r.Deletions...)
		cur.records = append(cur.records, r)
	}
	if cur != nil {
		res = append(res, cur)
	}
	return res, nil
}

// replay composes the deltas of the chunk.
func (c *chunk) replay() (*UpdatePolynomial, error) {
	res := identityUpdate(c.from, c.start)
	var err error
	for _, r := range c.records {
		res, err = Compose(res, r.update())
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}
