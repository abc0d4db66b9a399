package allosaur

import (
	"context"
	"sync"

	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// Journal stores the records of a server before they are applied.
type Journal interface {
	Append(r *EpochRecord) error
}

// Server holds the active set and the public state of an accumulator. It
// never keeps the trapdoor: every operation needing it takes it as an
// argument and checks it against the public key.
type Server struct {
	sync.Mutex
	acc     *Accumulator
	members map[string]accumulator.Element
	journal Journal
}

// NewServer returns a server for an empty set at epoch 0.
func NewServer(td *accumulator.SecretKey) *Server {
	return &Server{
		acc:     NewAccumulator(td.Public(), 0, accumulator.NewValue(td, nil)),
		members: make(map[string]accumulator.Element),
	}
}

// RestoreServer rebuilds a server by replaying records starting at epoch 1.
// Every recomputed value must match the recorded one.
func RestoreServer(td *accumulator.SecretKey, records []*EpochRecord) (*Server, error) {
	s := NewServer(td)
	for _, r := range records {
		if r.Epoch != s.acc.Epoch()+1 {
			return nil, xerrors.Errorf("record %d after epoch %d: %w", r.Epoch, s.acc.Epoch(), ErrCorruptState)
		}
		rec, members, err := s.prepare(td, r.Additions, r.Deletions)
		if err != nil {
			return nil, xerrors.Errorf("replaying epoch %d: %v: %w", r.Epoch, err, ErrCorruptState)
		}
		if !rec.Value.Equal(r.Value) {
			return nil, xerrors.Errorf("value of epoch %d does not match: %w", r.Epoch, ErrCorruptState)
		}
		if err := s.commit(rec, members); err != nil {
			return nil, err
		}
	}
	log.Lvlf2("restored accumulator at epoch %d with %d members", s.acc.Epoch(), len(s.members))
	return s, nil
}

// SetJournal makes the server store every record before applying it.
func (s *Server) SetJournal(j Journal) {
	s.Lock()
	defer s.Unlock()
	s.journal = j
}

func (s *Server) checkTrapdoor(td *accumulator.SecretKey) error {
	if td == nil || !td.Public().Equal(s.acc.Key()) {
		return ErrWrongTrapdoor
	}
	return nil
}

// Add accumulates y and returns the new epoch.
func (s *Server) Add(td *accumulator.SecretKey, y accumulator.Element) (uint64, error) {
	return s.Apply(td, []accumulator.Element{y}, nil)
}

// Delete removes y and returns the new epoch.
func (s *Server) Delete(td *accumulator.SecretKey, y accumulator.Element) (uint64, error) {
	return s.Apply(td, nil, []accumulator.Element{y})
}

// Apply adds and deletes several elements in a single epoch. Either all
// changes are applied or none.
func (s *Server) Apply(td *accumulator.SecretKey, additions, deletions []accumulator.Element) (uint64, error) {
	s.Lock()
	defer s.Unlock()
	if err := s.checkTrapdoor(td); err != nil {
		return 0, err
	}
	if len(additions) == 0 && len(deletions) == 0 {
		return s.acc.Epoch(), nil
	}
	rec, members, err := s.prepare(td, additions, deletions)
	if err != nil {
		return 0, err
	}
	if s.journal != nil {
		if err := s.journal.Append(rec); err != nil {
			return 0, ErrorOrNil(err, "journal")
		}
	}
	if err := s.commit(rec, members); err != nil {
		return 0, err
	}
	log.Lvlf2("epoch %d: %d additions, %d deletions, %d members",
		rec.Epoch, len(additions), len(deletions), len(members))
	return rec.Epoch, nil
}

// prepare validates the changes and computes the next record without
// touching the state.
func (s *Server) prepare(td *accumulator.SecretKey, additions, deletions []accumulator.Element) (*EpochRecord, map[string]accumulator.Element, error) {
	members := make(map[string]accumulator.Element, len(s.members)+len(additions))
	for k, m := range s.members {
		members[k] = m
	}
	for _, d := range deletions {
		if _, ok := members[d.Key()]; !ok {
			return nil, nil, xerrors.Errorf("deleting %s: %w", d, ErrUnknownMember)
		}
		delete(members, d.Key())
	}
	for _, a := range additions {
		if _, ok := s.members[a.Key()]; ok {
			return nil, nil, xerrors.Errorf("adding %s: %w", a, ErrDuplicateMember)
		}
		if _, ok := members[a.Key()]; ok {
			return nil, nil, xerrors.Errorf("adding %s twice: %w", a, ErrDuplicateMember)
		}
		members[a.Key()] = a
	}

	epoch := s.acc.Epoch()
	start := s.acc.Value()
	end := accumulator.NewValue(td, memberList(members))
	delta := newUpdatePolynomial(td.Powers(maxLen(additions, deletions)), epoch, epoch+1,
		start, end, additions, deletions)
	return &EpochRecord{
		Epoch:     epoch + 1,
		Additions: append([]accumulator.Element{}, additions...),
		Deletions: append([]accumulator.Element{}, deletions...),
		Value:     end,
		Delta:     delta.Omega.Trim(),
	}, members, nil
}

func (s *Server) commit(rec *EpochRecord, members map[string]accumulator.Element) error {
	if err := s.acc.Append(rec); err != nil {
		return err
	}
	s.members = members
	return nil
}

func memberList(members map[string]accumulator.Element) []accumulator.Element {
	res := make([]accumulator.Element, 0, len(members))
	for _, m := range members {
		res = append(res, m)
	}
	return res
}

// Wit computes the witness of an active member for the current epoch.
func (s *Server) Wit(td *accumulator.SecretKey, y accumulator.Element) (*Witness, error) {
	s.Lock()
	defer s.Unlock()
	if err := s.checkTrapdoor(td); err != nil {
		return nil, err
	}
	if _, ok := s.members[y.Key()]; !ok {
		return nil, xerrors.Errorf("witness for %s: %w", y, ErrUnknownMember)
	}
	return &Witness{
		Y:     y,
		C:     accumulator.NewMembershipWitness(td, y, memberList(s.members)),
		Epoch: s.acc.Epoch(),
	}, nil
}

// Update returns the polynomial moving witnesses from epoch from to epoch
// to. Its size depends on the number of changes, not on the number of
// epochs.
func (s *Server) Update(td *accumulator.SecretKey, from, to uint64) (*UpdatePolynomial, error) {
	s.Lock()
	defer s.Unlock()
	if err := s.checkTrapdoor(td); err != nil {
		return nil, err
	}
	records, err := s.acc.Records(from, to)
	if err != nil {
		return nil, err
	}
	var additions, deletions []accumulator.Element
	for _, r := range records {
		additions = append(additions, r.Additions...)
		deletions = append(deletions, r.Deletions...)
	}
	start, err := s.acc.ValueAt(from)
	if err != nil {
		return nil, err
	}
	end, err := s.acc.ValueAt(to)
	if err != nil {
		return nil, err
	}
	u := newUpdatePolynomial(td.Powers(maxLen(additions, deletions)), from, to,
		start, end, additions, deletions)
	u.Omega = u.Omega.Trim()
	log.Lvlf3("update [%d, %d]: %d changes, %d coefficients", from, to, u.Changes(), len(u.Omega))
	return u, nil
}

// Contains tells whether y is an active member.
func (s *Server) Contains(y accumulator.Element) bool {
	s.Lock()
	defer s.Unlock()
	_, ok := s.members[y.Key()]
	return ok
}

// Size returns the number of active members.
func (s *Server) Size() int {
	s.Lock()
	defer s.Unlock()
	return len(s.members)
}

// Epoch returns the current epoch.
func (s *Server) Epoch() uint64 {
	return s.acc.Epoch()
}

// Public returns the current public data.
func (s *Server) Public() *PublicData {
	return s.acc.Public()
}

// Accumulator gives access to the public state, for example to copy the
// records to replicas.
func (s *Server) Accumulator() *Accumulator {
	return s.acc
}

// Prune forgets the records before epoch e.
func (s *Server) Prune(e uint64) error {
	s.Lock()
	defer s.Unlock()
	return s.acc.Prune(e)
}

// Authority binds a trapdoor to a server to hand out witnesses and updates
// to users.
type Authority struct {
	server   *Server
	trapdoor *accumulator.SecretKey
}

// NewAuthority checks the trapdoor and returns the binding.
func NewAuthority(s *Server, td *accumulator.SecretKey) (*Authority, error) {
	if err := s.checkTrapdoor(td); err != nil {
		return nil, err
	}
	return &Authority{server: s, trapdoor: td}, nil
}

// Witness implements WitnessIssuer.
func (a *Authority) Witness(ctx context.Context, y accumulator.Element) (*Witness, *PublicData, error) {
	w, err := a.server.Wit(a.trapdoor, y)
	if err != nil {
		return nil, nil, err
	}
	v, err := a.server.acc.ValueAt(w.Epoch)
	if err != nil {
		return nil, nil, err
	}
	return w, &PublicData{Key: a.server.acc.Key(), Value: v, Epoch: w.Epoch}, nil
}

// Update implements UpdateProvider.
func (a *Authority) Update(ctx context.Context, from, to uint64) (*UpdatePolynomial, error) {
	return a.server.Update(a.trapdoor, from, to)
}
