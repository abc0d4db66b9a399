package service

/*
The service.go defines what to do for each API-call. This part of the service
runs on the node.

A node is either the authority of an accumulator, holding its trapdoor, or a
replica holding a share of the trapdoor and a copy of the public records.
Both answer split updates, which only need public data.
*/

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"

	"go.dedis.ch/allosaur"
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/onet/v3/network"
	"golang.org/x/xerrors"
)

// ServiceName is the name of the service as registered with onet.
const ServiceName = "Allosaur"

// Roles of a node.
const (
	RoleAuthority = "authority"
	RoleReplica   = "replica"
)

// ServiceID is the onet identifier of the service.
var ServiceID onet.ServiceID

var disableLoopbackCheck = false

// adminPaths are the calls only accepted from loopback.
var adminPaths = map[string]bool{
	"CreateAccumulator": true,
	"DealShares":        true,
	"SetupReplica":      true,
	"AddRequest":        true,
	"DeleteRequest":     true,
	"SyncRequest":       true,
}

func init() {
	var err error
	ServiceID, err = onet.RegisterNewService(ServiceName, newService)
	log.ErrFatal(err)
	network.RegisterMessages(&storage{})

	if os.Getenv("ALLOSAUR_ALLOW_INSECURE_ADMIN") != "" {
		log.Warn("ALLOSAUR_ALLOW_INSECURE_ADMIN is set; accumulator admin actions allowed from the public network.")
		disableLoopbackCheck = true
	}
}

// Service answers the requests for one accumulator.
type Service struct {
	*onet.ServiceProcessor
	storage *storage

	roleLock  sync.RWMutex
	server    *allosaur.Server
	authority *allosaur.Authority
	replica   *allosaur.ThresholdServer
}

// ProcessClientRequest implements onet.Service. It refuses the admin calls
// that don't come from loopback.
func (s *Service) ProcessClientRequest(req *http.Request, path string, buf []byte) ([]byte, *onet.StreamingTunnel, error) {
	if !disableLoopbackCheck && adminPaths[path] {
		h, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			return nil, nil, err
		}
		ip := net.ParseIP(h)

		if !ip.IsLoopback() {
			return nil, nil, errors.New(path + " is only allowed on loopback")
		}
	}

	return s.ServiceProcessor.ProcessClientRequest(req, path, buf)
}

// Role returns the role of the node.
func (s *Service) Role() string {
	s.roleLock.RLock()
	defer s.roleLock.RUnlock()
	switch {
	case s.authority != nil:
		return RoleAuthority
	case s.replica != nil:
		return RoleReplica
	}
	return ""
}

func (s *Service) getAuthority() (*allosaur.Server, *allosaur.Authority, error) {
	s.roleLock.RLock()
	defer s.roleLock.RUnlock()
	if s.authority == nil {
		return nil, nil, errors.New("this node is not an authority")
	}
	return s.server, s.authority, nil
}

func (s *Service) getReplica() (*allosaur.ThresholdServer, error) {
	s.roleLock.RLock()
	defer s.roleLock.RUnlock()
	if s.replica == nil {
		return nil, errors.New("this node is not a replica")
	}
	return s.replica, nil
}

// publicState returns the accumulator followed by the node.
func (s *Service) publicState() (*allosaur.Accumulator, error) {
	s.roleLock.RLock()
	defer s.roleLock.RUnlock()
	switch {
	case s.server != nil:
		return s.server.Accumulator(), nil
	case s.replica != nil:
		return s.replica.Accumulator(), nil
	}
	return nil, errors.New("this node follows no accumulator")
}

// setAuthority makes the node the authority of srv. The records of srv
// are journaled into the storage of the service from now on.
func (s *Service) setAuthority(srv *allosaur.Server, td *accumulator.SecretKey) error {
	a, err := allosaur.NewAuthority(srv, td)
	if err != nil {
		return err
	}
	srv.SetJournal(journal{st: s.storage, save: s.save})
	s.roleLock.Lock()
	defer s.roleLock.Unlock()
	if s.authority != nil || s.replica != nil {
		return errors.New("node already has a role")
	}
	s.server, s.authority = srv, a
	epochGauge.WithLabelValues(RoleAuthority).Set(float64(srv.Epoch()))
	return nil
}

func (s *Service) setReplica(ts *allosaur.ThresholdServer) error {
	s.roleLock.Lock()
	defer s.roleLock.Unlock()
	if s.authority != nil || s.replica != nil {
		return errors.New("node already has a role")
	}
	s.replica = ts
	epochGauge.WithLabelValues(RoleReplica).Set(float64(ts.Accumulator().Epoch()))
	return nil
}

// CreateAccumulator draws a new trapdoor and makes this node its authority.
func (s *Service) CreateAccumulator(req *CreateAccumulator) (reply *CreateAccumulatorReply, err error) {
	defer func() { observe("CreateAccumulator", err) }()
	td := accumulator.NewSecretKey(random.New())
	srv := allosaur.NewServer(td)
	if err = s.storage.setAuthority(td); err != nil {
		return nil, err
	}
	if err = s.setAuthority(srv, td); err != nil {
		return nil, err
	}
	if err = s.save(); err != nil {
		return nil, err
	}
	reply = &CreateAccumulatorReply{}
	if reply.PublicKey, err = td.Public().MarshalBinary(); err != nil {
		return nil, err
	}
	if reply.Value, err = srv.Accumulator().Value().MarshalBinary(); err != nil {
		return nil, err
	}
	log.Lvlf1("%s: created accumulator %x", s.ServerIdentity(), reply.PublicKey[:8])
	return reply, nil
}

// DealShares shares the trapdoor of the authority.
func (s *Service) DealShares(req *DealShares) (reply *DealSharesReply, err error) {
	defer func() { observe("DealShares", err) }()
	srv, _, err := s.getAuthority()
	if err != nil {
		return nil, err
	}
	td := s.storage.trapdoor()
	if td == nil {
		return nil, errors.New("lost the trapdoor")
	}
	dealing, err := allosaur.DealTrapdoor(td, req.Threshold, req.Total, req.MaxBatch, random.New())
	if err != nil {
		return nil, err
	}
	pub := srv.Public()
	reply = &DealSharesReply{Epoch: pub.Epoch}
	if reply.Value, err = pub.Value.MarshalBinary(); err != nil {
		return nil, err
	}
	for _, sh := range dealing.Shares {
		buf, err := sh.MarshalBinary()
		if err != nil {
			return nil, err
		}
		reply.Shares = append(reply.Shares, buf)
	}
	_, commits := dealing.Commits.Info()
	for _, c := range commits {
		buf, err := c.MarshalBinary()
		if err != nil {
			return nil, err
		}
		reply.Commits = append(reply.Commits, buf)
	}
	return reply, nil
}

// SetupReplica stores a trapdoor share and makes this node a replica.
func (s *Service) SetupReplica(req *SetupReplica) (reply *SetupReplicaReply, err error) {
	defer func() { observe("SetupReplica", err) }()
	pk, err := accumulator.PublicKeyFromBytes(req.PublicKey)
	if err != nil {
		return nil, err
	}
	sh := &allosaur.TrapdoorShare{}
	if err = sh.UnmarshalBinary(req.Share); err != nil {
		return nil, err
	}
	commits, err := decodeCommits(req.Commits)
	if err != nil {
		return nil, err
	}
	if !commits.Commit().Equal(pk.Point()) {
		return nil, errors.New("commitments are not for this public key")
	}
	if !sh.Check(commits) {
		return nil, errors.New("share does not match the commitments")
	}
	v, err := accumulator.ValueFromBytes(req.Value)
	if err != nil {
		return nil, err
	}
	replica := allosaur.NewAccumulator(pk, req.Epoch, v)
	if err = s.storage.setReplica(req); err != nil {
		return nil, err
	}
	if err = s.setReplica(allosaur.NewThresholdServer(sh, replica)); err != nil {
		return nil, err
	}
	if err = s.save(); err != nil {
		return nil, err
	}
	log.Lvlf1("%s: replica %d of %x at epoch %d", s.ServerIdentity(), sh.Index, req.PublicKey[:8], req.Epoch)
	return &SetupReplicaReply{Index: sh.Index}, nil
}

func decodeCommits(list [][]byte) (*share.PubPoly, error) {
	if len(list) == 0 {
		return nil, xerrors.Errorf("no commitments: %w", allosaur.ErrMalformedEncoding)
	}
	var points []kyber.Point
	for _, b := range list {
		p := allosaur.Suite.G2().Point()
		if err := p.UnmarshalBinary(b); err != nil {
			return nil, xerrors.Errorf("%v: %w", err, allosaur.ErrMalformedEncoding)
		}
		points = append(points, p)
	}
	return share.NewPubPoly(allosaur.Suite.G2(), accumulator.P2(), points), nil
}

func decodeElements(list [][]byte) ([]accumulator.Element, error) {
	var res []accumulator.Element
	for _, b := range list {
		e, err := accumulator.ElementFromBytes(b)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// AddRequest accumulates new elements.
func (s *Service) AddRequest(req *AddRequest) (reply *ChangeReply, err error) {
	defer func() { observe("AddRequest", err) }()
	additions, err := decodeElements(req.Elements)
	if err != nil {
		return nil, err
	}
	return s.change(additions, nil)
}

// DeleteRequest removes elements.
func (s *Service) DeleteRequest(req *DeleteRequest) (reply *ChangeReply, err error) {
	defer func() { observe("DeleteRequest", err) }()
	deletions, err := decodeElements(req.Elements)
	if err != nil {
		return nil, err
	}
	return s.change(nil, deletions)
}

func (s *Service) change(additions, deletions []accumulator.Element) (*ChangeReply, error) {
	srv, _, err := s.getAuthority()
	if err != nil {
		return nil, err
	}
	before := srv.Epoch()
	epoch, err := srv.Apply(s.storage.trapdoor(), additions, deletions)
	if err != nil {
		return nil, err
	}
	reply := &ChangeReply{Epoch: epoch}
	if epoch == before {
		return reply, nil
	}
	records, err := srv.Accumulator().Records(epoch-1, epoch)
	if err != nil {
		return nil, err
	}
	if reply.Record, err = records[0].MarshalBinary(); err != nil {
		return nil, err
	}
	epochGauge.WithLabelValues(RoleAuthority).Set(float64(epoch))
	return reply, nil
}

// journal saves the records of the authority before they are applied. A
// record whose save failed is dropped again, the server does not apply it.
type journal struct {
	st   *storage
	save func() error
}

func (j journal) Append(r *allosaur.EpochRecord) error {
	buf, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	j.st.appendRecords(buf)
	if err := j.save(); err != nil {
		j.st.dropRecords(1)
		return err
	}
	return nil
}

// SyncRequest appends the records to the replica.
func (s *Service) SyncRequest(req *SyncRequest) (reply *SyncReply, err error) {
	defer func() { observe("SyncRequest", err) }()
	ts, err := s.getReplica()
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(req.Records)
	if err != nil {
		return nil, err
	}
	if err = ts.Sync(records...); err != nil {
		return nil, err
	}
	s.storage.appendRecords(req.Records...)
	if err = s.save(); err != nil {
		return nil, err
	}
	epoch := ts.Accumulator().Epoch()
	epochGauge.WithLabelValues(RoleReplica).Set(float64(epoch))
	log.Lvlf2("%s: replica synced to epoch %d", s.ServerIdentity(), epoch)
	return &SyncReply{Epoch: epoch}, nil
}

func decodeRecords(list [][]byte) ([]*allosaur.EpochRecord, error) {
	var res []*allosaur.EpochRecord
	for _, b := range list {
		r := &allosaur.EpochRecord{}
		if err := r.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, nil
}

// WitnessRequest returns the witness of an active element.
func (s *Service) WitnessRequest(req *WitnessRequest) (reply *WitnessReply, err error) {
	defer func() { observe("WitnessRequest", err) }()
	_, a, err := s.getAuthority()
	if err != nil {
		return nil, err
	}
	y, err := accumulator.ElementFromBytes(req.Element)
	if err != nil {
		return nil, err
	}
	w, pub, err := a.Witness(context.Background(), y)
	if err != nil {
		return nil, err
	}
	reply = &WitnessReply{}
	if reply.Witness, err = w.MarshalBinary(); err != nil {
		return nil, err
	}
	if reply.PublicKey, err = pub.Key.MarshalBinary(); err != nil {
		return nil, err
	}
	if reply.Value, err = pub.Value.MarshalBinary(); err != nil {
		return nil, err
	}
	return reply, nil
}

// UpdateRequest returns the update polynomial of a range of epochs.
func (s *Service) UpdateRequest(req *UpdateRequest) (reply *UpdateReply, err error) {
	defer func() { observe("UpdateRequest", err) }()
	_, a, err := s.getAuthority()
	if err != nil {
		return nil, err
	}
	u, err := a.Update(context.Background(), req.From, req.To)
	if err != nil {
		return nil, err
	}
	updateChanges.Observe(float64(u.Changes()))
	buf, err := u.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &UpdateReply{Update: buf}, nil
}

// ContributeRequest returns the share of the replica of an update.
func (s *Service) ContributeRequest(req *ContributeRequest) (reply *ContributeReply, err error) {
	defer func() { observe("ContributeRequest", err) }()
	ts, err := s.getReplica()
	if err != nil {
		return nil, err
	}
	c, err := ts.Contribute(context.Background(), req.From, req.To)
	if err != nil {
		return nil, err
	}
	buf, err := c.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &ContributeReply{Contribution: buf}, nil
}

// SplitUpdateRequest evaluates an update on the shares of a user.
func (s *Service) SplitUpdateRequest(req *SplitUpdateRequest) (reply *SplitUpdateReply, err error) {
	defer func() { observe("SplitUpdateRequest", err) }()
	acc, err := s.publicState()
	if err != nil {
		return nil, err
	}
	sr := &allosaur.SplitRequest{}
	if err = sr.UnmarshalBinary(req.Request); err != nil {
		return nil, err
	}
	resp, err := acc.SplitUpdate(context.Background(), sr)
	if err != nil {
		return nil, err
	}
	buf, err := resp.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &SplitUpdateReply{Response: buf}, nil
}

// RecordsRequest returns the public records of a range of epochs.
func (s *Service) RecordsRequest(req *RecordsRequest) (reply *RecordsReply, err error) {
	defer func() { observe("RecordsRequest", err) }()
	acc, err := s.publicState()
	if err != nil {
		return nil, err
	}
	records, err := acc.Records(req.From, req.To)
	if err != nil {
		return nil, err
	}
	reply = &RecordsReply{}
	for _, r := range records {
		buf, err := r.MarshalBinary()
		if err != nil {
			return nil, err
		}
		reply.Records = append(reply.Records, buf)
	}
	return reply, nil
}

// StatusRequest describes the node.
func (s *Service) StatusRequest(req *StatusRequest) (reply *StatusReply, err error) {
	defer func() { observe("StatusRequest", err) }()
	reply = &StatusReply{Role: s.Role()}
	if reply.Role == "" {
		return reply, nil
	}
	acc, err := s.publicState()
	if err != nil {
		return nil, err
	}
	pub := acc.Public()
	reply.Epoch = pub.Epoch
	if reply.PublicKey, err = pub.Key.MarshalBinary(); err != nil {
		return nil, err
	}
	if reply.Value, err = pub.Value.MarshalBinary(); err != nil {
		return nil, err
	}
	if srv, _, err := s.getAuthority(); err == nil {
		reply.Members = srv.Size()
	}
	if ts, err := s.getReplica(); err == nil {
		reply.Index = ts.Index()
	}
	return reply, nil
}

func newService(c *onet.Context) (onet.Service, error) {
	s := &Service{
		ServiceProcessor: onet.NewServiceProcessor(c),
	}
	if err := s.RegisterHandlers(s.CreateAccumulator, s.DealShares, s.SetupReplica,
		s.AddRequest, s.DeleteRequest, s.SyncRequest, s.WitnessRequest,
		s.UpdateRequest, s.ContributeRequest, s.SplitUpdateRequest,
		s.RecordsRequest, s.StatusRequest); err != nil {
		return nil, errors.New("couldn't register messages")
	}
	if err := s.tryLoad(); err != nil {
		log.Error(err)
		return nil, err
	}
	return s, nil
}
