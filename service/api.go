package service

import (
	"context"
	"errors"

	"go.dedis.ch/allosaur"
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/onet/v3/network"
)

// Suite is used for the identities of the nodes.
var Suite = suites.MustFind("Ed25519")

// Client talks to the nodes of an accumulator.
type Client struct {
	*onet.Client
}

// NewClient returns a client for the Allosaur service.
func NewClient() *Client {
	return &Client{Client: onet.NewClient(Suite, ServiceName)}
}

// Create makes si the authority of a new accumulator and returns its
// public data at epoch 0.
//
// This can only be called from localhost, except if the environment variable
// ALLOSAUR_ALLOW_INSECURE_ADMIN is set.
func (c *Client) Create(si *network.ServerIdentity) (*allosaur.PublicData, error) {
	var reply CreateAccumulatorReply
	if err := c.SendProtobuf(si, &CreateAccumulator{}, &reply); err != nil {
		return nil, err
	}
	pk, err := accumulator.PublicKeyFromBytes(reply.PublicKey)
	if err != nil {
		return nil, err
	}
	v, err := accumulator.ValueFromBytes(reply.Value)
	if err != nil {
		return nil, err
	}
	return &allosaur.PublicData{Key: pk, Value: v}, nil
}

// Deal asks the authority to share its trapdoor and sets up every replica
// with its share. The i-th replica gets share i.
func (c *Client) Deal(authority *network.ServerIdentity, replicas []*network.ServerIdentity, t, maxBatch int) error {
	var status StatusReply
	if err := c.SendProtobuf(authority, &StatusRequest{}, &status); err != nil {
		return err
	}
	var dealing DealSharesReply
	err := c.SendProtobuf(authority, &DealShares{Threshold: t, Total: len(replicas), MaxBatch: maxBatch}, &dealing)
	if err != nil {
		return err
	}
	for i, si := range replicas {
		var reply SetupReplicaReply
		err := c.SendProtobuf(si, &SetupReplica{
			PublicKey: status.PublicKey,
			Share:     dealing.Shares[i],
			Commits:   dealing.Commits,
			Epoch:     dealing.Epoch,
			Value:     dealing.Value,
		}, &reply)
		if err != nil {
			return err
		}
		log.Lvlf2("replica %s holds share %d", si, reply.Index)
	}
	return nil
}

func encodeElements(list []accumulator.Element) ([][]byte, error) {
	var res [][]byte
	for _, e := range list {
		buf, err := e.MarshalBinary()
		if err != nil {
			return nil, err
		}
		res = append(res, buf)
	}
	return res, nil
}

func decodeChange(reply *ChangeReply) (*allosaur.EpochRecord, error) {
	if len(reply.Record) == 0 {
		return nil, nil
	}
	r := &allosaur.EpochRecord{}
	if err := r.UnmarshalBinary(reply.Record); err != nil {
		return nil, err
	}
	return r, nil
}

// Add accumulates the elements in one epoch and returns its record, or nil
// if nothing changed. Admin only.
func (c *Client) Add(si *network.ServerIdentity, elements ...accumulator.Element) (*allosaur.EpochRecord, error) {
	list, err := encodeElements(elements)
	if err != nil {
		return nil, err
	}
	var reply ChangeReply
	if err := c.SendProtobuf(si, &AddRequest{Elements: list}, &reply); err != nil {
		return nil, err
	}
	return decodeChange(&reply)
}

// Delete removes the elements in one epoch and returns its record. Admin
// only.
func (c *Client) Delete(si *network.ServerIdentity, elements ...accumulator.Element) (*allosaur.EpochRecord, error) {
	list, err := encodeElements(elements)
	if err != nil {
		return nil, err
	}
	var reply ChangeReply
	if err := c.SendProtobuf(si, &DeleteRequest{Elements: list}, &reply); err != nil {
		return nil, err
	}
	return decodeChange(&reply)
}

// Records returns the records of the epochs in (from, to] known to si.
func (c *Client) Records(si *network.ServerIdentity, from, to uint64) ([]*allosaur.EpochRecord, error) {
	var reply RecordsReply
	if err := c.SendProtobuf(si, &RecordsRequest{From: from, To: to}, &reply); err != nil {
		return nil, err
	}
	return decodeRecords(reply.Records)
}

// Sync brings the replica up to the epoch of the authority and returns
// that epoch. Admin only for the replica.
func (c *Client) Sync(authority, replica *network.ServerIdentity) (uint64, error) {
	from, err := c.Status(replica)
	if err != nil {
		return 0, err
	}
	to, err := c.Status(authority)
	if err != nil {
		return 0, err
	}
	if from.Epoch == to.Epoch {
		return from.Epoch, nil
	}
	var records RecordsReply
	if err := c.SendProtobuf(authority, &RecordsRequest{From: from.Epoch, To: to.Epoch}, &records); err != nil {
		return 0, err
	}
	var reply SyncReply
	if err := c.SendProtobuf(replica, &SyncRequest{Records: records.Records}, &reply); err != nil {
		return 0, err
	}
	return reply.Epoch, nil
}

// Status returns the role and state of si.
func (c *Client) Status(si *network.ServerIdentity) (*StatusReply, error) {
	var reply StatusReply
	if err := c.SendProtobuf(si, &StatusRequest{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Public returns the current public data of the accumulator followed by si.
func (c *Client) Public(si *network.ServerIdentity) (*allosaur.PublicData, error) {
	status, err := c.Status(si)
	if err != nil {
		return nil, err
	}
	if status.Role == "" {
		return nil, errors.New("node follows no accumulator")
	}
	pk, err := accumulator.PublicKeyFromBytes(status.PublicKey)
	if err != nil {
		return nil, err
	}
	v, err := accumulator.ValueFromBytes(status.Value)
	if err != nil {
		return nil, err
	}
	return &allosaur.PublicData{Key: pk, Value: v, Epoch: status.Epoch}, nil
}

// Witness asks the authority for the witness of y.
func (c *Client) Witness(si *network.ServerIdentity, y accumulator.Element) (*allosaur.Witness, *allosaur.PublicData, error) {
	buf, err := y.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	var reply WitnessReply
	if err := c.SendProtobuf(si, &WitnessRequest{Element: buf}, &reply); err != nil {
		return nil, nil, err
	}
	w := &allosaur.Witness{}
	if err := w.UnmarshalBinary(reply.Witness); err != nil {
		return nil, nil, err
	}
	pk, err := accumulator.PublicKeyFromBytes(reply.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	v, err := accumulator.ValueFromBytes(reply.Value)
	if err != nil {
		return nil, nil, err
	}
	return w, &allosaur.PublicData{Key: pk, Value: v, Epoch: w.Epoch}, nil
}

// Update asks the authority for the update of [from, to].
func (c *Client) Update(si *network.ServerIdentity, from, to uint64) (*allosaur.UpdatePolynomial, error) {
	var reply UpdateReply
	if err := c.SendProtobuf(si, &UpdateRequest{From: from, To: to}, &reply); err != nil {
		return nil, err
	}
	u := &allosaur.UpdatePolynomial{}
	if err := u.UnmarshalBinary(reply.Update); err != nil {
		return nil, err
	}
	return u, nil
}

// Contribute asks a replica for its share of the update of [from, to].
func (c *Client) Contribute(si *network.ServerIdentity, from, to uint64) (*allosaur.Contribution, error) {
	var reply ContributeReply
	if err := c.SendProtobuf(si, &ContributeRequest{From: from, To: to}, &reply); err != nil {
		return nil, err
	}
	res := &allosaur.Contribution{}
	if err := res.UnmarshalBinary(reply.Contribution); err != nil {
		return nil, err
	}
	return res, nil
}

// SplitUpdate sends a split request to si.
func (c *Client) SplitUpdate(si *network.ServerIdentity, req *allosaur.SplitRequest) (*allosaur.SplitResponse, error) {
	buf, err := req.MarshalBinary()
	if err != nil {
		return nil, err
	}
	var reply SplitUpdateReply
	if err := c.SendProtobuf(si, &SplitUpdateRequest{Request: buf}, &reply); err != nil {
		return nil, err
	}
	res := &allosaur.SplitResponse{}
	if err := res.UnmarshalBinary(reply.Response); err != nil {
		return nil, err
	}
	return res, nil
}

// Remote is a node seen through a client. It implements the interfaces
// the users and the coordinator need from a node.
type Remote struct {
	client *Client
	si     *network.ServerIdentity
}

// Remote returns si as seen through c.
func (c *Client) Remote(si *network.ServerIdentity) *Remote {
	return &Remote{client: c, si: si}
}

// Source returns si as a contribution source for a coordinator.
func (c *Client) Source(si *network.ServerIdentity) allosaur.ContributionSource {
	return c.Remote(si)
}

// Responder returns si as a responder of split updates.
func (c *Client) Responder(si *network.ServerIdentity) allosaur.SplitResponder {
	return c.Remote(si)
}

// call runs f unless ctx is done first. The request itself cannot be
// cancelled and finishes in the background.
func call(ctx context.Context, f func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type result struct {
		v   interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := f()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Contribute implements allosaur.ContributionSource.
func (r *Remote) Contribute(ctx context.Context, from, to uint64) (*allosaur.Contribution, error) {
	v, err := call(ctx, func() (interface{}, error) {
		return r.client.Contribute(r.si, from, to)
	})
	if err != nil {
		return nil, err
	}
	return v.(*allosaur.Contribution), nil
}

// SplitUpdate implements allosaur.SplitResponder.
func (r *Remote) SplitUpdate(ctx context.Context, req *allosaur.SplitRequest) (*allosaur.SplitResponse, error) {
	v, err := call(ctx, func() (interface{}, error) {
		return r.client.SplitUpdate(r.si, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*allosaur.SplitResponse), nil
}

// Update implements allosaur.UpdateProvider.
func (r *Remote) Update(ctx context.Context, from, to uint64) (*allosaur.UpdatePolynomial, error) {
	v, err := call(ctx, func() (interface{}, error) {
		return r.client.Update(r.si, from, to)
	})
	if err != nil {
		return nil, err
	}
	return v.(*allosaur.UpdatePolynomial), nil
}

// Witness implements allosaur.WitnessIssuer.
func (r *Remote) Witness(ctx context.Context, y accumulator.Element) (*allosaur.Witness, *allosaur.PublicData, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return r.client.Witness(r.si, y)
}
