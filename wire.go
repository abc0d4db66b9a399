package allosaur

import (
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/protobuf"
	"golang.org/x/xerrors"
)

// The messages exchanged between threshold servers, responders and their
// clients are protobuf structures whose group elements are kept in their
// fixed binary layout.

type chunkEntry struct {
	From      uint64
	To        uint64
	Start     []byte
	End       []byte
	Additions [][]byte
	Deletions [][]byte
	Omega     [][]byte
}

type contributionEntry struct {
	Index  int
	From   uint64
	To     uint64
	Value  []byte
	Chunks []chunkEntry
}

type splitRequestEntry struct {
	From   uint64
	To     uint64
	Index  int
	Powers [][]byte
}

type splitChunkEntry struct {
	From      uint64
	To        uint64
	Additions []byte
	Deletions []byte
	Omega     []byte
}

type splitResponseEntry struct {
	Index  int
	From   uint64
	To     uint64
	Value  []byte
	Chunks []splitChunkEntry
	Needed int
}

type shareEntry struct {
	Index  int
	Powers [][]byte
}

func marshalElements(list []accumulator.Element) ([][]byte, error) {
	res := make([][]byte, 0, len(list))
	for _, e := range list {
		buf, err := e.MarshalBinary()
		if err != nil {
			return nil, err
		}
		res = append(res, buf)
	}
	return res, nil
}

func marshalScalars(list []kyber.Scalar) ([][]byte, error) {
	res := make([][]byte, 0, len(list))
	for _, s := range list {
		buf, err := s.MarshalBinary()
		if err != nil {
			return nil, err
		}
		res = append(res, buf)
	}
	return res, nil
}

func marshalPoints(list []kyber.Point) ([][]byte, error) {
	res := make([][]byte, 0, len(list))
	for _, p := range list {
		buf, err := p.MarshalBinary()
		if err != nil {
			return nil, err
		}
		res = append(res, buf)
	}
	return res, nil
}

func decodeScalar(buf []byte) (kyber.Scalar, error) {
	d := decoder{buf: buf}
	s := d.scalar()
	return s, d.done()
}

func decodePoint(buf []byte) (kyber.Point, error) {
	d := decoder{buf: buf}
	p := d.point()
	return p, d.done()
}

func decodeScalars(list [][]byte) ([]kyber.Scalar, error) {
	res := make([]kyber.Scalar, 0, len(list))
	for _, b := range list {
		s, err := decodeScalar(b)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func decodePoints(list [][]byte) ([]kyber.Point, error) {
	res := make([]kyber.Point, 0, len(list))
	for _, b := range list {
		p, err := decodePoint(b)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func decodeEntry(buf []byte, entry interface{}) error {
	if err := protobuf.Decode(buf, entry); err != nil {
		return xerrors.Errorf("%v: %w", err, ErrMalformedEncoding)
	}
	return nil
}

// MarshalBinary encodes the contribution.
func (c *Contribution) MarshalBinary() ([]byte, error) {
	entry := contributionEntry{Index: c.Index, From: c.From, To: c.To}
	var err error
	if entry.Value, err = c.Value.MarshalBinary(); err != nil {
		return nil, err
	}
	for _, ch := range c.Chunks {
		ce := chunkEntry{From: ch.From, To: ch.To}
		if ce.Start, err = ch.Start.MarshalBinary(); err != nil {
			return nil, err
		}
		if ce.End, err = ch.End.MarshalBinary(); err != nil {
			return nil, err
		}
		if ce.Additions, err = marshalElements(ch.Additions); err != nil {
			return nil, err
		}
		if ce.Deletions, err = marshalElements(ch.Deletions); err != nil {
			return nil, err
		}
		if ce.Omega, err = marshalPoints(ch.Omega); err != nil {
			return nil, err
		}
		entry.Chunks = append(entry.Chunks, ce)
	}
	return protobuf.Encode(&entry)
}

// UnmarshalBinary decodes a contribution written by MarshalBinary.
func (c *Contribution) UnmarshalBinary(buf []byte) error {
	var entry contributionEntry
	if err := decodeEntry(buf, &entry); err != nil {
		return err
	}
	res := Contribution{Index: entry.Index, From: entry.From, To: entry.To}
	var err error
	if res.Value, err = accumulator.ValueFromBytes(entry.Value); err != nil {
		return err
	}
	for _, ce := range entry.Chunks {
		ch := &ChunkShare{From: ce.From, To: ce.To}
		if ch.Start, err = accumulator.ValueFromBytes(ce.Start); err != nil {
			return err
		}
		if ch.End, err = accumulator.ValueFromBytes(ce.End); err != nil {
			return err
		}
		if ch.Additions, err = decodeElements(ce.Additions); err != nil {
			return err
		}
		if ch.Deletions, err = decodeElements(ce.Deletions); err != nil {
			return err
		}
		if ch.Omega, err = decodePoints(ce.Omega); err != nil {
			return err
		}
		res.Chunks = append(res.Chunks, ch)
	}
	*c = res
	return nil
}

// MarshalBinary encodes the request. It carries shares of y and must only
// travel over a confidential channel.
func (r *SplitRequest) MarshalBinary() ([]byte, error) {
	powers, err := marshalScalars(r.Powers)
	if err != nil {
		return nil, err
	}
	return protobuf.Encode(&splitRequestEntry{From: r.From, To: r.To, Index: r.Index, Powers: powers})
}

// UnmarshalBinary decodes a request written by MarshalBinary.
func (r *SplitRequest) UnmarshalBinary(buf []byte) error {
	var entry splitRequestEntry
	if err := decodeEntry(buf, &entry); err != nil {
		return err
	}
	powers, err := decodeScalars(entry.Powers)
	if err != nil {
		return err
	}
	*r = SplitRequest{From: entry.From, To: entry.To, Index: entry.Index, Powers: powers}
	return nil
}

// MarshalBinary encodes the response.
func (r *SplitResponse) MarshalBinary() ([]byte, error) {
	entry := splitResponseEntry{Index: r.Index, From: r.From, To: r.To, Needed: r.Needed}
	var err error
	if entry.Value, err = r.Value.MarshalBinary(); err != nil {
		return nil, err
	}
	for _, ch := range r.Chunks {
		ce := splitChunkEntry{From: ch.From, To: ch.To}
		if ce.Additions, err = ch.Additions.MarshalBinary(); err != nil {
			return nil, err
		}
		if ce.Deletions, err = ch.Deletions.MarshalBinary(); err != nil {
			return nil, err
		}
		if ce.Omega, err = ch.Omega.MarshalBinary(); err != nil {
			return nil, err
		}
		entry.Chunks = append(entry.Chunks, ce)
	}
	return protobuf.Encode(&entry)
}

// UnmarshalBinary decodes a response written by MarshalBinary.
func (r *SplitResponse) UnmarshalBinary(buf []byte) error {
	var entry splitResponseEntry
	if err := decodeEntry(buf, &entry); err != nil {
		return err
	}
	res := SplitResponse{Index: entry.Index, From: entry.From, To: entry.To, Needed: entry.Needed}
	var err error
	if res.Value, err = accumulator.ValueFromBytes(entry.Value); err != nil {
		return err
	}
	for _, ce := range entry.Chunks {
		ch := &SplitChunk{From: ce.From, To: ce.To}
		if ch.Additions, err = decodeScalar(ce.Additions); err != nil {
			return err
		}
		if ch.Deletions, err = decodeScalar(ce.Deletions); err != nil {
			return err
		}
		if ch.Omega, err = decodePoint(ce.Omega); err != nil {
			return err
		}
		res.Chunks = append(res.Chunks, ch)
	}
	*r = res
	return nil
}

// MarshalBinary encodes the share. The result is secret.
func (ts *TrapdoorShare) MarshalBinary() ([]byte, error) {
	powers, err := marshalScalars(ts.Powers)
	if err != nil {
		return nil, err
	}
	return protobuf.Encode(&shareEntry{Index: ts.Index, Powers: powers})
}

// UnmarshalBinary decodes a share written by MarshalBinary.
func (ts *TrapdoorShare) UnmarshalBinary(buf []byte) error {
	var entry shareEntry
	if err := decodeEntry(buf, &entry); err != nil {
		return err
	}
	powers, err := decodeScalars(entry.Powers)
	if err != nil {
		return err
	}
	if len(powers) == 0 {
		return xerrors.Errorf("share without powers: %w", ErrMalformedEncoding)
	}
	*ts = TrapdoorShare{Index: entry.Index, Powers: powers}
	return nil
}
