package allosaur

import (
	"bytes"
	"encoding/binary"

	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3"
	"golang.org/x/xerrors"
)

// Sizes of the fixed layouts.
var (
	WitnessSize = accumulator.ScalarSize + accumulator.G1Size + 8
	ProofSize   = 2*accumulator.G1Size + 6*accumulator.ScalarSize
)

// maxListLength bounds the length prefixes of decoded lists.
const maxListLength = 1 << 20

type encoder struct {
	bytes.Buffer
	err error
}

func (e *encoder) uint64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	e.Write(buf[:])
}

func (e *encoder) uint32(v int) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	e.Write(buf[:])
}

func (e *encoder) marshal(m interface{ MarshalBinary() ([]byte, error) }) {
	if e.err != nil {
		return
	}
	buf, err := m.MarshalBinary()
	if err != nil {
		e.err = err
		return
	}
	e.Write(buf)
}

func (e *encoder) result() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.Bytes(), nil
}

type decoder struct {
	buf []byte
	err error
}

func (d *decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.err = xerrors.Errorf("need %d bytes, have %d: %w", n, len(d.buf), ErrMalformedEncoding)
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) uint64() uint64 {
	b := d.next(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) length() int {
	b := d.next(4)
	if b == nil {
		return 0
	}
	l := binary.BigEndian.Uint32(b)
	if l > maxListLength {
		d.err = xerrors.Errorf("list of %d entries: %w", l, ErrMalformedEncoding)
		return 0
	}
	return int(l)
}

func (d *decoder) element() accumulator.Element {
	b := d.next(accumulator.ScalarSize)
	if b == nil {
		return accumulator.Element{}
	}
	e, err := accumulator.ElementFromBytes(b)
	if err != nil {
		d.err = err
	}
	return e
}

func (d *decoder) scalar() kyber.Scalar {
	return d.element().Scalar()
}

func (d *decoder) point() kyber.Point {
	b := d.next(accumulator.G1Size)
	if b == nil {
		return nil
	}
	v, err := accumulator.ValueFromBytes(b)
	if err != nil {
		d.err = err
		return nil
	}
	return v.Point()
}

func (d *decoder) value() *accumulator.Value {
	p := d.point()
	if p == nil {
		return nil
	}
	return accumulator.ValueFromPoint(p)
}

func (d *decoder) elements() []accumulator.Element {
	n := d.length()
	if n*accumulator.ScalarSize > len(d.buf) {
		d.err = xerrors.Errorf("list too long: %w", ErrMalformedEncoding)
		return nil
	}
	res := make([]accumulator.Element, n)
	for i := range res {
		res[i] = d.element()
	}
	return res
}

func (d *decoder) done() error {
	if d.err == nil && len(d.buf) != 0 {
		return xerrors.Errorf("%d trailing bytes: %w", len(d.buf), ErrMalformedEncoding)
	}
	return d.err
}

// MarshalBinary encodes the witness as y || C || epoch.
func (w *Witness) MarshalBinary() ([]byte, error) {
	var e encoder
	e.marshal(w.Y)
	e.marshal(w.C)
	e.uint64(w.Epoch)
	return e.result()
}

// UnmarshalBinary decodes a witness written by MarshalBinary.
func (w *Witness) UnmarshalBinary(buf []byte) error {
	if len(buf) != WitnessSize {
		return xerrors.Errorf("witness of %d bytes: %w", len(buf), ErrMalformedEncoding)
	}
	d := decoder{buf: buf}
	y := d.element()
	c := d.point()
	epoch := d.uint64()
	if err := d.done(); err != nil {
		return err
	}
	w.Y, w.C, w.Epoch = y, accumulator.WitnessFromPoint(c), epoch
	return nil
}

// MarshalBinary encodes the proof as U || R || c || responses.
func (p *Proof) MarshalBinary() ([]byte, error) {
	var e encoder
	for _, m := range []interface{ MarshalBinary() ([]byte, error) }{
		p.U, p.R, p.Challenge, p.SY, p.SR, p.SRho, p.SDelta, p.STau} {
		e.marshal(m)
	}
	return e.result()
}

// UnmarshalBinary decodes a proof written by MarshalBinary.
func (p *Proof) UnmarshalBinary(buf []byte) error {
	if len(buf) != ProofSize {
		return xerrors.Errorf("proof of %d bytes: %w", len(buf), ErrMalformedEncoding)
	}
	d := decoder{buf: buf}
	res := Proof{U: d.point(), R: d.point()}
	res.Challenge = d.scalar()
	res.SY = d.scalar()
	res.SR = d.scalar()
	res.SRho = d.scalar()
	res.SDelta = d.scalar()
	res.STau = d.scalar()
	if err := d.done(); err != nil {
		return err
	}
	*p = res
	return nil
}

// MarshalBinary encodes the update as from || to || V || additions ||
// deletions || omega, lists being prefixed by their length.
func (u *UpdatePolynomial) MarshalBinary() ([]byte, error) {
	var e encoder
	e.uint64(u.From)
	e.uint64(u.To)
	e.marshal(u.Value)
	e.uint32(len(u.Additions))
	for _, a := range u.Additions {
		e.marshal(a)
	}
	e.uint32(len(u.Deletions))
	for _, d := range u.Deletions {
		e.marshal(d)
	}
	e.uint32(len(u.Omega))
	for _, o := range u.Omega {
		e.marshal(o)
	}
	return e.result()
}

// UnmarshalBinary decodes an update written by MarshalBinary.
func (u *UpdatePolynomial) UnmarshalBinary(buf []byte) error {
	d := decoder{buf: buf}
	res := UpdatePolynomial{From: d.uint64(), To: d.uint64()}
	res.Value = d.value()
	res.Additions = d.elements()
	res.Deletions = d.elements()
	n := d.length()
	if n*accumulator.G1Size > len(d.buf) {
		return xerrors.Errorf("omega too long: %w", ErrMalformedEncoding)
	}
	for i := 0; i < n; i++ {
		res.Omega = append(res.Omega, d.point())
	}
	if err := d.done(); err != nil {
		return err
	}
	if res.From > res.To {
		return xerrors.Errorf("update from %d to %d: %w", res.From, res.To, ErrMalformedEncoding)
	}
	*u = res
	return nil
}
