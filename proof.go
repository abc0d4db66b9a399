package allosaur

import (
	"crypto/cipher"
	"encoding/binary"
	"hash"

	lru "github.com/hashicorp/golang-lru"
	"go.dedis.ch/allosaur/accumulator"
	"go.dedis.ch/kyber/v3"
	"golang.org/x/xerrors"
)

const proofDomain = "allosaur-membership-proof"

// Proof is a zero-knowledge proof of knowledge of an element y and a
// witness C for the accumulated value. The witness is hidden as
// U = C + r*Z and r is committed as R = r*Y + rho*Z. The responses prove
// knowledge of y, r, rho, delta = r*y and tau = rho*y such that
//
//	R = r*Y + rho*Z
//	0 = delta*Y + tau*Z - y*R
//	e(delta*Z - y*U, P2) + e(r*Z, Q) = e(U, Q) - e(V, P2)
//
// where the last equation, in additive notation in GT, is the witness
// relation e(C, Q + y*P2) = e(V, P2) written with U.
type Proof struct {
	U         kyber.Point
	R         kyber.Point
	Challenge kyber.Scalar
	SY        kyber.Scalar
	SR        kyber.Scalar
	SRho      kyber.Scalar
	SDelta    kyber.Scalar
	STau      kyber.Scalar
}

// Prove creates a proof for the witness. The proof only verifies if the
// witness is valid for the public data.
func Prove(w *Witness, pub *PublicData, nonce []byte, rand cipher.Stream) (*Proof, error) {
	if w == nil || w.C == nil {
		return nil, ErrNoWitness
	}
	if pub == nil || pub.Key == nil || pub.Value == nil {
		return nil, xerrors.New("missing public data")
	}
	params := pub.params()
	g1 := Suite.G1()
	gt := Suite.GT()
	pick := func() kyber.Scalar { return g1.Scalar().Pick(rand) }

	y := w.Y.Scalar()
	r, rho := pick(), pick()
	delta := g1.Scalar().Mul(r, y)
	tau := g1.Scalar().Mul(rho, y)

	u := g1.Point().Add(w.C.Point(), g1.Point().Mul(r, params.Z))
	rc := g1.Point().Add(g1.Point().Mul(r, params.Y), g1.Point().Mul(rho, params.Z))

	ky, kr, krho, kdelta, ktau := pick(), pick(), pick(), pick(), pick()
	t1 := g1.Point().Add(g1.Point().Mul(kr, params.Y), g1.Point().Mul(krho, params.Z))
	t2 := g1.Point().Add(g1.Point().Mul(kdelta, params.Y), g1.Point().Mul(ktau, params.Z))
	t2 = g1.Point().Sub(t2, g1.Point().Mul(ky, rc))
	left := g1.Point().Sub(g1.Point().Mul(kdelta, params.Z), g1.Point().Mul(ky, u))
	pi := gt.Point().Add(accumulator.Pair(left, accumulator.P2()),
		accumulator.Pair(g1.Point().Mul(kr, params.Z), pub.Key.Point()))

	c := challenge(params, pub, u, rc, t1, t2, pi, nonce)
	resp := func(k, x kyber.Scalar) kyber.Scalar {
		return g1.Scalar().Add(k, g1.Scalar().Mul(c, x))
	}
	return &Proof{
		U:         u,
		R:         rc,
		Challenge: c,
		SY:        resp(ky, y),
		SR:        resp(kr, r),
		SRho:      resp(krho, rho),
		SDelta:    resp(kdelta, delta),
		STau:      resp(ktau, tau),
	}, nil
}

// VerifyProof checks the proof against the public data and the nonce
// given to the prover.
func VerifyProof(p *Proof, pub *PublicData, nonce []byte) bool {
	if p == nil || pub == nil || pub.Key == nil || pub.Value == nil {
		return false
	}
	for _, s := range []kyber.Scalar{p.Challenge, p.SY, p.SR, p.SRho, p.SDelta, p.STau} {
		if s == nil {
			return false
		}
	}
	if p.U == nil || p.R == nil {
		return false
	}
	params := pub.params()
	g1 := Suite.G1()
	gt := Suite.GT()
	c := p.Challenge

	t1 := g1.Point().Add(g1.Point().Mul(p.SR, params.Y), g1.Point().Mul(p.SRho, params.Z))
	t1 = g1.Point().Sub(t1, g1.Point().Mul(c, p.R))
	t2 := g1.Point().Add(g1.Point().Mul(p.SDelta, params.Y), g1.Point().Mul(p.STau, params.Z))
	t2 = g1.Point().Sub(t2, g1.Point().Mul(p.SY, p.R))

	left := g1.Point().Sub(g1.Point().Mul(p.SDelta, params.Z), g1.Point().Mul(p.SY, p.U))
	left = g1.Point().Add(left, g1.Point().Mul(c, pub.Value.Point()))
	right := g1.Point().Sub(g1.Point().Mul(p.SR, params.Z), g1.Point().Mul(c, p.U))
	pi := gt.Point().Add(accumulator.Pair(left, accumulator.P2()),
		accumulator.Pair(right, pub.Key.Point()))

	return challenge(params, pub, p.U, p.R, t1, t2, pi, nonce).Equal(c)
}

func challenge(params *Params, pub *PublicData, u, r, t1, t2, pi kyber.Point, nonce []byte) kyber.Scalar {
	h := Suite.Hash()
	writeBytes(h, []byte(proofDomain))
	for _, p := range []kyber.Point{params.Y, params.Z, pub.Key.Point(), pub.Value.Point(), u, r, t1, t2, pi} {
		p.MarshalTo(h)
	}
	writeBytes(h, nonce)
	return Suite.G1().Scalar().SetBytes(h.Sum(nil))
}

func writeBytes(h hash.Hash, b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	h.Write(l[:])
	h.Write(b)
}

// Verifier checks proofs and refuses nonces it has already accepted, so
// that a proof cannot be replayed. It remembers the last size nonces.
type Verifier struct {
	seen *lru.Cache
}

// NewVerifier returns a verifier remembering size nonces.
func NewVerifier(size int) (*Verifier, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Verifier{seen: c}, nil
}

// Verify checks the proof and records the nonce. A nonce is accepted only
// once.
func (v *Verifier) Verify(p *Proof, pub *PublicData, nonce []byte) bool {
	key := string(nonce)
	if v.seen.Contains(key) {
		return false
	}
	if !VerifyProof(p, pub, nonce) {
		return false
	}
	found, _ := v.seen.ContainsOrAdd(key, struct{}{})
	return !found
}
