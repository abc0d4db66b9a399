package accumulator

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/util/random"
)

func randomElements(n int) []Element {
	res := make([]Element, n)
	for i := range res {
		res[i] = RandomElement(random.New())
	}
	return res
}

func TestRootPolynomial(t *testing.T) {
	require.Equal(t, 0, RootPolynomial(nil).Degree())

	roots := randomElements(5)
	p := RootPolynomial(roots)
	require.Equal(t, 5, p.Degree())

	x := newScalar().Pick(random.New())
	exp := newScalar().One()
	for _, r := range roots {
		exp = newScalar().Mul(exp, newScalar().Sub(r.s, x))
	}
	require.True(t, exp.Equal(p.Eval(x)))

	for _, r := range roots {
		require.True(t, p.Eval(r.s).Equal(newScalar().Zero()))
	}
}

// The quotient must satisfy p(x) = q(x)(x + alpha) + p(-alpha).
func TestPolynomial_Quotient(t *testing.T) {
	sk := NewSecretKey(random.New())
	for _, n := range []int{1, 2, 7} {
		p := RootPolynomial(randomElements(n))
		q := p.Quotient(sk.Powers(n))
		require.Equal(t, n-1, q.Degree())

		x := newScalar().Pick(random.New())
		rem := p.Eval(newScalar().Neg(sk.alpha))
		rhs := newScalar().Add(newScalar().Mul(q.Eval(x), newScalar().Add(x, sk.alpha)), rem)
		require.True(t, p.Eval(x).Equal(rhs))
	}
	require.Nil(t, RootPolynomial(nil).Quotient(nil))
}

func TestPolynomial_EvalShares(t *testing.T) {
	p := RootPolynomial(randomElements(4))
	x := newScalar().Pick(random.New())
	// With the real powers, the share evaluation is a plain evaluation.
	powers := ScalarPowers(x, 5)[1:]
	require.True(t, p.Eval(x).Equal(p.EvalShares(powers)))

	pp := PointPolynomial{newG1().Pick(random.New()), newG1().Pick(random.New())}
	require.True(t, pp.Eval(x).Equal(pp.EvalShares(powers)))
}

func TestPolynomial_Mul(t *testing.T) {
	a := randomElements(3)
	b := randomElements(2)
	prod := RootPolynomial(a).Mul(RootPolynomial(b))
	all := RootPolynomial(append(append([]Element{}, a...), b...))
	require.Equal(t, len(all), len(prod))
	for k := range all {
		require.True(t, all[k].Equal(prod[k]))
	}
}

func TestPointPolynomial(t *testing.T) {
	s := Polynomial{newScalar().SetInt64(2), newScalar().SetInt64(3)}
	p := PointPolynomial{newG1().Pick(random.New()), newG1().Null()}
	x := newScalar().Pick(random.New())

	prod := p.MulScalar(s)
	require.Len(t, prod, 3)
	exp := newG1().Mul(s.Eval(x), p.Eval(x))
	require.True(t, exp.Equal(prod.Eval(x)))

	require.Len(t, p.Trim(), 1)
	require.True(t, p.Trim().Equal(p.Add(PointPolynomial{})[:1]))
	require.Len(t, PointPolynomial{newG1().Null()}.Trim(), 0)

	sum := p.Add(prod)
	require.True(t, sum.Eval(x).Equal(newG1().Add(p.Eval(x), prod.Eval(x))))
}

func TestOmega(t *testing.T) {
	v0 := newG1().Pick(random.New())
	v1 := newG1().Pick(random.New())
	qa := Polynomial{newScalar().One()}
	qd := Polynomial{newScalar().One(), newScalar().One()}
	o := Omega(v0, v1, qa, qd)
	require.Len(t, o, 2)
	require.True(t, o[0].Equal(newG1().Sub(v1, v0)))
	require.True(t, o[1].Equal(v1))
}

func scalarOf(e Element) kyber.Scalar {
	return e.Scalar()
}
