package accumulator

import (
	"go.dedis.ch/kyber/v3"
)

// Polynomial holds scalar coefficients, lowest degree first.
type Polynomial []kyber.Scalar

// RootPolynomial returns prod(r - x) over the roots. No roots gives the
// constant polynomial 1.
func RootPolynomial(roots []Element) Polynomial {
	p := Polynomial{newScalar().One()}
	for _, r := range roots {
		next := make(Polynomial, len(p)+1)
		for k := range next {
			c := newScalar().Zero()
			if k < len(p) {
				c = newScalar().Mul(r.s, p[k])
			}
			if k > 0 {
				c = newScalar().Sub(c, p[k-1])
			}
			next[k] = c
		}
		p = next
	}
	return p
}

// Degree is len(p)-1, or -1 for the empty polynomial.
func (p Polynomial) Degree() int {
	return len(p) - 1
}

// Eval evaluates p at x with Horner's rule.
func (p Polynomial) Eval(x kyber.Scalar) kyber.Scalar {
	acc := newScalar().Zero()
	for k := len(p) - 1; k >= 0; k-- {
		acc = newScalar().Mul(acc, x)
		acc = newScalar().Add(acc, p[k])
	}
	return acc
}

// EvalShares evaluates p on a share of x given the shares of x^1..x^n in
// powers. The constant coefficient is kept as is, so that the results of
// the same polynomial on shares of one secret interpolate to p(x).
func (p Polynomial) EvalShares(powers []kyber.Scalar) kyber.Scalar {
	if len(p) == 0 {
		return newScalar().Zero()
	}
	acc := p[0].Clone()
	for k := 1; k < len(p); k++ {
		acc = newScalar().Add(acc, newScalar().Mul(p[k], powers[k-1]))
	}
	return acc
}

// Mul returns p*q.
func (p Polynomial) Mul(q Polynomial) Polynomial {
	if len(p) == 0 || len(q) == 0 {
		return nil
	}
	res := make(Polynomial, len(p)+len(q)-1)
	for k := range res {
		res[k] = newScalar().Zero()
	}
	for i := range p {
		for j := range q {
			res[i+j] = newScalar().Add(res[i+j], newScalar().Mul(p[i], q[j]))
		}
	}
	return res
}

// Quotient returns the quotient of p divided by (x + alpha), dropping the
// remainder. powers[m] must hold alpha^m, or a share of it, for m up to
// deg(p)-1, with powers[0] equal to one. Every coefficient of the quotient
// is linear in the powers, so shares of the powers give shares of the
// quotient.
func (p Polynomial) Quotient(powers []kyber.Scalar) Polynomial {
	n := p.Degree()
	if n <= 0 {
		return nil
	}
	q := make(Polynomial, n)
	for k := 0; k < n; k++ {
		acc := newScalar().Zero()
		for m := 0; m < n-k; m++ {
			t := newScalar().Mul(powers[m], p[k+1+m])
			if m%2 == 1 {
				acc = newScalar().Sub(acc, t)
			} else {
				acc = newScalar().Add(acc, t)
			}
		}
		q[k] = acc
	}
	return q
}

// PointPolynomial holds G1 coefficients, lowest degree first.
type PointPolynomial []kyber.Point

// Omega returns -v0*qa + v1*qd.
func Omega(v0, v1 kyber.Point, qa, qd Polynomial) PointPolynomial {
	n := len(qa)
	if len(qd) > n {
		n = len(qd)
	}
	res := make(PointPolynomial, n)
	for k := range res {
		c := newG1().Null()
		if k < len(qa) {
			c = newG1().Sub(c, newG1().Mul(qa[k], v0))
		}
		if k < len(qd) {
			c = newG1().Add(c, newG1().Mul(qd[k], v1))
		}
		res[k] = c
	}
	return res
}

// Eval evaluates p at x in the exponent with Horner's rule.
func (p PointPolynomial) Eval(x kyber.Scalar) kyber.Point {
	acc := newG1().Null()
	for k := len(p) - 1; k >= 0; k-- {
		acc = newG1().Mul(x, acc)
		acc = newG1().Add(acc, p[k])
	}
	return acc
}

// EvalShares is the point version of Polynomial.EvalShares.
func (p PointPolynomial) EvalShares(powers []kyber.Scalar) kyber.Point {
	if len(p) == 0 {
		return newG1().Null()
	}
	acc := p[0].Clone()
	for k := 1; k < len(p); k++ {
		acc = newG1().Add(acc, newG1().Mul(powers[k-1], p[k]))
	}
	return acc
}

// Add returns p+q.
func (p PointPolynomial) Add(q PointPolynomial) PointPolynomial {
	n := len(p)
	if len(q) > n {
		n = len(q)
	}
	res := make(PointPolynomial, n)
	for k := range res {
		c := newG1().Null()
		if k < len(p) {
			c = newG1().Add(c, p[k])
		}
		if k < len(q) {
			c = newG1().Add(c, q[k])
		}
		res[k] = c
	}
	return res
}

// MulScalar returns the product of p with the scalar polynomial s.
func (p PointPolynomial) MulScalar(s Polynomial) PointPolynomial {
	if len(p) == 0 || len(s) == 0 {
		return nil
	}
	res := make(PointPolynomial, len(p)+len(s)-1)
	for k := range res {
		res[k] = newG1().Null()
	}
	for i := range p {
		for j := range s {
			res[i+j] = newG1().Add(res[i+j], newG1().Mul(s[j], p[i]))
		}
	}
	return res
}

// Trim drops the trailing identity coefficients.
func (p PointPolynomial) Trim() PointPolynomial {
	null := newG1().Null()
	n := len(p)
	for n > 0 && p[n-1].Equal(null) {
		n--
	}
	return p[:n]
}

// Equal compares the coefficients of two polynomials.
func (p PointPolynomial) Equal(q PointPolynomial) bool {
	if len(p) != len(q) {
		return false
	}
	for k := range p {
		if !p[k].Equal(q[k]) {
			return false
		}
	}
	return true
}
