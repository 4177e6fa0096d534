package oaccrefac

import (
	"math/big"
	"strings"
)

// -- Fourier-Motzkin Elimination --
//
// A system is a list of rows, each meaning "row <= 0" over integer variables.
// Elimination is exact over the rationals; rows are tightened after every
// step by dividing through by the coefficient gcd and flooring the bound, which
// only ever removes points that are not integral.

// maxSystemRows caps the growth of a system during elimination. Past it the
// system is assumed feasible.
const maxSystemRows = 400

type system []*AffineExpr

// eq appends the two rows that encode e == 0.
func (s system) eq(e *AffineExpr) system {
	return append(s, e, e.Scale(big.NewInt(-1)))
}

// le appends e <= 0.
func (s system) le(e *AffineExpr) system { return append(s, e) }

func (s system) vars() []string {
	seen := make(map[string]bool)
	for _, r := range s {
		for v := range r.Coeffs {
			seen[v] = true
		}
	}
	return sortedKeys(seen)
}

// tighten normalizes every row and drops duplicates, keeping the tightest
// constant per left-hand side. It reports false when a row is contradictory.
func (s system) tighten() (system, bool) {
	best := make(map[string]*AffineExpr)
	var keys []string
	for _, r := range s {
		if r.IsConst() {
			if r.Const.Sign() > 0 {
				return nil, false
			}
			continue
		}
		r = normalizeRow(r)
		k := rowKey(r)
		if cur, ok := best[k]; ok {
			if r.Const.Cmp(cur.Const) > 0 {
				best[k] = r
			}
			continue
		}
		best[k] = r
		keys = append(keys, k)
	}
	out := make(system, 0, len(keys))
	for _, k := range keys {
		out = append(out, best[k])
	}
	return out, true
}

// normalizeRow divides sum(c_i x_i) + c0 <= 0 by g = gcd(c_i), giving
// sum(c_i/g x_i) + ceil(c0/g) <= 0.
func normalizeRow(r *AffineExpr) *AffineExpr {
	g := new(big.Int)
	for _, c := range r.Coeffs {
		g.GCD(nil, nil, g, new(big.Int).Abs(c))
	}
	if g.Cmp(big.NewInt(1)) <= 0 {
		return r
	}
	out := &AffineExpr{Coeffs: make(map[string]*big.Int, len(r.Coeffs)), Const: ceilDiv(r.Const, g)}
	for v, c := range r.Coeffs {
		out.Coeffs[v] = new(big.Int).Quo(c, g)
	}
	return out
}

func rowKey(r *AffineExpr) string {
	var b strings.Builder
	for _, v := range r.Vars() {
		b.WriteString(v)
		b.WriteByte(':')
		b.WriteString(r.Coeffs[v].String())
		b.WriteByte(' ')
	}
	return b.String()
}

// ceilDiv returns ceil(a/b) for b > 0.
func ceilDiv(a, b *big.Int) *big.Int {
	q, m := new(big.Int).DivMod(a, b, new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// eliminate projects x out of the system.
func (s system) eliminate(x string) system {
	var pos, neg, out system
	for _, r := range s {
		switch r.Coeff(x).Sign() {
		case 1:
			pos = append(pos, r)
		case -1:
			neg = append(neg, r)
		default:
			out = append(out, r)
		}
	}
	for _, p := range pos {
		pc := p.Coeff(x)
		for _, n := range neg {
			nc := new(big.Int).Neg(n.Coeff(x))
			out = append(out, p.Scale(nc).Add(n.Scale(pc)))
		}
	}
	return out
}

// pickVar chooses the variable whose elimination creates the fewest rows.
func (s system) pickVar(except string) string {
	best, bestCost := "", 0
	for _, v := range s.vars() {
		if v == except {
			continue
		}
		var p, n int
		for _, r := range s {
			switch r.Coeff(v).Sign() {
			case 1:
				p++
			case -1:
				n++
			}
		}
		if cost := p * n; best == "" || cost < bestCost {
			best, bestCost = v, cost
		}
	}
	return best
}

// project eliminates every variable except keep. It reports false when the
// system has no solution; on overflow of maxSystemRows it gives up and
// reports the system feasible with no rows.
func (s system) project(keep string) (system, bool) {
	cur, ok := s.tighten()
	if !ok {
		return nil, false
	}
	for {
		x := cur.pickVar(keep)
		if x == "" {
			return cur, true
		}
		cur, ok = cur.eliminate(x).tighten()
		if !ok {
			return nil, false
		}
		if len(cur) > maxSystemRows {
			return nil, true
		}
	}
}

// feasible reports whether the system may have an integer solution.
func (s system) feasible() bool {
	_, ok := s.project("")
	return ok
}

// bounds returns the integer range of v over the system. A nil end is
// unbounded. ok is false when the system is infeasible.
func (s system) bounds(v string) (lo, hi *big.Int, ok bool) {
	rows, ok := s.project(v)
	if !ok {
		return nil, nil, false
	}
	for _, r := range rows {
		c := r.Coeff(v)
		if c.Sign() == 0 {
			continue
		}
		// c*v + c0 <= 0  =>  v <= -c0/c (c > 0) or v >= -c0/c (c < 0)
		q := new(big.Rat).SetFrac(new(big.Int).Neg(r.Const), c)
		if c.Sign() > 0 {
			f := ratFloor(q)
			if hi == nil || f.Cmp(hi) < 0 {
				hi = f
			}
		} else {
			f := ratCeil(q)
			if lo == nil || f.Cmp(lo) > 0 {
				lo = f
			}
		}
	}
	if lo != nil && hi != nil && lo.Cmp(hi) > 0 {
		return nil, nil, false
	}
	return lo, hi, true
}

func ratFloor(q *big.Rat) *big.Int {
	return new(big.Int).Div(q.Num(), q.Denom())
}

func ratCeil(q *big.Rat) *big.Int {
	return ceilDiv(q.Num(), q.Denom())
}

// gcdTest reports whether e == 0 can have an integer solution: the gcd of the
// coefficients must divide the constant.
func gcdTest(e *AffineExpr) bool {
	g := new(big.Int)
	for _, c := range e.Coeffs {
		g.GCD(nil, nil, g, new(big.Int).Abs(c))
	}
	if g.Sign() == 0 {
		return e.Const.Sign() == 0
	}
	return new(big.Int).Rem(e.Const, g).Sign() == 0
}
