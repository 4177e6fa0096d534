package oaccrefac

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// -- Scalar Evolution: Affine Forms --

// AffineExpr is c0 + sum(coeff_k * sym_k) with integer coefficients. Symbols
// are induction variables or loop-invariant scalars.
type AffineExpr struct {
	Coeffs map[string]*big.Int // zero coefficients are never stored
	Const  *big.Int
}

func affineConst(v *big.Int) *AffineExpr {
	return &AffineExpr{Coeffs: map[string]*big.Int{}, Const: new(big.Int).Set(v)}
}

func affineInt(v int64) *AffineExpr { return affineConst(big.NewInt(v)) }

func affineSym(name string) *AffineExpr {
	return &AffineExpr{Coeffs: map[string]*big.Int{name: big.NewInt(1)}, Const: new(big.Int)}
}

// IsConst reports whether the expression has no symbolic terms.
func (a *AffineExpr) IsConst() bool { return len(a.Coeffs) == 0 }

// Coeff returns the coefficient of sym (zero when absent).
func (a *AffineExpr) Coeff(sym string) *big.Int {
	if c, ok := a.Coeffs[sym]; ok {
		return c
	}
	return new(big.Int)
}

// Vars lists symbols with non-zero coefficients in sorted order.
func (a *AffineExpr) Vars() []string {
	out := make([]string, 0, len(a.Coeffs))
	for k := range a.Coeffs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (a *AffineExpr) Add(b *AffineExpr) *AffineExpr { return a.combine(b, 1) }
func (a *AffineExpr) Sub(b *AffineExpr) *AffineExpr { return a.combine(b, -1) }

func (a *AffineExpr) combine(b *AffineExpr, sign int64) *AffineExpr {
	out := a.Scale(big.NewInt(1))
	s := big.NewInt(sign)
	for k, c := range b.Coeffs {
		t := new(big.Int).Mul(c, s)
		out.addTerm(k, t)
	}
	out.Const.Add(out.Const, new(big.Int).Mul(b.Const, s))
	return out
}

func (a *AffineExpr) addTerm(sym string, c *big.Int) {
	cur, ok := a.Coeffs[sym]
	if !ok {
		cur = new(big.Int)
	}
	cur = new(big.Int).Add(cur, c)
	if cur.Sign() == 0 {
		delete(a.Coeffs, sym)
		return
	}
	a.Coeffs[sym] = cur
}

// Scale multiplies every term by k.
func (a *AffineExpr) Scale(k *big.Int) *AffineExpr {
	out := &AffineExpr{Coeffs: make(map[string]*big.Int, len(a.Coeffs)), Const: new(big.Int).Mul(a.Const, k)}
	if k.Sign() == 0 {
		return out
	}
	for s, c := range a.Coeffs {
		out.Coeffs[s] = new(big.Int).Mul(c, k)
	}
	return out
}

// Rename maps every symbol through f.
func (a *AffineExpr) Rename(f func(string) string) *AffineExpr {
	out := &AffineExpr{Coeffs: make(map[string]*big.Int, len(a.Coeffs)), Const: new(big.Int).Set(a.Const)}
	for s, c := range a.Coeffs {
		out.addTerm(f(s), c)
	}
	return out
}

// Substitute replaces sym by repl.
func (a *AffineExpr) Substitute(sym string, repl *AffineExpr) *AffineExpr {
	c, ok := a.Coeffs[sym]
	if !ok {
		return a
	}
	out := a.Scale(big.NewInt(1))
	delete(out.Coeffs, sym)
	return out.Add(repl.Scale(c))
}

// Equal reports structural equality.
func (a *AffineExpr) Equal(b *AffineExpr) bool {
	if a.Const.Cmp(b.Const) != 0 || len(a.Coeffs) != len(b.Coeffs) {
		return false
	}
	for k, c := range a.Coeffs {
		if c.Cmp(b.Coeff(k)) != 0 {
			return false
		}
	}
	return true
}

func (a *AffineExpr) String() string {
	var b strings.Builder
	for _, v := range a.Vars() {
		c := a.Coeffs[v]
		switch {
		case b.Len() == 0 && c.Cmp(big.NewInt(-1)) == 0:
			b.WriteString("-")
		case b.Len() == 0:
			if !c.IsInt64() || c.Int64() != 1 {
				fmt.Fprintf(&b, "%s*", c)
			}
		case c.Sign() < 0:
			if abs := new(big.Int).Abs(c); abs.Cmp(big.NewInt(1)) == 0 {
				b.WriteString(" - ")
			} else {
				fmt.Fprintf(&b, " - %s*", abs)
			}
		default:
			if c.Cmp(big.NewInt(1)) == 0 {
				b.WriteString(" + ")
			} else {
				fmt.Fprintf(&b, " + %s*", c)
			}
		}
		b.WriteString(v)
	}
	switch {
	case b.Len() == 0:
		return a.Const.String()
	case a.Const.Sign() > 0:
		fmt.Fprintf(&b, " + %s", a.Const)
	case a.Const.Sign() < 0:
		fmt.Fprintf(&b, " - %s", new(big.Int).Abs(a.Const))
	}
	return b.String()
}

// Resolver maps an identifier to its affine meaning: a constant, a symbol, or
// nothing when the identifier is not analyzable.
type Resolver func(name string) (*AffineExpr, bool)

// toAffine converts x to affine form. Products of two non-constant terms,
// division involving symbols, memory reads and calls all fail.
func toAffine(x Expr, resolve Resolver) (*AffineExpr, bool) {
	switch x := x.(type) {
	case *IntLit:
		return affineInt(x.Value), true
	case *CharLit:
		return affineInt(x.Value), true
	case *Ident:
		return resolve(x.Name)
	case *ParenExpr:
		return toAffine(x.X, resolve)
	case *CastExpr:
		if x.Type.Pointers > 0 || !x.Type.Spec.IsInteger() {
			return nil, false
		}
		return toAffine(x.X, resolve)
	case *UnaryExpr:
		a, ok := toAffine(x.X, resolve)
		if !ok {
			return nil, false
		}
		switch x.Op {
		case "+":
			return a, true
		case "-":
			return a.Scale(big.NewInt(-1)), true
		}
	case *BinaryExpr:
		l, ok := toAffine(x.X, resolve)
		if !ok {
			return nil, false
		}
		r, ok := toAffine(x.Y, resolve)
		if !ok {
			return nil, false
		}
		return foldAffine(x.Op, l, r)
	}
	return nil, false
}

// foldAffine applies a binary operator, keeping the result affine.
func foldAffine(op string, l, r *AffineExpr) (*AffineExpr, bool) {
	switch op {
	case "+":
		return l.Add(r), true
	case "-":
		return l.Sub(r), true
	case "*":
		if r.IsConst() {
			return l.Scale(r.Const), true
		}
		if l.IsConst() {
			return r.Scale(l.Const), true
		}
	case "/", "%":
		if !l.IsConst() || !r.IsConst() || r.Const.Sign() == 0 {
			return nil, false
		}
		if op == "/" {
			return affineConst(new(big.Int).Quo(l.Const, r.Const)), true
		}
		return affineConst(new(big.Int).Rem(l.Const, r.Const)), true
	case "<<":
		if r.IsConst() && r.Const.Sign() >= 0 && r.Const.IsInt64() && r.Const.Int64() < 63 {
			return l.Scale(new(big.Int).Lsh(big.NewInt(1), uint(r.Const.Int64()))), true
		}
	}
	return nil, false
}

// AddRec is the recurrence {Start, +, Step} of an induction variable: its
// value on iteration k is Start + Step*k.
type AddRec struct {
	Start *AffineExpr
	Step  *big.Int
}

// EvaluateAt returns the value on iteration k, or nil when Start is symbolic.
func (r *AddRec) EvaluateAt(k *big.Int) *big.Int {
	if !r.Start.IsConst() {
		return nil
	}
	term := new(big.Int).Mul(r.Step, k)
	return term.Add(term, r.Start.Const)
}

func (r *AddRec) String() string {
	return fmt.Sprintf("{%s, +, %s}", r.Start, r.Step)
}

// deriveTripCount computes the iteration count of h from its recurrence and
// exclusive limit:
//
//	ceil((Limit - Start) / Step)   for up-counting loops
//	ceil((Start - Limit) / |Step|) for down-counting loops
//
// The count is known whenever the difference folds to a constant, even if
// both bounds are symbolic. Negative counts clamp to zero.
func deriveTripCount(h *LoopHeader) {
	h.TripKnown = false
	h.TripCount = 0
	if h.Rec == nil || h.Limit == nil {
		return
	}
	var diff *AffineExpr
	if h.Decreasing {
		diff = h.Rec.Start.Sub(h.Limit)
	} else {
		diff = h.Limit.Sub(h.Rec.Start)
	}
	if !diff.IsConst() {
		return
	}
	step := new(big.Int).Abs(h.Rec.Step)
	if step.Sign() == 0 {
		return
	}
	// Ceiling division: (Diff + Step - 1) / Step, clamped at zero.
	num := new(big.Int).Add(diff.Const, step)
	num.Sub(num, big.NewInt(1))
	res := new(big.Int).Div(num, step)
	if res.Sign() < 0 {
		res.SetInt64(0)
	}
	if !res.IsInt64() {
		return
	}
	h.TripCount = res.Int64()
	h.TripKnown = true
}
