package oaccrefac

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// -- Memory Access Collection --

// Access is one read or write of a variable or array element inside a nest.
type Access struct {
	ID     int // source order within the nest
	Name   string
	Subs   []*AffineExpr // one per dimension; a nil entry is opaque
	Write  bool
	Scalar bool // zero-dimensional
	Opaque bool // some subscript, or the address computation itself, is not affine
	Pos    Pos
	Expr   Expr

	// Inner lists the recognized loops between the nest body and the access,
	// outermost first. Their indices appear in Subs under their own names.
	Inner []*LoopHeader
}

func (a *Access) String() string {
	kind := "R"
	if a.Write {
		kind = "W"
	}
	if a.Scalar {
		return fmt.Sprintf("%s %s@%s", kind, a.Name, a.Pos)
	}
	subs := make([]string, len(a.Subs))
	for i, s := range a.Subs {
		if s == nil {
			subs[i] = "?"
		} else {
			subs[i] = s.String()
		}
	}
	return fmt.Sprintf("%s %s[%s]@%s", kind, a.Name, strings.Join(subs, "]["), a.Pos)
}

// pureFunctions have no side effects on memory visible to the caller.
var pureFunctions = map[string]bool{}

func init() {
	for _, f := range []string{
		"acos", "asin", "atan", "atan2", "ceil", "cos", "cosh", "exp", "fabs",
		"floor", "fmax", "fmin", "fmod", "log", "log10", "pow", "sin", "sinh",
		"sqrt", "tan", "tanh",
	} {
		pureFunctions[f] = true
		pureFunctions[f+"f"] = true
	}
}

type collector struct {
	fn   *Function
	nest *LoopNest
	opts RecognizerOptions

	ivs     map[string]bool // nest induction variables
	written map[string]bool // names written anywhere in the nest
	private map[string]bool // declared inside the nest body
	escaped map[string]bool // address-taken names
	globals map[string]bool // globals referenced in the nest body
	env     *ConstEnv

	accesses []*Access
	warnings []string
	seenWarn map[string]bool
}

func collectAccesses(fn *Function, nest *LoopNest, opts RecognizerOptions) ([]*Access, []string) {
	outer := nest.Headers[0].Loop
	c := &collector{
		fn:       fn,
		nest:     nest,
		opts:     opts,
		ivs:      make(map[string]bool),
		written:  writtenNames(outer),
		private:  make(map[string]bool),
		escaped:  addressTaken(fn.Decl.Body),
		globals:  make(map[string]bool),
		env:      fn.Consts(outer),
		seenWarn: make(map[string]bool),
	}
	for _, h := range nest.Headers {
		c.ivs[h.Var] = true
	}
	Inspect(nest.Body, func(n Node) bool {
		switch n := n.(type) {
		case *Declarator:
			c.private[n.Name] = true
		case *Ident:
			if s := fn.Lookup(n.Name); s != nil && s.Scope == ScopeGlobal {
				c.globals[n.Name] = true
			}
		}
		return true
	})
	c.stmt(nest.Body, nil)
	return c.accesses, c.warnings
}

func (c *collector) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !c.seenWarn[msg] {
		c.seenWarn[msg] = true
		c.warnings = append(c.warnings, msg)
	}
}

func (c *collector) stmt(s Stmt, inner []*LoopHeader) {
	switch s := s.(type) {
	case *CompoundStmt:
		for _, st := range s.Stmts {
			c.stmt(st, inner)
		}
	case *DeclStmt:
		for _, d := range s.Decl.Declarators {
			for _, dim := range d.Dims {
				if dim != nil {
					c.expr(dim, inner)
				}
			}
			if d.Init != nil {
				c.expr(d.Init, inner)
			}
		}
	case *ExprStmt:
		c.expr(s.X, inner)
	case *ForStmt:
		if h, rej := Recognize(c.fn, s, c.opts); rej == nil {
			c.expr(h.Lower, inner)
			c.expr(h.Upper, inner)
			c.stmt(s.Body, append(append([]*LoopHeader(nil), inner...), h))
			return
		}
		if s.Init != nil {
			c.stmt(s.Init, inner)
		}
		if s.Cond != nil {
			c.expr(s.Cond, inner)
		}
		if s.Post != nil {
			c.expr(s.Post, inner)
		}
		c.stmt(s.Body, inner)
	case *WhileStmt:
		c.expr(s.Cond, inner)
		c.stmt(s.Body, inner)
	case *DoStmt:
		c.stmt(s.Body, inner)
		c.expr(s.Cond, inner)
	case *IfStmt:
		c.expr(s.Cond, inner)
		c.stmt(s.Then, inner)
		if s.Else != nil {
			c.stmt(s.Else, inner)
		}
	case *SwitchStmt:
		c.expr(s.Tag, inner)
		c.stmt(s.Body, inner)
	case *CaseStmt:
		c.stmt(s.Body, inner)
	case *LabeledStmt:
		c.stmt(s.Body, inner)
	case *ReturnStmt:
		if s.X != nil {
			c.expr(s.X, inner)
		}
	}
}

// expr records the reads performed by evaluating x, in evaluation order.
func (c *collector) expr(x Expr, inner []*LoopHeader) {
	switch x := x.(type) {
	case *Ident:
		c.access(x, false, inner, true)
	case *ParenExpr:
		c.expr(x.X, inner)
	case *AssignExpr:
		c.expr(x.RHS, inner)
		if x.Op != "=" {
			c.access(x.LHS, false, inner, true)
			c.access(x.LHS, true, inner, false)
		} else {
			c.access(x.LHS, true, inner, true)
		}
	case *UnaryExpr:
		switch x.Op {
		case "++", "--":
			c.access(x.X, false, inner, true)
			c.access(x.X, true, inner, false)
		case "*":
			c.access(x, false, inner, true)
		case "&":
			c.subscriptReads(x.X, inner)
		default:
			c.expr(x.X, inner)
		}
	case *PostfixExpr:
		c.access(x.X, false, inner, true)
		c.access(x.X, true, inner, false)
	case *IndexExpr, *MemberExpr:
		c.access(x, false, inner, true)
	case *BinaryExpr:
		c.expr(x.X, inner)
		c.expr(x.Y, inner)
	case *CondExpr:
		c.expr(x.Cond, inner)
		c.expr(x.Then, inner)
		c.expr(x.Else, inner)
	case *CastExpr:
		c.expr(x.X, inner)
	case *InitList:
		for _, e := range x.Elems {
			c.expr(e, inner)
		}
	case *CallExpr:
		c.call(x, inner)
	}
}

func (c *collector) call(call *CallExpr, inner []*LoopHeader) {
	name := calleeName(call)
	if name == "" {
		c.expr(call.Fun, inner)
	}
	for _, a := range call.Args {
		c.expr(a, inner)
	}
	if pureFunctions[name] {
		return
	}
	if name == "" {
		name = FormatExpr(call.Fun)
	}
	c.warn("call to %s has unanalyzed effects", name)

	// Anything the callee can reach may be read and written.
	reach := make(map[string]bool)
	for _, a := range call.Args {
		Inspect(a, func(n Node) bool {
			if id, ok := n.(*Ident); ok {
				if s := c.fn.Lookup(id.Name); s != nil && (s.IsPointer() || s.IsArray()) {
					reach[id.Name] = true
				}
			}
			return true
		})
		for n := range addressTaken(a) {
			reach[n] = true
		}
	}
	for g := range c.globals {
		reach[g] = true
	}
	for _, n := range sortedKeys(reach) {
		if c.private[n] || c.ivs[n] {
			continue
		}
		c.opaque(n, call, inner)
	}
}

func (c *collector) opaque(name string, at Expr, inner []*LoopHeader) {
	s := c.fn.Lookup(name)
	scalar := s != nil && s.IsScalar()
	for _, w := range []bool{false, true} {
		c.accesses = append(c.accesses, &Access{
			ID:     len(c.accesses),
			Name:   name,
			Write:  w,
			Scalar: scalar,
			Opaque: true,
			Pos:    at.Span().Start,
			Expr:   at,
			Inner:  inner,
		})
	}
}

// subscriptReads records the reads performed while computing the address of
// lv without touching lv itself.
func (c *collector) subscriptReads(lv Expr, inner []*LoopHeader) {
	switch e := stripParens(lv).(type) {
	case *IndexExpr:
		c.subscriptReads(e.X, inner)
		c.expr(e.Index, inner)
	case *MemberExpr:
		if e.Arrow {
			c.expr(e.X, inner)
		} else {
			c.subscriptReads(e.X, inner)
		}
	case *UnaryExpr:
		if e.Op == "*" {
			c.expr(e.X, inner)
		}
	case *Ident:
	default:
		c.expr(lv, inner)
	}
}

// access records a read or write of the location lv.
func (c *collector) access(lv Expr, write bool, inner []*LoopHeader, readSubs bool) {
	lv = stripParens(lv)
	if readSubs {
		c.subscriptReads(lv, inner)
	}
	a := &Access{Write: write, Pos: lv.Span().Start, Expr: lv, Inner: inner}
	switch e := lv.(type) {
	case *Ident:
		s := c.fn.Lookup(e.Name)
		if s == nil || !s.IsScalar() || c.ivs[e.Name] || c.private[e.Name] || c.isInnerIV(e.Name, inner) {
			return
		}
		a.Name, a.Scalar = e.Name, true
	case *MemberExpr:
		base := baseIdent(e)
		if base == nil || c.private[base.Name] {
			return
		}
		if id, ok := stripParens(e.X).(*Ident); ok && !e.Arrow {
			a.Name, a.Scalar = id.Name+"."+e.Name, true
		} else {
			a.Name, a.Opaque = base.Name, true
		}
	case *IndexExpr:
		var idx []Expr
		var base Expr = e
		for {
			ix, ok := stripParens(base).(*IndexExpr)
			if !ok {
				break
			}
			idx = append([]Expr{ix.Index}, idx...)
			base = ix.X
		}
		id, ok := stripParens(base).(*Ident)
		if !ok {
			bi := baseIdent(base)
			if bi == nil || c.private[bi.Name] {
				return
			}
			a.Name, a.Opaque = bi.Name, true
			break
		}
		if c.private[id.Name] {
			return
		}
		a.Name = id.Name
		for _, ix := range idx {
			a.Subs = append(a.Subs, c.subscript(ix, inner))
		}
	case *UnaryExpr:
		if e.Op != "*" {
			return
		}
		name, sub, ok := c.deref(e.X, inner)
		if name == "" || c.private[name] {
			return
		}
		a.Name = name
		if ok {
			a.Subs = []*AffineExpr{sub}
		} else {
			a.Opaque = true
		}
	default:
		return
	}
	for _, s := range a.Subs {
		if s == nil {
			a.Opaque = true
		}
	}
	a.ID = len(c.accesses)
	c.accesses = append(c.accesses, a)
}

// deref reads *p, *(p + e) and *(p - e) as p[0], p[e] and p[-e].
func (c *collector) deref(x Expr, inner []*LoopHeader) (string, *AffineExpr, bool) {
	x = stripParens(x)
	if id, ok := x.(*Ident); ok {
		return id.Name, affineInt(0), true
	}
	if b, ok := x.(*BinaryExpr); ok && (b.Op == "+" || b.Op == "-") {
		if id, ok := stripParens(b.X).(*Ident); ok && c.isPointerName(id.Name) {
			sub := c.subscript(b.Y, inner)
			if sub == nil {
				return id.Name, nil, false
			}
			if b.Op == "-" {
				sub = sub.Scale(big.NewInt(-1))
			}
			return id.Name, sub, true
		}
		if id, ok := stripParens(b.Y).(*Ident); ok && b.Op == "+" && c.isPointerName(id.Name) {
			sub := c.subscript(b.X, inner)
			return id.Name, sub, sub != nil
		}
	}
	if bi := baseIdent(x); bi != nil {
		return bi.Name, nil, false
	}
	return "", nil, false
}

func (c *collector) isPointerName(name string) bool {
	s := c.fn.Lookup(name)
	return s != nil && (s.IsPointer() || s.IsArray())
}

func (c *collector) isInnerIV(name string, inner []*LoopHeader) bool {
	for _, h := range inner {
		if h.Var == name {
			return true
		}
	}
	return false
}

// subscript converts an index expression to affine form, or nil when opaque.
func (c *collector) subscript(x Expr, inner []*LoopHeader) *AffineExpr {
	a, ok := toAffine(x, func(name string) (*AffineExpr, bool) {
		if c.ivs[name] || c.isInnerIV(name, inner) {
			return affineSym(name), true
		}
		return c.invariant(name)
	})
	if !ok {
		return nil
	}
	return a
}

// invariant resolves a name that is neither an induction variable nor
// written in the nest.
func (c *collector) invariant(name string) (*AffineExpr, bool) {
	if c.written[name] || c.private[name] || c.escaped[name] {
		return nil, false
	}
	if v, ok := c.env.Value(name); ok {
		return affineConst(v), true
	}
	if s := c.fn.Lookup(name); s != nil && !s.IsScalar() {
		return nil, false
	}
	return affineSym(name), true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
