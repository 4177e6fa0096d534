package oaccrefac

import (
	"fmt"
	"math/big"
	"strings"
)

// -- Dependence Analysis --

// Dir is one entry of a direction vector, relating the source iteration to
// the sink iteration at a loop level.
type Dir byte

const (
	DirLT  Dir = '<' // source iteration precedes the sink's
	DirEQ  Dir = '='
	DirGT  Dir = '>'
	DirAny Dir = '*'
)

// DirVector has one entry per common loop level, outermost first.
type DirVector []Dir

func (v DirVector) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, d := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte(byte(d))
	}
	b.WriteByte(')')
	return b.String()
}

// Leading returns the index of the first entry that is not '=', or -1 for a
// loop-independent vector.
func (v DirVector) Leading() int {
	for i, d := range v {
		if d != DirEQ {
			return i
		}
	}
	return -1
}

// Valid reports whether the vector is lexicographically non-negative.
func (v DirVector) Valid() bool {
	i := v.Leading()
	return i < 0 || v[i] != DirGT
}

func (v DirVector) mirror() DirVector {
	out := make(DirVector, len(v))
	for i, d := range v {
		switch d {
		case DirLT:
			out[i] = DirGT
		case DirGT:
			out[i] = DirLT
		default:
			out[i] = d
		}
	}
	return out
}

func allDirs(n int, d Dir) DirVector {
	v := make(DirVector, n)
	for i := range v {
		v[i] = d
	}
	return v
}

type DepKind int

const (
	DepFlow DepKind = iota
	DepAnti
	DepOutput
	DepInput
)

func (k DepKind) String() string {
	switch k {
	case DepFlow:
		return "flow"
	case DepAnti:
		return "anti"
	case DepOutput:
		return "output"
	}
	return "input"
}

func depKind(src, sink *Access) DepKind {
	switch {
	case src.Write && sink.Write:
		return DepOutput
	case src.Write:
		return DepFlow
	case sink.Write:
		return DepAnti
	}
	return DepInput
}

// DependenceEdge is a possible dependence from Src to Sink.
type DependenceEdge struct {
	Src, Sink *Access
	Dirs      DirVector
	Distance  []*big.Int // per level, in iterations; nil when not constant
	Kind      DepKind
	Scalar    bool

	// Unknown edges were assumed, not proven. Cause is
	// ErrUnanalyzableDependence or ErrAmbiguousAliasing.
	Unknown bool
	Cause   error
}

func (e *DependenceEdge) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s -> %s %s", e.Kind, e.Src, e.Sink, e.Dirs)
	var dist []string
	for _, d := range e.Distance {
		if d == nil {
			dist = append(dist, "?")
		} else {
			dist = append(dist, d.String())
		}
	}
	if len(dist) > 0 {
		fmt.Fprintf(&b, " dist=(%s)", strings.Join(dist, ","))
	}
	if e.Unknown {
		fmt.Fprintf(&b, " [%s]", className(e.Cause))
	}
	if e.Scalar {
		b.WriteString(" [scalar]")
	}
	return b.String()
}

// DistanceAt returns the distance at level k when it is a known constant.
func (e *DependenceEdge) DistanceAt(k int) (int64, bool) {
	if k >= len(e.Distance) || e.Distance[k] == nil || !e.Distance[k].IsInt64() {
		return 0, false
	}
	return e.Distance[k].Int64(), true
}

// DependenceSummary is the result of analyzing one nest.
type DependenceSummary struct {
	Nest     *LoopNest
	Accesses []*Access
	Edges    []*DependenceEdge
	Warnings []string
}

// Unknown returns the first edge that was assumed rather than proven.
func (s *DependenceSummary) Unknown() *DependenceEdge {
	for _, e := range s.Edges {
		if e.Unknown {
			return e
		}
	}
	return nil
}

// Analyze computes the dependences among accesses in the nest body. It never
// reports independence it cannot prove.
func Analyze(fn *Function, nest *LoopNest, opts RecognizerOptions) *DependenceSummary {
	accesses, warnings := collectAccesses(fn, nest, opts)
	a := &analyzer{
		fn:      fn,
		nest:    nest,
		depth:   nest.Depth(),
		sum:     &DependenceSummary{Nest: nest, Accesses: accesses, Warnings: warnings},
		seen:    make(map[string]bool),
		written: writtenNames(nest.Headers[0].Loop),
	}
	a.aliasable = a.aliasSet()
	for _, h := range nest.Headers {
		if h.Start == nil {
			a.unbounded = true
		}
	}
	for i, src := range accesses {
		for _, sink := range accesses[i:] {
			a.pair(src, sink)
		}
	}
	return a.sum
}

type analyzer struct {
	fn        *Function
	nest      *LoopNest
	depth     int
	sum       *DependenceSummary
	seen      map[string]bool
	written   map[string]bool
	aliasable map[string]bool
	unbounded bool // some nest level has a lower bound that is not affine
}

// aliasSet lists names that may share storage with another name: pointers,
// global arrays, and local arrays whose address escapes.
func (a *analyzer) aliasSet() map[string]bool {
	out := make(map[string]bool)
	for _, acc := range a.sum.Accesses {
		s := a.fn.Lookup(acc.Name)
		if s == nil {
			continue
		}
		switch {
		case s.IsPointer():
			out[acc.Name] = true
		case s.IsArray() && s.Scope == ScopeGlobal:
			out[acc.Name] = true
		case s.IsArray() && a.escapes(acc.Name):
			out[acc.Name] = true
		}
	}
	return out
}

// escapes reports whether a local array is used without a subscript anywhere
// outside sizeof.
func (a *analyzer) escapes(name string) bool {
	found := false
	Inspect(a.fn.Decl.Body, func(n Node) bool {
		if found {
			return false
		}
		id, ok := n.(*Ident)
		if !ok || id.Name != name {
			return true
		}
		var child Node = id
		parent := a.fn.Parent(id)
		for {
			p, ok := parent.(*ParenExpr)
			if !ok {
				break
			}
			child, parent = p, a.fn.Parent(p)
		}
		switch p := parent.(type) {
		case *IndexExpr:
			if Node(p.X) == child {
				return true
			}
		case *SizeofExpr:
			return true
		}
		found = true
		return false
	})
	return found
}

func (a *analyzer) add(e *DependenceEdge) {
	key := fmt.Sprintf("%d>%d%s%v%v", e.Src.ID, e.Sink.ID, e.Dirs, e.Unknown, e.Scalar)
	if a.seen[key] {
		return
	}
	a.seen[key] = true
	a.sum.Edges = append(a.sum.Edges, e)
}

func (a *analyzer) pair(src, sink *Access) {
	if !src.Write && !sink.Write {
		return
	}
	if src.Name != sink.Name {
		a.aliasPair(src, sink)
		return
	}
	if src == sink && !src.Write {
		return
	}
	switch {
	case src.Opaque || sink.Opaque || src.Scalar != sink.Scalar:
		a.assume(src, sink, ErrUnanalyzableDependence)
	case src.Scalar:
		a.add(&DependenceEdge{
			Src: src, Sink: sink, Dirs: allDirs(a.depth, DirAny),
			Distance: make([]*big.Int, a.depth), Kind: depKind(src, sink), Scalar: true,
		})
	case a.unbounded || len(src.Subs) != len(sink.Subs):
		a.assume(src, sink, ErrUnanalyzableDependence)
	default:
		a.testAffine(src, sink)
	}
}

func (a *analyzer) assume(src, sink *Access, cause error) {
	a.add(&DependenceEdge{
		Src: src, Sink: sink, Dirs: allDirs(a.depth, DirAny),
		Distance: make([]*big.Int, a.depth), Kind: depKind(src, sink),
		Unknown: true, Cause: cause,
	})
}

// aliasPair handles accesses to different names that may overlap in memory.
func (a *analyzer) aliasPair(src, sink *Access) {
	if src.Scalar || sink.Scalar || !a.aliasable[src.Name] || !a.aliasable[sink.Name] {
		return
	}
	s1, s2 := a.fn.Lookup(src.Name), a.fn.Lookup(sink.Name)
	if s1 == nil || s2 == nil || (!s1.IsPointer() && !s2.IsPointer()) {
		return
	}
	if (!s1.IsPointer() || s1.Restrict) && (!s2.IsPointer() || s2.Restrict) {
		return
	}
	a.assume(src, sink, ErrAmbiguousAliasing)
}

// -- Affine Dependence Testing --

func tvar(role string, k int) string { return fmt.Sprintf("%s:t%d", role, k) }

// instantiate rewrites an expression over the nest's induction variables for
// one side of a pair: inner loop indices become per-access variables and each
// nest index v_k becomes Start_k + Step_k * t_k.
func (a *analyzer) instantiate(e *AffineExpr, role string, acc *Access) *AffineExpr {
	inner := make(map[string]bool, len(acc.Inner))
	for _, h := range acc.Inner {
		inner[h.Var] = true
	}
	e = e.Rename(func(s string) string {
		if inner[s] {
			return fmt.Sprintf("%s:%s#%d", role, s, acc.ID)
		}
		return s
	})
	for k := a.depth - 1; k >= 0; k-- {
		h := a.nest.Headers[k]
		iv := h.Start.Add(affineSym(tvar(role, k)).Scale(big.NewInt(h.Step)))
		e = e.Substitute(h.Var, iv)
	}
	return e
}

// bounds adds the iteration-space constraints of one side of a pair.
func (a *analyzer) bounds(sys system, role string, acc *Access) system {
	for k, h := range a.nest.Headers {
		t := affineSym(tvar(role, k))
		sys = sys.le(t.Scale(big.NewInt(-1)))
		switch {
		case h.TripKnown:
			sys = sys.le(t.Sub(affineInt(h.TripCount - 1)))
		case h.Limit != nil:
			v := affineSym(h.Var)
			if h.Decreasing {
				sys = sys.le(a.instantiate(h.Limit.Add(affineInt(1)).Sub(v), role, acc))
			} else {
				sys = sys.le(a.instantiate(v.Sub(h.Limit).Add(affineInt(1)), role, acc))
			}
		}
	}
	for i, h := range acc.Inner {
		if h.Start == nil || h.Limit == nil || !a.boundSymbolsOK(h, acc.Inner[:i]) {
			continue
		}
		v := affineSym(h.Var)
		if h.Decreasing {
			sys = sys.le(a.instantiate(v.Sub(h.Start), role, acc))
			sys = sys.le(a.instantiate(h.Limit.Add(affineInt(1)).Sub(v), role, acc))
		} else {
			sys = sys.le(a.instantiate(h.Start.Sub(v), role, acc))
			sys = sys.le(a.instantiate(v.Sub(h.Limit).Add(affineInt(1)), role, acc))
		}
	}
	return sys
}

// boundSymbolsOK reports whether an inner loop's bounds mention only
// enclosing indices and names the nest never writes.
func (a *analyzer) boundSymbolsOK(h *LoopHeader, outer []*LoopHeader) bool {
	ok := map[string]bool{}
	for _, n := range a.nest.Headers {
		ok[n.Var] = true
	}
	for _, o := range outer {
		ok[o.Var] = true
	}
	for _, e := range []*AffineExpr{h.Start, h.Limit} {
		for v := range e.Coeffs {
			if !ok[v] && a.written[v] {
				return false
			}
		}
	}
	return true
}

func (a *analyzer) testAffine(src, sink *Access) {
	var sys system
	for d := range src.Subs {
		e := a.instantiate(src.Subs[d], "s", src).Sub(a.instantiate(sink.Subs[d], "d", sink))
		if !gcdTest(e) {
			return
		}
		sys = sys.eq(e)
	}
	sys = a.bounds(sys, "s", src)
	sys = a.bounds(sys, "d", sink)
	if !sys.feasible() {
		return
	}
	a.refine(src, sink, sys, nil)
}

// refine walks the direction hierarchy, splitting '*' into '<', '=' and '>'
// one level at a time and keeping only feasible partial vectors.
func (a *analyzer) refine(src, sink *Access, sys system, prefix DirVector) {
	k := len(prefix)
	if k == a.depth {
		a.leaf(src, sink, sys, prefix)
		return
	}
	s, d := affineSym(tvar("s", k)), affineSym(tvar("d", k))
	for _, dir := range []Dir{DirLT, DirEQ, DirGT} {
		var next system
		switch dir {
		case DirLT:
			next = append(append(system{}, sys...), s.Sub(d).Add(affineInt(1)))
		case DirEQ:
			next = append(system{}, sys...).eq(s.Sub(d))
		case DirGT:
			next = append(append(system{}, sys...), d.Sub(s).Add(affineInt(1)))
		}
		if next.feasible() {
			a.refine(src, sink, next, append(append(DirVector{}, prefix...), dir))
		}
	}
}

func (a *analyzer) leaf(src, sink *Access, sys system, dirs DirVector) {
	if src == sink && dirs.Leading() < 0 {
		return
	}
	dist := make([]*big.Int, a.depth)
	for k := 0; k < a.depth; k++ {
		delta := affineSym("delta")
		withDelta := append(system{}, sys...).eq(delta.Sub(affineSym(tvar("d", k))).Add(affineSym(tvar("s", k))))
		lo, hi, ok := withDelta.bounds("delta")
		if ok && lo != nil && hi != nil && lo.Cmp(hi) == 0 {
			dist[k] = lo
		}
	}
	if !dirs.Valid() {
		for k := range dist {
			if dist[k] != nil {
				dist[k] = new(big.Int).Neg(dist[k])
			}
		}
		src, sink, dirs = sink, src, dirs.mirror()
	}
	a.add(&DependenceEdge{Src: src, Sink: sink, Dirs: dirs, Distance: dist, Kind: depKind(src, sink)})
}
