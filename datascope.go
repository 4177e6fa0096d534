package oaccrefac

import (
	"fmt"
	"sort"
	"strings"
)

// -- Data-Construct Scope Analysis --

// DataRegion is a statement governed by "#pragma acc data".
type DataRegion struct {
	Level     int // 1 for an outermost region
	Directive *Directive
	Stmt      Stmt
	Parent    *DataRegion
	Children  []*DataRegion
	Compute   []*ComputeConstruct

	// Declared maps each variable in a data clause to its clause.
	Declared map[string]string
	order    []string

	// Inferred is the clause each outside variable needs, from the body alone.
	Inferred map[string]string
}

// ComputeConstruct is a parallel, kernels or serial construct.
type ComputeConstruct struct {
	Directive *Directive
	Stmt      Stmt
	Region    *DataRegion // innermost enclosing data region, or nil
	Uses      []string    // outside variables the construct reads or writes
}

// ScopeTree holds every data region and compute construct of a function.
type ScopeTree struct {
	Func    *Function
	Roots   []*DataRegion
	Regions []*DataRegion // preorder
	Compute []*ComputeConstruct
}

// Region returns the data region rooted at s, or nil.
func (t *ScopeTree) Region(s Stmt) *DataRegion {
	for _, r := range t.Regions {
		if r.Stmt == s {
			return r
		}
	}
	return nil
}

// ComputeScopes builds the region tree of fn and infers the clauses each
// region needs. Malformed acc pragmas are reported as errors.
func ComputeScopes(fn *Function) (*ScopeTree, error) {
	t := &ScopeTree{Func: fn}
	var walk func(n Node, cur *DataRegion) error
	walk = func(n Node, cur *DataRegion) error {
		if s, ok := n.(Stmt); ok {
			for _, p := range s.Directives() {
				d, isACC, err := ParseDirective(p)
				if err != nil {
					return &ParseFailure{File: fn.File.Name, Pos: p.Span().Start, Msg: err.Error()}
				}
				if !isACC {
					continue
				}
				switch {
				case d.IsData():
					r := &DataRegion{Directive: d, Stmt: s, Parent: cur, Level: 1}
					r.Declared, r.order = d.DataClauses()
					if cur != nil {
						r.Level = cur.Level + 1
						cur.Children = append(cur.Children, r)
					} else {
						t.Roots = append(t.Roots, r)
					}
					t.Regions = append(t.Regions, r)
					cur = r
				case d.IsCompute():
					c := &ComputeConstruct{Directive: d, Stmt: s, Region: cur, Uses: constructUses(fn, s)}
					if cur != nil {
						cur.Compute = append(cur.Compute, c)
					}
					t.Compute = append(t.Compute, c)
				}
			}
		}
		for _, c := range children(n) {
			if err := walk(c, cur); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(fn.Decl.Body, nil); err != nil {
		return nil, err
	}
	for _, r := range t.Regions {
		r.Inferred = inferClauses(fn, r.Stmt)
	}
	return t, nil
}

// constructUses lists the variables declared outside s that s mentions.
func constructUses(fn *Function, s Stmt) []string {
	local := declaredIn(s)
	for v := range loopIndices(s) {
		local[v] = true
	}
	seen := make(map[string]bool)
	Inspect(s, func(n Node) bool {
		if call, ok := n.(*CallExpr); ok {
			for _, a := range call.Args {
				Inspect(a, func(m Node) bool {
					if id, ok := m.(*Ident); ok {
						seen[id.Name] = true
					}
					return true
				})
			}
			return false
		}
		if id, ok := n.(*Ident); ok {
			seen[id.Name] = true
		}
		return true
	})
	var out []string
	for name := range seen {
		if !local[name] && fn.Lookup(name) != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// declaredIn collects the names declared anywhere under n.
func declaredIn(n Node) map[string]bool {
	out := make(map[string]bool)
	Inspect(n, func(c Node) bool {
		if d, ok := c.(*Declarator); ok {
			out[d.Name] = true
		}
		return true
	})
	return out
}

// loopIndices collects the controlling variables of for loops under n.
func loopIndices(n Node) map[string]bool {
	out := make(map[string]bool)
	Inspect(n, func(c Node) bool {
		f, ok := c.(*ForStmt)
		if !ok {
			return true
		}
		switch init := f.Init.(type) {
		case *DeclStmt:
			for _, d := range init.Decl.Declarators {
				out[d.Name] = true
			}
		case *ExprStmt:
			if a, ok := init.X.(*AssignExpr); ok {
				if id, ok := stripParens(a.LHS).(*Ident); ok {
					out[id.Name] = true
				}
			}
		}
		return true
	})
	return out
}

// -- Clause Inference --

// defUse tracks definite writes through structured control flow.
type defUse struct {
	fn      *Function
	skip    map[string]bool
	defined map[string]bool
	reads   map[string]bool // read before any definite write
	writes  map[string]bool
}

func (f *defUse) tracked(name string) bool {
	return !f.skip[name] && f.fn.Lookup(name) != nil
}

func (f *defUse) read(name string) {
	if f.tracked(name) && !f.defined[name] {
		f.reads[name] = true
	}
}

func (f *defUse) write(name string, kill bool) {
	if !f.tracked(name) {
		return
	}
	f.writes[name] = true
	if kill {
		f.defined[name] = true
	}
}

func copySet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f *defUse) stmt(s Stmt) {
	switch s := s.(type) {
	case *CompoundStmt:
		for _, c := range s.Stmts {
			f.stmt(c)
		}
	case *DeclStmt:
		for _, d := range s.Decl.Declarators {
			for _, dim := range d.Dims {
				f.expr(dim)
			}
			if d.Init != nil {
				f.expr(d.Init)
			}
		}
	case *ExprStmt:
		f.expr(s.X)
	case *IfStmt:
		f.expr(s.Cond)
		before := f.defined
		f.defined = copySet(before)
		f.stmt(s.Then)
		thenDefs := f.defined
		f.defined = copySet(before)
		if s.Else != nil {
			f.stmt(s.Else)
		}
		for k := range f.defined {
			if !thenDefs[k] {
				delete(f.defined, k)
			}
		}
	case *ForStmt:
		if s.Init != nil {
			f.stmt(s.Init)
		}
		f.loop(s.Cond, s.Body, s.Post)
	case *WhileStmt:
		f.loop(s.Cond, s.Body, nil)
	case *DoStmt:
		f.loop(s.Cond, s.Body, nil)
	case *SwitchStmt:
		f.expr(s.Tag)
		f.loop(nil, s.Body, nil)
	case *CaseStmt:
		if s.Value != nil {
			f.expr(s.Value)
		}
		if s.Body != nil {
			f.stmt(s.Body)
		}
	case *LabeledStmt:
		f.stmt(s.Body)
	case *ReturnStmt:
		if s.X != nil {
			f.expr(s.X)
		}
	}
}

// loop analyzes a body that may run zero times; its definite writes do not
// survive it.
func (f *defUse) loop(cond Expr, body Stmt, post Expr) {
	before := f.defined
	f.defined = copySet(before)
	if cond != nil {
		f.expr(cond)
	}
	if body != nil {
		f.stmt(body)
	}
	if post != nil {
		f.expr(post)
	}
	f.defined = before
}

func (f *defUse) expr(x Expr) {
	switch x := x.(type) {
	case nil:
	case *Ident:
		f.read(x.Name)
	case *AssignExpr:
		f.expr(x.RHS)
		if id, ok := stripParens(x.LHS).(*Ident); ok {
			if x.Op != "=" {
				f.read(id.Name)
			}
			f.write(id.Name, true)
			return
		}
		f.lvalue(x.LHS, x.Op != "=")
	case *UnaryExpr:
		switch x.Op {
		case "++", "--":
			f.lvalue(x.X, true)
		case "&":
			if id := baseIdent(x.X); id != nil {
				f.read(id.Name)
				f.write(id.Name, false)
			}
			f.subscripts(x.X)
		default:
			f.expr(x.X)
		}
	case *PostfixExpr:
		f.lvalue(x.X, true)
	case *CallExpr:
		name := calleeName(x)
		for _, a := range x.Args {
			f.expr(a)
			if pureFunctions[name] {
				continue
			}
			if id, ok := stripParens(a).(*Ident); ok {
				if s := f.fn.Lookup(id.Name); s != nil && !s.IsScalar() {
					f.write(id.Name, false)
				}
			}
		}
	default:
		for _, c := range children(x) {
			if e, ok := c.(Expr); ok {
				f.expr(e)
			}
		}
	}
}

// lvalue records a store through x. Element stores never kill.
func (f *defUse) lvalue(x Expr, alsoRead bool) {
	if id, ok := stripParens(x).(*Ident); ok {
		if alsoRead {
			f.read(id.Name)
		}
		f.write(id.Name, true)
		return
	}
	id := baseIdent(x)
	if id == nil {
		f.expr(x)
		return
	}
	if alsoRead {
		f.read(id.Name)
	}
	f.write(id.Name, false)
	f.subscripts(x)
}

// subscripts visits the index and pointer operands of an lvalue.
func (f *defUse) subscripts(x Expr) {
	switch e := x.(type) {
	case *ParenExpr:
		f.subscripts(e.X)
	case *IndexExpr:
		f.subscripts(e.X)
		f.expr(e.Index)
	case *MemberExpr:
		f.subscripts(e.X)
	case *UnaryExpr:
		f.subscripts(e.X)
	case *CastExpr:
		f.subscripts(e.X)
	case *BinaryExpr:
		f.subscripts(e.X)
		f.expr(e.Y)
	}
}

// inferClauses classifies every outside variable used by the region at s.
func inferClauses(fn *Function, s Stmt) map[string]string {
	skip := declaredIn(s)
	for v := range loopIndices(s) {
		skip[v] = true
	}
	f := &defUse{
		fn: fn, skip: skip,
		defined: make(map[string]bool),
		reads:   make(map[string]bool),
		writes:  make(map[string]bool),
	}
	f.stmt(s)

	after := usedAfter(fn, s)
	out := make(map[string]string)
	for name := range unionKeys(f.reads, f.writes) {
		in := f.reads[name]
		outNeeded := f.writes[name] && (after[name] || escapesRegion(fn, name))
		switch {
		case in && outNeeded:
			out[name] = "copy"
		case in:
			out[name] = "copyin"
		case outNeeded:
			out[name] = "copyout"
		case f.writes[name]:
			out[name] = "create"
		}
	}
	return out
}

func unionKeys(a, b map[string]bool) map[string]bool {
	out := copySet(a)
	for k := range b {
		out[k] = true
	}
	return out
}

// usedAfter collects names mentioned after s, including earlier statements of
// any loop enclosing s.
func usedAfter(fn *Function, s Stmt) map[string]bool {
	end := s.Span().End
	out := make(map[string]bool)
	Inspect(fn.Decl.Body, func(n Node) bool {
		if id, ok := n.(*Ident); ok && !id.Span().Start.Before(end) {
			out[id.Name] = true
		}
		return true
	})
	for _, l := range fn.enclosingLoops(s) {
		for name := range identsIn(l) {
			out[name] = true
		}
	}
	return out
}

// escapesRegion reports whether stores to name are visible to the caller.
func escapesRegion(fn *Function, name string) bool {
	sym := fn.Lookup(name)
	if sym == nil {
		return false
	}
	return sym.Scope == ScopeGlobal || (sym.Scope == ScopeParam && sym.IsPointer())
}

// -- Remove Clause --

// PlanRemoveClause drops name from the data clauses of r.
func PlanRemoveClause(t *ScopeTree, r *DataRegion, name string) *TransformResult {
	pr := r.Directive.Pragma
	res := &TransformResult{Kind: KindRemoveClause, Range: pr.Span(), Var: name}
	at := pr.Span().Start
	if _, ok := r.Declared[name]; !ok {
		return res.reject(illegal(SubInvalidParameter, at, "%s does not appear in a data clause of this region", name))
	}
	trimmed := r.Directive.withoutVar(name)
	for _, c := range t.Compute {
		if !uses(c, name) || !within(c, r) || c.Directive.Supplies(name) {
			continue
		}
		if suppliedAbove(c.Region, r, trimmed, name) {
			continue
		}
		return res.reject(illegal(SubScopeConflict, c.Stmt.Span().Start, "%s is used by the %s construct at %s and nothing else supplies it", name, c.Directive.Construct, c.Stmt.Span().Start))
	}
	res.Rewrite = "#pragma " + trimmed.String()
	return res.admit()
}

func uses(c *ComputeConstruct, name string) bool {
	i := sort.SearchStrings(c.Uses, name)
	return i < len(c.Uses) && c.Uses[i] == name
}

// within reports whether c lies inside region r.
func within(c *ComputeConstruct, r *DataRegion) bool {
	for cur := c.Region; cur != nil; cur = cur.Parent {
		if cur == r {
			return true
		}
	}
	return false
}

// suppliedAbove walks the regions enclosing a construct, substituting
// trimmed for the region being edited.
func suppliedAbove(from, edited *DataRegion, trimmed *Directive, name string) bool {
	for cur := from; cur != nil; cur = cur.Parent {
		d := cur.Directive
		if cur == edited {
			d = trimmed
		}
		if d.Supplies(name) {
			return true
		}
	}
	return false
}

// -- Merge --

// PlanMerge merges r with the next data region in the same block.
func PlanMerge(t *ScopeTree, r *DataRegion) *TransformResult {
	fn := t.Func
	res := &TransformResult{Kind: KindMerge, Range: stmtExtent(r.Stmt)}
	at := res.Range.Start

	block, ok := fn.Parent(r.Stmt).(*CompoundStmt)
	if !ok {
		return res.reject(illegal(SubInvalidParameter, at, "data construct is not a statement of a block"))
	}
	idx := -1
	for i, s := range block.Stmts {
		if s == r.Stmt {
			idx = i
		}
	}
	var second *DataRegion
	var between, after []Stmt
	for i, s := range block.Stmts[idx+1:] {
		if second = t.Region(s); second != nil {
			after = block.Stmts[idx+2+i:]
			break
		}
		between = append(between, s)
	}
	if second == nil {
		return res.reject(illegal(SubInvalidParameter, at, "no data construct follows in the same block"))
	}
	res.Range.End = second.Stmt.Span().End

	first, ok1 := r.Stmt.(*CompoundStmt)
	last, ok2 := second.Stmt.(*CompoundStmt)
	if !ok1 || !ok2 {
		return res.reject(illegal(SubMergeConflict, at, "both data constructs must govern compound statements"))
	}

	clauseVars := make(map[string]bool)
	for v := range r.Declared {
		clauseVars[v] = true
	}
	for v := range second.Declared {
		clauseVars[v] = true
	}
	for _, s := range between {
		for name := range hostWrites(fn, s) {
			if clauseVars[name] {
				return res.reject(illegal(SubMergeConflict, s.Span().Start, "host code between the constructs modifies %s", name))
			}
		}
		for name := range identsIn(s) {
			if c := r.Declared[name]; c == "copyout" || c == "copy" {
				return res.reject(illegal(SubMergeConflict, s.Span().Start, "host code between the constructs reads %s before it is copied out", name))
			}
		}
	}

	rest := append(append([]Stmt{}, between...), last.Stmts...)
	if name, bad := shadowConflict(first.Stmts, rest); bad {
		return res.reject(illegal(SubMergeConflict, at, "declaration of %s in the first construct would shadow its use after it", name))
	}
	if name, bad := redeclared(between, last.Stmts); bad {
		return res.reject(illegal(SubMergeConflict, at, "%s is declared both between the constructs and in the second", name))
	}
	used := make(map[string]bool)
	for _, s := range after {
		for name := range identsIn(s) {
			used[name] = true
		}
	}
	for name := range topDecls(between) {
		if used[name] {
			return res.reject(illegal(SubMergeConflict, at, "%s is declared between the constructs and used after them", name))
		}
	}

	merged, rej := mergeDirectives(r, second)
	if rej != nil {
		rej.Pos = at
		return res.reject(rej)
	}

	base := lineIndent(fn.File.Src, at)
	inner := base + indentUnit
	var b strings.Builder
	b.WriteString("#pragma " + merged.String() + "\n" + base + "{\n")
	for _, group := range [][]Stmt{first.Stmts, between, last.Stmts} {
		for _, s := range group {
			b.WriteString(inner + formatStmt(s, inner, nil) + "\n")
		}
	}
	b.WriteString(base + "}")
	res.Rewrite = b.String()
	return res.admit()
}

// stmtExtent is the span of s including the pragmas attached to it.
func stmtExtent(s Stmt) Range {
	r := s.Span()
	if prs := s.Directives(); len(prs) > 0 {
		r.Start = prs[0].Span().Start
	}
	return r
}

// hostWrites collects the variables s may modify, including array elements
// and pointer arguments to calls.
func hostWrites(fn *Function, s Stmt) map[string]bool {
	out := writtenNames(s)
	Inspect(s, func(n Node) bool {
		switch n := n.(type) {
		case *AssignExpr:
			if id := baseIdent(n.LHS); id != nil {
				out[id.Name] = true
			}
		case *UnaryExpr:
			if n.Op == "++" || n.Op == "--" || n.Op == "&" {
				if id := baseIdent(n.X); id != nil {
					out[id.Name] = true
				}
			}
		case *PostfixExpr:
			if id := baseIdent(n.X); id != nil {
				out[id.Name] = true
			}
		case *CallExpr:
			if pureFunctions[calleeName(n)] {
				return true
			}
			for _, a := range n.Args {
				if id, ok := stripParens(a).(*Ident); ok {
					if sym := fn.Lookup(id.Name); sym != nil && !sym.IsScalar() {
						out[id.Name] = true
					}
				}
			}
		}
		return true
	})
	return out
}

// shadowConflict finds a name declared at the top level of first that the
// statements in rest use without declaring it in a nested scope. Splicing
// them into one block would bind that use to the new declaration or
// redeclare it.
func shadowConflict(first, rest []Stmt) (string, bool) {
	top := topDecls(rest)
	anywhere := make(map[string]bool)
	used := make(map[string]bool)
	for _, s := range rest {
		for name := range declaredIn(s) {
			anywhere[name] = true
		}
		for name := range identsIn(s) {
			used[name] = true
		}
	}
	for _, name := range sortedKeys(topDecls(first)) {
		if used[name] && (top[name] || !anywhere[name]) {
			return name, true
		}
	}
	return "", false
}

// redeclared finds a name both statement lists declare at their top level.
func redeclared(a, b []Stmt) (string, bool) {
	tb := topDecls(b)
	for _, name := range sortedKeys(topDecls(a)) {
		if tb[name] {
			return name, true
		}
	}
	return "", false
}

// topDecls collects the names declared directly in stmts.
func topDecls(stmts []Stmt) map[string]bool {
	out := make(map[string]bool)
	for _, s := range stmts {
		if d, ok := s.(*DeclStmt); ok {
			for _, dc := range d.Decl.Declarators {
				out[dc.Name] = true
			}
		}
	}
	return out
}

// mergeClause combines the clauses two regions give one variable.
func mergeClause(a, b string) (string, bool) {
	switch {
	case a == "":
		return b, true
	case b == "" || a == b:
		return a, true
	case a == "deviceptr" || b == "deviceptr":
		return "", false
	case a == "create" || b == "create":
		other := a
		if a == "create" {
			other = b
		}
		if other == "present" {
			return "create", true
		}
		return "", false
	case a == "present":
		return b, true
	case b == "present":
		return a, true
	}
	// Any two distinct transfers amount to a copy.
	return "copy", true
}

func mergeDirectives(r1, r2 *DataRegion) (*Directive, *Rejection) {
	clause := make(map[string]string)
	var order []string
	for _, r := range []*DataRegion{r1, r2} {
		for _, v := range r.order {
			m, ok := mergeClause(clause[v], r.Declared[v])
			if !ok {
				return nil, illegal(SubMergeConflict, Pos{}, "%s is %s in one construct and %s in the other", v, clause[v], r.Declared[v])
			}
			if _, seen := clause[v]; !seen {
				order = append(order, v)
			}
			clause[v] = m
		}
	}

	out := &Directive{Pragma: r1.Directive.Pragma, Construct: "data"}
	for _, name := range dataClauses {
		c := &Clause{Name: name}
		for _, v := range order {
			if clause[v] == name {
				c.Args = append(c.Args, sectionOf(r1, r2, v))
			}
		}
		if len(c.Args) > 0 {
			out.Clauses = append(out.Clauses, c)
		}
	}

	other := make(map[string]string)
	for _, r := range []*DataRegion{r1, r2} {
		for _, c := range r.Directive.Clauses {
			if isDataClause(c.Name) {
				continue
			}
			text := c.String()
			if prev, ok := other[c.Name]; ok {
				if prev != text {
					return nil, illegal(SubMergeConflict, Pos{}, "constructs disagree on %s", c.Name)
				}
				continue
			}
			other[c.Name] = text
			out.Clauses = append(out.Clauses, c)
		}
	}
	return out, nil
}

// sectionOf returns the argument text naming v, preferring the first region's
// array section.
func sectionOf(r1, r2 *DataRegion, v string) string {
	for _, r := range []*DataRegion{r1, r2} {
		for _, c := range r.Directive.Clauses {
			if !isDataClause(c.Name) {
				continue
			}
			for _, a := range c.Args {
				if leadingIdent(a) == v {
					return a
				}
			}
		}
	}
	return v
}

// ClauseSummary prints a region's inferred clauses in a stable order.
func (r *DataRegion) ClauseSummary() string {
	byClause := make(map[string][]string)
	for v, c := range r.Inferred {
		byClause[c] = append(byClause[c], v)
	}
	var parts []string
	for _, c := range dataClauses {
		vs := byClause[c]
		if len(vs) == 0 {
			continue
		}
		sort.Strings(vs)
		parts = append(parts, fmt.Sprintf("%s(%s)", c, strings.Join(vs, ", ")))
	}
	return strings.Join(parts, " ")
}
