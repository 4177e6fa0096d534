package oaccrefac

// -- Function Context --

type SymbolScope int

const (
	ScopeGlobal SymbolScope = iota
	ScopeParam
	ScopeLocal
)

// Symbol is a declared variable visible in a function.
type Symbol struct {
	Name     string
	Spec     TypeSpec
	Pointers int
	Dims     int
	Restrict bool
	Scope    SymbolScope
	Decl     *Declarator
}

// IsPointer reports whether accesses through the symbol go through a pointer.
// Array parameters decay to pointers.
func (s *Symbol) IsPointer() bool {
	return s.Pointers > 0 || (s.Scope == ScopeParam && s.Dims > 0)
}

// IsArray reports whether the symbol names array storage declared in place.
func (s *Symbol) IsArray() bool { return s.Dims > 0 && s.Scope != ScopeParam }

// IsScalar reports whether the symbol is a plain arithmetic variable.
func (s *Symbol) IsScalar() bool { return s.Pointers == 0 && s.Dims == 0 }

// Function bundles a parsed function with the file it came from. It is
// immutable after construction and safe for concurrent readers.
type Function struct {
	File *File
	Decl *FuncDecl

	parents map[Node]Node
	locals  map[string]*Symbol
	params  map[string]*Symbol
	globals map[string]*Symbol
	consts  *ConstEnv
}

// NewFunction indexes fn for analysis.
func NewFunction(f *File, fn *FuncDecl) *Function {
	c := &Function{
		File:    f,
		Decl:    fn,
		parents: parentMap(fn),
		locals:  make(map[string]*Symbol),
		params:  make(map[string]*Symbol),
		globals: make(map[string]*Symbol),
		consts:  fileConsts(f),
	}
	for _, g := range f.Globals {
		for _, d := range g.Declarators {
			c.globals[d.Name] = newSymbol(g.Spec, d, ScopeGlobal)
		}
	}
	for _, p := range fn.Params {
		if p.Decl != nil && p.Decl.Name != "" {
			c.params[p.Decl.Name] = newSymbol(p.Spec, p.Decl, ScopeParam)
		}
	}
	Inspect(fn.Body, func(n Node) bool {
		if d, ok := n.(*Decl); ok {
			for _, dd := range d.Declarators {
				if _, seen := c.locals[dd.Name]; !seen {
					c.locals[dd.Name] = newSymbol(d.Spec, dd, ScopeLocal)
				}
			}
		}
		return true
	})
	return c
}

func newSymbol(spec TypeSpec, d *Declarator, scope SymbolScope) *Symbol {
	return &Symbol{
		Name:     d.Name,
		Spec:     spec,
		Pointers: d.Pointers,
		Dims:     len(d.Dims),
		Restrict: d.Restrict,
		Scope:    scope,
		Decl:     d,
	}
}

// Lookup resolves name, preferring locals over parameters over globals.
func (c *Function) Lookup(name string) *Symbol {
	if s, ok := c.locals[name]; ok {
		return s
	}
	if s, ok := c.params[name]; ok {
		return s
	}
	return c.globals[name]
}

// Parent returns the syntactic parent of n within the function.
func (c *Function) Parent(n Node) Node { return c.parents[n] }

// path returns the chain of nodes from the function down to n, inclusive.
func (c *Function) path(n Node) []Node {
	var out []Node
	for cur := n; cur != nil; cur = c.parents[cur] {
		out = append(out, cur)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// enclosingLoops lists the loops strictly enclosing n, outermost first.
func (c *Function) enclosingLoops(n Node) []*ForStmt {
	var out []*ForStmt
	for _, a := range c.path(n) {
		if f, ok := a.(*ForStmt); ok && Node(f) != n {
			out = append(out, f)
		}
	}
	return out
}

// -- Side-Effect Summaries --

// writtenNames collects identifiers assigned, incremented or decremented under n.
func writtenNames(n Node) map[string]bool {
	out := make(map[string]bool)
	Inspect(n, func(c Node) bool {
		switch c := c.(type) {
		case *AssignExpr:
			if id, ok := stripParens(c.LHS).(*Ident); ok {
				out[id.Name] = true
			}
		case *UnaryExpr:
			if c.Op == "++" || c.Op == "--" {
				if id, ok := stripParens(c.X).(*Ident); ok {
					out[id.Name] = true
				}
			}
		case *PostfixExpr:
			if id, ok := stripParens(c.X).(*Ident); ok {
				out[id.Name] = true
			}
		}
		return true
	})
	return out
}

// addressTaken collects identifiers whose address is taken under n.
func addressTaken(n Node) map[string]bool {
	out := make(map[string]bool)
	Inspect(n, func(c Node) bool {
		if u, ok := c.(*UnaryExpr); ok && u.Op == "&" {
			if id, ok := stripParens(u.X).(*Ident); ok {
				out[id.Name] = true
			}
		}
		return true
	})
	return out
}

func stripParens(x Expr) Expr {
	for {
		p, ok := x.(*ParenExpr)
		if !ok {
			return x
		}
		x = p.X
	}
}

// baseIdent returns the variable at the root of an lvalue such as a[i][j] or *p.
func baseIdent(x Expr) *Ident {
	for {
		switch e := x.(type) {
		case *Ident:
			return e
		case *ParenExpr:
			x = e.X
		case *IndexExpr:
			x = e.X
		case *MemberExpr:
			x = e.X
		case *UnaryExpr:
			if e.Op != "*" {
				return nil
			}
			x = e.X
		case *BinaryExpr:
			if e.Op != "+" && e.Op != "-" {
				return nil
			}
			x = e.X
		case *CastExpr:
			x = e.X
		default:
			return nil
		}
	}
}

func calleeName(call *CallExpr) string {
	if id, ok := stripParens(call.Fun).(*Ident); ok {
		return id.Name
	}
	return ""
}
