package oaccrefac

import "strings"

// -- Syntax Tree --

// Node is any syntax tree node.
type Node interface {
	Span() Range
}

type span struct{ rng Range }

func (s *span) Span() Range { return s.rng }

// Expr is any C expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is any C statement node. Pragmas written immediately before a
// statement are attached to it.
type Stmt interface {
	Node
	Directives() []*Pragma
	stmtNode()
}

type stmtBase struct {
	span
	Pragmas []*Pragma
}

func (s *stmtBase) Directives() []*Pragma { return s.Pragmas }
func (s *stmtBase) stmtNode()             {}
func (s *stmtBase) attach(p []*Pragma)    { s.Pragmas = p }

type exprBase struct{ span }

func (exprBase) exprNode() {}

// -- Expressions --

type Ident struct {
	exprBase
	Name string
}

type IntLit struct {
	exprBase
	Text  string
	Value int64
}

type FloatLit struct {
	exprBase
	Text string
}

type CharLit struct {
	exprBase
	Text  string
	Value int64
}

type StringLit struct {
	exprBase
	Text string
}

type ParenExpr struct {
	exprBase
	X Expr
}

// UnaryExpr is a prefix operator: - + ! ~ * & ++ --.
type UnaryExpr struct {
	exprBase
	Op string
	X  Expr
}

// PostfixExpr is x++ or x--.
type PostfixExpr struct {
	exprBase
	Op string
	X  Expr
}

// BinaryExpr includes the comma operator.
type BinaryExpr struct {
	exprBase
	Op string
	X  Expr
	Y  Expr
}

type AssignExpr struct {
	exprBase
	Op  string
	LHS Expr
	RHS Expr
}

type CondExpr struct {
	exprBase
	Cond Expr
	Then Expr
	Else Expr
}

type IndexExpr struct {
	exprBase
	X     Expr
	Index Expr
}

type CallExpr struct {
	exprBase
	Fun  Expr
	Args []Expr
}

type MemberExpr struct {
	exprBase
	X     Expr
	Name  string
	Arrow bool
}

type CastExpr struct {
	exprBase
	Type *TypeName
	X    Expr
}

// SizeofExpr holds either Type or X.
type SizeofExpr struct {
	exprBase
	Type *TypeName
	X    Expr
}

// InitList is a brace initializer. Designators are dropped.
type InitList struct {
	exprBase
	Elems []Expr
}

// -- Types and Declarations --

// TypeSpec is the declaration-specifier part of a declaration.
type TypeSpec struct {
	Storage  string // static, extern, typedef, register, auto or empty
	Const    bool
	Volatile bool
	Base     string // e.g. "int", "unsigned long", "struct point", "size_t"
}

func (t TypeSpec) String() string {
	var parts []string
	if t.Storage != "" {
		parts = append(parts, t.Storage)
	}
	if t.Const {
		parts = append(parts, "const")
	}
	if t.Volatile {
		parts = append(parts, "volatile")
	}
	parts = append(parts, t.Base)
	return strings.Join(parts, " ")
}

// IsInteger reports whether the base type is an integer type.
func (t TypeSpec) IsInteger() bool {
	switch t.Base {
	case "float", "double", "long double", "void":
		return false
	}
	if strings.HasPrefix(t.Base, "struct ") || strings.HasPrefix(t.Base, "union ") {
		return false
	}
	return true
}

// TypeName is a type written in a cast or sizeof.
type TypeName struct {
	Spec     TypeSpec
	Pointers int
}

func (t *TypeName) String() string {
	return t.Spec.String() + strings.Repeat("*", t.Pointers)
}

type Declarator struct {
	span
	Name     string
	Pointers int
	Restrict bool
	Dims     []Expr // a nil entry is an unsized dimension
	Func     bool
	Params   []*Param
	Variadic bool
	Init     Expr
}

func (d *Declarator) IsPointer() bool { return d.Pointers > 0 }
func (d *Declarator) IsArray() bool   { return len(d.Dims) > 0 }

type Param struct {
	Spec TypeSpec
	Decl *Declarator
}

type Decl struct {
	span
	Spec        TypeSpec
	Declarators []*Declarator
}

// -- Statements --

type CompoundStmt struct {
	stmtBase
	Stmts []Stmt
}

type DeclStmt struct {
	stmtBase
	Decl *Decl
}

type ExprStmt struct {
	stmtBase
	X Expr
}

type NullStmt struct{ stmtBase }

// ForStmt.Init is nil, a *DeclStmt or an *ExprStmt.
type ForStmt struct {
	stmtBase
	Init Stmt
	Cond Expr
	Post Expr
	Body Stmt
}

type WhileStmt struct {
	stmtBase
	Cond Expr
	Body Stmt
}

type DoStmt struct {
	stmtBase
	Body Stmt
	Cond Expr
}

type IfStmt struct {
	stmtBase
	Cond Expr
	Then Stmt
	Else Stmt
}

type SwitchStmt struct {
	stmtBase
	Tag  Expr
	Body Stmt
}

type CaseStmt struct {
	stmtBase
	Value   Expr
	Default bool
	Body    Stmt
}

type LabeledStmt struct {
	stmtBase
	Label string
	Body  Stmt
}

type BreakStmt struct{ stmtBase }
type ContinueStmt struct{ stmtBase }

type GotoStmt struct {
	stmtBase
	Label string
}

type ReturnStmt struct {
	stmtBase
	X Expr
}

// Pragma is a #pragma line. Text excludes the "#pragma" prefix.
type Pragma struct {
	span
	Text string
}

// -- Translation Unit --

type FuncDecl struct {
	span
	Name     string
	Result   TypeSpec
	Pointers int
	Params   []*Param
	Body     *CompoundStmt
}

type File struct {
	Name     string
	Src      []byte
	Funcs    []*FuncDecl
	Globals  []*Decl
	Defines  map[string]string // object-like macros: name -> replacement text
	Typedefs map[string]bool
}

// Text returns the source text covered by r.
func (f *File) Text(r Range) string {
	if r.Start.Offset < 0 || r.End.Offset > len(f.Src) || r.Start.Offset > r.End.Offset {
		return ""
	}
	return string(f.Src[r.Start.Offset:r.End.Offset])
}

// FuncAt returns the function whose body covers p.
func (f *File) FuncAt(p Pos) *FuncDecl {
	for _, fn := range f.Funcs {
		if fn.Span().Covers(p) {
			return fn
		}
	}
	return nil
}

// -- Traversal --

// Inspect walks the tree rooted at n in depth-first order, calling f for each
// node. Children are skipped when f returns false.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range children(n) {
		Inspect(c, f)
	}
}

func children(n Node) []Node {
	var out []Node
	add := func(ns ...Node) {
		for _, c := range ns {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	switch n := n.(type) {
	case *ParenExpr:
		add(n.X)
	case *UnaryExpr:
		add(n.X)
	case *PostfixExpr:
		add(n.X)
	case *BinaryExpr:
		add(n.X, n.Y)
	case *AssignExpr:
		add(n.LHS, n.RHS)
	case *CondExpr:
		add(n.Cond, n.Then, n.Else)
	case *IndexExpr:
		add(n.X, n.Index)
	case *CallExpr:
		add(n.Fun)
		for _, a := range n.Args {
			add(a)
		}
	case *MemberExpr:
		add(n.X)
	case *CastExpr:
		add(n.X)
	case *SizeofExpr:
		add(n.X)
	case *InitList:
		for _, e := range n.Elems {
			add(e)
		}
	case *Declarator:
		for _, d := range n.Dims {
			add(d)
		}
		add(n.Init)
	case *Decl:
		for _, d := range n.Declarators {
			add(d)
		}
	case *DeclStmt:
		add(n.Decl)
	case *CompoundStmt:
		for _, s := range n.Stmts {
			add(s)
		}
	case *ExprStmt:
		add(n.X)
	case *ForStmt:
		add(n.Init, n.Cond, n.Post, n.Body)
	case *WhileStmt:
		add(n.Cond, n.Body)
	case *DoStmt:
		add(n.Body, n.Cond)
	case *IfStmt:
		add(n.Cond, n.Then, n.Else)
	case *SwitchStmt:
		add(n.Tag, n.Body)
	case *CaseStmt:
		add(n.Value, n.Body)
	case *LabeledStmt:
		add(n.Body)
	case *ReturnStmt:
		add(n.X)
	case *FuncDecl:
		if n.Body != nil {
			add(n.Body)
		}
	}
	return out
}

// parentMap records the parent of every node under root.
func parentMap(root Node) map[Node]Node {
	parents := make(map[Node]Node)
	var walk func(n Node)
	walk = func(n Node) {
		for _, c := range children(n) {
			parents[c] = n
			walk(c)
		}
	}
	walk(root)
	return parents
}

// identsIn lists the names of all identifiers under n.
func identsIn(n Node) map[string]bool {
	names := make(map[string]bool)
	Inspect(n, func(c Node) bool {
		if id, ok := c.(*Ident); ok {
			names[id.Name] = true
		}
		return true
	})
	return names
}

// stmtList flattens a compound statement into its statements.
func stmtList(s Stmt) []Stmt {
	if c, ok := s.(*CompoundStmt); ok {
		return c.Stmts
	}
	if s == nil {
		return nil
	}
	return []Stmt{s}
}
