package oaccrefac

import (
	"strconv"
	"strings"
)

// -- Source Printer --
//
// The printer regenerates C text from the syntax tree. Identifier
// substitution lets the rewriters print a loop body with the induction
// variable replaced by an offset expression; parentheses are inserted
// wherever the replacement binds more loosely than its context requires.

const (
	precComma = iota
	precAssign
	precCond
	precBinaryBase // binaryPrec values are added to this
	precUnary      = precBinaryBase + 11
	precPostfix    = precUnary + 1
	precPrimary    = precPostfix + 1
)

const indentUnit = "    "

type printer struct {
	b     strings.Builder
	subst map[string]Expr
	base  string
}

// FormatExpr prints x as C source.
func FormatExpr(x Expr) string {
	var p printer
	p.expr(x, precComma)
	return p.b.String()
}

// FormatStmt prints s as C source, starting at indentation level zero.
func FormatStmt(s Stmt) string {
	var p printer
	p.stmt(s, 0)
	return p.b.String()
}

// formatStmt prints s with base as the indentation prefix of every line but
// the first, replacing identifiers named in subst.
func formatStmt(s Stmt, base string, subst map[string]Expr) string {
	p := printer{subst: subst, base: base}
	p.stmt(s, 0)
	return p.b.String()
}

func formatExprSubst(x Expr, subst map[string]Expr) string {
	p := printer{subst: subst}
	p.expr(x, precComma)
	return p.b.String()
}

// offsetExpr builds "name + off" (or "name - |off|"); off 0 yields the bare name.
func offsetExpr(name string, off int64) Expr {
	id := &Ident{Name: name}
	if off == 0 {
		return id
	}
	op := "+"
	if off < 0 {
		op = "-"
		off = -off
	}
	return &BinaryExpr{Op: op, X: id, Y: intLit(off)}
}

func intLit(v int64) *IntLit {
	return &IntLit{Text: strconv.FormatInt(v, 10), Value: v}
}

func exprPrec(x Expr) int {
	switch x := x.(type) {
	case *BinaryExpr:
		if x.Op == "," {
			return precComma
		}
		return precBinaryBase + binaryPrec[x.Op]
	case *AssignExpr:
		return precAssign
	case *CondExpr:
		return precCond
	case *UnaryExpr, *CastExpr, *SizeofExpr:
		return precUnary
	case *PostfixExpr, *IndexExpr, *CallExpr, *MemberExpr:
		return precPostfix
	case *IntLit:
		if x.Value < 0 {
			return precUnary
		}
	}
	return precPrimary
}

func (p *printer) write(s ...string) {
	for _, x := range s {
		p.b.WriteString(x)
	}
}

func (p *printer) expr(x Expr, need int) {
	if id, ok := x.(*Ident); ok && p.subst != nil {
		if r, ok := p.subst[id.Name]; ok {
			saved := p.subst
			p.subst = nil
			p.expr(r, need)
			p.subst = saved
			return
		}
	}
	prec := exprPrec(x)
	if prec < need {
		p.write("(")
		defer p.write(")")
	}
	switch x := x.(type) {
	case *Ident:
		p.write(x.Name)
	case *IntLit:
		p.write(x.Text)
	case *FloatLit:
		p.write(x.Text)
	case *CharLit:
		p.write(x.Text)
	case *StringLit:
		p.write(x.Text)
	case *ParenExpr:
		p.write("(")
		p.expr(x.X, precComma)
		p.write(")")
	case *UnaryExpr:
		p.write(x.Op)
		if inner, ok := x.X.(*UnaryExpr); ok && inner.Op[0] == x.Op[0] {
			p.write(" ")
		}
		p.expr(x.X, precUnary)
	case *PostfixExpr:
		p.expr(x.X, precPostfix)
		p.write(x.Op)
	case *BinaryExpr:
		if x.Op == "," {
			p.expr(x.X, precComma)
			p.write(", ")
			p.expr(x.Y, precAssign)
			return
		}
		p.expr(x.X, prec)
		p.write(" ", x.Op, " ")
		p.expr(x.Y, prec+1)
	case *AssignExpr:
		p.expr(x.LHS, precUnary)
		p.write(" ", x.Op, " ")
		p.expr(x.RHS, precAssign)
	case *CondExpr:
		p.expr(x.Cond, precBinaryBase+1)
		p.write(" ? ")
		p.expr(x.Then, precComma)
		p.write(" : ")
		p.expr(x.Else, precCond)
	case *IndexExpr:
		p.expr(x.X, precPostfix)
		p.write("[")
		p.expr(x.Index, precComma)
		p.write("]")
	case *CallExpr:
		p.expr(x.Fun, precPostfix)
		p.write("(")
		for i, a := range x.Args {
			if i > 0 {
				p.write(", ")
			}
			p.expr(a, precAssign)
		}
		p.write(")")
	case *MemberExpr:
		p.expr(x.X, precPostfix)
		if x.Arrow {
			p.write("->")
		} else {
			p.write(".")
		}
		p.write(x.Name)
	case *CastExpr:
		p.write("(", typeNameString(x.Type), ")")
		p.expr(x.X, precUnary)
	case *SizeofExpr:
		if x.Type != nil {
			p.write("sizeof(", typeNameString(x.Type), ")")
			return
		}
		p.write("sizeof")
		if _, ok := x.X.(*ParenExpr); !ok {
			p.write(" ")
		}
		p.expr(x.X, precUnary)
	case *InitList:
		p.write("{")
		for i, e := range x.Elems {
			if i > 0 {
				p.write(", ")
			}
			p.expr(e, precAssign)
		}
		p.write("}")
	}
}

func typeNameString(t *TypeName) string {
	if t.Pointers == 0 {
		return t.Spec.String()
	}
	return t.Spec.String() + " " + strings.Repeat("*", t.Pointers)
}

func (p *printer) declarator(d *Declarator) {
	p.write(strings.Repeat("*", d.Pointers))
	if d.Restrict {
		p.write("restrict ")
	}
	p.write(d.Name)
	for _, dim := range d.Dims {
		p.write("[")
		if dim != nil {
			p.expr(dim, precAssign)
		}
		p.write("]")
	}
	if d.Func {
		p.write("(")
		for i, prm := range d.Params {
			if i > 0 {
				p.write(", ")
			}
			p.write(prm.Spec.String())
			if prm.Decl != nil && (prm.Decl.Name != "" || prm.Decl.Pointers > 0 || len(prm.Decl.Dims) > 0) {
				p.write(" ")
				p.declarator(prm.Decl)
			}
		}
		if d.Variadic {
			if len(d.Params) > 0 {
				p.write(", ")
			}
			p.write("...")
		}
		p.write(")")
	}
	if d.Init != nil {
		p.write(" = ")
		p.expr(d.Init, precAssign)
	}
}

func (p *printer) decl(d *Decl) {
	p.write(d.Spec.String())
	for i, dd := range d.Declarators {
		if i > 0 {
			p.write(",")
		}
		p.write(" ")
		p.declarator(dd)
	}
}

func (p *printer) indent(depth int) string {
	return p.base + strings.Repeat(indentUnit, depth)
}

// body prints a nested statement: a compound on the same line, anything else
// on its own line one level deeper.
func (p *printer) body(s Stmt, depth int) {
	if c, ok := s.(*CompoundStmt); ok && len(c.Pragmas) == 0 {
		p.write(" ")
		p.stmt(c, depth)
		return
	}
	p.write("\n", p.indent(depth+1))
	p.stmt(s, depth+1)
}

func (p *printer) stmt(s Stmt, depth int) {
	for _, pr := range s.Directives() {
		p.write("#pragma ", pr.Text, "\n", p.indent(depth))
	}
	switch s := s.(type) {
	case *CompoundStmt:
		p.write("{\n")
		for _, c := range s.Stmts {
			p.write(p.indent(depth + 1))
			p.stmt(c, depth+1)
			p.write("\n")
		}
		p.write(p.indent(depth), "}")
	case *DeclStmt:
		p.decl(s.Decl)
		p.write(";")
	case *ExprStmt:
		p.expr(s.X, precComma)
		p.write(";")
	case *NullStmt:
		p.write(";")
	case *ForStmt:
		p.write("for (")
		switch init := s.Init.(type) {
		case *DeclStmt:
			p.decl(init.Decl)
		case *ExprStmt:
			p.expr(init.X, precComma)
		}
		p.write(";")
		if s.Cond != nil {
			p.write(" ")
			p.expr(s.Cond, precComma)
		}
		p.write(";")
		if s.Post != nil {
			p.write(" ")
			p.expr(s.Post, precComma)
		}
		p.write(")")
		p.body(s.Body, depth)
	case *WhileStmt:
		p.write("while (")
		p.expr(s.Cond, precComma)
		p.write(")")
		p.body(s.Body, depth)
	case *DoStmt:
		p.write("do")
		p.body(s.Body, depth)
		if _, ok := s.Body.(*CompoundStmt); ok {
			p.write(" ")
		} else {
			p.write("\n", p.indent(depth))
		}
		p.write("while (")
		p.expr(s.Cond, precComma)
		p.write(");")
	case *IfStmt:
		p.write("if (")
		p.expr(s.Cond, precComma)
		p.write(")")
		p.body(s.Then, depth)
		if s.Else != nil {
			if _, ok := s.Then.(*CompoundStmt); ok {
				p.write(" else")
			} else {
				p.write("\n", p.indent(depth), "else")
			}
			if _, ok := s.Else.(*IfStmt); ok {
				p.write(" ")
				p.stmt(s.Else, depth)
			} else {
				p.body(s.Else, depth)
			}
		}
	case *SwitchStmt:
		p.write("switch (")
		p.expr(s.Tag, precComma)
		p.write(")")
		p.body(s.Body, depth)
	case *CaseStmt:
		if s.Default {
			p.write("default:")
		} else {
			p.write("case ")
			p.expr(s.Value, precCond)
			p.write(":")
		}
		p.write("\n", p.indent(depth+1))
		p.stmt(s.Body, depth+1)
	case *LabeledStmt:
		p.write(s.Label, ":\n", p.indent(depth))
		p.stmt(s.Body, depth)
	case *BreakStmt:
		p.write("break;")
	case *ContinueStmt:
		p.write("continue;")
	case *GotoStmt:
		p.write("goto ", s.Label, ";")
	case *ReturnStmt:
		p.write("return")
		if s.X != nil {
			p.write(" ")
			p.expr(s.X, precComma)
		}
		p.write(";")
	}
}
