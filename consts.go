package oaccrefac

import (
	"math/big"
)

// -- Constant Environment --

// ConstEnv maps names to integer values known at a program point. Sources are
// object-like #defines, const-qualified globals, and straight-line
// initializers and assignments that precede the point in its function.
type ConstEnv struct {
	vals map[string]*big.Int
}

func newConstEnv() *ConstEnv { return &ConstEnv{vals: make(map[string]*big.Int)} }

func (e *ConstEnv) clone() *ConstEnv {
	out := newConstEnv()
	for k, v := range e.vals {
		out.vals[k] = v
	}
	return out
}

// Value returns the constant bound to name.
func (e *ConstEnv) Value(name string) (*big.Int, bool) {
	v, ok := e.vals[name]
	return v, ok
}

func (e *ConstEnv) kill(names map[string]bool) {
	for n := range names {
		delete(e.vals, n)
	}
}

// Eval folds x to an integer. It fails on anything that is not an integer
// constant expression under the environment.
func (e *ConstEnv) Eval(x Expr) (*big.Int, bool) {
	switch x := x.(type) {
	case *IntLit:
		return big.NewInt(x.Value), true
	case *CharLit:
		return big.NewInt(x.Value), true
	case *Ident:
		if e == nil {
			return nil, false
		}
		return e.Value(x.Name)
	case *ParenExpr:
		return e.Eval(x.X)
	case *CastExpr:
		if x.Type.Pointers > 0 || !x.Type.Spec.IsInteger() {
			return nil, false
		}
		return e.Eval(x.X)
	case *UnaryExpr:
		v, ok := e.Eval(x.X)
		if !ok {
			return nil, false
		}
		switch x.Op {
		case "-":
			return new(big.Int).Neg(v), true
		case "+":
			return v, true
		case "~":
			return new(big.Int).Not(v), true
		case "!":
			return boolInt(v.Sign() == 0), true
		}
	case *BinaryExpr:
		return e.evalBinary(x)
	case *CondExpr:
		c, ok := e.Eval(x.Cond)
		if !ok {
			return nil, false
		}
		if c.Sign() != 0 {
			return e.Eval(x.Then)
		}
		return e.Eval(x.Else)
	}
	return nil, false
}

func (e *ConstEnv) evalBinary(x *BinaryExpr) (*big.Int, bool) {
	l, ok := e.Eval(x.X)
	if !ok {
		return nil, false
	}
	switch x.Op {
	case "&&":
		if l.Sign() == 0 {
			return big.NewInt(0), true
		}
	case "||":
		if l.Sign() != 0 {
			return big.NewInt(1), true
		}
	}
	r, ok := e.Eval(x.Y)
	if !ok {
		return nil, false
	}
	z := new(big.Int)
	switch x.Op {
	case "+":
		return z.Add(l, r), true
	case "-":
		return z.Sub(l, r), true
	case "*":
		return z.Mul(l, r), true
	case "/":
		if r.Sign() == 0 {
			return nil, false
		}
		return z.Quo(l, r), true
	case "%":
		if r.Sign() == 0 {
			return nil, false
		}
		return z.Rem(l, r), true
	case "<<", ">>":
		if r.Sign() < 0 || !r.IsInt64() || r.Int64() > 63 {
			return nil, false
		}
		if x.Op == "<<" {
			return z.Lsh(l, uint(r.Int64())), true
		}
		return z.Rsh(l, uint(r.Int64())), true
	case "&":
		return z.And(l, r), true
	case "|":
		return z.Or(l, r), true
	case "^":
		return z.Xor(l, r), true
	case "<":
		return boolInt(l.Cmp(r) < 0), true
	case "<=":
		return boolInt(l.Cmp(r) <= 0), true
	case ">":
		return boolInt(l.Cmp(r) > 0), true
	case ">=":
		return boolInt(l.Cmp(r) >= 0), true
	case "==":
		return boolInt(l.Cmp(r) == 0), true
	case "!=":
		return boolInt(l.Cmp(r) != 0), true
	case "&&", "||":
		return boolInt(r.Sign() != 0), true
	case ",":
		return r, true
	}
	return nil, false
}

func boolInt(b bool) *big.Int {
	if b {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

// fileConsts folds #defines (to a fixed point, since macros may refer to each
// other) and const-qualified scalar globals.
func fileConsts(f *File) *ConstEnv {
	env := newConstEnv()
	pending := make(map[string]Expr)
	for name, text := range f.Defines {
		if text == "" {
			continue
		}
		if x, err := ParseExpr(text); err == nil {
			pending[name] = x
		}
	}
	for progress := true; progress && len(pending) > 0; {
		progress = false
		for name, x := range pending {
			if v, ok := env.Eval(x); ok {
				env.vals[name] = v
				delete(pending, name)
				progress = true
			}
		}
	}
	for _, g := range f.Globals {
		if !g.Spec.Const || !g.Spec.IsInteger() {
			continue
		}
		for _, d := range g.Declarators {
			if d.Init == nil || d.Pointers > 0 || len(d.Dims) > 0 || d.Func {
				continue
			}
			if v, ok := env.Eval(d.Init); ok {
				env.vals[d.Name] = v
			}
		}
	}
	return env
}

// Consts returns the constant environment in effect just before at.
func (c *Function) Consts(at Node) *ConstEnv {
	env := c.consts.clone()
	path := c.path(at)
	for i, n := range path {
		switch n := n.(type) {
		case *ForStmt, *WhileStmt, *DoStmt:
			// Anything the enclosing loop writes varies between its iterations.
			if n != at {
				env.kill(writtenNames(n))
			}
		case *CompoundStmt:
			if i+1 >= len(path) {
				continue
			}
			for _, s := range n.Stmts {
				if Node(s) == path[i+1] {
					break
				}
				env.exec(s)
			}
		}
	}
	env.kill(addressTaken(c.Decl.Body))
	return env
}

// exec applies the effect of one statement on a straight-line path.
func (e *ConstEnv) exec(s Stmt) {
	switch s := s.(type) {
	case *DeclStmt:
		for _, d := range s.Decl.Declarators {
			delete(e.vals, d.Name)
			if d.Init == nil || d.Pointers > 0 || len(d.Dims) > 0 || !s.Decl.Spec.IsInteger() {
				continue
			}
			if v, ok := e.Eval(d.Init); ok {
				e.vals[d.Name] = v
			}
		}
	case *ExprStmt:
		name, v, ok := e.assignment(s.X)
		e.kill(writtenNames(s))
		if ok {
			e.vals[name] = v
		}
	default:
		e.kill(writtenNames(s))
	}
}

// assignment folds a top-level scalar update such as "n = 4", "n *= 2" or "n++".
func (e *ConstEnv) assignment(x Expr) (string, *big.Int, bool) {
	switch x := stripParens(x).(type) {
	case *AssignExpr:
		id, ok := stripParens(x.LHS).(*Ident)
		if !ok {
			return "", nil, false
		}
		if x.Op == "=" {
			v, ok := e.Eval(x.RHS)
			return id.Name, v, ok
		}
		v, ok := e.Eval(&BinaryExpr{Op: x.Op[:len(x.Op)-1], X: id, Y: x.RHS})
		return id.Name, v, ok
	case *PostfixExpr:
		return e.step(x.X, x.Op)
	case *UnaryExpr:
		if x.Op == "++" || x.Op == "--" {
			return e.step(x.X, x.Op)
		}
	}
	return "", nil, false
}

func (e *ConstEnv) step(x Expr, op string) (string, *big.Int, bool) {
	id, ok := stripParens(x).(*Ident)
	if !ok {
		return "", nil, false
	}
	v, ok := e.Value(id.Name)
	if !ok {
		return "", nil, false
	}
	if op == "++" {
		return id.Name, new(big.Int).Add(v, big.NewInt(1)), true
	}
	return id.Name, new(big.Int).Sub(v, big.NewInt(1)), true
}
