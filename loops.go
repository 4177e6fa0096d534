package oaccrefac

import (
	"fmt"
	"math/big"
)

// -- Loop Form Recognition --

// LoopHeader describes a counted for loop in canonical form.
type LoopHeader struct {
	Loop *ForStmt

	Var      string
	VarType  TypeSpec // meaningful when Declared
	Declared bool     // index declared in the header, e.g. "for (int i = 0; ...)"

	Lower Expr   // initial value as written
	Upper Expr   // bound as written
	Test  string // <, <=, > or >= with the index on the left

	Step       int64
	Decreasing bool

	// Folded bounds. Limit is exclusive: U for <, U+1 for <=, U-1 for >=.
	Start *AffineExpr
	Limit *AffineExpr
	Rec   *AddRec

	TripCount int64
	TripKnown bool
}

func (h *LoopHeader) String() string {
	trip := "?"
	if h.TripKnown {
		trip = fmt.Sprint(h.TripCount)
	}
	return fmt.Sprintf("%s: %s trips=%s", h.Var, h.Rec, trip)
}

// AbsStep returns |Step|.
func (h *LoopHeader) AbsStep() int64 {
	if h.Step < 0 {
		return -h.Step
	}
	return h.Step
}

// LoopNest is a perfect nest of counted loops, outermost first.
type LoopNest struct {
	Headers []*LoopHeader
	Body    Stmt // body of the innermost loop
}

// Depth returns the number of loops in the nest.
func (n *LoopNest) Depth() int { return len(n.Headers) }

// Vars lists the induction variables, outermost first.
func (n *LoopNest) Vars() []string {
	out := make([]string, len(n.Headers))
	for i, h := range n.Headers {
		out[i] = h.Var
	}
	return out
}

// RecognizerOptions tunes loop-form recognition.
type RecognizerOptions struct {
	// AllowDecrement admits counted loops running downwards (> or >= with a
	// negative step).
	AllowDecrement bool
}

// DefaultRecognizerOptions returns the default recognizer configuration.
func DefaultRecognizerOptions() RecognizerOptions {
	return RecognizerOptions{AllowDecrement: false}
}

var escapeCalls = map[string]bool{
	"exit": true, "_Exit": true, "quick_exit": true, "abort": true,
	"longjmp": true, "siglongjmp": true,
}

// Recognize checks that loop is a counted loop and derives its header.
func Recognize(fn *Function, loop *ForStmt, opts RecognizerOptions) (*LoopHeader, *Rejection) {
	at := loop.Span().Start
	h := &LoopHeader{Loop: loop}

	// Init: "T v = e" or "v = e".
	switch init := loop.Init.(type) {
	case *DeclStmt:
		ds := init.Decl.Declarators
		if len(ds) != 1 || ds[0].Init == nil || ds[0].Pointers > 0 || len(ds[0].Dims) > 0 {
			return nil, unsupported(at, "loop initializer must declare exactly one scalar index")
		}
		if !init.Decl.Spec.IsInteger() {
			return nil, unsupported(at, "loop index %s is not an integer", ds[0].Name)
		}
		h.Var, h.Lower, h.Declared, h.VarType = ds[0].Name, ds[0].Init, true, init.Decl.Spec
	case *ExprStmt:
		a, ok := stripParens(init.X).(*AssignExpr)
		if !ok || a.Op != "=" {
			return nil, unsupported(at, "loop initializer is not an assignment")
		}
		id, ok := stripParens(a.LHS).(*Ident)
		if !ok {
			return nil, unsupported(at, "loop initializer does not assign a variable")
		}
		if sym := fn.Lookup(id.Name); sym != nil && (!sym.IsScalar() || !sym.Spec.IsInteger()) {
			return nil, unsupported(at, "loop index %s is not an integer", id.Name)
		}
		h.Var, h.Lower = id.Name, a.RHS
	default:
		return nil, unsupported(at, "loop has no initializer")
	}

	// Test: "v OP e" or "e OP v".
	cond, ok := stripParens(loop.Cond).(*BinaryExpr)
	if loop.Cond == nil || !ok {
		return nil, unsupported(at, "loop test is not a comparison")
	}
	switch cond.Op {
	case "<", "<=", ">", ">=":
	default:
		return nil, unsupported(at, "loop test uses %s", cond.Op)
	}
	lhsIsVar := isIdentNamed(cond.X, h.Var)
	rhsIsVar := isIdentNamed(cond.Y, h.Var)
	switch {
	case lhsIsVar && !identsIn(cond.Y)[h.Var]:
		h.Test, h.Upper = cond.Op, cond.Y
	case rhsIsVar && !identsIn(cond.X)[h.Var]:
		h.Test, h.Upper = flipComparison(cond.Op), cond.X
	default:
		return nil, unsupported(at, "loop test does not compare %s against a bound", h.Var)
	}

	// Update.
	env := fn.Consts(loop)
	step, rej := stepOf(loop, h.Var, env)
	if rej != nil {
		return nil, rej
	}
	h.Step = step
	h.Decreasing = step < 0
	up := h.Test == "<" || h.Test == "<="
	if up == h.Decreasing {
		return nil, unsupported(at, "test %s %s disagrees with step %d", h.Var, h.Test, step)
	}
	if h.Decreasing && !opts.AllowDecrement {
		return nil, unsupported(at, "decrementing loops are not supported")
	}

	if rej := checkBody(loop, h.Var); rej != nil {
		return nil, rej
	}
	written := writtenNames(loop.Body)
	for name := range identsIn(h.Upper) {
		if written[name] {
			return nil, unsupported(at, "loop bound %s is modified in the loop body", name)
		}
	}

	// Fold bounds over constants and invariant symbols.
	resolve := func(name string) (*AffineExpr, bool) {
		if v, ok := env.Value(name); ok {
			return affineConst(v), true
		}
		if written[name] {
			return nil, false
		}
		if sym := fn.Lookup(name); sym != nil && !sym.IsScalar() {
			return nil, false
		}
		return affineSym(name), true
	}
	if start, ok := toAffine(h.Lower, resolve); ok {
		h.Start = start
		h.Rec = &AddRec{Start: start, Step: big.NewInt(step)}
	}
	if limit, ok := toAffine(h.Upper, resolve); ok {
		switch h.Test {
		case "<=":
			limit = limit.Add(affineInt(1))
		case ">=":
			limit = limit.Sub(affineInt(1))
		}
		h.Limit = limit
	}
	deriveTripCount(h)
	return h, nil
}

func isIdentNamed(x Expr, name string) bool {
	id, ok := stripParens(x).(*Ident)
	return ok && id.Name == name
}

func flipComparison(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	}
	return op
}

// stepOf extracts the constant increment from the loop update.
func stepOf(loop *ForStmt, v string, env *ConstEnv) (int64, *Rejection) {
	at := loop.Span().Start
	if loop.Post == nil {
		return 0, unsupported(at, "loop has no update")
	}
	var c *big.Int
	var ok bool
	switch post := stripParens(loop.Post).(type) {
	case *PostfixExpr:
		if isIdentNamed(post.X, v) {
			c, ok = unitStep(post.Op), true
		}
	case *UnaryExpr:
		if (post.Op == "++" || post.Op == "--") && isIdentNamed(post.X, v) {
			c, ok = unitStep(post.Op), true
		}
	case *AssignExpr:
		if !isIdentNamed(post.LHS, v) {
			break
		}
		switch post.Op {
		case "+=", "-=":
			if identsIn(post.RHS)[v] {
				break
			}
			if c, ok = env.Eval(post.RHS); !ok {
				return 0, unsupported(at, "loop step is not constant")
			}
			if post.Op == "-=" {
				c = new(big.Int).Neg(c)
			}
		case "=":
			c, ok = assignedStep(post.RHS, v, env)
			if !ok && identsIn(post.RHS)[v] {
				return 0, unsupported(at, "loop step is not constant")
			}
		}
	}
	if !ok {
		return 0, unsupported(at, "unsupported loop update %s", FormatExpr(loop.Post))
	}
	if c.Sign() == 0 {
		return 0, unsupported(at, "loop step is zero")
	}
	if !c.IsInt64() {
		return 0, unsupported(at, "loop step out of range")
	}
	return c.Int64(), nil
}

func unitStep(op string) *big.Int {
	if op == "++" {
		return big.NewInt(1)
	}
	return big.NewInt(-1)
}

// assignedStep matches v = v + c, v = c + v and v = v - c.
func assignedStep(rhs Expr, v string, env *ConstEnv) (*big.Int, bool) {
	b, ok := stripParens(rhs).(*BinaryExpr)
	if !ok {
		return nil, false
	}
	switch {
	case b.Op == "+" && isIdentNamed(b.X, v) && !identsIn(b.Y)[v]:
		return env.Eval(b.Y)
	case b.Op == "+" && isIdentNamed(b.Y, v) && !identsIn(b.X)[v]:
		return env.Eval(b.X)
	case b.Op == "-" && isIdentNamed(b.X, v) && !identsIn(b.Y)[v]:
		c, ok := env.Eval(b.Y)
		if !ok {
			return nil, false
		}
		return new(big.Int).Neg(c), true
	}
	return nil, false
}

// checkBody rejects bodies that leave the loop early or touch the index.
func checkBody(loop *ForStmt, v string) *Rejection {
	var rej *Rejection
	Inspect(loop.Body, func(n Node) bool {
		if rej != nil {
			return false
		}
		at := n.Span().Start
		switch n := n.(type) {
		case *BreakStmt:
			rej = unsupported(at, "loop body contains break")
		case *ContinueStmt:
			rej = unsupported(at, "loop body contains continue")
		case *GotoStmt:
			rej = unsupported(at, "loop body contains goto")
		case *ReturnStmt:
			rej = unsupported(at, "loop body contains return")
		case *CallExpr:
			if name := calleeName(n); escapeCalls[name] {
				rej = unsupported(at, "loop body calls %s", name)
			}
		case *AssignExpr:
			if isIdentNamed(n.LHS, v) {
				rej = unsupported(at, "induction variable %s is assigned in the loop body", v)
			}
		case *UnaryExpr:
			if (n.Op == "++" || n.Op == "--" || n.Op == "&") && isIdentNamed(n.X, v) {
				rej = unsupported(at, "induction variable %s is modified in the loop body", v)
			}
		case *PostfixExpr:
			if isIdentNamed(n.X, v) {
				rej = unsupported(at, "induction variable %s is modified in the loop body", v)
			}
		case *Declarator:
			if n.Name == v {
				rej = unsupported(at, "loop body redeclares induction variable %s", v)
			}
		}
		return rej == nil
	})
	return rej
}

// RecognizeNest recognizes loop and every loop perfectly nested inside it.
// Descent stops at the first body that is not a single for statement or at
// an inner loop that is not in counted form.
func RecognizeNest(fn *Function, loop *ForStmt, opts RecognizerOptions) (*LoopNest, *Rejection) {
	h, rej := Recognize(fn, loop, opts)
	if rej != nil {
		return nil, rej
	}
	nest := &LoopNest{Headers: []*LoopHeader{h}, Body: loop.Body}
	seen := map[string]bool{h.Var: true}
	for {
		inner := singleFor(nest.Body)
		if inner == nil {
			break
		}
		ih, rej := Recognize(fn, inner, opts)
		if rej != nil {
			break
		}
		if seen[ih.Var] {
			return nil, unsupported(inner.Span().Start, "induction variable %s reused in nest", ih.Var)
		}
		seen[ih.Var] = true
		nest.Headers = append(nest.Headers, ih)
		nest.Body = inner.Body
	}
	return nest, nil
}

// singleFor returns the loop that makes up body, if any.
func singleFor(body Stmt) *ForStmt {
	switch b := body.(type) {
	case *ForStmt:
		return b
	case *CompoundStmt:
		if len(b.Stmts) == 1 {
			if f, ok := b.Stmts[0].(*ForStmt); ok {
				return f
			}
		}
	}
	return nil
}
