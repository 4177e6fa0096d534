package oaccrefac

import (
	"strings"
)

// -- Loop Unrolling --

// PlanUnroll decides whether loop may be unrolled by factor and, if so,
// builds the rewrite. Checks run in a fixed order and the first failure is
// reported.
func PlanUnroll(fn *Function, loop *ForStmt, factor int, opts RecognizerOptions) *TransformResult {
	res := &TransformResult{Kind: KindUnroll, Range: loop.Span(), Factor: factor}
	at := loop.Span().Start

	h, rej := Recognize(fn, loop, opts)
	if rej != nil {
		return res.reject(rej)
	}
	res.Var = h.Var
	if isEmptyBody(loop.Body) {
		return res.reject(unsupported(at, "loop body is empty, nothing to unroll"))
	}
	if factor <= 0 {
		return res.reject(illegal(SubInvalidFactor, at, "unroll factor %d must be positive", factor))
	}
	if factor == 1 {
		res.TripCount, res.TripKnown = h.TripCount, h.TripKnown
		res.Rewrite = fn.File.Text(loop.Span())
		return res.admit()
	}
	if !h.TripKnown {
		return res.reject(illegal(SubUnknownTripCount, at, "trip count of %s loop is not constant", h.Var))
	}
	res.TripCount, res.TripKnown = h.TripCount, true
	if int64(factor) > h.TripCount {
		return res.reject(illegal(SubFactorExceedsTripCount, at, "factor %d exceeds trip count %d", factor, h.TripCount))
	}

	sum := Analyze(fn, &LoopNest{Headers: []*LoopHeader{h}, Body: loop.Body}, opts)
	res.Warnings = sum.Warnings
	if rej := unrollDependences(sum, factor); rej != nil {
		return res.reject(rej)
	}

	res.Residual = h.TripCount % int64(factor)
	res.Rewrite = unrollRewrite(fn, h, factor, res.Residual)
	return res.admit()
}

func unrollDependences(sum *DependenceSummary, factor int) *Rejection {
	if e := sum.Unknown(); e != nil {
		return &Rejection{
			Class:  e.Cause,
			Detail: "possible dependence between " + e.Src.Name + " at " + e.Src.Pos.String() + " and " + e.Sink.Name + " at " + e.Sink.Pos.String(),
			Pos:    e.Sink.Pos,
		}
	}
	for _, e := range sum.Edges {
		if e.Scalar {
			continue
		}
		switch e.Dirs[0] {
		case DirGT:
			return illegal(SubDependenceViolation, e.Sink.Pos, "%s dependence %s runs backwards", e.Kind, e)
		case DirLT:
			if d, ok := e.DistanceAt(0); ok {
				if d < 0 {
					d = -d
				}
				if d > 0 && d < int64(factor) {
					return illegal(SubDependenceViolation, e.Sink.Pos,
						"%s dependence on %s with distance %d falls inside an unrolled group of %d", e.Kind, e.Src.Name, d, factor)
				}
			}
		}
	}
	return nil
}

// unrollRewrite replicates the body factor times in a loop that covers the
// first trip-residual iterations, then runs the rest in a residual loop.
func unrollRewrite(fn *Function, h *LoopHeader, factor int, residual int64) string {
	loop := h.Loop
	base := lineIndent(fn.File.Src, loop.Span().Start)
	hoist := h.Declared && residual > 0

	span := (h.TripCount - residual) * h.Step
	var bound Expr
	switch {
	case h.Start.IsConst() && h.Start.Const.IsInt64():
		bound = intLit(h.Start.Const.Int64() + span)
	case span < 0:
		bound = &BinaryExpr{Op: "-", X: h.Lower, Y: intLit(-span)}
	default:
		bound = &BinaryExpr{Op: "+", X: h.Lower, Y: intLit(span)}
	}
	test, post := "<", &AssignExpr{Op: "+=", LHS: &Ident{Name: h.Var}, RHS: intLit(int64(factor) * h.Step)}
	if h.Decreasing {
		test, post = ">", &AssignExpr{Op: "-=", LHS: &Ident{Name: h.Var}, RHS: intLit(int64(factor) * -h.Step)}
	}
	cond := &BinaryExpr{Op: test, X: &Ident{Name: h.Var}, Y: bound}

	var init string
	switch s := loop.Init.(type) {
	case *DeclStmt:
		if !hoist {
			init = strings.TrimSuffix(FormatStmt(s), ";")
		}
	case *ExprStmt:
		init = FormatExpr(s.X)
	}

	var b strings.Builder
	ind := base
	if hoist {
		ind = base + indentUnit
		b.WriteString("{\n" + ind + FormatStmt(loop.Init) + "\n" + ind)
	}
	b.WriteString(headerText(init, FormatExpr(cond), FormatExpr(post)) + " {\n")
	body := stmtList(loop.Body)
	// Copies of a body with its own declarations each get a scope.
	scoped := len(topDecls(body)) > 0
	for j := 0; j < factor; j++ {
		var subst map[string]Expr
		if j > 0 {
			subst = map[string]Expr{h.Var: offsetExpr(h.Var, int64(j)*h.Step)}
		}
		copyInd := ind + indentUnit
		if scoped {
			b.WriteString(copyInd + "{\n")
			copyInd += indentUnit
		}
		for _, s := range body {
			b.WriteString(copyInd + formatStmt(s, copyInd, subst) + "\n")
		}
		if scoped {
			b.WriteString(ind + indentUnit + "}\n")
		}
	}
	b.WriteString(ind + "}")
	if residual > 0 {
		rest := &ForStmt{Cond: loop.Cond, Post: loop.Post, Body: loop.Body}
		b.WriteString("\n" + ind + formatStmt(rest, ind, nil))
	}
	if hoist {
		b.WriteString("\n" + base + "}")
	}
	return b.String()
}

// isEmptyBody reports whether s executes nothing.
func isEmptyBody(s Stmt) bool {
	switch s := s.(type) {
	case nil, *NullStmt:
		return true
	case *CompoundStmt:
		for _, c := range s.Stmts {
			if !isEmptyBody(c) {
				return false
			}
		}
		return true
	}
	return false
}
