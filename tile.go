package oaccrefac

import (
	"fmt"
)

// -- Loop Tiling (Strip-Mining) --

// PlanTile strip-mines level stripDepth (1-based) of the perfect nest rooted
// at loop by factor. With propagate, the new strip loop is also interchanged
// outward past the enclosing level.
func PlanTile(fn *Function, loop *ForStmt, stripDepth, factor int, propagate bool, opts RecognizerOptions) *TransformResult {
	res := &TransformResult{
		Kind: KindTile, Range: loop.Span(),
		Factor: factor, StripDepth: stripDepth, Propagate: propagate,
	}
	at := loop.Span().Start

	nest, rej := RecognizeNest(fn, loop, opts)
	if rej != nil {
		return res.reject(rej)
	}
	if stripDepth < 1 || stripDepth > nest.Depth() {
		return res.reject(illegal(SubInvalidParameter, at, "strip depth %d outside nest of depth %d", stripDepth, nest.Depth()))
	}
	if propagate && stripDepth == 1 {
		return res.reject(illegal(SubInvalidParameter, at, "no enclosing loop to interchange the strip loop with"))
	}
	d := stripDepth - 1
	h := nest.Headers[d]
	res.Var = h.Var
	res.TripCount, res.TripKnown = h.TripCount, h.TripKnown
	step := h.AbsStep()
	switch {
	case factor < 1:
		return res.reject(illegal(SubInvalidFactor, at, "tile factor %d must be positive", factor))
	case int64(factor)%step != 0:
		return res.reject(illegal(SubInvalidFactor, at, "tile factor %d is not a multiple of step %d", factor, step))
	case int64(factor) <= step:
		return res.reject(illegal(SubInvalidFactor, at, "tile factor %d must exceed step %d", factor, step))
	}

	sum := Analyze(fn, nest, opts)
	res.Warnings = sum.Warnings
	if rej := tileDependences(sum, d, int64(factor)/step); rej != nil {
		return res.reject(rej)
	}
	if propagate {
		if rej := checkSwap(sum, d-1, d, false); rej != nil {
			return res.reject(rej)
		}
	}
	res.Rewrite = tileRewrite(fn, nest, d, factor, propagate)
	return res.admit()
}

// tileDependences checks the edges of the nest against strip-mining level d
// into groups of span iterations.
func tileDependences(sum *DependenceSummary, d int, span int64) *Rejection {
	for _, e := range sum.Edges {
		if e.Dirs[d] == DirEQ {
			continue
		}
		switch {
		case e.Unknown:
			return &Rejection{Class: e.Cause, Detail: fmt.Sprintf("possible dependence %s", e), Pos: e.Sink.Pos}
		case e.Scalar:
			return &Rejection{Class: ErrUnanalyzableDependence, Detail: fmt.Sprintf("scalar %s is carried across iterations", e.Src.Name), Pos: e.Sink.Pos}
		}
	}
	for _, e := range sum.Edges {
		if e.Dirs.Leading() == d {
			dist, ok := e.DistanceAt(d)
			if dist < 0 {
				dist = -dist
			}
			if !ok || dist > span {
				return illegal(SubDependenceViolation, e.Sink.Pos, "%s dependence on %s carried at level %d spans more than one tile", e.Kind, e.Src.Name, d+1)
			}
		}
		for k := 0; k <= d && k < len(e.Dirs); k++ {
			if e.Dirs[k] != DirGT {
				continue
			}
			for j := k + 1; j < len(e.Dirs); j++ {
				if e.Dirs[j] == DirLT {
					return illegal(SubDependenceViolation, e.Sink.Pos, "skewed %s dependence %s on %s", e.Kind, e.Dirs, e.Src.Name)
				}
			}
		}
	}
	return nil
}

// checkSwap verifies that exchanging levels i < j keeps every dependence
// lexicographically non-negative. With rejectScalars, any scalar edge not
// already carried by an outer level is a violation.
func checkSwap(sum *DependenceSummary, i, j int, rejectScalars bool) *Rejection {
	for _, e := range sum.Edges {
		prefixEQ := true
		for k := 0; k < i; k++ {
			if e.Dirs[k] != DirEQ {
				prefixEQ = false
				break
			}
		}
		if !prefixEQ {
			continue
		}
		if e.Unknown {
			return &Rejection{Class: e.Cause, Detail: fmt.Sprintf("possible dependence %s", e), Pos: e.Sink.Pos}
		}
		if e.Scalar && rejectScalars {
			return illegal(SubDependenceViolation, e.Sink.Pos, "scalar %s is carried across iterations", e.Src.Name)
		}
		if e.Dirs[i] == DirAny || e.Dirs[j] == DirAny {
			return &Rejection{Class: ErrUnanalyzableDependence, Detail: fmt.Sprintf("direction of %s is unknown at an exchanged level", e), Pos: e.Sink.Pos}
		}
		swapped := append(DirVector{}, e.Dirs...)
		swapped[i], swapped[j] = swapped[j], swapped[i]
		if !swapped.Valid() {
			return illegal(SubInterchangeViolation, e.Sink.Pos, "%s dependence %s on %s becomes %s", e.Kind, e.Dirs, e.Src.Name, swapped)
		}
	}
	return nil
}

func tileRewrite(fn *Function, nest *LoopNest, d, factor int, propagate bool) string {
	h := nest.Headers[d]
	strip := freshName(fn, h.Var)
	typ := "int"
	if h.Declared {
		typ = h.VarType.Base
	} else if s := fn.Lookup(h.Var); s != nil {
		typ = s.Spec.Base
	}
	upper := FormatExpr(h.Upper)
	lower := FormatExpr(h.Lower)

	stripOp, elemOp, inc := "+", "<", "+="
	if h.Decreasing {
		stripOp, elemOp, inc = "-", ">", "-="
	}
	stripHeader := headerText(
		fmt.Sprintf("%s %s = %s", typ, strip, lower),
		fmt.Sprintf("%s %s %s", strip, h.Test, upper),
		fmt.Sprintf("%s %s %d", strip, inc, factor),
	)
	elemInit := fmt.Sprintf("%s = %s", h.Var, strip)
	if h.Declared {
		elemInit = typ + " " + elemInit
	}
	elemHeader := headerText(
		elemInit,
		fmt.Sprintf("%s %s %s %s %d && %s %s %s", h.Var, elemOp, strip, stripOp, factor, h.Var, h.Test, upper),
		FormatExpr(h.Loop.Post),
	)

	var levels []nestLevel
	for k, lh := range nest.Headers {
		var pr []*Pragma
		if k > 0 {
			pr = lh.Loop.Directives()
		}
		if k == d {
			if propagate {
				// The strip loop moves outside level d-1.
				prev := levels[len(levels)-1]
				levels[len(levels)-1] = nestLevel{Header: stripHeader}
				levels = append(levels, prev)
			} else {
				levels = append(levels, nestLevel{Header: stripHeader})
			}
			levels = append(levels, nestLevel{Pragmas: pr, Header: elemHeader})
			continue
		}
		levels = append(levels, nestLevel{Pragmas: pr, Header: originalHeader(lh.Loop)})
	}
	return emitNest(levels, nest.Body, lineIndent(fn.File.Src, nest.Headers[0].Loop.Span().Start))
}
