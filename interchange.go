package oaccrefac

// -- Loop Interchange --

// PlanInterchange exchanges the outermost loop of the perfect nest rooted at
// loop with the loop depth levels below it.
func PlanInterchange(fn *Function, loop *ForStmt, depth int, opts RecognizerOptions) *TransformResult {
	res := &TransformResult{Kind: KindInterchange, Range: loop.Span(), Depth: depth}
	at := loop.Span().Start

	nest, rej := RecognizeNest(fn, loop, opts)
	if rej != nil {
		return res.reject(rej)
	}
	res.Var = nest.Headers[0].Var
	if nest.Depth() < 2 {
		return res.reject(illegal(SubNotPerfectlyNested, at, "%s loop has no perfectly nested inner loop", res.Var))
	}
	if depth < 1 || depth >= nest.Depth() {
		return res.reject(illegal(SubInvalidParameter, at, "interchange depth %d outside nest of depth %d", depth, nest.Depth()))
	}

	// Bounds of the exchanged range may not mention each other's indices.
	ivs := make(map[string]bool)
	for _, h := range nest.Headers[:depth+1] {
		ivs[h.Var] = true
	}
	for _, h := range nest.Headers[:depth+1] {
		for name := range identsIn(h.Lower) {
			if ivs[name] {
				return res.reject(unsupported(h.Loop.Span().Start, "lower bound of %s loop depends on index %s", h.Var, name))
			}
		}
		for name := range identsIn(h.Upper) {
			if ivs[name] {
				return res.reject(unsupported(h.Loop.Span().Start, "upper bound of %s loop depends on index %s", h.Var, name))
			}
		}
	}

	sum := Analyze(fn, nest, opts)
	res.Warnings = sum.Warnings
	if rej := checkSwap(sum, 0, depth, true); rej != nil {
		return res.reject(rej)
	}

	levels := make([]nestLevel, nest.Depth())
	for k, h := range nest.Headers {
		levels[k] = nestLevel{Header: originalHeader(h.Loop)}
		if k > 0 {
			levels[k].Pragmas = h.Loop.Directives()
		}
	}
	levels[0].Header, levels[depth].Header = levels[depth].Header, levels[0].Header
	res.Rewrite = emitNest(levels, nest.Body, lineIndent(fn.File.Src, at))
	return res.admit()
}
