package oaccrefac

import (
	"fmt"
)

// -- Requests --

// Kind names a transformation.
type Kind string

const (
	KindUnroll       Kind = "unroll"
	KindTile         Kind = "tile"
	KindInterchange  Kind = "interchange"
	KindMerge        Kind = "merge-data-region"
	KindRemoveClause Kind = "remove-data-clause"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindUnroll, KindTile, KindInterchange, KindMerge, KindRemoveClause}

var kindAliases = map[string]Kind{
	"merge":         KindMerge,
	"remove-clause": KindRemoveClause,
	"strip-mine":    KindTile,
}

// ParseKind accepts a kind name or one of its short aliases.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// TransformRequest selects a loop nest or data region and names what to do
// with it. Selection.End may be left zero to select by start position alone.
// A zero StripDepth means 1.
type TransformRequest struct {
	Kind       Kind
	Selection  Range
	Factor     int
	StripDepth int
	Propagate  bool
	Depth      int
	Var        string
}

// TransformResult is the outcome of a request. A rejected request is still
// a result; Reason says why.
type TransformResult struct {
	Kind       Kind       `json:"kind"`
	Admissible bool       `json:"admissible"`
	Range      Range      `json:"range"`
	Factor     int        `json:"factor,omitempty"`
	StripDepth int        `json:"stripDepth,omitempty"`
	Propagate  bool       `json:"propagate,omitempty"`
	Depth      int        `json:"depth,omitempty"`
	Var        string     `json:"var,omitempty"`
	TripCount  int64      `json:"tripCount,omitempty"`
	TripKnown  bool       `json:"tripKnown,omitempty"`
	Residual   int64      `json:"residual,omitempty"`
	Rewrite    string     `json:"rewrite,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
	Reason     *Rejection `json:"reason,omitempty"`
}

func (r *TransformResult) reject(rej *Rejection) *TransformResult {
	r.Admissible = false
	r.Rewrite = ""
	r.Reason = rej
	return r
}

func (r *TransformResult) admit() *TransformResult {
	r.Admissible = true
	r.Reason = nil
	return r
}

// String is a one-line verdict.
func (r *TransformResult) String() string {
	if r.Admissible {
		return fmt.Sprintf("%s %s: admissible", r.Kind, r.Range)
	}
	return fmt.Sprintf("%s %s: rejected: %v", r.Kind, r.Range, r.Reason)
}

// Evaluate resolves the request's selection in f and plans the
// transformation. Rejections come back in the result; the error is reserved
// for requests that select nothing or name an unknown kind.
func Evaluate(f *File, req *TransformRequest, opts RecognizerOptions) (*TransformResult, error) {
	switch req.Kind {
	case KindUnroll, KindTile, KindInterchange:
		fn, loop, err := SelectLoop(f, req.Selection)
		if err != nil {
			return nil, err
		}
		switch req.Kind {
		case KindUnroll:
			return PlanUnroll(fn, loop, req.Factor, opts), nil
		case KindTile:
			depth := req.StripDepth
			if depth == 0 {
				depth = 1
			}
			return PlanTile(fn, loop, depth, req.Factor, req.Propagate, opts), nil
		default:
			return PlanInterchange(fn, loop, req.Depth, opts), nil
		}
	case KindMerge, KindRemoveClause:
		tree, region, err := SelectRegion(f, req.Selection)
		if err != nil {
			return nil, err
		}
		if req.Kind == KindMerge {
			return PlanMerge(tree, region), nil
		}
		return PlanRemoveClause(tree, region, req.Var), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
}

// EvaluateSource parses src and evaluates req against it.
func EvaluateSource(name string, src []byte, req *TransformRequest, opts RecognizerOptions) (*TransformResult, error) {
	f, err := ParseFile(name, src)
	if err != nil {
		return nil, err
	}
	return Evaluate(f, req, opts)
}

// -- Selection --

// selectStmt picks the first candidate lying inside sel or, failing that,
// the innermost candidate containing sel.Start. extent gives the span used
// for matching.
func selectStmt(root Node, sel Range, candidate func(Stmt) bool, extent func(Stmt) Range) Stmt {
	var inside, containing Stmt
	Inspect(root, func(n Node) bool {
		s, ok := n.(Stmt)
		if !ok || !candidate(s) {
			return true
		}
		r := extent(s)
		if inside == nil && sel.End.IsValid() && sel.Contains(r) {
			inside = s
		}
		if r.Covers(sel.Start) {
			containing = s
		}
		return true
	})
	if inside != nil {
		return inside
	}
	return containing
}

// funcsFor lists the functions that may hold the selection.
func funcsFor(f *File, sel Range) []*FuncDecl {
	var out []*FuncDecl
	for _, fd := range f.Funcs {
		if fd.Body == nil {
			continue
		}
		r := fd.Span()
		if r.Covers(sel.Start) || (sel.End.IsValid() && sel.Contains(r)) {
			out = append(out, fd)
		}
	}
	return out
}

// SelectLoop finds the for loop chosen by sel.
func SelectLoop(f *File, sel Range) (*Function, *ForStmt, error) {
	isFor := func(s Stmt) bool { _, ok := s.(*ForStmt); return ok }
	for _, fd := range funcsFor(f, sel) {
		if s := selectStmt(fd.Body, sel, isFor, Stmt.Span); s != nil {
			return NewFunction(f, fd), s.(*ForStmt), nil
		}
	}
	return nil, nil, fmt.Errorf("%w at %s", ErrNoLoopSelected, sel.Start)
}

// SelectRegion finds the data region chosen by sel.
func SelectRegion(f *File, sel Range) (*ScopeTree, *DataRegion, error) {
	for _, fd := range funcsFor(f, sel) {
		fn := NewFunction(f, fd)
		tree, err := ComputeScopes(fn)
		if err != nil {
			return nil, nil, err
		}
		isRegion := func(s Stmt) bool { return tree.Region(s) != nil }
		if s := selectStmt(fd.Body, sel, isRegion, stmtExtent); s != nil {
			return tree, tree.Region(s), nil
		}
	}
	return nil, nil, fmt.Errorf("%w at %s", ErrNoRegionSelected, sel.Start)
}
