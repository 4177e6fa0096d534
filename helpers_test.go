package oaccrefac

import (
	"errors"
	"strings"
	"testing"
)

// mustParse parses src or fails the test.
func mustParse(t *testing.T, src string) *File {
	t.Helper()
	f, err := ParseFile("test.c", []byte(src))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return f
}

// loopOnLine returns the first for loop that starts on line.
func loopOnLine(t *testing.T, f *File, line int) (*Function, *ForStmt) {
	t.Helper()
	for _, fd := range f.Funcs {
		if fd.Body == nil {
			continue
		}
		var found *ForStmt
		Inspect(fd.Body, func(n Node) bool {
			if l, ok := n.(*ForStmt); ok && found == nil && l.Span().Start.Line == line {
				found = l
			}
			return found == nil
		})
		if found != nil {
			return NewFunction(f, fd), found
		}
	}
	t.Fatalf("no for loop on line %d", line)
	return nil, nil
}

// funcNamed indexes the function called name.
func funcNamed(t *testing.T, f *File, name string) *Function {
	t.Helper()
	for _, fd := range f.Funcs {
		if fd.Name == name && fd.Body != nil {
			return NewFunction(f, fd)
		}
	}
	t.Fatalf("no function %s", name)
	return nil
}

// evalAt runs a request whose selection starts at line:col.
func evalAt(t *testing.T, src string, req TransformRequest, line, col int) *TransformResult {
	t.Helper()
	req.Selection = Range{Start: Pos{Line: line, Col: col}}
	res, err := EvaluateSource("test.c", []byte(src), &req, DefaultRecognizerOptions())
	if err != nil {
		t.Fatalf("EvaluateSource: %v", err)
	}
	return res
}

// wantRejected checks a result's rejection class and sub-reason. An empty
// sub accepts any.
func wantRejected(t *testing.T, res *TransformResult, class error, sub SubReason) {
	t.Helper()
	if res.Admissible {
		t.Fatalf("expected %v rejection, got admissible:\n%s", class, res.Rewrite)
	}
	if !errors.Is(res.Reason, class) {
		t.Fatalf("rejection = %v, want class %v", res.Reason, class)
	}
	if sub != "" && res.Reason.Sub != sub {
		t.Fatalf("rejection = %v, want sub-reason %s", res.Reason, sub)
	}
}

// wantAdmissible fails unless res is admissible.
func wantAdmissible(t *testing.T, res *TransformResult) {
	t.Helper()
	if !res.Admissible {
		t.Fatalf("expected admissible, got %v", res.Reason)
	}
}

// lines joins its arguments with newlines, for building expected rewrites.
func lines(ls ...string) string { return strings.Join(ls, "\n") }
