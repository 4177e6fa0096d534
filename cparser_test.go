package oaccrefac

import (
	"errors"
	"testing"
)

const parserSample = `#define N 100
#define SQR(x) ((x)*(x))
typedef float real;
static real grid[N][N];
int count = 0, *cursor;

void relax(real *restrict out, const real *in, int n);

void relax(real *restrict out, const real *in, int n) {
    int i;
#pragma acc parallel loop
    for (i = 1; i < n - 1; i++) {
        out[i] = (in[i - 1] + in[i + 1]) * 0.5f;
    }
    while (count < 3) count++;
}
`

func TestParseFileStructure(t *testing.T) {
	f := mustParse(t, parserSample)

	if got := f.Defines["N"]; got != "100" {
		t.Errorf("Defines[N] = %q, want 100", got)
	}
	if _, ok := f.Defines["SQR"]; ok {
		t.Error("function-like macro should not be recorded")
	}
	if !f.Typedefs["real"] {
		t.Error("typedef real not recorded")
	}
	if len(f.Globals) != 2 {
		t.Fatalf("got %d global declarations, want 2", len(f.Globals))
	}
	if d := f.Globals[0].Declarators[0]; d.Name != "grid" || len(d.Dims) != 2 {
		t.Errorf("grid declarator = %+v", d)
	}
	if ds := f.Globals[1].Declarators; len(ds) != 2 || ds[1].Pointers != 1 {
		t.Errorf("count/cursor declarators = %+v", ds)
	}

	if len(f.Funcs) != 1 {
		t.Fatalf("got %d function definitions, want 1 (prototype excluded)", len(f.Funcs))
	}
	fd := f.Funcs[0]
	if fd.Name != "relax" || len(fd.Params) != 3 {
		t.Fatalf("function = %s with %d params", fd.Name, len(fd.Params))
	}
	if out := fd.Params[0].Decl; !out.Restrict || out.Pointers != 1 {
		t.Errorf("out param = %+v, want restrict pointer", out)
	}
	if !fd.Params[1].Spec.Const {
		t.Error("in param should be const")
	}

	fn, loop := loopOnLine(t, f, 12)
	if prs := loop.Directives(); len(prs) != 1 || prs[0].Text != "acc parallel loop" {
		t.Errorf("loop pragmas = %v", prs)
	}
	if got := loop.Span(); got.Start.Line != 12 || got.Start.Col != 5 || got.End.Line != 14 || got.End.Col != 6 {
		t.Errorf("loop span = %s, want 12:5-14:6", got)
	}
	if sym := fn.Lookup("out"); sym == nil || sym.Scope != ScopeParam || !sym.Restrict {
		t.Errorf("Lookup(out) = %+v", sym)
	}
	if sym := fn.Lookup("grid"); sym == nil || sym.Scope != ScopeGlobal || !sym.IsArray() {
		t.Errorf("Lookup(grid) = %+v", sym)
	}
	if sym := fn.Lookup("i"); sym == nil || sym.Scope != ScopeLocal || !sym.IsScalar() {
		t.Errorf("Lookup(i) = %+v", sym)
	}
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"a + b * c", "a + b * c"},
		{"(a + b) * c", "(a + b) * c"},
		{"a[i][j + 1] = -b->x.y", "a[i][j + 1] = -b->x.y"},
		{"x = y = z += 2", "x = y = z += 2"},
		{"p ? q : r ? s : t", "p ? q : r ? s : t"},
		{"(double)n / sizeof(int)", "(double)n / sizeof(int)"},
		{"f(a, (b, c))", "f(a, (b, c))"},
		{"i++ + ++j", "i++ + ++j"},
		{"- -x", "- -x"},
		{"a << 2 | b & 1", "a << 2 | b & 1"},
	}
	for _, tt := range tests {
		x, err := ParseExpr(tt.src)
		if err != nil {
			t.Errorf("ParseExpr(%q): %v", tt.src, err)
			continue
		}
		if got := FormatExpr(x); got != tt.want {
			t.Errorf("FormatExpr(ParseExpr(%q)) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"missing semicolon", "void f() {\n  int x = 1\n  x++;\n}\n", 3},
		{"unclosed block", "void f() {\n  for (;;) {\n", 3},
		{"bad for header", "void f() {\n  for (i = 0; i < 3) {}\n}\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile("bad.c", []byte(tt.src))
			var pf *ParseFailure
			if !errors.As(err, &pf) {
				t.Fatalf("error = %v, want *ParseFailure", err)
			}
			if pf.Pos.Line != tt.line {
				t.Errorf("failure at line %d, want %d (%v)", pf.Pos.Line, tt.line, err)
			}
		})
	}
}

func TestFormatStmtNested(t *testing.T) {
	f := mustParse(t, `void f(int *a, int n) {
    for (int i = 0; i < n; i++) {
        if (a[i] > 0) a[i] = 0;
        else {
            a[i]--;
        }
    }
}
`)
	_, loop := loopOnLine(t, f, 2)
	want := lines(
		"for (int i = 0; i < n; i++) {",
		"    if (a[i] > 0)",
		"        a[i] = 0;",
		"    else {",
		"        a[i]--;",
		"    }",
		"}",
	)
	if got := FormatStmt(loop); got != want {
		t.Errorf("FormatStmt:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatSubstitution(t *testing.T) {
	x, err := ParseExpr("a[2 * i] = i * b")
	if err != nil {
		t.Fatal(err)
	}
	got := formatExprSubst(x, map[string]Expr{"i": offsetExpr("i", 3)})
	if want := "a[2 * (i + 3)] = (i + 3) * b"; got != want {
		t.Errorf("substituted = %q, want %q", got, want)
	}
	got = formatExprSubst(x, map[string]Expr{"i": offsetExpr("i", -2)})
	if want := "a[2 * (i - 2)] = (i - 2) * b"; got != want {
		t.Errorf("substituted = %q, want %q", got, want)
	}
}
