package oaccrefac

import (
	"errors"
	"strings"
	"testing"
)

// analyzeAt recognizes the nest starting on line and analyzes it.
func analyzeAt(t *testing.T, src string, line int) *DependenceSummary {
	t.Helper()
	f := mustParse(t, src)
	fn, loop := loopOnLine(t, f, line)
	nest, rej := RecognizeNest(fn, loop, DefaultRecognizerOptions())
	if rej != nil {
		t.Fatalf("RecognizeNest: %v", rej)
	}
	return Analyze(fn, nest, DefaultRecognizerOptions())
}

// carried returns the edges whose leading direction is not '='.
func carried(sum *DependenceSummary) []*DependenceEdge {
	var out []*DependenceEdge
	for _, e := range sum.Edges {
		if e.Dirs.Leading() >= 0 {
			out = append(out, e)
		}
	}
	return out
}

func TestDirVector(t *testing.T) {
	tests := []struct {
		v       DirVector
		leading int
		valid   bool
	}{
		{DirVector{DirEQ, DirEQ}, -1, true},
		{DirVector{DirEQ, DirLT}, 1, true},
		{DirVector{DirLT, DirGT}, 0, true},
		{DirVector{DirGT, DirLT}, 0, false},
		{DirVector{DirEQ, DirAny}, 1, true},
	}
	for _, tt := range tests {
		if got := tt.v.Leading(); got != tt.leading {
			t.Errorf("%s.Leading() = %d, want %d", tt.v, got, tt.leading)
		}
		if got := tt.v.Valid(); got != tt.valid {
			t.Errorf("%s.Valid() = %v, want %v", tt.v, got, tt.valid)
		}
	}
	if got := (DirVector{DirLT, DirEQ, DirGT}).String(); got != "(<,=,>)" {
		t.Errorf("String = %s", got)
	}
}

func TestAnalyzeSingleLoop(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		carried  int
		distance int64 // of the first carried edge
		kind     DepKind
		assumed  bool
	}{
		{"flow distance one", "a[i] = a[i - 1] + 1;", 1, 1, DepFlow, false},
		{"flow distance three", "a[i + 3] = a[i] * 2;", 1, 3, DepFlow, false},
		{"anti distance two", "a[i] = a[i + 2];", 1, 2, DepAnti, false},
		{"same iteration only", "a[i] = a[i] + 1;", 0, 0, 0, false},
		{"gcd proves independence", "a[2 * i] = a[2 * i + 1];", 0, 0, 0, false},
		{"bounds prove independence", "a[i] = a[i + 40];", 0, 0, 0, false},
		{"separate arrays", "a[i] = b[i + 1];", 0, 0, 0, false},
		{"non-affine subscript", "a[i * i] = i;", 0, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "int a[64], b[64];\nvoid f(void) {\n    for (int i = 1; i < 20; i++) {\n        " + tt.body + "\n    }\n}\n"
			sum := analyzeAt(t, src, 3)
			e := sum.Unknown()
			if got := e != nil; got != tt.assumed {
				t.Fatalf("assumed edge = %v, want assumed %v", e, tt.assumed)
			}
			if tt.assumed {
				if !errors.Is(e.Cause, ErrUnanalyzableDependence) {
					t.Errorf("cause = %v", e.Cause)
				}
				return
			}
			got := carried(sum)
			if len(got) != tt.carried {
				t.Fatalf("carried edges = %v, want %d", got, tt.carried)
			}
			if tt.carried == 0 {
				return
			}
			e = got[0]
			if e.Dirs[0] != DirLT {
				t.Errorf("direction = %s, want (<)", e.Dirs)
			}
			if d, ok := e.DistanceAt(0); !ok || d != tt.distance {
				t.Errorf("distance = %d (known %v), want %d", d, ok, tt.distance)
			}
			if e.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", e.Kind, tt.kind)
			}
		})
	}
}

func TestAnalyzeNestDirections(t *testing.T) {
	src := `double a[32][32];
void f(void) {
    for (int i = 1; i < 31; i++)
        for (int j = 1; j < 31; j++)
            a[i][j] = a[i - 1][j + 1] + a[i][j - 1];
}
`
	sum := analyzeAt(t, src, 3)
	var dirs []string
	for _, e := range carried(sum) {
		dirs = append(dirs, e.Dirs.String())
		if !e.Dirs.Valid() {
			t.Errorf("edge %s is lexicographically negative", e)
		}
	}
	joined := strings.Join(dirs, " ")
	for _, want := range []string{"(<,>)", "(=,<)"} {
		if !strings.Contains(joined, want) {
			t.Errorf("edges %s missing %s", joined, want)
		}
	}
	for _, e := range carried(sum) {
		if e.Dirs.String() == "(<,>)" {
			d0, ok0 := e.DistanceAt(0)
			d1, ok1 := e.DistanceAt(1)
			if !ok0 || !ok1 || d0 != 1 || d1 != -1 {
				t.Errorf("distance of %s = (%d,%d), want (1,-1)", e, d0, d1)
			}
		}
	}
}

func TestAnalyzeScalarsAndCalls(t *testing.T) {
	src := `double a[100];
double total;
void g(double *p);
void f(double *x) {
    double s = 0;
    for (int i = 0; i < 100; i++) {
        s = s + a[i];
    }
    for (int i = 0; i < 100; i++) {
        double tmp = a[i] * 2;
        a[i] = sqrt(tmp);
    }
    for (int i = 0; i < 100; i++) {
        g(&a[i]);
    }
}
`
	sum := analyzeAt(t, src, 6)
	scalar := false
	for _, e := range sum.Edges {
		if e.Scalar && e.Src.Name == "s" {
			scalar = true
		}
	}
	if !scalar {
		t.Errorf("reduction on s produced no scalar edge: %v", sum.Edges)
	}

	sum = analyzeAt(t, src, 9)
	if len(carried(sum)) != 0 {
		t.Errorf("private temporary and pure call produced edges: %v", sum.Edges)
	}
	if len(sum.Warnings) != 0 {
		t.Errorf("pure call warned: %v", sum.Warnings)
	}

	sum = analyzeAt(t, src, 13)
	e := sum.Unknown()
	if e == nil || !errors.Is(e.Cause, ErrUnanalyzableDependence) {
		t.Fatalf("opaque call: unknown edge = %v", e)
	}
	if len(sum.Warnings) == 0 || !strings.Contains(sum.Warnings[0], "g") {
		t.Errorf("warnings = %v", sum.Warnings)
	}
}

func TestAnalyzeAliasing(t *testing.T) {
	tests := []struct {
		name    string
		params  string
		aliased bool
	}{
		{"plain pointers", "int *x, int *y", true},
		{"one restrict", "int *restrict x, int *y", true},
		{"both restrict", "int *restrict x, int *restrict y", false},
		{"array parameters", "int x[], int y[]", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "void f(" + tt.params + ") {\n    for (int i = 0; i < 8; i++)\n        x[i] = y[i];\n}\n"
			sum := analyzeAt(t, src, 2)
			e := sum.Unknown()
			if got := e != nil; got != tt.aliased {
				t.Fatalf("assumed aliasing = %v, want %v (edges %v)", got, tt.aliased, sum.Edges)
			}
			if e != nil && !errors.Is(e.Cause, ErrAmbiguousAliasing) {
				t.Errorf("cause = %v, want ambiguous aliasing", e.Cause)
			}
		})
	}
}

func TestAnalyzeLocalArraysDoNotAlias(t *testing.T) {
	src := `void f(int *p) {
    int u[16], v[16];
    for (int i = 0; i < 16; i++)
        u[i] = v[i] + p[i];
}
`
	sum := analyzeAt(t, src, 3)
	if e := sum.Unknown(); e != nil {
		t.Errorf("distinct local arrays assumed to alias: %s", e)
	}
}
