package oaccrefac

import (
	"testing"
)

// unrollSample has its loop on line 3, column 5.
const unrollSample = `int a[100];
void f(int n) {
    for (int i = 0; i < 10; i++) {
        a[i] = a[i] + 1;
    }
}
`

func TestUnrollExactMultiple(t *testing.T) {
	res := evalAt(t, unrollSample, TransformRequest{Kind: KindUnroll, Factor: 2}, 3, 5)
	wantAdmissible(t, res)
	want := lines(
		"for (int i = 0; i < 10; i += 2) {",
		"        a[i] = a[i] + 1;",
		"        a[i + 1] = a[i + 1] + 1;",
		"    }",
	)
	if res.Rewrite != want {
		t.Errorf("rewrite:\n%s\nwant:\n%s", res.Rewrite, want)
	}
	if res.TripCount != 10 || !res.TripKnown || res.Residual != 0 {
		t.Errorf("trip = %d (known %v) residual %d", res.TripCount, res.TripKnown, res.Residual)
	}
	if got := res.Range.String(); got != "3:5-5:6" {
		t.Errorf("range = %s, want 3:5-5:6", got)
	}
}

func TestUnrollWithResidual(t *testing.T) {
	res := evalAt(t, unrollSample, TransformRequest{Kind: KindUnroll, Factor: 3}, 3, 5)
	wantAdmissible(t, res)
	want := lines(
		"{",
		"        int i = 0;",
		"        for (; i < 9; i += 3) {",
		"            a[i] = a[i] + 1;",
		"            a[i + 1] = a[i + 1] + 1;",
		"            a[i + 2] = a[i + 2] + 1;",
		"        }",
		"        for (; i < 10; i++) {",
		"            a[i] = a[i] + 1;",
		"        }",
		"    }",
	)
	if res.Rewrite != want {
		t.Errorf("rewrite:\n%s\nwant:\n%s", res.Rewrite, want)
	}
	if res.Residual != 1 {
		t.Errorf("residual = %d, want 1", res.Residual)
	}
}

// TestUnrollFactorBoundary pins the trip-count comparison: a factor equal to
// the trip count is allowed, one past it is not.
func TestUnrollFactorBoundary(t *testing.T) {
	res := evalAt(t, unrollSample, TransformRequest{Kind: KindUnroll, Factor: 10}, 3, 5)
	wantAdmissible(t, res)
	if res.Residual != 0 {
		t.Errorf("residual = %d", res.Residual)
	}

	res = evalAt(t, unrollSample, TransformRequest{Kind: KindUnroll, Factor: 11}, 3, 5)
	wantRejected(t, res, ErrIllegalTransform, SubFactorExceedsTripCount)
	if res.Rewrite != "" {
		t.Error("rejected result carries a rewrite")
	}
}

func TestUnrollIdentity(t *testing.T) {
	res := evalAt(t, unrollSample, TransformRequest{Kind: KindUnroll, Factor: 1}, 3, 5)
	wantAdmissible(t, res)
	want := lines(
		"for (int i = 0; i < 10; i++) {",
		"        a[i] = a[i] + 1;",
		"    }",
	)
	if res.Rewrite != want {
		t.Errorf("identity rewrite = %q, want %q", res.Rewrite, want)
	}
}

// Once the factor passes the trip count, every larger factor fails the same way.
func TestUnrollFactorsPastTripCount(t *testing.T) {
	for factor := 11; factor <= 40; factor++ {
		res := evalAt(t, unrollSample, TransformRequest{Kind: KindUnroll, Factor: factor}, 3, 5)
		if res.Admissible || res.Reason == nil || res.Reason.Code() != "illegal-transform/factor-exceeds-trip-count" {
			t.Fatalf("factor %d: %v", factor, res.Reason)
		}
	}
}

func TestUnrollScopesBodyDeclarations(t *testing.T) {
	src := `int a[100];
int b[100];
void f(void) {
    for (int i = 0; i < 10; i++) {
        int t = a[i];
        b[i] = t;
    }
}
`
	res := evalAt(t, src, TransformRequest{Kind: KindUnroll, Factor: 2}, 4, 5)
	wantAdmissible(t, res)
	want := lines(
		"for (int i = 0; i < 10; i += 2) {",
		"        {",
		"            int t = a[i];",
		"            b[i] = t;",
		"        }",
		"        {",
		"            int t = a[i + 1];",
		"            b[i + 1] = t;",
		"        }",
		"    }",
	)
	if res.Rewrite != want {
		t.Errorf("rewrite:\n%s\nwant:\n%s", res.Rewrite, want)
	}
}

func TestUnrollRejections(t *testing.T) {
	tests := []struct {
		name   string
		loop   string
		factor int
		class  error
		sub    SubReason
	}{
		{"zero factor", "for (int i = 0; i < 10; i++) a[i] = 0;", 0, ErrIllegalTransform, SubInvalidFactor},
		{"negative factor", "for (int i = 0; i < 10; i++) a[i] = 0;", -2, ErrIllegalTransform, SubInvalidFactor},
		{"symbolic trip count", "for (int i = 0; i < n; i++) a[i] = 0;", 2, ErrIllegalTransform, SubUnknownTripCount},
		{"early exit", "for (int i = 0; i < 10; i++) { if (a[i]) break; }", 2, ErrUnsupportedLoopForm, ""},
		{"early exit at factor one", "for (int i = 0; i < 10; i++) { if (a[i]) break; }", 1, ErrUnsupportedLoopForm, ""},
		{"unconditional break", "for (int i = 0; i < 10; i++) { a[i] = 0; break; }", 2, ErrUnsupportedLoopForm, ""},
		{"null body", "for (int i = 0; i < 10; i++) ;", 2, ErrUnsupportedLoopForm, ""},
		{"empty block body", "for (int i = 0; i < 10; i++) { ; }", 2, ErrUnsupportedLoopForm, ""},
		{"empty body at factor one", "for (int i = 0; i < 10; i++) {}", 1, ErrUnsupportedLoopForm, ""},
		{"carried inside group", "for (int i = 1; i < 20; i++) a[i] = a[i - 1] * 2;", 2, ErrIllegalTransform, SubDependenceViolation},
		{"distance below factor", "for (int i = 4; i < 20; i++) a[i] = a[i - 4];", 5, ErrIllegalTransform, SubDependenceViolation},
		{"opaque call", "for (int i = 0; i < 10; i++) touch(a);", 2, ErrUnanalyzableDependence, ""},
		{"pointer aliasing", "for (int i = 0; i < 10; i++) p[i] = a[i];", 2, ErrAmbiguousAliasing, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "int a[100];\nvoid f(int n, int *p) {\n    " + tt.loop + "\n}\n"
			res := evalAt(t, src, TransformRequest{Kind: KindUnroll, Factor: tt.factor}, 3, 5)
			wantRejected(t, res, tt.class, tt.sub)
		})
	}
}

func TestUnrollAllowsDistantDependence(t *testing.T) {
	src := "int a[100];\nvoid f(void) {\n    for (int i = 4; i < 20; i++) a[i] = a[i - 4];\n}\n"
	for _, factor := range []int{2, 4} {
		res := evalAt(t, src, TransformRequest{Kind: KindUnroll, Factor: factor}, 3, 5)
		if !res.Admissible {
			t.Errorf("factor %d rejected: %v", factor, res.Reason)
		}
	}
}

func TestUnrollWarnsOnCalls(t *testing.T) {
	src := "double a[100];\nvoid f(void) {\n    for (int i = 0; i < 8; i++) a[i] = sqrt(a[i]);\n}\n"
	res := evalAt(t, src, TransformRequest{Kind: KindUnroll, Factor: 4}, 3, 5)
	wantAdmissible(t, res)
	if len(res.Warnings) != 0 {
		t.Errorf("pure call warned: %v", res.Warnings)
	}
}
