package oaccrefac

import (
	"errors"
	"fmt"
	"testing"
)

// wrapLoop places loop on line 4 of a function with a few declarations.
func wrapLoop(loop string) string {
	return fmt.Sprintf(`#define N 12
int g[64];
void f(int *a, int n, int m) {
    %s
}
`, loop)
}

func TestRecognizeCountedLoops(t *testing.T) {
	tests := []struct {
		name      string
		loop      string
		varName   string
		step      int64
		tripKnown bool
		trip      int64
	}{
		{"canonical", "for (int i = 0; i < 10; i++) a[i] = 0;", "i", 1, true, 10},
		{"inclusive bound", "for (int i = 1; i <= 10; i++) a[i] = 0;", "i", 1, true, 10},
		{"step two", "for (int i = 0; i < 9; i += 2) a[i] = 0;", "i", 2, true, 5},
		{"assign step", "for (int i = 0; i < 9; i = i + 3) a[i] = 0;", "i", 3, true, 3},
		{"reversed test", "for (int i = 0; 8 > i; ++i) a[i] = 0;", "i", 1, true, 8},
		{"macro bound", "for (int i = 2; i < N; i++) a[i] = 0;", "i", 1, true, 10},
		{"symbolic bound", "for (int i = 0; i < n; i++) a[i] = 0;", "i", 1, false, 0},
		{"symbolic but constant span", "for (int i = n; i < n + 4; i++) a[i] = 0;", "i", 1, true, 4},
		{"empty range", "for (int i = 5; i < 2; i++) a[i] = 0;", "i", 1, true, 0},
		{"predeclared index", "int k; for (k = 0; k < 6; k++) g[k] = k;", "k", 1, true, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustParse(t, wrapLoop(tt.loop))
			fn, loop := firstLoop(t, f)
			h, rej := Recognize(fn, loop, DefaultRecognizerOptions())
			if rej != nil {
				t.Fatalf("Recognize: %v", rej)
			}
			if h.Var != tt.varName || h.Step != tt.step {
				t.Errorf("header = %s step %d, want %s step %d", h.Var, h.Step, tt.varName, tt.step)
			}
			if h.TripKnown != tt.tripKnown || h.TripCount != tt.trip {
				t.Errorf("trip = %d (known %v), want %d (known %v)", h.TripCount, h.TripKnown, tt.trip, tt.tripKnown)
			}
		})
	}
}

func TestRecognizeRejections(t *testing.T) {
	tests := []struct {
		name string
		loop string
	}{
		{"no init", "for (; n < 10; n++) a[n] = 0;"},
		{"no test", "for (int i = 0; ; i++) a[i] = 0;"},
		{"not equal test", "for (int i = 0; i != 10; i++) a[i] = 0;"},
		{"multiplicative update", "for (int i = 1; i < 10; i *= 2) a[i] = 0;"},
		{"zero step", "for (int i = 0; i < 10; i += 0) a[i] = 0;"},
		{"variable step", "for (int i = 0; i < 10; i += m) a[i] = 0;"},
		{"direction mismatch", "for (int i = 0; i < 10; i--) a[i] = 0;"},
		{"float index", "for (float x = 0; x < 1; x++) a[0] = 0;"},
		{"two declarators", "for (int i = 0, j = 0; i < 10; i++) a[i] = j;"},
		{"break", "for (int i = 0; i < 10; i++) { if (a[i]) break; }"},
		{"continue", "for (int i = 0; i < 10; i++) { if (a[i]) continue; a[i] = 1; }"},
		{"return", "for (int i = 0; i < 10; i++) { if (a[i]) return; }"},
		{"goto", "for (int i = 0; i < 10; i++) { goto done; } done: ;"},
		{"exit call", "for (int i = 0; i < 10; i++) { if (a[i]) exit(1); }"},
		{"index assigned", "for (int i = 0; i < 10; i++) { i = a[i]; }"},
		{"index incremented", "for (int i = 0; i < 10; i++) { a[i++] = 0; }"},
		{"index address taken", "for (int i = 0; i < 10; i++) { int *p = &i; }"},
		{"bound modified", "for (int i = 0; i < n; i++) { n--; }"},
		{"decrement off by default", "for (int i = 9; i >= 0; i--) a[i] = 0;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustParse(t, wrapLoop(tt.loop))
			fn, loop := firstLoop(t, f)
			h, rej := Recognize(fn, loop, DefaultRecognizerOptions())
			if rej == nil {
				t.Fatalf("expected rejection, got %s", h)
			}
			if !errors.Is(rej, ErrUnsupportedLoopForm) {
				t.Errorf("rejection class = %v, want unsupported loop form", rej)
			}
			if !rej.Pos.IsValid() {
				t.Errorf("rejection has no position: %v", rej)
			}
		})
	}
}

func TestRecognizeDecrementOption(t *testing.T) {
	f := mustParse(t, wrapLoop("for (int i = 9; i >= 0; i--) a[i] = 0;"))
	fn, loop := firstLoop(t, f)
	opts := DefaultRecognizerOptions()
	opts.AllowDecrement = true
	h, rej := Recognize(fn, loop, opts)
	if rej != nil {
		t.Fatalf("Recognize with AllowDecrement: %v", rej)
	}
	if !h.Decreasing || h.Step != -1 || !h.TripKnown || h.TripCount != 10 {
		t.Errorf("header = %+v", h)
	}
	if h.AbsStep() != 1 {
		t.Errorf("AbsStep = %d", h.AbsStep())
	}
}

func TestRecognizeNest(t *testing.T) {
	f := mustParse(t, `void f(int a[8][8][8], int n) {
    for (int i = 0; i < 8; i++)
        for (int j = 0; j < 8; j++) {
            for (int k = 0; k < n; k++) {
                a[i][j][k] = 0;
            }
        }
    for (int i = 0; i < 8; i++) {
        for (int j = 0; j < 8; j++) {
            a[i][j][0] = 0;
        }
        a[i][0][0] = 1;
    }
    for (int i = 0; i < 8; i++)
        for (int i = 0; i < 8; i++)
            a[i][0][0] = 0;
}
`)
	fn, loop := loopOnLine(t, f, 2)
	nest, rej := RecognizeNest(fn, loop, DefaultRecognizerOptions())
	if rej != nil {
		t.Fatalf("RecognizeNest: %v", rej)
	}
	if got := fmt.Sprint(nest.Vars()); got != "[i j k]" {
		t.Errorf("nest vars = %s, want [i j k]", got)
	}
	if body, ok := nest.Body.(*CompoundStmt); !ok || len(body.Stmts) != 1 {
		t.Errorf("innermost body = %T", nest.Body)
	}

	fn, loop = loopOnLine(t, f, 8)
	nest, rej = RecognizeNest(fn, loop, DefaultRecognizerOptions())
	if rej != nil {
		t.Fatalf("RecognizeNest: %v", rej)
	}
	if nest.Depth() != 1 {
		t.Errorf("imperfect nest depth = %d, want 1", nest.Depth())
	}

	fn, loop = loopOnLine(t, f, 14)
	if _, rej := RecognizeNest(fn, loop, DefaultRecognizerOptions()); rej == nil {
		t.Error("reused induction variable should be rejected")
	}
}

// firstLoop returns the first for loop of the first function.
func firstLoop(t *testing.T, f *File) (*Function, *ForStmt) {
	t.Helper()
	fn := funcNamed(t, f, f.Funcs[0].Name)
	var found *ForStmt
	Inspect(fn.Decl.Body, func(n Node) bool {
		if l, ok := n.(*ForStmt); ok && found == nil {
			found = l
		}
		return found == nil
	})
	if found == nil {
		t.Fatal("no for loop")
	}
	return fn, found
}
