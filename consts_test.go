package oaccrefac

import (
	"math/big"
	"testing"
)

func TestConstEval(t *testing.T) {
	env := newConstEnv()
	env.vals["N"] = big.NewInt(8)
	tests := []struct {
		src  string
		want int64
		ok   bool
	}{
		{"N * 2 + 1", 17, true},
		{"(N - 1) / 2", 3, true},
		{"N % 3", 2, true},
		{"N > 4 ? N : 4", 8, true},
		{"!N", 0, true},
		{"~0", -1, true},
		{"1 << 4", 16, true},
		{"'A' + 1", 66, true},
		{"(unsigned)N", 8, true},
		{"M + 1", 0, false},
		{"N / 0", 0, false},
		{"(double)N", 0, false},
	}
	for _, tt := range tests {
		x, err := ParseExpr(tt.src)
		if err != nil {
			t.Fatalf("ParseExpr(%q): %v", tt.src, err)
		}
		v, ok := env.Eval(x)
		if ok != tt.ok {
			t.Errorf("Eval(%q) ok = %v, want %v", tt.src, ok, tt.ok)
			continue
		}
		if ok && v.Int64() != tt.want {
			t.Errorf("Eval(%q) = %s, want %d", tt.src, v, tt.want)
		}
	}
}

func TestConstsAtProgramPoint(t *testing.T) {
	f := mustParse(t, `#define W (H * 2)
#define H 4
const int ROWS = W + 1;
int mutable = 3;
void f(int *a, int p) {
    int n = 5;
    int m = p;
    n += 2;
    for (int i = 0; i < n; i++) a[i] = 0;
    for (int k = 0; k < 3; k++) {
        int c = 7;
        n = n + 1;
        for (int j = 0; j < c; j++) a[j] = n;
    }
    int *q = &m;
}
`)
	fn, inner := loopOnLine(t, f, 13)
	env := fn.Consts(inner)
	tests := []struct {
		name string
		want int64
		ok   bool
	}{
		{"W", 8, true},
		{"H", 4, true},
		{"ROWS", 9, true},
		{"mutable", 0, false},
		{"c", 7, true},
		{"n", 0, false}, // written by the enclosing k loop
		{"m", 0, false}, // parameter copy, and its address is taken
	}
	for _, tt := range tests {
		v, ok := env.Value(tt.name)
		if ok != tt.ok || (ok && v.Int64() != tt.want) {
			t.Errorf("Value(%s) = %v, %v; want %d, %v", tt.name, v, ok, tt.want, tt.ok)
		}
	}

	_, first := loopOnLine(t, f, 9)
	if v, ok := fn.Consts(first).Value("n"); !ok || v.Int64() != 7 {
		t.Errorf("n before first loop = %v, %v; want 7", v, ok)
	}
}
