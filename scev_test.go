package oaccrefac

import (
	"math/big"
	"testing"
)

// symResolver treats every identifier as an opaque symbol except those in consts.
func symResolver(consts map[string]int64) Resolver {
	return func(name string) (*AffineExpr, bool) {
		if v, ok := consts[name]; ok {
			return affineInt(v), true
		}
		return affineSym(name), true
	}
}

// TestAffineNormalization checks that equivalent subscripts fold to the same form.
func TestAffineNormalization(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"i + 1", "i + 1"},
		{"1 + i", "i + 1"},
		{"2 * (i + 3) - i", "i + 6"},
		{"i - i", "0"},
		{"-(j - 2 * i)", "2*i - j"},
		{"N * i + j", "10*i + j"},
		{"(i << 2) + N / 3", "4*i + 3"},
		{"(long)i - 1", "i - 1"},
		{"-i - 4", "-i - 4"},
	}
	resolve := symResolver(map[string]int64{"N": 10})
	for _, tt := range tests {
		x, err := ParseExpr(tt.src)
		if err != nil {
			t.Fatalf("ParseExpr(%q): %v", tt.src, err)
		}
		a, ok := toAffine(x, resolve)
		if !ok {
			t.Errorf("toAffine(%q) failed", tt.src)
			continue
		}
		if got := a.String(); got != tt.want {
			t.Errorf("toAffine(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestAffineNonLinear(t *testing.T) {
	resolve := symResolver(nil)
	for _, src := range []string{"i * j", "i / 2", "a[i]", "f(i)", "i % j", "(float)i"} {
		x, err := ParseExpr(src)
		if err != nil {
			t.Fatalf("ParseExpr(%q): %v", src, err)
		}
		if a, ok := toAffine(x, resolve); ok {
			t.Errorf("toAffine(%q) = %s, want failure", src, a)
		}
	}
}

func TestAffineAlgebra(t *testing.T) {
	i, j := affineSym("i"), affineSym("j")
	e := i.Scale(big.NewInt(3)).Add(j).Add(affineInt(2)) // 3i + j + 2

	if got := e.Coeff("i").Int64(); got != 3 {
		t.Errorf("Coeff(i) = %d", got)
	}
	if got := e.Coeff("k").Sign(); got != 0 {
		t.Errorf("Coeff(k) should be zero")
	}
	sub := e.Substitute("i", j.Add(affineInt(1))) // 4j + 5
	if got := sub.String(); got != "4*j + 5" {
		t.Errorf("Substitute = %s, want 4*j + 5", got)
	}
	if e.String() != "3*i + j + 2" {
		t.Errorf("Substitute modified its receiver: %s", e)
	}
	renamed := e.Rename(func(s string) string { return "src:" + s })
	if got := renamed.String(); got != "3*src:i + src:j + 2" {
		t.Errorf("Rename = %s", got)
	}
	if !e.Sub(e).Equal(affineInt(0)) {
		t.Error("e - e should equal 0")
	}
	if e.Equal(sub) {
		t.Error("different expressions compared equal")
	}
}

// TestAddRecEvaluation checks {start, +, step} evaluation.
func TestAddRecEvaluation(t *testing.T) {
	r := &AddRec{Start: affineInt(4), Step: big.NewInt(-3)}
	if got := r.EvaluateAt(big.NewInt(5)); got.Int64() != -11 {
		t.Errorf("EvaluateAt(5) = %s, want -11", got)
	}
	if got := r.String(); got != "{4, +, -3}" {
		t.Errorf("String = %s", got)
	}
	sym := &AddRec{Start: affineSym("n"), Step: big.NewInt(1)}
	if sym.EvaluateAt(big.NewInt(1)) != nil {
		t.Error("symbolic start should not evaluate")
	}
}

func TestTripCountBoundary(t *testing.T) {
	tests := []struct {
		start, limit, step int64
		want               int64
	}{
		{0, 10, 1, 10},
		{0, 10, 3, 4},
		{0, 9, 3, 3},
		{10, 10, 1, 0},
		{10, 0, 1, 0},
		{10, -1, -1, 11},
		{10, 0, -4, 3},
	}
	for _, tt := range tests {
		h := &LoopHeader{
			Step:       tt.step,
			Decreasing: tt.step < 0,
			Rec:        &AddRec{Start: affineInt(tt.start), Step: big.NewInt(tt.step)},
			Limit:      affineInt(tt.limit),
		}
		deriveTripCount(h)
		if !h.TripKnown || h.TripCount != tt.want {
			t.Errorf("start %d limit %d step %d: trips = %d (known %v), want %d",
				tt.start, tt.limit, tt.step, h.TripCount, h.TripKnown, tt.want)
		}
	}
}
