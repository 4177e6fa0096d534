package oaccrefac

import (
	"reflect"
	"testing"
)

func TestParseDirective(t *testing.T) {
	tests := []struct {
		text      string
		construct string
		clauses   []string
		printed   string
	}{
		{
			text:      "acc parallel loop gang reduction(+:sum) copyin(a[0:n], b)",
			construct: "parallel loop",
			clauses:   []string{"gang", "reduction", "copyin"},
			printed:   "acc parallel loop gang reduction(+:sum) copyin(a[0:n], b)",
		},
		{
			text:      "acc data pcopyin(x) present_or_create(tmp)",
			construct: "data",
			clauses:   []string{"copyin", "create"},
			printed:   "acc data copyin(x) create(tmp)",
		},
		{
			text:      "acc enter data copyin(a[0:n])",
			construct: "enter data",
			clauses:   []string{"copyin"},
			printed:   "acc enter data copyin(a[0:n])",
		},
		{
			text:      "acc kernels    async(2),  copy(q)",
			construct: "kernels",
			clauses:   []string{"async", "copy"},
			printed:   "acc kernels async(2) copy(q)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d, isACC, err := ParseDirective(&Pragma{Text: tt.text})
			if err != nil || !isACC {
				t.Fatalf("ParseDirective = %v, %v", isACC, err)
			}
			if d.Construct != tt.construct {
				t.Errorf("construct = %q, want %q", d.Construct, tt.construct)
			}
			var names []string
			for _, c := range d.Clauses {
				names = append(names, c.Name)
			}
			if !reflect.DeepEqual(names, tt.clauses) {
				t.Errorf("clauses = %v, want %v", names, tt.clauses)
			}
			if got := d.String(); got != tt.printed {
				t.Errorf("String = %q, want %q", got, tt.printed)
			}
		})
	}
}

func TestParseDirectiveOtherFamilies(t *testing.T) {
	for _, text := range []string{"omp parallel for", "once", "GCC ivdep"} {
		d, isACC, err := ParseDirective(&Pragma{Text: text})
		if d != nil || isACC || err != nil {
			t.Errorf("ParseDirective(%q) = %v, %v, %v", text, d, isACC, err)
		}
	}
}

func TestParseDirectiveMalformed(t *testing.T) {
	for _, text := range []string{
		"acc copyin(x)",
		"acc data copy(a[0:n]",
		"acc parallel reduction(sum)",
		"acc data copy(a) +",
	} {
		_, isACC, err := ParseDirective(&Pragma{Text: text})
		if !isACC || err == nil {
			t.Errorf("ParseDirective(%q) accepted malformed pragma", text)
		}
	}
}

func TestDirectiveQueries(t *testing.T) {
	d, _, err := ParseDirective(&Pragma{Text: "acc data copyin(a[0:n], b) copy(c) private(p) delete(z)"})
	if err != nil {
		t.Fatal(err)
	}
	if d.IsCompute() || !d.IsData() {
		t.Errorf("data construct classified as compute")
	}
	for name, want := range map[string]bool{"a": true, "b": true, "c": true, "p": true, "z": false, "n": false} {
		if got := d.Supplies(name); got != want {
			t.Errorf("Supplies(%s) = %v, want %v", name, got, want)
		}
	}
	m, order := d.DataClauses()
	if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
		t.Errorf("order = %v", order)
	}
	if m["a"] != "copyin" || m["c"] != "copy" {
		t.Errorf("clauses = %v", m)
	}
	if got := d.withoutVar("a").String(); got != "acc data copyin(b) copy(c) private(p) delete(z)" {
		t.Errorf("withoutVar(a) = %q", got)
	}
	if got := d.withoutVar("c").String(); got != "acc data copyin(a[0:n], b) private(p) delete(z)" {
		t.Errorf("withoutVar(c) = %q", got)
	}

	kl, _, _ := ParseDirective(&Pragma{Text: "acc kernels loop"})
	if !kl.IsCompute() {
		t.Error("kernels loop is a compute construct")
	}
	lp, _, _ := ParseDirective(&Pragma{Text: "acc loop vector"})
	if lp.IsCompute() {
		t.Error("loop alone is not a compute construct")
	}
}

func TestSplitTopLevel(t *testing.T) {
	got := splitTopLevel("a[0:n], f(x, y) ,b")
	want := []string{"a[0:n]", "f(x, y)", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitTopLevel = %q, want %q", got, want)
	}
	if got := splitTopLevel("  "); got != nil {
		t.Errorf("splitTopLevel(blank) = %q", got)
	}
}
