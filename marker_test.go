package oaccrefac

import (
	"testing"
)

func TestParseMarker(t *testing.T) {
	tests := []struct {
		text   string
		kind   Kind
		start  Pos
		end    Pos
		params MarkerParams
		pass   bool
	}{
		{"4, 5, 2, pass", KindUnroll, Pos{Line: 4, Col: 5}, Pos{}, MarkerParams{Factor: 2}, true},
		{" 4,5,6,6,2,fail ", KindUnroll, Pos{Line: 4, Col: 5}, Pos{Line: 6, Col: 6}, MarkerParams{Factor: 2}, false},
		{"3, 5, 1, pass", KindInterchange, Pos{Line: 3, Col: 5}, Pos{}, MarkerParams{Depth: 1}, true},
		{"3, 5, 4, pass", KindTile, Pos{Line: 3, Col: 5}, Pos{}, MarkerParams{StripDepth: 1, Factor: 4}, true},
		{"3, 5, 2, 4, true, pass", KindTile, Pos{Line: 3, Col: 5}, Pos{}, MarkerParams{StripDepth: 2, Factor: 4, Propagate: true}, true},
		{"3, 5, 8, 6, 4, pass", KindTile, Pos{Line: 3, Col: 5}, Pos{Line: 8, Col: 6}, MarkerParams{StripDepth: 1, Factor: 4}, true},
		{"3, 5, 8, 6, 2, 4, false, fail", KindTile, Pos{Line: 3, Col: 5}, Pos{Line: 8, Col: 6}, MarkerParams{StripDepth: 2, Factor: 4}, false},
		{"2, 1, pass", KindMerge, Pos{Line: 2, Col: 1}, Pos{}, MarkerParams{}, true},
		{"2, 1, 13, 6, pass", KindMerge, Pos{Line: 2, Col: 1}, Pos{Line: 13, Col: 6}, MarkerParams{}, true},
		{"7, 1, x, fail", KindRemoveClause, Pos{Line: 7, Col: 1}, Pos{}, MarkerParams{Var: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+" "+tt.text, func(t *testing.T) {
			m, err := ParseMarker(tt.text, tt.kind)
			if err != nil {
				t.Fatalf("ParseMarker: %v", err)
			}
			if m.Start != tt.start || m.End != tt.end {
				t.Errorf("position = %v-%v, want %v-%v", m.Start, m.End, tt.start, tt.end)
			}
			if m.Params != tt.params {
				t.Errorf("params = %+v, want %+v", m.Params, tt.params)
			}
			if m.Pass != tt.pass {
				t.Errorf("pass = %v, want %v", m.Pass, tt.pass)
			}
		})
	}
}

func TestParseMarkerErrors(t *testing.T) {
	tests := []struct {
		text string
		kind Kind
	}{
		{"4, pass", KindUnroll},
		{"4, 5, 2, maybe", KindUnroll},
		{"4, 5, pass", KindUnroll},
		{"4, 5, 6, 6, 2, 3, pass", KindUnroll},
		{"4,, 5, 2, pass", KindUnroll},
		{"9, 1, 3, 1, 2, pass", KindUnroll},
		{"4, 5, 2, x, pass", KindInterchange},
		{"3, 5, 4, yes, pass", KindTile},
		{"3, 5, 1, 2, 3, 4, 5, pass", KindTile},
		{"2, 1, 4, pass", KindMerge},
		{"2, 1, pass", KindRemoveClause},
		{"2, 1, x, y, pass", KindRemoveClause},
		{"2, 1, 2, pass", Kind("fuse")},
		{"2, 1, 2$, pass", KindUnroll},
	}
	for _, tt := range tests {
		if m, err := ParseMarker(tt.text, tt.kind); err == nil {
			t.Errorf("ParseMarker(%q, %s) = %+v, want error", tt.text, tt.kind, m)
		}
	}
}

func TestFindMarkers(t *testing.T) {
	src := []byte(`int a[10];
void f(void) {
    for (int i = 0; i < 10; i++) a[i] = 0; /*<<<<< 3, 5, 2, pass */
}
/*<<<<< 3, 5,
         11, fail */
/*<<<<< 3, 5, 5, pass */
`)
	ms, err := FindMarkers(src, KindUnroll)
	if err != nil {
		t.Fatalf("FindMarkers: %v", err)
	}
	if len(ms) != 3 {
		t.Fatalf("got %d markers, want 3", len(ms))
	}
	for i, want := range []int{3, 5, 7} {
		if ms[i].Line != want {
			t.Errorf("marker %d on line %d, want %d", i+1, ms[i].Line, want)
		}
	}
	if ms[1].Params.Factor != 11 || ms[1].Pass {
		t.Errorf("multi-line marker = %+v", ms[1])
	}

	if _, err := FindMarkers([]byte("/*<<<<< 1, 1, 2, pass"), KindUnroll); err == nil {
		t.Error("unterminated marker accepted")
	}
	if _, err := FindMarkers([]byte("\n\n/*<<<<< 1, pass */"), KindUnroll); err == nil {
		t.Error("malformed marker accepted")
	}
}

func TestMarkerCheck(t *testing.T) {
	m, err := ParseMarker("3, 5, 5, 6, 2, pass", KindUnroll)
	if err != nil {
		t.Fatal(err)
	}
	good := &TransformResult{
		Admissible: true, Factor: 2,
		Range: Range{Start: Pos{Line: 3, Col: 5}, End: Pos{Line: 5, Col: 6}},
	}
	if bad := m.Check(good); len(bad) != 0 {
		t.Errorf("Check(good) = %v", bad)
	}
	shifted := *good
	shifted.Range.End.Col = 7
	if bad := m.Check(&shifted); len(bad) != 1 {
		t.Errorf("Check(shifted range) = %v", bad)
	}
	rejected := &TransformResult{Reason: illegal(SubDependenceViolation, Pos{}, "x")}
	if bad := m.Check(rejected); len(bad) != 1 {
		t.Errorf("Check(rejected) = %v", bad)
	}

	fail, _ := ParseMarker("3, 5, 2, fail", KindUnroll)
	if bad := fail.Check(rejected); len(bad) != 0 {
		t.Errorf("fail marker against rejection = %v", bad)
	}
	if bad := fail.Check(good); len(bad) != 1 {
		t.Errorf("fail marker against admissible = %v", bad)
	}
}

func TestMarkerCheckTileFields(t *testing.T) {
	m, err := ParseMarker("4, 5, 2, 4, true, pass", KindTile)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name      string
		depth     int
		propagate bool
		problems  int
	}{
		{"matching", 2, true, 0},
		{"other strip depth", 1, true, 1},
		{"no propagation", 2, false, 1},
		{"both differ", 1, false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &TransformResult{Kind: KindTile, Admissible: true, Factor: 4, StripDepth: tt.depth, Propagate: tt.propagate}
			if bad := m.Check(res); len(bad) != tt.problems {
				t.Errorf("Check = %v, want %d problems", bad, tt.problems)
			}
		})
	}
}

func TestMarkerRequest(t *testing.T) {
	m, err := ParseMarker("3, 5, 2, 4, true, pass", KindTile)
	if err != nil {
		t.Fatal(err)
	}
	req := m.Request()
	if req.Kind != KindTile || req.StripDepth != 2 || req.Factor != 4 || !req.Propagate {
		t.Errorf("request = %+v", req)
	}
	if req.Selection.Start != (Pos{Line: 3, Col: 5}) || req.Selection.End.IsValid() {
		t.Errorf("selection = %v", req.Selection)
	}
}
