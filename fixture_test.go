package oaccrefac

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestFixtures runs every marker under testdata.
func TestFixtures(t *testing.T) {
	fixtures, err := LoadFixtures("testdata")
	if err != nil {
		t.Fatalf("LoadFixtures: %v", err)
	}
	if len(fixtures) == 0 {
		t.Fatal("no fixtures found")
	}
	for _, fx := range fixtures {
		t.Run(filepath.ToSlash(fx.Name), func(t *testing.T) {
			for _, c := range fx.Run(DefaultRecognizerOptions()) {
				if !c.OK() {
					t.Error(c)
				}
			}
		})
	}
}

func TestLoadFixtureKinds(t *testing.T) {
	tests := []struct {
		path    string
		kind    Kind
		markers int
		goldens int
	}{
		{"testdata/unroll/basic.c", KindUnroll, 4, 0},
		{"testdata/unroll/residual.txtar", KindUnroll, 1, 1},
		{"testdata/tile/single.txtar", KindTile, 1, 1},
		{"testdata/merge-data-region/conflict.txtar", KindMerge, 1, 0},
		{"testdata/remove-data-clause/nested.c", KindRemoveClause, 3, 0},
	}
	for _, tt := range tests {
		fx, err := LoadFixture(tt.path)
		if err != nil {
			t.Errorf("LoadFixture(%s): %v", tt.path, err)
			continue
		}
		if fx.Kind != tt.kind || len(fx.Markers) != tt.markers || len(fx.Want) != tt.goldens {
			t.Errorf("%s: kind %s, %d markers, %d goldens", tt.path, fx.Kind, len(fx.Markers), len(fx.Want))
		}
	}
}

func TestLoadFixtureErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) string {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	tests := []struct {
		name string
		path string
		want string
	}{
		{"unknown directory kind", write("fuse/a.c", "/*<<<<< 1, 1, 2, pass */\n"), "kind from directory"},
		{"no markers", write("unroll/b.c", "int x;\n"), "no markers"},
		{"archive without kind", write("c.txtar", "-- input.c --\n/*<<<<< 1, 1, 2, pass */\n"), "no kind line"},
		{"archive without input", write("d.txtar", "kind: unroll\n-- want --\nx\n"), "no input.c"},
		{"stray section", write("e.txtar", "kind: unroll\n-- input.c --\n/*<<<<< 1, 1, 2, pass */\n-- notes --\n"), "unexpected section"},
		{"golden past markers", write("f.txtar", "kind: unroll\n-- input.c --\n/*<<<<< 1, 1, 2, pass */\n-- want.2 --\nx\n"), "want.2"},
		{"bad golden index", write("g.txtar", "kind: unroll\n-- input.c --\n/*<<<<< 1, 1, 2, pass */\n-- want.x --\nx\n"), "bad golden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFixture(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadFixture error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestFixtureRunReportsMismatch(t *testing.T) {
	src := []byte(`int a[10];
void f(void) {
    for (int i = 0; i < 10; i++) a[i] = 0;
}
/*<<<<< 3, 5, 2, fail */
/*<<<<< 9, 1, 2, pass */
`)
	fx, err := newFixture("inline.c", KindUnroll, src, map[int]string{})
	if err != nil {
		t.Fatal(err)
	}
	cases := fx.Run(DefaultRecognizerOptions())
	if len(cases) != 2 {
		t.Fatalf("got %d cases", len(cases))
	}
	if cases[0].OK() || len(cases[0].Problems) != 1 {
		t.Errorf("admissible result against a fail marker: %v", cases[0])
	}
	if cases[1].Err == nil {
		t.Errorf("selection outside any loop should error: %v", cases[1])
	}
	if got := cases[1].ID(); got != "inline.c#2" {
		t.Errorf("ID = %s", got)
	}
}

func TestFixtureRunParseFailure(t *testing.T) {
	fx, err := newFixture("broken.c", KindUnroll, []byte("void f( {\n/*<<<<< 1, 1, 2, pass */\n"), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range fx.Run(DefaultRecognizerOptions()) {
		if c.Err == nil || !strings.Contains(c.String(), "error:") {
			t.Errorf("case = %v, want parse error", c)
		}
	}
}
