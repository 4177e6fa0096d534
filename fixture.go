package oaccrefac

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/tools/txtar"
)

// -- Fixtures --
//
// A fixture is either a plain .c file whose markers take their kind from the
// enclosing directory name (testdata/unroll/foo.c), or a txtar archive:
//
//	kind: unroll
//	-- input.c --
//	...
//	-- want --
//	expected rewrite for the first marker
//	-- want.2 --
//	expected rewrite for the second marker

// Fixture is one source file and the markers it carries.
type Fixture struct {
	Name    string
	Kind    Kind
	Src     []byte
	Markers []*Marker
	Want    map[int]string // 1-based marker index -> golden rewrite
}

// LoadFixture reads a .c or .txtar fixture.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	if filepath.Ext(path) == ".txtar" {
		return parseArchiveFixture(path, data)
	}
	kind, err := ParseKind(filepath.Base(filepath.Dir(path)))
	if err != nil {
		return nil, fmt.Errorf("%s: kind from directory: %w", path, err)
	}
	return newFixture(path, kind, data, nil)
}

func parseArchiveFixture(path string, data []byte) (*Fixture, error) {
	ar := txtar.Parse(data)
	var kind Kind
	sc := bufio.NewScanner(bytes.NewReader(ar.Comment))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if ok && strings.TrimSpace(key) == "kind" {
			k, err := ParseKind(strings.TrimSpace(val))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			kind = k
		}
	}
	if kind == "" {
		return nil, fmt.Errorf("%s: archive comment has no kind line", path)
	}

	var src []byte
	want := make(map[int]string)
	for _, f := range ar.Files {
		switch {
		case f.Name == "input.c":
			src = f.Data
		case f.Name == "want":
			want[1] = string(f.Data)
		case strings.HasPrefix(f.Name, "want."):
			n, err := strconv.Atoi(strings.TrimPrefix(f.Name, "want."))
			if err != nil || n < 1 {
				return nil, fmt.Errorf("%s: bad golden section %q", path, f.Name)
			}
			want[n] = string(f.Data)
		default:
			return nil, fmt.Errorf("%s: unexpected section %q", path, f.Name)
		}
	}
	if src == nil {
		return nil, fmt.Errorf("%s: no input.c section", path)
	}
	return newFixture(path, kind, src, want)
}

func newFixture(name string, kind Kind, src []byte, want map[int]string) (*Fixture, error) {
	markers, err := FindMarkers(src, kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(markers) == 0 {
		return nil, fmt.Errorf("%s: no markers", name)
	}
	for n := range want {
		if n > len(markers) {
			return nil, fmt.Errorf("%s: golden section want.%d has no marker", name, n)
		}
	}
	return &Fixture{Name: name, Kind: kind, Src: src, Markers: markers, Want: want}, nil
}

// LoadFixtures walks the given files and directories for fixtures.
func LoadFixtures(paths ...string) ([]*Fixture, error) {
	var out []*Fixture
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch filepath.Ext(path) {
			case ".c", ".txtar":
			default:
				return nil
			}
			fx, err := LoadFixture(path)
			if err != nil {
				return err
			}
			out = append(out, fx)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CaseResult is the outcome of one marker.
type CaseResult struct {
	Fixture  string
	Index    int // 1-based
	Marker   *Marker
	Result   *TransformResult
	Err      error
	Problems []string
}

// OK reports whether the marker's expectations held.
func (c *CaseResult) OK() bool { return c.Err == nil && len(c.Problems) == 0 }

// ID names the case stably across runs.
func (c *CaseResult) ID() string {
	return fmt.Sprintf("%s#%d", filepath.ToSlash(c.Fixture), c.Index)
}

func (c *CaseResult) String() string {
	status := "ok"
	switch {
	case c.Err != nil:
		status = "error: " + c.Err.Error()
	case len(c.Problems) > 0:
		status = "FAIL: " + strings.Join(c.Problems, "; ")
	}
	return fmt.Sprintf("%s (%s): %s", c.ID(), c.Marker.Text, status)
}

// Run evaluates every marker of the fixture. The file is parsed once.
func (fx *Fixture) Run(opts RecognizerOptions) []*CaseResult {
	out := make([]*CaseResult, len(fx.Markers))
	f, perr := ParseFile(fx.Name, fx.Src)
	for i, m := range fx.Markers {
		c := &CaseResult{Fixture: fx.Name, Index: i + 1, Marker: m}
		out[i] = c
		if perr != nil {
			c.Err = perr
			continue
		}
		res, err := Evaluate(f, m.Request(), opts)
		if err != nil {
			c.Err = err
			continue
		}
		c.Result = res
		c.Problems = m.Check(res)
		if want, ok := fx.Want[i+1]; ok && res.Admissible {
			if got := res.Rewrite + "\n"; got != want {
				c.Problems = append(c.Problems, fmt.Sprintf("rewrite mismatch:\n--- got ---\n%s--- want ---\n%s", got, want))
			}
		}
	}
	return out
}
