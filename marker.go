package oaccrefac

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// -- Fixture Markers --
//
// A marker is a trailing comment of the form
//
//	/*<<<<< startLine, startCol[, endLine, endCol], params..., pass|fail */
//
// The parameters depend on the kind of the fixture.

const (
	markerOpen  = "/*<<<<<"
	markerClose = "*/"
)

// Marker is one parsed trailer.
type Marker struct {
	Line   int // line of the comment itself
	Text   string
	Kind   Kind
	Start  Pos
	End    Pos // zero when the marker gives no end position
	Pass   bool
	Params MarkerParams
}

// MarkerParams are the kind-specific fields of a marker.
type MarkerParams struct {
	Factor     int
	StripDepth int
	Propagate  bool
	Depth      int
	Var        string
}

// HasEnd reports whether the marker pins the result range.
func (m *Marker) HasEnd() bool { return m.End.IsValid() }

// Request converts the marker into the request it describes.
func (m *Marker) Request() *TransformRequest {
	sel := Range{Start: m.Start, End: m.End}
	return &TransformRequest{
		Kind:       m.Kind,
		Selection:  sel,
		Factor:     m.Params.Factor,
		StripDepth: m.Params.StripDepth,
		Propagate:  m.Params.Propagate,
		Depth:      m.Params.Depth,
		Var:        m.Params.Var,
	}
}

func (m *Marker) String() string {
	return fmt.Sprintf("line %d: %s", m.Line, m.Text)
}

type fieldKind int

const (
	fieldInt fieldKind = iota
	fieldBool
	fieldIdent
)

type markerField struct {
	kind fieldKind
	text string
	num  int
	flag bool
}

func lexMarkerFields(text string) ([]markerField, error) {
	var out []markerField
	for _, raw := range strings.Split(text, ",") {
		s := strings.TrimSpace(raw)
		switch {
		case s == "":
			return nil, fmt.Errorf("empty field in %q", text)
		case s == "true" || s == "false":
			out = append(out, markerField{kind: fieldBool, text: s, flag: s == "true"})
		case isDigit(s[0]) || (s[0] == '-' && len(s) > 1):
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("bad integer %q", s)
			}
			out = append(out, markerField{kind: fieldInt, text: s, num: n})
		case leadingIdent(s) == s:
			out = append(out, markerField{kind: fieldIdent, text: s})
		default:
			return nil, fmt.Errorf("unrecognized field %q", s)
		}
	}
	return out, nil
}

// ParseMarker parses the text between "/*<<<<<" and "*/" for a fixture of
// the given kind.
func ParseMarker(text string, kind Kind) (*Marker, error) {
	fields, err := lexMarkerFields(text)
	if err != nil {
		return nil, err
	}
	m := &Marker{Text: strings.TrimSpace(text), Kind: kind}
	n := len(fields)
	if n < 3 {
		return nil, fmt.Errorf("marker %q: too few fields", m.Text)
	}
	last := fields[n-1]
	if last.kind != fieldIdent || (last.text != "pass" && last.text != "fail") {
		return nil, fmt.Errorf("marker %q: last field must be pass or fail", m.Text)
	}
	m.Pass = last.text == "pass"
	fields = fields[:n-1]

	ints := 0
	for ints < len(fields) && fields[ints].kind == fieldInt {
		ints++
	}
	rest := fields[ints:]
	if ints < 2 {
		return nil, fmt.Errorf("marker %q: missing start position", m.Text)
	}
	nums := make([]int, ints)
	for i := range nums {
		nums[i] = fields[i].num
	}
	m.Start = Pos{Line: nums[0], Col: nums[1]}
	nums = nums[2:]

	// takeEnd consumes an end position when more than want integers remain.
	takeEnd := func(want int) {
		if len(nums) >= want+2 {
			m.End = Pos{Line: nums[0], Col: nums[1]}
			nums = nums[2:]
		}
	}
	switch kind {
	case KindUnroll, KindInterchange:
		takeEnd(1)
		if len(nums) != 1 || len(rest) != 0 {
			return nil, fmt.Errorf("marker %q: %s takes one integer parameter", m.Text, kind)
		}
		if kind == KindUnroll {
			m.Params.Factor = nums[0]
		} else {
			m.Params.Depth = nums[0]
		}
	case KindTile:
		// 1 or 2 integers follow the position: [stripDepth,] factor.
		switch len(nums) {
		case 1, 2:
		case 3, 4:
			takeEnd(len(nums) - 2)
		default:
			return nil, fmt.Errorf("marker %q: tile takes [stripDepth,] factor", m.Text)
		}
		m.Params.StripDepth = 1
		if len(nums) == 2 {
			m.Params.StripDepth = nums[0]
			nums = nums[1:]
		}
		m.Params.Factor = nums[0]
		switch {
		case len(rest) == 0:
		case len(rest) == 1 && rest[0].kind == fieldBool:
			m.Params.Propagate = rest[0].flag
		default:
			return nil, fmt.Errorf("marker %q: tile propagate flag must be true or false", m.Text)
		}
	case KindMerge:
		takeEnd(0)
		if len(nums) != 0 || len(rest) != 0 {
			return nil, fmt.Errorf("marker %q: merge takes no parameters", m.Text)
		}
	case KindRemoveClause:
		takeEnd(0)
		if len(nums) != 0 || len(rest) != 1 || rest[0].kind != fieldIdent {
			return nil, fmt.Errorf("marker %q: remove-clause takes one variable name", m.Text)
		}
		m.Params.Var = rest[0].text
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if m.HasEnd() && m.End.Before(m.Start) {
		return nil, fmt.Errorf("marker %q: end precedes start", m.Text)
	}
	return m, nil
}

// FindMarkers returns every marker in src, in order.
func FindMarkers(src []byte, kind Kind) ([]*Marker, error) {
	var out []*Marker
	line, off := 1, 0
	for {
		i := bytes.Index(src[off:], []byte(markerOpen))
		if i < 0 {
			return out, nil
		}
		line += bytes.Count(src[off:off+i], []byte("\n"))
		start := off + i + len(markerOpen)
		j := bytes.Index(src[start:], []byte(markerClose))
		if j < 0 {
			return nil, fmt.Errorf("line %d: unterminated marker", line)
		}
		m, err := ParseMarker(string(src[start:start+j]), kind)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		m.Line = line
		out = append(out, m)
		line += bytes.Count(src[off+i:start+j], []byte("\n"))
		off = start + j + len(markerClose)
	}
}

// Check compares a result against the marker's expectations. It returns a
// description of each mismatch.
func (m *Marker) Check(res *TransformResult) []string {
	var bad []string
	if !m.Pass {
		if res.Admissible {
			bad = append(bad, "expected rejection, got admissible result")
		}
		return bad
	}
	if !res.Admissible {
		return append(bad, fmt.Sprintf("expected admissible, got %v", res.Reason))
	}
	if m.HasEnd() {
		got := res.Range
		if got.Start.Line != m.Start.Line || got.Start.Col != m.Start.Col ||
			got.End.Line != m.End.Line || got.End.Col != m.End.Col {
			bad = append(bad, fmt.Sprintf("range %s, want %d:%d-%d:%d", got, m.Start.Line, m.Start.Col, m.End.Line, m.End.Col))
		}
	}
	if m.Params.Factor != 0 && res.Factor != m.Params.Factor {
		bad = append(bad, fmt.Sprintf("factor %d, want %d", res.Factor, m.Params.Factor))
	}
	if m.Kind == KindTile {
		if res.StripDepth != m.Params.StripDepth {
			bad = append(bad, fmt.Sprintf("strip depth %d, want %d", res.StripDepth, m.Params.StripDepth))
		}
		if res.Propagate != m.Params.Propagate {
			bad = append(bad, fmt.Sprintf("propagate %v, want %v", res.Propagate, m.Params.Propagate))
		}
	}
	return bad
}
