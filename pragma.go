package oaccrefac

import (
	"fmt"
	"strings"
)

// -- OpenACC Directives --

// Clause is one clause of an OpenACC directive. Args holds the raw text of
// each comma-separated argument; for reduction, Op holds the operator.
type Clause struct {
	Name string
	Op   string
	Args []string
}

// Directive is a parsed "#pragma acc ..." line.
type Directive struct {
	Pragma    *Pragma
	Construct string // e.g. "data", "parallel loop", "enter data"
	Clauses   []*Clause
}

var constructWords = map[string]bool{
	"parallel": true, "kernels": true, "serial": true, "loop": true,
	"data": true, "enter": true, "exit": true, "host_data": true,
	"update": true, "declare": true, "routine": true, "atomic": true,
	"wait": true, "cache": true,
}

// clauseAliases maps the present_or spellings onto their canonical clause.
var clauseAliases = map[string]string{
	"pcopy": "copy", "present_or_copy": "copy",
	"pcopyin": "copyin", "present_or_copyin": "copyin",
	"pcopyout": "copyout", "present_or_copyout": "copyout",
	"pcreate": "create", "present_or_create": "create",
}

// Data clauses in the order they are printed.
var dataClauses = []string{"copy", "copyin", "copyout", "create", "present", "deviceptr"}

// varClauses take a list of variables or array sections.
var varClauses = map[string]bool{
	"copy": true, "copyin": true, "copyout": true, "create": true,
	"present": true, "deviceptr": true, "delete": true, "private": true,
	"firstprivate": true, "reduction": true, "use_device": true,
	"device_resident": true, "host": true, "self": true, "device": true,
	"link": true, "attach": true, "detach": true, "no_create": true,
}

// ParseDirective parses an OpenACC pragma. It reports false for pragmas of
// other families, and an error for a malformed acc pragma.
func ParseDirective(p *Pragma) (*Directive, bool, error) {
	s := &pragmaScanner{src: p.Text}
	if s.word() != "acc" {
		return nil, false, nil
	}
	d := &Directive{Pragma: p}
	var words []string
	for {
		save := s.pos
		w := s.word()
		if w == "" || !constructWords[w] || s.peek() == '(' {
			s.pos = save
			break
		}
		words = append(words, w)
	}
	if len(words) == 0 {
		return nil, true, fmt.Errorf("acc pragma %q names no construct", p.Text)
	}
	d.Construct = strings.Join(words, " ")
	for {
		s.skipSpace()
		if s.peek() == ',' {
			s.pos++
			continue
		}
		if s.pos >= len(s.src) {
			break
		}
		name := s.word()
		if name == "" {
			return nil, true, fmt.Errorf("acc pragma %q: unexpected %q", p.Text, s.src[s.pos:])
		}
		if canon, ok := clauseAliases[name]; ok {
			name = canon
		}
		c := &Clause{Name: name}
		if s.peek() == '(' {
			body, ok := s.group()
			if !ok {
				return nil, true, fmt.Errorf("acc pragma %q: unbalanced parentheses", p.Text)
			}
			if name == "reduction" {
				op, rest, found := strings.Cut(body, ":")
				if !found {
					return nil, true, fmt.Errorf("acc pragma %q: reduction without operator", p.Text)
				}
				c.Op = strings.TrimSpace(op)
				body = rest
			}
			c.Args = splitTopLevel(body)
		}
		d.Clauses = append(d.Clauses, c)
	}
	return d, true, nil
}

// IsData reports whether d opens a structured data region.
func (d *Directive) IsData() bool { return d.Construct == "data" }

// IsCompute reports whether d opens a parallel, kernels or serial construct.
func (d *Directive) IsCompute() bool {
	switch strings.Fields(d.Construct)[0] {
	case "parallel", "kernels", "serial":
		return true
	}
	return false
}

// Vars returns the variables named by the clause, ignoring array sections.
func (c *Clause) Vars() []string {
	if !varClauses[c.Name] {
		return nil
	}
	var out []string
	for _, a := range c.Args {
		if name := leadingIdent(a); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (c *Clause) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	args := strings.Join(c.Args, ", ")
	if c.Op != "" {
		args = c.Op + ":" + args
	}
	return c.Name + "(" + args + ")"
}

// String prints the directive without the "#pragma" prefix.
func (d *Directive) String() string {
	parts := []string{"acc", d.Construct}
	for _, c := range d.Clauses {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " ")
}

// Supplies reports whether the directive makes name available on the device.
func (d *Directive) Supplies(name string) bool {
	for _, c := range d.Clauses {
		for _, v := range c.Vars() {
			if v == name && c.Name != "delete" {
				return true
			}
		}
	}
	return false
}

// DataClauses maps each variable in a data clause to that clause, keeping
// first-appearance order.
func (d *Directive) DataClauses() (map[string]string, []string) {
	m := make(map[string]string)
	var order []string
	for _, c := range d.Clauses {
		if !isDataClause(c.Name) {
			continue
		}
		for _, v := range c.Vars() {
			if _, seen := m[v]; !seen {
				order = append(order, v)
			}
			m[v] = c.Name
		}
	}
	return m, order
}

func isDataClause(name string) bool {
	for _, c := range dataClauses {
		if c == name {
			return true
		}
	}
	return false
}

// withoutVar returns a copy of d with name dropped from every data clause.
// Clauses left without arguments are dropped.
func (d *Directive) withoutVar(name string) *Directive {
	out := &Directive{Pragma: d.Pragma, Construct: d.Construct}
	for _, c := range d.Clauses {
		if !isDataClause(c.Name) {
			out.Clauses = append(out.Clauses, c)
			continue
		}
		nc := &Clause{Name: c.Name, Op: c.Op}
		for _, a := range c.Args {
			if leadingIdent(a) != name {
				nc.Args = append(nc.Args, a)
			}
		}
		if len(nc.Args) > 0 {
			out.Clauses = append(out.Clauses, nc)
		}
	}
	return out
}

func leadingIdent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !isIdentStart(s[0]) {
		return ""
	}
	i := 1
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	return s[:i]
}

// splitTopLevel splits s on commas outside brackets and parentheses.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" || len(out) > 0 {
		out = append(out, rest)
	}
	return out
}

type pragmaScanner struct {
	src string
	pos int
}

func (s *pragmaScanner) skipSpace() {
	for s.pos < len(s.src) && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t' || s.src[s.pos] == '\\' || s.src[s.pos] == '\n') {
		s.pos++
	}
}

func (s *pragmaScanner) peek() byte {
	s.skipSpace()
	if s.pos < len(s.src) {
		return s.src[s.pos]
	}
	return 0
}

func (s *pragmaScanner) word() string {
	s.skipSpace()
	start := s.pos
	for s.pos < len(s.src) && isIdentPart(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

// group consumes a parenthesized group and returns its contents.
func (s *pragmaScanner) group() (string, bool) {
	start := s.pos + 1
	depth := 0
	for ; s.pos < len(s.src); s.pos++ {
		switch s.src[s.pos] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				s.pos++
				return s.src[start : s.pos-1], true
			}
		}
	}
	return "", false
}
