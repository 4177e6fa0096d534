package oaccrefac

import (
	"fmt"
	"strings"
)

// -- Rewrite Helpers --

// lineIndent returns the leading whitespace of the line containing p.
func lineIndent(src []byte, p Pos) string {
	start := p.Offset
	for start > 0 && src[start-1] != '\n' {
		start--
	}
	end := start
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return string(src[start:end])
}

// freshName returns base_0, base_1, ... choosing the first name not already
// used anywhere in the function or file scope.
func freshName(fn *Function, base string) string {
	used := identsIn(fn.Decl)
	for i := 0; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if !used[name] && fn.Lookup(name) == nil && fn.File.Defines[name] == "" {
			return name
		}
	}
}

// headerText prints "for (init; cond; post)".
func headerText(init, cond, post string) string {
	var b strings.Builder
	b.WriteString("for (")
	b.WriteString(init)
	b.WriteString(";")
	if cond != "" {
		b.WriteString(" " + cond)
	}
	b.WriteString(";")
	if post != "" {
		b.WriteString(" " + post)
	}
	b.WriteString(")")
	return b.String()
}

// originalHeader reprints the header of a recognized loop.
func originalHeader(loop *ForStmt) string {
	init := ""
	switch s := loop.Init.(type) {
	case *DeclStmt:
		init = strings.TrimSuffix(FormatStmt(s), ";")
	case *ExprStmt:
		init = FormatExpr(s.X)
	}
	cond, post := "", ""
	if loop.Cond != nil {
		cond = FormatExpr(loop.Cond)
	}
	if loop.Post != nil {
		post = FormatExpr(loop.Post)
	}
	return headerText(init, cond, post)
}

type nestLevel struct {
	Pragmas []*Pragma
	Header  string
}

// emitNest prints a chain of loop headers around body. The first line carries
// no indentation since it replaces text starting mid-line.
func emitNest(levels []nestLevel, body Stmt, base string) string {
	var b strings.Builder
	ind := base
	for i, l := range levels {
		if i > 0 {
			b.WriteString(ind)
		}
		for _, p := range l.Pragmas {
			b.WriteString("#pragma " + p.Text + "\n" + ind)
		}
		b.WriteString(l.Header + " {\n")
		ind += indentUnit
	}
	for _, s := range stmtList(body) {
		b.WriteString(ind + formatStmt(s, ind, nil) + "\n")
	}
	for i := len(levels) - 1; i >= 0; i-- {
		ind = ind[:len(ind)-len(indentUnit)]
		b.WriteString(ind + "}")
		if i > 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
