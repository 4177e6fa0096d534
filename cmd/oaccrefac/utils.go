// utils.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	oaccrefac "github.com/joverbey/oaccrefac"
)

// -- Utilities --

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readSourceFile reads a C file, refusing anything over MaxSourceFileSize.
func readSourceFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxSourceFileSize {
		return nil, fmt.Errorf("%s: file too large (%d bytes)", path, info.Size())
	}
	return os.ReadFile(path)
}

// parseSelection accepts "line:col" or "line:col-line:col".
func parseSelection(s string) (oaccrefac.Range, error) {
	var r oaccrefac.Range
	from, to, hasEnd := strings.Cut(s, "-")
	start, err := parseLineCol(from)
	if err != nil {
		return r, fmt.Errorf("selection %q: %w", s, err)
	}
	r.Start = start
	if hasEnd {
		end, err := parseLineCol(to)
		if err != nil {
			return r, fmt.Errorf("selection %q: %w", s, err)
		}
		if end.Before(start) {
			return r, fmt.Errorf("selection %q: end precedes start", s)
		}
		r.End = end
	}
	return r, nil
}

func parseLineCol(s string) (oaccrefac.Pos, error) {
	l, c, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return oaccrefac.Pos{}, fmt.Errorf("want line:col")
	}
	line, err := strconv.Atoi(l)
	if err != nil || line < 1 {
		return oaccrefac.Pos{}, fmt.Errorf("bad line %q", l)
	}
	col, err := strconv.Atoi(c)
	if err != nil || col < 1 {
		return oaccrefac.Pos{}, fmt.Errorf("bad column %q", c)
	}
	return oaccrefac.Pos{Line: line, Col: col}, nil
}

func levenshtein(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	n, m := len(r1), len(r2)
	if n > m {
		r1, r2 = r2, r1
		n, m = m, n
	}
	current := make([]int, n+1)
	for i := 0; i <= n; i++ {
		current[i] = i
	}
	for j := 1; j <= m; j++ {
		previous := current[0]
		current[0] = j
		for i := 1; i <= n; i++ {
			temp := current[i]
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			current[i] = min(min(current[i-1]+1, current[i]+1), previous+cost)
			previous = temp
		}
	}
	return current[n]
}

func suggestCommand(cmd string) string {
	bestMatch := ""
	minDist := 100
	for _, c := range commands {
		dist := levenshtein(cmd, c)
		if dist < minDist {
			minDist = dist
			bestMatch = c
		}
	}
	if minDist <= 2 && minDist < len(cmd) {
		return bestMatch
	}
	return ""
}
