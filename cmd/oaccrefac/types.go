// types.go
package main

import (
	oaccrefac "github.com/joverbey/oaccrefac"
)

// -- Constants --

const (
	// MaxSourceFileSize limits the size of C files read into memory.
	MaxSourceFileSize = 10 * 1024 * 1024 // 10 MB

	// MaxAPIResponseSize limits the response body accepted from the LLM provider.
	MaxAPIResponseSize = 1 * 1024 * 1024 // 1 MB
)

// -- Output Structures --

// EvalOutput is the JSON printed for a single request.
type EvalOutput struct {
	File   string                     `json:"file"`
	Result *oaccrefac.TransformResult `json:"result"`
}

// RegionOutput describes one data region for the scopes command.
type RegionOutput struct {
	Function  string            `json:"function"`
	Line      int               `json:"line"`
	Level     int               `json:"level"`
	Directive string            `json:"directive"`
	Declared  map[string]string `json:"declared,omitempty"`
	Inferred  map[string]string `json:"inferred,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Compute   []ComputeOutput   `json:"compute,omitempty"`
}

// ComputeOutput describes a compute construct inside a region.
type ComputeOutput struct {
	Line      int      `json:"line"`
	Construct string   `json:"construct"`
	Uses      []string `json:"uses,omitempty"`
}

// CaseOutput is one marker's outcome in check output.
type CaseOutput struct {
	ID       string   `json:"id"`
	Marker   string   `json:"marker"`
	OK       bool     `json:"ok"`
	Verdict  string   `json:"verdict,omitempty"`
	Problems []string `json:"problems,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// CheckOutput summarises a corpus run.
type CheckOutput struct {
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseOutput `json:"cases"`
}

// DiffOutput lists verdict flips against the baseline.
type DiffOutput struct {
	Baseline string           `json:"baseline"`
	Flips    []oaccrefac.Flip `json:"flips"`
	Skipped  []string         `json:"skipped,omitempty"`
}

// Explanation is the schema the LLM must answer with.
type Explanation struct {
	Summary    string `json:"summary"`
	Suggestion string `json:"suggestion"`
}

// ExplainOutput pairs a result with its explanation.
type ExplainOutput struct {
	File        string                     `json:"file"`
	Result      *oaccrefac.TransformResult `json:"result"`
	Explanation *Explanation               `json:"explanation,omitempty"`
}
