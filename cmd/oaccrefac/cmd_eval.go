// cmd_eval.go
package main

import (
	"flag"
	"fmt"
	"io"

	oaccrefac "github.com/joverbey/oaccrefac"
)

// requestArgs is a parsed single-request command line.
type requestArgs struct {
	File string
	Req  *oaccrefac.TransformRequest
	Opts oaccrefac.RecognizerOptions
}

// parseRequestArgs parses the flags and positionals of a request command.
// extra, if non-nil, registers additional flags on the same set.
func parseRequestArgs(cmd string, args []string, cfg oaccrefac.Config, extra func(*flag.FlagSet)) (*requestArgs, error) {
	kind, err := oaccrefac.ParseKind(cmd)
	if err != nil {
		return nil, err
	}
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	req := &oaccrefac.TransformRequest{Kind: kind}
	allowDec := fs.Bool("allow-decrement", cfg.AllowDecrement, "Accept decrementing loops")
	switch kind {
	case oaccrefac.KindUnroll:
		fs.IntVar(&req.Factor, "factor", 0, "Unroll factor (required)")
	case oaccrefac.KindTile:
		fs.IntVar(&req.StripDepth, "depth", 1, "Strip depth, 1-based within the nest")
		fs.IntVar(&req.Factor, "factor", 0, "Tile factor (required)")
		fs.BoolVar(&req.Propagate, "propagate", false, "Interchange the strip loop outward")
	case oaccrefac.KindInterchange:
		fs.IntVar(&req.Depth, "depth", 1, "Levels below the selected loop to exchange with")
	case oaccrefac.KindRemoveClause:
		fs.StringVar(&req.Var, "var", "", "Variable to remove (required)")
	}
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return nil, fmt.Errorf("%s requires a file and a selection", cmd)
	}
	if (kind == oaccrefac.KindUnroll || kind == oaccrefac.KindTile) && req.Factor == 0 {
		return nil, fmt.Errorf("--factor is required for %s", cmd)
	}
	if kind == oaccrefac.KindRemoveClause && req.Var == "" {
		return nil, fmt.Errorf("--var is required for %s", cmd)
	}
	sel, err := parseSelection(fs.Arg(1))
	if err != nil {
		return nil, err
	}
	req.Selection = sel
	opts := cfg.RecognizerOptions()
	opts.AllowDecrement = *allowDec
	return &requestArgs{File: fs.Arg(0), Req: req, Opts: opts}, nil
}

func (a *requestArgs) evaluate() (*oaccrefac.TransformResult, error) {
	src, err := readSourceFile(a.File)
	if err != nil {
		return nil, err
	}
	return oaccrefac.EvaluateSource(a.File, src, a.Req, a.Opts)
}

func runEvaluate(w io.Writer, cmd string, args []string, cfg oaccrefac.Config) error {
	ra, err := parseRequestArgs(cmd, args, cfg, nil)
	if err != nil {
		return err
	}
	res, err := ra.evaluate()
	if err != nil {
		return err
	}
	return writeJSON(w, EvalOutput{File: ra.File, Result: res})
}

func runScopes(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("scopes", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("scopes requires a file argument")
	}
	path := fs.Arg(0)
	src, err := readSourceFile(path)
	if err != nil {
		return err
	}
	f, err := oaccrefac.ParseFile(path, src)
	if err != nil {
		return err
	}
	out := []RegionOutput{}
	for _, fd := range f.Funcs {
		if fd.Body == nil {
			continue
		}
		tree, err := oaccrefac.ComputeScopes(oaccrefac.NewFunction(f, fd))
		if err != nil {
			return err
		}
		for _, r := range tree.Regions {
			ro := RegionOutput{
				Function:  fd.Name,
				Line:      r.Stmt.Span().Start.Line,
				Level:     r.Level,
				Directive: r.Directive.String(),
				Declared:  r.Declared,
				Inferred:  r.Inferred,
				Summary:   r.ClauseSummary(),
			}
			for _, c := range r.Compute {
				ro.Compute = append(ro.Compute, ComputeOutput{
					Line:      c.Stmt.Span().Start.Line,
					Construct: c.Directive.Construct,
					Uses:      c.Uses,
				})
			}
			out = append(out, ro)
		}
	}
	return writeJSON(w, out)
}
