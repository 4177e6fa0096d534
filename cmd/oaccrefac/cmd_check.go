// cmd_check.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	oaccrefac "github.com/joverbey/oaccrefac"
)

// corpusFlags are shared by check, record and diff.
type corpusFlags struct {
	workers int
	verbose bool
}

func (c *corpusFlags) register(fs *flag.FlagSet, cfg oaccrefac.Config) {
	fs.IntVar(&c.workers, "workers", cfg.Workers, "Fixtures evaluated in parallel")
	fs.BoolVar(&c.verbose, "verbose", cfg.Verbose, "Print progress to stderr")
}

// runFixtures loads and evaluates every fixture under paths.
func runFixtures(ctx context.Context, paths []string, cfg oaccrefac.Config, cf corpusFlags) (*oaccrefac.CorpusReport, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no fixture paths given")
	}
	fixtures, err := oaccrefac.LoadFixtures(paths...)
	if err != nil {
		return nil, err
	}
	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixtures found under %v", paths)
	}
	opts := cfg.CorpusOptions()
	opts.Workers = cf.workers
	if cf.verbose {
		opts.Progress = func(fx *oaccrefac.Fixture, cases []*oaccrefac.CaseResult) {
			failed := 0
			for _, c := range cases {
				if !c.OK() {
					failed++
				}
			}
			fmt.Fprintf(os.Stderr, "[%s] %s: %d cases, %d failed\n", fx.Kind, fx.Name, len(cases), failed)
		}
	}
	return oaccrefac.RunCorpus(ctx, fixtures, opts)
}

func caseOutput(c *oaccrefac.CaseResult) CaseOutput {
	out := CaseOutput{
		ID:       c.ID(),
		Marker:   c.Marker.Text,
		OK:       c.OK(),
		Problems: c.Problems,
	}
	if c.Result != nil {
		out.Verdict = c.Result.String()
	}
	if c.Err != nil {
		out.Error = c.Err.Error()
	}
	return out
}

// runCheck reports whether every marker held.
func runCheck(w io.Writer, args []string, cfg oaccrefac.Config) (bool, error) {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	var cf corpusFlags
	cf.register(fs, cfg)
	failedOnly := fs.Bool("failed", false, "Only list failing cases")
	if err := fs.Parse(args); err != nil {
		return false, err
	}
	rep, err := runFixtures(context.Background(), fs.Args(), cfg, cf)
	if err != nil {
		return false, err
	}
	out := CheckOutput{Passed: rep.Passed, Failed: rep.Failed, Cases: []CaseOutput{}}
	for _, c := range rep.Cases {
		if *failedOnly && c.OK() {
			continue
		}
		out.Cases = append(out.Cases, caseOutput(c))
	}
	if err := writeJSON(w, out); err != nil {
		return false, err
	}
	return rep.Failed == 0, nil
}
