package oaccrefac

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// CorpusOptions configures a corpus run.
type CorpusOptions struct {
	Workers    int
	Recognizer RecognizerOptions

	// Progress, if set, is called once per fixture from the worker that ran it.
	Progress func(fx *Fixture, cases []*CaseResult)
}

func DefaultCorpusOptions() CorpusOptions {
	return CorpusOptions{
		Workers:    runtime.NumCPU(),
		Recognizer: DefaultRecognizerOptions(),
	}
}

// CorpusReport collects the cases of a run in fixture order.
type CorpusReport struct {
	Cases  []*CaseResult
	Passed int
	Failed int
}

// Failures returns the cases whose expectations did not hold.
func (r *CorpusReport) Failures() []*CaseResult {
	var out []*CaseResult
	for _, c := range r.Cases {
		if !c.OK() {
			out = append(out, c)
		}
	}
	return out
}

// RunCorpus evaluates fixtures in parallel. Cancellation is checked between
// fixtures.
func RunCorpus(ctx context.Context, fixtures []*Fixture, opts CorpusOptions) (*CorpusReport, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	results := make([][]*CaseResult, len(fixtures))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, fx := range fixtures {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cases := fx.Run(opts.Recognizer)
			results[i] = cases
			if opts.Progress != nil {
				opts.Progress(fx, cases)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &CorpusReport{}
	for _, cases := range results {
		for _, c := range cases {
			rep.Cases = append(rep.Cases, c)
			if c.OK() {
				rep.Passed++
			} else {
				rep.Failed++
			}
		}
	}
	return rep, nil
}
