// cmd_baseline.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	oaccrefac "github.com/joverbey/oaccrefac"
)

type storeFlags struct {
	db      string
	backend string
}

func (s *storeFlags) register(fs *flag.FlagSet, cfg oaccrefac.Config) {
	fs.StringVar(&s.db, "db", cfg.DBPath, "Baseline path")
	fs.StringVar(&s.backend, "backend", string(cfg.Backend), "Store backend: pebble or bolt (default: by path)")
}

func (s storeFlags) open(readOnly bool) (oaccrefac.VerdictStore, error) {
	return oaccrefac.OpenStore(s.db, oaccrefac.Backend(s.backend), readOnly)
}

// collectRecords converts a report into records. IDs of cases that could not
// be evaluated are returned separately.
func collectRecords(rep *oaccrefac.CorpusReport, now time.Time) ([]oaccrefac.VerdictRecord, []string) {
	var recs []oaccrefac.VerdictRecord
	var skipped []string
	for _, c := range rep.Cases {
		rec, ok := oaccrefac.RecordFromCase(c, now)
		if !ok {
			skipped = append(skipped, c.ID())
			continue
		}
		recs = append(recs, rec)
	}
	return recs, skipped
}

func runRecord(w io.Writer, args []string, cfg oaccrefac.Config) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	var sf storeFlags
	var cf corpusFlags
	sf.register(fs, cfg)
	cf.register(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rep, err := runFixtures(context.Background(), fs.Args(), cfg, cf)
	if err != nil {
		return err
	}
	recs, skipped := collectRecords(rep, time.Now())
	for _, id := range skipped {
		fmt.Fprintf(os.Stderr, "warning: %s not recorded (evaluation failed)\n", id)
	}

	store, err := sf.open(false)
	if err != nil {
		return fmt.Errorf("opening baseline: %w", err)
	}
	defer store.Close()
	if err := store.PutVerdicts(recs); err != nil {
		return fmt.Errorf("writing baseline: %w", err)
	}
	fmt.Fprintf(w, "recorded %d verdicts to %s\n", len(recs), sf.db)
	return nil
}

// runDiff reports whether the current verdicts match the baseline.
func runDiff(w io.Writer, args []string, cfg oaccrefac.Config) (bool, error) {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	var sf storeFlags
	var cf corpusFlags
	sf.register(fs, cfg)
	cf.register(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return false, err
	}
	rep, err := runFixtures(context.Background(), fs.Args(), cfg, cf)
	if err != nil {
		return false, err
	}
	recs, skipped := collectRecords(rep, time.Now())

	store, err := sf.open(true)
	if err != nil {
		return false, fmt.Errorf("opening baseline: %w", err)
	}
	defer store.Close()
	flips, err := oaccrefac.DiffBaseline(store, recs)
	if err != nil {
		return false, err
	}
	if flips == nil {
		flips = []oaccrefac.Flip{}
	}
	if cf.verbose {
		for _, f := range flips {
			fmt.Fprintln(os.Stderr, f.String())
		}
	}
	out := DiffOutput{Baseline: sf.db, Flips: flips, Skipped: skipped}
	if err := writeJSON(w, out); err != nil {
		return false, err
	}
	return len(flips) == 0, nil
}

func runStats(w io.Writer, args []string, cfg oaccrefac.Config) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	var sf storeFlags
	sf.register(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := sf.open(true)
	if err != nil {
		return fmt.Errorf("opening baseline: %w", err)
	}
	defer store.Close()
	stats, err := store.Stats()
	if err != nil {
		return err
	}
	return writeJSON(w, stats)
}
