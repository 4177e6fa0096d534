// Package main provides the oaccrefac CLI for checking loop and data-region
// transformations on C/OpenACC sources.
package main

import (
	"flag"
	"fmt"
	"os"

	oaccrefac "github.com/joverbey/oaccrefac"
)

const usageText = `oaccrefac - loop transformation legality checker for C/OpenACC

Usage:
  oaccrefac unroll --factor N <file.c> <line:col[-line:col]>
  oaccrefac tile [--depth D] --factor N [--propagate] <file.c> <sel>
  oaccrefac interchange --depth D <file.c> <sel>
  oaccrefac merge <file.c> <sel>
  oaccrefac remove-clause --var NAME <file.c> <sel>
  oaccrefac scopes <file.c>
  oaccrefac check [--workers N] [--verbose] <dir|fixture>...
  oaccrefac record [--db PATH] <dir|fixture>...
  oaccrefac diff [--db PATH] <dir|fixture>...
  oaccrefac stats [--db PATH]
  oaccrefac explain <request flags> <file.c> <sel>

Commands:
  unroll, tile, interchange, merge, remove-clause
          Evaluate one request. The result is printed as JSON. A rejected
          request is a normal result and exits 0.
          --allow-decrement   Accept loops counting down (> / >= with a negative step)

  scopes  Print each data region with its declared and inferred clauses.

  check   Run the /*<<<<< ... */ markers of fixture files and report each case.
          Exits 1 if any case does not match its marker.
          --workers   Fixtures evaluated in parallel (default: OACCREFAC_WORKERS or NumCPU)
          --verbose   Print one progress line per fixture to stderr

  record  Store the current verdicts as the regression baseline.
  diff    Compare current verdicts with the baseline. Exits 1 on any flip.
          --db        Baseline path (default: OACCREFAC_DB or ./verdicts.db)
                      .db/.bolt files use bbolt; other paths are Pebble directories
          --backend   Force pebble or bolt

  stats   Count stored verdicts by kind and outcome.

  explain Evaluate a request like the commands above (first argument is the kind)
          and, if it is rejected, ask Gemini for a short explanation.
          Needs GEMINI_API_KEY. --model overrides OACCREFAC_GEMINI_MODEL.

Output:
  JSON to stdout. Diagnostics go to stderr.
`

var commands = []string{"unroll", "tile", "interchange", "merge", "remove-clause", "scopes", "check", "record", "diff", "stats", "explain"}

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}
	cfg := oaccrefac.LoadConfig()
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "unroll", "tile", "interchange", "merge", "remove-clause":
		err = runEvaluate(os.Stdout, cmd, args, cfg)
	case "scopes":
		err = runScopes(os.Stdout, args)
	case "check":
		var ok bool
		ok, err = runCheck(os.Stdout, args, cfg)
		if err == nil && !ok {
			os.Exit(1)
		}
	case "record":
		err = runRecord(os.Stdout, args, cfg)
	case "diff":
		var clean bool
		clean, err = runDiff(os.Stdout, args, cfg)
		if err == nil && !clean {
			os.Exit(1)
		}
	case "stats":
		err = runStats(os.Stdout, args, cfg)
	case "explain":
		err = runExplain(os.Stdout, args, cfg)
	case "-h", "--help", "help":
		flag.Usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		if suggestion := suggestCommand(cmd); suggestion != "" {
			fmt.Fprintf(os.Stderr, "Did you mean '%s'?\n\n", suggestion)
		}
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
