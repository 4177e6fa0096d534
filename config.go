package oaccrefac

import (
	"runtime"

	"github.com/xyproto/env/v2"
)

// Config holds the environment-driven defaults of the command line tool.
// Flags override these values.
type Config struct {
	DBPath         string  // OACCREFAC_DB
	Backend        Backend // OACCREFAC_BACKEND; empty means inferred from DBPath
	Workers        int     // OACCREFAC_WORKERS
	AllowDecrement bool    // OACCREFAC_ALLOW_DECREMENT
	Verbose        bool    // OACCREFAC_VERBOSE
	GeminiModel    string  // OACCREFAC_GEMINI_MODEL
	GeminiAPIKey   string  // GEMINI_API_KEY
}

const (
	defaultDBPath      = "./verdicts.db"
	defaultGeminiModel = "gemini-2.0-flash"
)

// LoadConfig reads the configuration from the environment. The env cache is
// refreshed first so that values set since the last call are seen.
func LoadConfig() Config {
	env.Load()
	c := Config{
		DBPath:         env.Str("OACCREFAC_DB", defaultDBPath),
		Backend:        Backend(env.Str("OACCREFAC_BACKEND")),
		Workers:        env.Int("OACCREFAC_WORKERS", runtime.NumCPU()),
		AllowDecrement: env.Bool("OACCREFAC_ALLOW_DECREMENT"),
		Verbose:        env.Bool("OACCREFAC_VERBOSE"),
		GeminiModel:    env.Str("OACCREFAC_GEMINI_MODEL", defaultGeminiModel),
		GeminiAPIKey:   env.Str("GEMINI_API_KEY"),
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c
}

// RecognizerOptions derives the loop recognizer settings.
func (c Config) RecognizerOptions() RecognizerOptions {
	opts := DefaultRecognizerOptions()
	opts.AllowDecrement = c.AllowDecrement
	return opts
}

// CorpusOptions derives the corpus runner settings.
func (c Config) CorpusOptions() CorpusOptions {
	opts := DefaultCorpusOptions()
	opts.Workers = c.Workers
	opts.Recognizer = c.RecognizerOptions()
	return opts
}
