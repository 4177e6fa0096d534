package oaccrefac

import (
	"runtime"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"OACCREFAC_DB", "OACCREFAC_BACKEND", "OACCREFAC_WORKERS", "OACCREFAC_ALLOW_DECREMENT", "OACCREFAC_VERBOSE", "OACCREFAC_GEMINI_MODEL", "GEMINI_API_KEY"} {
		t.Setenv(k, "")
	}
	c := LoadConfig()
	if c.DBPath != defaultDBPath || c.Backend != "" || c.GeminiModel != defaultGeminiModel {
		t.Errorf("defaults = %+v", c)
	}
	if c.Workers != runtime.NumCPU() || c.AllowDecrement || c.Verbose {
		t.Errorf("defaults = %+v", c)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("OACCREFAC_DB", "/tmp/base")
	t.Setenv("OACCREFAC_BACKEND", "bolt")
	t.Setenv("OACCREFAC_WORKERS", "3")
	t.Setenv("OACCREFAC_ALLOW_DECREMENT", "true")
	t.Setenv("OACCREFAC_VERBOSE", "true")
	t.Setenv("OACCREFAC_GEMINI_MODEL", "gemini-test")
	t.Setenv("GEMINI_API_KEY", "k")

	c := LoadConfig()
	if c.DBPath != "/tmp/base" || c.Backend != BackendBolt || c.Workers != 3 {
		t.Errorf("config = %+v", c)
	}
	if !c.AllowDecrement || !c.Verbose || c.GeminiModel != "gemini-test" || c.GeminiAPIKey != "k" {
		t.Errorf("config = %+v", c)
	}
	if !c.RecognizerOptions().AllowDecrement {
		t.Error("recognizer options lost AllowDecrement")
	}
	co := c.CorpusOptions()
	if co.Workers != 3 || !co.Recognizer.AllowDecrement {
		t.Errorf("corpus options = %+v", co)
	}
}

func TestLoadConfigClampsWorkers(t *testing.T) {
	t.Setenv("OACCREFAC_WORKERS", "-4")
	if c := LoadConfig(); c.Workers != 1 {
		t.Errorf("workers = %d, want 1", c.Workers)
	}
}

func TestLoadConfigSeesLaterChanges(t *testing.T) {
	t.Setenv("OACCREFAC_WORKERS", "2")
	t.Setenv("OACCREFAC_ALLOW_DECREMENT", "")
	if c := LoadConfig(); c.Workers != 2 || c.AllowDecrement {
		t.Fatalf("first load = %+v", c)
	}
	t.Setenv("OACCREFAC_WORKERS", "5")
	t.Setenv("OACCREFAC_ALLOW_DECREMENT", "true")
	if c := LoadConfig(); c.Workers != 5 || !c.AllowDecrement {
		t.Errorf("second load = %+v", c)
	}
}
