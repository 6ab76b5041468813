package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/moikas-code/script-sub002/errors"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Limits.MaxInstructions != 10_000 || c.Limits.MaxSuspendPoints != 100 || c.Limits.MaxLocals != 1_000 {
		t.Errorf("limits = %+v", c.Limits)
	}
	if c.Limits.ForbidRecursion == nil || !*c.Limits.ForbidRecursion {
		t.Error("recursion allowed by default")
	}
	if c.Runtime.MaxSteps != DefaultMaxSteps || c.Log.Level != "info" {
		t.Errorf("runtime = %+v, log = %+v", c.Runtime, c.Log)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, c *Config)
		wantErr errors.Kind
	}{
		{
			name: "empty keeps defaults",
			yaml: "",
			check: func(t *testing.T, c *Config) {
				if c.Limits.MaxInstructions != DefaultMaxInstructions {
					t.Errorf("max_instructions = %d", c.Limits.MaxInstructions)
				}
			},
		},
		{
			name: "overrides",
			yaml: `
limits:
  max_instructions: 50
  max_suspend_points: 4
  forbid_recursion: false
  forbidden_calls: ["os.*", exit]
runtime:
  max_steps: 99
log:
  level: debug
  development: true
`,
			check: func(t *testing.T, c *Config) {
				if c.Limits.MaxInstructions != 50 || c.Limits.MaxSuspendPoints != 4 || c.Limits.MaxLocals != DefaultMaxLocals {
					t.Errorf("limits = %+v", c.Limits)
				}
				if *c.Limits.ForbidRecursion {
					t.Error("explicit forbid_recursion: false was lost")
				}
				if len(c.Limits.ForbiddenCalls) != 2 || c.Runtime.MaxSteps != 99 {
					t.Errorf("config = %+v", c)
				}
				if c.Log.Level != "debug" || !c.Log.Development {
					t.Errorf("log = %+v", c.Log)
				}
			},
		},
		{name: "malformed", yaml: "limits: [", wantErr: errors.KindInvalidInput},
		{name: "negative limit", yaml: "limits:\n  max_locals: -1\n", wantErr: errors.KindInvalidInput},
		{name: "empty pattern", yaml: "limits:\n  forbidden_calls: ['']\n", wantErr: errors.KindInvalidInput},
		{name: "bad level", yaml: "log:\n  level: loud\n", wantErr: errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.yaml), "asyncc.yaml")
			if tt.wantErr != "" {
				if errors.KindOf(err) != tt.wantErr {
					t.Fatalf("err = %v, want kind %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			tt.check(t, c)
		})
	}
}

func TestAsyncify(t *testing.T) {
	c, err := Parse([]byte("limits:\n  forbid_recursion: false\n  forbidden_calls: ['os.*']\n"), "x")
	if err != nil {
		t.Fatal(err)
	}
	ac := c.Asyncify(nil)
	if !ac.AllowRecursion || !ac.Verify {
		t.Errorf("asyncify config = %+v", ac)
	}
	if ac.Forbidden == nil || !ac.Forbidden.MatchFunction("os.exit") || ac.Forbidden.MatchFunction("io.read") {
		t.Error("forbidden matcher does not follow the patterns")
	}
	if ac.MaxInstructions != DefaultMaxInstructions {
		t.Errorf("MaxInstructions = %d", ac.MaxInstructions)
	}

	if Default().Asyncify(nil).Forbidden != nil {
		t.Error("default config forbids callees")
	}
}

func TestLoadAndFind(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, FileName)
	if err := os.WriteFile(path, []byte("limits:\n  max_locals: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := Find(nested)
	if err != nil || found != path {
		t.Fatalf("Find = %q, %v; want %q", found, err, path)
	}
	c, err := Load(found)
	if err != nil {
		t.Fatal(err)
	}
	if c.Limits.MaxLocals != 7 {
		t.Errorf("max_locals = %d, want 7", c.Limits.MaxLocals)
	}

	if _, err := Load(filepath.Join(root, "missing.yaml")); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("missing file: err = %v", err)
	}
}

func TestLogger(t *testing.T) {
	for _, dev := range []bool{false, true} {
		c := Default()
		c.Log.Development = dev
		c.Log.Level = "warn"
		log, err := c.Logger()
		if err != nil {
			t.Fatalf("Logger(dev=%v): %v", dev, err)
		}
		if log.Core().Enabled(-1) {
			t.Errorf("dev=%v: debug enabled at warn level", dev)
		}
	}
}
