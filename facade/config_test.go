package facade_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/hioload-bus/facade"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeFile(t, "hbus.yaml", `
dir: /tmp/hbus-test
embedded_driver: false
registration_timeout: 250ms
poll_cpu_affinity: [0, 2]
term_length: 64
log:
  level: warn
  format: json
`)
	t.Setenv("HBUS_LOG_LEVEL", "debug")

	cfg, err := facade.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dir != "/tmp/hbus-test" || cfg.EmbeddedDriver {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.RegistrationTimeout != 250*time.Millisecond {
		t.Errorf("timeout = %v", cfg.RegistrationTimeout)
	}
	if len(cfg.PollCPUAffinity) != 2 || cfg.PollCPUAffinity[1] != 2 {
		t.Errorf("affinity = %v", cfg.PollCPUAffinity)
	}
	if cfg.TermLength != 64 || cfg.Log.Format != "json" {
		t.Errorf("term/format = %d/%s", cfg.TermLength, cfg.Log.Format)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("env override ignored: level %q", cfg.Log.Level)
	}
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HBUS_CONFIG", "")
	cfg, err := facade.LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	def := facade.DefaultConfig()
	if cfg.Dir != def.Dir || cfg.TermLength != def.TermLength || !cfg.EmbeddedDriver {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"level": "log:\n  level: loud\n",
		"term":  "term_length: -1\n",
		"cpu":   "poll_cpu_affinity: [-3]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := facade.LoadConfig(writeFile(t, "hbus.yaml", body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := facade.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit file")
	}
}
