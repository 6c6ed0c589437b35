package main

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-bus/facade"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HBUS_CONFIG", "")
	cfgFile, dirFlag, logLevel, external = "", "", "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigPrintsEffectiveYAML(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "config", "--dir", dir, "--log-level", "warn")
	if err != nil {
		t.Fatal(err)
	}
	var got facade.Config
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not yaml: %v\n%s", err, out)
	}
	if got.Dir != dir || got.Log.Level != "warn" {
		t.Fatalf("flags not applied: %+v", got)
	}
}

func TestPingRoundTrips(t *testing.T) {
	out, err := run(t, "ping", "--dir", t.TempDir(), "--log-level", "error", "-n", "3")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "3 round trips") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestExternalWithoutDriverFails(t *testing.T) {
	if _, err := run(t, "ping", "--dir", t.TempDir(), "--log-level", "error", "--external"); err == nil {
		t.Fatal("expected failure without a running driver")
	}
}

func TestBadLogLevelRejected(t *testing.T) {
	if _, err := run(t, "config", "--log-level", "chatty"); err == nil {
		t.Fatal("expected validation error")
	}
}
