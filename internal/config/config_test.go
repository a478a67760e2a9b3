package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"simsweep/internal/runerrors"
)

const validSweep = `{
	"base_config": "config/base",
	"parameter": "queue_depth",
	"start": 4,
	"end": 20,
	"step": 4,
	"config_file": "host.json",
	"target": "sim_ssd"
}`

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadJSONSweep(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "qd_sweep.json", validSweep)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Parameter != "queue_depth" || cfg.Step != 4 || cfg.Target != "sim_ssd" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Name() != "qd_sweep" {
		t.Fatalf("expected name qd_sweep, got %s", cfg.Name())
	}
}

func TestLoadYAMLSweep(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "rate.yaml", `
base_config: config/base
parameter: injection_rate
start: 0.1
end: 0.5
step: 0.1
config_file: traffic.json
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Start != 0.1 {
		t.Fatalf("expected start 0.1, got %v", cfg.Start)
	}
	if cfg.Target != "" {
		t.Fatalf("expected no target, got %q", cfg.Target)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"missing parameter": `{"base_config": "b", "start": 1, "end": 2, "step": 1, "config_file": "c.json"}`,
		"zero step":         `{"base_config": "b", "parameter": "p", "start": 1, "end": 2, "step": 0, "config_file": "c.json"}`,
		"string start":      `{"base_config": "b", "parameter": "p", "start": "one", "end": 2, "step": 1, "config_file": "c.json"}`,
		"malformed":         `{"base_config": `,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeTemp(t, t.TempDir(), "bad.json", content)
			_, err := Load(path, "")
			var cfgErr *runerrors.ErrConfig
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected config error, got %v", err)
			}
			if !runerrors.IsFatal(err) {
				t.Fatalf("config error should be fatal: %v", err)
			}
		})
	}
}

func TestValidateWithCustomSchema(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "s.json", validSweep)
	schema := writeTemp(t, dir, "strict.cue", "step: >10\n")

	if err := ValidateFile(path, schema); err == nil {
		t.Fatalf("expected strict schema to reject step 4")
	}
	if err := ValidateFile(path, ""); err != nil {
		t.Fatalf("embedded schema: %v", err)
	}
	if err := ValidateFile(path, filepath.Join(dir, "missing.cue")); err == nil {
		t.Fatalf("expected error for missing schema file")
	}
}

func TestTargets(t *testing.T) {
	targets := DefaultTargets()
	want := []string{"cache_test", "sim", "sim_ssd", "web_test"}
	if got := TargetNames(targets); !slices.Equal(got, want) {
		t.Fatalf("expected targets %v, got %v", want, got)
	}
	if targets["sim_ssd"].Timeout != 60*time.Second {
		t.Fatalf("expected sim_ssd timeout 60s, got %v", targets["sim_ssd"].Timeout)
	}

	tgt, err := SelectTarget(targets, "", "")
	if err != nil || tgt.Name != "sim" {
		t.Fatalf("default target: %+v, %v", tgt, err)
	}
	tgt, err = SelectTarget(targets, "", "cache_test")
	if err != nil || tgt.Executable != "./cache_test" {
		t.Fatalf("config target: %+v, %v", tgt, err)
	}
	tgt, err = SelectTarget(targets, "web_test", "cache_test")
	if err != nil || tgt.Name != "web_test" {
		t.Fatalf("override target: %+v, %v", tgt, err)
	}
	if _, err = SelectTarget(targets, "bogus", ""); err == nil || !strings.Contains(err.Error(), "invalid target") {
		t.Fatalf("expected invalid target error, got %v", err)
	}
}

func TestLoadTargetsMerges(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "targets.yaml", `
noc:
  executable: ./noc_sim
  timeout: 90s
sim:
  executable: ./sim
  make_target: all
  timeout: 10s
`)
	targets, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("load targets: %v", err)
	}
	if len(targets) != 5 {
		t.Fatalf("expected 5 targets, got %d", len(targets))
	}
	if targets["noc"].Timeout != 90*time.Second || targets["noc"].MakeTarget != "noc" {
		t.Fatalf("unexpected noc target: %+v", targets["noc"])
	}
	if targets["sim"].MakeTarget != "all" {
		t.Fatalf("expected sim make target all, got %s", targets["sim"].MakeTarget)
	}

	bad := writeTemp(t, t.TempDir(), "targets.yaml", "broken:\n  timeout: 5s\n")
	if _, err := LoadTargets(bad); err == nil {
		t.Fatalf("expected error for target without executable")
	}
}

func TestResolveConfigPath(t *testing.T) {
	root := t.TempDir()
	sweeps := filepath.Join(root, SweepsDir)
	writeTemp(t, sweeps, "cache_size.json", validSweep)
	writeTemp(t, sweeps, "qd_sweep.json", validSweep)
	writeTemp(t, sweeps, "ssd/latency_scan_v2.json", validSweep)

	tests := []struct {
		name string
		want string
	}{
		{"cache_size.json", filepath.Join(sweeps, "cache_size.json")},
		{"cache_size", filepath.Join(sweeps, "cache_size.json")},
		{"qd", filepath.Join(sweeps, "qd_sweep.json")},
		{"latency_scan", filepath.Join(sweeps, "ssd", "latency_scan_v2.json")},
	}
	for _, tt := range tests {
		got, err := ResolveConfigPath(root, tt.name)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}

	direct := writeTemp(t, root, "elsewhere.json", validSweep)
	got, err := ResolveConfigPath(root, direct)
	if err != nil || got != direct {
		t.Fatalf("direct path: %s, %v", got, err)
	}

	if _, err := ResolveConfigPath(root, "nothing_like_this"); err == nil {
		t.Fatalf("expected error for unknown config")
	}
}

func TestFindSweepConfigs(t *testing.T) {
	root := t.TempDir()
	sweeps := filepath.Join(root, SweepsDir)
	writeTemp(t, sweeps, "b.json", "{}")
	writeTemp(t, sweeps, "a/c.yaml", "x: 1")
	writeTemp(t, sweeps, "notes.txt", "ignored")

	got, err := FindSweepConfigs(root)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if want := []string{"a/c.yaml", "b.json"}; !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	none, err := FindSweepConfigs(t.TempDir())
	if err != nil {
		t.Fatalf("find empty: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no configs, got %v", none)
	}
}
