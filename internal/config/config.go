// Package config loads sweep configurations and the simulation target table.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"simsweep/internal/runerrors"
)

// SweepsDir is where sweep configurations live, relative to the project root.
const SweepsDir = "config/sweeps"

// SweepConfig describes one parameter sweep. JSON documents are read through
// the YAML decoder.
type SweepConfig struct {
	BaseConfig string  `yaml:"base_config" json:"base_config"`
	Parameter  string  `yaml:"parameter" json:"parameter"`
	Start      float64 `yaml:"start" json:"start"`
	End        float64 `yaml:"end" json:"end"`
	Step       float64 `yaml:"step" json:"step"`
	ConfigFile string  `yaml:"config_file" json:"config_file"`
	Target     string  `yaml:"target,omitempty" json:"target,omitempty"`

	// Path is the file the configuration was loaded from.
	Path string `yaml:"-" json:"-"`
}

// Name is the default batch name: the config file name without extension.
func (c SweepConfig) Name() string {
	base := filepath.Base(c.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load reads and validates a sweep configuration. schemaPath may be empty to
// use the built-in schema.
func Load(path, schemaPath string) (*SweepConfig, error) {
	if err := ValidateFile(path, schemaPath); err != nil {
		return nil, &runerrors.ErrConfig{Path: path, Reason: "schema", Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &runerrors.ErrConfig{Path: path, Reason: "read", Err: err}
	}
	var cfg SweepConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &runerrors.ErrConfig{Path: path, Reason: "decode", Err: err}
	}
	cfg.Path = path
	return &cfg, nil
}

// Target is a buildable simulator executable.
type Target struct {
	Name        string        `yaml:"-" json:"name"`
	Executable  string        `yaml:"executable" json:"executable"`
	MakeTarget  string        `yaml:"make_target" json:"make_target"`
	Description string        `yaml:"description" json:"description"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultTarget is used when neither the command line nor the sweep config
// names one.
const DefaultTarget = "sim"

// DefaultTargets returns the built-in target table.
func DefaultTargets() map[string]Target {
	return map[string]Target{
		"sim": {
			Name: "sim", Executable: "./sim", MakeTarget: "sim",
			Description: "Basic simulation (host system + memory)", Timeout: 30 * time.Second,
		},
		"sim_ssd": {
			Name: "sim_ssd", Executable: "./sim_ssd", MakeTarget: "sim_ssd",
			Description: "SSD simulation with PCIe interface", Timeout: 60 * time.Second,
		},
		"cache_test": {
			Name: "cache_test", Executable: "./cache_test", MakeTarget: "cache_test",
			Description: "Cache performance testing", Timeout: 30 * time.Second,
		},
		"web_test": {
			Name: "web_test", Executable: "./web_test", MakeTarget: "web_test",
			Description: "Web monitoring simulation", Timeout: 30 * time.Second,
		},
	}
}

// LoadTargets reads a YAML target table and merges it over the built-ins.
// An empty path returns the built-ins.
func LoadTargets(path string) (map[string]Target, error) {
	targets := DefaultTargets()
	if path == "" {
		return targets, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &runerrors.ErrConfig{Path: path, Reason: "read targets", Err: err}
	}
	var extra map[string]Target
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, &runerrors.ErrConfig{Path: path, Reason: "decode targets", Err: err}
	}
	for name, t := range extra {
		t.Name = name
		if t.Executable == "" {
			return nil, &runerrors.ErrConfig{Path: path, Reason: fmt.Sprintf("target %q has no executable", name)}
		}
		if t.MakeTarget == "" {
			t.MakeTarget = name
		}
		if t.Timeout <= 0 {
			t.Timeout = 30 * time.Second
		}
		targets[name] = t
	}
	return targets, nil
}

// SelectTarget applies the precedence flag, then the sweep config, then
// DefaultTarget.
func SelectTarget(targets map[string]Target, flag, fromConfig string) (Target, error) {
	name := DefaultTarget
	switch {
	case flag != "":
		name = flag
	case fromConfig != "":
		name = fromConfig
	}
	t, ok := targets[name]
	if !ok {
		return Target{}, &runerrors.ErrConfig{
			Reason: fmt.Sprintf("invalid target %q, available: %s", name, strings.Join(TargetNames(targets), ", ")),
		}
	}
	return t, nil
}

// TargetNames lists target names in sorted order.
func TargetNames(targets map[string]Target) []string {
	names := make([]string, 0, len(targets))
	for n := range targets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResolveConfigPath finds a sweep configuration by name. It tries the name as
// given, then inside root/config/sweeps as is, with ".json", with
// "_sweep.json", and finally the first file under config/sweeps whose name
// starts with name.
func ResolveConfigPath(root, name string) (string, error) {
	if fileExists(name) {
		return name, nil
	}
	dir := filepath.Join(root, SweepsDir)
	for _, candidate := range []string{name, name + ".json", name + "_sweep.json"} {
		p := filepath.Join(dir, candidate)
		if fileExists(p) {
			return p, nil
		}
	}
	var match string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || match != "" {
			return nil
		}
		if strings.HasPrefix(d.Name(), filepath.Base(name)) && strings.HasSuffix(d.Name(), ".json") {
			match = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	if match == "" {
		return "", &runerrors.ErrConfig{Path: name, Reason: "sweep configuration not found"}
	}
	return match, nil
}

// FindSweepConfigs lists every sweep configuration under root/config/sweeps,
// relative to that directory and sorted.
func FindSweepConfigs(root string) ([]string, error) {
	dir := filepath.Join(root, SweepsDir)
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".json", ".yaml", ".yml":
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
