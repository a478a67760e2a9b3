package controller

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"simsweep/internal/config"
	"simsweep/internal/docvalue"
	"simsweep/internal/runerrors"
)

// Name prefixes of configuration files outside the templates directory.
const (
	basePrefix    = "base_"
	runtimePrefix = "runtime_"
)

// ConfigList enumerates what can be started and edited.
type ConfigList struct {
	Templates []string `json:"templates"`
	Types     []string `json:"types"`
	Sweeps    []string `json:"sweeps"`
}

// Configs lists configuration templates, simulation types and sweep configs.
func (c *Controller) Configs() (ConfigList, error) {
	list := ConfigList{Types: config.TargetNames(c.opts.Targets)}
	for _, d := range []struct{ dir, prefix string }{
		{TemplatesDir, ""},
		{DefaultConfigDir, basePrefix},
		{RuntimeDir, runtimePrefix},
	} {
		matches, err := filepath.Glob(filepath.Join(c.opts.BaseDir, d.dir, "*.json"))
		if err != nil {
			return ConfigList{}, errors.Wrap(err, "list configurations")
		}
		for _, m := range matches {
			list.Templates = append(list.Templates, d.prefix+strings.TrimSuffix(filepath.Base(m), ".json"))
		}
	}
	sort.Strings(list.Templates)
	if list.Templates == nil {
		list.Templates = []string{}
	}

	sweeps, err := config.FindSweepConfigs(c.opts.BaseDir)
	if err != nil {
		return ConfigList{}, err
	}
	list.Sweeps = sweeps
	if list.Sweeps == nil {
		list.Sweeps = []string{}
	}
	return list, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return &runerrors.ErrConfig{Reason: "invalid configuration name " + strconv.Quote(name)}
	}
	return nil
}


func (c *Controller) configPath(name string) string {
	switch {
	case strings.HasPrefix(name, basePrefix):
		return filepath.Join(c.opts.BaseDir, DefaultConfigDir, strings.TrimPrefix(name, basePrefix)+".json")
	case strings.HasPrefix(name, runtimePrefix):
		return filepath.Join(c.opts.BaseDir, RuntimeDir, strings.TrimPrefix(name, runtimePrefix)+".json")
	}
	return filepath.Join(c.opts.BaseDir, TemplatesDir, name+".json")
}

// Config loads a named configuration as listed by Configs.
func (c *Controller) Config(name string) (*docvalue.Document, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	doc, err := docvalue.Load(c.configPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(ErrConfigNotFound, name)
	}
	if err != nil {
		return nil, &runerrors.ErrConfig{Path: name, Err: err}
	}
	return doc, nil
}

// SaveConfig stores data as a runtime configuration. It becomes available as
// runtime_<name>.
func (c *Controller) SaveConfig(name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	return c.writeRuntime(name, data)
}

func (c *Controller) writeRuntime(name string, data []byte) (string, error) {
	doc, err := docvalue.Parse(data)
	if err != nil {
		return "", &runerrors.ErrConfig{Path: name, Err: err}
	}
	dir := filepath.Join(c.opts.BaseDir, RuntimeDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create runtime config directory")
	}
	path := filepath.Join(dir, name+".json")
	out, err := doc.Encode(docvalue.JSON)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	c.log.Info("configuration saved", "name", runtimePrefix+name, "path", path)
	return path, nil
}
