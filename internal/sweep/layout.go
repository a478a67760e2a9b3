package sweep

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/template"
	"time"
)

const (
	infoFile   = "TC_INFO.txt"
	resultFile = "TC_RESULT.txt"
	// directories of the base configuration that are never copied into runs
	skippedTemplateDir = "sweeps"
)

// BatchDirName is the directory name of a batch started at t.
func BatchDirName(t time.Time, batch string) string {
	return t.Format("20060102_150405") + "_" + batch
}

// copyTemplate copies the base configuration into a run directory. Top-level
// log files and the sweeps directory are left out.
func copyTemplate(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		switch {
		case e.IsDir():
			if e.Name() == skippedTemplateDir {
				continue
			}
			if err := copyDir(from, to); err != nil {
				return err
			}
		case e.Type().IsRegular():
			if filepath.Ext(e.Name()) == ".log" {
				continue
			}
			if err := copyFile(from, to); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// moveFile renames src to dst, copying across file systems when needed.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// removeStale deletes metric files another process left in workDir so the
// next run cannot be credited with them.
func removeStale(workDir string, names []string) ([]string, error) {
	var removed []string
	for _, n := range names {
		err := os.Remove(filepath.Join(workDir, n))
		switch {
		case err == nil:
			removed = append(removed, n)
		case !errors.Is(err, fs.ErrNotExist):
			return removed, err
		}
	}
	return removed, nil
}

// relocate moves the named artifacts and every file matching the globs from
// workDir into dir. Missing artifacts are ignored.
func relocate(workDir, dir string, names, globs []string) ([]string, error) {
	var moved []string
	var errs []error
	try := func(p string) {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			return
		}
		if err := moveFile(p, filepath.Join(dir, filepath.Base(p))); err != nil {
			errs = append(errs, err)
			return
		}
		moved = append(moved, filepath.Base(p))
	}
	for _, n := range names {
		try(filepath.Join(workDir, n))
	}
	for _, g := range globs {
		matches, err := filepath.Glob(filepath.Join(workDir, g))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, m := range matches {
			try(m)
		}
	}
	return moved, errors.Join(errs...)
}

var infoTemplate = template.Must(template.New("info").Parse(`Test Case: {{.Name}}
Parameter: {{.Parameter}}
Value: {{.Value}}
Batch: {{.Batch}}
Generated: {{.Generated}}
Base Config: {{.BaseConfig}}
Modified File: {{.ConfigFile}}
`))

var resultTemplate = template.Must(template.New("result").Parse(`Test Case: {{.Name}}
Parameter: {{.Parameter}} = {{.Value}}
Batch: {{.Batch}}
Status: {{.Status}}
Duration: {{.Duration}}
Timestamp: {{.Timestamp}}
Results: {{.Dir}}
{{- if .Error}}
Error: {{.Error}}
{{- end}}
`))

type infoData struct {
	Name, Parameter, Value, Batch, BaseConfig, ConfigFile string
	Generated                                             string
}

type resultData struct {
	Name, Parameter, Value, Batch, Status, Duration, Timestamp, Dir, Error string
}

func writeTemplate(path string, tmpl *template.Template, data any) error {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func formatTimestamp(t time.Time) string { return t.Format("2006-01-02 15:04:05") }
