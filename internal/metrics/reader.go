package metrics

import (
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"simsweep/internal/runerrors"
)

// Input is what a finished run leaves behind.
type Input struct {
	// Dir is the run directory holding metric files and logs.
	Dir string
	// Output is the captured combined stdout/stderr of the process.
	Output string
}

// Partial holds the fields a single source managed to supply.
type Partial map[Field]float64

// Source supplies some subset of the canonical fields. A source may return a
// non-nil Partial together with an error when it failed part way through.
// A missing artifact is not an error: the source returns (nil, nil).
type Source interface {
	Name() string
	Extract(in Input) (Partial, error)
}

// Diagnostics explains how a Record was assembled.
type Diagnostics struct {
	// Provenance maps each resolved field to the name of the source that won it.
	Provenance map[Field]string
	errs       *multierror.Error
}

// Err returns the aggregated source failures, or nil.
func (d *Diagnostics) Err() error {
	if d == nil {
		return nil
	}
	return d.errs.ErrorOrNil()
}

// Errors returns the individual source failures.
func (d *Diagnostics) Errors() []error {
	if d == nil || d.errs == nil {
		return nil
	}
	return d.errs.Errors
}

// Reader resolves records field by field across an ordered list of sources.
type Reader struct {
	sources []Source
	log     *slog.Logger
}

// DefaultSources returns the standard precedence: tabular metrics file,
// hierarchical performance document, captured output, latest log file.
func DefaultSources() []Source {
	return []Source{
		NewCSVSource(DefaultCSVFile),
		NewDocumentSource(DefaultDocumentFile),
		OutputSource{},
		NewLogSource(DefaultLogPattern),
	}
}

// NewReader creates a Reader. With no sources, DefaultSources is used.
func NewReader(log *slog.Logger, sources ...Source) *Reader {
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reader{sources: sources, log: log}
}

// Read resolves a Record. The first source supplying a field wins that field;
// failing sources are recorded in the diagnostics and skipped.
func (r *Reader) Read(in Input) (Record, *Diagnostics) {
	var rec Record
	diag := &Diagnostics{Provenance: make(map[Field]string)}
	for _, src := range r.sources {
		if rec.Complete() {
			break
		}
		partial, err := src.Extract(in)
		if err != nil {
			r.log.Warn("metric source unreadable", "source", src.Name(), "dir", in.Dir, "err", err)
			diag.errs = multierror.Append(diag.errs, &runerrors.ErrExtraction{Source: src.Name(), Path: in.Dir, Err: err})
		}
		for _, f := range Fields() {
			v, ok := partial[f]
			if !ok || rec.Get(f).OK {
				continue
			}
			rec.Set(f, v)
			diag.Provenance[f] = src.Name()
		}
	}
	r.log.Debug("resolved metric record", "dir", in.Dir, "resolved", rec.Resolved())
	return rec, diag
}
