package sweep

import (
	"fmt"
	"math"

	"simsweep/internal/docvalue"
	"simsweep/internal/runerrors"
)

// ParameterVariant is one point of a sweep.
type ParameterVariant struct {
	Index     int     `json:"index"`
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
}

// Name is the run directory name of the variant, TC001 for index 0.
func (v ParameterVariant) Name() string { return fmt.Sprintf("TC%03d", v.Index+1) }

// ValueString formats the value, without a fraction when it is integral.
func (v ParameterVariant) ValueString() string { return docvalue.FormatNumber(v.Value) }

// maxVariants guards against ranges that would create an absurd number of
// run directories.
const maxVariants = 100000

// GenerateVariants expands start..end by step, inclusive of end within a
// small tolerance. Values are computed as start + i*step so rounding errors do
// not accumulate.
func GenerateVariants(parameter string, start, end, step float64) ([]ParameterVariant, error) {
	if parameter == "" {
		return nil, &runerrors.ErrConfig{Reason: "sweep parameter is empty"}
	}
	for _, f := range []float64{start, end, step} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &runerrors.ErrConfig{Reason: "sweep range must be finite"}
		}
	}
	if step <= 0 {
		return nil, &runerrors.ErrConfig{Reason: fmt.Sprintf("step must be positive, got %v", step)}
	}
	if end < start {
		return nil, &runerrors.ErrConfig{Reason: fmt.Sprintf("empty range: start %v is after end %v", start, end)}
	}
	n := int(math.Floor((end-start)/step+1e-9)) + 1
	if n > maxVariants {
		return nil, &runerrors.ErrConfig{Reason: fmt.Sprintf("range produces %d variants, limit is %d", n, maxVariants)}
	}
	out := make([]ParameterVariant, n)
	for i := range out {
		out[i] = ParameterVariant{Index: i, Parameter: parameter, Value: start + float64(i)*step}
	}
	return out, nil
}
