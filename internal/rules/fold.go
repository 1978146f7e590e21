package rules

import (
	"fmt"

	"github.com/fraudrules/fraudrules/internal/domain"
	"github.com/fraudrules/fraudrules/internal/expr"
)

// foldLocal computes an aggregate over rows fetched from a history
// backend that cannot push the aggregate down server-side. Semantics
// mirror the server-side path exactly: SUM/AVG/MIN/MAX coerce the
// column to float, COUNT_DISTINCT counts distinct stringified values,
// COUNT counts rows regardless of operand.
func foldLocal(fn domain.AggregateFunc, field domain.FieldRef, rows []*domain.Transaction) (float64, error) {
	if fn == domain.AggCount {
		return float64(len(rows)), nil
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if fn == domain.AggCountDistinct {
		seen := make(map[string]struct{}, len(rows))
		for _, t := range rows {
			v, err := expr.FieldValue(t, field)
			if err != nil {
				return 0, err
			}
			seen[stringify(v)] = struct{}{}
		}
		return float64(len(seen)), nil
	}

	values := make([]float64, len(rows))
	for i, t := range rows {
		v, err := expr.FieldValue(t, field)
		if err != nil {
			return 0, err
		}
		if !v.IsNumeric() {
			return 0, fmt.Errorf("%w: field %d is not numeric for aggregate %d", domain.ErrTypeMismatch, field, fn)
		}
		values[i] = v.AsFloat()
	}

	switch fn {
	case domain.AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum, nil
	case domain.AggAvg:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case domain.AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case domain.AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	default:
		return 0, fmt.Errorf("%w: unknown aggregate function %d", domain.ErrConfiguration, fn)
	}
}

func stringify(v domain.Value) string {
	switch v.Kind {
	case domain.KindString:
		return v.Str
	case domain.KindFloat:
		return fmt.Sprintf("%g", v.Flt)
	case domain.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case domain.KindBool:
		return fmt.Sprintf("%t", v.Bln)
	default:
		return ""
	}
}
