package expr

import (
	"fmt"
	"strings"

	"github.com/fraudrules/fraudrules/internal/domain"
)

// compare evaluates a comparison between two already-evaluated
// operands. Mirrors the original evaluator exactly: numeric operands
// (float or int32, cross-promoted to float) support the full ordering
// set; strings support equality plus LIKE (substring containment,
// right-in-left); booleans support equality only. Any other pairing is
// a TypeMismatch.
func compare(left, right domain.Value, op domain.ComparisonOp) (bool, error) {
	switch {
	case left.IsNumeric() && right.IsNumeric():
		return compareNumeric(left.AsFloat(), right.AsFloat(), op)
	case left.Kind == domain.KindString && right.Kind == domain.KindString:
		return compareString(left.Str, right.Str, op)
	case left.Kind == domain.KindBool && right.Kind == domain.KindBool:
		return compareBool(left.Bln, right.Bln, op)
	default:
		return false, fmt.Errorf("%w: comparison between incompatible operand types", domain.ErrTypeMismatch)
	}
}

func compareNumeric(left, right float64, op domain.ComparisonOp) (bool, error) {
	switch op {
	case domain.OpEqual:
		return left == right, nil
	case domain.OpNotEqual:
		return left != right, nil
	case domain.OpGreaterThan:
		return left > right, nil
	case domain.OpGreaterThanOrEqual:
		return left >= right, nil
	case domain.OpLessThan:
		return left < right, nil
	case domain.OpLessThanOrEqual:
		return left <= right, nil
	default:
		return false, fmt.Errorf("%w: invalid operator for numeric comparison", domain.ErrUnknownOperator)
	}
}

func compareString(left, right string, op domain.ComparisonOp) (bool, error) {
	switch op {
	case domain.OpEqual:
		return left == right, nil
	case domain.OpNotEqual:
		return left != right, nil
	case domain.OpLike:
		return strings.Contains(left, right), nil
	default:
		return false, fmt.Errorf("%w: invalid operator for string comparison", domain.ErrUnknownOperator)
	}
}

func compareBool(left, right bool, op domain.ComparisonOp) (bool, error) {
	switch op {
	case domain.OpEqual:
		return left == right, nil
	case domain.OpNotEqual:
		return left != right, nil
	default:
		return false, fmt.Errorf("%w: invalid operator for boolean comparison", domain.ErrUnknownOperator)
	}
}
