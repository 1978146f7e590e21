package expr

import (
	"context"
	"fmt"

	"github.com/fraudrules/fraudrules/internal/domain"
)

// AggregateContext is the scope a pattern rule provides so that
// Aggregate expression nodes are meaningful. A Composite or Threshold
// rule evaluates with a nil context; any Aggregate node encountered
// there fails with ErrAggregateOutsideContext.
type AggregateContext interface {
	Resolve(ctx context.Context, agg *domain.AggregateExpr) (domain.Value, error)
}

// EvalValue evaluates an Expression against a transaction, returning
// its dynamically-typed result.
func EvalValue(ctx context.Context, txn *domain.Transaction, e *domain.Expression, aggCtx AggregateContext) (domain.Value, error) {
	if e == nil {
		return domain.Value{}, fmt.Errorf("%w: nil expression", domain.ErrMalformedExpression)
	}

	switch e.Kind {
	case domain.ExprField:
		return fieldValue(txn, e.Field)

	case domain.ExprLiteral:
		return e.Literal, nil

	case domain.ExprComparison:
		ok, err := evalComparison(ctx, txn, e.Comparison, aggCtx)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.BoolValue(ok), nil

	case domain.ExprLogical:
		ok, err := evalLogical(ctx, txn, e.Logical, aggCtx)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.BoolValue(ok), nil

	case domain.ExprAggregate:
		if aggCtx == nil {
			return domain.Value{}, domain.ErrAggregateOutsideContext
		}
		if e.Aggregate == nil {
			return domain.Value{}, fmt.Errorf("%w: aggregate node missing body", domain.ErrMalformedExpression)
		}
		return aggCtx.Resolve(ctx, e.Aggregate)

	default:
		return domain.Value{}, fmt.Errorf("%w: unknown expression kind %d", domain.ErrMalformedExpression, e.Kind)
	}
}

// EvalBool evaluates an Expression and requires the result to be
// boolean. Per the type-safety invariant, it is defined iff e's type is
// bool; any other result type fails with TypeMismatch.
func EvalBool(ctx context.Context, txn *domain.Transaction, e *domain.Expression, aggCtx AggregateContext) (bool, error) {
	v, err := EvalValue(ctx, txn, e, aggCtx)
	if err != nil {
		return false, err
	}
	if v.Kind != domain.KindBool {
		return false, fmt.Errorf("%w: expression did not evaluate to bool", domain.ErrTypeMismatch)
	}
	return v.Bln, nil
}

func evalComparison(ctx context.Context, txn *domain.Transaction, c *domain.ComparisonExpr, aggCtx AggregateContext) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("%w: comparison node missing body", domain.ErrMalformedExpression)
	}

	left, err := EvalValue(ctx, txn, c.Left, aggCtx)
	if err != nil {
		return false, err
	}
	right, err := EvalValue(ctx, txn, c.Right, aggCtx)
	if err != nil {
		return false, err
	}

	return compare(left, right, c.Op)
}

// evalLogical implements AND/OR with short-circuit and NOT with an
// arity check. Empty AND evaluates to true, empty OR to false.
func evalLogical(ctx context.Context, txn *domain.Transaction, l *domain.LogicalExpr, aggCtx AggregateContext) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("%w: logical node missing body", domain.ErrMalformedExpression)
	}

	switch l.Op {
	case domain.OpAnd:
		for _, operand := range l.Operands {
			ok, err := EvalBool(ctx, txn, operand, aggCtx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case domain.OpOr:
		for _, operand := range l.Operands {
			ok, err := EvalBool(ctx, txn, operand, aggCtx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case domain.OpNot:
		if len(l.Operands) != 1 {
			return false, fmt.Errorf("%w: NOT requires exactly one operand, got %d", domain.ErrMalformedExpression, len(l.Operands))
		}
		ok, err := EvalBool(ctx, txn, l.Operands[0], aggCtx)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return false, fmt.Errorf("%w: unknown logical operator %d", domain.ErrUnknownOperator, l.Op)
	}
}
