package expr

import (
	"context"
	"errors"
	"testing"

	"github.com/fraudrules/fraudrules/internal/domain"
)

func txn(amount float64, typ, location string) *domain.Transaction {
	return &domain.Transaction{
		TransactionID:   "T1",
		SenderAccount:   "A",
		Amount:          amount,
		TransactionType: typ,
		Location:        location,
	}
}

// countingAggContext resolves any Aggregate node to false while
// recording that it was called, used to observe whether short-circuit
// evaluation skips an operand.
type countingAggContext struct {
	calls int
}

func (c *countingAggContext) Resolve(ctx context.Context, agg *domain.AggregateExpr) (domain.Value, error) {
	c.calls++
	return domain.BoolValue(false), nil
}

func TestEvalBool_Comparison(t *testing.T) {
	t.Run("numeric greater than fires", func(t *testing.T) {
		e := domain.Cmp(domain.FieldExpr(domain.FieldAmount), domain.OpGreaterThan, domain.LiteralExpr(domain.FloatValue(500)))
		ok, err := EvalBool(context.Background(), txn(600, "TRANSFER", "US"), e, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected comparison to fire for amount=600 > 500")
		}
	})

	t.Run("numeric greater than does not fire", func(t *testing.T) {
		e := domain.Cmp(domain.FieldExpr(domain.FieldAmount), domain.OpGreaterThan, domain.LiteralExpr(domain.FloatValue(500)))
		ok, err := EvalBool(context.Background(), txn(100, "TRANSFER", "US"), e, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected comparison not to fire for amount=100")
		}
	})

	t.Run("string LIKE is substring containment", func(t *testing.T) {
		e := domain.Cmp(domain.FieldExpr(domain.FieldLocation), domain.OpLike, domain.LiteralExpr(domain.StringValue("osc")))
		ok, err := EvalBool(context.Background(), txn(1, "TRANSFER", "Moscow"), e, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected LIKE to match substring")
		}
	})

	t.Run("type mismatch between string and numeric", func(t *testing.T) {
		e := domain.Cmp(domain.FieldExpr(domain.FieldLocation), domain.OpEqual, domain.LiteralExpr(domain.FloatValue(1)))
		_, err := EvalBool(context.Background(), txn(1, "TRANSFER", "US"), e, nil)
		if !errors.Is(err, domain.ErrTypeMismatch) {
			t.Errorf("expected TypeMismatch, got %v", err)
		}
	})

	t.Run("bool supports only equal and not-equal", func(t *testing.T) {
		_, err := compareBool(true, false, domain.OpGreaterThan)
		if !errors.Is(err, domain.ErrUnknownOperator) {
			t.Errorf("expected UnknownOperator, got %v", err)
		}
	})
}

func TestEvalBool_Logical(t *testing.T) {
	t.Run("empty AND is true", func(t *testing.T) {
		ok, err := EvalBool(context.Background(), txn(1, "TRANSFER", "US"), domain.Logical(domain.OpAnd), nil)
		if err != nil || !ok {
			t.Errorf("expected empty AND to be true, got %v, err=%v", ok, err)
		}
	})

	t.Run("empty OR is false", func(t *testing.T) {
		ok, err := EvalBool(context.Background(), txn(1, "TRANSFER", "US"), domain.Logical(domain.OpOr), nil)
		if err != nil || ok {
			t.Errorf("expected empty OR to be false, got %v, err=%v", ok, err)
		}
	})

	t.Run("AND short-circuits on first false", func(t *testing.T) {
		agg := &countingAggContext{}
		falseExpr := domain.Cmp(domain.FieldExpr(domain.FieldAmount), domain.OpEqual, domain.LiteralExpr(domain.FloatValue(-1)))
		secondOperand := domain.Agg(domain.AggCount, domain.FieldAmount, false)
		e := domain.Logical(domain.OpAnd, falseExpr, secondOperand)

		ok, err := EvalBool(context.Background(), txn(1, "TRANSFER", "US"), e, agg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected AND with a false operand to be false")
		}
		if agg.calls != 0 {
			t.Errorf("expected second AND operand not to be evaluated, aggregate was resolved %d times", agg.calls)
		}
	})

	t.Run("OR short-circuits on first true", func(t *testing.T) {
		agg := &countingAggContext{}
		trueExpr := domain.Cmp(domain.FieldExpr(domain.FieldAmount), domain.OpEqual, domain.LiteralExpr(domain.FloatValue(1)))
		secondOperand := domain.Agg(domain.AggCount, domain.FieldAmount, false)
		e := domain.Logical(domain.OpOr, trueExpr, secondOperand)

		ok, err := EvalBool(context.Background(), txn(1, "TRANSFER", "US"), e, agg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected OR with a true operand to be true")
		}
		if agg.calls != 0 {
			t.Errorf("expected second OR operand not to be evaluated, aggregate was resolved %d times", agg.calls)
		}
	})

	t.Run("NOT requires exactly one operand", func(t *testing.T) {
		e := &domain.Expression{Kind: domain.ExprLogical, Logical: &domain.LogicalExpr{Op: domain.OpNot}}
		_, err := EvalBool(context.Background(), txn(1, "TRANSFER", "US"), e, nil)
		if !errors.Is(err, domain.ErrMalformedExpression) {
			t.Errorf("expected MalformedExpression, got %v", err)
		}
	})
}

func TestEvalValue_EnumFieldReturnsDiscriminant(t *testing.T) {
	v, err := EvalValue(context.Background(), txn(1, domain.TransactionTypeTransfer, "US"), domain.FieldExpr(domain.FieldTransactionType), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != domain.KindInt || v.Int != 2 {
		t.Errorf("expected int32 discriminant 2 for TRANSFER, got kind=%v int=%v", v.Kind, v.Int)
	}
}

func TestEvalValue_AggregateOutsideContext(t *testing.T) {
	agg := domain.Agg(domain.AggCount, domain.FieldAmount, false)
	_, err := EvalValue(context.Background(), txn(1, "TRANSFER", "US"), agg, nil)
	if !errors.Is(err, domain.ErrAggregateOutsideContext) {
		t.Errorf("expected AggregateOutsideContext, got %v", err)
	}
}

func TestEvalBool_RootMustBeBool(t *testing.T) {
	_, err := EvalBool(context.Background(), txn(1, "TRANSFER", "US"), domain.FieldExpr(domain.FieldAmount), nil)
	if !errors.Is(err, domain.ErrTypeMismatch) {
		t.Errorf("expected TypeMismatch for non-bool root, got %v", err)
	}
}
