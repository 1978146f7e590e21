package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fraudrules/fraudrules/internal/domain"
)

func sampleTxn() *domain.Transaction {
	return &domain.Transaction{
		TransactionID:   "tx-1",
		SenderAccount:   "acct-1",
		Amount:          1000,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		TransactionType: domain.TransactionTypeTransfer,
		Location:        "US",
	}
}

func TestFactory_Build_ThresholdRequiresBody(t *testing.T) {
	f := NewFactory(nil, nil, nil)
	cfg := &domain.RuleConfig{UUID: "r1", Type: domain.RuleTypeThreshold}
	_, err := f.Build(cfg)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected Configuration error for missing threshold body, got %v", err)
	}
}

func TestFactory_Build_PatternRequiresHistory(t *testing.T) {
	f := NewFactory(nil, nil, nil)
	cfg := &domain.RuleConfig{
		UUID: "r2",
		Type: domain.RuleTypePattern,
		Pattern: &domain.PatternRuleConfig{
			Expression: domain.Cmp(domain.FieldExpr(domain.FieldAmount), domain.OpGreaterThan, domain.LiteralExpr(domain.FloatValue(1))),
		},
	}
	_, err := f.Build(cfg)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected Configuration error for pattern rule with no history store, got %v", err)
	}
}

func TestThresholdRule_RequiresComparisonRoot(t *testing.T) {
	f := NewFactory(nil, nil, nil)
	cfg := &domain.RuleConfig{
		UUID: "r3",
		Type: domain.RuleTypeThreshold,
		Threshold: &domain.ThresholdRuleConfig{
			Expression: domain.Logical(domain.OpAnd),
		},
	}
	rule, err := f.Build(cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	_, err = rule.IsFraud(context.Background(), sampleTxn())
	if !errors.Is(err, domain.ErrMalformedExpression) {
		t.Errorf("expected MalformedExpression for non-comparison root, got %v", err)
	}
}

func TestThresholdRule_FiresOnComparison(t *testing.T) {
	f := NewFactory(nil, nil, nil)
	cfg := &domain.RuleConfig{
		UUID: "r4",
		Type: domain.RuleTypeThreshold,
		Threshold: &domain.ThresholdRuleConfig{
			Expression: domain.Cmp(domain.FieldExpr(domain.FieldAmount), domain.OpGreaterThan, domain.LiteralExpr(domain.FloatValue(500))),
		},
	}
	rule, err := f.Build(cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	fraud, err := rule.IsFraud(context.Background(), sampleTxn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fraud {
		t.Error("expected threshold rule to fire for amount=1000 > 500")
	}
}

func TestFactory_Build_MLRequiresScorerAndHistory(t *testing.T) {
	f := NewFactory(&stubHistory{}, nil, nil)
	cfg := &domain.RuleConfig{
		UUID: "r2b",
		Type: domain.RuleTypeML,
		ML:   &domain.MLRuleConfig{ModelUUID: "m1", LowerBound: 0.5},
	}
	_, err := f.Build(cfg)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected Configuration error for ml rule with no scorer, got %v", err)
	}
}

func TestCompositeRule_RejectsAggregateOutsideContext(t *testing.T) {
	f := NewFactory(nil, nil, nil)
	cfg := &domain.RuleConfig{
		UUID: "r5",
		Type: domain.RuleTypeComposite,
		Composite: &domain.CompositeRuleConfig{
			Expression: domain.Agg(domain.AggCount, domain.FieldAmount, false),
		},
	}
	rule, err := f.Build(cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	_, err = rule.IsFraud(context.Background(), sampleTxn())
	if !errors.Is(err, domain.ErrAggregateOutsideContext) {
		t.Errorf("expected AggregateOutsideContext for composite rule with aggregate, got %v", err)
	}
}

// stubHistory is a minimal in-memory domain.HistoryStore for exercising
// the Pattern rule's aggregate resolution without a real backend.
type stubHistory struct {
	rows       []*domain.Transaction
	pushdown   bool
	aggregated float64
}

func (s *stubHistory) Save(ctx context.Context, txn *domain.Transaction) error { return nil }

func (s *stubHistory) GetAccountHistory(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	return s.rows, nil
}

func (s *stubHistory) GetRecent(ctx context.Context, accountID string, minutes int, limit int) ([]*domain.Transaction, error) {
	return s.rows, nil
}

func (s *stubHistory) Aggregate(ctx context.Context, fn domain.AggregateFunc, field domain.FieldRef, accountID string, window domain.Window, referenceEpoch float64) (float64, error) {
	return s.aggregated, nil
}

func (s *stubHistory) SupportsPushdown() bool { return s.pushdown }
func (s *stubHistory) Ping(ctx context.Context) error { return nil }
func (s *stubHistory) Close() error                   { return nil }

func TestPatternRule_UsesPushdownWhenSupported(t *testing.T) {
	history := &stubHistory{pushdown: true, aggregated: 5}
	cfg := &domain.RuleConfig{
		UUID: "r6",
		Type: domain.RuleTypePattern,
		Pattern: &domain.PatternRuleConfig{
			Expression: domain.Cmp(domain.Agg(domain.AggCount, domain.FieldAmount, false), domain.OpGreaterThanOrEqual, domain.LiteralExpr(domain.FloatValue(3))),
		},
	}
	f := NewFactory(history, nil, nil)
	rule, err := f.Build(cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	fraud, err := rule.IsFraud(context.Background(), sampleTxn())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fraud {
		t.Error("expected pattern rule to fire using pushdown aggregate value 5 >= 3")
	}
}

func TestPatternRule_FoldsLocallyWhenPushdownUnsupported(t *testing.T) {
	now := time.Now().UTC()
	history := &stubHistory{
		pushdown: false,
		rows: []*domain.Transaction{
			{TransactionID: "h1", Amount: 10, Timestamp: now.Add(-1 * time.Minute).Format(time.RFC3339)},
			{TransactionID: "h2", Amount: 20, Timestamp: now.Add(-2 * time.Minute).Format(time.RFC3339)},
		},
	}
	cfg := &domain.RuleConfig{
		UUID: "r7",
		Type: domain.RuleTypePattern,
		Pattern: &domain.PatternRuleConfig{
			Expression: domain.Cmp(domain.Agg(domain.AggSum, domain.FieldAmount, true), domain.OpGreaterThanOrEqual, domain.LiteralExpr(domain.FloatValue(25))),
		},
	}
	f := NewFactory(history, nil, nil)
	rule, err := f.Build(cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	txn := sampleTxn()
	txn.Timestamp = now.Format(time.RFC3339)
	fraud, err := rule.IsFraud(context.Background(), txn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fraud {
		t.Error("expected local-fold SUM(10,20)=30 >= 25 to fire")
	}
}
