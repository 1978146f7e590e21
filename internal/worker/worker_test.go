package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fraudrules/fraudrules/internal/bus"
	"github.com/fraudrules/fraudrules/internal/domain"
	"github.com/fraudrules/fraudrules/internal/rules"
)

// noopHistory is a minimal domain.HistoryStore for worker tests that do
// not exercise a Pattern rule's aggregate path.
type noopHistory struct{}

func (noopHistory) Save(ctx context.Context, txn *domain.Transaction) error { return nil }
func (noopHistory) GetAccountHistory(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}
func (noopHistory) GetRecent(ctx context.Context, accountID string, minutes int, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}
func (noopHistory) Aggregate(ctx context.Context, fn domain.AggregateFunc, field domain.FieldRef, accountID string, window domain.Window, referenceEpoch float64) (float64, error) {
	return 0, nil
}
func (noopHistory) SupportsPushdown() bool      { return true }
func (noopHistory) Ping(ctx context.Context) error { return nil }
func (noopHistory) Close() error                { return nil }

func newTestPool(t *testing.T) (*bus.ChannelBus, *Pool, func() *domain.RuleResult) {
	t.Helper()
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	factory := rules.NewFactory(noopHistory{}, nil, nil)
	pool := NewPool(eventBus, noopHistory{}, factory, nil)

	var mu atomic.Value // holds *domain.RuleResult
	_, err := eventBus.Subscribe(context.Background(), defaultTenant, domain.TopicResponse, func(ctx context.Context, msg *domain.Message) error {
		var result domain.RuleResult
		if err := json.Unmarshal(msg.Payload, &result); err == nil {
			mu.Store(&result)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to subscribe to response topic: %v", err)
	}

	if err := pool.Start(context.Background(), Config{Concurrency: 1}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { pool.Stop() })

	return eventBus, pool, func() *domain.RuleResult {
		v := mu.Load()
		if v == nil {
			return nil
		}
		return v.(*domain.RuleResult)
	}
}

func publishRequest(t *testing.T, b *bus.ChannelBus, req *domain.RuleRequest) {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	if err := b.Publish(context.Background(), defaultTenant, domain.TopicRequest, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func waitForResult(getResult func() *domain.RuleResult) *domain.RuleResult {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if r := getResult(); r != nil {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	return getResult()
}

func TestWorker_ThresholdFires(t *testing.T) {
	b, _, getResult := newTestPool(t)

	req := &domain.RuleRequest{
		ProfileUUID: "P1",
		ProfileName: "profile-1",
		Rule: &domain.RuleConfig{
			UUID:       "rule-1",
			Name:       "amount over 500",
			IsCritical: false,
			Type:       domain.RuleTypeThreshold,
			Threshold: &domain.ThresholdRuleConfig{
				Expression: domain.Cmp(domain.FieldExpr(domain.FieldAmount), domain.OpGreaterThan, domain.LiteralExpr(domain.FloatValue(500))),
			},
		},
		Transaction: domain.Transaction{
			TransactionID: "T1",
			SenderAccount: "A",
			Amount:        600,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		},
	}
	publishRequest(t, b, req)

	result := waitForResult(getResult)
	if result == nil {
		t.Fatal("expected a RuleResult to be published")
	}
	if result.Status != domain.StatusFraud {
		t.Errorf("status = %q, want FRAUD", result.Status)
	}
	if result.TransactionID != "T1" {
		t.Errorf("transaction_id = %q, want T1", result.TransactionID)
	}
	want := "Threshold rule applied, amount: 600.000000"
	if result.Description != want {
		t.Errorf("description = %q, want %q", result.Description, want)
	}
}

func TestWorker_ThresholdDoesNotFire(t *testing.T) {
	b, _, getResult := newTestPool(t)

	req := &domain.RuleRequest{
		Rule: &domain.RuleConfig{
			UUID: "rule-2",
			Type: domain.RuleTypeThreshold,
			Threshold: &domain.ThresholdRuleConfig{
				Expression: domain.Cmp(domain.FieldExpr(domain.FieldAmount), domain.OpGreaterThan, domain.LiteralExpr(domain.FloatValue(500))),
			},
		},
		Transaction: domain.Transaction{
			TransactionID: "T2",
			SenderAccount: "A",
			Amount:        100,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		},
	}
	publishRequest(t, b, req)

	result := waitForResult(getResult)
	if result == nil {
		t.Fatal("expected a RuleResult to be published")
	}
	if result.Status != domain.StatusNotFraud {
		t.Errorf("status = %q, want NOT_FRAUD", result.Status)
	}
}

func TestWorker_CriticalCompositeFires(t *testing.T) {
	b, _, getResult := newTestPool(t)

	req := &domain.RuleRequest{
		Rule: &domain.RuleConfig{
			UUID:       "rule-3",
			IsCritical: true,
			Type:       domain.RuleTypeComposite,
			Composite: &domain.CompositeRuleConfig{
				Expression: domain.Logical(domain.OpAnd,
					domain.Cmp(domain.FieldExpr(domain.FieldAmount), domain.OpGreaterThan, domain.LiteralExpr(domain.FloatValue(1000))),
					domain.Cmp(domain.FieldExpr(domain.FieldLocation), domain.OpEqual, domain.LiteralExpr(domain.StringValue("RU"))),
				),
			},
		},
		Transaction: domain.Transaction{
			TransactionID: "T4",
			SenderAccount: "A",
			Amount:        5000,
			Location:      "RU",
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		},
	}
	publishRequest(t, b, req)

	result := waitForResult(getResult)
	if result == nil {
		t.Fatal("expected a RuleResult to be published")
	}
	if result.Status != domain.StatusCritical {
		t.Errorf("status = %q, want CRITICAL", result.Status)
	}
}

func TestWorker_MalformedMessageProducesErrorResult(t *testing.T) {
	b, _, getResult := newTestPool(t)

	if err := b.Publish(context.Background(), defaultTenant, domain.TopicRequest, []byte("not json")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	result := waitForResult(getResult)
	if result == nil {
		t.Fatal("expected a RuleResult to be published")
	}
	if result.Status != domain.StatusError {
		t.Errorf("status = %q, want ERROR", result.Status)
	}
	if result.TransactionID != "" || result.ConfigUUID != "" {
		t.Error("expected empty identifiers on a malformed-message error result")
	}
	want := "Failed to parse RuleRequest from Kafka message"
	if result.Description != want {
		t.Errorf("description = %q, want %q", result.Description, want)
	}
}

func TestWorker_ConfigurationErrorProducesErrorResult(t *testing.T) {
	b, _, getResult := newTestPool(t)

	req := &domain.RuleRequest{
		Rule: &domain.RuleConfig{
			UUID: "rule-bad",
			Type: domain.RuleTypeThreshold,
			// Threshold body intentionally omitted: Factory.Build must
			// reject this with a Configuration error.
		},
		Transaction: domain.Transaction{TransactionID: "T5", SenderAccount: "A"},
	}
	publishRequest(t, b, req)

	result := waitForResult(getResult)
	if result == nil {
		t.Fatal("expected a RuleResult to be published")
	}
	if result.Status != domain.StatusError {
		t.Errorf("status = %q, want ERROR", result.Status)
	}
}
