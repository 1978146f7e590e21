// Package worker implements the Rule Worker: it consumes one
// RuleRequest per message, evaluates the named rule against the
// embedded transaction, classifies the outcome, and publishes a
// RuleResult.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fraudrules/fraudrules/internal/domain"
	"github.com/fraudrules/fraudrules/internal/resultproducer"
	"github.com/fraudrules/fraudrules/internal/rules"
)

// defaultTenant is used for every Publish/Subscribe call: the spec's
// domain has no multi-tenant concept of its own, but domain.EventBus
// requires a non-empty tenant ID on every call.
const defaultTenant = "_global"

// Pool runs a fixed number of goroutines, each subscribed to the
// request topic, each processing one RuleRequest message at a time.
type Pool struct {
	bus      domain.EventBus
	history  domain.HistoryStore
	factory  *rules.Factory
	producer *resultproducer.Producer
	log      *slog.Logger

	requestTopic string

	subs []domain.Subscription
	wg   sync.WaitGroup
}

// Config configures a worker Pool.
type Config struct {
	// Concurrency is the number of concurrent subscriptions to run.
	// Each bus.Subscribe handler already executes on its own goroutine
	// per teacher convention, so this controls how many independent
	// subscriptions are registered, not an internal semaphore.
	Concurrency int

	RequestTopic  string
	ResponseTopic string
	ResultFormat  resultproducer.Format
}

func NewPool(bus domain.EventBus, history domain.HistoryStore, factory *rules.Factory, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{bus: bus, history: history, factory: factory, log: log}
}

// Start registers Concurrency independent subscriptions on RequestTopic.
// Each handler invocation processes exactly one RuleRequest message.
func (p *Pool) Start(ctx context.Context, cfg Config) error {
	p.requestTopic = cfg.RequestTopic
	if p.requestTopic == "" {
		p.requestTopic = domain.TopicRequest
	}
	p.producer = resultproducer.New(p.bus, resultproducer.Config{
		ResponseTopic: cfg.ResponseTopic,
		Format:        cfg.ResultFormat,
	}, p.log)

	n := cfg.Concurrency
	if n <= 0 {
		n = 1
	}

	for i := 0; i < n; i++ {
		sub, err := p.bus.Subscribe(ctx, defaultTenant, p.requestTopic, p.handleMessage)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
		}
		p.subs = append(p.subs, sub)
	}

	p.log.Info("rule worker pool started", "concurrency", n, "request_topic", p.requestTopic)
	return nil
}

// Stop unsubscribes every handler and waits for in-flight messages to
// finish (drain-then-stop).
func (p *Pool) Stop() error {
	for _, sub := range p.subs {
		if err := sub.Unsubscribe(); err != nil {
			p.log.Error("failed to unsubscribe rule worker", "topic", sub.Topic(), "error", err)
		}
	}
	p.subs = nil
	p.wg.Wait()
	p.log.Info("rule worker pool stopped")
	return nil
}

func (p *Pool) handleMessage(ctx context.Context, msg *domain.Message) error {
	p.wg.Add(1)
	defer p.wg.Done()
	return p.process(ctx, msg)
}

// process implements the §4.5 contract. Commit discipline: the bus
// handler returning nil is what causes offsets/acks to advance, so the
// result publish happens before we return, never after.
func (p *Pool) process(ctx context.Context, msg *domain.Message) error {
	var req domain.RuleRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		p.log.Error("failed to parse rule request", "message_id", msg.ID, "error", err)
		return p.publish(ctx, &domain.RuleResult{
			Status:      domain.StatusError,
			Description: "Failed to parse RuleRequest from Kafka message",
		})
	}

	result := &domain.RuleResult{
		ProfileUUID:   req.ProfileUUID,
		ProfileName:   req.ProfileName,
		ConfigUUID:    req.Rule.UUID,
		ConfigName:    req.Rule.Name,
		TransactionID: req.Transaction.TransactionID,
	}

	if p.history != nil {
		if err := p.history.Save(ctx, &req.Transaction); err != nil {
			p.log.Warn("failed to persist transaction to history",
				"transaction_id", req.Transaction.TransactionID, "error", err)
		}
	}

	fraud, description, err := p.evaluate(ctx, &req)
	if err != nil {
		result.Status = domain.StatusError
		result.Description = description
		p.log.Error("rule evaluation failed",
			"rule_uuid", req.Rule.UUID, "transaction_id", req.Transaction.TransactionID, "error", err)
		return p.publish(ctx, result)
	}

	result.Description = description
	result.Status = classify(fraud, req.Rule.IsCritical)

	p.log.Info("rule evaluated",
		"rule_uuid", req.Rule.UUID, "transaction_id", req.Transaction.TransactionID, "status", result.Status)
	return p.publish(ctx, result)
}

// evaluate builds and runs the rule named by req.Rule, via the shared
// factory for every rule kind including ML. Returns the verdict plus
// the kind-specific description text; on error, description carries
// the error-case text instead.
func (p *Pool) evaluate(ctx context.Context, req *domain.RuleRequest) (bool, string, error) {
	rule, err := p.factory.Build(req.Rule)
	if err != nil {
		return false, fmt.Sprintf("Error: %v", err), err
	}

	fraud, err := rule.IsFraud(ctx, &req.Transaction)

	if req.Rule.Type == domain.RuleTypeML {
		if scored, ok := rule.(rules.ScoredRule); ok {
			desc := fmt.Sprintf("ML Fraud Probability: %.4f (threshold: %.3f)", scored.LastScore(), req.Rule.ML.LowerBound)
			if err != nil {
				if errors.Is(err, domain.ErrModelUnavailable) {
					return false, fmt.Sprintf("Model config not found for uuid: %s", req.Rule.ML.ModelUUID), err
				}
				return false, fmt.Sprintf("Error: %v", err), err
			}
			return fraud, desc, nil
		}
	}

	if err != nil {
		return false, fmt.Sprintf("Error: %v", err), err
	}

	switch req.Rule.Type {
	case domain.RuleTypeThreshold:
		return fraud, fmt.Sprintf("Threshold rule applied, amount: %f", req.Transaction.Amount), nil
	case domain.RuleTypePattern:
		return fraud, "Pattern rule applied", nil
	case domain.RuleTypeComposite:
		return fraud, "Composite rule applied", nil
	default:
		return fraud, fmt.Sprintf("Rule type: %d", req.Rule.Type), nil
	}
}

// classify maps a verdict plus the rule's is_critical flag to a
// RuleResult status.
func classify(fraud, isCritical bool) string {
	if !fraud {
		return domain.StatusNotFraud
	}
	if isCritical {
		return domain.StatusCritical
	}
	return domain.StatusFraud
}

func (p *Pool) publish(ctx context.Context, result *domain.RuleResult) error {
	return p.producer.Send(ctx, result)
}
