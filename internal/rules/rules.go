// Package rules implements the Rule Factory and the four rule-kind
// evaluators that sit on top of the shared expression evaluator.
package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fraudrules/fraudrules/internal/domain"
	"github.com/fraudrules/fraudrules/internal/expr"
	"github.com/fraudrules/fraudrules/internal/ml"
)

// Rule is a constructed, evaluable rule: a closure over its
// RuleConfig's variant body plus whatever collaborators it needed at
// construction time.
type Rule interface {
	// IsFraud evaluates the rule against txn. For an ML rule, the
	// returned score is the raw probability, reported back to the
	// caller via the result's description even though the bool is
	// what drives classification.
	IsFraud(ctx context.Context, txn *domain.Transaction) (bool, error)

	// Config returns the originating configuration, used by the
	// worker to build descriptive text.
	Config() *domain.RuleConfig
}

// ScoredRule is implemented by rule kinds that compute a numeric score
// en route to their boolean verdict. Currently only the ML rule kind;
// the worker uses this to report the raw probability in its
// description even when the verdict is NOT_FRAUD.
type ScoredRule interface {
	Rule
	LastScore() float64
}

// Factory constructs Rule values from RuleConfig, validating that the
// prerequisites for each rule kind are present.
type Factory struct {
	history domain.HistoryStore
	scorer  *ml.Scorer
	log     *slog.Logger
}

func NewFactory(history domain.HistoryStore, scorer *ml.Scorer, log *slog.Logger) *Factory {
	if log == nil {
		log = slog.Default()
	}
	return &Factory{history: history, scorer: scorer, log: log}
}

// Build dispatches on cfg.Type, validating that the chosen variant's
// prerequisites (a history store for PATTERN, both a scorer and a
// history store for ML) are present.
func (f *Factory) Build(cfg *domain.RuleConfig) (Rule, error) {
	switch cfg.Type {
	case domain.RuleTypeThreshold:
		if cfg.Threshold == nil {
			return nil, fmt.Errorf("%w: threshold rule %s missing threshold_rule body", domain.ErrConfiguration, cfg.UUID)
		}
		return &thresholdRule{cfg: cfg}, nil

	case domain.RuleTypeComposite:
		if cfg.Composite == nil {
			return nil, fmt.Errorf("%w: composite rule %s missing composite_rule body", domain.ErrConfiguration, cfg.UUID)
		}
		return &compositeRule{cfg: cfg, log: f.log}, nil

	case domain.RuleTypePattern:
		if cfg.Pattern == nil {
			return nil, fmt.Errorf("%w: pattern rule %s missing pattern_rule body", domain.ErrConfiguration, cfg.UUID)
		}
		if f.history == nil {
			return nil, fmt.Errorf("%w: pattern rule %s requires a history store", domain.ErrConfiguration, cfg.UUID)
		}
		return &patternRule{cfg: cfg, history: f.history}, nil

	case domain.RuleTypeML:
		if cfg.ML == nil {
			return nil, fmt.Errorf("%w: ml rule %s missing ml_rule body", domain.ErrConfiguration, cfg.UUID)
		}
		if f.scorer == nil || f.history == nil {
			return nil, fmt.Errorf("%w: ml rule %s requires both a scorer and a history store", domain.ErrConfiguration, cfg.UUID)
		}
		return &mlRule{cfg: cfg, scorer: f.scorer, history: f.history}, nil

	default:
		return nil, fmt.Errorf("%w: unknown rule type %v for rule %s", domain.ErrConfiguration, cfg.Type, cfg.UUID)
	}
}

// thresholdRule requires its root expression to be a comparison.
type thresholdRule struct {
	cfg *domain.RuleConfig
}

func (r *thresholdRule) Config() *domain.RuleConfig { return r.cfg }

func (r *thresholdRule) IsFraud(ctx context.Context, txn *domain.Transaction) (bool, error) {
	e := r.cfg.Threshold.Expression
	if e == nil || e.Kind != domain.ExprComparison {
		return false, fmt.Errorf("%w: threshold rule %s root must be a comparison", domain.ErrMalformedExpression, r.cfg.UUID)
	}
	return expr.EvalBool(ctx, txn, e, nil)
}

// compositeRule evaluates boolean algebra only; any Aggregate node
// under it fails with AggregateOutsideContext since no AggregateContext
// is supplied.
type compositeRule struct {
	cfg *domain.RuleConfig
	log *slog.Logger
}

func (r *compositeRule) Config() *domain.RuleConfig { return r.cfg }

func (r *compositeRule) IsFraud(ctx context.Context, txn *domain.Transaction) (bool, error) {
	result, err := expr.EvalBool(ctx, txn, r.cfg.Composite.Expression, nil)
	if err != nil {
		return false, err
	}
	if r.cfg.Composite.CELShadow != "" {
		checkCELShadow(r.log, r.cfg, txn, result)
	}
	return result, nil
}
