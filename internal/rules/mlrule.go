package rules

import (
	"context"

	"github.com/fraudrules/fraudrules/internal/domain"
	"github.com/fraudrules/fraudrules/internal/ml"
)

// mlRule looks up its model by UUID and classifies by comparing the
// predicted probability against lower_bound.
type mlRule struct {
	cfg     *domain.RuleConfig
	scorer  *ml.Scorer
	history domain.HistoryStore

	// lastScore caches the most recent prediction for the worker's
	// descriptive-text template; set by IsFraud, read immediately
	// after by the same goroutine processing one RuleRequest.
	lastScore float64
}

func (r *mlRule) Config() *domain.RuleConfig { return r.cfg }

func (r *mlRule) LastScore() float64 { return r.lastScore }

func (r *mlRule) IsFraud(ctx context.Context, txn *domain.Transaction) (bool, error) {
	score, err := r.scorer.PredictFraudProbability(ctx, r.cfg.ML.ModelUUID, txn, r.history)
	if err != nil {
		return false, err
	}
	r.lastScore = score
	return score >= r.cfg.ML.LowerBound, nil
}
