package rules

import (
	"context"
	"fmt"

	"github.com/fraudrules/fraudrules/internal/domain"
	"github.com/fraudrules/fraudrules/internal/expr"
)

// patternRule evaluates a boolean expression whose Aggregate nodes
// resolve against the history store, windowed by the rule's
// max_delta_time/max_count.
type patternRule struct {
	cfg     *domain.RuleConfig
	history domain.HistoryStore
}

func (r *patternRule) Config() *domain.RuleConfig { return r.cfg }

func (r *patternRule) IsFraud(ctx context.Context, txn *domain.Transaction) (bool, error) {
	window := domain.Window{
		MaxDeltaTime: r.cfg.Pattern.MaxDeltaTime,
		MaxCount:     r.cfg.Pattern.MaxCount,
	}
	aggCtx := &historyAggregateContext{
		history:        r.history,
		txn:            txn,
		window:         window,
		referenceEpoch: domain.EpochSeconds(txn.Timestamp),
	}
	return expr.EvalBool(ctx, txn, r.cfg.Pattern.Expression, aggCtx)
}

// historyAggregateContext implements expr.AggregateContext. It prefers
// the store's server-side pushdown; when the backend cannot push down,
// it fetches the account's full history and windows it locally against
// referenceEpoch, matching the server-side Aggregate path exactly
// (GetRecent windows against wall-clock "now", which can disagree with
// referenceEpoch when the evaluated transaction lags behind it).
type historyAggregateContext struct {
	history        domain.HistoryStore
	txn            *domain.Transaction
	window         domain.Window
	referenceEpoch float64
}

func (a *historyAggregateContext) Resolve(ctx context.Context, agg *domain.AggregateExpr) (domain.Value, error) {
	if a.history.SupportsPushdown() {
		v, err := a.history.Aggregate(ctx, agg.Function, agg.Operand, a.txn.SenderAccount, a.window, a.referenceEpoch)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.FloatValue(v), nil
	}

	rows, err := a.fetchRows(ctx)
	if err != nil {
		return domain.Value{}, err
	}
	v, err := foldLocal(agg.Function, agg.Operand, rows)
	if err != nil {
		return domain.Value{}, err
	}
	return domain.FloatValue(v), nil
}

func (a *historyAggregateContext) fetchRows(ctx context.Context) ([]*domain.Transaction, error) {
	rows, err := a.history.GetAccountHistory(ctx, a.txn.SenderAccount, 10000)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	filtered := make([]*domain.Transaction, 0, len(rows))
	for _, t := range rows {
		ts := domain.EpochSeconds(t.Timestamp)
		if a.window.MaxDeltaTime != nil && ts < a.referenceEpoch-float64(*a.window.MaxDeltaTime) {
			continue
		}
		if ts >= a.referenceEpoch {
			continue
		}
		filtered = append(filtered, t)
	}
	if a.window.MaxCount != nil && len(filtered) > *a.window.MaxCount {
		filtered = filtered[:*a.window.MaxCount]
	}
	return filtered, nil
}
