package ml

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fraudrules/fraudrules/internal/domain"
)

// Scorer evaluates the ML rule kind: it resolves a model by UUID from
// its cache and produces a fraud probability for one transaction.
type Scorer struct {
	cache *Cache
	log   *slog.Logger
}

func NewScorer(cache *Cache, log *slog.Logger) *Scorer {
	if log == nil {
		log = slog.Default()
	}
	return &Scorer{cache: cache, log: log}
}

// PredictFraudProbability computes AccountStats from history, builds
// the primary model's feature vector, and returns its score in [0,1].
// If a secondary (LightGBM) booster is loaded, it is scored too but
// only logged — per the model-artifact contract, it never affects the
// returned probability.
func (s *Scorer) PredictFraudProbability(ctx context.Context, modelUUID string, txn *domain.Transaction, history domain.HistoryStore) (float64, error) {
	model, err := s.cache.Get(modelUUID)
	if err != nil {
		return 0, err
	}

	currentEpoch := domain.EpochSeconds(txn.Timestamp)
	priorHistory, err := historyBefore(ctx, history, txn.SenderAccount, currentEpoch)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	stats := computeAccountStats(priorHistory, currentEpoch, txn.Amount, txn.Location)

	if model.Secondary != nil {
		s.logSecondaryScore(model, stats, txn)
	}

	features := buildFeatureVector(txn, stats, model)
	input := make([]float64, len(features))
	for i, f := range features {
		input[i] = float64(f)
	}

	return model.Primary.PredictSingle(input, 0), nil
}

// logSecondaryScore scores the optional stage-1 LightGBM booster over
// a 10-feature vector mirroring the original's fixed layout (5 account
// stats, 5 zero-filled placeholders, hour, weekday) and logs it for
// observability; the five zero placeholders were never used by the
// original's stage-1 pass either, so the column layout is preserved
// even though it is partially inert.
func (s *Scorer) logSecondaryScore(model *Model, stats accountStats, txn *domain.Transaction) {
	epoch := domain.EpochSeconds(txn.Timestamp)
	t := epochToUTC(epoch)

	feats := []float64{
		safeLog1p(txn.Amount),
		stats.timeSinceLastTransaction,
		stats.spendingDeviationScore,
		stats.velocityScore,
		stats.geoAnomalyScore,
		0, 0, 0, 0, 0,
		float64(t.Hour()),
		float64((int(t.Weekday()) + 6) % 7),
	}

	score := model.Secondary.PredictSingle(feats, 0)

	s.log.Debug("ml secondary stage score", "transaction_id", txn.TransactionID, "model_uuid", model.UUID, "stage1_score", score)
}
