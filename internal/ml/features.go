package ml

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/fraudrules/fraudrules/internal/domain"
)

// accountStats are the history-derived features computed for one
// transaction against its sender account's prior history.
type accountStats struct {
	timeSinceLastTransaction float64
	spendingDeviationScore   float64
	velocityScore            float64
	geoAnomalyScore          float64
}

const maxSafeFloat = 3.4e37

func epochToUTC(epoch float64) time.Time {
	return time.Unix(int64(epoch), 0).UTC()
}

func safeLog1p(v float64) float64 {
	return math.Log1p(math.Max(0, v))
}

// safeFloat clamps a value to a finite, magnitude-bounded float32-safe
// range: NaN/Inf collapse to 0, out-of-range values saturate.
func safeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > maxSafeFloat {
		return maxSafeFloat
	}
	if v < -maxSafeFloat {
		return -maxSafeFloat
	}
	return v
}

// computeAccountStats folds the sender's history prior to currentEpoch
// into a single running pass: a Welford mean/variance of log1p(amount)
// for the spending-deviation score, a most-recent-prior timestamp, a
// 24-hour trailing count, and a same-location fraction.
func computeAccountStats(history []*domain.Transaction, currentEpoch, currentAmount float64, currentLocation string) accountStats {
	out := accountStats{geoAnomalyScore: 1.0}
	if len(history) == 0 {
		return out
	}

	var n int64
	var mean, m2 float64
	var lastBefore float64
	var windowCount int64
	locCounts := make(map[string]int64)
	var total int64
	windowStart := currentEpoch - 86400

	for _, t := range history {
		ts := domain.EpochSeconds(t.Timestamp)
		amtLog := math.Log1p(math.Max(0, t.Amount))

		n++
		delta := amtLog - mean
		mean += delta / float64(n)
		m2 += delta * (amtLog - mean)

		if ts < currentEpoch && ts > lastBefore {
			lastBefore = ts
		}
		if ts >= windowStart && ts < currentEpoch {
			windowCount++
		}

		locCounts[t.Location]++
		total++
	}

	if lastBefore > 0 {
		out.timeSinceLastTransaction = currentEpoch - lastBefore
	}

	currentAmtLog := math.Log1p(math.Max(0, currentAmount))
	var stddev float64
	if n > 0 {
		variance := m2 / float64(n)
		if variance > 0 {
			stddev = math.Sqrt(variance)
		}
	}
	if stddev > 1e-12 {
		out.spendingDeviationScore = (currentAmtLog - mean) / stddev
	}

	out.velocityScore = float64(windowCount)

	if total > 0 {
		frac := float64(locCounts[currentLocation]) / float64(total)
		out.geoAnomalyScore = math.Max(0, math.Min(1, 1-frac))
	}

	return out
}

// historyBefore fetches the sender's full history and trims it to rows
// strictly before currentEpoch, per the feature spec's "all history
// rows with timestamp < current-txn timestamp".
func historyBefore(ctx context.Context, store domain.HistoryStore, accountID string, currentEpoch float64) ([]*domain.Transaction, error) {
	all, err := store.GetAccountHistory(ctx, accountID, 10000)
	if err != nil {
		return nil, err
	}
	filtered := make([]*domain.Transaction, 0, len(all))
	for _, t := range all {
		if domain.EpochSeconds(t.Timestamp) < currentEpoch {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// buildFeatureVector assembles the dense feature vector in the order
// dictated by model.Features: numeric stats, calendar features derived
// from the transaction's own timestamp, and one-hot categoricals with
// a "<prefix>nan" fallback column.
func buildFeatureVector(txn *domain.Transaction, stats accountStats, model *Model) []float32 {
	vec := make([]float32, len(model.Features))

	set := func(name string, value float64) {
		if idx, ok := model.FeatureIndex[name]; ok {
			vec[idx] = float32(safeFloat(value))
		}
	}

	set("amount", math.Log1p(math.Max(0, txn.Amount)))
	set("time_since_last_transaction", stats.timeSinceLastTransaction)
	set("spending_deviation_score", stats.spendingDeviationScore)
	set("velocity_score", stats.velocityScore)
	set("geo_anomaly_score", stats.geoAnomalyScore)

	epoch := domain.EpochSeconds(txn.Timestamp)
	t := time.Unix(int64(epoch), 0).UTC()
	set("hour_of_day", float64(t.Hour()))
	set("day_of_week", float64((int(t.Weekday())+6)%7))

	setCategorical := func(prefix, value string) {
		name := prefix + value
		if value == "" {
			name = prefix + "nan"
		}
		if idx, ok := model.FeatureIndex[name]; ok {
			vec[idx] = 1.0
			return
		}
		if idx, ok := model.FeatureIndex[prefix+"nan"]; ok {
			vec[idx] = 1.0
		}
	}

	// Enum fields are cased to match the trained column names; the
	// free-text fields pass through raw.
	setCategorical("transaction_type_", strings.ToLower(txn.TransactionType))
	setCategorical("merchant_category_", txn.MerchantCategory)
	setCategorical("location_", txn.Location)
	setCategorical("device_used_", strings.ToLower(txn.DeviceUsed))
	setCategorical("payment_channel_", strings.ToLower(txn.PaymentChannel))

	return vec
}
