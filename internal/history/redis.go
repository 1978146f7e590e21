package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/fraudrules/fraudrules/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements domain.HistoryStore as one sorted set per
// account, scored by transaction timestamp (epoch seconds). It cannot
// push aggregates down to the server, so Aggregate always folds the
// member set locally.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore dials Redis and verifies connectivity.
func NewRedisStore(cfg domain.HistoryConfig) (*RedisStore, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	return &RedisStore{client: client, retention: retention}, nil
}

func (s *RedisStore) key(accountID string) string {
	return "fraudrules:history:" + accountID
}

// Save adds txn to its sender's sorted set, scored by timestamp, and
// trims members older than the retention window. Idempotent: the
// transaction_id is embedded in the member payload and a duplicate
// member with the same score+payload is a ZADD no-op.
func (s *RedisStore) Save(ctx context.Context, txn *domain.Transaction) error {
	payload, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}

	score := domain.EpochSeconds(txn.Timestamp)
	key := s.key(txn.SenderAccount)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: payload})
	cutoff := float64(time.Now().Add(-s.retention).Unix())
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%f", cutoff))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *RedisStore) GetAccountHistory(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	members, err := s.client.ZRevRange(ctx, s.key(accountID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return decodeMembers(members), nil
}

func (s *RedisStore) GetRecent(ctx context.Context, accountID string, minutes int, limit int) ([]*domain.Transaction, error) {
	cutoff := float64(time.Now().Add(-time.Duration(minutes) * time.Minute).Unix())
	members, err := s.client.ZRevRangeByScore(ctx, s.key(accountID), &redis.ZRangeBy{
		Min:    fmt.Sprintf("%f", cutoff),
		Max:    "+inf",
		Offset: 0,
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return decodeMembers(members), nil
}

// Aggregate folds the account's member set locally: it is not
// pushdown-capable, so window bounds are applied to the fetched set in
// Go rather than in a Redis query.
func (s *RedisStore) Aggregate(ctx context.Context, fn domain.AggregateFunc, field domain.FieldRef, accountID string, window domain.Window, referenceEpoch float64) (float64, error) {
	minScore := "-inf"
	if window.MaxDeltaTime != nil {
		minScore = fmt.Sprintf("%f", referenceEpoch-float64(*window.MaxDeltaTime))
	}
	maxScore := fmt.Sprintf("%f", referenceEpoch)

	members, err := s.client.ZRevRangeByScore(ctx, s.key(accountID), &redis.ZRangeBy{
		Min: minScore,
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	txns := decodeMembers(members)
	if window.MaxCount != nil && len(txns) > *window.MaxCount {
		txns = txns[:*window.MaxCount]
	}
	return foldAggregate(fn, field, txns)
}

func foldAggregate(fn domain.AggregateFunc, field domain.FieldRef, txns []*domain.Transaction) (float64, error) {
	if fn == domain.AggCount {
		return float64(len(txns)), nil
	}
	if len(txns) == 0 {
		return 0, nil
	}

	values := make([]float64, 0, len(txns))
	strs := make([]string, 0, len(txns))
	for _, t := range txns {
		f, s, isStr, err := fieldAsNumberOrString(t, field)
		if err != nil {
			return 0, err
		}
		if isStr {
			strs = append(strs, s)
		} else {
			values = append(values, f)
		}
	}

	switch fn {
	case domain.AggCountDistinct:
		if len(strs) > 0 {
			seen := map[string]struct{}{}
			for _, s := range strs {
				seen[s] = struct{}{}
			}
			return float64(len(seen)), nil
		}
		seen := map[float64]struct{}{}
		for _, v := range values {
			seen[v] = struct{}{}
		}
		return float64(len(seen)), nil
	case domain.AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum, nil
	case domain.AggAvg:
		if len(values) == 0 {
			return 0, nil
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case domain.AggMin:
		if len(values) == 0 {
			return 0, nil
		}
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case domain.AggMax:
		if len(values) == 0 {
			return 0, nil
		}
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	default:
		return 0, fmt.Errorf("%w: unknown aggregate function %d", domain.ErrConfiguration, fn)
	}
}

func fieldAsNumberOrString(t *domain.Transaction, field domain.FieldRef) (float64, string, bool, error) {
	switch field {
	case domain.FieldAmount:
		return t.Amount, "", false, nil
	case domain.FieldTransactionID:
		return 0, t.TransactionID, true, nil
	case domain.FieldSenderAccount:
		return 0, t.SenderAccount, true, nil
	case domain.FieldReceiverAccount:
		return 0, t.ReceiverAccount, true, nil
	case domain.FieldTransactionType:
		return 0, t.TransactionType, true, nil
	case domain.FieldMerchantCategory:
		return 0, t.MerchantCategory, true, nil
	case domain.FieldLocation:
		return 0, t.Location, true, nil
	case domain.FieldDeviceUsed:
		return 0, t.DeviceUsed, true, nil
	case domain.FieldPaymentChannel:
		return 0, t.PaymentChannel, true, nil
	case domain.FieldIPAddress:
		return 0, t.IPAddress, true, nil
	case domain.FieldDeviceHash:
		return 0, t.DeviceHash, true, nil
	default:
		return 0, "", false, fmt.Errorf("%w: field %d is not aggregatable", domain.ErrUnknownField, field)
	}
}

func decodeMembers(members []string) []*domain.Transaction {
	result := make([]*domain.Transaction, 0, len(members))
	for _, m := range members {
		var t domain.Transaction
		if err := json.Unmarshal([]byte(m), &t); err != nil {
			continue // malformed row: logged and skipped by caller's instrumentation
		}
		result = append(result, &t)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return domain.EpochSeconds(result[i].Timestamp) > domain.EpochSeconds(result[j].Timestamp)
	})
	return result
}

func (s *RedisStore) SupportsPushdown() bool { return false }

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.client.Close() }
