// Package director implements the Director: it holds the current
// profile snapshot and, for every incoming transaction, fans out one
// RuleRequest per (profile, rule) pair onto the request topic.
package director

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fraudrules/fraudrules/internal/domain"
)

const defaultTenant = "_global"

// Director dispatches transactions against the current profile
// snapshot. RefreshProfiles swaps the snapshot behind an atomic
// pointer; ProcessTransaction captures a reference to the snapshot at
// task-start time, so a concurrent refresh never affects work already
// in flight.
type Director struct {
	snapshot atomic.Pointer[domain.ActiveProfileSet]

	bus          domain.EventBus
	requestTopic string
	log          *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

// Config configures a Director.
type Config struct {
	RequestTopic string

	// Concurrency bounds the number of transactions being fanned out
	// at once; additional ProcessTransaction calls block on the
	// semaphore until a slot frees up.
	Concurrency int
}

func New(bus domain.EventBus, cfg Config, log *slog.Logger) *Director {
	if log == nil {
		log = slog.Default()
	}
	requestTopic := cfg.RequestTopic
	if requestTopic == "" {
		requestTopic = domain.TopicRequest
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 16
	}
	d := &Director{
		bus:          bus,
		requestTopic: requestTopic,
		log:          log,
		sem:          make(chan struct{}, concurrency),
	}
	d.snapshot.Store(domain.NewActiveProfileSet(nil))
	return d
}

// RefreshProfiles wholesale-replaces the active profile set. Duplicate
// UUIDs within profiles collapse, last writer wins. Readers already
// mid-fan-out against the prior snapshot are unaffected.
func (d *Director) RefreshProfiles(profiles []*domain.Profile) {
	next := domain.NewActiveProfileSet(profiles)
	d.snapshot.Store(next)
	d.log.Info("profile snapshot refreshed", "profile_count", next.Len())
}

// ActiveProfileCount reports the size of the current snapshot, mostly
// useful for health/readiness reporting.
func (d *Director) ActiveProfileCount() int {
	return d.snapshot.Load().Len()
}

// ProcessTransaction enqueues fan-out work for txn and returns once the
// work is queued, not once it completes — actual publishing runs on the
// task pool bounded by Config.Concurrency.
func (d *Director) ProcessTransaction(ctx context.Context, txn *domain.Transaction) {
	snapshot := d.snapshot.Load()

	d.wg.Add(1)
	d.sem <- struct{}{}
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()

		pairsPublished, lastStatus := d.FanOut(ctx, snapshot, txn)
		if lastStatus != nil {
			d.log.Warn("fan-out completed with errors",
				"transaction_id", txn.TransactionID, "pairs_published", pairsPublished, "error", lastStatus)
		} else {
			d.log.Debug("fan-out completed",
				"transaction_id", txn.TransactionID, "pairs_published", pairsPublished)
		}
	}()
}

// Wait blocks until every enqueued fan-out task has completed. Intended
// for graceful shutdown and tests; not part of the hot path.
func (d *Director) Wait() {
	d.wg.Wait()
}

// FanOut builds and publishes one RuleRequest per (profile, rule) pair
// in snapshot against txn. It returns the count of successfully
// published requests and the last non-nil error encountered, matching
// the per-pair status pair contract. A serialization failure is
// non-retryable and stops the fan-out for that profile only; a publish
// failure is logged and counted but does not stop fan-out for the
// remaining pairs.
func (d *Director) FanOut(ctx context.Context, snapshot *domain.ActiveProfileSet, txn *domain.Transaction) (pairsPublished int, lastStatus error) {
	for _, profile := range snapshot.Profiles() {
		total := len(profile.Rules)
		for number, rule := range profile.Rules {
			req := &domain.RuleRequest{
				ProfileUUID:    profile.UUID,
				ProfileName:    profile.Name,
				Rule:           rule,
				Transaction:    *txn,
				Number:         number,
				TotalRuleCount: total,
			}

			payload, err := json.Marshal(req)
			if err != nil {
				lastStatus = fmt.Errorf("%w: %v", domain.ErrSerialization, err)
				d.log.Error("rule request serialization failed, skipping remaining rules for profile",
					"profile_uuid", profile.UUID, "transaction_id", txn.TransactionID, "error", err)
				break
			}

			if err := d.bus.Publish(ctx, defaultTenant, d.requestTopic, payload); err != nil {
				lastStatus = fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
				d.log.Warn("rule request publish failed",
					"profile_uuid", profile.UUID, "rule_uuid", rule.UUID, "transaction_id", txn.TransactionID, "error", err)
				continue
			}

			pairsPublished++
		}
	}
	return pairsPublished, lastStatus
}
