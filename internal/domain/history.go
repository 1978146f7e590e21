package domain

import "context"

// HistoryStore is the Transaction-History Store contract. Two backends
// must be supportable behind this interface: a relational store
// (preferred; supports server-side aggregate pushdown) and a
// sorted-set-by-timestamp store (in-memory/cache-like, local-fold
// aggregates only).
type HistoryStore interface {
	// Save persists a transaction. Idempotent by TransactionID.
	Save(ctx context.Context, txn *Transaction) error

	// GetAccountHistory returns up to limit transactions for
	// sender_account = accountID, most recent first.
	GetAccountHistory(ctx context.Context, accountID string, limit int) ([]*Transaction, error)

	// GetRecent is as GetAccountHistory, restricted to
	// timestamp >= now - minutes.
	GetRecent(ctx context.Context, accountID string, minutes int, limit int) ([]*Transaction, error)

	// Aggregate computes a server-side (or, on backends that cannot
	// push down, locally-folded) aggregate over the account's
	// transactions within window. referenceEpoch is the current
	// transaction's timestamp, in epoch seconds: window.MaxDeltaTime is
	// relative to it, not to wall-clock time. Returns 0 for null/empty
	// aggregates.
	Aggregate(ctx context.Context, fn AggregateFunc, field FieldRef, accountID string, window Window, referenceEpoch float64) (float64, error)

	// SupportsPushdown reports whether Aggregate evaluates server-side.
	// The Pattern rule uses this to decide whether the local-fold path
	// is needed.
	SupportsPushdown() bool

	Ping(ctx context.Context) error
	Close() error
}
