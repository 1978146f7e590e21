package history

// schemaTransactions defines the relational transaction-history table.
// Compatible with both SQLite and PostgreSQL. The timestamp column is
// named times_tamp, not timestamp, to avoid colliding with the SQL
// reserved word on some backends.
const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    transaction_id TEXT PRIMARY KEY,
    sender_account TEXT NOT NULL,
    receiver_account TEXT NOT NULL,
    amount REAL NOT NULL,
    times_tamp TEXT NOT NULL,
    ts_epoch REAL NOT NULL,
    transaction_type TEXT NOT NULL,
    merchant_category TEXT NOT NULL,
    location TEXT NOT NULL,
    device_used TEXT NOT NULL,
    payment_channel TEXT NOT NULL,
    ip_address TEXT NOT NULL,
    device_hash TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_sender_ts ON transactions(sender_account, times_tamp DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_sender_epoch ON transactions(sender_account, ts_epoch DESC);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{schemaTransactions}
}
