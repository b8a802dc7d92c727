// Package sqlite provides the persistent chain state store.
// Uses WAL mode for concurrent reads and crash-safe writes. Consensus
// state is only ever touched inside Update, so a dispatch either
// commits all of its writes or none of them.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/chain.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "chain.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Contract store
		`CREATE TABLE IF NOT EXISTS contracts (
			reservation_id  INTEGER PRIMARY KEY,
			escrow_account  TEXT NOT NULL,
			user_account    TEXT NOT NULL,
			farmer_account  TEXT NOT NULL DEFAULT '',
			node_id         TEXT NOT NULL,
			currency        INTEGER NOT NULL DEFAULT 0,
			sru             INTEGER NOT NULL DEFAULT 0,
			hru             INTEGER NOT NULL DEFAULT 0,
			cru             INTEGER NOT NULL DEFAULT 0,
			nru             INTEGER NOT NULL DEFAULT 0,
			mru             INTEGER NOT NULL DEFAULT 0,
			workload_state  TEXT NOT NULL,
			accepted        BOOLEAN NOT NULL DEFAULT 0,
			expires_at      INTEGER NOT NULL DEFAULT 0,
			last_claimed    INTEGER NOT NULL DEFAULT 0
		)`,

		// Secondary maps
		`CREATE TABLE IF NOT EXISTS volume_reservations (
			reservation_id INTEGER PRIMARY KEY,
			disk_type      INTEGER NOT NULL,
			size           INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS account_reservations (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			account        TEXT NOT NULL,
			reservation_id INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_account_res ON account_reservations(account)`,
		`CREATE TABLE IF NOT EXISTS reservation_state (
			reservation_id INTEGER PRIMARY KEY,
			state          TEXT NOT NULL
		)`,

		// Expiration index: one row per enrolled contract, bucketed by
		// unix second. Buckets stay short (one contract per second in
		// the common case) so linear removal is fine.
		`CREATE TABLE IF NOT EXISTS contract_expirations (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			expires_at     INTEGER NOT NULL,
			reservation_id INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expirations ON contract_expirations(expires_at)`,

		// Host currency: free balances per account, smallest units.
		`CREATE TABLE IF NOT EXISTS accounts (
			account TEXT PRIMARY KEY,
			balance INTEGER NOT NULL
		)`,

		// Events deposited per block
		`CREATE TABLE IF NOT EXISTS events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			height         INTEGER NOT NULL,
			name           TEXT NOT NULL,
			account        TEXT NOT NULL DEFAULT '',
			node_id        TEXT NOT NULL DEFAULT '',
			reservation_id INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_height ON events(height)`,

		// Counters and block bookkeeping
		`CREATE TABLE IF NOT EXISTS chain_meta (
			key   TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,

		// Replica-local off-chain worker state (lock, idempotence
		// cache). Not consensus state.
		`CREATE TABLE IF NOT EXISTS offchain_kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Tx is a transactional view over the chain state.
type Tx struct {
	tx *sql.Tx
}

// Update runs fn inside a write transaction. Any error rolls back
// every state change fn made.
func (d *DB) Update(fn func(*Tx) error) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// View runs fn inside a read-only transaction.
func (d *DB) View(fn func(*Tx) error) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	return fn(&Tx{tx: tx})
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
