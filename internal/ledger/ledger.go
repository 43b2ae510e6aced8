// Package ledger provides the SQLite-backed versioned message ledger:
// context entities, batch message appends with gap-free version assignment
// under a per-context exclusive lock, cursor pagination, and token-budget
// window selection.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/laguz/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS contexts (
	id             TEXT PRIMARY KEY,
	name           TEXT,
	message_count  INTEGER NOT NULL DEFAULT 0,
	total_tokens   INTEGER NOT NULL DEFAULT 0,
	latest_version INTEGER NOT NULL DEFAULT 0,
	parent_id      TEXT REFERENCES contexts(id) ON DELETE SET NULL,
	fork_version   INTEGER,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL,
	deleted_at     DATETIME
);

CREATE TABLE IF NOT EXISTS messages (
	id                     TEXT PRIMARY KEY,
	context_id             TEXT NOT NULL REFERENCES contexts(id) ON DELETE CASCADE,
	version                INTEGER NOT NULL,
	role                   TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system', 'tool')),
	content                TEXT NOT NULL,
	tool_call_id           TEXT,
	tool_name              TEXT,
	token_count            INTEGER,
	model                  TEXT,
	created_at             DATETIME NOT NULL,
	deleted_at             DATETIME,
	compacted_at           DATETIME,
	compacted_into_version INTEGER,
	UNIQUE (context_id, version)
);

CREATE INDEX IF NOT EXISTS idx_messages_context_version ON messages(context_id, version);
CREATE INDEX IF NOT EXISTS idx_messages_deleted_at ON messages(deleted_at);
`

// DB wraps a sql.DB with ledger operations. Appends on the same context
// are serialized through the per-context lock table; everything else is a
// plain consistent read or a single-row conditional write.
type DB struct {
	conn  *sql.DB
	locks lockTable
}

// Open opens (or creates) the SQLite database and applies the schema.
//
// _txlock=immediate makes transactions take the write lock at BEGIN. Without
// it an append transaction starts on a read snapshot and the first INSERT has
// to upgrade it; if another connection committed in between, that upgrade
// fails with SQLITE_BUSY immediately, bypassing _busy_timeout.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// wrapErr maps SQLite constraint violations onto the apperr sentinels so
// callers can distinguish DUPLICATE and FOREIGN_KEY from generic storage
// faults without importing the driver.
func wrapErr(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("ledger: %s: %w", op, apperr.ErrDuplicate)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("ledger: %s: %w", op, apperr.ErrForeignKey)
		}
	}
	return fmt.Errorf("ledger: %s: %w", op, err)
}
