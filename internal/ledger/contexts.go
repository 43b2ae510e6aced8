package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

const contextColumns = `id, name, message_count, total_tokens, latest_version,
	parent_id, fork_version, created_at, updated_at, deleted_at`

// CreateContext allocates a new context with zeroed counters.
func (db *DB) CreateContext(ctx context.Context, name *string) (*models.Context, error) {
	now := time.Now().UTC()
	c := &models.Context{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO contexts (id, name, message_count, total_tokens, latest_version, created_at, updated_at)
		VALUES (?, ?, 0, 0, 0, ?, ?)
	`, c.ID, nullString(name), now, now)
	if err != nil {
		return nil, wrapErr("create context", err)
	}
	return c, nil
}

// GetContext returns a context by id, excluding soft-deleted ones.
// A tombstoned context is indistinguishable from a nonexistent one:
// both yield apperr.ErrNotFound.
func (db *DB) GetContext(ctx context.Context, id string) (*models.Context, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+contextColumns+`
		FROM contexts
		WHERE id = ? AND deleted_at IS NULL
	`, id)
	c, err := scanContext(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get context", err)
	}
	return c, nil
}

// SoftDeleteContext tombstones a context. Deleting a missing or
// already-deleted context returns apperr.ErrNotFound; double delete is
// not treated as a distinct failure. There is no undelete.
func (db *DB) SoftDeleteContext(ctx context.Context, id string) (*models.Context, error) {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx, `
		UPDATE contexts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL
	`, now, id)
	if err != nil {
		return nil, wrapErr("soft delete context", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, wrapErr("soft delete context", err)
	}
	if n == 0 {
		return nil, apperr.ErrNotFound
	}

	// Return the tombstoned row, bypassing the deleted filter.
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+contextColumns+`
		FROM contexts
		WHERE id = ?
	`, id)
	c, err := scanContext(row)
	if err != nil {
		return nil, wrapErr("soft delete context", err)
	}
	return c, nil
}

// ContextExists reports whether a context exists and is not soft-deleted.
func (db *DB) ContextExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx, `
		SELECT 1 FROM contexts WHERE id = ? AND deleted_at IS NULL
	`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("context exists", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContext(row rowScanner) (*models.Context, error) {
	var (
		c       models.Context
		name    sql.NullString
		parent  sql.NullString
		forkVer sql.NullInt64
		deleted sql.NullTime
	)
	err := row.Scan(&c.ID, &name, &c.MessageCount, &c.TotalTokens, &c.LatestVersion,
		&parent, &forkVer, &c.CreatedAt, &c.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	if name.Valid {
		c.Name = &name.String
	}
	if parent.Valid {
		c.ParentID = &parent.String
	}
	if forkVer.Valid {
		c.ForkVersion = &forkVer.Int64
	}
	if deleted.Valid {
		t := deleted.Time
		c.DeletedAt = &t
	}
	return &c, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
