package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/models"
)

// Pagination limits. Limits above maxPageLimit are silently capped;
// a zero limit falls back to the default.
const (
	defaultPageLimit = 50
	maxPageLimit     = 1000
)

const messageColumns = `id, context_id, version, role, content, tool_call_id,
	tool_name, token_count, model, created_at, deleted_at, compacted_at, compacted_into_version`

// Append inserts a batch of messages into a context's ledger, assigning
// sequential versions in caller order starting at latestVersion+1.
//
// The whole operation runs under the context's exclusive lock and inside a
// single transaction: the inserts and the counter update (messageCount,
// totalTokens, latestVersion, updatedAt) commit or roll back together, so
// readers never observe a partially-applied append. Concurrent appends on
// the same context are totally ordered by the lock; appends on different
// contexts proceed in parallel.
//
// An empty batch is a true no-op: no lock, no transaction, no mutation.
// A missing or soft-deleted context yields apperr.ErrNotFound with nothing
// inserted. A (context_id, version) uniqueness violation indicates a lock
// bypass and surfaces as apperr.ErrDuplicate; it is never retried here
// because version assignment depends on a fresh read of latestVersion.
func (db *DB) Append(ctx context.Context, contextID string, batch []models.AppendMessage) ([]models.Message, error) {
	if len(batch) == 0 {
		return []models.Message{}, nil
	}

	unlock := db.locks.lock(contextID)
	defer unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("append: begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var latest int64
	err = tx.QueryRowContext(ctx, `
		SELECT latest_version FROM contexts WHERE id = ? AND deleted_at IS NULL
	`, contextID).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("append: read latest version", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, context_id, version, role, content, tool_call_id, tool_name, token_count, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, wrapErr("append: prepare insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := make([]models.Message, 0, len(batch))
	var sumTokens int64
	for i, in := range batch {
		m := models.Message{
			ID:         uuid.NewString(),
			ContextID:  contextID,
			Version:    latest + int64(i) + 1,
			Role:       in.Role,
			Content:    in.Content,
			TokenCount: in.TokenCount,
			ToolCallID: in.ToolCallID,
			ToolName:   in.ToolName,
			Model:      in.Model,
			CreatedAt:  now,
		}
		_, err := stmt.ExecContext(ctx, m.ID, m.ContextID, m.Version, string(m.Role), m.Content,
			nullString(m.ToolCallID), nullString(m.ToolName), nullInt64(m.TokenCount), nullString(m.Model), now)
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("append: insert version %d", m.Version), err)
		}
		sumTokens += m.Tokens()
		inserted = append(inserted, m)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE contexts
		SET message_count = message_count + ?,
		    total_tokens = total_tokens + ?,
		    latest_version = ?,
		    updated_at = ?
		WHERE id = ?
	`, len(batch), sumTokens, latest+int64(len(batch)), now, contextID)
	if err != nil {
		return nil, wrapErr("append: update counters", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("append: commit", err)
	}
	return inserted, nil
}

// ListMessages reads one page of a context's ledger ordered by version.
// A missing or soft-deleted context yields a well-formed empty page, not
// an error. Ascending pages select version > cursor, descending pages
// version < cursor; a nil or negative cursor imposes no bound.
func (db *DB) ListMessages(ctx context.Context, contextID string, opts models.PageOptions) (*models.Page, error) {
	empty := &models.Page{Data: []models.Message{}}

	live, err := db.ContextExists(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if !live {
		return empty, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE context_id = ? AND deleted_at IS NULL`
	args := []any{contextID}
	desc := opts.Order == models.OrderDesc
	if opts.Cursor != nil && *opts.Cursor >= 0 {
		if desc {
			query += ` AND version < ?`
		} else {
			query += ` AND version > ?`
		}
		args = append(args, *opts.Cursor)
	}
	if desc {
		query += ` ORDER BY version DESC`
	} else {
		query += ` ORDER BY version ASC`
	}
	// Fetch one extra row to detect whether more pages follow.
	query += ` LIMIT ?`
	args = append(args, limit+1)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list messages", err)
	}
	defer rows.Close()

	data, err := scanMessages(rows, limit+1)
	if err != nil {
		return nil, wrapErr("list messages", err)
	}

	page := &models.Page{Data: data, HasMore: len(data) > limit}
	if page.HasMore {
		page.Data = page.Data[:limit]
		last := page.Data[len(page.Data)-1].Version
		page.NextCursor = &last
	}
	return page, nil
}

// WindowByTokenBudget returns the trailing slice of a context's ledger
// whose cumulative token count fits the budget, in chronological order.
//
// The scan walks newest-first and stops before an entry that would push
// the running total past the budget, except that the first entry is always
// taken: once a context has any messages the window is never empty, even
// if that single message alone exceeds the budget. A budget that is NaN,
// infinite, or not strictly positive yields an empty result without
// touching storage.
func (db *DB) WindowByTokenBudget(ctx context.Context, contextID string, budget float64) ([]models.Message, error) {
	if math.IsNaN(budget) || math.IsInf(budget, 0) || budget <= 0 {
		return []models.Message{}, nil
	}

	live, err := db.ContextExists(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if !live {
		return []models.Message{}, nil
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE context_id = ? AND deleted_at IS NULL
		ORDER BY version DESC
	`, contextID)
	if err != nil {
		return nil, wrapErr("window by token budget", err)
	}
	defer rows.Close()

	window := []models.Message{}
	var used int64
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, wrapErr("window by token budget", err)
		}
		tokens := m.Tokens()
		// Budget exactly reached is inclusive: only a strict overshoot stops.
		if float64(used+tokens) > budget && len(window) > 0 {
			break
		}
		window = append(window, *m)
		used += tokens
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("window by token budget", err)
	}

	slices.Reverse(window)
	return window, nil
}

// GetMessage returns a single ledger entry by context and version.
func (db *DB) GetMessage(ctx context.Context, contextID string, version int64) (*models.Message, error) {
	live, err := db.ContextExists(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, apperr.ErrNotFound
	}
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE context_id = ? AND version = ? AND deleted_at IS NULL
	`, contextID, version)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get message", err)
	}
	return m, nil
}

func scanMessages(rows *sql.Rows, capHint int) ([]models.Message, error) {
	out := make([]models.Message, 0, capHint)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m            models.Message
		role         string
		toolCallID   sql.NullString
		toolName     sql.NullString
		tokenCount   sql.NullInt64
		model        sql.NullString
		deletedAt    sql.NullTime
		compactedAt  sql.NullTime
		compactedVer sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.ContextID, &m.Version, &role, &m.Content,
		&toolCallID, &toolName, &tokenCount, &model, &m.CreatedAt,
		&deletedAt, &compactedAt, &compactedVer)
	if err != nil {
		return nil, err
	}
	m.Role = models.Role(role)
	if toolCallID.Valid {
		m.ToolCallID = &toolCallID.String
	}
	if toolName.Valid {
		m.ToolName = &toolName.String
	}
	if tokenCount.Valid {
		m.TokenCount = &tokenCount.Int64
	}
	if model.Valid {
		m.Model = &model.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		m.DeletedAt = &t
	}
	if compactedAt.Valid {
		t := compactedAt.Time
		m.CompactedAt = &t
	}
	if compactedVer.Valid {
		m.CompactedIntoVersion = &compactedVer.Int64
	}
	return &m, nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
