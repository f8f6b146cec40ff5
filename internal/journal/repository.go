// Package journal keeps a SQLite record of client faults and unexpected
// disconnects so they can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry kinds.
const (
	KindFault        = "fault"
	KindDisconnected = "disconnected"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed-width so created_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("journal: entry not found")

// Entry is one journal row.
type Entry struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Operation string         `json:"operation,omitempty"`
	ClientID  string         `json:"client_id,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Kind   string // optional: KindFault or KindDisconnected
	Limit  int    // default 50, max 200
	Offset int
}

// ListResult is a page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores journal entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// SQLiteRepository is the journal_entries table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e, filling ID and CreatedAt when they are empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	var details any
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling journal details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO journal_entries (id, kind, operation, client_id, message, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Operation, e.ClientID, e.Message, details,
		e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

const selectColumns = "SELECT id, kind, operation, client_id, message, details, created_at FROM journal_entries"

// Get returns the entry with the given ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM journal_entries"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		selectColumns+where+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Prune deletes entries created before olderThan and reports how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM journal_entries WHERE created_at < ?",
		olderThan.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning journal entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning journal entries: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var details sql.NullString
	var createdAt string

	if err := s.Scan(&e.ID, &e.Kind, &e.Operation, &e.ClientID, &e.Message, &details, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning journal entry: %w", err)
	}

	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
			return nil, fmt.Errorf("decoding journal details for %s: %w", e.ID, err)
		}
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t

	return &e, nil
}
