package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Close reasons.
const (
	ReasonDetached = "detached"
	ReasonDangling = "dangling"
)

// DefaultListLimit is used when ListRecent is given a non-positive limit.
const DefaultListLimit = 50

// MaxListLimit caps ListRecent.
const MaxListLimit = 1000

// timeLayout is how timestamps are stored; it sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Session is one device registration.
type Session struct {
	ID           string     `json:"id"`
	Serial       string     `json:"serial"`
	Address      string     `json:"address,omitempty"`
	ServiceName  string     `json:"service_name,omitempty"`
	AttachedAt   time.Time  `json:"attached_at"`
	DetachedAt   *time.Time `json:"detached_at,omitempty"`
	DetachReason string     `json:"detach_reason,omitempty"`
}

// Open reports whether the session has not been closed.
func (s *Session) Open() bool {
	return s.DetachedAt == nil
}

// Repository defines session persistence operations.
type Repository interface {
	Open(ctx context.Context, s *Session) error
	Close(ctx context.Context, serial string, at time.Time, reason string) error
	ListRecent(ctx context.Context, limit int) ([]Session, error)
	CloseDangling(ctx context.Context, at time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed session repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Open inserts a new open session. An empty ID is filled with a UUID and a
// zero AttachedAt with the current time.
func (r *SQLiteRepository) Open(ctx context.Context, s *Session) error {
	if s == nil || s.Serial == "" {
		return fmt.Errorf("%w: serial is required", ErrInvalidSession)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.AttachedAt.IsZero() {
		s.AttachedAt = time.Now()
	}
	s.DetachedAt = nil
	s.DetachReason = ""

	const query = `INSERT INTO device_sessions (id, serial, address, service_name, attached_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Serial, s.Address, s.ServiceName, formatTime(s.AttachedAt))
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", s.ID, err)
	}
	return nil
}

// Close marks the latest open session for serial as detached.
func (r *SQLiteRepository) Close(ctx context.Context, serial string, at time.Time, reason string) error {
	const query = `UPDATE device_sessions SET detached_at = ?, detach_reason = ?
		WHERE id = (
			SELECT id FROM device_sessions
			WHERE serial = ? AND detached_at IS NULL
			ORDER BY attached_at DESC LIMIT 1
		)`
	res, err := r.db.ExecContext(ctx, query, formatTime(at), reason, serial)
	if err != nil {
		return fmt.Errorf("closing session for %s: %w", serial, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("closing session for %s: %w", serial, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoOpenSession, serial)
	}
	return nil
}

// CloseDangling closes every open session, returning how many were closed.
func (r *SQLiteRepository) CloseDangling(ctx context.Context, at time.Time) (int64, error) {
	const query = `UPDATE device_sessions SET detached_at = ?, detach_reason = ?
		WHERE detached_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, formatTime(at), ReasonDangling)
	if err != nil {
		return 0, fmt.Errorf("closing dangling sessions: %w", err)
	}
	return res.RowsAffected()
}

// ListRecent returns up to limit sessions, newest first.
func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]Session, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	const query = `SELECT id, serial, address, service_name, attached_at, detached_at, detach_reason
		FROM device_sessions ORDER BY attached_at DESC, id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(rows *sql.Rows) (*Session, error) {
	var (
		s          Session
		attachedAt string
		detachedAt sql.NullString
	)
	if err := rows.Scan(&s.ID, &s.Serial, &s.Address, &s.ServiceName,
		&attachedAt, &detachedAt, &s.DetachReason); err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	t, err := time.Parse(timeLayout, attachedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing attached_at of %s: %w", s.ID, err)
	}
	s.AttachedAt = t
	if detachedAt.Valid {
		t, err := time.Parse(timeLayout, detachedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing detached_at of %s: %w", s.ID, err)
		}
		s.DetachedAt = &t
	}
	return &s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
