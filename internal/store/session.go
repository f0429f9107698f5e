package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Session records a still image accepted by the remote service.
type Session struct {
	ID        string
	Filename  string
	Width     int
	Height    int
	Resized   bool
	CreatedAt time.Time
	ClearedAt *time.Time
}

// Active reports whether the session has not been cleared.
func (s *Session) Active() bool {
	return s.ClearedAt == nil
}

// SessionRepository provides access to recorded sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session.
func (r *SessionRepository) Create(sess *Session) error {
	sess.CreatedAt = time.Now()
	sess.ClearedAt = nil

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, filename, width, height, resized, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Filename, sess.Width, sess.Height, sess.Resized, sess.CreatedAt,
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, filename, width, height, resized, created_at, cleared_at
		 FROM sessions WHERE id = ?`,
		id,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List retrieves all sessions, newest first.
func (r *SessionRepository) List() ([]*Session, error) {
	rows, err := r.db.Query(
		`SELECT id, filename, width, height, resized, created_at, cleared_at
		 FROM sessions ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// MarkCleared records that the session was dropped by a reset or replaced by
// a newer upload.
func (r *SessionRepository) MarkCleared(id string) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET cleared_at = ? WHERE id = ? AND cleared_at IS NULL`,
		time.Now(), id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	sess := &Session{}
	var cleared sql.NullTime

	err := row.Scan(&sess.ID, &sess.Filename, &sess.Width, &sess.Height, &sess.Resized, &sess.CreatedAt, &cleared)
	if err != nil {
		return nil, err
	}

	if cleared.Valid {
		t := cleared.Time
		sess.ClearedAt = &t
	}
	return sess, nil
}
