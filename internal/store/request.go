package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Outcome is what happened to a processing request.
type Outcome string

const (
	// OutcomeApplied means the result became the lane's current buffer.
	OutcomeApplied Outcome = "applied"
	// OutcomeDiscarded means the result arrived after the lane moved on.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeFailed means the service returned an error.
	OutcomeFailed Outcome = "failed"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// Request is one logged processing request.
type Request struct {
	ID         string
	Lane       string
	Epoch      uint64
	SessionID  string
	Algorithm  string
	Params     string
	Outcome    Outcome
	Error      string
	DurationMs int64
	CreatedAt  time.Time
}

// RequestRepository provides access to the request log.
type RequestRepository struct {
	db *sql.DB
}

// Requests returns the request repository for this store.
func (s *Store) Requests() *RequestRepository {
	return &RequestRepository{db: s.db}
}

// Record inserts a request. A missing ID is generated.
func (r *RequestRepository) Record(req *Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Params == "" {
		req.Params = "{}"
	}
	req.CreatedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO requests (id, lane, epoch, session_id, algorithm, params, outcome, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Lane, int64(req.Epoch), req.SessionID, req.Algorithm, req.Params,
		string(req.Outcome), req.Error, req.DurationMs, req.CreatedAt,
	)
	return err
}

// GetByID retrieves a request by its ID.
func (r *RequestRepository) GetByID(id string) (*Request, error) {
	row := r.db.QueryRow(
		`SELECT id, lane, epoch, session_id, algorithm, params, outcome, error, duration_ms, created_at
		 FROM requests WHERE id = ?`,
		id,
	)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

// List returns the newest requests first. An empty lane matches every lane;
// limit <= 0 uses DefaultListLimit.
func (r *RequestRepository) List(lane string, limit int) ([]*Request, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.Query(
		`SELECT id, lane, epoch, session_id, algorithm, params, outcome, error, duration_ms, created_at
		 FROM requests WHERE (? = '' OR lane = ?)
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		lane, lane, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return requests, nil
}

// Counts returns the number of requests per outcome for a lane, or for all
// lanes when lane is empty.
func (r *RequestRepository) Counts(lane string) (map[Outcome]int, error) {
	rows, err := r.db.Query(
		`SELECT outcome, COUNT(*) FROM requests WHERE (? = '' OR lane = ?) GROUP BY outcome`,
		lane, lane,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[Outcome(outcome)] = n
	}

	return counts, rows.Err()
}

func scanRequest(row scanner) (*Request, error) {
	req := &Request{}
	var epoch int64
	var outcome string

	err := row.Scan(&req.ID, &req.Lane, &epoch, &req.SessionID, &req.Algorithm, &req.Params,
		&outcome, &req.Error, &req.DurationMs, &req.CreatedAt)
	if err != nil {
		return nil, err
	}

	req.Epoch = uint64(epoch)
	req.Outcome = Outcome(outcome)
	return req, nil
}
