package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kuraberu-broadcast/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type RoundStore struct {
	db *sql.DB
}

func NewRoundStore(db *sql.DB) *RoundStore {
	return &RoundStore{db: db}
}

const roundColumns = `id, case_id, created_at, notified_count, quota, delivered_count,
	remaining_slots, fee, applicants, status`

// Create inserts r, assigning an id and creation time when unset.
func (s *RoundStore) Create(ctx context.Context, r *models.BroadcastRound) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = models.RoundInProgress
	}
	if r.Applicants == nil {
		r.Applicants = []string{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO broadcast_rounds (`+roundColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.CaseID, r.CreatedAt, r.NotifiedCount, r.Quota, r.DeliveredCount,
		r.RemainingSlots, r.Fee, pq.Array(r.Applicants), string(r.Status),
	)
	if err != nil {
		return fmt.Errorf("%w: create round: %v", ErrQueryFailed, err)
	}
	return nil
}

func (s *RoundStore) SetNotifiedCount(ctx context.Context, id string, n int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE broadcast_rounds SET notified_count = $2 WHERE id = $1`, id, n)
	if err != nil {
		return fmt.Errorf("%w: set notified count: %v", ErrQueryFailed, err)
	}
	return requireOneRow(res, "round", id)
}

func (s *RoundStore) Get(ctx context.Context, id string) (*models.BroadcastRound, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM broadcast_rounds WHERE id = $1`, id)
	r, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: round %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get round: %v", ErrQueryFailed, err)
	}
	return r, nil
}

func (s *RoundStore) ListByCase(ctx context.Context, caseID string) ([]models.BroadcastRound, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roundColumns+`
		FROM broadcast_rounds
		WHERE case_id = $1
		ORDER BY created_at`, caseID)
	if err != nil {
		return nil, fmt.Errorf("%w: list rounds: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []models.BroadcastRound
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan round: %v", ErrQueryFailed, err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: round rows: %v", ErrQueryFailed, err)
	}
	return out, nil
}

// AppendApplicant adds a franchise name to the round's applicant list in one
// statement, so concurrent appends never overwrite each other.
func (s *RoundStore) AppendApplicant(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE broadcast_rounds
		SET applicants = array_append(applicants, $2)
		WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("%w: append applicant: %v", ErrQueryFailed, err)
	}
	return requireOneRow(res, "round", id)
}

// CloseStale marks in-progress rounds created before cutoff as closed.
func (s *RoundStore) CloseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE broadcast_rounds
		SET status = $1
		WHERE status = $2 AND created_at < $3`,
		string(models.RoundClosed), string(models.RoundInProgress), cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: close rounds: %v", ErrQueryFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: close rounds: %v", ErrQueryFailed, err)
	}
	return n, nil
}

func scanRound(row rowScanner) (*models.BroadcastRound, error) {
	var (
		r      models.BroadcastRound
		status string
	)
	if err := row.Scan(
		&r.ID, &r.CaseID, &r.CreatedAt, &r.NotifiedCount, &r.Quota, &r.DeliveredCount,
		&r.RemainingSlots, &r.Fee, pq.Array(&r.Applicants), &status,
	); err != nil {
		return nil, err
	}
	r.Status = models.RoundStatus(status)
	if r.Applicants == nil {
		r.Applicants = []string{}
	}
	return &r, nil
}

func requireOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrQueryFailed, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return nil
}
