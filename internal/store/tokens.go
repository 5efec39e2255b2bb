package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kuraberu-broadcast/internal/models"

	"github.com/google/uuid"
)

// TokenStore persists single-use response tokens. Token values are random
// (v4) UUIDs.
type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

const tokenColumns = `token, round_id, franchise_id, franchise_name, action, created_at,
	clicked_at, outcome, consumed`

func (s *TokenStore) Issue(ctx context.Context, roundID, franchiseID, franchiseName string, kind models.ActionKind) (*models.ResponseToken, error) {
	t := &models.ResponseToken{
		Token:         uuid.NewString(),
		RoundID:       roundID,
		FranchiseID:   franchiseID,
		FranchiseName: franchiseName,
		Action:        kind,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO broadcast_tokens (token, round_id, franchise_id, franchise_name, action, created_at, consumed)
		VALUES ($1, $2, $3, $4, $5, $6, false)`,
		t.Token, t.RoundID, t.FranchiseID, t.FranchiseName, string(t.Action), t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: issue token: %v", ErrQueryFailed, err)
	}
	return t, nil
}

func (s *TokenStore) Get(ctx context.Context, token string) (*models.ResponseToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM broadcast_tokens WHERE token = $1`, token)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: token", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get token: %v", ErrQueryFailed, err)
	}
	return t, nil
}

// TryConsume flips an unconsumed token to consumed in a single conditional
// update. ok is false when the token was already consumed; the returned row
// is then the stored one. Unknown tokens return ErrNotFound.
func (s *TokenStore) TryConsume(ctx context.Context, token string, outcome models.Outcome, at time.Time) (bool, *models.ResponseToken, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE broadcast_tokens
		SET consumed = true, clicked_at = $2, outcome = $3
		WHERE token = $1 AND consumed = false
		RETURNING `+tokenColumns, token, at, string(outcome))
	t, err := scanToken(row)
	if err == nil {
		return true, t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, nil, fmt.Errorf("%w: consume token: %v", ErrQueryFailed, err)
	}

	existing, err := s.Get(ctx, token)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (s *TokenStore) ListByRound(ctx context.Context, roundID string) ([]models.ResponseToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tokenColumns+`
		FROM broadcast_tokens
		WHERE round_id = $1
		ORDER BY franchise_id, action`, roundID)
	if err != nil {
		return nil, fmt.Errorf("%w: list tokens: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []models.ResponseToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan token: %v", ErrQueryFailed, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: token rows: %v", ErrQueryFailed, err)
	}
	return out, nil
}

// ListApplied returns consumed apply tokens across every round of a case,
// oldest click first.
func (s *TokenStore) ListApplied(ctx context.Context, caseID string) ([]models.AppliedFranchise, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.franchise_id, t.franchise_name, t.clicked_at
		FROM broadcast_tokens t
		JOIN broadcast_rounds r ON r.id = t.round_id
		WHERE r.case_id = $1 AND t.action = $2 AND t.outcome = $3
		ORDER BY t.clicked_at`,
		caseID, string(models.ActionApply), string(models.OutcomeApplied))
	if err != nil {
		return nil, fmt.Errorf("%w: list applied: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []models.AppliedFranchise
	for rows.Next() {
		var a models.AppliedFranchise
		if err := rows.Scan(&a.FranchiseID, &a.FranchiseName, &a.AppliedAt); err != nil {
			return nil, fmt.Errorf("%w: scan applied: %v", ErrQueryFailed, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: applied rows: %v", ErrQueryFailed, err)
	}
	return out, nil
}

func scanToken(row rowScanner) (*models.ResponseToken, error) {
	var (
		t         models.ResponseToken
		action    string
		clickedAt sql.NullTime
		outcome   sql.NullString
	)
	if err := row.Scan(
		&t.Token, &t.RoundID, &t.FranchiseID, &t.FranchiseName, &action, &t.CreatedAt,
		&clickedAt, &outcome, &t.Consumed,
	); err != nil {
		return nil, err
	}
	t.Action = models.ActionKind(action)
	if clickedAt.Valid {
		ts := clickedAt.Time
		t.ClickedAt = &ts
	}
	if outcome.Valid {
		o := models.Outcome(outcome.String)
		t.Outcome = &o
	}
	return &t, nil
}
