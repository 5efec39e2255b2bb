package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kuraberu-broadcast/internal/common/database"
	"kuraberu-broadcast/internal/models"
)

// AdmitOutcome is the result of a quota-checked delivery insert.
type AdmitOutcome string

const (
	AdmitRecorded         AdmitOutcome = "admitted"
	AdmitAlreadyDelivered AdmitOutcome = "already_delivered"
	AdmitQuotaExceeded    AdmitOutcome = "quota_exceeded"
)

type AdmitResult struct {
	Outcome   AdmitOutcome
	Quota     int
	Delivered int // holders after the call
}

type Ledger struct {
	db           *sql.DB
	defaultQuota int
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, defaultQuota: models.DefaultQuota}
}

// WithDefaultQuota sets the quota enforced for cases whose row has none.
func (l *Ledger) WithDefaultQuota(n int) *Ledger {
	if n > 0 {
		l.defaultQuota = n
	}
	return l
}

func (l *Ledger) ListByCase(ctx context.Context, caseID string) ([]models.DeliveryRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT case_id, franchise_id, source, delivered_at
		FROM deliveries
		WHERE case_id = $1
		ORDER BY delivered_at`, caseID)
	if err != nil {
		return nil, fmt.Errorf("%w: list deliveries: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []models.DeliveryRecord
	for rows.Next() {
		var r models.DeliveryRecord
		if err := rows.Scan(&r.CaseID, &r.FranchiseID, &r.Source, &r.DeliveredAt); err != nil {
			return nil, fmt.Errorf("%w: scan delivery: %v", ErrQueryFailed, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: delivery rows: %v", ErrQueryFailed, err)
	}
	return out, nil
}

// AdmitWithinQuota appends a delivery record only while the case has a free
// slot. The case row is locked for the duration so concurrent admissions for
// one case serialize.
func (l *Ledger) AdmitWithinQuota(ctx context.Context, caseID, franchiseID, source string) (*AdmitResult, error) {
	res := &AdmitResult{}

	err := database.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		var quota sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT quota FROM cases WHERE id = $1 FOR UPDATE`, caseID).Scan(&quota)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: case %s", ErrNotFound, caseID)
		}
		if err != nil {
			return fmt.Errorf("%w: lock case: %v", ErrQueryFailed, err)
		}
		res.Quota = int(quota.Int64)
		if res.Quota <= 0 {
			res.Quota = l.defaultQuota
		}

		var held bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM deliveries WHERE case_id = $1 AND franchise_id = $2)`,
			caseID, franchiseID).Scan(&held); err != nil {
			return fmt.Errorf("%w: holder check: %v", ErrQueryFailed, err)
		}

		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM deliveries WHERE case_id = $1`, caseID).Scan(&res.Delivered); err != nil {
			return fmt.Errorf("%w: count deliveries: %v", ErrQueryFailed, err)
		}

		switch {
		case held:
			res.Outcome = AdmitAlreadyDelivered
			return nil
		case res.Delivered >= res.Quota:
			res.Outcome = AdmitQuotaExceeded
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO deliveries (case_id, franchise_id, source, delivered_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (case_id, franchise_id) DO NOTHING`,
			caseID, franchiseID, source, time.Now().UTC()); err != nil {
			return fmt.Errorf("%w: insert delivery: %v", ErrQueryFailed, err)
		}
		res.Delivered++
		res.Outcome = AdmitRecorded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
