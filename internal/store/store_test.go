package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"kuraberu-broadcast/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Helpers
// ==========================

var tokenCols = []string{
	"token", "round_id", "franchise_id", "franchise_name", "action", "created_at",
	"clicked_at", "outcome", "consumed",
}

var roundCols = []string{
	"id", "case_id", "created_at", "notified_count", "quota", "delivered_count",
	"remaining_slots", "fee", "applicants", "status",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// ==========================
// Cases
// ==========================

func TestCaseStore_Get(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT id, province, municipality, address, property_type, floors, work_items, quota`).
		WithArgs("C-001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "province", "municipality", "address", "property_type", "floors", "work_items", "quota"}).
			AddRow("C-001", "神奈川県", "横浜市港北区", "神奈川県横浜市港北区日吉1-2-3", "アパート・マンション", 3, "{外壁塗装,屋根塗装}", nil))

	c, err := NewCaseStore(db).Get(context.Background(), "C-001")
	require.NoError(t, err)

	assert.Equal(t, "横浜市港北区", c.Municipality)
	assert.Equal(t, models.PropertyApartment, c.PropertyType)
	assert.Equal(t, []string{"外壁塗装", "屋根塗装"}, c.WorkItems)
	assert.Equal(t, models.DefaultQuota, c.Quota)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseStore_GetConfiguredDefaultQuota(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`FROM cases`).
		WithArgs("C-002").
		WillReturnRows(sqlmock.NewRows([]string{"id", "province", "municipality", "address", "property_type", "floors", "work_items", "quota"}).
			AddRow("C-002", "東京都", "渋谷区", "", "戸建て住宅", 2, "{}", 0))

	c, err := NewCaseStore(db).WithDefaultQuota(6).Get(context.Background(), "C-002")
	require.NoError(t, err)
	assert.Equal(t, 6, c.Quota)
	assert.Empty(t, c.WorkItems)
}

func TestCaseStore_GetNotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`FROM cases`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := NewCaseStore(db).Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Directory
// ==========================

func TestPostgresDirectory_ActiveInArea(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`FROM franchises f`).
		WithArgs("横浜市港北区").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "active", "service_areas"}).
			AddRow("F1", "港北塗装", "f1@example.jp", true, "{横浜市港北区,横浜市都筑区}").
			AddRow("F2", "日吉リフォーム", "f2@example.jp", true, "{横浜市港北区}"))

	got, err := NewPostgresDirectory(db).ActiveInArea(context.Background(), "横浜市港北区")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "F1", got[0].ID)
	assert.Equal(t, []string{"横浜市港北区", "横浜市都筑区"}, got[0].ServiceAreas)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Ledger
// ==========================

func TestLedger_ListByCase(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM deliveries`).
		WithArgs("C-001").
		WillReturnRows(sqlmock.NewRows([]string{"case_id", "franchise_id", "source", "delivered_at"}).
			AddRow("C-001", "F1", "targeted", now))

	got, err := NewLedger(db).ListByCase(context.Background(), "C-001")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "F1", got[0].FranchiseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectAdmitPrelude(mock sqlmock.Sqlmock, quota interface{}, held bool, delivered int) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quota FROM cases WHERE id = $1 FOR UPDATE`)).
		WithArgs("C-001").
		WillReturnRows(sqlmock.NewRows([]string{"quota"}).AddRow(quota))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("C-001", "F9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(held))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM deliveries`)).
		WithArgs("C-001").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(delivered))
}

func TestLedger_AdmitWithinQuota_Records(t *testing.T) {
	db, mock := newMock(t)

	expectAdmitPrelude(mock, 4, false, 3)
	mock.ExpectExec(`INSERT INTO deliveries`).
		WithArgs("C-001", "F9", "broadcast", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := NewLedger(db).AdmitWithinQuota(context.Background(), "C-001", "F9", "broadcast")
	require.NoError(t, err)
	assert.Equal(t, AdmitRecorded, res.Outcome)
	assert.Equal(t, 4, res.Delivered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_AdmitWithinQuota_Full(t *testing.T) {
	db, mock := newMock(t)

	expectAdmitPrelude(mock, nil, false, 4)
	mock.ExpectCommit()

	res, err := NewLedger(db).AdmitWithinQuota(context.Background(), "C-001", "F9", "broadcast")
	require.NoError(t, err)
	assert.Equal(t, AdmitQuotaExceeded, res.Outcome)
	assert.Equal(t, models.DefaultQuota, res.Quota)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_AdmitWithinQuota_AlreadyHeld(t *testing.T) {
	db, mock := newMock(t)

	expectAdmitPrelude(mock, 4, true, 4)
	mock.ExpectCommit()

	res, err := NewLedger(db).AdmitWithinQuota(context.Background(), "C-001", "F9", "broadcast")
	require.NoError(t, err)
	assert.Equal(t, AdmitAlreadyDelivered, res.Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_AdmitWithinQuota_UnknownCase(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT quota FROM cases`).WithArgs("C-001").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := NewLedger(db).AdmitWithinQuota(context.Background(), "C-001", "F9", "broadcast")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Rounds
// ==========================

func TestRoundStore_CreateAssignsID(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO broadcast_rounds`).
		WithArgs(sqlmock.AnyArg(), "C-001", sqlmock.AnyArg(), 0, 4, 1, 3, 20000, sqlmock.AnyArg(), "in_progress").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := &models.BroadcastRound{CaseID: "C-001", Quota: 4, DeliveredCount: 1, RemainingSlots: 3, Fee: 20000}
	require.NoError(t, NewRoundStore(db).Create(context.Background(), r))

	assert.Len(t, r.ID, 36)
	assert.Equal(t, models.RoundInProgress, r.Status)
	assert.False(t, r.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundStore_AppendApplicant(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`SET applicants = array_append`).
		WithArgs("R1", "港北塗装").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET applicants = array_append`).
		WithArgs("R404", "港北塗装").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewRoundStore(db)
	assert.NoError(t, s.AppendApplicant(context.Background(), "R1", "港北塗装"))
	assert.True(t, errors.Is(s.AppendApplicant(context.Background(), "R404", "港北塗装"), ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundStore_GetAndList(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM broadcast_rounds WHERE id`).
		WithArgs("R1").
		WillReturnRows(sqlmock.NewRows(roundCols).
			AddRow("R1", "C-001", now, 3, 4, 1, 3, 20000, "{港北塗装}", "in_progress"))
	mock.ExpectQuery(`FROM broadcast_rounds WHERE id`).
		WithArgs("R404").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`WHERE case_id = \$1`).
		WithArgs("C-001").
		WillReturnRows(sqlmock.NewRows(roundCols).
			AddRow("R1", "C-001", now, 3, 4, 1, 3, 20000, "{}", "closed"))

	s := NewRoundStore(db)

	r, err := s.Get(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, []string{"港北塗装"}, r.Applicants)
	assert.Equal(t, 3, r.NotifiedCount)

	_, err = s.Get(context.Background(), "R404")
	assert.True(t, errors.Is(err, ErrNotFound))

	list, err := s.ListByCase(context.Background(), "C-001")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.RoundClosed, list[0].Status)
	assert.Equal(t, []string{}, list[0].Applicants)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoundStore_CloseStale(t *testing.T) {
	db, mock := newMock(t)
	cutoff := time.Now().Add(-168 * time.Hour)

	mock.ExpectExec(`UPDATE broadcast_rounds`).
		WithArgs("closed", "in_progress", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewRoundStore(db).CloseStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Tokens
// ==========================

func TestTokenStore_Issue(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO broadcast_tokens`).
		WithArgs(sqlmock.AnyArg(), "R1", "F1", "港北塗装", "apply", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tok, err := NewTokenStore(db).Issue(context.Background(), "R1", "F1", "港北塗装", models.ActionApply)
	require.NoError(t, err)
	assert.Len(t, tok.Token, 36)
	assert.False(t, tok.Consumed)
	assert.Nil(t, tok.Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStore_TryConsume(t *testing.T) {
	now := time.Now().UTC()

	t.Run("first consume wins", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`UPDATE broadcast_tokens\s+SET consumed = true`).
			WithArgs("tok-1", now, "applied").
			WillReturnRows(sqlmock.NewRows(tokenCols).
				AddRow("tok-1", "R1", "F1", "港北塗装", "apply", now, now, "applied", true))

		ok, tok, err := NewTokenStore(db).TryConsume(context.Background(), "tok-1", models.OutcomeApplied, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, tok.Consumed)
		require.NotNil(t, tok.Outcome)
		assert.Equal(t, models.OutcomeApplied, *tok.Outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replay is a no-op", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`UPDATE broadcast_tokens`).
			WithArgs("tok-1", now, "applied").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`FROM broadcast_tokens WHERE token`).
			WithArgs("tok-1").
			WillReturnRows(sqlmock.NewRows(tokenCols).
				AddRow("tok-1", "R1", "F1", "港北塗装", "apply", now, now, "applied", true))

		ok, tok, err := NewTokenStore(db).TryConsume(context.Background(), "tok-1", models.OutcomeApplied, now)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, tok.Consumed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown token", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`UPDATE broadcast_tokens`).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`FROM broadcast_tokens WHERE token`).WillReturnError(sql.ErrNoRows)

		ok, _, err := NewTokenStore(db).TryConsume(context.Background(), "nope", models.OutcomeNotified, now)
		assert.False(t, ok)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenStore_ListApplied(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`JOIN broadcast_rounds r`).
		WithArgs("C-001", "apply", "applied").
		WillReturnRows(sqlmock.NewRows([]string{"franchise_id", "franchise_name", "clicked_at"}).
			AddRow("F1", "港北塗装", now))

	got, err := NewTokenStore(db).ListApplied(context.Background(), "C-001")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "F1", got[0].FranchiseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStore_ListByRound(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`WHERE round_id = \$1`).
		WithArgs("R1").
		WillReturnRows(sqlmock.NewRows(tokenCols).
			AddRow("a", "R1", "F1", "港北塗装", "apply", now, nil, nil, false).
			AddRow("b", "R1", "F1", "港北塗装", "interest", now, now, "notified", true))

	got, err := NewTokenStore(db).ListByRound(context.Background(), "R1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].ClickedAt)
	require.NotNil(t, got[1].Outcome)
	assert.Equal(t, models.OutcomeNotified, *got[1].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}
