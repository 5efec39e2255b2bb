package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kuraberu-broadcast/internal/models"

	"github.com/lib/pq"
)

// CaseStore reads cases. It never selects customer contact columns.
type CaseStore struct {
	db           *sql.DB
	defaultQuota int
}

func NewCaseStore(db *sql.DB) *CaseStore {
	return &CaseStore{db: db, defaultQuota: models.DefaultQuota}
}

// WithDefaultQuota sets the quota given to cases whose row has none.
func (s *CaseStore) WithDefaultQuota(n int) *CaseStore {
	if n > 0 {
		s.defaultQuota = n
	}
	return s
}

func (s *CaseStore) Get(ctx context.Context, id string) (*models.Case, error) {
	var (
		c                      models.Case
		province, municipality sql.NullString
		address, propertyType  sql.NullString
		floors, quota          sql.NullInt64
		workItems              []string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, province, municipality, address, property_type, floors, work_items, quota
		FROM cases
		WHERE id = $1`, id).Scan(
		&c.ID, &province, &municipality, &address, &propertyType, &floors, pq.Array(&workItems), &quota,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: case %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get case: %v", ErrQueryFailed, err)
	}

	c.Province = province.String
	c.Municipality = municipality.String
	c.Address = address.String
	c.PropertyType = models.PropertyType(propertyType.String)
	c.Floors = int(floors.Int64)
	c.WorkItems = workItems
	c.Quota = int(quota.Int64)
	if c.Quota <= 0 {
		c.Quota = s.defaultQuota
	}
	return &c, nil
}
