package store

import (
	"context"
	"database/sql"
	"fmt"

	"kuraberu-broadcast/internal/models"

	"github.com/lib/pq"
)

// PostgresDirectory matches active franchises with at least one declared
// service area containing the requested area as a substring.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) ActiveInArea(ctx context.Context, area string) ([]models.Franchise, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, email, active, service_areas
		FROM franchises f
		WHERE f.active
		  AND EXISTS (
			SELECT 1 FROM unnest(f.service_areas) AS a
			WHERE strpos(a, $1) > 0
		  )
		ORDER BY id`, area)
	if err != nil {
		return nil, fmt.Errorf("%w: directory lookup: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []models.Franchise
	for rows.Next() {
		var f models.Franchise
		if err := rows.Scan(&f.ID, &f.Name, &f.Email, &f.Active, pq.Array(&f.ServiceAreas)); err != nil {
			return nil, fmt.Errorf("%w: scan franchise: %v", ErrQueryFailed, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: directory rows: %v", ErrQueryFailed, err)
	}
	return out, nil
}
