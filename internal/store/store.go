// Package store holds the Postgres, Redis and Elasticsearch adapters behind
// the case store, franchise directory, delivery ledger, rounds and tokens.
package store

import (
	"context"
	"errors"

	"kuraberu-broadcast/internal/models"
)

var (
	ErrNotFound    = errors.New("NOT_FOUND")
	ErrQueryFailed = errors.New("DATABASE_QUERY_FAILED")
)

// Directory looks up active franchises serving an area.
type Directory interface {
	ActiveInArea(ctx context.Context, area string) ([]models.Franchise, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
