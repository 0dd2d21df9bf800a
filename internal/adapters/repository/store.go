// Package repository defines the record persistence contract and its
// in-memory and PostgreSQL implementations.
package repository

import (
	"context"
	"slices"
	"time"

	"github.com/okian/surgilog/internal/domain/model"
)

// Filter is the record selection accepted by Query.
type Filter = model.Filter

// Store provides read/write access to competency records.
type Store interface {
	// Insert stores a new record at revision 1 and stamps its timestamps.
	// Returns ErrConflict if the id is taken.
	Insert(ctx context.Context, rec model.Record) (model.Record, error)

	// Load returns the record with id, including soft-deleted ones.
	// Returns ErrNotFound if the id is unknown.
	Load(ctx context.Context, id string) (model.Record, error)

	// Save replaces the stored record if its revision equals rec.Revision,
	// then returns it with Revision+1. Returns ErrConflict on a stale revision
	// and ErrNotFound if the id is unknown.
	Save(ctx context.Context, rec model.Record) (model.Record, error)

	// Query returns matching records ordered by date, then id.
	Query(ctx context.Context, f Filter) ([]model.Record, error)

	// Count returns the number of non-deleted records.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func sortRecords(recs []model.Record) {
	slices.SortFunc(recs, func(a, b model.Record) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
