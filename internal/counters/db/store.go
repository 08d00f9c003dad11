package db

import (
	"context"
	"fmt"

	"ms-salesreport/internal/counters"
	"ms-salesreport/internal/database"
	"ms-salesreport/internal/models"

	"github.com/uptrace/bun"
)

// Store keeps counters in the counters table, one row per key and service day.
type Store struct {
	Bun      *bun.DB
	Calendar counters.Calendar
}

func NewStore(db *bun.DB, calendar counters.Calendar) *Store {
	return &Store{Bun: db, Calendar: calendar}
}

// Increment upserts the row for today and adds qty in the same statement, so
// concurrent callers never lose an update.
func (s *Store) Increment(ctx context.Context, key string, qty int64) (models.Count, error) {
	if err := counters.CheckIncrement(key, qty); err != nil {
		return models.Count{}, err
	}
	count := models.Count{
		Key:        key,
		ServiceDay: s.Calendar.Today(),
		UpdatedAt:  s.Calendar.Now(),
	}
	err := s.Bun.NewRaw(`
		INSERT INTO counters (counter_key, service_day, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (counter_key, service_day)
		DO UPDATE SET value = counters.value + excluded.value, updated_at = excluded.updated_at
		RETURNING value`,
		count.Key, count.ServiceDay, qty, count.UpdatedAt,
	).Scan(ctx, &count.Value)
	if err != nil {
		return models.Count{}, database.Classify(err, fmt.Sprintf("increment counter %q", key))
	}
	return count, nil
}

// GetAllForToday never returns rows from an earlier service day.
func (s *Store) GetAllForToday(ctx context.Context) ([]models.Count, error) {
	var counts []models.Count
	err := s.Bun.NewSelect().
		Model(&counts).
		Where("service_day = ?", s.Calendar.Today()).
		Order("counter_key").
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "read counters")
	}
	return counts, nil
}

// PurgeBefore deletes rows of service days older than day and returns how
// many were removed.
func (s *Store) PurgeBefore(ctx context.Context, day string) (int64, error) {
	res, err := s.Bun.NewDelete().
		Model((*models.Count)(nil)).
		Where("service_day < ?", day).
		Exec(ctx)
	if err != nil {
		return 0, database.Classify(err, "purge counters before "+day)
	}
	return res.RowsAffected()
}
