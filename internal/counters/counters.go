// Package counters keeps the live per-route/stop/time passenger tallies shown
// to sellers. Counts are a projection of ticket sales and are only loosely
// consistent with them; tickets and report totals remain authoritative.
package counters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-salesreport/internal/clock"
	"ms-salesreport/internal/models"
)

// Store is implemented by the Redis and SQL backends.
type Store interface {
	Increment(ctx context.Context, key string, qty int64) (models.Count, error)
	GetAllForToday(ctx context.Context) ([]models.Count, error)
}

// Calendar resolves the current service day.
type Calendar struct {
	Clock    clock.Clock
	Location *time.Location
}

func NewCalendar(c clock.Clock, loc *time.Location) Calendar {
	if c == nil {
		c = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{Clock: c, Location: loc}
}

func (c Calendar) Today() string {
	return clock.ServiceDay(c.Clock.Now(), c.Location)
}

func (c Calendar) Now() time.Time {
	return c.Clock.Now()
}

// CheckIncrement rejects an empty key or a quantity below one.
func CheckIncrement(key string, qty int64) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("counter key is empty: %w", models.ErrValidation)
	}
	if qty < 1 {
		return fmt.Errorf("counter %q: quantity %d must be at least 1: %w", key, qty, models.ErrValidation)
	}
	return nil
}
