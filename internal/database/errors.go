package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ms-salesreport/internal/models"

	"github.com/lib/pq"
)

// Classify maps a driver error onto the engine's error taxonomy: missing
// rows become NOT_FOUND and unique violations CONFLICT.
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	case IsUniqueViolation(err):
		return fmt.Errorf("%s: %v: %w", op, err, models.ErrConflict)
	default:
		return models.StorageError(op, err)
	}
}

// IsUniqueViolation recognises unique-constraint failures from PostgreSQL
// (SQLSTATE 23505) and SQLite.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
