package database

import (
	"context"
	"fmt"

	"ms-salesreport/internal/models"

	"github.com/uptrace/bun"
)

// CreateSchema creates the reports, tickets, counters and users tables from
// the models. PostgreSQL deployments use the SQL migrations instead.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{
		(*models.Report)(nil),
		(*models.Ticket)(nil),
		(*models.Count)(nil),
		(*models.User)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []*bun.CreateIndexQuery{
		db.NewCreateIndex().Model((*models.Ticket)(nil)).Index("tickets_report_id_idx").Column("report_id").IfNotExists(),
		db.NewCreateIndex().Model((*models.Report)(nil)).Index("reports_username_status_idx").Column("username", "status").IfNotExists(),
		db.NewCreateIndex().Model((*models.Count)(nil)).Index("counters_service_day_idx").Column("service_day").IfNotExists(),
	}
	for _, q := range indexes {
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
