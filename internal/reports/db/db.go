package db

import (
	"context"
	"fmt"

	"ms-salesreport/internal/database"
	"ms-salesreport/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// DB is the reports table. Every method takes the bun.IDB to run on so the
// caller can place it inside a transaction; nil means the pool.
type DB struct {
	Bun *bun.DB
}

func (d *DB) conn(idb bun.IDB) bun.IDB {
	if idb == nil {
		return d.Bun
	}
	return idb
}

func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}

func (d *DB) InsertReport(ctx context.Context, idb bun.IDB, report *models.Report) error {
	_, err := d.conn(idb).NewInsert().Model(report).Returning("id").Exec(ctx)
	if err != nil {
		return database.Classify(err, "insert report")
	}
	return nil
}

func (d *DB) UpdateReport(ctx context.Context, idb bun.IDB, report *models.Report) error {
	res, err := d.conn(idb).NewUpdate().
		Model(report).
		WherePK().
		Exec(ctx)
	if err != nil {
		return database.Classify(err, fmt.Sprintf("update report #%d", report.ID))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update report #%d: %w", report.ID, models.ErrNotFound)
	}
	return nil
}

// GetActiveReport returns the OPEN or PARTIAL report, if any.
func (d *DB) GetActiveReport(ctx context.Context, idb bun.IDB) (*models.Report, error) {
	var report models.Report
	err := d.conn(idb).NewSelect().
		Model(&report).
		Where("active_slot = ?", models.ActiveSlot).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "active report")
	}
	return &report, nil
}

// GetReportByID loads one report. forUpdate row-locks it on PostgreSQL;
// SQLite already serializes writers.
func (d *DB) GetReportByID(ctx context.Context, idb bun.IDB, id int64, forUpdate bool) (*models.Report, error) {
	var report models.Report
	q := d.conn(idb).NewSelect().
		Model(&report).
		Where("id = ?", id)
	if forUpdate && d.Bun.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, database.Classify(err, fmt.Sprintf("report #%d", id))
	}
	return &report, nil
}

// GetLatestClosedByUser returns up to limit CLOSED reports of username, most
// recently closed first.
func (d *DB) GetLatestClosedByUser(ctx context.Context, idb bun.IDB, username string, limit int) ([]models.Report, error) {
	var reports []models.Report
	err := d.conn(idb).NewSelect().
		Model(&reports).
		Where("username = ?", username).
		Where("status = ?", models.ReportClosed).
		OrderExpr("closed_at DESC, id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, "latest reports of "+username)
	}
	return reports, nil
}
