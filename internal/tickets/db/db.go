package db

import (
	"context"
	"fmt"
	"time"

	"ms-salesreport/internal/database"
	"ms-salesreport/internal/models"

	"github.com/uptrace/bun"
)

// DB is the tickets table. As with reports, a nil bun.IDB means the pool.
type DB struct {
	Bun *bun.DB
}

func (d *DB) conn(idb bun.IDB) bun.IDB {
	if idb == nil {
		return d.Bun
	}
	return idb
}

// InsertTickets writes the batch in one statement and fills in the IDs.
func (d *DB) InsertTickets(ctx context.Context, idb bun.IDB, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	if _, err := d.conn(idb).NewInsert().Model(&tickets).Returning("id").Exec(ctx); err != nil {
		return database.Classify(err, fmt.Sprintf("insert %d tickets", len(tickets)))
	}
	return nil
}

func (d *DB) GetTicketByID(ctx context.Context, idb bun.IDB, id int64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.conn(idb).NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, fmt.Sprintf("ticket #%d", id))
	}
	return &ticket, nil
}

// MarkNull flips is_null on a ticket that is not yet nullified. It reports
// false when the flag was already set.
func (d *DB) MarkNull(ctx context.Context, idb bun.IDB, id int64, at time.Time) (bool, error) {
	res, err := d.conn(idb).NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("is_null = ?", true).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("is_null = ?", false).
		Exec(ctx)
	if err != nil {
		return false, database.Classify(err, fmt.Sprintf("nullify ticket #%d", id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, database.Classify(err, fmt.Sprintf("nullify ticket #%d", id))
	}
	return n == 1, nil
}

func (d *DB) GetTicketsByReport(ctx context.Context, idb bun.IDB, reportID int64) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.conn(idb).NewSelect().
		Model(&tickets).
		Where("report_id = ?", reportID).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, database.Classify(err, fmt.Sprintf("tickets of report #%d", reportID))
	}
	return tickets, nil
}
