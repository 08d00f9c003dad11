// Package reports owns the report lifecycle: at most one active report,
// OPEN -> PARTIAL -> CLOSED (or OPEN -> CLOSED), and the running totals that
// ticket sales and nullifications feed.
package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-salesreport/internal/clock"
	"ms-salesreport/internal/locks"
	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/models"

	"github.com/uptrace/bun"
)

const (
	DefaultLatestLimit = 2
	MaxLatestLimit     = 50
)

type ReportDBLayer interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error
	InsertReport(ctx context.Context, idb bun.IDB, report *models.Report) error
	UpdateReport(ctx context.Context, idb bun.IDB, report *models.Report) error
	GetActiveReport(ctx context.Context, idb bun.IDB) (*models.Report, error)
	GetReportByID(ctx context.Context, idb bun.IDB, id int64, forUpdate bool) (*models.Report, error)
	GetLatestClosedByUser(ctx context.Context, idb bun.IDB, username string, limit int) ([]models.Report, error)
}

type Ledger struct {
	DB          ReportDBLayer
	Locks       locks.Locker
	Clock       clock.Clock
	Logger      *logger.Logger
	LatestLimit int
}

func NewLedger(db ReportDBLayer, locker locks.Locker, c clock.Clock, log *logger.Logger) *Ledger {
	if locker == nil {
		locker = locks.NewLocal()
	}
	if c == nil {
		c = clock.Real()
	}
	return &Ledger{DB: db, Locks: locker, Clock: c, Logger: log, LatestLimit: DefaultLatestLimit}
}

// StartReport opens a report for username. The active-report check runs in
// the inserting transaction and the active_slot unique index backs it up, so
// two concurrent starts cannot both succeed.
func (l *Ledger) StartReport(ctx context.Context, username string, timetable models.Timetable) (*models.Report, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required: %w", models.ErrValidation)
	}
	if !timetable.Valid() {
		return nil, fmt.Errorf("unknown timetable %q: %w", timetable, models.ErrValidation)
	}

	unlock, err := l.Locks.Lock(ctx, locks.ActiveKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	slot := models.ActiveSlot
	report := &models.Report{
		Username:   username,
		Timetable:  timetable,
		Status:     models.ReportOpen,
		ActiveSlot: &slot,
		CreatedAt:  l.Clock.Now(),
	}

	err = l.DB.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		active, err := l.DB.GetActiveReport(ctx, tx)
		if err == nil {
			return fmt.Errorf("report #%d of %s is still %s: %w", active.ID, active.Username, active.Status, models.ErrConflict)
		}
		if !errors.Is(err, models.ErrNotFound) {
			return err
		}
		return l.DB.InsertReport(ctx, tx, report)
	})
	if err != nil {
		return nil, err
	}

	l.Logger.LogReport("START", report.ID, fmt.Sprintf("opened by %s (%s timetable)", username, timetable))
	return report, nil
}

// GetActiveReport returns NOT_FOUND when no session is open.
func (l *Ledger) GetActiveReport(ctx context.Context) (*models.Report, error) {
	return l.DB.GetActiveReport(ctx, nil)
}

func (l *Ledger) GetReport(ctx context.Context, reportID int64) (*models.Report, error) {
	return l.DB.GetReportByID(ctx, nil, reportID, false)
}

// InTx runs fn on reportID while holding the report's lock inside one
// transaction. The report is loaded FOR UPDATE and persisted by whatever fn
// records through RecordTicketEvent or saves itself.
func (l *Ledger) InTx(ctx context.Context, reportID int64, fn func(ctx context.Context, tx bun.IDB, report *models.Report) error) error {
	unlock, err := l.Locks.Lock(ctx, locks.ReportKey(reportID))
	if err != nil {
		return err
	}
	defer unlock()

	return l.DB.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		report, err := l.DB.GetReportByID(ctx, tx, reportID, true)
		if err != nil {
			return err
		}
		return fn(ctx, tx, report)
	})
}

// PartialClose snapshots the counted cash and the ticket count. Tickets sold
// up to this moment can no longer be nullified.
func (l *Ledger) PartialClose(ctx context.Context, reportID int64, countedCash int64) (*models.Report, error) {
	if countedCash < 0 {
		return nil, fmt.Errorf("counted cash %d is negative: %w", countedCash, models.ErrValidation)
	}

	var closed *models.Report
	err := l.InTx(ctx, reportID, func(ctx context.Context, tx bun.IDB, report *models.Report) error {
		if report.Status != models.ReportOpen {
			return fmt.Errorf("partial close of report #%d in state %s: %w", report.ID, report.Status, models.ErrInvalidState)
		}
		now := l.Clock.Now()
		report.Status = models.ReportPartial
		report.PartialCash = countedCash
		report.PartialTickets = report.TotalTickets
		report.PartialClosedAt = &now
		if err := l.DB.UpdateReport(ctx, tx, report); err != nil {
			return err
		}
		closed = report
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Logger.LogReport("PARTIAL_CLOSE", closed.ID, fmt.Sprintf("cash %d, %d tickets", countedCash, closed.PartialTickets))
	return closed, nil
}

// TotalClose records the final cash and frees the active slot. Allowed from
// OPEN or PARTIAL.
func (l *Ledger) TotalClose(ctx context.Context, reportID int64, countedCash int64) (*models.Report, error) {
	if countedCash < 0 {
		return nil, fmt.Errorf("counted cash %d is negative: %w", countedCash, models.ErrValidation)
	}

	var closed *models.Report
	err := l.InTx(ctx, reportID, func(ctx context.Context, tx bun.IDB, report *models.Report) error {
		if !report.IsActive() {
			return fmt.Errorf("report #%d is already %s: %w", report.ID, report.Status, models.ErrInvalidState)
		}
		now := l.Clock.Now()
		report.Status = models.ReportClosed
		report.FinalCash = countedCash
		report.ClosedAt = &now
		report.ActiveSlot = nil
		if err := l.DB.UpdateReport(ctx, tx, report); err != nil {
			return err
		}
		closed = report
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Logger.LogReport("CLOSE", closed.ID, fmt.Sprintf("final cash %d, total cash %d", countedCash, closed.TotalCash))
	return closed, nil
}

// RecordTicketEvent applies one sale or nullification to report and saves it
// on tx. Callers obtain report and tx from InTx so the ticket write and the
// totals commit together.
func (l *Ledger) RecordTicketEvent(ctx context.Context, tx bun.IDB, report *models.Report, class models.FareClass, fare int64, nullification bool) error {
	if !report.IsActive() {
		return fmt.Errorf("report #%d is %s: %w", report.ID, report.Status, models.ErrInvalidState)
	}
	if !class.Valid() {
		return fmt.Errorf("unknown fare class %q: %w", class, models.ErrValidation)
	}
	if nullification {
		report.ApplyNullification(fare)
	} else {
		report.ApplySale(class, fare)
	}
	return l.DB.UpdateReport(ctx, tx, report)
}

// GetLatestReportsByUser lists the user's most recent closed reports, newest
// first. A non-positive limit means the configured default.
func (l *Ledger) GetLatestReportsByUser(ctx context.Context, username string, limit int) ([]models.Report, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required: %w", models.ErrValidation)
	}
	if limit <= 0 {
		limit = l.LatestLimit
		if limit <= 0 {
			limit = DefaultLatestLimit
		}
	}
	if limit > MaxLatestLimit {
		limit = MaxLatestLimit
	}
	reports, err := l.DB.GetLatestClosedByUser(ctx, nil, username, limit)
	if err != nil {
		return nil, err
	}
	if reports == nil {
		reports = []models.Report{}
	}
	return reports, nil
}
