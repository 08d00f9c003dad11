// Package tickets records fare sales against the active report and voids
// them under the partial-close boundary rule.
package tickets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-salesreport/internal/clock"
	"ms-salesreport/internal/counters"
	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/models"

	"github.com/uptrace/bun"
)

// MaxBatch bounds one purchase.
const MaxBatch = 100

type TicketDBLayer interface {
	InsertTickets(ctx context.Context, idb bun.IDB, tickets []models.Ticket) error
	GetTicketByID(ctx context.Context, idb bun.IDB, id int64) (*models.Ticket, error)
	MarkNull(ctx context.Context, idb bun.IDB, id int64, at time.Time) (bool, error)
	GetTicketsByReport(ctx context.Context, idb bun.IDB, reportID int64) ([]models.Ticket, error)
}

// ReportLedger is the part of the report ledger the registry writes through.
type ReportLedger interface {
	InTx(ctx context.Context, reportID int64, fn func(ctx context.Context, tx bun.IDB, report *models.Report) error) error
	RecordTicketEvent(ctx context.Context, tx bun.IDB, report *models.Report, class models.FareClass, fare int64, nullification bool) error
	GetReport(ctx context.Context, reportID int64) (*models.Report, error)
}

type Registry struct {
	DB     TicketDBLayer
	Ledger ReportLedger
	Clock  clock.Clock
	Logger *logger.Logger
}

func NewRegistry(db TicketDBLayer, ledger ReportLedger, c clock.Clock, log *logger.Logger) *Registry {
	if c == nil {
		c = clock.Real()
	}
	return &Registry{DB: db, Ledger: ledger, Clock: c, Logger: log}
}

// ValidateDraft checks one ticket of a purchase. i is its position in the
// batch and only feeds the error message.
func ValidateDraft(i int, d models.TicketDraft) error {
	switch {
	case strings.TrimSpace(d.Departure) == "" || strings.TrimSpace(d.Destination) == "":
		return fmt.Errorf("ticket %d: route is required: %w", i, models.ErrValidation)
	case strings.TrimSpace(d.Stop) == "":
		return fmt.Errorf("ticket %d: stop is required: %w", i, models.ErrValidation)
	case !counters.ValidClock(d.Hour, d.Minute):
		return fmt.Errorf("ticket %d: time %02d:%02d out of range: %w", i, d.Hour, d.Minute, models.ErrValidation)
	case d.Fare < 0:
		return fmt.Errorf("ticket %d: fare %d is negative: %w", i, d.Fare, models.ErrValidation)
	case !d.FareClass.Valid():
		return fmt.Errorf("ticket %d: unknown fare class %q: %w", i, d.FareClass, models.ErrValidation)
	case d.FareClass == models.FareGold && strings.TrimSpace(d.IDNumber) == "":
		return fmt.Errorf("ticket %d: gold fare requires an id number: %w", i, models.ErrValidation)
	}
	return nil
}

// AddTickets sells a whole purchase or nothing. Every draft is validated
// before anything is written; tickets and report totals share one
// transaction.
func (r *Registry) AddTickets(ctx context.Context, reportID int64, drafts []models.TicketDraft) ([]models.Ticket, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("purchase has no tickets: %w", models.ErrValidation)
	}
	if len(drafts) > MaxBatch {
		return nil, fmt.Errorf("purchase of %d tickets exceeds %d: %w", len(drafts), MaxBatch, models.ErrValidation)
	}
	for i, d := range drafts {
		if err := ValidateDraft(i, d); err != nil {
			return nil, err
		}
	}

	var sold []models.Ticket
	err := r.Ledger.InTx(ctx, reportID, func(ctx context.Context, tx bun.IDB, report *models.Report) error {
		if !report.IsActive() {
			return fmt.Errorf("report #%d is %s: %w", report.ID, report.Status, models.ErrInvalidState)
		}

		now := r.Clock.Now()
		tickets := make([]models.Ticket, len(drafts))
		for i, d := range drafts {
			tickets[i] = models.Ticket{
				ReportID:    report.ID,
				Username:    report.Username,
				Departure:   strings.TrimSpace(d.Departure),
				Destination: strings.TrimSpace(d.Destination),
				Stop:        strings.TrimSpace(d.Stop),
				Time:        fmt.Sprintf("%02d:%02d", d.Hour, d.Minute),
				Fare:        d.Fare,
				FareClass:   d.FareClass,
				IDNumber:    strings.TrimSpace(d.IDNumber),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		}
		if err := r.DB.InsertTickets(ctx, tx, tickets); err != nil {
			return err
		}
		for _, t := range tickets {
			if err := r.Ledger.RecordTicketEvent(ctx, tx, report, t.FareClass, t.Fare, false); err != nil {
				return err
			}
		}
		sold = tickets
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.Logger.LogTicket("SELL", reportID, fmt.Sprintf("%d tickets sold", len(sold)))
	return sold, nil
}

// NullifyTicket voids a ticket of reportID. Once the report is partially
// closed, tickets created at or before the partial close are frozen.
func (r *Registry) NullifyTicket(ctx context.Context, ticketID, reportID int64) (*models.Ticket, error) {
	var voided *models.Ticket
	err := r.Ledger.InTx(ctx, reportID, func(ctx context.Context, tx bun.IDB, report *models.Report) error {
		ticket, err := r.DB.GetTicketByID(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.ReportID != reportID {
			return fmt.Errorf("ticket #%d belongs to report #%d, not #%d: %w", ticket.ID, ticket.ReportID, reportID, models.ErrTicketNotBelongToReport)
		}
		if !report.IsActive() {
			return fmt.Errorf("report #%d is %s: %w", report.ID, report.Status, models.ErrInvalidState)
		}
		if ticket.IsNull {
			return fmt.Errorf("ticket #%d: %w", ticket.ID, models.ErrTicketAlreadyNullified)
		}
		if report.PartialClosedAt != nil && !ticket.CreatedAt.After(*report.PartialClosedAt) {
			return fmt.Errorf("ticket #%d was sold before the partial close of report #%d: %w", ticket.ID, report.ID, models.ErrTicketAlreadyClosed)
		}

		now := r.Clock.Now()
		flipped, err := r.DB.MarkNull(ctx, tx, ticket.ID, now)
		if err != nil {
			return err
		}
		if !flipped {
			return fmt.Errorf("ticket #%d: %w", ticket.ID, models.ErrTicketAlreadyNullified)
		}
		if err := r.Ledger.RecordTicketEvent(ctx, tx, report, ticket.FareClass, ticket.Fare, true); err != nil {
			return err
		}
		ticket.IsNull = true
		ticket.UpdatedAt = now
		voided = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.Logger.LogTicket("NULLIFY", reportID, fmt.Sprintf("ticket #%d voided (%d)", voided.ID, voided.Fare))
	return voided, nil
}

// ListTickets returns the report's tickets in sale order, voided ones
// included.
func (r *Registry) ListTickets(ctx context.Context, reportID int64) ([]models.Ticket, error) {
	if _, err := r.Ledger.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	tickets, err := r.DB.GetTicketsByReport(ctx, nil, reportID)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets, nil
}
