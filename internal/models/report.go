package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Timetable string

const (
	TimetableRegular Timetable = "regular"
	TimetableHoliday Timetable = "holiday"
)

func (t Timetable) Valid() bool {
	return t == TimetableRegular || t == TimetableHoliday
}

type ReportStatus string

const (
	ReportOpen    ReportStatus = "OPEN"
	ReportPartial ReportStatus = "PARTIAL"
	ReportClosed  ReportStatus = "CLOSED"
)

// ActiveSlot is the only value active_slot may hold. The column is UNIQUE,
// so at most one OPEN or PARTIAL report can exist; closed reports store NULL.
const ActiveSlot = 1

// Report is one seller's working session.
type Report struct {
	bun.BaseModel `bun:"table:reports"`

	ID               int64        `bun:"id,pk,autoincrement" json:"id"`
	Username         string       `bun:"username,notnull" json:"username"`
	Timetable        Timetable    `bun:"timetable,notnull" json:"timetable"`
	Status           ReportStatus `bun:"status,notnull" json:"status"`
	ActiveSlot       *int         `bun:"active_slot,unique" json:"-"`
	TotalCash        int64        `bun:"total_cash,notnull" json:"total_cash"`
	TotalTickets     int          `bun:"total_tickets,notnull" json:"total_tickets"`
	TotalRegular     int          `bun:"total_regular,notnull" json:"total_regular"`
	TotalRegularCash int64        `bun:"total_regular_cash,notnull" json:"total_regular_cash"`
	TotalGold        int          `bun:"total_gold,notnull" json:"total_gold"`
	TotalGoldCash    int64        `bun:"total_gold_cash,notnull" json:"total_gold_cash"`
	TotalNull        int          `bun:"total_null,notnull" json:"total_null"`
	TotalNullCash    int64        `bun:"total_null_cash,notnull" json:"total_null_cash"`
	PartialTickets   int          `bun:"partial_tickets,notnull" json:"partial_tickets"`
	PartialCash      int64        `bun:"partial_cash,notnull" json:"partial_cash"`
	FinalCash        int64        `bun:"final_cash,notnull" json:"final_cash"`
	CreatedAt        time.Time    `bun:"created_at,notnull" json:"created_at"`
	PartialClosedAt  *time.Time   `bun:"partial_closed_at" json:"partial_closed_at"`
	ClosedAt         *time.Time   `bun:"closed_at" json:"closed_at"`
}

func (r *Report) IsActive() bool {
	return r.Status == ReportOpen || r.Status == ReportPartial
}

// ApplySale adds one sold ticket to the aggregates.
func (r *Report) ApplySale(class FareClass, fare int64) {
	r.TotalTickets++
	r.TotalCash += fare
	switch class {
	case FareGold:
		r.TotalGold++
		r.TotalGoldCash += fare
	default:
		r.TotalRegular++
		r.TotalRegularCash += fare
	}
}

// ApplyNullification voids one ticket. Fare-class totals keep what was sold;
// the voided amount moves into the null totals.
func (r *Report) ApplyNullification(fare int64) {
	r.TotalTickets--
	r.TotalCash -= fare
	r.TotalNull++
	r.TotalNullCash += fare
}
