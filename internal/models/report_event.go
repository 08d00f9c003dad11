package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventReportStarted       EventType = "report.started"
	EventReportPartialClosed EventType = "report.partial_closed"
	EventReportClosed        EventType = "report.closed"
	EventTicketsSold         EventType = "tickets.sold"
	EventTicketNullified     EventType = "ticket.nullified"
)

// ReportEventDto is the message published to Kafka after a committed change.
// Report always carries the aggregates as they were right after the commit.
type ReportEventDto struct {
	EventID    uuid.UUID `json:"event_id"`
	Type       EventType `json:"type"`
	ReportID   int64     `json:"report_id"`
	Username   string    `json:"username"`
	Report     Report    `json:"report"`
	Tickets    []Ticket  `json:"tickets,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewReportEventDto(eventType EventType, report Report, tickets []Ticket, at time.Time) ReportEventDto {
	return ReportEventDto{
		EventID:    uuid.New(),
		Type:       eventType,
		ReportID:   report.ID,
		Username:   report.Username,
		Report:     report,
		Tickets:    tickets,
		OccurredAt: at.UTC(),
	}
}
