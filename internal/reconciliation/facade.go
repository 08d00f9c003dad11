// Package reconciliation is the entry point the point-of-sale UI talks to. It
// composes the report ledger, the ticket registry and the live counters:
// ticket writes are durable before counters move, and a counter failure is
// reported as a warning instead of undoing the sale.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"ms-salesreport/internal/clock"
	"ms-salesreport/internal/counters"
	"ms-salesreport/internal/kafka"
	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/models"
	"ms-salesreport/internal/sse"
)

const DefaultTimeout = 3 * time.Second

type ReportLedger interface {
	StartReport(ctx context.Context, username string, timetable models.Timetable) (*models.Report, error)
	GetActiveReport(ctx context.Context) (*models.Report, error)
	GetReport(ctx context.Context, reportID int64) (*models.Report, error)
	PartialClose(ctx context.Context, reportID int64, countedCash int64) (*models.Report, error)
	TotalClose(ctx context.Context, reportID int64, countedCash int64) (*models.Report, error)
	GetLatestReportsByUser(ctx context.Context, username string, limit int) ([]models.Report, error)
}

type TicketRegistry interface {
	AddTickets(ctx context.Context, reportID int64, drafts []models.TicketDraft) ([]models.Ticket, error)
	NullifyTicket(ctx context.Context, ticketID, reportID int64) (*models.Ticket, error)
	ListTickets(ctx context.Context, reportID int64) ([]models.Ticket, error)
}

// PurchaseResult is what a sale returns. CounterWarning is COUNTERS_STALE
// when the tickets were stored but at least one live counter was not
// updated; Counts then holds only the counters that were.
type PurchaseResult struct {
	Tickets        []models.Ticket `json:"tickets"`
	Report         *models.Report  `json:"report,omitempty"`
	Counts         []models.Count  `json:"counts"`
	CounterWarning string          `json:"counter_warning,omitempty"`
}

type Facade struct {
	Ledger    ReportLedger
	Registry  TicketRegistry
	Counters  counters.Store
	Publisher kafka.Publisher
	Feed      *sse.CounterFeed
	Clock     clock.Clock
	Logger    *logger.Logger
	// Timeout bounds each storage call.
	Timeout time.Duration
	// Location decides which service day live watchers follow.
	Location *time.Location
}

func NewFacade(ledger ReportLedger, registry TicketRegistry, store counters.Store, publisher kafka.Publisher, c clock.Clock, timeout time.Duration, log *logger.Logger) *Facade {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	if c == nil {
		c = clock.Real()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Facade{
		Ledger:    ledger,
		Registry:  registry,
		Counters:  store,
		Publisher: publisher,
		Feed:      sse.NewCounterFeed(),
		Clock:     c,
		Logger:    log,
		Timeout:   timeout,
		Location:  time.UTC,
	}
}

// write runs one mutating call under the storage timeout. Writes are never
// retried.
func write[T any](ctx context.Context, f *Facade, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	v, err := fn(ctx)
	if err != nil {
		return v, models.StorageError("write", err)
	}
	return v, nil
}

// read runs a read-only call under the storage timeout and retries it once on
// an infrastructure failure.
func read[T any](ctx context.Context, f *Facade, op string, fn func(context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		ctx, cancel := context.WithTimeout(ctx, f.Timeout)
		defer cancel()
		v, err := fn(ctx)
		if err != nil {
			return v, models.StorageError(op, err)
		}
		return v, nil
	}
	v, err := attempt()
	if err != nil && models.IsRetryable(err) && ctx.Err() == nil {
		f.Logger.Warn("FACADE", fmt.Sprintf("%s failed, retrying once: %v", op, err))
		v, err = attempt()
	}
	return v, err
}

func (f *Facade) StartReport(ctx context.Context, username string, timetable models.Timetable) (*models.Report, error) {
	report, err := write(ctx, f, func(ctx context.Context) (*models.Report, error) {
		return f.Ledger.StartReport(ctx, username, timetable)
	})
	if err != nil {
		return nil, err
	}
	f.publish(models.EventReportStarted, *report, nil)
	return report, nil
}

// GetActiveReport returns NOT_FOUND when no session is open.
func (f *Facade) GetActiveReport(ctx context.Context) (*models.Report, error) {
	return read(ctx, f, "active report", f.Ledger.GetActiveReport)
}

func (f *Facade) GetReport(ctx context.Context, reportID int64) (*models.Report, error) {
	return read(ctx, f, "get report", func(ctx context.Context) (*models.Report, error) {
		return f.Ledger.GetReport(ctx, reportID)
	})
}

func (f *Facade) PartialCloseReport(ctx context.Context, reportID, cash int64) (*models.Report, error) {
	report, err := write(ctx, f, func(ctx context.Context) (*models.Report, error) {
		return f.Ledger.PartialClose(ctx, reportID, cash)
	})
	if err != nil {
		return nil, err
	}
	f.publish(models.EventReportPartialClosed, *report, nil)
	return report, nil
}

func (f *Facade) TotalCloseReport(ctx context.Context, reportID, cash int64) (*models.Report, error) {
	report, err := write(ctx, f, func(ctx context.Context) (*models.Report, error) {
		return f.Ledger.TotalClose(ctx, reportID, cash)
	})
	if err != nil {
		return nil, err
	}
	f.publish(models.EventReportClosed, *report, nil)
	return report, nil
}

func (f *Facade) GetLatestReportsByUser(ctx context.Context, username string, limit int) ([]models.Report, error) {
	return read(ctx, f, "latest reports", func(ctx context.Context) ([]models.Report, error) {
		return f.Ledger.GetLatestReportsByUser(ctx, username, limit)
	})
}

// AddTickets stores the purchase, then bumps one counter per distinct
// route/stop/time/class. The sale stands even if every counter update fails.
func (f *Facade) AddTickets(ctx context.Context, reportID int64, drafts []models.TicketDraft) (*PurchaseResult, error) {
	sold, err := write(ctx, f, func(ctx context.Context) ([]models.Ticket, error) {
		return f.Registry.AddTickets(ctx, reportID, drafts)
	})
	if err != nil {
		return nil, err
	}

	result := &PurchaseResult{Tickets: sold, Counts: []models.Count{}}
	for _, group := range groupByCounter(drafts) {
		if group.key.Ambiguous() {
			f.Logger.Warn("COUNTER", fmt.Sprintf("Key %q has a hyphenated name and may share a counter with another route", group.key.String()))
		}
		count, err := write(ctx, f, func(ctx context.Context) (models.Count, error) {
			return f.Counters.Increment(ctx, group.key.String(), group.qty)
		})
		if err != nil {
			f.Logger.Error("COUNTER", fmt.Sprintf("Report #%d: counter %q not updated by %d: %v", reportID, group.key.String(), group.qty, err))
			result.CounterWarning = models.ErrCountersStale.Error()
			continue
		}
		f.Feed.Emit(count)
		result.Counts = append(result.Counts, count)
	}

	report, err := f.GetReport(ctx, reportID)
	if err != nil {
		f.Logger.Warn("KAFKA", fmt.Sprintf("Event %s for report #%d not published: %d tickets sold but the report could not be reloaded: %v", models.EventTicketsSold, reportID, len(sold), err))
		return result, nil
	}
	result.Report = report
	f.publish(models.EventTicketsSold, *report, sold)
	return result, nil
}

// NullifyTicket voids one ticket. Live counters are not decremented; they
// count passengers sold, voids are tracked in the report totals.
func (f *Facade) NullifyTicket(ctx context.Context, ticketID, reportID int64) (*models.Ticket, error) {
	ticket, err := write(ctx, f, func(ctx context.Context) (*models.Ticket, error) {
		return f.Registry.NullifyTicket(ctx, ticketID, reportID)
	})
	if err != nil {
		return nil, err
	}
	report, err := f.GetReport(ctx, reportID)
	if err != nil {
		f.Logger.Warn("KAFKA", fmt.Sprintf("Event %s for report #%d not published: ticket #%d voided but the report could not be reloaded: %v", models.EventTicketNullified, reportID, ticketID, err))
		return ticket, nil
	}
	f.publish(models.EventTicketNullified, *report, []models.Ticket{*ticket})
	return ticket, nil
}

func (f *Facade) ListTickets(ctx context.Context, reportID int64) ([]models.Ticket, error) {
	return read(ctx, f, "list tickets", func(ctx context.Context) ([]models.Ticket, error) {
		return f.Registry.ListTickets(ctx, reportID)
	})
}

func (f *Facade) IncrementCounter(ctx context.Context, key string, qty int64) (models.Count, error) {
	count, err := write(ctx, f, func(ctx context.Context) (models.Count, error) {
		return f.Counters.Increment(ctx, key, qty)
	})
	if err != nil {
		return models.Count{}, err
	}
	f.Feed.Emit(count)
	f.Logger.LogCounter("INCREMENT", key, fmt.Sprintf("+%d = %d", qty, count.Value))
	return count, nil
}

func (f *Facade) GetCountersToday(ctx context.Context) ([]models.Count, error) {
	counts, err := read(ctx, f, "counters today", f.Counters.GetAllForToday)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []models.Count{}
	}
	return counts, nil
}

// WatchCounters subscribes to today's counter updates and returns the
// current counts to start from. The updates channel closes when ctx is done;
// it does not follow the service day past midnight.
func (f *Facade) WatchCounters(ctx context.Context) ([]models.Count, <-chan models.Count, error) {
	updates := f.Feed.Subscribe(ctx, clock.ServiceDay(f.Clock.Now(), f.Location))
	snapshot, err := f.GetCountersToday(ctx)
	if err != nil {
		return nil, nil, err
	}
	return snapshot, updates, nil
}

func (f *Facade) publish(eventType models.EventType, report models.Report, tickets []models.Ticket) {
	ctx, cancel := context.WithTimeout(context.Background(), f.Timeout)
	defer cancel()
	event := models.NewReportEventDto(eventType, report, tickets, f.Clock.Now())
	if err := f.Publisher.Publish(ctx, event); err != nil {
		f.Logger.Error("KAFKA", fmt.Sprintf("Event %s for report #%d not published: %v", eventType, report.ID, err))
	}
}

type counterGroup struct {
	key counters.Key
	qty int64
}

// groupByCounter merges drafts sharing a counter key, keeping first-seen
// order.
func groupByCounter(drafts []models.TicketDraft) []counterGroup {
	var groups []counterGroup
	index := make(map[string]int)
	for _, d := range drafts {
		key := counters.KeyForDraft(d)
		s := key.String()
		if i, ok := index[s]; ok {
			groups[i].qty++
			continue
		}
		index[s] = len(groups)
		groups = append(groups, counterGroup{key: key, qty: 1})
	}
	return groups
}
