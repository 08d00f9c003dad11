package tickets_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-salesreport/internal/clock"
	"ms-salesreport/internal/database"
	"ms-salesreport/internal/locks"
	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/models"
	reportdb "ms-salesreport/internal/reports/db"
	reports "ms-salesreport/internal/reports/service"
	ticketdb "ms-salesreport/internal/tickets/db"
	tickets "ms-salesreport/internal/tickets/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ledger   *reports.Ledger
	registry *tickets.Registry
	clock    *clock.FakeClock
}

func setup(t *testing.T) fixture {
	bunDB, err := database.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	fc := clock.Fake(time.Date(2025, 4, 2, 14, 0, 0, 0, time.UTC))
	log := logger.NewNopLogger()
	ledger := reports.NewLedger(&reportdb.DB{Bun: bunDB}, locks.NewLocal(), fc, log)
	registry := tickets.NewRegistry(&ticketdb.DB{Bun: bunDB}, ledger, fc, log)
	return fixture{ledger: ledger, registry: registry, clock: fc}
}

func regular(n int) []models.TicketDraft {
	drafts := make([]models.TicketDraft, n)
	for i := range drafts {
		drafts[i] = models.TicketDraft{
			Departure: "A", Destination: "B", Stop: "Centro",
			Hour: 14, Minute: 0, Fare: 500, FareClass: models.FareRegular,
		}
	}
	return drafts
}

func TestAddTicketsUpdatesTotals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	report, err := f.ledger.StartReport(ctx, "ana", models.TimetableRegular)
	require.NoError(t, err)

	sold, err := f.registry.AddTickets(ctx, report.ID, regular(3))
	require.NoError(t, err)
	require.Len(t, sold, 3)
	for _, ticket := range sold {
		assert.NotZero(t, ticket.ID)
		assert.Equal(t, "14:00", ticket.Time)
		assert.Equal(t, "ana", ticket.Username)
		assert.Equal(t, report.ID, ticket.ReportID)
	}

	got, err := f.ledger.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalTickets)
	assert.Equal(t, int64(1500), got.TotalCash)
	assert.Equal(t, 3, got.TotalRegular)
	assert.Equal(t, int64(1500), got.TotalRegularCash)
	assert.Equal(t, 0, got.TotalGold)
}

func TestInvalidDraftRejectsWholeBatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	report, err := f.ledger.StartReport(ctx, "ana", models.TimetableRegular)
	require.NoError(t, err)

	drafts := regular(3)
	drafts[2].FareClass = models.FareGold
	_, err = f.registry.AddTickets(ctx, report.ID, drafts)
	assert.ErrorIs(t, err, models.ErrValidation)

	list, err := f.registry.ListTickets(ctx, report.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := f.ledger.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalTickets)
}

func TestValidateDraft(t *testing.T) {
	base := regular(1)[0]
	tests := []struct {
		name   string
		mutate func(d *models.TicketDraft)
	}{
		{"no departure", func(d *models.TicketDraft) { d.Departure = " " }},
		{"no stop", func(d *models.TicketDraft) { d.Stop = "" }},
		{"bad hour", func(d *models.TicketDraft) { d.Hour = 24 }},
		{"bad minute", func(d *models.TicketDraft) { d.Minute = -1 }},
		{"negative fare", func(d *models.TicketDraft) { d.Fare = -1 }},
		{"unknown class", func(d *models.TicketDraft) { d.FareClass = "silver" }},
		{"gold without id", func(d *models.TicketDraft) { d.FareClass = models.FareGold }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			assert.ErrorIs(t, tickets.ValidateDraft(0, d), models.ErrValidation)
		})
	}

	gold := base
	gold.FareClass = models.FareGold
	gold.IDNumber = "1-1111-1111"
	assert.NoError(t, tickets.ValidateDraft(0, gold))
}

func TestAddTicketsErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.registry.AddTickets(ctx, 1, nil)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.registry.AddTickets(ctx, 99, regular(1))
	assert.ErrorIs(t, err, models.ErrNotFound)

	report, err := f.ledger.StartReport(ctx, "ana", models.TimetableRegular)
	require.NoError(t, err)
	_, err = f.ledger.TotalClose(ctx, report.ID, 0)
	require.NoError(t, err)

	_, err = f.registry.AddTickets(ctx, report.ID, regular(1))
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestPartialCloseBoundary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	report, err := f.ledger.StartReport(ctx, "ana", models.TimetableRegular)
	require.NoError(t, err)
	before, err := f.registry.AddTickets(ctx, report.ID, regular(3))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.ledger.PartialClose(ctx, report.ID, 1500)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	after, err := f.registry.AddTickets(ctx, report.ID, regular(1))
	require.NoError(t, err)

	got, err := f.ledger.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.TotalTickets)
	assert.Equal(t, int64(2000), got.TotalCash)

	_, err = f.registry.NullifyTicket(ctx, before[0].ID, report.ID)
	assert.ErrorIs(t, err, models.ErrTicketAlreadyClosed)

	voided, err := f.registry.NullifyTicket(ctx, after[0].ID, report.ID)
	require.NoError(t, err)
	assert.True(t, voided.IsNull)

	got, err = f.ledger.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalTickets)
	assert.Equal(t, int64(1500), got.TotalCash)
	assert.Equal(t, 1, got.TotalNull)
	assert.Equal(t, int64(500), got.TotalNullCash)
	assert.Equal(t, 3, got.PartialTickets)
}

func TestTicketSoldAtPartialCloseInstantIsFrozen(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	report, err := f.ledger.StartReport(ctx, "ana", models.TimetableRegular)
	require.NoError(t, err)
	sold, err := f.registry.AddTickets(ctx, report.ID, regular(1))
	require.NoError(t, err)
	_, err = f.ledger.PartialClose(ctx, report.ID, 500)
	require.NoError(t, err)

	_, err = f.registry.NullifyTicket(ctx, sold[0].ID, report.ID)
	assert.ErrorIs(t, err, models.ErrTicketAlreadyClosed)
}

func TestNullifyTwice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	report, err := f.ledger.StartReport(ctx, "ana", models.TimetableRegular)
	require.NoError(t, err)
	sold, err := f.registry.AddTickets(ctx, report.ID, regular(2))
	require.NoError(t, err)

	_, err = f.registry.NullifyTicket(ctx, sold[0].ID, report.ID)
	require.NoError(t, err)
	_, err = f.registry.NullifyTicket(ctx, sold[0].ID, report.ID)
	assert.ErrorIs(t, err, models.ErrTicketAlreadyNullified)

	got, err := f.ledger.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalNull)
	assert.Equal(t, 1, got.TotalTickets)
}

func TestNullifyOwnershipAndState(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.ledger.StartReport(ctx, "ana", models.TimetableRegular)
	require.NoError(t, err)
	sold, err := f.registry.AddTickets(ctx, first.ID, regular(1))
	require.NoError(t, err)
	_, err = f.ledger.TotalClose(ctx, first.ID, 500)
	require.NoError(t, err)

	_, err = f.registry.NullifyTicket(ctx, sold[0].ID, first.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	second, err := f.ledger.StartReport(ctx, "luis", models.TimetableRegular)
	require.NoError(t, err)
	_, err = f.registry.NullifyTicket(ctx, sold[0].ID, second.ID)
	assert.ErrorIs(t, err, models.ErrTicketNotBelongToReport)

	_, err = f.registry.NullifyTicket(ctx, 12345, second.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListTickets(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.registry.ListTickets(ctx, 7)
	assert.ErrorIs(t, err, models.ErrNotFound)

	report, err := f.ledger.StartReport(ctx, "ana", models.TimetableRegular)
	require.NoError(t, err)
	sold, err := f.registry.AddTickets(ctx, report.ID, regular(2))
	require.NoError(t, err)
	_, err = f.registry.NullifyTicket(ctx, sold[1].ID, report.ID)
	require.NoError(t, err)

	list, err := f.registry.ListTickets(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].IsNull)
	assert.True(t, list[1].IsNull)
}

func TestSalesSerializeWithCloses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	report, err := f.ledger.StartReport(ctx, "ana", models.TimetableRegular)
	require.NoError(t, err)

	const workers = 40
	var sales atomic.Int64
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			switch i {
			case 20:
				_, err = f.ledger.PartialClose(ctx, report.ID, 1000)
			case 30:
				_, err = f.ledger.TotalClose(ctx, report.ID, 2000)
			default:
				if _, err = f.registry.AddTickets(ctx, report.ID, regular(2)); err == nil {
					sales.Add(1)
				}
			}
			if err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	// Sales after the total close, and a partial close after it, are
	// rejected; nothing else may fail.
	for err := range errs {
		assert.ErrorIs(t, err, models.ErrInvalidState)
	}

	got, err := f.ledger.GetReport(ctx, report.ID)
	require.NoError(t, err)
	stored, err := f.registry.ListTickets(ctx, report.ID)
	require.NoError(t, err)

	sold := int(sales.Load()) * 2
	assert.Equal(t, models.ReportClosed, got.Status)
	assert.Equal(t, sold, got.TotalTickets)
	assert.Len(t, stored, sold)
	assert.Equal(t, int64(sold)*500, got.TotalCash)
	assert.Equal(t, int64(2000), got.FinalCash)
	assert.LessOrEqual(t, got.PartialTickets, got.TotalTickets)
	assert.Zero(t, got.PartialTickets%2)
}
