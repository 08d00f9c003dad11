//go:build integration

package database_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ms-salesreport/internal/clock"
	"ms-salesreport/internal/config"
	"ms-salesreport/internal/counters"
	counterdb "ms-salesreport/internal/counters/db"
	"ms-salesreport/internal/database"
	"ms-salesreport/internal/database/migrations"
	"ms-salesreport/internal/locks"
	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/models"
	reportdb "ms-salesreport/internal/reports/db"
	reports "ms-salesreport/internal/reports/service"
	ticketdb "ms-salesreport/internal/tickets/db"
	tickets "ms-salesreport/internal/tickets/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
)

func startPostgres(t *testing.T) *bun.DB {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "pos",
				"POSTGRES_PASSWORD": "pos",
				"POSTGRES_DB":       "salesreport",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Driver:       config.DriverPostgres,
		DSN:          fmt.Sprintf("postgres://pos:pos@%s:%s/salesreport?sslmode=disable", host, port.Port()),
		MaxOpenConns: 10,
		MaxIdleConns: 10,
		MaxLifetime:  time.Minute,
		ConnectTries: 5,
	}
	log := logger.NewNopLogger()
	bunDB, err := database.Connect(ctx, cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	runner := migrations.NewRunner(bunDB, "../../migrations", log)
	require.NoError(t, runner.Up())
	require.NoError(t, runner.Close())
	return bunDB
}

func TestPostgresSalesFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}
	bunDB := startPostgres(t)
	ctx := context.Background()

	fc := clock.Fake(time.Date(2025, 4, 2, 14, 0, 0, 0, time.UTC))
	log := logger.NewNopLogger()
	ledger := reports.NewLedger(&reportdb.DB{Bun: bunDB}, locks.NewLocal(), fc, log)
	registry := tickets.NewRegistry(&ticketdb.DB{Bun: bunDB}, ledger, fc, log)

	report, err := ledger.StartReport(ctx, "ana", models.TimetableRegular)
	require.NoError(t, err)

	// A second ledger has its own in-process locks, so only the database
	// constraint stands between it and a second active report.
	other := reports.NewLedger(&reportdb.DB{Bun: bunDB}, locks.NewLocal(), fc, log)
	_, err = other.StartReport(ctx, "luis", models.TimetableRegular)
	assert.ErrorIs(t, err, models.ErrConflict)

	draft := models.TicketDraft{Departure: "A", Destination: "B", Stop: "Centro", Hour: 14, Fare: 500, FareClass: models.FareRegular}
	sold, err := registry.AddTickets(ctx, report.ID, []models.TicketDraft{draft, draft, draft})
	require.NoError(t, err)
	require.Len(t, sold, 3)

	fc.Advance(time.Minute)
	_, err = ledger.PartialClose(ctx, report.ID, 1500)
	require.NoError(t, err)

	_, err = registry.NullifyTicket(ctx, sold[0].ID, report.ID)
	assert.ErrorIs(t, err, models.ErrTicketAlreadyClosed)

	closed, err := ledger.TotalClose(ctx, report.ID, 1500)
	require.NoError(t, err)
	assert.Equal(t, 3, closed.TotalTickets)
	assert.Equal(t, int64(1500), closed.TotalCash)
}

func TestPostgresConcurrentCounterUpserts(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}
	bunDB := startPostgres(t)
	store := counterdb.NewStore(bunDB, counters.NewCalendar(clock.Real(), time.UTC))
	ctx := context.Background()

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Increment(ctx, "a - b-centro-14:00", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counts, err := store.GetAllForToday(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(workers), counts[0].Value)
}
