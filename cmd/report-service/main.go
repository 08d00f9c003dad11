package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"ms-salesreport/internal/auth"
	"ms-salesreport/internal/clock"
	"ms-salesreport/internal/config"
	"ms-salesreport/internal/counters"
	counterdb "ms-salesreport/internal/counters/db"
	counterredis "ms-salesreport/internal/counters/redis"
	"ms-salesreport/internal/database"
	"ms-salesreport/internal/database/migrations"
	"ms-salesreport/internal/kafka"
	"ms-salesreport/internal/locks"
	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/reconciliation"
	"ms-salesreport/internal/reconciliation/report_api"
	reportdb "ms-salesreport/internal/reports/db"
	reports "ms-salesreport/internal/reports/service"
	ticketdb "ms-salesreport/internal/tickets/db"
	tickets "ms-salesreport/internal/tickets/service"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"
)

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

func migrate(bunDB *bun.DB, cfg *config.Config, log *logger.Logger) error {
	if cfg.Database.Driver != config.DriverPostgres {
		log.Info("MIGRATE", "SQLite schema is created on open")
		return nil
	}
	runner := migrations.NewRunner(bunDB, cfg.Database.MigrationsDir, log)
	defer runner.Close()
	return runner.Up()
}

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	addr := pflag.String("addr", "", "listen address, overrides PORT")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	addUser := pflag.String("add-user", "", "register a seller with this username and exit")
	userName := pflag.String("user-name", "", "display name for --add-user")
	userPassword := pflag.String("user-password", "", "password for --add-user")
	pflag.Parse()

	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting report service initialization")

	if err := godotenv.Load(*envFile); err != nil {
		log.Warn("CONFIG", fmt.Sprintf("%s not loaded, using environment variables", *envFile))
	} else {
		log.Info("CONFIG", fmt.Sprintf("Loaded environment variables from %s", *envFile))
	}

	cfg := config.Load()
	if *addr != "" {
		cfg.Server.Port = *addr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx := context.Background()
	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate || *migrateOnly {
		if err := migrate(bunDB, cfg, log); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
	}
	if *migrateOnly {
		log.Info("APP", "Migrations applied, exiting")
		return
	}

	sysClock := clock.Real()
	authn := auth.NewService(&auth.UserDB{Bun: bunDB}, auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, sysClock), sysClock, log)
	if *addUser != "" {
		if _, err := authn.Register(ctx, *addUser, *userName, *userPassword); err != nil {
			log.Fatal("AUTH", fmt.Sprintf("Cannot register seller %s: %v", *addUser, err))
		}
		log.Info("APP", fmt.Sprintf("Seller %s registered, exiting", *addUser))
		return
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = connectRedis(ctx, cfg.Redis, log)
		defer redisClient.Close()
	}

	calendar := counters.NewCalendar(sysClock, cfg.ServiceDayLocation())

	var store counters.Store
	switch cfg.Engine.CounterBackend {
	case config.BackendRedis:
		store = counterredis.NewStore(redisClient, calendar)
		log.Info("COUNTER", "Live counters kept in Redis")
	default:
		sqlStore := counterdb.NewStore(bunDB, calendar)
		if n, err := sqlStore.PurgeBefore(ctx, calendar.Today()); err != nil {
			log.Warn("COUNTER", fmt.Sprintf("Failed to purge old counters: %v", err))
		} else if n > 0 {
			log.Info("COUNTER", fmt.Sprintf("Purged %d counters of earlier service days", n))
		}
		store = sqlStore
		log.Info("COUNTER", "Live counters kept in the database")
	}

	var locker locks.Locker = locks.NewLocal()
	if cfg.Engine.LockBackend == config.BackendRedis {
		locker = locks.NewRedis(redisClient, cfg.Engine.LockTTL, cfg.Engine.LockWait, log)
		log.Info("LOCK", "Report locks shared through Redis")
	}

	var publisher kafka.Publisher = kafka.NopPublisher{}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		publisher = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		log.Info("KAFKA", fmt.Sprintf("Publishing report events to %s", cfg.Kafka.Topic))
	}
	defer publisher.Close()

	ledger := reports.NewLedger(&reportdb.DB{Bun: bunDB}, locker, sysClock, log)
	if cfg.Engine.LatestReports > 0 {
		ledger.LatestLimit = cfg.Engine.LatestReports
	}
	registry := tickets.NewRegistry(&ticketdb.DB{Bun: bunDB}, ledger, sysClock, log)
	facade := reconciliation.NewFacade(ledger, registry, store, publisher, sysClock, cfg.Engine.StorageTimeout, log)
	facade.Location = cfg.ServiceDayLocation()

	handler := report_api.NewHandler(facade, authn, log, func(ctx context.Context) error {
		if err := bunDB.PingContext(ctx); err != nil {
			return err
		}
		if redisClient != nil {
			return redisClient.Ping(ctx).Err()
		}
		return nil
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Report Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Report Service shutdown complete")
	}
}
