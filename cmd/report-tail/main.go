// Command report-tail prints the report events published by report-service,
// one JSON line per event.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ms-salesreport/internal/config"
	"ms-salesreport/internal/kafka"
	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	group := pflag.String("group", "report-tail", "kafka consumer group")
	pflag.Parse()

	// stdout carries the events; logs go to stderr.
	log := logger.NewJSONLogger(os.Stderr)

	_ = godotenv.Load(*envFile)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, *group, log)
	defer consumer.Close()

	enc := json.NewEncoder(os.Stdout)
	err := consumer.Run(ctx, func(event models.ReportEventDto) {
		if err := enc.Encode(event); err != nil {
			log.Error("TAIL", fmt.Sprintf("Failed to print event %s: %v", event.EventID, err))
		}
	})
	if err != nil {
		log.Fatal("KAFKA", err.Error())
	}
}
