package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/models"

	"github.com/segmentio/kafka-go"
)

// Consumer reads report events, e.g. for an audit trail or a downstream
// accounting system.
type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Run hands every decodable event to handler until ctx is cancelled.
// Malformed messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handler func(models.ReportEventDto)) error {
	c.logger.LogKafka("CONSUME", c.reader.Config().Topic, "consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		event, err := decodeEvent(msg)
		if err != nil {
			c.logger.Warn("KAFKA", err.Error())
			continue
		}
		handler(event)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func decodeEvent(msg kafka.Message) (models.ReportEventDto, error) {
	var event models.ReportEventDto
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return models.ReportEventDto{}, fmt.Errorf("skip message at offset %d: %w", msg.Offset, err)
	}
	if event.Type == "" {
		return models.ReportEventDto{}, fmt.Errorf("skip message at offset %d: no event type", msg.Offset)
	}
	return event, nil
}
