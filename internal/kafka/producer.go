package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ms-salesreport/internal/logger"
	"ms-salesreport/internal/models"

	"github.com/segmentio/kafka-go"
)

// Publisher ships committed report events. Publishing is best-effort: the
// change is already durable when Publish is called.
type Publisher interface {
	Publish(ctx context.Context, event models.ReportEventDto) error
	Close() error
}

type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Logger: log}
}

// Publish keys the message by report ID so one report's events stay ordered
// within a partition.
func (p *Producer) Publish(ctx context.Context, event models.ReportEventDto) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for report #%d: %w", event.Type, event.ReportID, err)
	}
	p.Logger.LogKafka("PUBLISH", p.Writer.Topic, fmt.Sprintf("%s report #%d", event.Type, event.ReportID))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

func encodeEvent(event models.ReportEventDto) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.ReportID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.EventID.String())},
		},
		Time: event.OccurredAt,
	}, nil
}

// NopPublisher is used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.ReportEventDto) error { return nil }

func (NopPublisher) Close() error { return nil }
