package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// EventWriter is the subset of kafka.Writer the notification sink uses.
type EventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns nil when no brokers are configured. Writes are
// async and their delivery errors are not reported back.
func NewKafkaWriter(cfg config.NotificationConfig) *kafka.Writer {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}
}

// NotificationService counts bus traffic and exports ticket and message
// events to Kafka.
type NotificationService struct {
	dispatcher events.Dispatcher
	writer     EventWriter
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewNotificationService creates the service. writer may be nil.
func NewNotificationService(dispatcher events.Dispatcher, writer EventWriter, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		writer:     writer,
		metrics:    metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.AllEvents, n.countEvent)
	n.dispatcher.Subscribe(events.EventTicket, n.exportEvent)
	n.dispatcher.Subscribe(events.EventAppMessage, n.exportEvent)
}

func (n *NotificationService) countEvent(_ context.Context, event events.Event) error {
	n.metrics.RecordEvent(string(event.Name), string(event.Action))
	n.logger.Debug("bus event",
		zap.String("id", event.ID),
		zap.String("event", string(event.Name)),
		zap.String("action", string(event.Action)),
		zap.Strings("topics", event.Topics))
	return nil
}

// exportEvent is best-effort: failures are logged and never block the bus.
func (n *NotificationService) exportEvent(ctx context.Context, event events.Event) error {
	if n.writer == nil {
		return nil
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(exportKey(event)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Name)},
			{Key: "action", Value: []byte(event.Action)},
		},
		Time: event.Timestamp,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.logger.Warn("export event to kafka", zap.String("id", event.ID), zap.Error(err))
	}
	return nil
}

// exportKey partitions by ticket so one ticket's events stay ordered.
func exportKey(event events.Event) string {
	for _, topic := range event.Topics {
		if strings.HasPrefix(topic, "ticket:") {
			return topic
		}
	}
	return string(event.Name)
}
