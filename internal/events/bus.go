package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/healthwatch/pkg/models"
)

// Topics published by the service. Downstream consumers (CRM sync,
// alerting, warehousing) subscribe to these; nothing in the scoring path
// ever reads them back.
const (
	TopicActivityRecorded = "healthwatch.activity.recorded"
	TopicScoreAtRisk      = "healthwatch.score.at_risk"
)

// Publisher emits telemetry events. Publishing is fire-and-forget from the
// caller's perspective: failures are logged, never surfaced to API clients.
type Publisher interface {
	PublishActivityRecorded(ctx context.Context, event *models.Event) error
	PublishAtRiskAlert(ctx context.Context, customer *models.Customer, breakdown *models.HealthBreakdown) error
	Ping(ctx context.Context) error
	Close() error
}

// KafkaConfig represents Kafka producer configuration.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" json:"brokers"`
	ClientID     string        `yaml:"client_id" json:"client_id"`
	BatchSize    int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DefaultKafkaConfig returns default Kafka configuration.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		ClientID:     "healthwatch",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 2 * time.Second,
	}
}

// KafkaBus implements Publisher using Kafka.
type KafkaBus struct {
	config   KafkaConfig
	producer *kafka.Writer
}

// NewKafkaBus creates a Kafka-backed publisher.
func NewKafkaBus(config KafkaConfig) (*KafkaBus, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      config.Brokers,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	return &KafkaBus{config: config, producer: producer}, nil
}

type atRiskAlert struct {
	CustomerID string    `json:"customer_id"`
	Name       string    `json:"name"`
	Segment    string    `json:"segment"`
	Total      float64   `json:"total"`
	ComputedAt time.Time `json:"computed_at"`
}

// PublishActivityRecorded emits a copy of an accepted activity event.
func (b *KafkaBus) PublishActivityRecorded(ctx context.Context, event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return b.producer.WriteMessages(ctx, kafka.Message{
		Topic: TopicActivityRecorded,
		Key:   []byte(event.CustomerID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(string(event.Kind))},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
		Time: time.Now(),
	})
}

// PublishAtRiskAlert emits a notification that a freshly computed total
// landed in the at-risk bucket.
func (b *KafkaBus) PublishAtRiskAlert(ctx context.Context, customer *models.Customer, breakdown *models.HealthBreakdown) error {
	alert := atRiskAlert{
		CustomerID: customer.ID,
		Name:       customer.Name,
		Segment:    string(customer.Segment),
		Total:      breakdown.Total,
		ComputedAt: breakdown.ComputedAt,
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	return b.producer.WriteMessages(ctx, kafka.Message{
		Topic: TopicScoreAtRisk,
		Key:   []byte(customer.ID),
		Value: data,
		Time:  time.Now(),
	})
}

// Ping checks broker reachability by dialing the first broker.
func (b *KafkaBus) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", b.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	return conn.Close()
}

// Close flushes and closes the producer.
func (b *KafkaBus) Close() error {
	return b.producer.Close()
}

// NopBus is a Publisher that discards everything. Used when Kafka is
// disabled and in tests.
type NopBus struct{}

// NewNopBus creates a no-op publisher.
func NewNopBus() *NopBus {
	return &NopBus{}
}

func (NopBus) PublishActivityRecorded(ctx context.Context, event *models.Event) error {
	return nil
}

func (NopBus) PublishAtRiskAlert(ctx context.Context, customer *models.Customer, breakdown *models.HealthBreakdown) error {
	return nil
}

func (NopBus) Ping(ctx context.Context) error { return nil }

func (NopBus) Close() error { return nil }
