package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/dwd-climate-etl/internal/config"
	"github.com/couchcryptid/dwd-climate-etl/internal/domain"
	"github.com/couchcryptid/dwd-climate-etl/internal/observability"
)

// messageWriter is the subset of kafka-go's Writer used by the sink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes regional series rows to a Kafka topic, one message per date.
type Writer struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// DailyMessage is the JSON value of one published row.
type DailyMessage struct {
	Region      string    `json:"region"`
	GeneratedAt time.Time `json:"generated_at"`
	domain.DailyAggregate
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    500,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// PublishSeries serializes every row of series and publishes them in a
// single WriteMessages call. Messages are keyed by region, so one region's
// rows land on one partition in date order.
func (w *Writer) PublishSeries(ctx context.Context, region string, generatedAt time.Time, series domain.Series) error {
	if len(series) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(series))
	for i := range series {
		msg, err := serializeToMessage(region, generatedAt, series[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %s series: %w", region, err)
	}
	w.metrics.SinkMessages.Add(float64(len(msgs)))
	w.logger.Info("series published", "region", region, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals one daily aggregate into a Kafka message.
func serializeToMessage(region string, generatedAt time.Time, day domain.DailyAggregate) (kafkago.Message, error) {
	data, err := json.Marshal(DailyMessage{Region: region, GeneratedAt: generatedAt, DailyAggregate: day})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize daily aggregate: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(region),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "region", Value: []byte(region)},
			{Key: "date", Value: []byte(day.Date.Format(time.DateOnly))},
			{Key: "generated_at", Value: []byte(generatedAt.Format(time.RFC3339))},
		},
	}, nil
}
