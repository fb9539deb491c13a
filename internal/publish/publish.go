// Package publish delivers annotations to optional sinks next to the spreadsheet output.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-annotator/internal/logger"
	"github.com/DeafMist/news-annotator/internal/models"
)

// Sink receives one annotation at a time.
type Sink interface {
	Publish(ctx context.Context, a models.Annotation) error
	Close() error
}

type annotationIndexer interface {
	IndexAnnotation(ctx context.Context, a models.Annotation) error
}

// Index adapts an Elasticsearch client to Sink.
type Index struct {
	indexer annotationIndexer
}

// NewIndex wraps indexer as a Sink.
func NewIndex(indexer annotationIndexer) *Index {
	return &Index{indexer: indexer}
}

// Publish indexes a.
func (s *Index) Publish(ctx context.Context, a models.Annotation) error {
	if err := s.indexer.IndexAnnotation(ctx, a); err != nil {
		return fmt.Errorf("index annotation %s: %w", a.ID, err)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (s *Index) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes annotations as JSON messages keyed by document ID.
type Kafka struct {
	writer messageWriter
}

// NewKafka creates a publisher writing to topic on brokers.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are empty")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is empty")
	}
	return &Kafka{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}, nil
}

// Publish writes a single annotation message. Run and kind travel as headers so
// consumers can route without decoding the payload.
func (k *Kafka) Publish(ctx context.Context, a models.Annotation) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal annotation: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(a.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(a.RunID)},
			{Key: "kind", Value: []byte(a.Kind)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message %s: %w", a.ID, err)
	}
	return nil
}

// Close flushes pending messages and releases the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Fanout sends every annotation to all sinks. Sink failures are logged and counted but
// never returned, so a broken sink cannot fail a batch run.
type Fanout struct {
	sinks    []Sink
	log      *slog.Logger
	sent     int
	failures int
}

// NewFanout combines sinks. With no sinks Publish does nothing.
func NewFanout(log *slog.Logger, sinks ...Sink) *Fanout {
	if log == nil {
		log = logger.Discard()
	}
	return &Fanout{sinks: sinks, log: log}
}

// Enabled reports whether any sink is configured.
func (f *Fanout) Enabled() bool {
	return len(f.sinks) > 0
}

// Publish delivers a to every sink.
func (f *Fanout) Publish(ctx context.Context, a models.Annotation) {
	for _, s := range f.sinks {
		if err := s.Publish(ctx, a); err != nil {
			f.failures++
			f.log.Warn("publish annotation", slog.String("id", a.ID), slog.Any("err", err))
			continue
		}
		f.sent++
	}
}

// Sent is the number of successful deliveries across sinks.
func (f *Fanout) Sent() int { return f.sent }

// Failures is the number of failed deliveries across sinks.
func (f *Fanout) Failures() int { return f.failures }

// Close closes every sink and joins their errors.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
