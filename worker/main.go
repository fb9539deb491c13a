package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/news-annotator/internal/agency"
	"github.com/DeafMist/news-annotator/internal/cache"
	"github.com/DeafMist/news-annotator/internal/config"
	"github.com/DeafMist/news-annotator/internal/elasticsearch"
	"github.com/DeafMist/news-annotator/internal/entities"
	"github.com/DeafMist/news-annotator/internal/logger"
	"github.com/DeafMist/news-annotator/internal/models"
	"github.com/DeafMist/news-annotator/internal/nlp"
	"github.com/DeafMist/news-annotator/internal/processing"
	"github.com/DeafMist/news-annotator/internal/publish"
	"github.com/DeafMist/news-annotator/internal/sentiment"
)

type rawNews struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// annotators bundles the three per-document analyses.
type annotators struct {
	extractor *entities.Extractor
	analyzer  *agency.Analyzer
	scorer    *sentiment.Scorer
	now       func() time.Time
}

func newAnnotators(pipeline nlp.Pipeline, radius int, log *slog.Logger) *annotators {
	return &annotators{
		extractor: entities.NewExtractor(pipeline, log),
		analyzer:  agency.NewAnalyzer(pipeline, radius, log),
		scorer:    sentiment.NewScorer(pipeline, log),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func main() {
	log := logger.New("worker")
	if err := config.LoadDotEnv(); err != nil {
		log.Error("load env file", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}
	if err := esClient.EnsureIndex(ctx); err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	client, err := nlp.NewClient(cfg.ServerURL, cfg.Timeout, cfg.RetryMax, log)
	if err != nil {
		log.Error("init nlp client", slog.Any("err", err))
		os.Exit(1)
	}
	pipeline := nlp.NewCached(client, cfg.CacheCapacity, cfg.CacheTTL)

	sinks := []publish.Sink{publish.NewIndex(esClient)}
	if cfg.OutputTopic != "" {
		k, err := publish.NewKafka(cfg.KafkaBrokers, cfg.OutputTopic)
		if err != nil {
			log.Error("init kafka publisher", slog.Any("err", err))
			os.Exit(1)
		}
		sinks = append(sinks, k)
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				log.Warn("close sink", slog.Any("err", err))
			}
		}
	}()

	seen := cache.New[struct{}](cfg.DedupeCapacity, cfg.DedupeTTL)
	ann := newAnnotators(pipeline, cfg.WindowRadius, log)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.InputTopic,
		GroupID:        cfg.ConsumerGroup,
		QueueCapacity:  cfg.QueueCapacity,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.InputTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.InputTopic),
		slog.String("group", cfg.ConsumerGroup),
		slog.String("dlq_topic", cfg.InputTopic+"_dlq"),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, ann, sinks, seen, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				// leave uncommitted so the message is reprocessed after restart
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// sendToDLQ copies msg to the dead letter topic with its failure context, retrying with
// exponential backoff. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < 5; attempt++ {
		err := w.WriteMessages(ctx, dlqMsg)
		if err == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false
		}
	}

	log.Error("DLQ write exhausted retries",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return false
}

func processMessage(ctx context.Context, log *slog.Logger, ann *annotators, sinks []publish.Sink, seen *cache.Cache[struct{}], msg kafka.Message) error {
	var payload rawNews
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	title := strings.TrimSpace(payload.Title)
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return errors.New("empty text")
	}

	id := processing.BuildDocumentID(title, text)
	if _, ok := seen.Get(id); ok {
		log.Debug("duplicate news", slog.String("id", id))
		return nil
	}

	for _, a := range ann.annotate(ctx, id, title, text) {
		for _, s := range sinks {
			if err := s.Publish(ctx, a); err != nil {
				return err
			}
		}
	}

	seen.Put(id, struct{}{})
	log.Info("annotated news", slog.String("id", id), slog.String("title", title))
	return nil
}

// annotate runs every analysis over one document. The agency annotation is only
// produced when the text mentions scientists; sentiment needs a title.
func (a *annotators) annotate(ctx context.Context, id, title, text string) []models.Annotation {
	now := a.now()
	base := models.Annotation{Title: title, Text: text, AnnotatedAt: now}
	out := make([]models.Annotation, 0, 3)

	add := func(kind string, fields map[string]any, degraded bool, reason string) {
		ann := base
		ann.ID = kind + "-" + id
		ann.Kind = kind
		ann.Fields = fields
		ann.Degraded = degraded
		ann.Reason = reason
		out = append(out, ann)
	}

	ents := a.extractor.Extract(ctx, text)
	add(models.KindEntities, entities.Format(ents.Value).Fields(), ents.Degraded, ents.Reason)

	tally := a.analyzer.Analyze(ctx, text)
	if tally.Value.Total() > 0 {
		sum := agency.Summarize(a.analyzer.Matcher(), text, tally.Value)
		add(models.KindAgency, sum.Fields(), tally.Degraded, tally.Reason)
	}

	if title != "" {
		key := sentiment.KeyText(title, text)
		score := a.scorer.Score(ctx, key)
		add(models.KindSentiment, score.Value.Fields(key), score.Degraded, score.Reason)
	}

	return out
}
