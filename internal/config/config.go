package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Common contains Elasticsearch parameters shared by every service.
// An empty address disables indexing where it is optional.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// NLP describes how to reach the model server that does segmentation, NER,
// morphology, dependency parsing and sentiment classification.
type NLP struct {
	ServerURL     string
	Timeout       time.Duration
	RetryMax      int
	CacheCapacity int
	CacheTTL      time.Duration
}

// Batch holds configuration for the spreadsheet annotation jobs.
type Batch struct {
	Common
	NLP
	KafkaBrokers    []string
	KafkaTopic      string
	InputPath       string
	EntitiesOutput  string
	AgencyOutput    string
	SentimentOutput string
	SentimentCSV    string
	SentimentChart  string
	Limit           int
	WindowRadius    int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	NLP
	BindAddr     string
	DefaultPage  int
	MaxPage      int
	MaxBodyBytes int64
	WindowRadius int
}

// Worker configures the streaming annotator that consumes raw news from Kafka.
type Worker struct {
	Common
	NLP
	KafkaBrokers   []string
	InputTopic     string
	OutputTopic    string
	ConsumerGroup  string
	QueueCapacity  int
	WindowRadius   int
	DedupeCapacity int
	DedupeTTL      time.Duration
}

// Retention configures the annotation cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// LoadDotEnv loads variables from the given .env files when they exist.
// Variables already present in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadBatch builds a Batch config from environment variables.
func LoadBatch() (*Batch, error) {
	nlp, err := loadNLP()
	if err != nil {
		return nil, err
	}

	input := getEnv("ANNOTATE_INPUT", "all.xlsx")
	c := &Batch{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", ""),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "news_annotations"),
		},
		NLP:             *nlp,
		KafkaBrokers:    splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "news_annotations"),
		InputPath:       input,
		EntitiesOutput:  getEnv("ANNOTATE_ENTITIES_OUTPUT", ""),
		AgencyOutput:    getEnv("ANNOTATE_AGENCY_OUTPUT", ""),
		SentimentOutput: getEnv("ANNOTATE_SENTIMENT_OUTPUT", ""),
		SentimentCSV:    getEnv("ANNOTATE_SENTIMENT_CSV", ""),
		SentimentChart:  getEnv("ANNOTATE_SENTIMENT_CHART", ""),
		Limit:           getInt("ANNOTATE_LIMIT", 0),
		WindowRadius:    getInt("AGENCY_WINDOW_RADIUS", 100),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks invariants after flags have been applied on top of the environment.
func (c *Batch) Validate() error {
	if strings.TrimSpace(c.InputPath) == "" {
		return fmt.Errorf("ANNOTATE_INPUT must not be empty")
	}
	if c.Limit < 0 {
		return fmt.Errorf("ANNOTATE_LIMIT cannot be negative")
	}
	if c.WindowRadius <= 0 {
		return fmt.Errorf("AGENCY_WINDOW_RADIUS must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC must be set when KAFKA_BROKERS is")
	}
	return nil
}

// ResolveOutputs fills empty output paths with names derived from the input file.
func (c *Batch) ResolveOutputs() {
	dir := filepath.Dir(c.InputPath)
	if c.EntitiesOutput == "" {
		c.EntitiesOutput = DerivePath(c.InputPath, "_processed_new.xlsx")
	}
	if c.AgencyOutput == "" {
		c.AgencyOutput = filepath.Join(dir, "agency_analysis.xlsx")
	}
	if c.SentimentOutput == "" {
		c.SentimentOutput = DerivePath(c.InputPath, "_sentiment.xlsx")
	}
	if c.SentimentCSV == "" {
		c.SentimentCSV = filepath.Join(dir, "news_sentiment_results_new.csv")
	}
	if c.SentimentChart == "" {
		c.SentimentChart = filepath.Join(dir, "news_sentiment_chart_new.png")
	}
}

// DerivePath replaces the extension of path with suffix, e.g. all.xlsx -> all_processed_new.xlsx.
func DerivePath(path, suffix string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + suffix
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	nlp, err := loadNLP()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", ""),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "news_annotations"),
		},
		NLP:          *nlp,
		BindAddr:     getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:  getInt("API_PAGE_SIZE", 20),
		MaxPage:      getInt("API_MAX_PAGE_SIZE", 100),
		MaxBodyBytes: int64(getInt("API_MAX_BODY_BYTES", 1<<20)),
		WindowRadius: getInt("AGENCY_WINDOW_RADIUS", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.MaxBodyBytes <= 0 {
		return nil, fmt.Errorf("API_MAX_BODY_BYTES must be positive")
	}
	if c.WindowRadius <= 0 {
		return nil, fmt.Errorf("AGENCY_WINDOW_RADIUS must be positive")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	nlp, err := loadNLP()
	if err != nil {
		return nil, err
	}

	c := &Worker{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "news_annotations"),
		},
		NLP:            *nlp,
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		InputTopic:     getEnv("KAFKA_INPUT_TOPIC", "news_raw"),
		OutputTopic:    getEnv("KAFKA_OUTPUT_TOPIC", ""),
		ConsumerGroup:  getEnv("KAFKA_CONSUMER_GROUP", "news-annotator"),
		QueueCapacity:  getInt("WORKER_QUEUE_CAPACITY", 100),
		WindowRadius:   getInt("AGENCY_WINDOW_RADIUS", 100),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if c.InputTopic == "" {
		return nil, fmt.Errorf("KAFKA_INPUT_TOPIC must not be empty")
	}
	if c.OutputTopic == c.InputTopic {
		return nil, fmt.Errorf("KAFKA_OUTPUT_TOPIC must differ from KAFKA_INPUT_TOPIC")
	}
	if c.QueueCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_QUEUE_CAPACITY must be positive")
	}
	if c.WindowRadius <= 0 {
		return nil, fmt.Errorf("AGENCY_WINDOW_RADIUS must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "news_annotations"),
		},
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}

	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func loadNLP() (*NLP, error) {
	c := &NLP{
		ServerURL:     strings.TrimRight(getEnv("NLP_SERVER_URL", "http://localhost:5557"), "/"),
		Timeout:       getDuration("NLP_TIMEOUT", "30s"),
		RetryMax:      getInt("NLP_RETRY_MAX", 3),
		CacheCapacity: getInt("NLP_CACHE_CAPACITY", 10000),
		CacheTTL:      getDuration("NLP_CACHE_TTL", "1h"),
	}

	if c.Timeout <= 0 {
		return nil, fmt.Errorf("NLP_TIMEOUT must be positive")
	}
	if c.RetryMax < 0 {
		return nil, fmt.Errorf("NLP_RETRY_MAX cannot be negative")
	}
	if c.CacheCapacity <= 0 {
		return nil, fmt.Errorf("NLP_CACHE_CAPACITY must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
