package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/DeafMist/news-annotator/internal/config"
	"github.com/DeafMist/news-annotator/internal/elasticsearch"
	"github.com/DeafMist/news-annotator/internal/logger"
	"github.com/DeafMist/news-annotator/internal/nlp"
	"github.com/DeafMist/news-annotator/internal/publish"
)

const service = "annotate"

// flags holds command line overrides applied on top of the environment.
type flags struct {
	verbose bool
	quiet   bool
	input   string
	output  string
	csv     string
	chart   string
	limit   int
	radius  int
	envFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{limit: -1}

	root := &cobra.Command{
		Use:   service,
		Short: "Annotate a spreadsheet of news articles with NLP-derived columns",
		Long: `annotate reads an xlsx file of news articles, runs one analysis over every row
through the NLP model server and writes an enriched spreadsheet. Annotated rows can
also be indexed into Elasticsearch and published to Kafka when those are configured.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "verbose logging")
	root.PersistentFlags().BoolVarP(&f.quiet, "quiet", "q", false, "suppress non-error output")
	root.PersistentFlags().StringVarP(&f.input, "input", "i", "", "input xlsx (default $ANNOTATE_INPUT or all.xlsx)")
	root.PersistentFlags().StringVarP(&f.output, "output", "o", "", "output xlsx (default derived from input)")
	root.PersistentFlags().IntVarP(&f.limit, "limit", "n", -1, "process at most n rows, 0 for all (default $ANNOTATE_LIMIT)")
	root.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "optional dotenv file")

	entitiesCmd := &cobra.Command{
		Use:   "entities",
		Short: "Extract and normalise named entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f, runEntities)
		},
	}

	agencyCmd := &cobra.Command{
		Use:   "agency",
		Short: "Classify how scientists are portrayed (active or passive voice)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f, runAgency)
		},
	}
	agencyCmd.Flags().IntVar(&f.radius, "radius", 0, "context window radius in characters (default $AGENCY_WINDOW_RADIUS)")

	sentimentCmd := &cobra.Command{
		Use:   "sentiment",
		Short: "Score the sentiment of headline plus leading sentences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f, runSentiment)
		},
	}
	sentimentCmd.Flags().StringVar(&f.csv, "csv", "", "output csv (default next to input)")
	sentimentCmd.Flags().StringVar(&f.chart, "chart", "", "output png chart (default next to input)")

	root.AddCommand(entitiesCmd, agencyCmd, sentimentCmd)
	return root
}

// app is everything a job needs, built once per invocation.
type app struct {
	cfg      *config.Batch
	pipeline nlp.Pipeline
	sinks    *publish.Fanout
	log      *slog.Logger
	progress io.Writer
	runID    string
	now      func() time.Time
}

type job func(ctx context.Context, a *app) error

func run(parent context.Context, f *flags, j job) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	log, err := newLogger(f)
	if err != nil {
		log.Error("load env file", slog.Any("err", err))
		return err
	}

	cfg, err := config.LoadBatch()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		return err
	}
	if err := f.apply(cfg); err != nil {
		log.Error("invalid flags", slog.Any("err", err))
		return err
	}

	client, err := nlp.NewClient(cfg.ServerURL, cfg.Timeout, cfg.RetryMax, log)
	if err != nil {
		log.Error("init nlp client", slog.Any("err", err))
		return err
	}
	if err := client.Health(ctx); err != nil {
		log.Warn("nlp server is not healthy, rows may degrade", slog.String("url", cfg.ServerURL), slog.Any("err", err))
	}

	sinks := openSinks(ctx, cfg, log)
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Warn("close sinks", slog.Any("err", err))
		}
	}()

	a := &app{
		cfg:      cfg,
		pipeline: nlp.NewCached(client, cfg.CacheCapacity, cfg.CacheTTL),
		sinks:    sinks,
		log:      log,
		progress: progressWriter(f),
		runID:    uuid.NewString(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	log.Info("run started", slog.String("run_id", a.runID), slog.String("input", cfg.InputPath))

	if err := j(ctx, a); err != nil {
		log.Error("run failed", slog.String("run_id", a.runID), slog.Any("err", err))
		return err
	}

	if sinks.Enabled() {
		log.Info("annotations published", slog.Int("sent", sinks.Sent()), slog.Int("failed", sinks.Failures()))
	}
	return nil
}

func (f *flags) apply(cfg *config.Batch) error {
	if f.input != "" {
		cfg.InputPath = f.input
	}
	if f.limit >= 0 {
		cfg.Limit = f.limit
	}
	if f.radius > 0 {
		cfg.WindowRadius = f.radius
	}
	if f.csv != "" {
		cfg.SentimentCSV = f.csv
	}
	if f.chart != "" {
		cfg.SentimentChart = f.chart
	}
	if f.output != "" {
		cfg.EntitiesOutput = f.output
		cfg.AgencyOutput = f.output
		cfg.SentimentOutput = f.output
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.ResolveOutputs()
	return nil
}

// newLogger loads the env file before building the logger so LOG_LEVEL may come
// from it. The logger is usable even when loading fails.
func newLogger(f *flags) (*slog.Logger, error) {
	err := config.LoadDotEnv(f.envFile)
	return logger.NewLevel(service, logLevel(f)), err
}

func logLevel(f *flags) string {
	switch {
	case f.quiet:
		return "error"
	case f.verbose:
		return "debug"
	default:
		return os.Getenv("LOG_LEVEL")
	}
}

func progressWriter(f *flags) io.Writer {
	if f.quiet {
		return nil
	}
	return os.Stderr
}

// openSinks connects the configured sinks. A sink that cannot be reached is skipped with
// a warning; the spreadsheet is still written.
func openSinks(ctx context.Context, cfg *config.Batch, log *slog.Logger) *publish.Fanout {
	var sinks []publish.Sink

	if cfg.ElasticsearchAddr != "" {
		es, err := connectElasticsearch(ctx, cfg.Common, log)
		if err != nil {
			log.Warn("elasticsearch sink disabled", slog.Any("err", err))
		} else {
			sinks = append(sinks, publish.NewIndex(es))
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		k, err := publish.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Warn("kafka sink disabled", slog.Any("err", err))
		} else {
			sinks = append(sinks, k)
			log.Info("kafka sink enabled", slog.String("topic", cfg.KafkaTopic))
		}
	}

	return publish.NewFanout(log, sinks...)
}

func connectElasticsearch(ctx context.Context, common config.Common, log *slog.Logger) (*elasticsearch.Client, error) {
	es, err := elasticsearch.New(common.ElasticsearchAddr, common.ElasticsearchIndex, log)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := es.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("reach %s: %w", common.ElasticsearchAddr, err)
	}
	if err := es.EnsureIndex(pingCtx); err != nil {
		return nil, err
	}

	log.Info("elasticsearch sink enabled", slog.String("index", common.ElasticsearchIndex))
	return es, nil
}
