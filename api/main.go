package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/DeafMist/news-annotator/internal/agency"
	"github.com/DeafMist/news-annotator/internal/config"
	"github.com/DeafMist/news-annotator/internal/elasticsearch"
	"github.com/DeafMist/news-annotator/internal/entities"
	"github.com/DeafMist/news-annotator/internal/logger"
	"github.com/DeafMist/news-annotator/internal/models"
	"github.com/DeafMist/news-annotator/internal/nlp"
	"github.com/DeafMist/news-annotator/internal/processing"
	"github.com/DeafMist/news-annotator/internal/sentiment"
)

func main() {
	log := logger.New("api")
	if err := config.LoadDotEnv(); err != nil {
		log.Error("load env file", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	client, err := nlp.NewClient(cfg.ServerURL, cfg.Timeout, cfg.RetryMax, log)
	if err != nil {
		log.Error("init nlp client", slog.Any("err", err))
		os.Exit(1)
	}

	var search annotationSearcher
	if cfg.ElasticsearchAddr != "" {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		search = esClient
	} else {
		log.Info("ELASTICSEARCH_ADDR not set, annotation search disabled")
	}

	srv := newServer(log, cfg, client, nlp.NewCached(client, cfg.CacheCapacity, cfg.CacheTTL), search)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Timeout + 15*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type healthChecker interface {
	Health(ctx context.Context) error
}

type annotationSearcher interface {
	healthChecker
	SearchAnnotations(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
}

type server struct {
	log       *slog.Logger
	cfg       *config.API
	nlpHealth healthChecker
	pipeline  nlp.Pipeline
	search    annotationSearcher
	validate  *validator.Validate

	extractor *entities.Extractor
	analyzer  *agency.Analyzer
	scorer    *sentiment.Scorer
}

func newServer(log *slog.Logger, cfg *config.API, nlpHealth healthChecker, pipeline nlp.Pipeline, search annotationSearcher) *server {
	return &server{
		log:       log,
		cfg:       cfg,
		nlpHealth: nlpHealth,
		pipeline:  pipeline,
		search:    search,
		validate:  newValidator(),
		extractor: entities.NewExtractor(pipeline, log),
		analyzer:  agency.NewAnalyzer(pipeline, cfg.WindowRadius, log),
		scorer:    sentiment.NewScorer(pipeline, log),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// required accepts whitespace-only strings
	if err := v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		panic(fmt.Sprintf("register notblank: %v", err))
	}
	return v
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/segment", s.handleSegment)
		r.Post("/entities", s.handleEntities)
		r.Post("/agency", s.handleAgency)
		r.Post("/sentiment", s.handleSentiment)
		r.Get("/annotations", s.handleSearch)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type textRequest struct {
	Text string `json:"text" validate:"required,notblank"`
}

type sentimentRequest struct {
	Title  string `json:"title" validate:"required,notblank"`
	Text   string `json:"text" validate:"required,notblank"`
	Markup bool   `json:"markup"`
}

type segmentResponse struct {
	Sentences []nlp.Sentence `json:"sentences"`
}

type entitiesResponse struct {
	Entities []entities.Group `json:"entities"`
	Columns  map[string]any   `json:"columns"`
	Degraded bool             `json:"degraded"`
	Reason   string           `json:"reason,omitempty"`
}

type agencyResponse struct {
	Retained bool           `json:"retained"`
	Summary  map[string]any `json:"summary"`
	Degraded bool           `json:"degraded"`
	Reason   string         `json:"reason,omitempty"`
}

type sentimentResponse struct {
	AnalyzedText string           `json:"analyzed_text"`
	Result       sentiment.Result `json:"result"`
	Degraded     bool             `json:"degraded"`
	Reason       string           `json:"reason,omitempty"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "nlp": "ok", "elasticsearch": "disabled"}
	code := http.StatusOK

	if err := s.nlpHealth.Health(ctx); err != nil {
		status["status"], status["nlp"] = "degraded", err.Error()
		code = http.StatusServiceUnavailable
	}
	if s.search != nil {
		status["elasticsearch"] = "ok"
		if err := s.search.Health(ctx); err != nil {
			status["status"], status["elasticsearch"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, status)
}

func (s *server) handleSegment(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}

	sentences, err := s.pipeline.Segment(r.Context(), req.Text)
	if err != nil {
		s.log.Warn("segment", slog.Any("err", err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	if sentences == nil {
		sentences = []nlp.Sentence{}
	}
	writeJSON(w, http.StatusOK, segmentResponse{Sentences: sentences})
}

func (s *server) handleEntities(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}

	out := s.extractor.Extract(r.Context(), req.Text)
	groups := out.Value
	if groups == nil {
		groups = []entities.Group{}
	}
	writeJSON(w, http.StatusOK, entitiesResponse{
		Entities: groups,
		Columns:  entities.Format(out.Value).Fields(),
		Degraded: out.Degraded,
		Reason:   out.Reason,
	})
}

func (s *server) handleAgency(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}

	out := s.analyzer.Analyze(r.Context(), req.Text)
	writeJSON(w, http.StatusOK, agencyResponse{
		Retained: out.Value.Total() > 0,
		Summary:  agency.Summarize(s.analyzer.Matcher(), req.Text, out.Value).Fields(),
		Degraded: out.Degraded,
		Reason:   out.Reason,
	})
}

func (s *server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Markup {
		req.Title = processing.StripMarkup(req.Title)
		req.Text = processing.StripMarkup(req.Text)
	}
	key := sentiment.KeyText(req.Title, req.Text)
	out := s.scorer.Score(r.Context(), key)
	writeJSON(w, http.StatusOK, sentimentResponse{
		AnalyzedText: key,
		Result:       out.Value,
		Degraded:     out.Degraded,
		Reason:       out.Reason,
	})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "annotation search is disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	kind := strings.TrimSpace(q.Get("kind"))
	if err := s.validate.Var(kind, "omitempty,oneof="+models.KindEntities+" "+models.KindAgency+" "+models.KindSentiment); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid kind %q", kind)})
		return
	}

	params := elasticsearch.SearchParams{
		Query:    strings.TrimSpace(q.Get("q")),
		Kind:     kind,
		RunID:    strings.TrimSpace(q.Get("run_id")),
		Degraded: parseBool(q.Get("degraded")),
		From:     clampInt(q.Get("from"), 0, 10_000),
		Size:     clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Start:    parseTime(q.Get("start")),
		End:      parseTime(q.Get("end")),
	}

	result, err := s.search.SearchAnnotations(ctx, params)
	if err != nil {
		s.log.Error("search annotations", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// decode reads a size-limited JSON body into v and validates it. On failure it writes
// the error response and returns false.
func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func parseBool(raw string) *bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &v
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
