package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-annotator/internal/config"
	"github.com/DeafMist/news-annotator/internal/elasticsearch"
	"github.com/DeafMist/news-annotator/internal/logger"
	"github.com/DeafMist/news-annotator/internal/models"
	"github.com/DeafMist/news-annotator/internal/nlp"
)

type stubPipeline struct {
	segmentErr error
	sentiment  map[string]float64
}

func (s *stubPipeline) Segment(_ context.Context, text string) ([]nlp.Sentence, error) {
	if s.segmentErr != nil {
		return nil, s.segmentErr
	}
	return []nlp.Sentence{{Start: 0, End: len([]rune(text)), Text: text}}, nil
}

func (s *stubPipeline) TagEntities(_ context.Context, text string) ([]nlp.Span, error) {
	if strings.Contains(text, "сбой") {
		return nil, errors.New("tagger crashed")
	}
	return []nlp.Span{{Text: `ПАО "Газпром"`, Type: nlp.LabelOrganization}}, nil
}

func (s *stubPipeline) AnalyzeMorph(_ context.Context, word string) ([]nlp.MorphParse, error) {
	return []nlp.MorphParse{{Word: word, NormalForm: word}}, nil
}

func (s *stubPipeline) ParseDependencies(context.Context, string) ([]nlp.Token, error) {
	return nil, nil
}

func (s *stubPipeline) ClassifySentiment(context.Context, string) (map[string]float64, error) {
	if s.sentiment == nil {
		return nil, errors.New("model down")
	}
	return s.sentiment, nil
}

type stubHealth struct{ err error }

func (s stubHealth) Health(context.Context) error { return s.err }

type stubSearch struct {
	stubHealth
	params elasticsearch.SearchParams
	result *elasticsearch.SearchResult
	err    error
}

func (s *stubSearch) SearchAnnotations(_ context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error) {
	s.params = params
	return s.result, s.err
}

func testConfig() *config.API {
	return &config.API{DefaultPage: 20, MaxPage: 100, MaxBodyBytes: 1 << 10, WindowRadius: 100}
}

func newTestServer(pipeline nlp.Pipeline, search annotationSearcher) http.Handler {
	return newServer(logger.Discard(), testConfig(), stubHealth{}, pipeline, search).routes()
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return rec, decoded
}

func TestHealth(t *testing.T) {
	h := newTestServer(&stubPipeline{}, nil)
	rec, body := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "disabled", body["elasticsearch"])

	h = newServer(logger.Discard(), testConfig(), stubHealth{err: errors.New("nlp down")}, &stubPipeline{},
		&stubSearch{}).routes()
	rec, body = do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "nlp down", body["nlp"])
	require.Equal(t, "ok", body["elasticsearch"])
}

func TestSegment(t *testing.T) {
	h := newTestServer(&stubPipeline{}, nil)
	rec, body := do(t, h, http.MethodPost, "/v1/segment", `{"text":"Привет мир."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["sentences"], 1)

	h = newTestServer(&stubPipeline{segmentErr: errors.New("segmenter down")}, nil)
	rec, body = do(t, h, http.MethodPost, "/v1/segment", `{"text":"Привет"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, body["error"], "segmenter down")
}

func TestValidation(t *testing.T) {
	h := newTestServer(&stubPipeline{}, nil)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		errMsg string
	}{
		{name: "missing text", path: "/v1/entities", body: `{}`, status: http.StatusBadRequest, errMsg: "text is required"},
		{name: "blank text", path: "/v1/agency", body: `{"text":"   "}`, status: http.StatusBadRequest, errMsg: "text is notblank"},
		{name: "missing title", path: "/v1/sentiment", body: `{"text":"x"}`, status: http.StatusBadRequest, errMsg: "title is required"},
		{name: "bad json", path: "/v1/entities", body: `{"text":`, status: http.StatusBadRequest, errMsg: "invalid json"},
		{
			name:   "too large",
			path:   "/v1/entities",
			body:   `{"text":"` + strings.Repeat("a", 2048) + `"}`,
			status: http.StatusRequestEntityTooLarge,
			errMsg: "too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code)
			require.Contains(t, body["error"], tt.errMsg)
		})
	}
}

func TestEntities(t *testing.T) {
	h := newTestServer(&stubPipeline{}, nil)

	rec, body := do(t, h, http.MethodPost, "/v1/entities", `{"text":"ПАО \"Газпром\" отчитался"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, body["degraded"])
	groups := body["entities"].([]any)
	require.Len(t, groups, 1)
	require.Equal(t, "Газпром", groups[0].(map[string]any)["normalized"])
	require.Equal(t, "Газпром", body["columns"].(map[string]any)["unique_entities"])

	rec, body = do(t, h, http.MethodPost, "/v1/entities", `{"text":"сбой"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["degraded"])
	require.Contains(t, body["reason"], "tagger crashed")
	require.Empty(t, body["entities"])
}

func TestAgency(t *testing.T) {
	h := newTestServer(&stubPipeline{}, nil)

	rec, body := do(t, h, http.MethodPost, "/v1/agency", `{"text":"По словам профессора, всё хорошо"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["retained"])
	summary := body["summary"].(map[string]any)
	require.Equal(t, "профессор", summary["found_terms"])
	require.EqualValues(t, 1, summary["active_count"])
	require.Equal(t, "active", summary["dominant_voice"])

	_, body = do(t, h, http.MethodPost, "/v1/agency", `{"text":"Рынок вырос"}`)
	require.Equal(t, false, body["retained"])
}

func TestSentiment(t *testing.T) {
	h := newTestServer(&stubPipeline{sentiment: map[string]float64{"NEGATIVE": 0.8, "NEUTRAL": 0.2}}, nil)

	rec, body := do(t, h, http.MethodPost, "/v1/sentiment", `{"title":"Авария","text":"Поезд сошёл с рельсов. Пострадавших нет."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Авария. Поезд сошёл с рельсов. Пострадавших нет", body["analyzed_text"])
	require.Equal(t, "NEGATIVE", body["result"].(map[string]any)["label"])

	rec, body = do(t, h, http.MethodPost, "/v1/sentiment", `{"title":"Опрос","text":"Доля p<0.05 у группы a<b. Итог."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Опрос. Доля p<0.05 у группы a<b. Итог", body["analyzed_text"])

	rec, body = do(t, h, http.MethodPost, "/v1/sentiment",
		`{"title":"<b>Авария</b>","text":"<p>Поезд сошёл с рельсов.</p> <p>Пострадавших нет.</p>","markup":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Авария. Поезд сошёл с рельсов. Пострадавших нет", body["analyzed_text"])

	h = newTestServer(&stubPipeline{}, nil)
	_, body = do(t, h, http.MethodPost, "/v1/sentiment", `{"title":"А","text":"Б"}`)
	require.Equal(t, true, body["degraded"])
	require.Equal(t, "ERROR", body["result"].(map[string]any)["label"])
}

func TestSearchAnnotations(t *testing.T) {
	search := &stubSearch{result: &elasticsearch.SearchResult{Total: 1, Items: []models.Annotation{{ID: "a", Kind: "agency"}}}}
	h := newTestServer(&stubPipeline{}, search)

	rec, body := do(t, h, http.MethodGet, "/v1/annotations?q="+url.QueryEscape("учёные")+"&kind=agency&run_id=r1&degraded=true&from=10&size=500&sort=row:asc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, body["total"])

	require.Equal(t, "учёные", search.params.Query)
	require.Equal(t, "agency", search.params.Kind)
	require.Equal(t, "r1", search.params.RunID)
	require.NotNil(t, search.params.Degraded)
	require.True(t, *search.params.Degraded)
	require.Equal(t, 10, search.params.From)
	require.Equal(t, 100, search.params.Size)
	require.Equal(t, "row:asc", search.params.Sort)
}

func TestSearchAnnotationsRejectsUnknownKind(t *testing.T) {
	h := newTestServer(&stubPipeline{}, &stubSearch{})
	rec, _ := do(t, h, http.MethodGet, "/v1/annotations?kind=weather", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchAnnotationsDisabled(t *testing.T) {
	h := newTestServer(&stubPipeline{}, nil)
	rec, _ := do(t, h, http.MethodGet, "/v1/annotations", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClampInt(t *testing.T) {
	require.Equal(t, 20, clampInt("", 20, 100))
	require.Equal(t, 20, clampInt("abc", 20, 100))
	require.Equal(t, 20, clampInt("-3", 20, 100))
	require.Equal(t, 100, clampInt("1000", 20, 100))
	require.Equal(t, 42, clampInt("42", 20, 100))
}
