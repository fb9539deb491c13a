package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-annotator/internal/models"
)

type recorded struct {
	method string
	path   string
	body   string
}

type fakeES struct {
	mu       sync.Mutex
	requests []recorded
	handle   func(w http.ResponseWriter, r *http.Request)
}

func newFakeES(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeES) {
	t.Helper()
	f := &fakeES{handle: handle}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recorded{method: r.Method, path: r.URL.Path, body: string(body)})
		f.mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		f.handle(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "annotations", nil)
	require.NoError(t, err)
	return c, f
}

func TestNewRejectsEmptyAddress(t *testing.T) {
	_, err := New("", "annotations", nil)
	require.Error(t, err)

	_, err = New("http://localhost:9200", " ", nil)
	require.Error(t, err)
}

func TestIndexAnnotation(t *testing.T) {
	c, f := newFakeES(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := c.IndexAnnotation(context.Background(), models.Annotation{
		ID:     "doc-1",
		RunID:  "run-1",
		Kind:   models.KindSentiment,
		Title:  "Заголовок",
		Fields: map[string]any{"dominant_sentiment": "NEUTRAL"},
	})
	require.NoError(t, err)

	require.Len(t, f.requests, 1)
	req := f.requests[0]
	require.Equal(t, http.MethodPut, req.method)
	require.Equal(t, "/annotations/_doc/doc-1", req.path)

	var sent models.Annotation
	require.NoError(t, json.Unmarshal([]byte(req.body), &sent))
	require.Equal(t, "run-1", sent.RunID)
	require.Equal(t, "NEUTRAL", sent.Fields["dominant_sentiment"])
}

func TestIndexAnnotationFailure(t *testing.T) {
	c, _ := newFakeES(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})

	err := c.IndexAnnotation(context.Background(), models.Annotation{ID: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestSearchAnnotations(t *testing.T) {
	c, f := newFakeES(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":7},"hits":[
			{"_source":{"id":"a","kind":"agency","run_id":"r1"}},
			{"_source":{"id":"b","kind":"agency","run_id":"r1","degraded":true}}
		]}}`))
	})

	res, err := c.SearchAnnotations(context.Background(), SearchParams{Query: "учёные", Kind: "agency", RunID: "r1", Size: 2})
	require.NoError(t, err)

	require.Equal(t, int64(7), res.Total)
	require.Len(t, res.Items, 2)
	require.Equal(t, "a", res.Items[0].ID)
	require.True(t, res.Items[1].Degraded)

	require.Len(t, f.requests, 1)
	require.Equal(t, "/annotations/_search", f.requests[0].path)
	require.Contains(t, f.requests[0].body, `"kind":"agency"`)
	require.Contains(t, f.requests[0].body, `"run_id":"r1"`)
}

func TestSearchBody(t *testing.T) {
	degraded := true
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	body := searchBody(SearchParams{Degraded: &degraded, Start: &start, From: -5, Size: 10_000, Sort: "row:ASC"})

	require.Equal(t, 0, body["from"])
	require.Equal(t, maxSize, body["size"])
	require.Equal(t, []map[string]any{{"row": map[string]any{"order": "asc"}}}, body["sort"])

	boolQuery := body["query"].(map[string]any)["bool"].(map[string]any)
	require.NotContains(t, boolQuery, "must")
	filters := boolQuery["filter"].([]map[string]any)
	require.Len(t, filters, 2)
	require.Equal(t, map[string]any{"term": map[string]any{"degraded": true}}, filters[0])
	require.Equal(t, map[string]any{"range": map[string]any{"annotated_at": map[string]any{"gte": "2024-01-02T03:04:05Z"}}}, filters[1])
}

func TestSearchBodyMatchAll(t *testing.T) {
	body := searchBody(SearchParams{})
	require.Equal(t, defaultSize, body["size"])

	boolQuery := body["query"].(map[string]any)["bool"].(map[string]any)
	require.Equal(t, []map[string]any{{"match_all": map[string]any{}}}, boolQuery["must"])
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		raw   string
		field string
		order string
	}{
		{raw: "", field: "annotated_at", order: "desc"},
		{raw: "row:asc", field: "row", order: "asc"},
		{raw: "kind", field: "kind", order: "desc"},
		{raw: "text:asc", field: "annotated_at", order: "asc"},
		{raw: "run_id:sideways", field: "run_id", order: "desc"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			field, order := parseSort(tt.raw)
			require.Equal(t, tt.field, field)
			require.Equal(t, tt.order, order)
		})
	}
}

func TestDeleteOlderThanLoopsUntilShortBatch(t *testing.T) {
	deleted := []int{2, 2, 1}
	calls := 0
	c, f := newFakeES(t, func(w http.ResponseWriter, _ *http.Request) {
		n := deleted[calls]
		calls++
		_, _ = fmt.Fprintf(w, `{"deleted":%d}`, n)
	})

	total, err := c.DeleteOlderThan(context.Background(), time.Hour, 2)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)
	require.Len(t, f.requests, 3)
	require.Equal(t, "/annotations/_delete_by_query", f.requests[0].path)
	require.Contains(t, f.requests[0].body, `"annotated_at"`)
}

func TestEnsureIndexCreatesMissing(t *testing.T) {
	c, f := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})

	require.NoError(t, c.EnsureIndex(context.Background()))
	require.Len(t, f.requests, 2)
	require.Equal(t, http.MethodPut, f.requests[1].method)
	require.Contains(t, f.requests[1].body, `"annotated_at":{"type":"date"}`)
}

func TestEnsureIndexExisting(t *testing.T) {
	c, f := newFakeES(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.EnsureIndex(context.Background()))
	require.Len(t, f.requests, 1)
}
