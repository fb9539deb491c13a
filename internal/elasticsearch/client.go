package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/news-annotator/internal/logger"
	"github.com/DeafMist/news-annotator/internal/models"
)

const (
	defaultSize = 20
	maxSize     = 500
	defaultSort = "annotated_at:desc"
)

// sortable lists the fields SearchAnnotations accepts in Sort.
var sortable = map[string]bool{
	"annotated_at": true,
	"row":          true,
	"kind":         true,
	"run_id":       true,
}

// Client wraps go-elasticsearch with helpers for the annotation index.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// SearchParams narrow an annotation search.
type SearchParams struct {
	Query    string
	Kind     string
	RunID    string
	Degraded *bool
	From     int
	Size     int
	Sort     string
	Start    *time.Time
	End      *time.Time
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64               `json:"total"`
	Items []models.Annotation `json:"items"`
}

// New instantiates the Elasticsearch client.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("elasticsearch address is empty")
	}
	if strings.TrimSpace(index) == "" {
		return nil, fmt.Errorf("elasticsearch index is empty")
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if log == nil {
		log = logger.Discard()
	}

	return &Client{es: es, index: index, log: log}, nil
}

// Index returns the index name the client writes to.
func (c *Client) Index() string {
	return c.index
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

var indexMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":           map[string]any{"type": "keyword"},
			"run_id":       map[string]any{"type": "keyword"},
			"kind":         map[string]any{"type": "keyword"},
			"row":          map[string]any{"type": "integer"},
			"title":        map[string]any{"type": "text"},
			"text":         map[string]any{"type": "text"},
			"fields":       map[string]any{"type": "object", "dynamic": true},
			"degraded":     map[string]any{"type": "boolean"},
			"reason":       map[string]any{"type": "text"},
			"annotated_at": map[string]any{"type": "date"},
		},
	},
}

// EnsureIndex creates the annotation index with its mapping when it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", c.index, err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index %s: %s", c.index, res.Status())
	}

	payload, err := json.Marshal(indexMapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", c.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// a concurrent writer may have created it first
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index %s failed: %s", c.index, strings.TrimSpace(string(body)))
	}

	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// IndexAnnotation writes an annotation, replacing any earlier version with the same ID.
func (c *Client) IndexAnnotation(ctx context.Context, a models.Annotation) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal annotation: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: a.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index annotation: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index annotation failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// SearchAnnotations executes a bool query with optional filters.
func (c *Client) SearchAnnotations(ctx context.Context, params SearchParams) (*SearchResult, error) {
	payload, err := json.Marshal(searchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Annotation `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.Annotation, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

func searchBody(params SearchParams) map[string]any {
	if params.Size <= 0 {
		params.Size = defaultSize
	}
	if params.Size > maxSize {
		params.Size = maxSize
	}
	if params.From < 0 {
		params.From = 0
	}

	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 4)

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"title^2", "text"},
			},
		})
	}

	if params.Kind != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"kind": params.Kind}})
	}
	if params.RunID != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"run_id": params.RunID}})
	}
	if params.Degraded != nil {
		filters = append(filters, map[string]any{"term": map[string]any{"degraded": *params.Degraded}})
	}

	if params.Start != nil || params.End != nil {
		rangeQuery := map[string]any{}
		if params.Start != nil {
			rangeQuery["gte"] = params.Start.UTC().Format(time.RFC3339)
		}
		if params.End != nil {
			rangeQuery["lte"] = params.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"annotated_at": rangeQuery},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	field, order := parseSort(params.Sort)
	return map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort": []map[string]any{
			{field: map[string]any{"order": order}},
		},
	}
}

// parseSort turns "field:order" into its parts, falling back to annotated_at:desc for
// unknown fields or orders.
func parseSort(raw string) (string, string) {
	if raw == "" {
		raw = defaultSort
	}
	field, order, _ := strings.Cut(raw, ":")
	if !sortable[field] {
		field = "annotated_at"
	}
	order = strings.ToLower(order)
	if order != "asc" {
		order = "desc"
	}
	return field, order
}

// DeleteOlderThan removes annotations whose annotated_at is older than maxAge using
// batched delete-by-query. It loops until a batch deletes fewer than batchSize documents.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"max_docs": batchSize,
			"query": map[string]any{
				"range": map[string]any{
					"annotated_at": map[string]any{"lte": cutoff},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		deleted, err := c.deleteBatch(ctx, payload, batchSize)
		if err != nil {
			return totalDeleted, err
		}
		totalDeleted += deleted

		if deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

func (c *Client) deleteBatch(ctx context.Context, payload []byte, batchSize int) (int64, error) {
	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithScrollSize(batchSize),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return parsed.Deleted, nil
}

// Health reports whether the cluster answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
