package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const maxErrorBody = 512

var _ Pipeline = (*Client)(nil)

// Client talks JSON over HTTP to the NLP model server.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	log     *slog.Logger
}

type textRequest struct {
	Text string `json:"text"`
}

type wordRequest struct {
	Word string `json:"word"`
}

type segmentResponse struct {
	Sentences []Sentence `json:"sentences"`
}

type entitiesResponse struct {
	Spans []Span `json:"spans"`
}

type morphResponse struct {
	Parses []MorphParse `json:"parses"`
}

type parseResponse struct {
	Tokens []Token `json:"tokens"`
}

type sentimentResponse struct {
	Scores map[string]float64 `json:"scores"`
}

// NewClient builds a client for the model server at baseURL. Transport errors, 429 and
// 5xx replies are retried up to retryMax times; other 4xx replies fail immediately.
func NewClient(baseURL string, timeout time.Duration, retryMax int, log *slog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("nlp server url is empty")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = log
	rc.Backoff = retryablehttp.DefaultBackoff
	rc.CheckRetry = retryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{baseURL: baseURL, http: rc, log: log}, nil
}

func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	// do not retry on context.Canceled or context.DeadlineExceeded
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Health checks that the model server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("nlp health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return statusError("healthz", resp)
	}
	return nil
}

// Segment splits text into sentences and tokens.
func (c *Client) Segment(ctx context.Context, text string) ([]Sentence, error) {
	var out segmentResponse
	if err := c.post(ctx, "segment", textRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return out.Sentences, nil
}

// TagEntities runs named entity recognition over text.
func (c *Client) TagEntities(ctx context.Context, text string) ([]Span, error) {
	var out entitiesResponse
	if err := c.post(ctx, "entities", textRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return out.Spans, nil
}

// AnalyzeMorph returns the morphological readings of word, most probable first.
func (c *Client) AnalyzeMorph(ctx context.Context, word string) ([]MorphParse, error) {
	var out morphResponse
	if err := c.post(ctx, "morph", wordRequest{Word: word}, &out); err != nil {
		return nil, err
	}
	if len(out.Parses) == 0 {
		return nil, fmt.Errorf("morph %q: no parses: %w", word, ErrBadResponse)
	}
	return out.Parses, nil
}

// ParseDependencies returns the dependency parse of text.
func (c *Client) ParseDependencies(ctx context.Context, text string) ([]Token, error) {
	var out parseResponse
	if err := c.post(ctx, "parse", textRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

// ClassifySentiment returns per-label scores for text.
func (c *Client) ClassifySentiment(ctx context.Context, text string) (map[string]float64, error) {
	var out sentimentResponse
	if err := c.post(ctx, "sentiment", textRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	if out.Scores == nil {
		return nil, fmt.Errorf("sentiment: missing scores: %w", ErrBadResponse)
	}
	return out.Scores, nil
}

func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, payload)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("nlp %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %v: %w", endpoint, err, ErrBadResponse)
	}
	return nil
}

func statusError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Endpoint: endpoint,
		Status:   resp.StatusCode,
		Body:     strings.TrimSpace(string(body)),
	}
}
