package nlp

import (
	"context"
	"time"

	"github.com/DeafMist/news-annotator/internal/cache"
)

var _ Pipeline = (*Cached)(nil)

// Cached memoises morphology, parsing and sentiment answers per input text.
// Segmentation and NER pass straight through.
type Cached struct {
	next      Pipeline
	morph     *cache.Cache[[]MorphParse]
	parse     *cache.Cache[[]Token]
	sentiment *cache.Cache[map[string]float64]
}

// NewCached wraps next with bounded ttl caches of the given capacity each.
func NewCached(next Pipeline, capacity int, ttl time.Duration) *Cached {
	return &Cached{
		next:      next,
		morph:     cache.New[[]MorphParse](capacity, ttl),
		parse:     cache.New[[]Token](capacity, ttl),
		sentiment: cache.New[map[string]float64](capacity, ttl),
	}
}

func (c *Cached) Segment(ctx context.Context, text string) ([]Sentence, error) {
	return c.next.Segment(ctx, text)
}

func (c *Cached) TagEntities(ctx context.Context, text string) ([]Span, error) {
	return c.next.TagEntities(ctx, text)
}

func (c *Cached) AnalyzeMorph(ctx context.Context, word string) ([]MorphParse, error) {
	return memo(ctx, c.morph, word, c.next.AnalyzeMorph)
}

func (c *Cached) ParseDependencies(ctx context.Context, text string) ([]Token, error) {
	return memo(ctx, c.parse, text, c.next.ParseDependencies)
}

func (c *Cached) ClassifySentiment(ctx context.Context, text string) (map[string]float64, error) {
	return memo(ctx, c.sentiment, text, c.next.ClassifySentiment)
}

// memo only stores successful answers so a transient failure is retried on the next row.
func memo[V any](ctx context.Context, c *cache.Cache[V], key string, call func(context.Context, string) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := call(ctx, key)
	if err != nil {
		return v, err
	}
	c.Put(key, v)
	return v, nil
}
