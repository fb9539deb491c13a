package entities

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DeafMist/news-annotator/internal/logger"
	"github.com/DeafMist/news-annotator/internal/models"
	"github.com/DeafMist/news-annotator/internal/nlp"
)

// Tagger is the slice of the NLP pipeline entity extraction needs.
type Tagger interface {
	TagEntities(ctx context.Context, text string) ([]nlp.Span, error)
	AnalyzeMorph(ctx context.Context, word string) ([]nlp.MorphParse, error)
}

// Group is every mention in one document that normalises to the same (name, type).
type Group struct {
	Original   string `json:"original"`
	Normalized string `json:"normalized"`
	Type       string `json:"type"`
	Surname    string `json:"surname,omitempty"`
	Count      int    `json:"count"`
}

// Extractor tags and normalises entities document by document.
type Extractor struct {
	tagger Tagger
	log    *slog.Logger
}

// NewExtractor creates an Extractor. A nil logger discards output.
func NewExtractor(tagger Tagger, log *slog.Logger) *Extractor {
	if log == nil {
		log = logger.Discard()
	}
	return &Extractor{tagger: tagger, log: log}
}

// Extract returns the entity groups of text in first-mention order. A span that fails to
// normalise is skipped; a document the tagger cannot process degrades to no entities.
func (e *Extractor) Extract(ctx context.Context, text string) models.Outcome[[]Group] {
	if strings.TrimSpace(text) == "" {
		return models.Ok[[]Group](nil)
	}

	spans, err := e.tagger.TagEntities(ctx, text)
	if err != nil {
		e.log.Warn("tag entities", slog.Any("err", err))
		return models.Degrade[[]Group](nil, fmt.Sprintf("tag entities: %v", err))
	}

	type key struct{ name, typ string }
	index := make(map[key]int)
	var groups []Group

	for _, span := range spans {
		typ := TypeOf(span.Type)
		normalized, err := e.normalize(ctx, span.Text, typ)
		if err != nil {
			e.log.Debug("skip entity span", slog.String("span", span.Text), slog.Any("err", err))
			continue
		}
		if normalized == "" {
			continue
		}

		k := key{name: normalized, typ: typ}
		if i, ok := index[k]; ok {
			groups[i].Count++
			continue
		}
		index[k] = len(groups)
		groups = append(groups, Group{
			Original:   span.Text,
			Normalized: normalized,
			Type:       typ,
			Surname:    surnameOf(normalized, typ),
			Count:      1,
		})
	}

	return models.Ok(groups)
}

func (e *Extractor) normalize(ctx context.Context, text, typ string) (string, error) {
	parse := func(word string) (nlp.MorphParse, error) {
		parses, err := e.tagger.AnalyzeMorph(ctx, word)
		if err != nil {
			return nlp.MorphParse{}, err
		}
		if len(parses) == 0 {
			return nlp.MorphParse{}, fmt.Errorf("morph %q: %w", word, nlp.ErrBadResponse)
		}
		return parses[0], nil
	}

	var (
		normalized string
		err        error
	)
	switch typ {
	case TypePerson:
		normalized, err = NormalizePerson(text, parse)
	case TypeOrganization:
		normalized = CleanOrganization(text)
	default:
		normalized, err = NormalizeOther(text, parse)
	}
	if err != nil {
		return "", err
	}
	return StripQuotes(normalized), nil
}

func surnameOf(normalized, typ string) string {
	if typ != TypePerson {
		return ""
	}
	parts := strings.Fields(normalized)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
