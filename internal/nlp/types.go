// Package nlp is the boundary to the pretrained language models: segmentation, named
// entity recognition, morphology, dependency parsing and sentiment classification.
// Models are never reimplemented here; Pipeline is satisfied by a model server client.
package nlp

import "context"

// Entity labels emitted by the NER model.
const (
	LabelPerson       = "PER"
	LabelLocation     = "LOC"
	LabelOrganization = "ORG"
)

// Sentiment labels emitted by the sentiment model.
const (
	SentimentPositive = "POSITIVE"
	SentimentNegative = "NEGATIVE"
	SentimentNeutral  = "NEUTRAL"
)

// Pipeline is every model capability the annotation jobs rely on.
type Pipeline interface {
	Segment(ctx context.Context, text string) ([]Sentence, error)
	TagEntities(ctx context.Context, text string) ([]Span, error)
	AnalyzeMorph(ctx context.Context, word string) ([]MorphParse, error)
	ParseDependencies(ctx context.Context, text string) ([]Token, error)
	ClassifySentiment(ctx context.Context, text string) (map[string]float64, error)
}

// Sentence is a segmented sentence with its word tokens. Offsets are rune offsets.
type Sentence struct {
	Start  int     `json:"start"`
	End    int     `json:"end"`
	Text   string  `json:"text"`
	Tokens []Piece `json:"tokens"`
}

// Piece is a token produced by the segmenter.
type Piece struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Span is a contiguous substring tagged with an entity type.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
	Type  string `json:"type"`
}

// MorphParse is one morphological reading of a word, most probable first.
type MorphParse struct {
	Word       string   `json:"word"`
	NormalForm string   `json:"normal_form"`
	Tags       []string `json:"tags"`
	Score      float64  `json:"score"`
}

// HasTag reports whether the parse carries any of the given grammemes (e.g. Surn, Geox).
func (p MorphParse) HasTag(tags ...string) bool {
	for _, have := range p.Tags {
		for _, want := range tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Token is a word in a dependency parse. ID is 1-based within the parsed text and Head
// points at the governing token's ID, 0 for the root.
type Token struct {
	ID    int    `json:"id"`
	Text  string `json:"text"`
	Lemma string `json:"lemma"`
	POS   string `json:"pos"`
	Dep   string `json:"dep"`
	Head  int    `json:"head"`
}

// Children returns the tokens whose head is tokens[i], in text order.
func Children(tokens []Token, i int) []Token {
	if i < 0 || i >= len(tokens) {
		return nil
	}
	id := tokens[i].ID
	var out []Token
	for j, t := range tokens {
		if j != i && t.Head == id {
			out = append(out, t)
		}
	}
	return out
}
