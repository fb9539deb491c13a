package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DeafMist/news-annotator/internal/logger"
	"github.com/DeafMist/news-annotator/internal/models"
	"github.com/DeafMist/news-annotator/internal/nlp"
	"github.com/DeafMist/news-annotator/internal/processing"
)

// Dominant labels. LabelError marks rows the classifier failed on.
const (
	LabelPositive = nlp.SentimentPositive
	LabelNegative = nlp.SentimentNegative
	LabelNeutral  = nlp.SentimentNeutral
	LabelError    = "ERROR"
)

// Labels lists every dominant label in reporting order.
var Labels = []string{LabelPositive, LabelNegative, LabelNeutral, LabelError}

// KeySentences is how many body sentences follow the title in the analysed text.
const KeySentences = 4

// ColumnNames are the columns appended to every row.
var ColumnNames = []string{
	"analyzed_text",
	"sentiment_positive",
	"sentiment_negative",
	"sentiment_neutral",
	"dominant_sentiment",
}

// Classifier is the slice of the NLP pipeline sentiment scoring needs.
type Classifier interface {
	ClassifySentiment(ctx context.Context, text string) (map[string]float64, error)
}

// Result holds the scores of one text and its dominant label.
type Result struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Label    string  `json:"label"`
}

// Neutral is the result for empty input.
func Neutral() Result {
	return Result{Neutral: 1, Label: LabelNeutral}
}

// KeyText builds the analysed text: the title followed by the first KeySentences
// sentences of the body with whitespace collapsed. The text is taken as is; a "<"
// in the body is content, not markup. A blank title or body gives "".
func KeyText(title, text string) string {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(text) == "" {
		return ""
	}

	sentences := processing.SplitSentences(text)
	if len(sentences) > KeySentences {
		sentences = sentences[:KeySentences]
	}
	return processing.CollapseWhitespace(title + ". " + strings.Join(sentences, ". "))
}

// Dominant returns the label whose score is strictly greater than both others,
// and LabelNeutral otherwise.
func Dominant(positive, negative, neutral float64) string {
	switch {
	case positive > negative && positive > neutral:
		return LabelPositive
	case negative > positive && negative > neutral:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// Scorer classifies texts and isolates failures per text.
type Scorer struct {
	classifier Classifier
	log        *slog.Logger
}

// NewScorer creates a Scorer. A nil logger discards output.
func NewScorer(classifier Classifier, log *slog.Logger) *Scorer {
	if log == nil {
		log = logger.Discard()
	}
	return &Scorer{classifier: classifier, log: log}
}

// Score classifies text. Blank text is neutral without calling the model; a model
// failure yields a degraded neutral result labelled LabelError.
func (s *Scorer) Score(ctx context.Context, text string) models.Outcome[Result] {
	if strings.TrimSpace(text) == "" {
		return models.Ok(Neutral())
	}

	scores, err := s.classifier.ClassifySentiment(ctx, text)
	if err != nil {
		s.log.Warn("classify sentiment", slog.Any("err", err))
		return models.Degrade(Result{Neutral: 1, Label: LabelError}, fmt.Sprintf("classify sentiment: %v", err))
	}

	r := Result{
		Positive: scores[LabelPositive],
		Negative: scores[LabelNegative],
		Neutral:  scores[LabelNeutral],
	}
	r.Label = Dominant(r.Positive, r.Negative, r.Neutral)
	return models.Ok(r)
}

// Cells returns the analysed text and result in ColumnNames order.
func (r Result) Cells(analyzed string) []any {
	return []any{analyzed, r.Positive, r.Negative, r.Neutral, r.Label}
}

// Fields returns the result keyed by column name for sinks.
func (r Result) Fields(analyzed string) map[string]any {
	out := make(map[string]any, len(ColumnNames))
	for i, v := range r.Cells(analyzed) {
		out[ColumnNames[i]] = v
	}
	return out
}

// Count is the number of texts with a given dominant label.
type Count struct {
	Label string
	N     int
}

// Distribution counts dominant labels in Labels order, leaving out labels never seen.
func Distribution(results []Result) []Count {
	counts := make(map[string]int, len(Labels))
	for _, r := range results {
		counts[r.Label]++
	}
	out := make([]Count, 0, len(Labels))
	for _, l := range Labels {
		if n := counts[l]; n > 0 {
			out = append(out, Count{Label: l, N: n})
		}
	}
	return out
}
