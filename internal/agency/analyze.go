package agency

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

// DefaultRadius is the number of characters kept on each side of a keyword.
const DefaultRadius = 100

var (
	activeDeps  = map[string]struct{}{"nsubj": {}, "agent": {}}
	passiveDeps = map[string]struct{}{"nsubj:pass": {}, "obl": {}, "obj": {}, "dobj": {}}
)

// Parser is the slice of the NLP pipeline the classifier needs.
type Parser interface {
	ParseDependencies(ctx context.Context, text string) ([]nlp.Token, error)
}

// VerbCount is a verb lemma and how many scientist constructions it heads.
type VerbCount struct {
	Lemma string
	Count int
}

// Tally accumulates voice evidence for one window or a whole document.
type Tally struct {
	Active   int
	Passive  int
	Quotes   bool
	Verbs    []VerbCount
	Evidence []string
}

// Total is the number of active and passive constructions.
func (t Tally) Total() int {
	return t.Active + t.Passive
}

// Add folds o into t and returns the combined tally; neither input is modified.
func (t Tally) Add(o Tally) Tally {
	out := Tally{
		Active:   t.Active + o.Active,
		Passive:  t.Passive + o.Passive,
		Quotes:   t.Quotes || o.Quotes,
		Verbs:    append([]VerbCount(nil), t.Verbs...),
		Evidence: append(append([]string(nil), t.Evidence...), o.Evidence...),
	}
	for _, v := range o.Verbs {
		out.verb(v.Lemma, v.Count)
	}
	return out
}

func (t *Tally) verb(lemma string, n int) {
	for i := range t.Verbs {
		if t.Verbs[i].Lemma == lemma {
			t.Verbs[i].Count += n
			return
		}
	}
	t.Verbs = append(t.Verbs, VerbCount{Lemma: lemma, Count: n})
}

// Windows returns the text around every keyword match, radius runes on each side,
// without duplicates and in order of first occurrence.
func Windows(m *Matcher, text string, radius int) []string {
	matches := m.Find(text)
	if len(matches) == 0 {
		return nil
	}
	runes := []rune(text)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		start := max(0, match.Start-radius)
		end := min(len(runes), match.End+radius)
		w := string(runes[start:end])
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// AnalyzeWindow classifies the voice of scientist constructions in one window given its
// dependency parse. A window that holds a keyword but yields no construction counts as
// one active occurrence.
func AnalyzeWindow(m *Matcher, window string, tokens []nlp.Token) Tally {
	t := Tally{Quotes: strings.ContainsAny(window, "«\"")}

	matches := m.Find(window)
	if len(matches) == 0 {
		return t
	}
	terms := make([]string, len(matches))
	for i, match := range matches {
		terms[i] = match.Term
	}

	for i, tok := range tokens {
		if tok.POS != "VERB" {
			continue
		}
		for _, child := range nlp.Children(tokens, i) {
			_, active := activeDeps[child.Dep]
			_, passive := passiveDeps[child.Dep]
			if !active && !passive {
				continue
			}
			if !refersToScientist(m, child.Text, terms) {
				continue
			}
			t.verb(tok.Lemma, 1)
			if active {
				t.Active++
				t.Evidence = append(t.Evidence, fmt.Sprintf("актив: %s %s (%s)", child.Text, tok.Text, tok.Lemma))
			} else {
				t.Passive++
				t.Evidence = append(t.Evidence, fmt.Sprintf("пассив: %s %s (%s)", child.Text, tok.Text, tok.Lemma))
			}
		}
	}

	if t.Total() == 0 {
		t.Active = 1
		t.Evidence = append(t.Evidence, fmt.Sprintf("автоматически: найден термин '%s'", terms[0]))
	}
	return t
}

func refersToScientist(m *Matcher, text string, terms []string) bool {
	folded := processing.Fold(text)
	if folded == "" {
		return false
	}
	for _, term := range terms {
		ft := processing.Fold(term)
		if strings.Contains(folded, ft) || strings.Contains(ft, folded) {
			return true
		}
	}
	return m.Contains(text)
}

// Analyzer runs the classifier over whole documents.
type Analyzer struct {
	parser  Parser
	matcher *Matcher
	radius  int
	log     *slog.Logger
}

// NewAnalyzer creates an Analyzer over the built-in scientist keywords. A radius <= 0
// falls back to DefaultRadius.
func NewAnalyzer(parser Parser, radius int, log *slog.Logger) *Analyzer {
	if radius <= 0 {
		radius = DefaultRadius
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Analyzer{parser: parser, matcher: Scientists, radius: radius, log: log}
}

// Matcher returns the keyword matcher in use.
func (a *Analyzer) Matcher() *Matcher {
	return a.matcher
}

// Analyze folds the tallies of every keyword window in text. A window whose parse fails
// is still counted through the keyword fallback and the outcome is marked degraded.
func (a *Analyzer) Analyze(ctx context.Context, text string) models.Outcome[Tally] {
	var (
		total  Tally
		failed int
		reason string
	)
	for _, w := range Windows(a.matcher, text, a.radius) {
		tokens, err := a.parser.ParseDependencies(ctx, w)
		if err != nil {
			failed++
			reason = fmt.Sprintf("parse dependencies: %v", err)
			a.log.Warn("parse window", slog.Any("err", err))
			tokens = nil
		}
		total = total.Add(AnalyzeWindow(a.matcher, w, tokens))
	}

	if failed > 0 {
		return models.Degrade(total, fmt.Sprintf("%d window(s) failed: %s", failed, reason))
	}
	return models.Ok(total)
}
