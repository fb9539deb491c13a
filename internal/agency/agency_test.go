package agency_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DeafMist/news-annotator/internal/agency"
	"github.com/DeafMist/news-annotator/internal/nlp"
	"github.com/stretchr/testify/require"
)

type stubParser struct {
	tokens map[string][]nlp.Token
	err    error
	calls  int
}

func (s *stubParser) ParseDependencies(_ context.Context, text string) ([]nlp.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.tokens[text], nil
}

func TestMatcherFind(t *testing.T) {
	matches := agency.Scientists.Find("Профессор МГУ и Учёные из PhD-программы")
	require.Len(t, matches, 3)

	require.Equal(t, agency.Match{Start: 0, End: 9, Term: "профессор"}, matches[0])
	require.Equal(t, "учёны", matches[1].Term)
	require.Equal(t, 16, matches[1].Start)
	require.Equal(t, "phd", matches[2].Term)
}

func TestMatcherPrefersEarlierKeyword(t *testing.T) {
	matches := agency.Scientists.Find("кандидат наук")
	require.Len(t, matches, 1)
	require.Equal(t, "кандидат", matches[0].Term)
}

func TestMatcherTermsDistinct(t *testing.T) {
	terms := agency.Scientists.Terms("Эксперт сказал, эксперт добавил. Биолог молчал")
	require.Equal(t, []string{"эксперт", "биолог"}, terms)
	require.Nil(t, agency.Scientists.Terms("Ничего научного"))
}

func TestWindows(t *testing.T) {
	short := "Учёные и профессор"
	require.Equal(t, []string{short}, agency.Windows(agency.Scientists, short, 100))

	long := "Учёные " + strings.Repeat("x", 300) + " профессор"
	windows := agency.Windows(agency.Scientists, long, 10)
	require.Len(t, windows, 2)
	require.Equal(t, "Учёные xxxxxxxx", windows[0])
	require.Equal(t, "xxxxxxxxx профессор", windows[1])

	require.Nil(t, agency.Windows(agency.Scientists, "нет ключевых слов", 100))
}

func TestAnalyzeWindowActive(t *testing.T) {
	window := "учёные доказали теорему"
	tokens := []nlp.Token{
		{ID: 1, Text: "учёные", Lemma: "учёный", POS: "NOUN", Dep: "nsubj", Head: 2},
		{ID: 2, Text: "доказали", Lemma: "доказать", POS: "VERB", Dep: "ROOT", Head: 0},
		{ID: 3, Text: "теорему", Lemma: "теорема", POS: "NOUN", Dep: "obj", Head: 2},
	}

	got := agency.AnalyzeWindow(agency.Scientists, window, tokens)
	require.Equal(t, 1, got.Active)
	require.Equal(t, 0, got.Passive)
	require.Equal(t, []string{"актив: учёные доказали (доказать)"}, got.Evidence)
	require.Equal(t, []agency.VerbCount{{Lemma: "доказать", Count: 1}}, got.Verbs)
	require.False(t, got.Quotes)
}

func TestAnalyzeWindowPassive(t *testing.T) {
	window := "Проект «Геном» поддержан учёными"
	tokens := []nlp.Token{
		{ID: 1, Text: "Проект", Lemma: "проект", POS: "NOUN", Dep: "nsubj:pass", Head: 4},
		{ID: 2, Text: "«Геном»", Lemma: "геном", POS: "PROPN", Dep: "appos", Head: 1},
		{ID: 3, Text: "поддержан", Lemma: "поддержать", POS: "AUX", Dep: "aux", Head: 4},
		{ID: 4, Text: "поддержан", Lemma: "поддержать", POS: "VERB", Dep: "ROOT", Head: 0},
		{ID: 5, Text: "учёными", Lemma: "учёный", POS: "NOUN", Dep: "obl", Head: 4},
	}

	got := agency.AnalyzeWindow(agency.Scientists, window, tokens)
	require.Equal(t, 0, got.Active)
	require.Equal(t, 1, got.Passive)
	require.True(t, got.Quotes)
	require.Equal(t, []string{"пассив: учёными поддержан (поддержать)"}, got.Evidence)
}

func TestAnalyzeWindowFallsBackToKeyword(t *testing.T) {
	got := agency.AnalyzeWindow(agency.Scientists, "По словам эксперта, рынок растёт", nil)
	require.Equal(t, 1, got.Active)
	require.Equal(t, 0, got.Passive)
	require.Equal(t, []string{"автоматически: найден термин 'эксперт'"}, got.Evidence)
	require.Empty(t, got.Verbs)
}

func TestAnalyzeWindowWithoutKeyword(t *testing.T) {
	got := agency.AnalyzeWindow(agency.Scientists, "Цены выросли", nil)
	require.Equal(t, 0, got.Total())
	require.Empty(t, got.Evidence)
}

func TestTallyAddDoesNotAlias(t *testing.T) {
	a := agency.Tally{Active: 1, Verbs: []agency.VerbCount{{Lemma: "открыть", Count: 1}}, Evidence: []string{"a"}}
	b := agency.Tally{Passive: 2, Quotes: true, Verbs: []agency.VerbCount{{Lemma: "открыть", Count: 2}, {Lemma: "изучить", Count: 1}}, Evidence: []string{"b"}}

	sum := a.Add(b)
	require.Equal(t, 1, sum.Active)
	require.Equal(t, 2, sum.Passive)
	require.True(t, sum.Quotes)
	require.Equal(t, []agency.VerbCount{{Lemma: "открыть", Count: 3}, {Lemma: "изучить", Count: 1}}, sum.Verbs)
	require.Equal(t, []string{"a", "b"}, sum.Evidence)
	require.Equal(t, 1, a.Verbs[0].Count)
}

func TestAnalyzerExcludesTextWithoutKeywords(t *testing.T) {
	parser := &stubParser{}
	out := agency.NewAnalyzer(parser, 100, nil).Analyze(context.Background(), "Курс рубля снизился")
	require.False(t, out.Degraded)
	require.Equal(t, 0, out.Value.Total())
	require.Equal(t, 0, parser.calls)
}

func TestAnalyzerUnresolvedWindowsCountActive(t *testing.T) {
	text := "Учёные " + strings.Repeat("слово ", 60) + "профессор " + strings.Repeat("текст ", 60) + "эксперт"
	parser := &stubParser{}

	out := agency.NewAnalyzer(parser, 100, nil).Analyze(context.Background(), text)
	windows := agency.Windows(agency.Scientists, text, 100)
	require.Len(t, windows, 3)
	require.False(t, out.Degraded)
	require.Equal(t, len(windows), out.Value.Active)
	require.Equal(t, 0, out.Value.Passive)
	require.Equal(t, 3, parser.calls)
}

func TestAnalyzerDegradesOnParseFailure(t *testing.T) {
	parser := &stubParser{err: errors.New("parser down")}

	out := agency.NewAnalyzer(parser, 0, nil).Analyze(context.Background(), "Учёные доказали теорему")
	require.True(t, out.Degraded)
	require.Contains(t, out.Reason, "parser down")
	require.Equal(t, 1, out.Value.Active)
}

func TestAnalyzerFoldsWindows(t *testing.T) {
	text := "учёные доказали теорему"
	parser := &stubParser{tokens: map[string][]nlp.Token{
		text: {
			{ID: 1, Text: "учёные", Lemma: "учёный", POS: "NOUN", Dep: "nsubj", Head: 2},
			{ID: 2, Text: "доказали", Lemma: "доказать", POS: "VERB", Dep: "ROOT", Head: 0},
		},
	}}

	a := agency.NewAnalyzer(parser, 100, nil)
	out := a.Analyze(context.Background(), text)
	require.False(t, out.Degraded)

	sum := agency.Summarize(a.Matcher(), text, out.Value)
	require.Equal(t, []string{"учёны"}, sum.FoundTerms)
	require.Equal(t, 1, sum.Active)
	require.Equal(t, 1.0, sum.Ratio)
	require.Equal(t, agency.VoiceActive, sum.Dominant)
	require.Equal(t, []string{"доказать"}, sum.TopVerbs)
}

func TestRatio(t *testing.T) {
	tests := []struct {
		active, passive int
		want            float64
	}{
		{active: 0, passive: 0, want: 0},
		{active: 1, passive: 0, want: 1},
		{active: 0, passive: 4, want: 0},
		{active: 2, passive: 1, want: 0.67},
		{active: 1, passive: 2, want: 0.33},
		{active: 1, passive: 7, want: 0.12},
		{active: 5, passive: 3, want: 0.62},
		{active: 3, passive: 5, want: 0.38},
	}

	for _, tt := range tests {
		got := agency.Ratio(tt.active, tt.passive)
		require.Equal(t, tt.want, got)
		require.GreaterOrEqual(t, got, 0.0)
		require.LessOrEqual(t, got, 1.0)
	}
}

func TestDominant(t *testing.T) {
	require.Equal(t, agency.VoiceActive, agency.Dominant(3, 1))
	require.Equal(t, agency.VoicePassive, agency.Dominant(1, 3))
	require.Equal(t, agency.VoiceMixed, agency.Dominant(2, 2))
}

func TestSummarizeTopVerbsAndEvidence(t *testing.T) {
	tally := agency.Tally{
		Active:  3,
		Passive: 1,
		Verbs: []agency.VerbCount{
			{Lemma: "сказать", Count: 1},
			{Lemma: "открыть", Count: 3},
			{Lemma: "изучить", Count: 2},
			{Lemma: "найти", Count: 3},
		},
		Evidence: []string{"e1", "e2", "e3", "e4"},
	}

	sum := agency.Summarize(agency.Scientists, "биолог", tally)
	require.Equal(t, []string{"открыть", "найти", "изучить"}, sum.TopVerbs)
	require.Equal(t, []string{"e1", "e2", "e3"}, sum.Evidence)
	require.Equal(t, 0.75, sum.Ratio)

	cells := sum.Cells()
	require.Len(t, cells, len(agency.ColumnNames))
	require.Equal(t, "биолог", cells[0])
	require.Equal(t, "active", cells[4])
	require.Equal(t, "e1 | e2 | e3", cells[7])

	empty := agency.Summary{}.Cells()
	require.Equal(t, "none", empty[7])
}

func TestStats(t *testing.T) {
	var s agency.Stats
	s.Loaded = 10
	s.Flagged = 4
	s.Observe(agency.Summary{Ratio: 1, Dominant: agency.VoiceActive, Quotes: true})
	s.Observe(agency.Summary{Ratio: 0.5, Dominant: agency.VoiceMixed})

	require.Equal(t, 2, s.Retained)
	require.Equal(t, 1, s.WithQuotes)
	require.InDelta(t, 0.75, s.MeanRatio(), 1e-9)

	columns, values := s.Sheet()
	require.Len(t, values, len(columns))
	require.Equal(t, 10, values[0])
	require.Equal(t, 0.75, values[4])

	require.Equal(t, 0.0, agency.Stats{}.MeanRatio())

	var half agency.Stats
	half.Observe(agency.Summary{Ratio: 0.25, Dominant: agency.VoicePassive})
	half.Observe(agency.Summary{Ratio: 0, Dominant: agency.VoicePassive})
	_, values = half.Sheet()
	require.Equal(t, 0.12, values[4])
}
