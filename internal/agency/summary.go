package agency

import (
	"math"
	"sort"
	"strings"
)

// Voice is the dominant construction type of a document.
type Voice string

const (
	VoiceActive  Voice = "active"
	VoicePassive Voice = "passive"
	VoiceMixed   Voice = "mixed"
)

// ColumnNames are the voice-analysis columns appended to retained rows.
var ColumnNames = []string{
	"found_terms",
	"active_count",
	"passive_count",
	"agency_ratio",
	"dominant_voice",
	"has_quotes",
	"top_verbs",
	"evidence",
}

const (
	topVerbs     = 3
	evidenceKept = 3
)

// Summary is the per-document view of a Tally written to the output sheet.
type Summary struct {
	FoundTerms []string
	Active     int
	Passive    int
	Ratio      float64
	Dominant   Voice
	Quotes     bool
	TopVerbs   []string
	Evidence   []string
}

// Summarize derives the output fields of a document from its tally.
func Summarize(m *Matcher, text string, t Tally) Summary {
	s := Summary{
		FoundTerms: m.Terms(text),
		Active:     t.Active,
		Passive:    t.Passive,
		Ratio:      Ratio(t.Active, t.Passive),
		Dominant:   Dominant(t.Active, t.Passive),
		Quotes:     t.Quotes,
	}

	verbs := append([]VerbCount(nil), t.Verbs...)
	sort.SliceStable(verbs, func(i, j int) bool { return verbs[i].Count > verbs[j].Count })
	for i := 0; i < len(verbs) && i < topVerbs; i++ {
		s.TopVerbs = append(s.TopVerbs, verbs[i].Lemma)
	}

	if len(t.Evidence) > evidenceKept {
		s.Evidence = append([]string(nil), t.Evidence[:evidenceKept]...)
	} else {
		s.Evidence = append([]string(nil), t.Evidence...)
	}
	return s
}

// Ratio is active/(active+passive) rounded half to even at two decimals, 0 when both
// are zero.
func Ratio(active, passive int) float64 {
	total := active + passive
	if total <= 0 {
		return 0
	}
	return math.RoundToEven(float64(active)/float64(total)*100) / 100
}

// Dominant compares the counts; ties are mixed.
func Dominant(active, passive int) Voice {
	switch {
	case active > passive:
		return VoiceActive
	case passive > active:
		return VoicePassive
	default:
		return VoiceMixed
	}
}

// Cells returns the summary values in ColumnNames order.
func (s Summary) Cells() []any {
	evidence := "none"
	if len(s.Evidence) > 0 {
		evidence = strings.Join(s.Evidence, " | ")
	}
	return []any{
		strings.Join(s.FoundTerms, ", "),
		s.Active,
		s.Passive,
		s.Ratio,
		string(s.Dominant),
		s.Quotes,
		strings.Join(s.TopVerbs, ", "),
		evidence,
	}
}

// Fields returns the summary keyed by column name for sinks.
func (s Summary) Fields() map[string]any {
	out := make(map[string]any, len(ColumnNames))
	for i, v := range s.Cells() {
		out[ColumnNames[i]] = v
	}
	return out
}

// Stats aggregates a whole run for the summary sheet.
type Stats struct {
	Loaded     int
	Flagged    int
	Retained   int
	WithQuotes int
	Degraded   int
	Active     int
	Passive    int
	Mixed      int
	ratioSum   float64
}

// Observe adds a retained document.
func (s *Stats) Observe(sum Summary) {
	s.Retained++
	s.ratioSum += sum.Ratio
	if sum.Quotes {
		s.WithQuotes++
	}
	switch sum.Dominant {
	case VoiceActive:
		s.Active++
	case VoicePassive:
		s.Passive++
	default:
		s.Mixed++
	}
}

// MeanRatio is the average agency ratio of retained documents.
func (s Stats) MeanRatio() float64 {
	if s.Retained == 0 {
		return 0
	}
	return s.ratioSum / float64(s.Retained)
}

// Sheet renders the stats as a header and a single data row.
func (s Stats) Sheet() ([]string, []any) {
	columns := []string{
		"total_rows",
		"flagged_rows",
		"with_scientists",
		"with_quotes",
		"mean_agency_ratio",
		"dominant_active",
		"dominant_passive",
		"dominant_mixed",
		"degraded_rows",
	}
	values := []any{
		s.Loaded,
		s.Flagged,
		s.Retained,
		s.WithQuotes,
		math.RoundToEven(s.MeanRatio()*100) / 100,
		s.Active,
		s.Passive,
		s.Mixed,
		s.Degraded,
	}
	return columns, values
}
