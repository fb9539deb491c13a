package agency

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/DeafMist/news-annotator/internal/processing"
)

// Stems of words that denote a scientist or an academic role.
var Stems = []string{
	"учены", "учено", "исследовател", "профессор", "академик",
	"специалист", "эксперт", "биолог", "физик", "химик", "астроном", "математик", "генетик",
	"нейробиолог", "геолог", "антрополог", "палеонтолог", "археолог", "океанолог", "климатолог",
	"микробиолог", "вирусолог", "иммунолог", "нейрофизиолог", "биофизик", "биохимик", "социолог",
	"лингвист", "ректор", "декан", "кандидат", "phd", "постдок", "аспирант", "докторант", "лаборатор",
}

// Phrases denoting scientist roles that no single stem covers.
var Phrases = []string{
	"научная группа", "доктор наук", "доктора наук", "кандидат наук",
	"научный руководитель", "научный сотрудник", "ведущий ученый", "коллектив ученых",
}

// Match is a keyword occurrence. Start and End are rune offsets into the searched text;
// Term is the matched text lower-cased.
type Match struct {
	Start int
	End   int
	Term  string
}

// Matcher finds scientist keywords case-insensitively, treating ё as е.
type Matcher struct {
	re *regexp.Regexp
}

// NewMatcher compiles an ordered alternation of the given keywords. Earlier keywords win
// when several match at the same position.
func NewMatcher(keywords ...[]string) *Matcher {
	var alts []string
	for _, list := range keywords {
		for _, k := range list {
			alts = append(alts, regexp.QuoteMeta(processing.Fold(k)))
		}
	}
	return &Matcher{re: regexp.MustCompile(strings.Join(alts, "|"))}
}

// Scientists matches the built-in stems and phrases.
var Scientists = NewMatcher(Stems, Phrases)

// Find returns all non-overlapping keyword occurrences in text.
func (m *Matcher) Find(text string) []Match {
	runes := []rune(text)
	folded := string(processing.FoldRunes(runes))

	locs := m.re.FindAllStringIndex(folded, -1)
	if len(locs) == 0 {
		return nil
	}

	out := make([]Match, 0, len(locs))
	// folded and runes share rune offsets; walk byte offsets forward once.
	byteOff, runeOff := 0, 0
	toRune := func(b int) int {
		for byteOff < b {
			_, size := utf8.DecodeRuneInString(folded[byteOff:])
			byteOff += size
			runeOff++
		}
		return runeOff
	}
	for _, loc := range locs {
		start := toRune(loc[0])
		end := toRune(loc[1])
		out = append(out, Match{
			Start: start,
			End:   end,
			Term:  strings.ToLower(string(runes[start:end])),
		})
	}
	return out
}

// Contains reports whether text holds any keyword.
func (m *Matcher) Contains(text string) bool {
	return m.re.MatchString(processing.Fold(text))
}

// Terms returns the distinct matched terms of text in first-occurrence order.
func (m *Matcher) Terms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, match := range m.Find(text) {
		if _, ok := seen[match.Term]; ok {
			continue
		}
		seen[match.Term] = struct{}{}
		out = append(out, match.Term)
	}
	return out
}
