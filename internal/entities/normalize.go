package entities

import (
	"regexp"
	"strings"

	"github.com/DeafMist/news-annotator/internal/nlp"
	"github.com/DeafMist/news-annotator/internal/processing"
)

// Entity types after label mapping.
const (
	TypePerson       = "PERSON"
	TypeLocation     = "LOCATION"
	TypeOrganization = "ORGANIZATION"
	TypeOther        = "OTHER"
)

var (
	legalForm     = regexp.MustCompile(`^(ПАО|АО|ООО|ЗАО|НКО|АКБ|ИП|ОАО|НАО|МКК|ГУП|ФГУП)\s+`)
	quotedSuffix  = regexp.MustCompile(`\s+"([^"]+)"`)
	parenthesized = regexp.MustCompile(`\([^)]*\)`)
	quoteChars    = regexp.MustCompile(`[«»"'()]`)
)

// properTags mark a morphological reading as a toponym, first name or surname.
var properTags = []string{"Geox", "Name", "Surn"}

// TypeOf maps an NER label to an entity type.
func TypeOf(label string) string {
	switch label {
	case nlp.LabelPerson:
		return TypePerson
	case nlp.LabelLocation:
		return TypeLocation
	case nlp.LabelOrganization:
		return TypeOrganization
	default:
		return TypeOther
	}
}

// CleanOrganization strips a leading legal-form abbreviation, a quoted suffix and
// parenthesised fragments from an organisation name.
func CleanOrganization(name string) string {
	for _, re := range []*regexp.Regexp{legalForm, quotedSuffix, parenthesized} {
		name = strings.TrimSpace(re.ReplaceAllString(name, ""))
	}
	return name
}

// NormalizePerson reduces a person name to its surname's normal form when the last word
// reads as a surname, and title-cases the whole name otherwise.
func NormalizePerson(name string, parse func(word string) (nlp.MorphParse, error)) (string, error) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return processing.TitleCase(name), nil
	}
	p, err := parse(parts[len(parts)-1])
	if err != nil {
		return "", err
	}
	if p.HasTag("Surn") {
		return processing.TitleCase(p.NormalForm), nil
	}
	return processing.TitleCase(name), nil
}

// NormalizeOther returns the title-cased normal form of proper-noun-like text and the
// text unchanged otherwise.
func NormalizeOther(text string, parse func(word string) (nlp.MorphParse, error)) (string, error) {
	p, err := parse(text)
	if err != nil {
		return "", err
	}
	if p.HasTag(properTags...) {
		return processing.TitleCase(p.NormalForm), nil
	}
	return text, nil
}

// StripQuotes removes guillemets, quotes and parentheses and trims the result.
func StripQuotes(s string) string {
	return strings.TrimSpace(quoteChars.ReplaceAllString(s, ""))
}
