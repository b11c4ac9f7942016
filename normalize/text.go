package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	umlauts = strings.NewReplacer(
		"ß", "ss",
		"ä", "ae",
		"ö", "oe",
		"ü", "ue",
		"ø", "o",
		"æ", "ae",
	)
	notLowerAlnum = regexp.MustCompile(`[^a-z0-9]`)
	notAlnum      = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	notEmailChar  = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_.@-]+`)
	emailShape    = regexp.MustCompile(`^[\p{L}\p{M}\p{N}_.-]+@[\p{L}\p{M}\p{N}_.-]+`)
)

// lower applies full Unicode lower-casing. A Caser keeps state, so a fresh
// one is built per call.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

func upper(s string) string {
	return cases.Upper(language.Und).String(s)
}

// DefaultNormalizer is used for names and any type without its own rules.
// It lower-cases, spells out German and Nordic letters and keeps only
// ASCII letters and digits.
type DefaultNormalizer struct{}

func (DefaultNormalizer) Normalize(raw string) string {
	s := umlauts.Replace(lower(strings.TrimSpace(raw)))
	return notLowerAlnum.ReplaceAllString(s, "")
}

// CityNormalizer lower-cases and drops everything that is not an ASCII
// letter or digit.
type CityNormalizer struct{}

func (CityNormalizer) Normalize(raw string) string {
	return notAlnum.ReplaceAllString(lower(raw), "")
}

// EmailNormalizer lower-cases the address, strips characters that cannot
// appear in a mailbox and rejects anything without a local part and domain.
type EmailNormalizer struct{}

func (EmailNormalizer) Normalize(raw string) string {
	s := notEmailChar.ReplaceAllString(lower(strings.TrimSpace(raw)), "")
	if !emailShape.MatchString(s) {
		return ""
	}
	return s
}
