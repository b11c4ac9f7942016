package normalize

import "regexp"

type zipRule struct {
	strip  *regexp.Regexp
	length int
	valid  *regexp.Regexp
}

var (
	defaultZipRule = zipRule{
		strip:  regexp.MustCompile(`[^0-9]`),
		length: 5,
		valid:  regexp.MustCompile(`^[0-9]{5}$`),
	}

	zipRules = map[string]zipRule{
		"CA": {
			strip:  regexp.MustCompile(`[^0-9A-Za-z]`),
			length: 6,
			valid:  regexp.MustCompile(`^(?:[A-Za-z][0-9]){3}$`),
		},
		"GB": {
			strip:  regexp.MustCompile(`[^0-9A-Za-z]`),
			length: 7,
			valid:  regexp.MustCompile(`^(?:[A-Za-z]{1,2}[0-9]{2,3}|[A-Za-z]{1,2}[0-9][A-Za-z][0-9])[A-Za-z]{2}$`),
		},
		"IN": {
			strip:  regexp.MustCompile(`[^0-9]`),
			length: 6,
			valid:  regexp.MustCompile(`^[0-9]{6}$`),
		},
		"JP": {
			strip:  regexp.MustCompile(`[^0-9]`),
			length: 7,
			valid:  regexp.MustCompile(`^[0-9]{7}$`),
		},
	}
)

// ZipNormalizer reduces postal codes to the characters a country uses,
// truncated to the country's code length.
type ZipNormalizer struct {
	rule zipRule
}

func NewZipNormalizer(country string) *ZipNormalizer {
	rule, ok := zipRules[CanonicalCountry(country)]
	if !ok {
		rule = defaultZipRule
	}
	return &ZipNormalizer{rule: rule}
}

func (z *ZipNormalizer) Normalize(raw string) string {
	s := z.rule.strip.ReplaceAllString(raw, "")
	// Only ASCII survives the strip, so slicing bytes is safe.
	if len(s) > z.rule.length {
		s = s[:z.rule.length]
	}
	if !z.rule.valid.MatchString(s) {
		return ""
	}
	return s
}
