package normalize

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	json "github.com/goccy/go-json"
)

//go:embed address_tables.json
var embeddedAddressTables []byte

// AddressTables holds the word replacement tables used by the address
// normalizer, keyed by table name. Keys and values are upper case.
type AddressTables map[string]map[string]string

// Table names that must be present in every AddressTables.
const (
	NumberIndicators        = "NumberIndicators"
	DirectionalWords        = "DirectionalWords"
	DefaultStreetSuffixes   = "DefaultStreetSuffixes"
	USStreetSuffixes        = "USStreetSuffixes"
	USSubBuildingDesignator = "USSubBuildingDesignator"
	ITStreetPrefixes        = "ITStreetPrefixes"
	FRStreetDesignator      = "FRStreetDesignator"
	ESStreetPrefixes        = "ESStreetPrefixes"
	UKOrganizationSuffixes  = "UKOrganizationSuffixes"
	UKStreetSuffixes        = "UKStreetSuffixes"
	UKSubBuildingDesignator = "UKSubBuildingDesignator"
)

// countryTables lists, in application order, the tables used per country on
// top of NumberIndicators and DirectionalWords. When several tables know a
// word the later one wins.
var countryTables = map[string][]string{
	"US":      {USStreetSuffixes, USSubBuildingDesignator},
	"CA":      {DefaultStreetSuffixes},
	"GB":      {UKOrganizationSuffixes, UKStreetSuffixes, UKSubBuildingDesignator},
	"FR":      {FRStreetDesignator, DefaultStreetSuffixes},
	"DE":      {DefaultStreetSuffixes},
	"ES":      {DefaultStreetSuffixes, ESStreetPrefixes},
	"IT":      {DefaultStreetSuffixes, ITStreetPrefixes},
	"JP":      {DefaultStreetSuffixes},
	"IN":      {DefaultStreetSuffixes},
	"DEFAULT": {DefaultStreetSuffixes},
}

var defaultAddressTables = mustLoadEmbeddedTables()

func mustLoadEmbeddedTables() AddressTables {
	tables, err := LoadAddressTables(bytes.NewReader(embeddedAddressTables))
	if err != nil {
		panic(fmt.Sprintf("normalize: embedded address tables: %v", err))
	}
	return tables
}

// LoadAddressTables decodes and validates a JSON document of address tables.
func LoadAddressTables(r io.Reader) (AddressTables, error) {
	var tables AddressTables
	if err := json.NewDecoder(r).Decode(&tables); err != nil {
		return nil, fmt.Errorf("failed to decode address tables: %w", err)
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return tables, nil
}

// Validate checks that every named table is present and non-empty.
func (t AddressTables) Validate() error {
	for _, name := range []string{
		NumberIndicators, DirectionalWords, DefaultStreetSuffixes,
		USStreetSuffixes, USSubBuildingDesignator, ITStreetPrefixes,
		FRStreetDesignator, ESStreetPrefixes, UKOrganizationSuffixes,
		UKStreetSuffixes, UKSubBuildingDesignator,
	} {
		if len(t[name]) == 0 {
			return fmt.Errorf("address table %s is missing or empty", name)
		}
	}
	return nil
}

var (
	addressDelimiter = regexp.MustCompile(`(?:\s?,\s?)+|\bC/O\b|!|[\[{(]|[\]})]|\s+`)
	poundPattern     = regexp.MustCompile(`([A-Z]*)#([0-9A-Z\-/]*)`)
)

// AddressNormalizer tokenizes an address, abbreviates well known words and
// joins the tokens back together in lower case.
type AddressNormalizer struct {
	words map[string]string
}

// NewAddressNormalizer builds a normalizer from the embedded tables.
func NewAddressNormalizer(country string) (*AddressNormalizer, error) {
	return NewAddressNormalizerWithTables(country, defaultAddressTables)
}

// NewAddressNormalizerWithTables builds a normalizer for country from tables.
func NewAddressNormalizerWithTables(country string, tables AddressTables) (*AddressNormalizer, error) {
	names, ok := countryTables[CanonicalCountry(country)]
	if !ok {
		return nil, fmt.Errorf("%w for addresses: %q", ErrUnsupportedCountry, country)
	}
	words := make(map[string]string)
	for _, name := range append([]string{NumberIndicators, DirectionalWords}, names...) {
		for from, to := range tables[name] {
			words[from] = to
		}
	}
	return &AddressNormalizer{words: words}, nil
}

func (a *AddressNormalizer) Normalize(raw string) string {
	tokens := splitPound(splitDash(tokenizeAddress(upper(strings.TrimSpace(raw)))))

	var b strings.Builder
	for _, tok := range tokens {
		if repl, ok := a.words[tok]; ok {
			tok = repl
		}
		b.WriteString(tok)
	}
	return lower(b.String())
}

// Digest returns the normalized address together with its SHA-256 hex digest.
func (a *AddressNormalizer) Digest(raw string) (normalized, digest string) {
	normalized = a.Normalize(raw)
	sum := sha256.Sum256([]byte(normalized))
	return normalized, hex.EncodeToString(sum[:])
}

func tokenizeAddress(s string) []string {
	var tokens []string
	for _, tok := range addressDelimiter.Split(s, -1) {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// splitDash breaks "12-B" into "12" and "B" when the part before the last
// dash is numeric and the part after it is not.
func splitDash(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		i := strings.LastIndex(tok, "-")
		if i > 0 && i < len(tok)-1 && isNumeric(tok[:i]) && !isNumeric(tok[i+1:]) {
			out = append(out, tok[:i], tok[i+1:])
			continue
		}
		out = append(out, tok)
	}
	return out
}

// splitPound isolates the pound sign so that "APT#4" becomes "APT", "#", "4".
func splitPound(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		loc := firstPoundMatch(tok)
		if loc == nil {
			out = append(out, tok)
			continue
		}
		before := tok[:loc[0]] + tok[loc[2]:loc[3]]
		after := tok[loc[4]:loc[5]] + tok[loc[1]:]
		for _, part := range []string{before, "#", after} {
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// firstPoundMatch returns the submatch indexes of the first pound match that
// has text on at least one side of the sign.
func firstPoundMatch(tok string) []int {
	for _, loc := range poundPattern.FindAllStringSubmatchIndex(tok, -1) {
		if loc[3] > loc[2] || loc[5] > loc[4] {
			return loc
		}
	}
	return nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
