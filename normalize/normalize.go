// Package normalize canonicalizes raw PII values before they are hashed.
//
// Every normalizer is a pure function of its input and the country it was
// built for. An empty result marks a value that could not be normalized;
// callers keep it in the row and never fail the job because of it.
//
// Example:
//
//	n, err := normalize.For(normalize.Phone, "US")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(n.Normalize("(571) 412-0599")) // 15714120599
package normalize

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedCountry is returned when a country-aware normalizer is
// requested for a country it has no rules for.
var ErrUnsupportedCountry = errors.New("unsupported country code")

// Normalizer turns one raw value into its canonical form.
type Normalizer interface {
	Normalize(raw string) string
}

// PIIType names the kind of personal data held by a column.
type PIIType string

const (
	Name      PIIType = "NAME"
	FirstName PIIType = "FIRST_NAME"
	LastName  PIIType = "LAST_NAME"
	Address   PIIType = "ADDRESS"
	State     PIIType = "STATE"
	Zip       PIIType = "ZIP"
	Phone     PIIType = "PHONE"
	Email     PIIType = "EMAIL"
	City      PIIType = "CITY"
)

// ParsePIIType accepts the type names case-insensitively.
func ParsePIIType(s string) (PIIType, error) {
	t := PIIType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case Name, FirstName, LastName, Address, State, Zip, Phone, Email, City:
		return t, nil
	}
	return "", fmt.Errorf("unknown pii type %q", s)
}

// Countries lists the country codes accepted by CanonicalCountry, besides the
// empty code which disables normalization altogether.
var Countries = []string{"US", "CA", "GB", "UK", "FR", "DE", "ES", "IT", "JP", "IN", "DEFAULT"}

// CanonicalCountry upper-cases code and folds the UK alias onto GB.
func CanonicalCountry(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "UK" {
		return "GB"
	}
	return c
}

// IsSupportedCountry reports whether code names a country normalizers have
// rules for.
func IsSupportedCountry(code string) bool {
	c := strings.ToUpper(strings.TrimSpace(code))
	for _, known := range Countries {
		if c == known {
			return true
		}
	}
	return false
}

// For returns the normalizer for values of piiType in the given country.
// NAME, FIRST_NAME and LAST_NAME share the default normalizer.
func For(piiType PIIType, country string) (Normalizer, error) {
	switch piiType {
	case Address:
		return NewAddressNormalizer(country)
	case State:
		return NewStateNormalizer(country), nil
	case Zip:
		return NewZipNormalizer(country), nil
	case Phone:
		return NewPhoneNormalizer(country), nil
	case Email:
		return EmailNormalizer{}, nil
	case City:
		return CityNormalizer{}, nil
	default:
		return DefaultNormalizer{}, nil
	}
}
