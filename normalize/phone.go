package normalize

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// restrictedLeadingDigits lists, per region, national number prefixes that
// are never accepted. GB numbers starting with 4 or 6 are not allocated.
var restrictedLeadingDigits = map[string]string{
	"GB": "46",
}

// PhoneNormalizer parses numbers with the country as the default region and
// emits E.164 digits without the leading plus.
type PhoneNormalizer struct {
	region string
}

func NewPhoneNormalizer(country string) *PhoneNormalizer {
	region := CanonicalCountry(country)
	if region == "DEFAULT" {
		// Without a region only numbers carrying their own country code parse.
		region = ""
	}
	return &PhoneNormalizer{region: region}
}

func (p *PhoneNormalizer) Normalize(raw string) string {
	num, err := phonenumbers.Parse(strings.ReplaceAll(raw, "+", ""), p.region)
	if err != nil {
		return ""
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return ""
	}
	if restricted, ok := restrictedLeadingDigits[p.region]; ok {
		national := strconv.FormatUint(num.GetNationalNumber(), 10)
		if strings.ContainsRune(restricted, rune(national[0])) {
			return ""
		}
	}
	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+")
}
