package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stateNames maps each region abbreviation to the spellings accepted for it.
// The abbreviation itself is always accepted.
var stateNames = map[string]map[string][]string{
	"US": {
		"AL": {"Alabama"}, "AK": {"Alaska"}, "AZ": {"Arizona"}, "AR": {"Arkansas"},
		"CA": {"California"}, "CO": {"Colorado"}, "CT": {"Connecticut"}, "DE": {"Delaware"},
		"DC": {"District of Columbia", "Washington DC"}, "FL": {"Florida"}, "GA": {"Georgia"},
		"HI": {"Hawaii"}, "ID": {"Idaho"}, "IL": {"Illinois"}, "IN": {"Indiana"}, "IA": {"Iowa"},
		"KS": {"Kansas"}, "KY": {"Kentucky"}, "LA": {"Louisiana"}, "ME": {"Maine"},
		"MD": {"Maryland"}, "MA": {"Massachusetts"}, "MI": {"Michigan"}, "MN": {"Minnesota"},
		"MS": {"Mississippi"}, "MO": {"Missouri"}, "MT": {"Montana"}, "NE": {"Nebraska"},
		"NV": {"Nevada"}, "NH": {"New Hampshire"}, "NJ": {"New Jersey"}, "NM": {"New Mexico"},
		"NY": {"New York"}, "NC": {"North Carolina"}, "ND": {"North Dakota"}, "OH": {"Ohio"},
		"OK": {"Oklahoma"}, "OR": {"Oregon"}, "PA": {"Pennsylvania"}, "RI": {"Rhode Island"},
		"SC": {"South Carolina"}, "SD": {"South Dakota"}, "TN": {"Tennessee"}, "TX": {"Texas"},
		"UT": {"Utah"}, "VT": {"Vermont"}, "VA": {"Virginia"}, "WA": {"Washington"},
		"WV": {"West Virginia"}, "WI": {"Wisconsin"}, "WY": {"Wyoming"},
		"AS": {"American Samoa"}, "GU": {"Guam"}, "MP": {"Northern Mariana Islands"},
		"PR": {"Puerto Rico"}, "VI": {"US Virgin Islands", "Virgin Islands"},
		// TODO: confirm with the data owners whether the literal word "state"
		// should keep mapping to ST or be rejected.
		"ST": {"State"},
	},
	"CA": {
		"AB": {"Alberta"}, "BC": {"British Columbia", "Colombie-Britannique"},
		"MB": {"Manitoba"}, "NB": {"New Brunswick", "Nouveau-Brunswick"},
		"NL": {"Newfoundland and Labrador", "Newfoundland", "Terre-Neuve-et-Labrador"},
		"NS": {"Nova Scotia", "Nouvelle-Écosse"}, "NT": {"Northwest Territories", "Territoires du Nord-Ouest"},
		"NU": {"Nunavut"}, "ON": {"Ontario"}, "PE": {"Prince Edward Island", "PEI", "Île-du-Prince-Édouard"},
		"QC": {"Quebec", "Québec"}, "SK": {"Saskatchewan"}, "YT": {"Yukon", "Yukon Territory"},
	},
	"FR": {
		"ARA": {"Auvergne-Rhône-Alpes"}, "BFC": {"Bourgogne-Franche-Comté"}, "BRE": {"Bretagne", "Brittany"},
		"CVL": {"Centre-Val de Loire", "Centre"}, "COR": {"Corse", "Corsica"}, "GES": {"Grand Est"},
		"HDF": {"Hauts-de-France"}, "IDF": {"Île-de-France"}, "NOR": {"Normandie", "Normandy"},
		"NAQ": {"Nouvelle-Aquitaine"}, "OCC": {"Occitanie"}, "PDL": {"Pays de la Loire"},
		"PAC": {"Provence-Alpes-Côte d'Azur", "PACA"},
	},
	"ES": {
		"AN": {"Andalucía", "Andalusia"}, "AR": {"Aragón"}, "AS": {"Asturias", "Principado de Asturias"},
		"CN": {"Canarias", "Canary Islands", "Islas Canarias"}, "CB": {"Cantabria"},
		"CL": {"Castilla y León"}, "CM": {"Castilla-La Mancha"}, "CT": {"Cataluña", "Catalunya", "Catalonia"},
		"EX": {"Extremadura"}, "GA": {"Galicia"}, "IB": {"Illes Balears", "Islas Baleares", "Balearic Islands"},
		"RI": {"La Rioja"}, "MD": {"Madrid", "Comunidad de Madrid"}, "MC": {"Murcia", "Región de Murcia"},
		"NC": {"Navarra", "Nafarroa"}, "PV": {"País Vasco", "Euskadi", "Basque Country"},
		"VC": {"Comunidad Valenciana", "Comunitat Valenciana", "Valencia"}, "CE": {"Ceuta"}, "ML": {"Melilla"},
	},
	"DE": {
		"BW": {"Baden-Württemberg"}, "BY": {"Bayern", "Bavaria"}, "BE": {"Berlin"},
		"BB": {"Brandenburg"}, "HB": {"Bremen"}, "HH": {"Hamburg"}, "HE": {"Hessen", "Hesse"},
		"MV": {"Mecklenburg-Vorpommern"}, "NI": {"Niedersachsen", "Lower Saxony"},
		"NW": {"Nordrhein-Westfalen", "North Rhine-Westphalia"}, "RP": {"Rheinland-Pfalz", "Rhineland-Palatinate"},
		"SL": {"Saarland"}, "SN": {"Sachsen", "Saxony"}, "ST": {"Sachsen-Anhalt", "Saxony-Anhalt"},
		"SH": {"Schleswig-Holstein"}, "TH": {"Thüringen", "Thuringia"},
	},
}

// stateLookups holds, per country, folded spelling to abbreviation.
var stateLookups = buildStateLookups()

func buildStateLookups() map[string]map[string]string {
	out := make(map[string]map[string]string, len(stateNames))
	for country, regions := range stateNames {
		lookup := make(map[string]string)
		for abbr, names := range regions {
			lookup[foldStateKey(abbr)] = abbr
			for _, name := range names {
				lookup[foldStateKey(name)] = abbr
			}
		}
		out[country] = lookup
	}
	return out
}

// foldStateKey upper-cases s, strips accents and keeps only letters so that
// "Baden Wurttemberg" and "baden-württemberg" share a key.
func foldStateKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range upper(folded) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StateNormalizer maps region names to their postal abbreviation. Countries
// without a table accept only values that already look like a two-letter
// code.
type StateNormalizer struct {
	lookup map[string]string
}

func NewStateNormalizer(country string) *StateNormalizer {
	return &StateNormalizer{lookup: stateLookups[CanonicalCountry(country)]}
}

func (s *StateNormalizer) Normalize(raw string) string {
	if s.lookup == nil {
		code := strings.TrimSpace(raw)
		if len(code) == 2 && isASCIILetter(code[0]) && isASCIILetter(code[1]) {
			return strings.ToUpper(code)
		}
		return ""
	}
	return s.lookup[foldStateKey(raw)]
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
