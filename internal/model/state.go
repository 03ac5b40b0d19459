package model

import "strings"

// abbrToState maps upper-case USPS abbreviations to lower-case full names.
var abbrToState = map[string]string{
	"AL": "alabama", "AK": "alaska", "AZ": "arizona", "AR": "arkansas",
	"CA": "california", "CO": "colorado", "CT": "connecticut", "DE": "delaware",
	"FL": "florida", "GA": "georgia", "HI": "hawaii", "ID": "idaho",
	"IL": "illinois", "IN": "indiana", "IA": "iowa", "KS": "kansas",
	"KY": "kentucky", "LA": "louisiana", "ME": "maine", "MD": "maryland",
	"MA": "massachusetts", "MI": "michigan", "MN": "minnesota", "MS": "mississippi",
	"MO": "missouri", "MT": "montana", "NE": "nebraska", "NV": "nevada",
	"NH": "new hampshire", "NJ": "new jersey", "NM": "new mexico", "NY": "new york",
	"NC": "north carolina", "ND": "north dakota", "OH": "ohio", "OK": "oklahoma",
	"OR": "oregon", "PA": "pennsylvania", "RI": "rhode island", "SC": "south carolina",
	"SD": "south dakota", "TN": "tennessee", "TX": "texas", "UT": "utah",
	"VT": "vermont", "VA": "virginia", "WA": "washington", "WV": "west virginia",
	"WI": "wisconsin", "WY": "wyoming", "DC": "district of columbia",
}

var stateToAbbr = func() map[string]string {
	m := make(map[string]string, len(abbrToState)+2)
	for abbr, full := range abbrToState {
		m[full] = abbr
	}
	m["washington dc"] = "DC"
	m["washington d.c."] = "DC"
	return m
}()

// NormalizeState returns the two-letter USPS code for a US state or DC given
// either its abbreviation or its full name. Anything else yields "".
func NormalizeState(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	upper := strings.ToUpper(strings.ReplaceAll(s, ".", ""))
	if _, ok := abbrToState[upper]; ok {
		return upper
	}
	if abbr, ok := stateToAbbr[strings.ToLower(s)]; ok {
		return abbr
	}
	return ""
}

// StateName returns the lower-case full name for a two-letter code.
func StateName(abbr string) string {
	return abbrToState[strings.ToUpper(abbr)]
}

// AllStates returns every supported two-letter code.
func AllStates() []string {
	out := make([]string, 0, len(abbrToState))
	for abbr := range abbrToState {
		out = append(out, abbr)
	}
	return out
}
