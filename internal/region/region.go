package region

import "strings"

// aliases maps provider-supplied place names to the canonical names used as
// storage/join keys. The provider is inconsistent about territorial naming
// (abbreviations, parenthesized historical names), so anything we have seen
// it emit for a known place belongs here.
var aliases = map[string]string{
	"US":                  "United States",
	"USA":                 "United States",
	"UK":                  "United Kingdom",
	"Congo - Kinshasa":    "Democratic Republic of Congo",
	"DRC":                 "Democratic Republic of Congo",
	"Congo - Brazzaville": "Congo",
	"Myanmar (Burma)":     "Myanmar",
	"Burma":               "Myanmar",
}

// Normalize maps a raw provider place name to its canonical form. Unknown
// names pass through unchanged after trimming, so no data is ever dropped
// here; the region audit command reports names the table may need to learn.
func Normalize(raw string) string {
	name := strings.TrimSpace(raw)
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	return name
}

// Aliases returns a copy of the alias table, keyed by raw provider name.
func Aliases() map[string]string {
	out := make(map[string]string, len(aliases))
	for raw, canonical := range aliases {
		out[raw] = canonical
	}
	return out
}

// Known reports whether name is either a canonical name produced by the
// table or one of its alias keys.
func Known(name string) bool {
	if _, ok := aliases[name]; ok {
		return true
	}
	for _, canonical := range aliases {
		if canonical == name {
			return true
		}
	}
	return false
}
