package common

import "strings"

// missingTokens are the placeholders station loggers write for absent values.
var missingTokens = []string{"", "NA", "NAN", "NULL", "NONE", "-999"}

// IsMissing reports whether a raw field is one of the logger's "no value" markers.
func IsMissing(v string) bool {
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, tok := range missingTokens {
		if v == tok {
			return true
		}
	}
	return false
}

// HasAny returns true if s contains any of the substrings.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
