// Package slug turns free-text labels into stable identifiers.
package slug

import "strings"

// knownTypos maps recurring misspellings seen in uploaded workbooks to the
// correct display label. Lookup is on the trimmed label, case as written.
var knownTypos = map[string]string{
	"Taumalipas":  "Tamaulipas",
	"Tamulipas":   "Tamaulipas",
	"Coahulia":    "Coahuila",
	"Nuevo Lion":  "Nuevo Leon",
	"San Luis P.": "San Luis Potosi",
}

// CorrectKnownTypo returns the corrected display label for known
// misspellings, or the input unchanged. It never fails.
func CorrectKnownTypo(label string) string {
	if fixed, ok := knownTypos[strings.TrimSpace(label)]; ok {
		return fixed
	}
	return label
}

// Normalize derives a key from a display label: lower-cased, trimmed,
// whitespace runs collapsed to single hyphens, everything outside
// [a-z0-9-] stripped. Total function; may return "" for labels with no
// usable characters.
func Normalize(label string) string {
	lower := strings.ToLower(strings.TrimSpace(label))

	var b strings.Builder
	b.Grow(len(lower))
	pendingHyphen := false
	for _, r := range lower {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			pendingHyphen = b.Len() > 0
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-':
			if pendingHyphen {
				b.WriteByte('-')
				pendingHyphen = false
			}
			b.WriteRune(r)
		default:
			// dropped
		}
	}
	return strings.Trim(b.String(), "-")
}
