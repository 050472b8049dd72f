package parsers

import (
	"strings"
	"unicode"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/urlutil"
)

// isValidHostname checks whether the provided string is a plausible host name.
// It enforces the following rules:
//   - The total length must not exceed 255 characters.
//   - The name must contain at least two labels (separated by dots).
//   - Each label must be between 1 and 63 characters long.
//   - The first label must start with a letter, number, or wildcard character.
//
// Returns true if the input meets all requirements, false otherwise.
func isValidHostname(name string) bool {
	// the maximum length of a host name must not exceed 255 characters
	if len(name) > 255 {
		return false
	}
	// require at least two labels (e.g., example.com)
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	// each label must be no more than 63 characters
	for _, label := range labels {
		if len(label) > 63 || len(label) == 0 {
			return false
		}
	}
	// it must start only with a letter, number, or wildcard
	firstLabel := labels[0]
	runes := []rune(firstLabel)
	if !isAlphaNumeric(runes[0]) && !isWildcard(runes[0]) {
		return false
	}
	return true
}

// normalizeHost takes a host name string, trims leading and trailing
// whitespace, removes any leading "*." or "." markers, and returns the
// canonical host form via urlutil.CanonicalHost. Feeds use the markers to
// spell out suffix intent; matching is suffix-inclusive either way, so the
// markers are dropped.
func normalizeHost(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return urlutil.CanonicalHost(name)
}

// isAlphaNumeric reports whether the given rune is a letter or digit.
func isAlphaNumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isWildcard checks if the given rune represents a wildcard character ('*').
func isWildcard(r rune) bool {
	return r == '*'
}
