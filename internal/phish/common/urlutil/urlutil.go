package urlutil

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// NormalizeURL trims the input and prepends "http://" when no scheme is
// present, so bare hosts and full URLs normalize to the same form.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "http://" + raw
	}
	return raw
}

// CanonicalHost returns a hostname in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dots
// - IDNA (punycode) encoded
// Returns "" when the name cannot be encoded.
func CanonicalHost(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	if name == "" {
		return ""
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		// already-ASCII hosts pass through even when IDNA is strict about them
		if isASCII(name) {
			return name
		}
		return ""
	}
	return ascii
}

// ExtractHost parses a raw URL (scheme optional) and returns its canonical
// host. Unparseable input yields "" rather than an error; callers treat an
// empty host as "no evidence".
func ExtractHost(rawURL string) string {
	u, err := url.Parse(NormalizeURL(rawURL))
	if err != nil {
		return ""
	}
	return CanonicalHost(u.Hostname())
}

// SuffixMatch reports whether host equals base or is a subdomain of it.
// Both are expected canonical. notexample.com does not match example.com.
func SuffixMatch(host, base string) bool {
	if host == "" || base == "" {
		return false
	}
	return host == base || strings.HasSuffix(host, "."+base)
}

// HostAnchors returns every suffix of host that could anchor a domain rule,
// most specific first: "a.b.example.com" yields
// ["a.b.example.com", "b.example.com", "example.com", "com"].
func HostAnchors(host string) []string {
	if host == "" {
		return nil
	}
	labels := strings.Split(host, ".")
	anchors := make([]string, 0, len(labels))
	for i := range labels {
		anchors = append(anchors, strings.Join(labels[i:], "."))
	}
	return anchors
}

// ApexDomain returns the effective TLD plus one for a host, falling back to
// the canonical input when the public suffix list cannot resolve it.
func ApexDomain(name string) string {
	name = CanonicalHost(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
