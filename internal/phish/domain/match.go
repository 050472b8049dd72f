package domain

// Reasons attached to rule matches. Filterlist sources use the matched
// rule text instead of a fixed label.
const (
	ReasonBlocklist = "blocklist"
	ReasonAllowlist = "allowlist"
	ReasonURLList   = "urllist"
)

// SourceMatch is the outcome of evaluating one rule source against a URL.
// Pure value type, no external dependencies.
type SourceMatch struct {
	Matched bool   // true when the source produced any verdict
	Hit     bool   // true when the verdict marks the URL as risky
	Reason  string // "blocklist", "allowlist", "urllist", or the filter rule text
}

// EmptyMatch returns a no-verdict match.
func EmptyMatch() SourceMatch { return SourceMatch{} }

// RuleHits maps source name to its verdict. Sources that produced no
// verdict are absent; an allowlisted source is present with value false.
type RuleHits map[string]bool

// RuleReasons maps source name to the reason behind its verdict.
type RuleReasons map[string]string

// Any returns true when at least one source marked the URL as risky.
func (h RuleHits) Any() bool {
	for _, hit := range h {
		if hit {
			return true
		}
	}
	return false
}
