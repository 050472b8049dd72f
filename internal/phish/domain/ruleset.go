package domain

import (
	"fmt"
	"strings"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/urlutil"
)

// SourceKind defines how a rule source stores and matches its entries.
//
// domainlist - block/allow domain sets, apex-inclusive suffix matching
// urllist    - exact membership of normalized URLs
// filterlist - adblock-style filter rules compiled by the ruleset store
type SourceKind uint8

const (
	// SourceDomainList matches hosts against block/allow domain sets.
	SourceDomainList SourceKind = iota
	// SourceURLList matches the full normalized URL exactly.
	SourceURLList
	// SourceFilterList matches via compiled adblock filter rules.
	SourceFilterList
)

// String returns a stable string representation of the source kind.
func (k SourceKind) String() string {
	switch k {
	case SourceDomainList:
		return "domainlist"
	case SourceURLList:
		return "urllist"
	case SourceFilterList:
		return "filterlist"
	default:
		return fmt.Sprintf("SourceKind(%d)", k)
	}
}

// ParseSourceKind converts a string into a SourceKind.
// Accepts: "domainlist", "urllist", "filterlist" (case-insensitive).
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "domainlist":
		return SourceDomainList, nil
	case "urllist":
		return SourceURLList, nil
	case "filterlist":
		return SourceFilterList, nil
	default:
		return 0, fmt.Errorf("unsupported SourceKind: %q", s)
	}
}

// Ruleset is one named rule source in normalized form. Domain keys are
// canonical (lowercase, IDNA, no trailing dot); URL keys are normalized.
// Rulesets are immutable once built and replaced wholesale on reload.
type Ruleset struct {
	Name        string              // source identifier, e.g. "metamask"
	Kind        SourceKind          // how entries match
	Block       map[string]struct{} // domainlist: suffix-matched block set
	Allow       map[string]struct{} // domainlist: suffix-matched allow set
	URLs        map[string]struct{} // urllist: exact normalized URLs
	Filters     []string            // filterlist: raw filter rules
	Description string              // optional human description
}

// NewDomainRuleset builds a domainlist source from raw block/allow entries.
// Entries are canonicalized; empty or unencodable ones are dropped.
func NewDomainRuleset(name string, block, allow []string) (Ruleset, error) {
	rs := Ruleset{
		Name:  strings.TrimSpace(name),
		Kind:  SourceDomainList,
		Block: canonicalDomainSet(block),
		Allow: canonicalDomainSet(allow),
	}
	if err := rs.Validate(); err != nil {
		return Ruleset{}, err
	}
	return rs, nil
}

// NewURLRuleset builds a urllist source from raw URL entries.
func NewURLRuleset(name string, urls []string) (Ruleset, error) {
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		set[urlutil.NormalizeURL(u)] = struct{}{}
	}
	rs := Ruleset{
		Name: strings.TrimSpace(name),
		Kind: SourceURLList,
		URLs: set,
	}
	if err := rs.Validate(); err != nil {
		return Ruleset{}, err
	}
	return rs, nil
}

// NewFilterRuleset builds a filterlist source from raw adblock rule lines.
// Blank lines and "!" comments are dropped; rule syntax is checked when the
// store compiles the engine.
func NewFilterRuleset(name string, rules []string) (Ruleset, error) {
	kept := make([]string, 0, len(rules))
	for _, r := range rules {
		r = strings.TrimSpace(r)
		if r == "" || strings.HasPrefix(r, "!") {
			continue
		}
		kept = append(kept, r)
	}
	rs := Ruleset{
		Name:    strings.TrimSpace(name),
		Kind:    SourceFilterList,
		Filters: kept,
	}
	if err := rs.Validate(); err != nil {
		return Ruleset{}, err
	}
	return rs, nil
}

// Validate checks the Ruleset for required fields and supported values.
func (rs Ruleset) Validate() error {
	if rs.Name == "" {
		return fmt.Errorf("ruleset name must not be empty")
	}
	switch rs.Kind {
	case SourceDomainList, SourceURLList, SourceFilterList:
		// ok
	default:
		return fmt.Errorf("unsupported SourceKind: %d", rs.Kind)
	}
	return nil
}

// Size returns the number of entries the source carries.
func (rs Ruleset) Size() int {
	switch rs.Kind {
	case SourceDomainList:
		return len(rs.Block) + len(rs.Allow)
	case SourceURLList:
		return len(rs.URLs)
	case SourceFilterList:
		return len(rs.Filters)
	default:
		return 0
	}
}

// MatchHost evaluates a canonical host against a domainlist source.
// Block wins over allow; an allow match is an explicit non-hit.
func (rs Ruleset) MatchHost(host string) SourceMatch {
	if host == "" {
		return SourceMatch{}
	}
	for _, anchor := range urlutil.HostAnchors(host) {
		if _, ok := rs.Block[anchor]; ok {
			return SourceMatch{Matched: true, Hit: true, Reason: ReasonBlocklist}
		}
	}
	for _, anchor := range urlutil.HostAnchors(host) {
		if _, ok := rs.Allow[anchor]; ok {
			return SourceMatch{Matched: true, Hit: false, Reason: ReasonAllowlist}
		}
	}
	return SourceMatch{}
}

// MatchURL evaluates a normalized URL against a urllist source.
func (rs Ruleset) MatchURL(normURL string) SourceMatch {
	if _, ok := rs.URLs[normURL]; ok {
		return SourceMatch{Matched: true, Hit: true, Reason: ReasonURLList}
	}
	return SourceMatch{}
}

// Match dispatches on the source kind. Filterlist sources return no match
// here; their compiled engines are consulted by the ruleset store.
func (rs Ruleset) Match(host, normURL string) SourceMatch {
	switch rs.Kind {
	case SourceDomainList:
		return rs.MatchHost(host)
	case SourceURLList:
		return rs.MatchURL(normURL)
	default:
		return SourceMatch{}
	}
}

func canonicalDomainSet(entries []string) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		c := urlutil.CanonicalHost(e)
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}
