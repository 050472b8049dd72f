package parsers

import (
	"fmt"
	"io"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/rawbytes"

	logpkg "github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
)

// ParseDomainJSON parses a JSON detector configuration of the shape used by
// wallet phishing feeds: {"version": N, "blocklist": [...], "allowlist": [...]}.
// Both lists hold host names; either may be absent. Entries are canonicalized
// and de-duplicated the same way ParseDomainList does.
func ParseDomainJSON(r io.Reader, source string, logger logpkg.Logger) (block []string, allow []string, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read domain JSON for %s: %w", source, err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), json.Parser()); err != nil {
		return nil, nil, fmt.Errorf("failed to parse domain JSON for %s: %w", source, err)
	}

	logger.Debug(map[string]any{"source": source, "version": k.Int("version")}, "parse_domain_json_start")
	block = canonicalEntries(k.Strings("blocklist"), "blocklist", source, logger)
	allow = canonicalEntries(k.Strings("allowlist"), "allowlist", source, logger)
	logger.Debug(map[string]any{
		"source": source,
		"block":  len(block),
		"allow":  len(allow),
	}, "parse_domain_json_done")
	return block, allow, nil
}

// canonicalEntries normalizes, validates, and de-duplicates host entries from
// one JSON list field, preserving first-seen order.
func canonicalEntries(entries []string, field, source string, logger logpkg.Logger) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, raw := range entries {
		name := normalizeHost(raw)
		if !isValidHostname(name) {
			logger.Debug(map[string]any{"source": source, "field": field, "raw": raw}, "skip_invalid_host")
			continue
		}
		if _, ok := seen[name]; ok {
			logger.Debug(map[string]any{"source": source, "field": field, "name": name}, "skip_duplicate")
			continue
		}
		out = append(out, name)
		seen[name] = struct{}{}
	}
	return out
}
