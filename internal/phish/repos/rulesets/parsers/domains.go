package parsers

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
)

// ParseDomainList parses a simple newline-delimited list of host names into
// canonical form. Leading "*." or "." suffix markers are stripped; matching
// is suffix-inclusive regardless.
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line)
// - Trims surrounding whitespace and canonicalizes via CanonicalHost
// - Skips empty lines after trimming/stripping comments
// - Skips entries that do not look like host names
// - De-duplicates by canonical name while preserving first-seen order
func ParseDomainList(r io.Reader, source string, logger logpkg.Logger) ([]string, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]string, 0, 256)
	logger.Debug(map[string]any{"source": source}, "parse_domain_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		// Remove potential BOM at start of first token
		line = strings.TrimPrefix(line, "\uFEFF")

		// Detect empty or full-line comment before stripping inline comments
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			logger.Debug(map[string]any{"line": lineNum}, "skip_empty")
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			logger.Debug(map[string]any{"line": lineNum}, "skip_comment")
			continue
		}

		// Strip inline comments
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}

		s := strings.TrimSpace(line)
		name := normalizeHost(s)

		if !isValidHostname(name) {
			// skip obviously invalid tokens (e.g., bare TLDs, escapes)
			logger.Debug(map[string]any{"line": lineNum, "raw": s, "name": name}, "skip_invalid_host")
			continue
		}

		if _, ok := seen[name]; ok {
			logger.Debug(map[string]any{"line": lineNum, "name": name}, "skip_duplicate")
			continue
		}

		out = append(out, name)
		seen[name] = struct{}{}
		logger.Debug(map[string]any{"line": lineNum, "name": name}, "emit_domain")
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_domain_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_domain_list_done")
	return out, nil
}
