package parsers

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
)

// ParseFilterList parses an adblock-style filter list, keeping rule lines
// verbatim. Rule syntax is not validated here; the ruleset store compiles
// the surviving lines and reports what the engine rejects.
//
// Behavior:
// - Skips empty lines and "!" comments
// - Skips "[Adblock Plus 2.0]"-style header lines
// - Never strips inline '#': cosmetic separators are part of rule syntax
// - De-duplicates identical rule lines while preserving first-seen order
func ParseFilterList(r io.Reader, source string, logger logpkg.Logger) ([]string, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]string, 0, 256)
	logger.Debug(map[string]any{"source": source}, "parse_filter_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		// Remove potential BOM at start of first token
		line = strings.TrimPrefix(line, "\uFEFF")

		rule := strings.TrimSpace(line)
		if rule == "" {
			logger.Debug(map[string]any{"line": lineNum}, "skip_empty")
			continue
		}
		if strings.HasPrefix(rule, "!") {
			logger.Debug(map[string]any{"line": lineNum}, "skip_comment")
			continue
		}
		if strings.HasPrefix(rule, "[") {
			logger.Debug(map[string]any{"line": lineNum, "raw": rule}, "skip_header")
			continue
		}

		if _, ok := seen[rule]; ok {
			logger.Debug(map[string]any{"line": lineNum, "rule": rule}, "skip_duplicate")
			continue
		}

		out = append(out, rule)
		seen[rule] = struct{}{}
		logger.Debug(map[string]any{"line": lineNum, "rule": rule}, "emit_rule")
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_filter_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_filter_list_done")
	return out, nil
}
