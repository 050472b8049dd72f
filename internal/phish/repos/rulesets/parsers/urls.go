package parsers

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/urlutil"
)

// ParseURLList parses a newline-delimited list of URLs into normalized form.
//
// Behavior:
// - Supports whole-line comments starting with '#'
// - Never strips inline '#': URLs may legitimately carry fragments
// - Normalizes entries via NormalizeURL (scheme defaulting, trimming)
// - Skips entries whose host cannot be extracted
// - De-duplicates by normalized URL while preserving first-seen order
func ParseURLList(r io.Reader, source string, logger logpkg.Logger) ([]string, error) {
	scanner := bufio.NewScanner(r)
	// Phishing URL feeds routinely exceed the default 64K token limit on a
	// single pathological line; give the scanner headroom instead of failing.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	seen := make(map[string]struct{})
	out := make([]string, 0, 1024)
	logger.Debug(map[string]any{"source": source}, "parse_url_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		// Remove potential BOM at start of first token
		line = strings.TrimPrefix(line, "\uFEFF")

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			logger.Debug(map[string]any{"line": lineNum}, "skip_empty")
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			logger.Debug(map[string]any{"line": lineNum}, "skip_comment")
			continue
		}

		norm := urlutil.NormalizeURL(trimmed)
		if urlutil.ExtractHost(norm) == "" {
			logger.Debug(map[string]any{"line": lineNum, "raw": trimmed}, "skip_invalid_url")
			continue
		}

		if _, ok := seen[norm]; ok {
			logger.Debug(map[string]any{"line": lineNum, "url": norm}, "skip_duplicate")
			continue
		}

		out = append(out, norm)
		seen[norm] = struct{}{}
		logger.Debug(map[string]any{"line": lineNum, "url": norm}, "emit_url")
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_url_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_url_list_done")
	return out, nil
}
