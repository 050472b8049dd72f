// Package parsers loads local rule source files (domain lists, URL lists,
// JSON detector configs, adblock filter lists) into normalized Ruleset values
// for the ruleset store.
package parsers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logpkg "github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
)

// Supported file formats. An empty FileSource.Format selects the default for
// the source kind: plain for domain and URL lists, adblock for filter lists.
const (
	FormatPlain   = "plain"
	FormatJSON    = "json"
	FormatAdblock = "adblock"
)

// FileSource describes one local rule source file to load. Paths are
// interpreted relative to the rules directory.
type FileSource struct {
	Name        string            // unique source identifier
	Kind        domain.SourceKind // how entries match
	Format      string            // file format; empty selects the kind default
	Path        string            // main list file
	AllowPath   string            // optional allowlist file for plain domain lists
	Description string            // optional human description
}

// LoadDirectory loads all described rule sources from dir and returns them
// keyed by source name. A source that fails to load is logged and skipped so
// one broken feed cannot take down the rest; only a missing or unreadable
// directory fails the whole load.
func LoadDirectory(dir string, sources []FileSource, logger logpkg.Logger) (map[string]domain.Ruleset, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rules directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules path %s is not a directory", dir)
	}

	out := make(map[string]domain.Ruleset, len(sources))
	for _, src := range sources {
		if _, ok := out[src.Name]; ok {
			logger.Warn(map[string]any{"source": src.Name}, "duplicate rule source name; keeping first")
			continue
		}
		rs, err := loadSource(dir, src, logger)
		if err != nil {
			logger.Error(map[string]any{"source": src.Name, "error": err.Error()}, "failed to load rule source")
			continue
		}
		out[src.Name] = rs
		logger.Info(map[string]any{
			"source":  src.Name,
			"kind":    rs.Kind.String(),
			"entries": rs.Size(),
		}, "loaded rule source")
	}
	return out, nil
}

// loadSource loads and parses a single rule source file (plus its optional
// allowlist companion) into a Ruleset.
func loadSource(dir string, src FileSource, logger logpkg.Logger) (domain.Ruleset, error) {
	format := strings.ToLower(strings.TrimSpace(src.Format))
	if format == "" {
		format = defaultFormat(src.Kind)
	}
	path := filepath.Join(dir, src.Path)

	switch {
	case src.Kind == domain.SourceDomainList && format == FormatPlain:
		block, err := parseDomainFile(path, src.Name, logger)
		if err != nil {
			return domain.Ruleset{}, err
		}
		var allow []string
		if src.AllowPath != "" {
			allow, err = parseDomainFile(filepath.Join(dir, src.AllowPath), src.Name, logger)
			if err != nil {
				return domain.Ruleset{}, err
			}
		}
		rs, err := domain.NewDomainRuleset(src.Name, block, allow)
		if err != nil {
			return domain.Ruleset{}, err
		}
		rs.Description = src.Description
		return rs, nil

	case src.Kind == domain.SourceDomainList && format == FormatJSON:
		block, allow, err := parseDomainJSONFile(path, src.Name, logger)
		if err != nil {
			return domain.Ruleset{}, err
		}
		rs, err := domain.NewDomainRuleset(src.Name, block, allow)
		if err != nil {
			return domain.Ruleset{}, err
		}
		rs.Description = src.Description
		return rs, nil

	case src.Kind == domain.SourceURLList && format == FormatPlain:
		urls, err := parseURLFile(path, src.Name, logger)
		if err != nil {
			return domain.Ruleset{}, err
		}
		rs, err := domain.NewURLRuleset(src.Name, urls)
		if err != nil {
			return domain.Ruleset{}, err
		}
		rs.Description = src.Description
		return rs, nil

	case src.Kind == domain.SourceFilterList && format == FormatAdblock:
		rules, err := parseFilterFile(path, src.Name, logger)
		if err != nil {
			return domain.Ruleset{}, err
		}
		rs, err := domain.NewFilterRuleset(src.Name, rules)
		if err != nil {
			return domain.Ruleset{}, err
		}
		rs.Description = src.Description
		return rs, nil

	default:
		return domain.Ruleset{}, fmt.Errorf("unsupported format %q for %s source %q", format, src.Kind, src.Name)
	}
}

// defaultFormat returns the file format implied by a source kind.
func defaultFormat(kind domain.SourceKind) string {
	if kind == domain.SourceFilterList {
		return FormatAdblock
	}
	return FormatPlain
}

func parseDomainFile(path, source string, logger logpkg.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseDomainList(f, source, logger)
}

func parseDomainJSONFile(path, source string, logger logpkg.Logger) ([]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ParseDomainJSON(f, source, logger)
}

func parseURLFile(path, source string, logger logpkg.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseURLList(f, source, logger)
}

func parseFilterFile(path, source string, logger logpkg.Logger) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseFilterList(f, source, logger)
}
