// Package confdoc loads the declarative pipeline document that names the rule
// sources to serve and the predictors to run. It supports YAML, JSON, and
// TOML documents, selected by file extension.
package confdoc

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	logpkg "github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
)

// Source declares one rule source file. Path and AllowPath are relative to
// the rules directory; Format is interpreted by the rules loader and left
// unvalidated here.
type Source struct {
	Name        string `koanf:"name"`
	Kind        string `koanf:"kind"`
	Format      string `koanf:"format"`
	Path        string `koanf:"path"`
	AllowPath   string `koanf:"allow_path"`
	Description string `koanf:"description"`
}

// SourceKind returns the parsed kind. Load only emits sources whose kind
// parses, so this cannot fail for loaded documents.
func (s Source) SourceKind() domain.SourceKind {
	k, _ := domain.ParseSourceKind(s.Kind)
	return k
}

// Document is one parsed pipeline document. Entries that failed validation
// were dropped at load time; a Document always carries usable declarations.
type Document struct {
	Version    int
	Sources    []Source
	Predictors []domain.PredictorConfig
}

// rawDocument is the koanf-facing shape before per-entry validation.
type rawDocument struct {
	Version    int            `koanf:"version"`
	Sources    []Source       `koanf:"sources"`
	Predictors []rawPredictor `koanf:"predictors"`
}

// rawPredictor uses *bool for Enabled so an absent key defaults to true.
type rawPredictor struct {
	Name         string         `koanf:"name"`
	Impl         string         `koanf:"impl"`
	Enabled      *bool          `koanf:"enabled"`
	Params       map[string]any `koanf:"params"`
	Dependencies []string       `koanf:"dependencies"`
	Description  string         `koanf:"description"`
}

// Load reads and parses the pipeline document at path. Invalid entries are
// logged and dropped; only an unreadable or undecodable document fails.
func Load(path string, logger logpkg.Logger) (*Document, error) {
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load pipeline document %s: %w", path, err)
	}

	var raw rawDocument
	if err := k.Unmarshal("", &raw); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline document %s: %w", path, err)
	}

	doc := &Document{
		Version:    raw.Version,
		Sources:    sanitizeSources(raw.Sources, logger),
		Predictors: sanitizePredictors(raw.Predictors, logger),
	}
	logger.Debug(map[string]any{
		"path":       path,
		"version":    doc.Version,
		"sources":    len(doc.Sources),
		"predictors": len(doc.Predictors),
	}, "pipeline document loaded")
	return doc, nil
}

// parserFor selects the koanf parser matching the file extension.
func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported pipeline document format: %s", path)
	}
}

// sanitizeSources drops declarations that cannot drive the rules loader and
// de-duplicates by name, keeping the first occurrence.
func sanitizeSources(in []Source, logger logpkg.Logger) []Source {
	seen := make(map[string]struct{}, len(in))
	out := make([]Source, 0, len(in))
	for i, s := range in {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			logger.Warn(map[string]any{"index": i}, "skipping rule source without a name")
			continue
		}
		if _, err := domain.ParseSourceKind(s.Kind); err != nil {
			logger.Warn(map[string]any{"source": s.Name, "kind": s.Kind}, "skipping rule source with unsupported kind")
			continue
		}
		if strings.TrimSpace(s.Path) == "" {
			logger.Warn(map[string]any{"source": s.Name}, "skipping rule source without a path")
			continue
		}
		if _, ok := seen[s.Name]; ok {
			logger.Warn(map[string]any{"source": s.Name}, "duplicate rule source declaration; keeping first")
			continue
		}
		seen[s.Name] = struct{}{}
		out = append(out, s)
	}
	return out
}

// sanitizePredictors converts raw declarations into validated configs,
// defaulting Enabled to true and de-duplicating by name.
func sanitizePredictors(in []rawPredictor, logger logpkg.Logger) []domain.PredictorConfig {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.PredictorConfig, 0, len(in))
	for i, p := range in {
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		cfg, err := domain.NewPredictorConfig(p.Name, p.Impl, enabled, p.Params)
		if err != nil {
			logger.Warn(map[string]any{"index": i, "error": err.Error()}, "skipping invalid predictor declaration")
			continue
		}
		if _, ok := seen[cfg.Name]; ok {
			logger.Warn(map[string]any{"predictor": cfg.Name}, "duplicate predictor declaration; keeping first")
			continue
		}
		cfg.Dependencies = p.Dependencies
		cfg.Description = p.Description
		seen[cfg.Name] = struct{}{}
		out = append(out, cfg)
	}
	return out
}
