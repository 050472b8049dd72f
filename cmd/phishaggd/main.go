package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/clock"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/debounce"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/instrument"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/config"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/gateways/predictors"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/gateways/watch"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/repos/confdoc"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/repos/dataset"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/repos/rulesets"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/repos/rulesets/bloom"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/repos/rulesets/bolt"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/repos/rulesets/lru"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/repos/rulesets/parsers"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/services/aggregate"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/services/evaluator"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/services/registry"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/services/scanner"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "phishaggd"

	// Default timeouts
	defaultShutdownTimeout = 10 * time.Second

	// maxLineBytes bounds one stdin line; anything longer is not a URL.
	maxLineBytes = 1 << 20
)

// Application holds all the components of the decision pipeline.
type Application struct {
	config     *config.AppConfig
	strategy   domain.Strategy
	repo       rulesets.Repository
	registry   *registry.Registry
	aggregator *aggregate.Service
	scanner    *scanner.Service
	evaluator  *evaluator.Service
	watcher    *watch.Watcher
	reload     *debounce.Debouncer
	metrics    *instrument.Metrics

	// sources and predictors are the config selections with the empty/nil
	// distinction already normalized: nil means everything.
	sources        []string
	predictorNames []string
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info(map[string]any{
		"version":     version,
		"env":         cfg.Env,
		"log_level":   cfg.LogLevel,
		"config_file": cfg.ConfigFile,
		"rules_dir":   cfg.RulesDir,
		"store_path":  cfg.StorePath,
		"strategy":    cfg.Strategy,
		"threshold":   cfg.Threshold,
	}, "starting phishing decision pipeline")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "shutdown signal received")
		cancel()
	}()

	// Scan URLs from stdin until EOF or shutdown
	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "pipeline failed")
	}

	log.Info(nil, "phishing decision pipeline stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	// Create shared clock for consistent time across all components
	clk := clock.RealClock{}

	// Initialize logger (already configured globally)
	logger := log.GetLogger()

	// Pipeline collectors on a private registry so repeated builds never
	// collide; exposition is left to the embedding environment
	metrics := instrument.New(prometheus.NewRegistry())

	strategy, err := domain.NewStrategy(cfg.Strategy, cfg.Threshold, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid default strategy: %w", err)
	}

	// Build repository layer
	repo, err := buildRepositories(cfg, logger, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	// Build the predictor registry over the static implementation catalog
	reg, err := registry.New(registry.Options{
		Catalog:                predictors.Catalog(),
		Logger:                 logger,
		Clock:                  clk,
		PredictTimeout:         time.Duration(cfg.PredictTimeout) * time.Second,
		MaxConsecutiveFailures: cfg.MaxFailures,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create predictor registry: %w", err)
	}

	// First load of the pipeline document; later loads ride the watcher
	if err := applyDocument(cfg, repo, reg, metrics, logger); err != nil {
		return nil, err
	}

	// Build service layer
	agg := aggregate.NewService()
	scanService, err := scanner.New(scanner.Options{
		Matcher:    repo,
		Predictors: reg,
		Aggregator: agg,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}
	evalService, err := evaluator.New(evaluator.Options{
		Scanner: scanService,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluator: %w", err)
	}

	app := &Application{
		config:         cfg,
		strategy:       strategy,
		repo:           repo,
		registry:       reg,
		aggregator:     agg,
		scanner:        scanService,
		evaluator:      evalService,
		metrics:        metrics,
		sources:        normalizeSelection(cfg.Sources),
		predictorNames: normalizeSelection(cfg.Predictors),
	}

	// Hot reload: coalesce change bursts, then re-apply the whole document.
	// A failed reload keeps the last known good configuration serving.
	app.reload = debounce.New(clk, time.Duration(cfg.ReloadDebounce)*time.Second, func() {
		if err := applyDocument(cfg, repo, reg, metrics, logger); err != nil {
			metrics.RecordReload(true)
			logger.Error(map[string]any{"error": err.Error()}, "reload failed; keeping last known good configuration")
			return
		}
		metrics.RecordReload(false)
	})

	paths := []string{cfg.ConfigFile}
	if cfg.RulesDir != "" {
		paths = append(paths, cfg.RulesDir)
	}
	watcher, err := watch.New(watch.Options{
		Paths:   paths,
		Trigger: app.reload,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch configuration: %w", err)
	}
	app.watcher = watcher

	return app, nil
}

// buildRepositories creates the ruleset store: match cache, bloom prefilter,
// and optional bolt persistence, hydrated from the store when present.
func buildRepositories(cfg *config.AppConfig, logger log.Logger, clk clock.Clock) (rulesets.Repository, error) {
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create match cache: %w", err)
	}
	if cfg.CacheSize > 0 {
		log.Info(map[string]any{"type": "LRU", "size": cfg.CacheSize}, "match cache configured")
	} else {
		log.Info(map[string]any{"disabled": true}, "match caching disabled")
	}

	// A corrupt or unopenable store costs warm starts, not serving; the
	// document load that follows still installs a fresh snapshot.
	var persister rulesets.Persister
	if cfg.StorePath != "" {
		persister, err = bolt.New(cfg.StorePath)
		if err != nil {
			log.Warn(map[string]any{"path": cfg.StorePath, "error": err.Error()}, "failed to open snapshot store; persistence disabled")
		} else {
			log.Info(map[string]any{"path": cfg.StorePath}, "snapshot store opened")
		}
	}

	repo, err := rulesets.NewRepository(rulesets.Options{
		Cache:     cache,
		Factory:   bloom.NewFactory(),
		Persister: persister,
		Logger:    logger,
		Clock:     clk,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ruleset repository: %w", err)
	}

	// Warm start from the last persisted snapshot; the document load that
	// follows replaces it when a rules directory is configured.
	if err := repo.Hydrate(); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "failed to hydrate snapshot; starting empty")
	}

	return repo, nil
}

// applyDocument loads the pipeline document and pushes it into the ruleset
// store and the predictor registry. Used for both the initial load and every
// hot reload.
func applyDocument(cfg *config.AppConfig, repo rulesets.Repository, reg *registry.Registry, metrics *instrument.Metrics, logger log.Logger) error {
	doc, err := confdoc.Load(cfg.ConfigFile, logger)
	if err != nil {
		return fmt.Errorf("failed to load pipeline document: %w", err)
	}

	if cfg.RulesDir != "" {
		sets, err := parsers.LoadDirectory(cfg.RulesDir, fileSources(doc.Sources), logger)
		if err != nil {
			return fmt.Errorf("failed to load rule sources: %w", err)
		}
		if err := repo.Replace(sets); err != nil {
			return fmt.Errorf("failed to install ruleset snapshot: %w", err)
		}
	}

	res := reg.Apply(doc.Predictors)

	health := reg.Health()
	metrics.SetRegistryHealth(health.Total, health.Healthy)
	metrics.SetRulesetInfo(repo.Version(), len(repo.Sources()))

	logger.Info(map[string]any{
		"version":    doc.Version,
		"sources":    len(doc.Sources),
		"predictors": len(doc.Predictors),
		"loaded":     len(res.Loaded),
		"kept":       len(res.Kept),
		"failed":     len(res.Failed),
	}, "pipeline document applied")
	return nil
}

// fileSources converts document source declarations into loader descriptors.
func fileSources(in []confdoc.Source) []parsers.FileSource {
	out := make([]parsers.FileSource, len(in))
	for i, s := range in {
		out[i] = parsers.FileSource{
			Name:        s.Name,
			Kind:        s.SourceKind(),
			Format:      s.Format,
			Path:        s.Path,
			AllowPath:   s.AllowPath,
			Description: s.Description,
		}
	}
	return out
}

// normalizeSelection maps an empty config list to nil, which the services
// read as "everything".
func normalizeSelection(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	return names
}

// Run drives the pipeline until done. With a dataset configured it performs
// one evaluation run and exits; otherwise it starts the config watcher and
// consumes URLs from stdin, one per line, writing each decision row as a
// JSON line to stdout.
func (app *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	if app.config.Dataset != "" {
		log.Info(map[string]any{"dataset": app.config.Dataset}, "evaluation mode")
		go func() {
			done <- app.evaluate(ctx, os.Stdout)
		}()
	} else {
		if err := app.watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		app.registry.SetWatcherActive(true)

		log.Info(map[string]any{
			"strategy":  app.strategy.Name,
			"threshold": app.strategy.Threshold,
		}, "decision pipeline started")

		go func() {
			done <- app.serve(ctx, os.Stdin, os.Stdout)
		}()
	}

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
	}

	log.Info(nil, "shutdown initiated")

	// Create shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancelShutdown()

	finished := make(chan struct{})
	go func() {
		app.shutdown()
		close(finished)
	}()

	select {
	case <-finished:
		log.Info(nil, "graceful shutdown completed")
		return runErr
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}

// serve scans each input line as one URL. Blank lines and #-comments are
// skipped; per-predictor faults surface inside the emitted rows, so only an
// aborted scan or a write failure stops the loop.
func (app *Application) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	enc := json.NewEncoder(out)

	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		url := strings.TrimSpace(sc.Text())
		if url == "" || strings.HasPrefix(url, "#") {
			continue
		}

		start := time.Now()
		report, err := app.scanner.Scan(ctx, scanner.Request{
			URLs:       []string{url},
			Sources:    app.sources,
			Predictors: app.predictorNames,
			Strategy:   app.strategy,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("scan %q: %w", url, err)
		}
		app.metrics.RecordScan(time.Since(start))

		for _, row := range report.Rows {
			app.record(row)
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("failed to write decision row: %w", err)
			}
		}
	}
	return sc.Err()
}

// evaluate replays the labeled dataset through every registered strategy at
// the configured threshold and writes the scoreboard as JSON.
func (app *Application) evaluate(ctx context.Context, out io.Writer) error {
	samples, sum, err := dataset.Load(app.config.Dataset, log.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	log.Info(map[string]any{
		"dataset":   app.config.Dataset,
		"size":      sum.Size,
		"positives": sum.Positives,
		"negatives": sum.Negatives,
	}, "dataset loaded")

	names := app.aggregator.Strategies()
	strategies := make([]domain.Strategy, 0, len(names))
	for _, name := range names {
		st, err := domain.NewStrategy(name, app.config.Threshold, nil)
		if err != nil {
			return fmt.Errorf("strategy %q: %w", name, err)
		}
		strategies = append(strategies, st)
	}

	report, err := app.evaluator.Evaluate(ctx, evaluator.Request{
		Samples:    samples,
		Sources:    app.sources,
		Predictors: app.predictorNames,
		Strategies: strategies,
	})
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(report)
}

// record feeds one decision row into the collectors.
func (app *Application) record(row scanner.Row) {
	for source, hit := range row.RuleHits {
		if hit {
			app.metrics.RecordRuleHit(source)
		}
	}
	for name, pred := range row.Predictions {
		app.metrics.RecordPrediction(name, !pred.OK())
	}
}

// shutdown releases components in reverse dependency order. Errors are
// logged, not returned; shutdown always completes.
func (app *Application) shutdown() {
	app.watcher.Close()
	app.reload.Stop()
	app.registry.Close()
	if err := app.repo.Close(); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "error closing ruleset repository")
	}
}
