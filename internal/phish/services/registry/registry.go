// Package registry manages the lifecycle of URL predictors: declarative
// loading from configuration, reconciliation on reload, health tracking, and
// fanned-out batch prediction.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/clock"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
)

// DefaultPredictTimeout bounds a single prediction when the caller sets no
// shorter deadline.
const DefaultPredictTimeout = 30 * time.Second

// Error texts surfaced in prediction entries for names that cannot serve.
const (
	errNotRegistered = "not registered"
	errUnavailable   = "unavailable"
)

var errNoCatalog = errors.New("registry requires a catalog")

// Options configures a Registry.
// Catalog is required. Logger, Clock, and PredictTimeout are optional.
// MaxConsecutiveFailures demotes a predictor to unhealthy after that many
// failed predictions in a row; zero disables demotion.
type Options struct {
	Catalog                Catalog
	Logger                 log.Logger
	Clock                  clock.Clock
	PredictTimeout         time.Duration
	MaxConsecutiveFailures int
}

// Registry holds the running predictor instances. The name→entry map is
// copy-on-write: Apply builds a new map and swaps it under mu, so an
// in-flight PredictAll keeps the snapshot it started with while a reload
// installs the next one.
type Registry struct {
	catalog  Catalog
	log      log.Logger
	clock    clock.Clock
	timeout  time.Duration
	maxFails int

	mu            sync.RWMutex
	entries       map[string]*entry
	watcherActive bool

	// applyMu serializes Apply and Close; prediction reads never take it.
	applyMu sync.Mutex

	// flight collapses concurrent identical (name, url) predictions.
	flight singleflight.Group
}

// entry is one declared predictor. inst and loadedAt never change after the
// entry is published; everything under mu does.
type entry struct {
	inst     Predictor // nil when construction failed or the entry is disabled
	loadedAt time.Time

	mu          sync.Mutex
	config      domain.PredictorConfig
	state       domain.HealthState
	errorCount  int
	lastError   string
	consecFails int
}

// ApplyResult reports what one reconciliation did, by predictor name.
type ApplyResult struct {
	Loaded   []string // constructed this pass
	Kept     []string // identity unchanged, running instance reused
	Failed   []string // construction failed, entry visible as unhealthy
	Unloaded []string // no longer declared, instance released
	Disabled []string // declared with enabled=false
	Skipped  []string // invalid or duplicate declarations
}

// New constructs a Registry. The catalog is the full set of loadable
// implementations; configs referencing anything else become unhealthy
// entries at Apply time.
func New(opts Options) (*Registry, error) {
	if opts.Catalog == nil {
		return nil, errNoCatalog
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.PredictTimeout <= 0 {
		opts.PredictTimeout = DefaultPredictTimeout
	}
	return &Registry{
		catalog:  opts.Catalog,
		log:      opts.Logger,
		clock:    opts.Clock,
		timeout:  opts.PredictTimeout,
		maxFails: opts.MaxConsecutiveFailures,
		entries:  map[string]*entry{},
	}, nil
}

// Apply reconciles the running set against the declared configs, diffing by
// name. Declared-but-absent names are constructed, absent-but-running names
// are unloaded, and names whose (impl, params) identity is unchanged keep
// their running instance and load time. A failed construction marks that
// entry unhealthy and moves on; it never aborts the rest of the batch.
func (r *Registry) Apply(configs []domain.PredictorConfig) ApplyResult {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	cur := r.snapshot()
	next := make(map[string]*entry, len(configs))
	var res ApplyResult
	var stale []*entry

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			r.log.Warn(map[string]any{"error": err.Error()}, "skipping invalid predictor config")
			res.Skipped = append(res.Skipped, cfg.Name)
			continue
		}
		if _, dup := next[cfg.Name]; dup {
			r.log.Warn(map[string]any{"predictor": cfg.Name}, "duplicate predictor name, keeping first")
			res.Skipped = append(res.Skipped, cfg.Name)
			continue
		}

		old := cur[cfg.Name]

		if !cfg.Enabled {
			if old != nil && old.inst != nil {
				stale = append(stale, old)
				r.log.Info(map[string]any{"predictor": cfg.Name}, "predictor disabled, unloading")
			}
			next[cfg.Name] = &entry{
				config:    cfg,
				state:     domain.HealthUnhealthy,
				lastError: "disabled",
			}
			res.Disabled = append(res.Disabled, cfg.Name)
			continue
		}

		if old != nil && old.inst != nil && old.fingerprint() == cfg.Fingerprint() {
			old.setConfig(cfg)
			next[cfg.Name] = old
			res.Kept = append(res.Kept, cfg.Name)
			continue
		}

		e := r.construct(cfg)
		next[cfg.Name] = e
		if e.inst != nil {
			res.Loaded = append(res.Loaded, cfg.Name)
		} else {
			res.Failed = append(res.Failed, cfg.Name)
		}
		if old != nil && old.inst != nil {
			stale = append(stale, old)
		}
	}

	for name, old := range cur {
		if _, keep := next[name]; keep {
			continue
		}
		if old.inst != nil {
			stale = append(stale, old)
		}
		res.Unloaded = append(res.Unloaded, name)
		r.log.Info(map[string]any{"predictor": name}, "predictor unloaded")
	}
	sort.Strings(res.Unloaded)

	r.mu.Lock()
	r.entries = next
	r.mu.Unlock()

	// Release replaced instances after the swap so new predictions can no
	// longer reach them. Batches already holding the old snapshot may still
	// be draining; predictor Close implementations tolerate that.
	for _, e := range stale {
		r.closeInstance(e)
	}

	r.log.Info(map[string]any{
		"loaded":   len(res.Loaded),
		"kept":     len(res.Kept),
		"failed":   len(res.Failed),
		"unloaded": len(res.Unloaded),
		"disabled": len(res.Disabled),
	}, "predictor registry applied")
	return res
}

// PredictAll runs the named predictors against one URL concurrently and
// labels each probability against threshold. nil names means every declared
// predictor. The result always carries one entry per requested name: unknown
// names report "not registered", entries that are disabled or unhealthy
// report "unavailable", and predictor faults become error entries. It never
// returns an error itself.
func (r *Registry) PredictAll(ctx context.Context, rawURL string, names []string, threshold float64) map[string]domain.Prediction {
	snap := r.snapshot()

	if names == nil {
		names = make([]string, 0, len(snap))
		for name := range snap {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	// Resolve every name before fanning out so the dedupe pass never races
	// the result writes.
	results := make(map[string]domain.Prediction, len(names))
	type call struct {
		name string
		e    *entry
	}
	var calls []call
	for _, name := range names {
		if _, dup := results[name]; dup {
			continue
		}
		e, ok := snap[name]
		switch {
		case !ok:
			results[name] = domain.NewPredictionError(errNotRegistered)
		case !e.servable():
			results[name] = domain.NewPredictionError(errUnavailable)
		default:
			results[name] = domain.Prediction{}
			calls = append(calls, call{name: name, e: e})
		}
	}

	var (
		wg    sync.WaitGroup
		resMu sync.Mutex
	)
	for _, c := range calls {
		wg.Add(1)
		go func(c call) {
			defer wg.Done()
			pred := r.predictOne(ctx, c.e, rawURL, threshold)
			resMu.Lock()
			results[c.name] = pred
			resMu.Unlock()
		}(c)
	}
	wg.Wait()

	return results
}

// List returns the visible state of every declared entry, sorted by name.
func (r *Registry) List() []domain.PredictorInfo {
	snap := r.snapshot()
	infos := make([]domain.PredictorInfo, 0, len(snap))
	for _, e := range snap {
		infos = append(infos, e.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Info returns the visible state of one entry.
func (r *Registry) Info(name string) (domain.PredictorInfo, bool) {
	snap := r.snapshot()
	e, ok := snap[name]
	if !ok {
		return domain.PredictorInfo{}, false
	}
	return e.info(), true
}

// Health summarizes the registry. Disabled declarations are excluded from
// the totals; they cannot serve by design and should not read as failures.
func (r *Registry) Health() domain.RegistryHealth {
	snap := r.snapshot()
	var h domain.RegistryHealth
	for _, e := range snap {
		inf := e.info()
		if !inf.Enabled {
			continue
		}
		h.Total++
		if inf.State == domain.HealthHealthy {
			h.Healthy++
		}
	}
	h.HealthRatio = float64(h.Healthy) / float64(max(1, h.Total))

	r.mu.RLock()
	h.WatcherActive = r.watcherActive
	r.mu.RUnlock()
	return h
}

// SetWatcherActive records whether a config watcher is driving reloads. It
// only affects health reporting.
func (r *Registry) SetWatcherActive(active bool) {
	r.mu.Lock()
	r.watcherActive = active
	r.mu.Unlock()
}

// Close unloads every instance. Cleanup failures are logged, never returned.
func (r *Registry) Close() {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	snap := r.snapshot()
	r.mu.Lock()
	r.entries = map[string]*entry{}
	r.mu.Unlock()

	for _, e := range snap {
		if e.inst != nil {
			r.closeInstance(e)
		}
	}
}

func (r *Registry) snapshot() map[string]*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries
}

func (r *Registry) construct(cfg domain.PredictorConfig) *entry {
	e := &entry{config: cfg, state: domain.HealthLoading}

	factory, ok := r.catalog[cfg.Impl]
	if !ok {
		e.state = domain.HealthUnhealthy
		e.lastError = fmt.Sprintf("unknown implementation %q", cfg.Impl)
		r.log.Error(map[string]any{"predictor": cfg.Name, "impl": cfg.Impl}, "predictor load failed")
		return e
	}

	inst, err := safeConstruct(factory, cfg.Params)
	if err != nil {
		e.state = domain.HealthUnhealthy
		e.lastError = err.Error()
		r.log.Error(map[string]any{"predictor": cfg.Name, "impl": cfg.Impl, "error": err.Error()}, "predictor load failed")
		return e
	}

	e.inst = inst
	e.state = domain.HealthHealthy
	e.loadedAt = r.clock.Now()
	r.log.Info(map[string]any{"predictor": cfg.Name, "impl": cfg.Impl}, "predictor loaded")
	return e
}

func (r *Registry) closeInstance(e *entry) {
	c, ok := e.inst.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		r.log.Error(map[string]any{"predictor": e.config.Name, "error": err.Error()}, "predictor cleanup failed")
	}
}

// predictOne calls a single healthy entry. Identical concurrent calls share
// one execution through the singleflight group, and stats are recorded once
// per execution rather than once per waiter.
func (r *Registry) predictOne(ctx context.Context, e *entry, rawURL string, threshold float64) domain.Prediction {
	key := e.config.Name + "|" + rawURL
	v, err, _ := r.flight.Do(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		proba, perr := safePredict(cctx, e.inst, rawURL)
		if perr != nil {
			e.recordFailure(perr, r.maxFails, r.log)
			return nil, perr
		}
		e.recordSuccess()
		return proba, nil
	})
	if err != nil {
		return domain.NewPredictionError(err.Error())
	}

	proba := clamp01(v.(float64))
	label := 0
	if proba >= threshold {
		label = 1
	}
	return domain.NewPrediction(proba, label)
}

// safeConstruct contains a panicking factory so one bad declaration cannot
// take down a reload.
func safeConstruct(f Factory, params map[string]any) (p Predictor, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("constructor panic: %v", rec)
		}
	}()
	return f(params)
}

// safePredict contains a panicking predictor so one bad instance cannot take
// down a batch.
func safePredict(ctx context.Context, p Predictor, rawURL string) (proba float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("predictor panic: %v", rec)
		}
	}()
	return p.Predict(ctx, rawURL)
}

func (e *entry) servable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == domain.HealthHealthy && e.inst != nil
}

func (e *entry) fingerprint() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.Fingerprint()
}

// setConfig refreshes metadata (description, dependencies) on an entry kept
// across a reload. Identity fields are equal by the time this is called.
func (e *entry) setConfig(cfg domain.PredictorConfig) {
	e.mu.Lock()
	e.config = cfg
	e.mu.Unlock()
}

func (e *entry) recordFailure(err error, maxFails int, logger log.Logger) {
	e.mu.Lock()
	e.errorCount++
	e.lastError = err.Error()
	e.consecFails++
	demoted := maxFails > 0 && e.consecFails >= maxFails && e.state == domain.HealthHealthy
	if demoted {
		e.state = domain.HealthUnhealthy
	}
	name := e.config.Name
	fails := e.consecFails
	e.mu.Unlock()

	if demoted {
		logger.Warn(map[string]any{"predictor": name, "consecutive_failures": fails}, "predictor demoted to unhealthy")
	}
}

func (e *entry) recordSuccess() {
	e.mu.Lock()
	e.consecFails = 0
	e.mu.Unlock()
}

func (e *entry) info() domain.PredictorInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.PredictorInfo{
		Name:        e.config.Name,
		Impl:        e.config.Impl,
		State:       e.state,
		Enabled:     e.config.Enabled,
		LoadedAt:    e.loadedAt,
		ErrorCount:  e.errorCount,
		LastError:   e.lastError,
		Description: e.config.Description,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
