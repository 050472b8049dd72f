package rulesets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/clock"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/urlutil"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
)

// snapshot is one immutable view of every rule source plus the compiled
// filter engines. Readers grab the pointer under RLock and never mutate it;
// Replace publishes a complete successor instead.
type snapshot struct {
	version uint64
	updated int64
	sets    map[string]domain.Ruleset
	engines map[string]*FilterEngine
}

// Options configure NewRepository. Cache and Factory are required;
// Persister, Logger, and Clock are optional.
type Options struct {
	Cache     MatchCache
	Factory   PrefilterFactory
	FPRate    float64
	Persister Persister
	Logger    log.Logger
	Clock     clock.Clock
}

// repository implements Repository by composing a MatchCache, a Bloom
// prefilter (via factory), and the in-memory snapshot. Reads follow a
// cache -> prefilter -> snapshot pipeline; Replace swaps the snapshot,
// rebuilds the prefilter, and purges the cache.
type repository struct {
	mu      sync.RWMutex // guards snap and bloom
	wmu     sync.Mutex   // serializes Replace and Hydrate
	snap    *snapshot
	bloom   Prefilter
	cache   MatchCache
	factory PrefilterFactory
	fpRate  float64
	persist Persister
	log     log.Logger
	clock   clock.Clock
}

// NewRepository constructs a Repository.
// FPRate is the target false-positive rate for prefilter rebuilds.
func NewRepository(opts Options) (Repository, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("rulesets: match cache is required")
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("rulesets: prefilter factory is required")
	}
	if !(opts.FPRate > 0 && opts.FPRate < 1) {
		opts.FPRate = 0.01
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &repository{
		cache:   opts.Cache,
		factory: opts.Factory,
		fpRate:  opts.FPRate,
		persist: opts.Persister,
		log:     opts.Logger,
		clock:   opts.Clock,
	}, nil
}

// Match evaluates a raw URL against the requested sources. A nil sources
// slice means every source in the snapshot; an empty slice means none.
// Malformed URLs yield an empty host and therefore no domain evidence.
func (r *repository) Match(rawURL string, sources []string) (domain.RuleHits, domain.RuleReasons) {
	normURL := urlutil.NormalizeURL(rawURL)
	host := urlutil.ExtractHost(rawURL)

	r.mu.RLock()
	snap, bloom := r.snap, r.bloom
	r.mu.RUnlock()

	hits := domain.RuleHits{}
	reasons := domain.RuleReasons{}
	if snap == nil || len(snap.sets) == 0 {
		return hits, reasons
	}

	key := cacheKey(snap.version, normURL, sources)
	if res, ok := r.cache.Get(key); ok {
		return cloneHits(res.Hits), cloneReasons(res.Reasons)
	}

	// The prefilter covers set-based entries only; filter engines are
	// always consulted.
	setEvidence := checkPrefilter(bloom, host, normURL)

	for _, name := range selectSources(snap, sources) {
		rs, ok := snap.sets[name]
		if !ok {
			continue
		}
		var m domain.SourceMatch
		switch rs.Kind {
		case domain.SourceFilterList:
			m = snap.engines[name].MatchHost(host)
		default:
			if !setEvidence {
				continue
			}
			m = rs.Match(host, normURL)
		}
		if m.Matched {
			hits[name] = m.Hit
			reasons[name] = m.Reason
		}
	}

	r.cache.Put(key, Result{Hits: cloneHits(hits), Reasons: cloneReasons(reasons)})
	return hits, reasons
}

// Replace installs a new snapshot built from the provided rulesets, bumps
// the version, and persists the result when a Persister is configured.
// Readers keep the previous snapshot until the swap completes.
func (r *repository) Replace(sets map[string]domain.Ruleset) error {
	r.wmu.Lock()
	defer r.wmu.Unlock()

	r.mu.RLock()
	next := uint64(1)
	if r.snap != nil {
		next = r.snap.version + 1
	}
	r.mu.RUnlock()

	now := r.clock.Now().Unix()
	if err := r.install(sets, next, now); err != nil {
		return err
	}
	r.log.Info(map[string]any{
		"version": next,
		"sources": len(sets),
	}, "ruleset snapshot replaced")

	if r.persist != nil {
		if err := r.persist.Save(next, now, sets); err != nil {
			// memory is authoritative; a persistence fault only costs warm starts
			r.log.Error(map[string]any{"error": err.Error()}, "failed to persist ruleset snapshot")
		}
	}
	return nil
}

// Hydrate restores the last persisted snapshot, if any. Call once at
// startup before the first Replace.
func (r *repository) Hydrate() error {
	if r.persist == nil {
		return nil
	}
	r.wmu.Lock()
	defer r.wmu.Unlock()

	sets, version, updated, err := r.persist.Load()
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return nil
	}
	if err := r.install(sets, version, updated); err != nil {
		return err
	}
	r.log.Info(map[string]any{
		"version": version,
		"sources": len(sets),
	}, "hydrated ruleset snapshot from store")
	return nil
}

// Sources lists the sources in the active snapshot, sorted by name.
func (r *repository) Sources() []SourceInfo {
	r.mu.RLock()
	snap := r.snap
	r.mu.RUnlock()
	if snap == nil {
		return nil
	}
	infos := make([]SourceInfo, 0, len(snap.sets))
	for name, rs := range snap.sets {
		entries := rs.Size()
		if rs.Kind == domain.SourceFilterList {
			entries = snap.engines[name].RulesCount()
		}
		infos = append(infos, SourceInfo{
			Name:        name,
			Kind:        rs.Kind.String(),
			Entries:     entries,
			Description: rs.Description,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Version returns the active snapshot version, 0 when empty.
func (r *repository) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snap == nil {
		return 0
	}
	return r.snap.version
}

// Stats returns snapshot metadata and cache counters.
func (r *repository) Stats() RepoStats {
	hits, misses, evictions := r.cache.Stats()
	r.mu.RLock()
	snap := r.snap
	r.mu.RUnlock()

	st := RepoStats{
		CacheHits:      hits,
		CacheMisses:    misses,
		CacheEvictions: evictions,
	}
	if snap != nil {
		st.Version = snap.version
		st.UpdatedUnix = snap.updated
		st.Sources = len(snap.sets)
		for _, rs := range snap.sets {
			st.Entries += rs.Size()
		}
	}
	return st
}

// Close releases the persister, if any.
func (r *repository) Close() error {
	if r.persist == nil {
		return nil
	}
	return r.persist.Close()
}

// install validates the rulesets, compiles filter engines, builds a fresh
// prefilter, and swaps everything in under lock.
func (r *repository) install(sets map[string]domain.Ruleset, version uint64, updatedUnix int64) error {
	view := make(map[string]domain.Ruleset, len(sets))
	engines := make(map[string]*FilterEngine, 1)
	var capacity uint64

	for name, rs := range sets {
		if err := rs.Validate(); err != nil {
			return fmt.Errorf("ruleset %q: %w", name, err)
		}
		if rs.Name != name {
			return fmt.Errorf("ruleset key %q does not match name %q", name, rs.Name)
		}
		view[name] = rs
		switch rs.Kind {
		case domain.SourceFilterList:
			eng, err := NewFilterEngine(rs.Filters)
			if err != nil {
				// the rest of the snapshot still installs; this source matches nothing
				r.log.Error(map[string]any{
					"source": name,
					"error":  err.Error(),
				}, "failed to compile filter rules; source disabled")
				continue
			}
			engines[name] = eng
		case domain.SourceDomainList:
			capacity += uint64(len(rs.Block) + len(rs.Allow))
		case domain.SourceURLList:
			capacity += uint64(len(rs.URLs))
		}
	}

	bf := r.factory.New(capacity, r.fpRate)
	for _, rs := range view {
		for name := range rs.Block {
			bf.Add([]byte(domainKey(name)))
		}
		for name := range rs.Allow {
			bf.Add([]byte(domainKey(name)))
		}
		for u := range rs.URLs {
			bf.Add([]byte(urlKey(u)))
		}
	}

	snap := &snapshot{
		version: version,
		updated: updatedUnix,
		sets:    view,
		engines: engines,
	}

	r.mu.Lock()
	r.snap = snap
	r.bloom = bf
	r.cache.Purge()
	r.mu.Unlock()
	return nil
}

// checkPrefilter returns true when set-based sources should be consulted.
// A nil filter means none is loaded yet; consult authoritatively.
func checkPrefilter(bloom Prefilter, host, normURL string) bool {
	if bloom == nil {
		return true
	}
	if bloom.MightContain([]byte(urlKey(normURL))) {
		return true
	}
	for _, anchor := range urlutil.HostAnchors(host) {
		if bloom.MightContain([]byte(domainKey(anchor))) {
			return true
		}
	}
	return false
}

// selectSources expands a nil selection to every source, sorted for
// deterministic evaluation order.
func selectSources(s *snapshot, sources []string) []string {
	if sources == nil {
		names := make([]string, 0, len(s.sets))
		for name := range s.sets {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}
	return sources
}

// cacheKey builds "version|url|sources" with the source list sorted, so the
// same selection always hits the same entry. nil selection keys as "*".
func cacheKey(version uint64, normURL string, sources []string) string {
	sk := "*"
	if sources != nil {
		ss := make([]string, len(sources))
		copy(ss, sources)
		sort.Strings(ss)
		sk = strings.Join(ss, ",")
	}
	return fmt.Sprintf("%d|%s|%s", version, normURL, sk)
}

func domainKey(name string) string { return "d:" + name }
func urlKey(u string) string       { return "u:" + u }

func cloneHits(h domain.RuleHits) domain.RuleHits {
	out := make(domain.RuleHits, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func cloneReasons(rs domain.RuleReasons) domain.RuleReasons {
	out := make(domain.RuleReasons, len(rs))
	for k, v := range rs {
		out[k] = v
	}
	return out
}

var _ Repository = (*repository)(nil)
