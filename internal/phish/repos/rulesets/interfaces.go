package rulesets

import "github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"

// Result pairs per-source verdicts with their reasons for one URL.
type Result struct {
	Hits    domain.RuleHits
	Reasons domain.RuleReasons
}

// MatchCache caches match results keyed by snapshot version, URL, and the
// requested source set, with basic metrics.
type MatchCache interface {
	Get(key string) (Result, bool)
	Put(key string, r Result)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// Prefilter is the minimal interface the repository needs from Bloom
// filters. A negative answer is definitive; a positive one may be false.
type Prefilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// PrefilterFactory sizes and builds a fresh Prefilter for each snapshot.
type PrefilterFactory interface {
	New(capacity uint64, fpRate float64) Prefilter
}

// Persister stores ruleset snapshots across restarts so the last-known-good
// rules survive a process restart.
type Persister interface {
	Save(version uint64, updatedUnix int64, sets map[string]domain.Ruleset) error
	Load() (sets map[string]domain.Ruleset, version uint64, updatedUnix int64, err error)
	Close() error
}

// SourceInfo describes one rule source in the active snapshot.
type SourceInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Entries     int    `json:"entries"`
	Description string `json:"description,omitempty"`
}

// RepoStats exposes snapshot metadata and cache counters.
type RepoStats struct {
	Version        uint64
	UpdatedUnix    int64
	Sources        int
	Entries        int
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64
}

// Repository is the composition layer that wires cache, prefilter, and the
// in-memory snapshot. Match never fails: URLs that normalize to nothing
// simply produce no evidence. Replace swaps a complete snapshot atomically;
// readers always see either the old or the new one.
type Repository interface {
	Match(rawURL string, sources []string) (domain.RuleHits, domain.RuleReasons)
	Replace(sets map[string]domain.Ruleset) error
	Hydrate() error
	Sources() []SourceInfo
	Version() uint64
	Stats() RepoStats
	Close() error
}
