package bolt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/repos/rulesets"
)

var (
	bucketSources = []byte("sources")
	bucketMeta    = []byte("meta")
)

// boltStore implements rulesets.Persister using bbolt. Each source is one
// JSON record; meta carries the snapshot version and update time.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (rulesets.Persister, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSources); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// record is the stored form of one ruleset.
type record struct {
	Kind        string   `json:"kind"`
	Description string   `json:"description,omitempty"`
	Block       []string `json:"block,omitempty"`
	Allow       []string `json:"allow,omitempty"`
	URLs        []string `json:"urls,omitempty"`
	Filters     []string `json:"filters,omitempty"`
}

// Save replaces the persisted snapshot wholesale in one transaction.
func (s *boltStore) Save(version uint64, updatedUnix int64, sets map[string]domain.Ruleset) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketSources); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketSources)
		if err != nil {
			return err
		}
		for name, rs := range sets {
			enc, err := json.Marshal(record{
				Kind:        rs.Kind.String(),
				Description: rs.Description,
				Block:       sortedKeys(rs.Block),
				Allow:       sortedKeys(rs.Allow),
				URLs:        sortedKeys(rs.URLs),
				Filters:     rs.Filters,
			})
			if err != nil {
				return fmt.Errorf("encode source %q: %w", name, err)
			}
			if err := b.Put([]byte(name), enc); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMeta)
		vbuf := make([]byte, 8)
		ubuf := make([]byte, 8)
		binary.BigEndian.PutUint64(vbuf, version)
		binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
		if err := meta.Put([]byte("version"), vbuf); err != nil {
			return err
		}
		return meta.Put([]byte("updated"), ubuf)
	})
}

// Load returns the persisted snapshot. A database without sources yields an
// empty map and zero version.
func (s *boltStore) Load() (map[string]domain.Ruleset, uint64, int64, error) {
	sets := make(map[string]domain.Ruleset)
	var version uint64
	var updated int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		if meta := tx.Bucket(bucketMeta); meta != nil {
			if v := meta.Get([]byte("version")); len(v) == 8 {
				version = binary.BigEndian.Uint64(v)
			}
			if v := meta.Get([]byte("updated")); len(v) == 8 {
				updated = int64(binary.BigEndian.Uint64(v))
			}
		}

		b := tx.Bucket(bucketSources)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			name := string(k)
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode source %q: %w", name, err)
			}
			rs, err := rebuild(name, rec)
			if err != nil {
				return fmt.Errorf("rebuild source %q: %w", name, err)
			}
			sets[name] = rs
			return nil
		})
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return sets, version, updated, nil
}

// rebuild reconstructs a Ruleset through its constructor so entries pass
// the same canonicalization as a fresh load.
func rebuild(name string, rec record) (domain.Ruleset, error) {
	kind, err := domain.ParseSourceKind(rec.Kind)
	if err != nil {
		return domain.Ruleset{}, err
	}
	var rs domain.Ruleset
	switch kind {
	case domain.SourceDomainList:
		rs, err = domain.NewDomainRuleset(name, rec.Block, rec.Allow)
	case domain.SourceURLList:
		rs, err = domain.NewURLRuleset(name, rec.URLs)
	case domain.SourceFilterList:
		rs, err = domain.NewFilterRuleset(name, rec.Filters)
	}
	if err != nil {
		return domain.Ruleset{}, err
	}
	rs.Description = rec.Description
	return rs, nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ rulesets.Persister = (*boltStore)(nil)
