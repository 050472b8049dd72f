package bolt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
)

func tempDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "rulesets.db")
}

func sampleSets(t *testing.T) map[string]domain.Ruleset {
	t.Helper()
	dl, err := domain.NewDomainRuleset("metamask", []string{"evil.example", "bad.example"}, []string{"good.example"})
	if err != nil {
		t.Fatalf("NewDomainRuleset: %v", err)
	}
	dl.Description = "curated wallet blocklist"
	ul, err := domain.NewURLRuleset("phishing_database", []string{"http://evil.example/login"})
	if err != nil {
		t.Fatalf("NewURLRuleset: %v", err)
	}
	fl, err := domain.NewFilterRuleset("adguard", []string{"||tracker.example^", "@@||cdn.example^"})
	if err != nil {
		t.Fatalf("NewFilterRuleset: %v", err)
	}
	return map[string]domain.Ruleset{
		"metamask":          dl,
		"phishing_database": ul,
		"adguard":           fl,
	}
}

func TestBoltStore_EmptyLoad(t *testing.T) {
	dbPath := tempDB(t)
	st, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(); _ = os.Remove(dbPath) })

	sets, version, updated, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sets) != 0 || version != 0 || updated != 0 {
		t.Fatalf("fresh db should be empty, got sets=%d version=%d updated=%d", len(sets), version, updated)
	}
}

func TestBoltStore_SaveAndLoadRoundTrip(t *testing.T) {
	dbPath := tempDB(t)
	st, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(); _ = os.Remove(dbPath) })

	in := sampleSets(t)
	if err := st.Save(7, 1764000000, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sets, version, updated, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if version != 7 || updated != 1764000000 {
		t.Fatalf("meta mismatch: version=%d updated=%d", version, updated)
	}
	if len(sets) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(sets))
	}

	mm := sets["metamask"]
	if mm.Kind != domain.SourceDomainList {
		t.Errorf("metamask kind = %v", mm.Kind)
	}
	if _, ok := mm.Block["evil.example"]; !ok {
		t.Errorf("metamask block set lost evil.example")
	}
	if _, ok := mm.Allow["good.example"]; !ok {
		t.Errorf("metamask allow set lost good.example")
	}
	if mm.Description != "curated wallet blocklist" {
		t.Errorf("description lost: %q", mm.Description)
	}

	pd := sets["phishing_database"]
	if _, ok := pd.URLs["http://evil.example/login"]; !ok {
		t.Errorf("urllist entry lost")
	}

	ag := sets["adguard"]
	if len(ag.Filters) != 2 {
		t.Errorf("filter rules lost: %v", ag.Filters)
	}
}

func TestBoltStore_SaveReplacesWholesale(t *testing.T) {
	dbPath := tempDB(t)
	st, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(); _ = os.Remove(dbPath) })

	if err := st.Save(1, 100, sampleSets(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	only, err := domain.NewDomainRuleset("polkadot", []string{"scam.example"}, nil)
	if err != nil {
		t.Fatalf("NewDomainRuleset: %v", err)
	}
	if err := st.Save(2, 200, map[string]domain.Ruleset{"polkadot": only}); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	sets, version, _, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if version != 2 {
		t.Fatalf("version = %d, want 2", version)
	}
	if len(sets) != 1 {
		t.Fatalf("old sources should be gone, got %d", len(sets))
	}
	if _, ok := sets["polkadot"]; !ok {
		t.Fatalf("polkadot missing after save")
	}
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	dbPath := tempDB(t)
	st, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := st.Save(3, 300, sampleSets(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = st2.Close(); _ = os.Remove(dbPath) })

	sets, version, _, err := st2.Load()
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if version != 3 || len(sets) != 3 {
		t.Fatalf("snapshot lost across reopen: version=%d sets=%d", version, len(sets))
	}
}
