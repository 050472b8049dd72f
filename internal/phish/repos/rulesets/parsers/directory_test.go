package parsers

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestLoadDirectory_AllKinds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "domains.txt", "evil.example\n# comment\nEvil.Example\n")
	writeFile(t, dir, "allow.txt", "safe.example\n")
	writeFile(t, dir, "wallet.json", `{"version":2,"blocklist":["walletdrain.example"],"allowlist":["wallet.example"]}`)
	writeFile(t, dir, "urls.txt", "http://kit.example/login\nkit.example/login\n")
	writeFile(t, dir, "rules.txt", "! comment\n||ads.example^\n")

	sources := []FileSource{
		{Name: "feed", Kind: domain.SourceDomainList, Path: "domains.txt", AllowPath: "allow.txt", Description: "community feed"},
		{Name: "wallet", Kind: domain.SourceDomainList, Format: FormatJSON, Path: "wallet.json"},
		{Name: "kits", Kind: domain.SourceURLList, Path: "urls.txt"},
		{Name: "adblock", Kind: domain.SourceFilterList, Path: "rules.txt"},
	}

	got, err := LoadDirectory(dir, sources, log.NewNoopLogger())
	if err != nil {
		t.Fatalf("LoadDirectory returned error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 sources, got %d", len(got))
	}

	feed := got["feed"]
	if feed.Kind != domain.SourceDomainList || feed.Description != "community feed" {
		t.Fatalf("feed source unexpected: %+v", feed)
	}
	if _, ok := feed.Block["evil.example"]; !ok || len(feed.Block) != 1 {
		t.Fatalf("feed block set unexpected: %#v", feed.Block)
	}
	if _, ok := feed.Allow["safe.example"]; !ok || len(feed.Allow) != 1 {
		t.Fatalf("feed allow set unexpected: %#v", feed.Allow)
	}

	wallet := got["wallet"]
	if _, ok := wallet.Block["walletdrain.example"]; !ok {
		t.Fatalf("wallet block set unexpected: %#v", wallet.Block)
	}
	if _, ok := wallet.Allow["wallet.example"]; !ok {
		t.Fatalf("wallet allow set unexpected: %#v", wallet.Allow)
	}

	kits := got["kits"]
	if _, ok := kits.URLs["http://kit.example/login"]; !ok || len(kits.URLs) != 1 {
		t.Fatalf("kits URL set unexpected: %#v", kits.URLs)
	}

	adblock := got["adblock"]
	if !reflect.DeepEqual(adblock.Filters, []string{"||ads.example^"}) {
		t.Fatalf("adblock filters unexpected: %#v", adblock.Filters)
	}
}

func TestLoadDirectory_SkipsBrokenSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "domains.txt", "evil.example\n")

	sources := []FileSource{
		{Name: "feed", Kind: domain.SourceDomainList, Path: "domains.txt"},
		{Name: "feed", Kind: domain.SourceDomainList, Path: "missing.txt"}, // duplicate name, kept first
		{Name: "gone", Kind: domain.SourceDomainList, Path: "missing.txt"},
		{Name: "odd", Kind: domain.SourceURLList, Format: FormatJSON, Path: "domains.txt"}, // unsupported combination
	}

	got, err := LoadDirectory(dir, sources, log.NewNoopLogger())
	if err != nil {
		t.Fatalf("LoadDirectory returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 source, got %d: %#v", len(got), got)
	}
	if _, ok := got["feed"].Block["evil.example"]; !ok {
		t.Fatalf("surviving source unexpected: %#v", got["feed"])
	}
}

func TestLoadDirectory_MissingDir(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "nope"), nil, log.NewNoopLogger())
	if err == nil {
		t.Fatalf("expected error for missing directory, got nil")
	}
}

func TestLoadDirectory_PathIsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "file.txt", "x\n")
	_, err := LoadDirectory(filepath.Join(dir, "file.txt"), nil, log.NewNoopLogger())
	if err == nil {
		t.Fatalf("expected error for non-directory path, got nil")
	}
}
