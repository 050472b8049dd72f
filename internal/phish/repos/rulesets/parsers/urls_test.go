package parsers

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
)

func TestParseURLList_Basics(t *testing.T) {
	input := `
# comment
site.test/login
http://site.test/login
https://pay.site.test/confirm#step2
http://
%%%
site.test/login
`

	got, err := ParseURLList(bytes.NewBufferString(input), "test-source", log.NewNoopLogger())
	if err != nil {
		t.Fatalf("ParseURLList returned error: %v", err)
	}

	want := []string{
		"http://site.test/login",
		"https://pay.site.test/confirm#step2",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseURLList = %#v, want %#v", got, want)
	}
}

func TestParseURLList_FragmentIsNotAComment(t *testing.T) {
	input := "http://site.test/page#section\n"
	got, err := ParseURLList(bytes.NewBufferString(input), "s", log.NewNoopLogger())
	if err != nil {
		t.Fatalf("ParseURLList returned error: %v", err)
	}
	if len(got) != 1 || got[0] != "http://site.test/page#section" {
		t.Fatalf("expected fragment preserved, got %#v", got)
	}
}

func TestParseURLList_LongLineWithinBuffer(t *testing.T) {
	// 100K single line is beyond the default scanner limit but within ours.
	input := "http://site.test/" + strings.Repeat("a", 100000) + "\n"
	got, err := ParseURLList(bytes.NewBufferString(input), "s", log.NewNoopLogger())
	if err != nil {
		t.Fatalf("ParseURLList returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
}

func TestParseURLList_ScannerError(t *testing.T) {
	// Exceed the raised 1M token limit
	big := bytes.Repeat([]byte{'a'}, 1100000)
	input := string(big) // no newline, single oversized token

	got, err := ParseURLList(bytes.NewBufferString(input), "src", log.NewNoopLogger())
	if err == nil {
		t.Fatalf("expected error from scanner, got nil")
	}
	if got != nil {
		t.Fatalf("expected nil result on error, got len=%d", len(got))
	}
}
