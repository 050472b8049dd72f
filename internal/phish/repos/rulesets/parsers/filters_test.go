package parsers

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
)

func TestParseFilterList_Basics(t *testing.T) {
	input := `
[Adblock Plus 2.0]
! Title: test rules
||evil.example^
@@||good.example^
||evil.example^
##.banner

||tracker.example^$third-party
`

	got, err := ParseFilterList(bytes.NewBufferString(input), "test-source", log.NewNoopLogger())
	if err != nil {
		t.Fatalf("ParseFilterList returned error: %v", err)
	}

	want := []string{
		"||evil.example^",
		"@@||good.example^",
		"##.banner",
		"||tracker.example^$third-party",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseFilterList = %#v, want %#v", got, want)
	}
}

func TestParseFilterList_CommentsOnly(t *testing.T) {
	input := "! one\n!! two\n[Adblock Plus 2.0]\n\n"
	got, err := ParseFilterList(bytes.NewBufferString(input), "s", log.NewNoopLogger())
	if err != nil {
		t.Fatalf("ParseFilterList returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected 0 rules, got %d: %#v", len(got), got)
	}
}

func TestParseFilterList_ScannerError(t *testing.T) {
	big := bytes.Repeat([]byte{'a'}, 70000)
	input := string(big)

	got, err := ParseFilterList(bytes.NewBufferString(input), "src", log.NewNoopLogger())
	if err == nil {
		t.Fatalf("expected error from scanner, got nil")
	}
	if got != nil {
		t.Fatalf("expected nil result on error, got len=%d", len(got))
	}
}
