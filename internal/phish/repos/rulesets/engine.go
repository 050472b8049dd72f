package rulesets

import (
	"strings"

	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
)

// FilterEngine wraps a compiled adblock DNS engine for one filterlist
// source. Engines are built once per snapshot and read-only afterwards.
type FilterEngine struct {
	engine *urlfilter.DNSEngine
}

// NewFilterEngine compiles raw adblock rule lines into a DNS engine.
func NewFilterEngine(rules []string) (*FilterEngine, error) {
	text := strings.Join(rules, "\n")
	list := filterlist.NewString(&filterlist.StringConfig{
		RulesText:      text,
		ID:             1,
		IgnoreCosmetic: true,
	})
	storage, err := filterlist.NewRuleStorage([]filterlist.Interface{list})
	if err != nil {
		return nil, err
	}
	return &FilterEngine{engine: urlfilter.NewDNSEngine(storage)}, nil
}

// MatchHost evaluates a canonical host against the engine. Exception rules
// ("@@") yield an explicit non-hit; other network rules yield a hit. The
// matched rule text becomes the reason.
func (e *FilterEngine) MatchHost(host string) domain.SourceMatch {
	if e == nil || e.engine == nil || host == "" {
		return domain.EmptyMatch()
	}
	res, ok := e.engine.Match(host)
	if !ok || res == nil {
		return domain.EmptyMatch()
	}
	if res.NetworkRule != nil {
		text := res.NetworkRule.Text()
		if strings.HasPrefix(text, "@@") {
			return domain.SourceMatch{Matched: true, Hit: false, Reason: text}
		}
		return domain.SourceMatch{Matched: true, Hit: true, Reason: text}
	}
	return domain.EmptyMatch()
}

// RulesCount reports how many rules the engine compiled.
func (e *FilterEngine) RulesCount() int {
	if e == nil || e.engine == nil {
		return 0
	}
	return e.engine.RulesCount
}
