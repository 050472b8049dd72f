package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/repos/rulesets"
)

// factory implements rulesets.PrefilterFactory using internal sizing formulas.
type factory struct{}

// NewFactory returns a PrefilterFactory that sizes filters from capacity
// and target false-positive rate.
func NewFactory() rulesets.PrefilterFactory { return factory{} }

// New constructs a Prefilter sized for the given number of keys and target
// false-positive rate.
func (factory) New(capacity uint64, fpRate float64) rulesets.Prefilter {
	m, k := size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}
