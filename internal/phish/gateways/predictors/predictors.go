// Package predictors provides the built-in predictor implementations and the
// catalog that maps implementation refs to their constructors.
package predictors

import (
	"fmt"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/services/registry"
)

// Implementation refs accepted in predictor declarations.
const (
	ImplLexical  = "lexical"
	ImplStatic   = "static"
	ImplDNSProbe = "dnsprobe"
)

// Catalog returns the built-in predictor factories. Adding a predictor
// implementation means adding a row here.
func Catalog() registry.Catalog {
	return registry.Catalog{
		ImplLexical:  NewLexical,
		ImplStatic:   NewStatic,
		ImplDNSProbe: NewDNSProbe,
	}
}

// decodeParams unmarshals declarative parameters into a koanf-tagged struct.
// Fields absent from params keep the values already set on out.
func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(params, "."), nil); err != nil {
		return err
	}
	return k.Unmarshal("", out)
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

func validateUnitInterval(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be within [0,1], got %v", name, v)
	}
	return nil
}
