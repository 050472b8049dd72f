package predictors

import (
	"context"
	"strings"
	"unicode"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/urlutil"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/services/registry"
)

// suspiciousWords are substrings that frequently appear in credential
// phishing URLs.
var suspiciousWords = []string{
	"login", "verify", "secure", "account", "update", "confirm", "wallet",
	"airdrop", "bonus", "free", "gift", "support", "resolution", "invoice",
	"okta", "microsoft", "apple", "google", "bank", "security", "unlock",
	"password", "reset",
}

// Lexical scores URLs from surface features alone: length, special-character
// density, suspicious keywords, digit count, and hyphen-heavy hosts. It needs
// no model artifacts and serves as the always-available baseline.
type Lexical struct{}

// NewLexical constructs a Lexical predictor. It takes no parameters.
func NewLexical(_ map[string]any) (registry.Predictor, error) {
	return &Lexical{}, nil
}

// Predict returns the heuristic score for the URL.
func (l *Lexical) Predict(_ context.Context, rawURL string) (float64, error) {
	return l.Score(rawURL), nil
}

// Score computes the heuristic score in [0,1].
//
// The weights are empirical:
//   - 0.0008 per character of normalized URL length
//   - 0.8 times the special-character ratio
//   - 0.6 when any suspicious keyword appears
//   - 0.2 when the URL carries more than five digits
//   - 0.2 when the host contains two or more hyphens
func (l *Lexical) Score(rawURL string) float64 {
	u := urlutil.NormalizeURL(rawURL)

	var total, digits, specials int
	for _, r := range u {
		total++
		switch {
		case unicode.IsDigit(r):
			digits++
		case !unicode.IsLetter(r):
			specials++
		}
	}

	lowered := strings.ToLower(u)
	susp := 0
	for _, w := range suspiciousWords {
		if strings.Contains(lowered, w) {
			susp++
		}
	}

	score := 0.0008 * float64(total)
	if total > 0 {
		score += 0.8 * float64(specials) / float64(total)
	}
	if susp > 0 {
		score += 0.6
	}
	if digits > 5 {
		score += 0.2
	}
	if strings.Count(urlutil.ExtractHost(u), "-") >= 2 {
		score += 0.2
	}
	return clamp01(score)
}

var _ registry.Predictor = (*Lexical)(nil)
