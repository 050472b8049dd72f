package predictors

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/urlutil"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/services/registry"
)

// ExchangeFunc performs one DNS exchange. It exists so tests can substitute
// the network round trip.
type ExchangeFunc func(ctx context.Context, msg *dns.Msg, addr string) (*dns.Msg, error)

type dnsProbeParams struct {
	Resolver      string  `koanf:"resolver"`
	TimeoutMS     int     `koanf:"timeout_ms"`
	NXDomainProba float64 `koanf:"nxdomain_proba"`
	ResolvedProba float64 `koanf:"resolved_proba"`
}

// DNSProbe scores URLs by resolving their hosts. Hosts that do not resolve
// are typical of freshly registered or already-dismantled phishing
// infrastructure and score high; hosts that resolve score low. Resolver
// failures surface as prediction errors rather than scores.
type DNSProbe struct {
	resolver string
	timeout  time.Duration
	nxProba  float64
	okProba  float64
	exchange ExchangeFunc
}

// NewDNSProbe constructs a DNSProbe predictor. Accepted params:
//   - resolver: upstream resolver address, default "1.1.1.1:53"
//   - timeout_ms: per-lookup timeout, default 3000
//   - nxdomain_proba: score for non-resolving hosts, default 0.8
//   - resolved_proba: score for resolving hosts, default 0.2
func NewDNSProbe(params map[string]any) (registry.Predictor, error) {
	p := dnsProbeParams{
		Resolver:      "1.1.1.1:53",
		TimeoutMS:     3000,
		NXDomainProba: 0.8,
		ResolvedProba: 0.2,
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("dnsprobe: %w", err)
	}
	if p.Resolver == "" {
		return nil, fmt.Errorf("dnsprobe: resolver must not be empty")
	}
	if p.TimeoutMS <= 0 {
		return nil, fmt.Errorf("dnsprobe: timeout_ms must be positive, got %d", p.TimeoutMS)
	}
	if err := validateUnitInterval("nxdomain_proba", p.NXDomainProba); err != nil {
		return nil, fmt.Errorf("dnsprobe: %w", err)
	}
	if err := validateUnitInterval("resolved_proba", p.ResolvedProba); err != nil {
		return nil, fmt.Errorf("dnsprobe: %w", err)
	}
	return &DNSProbe{
		resolver: p.Resolver,
		timeout:  time.Duration(p.TimeoutMS) * time.Millisecond,
		nxProba:  p.NXDomainProba,
		okProba:  p.ResolvedProba,
		exchange: defaultExchange,
	}, nil
}

// Predict resolves the URL's host and maps the outcome to a probability.
func (d *DNSProbe) Predict(ctx context.Context, rawURL string) (float64, error) {
	host := urlutil.ExtractHost(rawURL)
	if host == "" {
		return 0, fmt.Errorf("no host in %q", rawURL)
	}

	ctx, cancel := d.ensureContextDeadline(ctx)
	if cancel != nil {
		defer cancel()
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)

	resp, err := d.exchange(ctx, msg, d.resolver)
	if err != nil {
		return 0, fmt.Errorf("lookup %s: %w", host, err)
	}

	switch {
	case resp.Rcode == dns.RcodeNameError:
		return d.nxProba, nil
	case resp.Rcode == dns.RcodeSuccess && len(resp.Answer) == 0:
		// resolves to nothing; treat like a missing name
		return d.nxProba, nil
	case resp.Rcode == dns.RcodeSuccess:
		return d.okProba, nil
	default:
		return 0, fmt.Errorf("lookup %s: resolver returned %s", host, dns.RcodeToString[resp.Rcode])
	}
}

// ensureContextDeadline applies the probe's default timeout when the caller
// did not set one.
func (d *DNSProbe) ensureContextDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, d.timeout)
	}
	return ctx, nil
}

func defaultExchange(ctx context.Context, msg *dns.Msg, addr string) (*dns.Msg, error) {
	c := &dns.Client{}
	resp, _, err := c.ExchangeContext(ctx, msg, addr)
	return resp, err
}

var _ registry.Predictor = (*DNSProbe)(nil)
