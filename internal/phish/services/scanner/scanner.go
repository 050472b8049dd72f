// Package scanner runs the full decision pipeline over batches of URLs:
// rule matching, predictor fan-out, and aggregation into one verdict each.
package scanner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
)

// Matcher evaluates a URL against rule sources. nil sources means all.
type Matcher interface {
	Match(rawURL string, sources []string) (domain.RuleHits, domain.RuleReasons)
}

// Predictors runs the named predictors against a URL. nil names means all.
type Predictors interface {
	PredictAll(ctx context.Context, rawURL string, names []string, threshold float64) map[string]domain.Prediction
}

// Aggregator fuses hits and predictions into a decision.
type Aggregator interface {
	Aggregate(strategy domain.Strategy, hits domain.RuleHits, preds map[string]domain.Prediction) (domain.Decision, error)
}

// Options configure New. Matcher, Predictors, and Aggregator are required.
type Options struct {
	Matcher    Matcher
	Predictors Predictors
	Aggregator Aggregator
	Logger     log.Logger
}

// Service orchestrates one scan at a time; collaborators handle their own
// concurrency.
type Service struct {
	matcher    Matcher
	predictors Predictors
	agg        Aggregator
	log        log.Logger
}

// New constructs a scan Service.
func New(opts Options) (*Service, error) {
	if opts.Matcher == nil {
		return nil, fmt.Errorf("scanner: matcher is required")
	}
	if opts.Predictors == nil {
		return nil, fmt.Errorf("scanner: predictors are required")
	}
	if opts.Aggregator == nil {
		return nil, fmt.Errorf("scanner: aggregator is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Service{
		matcher:    opts.Matcher,
		predictors: opts.Predictors,
		agg:        opts.Aggregator,
		log:        opts.Logger,
	}, nil
}

// Request selects what one scan covers. nil Sources or Predictors means
// every loaded one; empty slices mean none. A zero Strategy falls back to
// the default, and a missing BatchID is assigned.
type Request struct {
	URLs       []string
	Sources    []string
	Predictors []string
	Strategy   domain.Strategy
	BatchID    string
}

// Row is the full evidence trail for one URL.
type Row struct {
	URL         string                       `json:"url"`
	RuleHits    domain.RuleHits              `json:"rules"`
	RuleReasons domain.RuleReasons           `json:"reasons"`
	Predictions map[string]domain.Prediction `json:"predictions"`
	Decision    domain.Decision              `json:"decision"`
}

// Report is the outcome of one scan batch.
type Report struct {
	BatchID  string `json:"batch_id"`
	Strategy string `json:"strategy"`
	Flagged  int    `json:"flagged"`
	Rows     []Row  `json:"rows"`
}

// Scan evaluates every URL in order. Per-URL faults never abort the batch;
// they surface inside the rows. Only an unusable strategy or a canceled
// context returns an error.
func (s *Service) Scan(ctx context.Context, req Request) (Report, error) {
	strategy := req.Strategy
	if strategy.Name == "" {
		strategy = domain.DefaultStrategy()
	}
	if err := strategy.Validate(); err != nil {
		return Report{}, err
	}

	batch := req.BatchID
	if batch == "" {
		batch = uuid.NewString()
	}

	rows := make([]Row, 0, len(req.URLs))
	flagged := 0
	for _, u := range req.URLs {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		hits, reasons := s.matcher.Match(u, req.Sources)
		preds := s.predictors.PredictAll(ctx, u, req.Predictors, strategy.Threshold)
		dec, err := s.agg.Aggregate(strategy, hits, preds)
		if err != nil {
			return Report{}, fmt.Errorf("aggregate %q: %w", u, err)
		}
		if dec.IsPhishing() {
			flagged++
		}

		rows = append(rows, Row{
			URL:         u,
			RuleHits:    hits,
			RuleReasons: reasons,
			Predictions: preds,
			Decision:    dec,
		})
	}

	s.log.Info(map[string]any{
		"batch_id": batch,
		"strategy": strategy.Name,
		"urls":     len(rows),
		"flagged":  flagged,
	}, "scan complete")

	return Report{
		BatchID:  batch,
		Strategy: strategy.Name,
		Flagged:  flagged,
		Rows:     rows,
	}, nil
}
