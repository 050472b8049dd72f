// Package evaluator replays labeled datasets through the scan pipeline and
// scores each aggregation strategy against the ground truth.
package evaluator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/services/scanner"
)

// Scanner runs one scan batch. Satisfied by *scanner.Service.
type Scanner interface {
	Scan(ctx context.Context, req scanner.Request) (scanner.Report, error)
}

// Options configure New. Scanner is required.
type Options struct {
	Scanner Scanner
	Logger  log.Logger
}

// Service evaluates datasets. Each strategy gets its own full pipeline run,
// so per-strategy numbers never share cached decisions.
type Service struct {
	scan Scanner
	log  log.Logger
}

// New constructs an evaluation Service.
func New(opts Options) (*Service, error) {
	if opts.Scanner == nil {
		return nil, fmt.Errorf("evaluator: scanner is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Service{scan: opts.Scanner, log: opts.Logger}, nil
}

// Request selects the dataset and the strategies to score. Empty Strategies
// falls back to the default strategy; a missing RunID is assigned.
type Request struct {
	Samples    []domain.Sample
	Sources    []string
	Predictors []string
	Strategies []domain.Strategy
	RunID      string
}

// Record pairs one sample's truth with the pipeline's verdict.
type Record struct {
	URL         string                       `json:"url"`
	Truth       int                          `json:"label"`
	Predicted   int                          `json:"pred"`
	Score       float64                      `json:"score"`
	RuleHits    domain.RuleHits              `json:"rules"`
	Predictions map[string]domain.Prediction `json:"predictions"`
}

// StrategyResult is one strategy's scoreboard over the dataset.
type StrategyResult struct {
	Strategy string         `json:"strategy"`
	Metrics  domain.Metrics `json:"metrics"`
	Records  []Record       `json:"records"`
}

// Report is the outcome of one evaluation run, one result per strategy in
// request order.
type Report struct {
	RunID   string           `json:"run_id"`
	Samples int              `json:"samples"`
	Results []StrategyResult `json:"results"`
}

// Evaluate scans the dataset once per strategy and computes the confusion
// counts and derived rates for each.
func (e *Service) Evaluate(ctx context.Context, req Request) (Report, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	strategies := req.Strategies
	if len(strategies) == 0 {
		strategies = []domain.Strategy{domain.DefaultStrategy()}
	}

	urls := make([]string, len(req.Samples))
	truth := make([]int, len(req.Samples))
	for i, s := range req.Samples {
		urls[i] = s.URL
		truth[i] = s.Label
	}

	results := make([]StrategyResult, 0, len(strategies))
	for _, st := range strategies {
		rep, err := e.scan.Scan(ctx, scanner.Request{
			URLs:       urls,
			Sources:    req.Sources,
			Predictors: req.Predictors,
			Strategy:   st,
			BatchID:    runID + ":" + st.Name,
		})
		if err != nil {
			return Report{}, fmt.Errorf("strategy %q: %w", st.Name, err)
		}

		predicted := make([]int, len(rep.Rows))
		records := make([]Record, len(rep.Rows))
		for i, row := range rep.Rows {
			predicted[i] = row.Decision.Label
			records[i] = Record{
				URL:         row.URL,
				Truth:       truth[i],
				Predicted:   row.Decision.Label,
				Score:       row.Decision.Score,
				RuleHits:    row.RuleHits,
				Predictions: row.Predictions,
			}
		}

		results = append(results, StrategyResult{
			Strategy: rep.Strategy,
			Metrics:  domain.ComputeMetrics(truth, predicted),
			Records:  records,
		})
	}

	e.log.Info(map[string]any{
		"run_id":     runID,
		"samples":    len(req.Samples),
		"strategies": len(results),
	}, "evaluation complete")

	return Report{RunID: runID, Samples: len(req.Samples), Results: results}, nil
}
