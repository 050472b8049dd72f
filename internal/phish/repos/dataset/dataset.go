// Package dataset loads labeled URL samples for offline evaluation runs.
// Datasets are CSV files with url,label columns; label is 1 for phishing
// and 0 for benign.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	logpkg "github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/domain"
)

// Summary describes a loaded dataset.
type Summary struct {
	Size      int `json:"size"`
	Positives int `json:"positives"`
	Negatives int `json:"negatives"`
}

// Load reads the CSV dataset at path. See Parse for row handling.
func Load(path string, logger logpkg.Logger) ([]domain.Sample, Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, path, logger)
}

// Parse reads url,label rows from r. A leading header row is detected and
// skipped. Rows that are short, carry a non-integer label, or fail sample
// validation are logged and dropped; only unrecoverable read errors fail.
func Parse(r io.Reader, source string, logger logpkg.Logger) ([]domain.Sample, Summary, error) {
	rd := csv.NewReader(r)
	rd.FieldsPerRecord = -1
	rd.TrimLeadingSpace = true

	samples := make([]domain.Sample, 0, 1024)
	var sum Summary
	logger.Debug(map[string]any{"source": source}, "parse_dataset_start")
	rowNum := 0
	for {
		row, err := rd.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logger.Debug(map[string]any{"row": rowNum, "error": err.Error()}, "skip_malformed_row")
				continue
			}
			logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_dataset_read_error")
			return nil, Summary{}, err
		}

		if len(row) < 2 {
			logger.Debug(map[string]any{"row": rowNum, "fields": len(row)}, "skip_short_row")
			continue
		}

		url := strings.TrimSpace(row[0])
		rawLabel := strings.TrimSpace(row[1])

		if rowNum == 1 && strings.EqualFold(url, "url") {
			logger.Debug(map[string]any{"row": rowNum}, "skip_header")
			continue
		}

		label, err := strconv.Atoi(rawLabel)
		if err != nil {
			logger.Debug(map[string]any{"row": rowNum, "label": rawLabel}, "skip_bad_label")
			continue
		}

		s, err := domain.NewSample(url, label)
		if err != nil {
			logger.Debug(map[string]any{"row": rowNum, "error": err.Error()}, "skip_invalid_sample")
			continue
		}

		samples = append(samples, s)
		sum.Size++
		if s.Label == 1 {
			sum.Positives++
		} else {
			sum.Negatives++
		}
	}

	logger.Debug(map[string]any{
		"source":    source,
		"size":      sum.Size,
		"positives": sum.Positives,
		"negatives": sum.Negatives,
	}, "parse_dataset_done")
	return samples, sum, nil
}
