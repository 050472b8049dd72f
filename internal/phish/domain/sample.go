package domain

import (
	"fmt"
	"strings"
)

// Sample is one labeled URL from an evaluation dataset.
type Sample struct {
	URL   string `json:"url"`
	Label int    `json:"label"` // 1 = phishing, 0 = benign
}

// NewSample constructs a Sample and validates its fields.
func NewSample(url string, label int) (Sample, error) {
	s := Sample{
		URL:   strings.TrimSpace(url),
		Label: label,
	}
	if err := s.Validate(); err != nil {
		return Sample{}, err
	}
	return s, nil
}

// Validate checks the Sample for required fields and supported values.
func (s Sample) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("sample url must not be empty")
	}
	if s.Label != 0 && s.Label != 1 {
		return fmt.Errorf("sample label must be 0 or 1, got %d", s.Label)
	}
	return nil
}
