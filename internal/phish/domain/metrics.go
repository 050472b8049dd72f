package domain

import "math"

// Metrics holds binary classification counts and the derived rates.
// Derived values use max(1, denominator) floors, so degenerate inputs
// produce zeros instead of division errors.
type Metrics struct {
	TP        int     `json:"tp"`
	TN        int     `json:"tn"`
	FP        int     `json:"fp"`
	FN        int     `json:"fn"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Total returns the number of scored samples.
func (m Metrics) Total() int { return m.TP + m.TN + m.FP + m.FN }

// ComputeMetrics scores predicted labels against ground truth. Pairs are
// counted over the shorter slice; labels outside {0,1} fall into no bucket.
// Accuracy divides by max(1, len(truth)). The F1 denominator is the float
// max(1, precision+recall), so a precision+recall sum below one divides by
// one instead.
func ComputeMetrics(truth, predicted []int) Metrics {
	var m Metrics
	n := min(len(truth), len(predicted))
	for i := 0; i < n; i++ {
		t, p := truth[i], predicted[i]
		switch {
		case t == 1 && p == 1:
			m.TP++
		case t == 0 && p == 0:
			m.TN++
		case t == 0 && p == 1:
			m.FP++
		case t == 1 && p == 0:
			m.FN++
		}
	}
	m.Accuracy = float64(m.TP+m.TN) / float64(max(1, len(truth)))
	m.Precision = float64(m.TP) / float64(max(1, m.TP+m.FP))
	m.Recall = float64(m.TP) / float64(max(1, m.TP+m.FN))
	m.F1 = 2 * m.Precision * m.Recall / math.Max(1, m.Precision+m.Recall)
	return m
}
