package usecase

import (
	"log/slog"
	"math"
	"sort"

	"github.com/yojanadesk/scheme-rag/internal/config"
	"github.com/yojanadesk/scheme-rag/internal/core/domain"
)

// AdaptiveThreshold computes a per-query score cutoff from the score
// distribution instead of a static constant. The cutoff is the most
// permissive of three candidates (statistical, top-score ratio,
// intent-specific), clamped to an absolute floor, with a final override
// that guarantees a minimum number of surviving documents.
type AdaptiveThreshold struct {
	tuning  config.Tuning
	logger  *slog.Logger
	observe func(domain.ThresholdDecision)
}

func NewAdaptiveThreshold(tuning config.Tuning, logger *slog.Logger) *AdaptiveThreshold {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdaptiveThreshold{tuning: tuning, logger: logger}
}

// SetObserver registers a callback invoked with every filtering decision.
// Set once during wiring, before the engine serves queries.
func (a *AdaptiveThreshold) SetObserver(fn func(domain.ThresholdDecision)) {
	a.observe = fn
}

// Calculate returns the cutoff for a score distribution. Pure with respect
// to its inputs: identical scores and intent always yield the same decision.
func (a *AdaptiveThreshold) Calculate(scores []float64, intent domain.Intent) domain.ThresholdDecision {
	floor := a.tuning.ThresholdFloor
	if len(scores) == 0 {
		return domain.ThresholdDecision{Threshold: floor, Method: "default_empty"}
	}

	mean, std := meanStdDev(scores)
	top := scores[0]
	for _, s := range scores[1:] {
		if s > top {
			top = s
		}
	}

	statistical := math.Max(floor, mean-std*a.tuning.ThresholdMultiplier)
	topRatio := math.Max(floor, top*a.tuning.TopScoreRatio)

	cutoffParams := a.tuning.CutoffFor(string(intent))
	intentThreshold := math.Max(cutoffParams.Floor, mean-std*cutoffParams.Multiplier)

	// Most permissive of the three wins, but never below the floor.
	threshold := math.Max(floor, math.Min(statistical, math.Min(topRatio, intentThreshold)))

	method := "adaptive"
	above := countAtOrAbove(scores, threshold)
	if above < a.tuning.MinDocsRequired {
		sorted := append([]float64(nil), scores...)
		sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
		idx := a.tuning.MinDocsRequired - 1
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		threshold = sorted[idx] * 0.99
		method = "min_docs_override"
		above = countAtOrAbove(scores, threshold)
	}

	a.logger.Debug("adaptive_threshold",
		"threshold", threshold,
		"method", method,
		"mean", mean,
		"std", std,
		"top", top,
		"pass", above,
		"total", len(scores),
	)

	return domain.ThresholdDecision{
		Threshold:          threshold,
		Method:             method,
		Mean:               mean,
		StdDev:             std,
		TopScore:           top,
		DocsAboveThreshold: above,
		TotalDocs:          len(scores),
	}
}

// FilterDocuments drops documents scoring below the adaptive cutoff and
// reports the decision alongside the survivors.
func (a *AdaptiveThreshold) FilterDocuments(docs []domain.Document, intent domain.Intent) ([]domain.Document, domain.ThresholdDecision) {
	if len(docs) == 0 {
		decision := domain.ThresholdDecision{Method: "empty_input"}
		if a.observe != nil {
			a.observe(decision)
		}
		return nil, decision
	}

	scores := make([]float64, len(docs))
	for i, doc := range docs {
		scores[i] = doc.Score
	}
	decision := a.Calculate(scores, intent)

	kept := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Score >= decision.Threshold {
			kept = append(kept, doc)
		}
	}

	decision.FilteredCount = len(docs) - len(kept)
	decision.ReturnedCount = len(kept)
	if a.observe != nil {
		a.observe(decision)
	}
	if decision.FilteredCount > 0 {
		a.logger.Info("threshold_filtered_docs",
			"dropped", decision.FilteredCount,
			"threshold", decision.Threshold,
		)
	}
	return kept, decision
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(scores []float64) (float64, float64) {
	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))
	return mean, math.Sqrt(variance)
}

func countAtOrAbove(scores []float64, threshold float64) int {
	n := 0
	for _, s := range scores {
		if s >= threshold {
			n++
		}
	}
	return n
}
