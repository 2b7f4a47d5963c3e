package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/yojanadesk/scheme-rag/internal/config"
	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

// Router dispatches queries to the retrieval strategy the decomposition
// calls for, stamps provenance on every result, and applies the adaptive
// threshold as the final quality gate.
type Router struct {
	resolver  *EntityResolver
	hybrid    *HybridRetriever
	metadata  *MetadataRetriever
	threshold *AdaptiveThreshold
	tuning    config.Tuning
	logger    *slog.Logger
}

var _ ports.SchemeRetriever = (*Router)(nil)

func NewRouter(resolver *EntityResolver, hybrid *HybridRetriever, metadata *MetadataRetriever, threshold *AdaptiveThreshold, tuning config.Tuning, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{resolver: resolver, hybrid: hybrid, metadata: metadata, threshold: threshold, tuning: tuning, logger: logger}
}

// Retrieve routes a query end to end. topK <= 0 resolves from the
// per-intent table; a blank query is rejected before any retrieval work.
func (r *Router) Retrieve(ctx context.Context, query string, topK int, intent domain.Intent) ([]domain.Document, domain.Degradation, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.Degradation{}, domain.WrapError(domain.ErrEmptyQuery, "route query", errBlankQuery)
	}
	if topK <= 0 {
		topK = r.tuning.TopKFor(string(intent))
	}

	dec := r.resolver.Decompose(ctx, query)

	var (
		docs        []domain.Document
		degradation domain.Degradation
		err         error
	)
	switch {
	case dec.Mode == domain.ModeFiltered && intent == domain.IntentComparison && len(dec.DetectedSchemes) >= 2:
		docs, err = r.comparisonFlattened(ctx, query, dec.DetectedSchemes, topK)
	case dec.Mode == domain.ModeFiltered:
		theme := r.tuning.ThemeFor(string(intent))
		docs, _, err = r.metadata.RetrieveWithFallback(ctx, query, dec.DetectedSchemes, topK, theme)
	default:
		docs, degradation, err = r.hybrid.Retrieve(ctx, query, topK, intent)
	}
	if err != nil {
		return nil, domain.Degradation{}, err
	}

	for i := range docs {
		stamped := dec
		docs[i].Decomposition = &stamped
	}

	kept, decision := r.threshold.FilterDocuments(docs, intent)
	r.logger.Info("retrieval_routed",
		"mode", string(dec.Mode),
		"intent", string(intent),
		"schemes", dec.DetectedSchemes,
		"candidates", len(docs),
		"returned", len(kept),
		"threshold", decision.Threshold,
		"threshold_method", decision.Method,
	)
	return kept, degradation, nil
}

// comparisonFlattened splits the budget across schemes, retrieves each
// independently, then flattens to a single ranked list.
func (r *Router) comparisonFlattened(ctx context.Context, query string, schemes []string, topK int) ([]domain.Document, error) {
	docsPerScheme := topK / len(schemes)
	if docsPerScheme < 3 {
		docsPerScheme = 3
	}
	byScheme, err := r.metadata.RetrieveComparison(ctx, query, schemes, docsPerScheme)
	if err != nil {
		return nil, err
	}

	flattened := make([]domain.Document, 0, len(schemes)*docsPerScheme)
	for _, scheme := range schemes {
		flattened = append(flattened, byScheme[scheme]...)
	}
	sort.SliceStable(flattened, func(i, j int) bool {
		if flattened[i].Score != flattened[j].Score {
			return flattened[i].Score > flattened[j].Score
		}
		return flattened[i].ID < flattened[j].ID
	})
	if len(flattened) > topK {
		flattened = flattened[:topK]
	}
	return flattened, nil
}

// RetrieveComparison exposes the per-scheme comparison mapping directly.
func (r *Router) RetrieveComparison(ctx context.Context, query string, schemes []string, docsPerScheme int) (map[string][]domain.Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrEmptyQuery, "route comparison", errBlankQuery)
	}
	return r.metadata.RetrieveComparison(ctx, query, schemes, docsPerScheme)
}

type staticError string

func (e staticError) Error() string { return string(e) }

const errBlankQuery = staticError("query is blank")
