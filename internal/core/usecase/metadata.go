package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/yojanadesk/scheme-rag/internal/config"
	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

// MetadataRetriever serves entity-scoped retrieval. Stage 1 is a filtered
// vector search; when it comes back thin, Stage 2 scans the entity
// sub-corpus and re-ranks it lexically, and Stage 3 can blend in generic
// hybrid results with the entity-scoped documents boosted above them.
type MetadataRetriever struct {
	embedder ports.Embedder
	store    ports.VectorStore
	hybrid   *HybridRetriever
	tuning   config.Tuning
	pageSize int
	logger   *slog.Logger
}

func NewMetadataRetriever(embedder ports.Embedder, store ports.VectorStore, hybrid *HybridRetriever, tuning config.Tuning, pageSize int, logger *slog.Logger) *MetadataRetriever {
	if pageSize <= 0 {
		pageSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataRetriever{embedder: embedder, store: store, hybrid: hybrid, tuning: tuning, pageSize: pageSize, logger: logger}
}

// RetrieveWithFilter runs Stage 1 and, when fewer than minResults documents
// come back, Stage 2. Stage 2 re-ranks the whole entity sub-corpus, so its
// output replaces Stage 1 rather than being appended to it.
func (m *MetadataRetriever) RetrieveWithFilter(ctx context.Context, query string, schemes []string, topK int, theme string, minResults int) ([]domain.Document, error) {
	if topK <= 0 {
		topK = m.tuning.DefaultTopK
	}
	if minResults <= 0 {
		minResults = 1
	}

	schemeFilter := domain.SchemeFilter(schemes)
	filter := schemeFilter
	if theme != "" {
		filter = filter.WithTheme(theme)
	}

	docs, err := semanticSearch(ctx, m.embedder, m.store, query, filter, topK, domain.MethodFilteredVector)
	if err != nil {
		return nil, err
	}
	m.logger.Info("filtered_retrieval",
		"schemes", schemes,
		"theme", theme,
		"returned", len(docs),
	)
	if len(docs) >= minResults {
		return docs, nil
	}

	// Stage 2 scans on the entity filter alone; a theme constraint that
	// starved Stage 1 should not also starve the lexical re-rank.
	reranked, err := m.rerankSubCorpus(ctx, query, schemeFilter, topK)
	if err != nil {
		m.logger.Warn("subcorpus_rerank_failed", "error", err, "schemes", schemes)
		return docs, nil
	}
	if len(reranked) == 0 {
		return docs, nil
	}
	m.logger.Info("subcorpus_reranked", "schemes", schemes, "returned", len(reranked))
	return reranked, nil
}

func (m *MetadataRetriever) rerankSubCorpus(ctx context.Context, query string, filter *domain.Filter, topK int) ([]domain.Document, error) {
	subCorpus, err := scrollAll(ctx, m.store, filter, m.pageSize)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "entity sub-corpus scan", err)
	}
	if len(subCorpus) == 0 {
		return nil, nil
	}
	return newBM25Corpus(subCorpus).search(query, topK, domain.MethodBM25Reranked), nil
}

// RetrieveWithFallback adds the Stage 3 blend: when the entity-scoped
// result count stays below the configured minimum, generic hybrid results
// fill the gap, with every entity-scoped document boosted so it outranks
// them. The returned flag reports whether the blend was used.
func (m *MetadataRetriever) RetrieveWithFallback(ctx context.Context, query string, schemes []string, topK int, theme string) ([]domain.Document, bool, error) {
	if topK <= 0 {
		topK = m.tuning.DefaultTopK
	}

	filtered, err := m.RetrieveWithFilter(ctx, query, schemes, topK, theme, m.tuning.MinFilteredResults)
	if err != nil {
		return nil, false, err
	}
	if len(filtered) >= m.tuning.MinFilteredResults {
		return filtered, false, nil
	}

	hybridDocs, _, err := m.hybrid.Retrieve(ctx, query, topK*2, "")
	if err != nil {
		m.logger.Warn("fallback_blend_failed", "error", err)
		return filtered, false, nil
	}

	seen := make(map[string]struct{}, len(filtered))
	blended := make([]domain.Document, 0, len(filtered)+topK)
	for _, doc := range filtered {
		seen[doc.ID] = struct{}{}
		score := doc.Score + m.tuning.FilteredBoost
		if score > 1.0 {
			score = 1.0
		}
		blended = append(blended, doc.WithScore(score, doc.RetrievalMethod+domain.BoostedMethodSuffix))
	}
	additional := 0
	for _, doc := range hybridDocs {
		if additional >= topK {
			break
		}
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		blended = append(blended, doc)
		additional++
	}

	sort.SliceStable(blended, func(i, j int) bool {
		if blended[i].Score != blended[j].Score {
			return blended[i].Score > blended[j].Score
		}
		return blended[i].ID < blended[j].ID
	})
	if len(blended) > topK {
		blended = blended[:topK]
	}

	m.logger.Info("fallback_blend",
		"filtered", len(filtered),
		"hybrid_added", additional,
		"returned", len(blended),
	)
	return blended, true, nil
}

// RetrieveComparison retrieves independently per scheme so every compared
// scheme is represented regardless of global ranking. A scheme whose
// retrieval fails contributes an empty list instead of failing the call.
func (m *MetadataRetriever) RetrieveComparison(ctx context.Context, query string, schemes []string, docsPerScheme int) (map[string][]domain.Document, error) {
	if len(schemes) == 0 {
		return map[string][]domain.Document{}, nil
	}
	if docsPerScheme <= 0 {
		docsPerScheme = m.tuning.DefaultTopK / len(schemes)
		if docsPerScheme < 3 {
			docsPerScheme = 3
		}
	}

	vector, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed comparison query", err)
	}

	results := make(map[string][]domain.Document, len(schemes))
	for _, scheme := range schemes {
		filter := domain.SchemeFilter([]string{scheme})
		docs, err := m.store.Query(ctx, vector, filter, docsPerScheme)
		if err != nil {
			m.logger.Warn("comparison_retrieval_failed", "scheme", scheme, "error", err)
			results[scheme] = []domain.Document{}
			continue
		}
		tagged := make([]domain.Document, len(docs))
		for i, doc := range docs {
			tagged[i] = doc.WithScore(doc.Score, domain.MethodComparison)
		}
		if len(tagged) == 0 {
			reranked, err := m.rerankSubCorpus(ctx, query, filter, docsPerScheme)
			if err != nil {
				m.logger.Warn("comparison_rerank_failed", "scheme", scheme, "error", err)
			} else {
				tagged = reranked
			}
		}
		results[scheme] = tagged
		m.logger.Info("comparison_scheme_retrieved", "scheme", scheme, "docs", len(tagged))
	}
	return results, nil
}
