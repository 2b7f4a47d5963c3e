package usecase

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/yojanadesk/scheme-rag/internal/config"
	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

// semanticSearch embeds the query and runs a ranked vector search, tagging
// results with the given provenance method.
func semanticSearch(ctx context.Context, embedder ports.Embedder, store ports.VectorStore, query string, filter *domain.Filter, limit int, method string) ([]domain.Document, error) {
	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed query", err)
	}
	docs, err := store.Query(ctx, vector, filter, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "vector search", err)
	}
	out := make([]domain.Document, len(docs))
	for i, doc := range docs {
		out[i] = doc.WithScore(doc.Score, method)
	}
	return out, nil
}

// HybridRetriever fuses BM25 keyword search with semantic vector search
// using weighted Reciprocal Rank Fusion. The two searches run concurrently;
// a vector failure fails the request while a missing BM25 index degrades to
// semantic-only results.
type HybridRetriever struct {
	embedder ports.Embedder
	store    ports.VectorStore
	lexical  *LexicalIndex
	tuning   config.Tuning
	logger   *slog.Logger
}

func NewHybridRetriever(embedder ports.Embedder, store ports.VectorStore, lexical *LexicalIndex, tuning config.Tuning, logger *slog.Logger) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{embedder: embedder, store: store, lexical: lexical, tuning: tuning, logger: logger}
}

// Retrieve returns topK fused documents with scores normalized to 0..1 so
// the adaptive threshold can reason about them.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, topK int, intent domain.Intent) ([]domain.Document, domain.Degradation, error) {
	if topK <= 0 {
		topK = h.tuning.DefaultTopK
	}
	weights := h.tuning.WeightsFor(string(intent))

	// Both branches over-fetch so fusion has enough overlap to rank on.
	var bm25Docs, semanticDocs []domain.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		semanticDocs, err = semanticSearch(gctx, h.embedder, h.store, query, nil, topK*2, domain.MethodSemantic)
		return err
	})
	g.Go(func() error {
		bm25Docs = h.lexical.Search(query, topK*2)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, domain.Degradation{}, err
	}

	if len(bm25Docs) == 0 {
		degradation := domain.Degradation{}
		if h.lexical.Size() == 0 {
			degradation = domain.Degradation{Degraded: true, Reason: domain.DegradedBM25Unavailable}
			h.logger.Warn("bm25_index_unavailable", "fallback", "semantic_only")
		}
		if len(semanticDocs) > topK {
			semanticDocs = semanticDocs[:topK]
		}
		return semanticDocs, degradation, nil
	}

	fused := fuseRanked(bm25Docs, semanticDocs, weights, h.tuning)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	h.logger.Info("hybrid_retrieval_complete",
		"query_len", len(query),
		"intent", string(intent),
		"bm25_hits", len(bm25Docs),
		"semantic_hits", len(semanticDocs),
		"returned", len(fused),
	)
	return fused, domain.Degradation{}, nil
}

type fusionAccumulator struct {
	doc           domain.Document
	rrf           float64
	semanticScore float64
	fromBM25      bool
	fromSemantic  bool
}

// fuseRanked combines two rankings with weighted RRF, normalizes by the
// best possible RRF contribution, then blends the normalized rank score
// with the raw semantic score to keep absolute quality visible.
func fuseRanked(bm25Docs, semanticDocs []domain.Document, weights config.HybridWeights, tuning config.Tuning) []domain.Document {
	k := float64(tuning.RRFK)
	acc := make(map[string]*fusionAccumulator, len(bm25Docs)+len(semanticDocs))

	for rank, doc := range bm25Docs {
		entry := &fusionAccumulator{doc: doc, fromBM25: true}
		entry.rrf = weights.BM25 / (k + float64(rank) + 1)
		acc[doc.ID] = entry
	}
	for rank, doc := range semanticDocs {
		entry, seen := acc[doc.ID]
		if !seen {
			entry = &fusionAccumulator{doc: doc}
			acc[doc.ID] = entry
		}
		entry.rrf += weights.Semantic / (k + float64(rank) + 1)
		entry.fromSemantic = true
		entry.semanticScore = doc.Score
	}

	maxRRF := (weights.BM25 + weights.Semantic) / (k + 1)

	fused := make([]domain.Document, 0, len(acc))
	for _, entry := range acc {
		normalized := entry.rrf / maxRRF
		blended := tuning.RRFBlendRRF*normalized + tuning.RRFBlendVector*entry.semanticScore

		doc := entry.doc.WithScore(blended, "")
		doc.RetrievalSources = nil
		if entry.fromBM25 {
			doc.RetrievalSources = append(doc.RetrievalSources, domain.SourceBM25)
		}
		if entry.fromSemantic {
			doc.RetrievalSources = append(doc.RetrievalSources, domain.SourceSemantic)
		}
		fused = append(fused, doc)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})
	return fused
}
