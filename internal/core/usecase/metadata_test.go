package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/yojanadesk/scheme-rag/internal/config"
	"github.com/yojanadesk/scheme-rag/internal/core/domain"
)

func newMetadataRetriever(store *fakeVectorStore, tuning config.Tuning) *MetadataRetriever {
	embedder := &fakeEmbedder{}
	lexical := NewLexicalIndex(store, 100, nil)
	hybrid := NewHybridRetriever(embedder, store, lexical, tuning, nil)
	return NewMetadataRetriever(embedder, store, hybrid, tuning, 100, nil)
}

func TestMetadataRetrieverStageOneSufficient(t *testing.T) {
	store := &fakeVectorStore{
		queryDocs: []domain.Document{
			schemeDoc("1", "PMEGP", "eligibility", "age above 18").WithScore(0.9, ""),
			schemeDoc("2", "PMEGP", "benefits", "margin money subsidy").WithScore(0.8, ""),
		},
	}
	m := newMetadataRetriever(store, config.DefaultTuning())

	docs, err := m.RetrieveWithFilter(context.Background(), "eligibility criteria", []string{"PMEGP"}, 5, "", 1)
	if err != nil {
		t.Fatalf("RetrieveWithFilter: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	for _, doc := range docs {
		if doc.RetrievalMethod != domain.MethodFilteredVector {
			t.Fatalf("method = %q, want %q", doc.RetrievalMethod, domain.MethodFilteredVector)
		}
	}
	if store.scrollCalls != 0 {
		t.Fatalf("scrollCalls = %d, want no sub-corpus scan", store.scrollCalls)
	}
}

func TestMetadataRetrieverEmptyStageOneFallsBackToRerank(t *testing.T) {
	// Vector search finds nothing, but the entity sub-corpus exists.
	store := &fakeVectorStore{
		queryDocs: []domain.Document{},
		docs: []domain.Document{
			schemeDoc("1", "PMEGP", "benefits", "margin money subsidy for new units"),
			schemeDoc("2", "PMEGP", "eligibility", "applicant must be above eighteen"),
			schemeDoc("3", "MUDRA", "benefits", "collateral free loans"),
		},
	}
	m := newMetadataRetriever(store, config.DefaultTuning())

	docs, err := m.RetrieveWithFilter(context.Background(), "margin money subsidy", []string{"PMEGP"}, 5, "", 1)
	if err != nil {
		t.Fatalf("RetrieveWithFilter: %v", err)
	}
	if len(docs) == 0 {
		t.Fatal("no docs from sub-corpus re-rank")
	}
	for _, doc := range docs {
		if doc.RetrievalMethod != domain.MethodBM25Reranked {
			t.Fatalf("method = %q, want %q", doc.RetrievalMethod, domain.MethodBM25Reranked)
		}
		if doc.Payload.SchemeName != "PMEGP" {
			t.Fatalf("leaked scheme %q into filtered results", doc.Payload.SchemeName)
		}
	}
	if docs[0].ID != "1" {
		t.Fatalf("top = %s, want keyword-best doc 1", docs[0].ID)
	}
}

func TestMetadataRetrieverFallbackBlendBoostsFilteredDocs(t *testing.T) {
	tuning := config.DefaultTuning()
	store := &fakeVectorStore{
		// One filtered hit (below MinFilteredResults of 3) plus a corpus
		// the hybrid branch can serve from.
		queryDocs: []domain.Document{
			schemeDoc("1", "PMEGP", "benefits", "margin money subsidy").WithScore(0.95, ""),
			schemeDoc("2", "MUDRA", "benefits", "collateral free loans").WithScore(0.90, ""),
			schemeDoc("3", "PM-KISAN", "benefits", "income support").WithScore(0.85, ""),
		},
		docs: []domain.Document{
			schemeDoc("1", "PMEGP", "benefits", "margin money subsidy"),
			schemeDoc("2", "MUDRA", "benefits", "collateral free loans"),
			schemeDoc("3", "PM-KISAN", "benefits", "income support"),
		},
	}
	embedder := &fakeEmbedder{}
	lexical := NewLexicalIndex(store, 100, nil)
	if err := lexical.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	hybrid := NewHybridRetriever(embedder, store, lexical, tuning, nil)
	m := NewMetadataRetriever(embedder, store, hybrid, tuning, 100, nil)

	docs, usedFallback, err := m.RetrieveWithFallback(context.Background(), "margin money subsidy", []string{"PMEGP"}, 5, "")
	if err != nil {
		t.Fatalf("RetrieveWithFallback: %v", err)
	}
	if !usedFallback {
		t.Fatal("fallback not used despite thin filtered results")
	}

	var boosted *domain.Document
	for i := range docs {
		if strings.HasSuffix(docs[i].RetrievalMethod, domain.BoostedMethodSuffix) {
			boosted = &docs[i]
		}
	}
	if boosted == nil {
		t.Fatalf("no boosted doc in %+v", docs)
	}
	if boosted.Payload.SchemeName != "PMEGP" {
		t.Fatalf("boosted doc scheme = %q, want PMEGP", boosted.Payload.SchemeName)
	}
	// 0.95 + 0.2 caps at 1.0 and must outrank every generic hybrid doc.
	if boosted.Score != 1.0 {
		t.Fatalf("boosted score = %v, want capped 1.0", boosted.Score)
	}
	if docs[0].ID != boosted.ID {
		t.Fatalf("top doc = %s, want the boosted entity doc", docs[0].ID)
	}
}

func TestMetadataRetrieverComparisonKeepsEverySchemeRepresented(t *testing.T) {
	store := &fakeVectorStore{
		queryDocs: []domain.Document{
			schemeDoc("1", "PMEGP", "benefits", "margin money subsidy").WithScore(0.9, ""),
			schemeDoc("2", "PMEGP", "eligibility", "above eighteen").WithScore(0.85, ""),
			schemeDoc("3", "MUDRA", "benefits", "collateral free loans").WithScore(0.4, ""),
		},
	}
	m := newMetadataRetriever(store, config.DefaultTuning())

	results, err := m.RetrieveComparison(context.Background(), "compare benefits", []string{"PMEGP", "MUDRA"}, 2)
	if err != nil {
		t.Fatalf("RetrieveComparison: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("schemes in result = %d, want 2", len(results))
	}
	if len(results["MUDRA"]) != 1 {
		t.Fatalf("MUDRA docs = %d, want 1 despite low score", len(results["MUDRA"]))
	}
	for scheme, docs := range results {
		for _, doc := range docs {
			if doc.Payload.SchemeName != scheme {
				t.Fatalf("scheme %s got doc from %s", scheme, doc.Payload.SchemeName)
			}
			if doc.RetrievalMethod != domain.MethodComparison {
				t.Fatalf("method = %q, want %q", doc.RetrievalMethod, domain.MethodComparison)
			}
		}
	}
}

func TestMetadataRetrieverThemeFilterNarrowsStageOne(t *testing.T) {
	store := &fakeVectorStore{
		queryDocs: []domain.Document{
			schemeDoc("1", "PMEGP", "eligibility", "above eighteen").WithScore(0.9, ""),
			schemeDoc("2", "PMEGP", "benefits", "margin money").WithScore(0.8, ""),
		},
	}
	m := newMetadataRetriever(store, config.DefaultTuning())

	docs, err := m.RetrieveWithFilter(context.Background(), "who can apply", []string{"PMEGP"}, 5, "eligibility", 1)
	if err != nil {
		t.Fatalf("RetrieveWithFilter: %v", err)
	}
	if len(docs) != 1 || docs[0].Payload.Theme != "eligibility" {
		t.Fatalf("docs = %+v, want only the eligibility doc", docs)
	}
}
