package usecase

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// tokenize lowercases and whitespace-splits text. Shared by the lexical
// index and the metadata retriever's corpus re-rank so both score over the
// same token space.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func searchableText(p domain.Payload) string {
	return p.SchemeName + " " + p.Theme + " " + p.Text
}

type bm25Entry struct {
	doc      domain.Document
	termFreq map[string]int
	length   int
}

// bm25Corpus holds tokenized documents plus the statistics BM25 needs.
// Scores use the +1 IDF variant so every score is non-negative.
type bm25Corpus struct {
	entries []bm25Entry
	docFreq map[string]int
	avgLen  float64
}

func newBM25Corpus(docs []domain.Document) *bm25Corpus {
	corpus := &bm25Corpus{
		entries: make([]bm25Entry, 0, len(docs)),
		docFreq: make(map[string]int),
	}
	totalLen := 0
	for _, doc := range docs {
		tokens := tokenize(searchableText(doc.Payload))
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		for token := range tf {
			corpus.docFreq[token]++
		}
		totalLen += len(tokens)
		corpus.entries = append(corpus.entries, bm25Entry{doc: doc, termFreq: tf, length: len(tokens)})
	}
	if len(corpus.entries) > 0 {
		corpus.avgLen = float64(totalLen) / float64(len(corpus.entries))
	}
	return corpus
}

func (c *bm25Corpus) idf(token string) float64 {
	df := c.docFreq[token]
	if df == 0 {
		return 0
	}
	n := float64(len(c.entries))
	return math.Log(1.0 + (n-float64(df)+0.5)/(float64(df)+0.5))
}

// search scores every document against the query and returns the topK with
// score > 0, descending, as fresh Document values tagged with method.
func (c *bm25Corpus) search(query string, topK int, method string) []domain.Document {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || len(c.entries) == 0 {
		return nil
	}

	scored := make([]domain.Document, 0, len(c.entries))
	for _, entry := range c.entries {
		score := 0.0
		for _, token := range queryTokens {
			tf := entry.termFreq[token]
			if tf == 0 {
				continue
			}
			norm := bm25K1 * (1 - bm25B + bm25B*float64(entry.length)/c.avgLen)
			score += c.idf(token) * float64(tf) * (bm25K1 + 1) / (float64(tf) + norm)
		}
		if score > 0 {
			scored = append(scored, entry.doc.WithScore(score, method))
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// LexicalIndex is the in-memory BM25 index over the full corpus. Built once
// at startup (or on explicit reindex) by scanning the vector store; read-only
// at query time. A failed build leaves the index empty, which degrades
// hybrid retrieval to semantic-only rather than failing requests.
type LexicalIndex struct {
	store    ports.VectorStore
	pageSize int
	logger   *slog.Logger

	snapshot atomic.Pointer[bm25Corpus]
}

func NewLexicalIndex(store ports.VectorStore, pageSize int, logger *slog.Logger) *LexicalIndex {
	if pageSize <= 0 {
		pageSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	idx := &LexicalIndex{store: store, pageSize: pageSize, logger: logger}
	idx.snapshot.Store(newBM25Corpus(nil))
	return idx
}

// Rebuild scans the whole corpus and swaps in a fresh snapshot. On scan
// failure the previous snapshot is replaced with an empty one so searches
// return nothing instead of stale results.
func (idx *LexicalIndex) Rebuild(ctx context.Context) error {
	docs, err := scrollAll(ctx, idx.store, nil, idx.pageSize)
	if err != nil {
		idx.snapshot.Store(newBM25Corpus(nil))
		return domain.WrapError(domain.ErrRetrieval, "lexical index build", err)
	}
	idx.snapshot.Store(newBM25Corpus(docs))
	idx.logger.Info("lexical_index_built", "docs", len(docs))
	return nil
}

// Search returns the topK BM25-ranked documents with positive scores.
func (idx *LexicalIndex) Search(query string, topK int) []domain.Document {
	return idx.snapshot.Load().search(query, topK, domain.MethodBM25)
}

// Size reports the number of indexed documents.
func (idx *LexicalIndex) Size() int {
	return len(idx.snapshot.Load().entries)
}

// scrollAll paginates through the store until the offset comes back empty.
func scrollAll(ctx context.Context, store ports.VectorStore, filter *domain.Filter, pageSize int) ([]domain.Document, error) {
	var all []domain.Document
	offset := ""
	for {
		page, next, err := store.Scroll(ctx, filter, offset, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" || len(page) == 0 {
			return all, nil
		}
		offset = next
	}
}
