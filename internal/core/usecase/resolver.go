package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/yojanadesk/scheme-rag/internal/config"
	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

// candidatePattern pulls capitalized phrases and all-caps abbreviations out
// of a query as fuzzy-match candidates.
var candidatePattern = regexp.MustCompile(`\b[A-Z][A-Za-z\s-]+\b|\b[A-Z]{3,}\b`)

var nonAlphaNum = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

type variantEntry struct {
	pattern   *regexp.Regexp
	canonical string
}

// entityIndex is an immutable snapshot of known scheme names and their
// recognizable surface forms. Variants are matched on word boundaries
// against the lowercased query.
type entityIndex struct {
	schemes      []string
	schemesLower []string
	variants     map[string]string
	variantOrder []variantEntry
}

func buildEntityIndex(schemes []string) *entityIndex {
	unique := make(map[string]struct{}, len(schemes))
	for _, s := range schemes {
		if s == "" || s == "Unknown" {
			continue
		}
		unique[s] = struct{}{}
	}
	sorted := make([]string, 0, len(unique))
	for s := range unique {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)

	idx := &entityIndex{
		schemes:      sorted,
		schemesLower: make([]string, len(sorted)),
		variants:     make(map[string]string),
	}
	for i, scheme := range sorted {
		idx.schemesLower[i] = strings.ToLower(scheme)
		idx.addVariant(strings.ToLower(scheme), scheme)
		idx.addVariant(strings.ToLower(nonAlphaNum.ReplaceAllString(scheme, "")), scheme)

		words := strings.Fields(scheme)
		if len(words) > 2 {
			acronym := acronymOf(words)
			if utf8.RuneCountInString(acronym) >= 3 {
				idx.addVariant(strings.ToLower(acronym), scheme)
			}
		}
	}
	return idx
}

func (idx *entityIndex) addVariant(variant, canonical string) {
	variant = strings.TrimSpace(variant)
	if variant == "" {
		return
	}
	if _, exists := idx.variants[variant]; exists {
		return
	}
	idx.variants[variant] = canonical
	idx.variantOrder = append(idx.variantOrder, variantEntry{
		pattern:   regexp.MustCompile(`\b` + regexp.QuoteMeta(variant) + `\b`),
		canonical: canonical,
	})
}

func acronymOf(words []string) string {
	var b strings.Builder
	for _, word := range words {
		first, _ := utf8.DecodeRuneInString(word)
		if unicode.IsUpper(first) {
			b.WriteRune(first)
		}
	}
	return b.String()
}

// EntityResolver detects scheme names in queries. The scheme catalogue is
// loaded from the vector store, never hardcoded, so new schemes are picked
// up on the next reindex. Resolution is staged: exact surface-form match
// short-circuits fuzzy matching, which short-circuits the LLM fallback.
type EntityResolver struct {
	store    ports.VectorStore
	llm      ports.CompletionService
	tuning   config.Tuning
	pageSize int
	logger   *slog.Logger

	snapshot atomic.Pointer[entityIndex]
}

// NewEntityResolver builds a resolver with an empty index; call Rebuild
// before serving queries. llm may be nil, which disables the fallback stage.
func NewEntityResolver(store ports.VectorStore, llm ports.CompletionService, tuning config.Tuning, pageSize int, logger *slog.Logger) *EntityResolver {
	if pageSize <= 0 {
		pageSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &EntityResolver{store: store, llm: llm, tuning: tuning, pageSize: pageSize, logger: logger}
	r.snapshot.Store(buildEntityIndex(nil))
	return r
}

// Rebuild reloads the scheme catalogue from the store. A failed scan leaves
// an empty index, which degrades resolution to LLM-only extraction.
func (r *EntityResolver) Rebuild(ctx context.Context) error {
	docs, err := scrollAll(ctx, r.store, nil, r.pageSize)
	if err != nil {
		r.snapshot.Store(buildEntityIndex(nil))
		return domain.WrapError(domain.ErrRetrieval, "entity index build", err)
	}
	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		names = append(names, doc.Payload.SchemeName)
	}
	idx := buildEntityIndex(names)
	r.snapshot.Store(idx)
	r.logger.Info("entity_index_built", "schemes", len(idx.schemes))
	return nil
}

// Schemes returns the known canonical scheme names, sorted.
func (r *EntityResolver) Schemes() []string {
	return r.snapshot.Load().schemes
}

// ExtractSchemes runs the staged detection pipeline and returns canonical
// scheme names, sorted for deterministic output.
func (r *EntityResolver) ExtractSchemes(ctx context.Context, query string) []string {
	idx := r.snapshot.Load()

	if found := idx.exactMatch(query); len(found) > 0 {
		r.logger.Debug("entity_exact_match", "schemes", found)
		return found
	}
	if found := idx.fuzzyMatch(query, r.tuning.FuzzyCutoff); len(found) > 0 {
		r.logger.Debug("entity_fuzzy_match", "schemes", found)
		return found
	}
	if found := r.llmExtract(ctx, query, idx); len(found) > 0 {
		r.logger.Debug("entity_llm_match", "schemes", found)
		return found
	}
	return nil
}

// Decompose classifies the query for routing. Any detected scheme selects
// filtered mode with a scheme filter; otherwise hybrid.
func (r *EntityResolver) Decompose(ctx context.Context, query string) domain.Decomposition {
	schemes := r.ExtractSchemes(ctx, query)

	dec := domain.Decomposition{
		Query:           query,
		DetectedSchemes: schemes,
		Mode:            domain.ModeHybrid,
		Confidence:      0.8,
	}
	if len(schemes) > 0 {
		dec.Mode = domain.ModeFiltered
		dec.Confidence = 1.0
		dec.Filter = domain.SchemeFilter(schemes)
	}
	r.logger.Info("query_decomposed",
		"mode", string(dec.Mode),
		"schemes", schemes,
		"confidence", dec.Confidence,
	)
	return dec
}

func (idx *entityIndex) exactMatch(query string) []string {
	queryLower := strings.ToLower(query)
	found := make(map[string]struct{})
	for _, entry := range idx.variantOrder {
		if entry.pattern.MatchString(queryLower) {
			found[entry.canonical] = struct{}{}
		}
	}
	return sortedKeys(found)
}

func (idx *entityIndex) fuzzyMatch(query string, cutoff int) []string {
	if len(idx.schemes) == 0 {
		return nil
	}
	found := make(map[string]struct{})
	for _, candidate := range candidatePattern.FindAllString(query, -1) {
		candidate = strings.TrimSpace(candidate)
		if len(candidate) < 3 {
			continue
		}
		candidateLower := strings.ToLower(candidate)

		// Keep the top three matches at or above the cutoff, mirroring a
		// bounded extract over the catalogue.
		type scored struct {
			scheme string
			score  int
		}
		var matches []scored
		for i, schemeLower := range idx.schemesLower {
			score := fuzzy.TokenSortRatio(candidateLower, schemeLower)
			if score >= cutoff {
				matches = append(matches, scored{scheme: idx.schemes[i], score: score})
			}
		}
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
		if len(matches) > 3 {
			matches = matches[:3]
		}
		for _, m := range matches {
			found[m.scheme] = struct{}{}
		}
	}
	return sortedKeys(found)
}

func (r *EntityResolver) llmExtract(ctx context.Context, query string, idx *entityIndex) []string {
	if r.llm == nil {
		return nil
	}

	sample := idx.schemes
	if len(sample) > r.tuning.EntitySampleMax {
		sample = sample[:r.tuning.EntitySampleMax]
	}
	schemeList := strings.Join(sample, ", ")
	if extra := len(idx.schemes) - len(sample); extra > 0 {
		schemeList += fmt.Sprintf(" and %d more schemes", extra)
	}

	raw, err := r.llm.Complete(ctx, ports.PromptEntityExtract, map[string]string{
		"query":       query,
		"scheme_list": schemeList,
	})
	if err != nil {
		r.logger.Warn("entity_llm_extract_failed", "error", err)
		return nil
	}

	result := strings.TrimSpace(raw)
	if result == "" || strings.EqualFold(result, "NONE") {
		return nil
	}

	found := make(map[string]struct{})
	for _, part := range strings.Split(result, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if canonical, ok := idx.variants[strings.ToLower(name)]; ok {
			found[canonical] = struct{}{}
			continue
		}
		if canonical := idx.bestRatioMatch(strings.ToLower(name), r.tuning.FuzzyCutoff); canonical != "" {
			found[canonical] = struct{}{}
		}
	}
	return sortedKeys(found)
}

// bestRatioMatch validates an LLM-proposed name against the catalogue with a
// plain ratio score, stricter than the token-sort matching used on queries.
func (idx *entityIndex) bestRatioMatch(nameLower string, cutoff int) string {
	best := ""
	bestScore := 0
	for i, schemeLower := range idx.schemesLower {
		score := fuzzy.Ratio(nameLower, schemeLower)
		if score >= cutoff && score > bestScore {
			best = idx.schemes[i]
			bestScore = score
		}
	}
	return best
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
