package usecase

import (
	"context"
	"testing"

	"github.com/yojanadesk/scheme-rag/internal/config"
	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

// fakeCompletion replays scripted responses per prompt role. The last reply
// for a role is sticky so "always answers X" judges are easy to script.
type fakeCompletion struct {
	replies map[ports.PromptRole][]string
	errs    map[ports.PromptRole]error
	calls   []ports.PromptRole
	vars    []map[string]string
}

func (f *fakeCompletion) Complete(ctx context.Context, role ports.PromptRole, vars map[string]string) (string, error) {
	f.calls = append(f.calls, role)
	f.vars = append(f.vars, vars)
	if err := f.errs[role]; err != nil {
		return "", err
	}
	queue := f.replies[role]
	if len(queue) == 0 {
		return "", nil
	}
	reply := queue[0]
	if len(queue) > 1 {
		f.replies[role] = queue[1:]
	}
	return reply, nil
}

func (f *fakeCompletion) countCalls(role ports.PromptRole) int {
	n := 0
	for _, c := range f.calls {
		if c == role {
			n++
		}
	}
	return n
}

func newResolverWithSchemes(t *testing.T, llm ports.CompletionService, schemes ...string) *EntityResolver {
	t.Helper()
	docs := make([]domain.Document, len(schemes))
	for i, s := range schemes {
		docs[i] = schemeDoc(string(rune('a'+i)), s, "benefits", "scheme details")
	}
	r := NewEntityResolver(&fakeVectorStore{docs: docs}, llm, config.DefaultTuning(), 100, nil)
	if err := r.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return r
}

func TestResolverExactMatchSelectsFilteredMode(t *testing.T) {
	r := newResolverWithSchemes(t, nil, "PMEGP", "Pradhan Mantri Mudra Yojana")

	dec := r.Decompose(context.Background(), "Can women apply for PMEGP?")

	if dec.Mode != domain.ModeFiltered {
		t.Fatalf("mode = %q, want filtered", dec.Mode)
	}
	if len(dec.DetectedSchemes) != 1 || dec.DetectedSchemes[0] != "PMEGP" {
		t.Fatalf("schemes = %v, want [PMEGP]", dec.DetectedSchemes)
	}
	if dec.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want 1.0", dec.Confidence)
	}
	if dec.Filter == nil || !dec.Filter.Matches(domain.Payload{SchemeName: "PMEGP"}) {
		t.Fatalf("filter = %+v, want scheme filter matching PMEGP", dec.Filter)
	}
}

func TestResolverAcronymVariantResolvesToCanonicalName(t *testing.T) {
	full := "Prime Ministers Employment Generation Programme"
	r := newResolverWithSchemes(t, nil, full)

	got := r.ExtractSchemes(context.Background(), "what is the pmegp subsidy amount")

	if len(got) != 1 || got[0] != full {
		t.Fatalf("schemes = %v, want canonical name for acronym", got)
	}
}

func TestAcronymKeepsMultibyteInitials(t *testing.T) {
	got := acronymOf([]string{"École", "Nationale", "Entrepreneurship", "Programme"})
	if got != "ÉNEP" {
		t.Fatalf("acronym = %q, want ÉNEP", got)
	}
}

func TestEntityIndexCountsAcronymLengthInRunes(t *testing.T) {
	idx := buildEntityIndex([]string{"École Öffentliche x scheme"})

	if _, ok := idx.variants["éö"]; ok {
		t.Fatal("two-letter acronym indexed as a variant")
	}
}

func TestResolverExactMatchSkipsLaterStages(t *testing.T) {
	llm := &fakeCompletion{replies: map[ports.PromptRole][]string{
		ports.PromptEntityExtract: {"Pradhan Mantri Mudra Yojana"},
	}}
	r := newResolverWithSchemes(t, llm, "PMEGP", "Pradhan Mantri Mudra Yojana")

	got := r.ExtractSchemes(context.Background(), "PMEGP eligibility for women")

	if len(got) != 1 || got[0] != "PMEGP" {
		t.Fatalf("schemes = %v, want [PMEGP]", got)
	}
	if len(llm.calls) != 0 {
		t.Fatalf("llm called %d times, want 0 on exact match", len(llm.calls))
	}
}

func TestResolverFuzzyMatchHandlesTypos(t *testing.T) {
	r := newResolverWithSchemes(t, nil, "Atal Pension Yojana", "PMEGP")

	got := r.ExtractSchemes(context.Background(), "Atal Pention Yojana")

	if len(got) != 1 || got[0] != "Atal Pension Yojana" {
		t.Fatalf("schemes = %v, want fuzzy-corrected canonical name", got)
	}
}

func TestResolverLLMFallbackValidatesAgainstCatalogue(t *testing.T) {
	llm := &fakeCompletion{replies: map[ports.PromptRole][]string{
		ports.PromptEntityExtract: {"PMEGP, Moon Subsidy Programme"},
	}}
	r := newResolverWithSchemes(t, llm, "PMEGP", "Atal Pension Yojana")

	got := r.ExtractSchemes(context.Background(), "which scheme gives margin money to new units")

	if len(got) != 1 || got[0] != "PMEGP" {
		t.Fatalf("schemes = %v, want only the validated name", got)
	}
	if llm.countCalls(ports.PromptEntityExtract) != 1 {
		t.Fatalf("entity extraction called %d times, want 1", llm.countCalls(ports.PromptEntityExtract))
	}
}

func TestResolverNoDetectionSelectsHybridMode(t *testing.T) {
	llm := &fakeCompletion{replies: map[ports.PromptRole][]string{
		ports.PromptEntityExtract: {"NONE"},
	}}
	r := newResolverWithSchemes(t, llm, "PMEGP")

	dec := r.Decompose(context.Background(), "what help exists for small farmers")

	if dec.Mode != domain.ModeHybrid {
		t.Fatalf("mode = %q, want hybrid", dec.Mode)
	}
	if len(dec.DetectedSchemes) != 0 {
		t.Fatalf("schemes = %v, want none", dec.DetectedSchemes)
	}
	if dec.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want 0.8", dec.Confidence)
	}
	if dec.Filter != nil {
		t.Fatalf("filter = %+v, want nil in hybrid mode", dec.Filter)
	}
}

func TestResolverFailedIndexBuildDegradesToLLMOnly(t *testing.T) {
	llm := &fakeCompletion{replies: map[ports.PromptRole][]string{
		ports.PromptEntityExtract: {"NONE"},
	}}
	store := &fakeVectorStore{scrollErr: context.DeadlineExceeded}
	r := NewEntityResolver(store, llm, config.DefaultTuning(), 100, nil)

	if err := r.Rebuild(context.Background()); err == nil {
		t.Fatal("Rebuild succeeded against failing store")
	}
	if n := len(r.Schemes()); n != 0 {
		t.Fatalf("schemes = %d, want empty index", n)
	}

	got := r.ExtractSchemes(context.Background(), "PMEGP details")
	if len(got) != 0 {
		t.Fatalf("schemes = %v, want none without a catalogue", got)
	}
	if llm.countCalls(ports.PromptEntityExtract) != 1 {
		t.Fatalf("llm not consulted after degraded build")
	}
}
