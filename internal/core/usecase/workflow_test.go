package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/yojanadesk/scheme-rag/internal/config"
	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

type fakeRouter struct {
	docs        []domain.Document
	degradation domain.Degradation
	err         error
	queries     []string
}

func (f *fakeRouter) Retrieve(ctx context.Context, query string, topK int, intent domain.Intent) ([]domain.Document, domain.Degradation, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, domain.Degradation{}, f.err
	}
	return f.docs, f.degradation, nil
}

func (f *fakeRouter) RetrieveComparison(ctx context.Context, query string, schemes []string, docsPerScheme int) (map[string][]domain.Document, error) {
	return nil, nil
}

type fakeQueryLog struct {
	records []domain.QueryRecord
	err     error
}

func (f *fakeQueryLog) Insert(ctx context.Context, record domain.QueryRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func answeringDocs() []domain.Document {
	dec := &domain.Decomposition{Mode: domain.ModeFiltered, DetectedSchemes: []string{"PMEGP"}}
	doc := schemeDoc("1", "PMEGP", "eligibility", "applicant must be above eighteen").WithScore(0.9, domain.MethodFilteredVector)
	doc.Decomposition = dec
	return []domain.Document{doc}
}

func TestWorkflowRejectsBlankQuery(t *testing.T) {
	llm := &fakeCompletion{}
	w := NewRefinementWorkflow(&fakeRouter{}, llm, nil, config.DefaultTuning(), nil)

	_, err := w.Run(context.Background(), "  ")
	if !domain.IsKind(err, domain.ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery kind", err)
	}
	if len(llm.calls) != 0 {
		t.Fatalf("llm called %d times before validation", len(llm.calls))
	}
}

func TestWorkflowHappyPath(t *testing.T) {
	llm := &fakeCompletion{replies: map[ports.PromptRole][]string{
		ports.PromptIntent:        {"ELIGIBILITY"},
		ports.PromptRelevance:     {"YES"},
		ports.PromptAnswer:        {"PMEGP is open to adults above 18."},
		ports.PromptAnswerQuality: {"NO"},
	}}
	router := &fakeRouter{docs: answeringDocs()}
	auditLog := &fakeQueryLog{}
	w := NewRefinementWorkflow(router, llm, auditLog, config.DefaultTuning(), nil)

	result, err := w.Run(context.Background(), "Can adults apply for PMEGP?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Intent != domain.IntentEligibility {
		t.Fatalf("intent = %q, want ELIGIBILITY", result.Intent)
	}
	if result.Answer != "PMEGP is open to adults above 18." {
		t.Fatalf("answer = %q", result.Answer)
	}
	if result.ReflectionCount != 0 || result.CorrectionCount != 0 {
		t.Fatalf("counts = %d/%d, want 0/0", result.ReflectionCount, result.CorrectionCount)
	}
	if result.NeedsReflection || result.NeedsCorrection {
		t.Fatalf("flags = %v/%v, want clean", result.NeedsReflection, result.NeedsCorrection)
	}
	if len(router.queries) != 1 {
		t.Fatalf("retrievals = %d, want 1", len(router.queries))
	}

	if len(auditLog.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(auditLog.records))
	}
	record := auditLog.records[0]
	if record.Mode != domain.ModeFiltered || record.DocCount != 1 || record.ID == "" {
		t.Fatalf("record = %+v", record)
	}
}

func TestWorkflowReflectionLoopIsCapped(t *testing.T) {
	llm := &fakeCompletion{replies: map[ports.PromptRole][]string{
		ports.PromptIntent:        {"GENERAL"},
		ports.PromptRelevance:     {"NO"}, // sticky: every judgment says not relevant
		ports.PromptReflection:    {"rewritten one", "rewritten two"},
		ports.PromptAnswer:        {"best-effort answer"},
		ports.PromptAnswerQuality: {"NO"},
	}}
	router := &fakeRouter{docs: answeringDocs()}
	w := NewRefinementWorkflow(router, llm, nil, config.DefaultTuning(), nil)

	result, err := w.Run(context.Background(), "original question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ReflectionCount != 2 {
		t.Fatalf("reflections = %d, want exactly the cap of 2", result.ReflectionCount)
	}
	if llm.countCalls(ports.PromptRelevance) != 2 {
		t.Fatalf("judge calls = %d, want 2 (cap forces the verdict afterwards)", llm.countCalls(ports.PromptRelevance))
	}
	if result.Answer != "best-effort answer" {
		t.Fatalf("answer = %q, want forced proceed to answer", result.Answer)
	}
	wantQueries := []string{"original question", "rewritten one", "rewritten two"}
	if len(router.queries) != len(wantQueries) {
		t.Fatalf("retrievals = %v, want %v", router.queries, wantQueries)
	}
	for i, q := range wantQueries {
		if router.queries[i] != q {
			t.Fatalf("retrieval %d used query %q, want %q", i, router.queries[i], q)
		}
	}
}

func TestWorkflowCorrectionLoopIsCapped(t *testing.T) {
	llm := &fakeCompletion{replies: map[ports.PromptRole][]string{
		ports.PromptIntent:        {"GENERAL"},
		ports.PromptRelevance:     {"YES"},
		ports.PromptAnswer:        {"first answer", "second answer", "third answer"},
		ports.PromptAnswerQuality: {"YES"}, // sticky: always inadequate
		ports.PromptCorrective:    {"corrective one", "corrective two"},
	}}
	router := &fakeRouter{docs: answeringDocs()}
	w := NewRefinementWorkflow(router, llm, nil, config.DefaultTuning(), nil)

	result, err := w.Run(context.Background(), "question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.CorrectionCount != 2 {
		t.Fatalf("corrections = %d, want exactly the cap of 2", result.CorrectionCount)
	}
	if result.NeedsCorrection {
		t.Fatal("needs_correction still set after cap accepted the answer")
	}
	if result.Answer != "third answer" {
		t.Fatalf("answer = %q, want the last regenerated answer", result.Answer)
	}
	if llm.countCalls(ports.PromptAnswer) != 3 {
		t.Fatalf("answer generations = %d, want 3", llm.countCalls(ports.PromptAnswer))
	}
}

func TestWorkflowJudgeFailureAssumesRelevant(t *testing.T) {
	llm := &fakeCompletion{
		replies: map[ports.PromptRole][]string{
			ports.PromptIntent:        {"GENERAL"},
			ports.PromptAnswer:        {"answer"},
			ports.PromptAnswerQuality: {"NO"},
		},
		errs: map[ports.PromptRole]error{
			ports.PromptRelevance: errors.New("judge timeout"),
		},
	}
	router := &fakeRouter{docs: answeringDocs()}
	w := NewRefinementWorkflow(router, llm, nil, config.DefaultTuning(), nil)

	result, err := w.Run(context.Background(), "question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ReflectionCount != 0 {
		t.Fatalf("reflections = %d, want 0 on optimistic default", result.ReflectionCount)
	}
	if result.Answer != "answer" {
		t.Fatalf("answer = %q", result.Answer)
	}
}

func TestWorkflowUnknownIntentFallsBackToGeneral(t *testing.T) {
	llm := &fakeCompletion{replies: map[ports.PromptRole][]string{
		ports.PromptIntent:        {"BANANA"},
		ports.PromptRelevance:     {"YES"},
		ports.PromptAnswer:        {"answer"},
		ports.PromptAnswerQuality: {"NO"},
	}}
	w := NewRefinementWorkflow(&fakeRouter{docs: answeringDocs()}, llm, nil, config.DefaultTuning(), nil)

	result, err := w.Run(context.Background(), "question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Intent != domain.IntentGeneral {
		t.Fatalf("intent = %q, want GENERAL fallback", result.Intent)
	}
}

func TestWorkflowRetrievalFailureIsFatal(t *testing.T) {
	llm := &fakeCompletion{replies: map[ports.PromptRole][]string{
		ports.PromptIntent: {"GENERAL"},
	}}
	router := &fakeRouter{err: domain.WrapError(domain.ErrRetrieval, "vector search", errors.New("unreachable"))}
	w := NewRefinementWorkflow(router, llm, nil, config.DefaultTuning(), nil)

	_, err := w.Run(context.Background(), "question")
	if !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("err = %v, want ErrRetrieval kind", err)
	}
}

func TestWorkflowAuditFailureDoesNotFailRequest(t *testing.T) {
	llm := &fakeCompletion{replies: map[ports.PromptRole][]string{
		ports.PromptIntent:        {"GENERAL"},
		ports.PromptRelevance:     {"YES"},
		ports.PromptAnswer:        {"answer"},
		ports.PromptAnswerQuality: {"NO"},
	}}
	auditLog := &fakeQueryLog{err: errors.New("postgres down")}
	w := NewRefinementWorkflow(&fakeRouter{docs: answeringDocs()}, llm, auditLog, config.DefaultTuning(), nil)

	result, err := w.Run(context.Background(), "question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Answer != "answer" {
		t.Fatalf("answer = %q", result.Answer)
	}
}
