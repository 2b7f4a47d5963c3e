package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yojanadesk/scheme-rag/internal/config"
	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

// RefinementWorkflow drives the Classify, Retrieve, Judge, Reflect, Answer,
// Correct pipeline. Both refinement loops are hard-capped; once a cap is
// reached the current state is accepted rather than looping again, which is
// the workflow's liveness guarantee. Judge failures take the optimistic
// branch for the same reason.
type RefinementWorkflow struct {
	router   ports.SchemeRetriever
	llm      ports.CompletionService
	queryLog ports.QueryLogStore
	tuning   config.Tuning
	logger   *slog.Logger
}

var _ ports.AnswerWorkflow = (*RefinementWorkflow)(nil)

// NewRefinementWorkflow wires the pipeline. queryLog may be nil, which
// disables audit logging.
func NewRefinementWorkflow(router ports.SchemeRetriever, llm ports.CompletionService, queryLog ports.QueryLogStore, tuning config.Tuning, logger *slog.Logger) *RefinementWorkflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefinementWorkflow{router: router, llm: llm, queryLog: queryLog, tuning: tuning, logger: logger}
}

func (w *RefinementWorkflow) Run(ctx context.Context, query string) (*domain.WorkflowResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrEmptyQuery, "run workflow", errBlankQuery)
	}

	state := &domain.WorkflowState{Query: query}
	state.Intent = w.classifyIntent(ctx, query)

	if err := w.retrieve(ctx, state); err != nil {
		return nil, err
	}

	// Judge/Reflect loop. The cap check comes first so an exhausted budget
	// forces the relevant verdict without consulting the judge again.
	for {
		if state.ReflectionCount >= w.tuning.MaxReflectionIterations {
			w.logger.Info("reflection_cap_reached", "iterations", state.ReflectionCount)
			state.NeedsReflection = false
			break
		}
		state.NeedsReflection = w.judgeRelevance(ctx, state.Query, state.RetrievedDocs)
		if !state.NeedsReflection {
			break
		}
		w.reflect(ctx, state)
		if err := w.retrieve(ctx, state); err != nil {
			return nil, err
		}
	}

	if err := w.answer(ctx, state); err != nil {
		return nil, err
	}

	// Answer-quality/Correct loop.
	for {
		state.NeedsCorrection = w.judgeAnswerQuality(ctx, state.Query, state.Answer)
		if !state.NeedsCorrection || state.CorrectionCount >= w.tuning.MaxCorrectionIterations {
			if state.NeedsCorrection {
				w.logger.Info("correction_cap_reached", "iterations", state.CorrectionCount)
				state.NeedsCorrection = false
			}
			break
		}
		w.correct(ctx, state)
		if err := w.retrieve(ctx, state); err != nil {
			return nil, err
		}
		if err := w.answer(ctx, state); err != nil {
			return nil, err
		}
	}

	w.writeAuditRecord(ctx, query, state)

	return &domain.WorkflowResult{
		Answer:          state.Answer,
		Intent:          state.Intent,
		RetrievedDocs:   state.RetrievedDocs,
		NeedsReflection: state.NeedsReflection,
		NeedsCorrection: state.NeedsCorrection,
		ReflectionCount: state.ReflectionCount,
		CorrectionCount: state.CorrectionCount,
	}, nil
}

// classifyIntent asks the classifier for a label and recovers locally from
// both transport failures and out-of-set labels.
func (w *RefinementWorkflow) classifyIntent(ctx context.Context, query string) domain.Intent {
	raw, err := w.llm.Complete(ctx, ports.PromptIntent, map[string]string{"query": query})
	if err != nil {
		w.logger.Warn("intent_classification_failed", "error", err, "fallback", string(domain.IntentGeneral))
		return domain.IntentGeneral
	}
	intent, err := domain.ParseIntent(raw)
	if err != nil {
		w.logger.Warn("unknown_intent_label", "label", raw, "fallback", string(domain.IntentGeneral))
	}
	return intent
}

func (w *RefinementWorkflow) retrieve(ctx context.Context, state *domain.WorkflowState) error {
	docs, degradation, err := w.router.Retrieve(ctx, state.Query, 0, state.Intent)
	if err != nil {
		return err
	}
	state.RetrievedDocs = docs
	if degradation.Degraded {
		state.Degradation = degradation
	}
	w.logger.Info("workflow_retrieved", "docs", len(docs), "intent", string(state.Intent))
	return nil
}

// judgeRelevance returns true when the docs need another retrieval pass.
// A failed judge call assumes relevance.
func (w *RefinementWorkflow) judgeRelevance(ctx context.Context, query string, docs []domain.Document) bool {
	raw, err := w.llm.Complete(ctx, ports.PromptRelevance, map[string]string{
		"query":   query,
		"schemes": formatForJudge(docs),
	})
	if err != nil {
		w.logger.Warn("relevance_judgment_failed", "error", err, "assume", "relevant")
		return false
	}
	return strings.ToUpper(strings.TrimSpace(raw)) == "NO"
}

// reflect rewrites the query for another retrieval pass. The original query
// is kept when the rewrite call fails.
func (w *RefinementWorkflow) reflect(ctx context.Context, state *domain.WorkflowState) {
	state.ReflectionCount++
	refined, err := w.llm.Complete(ctx, ports.PromptReflection, map[string]string{"query": state.Query})
	if err != nil || strings.TrimSpace(refined) == "" {
		w.logger.Warn("query_refinement_failed", "error", err)
		return
	}
	w.logger.Info("query_refined", "iteration", state.ReflectionCount)
	state.Query = strings.TrimSpace(refined)
}

func (w *RefinementWorkflow) answer(ctx context.Context, state *domain.WorkflowState) error {
	raw, err := w.llm.Complete(ctx, ports.PromptAnswer, map[string]string{
		"query":   state.Query,
		"schemes": formatForAnswer(state.RetrievedDocs),
	})
	if err != nil {
		return domain.WrapError(domain.ErrCompletion, "generate answer", err)
	}
	state.Answer = raw
	return nil
}

// judgeAnswerQuality returns true when the answer is inadequate. A failed
// check assumes the answer is good.
func (w *RefinementWorkflow) judgeAnswerQuality(ctx context.Context, query, answer string) bool {
	raw, err := w.llm.Complete(ctx, ports.PromptAnswerQuality, map[string]string{
		"query":  query,
		"answer": answer,
	})
	if err != nil {
		w.logger.Warn("answer_quality_check_failed", "error", err, "assume", "adequate")
		return false
	}
	return strings.ToUpper(strings.TrimSpace(raw)) == "YES"
}

func (w *RefinementWorkflow) correct(ctx context.Context, state *domain.WorkflowState) {
	state.CorrectionCount++
	corrected, err := w.llm.Complete(ctx, ports.PromptCorrective, map[string]string{"query": state.Query})
	if err != nil || strings.TrimSpace(corrected) == "" {
		w.logger.Warn("corrective_query_failed", "error", err)
		return
	}
	w.logger.Info("corrective_query_generated", "iteration", state.CorrectionCount)
	state.Query = strings.TrimSpace(corrected)
}

// writeAuditRecord persists the run outcome. Best-effort: a failed insert
// never fails the request.
func (w *RefinementWorkflow) writeAuditRecord(ctx context.Context, originalQuery string, state *domain.WorkflowState) {
	if w.queryLog == nil {
		return
	}
	record := domain.QueryRecord{
		ID:              uuid.NewString(),
		Query:           originalQuery,
		Intent:          state.Intent,
		Mode:            domain.ModeHybrid,
		DocCount:        len(state.RetrievedDocs),
		ReflectionCount: state.ReflectionCount,
		CorrectionCount: state.CorrectionCount,
		DegradedReason:  state.Degradation.Reason,
		CreatedAt:       time.Now().UTC(),
	}
	if len(state.RetrievedDocs) > 0 && state.RetrievedDocs[0].Decomposition != nil {
		dec := state.RetrievedDocs[0].Decomposition
		record.Mode = dec.Mode
		record.DetectedSchemes = dec.DetectedSchemes
	}
	if err := w.queryLog.Insert(ctx, record); err != nil {
		w.logger.Warn("query_audit_write_failed", "error", err)
	}
}

// formatForJudge renders a compact doc summary for the relevance judge.
func formatForJudge(docs []domain.Document) string {
	if len(docs) == 0 {
		return "No documents retrieved."
	}
	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		preview := doc.Payload.Text
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		fmt.Fprintf(&b, "%d. Scheme: %s\n   Theme: %s\n   Score: %.3f\n   Preview: %s",
			i+1, orUnknown(doc.Payload.SchemeName), orUnknown(doc.Payload.Theme), doc.Score, preview)
	}
	return b.String()
}

// formatForAnswer renders full document context for answer generation.
func formatForAnswer(docs []domain.Document) string {
	if len(docs) == 0 {
		return "No relevant documents found."
	}
	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Document %d (Relevance: %.3f)\n", i+1, doc.Score)
		fmt.Fprintf(&b, "Scheme Name: %s\n", orUnknown(doc.Payload.SchemeName))
		fmt.Fprintf(&b, "Theme: %s\n", orUnknown(doc.Payload.Theme))
		if doc.Payload.Ministry != "" {
			fmt.Fprintf(&b, "Ministry: %s\n", doc.Payload.Ministry)
		}
		fmt.Fprintf(&b, "\nContent:\n%s\n", doc.Payload.Text)
		if doc.Payload.OfficialURL != "" {
			fmt.Fprintf(&b, "\nOfficial URL: %s", doc.Payload.OfficialURL)
		}
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
