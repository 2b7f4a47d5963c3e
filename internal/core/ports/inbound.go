package ports

import (
	"context"

	"github.com/yojanadesk/scheme-rag/internal/core/domain"
)

// SchemeRetriever is the public retrieval façade.
type SchemeRetriever interface {
	// Retrieve routes the query to filtered or hybrid retrieval and
	// applies the adaptive threshold. topK <= 0 selects the intent
	// default; an empty intent means unclassified.
	Retrieve(ctx context.Context, query string, topK int, intent domain.Intent) ([]domain.Document, domain.Degradation, error)
	// RetrieveComparison retrieves independently per scheme so every
	// compared scheme is represented.
	RetrieveComparison(ctx context.Context, query string, schemes []string, docsPerScheme int) (map[string][]domain.Document, error)
}

// AnswerWorkflow runs the bounded refinement pipeline end to end.
type AnswerWorkflow interface {
	Run(ctx context.Context, query string) (*domain.WorkflowResult, error)
}
