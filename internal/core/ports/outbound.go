package ports

import (
	"context"

	"github.com/yojanadesk/scheme-rag/internal/core/domain"
)

// Embedder turns query text into a fixed-length vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore performs ANN search and payload scrolling over the corpus.
type VectorStore interface {
	// Query runs a ranked similarity search, optionally constrained by a
	// payload filter.
	Query(ctx context.Context, vector []float32, filter *domain.Filter, limit int) ([]domain.Document, error)
	// Scroll pages through points matching the filter without semantic
	// ranking. An empty next offset signals the end of the corpus.
	Scroll(ctx context.Context, filter *domain.Filter, offset string, limit int) ([]domain.Document, string, error)
}

// PromptRole selects a prompt template on the completion service.
type PromptRole string

const (
	PromptIntent        PromptRole = "intent"
	PromptRelevance     PromptRole = "relevance_judge"
	PromptReflection    PromptRole = "reflection"
	PromptAnswerQuality PromptRole = "answer_quality"
	PromptCorrective    PromptRole = "corrective"
	PromptAnswer        PromptRole = "answer"
	PromptEntityExtract PromptRole = "entity_extract"
)

// CompletionService renders a prompt role with variables and returns the
// model output. Call sites expect a small output shape (a label, YES/NO, or
// free text) and must tolerate malformed output with a safe default.
type CompletionService interface {
	Complete(ctx context.Context, role PromptRole, vars map[string]string) (string, error)
}

// QueryLogStore persists retrieval audit records. Writes are best-effort;
// the workflow never fails a request on a log error.
type QueryLogStore interface {
	Insert(ctx context.Context, record domain.QueryRecord) error
}

// ReindexQueue delivers explicit reindex triggers for the read-only
// lexical and entity indices.
type ReindexQueue interface {
	PublishReindexRequested(ctx context.Context, reason string) error
	SubscribeReindexRequested(ctx context.Context, handler func(context.Context, string) error) error
}
