package llm

import (
	"context"

	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

// Tiered routes prompt roles across two completion backends: a lightweight
// local model for classification and query rewriting, and a heavier model
// for judging and answer generation. With no heavy backend configured, the
// light one serves everything.
type Tiered struct {
	light ports.CompletionService
	heavy ports.CompletionService
}

var _ ports.CompletionService = (*Tiered)(nil)

func NewTiered(light, heavy ports.CompletionService) *Tiered {
	if heavy == nil {
		heavy = light
	}
	return &Tiered{light: light, heavy: heavy}
}

func (t *Tiered) Complete(ctx context.Context, role ports.PromptRole, vars map[string]string) (string, error) {
	switch role {
	case ports.PromptRelevance, ports.PromptAnswerQuality, ports.PromptAnswer:
		return t.heavy.Complete(ctx, role, vars)
	default:
		return t.light.Complete(ctx, role, vars)
	}
}
