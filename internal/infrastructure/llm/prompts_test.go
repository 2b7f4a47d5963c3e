package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	system, user, err := Render(ports.PromptRelevance, map[string]string{
		"query":   "Can women apply for PMEGP?",
		"schemes": "1. Scheme: PMEGP",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(system, "relevance judge") {
		t.Fatalf("system = %q", system)
	}
	if !strings.Contains(user, "Can women apply for PMEGP?") || !strings.Contains(user, "1. Scheme: PMEGP") {
		t.Fatalf("user = %q, placeholders not substituted", user)
	}
	if strings.Contains(user, "{query}") || strings.Contains(user, "{schemes}") {
		t.Fatalf("user = %q, placeholder left behind", user)
	}
}

func TestRenderUnknownRoleFails(t *testing.T) {
	if _, _, err := Render(ports.PromptRole("nonsense"), nil); err == nil {
		t.Fatal("Render accepted unknown role")
	}
}

func TestRenderIntentPromptListsEveryLabel(t *testing.T) {
	system, _, err := Render(ports.PromptIntent, map[string]string{"query": "q"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, label := range []string{"DISCOVERY", "ELIGIBILITY", "BENEFITS", "COMPARISON", "PROCEDURE", "GENERAL"} {
		if !strings.Contains(system, label) {
			t.Fatalf("intent prompt missing label %s", label)
		}
	}
}

type recordingService struct {
	name  string
	calls []ports.PromptRole
}

func (r *recordingService) Complete(ctx context.Context, role ports.PromptRole, vars map[string]string) (string, error) {
	r.calls = append(r.calls, role)
	return r.name, nil
}

func TestTieredRoutesJudgingAndAnswersToHeavyTier(t *testing.T) {
	light := &recordingService{name: "light"}
	heavy := &recordingService{name: "heavy"}
	tiered := NewTiered(light, heavy)

	wantHeavy := []ports.PromptRole{ports.PromptRelevance, ports.PromptAnswerQuality, ports.PromptAnswer}
	wantLight := []ports.PromptRole{ports.PromptIntent, ports.PromptReflection, ports.PromptCorrective, ports.PromptEntityExtract}

	for _, role := range wantHeavy {
		got, _ := tiered.Complete(context.Background(), role, nil)
		if got != "heavy" {
			t.Fatalf("role %s served by %s, want heavy", role, got)
		}
	}
	for _, role := range wantLight {
		got, _ := tiered.Complete(context.Background(), role, nil)
		if got != "light" {
			t.Fatalf("role %s served by %s, want light", role, got)
		}
	}
}

func TestTieredFallsBackToLightWhenHeavyMissing(t *testing.T) {
	light := &recordingService{name: "light"}
	tiered := NewTiered(light, nil)

	got, _ := tiered.Complete(context.Background(), ports.PromptAnswer, nil)
	if got != "light" {
		t.Fatalf("answer served by %s, want light fallback", got)
	}
}
