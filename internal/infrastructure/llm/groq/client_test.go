package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
	"github.com/yojanadesk/scheme-rag/internal/infrastructure/resilience"
)

func fastResilience() resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	}
}

func TestCompleteSendsAuthAndParsesChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer gsk-test" {
			t.Fatalf("auth header = %q", r.Header.Get("Authorization"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		msgs := body["messages"].([]any)
		if len(msgs) != 2 {
			t.Fatalf("messages = %d, want system+user", len(msgs))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  NO  "}},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "gsk-test", Model: "llama-3.3-70b-versatile", Resilience: fastResilience()})

	got, err := c.Complete(context.Background(), ports.PromptAnswerQuality, map[string]string{"query": "q", "answer": "a"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "NO" {
		t.Fatalf("response = %q, want trimmed NO", got)
	}
}

func TestCompleteRateLimitedMarksTemporary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k", Model: "m", Resilience: fastResilience()})

	_, err := c.Complete(context.Background(), ports.PromptAnswer, map[string]string{"query": "q", "schemes": "s"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("err = %v, want ErrTemporary kind", err)
	}
}

func TestCompleteEmptyChoicesFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k", Model: "m", Resilience: fastResilience()})

	if _, err := c.Complete(context.Background(), ports.PromptAnswer, map[string]string{"query": "q", "schemes": "s"}); err == nil {
		t.Fatal("Complete accepted empty choices")
	}
}
