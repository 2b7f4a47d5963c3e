package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
	"github.com/yojanadesk/scheme-rag/internal/infrastructure/llm"
	"github.com/yojanadesk/scheme-rag/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL    string
	GenModel   string
	EmbedModel string

	RatePerSec float64
	RateBurst  int

	Resilience resilience.Config
	Logger     *slog.Logger
}

// Client serves both embeddings and lightweight completions from a local
// Ollama instance. Calls are rate limited and routed through the shared
// retry/breaker executor.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var (
	_ ports.Embedder          = (*Client)(nil)
	_ ports.CompletionService = (*Client)(nil)
)

func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ratePerSec := cfg.RatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 4
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		genModel:   cfg.GenModel,
		embedModel: cfg.EmbedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   resilience.NewExecutor(cfg.Resilience),
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		logger:     logger,
	}
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrEmbedding, "ollama embed", fmt.Errorf("empty input"))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"model":  c.embedModel,
		"prompt": text,
	}
	var embedResp struct {
		Embedding []float64 `json:"embedding"`
	}
	err := c.executor.Execute(ctx, "ollama_embed", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/embeddings", reqBody, &embedResp, "embed")
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama embed", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, domain.WrapError(domain.ErrEmbedding, "ollama embed", fmt.Errorf("empty embedding returned"))
	}

	vector := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

func (c *Client) Complete(ctx context.Context, role ports.PromptRole, vars map[string]string) (string, error) {
	system, user, err := llm.Render(role, vars)
	if err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	reqBody := map[string]any{
		"model":  c.genModel,
		"system": system,
		"prompt": user,
		"stream": false,
		"options": map[string]any{
			"temperature": 0.1,
		},
	}
	var genResp struct {
		Response string `json:"response"`
	}
	err = c.executor.Execute(ctx, "ollama_generate", func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", reqBody, &genResp, "generate")
	}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama generate", err)
	}

	out := stripReasoning(genResp.Response)
	c.logger.Debug("ollama_completion", "role", string(role), "chars", len(out))
	return out, nil
}

var reasoningBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// stripReasoning removes chain-of-thought blocks that reasoning models
// prepend to their output.
func stripReasoning(s string) string {
	return strings.TrimSpace(reasoningBlock.ReplaceAllString(s, ""))
}
