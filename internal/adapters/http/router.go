package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
	"github.com/yojanadesk/scheme-rag/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	workflow  ports.AnswerWorkflow
	retriever ports.SchemeRetriever
	metrics   *metrics.RetrievalMetrics
	logger    *slog.Logger
}

func NewRouter(
	workflow ports.AnswerWorkflow,
	retriever ports.SchemeRetriever,
	m *metrics.RetrievalMetrics,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		workflow:  workflow,
		retriever: retriever,
		metrics:   m,
		logger:    logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.answerQuery)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	mux.HandleFunc("/v1/retrieve/comparison", rt.retrieveComparison)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) answerQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	result, err := rt.workflow.Run(r.Context(), req.Query)
	if err != nil {
		rt.writeError(w, r, "workflow_failed", err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordQuery(serviceName, string(result.Intent), modeOf(result.RetrievedDocs), len(result.RetrievedDocs))
		rt.metrics.RecordWorkflow(serviceName, time.Since(start), result.ReflectionCount, result.CorrectionCount)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query  string `json:"query"`
		TopK   int    `json:"top_k"`
		Intent string `json:"intent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	intent := domain.Intent(strings.ToUpper(strings.TrimSpace(req.Intent)))
	docs, degradation, err := rt.retriever.Retrieve(r.Context(), req.Query, req.TopK, intent)
	if err != nil {
		rt.writeError(w, r, "retrieve_failed", err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordQuery(serviceName, string(intent), modeOf(docs), len(docs))
		if degradation.Degraded {
			rt.metrics.RecordDegradation(serviceName, degradation.Reason)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":   docs,
		"degradation": degradation,
	})
}

func (rt *Router) retrieveComparison(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query         string   `json:"query"`
		Schemes       []string `json:"schemes"`
		DocsPerScheme int      `json:"docs_per_scheme"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Schemes) < 2 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least two schemes are required"})
		return
	}

	results, err := rt.retriever.RetrieveComparison(r.Context(), req.Query, req.Schemes, req.DocsPerScheme)
	if err != nil {
		rt.writeError(w, r, "comparison_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := mapErrorToHTTPStatus(err)
	rt.logger.Error(event,
		"request_id", requestIDFromContext(r.Context()),
		"status", status,
		"error", err,
	)
	writeJSON(w, status, map[string]string{"error": clientMessage(status)})
}

func modeOf(docs []domain.Document) string {
	if len(docs) == 0 || docs[0].Decomposition == nil {
		return ""
	}
	return string(docs[0].Decomposition.Mode)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
