package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

// Client talks to Qdrant over its HTTP API and adapts point payloads into
// domain documents.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
}

var _ ports.VectorStore = (*Client)(nil)

func New(baseURL, apiKey, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Ping verifies the collection is reachable. Used at startup, where an
// unreachable store aborts initialization.
func (c *Client) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrConnection, "qdrant ping", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return domain.WrapError(domain.ErrConnection, "qdrant ping", statusError("ping", resp))
	}
	return nil
}

func (c *Client) Query(ctx context.Context, vector []float32, filter *domain.Filter, limit int) ([]domain.Document, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := filterJSON(filter); f != nil {
		reqBody["filter"] = f
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("/collections/%s/points/search", c.collection), reqBody, &searchResp, "search"); err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "qdrant search", err)
	}

	out := make([]domain.Document, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.Document{
			ID:      pointID(r.ID),
			Score:   r.Score,
			Payload: payloadFromMap(r.Payload),
		})
	}
	return out, nil
}

func (c *Client) Scroll(ctx context.Context, filter *domain.Filter, offset string, limit int) ([]domain.Document, string, error) {
	reqBody := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if offset != "" {
		reqBody["offset"] = offset
	}
	if f := filterJSON(filter); f != nil {
		reqBody["filter"] = f
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
			NextPageOffset any `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("/collections/%s/points/scroll", c.collection), reqBody, &scrollResp, "scroll"); err != nil {
		return nil, "", domain.WrapError(domain.ErrRetrieval, "qdrant scroll", err)
	}

	out := make([]domain.Document, 0, len(scrollResp.Result.Points))
	for _, p := range scrollResp.Result.Points {
		out = append(out, domain.Document{
			ID:      pointID(p.ID),
			Payload: payloadFromMap(p.Payload),
		})
	}
	return out, pointID(scrollResp.Result.NextPageOffset), nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
	}
	return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
}

// filterJSON renders the domain filter as a Qdrant must clause. Single
// values use match.value, multi-value conditions use match.any.
func filterJSON(filter *domain.Filter) map[string]any {
	if filter == nil || len(filter.Must) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(filter.Must))
	for _, cond := range filter.Must {
		match := map[string]any{}
		if len(cond.Any) > 0 {
			match["any"] = cond.Any
		} else {
			match["value"] = cond.Value
		}
		must = append(must, map[string]any{
			"key":   cond.Key,
			"match": match,
		})
	}
	return map[string]any{"must": must}
}

// pointID normalizes Qdrant point IDs, which may be strings or numbers.
func pointID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id))
		}
		return fmt.Sprintf("%v", id)
	default:
		return fmt.Sprintf("%v", id)
	}
}

func payloadFromMap(payload map[string]any) domain.Payload {
	return domain.Payload{
		SchemeName:  getStringPayload(payload, "scheme_name"),
		Theme:       getStringPayload(payload, "theme"),
		Ministry:    getStringPayload(payload, "ministry"),
		Text:        getStringPayload(payload, "text"),
		OfficialURL: getStringPayload(payload, "official_url"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
