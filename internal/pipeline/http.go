package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds a single pipeline invocation.
const DefaultHTTPTimeout = 60 * time.Second

// maxResponseBytes caps how much of a pipeline response body is read.
const maxResponseBytes = 4 << 20

// HTTPPipeline invokes a RAG system over a JSON HTTP endpoint. The
// endpoint receives {"query": ..., "top_k": ...} and must respond with a
// Response-shaped JSON body.
type HTTPPipeline struct {
	endpoint   string
	headers    map[string]string
	httpClient *http.Client
}

// HTTPOption configures an HTTPPipeline.
type HTTPOption func(*HTTPPipeline)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPPipeline) {
		p.httpClient = client
	}
}

// WithHeaders sets extra request headers, e.g. authorization.
func WithHeaders(headers map[string]string) HTTPOption {
	return func(p *HTTPPipeline) {
		p.headers = headers
	}
}

// WithTimeout sets the per-invocation timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(p *HTTPPipeline) {
		p.httpClient.Timeout = d
	}
}

// NewHTTPPipeline creates a pipeline client for the given endpoint URL.
func NewHTTPPipeline(endpoint string, opts ...HTTPOption) *HTTPPipeline {
	p := &HTTPPipeline{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: DefaultHTTPTimeout,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type invokeRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// Invoke posts the query to the pipeline endpoint and decodes the
// response.
func (p *HTTPPipeline) Invoke(ctx context.Context, query string, topK int) (*Response, error) {
	body, err := json.Marshal(invokeRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrInvocation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvocation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvocation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrInvocation, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: endpoint returned %d", ErrInvocation, resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrInvocation, err)
	}
	return &out, nil
}

// Name returns the pipeline endpoint.
func (p *HTTPPipeline) Name() string {
	return "http:" + p.endpoint
}
