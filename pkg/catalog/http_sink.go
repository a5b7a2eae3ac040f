package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSink posts full mutations to a catalog ingestion endpoint as JSON.
type HTTPSink struct {
	endpoint string
	token    string
	client   *http.Client
}

var _ Sink = (*HTTPSink)(nil)

// HTTPSinkOption configures an HTTPSink.
type HTTPSinkOption func(*HTTPSink)

// WithToken sets a bearer token sent on every request.
func WithToken(token string) HTTPSinkOption {
	return func(s *HTTPSink) { s.token = token }
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) HTTPSinkOption {
	return func(s *HTTPSink) { s.client = c }
}

// NewHTTPSink creates a sink posting to the given ingestion endpoint.
func NewHTTPSink(endpoint string, opts ...HTTPSinkOption) *HTTPSink {
	s := &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyMutation posts the mutation. Any non-2xx response is an error;
// the response body is included for diagnostics, truncated to keep log
// lines bounded.
func (s *HTTPSink) ApplyMutation(ctx context.Context, m *Mutation) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mutation for %s: %w", m.SourceKey, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mutation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post mutation for %s: %w", m.SourceKey, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("catalog rejected mutation for %s: %s: %s", m.SourceKey, resp.Status, bytes.TrimSpace(body))
	}
	return nil
}
