package steps

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// OutboundRequest is what a request step hands to its transport.
type OutboundRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte // nil sends no body

	// InsecureSkipVerify disables TLS certificate verification for this call only.
	InsecureSkipVerify bool
}

// InboundResponse is the raw result of an outbound call.
type InboundResponse struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
}

// Transport performs outbound calls for request steps.
type Transport interface {
	Do(ctx context.Context, req *OutboundRequest) (*InboundResponse, error)
}

// HTTPTransport is the net/http implementation of Transport.
// It applies no timeout of its own; the caller's context bounds each call.
type HTTPTransport struct {
	base      http.RoundTripper
	userAgent string
	tracing   bool
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithRoundTripper replaces the base round tripper (http.DefaultTransport).
// Self-signed certificates can only be allowed when the base is an *http.Transport.
func WithRoundTripper(rt http.RoundTripper) TransportOption {
	return func(t *HTTPTransport) { t.base = rt }
}

// WithUserAgent sets a User-Agent header on requests that do not carry one.
func WithUserAgent(ua string) TransportOption {
	return func(t *HTTPTransport) { t.userAgent = ua }
}

// WithTracing wraps outbound calls in OpenTelemetry client spans.
func WithTracing() TransportOption {
	return func(t *HTTPTransport) { t.tracing = true }
}

// NewHTTPTransport creates a transport over net/http.
func NewHTTPTransport(opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{base: http.DefaultTransport}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do performs the call and reads the whole response body.
func (t *HTTPTransport) Do(ctx context.Context, req *OutboundRequest) (*InboundResponse, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if t.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	rt, release := t.roundTripper(req.InsecureSkipVerify)
	defer release()

	client := &http.Client{Transport: rt}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &InboundResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// roundTripper returns the round tripper for one call and a func releasing
// anything created only for it.
func (t *HTTPTransport) roundTripper(insecure bool) (http.RoundTripper, func()) {
	rt := t.base
	release := func() {}

	if insecure {
		if base, ok := rt.(*http.Transport); ok {
			clone := base.Clone()
			if clone.TLSClientConfig == nil {
				clone.TLSClientConfig = &tls.Config{}
			}
			clone.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opted in per step
			rt = clone
			release = clone.CloseIdleConnections
		} else {
			slog.Warn("allowSelfSignedSSL has no effect on a custom round tripper", "type", fmt.Sprintf("%T", rt))
		}
	}

	if t.tracing {
		rt = otelhttp.NewTransport(rt)
	}
	return rt, release
}
