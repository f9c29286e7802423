package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/systemstart/pipecall/pkg/api"
	"github.com/systemstart/pipecall/pkg/session"
	"github.com/systemstart/pipecall/pkg/templating"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// RequestExecutor runs request steps through a Transport.
//
// The stored result has the shape
//
//	{
//	    "status": 200,
//	    "statusText": "OK",
//	    "headers": {"content-type": "application/json", ...},
//	    "data": {...}  // decoded JSON, or the body as text
//	}
//
// Responses with a status of 400 or above fail the step.
type RequestExecutor struct {
	templating *templating.Engine
	transport  Transport
}

// NewRequestExecutor creates a request executor.
func NewRequestExecutor(engine *templating.Engine, transport Transport) *RequestExecutor {
	return &RequestExecutor{templating: engine, transport: transport}
}

func (e *RequestExecutor) CanHandle(step api.Step) bool {
	return step.Kind == "" || step.Kind == api.KindRequest
}

func (e *RequestExecutor) Execute(ctx context.Context, step api.Step, store *session.Store) (any, error) {
	url := e.templating.ResolveString(step.URL)

	var body any
	if s, ok := step.Body.(string); ok {
		body = e.templating.ResolveString(s)
	} else {
		body = e.templating.ResolveValue(step.Body)
	}

	headers := make(map[string]string, len(step.Headers)+1)
	for k, v := range step.Headers {
		headers[k] = e.templating.ResolveString(v)
	}

	unresolved := append(e.templating.ValidateString(step.URL), e.templating.ValidateValue(step.Body)...)
	if len(unresolved) > 0 {
		slog.Warn("step has unresolvable placeholders", "step", step.Name, "placeholders", unresolved)
	}

	slog.Info("executing request step", "step", step.Name, "method", step.Method, "url", url)

	payload, err := encodeBody(step, body, headers)
	if err != nil {
		return nil, &RequestExecutionError{StepName: step.Name, Message: fmt.Sprintf("serialize body: %v", err), Err: err}
	}

	resp, err := e.transport.Do(ctx, &OutboundRequest{
		Method:             step.Method,
		URL:                url,
		Headers:            headers,
		Body:               payload,
		InsecureSkipVerify: step.AllowSelfSignedSSL,
	})
	if err != nil {
		return nil, &RequestExecutionError{StepName: step.Name, Message: err.Error(), Err: err}
	}

	result := responseValue(resp)
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &RequestExecutionError{
			StepName: step.Name,
			Message:  fmt.Sprintf("request failed with status code %d", resp.StatusCode),
			Response: result,
		}
	}

	storeResult(store, step, result)
	slog.Debug("request step completed", "step", step.Name, "status", resp.StatusCode)
	return result, nil
}

// encodeBody applies the content-type rules and serializes body for the wire.
// headers is updated in place.
func encodeBody(step api.Step, body any, headers map[string]string) ([]byte, error) {
	structured := isStructured(body)

	switch {
	case step.ContentType != "":
		deleteHeader(headers, headerContentType)
		headers[headerContentType] = step.ContentType
		if structured && isTextContentType(step.ContentType) {
			slog.Warn("structured body sent with a text content type, serializing it to text",
				"step", step.Name, "contentType", step.ContentType)
		}
	case structured && !hasHeader(headers, headerContentType):
		headers[headerContentType] = contentTypeJSON
	}

	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

func isStructured(body any) bool {
	switch body.(type) {
	case nil, string, []byte:
		return false
	default:
		return true
	}
}

func isTextContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.HasPrefix(ct, "text/") || strings.Contains(ct, "xml") || strings.Contains(ct, "plain")
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func deleteHeader(headers map[string]string, name string) {
	for k := range headers {
		if strings.EqualFold(k, name) {
			delete(headers, k)
		}
	}
}

// responseValue converts a response into the value stored for the step.
func responseValue(resp *InboundResponse) map[string]any {
	headers := make(map[string]any, len(resp.Headers))
	for key := range resp.Headers {
		headers[strings.ToLower(key)] = resp.Headers.Get(key)
	}

	var data any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		data = string(resp.Body)
	}

	statusText := http.StatusText(resp.StatusCode)
	if prefix := fmt.Sprintf("%d ", resp.StatusCode); strings.HasPrefix(resp.Status, prefix) {
		statusText = strings.TrimPrefix(resp.Status, prefix)
	}

	return map[string]any{
		"status":     resp.StatusCode,
		"statusText": statusText,
		"headers":    headers,
		"data":       data,
	}
}
