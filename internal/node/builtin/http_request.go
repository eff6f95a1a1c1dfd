package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/flowcore/automation-engine/internal/node"
)

// HTTPRequestConfig describes an outbound call: URL is required and
// Method defaults to GET when empty; Body, if set, is sent verbatim as
// the JSON request body.
type HTTPRequestConfig struct {
	Method string          `json:"method"`
	URL    string          `json:"url"`
	Body   json.RawMessage `json:"body"`
}

// HTTPRequest issues an HTTP request per its config and returns the
// decoded JSON response body. Transport errors and 5xx responses are
// Retryable; 4xx responses are Fatal.
type HTTPRequest struct {
	Config     HTTPRequestConfig
	HTTPClient *http.Client
}

func (h HTTPRequest) Execute(ctx context.Context, _ json.RawMessage, _ *node.ExecutionContext) (json.RawMessage, *node.Error) {
	client := h.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	method := h.Config.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if len(h.Config.Body) > 0 {
		bodyReader = bytes.NewReader(h.Config.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.Config.URL, bodyReader)
	if err != nil {
		return nil, node.FatalError("http_request: failed to build request: %v", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, node.RetryableError("http_request: request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, node.RetryableError("http_request: failed to read response: %v", err)
	}

	if resp.StatusCode >= 500 {
		return nil, node.RetryableError("http_request: server returned %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, node.FatalError("http_request: client error %d: %s", resp.StatusCode, string(respBody))
	}

	if len(respBody) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(respBody) {
		return nil, node.FatalError("http_request: response was not valid JSON")
	}
	return json.RawMessage(respBody), nil
}
