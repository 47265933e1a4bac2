// Package http provides an HTTP client for the gatekeepd feature flag
// service.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	gatekeep "github.com/gatekeep/gatekeep/clients/go"
)

// Config holds configuration for the HTTP client.
type Config struct {
	// BaseURL is the base URL of the gatekeepd server, e.g.
	// "http://localhost:8080".
	BaseURL string
	// APIToken is the optional bearer token.
	APIToken string
	// HTTPClient is optional; defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client implements gatekeep.Evaluator and gatekeep.ConfigManager over
// HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient returns a new HTTP client for the gatekeepd service.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{cfg: cfg, httpClient: hc}
}

// APIError is returned when the server responds with an HTTP error
// status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gatekeep: HTTP %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gatekeep: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("gatekeep: create request: %w", err)
	}
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gatekeep: http: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, dst any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("gatekeep: decode response: %w", err)
	}
	return nil
}

func namespacePath(namespace, suffix string) string {
	return "/v1/namespaces/" + url.PathEscape(namespace) + suffix
}

// -- Evaluator ---------------------------------------------------------------

// Evaluate resolves one property in the namespace.
func (c *Client) Evaluate(ctx context.Context, namespace, property string, evalCtx gatekeep.EvaluationContext) (gatekeep.Value, error) {
	results, err := c.EvaluateBatch(ctx, namespace, []gatekeep.EvaluateRequest{{
		Property: property,
		Context:  evalCtx,
	}})
	if err != nil {
		return gatekeep.Value{}, err
	}
	if len(results) != 1 {
		return gatekeep.Value{}, fmt.Errorf("gatekeep: expected 1 result, got %d", len(results))
	}
	return results[0].Value, nil
}

// EvaluateBatch resolves several properties against the same namespace.
func (c *Client) EvaluateBatch(ctx context.Context, namespace string, reqs []gatekeep.EvaluateRequest) ([]gatekeep.EvaluateResult, error) {
	resp, err := c.do(ctx, http.MethodPost, namespacePath(namespace, "/evaluate"), map[string]any{
		"requests": reqs,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Results []gatekeep.EvaluateResult `json:"results"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Explain resolves one property and returns the full decision trace.
func (c *Client) Explain(ctx context.Context, namespace, property string, evalCtx gatekeep.EvaluationContext) (gatekeep.ExplainResult, error) {
	resp, err := c.do(ctx, http.MethodPost, namespacePath(namespace, "/explain"), map[string]any{
		"property": property,
		"context":  evalCtx,
	})
	if err != nil {
		return gatekeep.ExplainResult{}, err
	}
	var out gatekeep.ExplainResult
	if err := decodeResponse(resp, &out); err != nil {
		return gatekeep.ExplainResult{}, err
	}
	return out, nil
}

// -- ConfigManager -----------------------------------------------------------

// LoadSnapshot installs a snapshot document as the namespace's active
// configuration and returns the flag count.
func (c *Client) LoadSnapshot(ctx context.Context, namespace string, snapshot json.RawMessage) (int, error) {
	resp, err := c.do(ctx, http.MethodPut, namespacePath(namespace, "/snapshot"), snapshot)
	if err != nil {
		return 0, err
	}
	var out struct {
		Flags int `json:"flags"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return 0, err
	}
	return out.Flags, nil
}

// ApplyPatch overlays a patch document onto the namespace's active
// configuration and returns the resulting flag count.
func (c *Client) ApplyPatch(ctx context.Context, namespace string, patch json.RawMessage) (int, error) {
	resp, err := c.do(ctx, http.MethodPatch, namespacePath(namespace, "/snapshot"), patch)
	if err != nil {
		return 0, err
	}
	var out struct {
		Flags int `json:"flags"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return 0, err
	}
	return out.Flags, nil
}

// ExportSnapshot fetches the namespace's active configuration as a
// snapshot document.
func (c *Client) ExportSnapshot(ctx context.Context, namespace string) (json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodGet, namespacePath(namespace, "/snapshot"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gatekeep: read response: %w", err)
	}
	return json.RawMessage(data), nil
}

// Rollback reverts the namespace the given number of snapshots.
func (c *Client) Rollback(ctx context.Context, namespace string, steps int) (bool, error) {
	resp, err := c.do(ctx, http.MethodPost, namespacePath(namespace, "/rollback"), map[string]int{
		"steps": steps,
	})
	if err != nil {
		return false, err
	}
	var out struct {
		RolledBack bool `json:"rolled_back"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return false, err
	}
	return out.RolledBack, nil
}

// DisableAll sets the namespace's kill switch.
func (c *Client) DisableAll(ctx context.Context, namespace string) error {
	resp, err := c.do(ctx, http.MethodPost, namespacePath(namespace, "/disable"), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// EnableAll clears the namespace's kill switch.
func (c *Client) EnableAll(ctx context.Context, namespace string) error {
	resp, err := c.do(ctx, http.MethodPost, namespacePath(namespace, "/enable"), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

var (
	_ gatekeep.Evaluator     = (*Client)(nil)
	_ gatekeep.ConfigManager = (*Client)(nil)
)
