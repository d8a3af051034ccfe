package strata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Strata platform (e.g. "https://api.strata.example").
	BaseURL string

	// Workspace is the tenant workspace all data operations are scoped to.
	Workspace string

	// APIKey is the secret used to obtain a bearer token.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Strata data platform API.
// All methods are safe for concurrent use; the pure transforms (codec,
// merge planning, range resolution) hold no state at all.
type Client struct {
	baseURL   string
	workspace string
	client    *http.Client
	tokenMgr  *tokenManager
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL, Workspace, or APIKey is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("strata: BaseURL is required")
	}
	if cfg.Workspace == "" {
		return nil, fmt.Errorf("strata: Workspace is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("strata: APIKey is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:   baseURL,
		workspace: cfg.Workspace,
		client:    httpClient,
		tokenMgr:  newTokenManager(baseURL, cfg.Workspace, cfg.APIKey, httpClient),
	}, nil
}

// Workspace returns the tenant workspace the client is scoped to.
func (c *Client) Workspace() string { return c.workspace }

// route builds a workspace-scoped API path. Fixed route segments are passed
// verbatim; item names are escaped by callers via escape.
func (c *Client) route(parts ...string) string {
	return "/api/" + url.PathEscape(c.workspace) + "/" + strings.Join(parts, "/")
}

func escape(name string) string {
	return url.PathEscape(name)
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("strata: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("strata: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) put(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("strata: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("strata: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("strata: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

// getBytes retrieves a resource body verbatim, for blob downloads.
func (c *Client) getBytes(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("strata: create request: %w", err)
	}

	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("strata: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("strata: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	return bodyBytes, nil
}

// postFile uploads a single named file as multipart form data.
func (c *Client) postFile(ctx context.Context, path, name string, content []byte, dest any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("strata: create multipart part for %q: %w", name, err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("strata: write multipart part for %q: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("strata: finalize multipart body for %q: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("strata: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.doRequest(ctx, req, dest)
}

func (c *Client) doDelete(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("strata: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("strata: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("strata: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// 204 No Content — nothing to decode.
	if resp.StatusCode == http.StatusNoContent || dest == nil || len(bodyBytes) == 0 {
		return nil
	}

	return json.Unmarshal(bodyBytes, dest)
}

// apiErrorBody is the platform's error response shape.
type apiErrorBody struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(statusCode)
	}

	return apiErr
}
