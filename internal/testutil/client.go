// Package testutil holds helpers shared by the integration tests: containers,
// an API client and OpenAPI response validation.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

// Client calls the API with an optional bearer token. When a validator and a
// *testing.T are set, every response is checked against the OpenAPI document.
type Client struct {
	BaseURL   string
	Token     string
	validator *OpenAPIValidator
	http      *http.Client
	t         *testing.T
}

// NewClient creates a client that does not validate responses.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithValidator creates a client that validates responses with v.
// Call SetT before use.
func NewClientWithValidator(baseURL string, v *OpenAPIValidator) *Client {
	c := NewClient(baseURL)
	c.validator = v
	return c
}

// SetT sets the test that validation failures are reported to.
func (c *Client) SetT(t *testing.T) { c.t = t }

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) { c.Token = token }

// ClearToken drops the bearer token.
func (c *Client) ClearToken() { c.Token = "" }

// WithoutValidation returns a copy that skips response validation, for
// requests that are expected to be rejected.
func (c *Client) WithoutValidation() *Client {
	clone := *c
	clone.validator = nil
	return &clone
}

func (c *Client) GET(path string) (*http.Response, error) {
	return c.send(http.MethodGet, path, nil)
}

func (c *Client) POST(path string, body any) (*http.Response, error) {
	return c.send(http.MethodPost, path, body)
}

func (c *Client) PUT(path string, body any) (*http.Response, error) {
	return c.send(http.MethodPut, path, body)
}

func (c *Client) PATCH(path string, body any) (*http.Response, error) {
	return c.send(http.MethodPatch, path, body)
}

func (c *Client) DELETE(path string) (*http.Response, error) {
	return c.send(http.MethodDelete, path, nil)
}

func (c *Client) send(method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if c.validator != nil && c.t != nil {
		c.validator.ValidateResponse(c.t, req, resp)
	}
	return resp, nil
}

// DecodeJSON decodes and closes the response body.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %d response: %v", resp.StatusCode, err)
	}
}

// ReadBody reads and closes the response body.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}
