package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// requestTimeout bounds every API call. Scan triggers return 202
// immediately, so nothing should take longer than this.
const requestTimeout = 30 * time.Second

// apiClient is a thin wrapper over the daemon's REST API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

// newClient builds a client from the persistent flags.
func newClient() *apiClient {
	token := authToken
	if token == "" {
		token = os.Getenv("HEARTHCTL_TOKEN")
	}
	return &apiClient{
		base:  strings.TrimRight(serverURL, "/") + "/api/v1",
		token: token,
		http:  &http.Client{Timeout: requestTimeout},
	}
}

// apiError mirrors the server's structured error response.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *apiClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *apiClient) put(path string, body, out any) error {
	return c.do(http.MethodPut, path, body, out)
}

func (c *apiClient) delete(path string, out any) error {
	return c.do(http.MethodDelete, path, nil, out)
}

// do performs one request. A non-nil body is sent as JSON; a non-nil out
// receives the decoded response. Error responses are turned into Go
// errors carrying the server's message.
func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	const maxResponseSize = 10 << 20 // 10 MB
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			if resp.StatusCode == http.StatusUnauthorized {
				return fmt.Errorf("%s (run 'hearthctl login' to obtain a token)", apiErr.Message)
			}
			return fmt.Errorf("%s", apiErr.Message)
		}
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, c.base+path)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
