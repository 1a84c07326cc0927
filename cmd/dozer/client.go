package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIClient talks to the admin API of a running dozer.
type APIClient struct {
	baseURL  string
	client   *http.Client
	username string
	password string
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8215/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// WithInsecureTLS skips certificate verification, for self-signed admin API
// certificates.
func (c *APIClient) WithInsecureTLS() *APIClient {
	c.client.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402 opt-in via --insecure
	}
	return c
}

// WithBasicAuth sends the credentials with every request.
func (c *APIClient) WithBasicAuth(username, password string) *APIClient {
	c.username, c.password = username, password
	return c
}

func (c *APIClient) do(method, path string) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return c.client.Do(req)
}

// GetStatus returns the decoded status document.
func (c *APIClient) GetStatus() (map[string]any, error) {
	resp, err := c.do(http.MethodGet, "/status")
	if err != nil {
		return nil, fmt.Errorf("request status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return out, nil
}

func (c *APIClient) Wake() (string, error) { return c.post("/wake") }

// Stop puts the server to sleep, or kills it when force is set.
func (c *APIClient) Stop(force bool) (string, error) {
	path := "/stop"
	if force {
		path += "?force=1"
	}
	return c.post(path)
}

// post sends an empty POST and returns the resulting state.
func (c *APIClient) post(path string) (string, error) {
	resp, err := c.do(http.MethodPost, path)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}
	var ok struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return ok.State, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
