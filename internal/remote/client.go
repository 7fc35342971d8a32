package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const requestTimeout = 30 * time.Second

// Client talks to the main clinic server over HTTP with an API-key header.
// It is immutable; credential changes are handled by building a new Client,
// never by mutating one that may be mid-request.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client for the given server base URL and API key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// serverMessage extracts a human-readable error message from an error
// response body, falling back to the raw body or status code.
func serverMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(body) > 0 {
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &payload) == nil {
			if payload.Message != "" {
				return payload.Message
			}
			if payload.Error != "" {
				return payload.Error
			}
		}
		return strings.TrimSpace(string(body))
	}
	return fmt.Sprintf("server returned status %d", resp.StatusCode)
}

// Health probes GET /health. Any 2xx response means the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health probe: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// InitialData fetches the reference-data snapshot for the given branch.
func (c *Client) InitialData(ctx context.Context, branchID string) (InitialData, error) {
	path := "/sync/initial-data?branchId=" + url.QueryEscape(branchID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return InitialData{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return InitialData{}, fmt.Errorf("requesting initial data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return InitialData{}, fmt.Errorf("initial data: %s", serverMessage(resp))
	}

	var data InitialData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return InitialData{}, fmt.Errorf("decoding initial data: %w", err)
	}
	return data, nil
}

type uploadRequest struct {
	Actions []UploadAction `json:"actions"`
}

type uploadResponse struct {
	Results []UploadResult `json:"results"`
}

// UploadChanges submits a batch of queued mutations and returns the server's
// per-item results.
func (c *Client) UploadChanges(ctx context.Context, actions []UploadAction) ([]UploadResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/sync/upload-changes", uploadRequest{Actions: actions})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading changes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload changes: %s", serverMessage(resp))
	}

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return result.Results, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User *User `json:"user"`
}

// Login exchanges credentials for a user descriptor. The server's own error
// message is surfaced verbatim; a 2xx response without a user is an error
// despite the status code.
func (c *Client) Login(ctx context.Context, username, password string) (User, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/sync/login", loginRequest{Username: username, Password: password})
	if err != nil {
		return User{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("login failed: %s", serverMessage(resp))
	}

	var result loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return User{}, fmt.Errorf("decoding login response: %w", err)
	}
	if result.User == nil {
		return User{}, fmt.Errorf("login failed: server response contained no user")
	}
	return *result.User, nil
}

type branchesResponse struct {
	Branches []Branch `json:"branches"`
}

// Branches lists the clinic locations available on the server.
func (c *Client) Branches(ctx context.Context) ([]Branch, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/sync/branches", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting branches: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("branches: %s", serverMessage(resp))
	}

	var result branchesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding branches response: %w", err)
	}
	return result.Branches, nil
}
