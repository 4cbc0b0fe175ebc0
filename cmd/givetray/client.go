package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/allenguarnes/givetray/internal/history"
	"github.com/allenguarnes/givetray/internal/logring"
	"github.com/allenguarnes/givetray/internal/supervisor"
)

// APIClient talks to a running givetray instance over its HTTP API.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a new API client.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8181"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// IsReachable checks if an instance is running and answering.
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/status")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

func (c *APIClient) profileURL(path, profile string) string {
	return c.baseURL + path + "?profile=" + url.QueryEscape(profile)
}

// decodeError extracts the {"error": ...} payload from a failed response.
func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("api error: status %d", resp.StatusCode)
	}
	return fmt.Errorf("api error: %s", body.Error)
}

// Start asks the instance to start the profile command.
func (c *APIClient) Start(profile string) error {
	resp, err := c.client.Post(c.profileURL("/start", profile), "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

// Stop asks the instance to stop the profile command.
func (c *APIClient) Stop(profile string) error {
	resp, err := c.client.Post(c.profileURL("/stop", profile), "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

// Status fetches one profile's status.
func (c *APIClient) Status(profile string) (supervisor.Status, error) {
	var st supervisor.Status
	resp, err := c.client.Get(c.profileURL("/status", profile))
	if err != nil {
		return st, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return st, decodeError(resp)
	}
	err = json.NewDecoder(resp.Body).Decode(&st)
	return st, err
}

// StatusAll fetches statuses for every profile the instance knows.
func (c *APIClient) StatusAll() ([]supervisor.Status, error) {
	resp, err := c.client.Get(c.baseURL + "/status")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var sts []supervisor.Status
	err = json.NewDecoder(resp.Body).Decode(&sts)
	return sts, err
}

// Logs fetches the profile's buffered log lines.
func (c *APIClient) Logs(profile string) ([]logring.Line, error) {
	resp, err := c.client.Get(c.profileURL("/logs", profile))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var lines []logring.Line
	err = json.NewDecoder(resp.Body).Decode(&lines)
	return lines, err
}

// ClearLogs empties the profile's log buffer.
func (c *APIClient) ClearLogs(profile string) error {
	req, err := http.NewRequest(http.MethodDelete, c.profileURL("/logs", profile), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

// History fetches recent runs for the profile.
func (c *APIClient) History(profile string, limit int) ([]history.Record, error) {
	target := c.profileURL("/history", profile)
	if limit > 0 {
		target += fmt.Sprintf("&limit=%d", limit)
	}
	resp, err := c.client.Get(target)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var recs []history.Record
	err = json.NewDecoder(resp.Body).Decode(&recs)
	return recs, err
}
