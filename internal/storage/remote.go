package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goshops-com/opsagent/internal/agent"
	"github.com/goshops-com/opsagent/internal/alerts"
)

// RemoteStore ships alerts and remediation records to a central API
// instead of the local database.
type RemoteStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRemoteStore creates a remote backend for the given API base URL.
func NewRemoteStore(baseURL, token string) *RemoteStore {
	return &RemoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// remoteExecution mirrors an ExecutionResult with the derived status
// the API expects.
type remoteExecution struct {
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
	Command     string `json:"command,omitempty"`
	Risk        string `json:"risk,omitempty"`
	Status      string `json:"status"`
	SkipReason  string `json:"skipReason,omitempty"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
}

type remoteAgentResult struct {
	AlertID     string            `json:"alertId"`
	Timestamp   time.Time         `json:"timestamp"`
	RawResponse string            `json:"rawResponse"`
	Response    *agent.Analysis   `json:"response,omitempty"`
	Executions  []remoteExecution `json:"executions"`
}

// SaveAlert posts the alert to the API.
func (s *RemoteStore) SaveAlert(ctx context.Context, alert *alerts.Alert) error {
	return s.post(ctx, "/api/v1/alerts", alert)
}

// SaveAgentResult posts the remediation record with derived per-action
// statuses to the API.
func (s *RemoteStore) SaveAgentResult(ctx context.Context, result *agent.Result) error {
	payload := remoteAgentResult{
		AlertID:     result.AlertID,
		Timestamp:   result.Timestamp,
		RawResponse: result.RawResponse,
		Response:    result.Response,
		Executions:  make([]remoteExecution, 0, len(result.ExecutionResults)),
	}
	for _, exec := range result.ExecutionResults {
		payload.Executions = append(payload.Executions, remoteExecution{
			Action:      exec.Action.Action,
			Description: exec.Action.Description,
			Command:     exec.Action.Command,
			Risk:        string(exec.Action.Risk),
			Status:      string(exec.Status()),
			SkipReason:  exec.SkipReason,
			Output:      exec.Output,
			Error:       exec.Error,
		})
	}
	return s.post(ctx, "/api/v1/agent-responses", payload)
}

// Close is a no-op for the remote backend.
func (s *RemoteStore) Close() error {
	return nil
}

func (s *RemoteStore) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}
