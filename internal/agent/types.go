// Package agent turns a new alert into an AI-produced action plan and
// executes that plan under a risk policy, recording outcomes.
package agent

import "time"

// RiskLevel classifies a remediation action for execution gating.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func riskValue(r RiskLevel) int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// ExecutionStatus is the persisted projection of an action outcome.
type ExecutionStatus string

const (
	StatusExecuted ExecutionStatus = "executed"
	StatusSkipped  ExecutionStatus = "skipped"
	StatusFailed   ExecutionStatus = "failed"
)

// Policy is the agent configuration supplied by the config collaborator.
type Policy struct {
	Enabled       bool
	AutoRemediate bool
	Provider      string
	Model         string
	// MaxAutoRisk is the highest risk tier the orchestrator may execute
	// without approval.
	MaxAutoRisk RiskLevel
	// ActionTimeout bounds each action's execution.
	ActionTimeout time.Duration
}

// Action is one proposed remediation step from the model.
type Action struct {
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Command     string    `json:"command,omitempty"`
	Risk        RiskLevel `json:"risk"`
}

// Analysis is the structured portion of a model response.
type Analysis struct {
	Analysis                string   `json:"analysis"`
	CanAutoRemediate        bool     `json:"canAutoRemediate"`
	RequiresHumanAttention  bool     `json:"requiresHumanAttention"`
	HumanNotificationReason string   `json:"humanNotificationReason,omitempty"`
	Actions                 []Action `json:"actions,omitempty"`
}

// ExecutionResult records the outcome of one proposed action. Exactly
// one of Success/Skipped/(implicit failure) describes the outcome.
type ExecutionResult struct {
	Action     Action `json:"action"`
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skipReason,omitempty"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Status derives the persisted status. This is a one-way projection
// used at the persistence boundary; it is not stored on the result.
func (r ExecutionResult) Status() ExecutionStatus {
	switch {
	case r.Skipped:
		return StatusSkipped
	case r.Success:
		return StatusExecuted
	default:
		return StatusFailed
	}
}

// Result is the complete record of one remediation attempt for one
// alert. It is immutable after creation.
type Result struct {
	AlertID          string            `json:"alertId"`
	Timestamp        time.Time         `json:"timestamp"`
	RawResponse      string            `json:"rawResponse"`
	Response         *Analysis         `json:"response,omitempty"`
	ExecutionResults []ExecutionResult `json:"executionResults"`
}
