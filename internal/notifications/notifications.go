// Package notifications delivers alert and remediation status messages
// to an outbound webhook.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/goshops-com/opsagent/internal/agent"
	"github.com/goshops-com/opsagent/internal/alerts"
	"github.com/goshops-com/opsagent/internal/rules"
	"github.com/rs/zerolog/log"
)

// Kind identifies the notification class.
type Kind string

const (
	KindAlertFired     Kind = "alert_fired"
	KindAlertResolved  Kind = "alert_resolved"
	KindAgentAnalysis  Kind = "agent_analysis"
	KindHumanAttention Kind = "human_attention_required"
)

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Kind      Kind      `json:"kind"`
	Priority  string    `json:"priority"` // severity-derived visual priority
	Color     string    `json:"color"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	AlertID   string    `json:"alertId"`
	Metric    string    `json:"metric"`
	Severity  string    `json:"severity"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier posts notifications to a webhook URL. With no URL
// configured every notification is logged locally instead. Delivery is
// best-effort: failures are logged, never retried.
type Notifier struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// NewNotifier creates a notifier. webhookURL may be empty.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// AlertFired announces a newly created alert.
func (n *Notifier) AlertFired(alert *alerts.Alert) {
	n.send(Payload{
		Kind:      KindAlertFired,
		Title:     fmt.Sprintf("[%s] %s", alert.Severity, alert.Metric),
		Message:   alert.Message,
		AlertID:   alert.ID,
		Metric:    alert.Metric,
		Severity:  string(alert.Severity),
		Value:     alert.CurrentValue,
		Threshold: alert.Threshold,
	})
}

// AlertResolved announces that an alert's condition cleared.
func (n *Notifier) AlertResolved(alert *alerts.Alert) {
	n.send(Payload{
		Kind:      KindAlertResolved,
		Title:     fmt.Sprintf("Resolved: %s", alert.Metric),
		Message:   alert.Message,
		AlertID:   alert.ID,
		Metric:    alert.Metric,
		Severity:  string(alert.Severity),
		Value:     alert.CurrentValue,
		Threshold: alert.Threshold,
	})
}

// AnalysisProduced announces that the agent completed its analysis of
// an alert, summarising action outcomes.
func (n *Notifier) AnalysisProduced(alert *alerts.Alert, result *agent.Result) {
	message := "analysis produced no structured response"
	if result.Response != nil {
		executed, skipped, failed := 0, 0, 0
		for _, r := range result.ExecutionResults {
			switch r.Status() {
			case agent.StatusExecuted:
				executed++
			case agent.StatusSkipped:
				skipped++
			default:
				failed++
			}
		}
		message = fmt.Sprintf("%s (%d executed, %d skipped, %d failed)",
			result.Response.Analysis, executed, skipped, failed)
	}

	n.send(Payload{
		Kind:     KindAgentAnalysis,
		Title:    fmt.Sprintf("Agent analysis: %s", alert.Metric),
		Message:  message,
		AlertID:  alert.ID,
		Metric:   alert.Metric,
		Severity: string(alert.Severity),
		Value:    alert.CurrentValue,
	})
}

// HumanAttentionRequired announces that the agent wants a human to look
// at an alert. Always carries high priority.
func (n *Notifier) HumanAttentionRequired(alert *alerts.Alert, reason string) {
	if reason == "" {
		reason = "the agent flagged this alert for human review"
	}
	n.send(Payload{
		Kind:     KindHumanAttention,
		Priority: "high",
		Color:    "#d32f2f",
		Title:    fmt.Sprintf("Human intervention required: %s", alert.Metric),
		Message:  reason,
		AlertID:  alert.ID,
		Metric:   alert.Metric,
		Severity: string(alert.Severity),
		Value:    alert.CurrentValue,
	})
}

func (n *Notifier) send(payload Payload) {
	payload.Timestamp = n.now()
	if payload.Priority == "" {
		payload.Priority, payload.Color = priorityFor(rules.Severity(payload.Severity))
	}

	if n.webhookURL == "" {
		log.Info().
			Str("kind", string(payload.Kind)).
			Str("priority", payload.Priority).
			Str("alertID", payload.AlertID).
			Msg(payload.Title + ": " + payload.Message)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("kind", string(payload.Kind)).Msg("failed to marshal notification")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("failed to create notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(payload.Kind)).Msg("notification delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("kind", string(payload.Kind)).
			Msg("notification rejected by webhook")
		return
	}

	log.Debug().Str("kind", string(payload.Kind)).Str("alertID", payload.AlertID).Msg("notification delivered")
}

// priorityFor maps alert severity to a visual priority and color.
func priorityFor(severity rules.Severity) (string, string) {
	switch severity {
	case rules.SeverityCritical:
		return "high", "#d32f2f"
	case rules.SeverityWarning:
		return "normal", "#f9a825"
	default:
		return "low", "#607d8b"
	}
}
