package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goshops-com/opsagent/internal/agent/providers"
	"github.com/goshops-com/opsagent/internal/alerts"
	"github.com/rs/zerolog/log"
)

const systemPrompt = `You are an experienced Linux systems administrator responding to a monitoring alert on a production host.
Reply with a single JSON object and nothing else:
{
  "analysis": "root cause assessment",
  "canAutoRemediate": true|false,
  "requiresHumanAttention": true|false,
  "humanNotificationReason": "why a human is needed, if so",
  "actions": [
    {"action": "short_name", "description": "what it does and why", "command": "shell command or omit", "risk": "low|medium|high"}
  ]
}
Order actions from safest to most invasive. Only set canAutoRemediate when the actions are safe to run unattended.`

// AlertUpdater is the slice of the alert manager the orchestrator needs.
type AlertUpdater interface {
	UpdateAlertWithAgentResponse(alertID, response string, actions []string)
}

// ResultStore persists remediation records. Writes are fire-and-forget:
// failures are logged by the orchestrator, never retried.
type ResultStore interface {
	SaveAgentResult(ctx context.Context, result *Result) error
}

// Notifier receives orchestrator outcome notifications.
type Notifier interface {
	AnalysisProduced(alert *alerts.Alert, result *Result)
	HumanAttentionRequired(alert *alerts.Alert, reason string)
}

// Orchestrator turns one alert into one terminal remediation record.
type Orchestrator struct {
	policy   Policy
	provider providers.Provider
	executor CommandExecutor
	updater  AlertUpdater
	store    ResultStore
	notifier Notifier

	now func() time.Time
}

// New creates a remediation orchestrator. Store and notifier may be nil
// in tests; updater and provider are required.
func New(policy Policy, provider providers.Provider, executor CommandExecutor, updater AlertUpdater, store ResultStore, notifier Notifier) *Orchestrator {
	if policy.ActionTimeout <= 0 {
		policy.ActionTimeout = 2 * time.Minute
	}
	if policy.MaxAutoRisk == "" {
		policy.MaxAutoRisk = RiskLow
	}
	if executor == nil {
		executor = ShellExecutor{}
	}

	return &Orchestrator{
		policy:   policy,
		provider: provider,
		executor: executor,
		updater:  updater,
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// Handle runs the full remediation flow for one new alert: analysis
// request, risk-gated execution, result attachment, persistence, and
// notification. It always produces a terminal result, including when
// the AI call fails; retry policy is a caller concern.
func (o *Orchestrator) Handle(ctx context.Context, alert *alerts.Alert) *Result {
	result := &Result{
		AlertID:   alert.ID,
		Timestamp: o.now(),
	}

	resp, err := o.provider.Chat(ctx, providers.ChatRequest{
		Model:  o.policy.Model,
		System: systemPrompt,
		Messages: []providers.Message{
			{Role: "user", Content: buildPrompt(alert)},
		},
	})
	if err != nil {
		result.RawResponse = fmt.Sprintf("analysis request failed: %v", err)
		log.Error().Err(err).Str("alertID", alert.ID).Msg("AI analysis request failed")
	} else {
		result.RawResponse = resp.Content
		analysis, parseErr := parseAnalysis(resp.Content)
		if parseErr != nil {
			log.Warn().Err(parseErr).Str("alertID", alert.ID).Msg("AI response has no parseable structure, keeping raw text only")
		} else {
			result.Response = analysis
		}
	}

	if result.Response != nil {
		result.ExecutionResults = o.runActions(ctx, result.Response)
	}

	o.finish(ctx, alert, result)
	return result
}

// runActions applies the auto-remediation policy to every proposed
// action in plan order. Actions are attempted independently: one
// failure never aborts the rest, and gated actions are skipped with a
// recorded reason rather than silently dropped.
func (o *Orchestrator) runActions(ctx context.Context, analysis *Analysis) []ExecutionResult {
	results := make([]ExecutionResult, 0, len(analysis.Actions))

	for _, action := range analysis.Actions {
		if action.Risk == "" {
			action.Risk = AssessRiskLevel(action.Command)
		}

		if reason := o.skipReason(action, analysis); reason != "" {
			results = append(results, ExecutionResult{
				Action:     action,
				Skipped:    true,
				SkipReason: reason,
			})
			log.Info().
				Str("action", action.Action).
				Str("risk", string(action.Risk)).
				Str("reason", reason).
				Msg("remediation action skipped")
			continue
		}

		results = append(results, o.execute(ctx, action))
	}

	return results
}

func (o *Orchestrator) skipReason(action Action, analysis *Analysis) string {
	switch {
	case !o.policy.AutoRemediate:
		return "auto-remediation disabled"
	case !analysis.CanAutoRemediate:
		return "agent declined auto-remediation"
	case riskValue(action.Risk) > riskValue(o.policy.MaxAutoRisk):
		return "requires approval"
	case strings.TrimSpace(action.Command) == "":
		return "no command to execute"
	default:
		return ""
	}
}

func (o *Orchestrator) execute(ctx context.Context, action Action) ExecutionResult {
	execCtx, cancel := context.WithTimeout(ctx, o.policy.ActionTimeout)
	defer cancel()

	start := o.now()
	output, err := o.executor.Execute(execCtx, action.Command)
	duration := o.now().Sub(start)

	result := ExecutionResult{
		Action: action,
		Output: output,
	}
	if err != nil {
		result.Error = err.Error()
		log.Warn().
			Str("action", action.Action).
			Dur("duration", duration).
			Err(err).
			Msg("remediation action failed")
	} else {
		result.Success = true
		log.Info().
			Str("action", action.Action).
			Dur("duration", duration).
			Msg("remediation action executed")
	}
	return result
}

// finish attaches the result to the alert, persists it, and emits
// notifications. Collaborator failures are logged and do not affect
// the returned result.
func (o *Orchestrator) finish(ctx context.Context, alert *alerts.Alert, result *Result) {
	summary := result.RawResponse
	var actionNames []string
	if result.Response != nil {
		summary = result.Response.Analysis
		for _, r := range result.ExecutionResults {
			actionNames = append(actionNames, fmt.Sprintf("%s [%s]", r.Action.Action, r.Status()))
		}
	}

	if o.updater != nil {
		o.updater.UpdateAlertWithAgentResponse(alert.ID, summary, actionNames)
	}

	if o.store != nil {
		if err := o.store.SaveAgentResult(ctx, result); err != nil {
			log.Error().Err(err).Str("alertID", alert.ID).Msg("failed to persist agent result")
		}
	}

	if o.notifier != nil {
		o.notifier.AnalysisProduced(alert, result)
		if result.Response != nil && result.Response.RequiresHumanAttention {
			o.notifier.HumanAttentionRequired(alert, result.Response.HumanNotificationReason)
		}
	}
}

func buildPrompt(alert *alerts.Alert) string {
	var b strings.Builder
	b.WriteString("A monitoring alert has fired on this host.\n\n")
	fmt.Fprintf(&b, "Alert: %s\n", alert.Message)
	fmt.Fprintf(&b, "Metric: %s\n", alert.Metric)
	fmt.Fprintf(&b, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "Current value: %g\n", alert.CurrentValue)
	fmt.Fprintf(&b, "Threshold: %g\n", alert.Threshold)
	fmt.Fprintf(&b, "Fired at: %s\n", alert.Timestamp.Format(time.RFC3339))
	b.WriteString("\nDiagnose the likely cause and propose remediation actions.")
	return b.String()
}

// parseAnalysis extracts the structured portion of a model response,
// tolerating markdown code fences and surrounding prose.
func parseAnalysis(raw string) (*Analysis, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &analysis); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}
	return &analysis, nil
}
