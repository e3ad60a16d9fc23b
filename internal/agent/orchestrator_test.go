package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goshops-com/opsagent/internal/agent/providers"
	"github.com/goshops-com/opsagent/internal/alerts"
	"github.com/goshops-com/opsagent/internal/rules"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type stubProvider struct {
	response string
	err      error
	lastReq  providers.ChatRequest
}

func (p *stubProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return &providers.ChatResponse{Content: p.response}, nil
}

func (p *stubProvider) Name() string { return "stub" }

type stubExecutor struct {
	executed []string
	fail     map[string]error
}

func (e *stubExecutor) Execute(_ context.Context, command string) (string, error) {
	e.executed = append(e.executed, command)
	if err, ok := e.fail[command]; ok {
		return "partial output", err
	}
	return "ok", nil
}

type recordingUpdater struct {
	alertID  string
	response string
	actions  []string
}

func (u *recordingUpdater) UpdateAlertWithAgentResponse(alertID, response string, actions []string) {
	u.alertID = alertID
	u.response = response
	u.actions = actions
}

type recordingStore struct {
	saved []*Result
	err   error
}

func (s *recordingStore) SaveAgentResult(_ context.Context, result *Result) error {
	s.saved = append(s.saved, result)
	return s.err
}

type recordingNotifier struct {
	analyses       int
	humanAlerts    int
	lastHumanWhy   string
	lastAnalysisID string
}

func (n *recordingNotifier) AnalysisProduced(alert *alerts.Alert, _ *Result) {
	n.analyses++
	n.lastAnalysisID = alert.ID
}

func (n *recordingNotifier) HumanAttentionRequired(_ *alerts.Alert, reason string) {
	n.humanAlerts++
	n.lastHumanWhy = reason
}

func testAlert() *alerts.Alert {
	return &alerts.Alert{
		ID:           "alert-1",
		Severity:     rules.SeverityCritical,
		Message:      "Memory usage at or above 95%",
		Metric:       "memory.usedPercent",
		CurrentValue: 97.2,
		Threshold:    95,
		Timestamp:    time.Now(),
	}
}

func analysisJSON(canAuto bool, actions string) string {
	return fmt.Sprintf(`{
		"analysis": "a runaway process is consuming memory",
		"canAutoRemediate": %t,
		"requiresHumanAttention": false,
		"actions": [%s]
	}`, canAuto, actions)
}

func TestHandleExecutesLowRiskActions(t *testing.T) {
	provider := &stubProvider{response: analysisJSON(true, `
		{"action": "list_processes", "description": "inspect memory hogs", "command": "ps aux --sort=-%mem | head -20", "risk": "low"},
		{"action": "clear_cache", "description": "drop page cache", "command": "sync", "risk": "low"}`)}
	executor := &stubExecutor{}
	updater := &recordingUpdater{}
	store := &recordingStore{}

	o := New(Policy{AutoRemediate: true, MaxAutoRisk: RiskLow}, provider, executor, updater, store, nil)
	result := o.Handle(context.Background(), testAlert())

	if len(result.ExecutionResults) != 2 {
		t.Fatalf("expected 2 execution results, got %d", len(result.ExecutionResults))
	}
	for i, r := range result.ExecutionResults {
		if r.Status() != StatusExecuted {
			t.Errorf("action %d: expected executed, got %s", i, r.Status())
		}
	}
	if len(executor.executed) != 2 {
		t.Fatalf("expected 2 commands run, got %d", len(executor.executed))
	}
	if updater.alertID != "alert-1" {
		t.Errorf("alert not updated: %q", updater.alertID)
	}
	if want := "list_processes [executed]"; updater.actions[0] != want {
		t.Errorf("action summary %q, want %q", updater.actions[0], want)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 persisted result, got %d", len(store.saved))
	}
}

func TestHighRiskRequiresApproval(t *testing.T) {
	provider := &stubProvider{response: analysisJSON(true, `
		{"action": "reboot", "description": "reboot the host", "command": "reboot", "risk": "high"}`)}
	executor := &stubExecutor{}

	o := New(Policy{AutoRemediate: true, MaxAutoRisk: RiskMedium}, provider, executor, &recordingUpdater{}, nil, nil)
	result := o.Handle(context.Background(), testAlert())

	r := result.ExecutionResults[0]
	if r.Status() != StatusSkipped {
		t.Fatalf("high risk above the cap must skip, got %s", r.Status())
	}
	if r.SkipReason != "requires approval" {
		t.Errorf("skip reason %q", r.SkipReason)
	}
	if len(executor.executed) != 0 {
		t.Error("gated command must never reach the executor")
	}
}

func TestAutoRemediateDisabledSkipsEverything(t *testing.T) {
	provider := &stubProvider{response: analysisJSON(true, `
		{"action": "noop", "description": "harmless", "command": "true", "risk": "low"}`)}
	executor := &stubExecutor{}

	o := New(Policy{AutoRemediate: false}, provider, executor, &recordingUpdater{}, nil, nil)
	result := o.Handle(context.Background(), testAlert())

	r := result.ExecutionResults[0]
	if r.Status() != StatusSkipped || r.SkipReason != "auto-remediation disabled" {
		t.Fatalf("got status %s reason %q", r.Status(), r.SkipReason)
	}
}

func TestAgentDeclinedAutoRemediation(t *testing.T) {
	provider := &stubProvider{response: analysisJSON(false, `
		{"action": "noop", "description": "harmless", "command": "true", "risk": "low"}`)}

	o := New(Policy{AutoRemediate: true}, provider, &stubExecutor{}, &recordingUpdater{}, nil, nil)
	result := o.Handle(context.Background(), testAlert())

	if got := result.ExecutionResults[0].SkipReason; got != "agent declined auto-remediation" {
		t.Fatalf("skip reason %q", got)
	}
}

func TestActionWithoutCommandIsSkipped(t *testing.T) {
	provider := &stubProvider{response: analysisJSON(true, `
		{"action": "investigate", "description": "check dashboards manually", "risk": "low"}`)}

	o := New(Policy{AutoRemediate: true}, provider, &stubExecutor{}, &recordingUpdater{}, nil, nil)
	result := o.Handle(context.Background(), testAlert())

	if got := result.ExecutionResults[0].SkipReason; got != "no command to execute" {
		t.Fatalf("skip reason %q", got)
	}
}

func TestFailureDoesNotAbortPlan(t *testing.T) {
	provider := &stubProvider{response: analysisJSON(true, `
		{"action": "first", "description": "fails", "command": "bad-cmd", "risk": "low"},
		{"action": "second", "description": "succeeds", "command": "good-cmd", "risk": "low"}`)}
	executor := &stubExecutor{fail: map[string]error{"bad-cmd": errors.New("exit status 1")}}

	o := New(Policy{AutoRemediate: true}, provider, executor, &recordingUpdater{}, nil, nil)
	result := o.Handle(context.Background(), testAlert())

	if len(result.ExecutionResults) != 2 {
		t.Fatalf("expected both actions attempted, got %d", len(result.ExecutionResults))
	}
	if result.ExecutionResults[0].Status() != StatusFailed {
		t.Errorf("first action: expected failed, got %s", result.ExecutionResults[0].Status())
	}
	if result.ExecutionResults[0].Output != "partial output" {
		t.Errorf("failed action must keep its output, got %q", result.ExecutionResults[0].Output)
	}
	if result.ExecutionResults[1].Status() != StatusExecuted {
		t.Errorf("second action: expected executed, got %s", result.ExecutionResults[1].Status())
	}
}

func TestProviderFailureYieldsTerminalResult(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused")}
	updater := &recordingUpdater{}
	store := &recordingStore{}
	notifier := &recordingNotifier{}

	o := New(Policy{AutoRemediate: true}, provider, &stubExecutor{}, updater, store, notifier)
	result := o.Handle(context.Background(), testAlert())

	if result.Response != nil {
		t.Error("failed analysis must leave Response nil")
	}
	if !strings.Contains(result.RawResponse, "analysis request failed") {
		t.Errorf("raw response %q", result.RawResponse)
	}
	if len(result.ExecutionResults) != 0 {
		t.Error("no actions may run without an analysis")
	}
	// The failure is still recorded and reported.
	if len(store.saved) != 1 {
		t.Fatalf("expected the failure persisted, got %d results", len(store.saved))
	}
	if notifier.analyses != 1 {
		t.Errorf("expected 1 analysis notification, got %d", notifier.analyses)
	}
	if updater.response == "" {
		t.Error("alert must still receive the raw failure text")
	}
}

func TestHumanAttentionNotification(t *testing.T) {
	provider := &stubProvider{response: `{
		"analysis": "disk controller errors suggest failing hardware",
		"canAutoRemediate": false,
		"requiresHumanAttention": true,
		"humanNotificationReason": "hardware replacement needed",
		"actions": []
	}`}
	notifier := &recordingNotifier{}

	o := New(Policy{AutoRemediate: true}, provider, &stubExecutor{}, &recordingUpdater{}, nil, notifier)
	o.Handle(context.Background(), testAlert())

	if notifier.humanAlerts != 1 {
		t.Fatalf("expected human attention notification, got %d", notifier.humanAlerts)
	}
	if notifier.lastHumanWhy != "hardware replacement needed" {
		t.Errorf("reason %q", notifier.lastHumanWhy)
	}
}

func TestParseAnalysisToleratesFences(t *testing.T) {
	raw := "Here is my assessment:\n```json\n" + analysisJSON(true, "") + "\n```\nLet me know if you need more."
	analysis, err := parseAnalysis(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !analysis.CanAutoRemediate {
		t.Error("canAutoRemediate lost in parsing")
	}
	if analysis.Analysis == "" {
		t.Error("analysis text lost in parsing")
	}
}

func TestParseAnalysisRejectsProse(t *testing.T) {
	if _, err := parseAnalysis("I could not determine the cause."); err == nil {
		t.Fatal("prose without JSON must fail to parse")
	}
	if _, err := parseAnalysis(""); err == nil {
		t.Fatal("empty response must fail to parse")
	}
}

func TestMissingRiskIsAssessedFromCommand(t *testing.T) {
	provider := &stubProvider{response: analysisJSON(true, `
		{"action": "wipe", "description": "remove data", "command": "rm -rf /var/lib/data"}`)}
	executor := &stubExecutor{}

	o := New(Policy{AutoRemediate: true, MaxAutoRisk: RiskLow}, provider, executor, &recordingUpdater{}, nil, nil)
	result := o.Handle(context.Background(), testAlert())

	r := result.ExecutionResults[0]
	if r.Status() != StatusSkipped {
		t.Fatalf("destructive command without a declared risk must be gated, got %s", r.Status())
	}
	if r.Action.Risk != RiskHigh {
		t.Errorf("assessed risk %s, want high", r.Action.Risk)
	}
}

func TestActionDurationUsesInjectedClock(t *testing.T) {
	origLogger := log.Logger
	defer func() { log.Logger = origLogger }()
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	provider := &stubProvider{response: analysisJSON(true, `
		{"action": "inspect", "description": "look around", "command": "ps aux", "risk": "low"}`)}

	o := New(Policy{AutoRemediate: true}, provider, &stubExecutor{}, &recordingUpdater{}, nil, nil)

	// Each reading advances the clock 5s, so the action's start and end
	// readings are exactly 5s apart.
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	o.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 5 * time.Second)
	}

	o.Handle(context.Background(), testAlert())

	if !strings.Contains(buf.String(), `"duration":5000`) {
		t.Errorf("logged duration must come from the same clock as the start reading, got log: %s", buf.String())
	}
}

func TestPromptCarriesAlertContext(t *testing.T) {
	provider := &stubProvider{response: analysisJSON(false, "")}
	o := New(Policy{}, provider, &stubExecutor{}, &recordingUpdater{}, nil, nil)
	o.Handle(context.Background(), testAlert())

	prompt := provider.lastReq.Messages[0].Content
	for _, want := range []string{"memory.usedPercent", "97.2", "95", "critical"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if provider.lastReq.System == "" {
		t.Error("system prompt must be set")
	}
}
