package rules

import (
	"testing"
	"time"

	"github.com/goshops-com/opsagent/internal/metrics"
)

func f(v float64) *float64 { return &v }

func newTestEngine(cfg Config, at time.Time) (*Engine, *time.Time) {
	current := at
	e := NewEngine(cfg)
	e.now = func() time.Time { return current }
	return e, &current
}

func snapshotWithCPU(usage float64) metrics.Snapshot {
	return metrics.Snapshot{CPU: &metrics.CPUMetrics{UsagePercent: usage}}
}

func TestCriticalWinsOverWarning(t *testing.T) {
	cfg := Config{CPU: &CPURules{Threshold: Threshold{Warning: f(80), Critical: f(95)}}}
	e, _ := newTestEngine(cfg, time.Now())

	violations := e.Evaluate(snapshotWithCPU(97))
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	v := violations[0]
	if v.Rule.Severity != SeverityCritical {
		t.Errorf("expected critical severity, got %s", v.Rule.Severity)
	}
	if v.Rule.Value != 95 {
		t.Errorf("expected threshold 95, got %g", v.Rule.Value)
	}
	if v.CurrentValue != 97 {
		t.Errorf("expected current value 97, got %g", v.CurrentValue)
	}
}

func TestThresholdIsInclusive(t *testing.T) {
	cfg := Config{CPU: &CPURules{Threshold: Threshold{Warning: f(80)}}}
	e, _ := newTestEngine(cfg, time.Now())

	if got := e.Evaluate(snapshotWithCPU(80)); len(got) != 1 {
		t.Fatalf("value equal to threshold must violate, got %d violations", len(got))
	}
	if got := e.Evaluate(snapshotWithCPU(79.99)); len(got) != 0 {
		t.Fatalf("value below threshold must not violate, got %d violations", len(got))
	}
}

func TestExplicitZeroThresholdIsActive(t *testing.T) {
	cfg := Config{Memory: &MemoryRules{AvailablePercent: &Threshold{Warning: f(0)}}}
	e, _ := newTestEngine(cfg, time.Now())

	snapshot := metrics.Snapshot{Memory: &metrics.MemoryMetrics{UsedPercent: 50, AvailablePercent: 0}}
	violations := e.Evaluate(snapshot)
	if len(violations) != 1 {
		t.Fatalf("expected available-memory violation at zero, got %d", len(violations))
	}
	v := violations[0]
	if v.Metric != "memory.availablePercent" {
		t.Errorf("unexpected metric %q", v.Metric)
	}
	if v.CurrentValue != 0 {
		t.Errorf("expected current value 0, got %g", v.CurrentValue)
	}
	if v.Rule.Severity != SeverityWarning {
		t.Errorf("expected warning, got %s", v.Rule.Severity)
	}
}

func TestAvailableMemoryViolatesBelowThreshold(t *testing.T) {
	cfg := Config{Memory: &MemoryRules{AvailablePercent: &Threshold{Critical: f(5)}}}
	e, _ := newTestEngine(cfg, time.Now())

	snapshot := metrics.Snapshot{Memory: &metrics.MemoryMetrics{AvailablePercent: 3}}
	violations := e.Evaluate(snapshot)
	if len(violations) != 1 {
		t.Fatalf("expected violation when available memory is low, got %d", len(violations))
	}

	snapshot.Memory.AvailablePercent = 40
	if got := e.Evaluate(snapshot); len(got) != 0 {
		t.Fatalf("plenty of available memory must not violate, got %d", len(got))
	}
}

func TestPerMountDiskViolations(t *testing.T) {
	cfg := Config{Disk: &DiskRules{Threshold: Threshold{Warning: f(80)}, PerMount: true}}
	e, _ := newTestEngine(cfg, time.Now())

	snapshot := metrics.Snapshot{Disk: &metrics.DiskMetrics{
		UsedPercent: 85,
		Mounts: []metrics.MountUsage{
			{Mountpoint: "/", UsedPercent: 85},
			{Mountpoint: "/data", UsedPercent: 50},
			{Mountpoint: "/var", UsedPercent: 91},
		},
	}}

	violations := e.Evaluate(snapshot)
	if len(violations) != 2 {
		t.Fatalf("expected 2 per-mount violations, got %d", len(violations))
	}
	if violations[0].Metric != "disk.mount./" {
		t.Errorf("unexpected metric %q", violations[0].Metric)
	}
	if violations[1].Metric != "disk.mount./var" {
		t.Errorf("unexpected metric %q", violations[1].Metric)
	}
}

func TestLoadAverageUsesOneMinute(t *testing.T) {
	cfg := Config{CPU: &CPURules{LoadAverage: &Threshold{Warning: f(4)}}}
	e, _ := newTestEngine(cfg, time.Now())

	snapshot := metrics.Snapshot{CPU: &metrics.CPUMetrics{
		UsagePercent: 10,
		LoadAverage:  []float64{6.2, 1.0, 0.5},
	}}
	violations := e.Evaluate(snapshot)
	if len(violations) != 1 {
		t.Fatalf("expected load average violation, got %d", len(violations))
	}
	if violations[0].Metric != "cpu.loadAverage.1min" {
		t.Errorf("unexpected metric %q", violations[0].Metric)
	}
	if violations[0].CurrentValue != 6.2 {
		t.Errorf("expected value 6.2, got %g", violations[0].CurrentValue)
	}
}

func TestMissingSectionsAreSkipped(t *testing.T) {
	e, _ := newTestEngine(DefaultConfig(), time.Now())

	if got := e.Evaluate(metrics.Snapshot{}); len(got) != 0 {
		t.Fatalf("empty snapshot must not violate, got %d violations", len(got))
	}
}

func TestRateRule(t *testing.T) {
	cfg := Config{Network: &NetworkRules{ErrorRate: &RateRule{RatePerHour: 100, Severity: SeverityCritical}}}
	e, _ := newTestEngine(cfg, time.Now())

	rate := 150.0
	snapshot := metrics.Snapshot{Network: &metrics.NetworkMetrics{ErrorsPerHour: &rate}}
	violations := e.Evaluate(snapshot)
	if len(violations) != 1 {
		t.Fatalf("expected rate violation, got %d", len(violations))
	}
	v := violations[0]
	if v.Metric != "network.errorRate" || v.Rule.Type != TypeRate {
		t.Errorf("unexpected violation %+v", v)
	}
	if v.Rule.Severity != SeverityCritical {
		t.Errorf("expected critical, got %s", v.Rule.Severity)
	}

	// Without a derived rate the rule cannot apply.
	if got := e.Evaluate(metrics.Snapshot{Network: &metrics.NetworkMetrics{}}); len(got) != 0 {
		t.Fatalf("missing rate must not violate, got %d", len(got))
	}
}

func TestSustainedRequiresUninterruptedDuration(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := Config{CPU: &CPURules{Sustained: &SustainedRule{Threshold: 90, Duration: 300, Severity: SeverityCritical}}}
	e, now := newTestEngine(cfg, start)

	// First cycle above threshold starts tracking, no violation yet.
	if got := e.Evaluate(snapshotWithCPU(95)); len(got) != 0 {
		t.Fatalf("first cycle must only start tracking, got %d violations", len(got))
	}

	// Still inside the window.
	*now = start.Add(4 * time.Minute)
	if got := e.Evaluate(snapshotWithCPU(95)); len(got) != 0 {
		t.Fatalf("duration not yet met, got %d violations", len(got))
	}

	// Window elapsed.
	*now = start.Add(5 * time.Minute)
	violations := e.Evaluate(snapshotWithCPU(95))
	if len(violations) != 1 {
		t.Fatalf("expected sustained violation after duration, got %d", len(violations))
	}
	if violations[0].Rule.Type != TypeSustained {
		t.Errorf("expected sustained type, got %s", violations[0].Rule.Type)
	}

	// The condition keeps violating every cycle while it holds.
	*now = start.Add(6 * time.Minute)
	if got := e.Evaluate(snapshotWithCPU(95)); len(got) != 1 {
		t.Fatalf("sustained condition must re-violate each cycle, got %d", len(got))
	}

	// Dropping below resets the timer completely.
	*now = start.Add(7 * time.Minute)
	if got := e.Evaluate(snapshotWithCPU(50)); len(got) != 0 {
		t.Fatalf("value below threshold must not violate, got %d", len(got))
	}
	*now = start.Add(8 * time.Minute)
	if got := e.Evaluate(snapshotWithCPU(95)); len(got) != 0 {
		t.Fatalf("tracking must restart after a reset, got %d violations", len(got))
	}
}

func TestLoadRulesPreservesSustainedState(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sustained := &SustainedRule{Threshold: 90, Duration: 300}
	cfg := Config{
		CPU:    &CPURules{Sustained: sustained},
		Memory: &MemoryRules{Sustained: &SustainedRule{Threshold: 80, Duration: 300}},
	}
	e, now := newTestEngine(cfg, start)

	snapshot := metrics.Snapshot{
		CPU:    &metrics.CPUMetrics{UsagePercent: 95},
		Memory: &metrics.MemoryMetrics{UsedPercent: 85},
	}
	e.Evaluate(snapshot) // start tracking both paths

	// Reload: cpu keeps its sustained rule, memory loses it.
	e.LoadRules(Config{CPU: &CPURules{Sustained: sustained}})

	*now = start.Add(5 * time.Minute)
	violations := e.Evaluate(snapshot)
	if len(violations) != 1 {
		t.Fatalf("expected only the cpu sustained violation, got %d", len(violations))
	}
	if violations[0].Metric != "cpu.usage" {
		t.Errorf("unexpected metric %q", violations[0].Metric)
	}
}

func TestMessageIsStableAcrossValues(t *testing.T) {
	cfg := Config{CPU: &CPURules{Threshold: Threshold{Warning: f(80)}}}
	e, _ := newTestEngine(cfg, time.Now())

	first := e.Evaluate(snapshotWithCPU(81))
	second := e.Evaluate(snapshotWithCPU(99))
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one violation per cycle")
	}
	if first[0].Rule.Message != second[0].Rule.Message {
		t.Errorf("message must not depend on the current value: %q vs %q",
			first[0].Rule.Message, second[0].Rule.Message)
	}
}
