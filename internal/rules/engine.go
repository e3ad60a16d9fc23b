package rules

import (
	"fmt"
	"sync"
	"time"

	"github.com/goshops-com/opsagent/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Rule describes the rule portion of a violation: what fired and why.
// Message is stable for a given (metric, severity, threshold) so that
// repeated violations of the same condition deduplicate downstream.
type Rule struct {
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Type     ViolationType `json:"type"`
	Value    float64       `json:"value"` // threshold value, or rate per hour for rate rules
}

// Violation is the engine's output contract to the alert manager. It is
// produced fresh every evaluation cycle and never persisted directly.
type Violation struct {
	Metric       string    `json:"metric"`
	CurrentValue float64   `json:"currentValue"`
	Rule         Rule      `json:"rule"`
	Timestamp    time.Time `json:"timestamp"`
}

// Engine evaluates snapshots against the loaded rule set. Its only
// mutable state is the sustained-condition tracker; one engine must not
// be evaluated concurrently from two goroutines without external
// serialization.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	// violatingSince, keyed by metric path, for sustained rules.
	sustained map[string]time.Time

	now func() time.Time
}

// NewEngine creates an engine with the given rule set.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:       cfg,
		sustained: make(map[string]time.Time),
		now:       time.Now,
	}
}

// LoadRules replaces the active rule set wholesale. Sustained state is
// kept for metric paths that still carry a sustained rule and dropped
// for the rest, so a reload never corrupts in-flight duration tracking.
func (e *Engine) LoadRules(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	keep := sustainedPaths(cfg)
	for path := range e.sustained {
		if _, ok := keep[path]; !ok {
			delete(e.sustained, path)
		}
	}
	e.cfg = cfg

	log.Info().Int("sustainedTracked", len(e.sustained)).Msg("rule set replaced")
}

// Evaluate checks one snapshot against the rule set and returns every
// violation in stable family order: cpu, memory, disk, network,
// processes. It never fails; malformed or absent sub-rules are skipped.
func (e *Engine) Evaluate(snapshot metrics.Snapshot) []Violation {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var violations []Violation

	violations = append(violations, e.evaluateCPU(snapshot.CPU, now)...)
	violations = append(violations, e.evaluateMemory(snapshot.Memory, now)...)
	violations = append(violations, e.evaluateDisk(snapshot.Disk, now)...)
	violations = append(violations, e.evaluateNetwork(snapshot.Network, now)...)
	violations = append(violations, e.evaluateProcesses(snapshot.Processes, now)...)

	return violations
}

func (e *Engine) evaluateCPU(cpu *metrics.CPUMetrics, now time.Time) []Violation {
	rules := e.cfg.CPU
	if rules == nil || cpu == nil {
		return nil
	}

	var out []Violation
	if v := checkThreshold("cpu.usage", "CPU usage", "%", cpu.UsagePercent, rules.Threshold, false, now); v != nil {
		out = append(out, *v)
	}
	if rules.LoadAverage != nil && len(cpu.LoadAverage) > 0 {
		if v := checkThreshold("cpu.loadAverage.1min", "Load average (1m)", "", cpu.LoadAverage[0], *rules.LoadAverage, false, now); v != nil {
			out = append(out, *v)
		}
	}
	if rules.Temperature != nil && cpu.TemperatureC != nil {
		if v := checkThreshold("cpu.temperature", "CPU temperature", "°C", *cpu.TemperatureC, *rules.Temperature, false, now); v != nil {
			out = append(out, *v)
		}
	}
	if v := e.checkSustained("cpu.usage", "CPU usage", cpu.UsagePercent, rules.Sustained, now); v != nil {
		out = append(out, *v)
	}
	return out
}

func (e *Engine) evaluateMemory(mem *metrics.MemoryMetrics, now time.Time) []Violation {
	rules := e.cfg.Memory
	if rules == nil || mem == nil {
		return nil
	}

	var out []Violation
	if v := checkThreshold("memory.usedPercent", "Memory usage", "%", mem.UsedPercent, rules.Threshold, false, now); v != nil {
		out = append(out, *v)
	}
	if rules.AvailablePercent != nil {
		if v := checkThreshold("memory.availablePercent", "Available memory", "%", mem.AvailablePercent, *rules.AvailablePercent, true, now); v != nil {
			out = append(out, *v)
		}
	}
	if rules.SwapPercent != nil && mem.SwapPercent != nil {
		if v := checkThreshold("memory.swapPercent", "Swap usage", "%", *mem.SwapPercent, *rules.SwapPercent, false, now); v != nil {
			out = append(out, *v)
		}
	}
	if v := e.checkSustained("memory.usedPercent", "Memory usage", mem.UsedPercent, rules.Sustained, now); v != nil {
		out = append(out, *v)
	}
	return out
}

func (e *Engine) evaluateDisk(disk *metrics.DiskMetrics, now time.Time) []Violation {
	rules := e.cfg.Disk
	if rules == nil || disk == nil {
		return nil
	}

	var out []Violation
	if rules.PerMount {
		for _, mount := range disk.Mounts {
			metric := "disk.mount." + mount.Mountpoint
			label := fmt.Sprintf("Disk usage on %s", mount.Mountpoint)
			if v := checkThreshold(metric, label, "%", mount.UsedPercent, rules.Threshold, false, now); v != nil {
				out = append(out, *v)
			}
		}
	} else {
		if v := checkThreshold("disk.usedPercent", "Disk usage", "%", disk.UsedPercent, rules.Threshold, false, now); v != nil {
			out = append(out, *v)
		}
	}

	if rules.Growth != nil && disk.GrowthPercentPerHour != nil {
		if v := checkRate("disk.growthRate", "Disk growth", *disk.GrowthPercentPerHour, *rules.Growth, now); v != nil {
			out = append(out, *v)
		}
	}
	if v := e.checkSustained("disk.usedPercent", "Disk usage", disk.UsedPercent, rules.Sustained, now); v != nil {
		out = append(out, *v)
	}
	return out
}

func (e *Engine) evaluateNetwork(network *metrics.NetworkMetrics, now time.Time) []Violation {
	rules := e.cfg.Network
	if rules == nil || network == nil {
		return nil
	}

	var out []Violation
	if rules.ErrorRate != nil && network.ErrorsPerHour != nil {
		if v := checkRate("network.errorRate", "Network errors", *network.ErrorsPerHour, *rules.ErrorRate, now); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func (e *Engine) evaluateProcesses(procs *metrics.ProcessMetrics, now time.Time) []Violation {
	rules := e.cfg.Processes
	if rules == nil || procs == nil {
		return nil
	}

	var out []Violation
	if rules.Count != nil {
		if v := checkThreshold("processes.count", "Process count", "", float64(procs.Count), *rules.Count, false, now); v != nil {
			out = append(out, *v)
		}
	}
	if rules.FileDescriptors != nil && procs.FDUsagePercent != nil {
		if v := checkThreshold("processes.fileDescriptors", "File descriptor usage", "%", *procs.FDUsagePercent, *rules.FileDescriptors, false, now); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// checkThreshold evaluates simple warning/critical bounds. Critical
// wins over warning for the same metric in the same cycle. Comparisons
// are inclusive on the violating side: at-or-above by default,
// at-or-below when below is set (e.g. available memory).
func checkThreshold(metric, label, unit string, value float64, t Threshold, below bool, now time.Time) *Violation {
	exceeds := func(threshold float64) bool {
		if below {
			return value <= threshold
		}
		return value >= threshold
	}

	direction := "at or above"
	if below {
		direction = "at or below"
	}

	build := func(severity Severity, threshold float64) *Violation {
		return &Violation{
			Metric:       metric,
			CurrentValue: value,
			Rule: Rule{
				Severity: severity,
				Message:  fmt.Sprintf("%s %s %.5g%s", label, direction, threshold, unit),
				Type:     TypeThreshold,
				Value:    threshold,
			},
			Timestamp: now,
		}
	}

	if t.Critical != nil && exceeds(*t.Critical) {
		return build(SeverityCritical, *t.Critical)
	}
	if t.Warning != nil && exceeds(*t.Warning) {
		return build(SeverityWarning, *t.Warning)
	}
	return nil
}

// checkSustained tracks how long value has stayed at or above the
// sustained threshold and emits a violation every cycle once the
// configured duration has elapsed. Dropping below the threshold resets
// the timer. Must be called with e.mu held.
func (e *Engine) checkSustained(metric, label string, value float64, rule *SustainedRule, now time.Time) *Violation {
	if rule == nil || rule.Duration <= 0 {
		return nil
	}

	if value < rule.Threshold {
		delete(e.sustained, metric)
		return nil
	}

	since, ok := e.sustained[metric]
	if !ok {
		e.sustained[metric] = now
		return nil
	}

	duration := time.Duration(rule.Duration) * time.Second
	if now.Sub(since) < duration {
		return nil
	}

	severity := rule.Severity
	if severity == "" {
		severity = SeverityWarning
	}

	return &Violation{
		Metric:       metric,
		CurrentValue: value,
		Rule: Rule{
			Severity: severity,
			Message:  fmt.Sprintf("%s sustained at or above %.5g%% for %ds", label, rule.Threshold, rule.Duration),
			Type:     TypeSustained,
			Value:    rule.Threshold,
		},
		Timestamp: now,
	}
}

func checkRate(metric, label string, rate float64, rule RateRule, now time.Time) *Violation {
	if rate < rule.RatePerHour {
		return nil
	}

	severity := rule.Severity
	if severity == "" {
		severity = SeverityWarning
	}

	return &Violation{
		Metric:       metric,
		CurrentValue: rate,
		Rule: Rule{
			Severity: severity,
			Message:  fmt.Sprintf("%s at or above %.5g per hour", label, rule.RatePerHour),
			Type:     TypeRate,
			Value:    rule.RatePerHour,
		},
		Timestamp: now,
	}
}

// sustainedPaths returns the metric paths carrying a sustained rule in
// the given config.
func sustainedPaths(cfg Config) map[string]struct{} {
	paths := make(map[string]struct{})
	if cfg.CPU != nil && cfg.CPU.Sustained != nil {
		paths["cpu.usage"] = struct{}{}
	}
	if cfg.Memory != nil && cfg.Memory.Sustained != nil {
		paths["memory.usedPercent"] = struct{}{}
	}
	if cfg.Disk != nil && cfg.Disk.Sustained != nil {
		paths["disk.usedPercent"] = struct{}{}
	}
	return paths
}
