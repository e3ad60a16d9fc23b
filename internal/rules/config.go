// Package rules evaluates metric snapshots against configurable
// thresholds, including stateful sustained-condition and rate rules.
package rules

// Severity classifies how serious a violation is.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ViolationType identifies which kind of rule produced a violation.
type ViolationType string

const (
	TypeThreshold ViolationType = "threshold"
	TypeSustained ViolationType = "sustained"
	TypeRate      ViolationType = "rate"
)

// Threshold holds optional warning/critical bounds. A nil field means
// the corresponding severity is not configured; an explicit zero is a
// valid threshold and must not be treated as unset.
type Threshold struct {
	Warning  *float64 `json:"warning,omitempty"`
	Critical *float64 `json:"critical,omitempty"`
}

// SustainedRule fires only after the value has stayed at or above
// Threshold for at least Duration seconds without interruption.
type SustainedRule struct {
	Threshold float64  `json:"threshold"`
	Duration  int      `json:"duration"` // seconds
	Severity  Severity `json:"severity,omitempty"`
}

// RateRule fires when a rolling per-hour measure exceeds RatePerHour.
type RateRule struct {
	RatePerHour float64  `json:"ratePerHour"`
	Severity    Severity `json:"severity,omitempty"`
}

// CPURules configures the cpu metric family. The embedded thresholds
// apply to cpu.usage.
type CPURules struct {
	Threshold
	LoadAverage *Threshold     `json:"loadAverage,omitempty"` // against the 1-minute average
	Temperature *Threshold     `json:"temperature,omitempty"`
	Sustained   *SustainedRule `json:"sustained,omitempty"`
}

// MemoryRules configures the memory metric family. The embedded
// thresholds apply to memory.usedPercent; AvailablePercent bounds are
// violated when the value drops to or below them.
type MemoryRules struct {
	Threshold
	AvailablePercent *Threshold     `json:"availablePercent,omitempty"`
	SwapPercent      *Threshold     `json:"swapPercent,omitempty"`
	Sustained        *SustainedRule `json:"sustained,omitempty"`
}

// DiskRules configures the disk metric family. The embedded thresholds
// apply to disk.usedPercent, or to every mount when PerMount is set.
type DiskRules struct {
	Threshold
	PerMount  bool           `json:"perMount,omitempty"`
	Growth    *RateRule      `json:"growth,omitempty"` // disk.growthRate, percent per hour
	Sustained *SustainedRule `json:"sustained,omitempty"`
}

// NetworkRules configures the network metric family.
type NetworkRules struct {
	ErrorRate *RateRule `json:"errorRate,omitempty"` // errors per hour
}

// ProcessRules configures the processes metric family.
type ProcessRules struct {
	Count           *Threshold `json:"count,omitempty"`
	FileDescriptors *Threshold `json:"fileDescriptors,omitempty"` // percent of system limit
}

// Config is the full rule set for one host. It is immutable once
// loaded; changes are applied by replacing the whole structure through
// Engine.LoadRules.
type Config struct {
	CPU       *CPURules     `json:"cpu,omitempty"`
	Memory    *MemoryRules  `json:"memory,omitempty"`
	Disk      *DiskRules    `json:"disk,omitempty"`
	Network   *NetworkRules `json:"network,omitempty"`
	Processes *ProcessRules `json:"processes,omitempty"`
}

// DefaultConfig returns the rule set used when no rules file exists.
func DefaultConfig() Config {
	f := func(v float64) *float64 { return &v }
	return Config{
		CPU: &CPURules{
			Threshold:   Threshold{Warning: f(80), Critical: f(95)},
			LoadAverage: &Threshold{Warning: f(4)},
			Sustained:   &SustainedRule{Threshold: 90, Duration: 300, Severity: SeverityCritical},
		},
		Memory: &MemoryRules{
			Threshold:        Threshold{Warning: f(85), Critical: f(95)},
			AvailablePercent: &Threshold{Warning: f(10)},
		},
		Disk: &DiskRules{
			Threshold: Threshold{Warning: f(80), Critical: f(90)},
			PerMount:  true,
			Growth:    &RateRule{RatePerHour: 5, Severity: SeverityWarning},
		},
		Network: &NetworkRules{
			ErrorRate: &RateRule{RatePerHour: 100, Severity: SeverityWarning},
		},
		Processes: &ProcessRules{
			Count:           &Threshold{Warning: f(1000)},
			FileDescriptors: &Threshold{Warning: f(80), Critical: f(95)},
		},
	}
}
