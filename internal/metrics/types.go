// Package metrics defines the host metric snapshot consumed by the rule
// engine and provides a gopsutil-backed collector that produces it.
package metrics

import "time"

// Snapshot is one immutable reading of host state at a point in time.
// Any section may be nil when the collector could not sample it; rules
// for absent sections silently produce no violations.
type Snapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	CPU       *CPUMetrics    `json:"cpu,omitempty"`
	Memory    *MemoryMetrics `json:"memory,omitempty"`
	Disk      *DiskMetrics   `json:"disk,omitempty"`
	Network   *NetworkMetrics `json:"network,omitempty"`
	Processes *ProcessMetrics `json:"processes,omitempty"`
}

// CPUMetrics holds processor utilisation for the host.
type CPUMetrics struct {
	UsagePercent float64   `json:"usagePercent"`
	Count        int       `json:"count"`
	LoadAverage  []float64 `json:"loadAverage,omitempty"` // 1, 5, 15 minute
	TemperatureC *float64  `json:"temperatureC,omitempty"`
}

// MemoryMetrics holds memory utilisation for the host.
type MemoryMetrics struct {
	TotalBytes       int64    `json:"totalBytes"`
	UsedBytes        int64    `json:"usedBytes"`
	UsedPercent      float64  `json:"usedPercent"`
	AvailablePercent float64  `json:"availablePercent"`
	SwapPercent      *float64 `json:"swapPercent,omitempty"`
}

// MountUsage holds utilisation for a single mounted filesystem.
type MountUsage struct {
	Mountpoint  string  `json:"mountpoint"`
	Device      string  `json:"device"`
	Filesystem  string  `json:"filesystem"`
	TotalBytes  int64   `json:"totalBytes"`
	UsedBytes   int64   `json:"usedBytes"`
	UsedPercent float64 `json:"usedPercent"`
}

// DiskMetrics holds filesystem utilisation. UsedPercent is the root
// filesystem figure; Mounts carries every mount for per-mount rules.
// GrowthPercentPerHour is a rolling measure derived from consecutive
// samples and is absent on the first cycle.
type DiskMetrics struct {
	UsedPercent          float64      `json:"usedPercent"`
	Mounts               []MountUsage `json:"mounts,omitempty"`
	GrowthPercentPerHour *float64     `json:"growthPercentPerHour,omitempty"`
}

// NetworkMetrics holds aggregate interface counters. ErrorsPerHour is a
// rolling measure derived from consecutive samples.
type NetworkMetrics struct {
	RxBytes       uint64   `json:"rxBytes"`
	TxBytes       uint64   `json:"txBytes"`
	ErrorsTotal   uint64   `json:"errorsTotal"`
	ErrorsPerHour *float64 `json:"errorsPerHour,omitempty"`
}

// ProcessMetrics holds process table figures. FDUsagePercent is only
// available on platforms exposing file descriptor accounting.
type ProcessMetrics struct {
	Count          int      `json:"count"`
	FDUsagePercent *float64 `json:"fdUsagePercent,omitempty"`
}
