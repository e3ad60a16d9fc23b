package metrics

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	gocpu "github.com/shirou/gopsutil/v4/cpu"
	godisk "github.com/shirou/gopsutil/v4/disk"
	goload "github.com/shirou/gopsutil/v4/load"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gonet "github.com/shirou/gopsutil/v4/net"
	goproc "github.com/shirou/gopsutil/v4/process"
	gosensors "github.com/shirou/gopsutil/v4/sensors"
)

// System call wrappers for testing
var (
	cpuCounts      = gocpu.CountsWithContext
	cpuPercent     = gocpu.PercentWithContext
	loadAvg        = goload.AvgWithContext
	virtualMemory  = gomem.VirtualMemoryWithContext
	swapMemory     = gomem.SwapMemoryWithContext
	diskPartitions = godisk.PartitionsWithContext
	diskUsage      = godisk.UsageWithContext
	netIOCounters  = gonet.IOCountersWithContext
	processPids    = goproc.PidsWithContext
	sensorTemps    = gosensors.TemperaturesWithContext
	nowFn          = time.Now
)

const collectTimeout = 10 * time.Second

// Collector gathers point-in-time snapshots of host resource utilisation.
// It keeps the previous sample so rolling rates (disk growth, network
// errors per hour) can be derived; one Collector must not be used from
// two goroutines without external serialization.
type Collector struct {
	mu sync.Mutex

	prevDiskAt  time.Time
	prevDiskPct float64
	haveDisk    bool

	prevNetAt   time.Time
	prevNetErrs uint64
	haveNet     bool
}

// NewCollector returns a collector with no sampling history.
func NewCollector() *Collector {
	return &Collector{}
}

// Collect gathers a complete metric snapshot. Sections that cannot be
// sampled are left nil rather than failing the whole collection.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	collectCtx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	now := nowFn()
	snapshot := Snapshot{Timestamp: now}

	snapshot.CPU = collectCPU(collectCtx)
	snapshot.Memory = collectMemory(collectCtx)
	snapshot.Disk = collectDisk(collectCtx)
	snapshot.Network = collectNetwork(collectCtx)
	snapshot.Processes = collectProcesses(collectCtx)

	c.attachRates(&snapshot, now)

	return snapshot
}

// attachRates derives rolling per-hour rates from the previous sample.
// Each section keeps its own previous timestamp, so a cycle where one
// section failed to sample never skews the other's elapsed-time base.
func (c *Collector) attachRates(snapshot *Snapshot, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snapshot.Disk != nil {
		if elapsed := now.Sub(c.prevDiskAt).Hours(); c.haveDisk && elapsed > 0 {
			growth := (snapshot.Disk.UsedPercent - c.prevDiskPct) / elapsed
			snapshot.Disk.GrowthPercentPerHour = &growth
		}
		c.prevDiskAt = now
		c.prevDiskPct = snapshot.Disk.UsedPercent
		c.haveDisk = true
	}

	if snapshot.Network != nil {
		if elapsed := now.Sub(c.prevNetAt).Hours(); c.haveNet && elapsed > 0 && snapshot.Network.ErrorsTotal >= c.prevNetErrs {
			rate := float64(snapshot.Network.ErrorsTotal-c.prevNetErrs) / elapsed
			snapshot.Network.ErrorsPerHour = &rate
		}
		c.prevNetAt = now
		c.prevNetErrs = snapshot.Network.ErrorsTotal
		c.haveNet = true
	}
}

func collectCPU(ctx context.Context) *CPUMetrics {
	percentages, err := cpuPercent(ctx, time.Second, false)
	if err != nil || len(percentages) == 0 {
		return nil
	}

	usage := percentages[0]
	if usage < 0 {
		usage = 0
	}
	if usage > 100 {
		usage = 100
	}

	m := &CPUMetrics{UsagePercent: usage}

	if count, err := cpuCounts(ctx, true); err == nil {
		m.Count = count
	}
	if avg, err := loadAvg(ctx); err == nil && avg != nil {
		m.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	}
	if temp := collectCPUTemperature(ctx); temp != nil {
		m.TemperatureC = temp
	}

	return m
}

func collectCPUTemperature(ctx context.Context) *float64 {
	temps, err := sensorTemps(ctx)
	if err != nil {
		return nil
	}
	for _, sensor := range temps {
		key := strings.ToLower(sensor.SensorKey)
		if strings.Contains(key, "coretemp") || strings.Contains(key, "cpu") || strings.Contains(key, "k10temp") {
			t := sensor.Temperature
			return &t
		}
	}
	return nil
}

func collectMemory(ctx context.Context) *MemoryMetrics {
	memStats, err := virtualMemory(ctx)
	if err != nil || memStats == nil || memStats.Total == 0 {
		return nil
	}

	m := &MemoryMetrics{
		TotalBytes:       int64(memStats.Total),
		UsedBytes:        int64(memStats.Used),
		UsedPercent:      memStats.UsedPercent,
		AvailablePercent: float64(memStats.Available) / float64(memStats.Total) * 100,
	}

	if swap, err := swapMemory(ctx); err == nil && swap != nil && swap.Total > 0 {
		pct := swap.UsedPercent
		m.SwapPercent = &pct
	}

	return m
}

func collectDisk(ctx context.Context) *DiskMetrics {
	partitions, err := diskPartitions(ctx, false)
	if err != nil {
		return nil
	}

	m := &DiskMetrics{}
	seen := make(map[string]struct{}, len(partitions))

	for _, part := range partitions {
		if part.Mountpoint == "" {
			continue
		}
		if _, ok := seen[part.Mountpoint]; ok {
			continue
		}
		seen[part.Mountpoint] = struct{}{}

		usage, err := diskUsage(ctx, part.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}

		m.Mounts = append(m.Mounts, MountUsage{
			Mountpoint:  part.Mountpoint,
			Device:      part.Device,
			Filesystem:  part.Fstype,
			TotalBytes:  int64(usage.Total),
			UsedBytes:   int64(usage.Used),
			UsedPercent: usage.UsedPercent,
		})

		if part.Mountpoint == "/" {
			m.UsedPercent = usage.UsedPercent
		}
	}

	if len(m.Mounts) == 0 {
		return nil
	}

	sort.Slice(m.Mounts, func(i, j int) bool { return m.Mounts[i].Mountpoint < m.Mounts[j].Mountpoint })

	if m.UsedPercent == 0 {
		m.UsedPercent = m.Mounts[0].UsedPercent
	}

	return m
}

func collectNetwork(ctx context.Context) *NetworkMetrics {
	counters, err := netIOCounters(ctx, false)
	if err != nil || len(counters) == 0 {
		return nil
	}

	total := counters[0]
	return &NetworkMetrics{
		RxBytes:     total.BytesRecv,
		TxBytes:     total.BytesSent,
		ErrorsTotal: total.Errin + total.Errout,
	}
}

func collectProcesses(ctx context.Context) *ProcessMetrics {
	pids, err := processPids(ctx)
	if err != nil {
		return nil
	}

	m := &ProcessMetrics{Count: len(pids)}
	if fd := collectFDUsage(); fd != nil {
		m.FDUsagePercent = fd
	}
	return m
}
