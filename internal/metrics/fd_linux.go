//go:build linux

package metrics

import (
	"os"
	"strconv"
	"strings"
)

// collectFDUsage reads system-wide file descriptor usage from
// /proc/sys/fs/file-nr. Returns nil when the figure is unavailable.
func collectFDUsage() *float64 {
	data, err := os.ReadFile("/proc/sys/fs/file-nr")
	if err != nil {
		return nil
	}

	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return nil
	}

	allocated, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil
	}
	limit, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || limit <= 0 {
		return nil
	}

	pct := allocated / limit * 100
	return &pct
}
