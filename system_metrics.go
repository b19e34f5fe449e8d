package monitor

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// memStatsCache shares one runtime.ReadMemStats call between the gauges
// exported in the same report cycle.
type memStatsCache struct {
	mu     sync.Mutex
	ms     runtime.MemStats
	readAt time.Time
	maxAge time.Duration
}

func (c *memStatsCache) get() runtime.MemStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.readAt) > c.maxAge {
		runtime.ReadMemStats(&c.ms)
		c.readAt = time.Now()
	}
	return c.ms
}

// SystemMetrics returns gauges for Go runtime and process statistics keyed
// by name.
func SystemMetrics() map[string]Metric {
	cache := &memStatsCache{maxAge: time.Second}
	mem := func(f func(ms *runtime.MemStats) uint64) FuncGauge {
		return func() int64 {
			ms := cache.get()
			return int64(f(&ms))
		}
	}

	return map[string]Metric{
		"memory.alloc_bytes":       mem(func(ms *runtime.MemStats) uint64 { return ms.Alloc }),
		"memory.sys_bytes":         mem(func(ms *runtime.MemStats) uint64 { return ms.Sys }),
		"memory.heap_alloc_bytes":  mem(func(ms *runtime.MemStats) uint64 { return ms.HeapAlloc }),
		"memory.heap_inuse_bytes":  mem(func(ms *runtime.MemStats) uint64 { return ms.HeapInuse }),
		"memory.heap_sys_bytes":    mem(func(ms *runtime.MemStats) uint64 { return ms.HeapSys }),
		"memory.stack_inuse_bytes": mem(func(ms *runtime.MemStats) uint64 { return ms.StackInuse }),
		"memory.stack_sys_bytes":   mem(func(ms *runtime.MemStats) uint64 { return ms.StackSys }),
		"gc.runs_total":            mem(func(ms *runtime.MemStats) uint64 { return uint64(ms.NumGC) }),
		"gc.pause_total_ns":        mem(func(ms *runtime.MemStats) uint64 { return ms.PauseTotalNs }),
		"goroutines":               FuncGauge(func() int64 { return int64(runtime.NumGoroutine()) }),
		"memory.rss_bytes":         FuncGauge(func() int64 { return int64(getProcessRSS()) }),
		"file_descriptors":         FuncGauge(func() int64 { return int64(getOpenFileDescriptors()) }),
	}
}

// RegisterSystemMetrics adds SystemMetrics to reg under "system.". Names
// that are already taken are reported and skipped.
func RegisterSystemMetrics(reg *Registry) error {
	var err error
	for name, m := range SystemMetrics() {
		err = multierr.Append(err, reg.Add(JoinPath("system", name), m))
	}
	return err
}

// getProcessRSS returns the RSS (Resident Set Size) memory usage in bytes
func getProcessRSS() uint64 {
	// Try to read from /proc/self/status on Linux
	if data, err := os.ReadFile("/proc/self/status"); err == nil {
		lines := strings.Split(string(data), "\n")
		for _, line := range lines {
			if strings.HasPrefix(line, "VmRSS:") {
				fields := strings.Fields(line)
				if len(fields) >= 2 {
					if kb, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
						return kb * 1024 // Convert KB to bytes
					}
				}
			}
		}
	}
	return 0
}

// getOpenFileDescriptors returns the number of open file descriptors
func getOpenFileDescriptors() uint64 {
	// Try to count files in /proc/self/fd on Linux
	if entries, err := os.ReadDir("/proc/self/fd"); err == nil {
		return uint64(len(entries))
	}
	return 0
}
