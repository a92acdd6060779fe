package logger

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

type componentStat struct {
	warns  int64
	errors int64
}

// components holds per-component warn/error counters, keyed by component name.
var components sync.Map // map[string]*componentStat

func statFor(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&statFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&statFor(component).errors, 1)
}

// ComponentCounts is a point-in-time copy of the warn/error counters of one component.
type ComponentCounts struct {
	Component string
	Warns     int64
	Errors    int64
}

// Counts returns the warn/error counters of every component that has logged
// at least one warning or error, sorted by component name.
func Counts() []ComponentCounts {
	var out []ComponentCounts
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		out = append(out, ComponentCounts{
			Component: k.(string),
			Warns:     atomic.LoadInt64(&cs.warns),
			Errors:    atomic.LoadInt64(&cs.errors),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// StartReport begins periodic logging of runtime statistics and component
// counters until ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func logReport(log *Log) {
	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	memMB := int64(0)
	if vm, err := mem.VirtualMemory(); err == nil {
		memMB = int64(vm.Used) / 1024 / 1024
	}

	counters := map[string]map[string]int64{}
	for _, c := range Counts() {
		counters[c.Component] = map[string]int64{"warns": c.Warns, "errors": c.Errors}
	}

	log.WithComponent("report").WithFields(Fields{
		"goroutines":  runtime.NumGoroutine(),
		"cpu_percent": cpuPct,
		"memory_mb":   memMB,
		"components":  counters,
	}).Info("runtime report")
}
