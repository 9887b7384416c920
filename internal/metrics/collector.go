// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpAnalysis    = "analysis"
	OpAgent       = "agent"
	OpExtraction  = "extraction"
	OpLLMGenerate = "llm_generate"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token totals, only for LLM operations
	InputTokens  int64
	OutputTokens int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Name         string
	Count        int64
	TotalTimeMs  int64
	AvgTimeMs    float64
	MinTimeMs    int64
	MaxTimeMs    int64
	InputTokens  int64
	OutputTokens int64
}

// Snapshot represents collected statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Operations    []OperationSnapshot // sorted by name
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// record must be called with the write lock held.
func (c *Collector) record(op string, duration time.Duration) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	m.Count++
	m.TotalTime += duration
	m.MinTime = min(m.MinTime, duration)
	m.MaxTime = max(m.MaxTime, duration)
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(op, duration)
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.record(op, duration)
	m.InputTokens += inputTokens
	m.OutputTokens += outputTokens
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ops := make([]OperationSnapshot, 0, len(c.ops))
	for name, m := range c.ops {
		ops = append(ops, OperationSnapshot{
			Name:         name,
			Count:        m.Count,
			TotalTimeMs:  m.TotalTime.Milliseconds(),
			AvgTimeMs:    float64(m.TotalTime.Milliseconds()) / float64(m.Count),
			MinTimeMs:    m.MinTime.Milliseconds(),
			MaxTimeMs:    m.MaxTime.Milliseconds(),
			InputTokens:  m.InputTokens,
			OutputTokens: m.OutputTokens,
		})
	}
	slices.SortFunc(ops, func(a, b OperationSnapshot) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Operations:    ops,
	}
}

// Operation returns the snapshot for one operation, if recorded.
func (s Snapshot) Operation(name string) (OperationSnapshot, bool) {
	for _, op := range s.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return OperationSnapshot{}, false
}
