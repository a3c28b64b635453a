package observability

import (
	"sync"
	"time"

	"github.com/genflow-ai/genflow/types"
)

// TokenUsageTracker accumulates per-node and total token usage during a
// workflow execution. Safe for concurrent use.
type TokenUsageTracker struct {
	mu        sync.Mutex
	nodeUsage map[string]types.TokenUsage
	total     *types.TokenUsage
}

// NewTokenUsageTracker creates an empty tracker.
func NewTokenUsageTracker() *TokenUsageTracker {
	return &TokenUsageTracker{
		nodeUsage: make(map[string]types.TokenUsage),
	}
}

// Record stores the usage for a node and adds it to the running total.
// Recording the same node twice keeps the latest per-node value but still
// accumulates both into the total.
func (t *TokenUsageTracker) Record(nodeName string, usage types.TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nodeUsage[nodeName] = usage
	if t.total == nil {
		total := usage
		t.total = &total
	} else {
		t.total.Add(usage)
	}
}

// Total returns the aggregated usage across all recorded nodes, or nil if
// nothing was recorded.
func (t *TokenUsageTracker) Total() *types.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total == nil {
		return nil
	}
	total := *t.total
	return &total
}

// NodeUsage returns the usage for a node, or false if not recorded.
func (t *TokenUsageTracker) NodeUsage(nodeName string) (types.TokenUsage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	usage, ok := t.nodeUsage[nodeName]
	return usage, ok
}

// AllNodeUsage returns a copy of all per-node usage.
func (t *TokenUsageTracker) AllNodeUsage() map[string]types.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]types.TokenUsage, len(t.nodeUsage))
	for name, usage := range t.nodeUsage {
		out[name] = usage
	}
	return out
}

// Reset clears all accumulated usage.
func (t *TokenUsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodeUsage = make(map[string]types.TokenUsage)
	t.total = nil
}

// NodeTimer measures wall-clock durations per node.
type NodeTimer struct {
	mu        sync.Mutex
	durations map[string]time.Duration
}

// NewNodeTimer creates an empty timer.
func NewNodeTimer() *NodeTimer {
	return &NodeTimer{durations: make(map[string]time.Duration)}
}

// Measure runs fn and records how long it took under nodeName.
func (t *NodeTimer) Measure(nodeName string, fn func()) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		t.mu.Lock()
		t.durations[nodeName] = elapsed
		t.mu.Unlock()
	}()
	fn()
}

// Record stores an externally measured duration.
func (t *NodeTimer) Record(nodeName string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.durations[nodeName] = d
}

// Durations returns a copy of the recorded durations.
func (t *NodeTimer) Durations() map[string]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]time.Duration, len(t.durations))
	for name, d := range t.durations {
		out[name] = d
	}
	return out
}

// Total returns the sum of all recorded durations.
func (t *NodeTimer) Total() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total time.Duration
	for _, d := range t.durations {
		total += d
	}
	return total
}
