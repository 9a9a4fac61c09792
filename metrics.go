package callwatch

import (
	"runtime"
	"sync"
	"time"
)

// Metrics collects callwatch-specific operational counters.
type Metrics struct {
	mu                    sync.Mutex
	PollCycles            int64
	CyclesSkipped         int64
	CallsFetched          int64
	CallsProcessed        int64
	CallsSkipped          int64
	TranscriptionFailures int64
	AlertsSent            int64
	AlertFailures         int64
	StartedAt             time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{StartedAt: time.Now()}
}

// RecordCycle increments the poll cycle counter.
func (m *Metrics) RecordCycle() {
	m.mu.Lock()
	m.PollCycles++
	m.mu.Unlock()
}

// RecordCycleSkipped counts a cycle skipped because secrets are missing.
func (m *Metrics) RecordCycleSkipped() {
	m.mu.Lock()
	m.CyclesSkipped++
	m.mu.Unlock()
}

// RecordCallsFetched counts calls returned by the statistics fetch.
func (m *Metrics) RecordCallsFetched(n int) {
	m.mu.Lock()
	m.CallsFetched += int64(n)
	m.mu.Unlock()
}

// RecordCallProcessed counts a call that went through the full pipeline.
func (m *Metrics) RecordCallProcessed() {
	m.mu.Lock()
	m.CallsProcessed++
	m.mu.Unlock()
}

// RecordCallSkipped counts a call skipped as already seen.
func (m *Metrics) RecordCallSkipped() {
	m.mu.Lock()
	m.CallsSkipped++
	m.mu.Unlock()
}

// RecordTranscriptionFailure counts a failed Whisper request.
func (m *Metrics) RecordTranscriptionFailure() {
	m.mu.Lock()
	m.TranscriptionFailures++
	m.mu.Unlock()
}

// RecordAlertSent counts a delivered Telegram alert.
func (m *Metrics) RecordAlertSent() {
	m.mu.Lock()
	m.AlertsSent++
	m.mu.Unlock()
}

// RecordAlertFailure counts a Telegram alert that exhausted its retries.
func (m *Metrics) RecordAlertFailure() {
	m.mu.Lock()
	m.AlertFailures++
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time metrics report.
type MetricsSnapshot struct {
	PollCycles            int64   `json:"poll_cycles"`
	CyclesSkipped         int64   `json:"cycles_skipped"`
	CallsFetched          int64   `json:"calls_fetched"`
	CallsProcessed        int64   `json:"calls_processed"`
	CallsSkipped          int64   `json:"calls_skipped"`
	TranscriptionFailures int64   `json:"transcription_failures"`
	AlertsSent            int64   `json:"alerts_sent"`
	AlertFailures         int64   `json:"alert_failures"`
	UptimeSeconds         int     `json:"uptime_seconds"`
	Goroutines            int     `json:"goroutines"`
	HeapAllocMB           float64 `json:"heap_alloc_mb"`
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		PollCycles:            m.PollCycles,
		CyclesSkipped:         m.CyclesSkipped,
		CallsFetched:          m.CallsFetched,
		CallsProcessed:        m.CallsProcessed,
		CallsSkipped:          m.CallsSkipped,
		TranscriptionFailures: m.TranscriptionFailures,
		AlertsSent:            m.AlertsSent,
		AlertFailures:         m.AlertFailures,
		UptimeSeconds:         int(time.Since(m.StartedAt).Seconds()),
		Goroutines:            runtime.NumGoroutine(),
		HeapAllocMB:           float64(memStats.HeapAlloc) / (1024 * 1024),
	}
}
