package monitor

import (
	"sync"
	"time"
)

// MaxConsecutiveFailures is the number of failed analysis cycles tolerated before
// the service reports itself degraded.
const MaxConsecutiveFailures = 3

// AnalysisMonitor tracks the health of the periodic analysis cycle.
type AnalysisMonitor struct {
	mu                sync.RWMutex
	staleAfter        time.Duration
	lastSuccess       time.Time
	lastAttempt       time.Time
	lastDuration      time.Duration
	sensorsAnalyzed   int
	consecutiveErrors int
	lastError         string
}

// NewAnalysisMonitor creates a monitor that turns unhealthy when no cycle
// succeeded within staleAfter.
func NewAnalysisMonitor(staleAfter time.Duration) *AnalysisMonitor {
	return &AnalysisMonitor{staleAfter: staleAfter}
}

// RecordSuccess records a cycle in which every sensor was analyzed.
func (am *AnalysisMonitor) RecordSuccess(sensors int, d time.Duration) {
	am.mu.Lock()
	defer am.mu.Unlock()
	now := time.Now()
	am.lastSuccess = now
	am.lastAttempt = now
	am.lastDuration = d
	am.sensorsAnalyzed = sensors
	am.consecutiveErrors = 0
	am.lastError = ""
}

// RecordFailure records a failed cycle.
func (am *AnalysisMonitor) RecordFailure(err error) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.lastAttempt = time.Now()
	am.consecutiveErrors++
	if err != nil {
		am.lastError = err.Error()
	}
}

// IsHealthy returns true if analysis is keeping up.
// Unhealthy conditions:
//   - Never succeeded
//   - No success within staleAfter
//   - More than MaxConsecutiveFailures consecutive failures
func (am *AnalysisMonitor) IsHealthy() bool {
	am.mu.RLock()
	defer am.mu.RUnlock()
	return am.healthy()
}

func (am *AnalysisMonitor) healthy() bool {
	if am.lastSuccess.IsZero() {
		return false
	}
	if am.staleAfter > 0 && time.Since(am.lastSuccess) > am.staleAfter {
		return false
	}
	return am.consecutiveErrors <= MaxConsecutiveFailures
}

// AnalysisStatus is the analysis part of the health check.
type AnalysisStatus struct {
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	LastDuration      string `json:"last_duration,omitempty"`
	SensorsAnalyzed   int    `json:"sensors_analyzed"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns current analysis status for health checks.
func (am *AnalysisMonitor) Status() AnalysisStatus {
	am.mu.RLock()
	defer am.mu.RUnlock()

	status := AnalysisStatus{
		Healthy:         am.healthy(),
		SensorsAnalyzed: am.sensorsAnalyzed,
	}

	if !am.lastSuccess.IsZero() {
		status.LastSuccess = am.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(am.lastSuccess).Round(time.Second).String()
		status.LastDuration = am.lastDuration.Round(time.Millisecond).String()
	}
	if !am.lastAttempt.IsZero() {
		status.LastAttempt = am.lastAttempt.Format(time.RFC3339)
	}
	if am.consecutiveErrors > 0 {
		status.ConsecutiveErrors = am.consecutiveErrors
		status.LastError = am.lastError
	}

	return status
}
