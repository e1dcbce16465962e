package monitor

import (
	"errors"
	"testing"
	"time"
)

func TestAnalysisMonitor_RecordSuccess(t *testing.T) {
	am := NewAnalysisMonitor(time.Hour)
	am.RecordSuccess(3, 250*time.Millisecond)

	status := am.Status()
	if !status.Healthy {
		t.Error("Status should be healthy after success")
	}
	if status.SensorsAnalyzed != 3 {
		t.Errorf("SensorsAnalyzed = %d, want 3", status.SensorsAnalyzed)
	}
	if status.LastDuration != "250ms" {
		t.Errorf("LastDuration = %q, want 250ms", status.LastDuration)
	}
	if status.ConsecutiveErrors != 0 || status.LastError != "" {
		t.Errorf("unexpected error state: %+v", status)
	}
}

func TestAnalysisMonitor_RecordFailure(t *testing.T) {
	am := NewAnalysisMonitor(time.Hour)
	am.RecordFailure(errors.New("storage unavailable"))

	status := am.Status()
	if status.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", status.ConsecutiveErrors)
	}
	if status.LastError != "storage unavailable" {
		t.Errorf("LastError = %q, want %q", status.LastError, "storage unavailable")
	}
	if status.LastAttempt == "" {
		t.Error("LastAttempt should be set")
	}
}

func TestAnalysisMonitor_IsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*AnalysisMonitor)
		expected bool
	}{
		{
			name:     "never succeeded",
			setup:    func(*AnalysisMonitor) {},
			expected: false,
		},
		{
			name: "recent success",
			setup: func(am *AnalysisMonitor) {
				am.RecordSuccess(1, time.Second)
			},
			expected: true,
		},
		{
			name: "stale success",
			setup: func(am *AnalysisMonitor) {
				am.mu.Lock()
				am.lastSuccess = time.Now().Add(-3 * time.Hour)
				am.mu.Unlock()
			},
			expected: false,
		},
		{
			name: "failures within tolerance",
			setup: func(am *AnalysisMonitor) {
				am.RecordSuccess(1, time.Second)
				for i := 0; i < MaxConsecutiveFailures; i++ {
					am.RecordFailure(errors.New("boom"))
				}
			},
			expected: true,
		},
		{
			name: "too many consecutive failures",
			setup: func(am *AnalysisMonitor) {
				am.RecordSuccess(1, time.Second)
				for i := 0; i <= MaxConsecutiveFailures; i++ {
					am.RecordFailure(errors.New("boom"))
				}
			},
			expected: false,
		},
		{
			name: "recovered",
			setup: func(am *AnalysisMonitor) {
				for i := 0; i < 10; i++ {
					am.RecordFailure(errors.New("boom"))
				}
				am.RecordSuccess(1, time.Second)
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := NewAnalysisMonitor(2 * time.Hour)
			tt.setup(am)
			if got := am.IsHealthy(); got != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.expected)
			}
		})
	}
}
