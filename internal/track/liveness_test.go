package track

import (
	"testing"
	"time"
)

func TestClassifyBoundaries(t *testing.T) {
	w := DefaultLivenessWindows()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		age  time.Duration
		want ConnectionStatus
	}{
		{"fresh report", 0, ConnOnline},
		{"just under online window", 2*time.Minute - time.Second, ConnOnline},
		{"exactly online window", 2 * time.Minute, ConnOnline},
		{"just over online window", 2*time.Minute + time.Second, ConnRecentlyOffline},
		{"exactly recently offline window", 10 * time.Minute, ConnRecentlyOffline},
		{"just over recently offline window", 10*time.Minute + time.Second, ConnOffline},
		{"hours stale", 3 * time.Hour, ConnOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := w.Classify(now, now.Add(-tt.age))
			if got != tt.want {
				t.Errorf("age %s: got %s, want %s", tt.age, got, tt.want)
			}
		})
	}
}

func TestClassifyCustomWindows(t *testing.T) {
	w := LivenessWindows{Online: 30 * time.Second, RecentlyOffline: time.Minute}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := w.Classify(now, now.Add(-45*time.Second)); got != ConnRecentlyOffline {
		t.Errorf("45s with 30s/60s windows: got %s, want %s", got, ConnRecentlyOffline)
	}
	if got := w.Classify(now, now.Add(-2*time.Minute)); got != ConnOffline {
		t.Errorf("2m with 30s/60s windows: got %s, want %s", got, ConnOffline)
	}
}
