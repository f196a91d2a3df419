package track

import "time"

// ConnectionStatus classifies how recently a vehicle reported.
type ConnectionStatus string

const (
	ConnOnline          ConnectionStatus = "online"
	ConnRecentlyOffline ConnectionStatus = "recently_offline"
	ConnOffline         ConnectionStatus = "offline"
)

// LivenessWindows holds the elapsed-time boundaries for classification.
// Both boundaries are inclusive: a report exactly Online old is still online.
type LivenessWindows struct {
	Online          time.Duration
	RecentlyOffline time.Duration
}

func DefaultLivenessWindows() LivenessWindows {
	return LivenessWindows{Online: 2 * time.Minute, RecentlyOffline: 10 * time.Minute}
}

// Classify is a pure function of now - lastReport.
func (w LivenessWindows) Classify(now, lastReport time.Time) ConnectionStatus {
	age := now.Sub(lastReport)
	switch {
	case age <= w.Online:
		return ConnOnline
	case age <= w.RecentlyOffline:
		return ConnRecentlyOffline
	default:
		return ConnOffline
	}
}
