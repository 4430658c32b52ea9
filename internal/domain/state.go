package domain

import "time"

// ServiceState est un instantané dérivé, recalculé à la demande.
type ServiceState struct {
	IsRunning           bool       `json:"isRunning"`
	LastSweepAt         *time.Time `json:"lastSweepAt"`
	TrackedCount        int        `json:"trackedCount"`
	PendingAlertCount   int        `json:"pendingAlertCount"`
	CachedBaselineCount int        `json:"cachedBaselineCount"`
}
