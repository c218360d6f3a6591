// Package scanjob defines the scan job entity and its lifecycle.
package scanjob

// Status represents the scan job status.
type Status string

const (
	StatusQueued    Status = "queued"    // created, waiting for a worker
	StatusCloning   Status = "cloning"   // materializing the repository workspace
	StatusScanning  Status = "scanning"  // detecting changes and running analysis
	StatusSaving    Status = "saving"    // persisting results
	StatusCompleted Status = "completed" // finished with results attached
	StatusFailed    Status = "failed"    // aborted, summary holds the error
)

// Progress percentages reported for each intermediate state.
const (
	ProgressQueued    = 0
	ProgressCloning   = 10
	ProgressScanning  = 30
	ProgressSaving    = 80
	ProgressCompleted = 100
)

// AllStatuses returns all valid statuses.
func AllStatuses() []Status {
	return []Status{
		StatusQueued,
		StatusCloning,
		StatusScanning,
		StatusSaving,
		StatusCompleted,
		StatusFailed,
	}
}

// IsValid checks if the status is a valid status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusCloning, StatusScanning, StatusSaving, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for completed and failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive returns true while a scan has not reached a terminal state.
func (s Status) IsActive() bool {
	return s.IsValid() && !s.IsTerminal()
}

// CanTransitionTo reports whether next is a legal successor of s.
// Any non-terminal state may fail; otherwise states advance one step at a time.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	switch s {
	case StatusQueued:
		return next == StatusCloning
	case StatusCloning:
		return next == StatusScanning
	case StatusScanning:
		return next == StatusSaving
	case StatusSaving:
		return next == StatusCompleted
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}
