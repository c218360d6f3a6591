package scanjob

import "github.com/auditflow/api/pkg/domain/finding"

// Event types published on the live status channel.
const (
	EventTypeProgress = "scan_progress"
)

// StatusEvent is pushed to a user's live observers on every transition.
type StatusEvent struct {
	Type     string              `json:"type"`
	ScanID   string              `json:"scan_id"`
	Status   Status              `json:"status"`
	Progress int                 `json:"progress"`
	Summary  string              `json:"summary"`
	Results  *finding.ScanResult `json:"results,omitempty"`
}

// EventType returns scan_progress for intermediate states and scan_<status>
// for terminal ones.
func EventType(s Status) string {
	if s.IsTerminal() {
		return "scan_" + string(s)
	}
	return EventTypeProgress
}

// NewStatusEvent snapshots the job state into an event. Results are only
// attached on completion.
func NewStatusEvent(j *Job) StatusEvent {
	ev := StatusEvent{
		Type:     EventType(j.Status),
		ScanID:   j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Summary:  j.Summary,
	}
	if j.Status == StatusCompleted {
		ev.Results = j.Results
	}
	return ev
}
