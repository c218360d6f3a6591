package scanjob

import "github.com/auditflow/api/pkg/domain/shared"

// Trigger identifies one scan to run. All fields are required.
type Trigger struct {
	RepoID int64  `json:"repo_id"`
	UserID string `json:"user_id"`
	ScanID string `json:"scan_id"`
}

// Validate returns a validation error naming the first missing field.
func (t Trigger) Validate() error {
	switch {
	case t.RepoID <= 0:
		return shared.Invalid("repo_id is required")
	case t.UserID == "":
		return shared.Invalid("user_id is required")
	case t.ScanID == "":
		return shared.Invalid("scan_id is required")
	}
	return nil
}
