package model

import "time"

// IntegrityState classifies the structural health of a resource.
type IntegrityState string

const (
	IntegrityHealthy    IntegrityState = "healthy"
	IntegrityRepairable IntegrityState = "repairable"
	IntegrityCorrupt    IntegrityState = "corrupt"
	IntegrityUnknown    IntegrityState = "unknown"
)

// IntegrityReport is the result of one structural check. Consumed immediately
// by the orchestrator to decide repair vs fallback.
type IntegrityReport struct {
	Path      string         `json:"path"`
	Kind      ResourceKind   `json:"kind"`
	State     IntegrityState `json:"state"`
	Details   []string       `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
	// RepairAttempted and RepairSucceeded record the single in-place repair
	// pass permitted after a Repairable verdict.
	RepairAttempted bool `json:"repair_attempted,omitempty"`
	RepairSucceeded bool `json:"repair_succeeded,omitempty"`
}

// Healthy reports whether the resource passed the check outright.
func (r IntegrityReport) Healthy() bool {
	return r.State == IntegrityHealthy
}
