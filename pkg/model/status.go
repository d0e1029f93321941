package model

import "time"

// ResourceStatus describes one open resource. It lives for the lifetime of
// the handle, is mutated only by the orchestrator, and is read by the host
// application for status display. No process-wide singleton: each acquisition
// owns its status instance.
type ResourceStatus struct {
	Resource string        `json:"resource"`
	Path     string        `json:"path"`
	Mode     OperatingMode `json:"mode"`
	// Attempts is the ordered recovery audit trail that led to this state.
	// Empty when the pipeline succeeded without the cascade.
	Attempts []RecoveryAttempt `json:"attempts,omitempty"`
	// LastAnalysis is set while the resource is degraded.
	LastAnalysis *ErrorAnalysis `json:"last_analysis,omitempty"`
	// RetryCount is the total retry-executor attempts spent during acquisition.
	RetryCount int `json:"retry_count"`
	// DataLossWarning is set when a clean recreate discarded prior state, or
	// when ephemeral mode means writes will not survive process exit.
	DataLossWarning bool      `json:"data_loss_warning"`
	AcquiredAt      time.Time `json:"acquired_at"`
	LastHealthCheck time.Time `json:"last_health_check,omitempty"`
	// Degraded is set by background health checks when the open resource has
	// been tampered with or failed re-validation since acquisition.
	Degraded bool `json:"degraded,omitempty"`
}

// Clone returns a deep copy safe to hand to callers while the orchestrator
// keeps mutating the original.
func (s *ResourceStatus) Clone() *ResourceStatus {
	out := *s
	if s.Attempts != nil {
		out.Attempts = make([]RecoveryAttempt, len(s.Attempts))
		copy(out.Attempts, s.Attempts)
	}
	if s.LastAnalysis != nil {
		la := *s.LastAnalysis
		if s.LastAnalysis.Remedies != nil {
			la.Remedies = append([]string(nil), s.LastAnalysis.Remedies...)
		}
		if s.LastAnalysis.Context != nil {
			la.Context = make(map[string]string, len(s.LastAnalysis.Context))
			for k, v := range s.LastAnalysis.Context {
				la.Context[k] = v
			}
		}
		out.LastAnalysis = &la
	}
	return &out
}
