package model

import "time"

// ErrorKind is the failure taxonomy exposed to callers.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "not_found"
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindLocked             ErrorKind = "locked"
	KindCorrupt            ErrorKind = "corrupt"
	KindDiskFull           ErrorKind = "disk_full"
	KindConfigurationError ErrorKind = "configuration_error"
	KindUnknown            ErrorKind = "unknown"
)

// Severity ranks how serious a classified failure is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorAnalysis is the typed diagnosis of one low-level failure. Derived,
// never persisted; one per failure event. The classifier is the only
// component that constructs the user-facing Remedies strings.
type ErrorAnalysis struct {
	Kind     ErrorKind `json:"kind"`
	RawCause string    `json:"raw_cause"`
	Severity Severity  `json:"severity"`
	// Retryable marks failures likely to clear on their own (lock contention,
	// transient I/O). Fatal kinds short-circuit the retry executor.
	Retryable bool `json:"retryable"`
	// Remedies are ordered, localized suggested actions for the user.
	Remedies []string          `json:"remedies,omitempty"`
	Context  map[string]string `json:"context,omitempty"`
	At       time.Time         `json:"at"`
}
