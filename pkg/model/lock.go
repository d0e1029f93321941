package model

import "time"

// LockState describes the advisory lock on a resource.
type LockState string

const (
	LockStateFree    LockState = "free"
	LockStateHeld    LockState = "held"
	LockStateExpired LockState = "expired"
)

// LockPolicy configures advisory lock leases.
type LockPolicy struct {
	DefaultLeaseTTL    time.Duration `json:"default_lease_ttl" yaml:"default_lease_ttl"`
	ClockSkewTolerance time.Duration `json:"clock_skew_tolerance" yaml:"clock_skew_tolerance"`
}

// DefaultLockPolicy returns the standard lease settings.
func DefaultLockPolicy() LockPolicy {
	return LockPolicy{
		DefaultLeaseTTL:    30 * time.Second,
		ClockSkewTolerance: 2 * time.Second,
	}
}

// LockRecord is the on-disk advisory lock for one logical resource. It
// serializes acquisition across processes; within a process the orchestrator
// additionally serializes with a keyed mutex.
type LockRecord struct {
	Resource    string    `json:"resource"`
	HolderNonce string    `json:"holder_nonce"`
	SessionID   string    `json:"session_id"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Purpose     string    `json:"purpose,omitempty"`
}

// IsExpired reports whether the lease has lapsed at the given time.
func (r *LockRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// LockSession identifies the holder across CLI invocations so a follow-up
// command can renew or release a lock it acquired earlier.
type LockSession struct {
	SessionID   string `json:"session_id"`
	HolderNonce string `json:"holder_nonce"`
}
