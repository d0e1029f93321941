package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// BackupID is the unique identifier for a backup: <unix_ms>-<rand8hex>.
// Lexicographic order matches creation order within one process.
type BackupID string

// NewBackupID generates a new unique backup ID.
func NewBackupID() BackupID {
	ts := time.Now().UnixMilli()
	var randBytes [4]byte
	if _, err := rand.Read(randBytes[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return BackupID(fmt.Sprintf("%013d-%s", ts, hex.EncodeToString(randBytes[:])))
}

// ShortID returns the first 8 characters for display.
func (id BackupID) ShortID() string {
	s := string(id)
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

func (id BackupID) String() string { return string(id) }

// VerificationState tracks whether a backup payload has been checked against
// its recorded hash.
type VerificationState string

const (
	VerificationVerified   VerificationState = "verified"
	VerificationUnverified VerificationState = "unverified"
	VerificationFailed     VerificationState = "failed"
)

// BackupRecord is the on-disk metadata for one point-in-time snapshot of a
// resource. Owned by the backup store; pruned only by retention policy after
// the protected operation is confirmed successful.
type BackupRecord struct {
	ID         BackupID     `json:"backup_id"`
	Resource   string       `json:"resource"`
	Kind       ResourceKind `json:"kind"`
	CreatedAt  time.Time    `json:"created_at"`
	SourcePath string       `json:"source_path"`
	// StoragePath is the payload location inside the vault's backups/ tree.
	StoragePath string `json:"storage_path"`
	SizeBytes   int64  `json:"size_bytes"`
	// PayloadHash is the SHA-256 of the payload (tree hash for bundles).
	PayloadHash HashValue `json:"payload_hash"`
	// RecordChecksum is the canonical-JSON SHA-256 of this record with the
	// checksum field itself excluded.
	RecordChecksum HashValue         `json:"record_checksum"`
	Verification   VerificationState `json:"verification"`
	// Protecting names the destructive operation this backup was taken for.
	Protecting string `json:"protecting,omitempty"`
	// Released is set once the protected operation's outcome is confirmed,
	// making the record eligible for retention pruning.
	Released   bool `json:"released"`
	Compressed bool `json:"compressed,omitempty"`
}

// RetentionEligible reports whether the record may be considered for pruning.
// Unverified records and records still protecting an unresolved operation are
// never eligible.
func (r *BackupRecord) RetentionEligible() bool {
	return r.Released && r.Verification == VerificationVerified
}

// RetentionPolicy controls backup pruning: keep the newest KeepLast records
// and drop records older than MaxAge. Zero values disable the respective rule.
type RetentionPolicy struct {
	KeepLast int           `json:"keep_last" yaml:"keep_last"`
	MaxAge   time.Duration `json:"max_age" yaml:"max_age"`
}

// DefaultRetentionPolicy keeps the last 10 backups for at most 30 days.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		KeepLast: 10,
		MaxAge:   30 * 24 * time.Hour,
	}
}

// Validate checks policy bounds.
func (p RetentionPolicy) Validate() error {
	if p.KeepLast < 0 {
		return fmt.Errorf("retention keep_last must be >= 0, got %d", p.KeepLast)
	}
	if p.MaxAge < 0 {
		return fmt.Errorf("retention max_age must be >= 0, got %s", p.MaxAge)
	}
	return nil
}

// BackupStats aggregates registry-wide backup accounting.
type BackupStats struct {
	TotalCount  int            `json:"total_count"`
	TotalBytes  int64          `json:"total_bytes"`
	PerResource map[string]int `json:"per_resource,omitempty"`
	OldestAt    *time.Time     `json:"oldest_at,omitempty"`
	NewestAt    *time.Time     `json:"newest_at,omitempty"`
	Unverified  int            `json:"unverified"`
	Unreleased  int            `json:"unreleased"`
}
