package model

import "time"

// JournalEventType classifies recovery-journal entries.
type JournalEventType string

const (
	EventAcquireStart    JournalEventType = "acquire.start"
	EventAcquireComplete JournalEventType = "acquire.complete"
	EventAcquireFailed   JournalEventType = "acquire.failed"
	EventRecoveryAttempt JournalEventType = "recovery.attempt"
	EventBackupCreate    JournalEventType = "backup.create"
	EventBackupRestore   JournalEventType = "backup.restore"
	EventBackupVerify    JournalEventType = "backup.verify"
	EventBackupPrune     JournalEventType = "backup.prune"
	EventRepairAttempt   JournalEventType = "repair.attempt"
	EventHealthCheck     JournalEventType = "health.check"
	EventVaultSweep      JournalEventType = "vault.sweep"
)

// JournalRecord is one hash-chained entry in the recovery journal. PrevHash
// links to the preceding record so post-mortem analysis can detect gaps or
// rewrites.
type JournalRecord struct {
	Timestamp  time.Time        `json:"timestamp"`
	EventType  JournalEventType `json:"event_type"`
	Resource   string           `json:"resource,omitempty"`
	BackupID   BackupID         `json:"backup_id,omitempty"`
	Details    map[string]any   `json:"details,omitempty"`
	PrevHash   HashValue        `json:"prev_hash,omitempty"`
	RecordHash HashValue        `json:"record_hash"`
}
