package model

import "time"

// Strategy is one rung of the fallback cascade. Strategies are attempted
// strictly in declaration order and never repeated within one acquisition.
type Strategy string

const (
	StrategyAlternatePath Strategy = "alternate-path"
	StrategyBackupRestore Strategy = "backup-restore"
	StrategyCleanCreate   Strategy = "clean-create"
	StrategyEphemeral     Strategy = "ephemeral"
)

// CascadeOrder is the fixed strategy sequence.
var CascadeOrder = []Strategy{
	StrategyAlternatePath,
	StrategyBackupRestore,
	StrategyCleanCreate,
	StrategyEphemeral,
}

// AttemptOutcome records how a strategy attempt ended.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
	// OutcomeSkipped means the strategy had no material to work with (for
	// example, no verified backup exists). Skips still occupy the strategy's
	// slot in the audit trail.
	OutcomeSkipped AttemptOutcome = "skipped"
)

// RecoveryAttempt is one append-only audit-trail entry produced during a
// cascade run. Entries are ordered by Seq and never rewritten.
type RecoveryAttempt struct {
	Seq      int            `json:"seq"`
	Strategy Strategy       `json:"strategy"`
	Outcome  AttemptOutcome `json:"outcome"`
	Path     string         `json:"path,omitempty"`
	// ErrorCode references the errclass code of the failure, if any.
	ErrorCode string    `json:"error_code,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}
