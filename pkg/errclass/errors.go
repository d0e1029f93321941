package errclass

import "fmt"

// HavenError is a stable, machine-readable error class.
type HavenError struct {
	Code    string
	Message string
}

func (e *HavenError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *HavenError) Is(target error) bool {
	t, ok := target.(*HavenError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new HavenError with the same Code but a specific message.
func (e *HavenError) WithMessage(msg string) *HavenError {
	return &HavenError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new HavenError with a formatted message.
func (e *HavenError) WithMessagef(format string, args ...any) *HavenError {
	return &HavenError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// All stable error classes for v0.x.
var (
	// Taxonomy errors: one per ErrorAnalysis kind.
	ErrNotFound         = &HavenError{Code: "E_NOT_FOUND"}
	ErrPermissionDenied = &HavenError{Code: "E_PERMISSION_DENIED"}
	ErrLocked           = &HavenError{Code: "E_LOCKED"}
	ErrCorrupt          = &HavenError{Code: "E_CORRUPT"}
	ErrDiskFull         = &HavenError{Code: "E_DISK_FULL"}
	ErrConfiguration    = &HavenError{Code: "E_CONFIGURATION"}
	ErrUnknown          = &HavenError{Code: "E_UNKNOWN"}

	// Infrastructure errors raised by Haven's own state handling.
	ErrNameInvalid          = &HavenError{Code: "E_NAME_INVALID"}
	ErrLockConflict         = &HavenError{Code: "E_LOCK_CONFLICT"}
	ErrLockExpired          = &HavenError{Code: "E_LOCK_EXPIRED"}
	ErrLockNotHeld          = &HavenError{Code: "E_LOCK_NOT_HELD"}
	ErrRecordCorrupt        = &HavenError{Code: "E_RECORD_CORRUPT"}
	ErrPayloadHashMismatch  = &HavenError{Code: "E_PAYLOAD_HASH_MISMATCH"}
	ErrBackupNotVerified    = &HavenError{Code: "E_BACKUP_NOT_VERIFIED"}
	ErrBackupProtected      = &HavenError{Code: "E_BACKUP_PROTECTED"}
	ErrJournalChainBroken   = &HavenError{Code: "E_JOURNAL_CHAIN_BROKEN"}
	ErrFormatUnsupported    = &HavenError{Code: "E_FORMAT_UNSUPPORTED"}
	ErrCascadeExhausted     = &HavenError{Code: "E_CASCADE_EXHAUSTED"}
	ErrEphemeralTerminal    = &HavenError{Code: "E_EPHEMERAL_TERMINAL"}
	ErrRecreateNotSupported = &HavenError{Code: "E_RECREATE_NOT_SUPPORTED"}
)

// Code extracts the stable code from err, or "" when err carries none.
func Code(err error) string {
	for err != nil {
		if he, ok := err.(*HavenError); ok {
			return he.Code
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
