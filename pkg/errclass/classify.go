package errclass

import (
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/haven-project/haven/pkg/model"
)

// Classifier turns low-level failures into a typed, severity-ranked
// ErrorAnalysis. It is the single place user-facing remedy wording lives; no
// other component constructs user-facing strings directly.
type Classifier struct {
	catalog *remedyCatalog
}

// NewClassifier returns a classifier emitting remedies in the best match for
// the requested language tags (BCP 47, e.g. "tr", "en-US"). An empty or
// unmatched list falls back to English.
func NewClassifier(langs ...string) *Classifier {
	return &Classifier{catalog: matchCatalog(langs)}
}

// messagePatterns maps storage-layer error text to a kind. SQLite reports
// corruption and contention through its message strings, so substring
// matching is the only portable signal for driver errors.
var messagePatterns = []struct {
	substr string
	kind   model.ErrorKind
}{
	{"database is locked", model.KindLocked},
	{"database table is locked", model.KindLocked},
	{"resource temporarily unavailable", model.KindLocked},
	{"file is not a database", model.KindCorrupt},
	{"disk image is malformed", model.KindCorrupt},
	{"database disk image is malformed", model.KindCorrupt},
	{"malformed database schema", model.KindCorrupt},
	{"no space left on device", model.KindDiskFull},
	{"disk full", model.KindDiskFull},
	{"unable to open database file", model.KindNotFound},
	{"no such file or directory", model.KindNotFound},
	{"permission denied", model.KindPermissionDenied},
	{"access is denied", model.KindPermissionDenied},
	{"file name too long", model.KindConfigurationError},
	{"invalid argument", model.KindConfigurationError},
}

// Classify maps err to an ErrorAnalysis. Context keys supplement the raw
// cause with the resource name, path, and operation for diagnostics.
func (c *Classifier) Classify(err error, ctx map[string]string) model.ErrorAnalysis {
	kind := classifyKind(err)
	analysis := model.ErrorAnalysis{
		Kind:      kind,
		RawCause:  errString(err),
		Severity:  severityOf(kind),
		Retryable: retryableKind(kind, err),
		Remedies:  c.catalog.lookup(kind),
		Context:   ctx,
		At:        time.Now().UTC(),
	}
	return analysis
}

// Retryable reports whether err should be retried without building a full
// analysis. Cancellation is never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	kind := classifyKind(err)
	return retryableKind(kind, err)
}

func classifyKind(err error) model.ErrorKind {
	if err == nil {
		return model.KindUnknown
	}

	// Haven's own sentinels first: they are already typed.
	switch {
	case errors.Is(err, ErrNotFound):
		return model.KindNotFound
	case errors.Is(err, ErrPermissionDenied):
		return model.KindPermissionDenied
	case errors.Is(err, ErrLocked), errors.Is(err, ErrLockConflict):
		return model.KindLocked
	case errors.Is(err, ErrCorrupt), errors.Is(err, ErrRecordCorrupt),
		errors.Is(err, ErrPayloadHashMismatch):
		return model.KindCorrupt
	case errors.Is(err, ErrDiskFull):
		return model.KindDiskFull
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrNameInvalid):
		return model.KindConfigurationError
	}

	// OS-level errors.
	switch {
	case errors.Is(err, os.ErrNotExist):
		return model.KindNotFound
	case errors.Is(err, os.ErrPermission):
		return model.KindPermissionDenied
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return model.KindDiskFull
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EBUSY):
		return model.KindLocked
	case errors.Is(err, syscall.ENAMETOOLONG), errors.Is(err, syscall.EINVAL):
		return model.KindConfigurationError
	}

	// Driver errors surface only as text.
	msg := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		if strings.Contains(msg, p.substr) {
			return p.kind
		}
	}

	return model.KindUnknown
}

func severityOf(kind model.ErrorKind) model.Severity {
	switch kind {
	case model.KindLocked:
		return model.SeverityLow
	case model.KindNotFound:
		return model.SeverityMedium
	case model.KindPermissionDenied, model.KindConfigurationError:
		return model.SeverityHigh
	case model.KindDiskFull:
		return model.SeverityHigh
	case model.KindCorrupt:
		return model.SeverityCritical
	}
	return model.SeverityMedium
}

func retryableKind(kind model.ErrorKind, err error) bool {
	switch kind {
	case model.KindLocked:
		return true
	case model.KindUnknown:
		// Transient I/O often lacks a recognizable shape; retry only when the
		// underlying errno says interrupted or temporarily unavailable.
		return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EIO)
	}
	return false
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
