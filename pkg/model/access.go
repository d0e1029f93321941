package model

// AccessLevel summarizes effective access to a candidate location.
type AccessLevel string

const (
	AccessFull        AccessLevel = "full_access"
	AccessReadOnly    AccessLevel = "read_only"
	AccessNone        AccessLevel = "no_access"
	AccessPathMissing AccessLevel = "path_missing"
)

// AccessResult is the outcome of validating one candidate. Created fresh per
// validation call and never persisted.
type AccessResult struct {
	Path      string      `json:"path"`
	CanRead   bool        `json:"can_read"`
	CanWrite  bool        `json:"can_write"`
	CanCreate bool        `json:"can_create"`
	Level     AccessLevel `json:"level"`
	// Detail carries a diagnostic string when access is degraded.
	Detail string `json:"detail,omitempty"`
	// SuggestedAlternate is a location the resolver should try next when this
	// candidate fails. Empty when no suggestion applies.
	SuggestedAlternate string `json:"suggested_alternate,omitempty"`
}

// Satisfies reports whether the result grants the access the mode requires.
func (r AccessResult) Satisfies(mode AccessMode) bool {
	switch mode {
	case ModeReadOnly:
		return r.CanRead
	case ModeReadWrite:
		return r.CanRead && r.CanWrite
	case ModeCreateIfAbsent:
		return r.CanRead && r.CanWrite && r.CanCreate
	}
	return false
}
