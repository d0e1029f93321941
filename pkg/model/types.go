// Package model defines the core data types shared across Haven components.
package model

// HashValue is a lowercase hex-encoded SHA-256 digest.
type HashValue string

// ResourceKind identifies the type of resource being managed.
type ResourceKind string

const (
	// KindFile is a single opaque file.
	KindFile ResourceKind = "file"
	// KindDatabase is an embedded SQLite database file.
	KindDatabase ResourceKind = "database"
	// KindBundle is a directory of required member files described by a manifest.
	KindBundle ResourceKind = "bundle"
)

// Valid reports whether k is a known resource kind.
func (k ResourceKind) Valid() bool {
	switch k {
	case KindFile, KindDatabase, KindBundle:
		return true
	}
	return false
}

// AccessMode is the access a caller requires on a resource.
type AccessMode string

const (
	ModeReadOnly       AccessMode = "ro"
	ModeReadWrite      AccessMode = "rw"
	ModeCreateIfAbsent AccessMode = "create"
)

// Valid reports whether m is a known access mode.
func (m AccessMode) Valid() bool {
	switch m {
	case ModeReadOnly, ModeReadWrite, ModeCreateIfAbsent:
		return true
	}
	return false
}

// AllowsCreate reports whether the mode permits creating missing files
// and intermediate directories.
func (m AccessMode) AllowsCreate() bool {
	return m == ModeCreateIfAbsent
}

// AllowsWrite reports whether the mode requires write access.
func (m AccessMode) AllowsWrite() bool {
	return m == ModeReadWrite || m == ModeCreateIfAbsent
}

// OperatingMode describes how an acquired resource is being served.
type OperatingMode string

const (
	// OperatingPrimary means a candidate passed on the first validation pass.
	// Classification is by resolver order, not attempt count: any candidate
	// that succeeds during the initial pipeline run is still Primary.
	OperatingPrimary OperatingMode = "primary"
	// OperatingFallback means a recovery strategy (backup restore or clean
	// recreate) produced the resource.
	OperatingFallback OperatingMode = "fallback"
	// OperatingEphemeral means the resource is non-persistent and will not
	// survive process exit. Terminal for the session.
	OperatingEphemeral OperatingMode = "ephemeral"
)
