// Package engine provides clone engines used to materialize backup payloads:
// a recursive copy engine for files and bundles, and a SQLite engine that
// produces a consistent database image via VACUUM INTO.
package engine

import (
	"context"

	"github.com/haven-project/haven/pkg/model"
)

// CloneResult contains the result of a clone operation.
type CloneResult struct {
	Degraded     bool     // true if any fidelity was lost
	Degradations []string // list of degradation types
	BytesCloned  int64
}

// Engine clones a source path to a destination path.
type Engine interface {
	// Name returns the engine identifier.
	Name() string

	// Clone copies src to dst. dst must not exist for file sources; for
	// directory sources it is created.
	Clone(ctx context.Context, src, dst string) (*CloneResult, error)
}

// ForKind selects the engine for a resource kind. Databases get the SQLite
// engine so the clone is transactionally consistent even while the source is
// open; everything else gets the copy engine.
func ForKind(kind model.ResourceKind) Engine {
	if kind == model.KindDatabase {
		return NewSQLiteEngine()
	}
	return NewCopyEngine()
}
