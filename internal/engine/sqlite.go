package engine

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/haven-project/haven/pkg/fsutil"
)

// SQLiteEngine clones a SQLite database with VACUUM INTO, which produces a
// compact, transactionally consistent copy even when the source is in WAL
// mode with readers attached.
type SQLiteEngine struct{}

// NewSQLiteEngine creates a new SQLiteEngine.
func NewSQLiteEngine() *SQLiteEngine {
	return &SQLiteEngine{}
}

// Name returns the engine identifier.
func (e *SQLiteEngine) Name() string {
	return "sqlite-vacuum"
}

// Clone copies the database at src into a fresh database file at dst.
func (e *SQLiteEngine) Clone(ctx context.Context, src, dst string) (*CloneResult, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", url.PathEscape(src))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open source database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return nil, fmt.Errorf("vacuum into %s: %w", dst, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, fmt.Errorf("stat cloned database: %w", err)
	}

	if err := fsutil.FsyncTree(dst); err != nil {
		return nil, fmt.Errorf("fsync cloned database: %w", err)
	}
	if err := fsutil.FsyncDir(filepath.Dir(dst)); err != nil {
		return nil, fmt.Errorf("fsync dst dir: %w", err)
	}

	return &CloneResult{BytesCloned: info.Size()}, nil
}
