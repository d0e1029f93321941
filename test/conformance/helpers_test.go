//go:build conformance

// Package conformance exercises the acquisition pipeline end to end through
// the public client: resolution, validation, integrity checking, the
// fallback cascade, locking, backups and the recovery journal.
//
// Run with: go test -tags=conformance ./test/conformance/...
package conformance

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/haven-project/haven/pkg/config"
	"github.com/haven-project/haven/pkg/haven"
	"github.com/haven-project/haven/pkg/logging"
	"github.com/haven-project/haven/pkg/model"
)

// newClient opens a fresh vault-backed client in a temp directory.
func newClient(t *testing.T) *haven.Client {
	t.Helper()
	log := logging.Nop()
	c, err := haven.OpenOrInit(haven.Options{
		VaultDir: t.TempDir(),
		Config:   config.Default(),
		Logger:   &log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func fileDesc(name string, mode model.AccessMode, templates ...string) model.ResourceDescriptor {
	return model.ResourceDescriptor{
		Name:               name,
		Kind:               model.KindFile,
		CandidateTemplates: templates,
		Mode:               mode,
	}
}

func dbDesc(name string, templates ...string) model.ResourceDescriptor {
	return model.ResourceDescriptor{
		Name:               name,
		Kind:               model.KindDatabase,
		CandidateTemplates: templates,
		Mode:               model.ModeReadWrite,
	}
}

// writeFile creates a file with content under a fresh temp dir and returns
// its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// createSQLiteDB creates a real database with one row so VACUUM-based
// snapshots and header checks both work against it.
func createSQLiteDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE machines (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO machines (name) VALUES ('lathe-1')`)
	require.NoError(t, err)
}

// rowCount returns the number of rows in the machines table.
func rowCount(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM machines`).Scan(&n))
	return n
}
