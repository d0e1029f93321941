package integrity_test

import (
	"context"
	"database/sql"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/haven-project/haven/internal/integrity"
	"github.com/haven-project/haven/pkg/logging"
	"github.com/haven-project/haven/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChecker() *integrity.Checker {
	return integrity.NewChecker(logging.Nop())
}

func createDatabase(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE maintenance (id INTEGER PRIMARY KEY, note TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO maintenance (note) VALUES ('spindle check')")
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestCheck_HealthyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	createDatabase(t, path)

	report := newChecker().Check(context.Background(), path, model.KindDatabase, nil)
	assert.Equal(t, model.IntegrityHealthy, report.State)
	assert.True(t, report.Healthy())
}

func TestCheck_MissingDatabase(t *testing.T) {
	report := newChecker().Check(context.Background(),
		filepath.Join(t.TempDir(), "nope.db"), model.KindDatabase, nil)
	assert.Equal(t, model.IntegrityCorrupt, report.State)
}

func TestCheck_EmptyDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	report := newChecker().Check(context.Background(), path, model.KindDatabase, nil)
	assert.Equal(t, model.IntegrityHealthy, report.State)
}

func TestCheck_TruncatedDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	require.NoError(t, os.WriteFile(path, []byte("SQLite fo"), 0644))

	report := newChecker().Check(context.Background(), path, model.KindDatabase, nil)
	assert.Equal(t, model.IntegrityCorrupt, report.State)
}

func TestCheck_BadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, garbage, 0644))

	report := newChecker().Check(context.Background(), path, model.KindDatabase, nil)
	assert.Equal(t, model.IntegrityCorrupt, report.State)
	assert.Contains(t, report.Details, "invalid database header")
}

func TestCheck_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.dat")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	report := newChecker().Check(context.Background(), path, model.KindFile, nil)
	assert.Equal(t, model.IntegrityHealthy, report.State)

	report = newChecker().Check(context.Background(), filepath.Join(dir, "missing"), model.KindFile, nil)
	assert.Equal(t, model.IntegrityCorrupt, report.State)

	report = newChecker().Check(context.Background(), dir, model.KindFile, nil)
	assert.Equal(t, model.IntegrityCorrupt, report.State)
}

func TestCheck_Bundle(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "reports")
	require.NoError(t, os.MkdirAll(bundle, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "jan.csv"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "feb.csv"), []byte("b"), 0644))

	manifest := []string{"jan.csv", "feb.csv"}
	report := newChecker().Check(context.Background(), bundle, model.KindBundle, manifest)
	assert.Equal(t, model.IntegrityHealthy, report.State)

	require.NoError(t, os.Remove(filepath.Join(bundle, "feb.csv")))
	report = newChecker().Check(context.Background(), bundle, model.KindBundle, manifest)
	assert.Equal(t, model.IntegrityRepairable, report.State, "partial loss is repairable")

	require.NoError(t, os.Remove(filepath.Join(bundle, "jan.csv")))
	report = newChecker().Check(context.Background(), bundle, model.KindBundle, manifest)
	assert.Equal(t, model.IntegrityCorrupt, report.State, "all members gone")
}

func TestCheck_BundleMissingDir(t *testing.T) {
	report := newChecker().Check(context.Background(),
		filepath.Join(t.TempDir(), "nope"), model.KindBundle, []string{"a"})
	assert.Equal(t, model.IntegrityCorrupt, report.State)
}

func TestRepair_HealthyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	createDatabase(t, path)

	report, err := newChecker().Repair(context.Background(), path, model.KindDatabase)
	require.NoError(t, err)
	assert.True(t, report.RepairAttempted)
	assert.True(t, report.RepairSucceeded)
}

// corruptFreelist builds a database with a populated freelist and then
// overwrites the freelist trunk page with garbage. The header and the table
// pages stay intact, so the damage is repairable by a rebuild.
func corruptFreelist(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE maintenance (id INTEGER PRIMARY KEY, note TEXT)")
	require.NoError(t, err)
	filler := strings.Repeat("x", 200)
	for i := 0; i < 200; i++ {
		_, err = db.Exec("INSERT INTO maintenance (note) VALUES (?)", filler)
		require.NoError(t, err)
	}
	// Dropping the tail rows frees whole pages onto the freelist.
	_, err = db.Exec("DELETE FROM maintenance WHERE id > 20")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	pageSize := int(binary.BigEndian.Uint16(data[16:18]))
	trunk := int(binary.BigEndian.Uint32(data[32:36]))
	require.NotZero(t, trunk, "expected a non-empty freelist")
	off := (trunk - 1) * pageSize
	for i := off; i < off+pageSize && i < len(data); i++ {
		data[i] = 0xFF
	}
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestRepair_RebuildsRepairableDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	corruptFreelist(t, path)

	checker := newChecker()
	before := checker.Check(context.Background(), path, model.KindDatabase, nil)
	require.Equal(t, model.IntegrityRepairable, before.State)

	report, err := checker.Repair(context.Background(), path, model.KindDatabase)
	require.NoError(t, err)
	assert.True(t, report.RepairAttempted)
	assert.True(t, report.RepairSucceeded)

	after := checker.Check(context.Background(), path, model.KindDatabase, nil)
	assert.True(t, after.Healthy())

	// The live rows survive the rebuild.
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM maintenance").Scan(&n))
	assert.Equal(t, 20, n)
}

func TestRepair_CorruptFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	garbage := make([]byte, 4096)
	require.NoError(t, os.WriteFile(path, garbage, 0644))

	report, err := newChecker().Repair(context.Background(), path, model.KindDatabase)
	require.Error(t, err)
	assert.True(t, report.RepairAttempted)
	assert.False(t, report.RepairSucceeded)
}

func TestRepair_WrongKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.dat")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := newChecker().Repair(context.Background(), path, model.KindFile)
	require.Error(t, err)
}
