package acquire_test

import (
	"context"
	"database/sql"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/haven-project/haven/internal/acquire"
	"github.com/haven-project/haven/internal/backup"
	"github.com/haven-project/haven/internal/cascade"
	"github.com/haven-project/haven/internal/compression"
	"github.com/haven-project/haven/internal/integrity"
	"github.com/haven-project/haven/internal/journal"
	"github.com/haven-project/haven/internal/lock"
	"github.com/haven-project/haven/internal/registry"
	"github.com/haven-project/haven/internal/resolve"
	"github.com/haven-project/haven/internal/validate"
	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/logging"
	"github.com/haven-project/haven/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	orch     *acquire.Orchestrator
	vault    *vault.Vault
	journal  *journal.Appender
	registry *registry.Manager
	locks    *lock.Manager
	store    *backup.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	v, err := vault.Init(t.TempDir())
	require.NoError(t, err)

	log := logging.Nop()
	jrn := journal.NewAppender(v.JournalPath())
	store := backup.NewStore(v, jrn, model.DefaultRetentionPolicy(),
		compression.NewCompressor(compression.LevelNone), log)
	resolver := resolve.NewResolver("tezgah", log)
	validator := validate.NewValidator("tezgah", log)
	checker := integrity.NewChecker(log)
	locks := lock.NewManager(v, model.DefaultLockPolicy())
	reg := registry.NewManager(v)

	orch := acquire.New(acquire.Options{
		Resolver:  resolver,
		Validator: validator,
		Checker:   checker,
		Store:     store,
		Cascade:   cascade.New(resolver, validator, checker, store, jrn, log),
		Locks:     locks,
		Registry:  reg,
		Journal:   jrn,
		Logger:    log,
	})
	return &fixture{orch: orch, vault: v, journal: jrn, registry: reg, locks: locks, store: store}
}

func fileDesc(name string, mode model.AccessMode, templates ...string) model.ResourceDescriptor {
	return model.ResourceDescriptor{
		Name:               name,
		Kind:               model.KindFile,
		CandidateTemplates: templates,
		Mode:               mode,
	}
}

func TestAcquire_Primary(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	h, status, err := f.orch.Acquire(context.Background(), fileDesc("inventory", model.ModeReadWrite, path))
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, path, status.Path)
	assert.Equal(t, model.OperatingPrimary, status.Mode)
	assert.False(t, status.DataLossWarning)
	assert.Empty(t, status.Attempts)
	assert.Equal(t, path, h.Path())
}

func TestAcquire_CreateIfAbsent(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "inventory.dat")

	h, status, err := f.orch.Acquire(context.Background(), fileDesc("inventory", model.ModeCreateIfAbsent, path))
	require.NoError(t, err)
	defer h.Close()

	// A missing file with a writable parent is primary service: the caller
	// creates it on first write.
	assert.Equal(t, model.OperatingPrimary, status.Mode)
	assert.Equal(t, path, status.Path)
}

func TestAcquire_AlternatePathViaCascade(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "inventory.dat")
	require.NoError(t, os.WriteFile(good, []byte("x"), 0644))
	// Preferred candidate is unreachable: the parent does not exist and
	// read-write mode forbids creating it.
	broken := filepath.Join(dir, "missing-parent", "inventory.dat")

	h, status, err := f.orch.Acquire(context.Background(),
		fileDesc("inventory", model.ModeReadWrite, broken, good))
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, good, status.Path)
	assert.Equal(t, model.OperatingPrimary, status.Mode, "resolver-order classification")
	require.NotEmpty(t, status.Attempts)
	assert.Equal(t, model.StrategyAlternatePath, status.Attempts[0].Strategy)
}

func TestAcquire_CleanCreateFallback(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "inventory.dat")

	// Read-write on a missing file fails the initial pass; with no backup,
	// the cascade recreates it fresh.
	h, status, err := f.orch.Acquire(context.Background(), fileDesc("inventory", model.ModeReadWrite, path))
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, model.OperatingFallback, status.Mode)
	assert.True(t, status.DataLossWarning)
	assert.FileExists(t, status.Path)
}

func TestAcquire_EphemeralIsTerminal(t *testing.T) {
	f := newFixture(t)

	// A read-only bundle with no manifest and nothing on disk can be neither
	// found, restored, nor recreated.
	desc := model.ResourceDescriptor{
		Name: "reports",
		Kind: model.KindBundle,
		Mode: model.ModeReadOnly,
	}
	h, status, err := f.orch.Acquire(context.Background(), desc)
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(status.Path) })

	assert.Equal(t, model.OperatingEphemeral, status.Mode)
	assert.True(t, status.DataLossWarning)
	require.NoError(t, h.Close())

	// Once ephemeral, the session never silently reattaches persistence.
	_, _, err = f.orch.Acquire(context.Background(), desc)
	require.ErrorIs(t, err, errclass.ErrEphemeralTerminal)
}

func TestAcquire_SecondHandleConflicts(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	desc := fileDesc("inventory", model.ModeReadWrite, path)

	h, _, err := f.orch.Acquire(context.Background(), desc)
	require.NoError(t, err)
	defer h.Close()

	_, _, err = f.orch.Acquire(context.Background(), desc)
	require.ErrorIs(t, err, errclass.ErrLockConflict)
}

func TestAcquire_LockReleasedOnClose(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	desc := fileDesc("inventory", model.ModeReadWrite, path)

	h, _, err := f.orch.Acquire(context.Background(), desc)
	require.NoError(t, err)

	state, _, err := f.locks.Status("inventory")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateHeld, state)

	require.NoError(t, h.Close())

	state, _, err = f.locks.Status("inventory")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateFree, state)

	// The resource can be acquired again.
	h2, _, err := f.orch.Acquire(context.Background(), desc)
	require.NoError(t, err)
	require.NoError(t, h2.Close())
}

func TestAcquire_RecordsRegistryAndJournal(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	h, _, err := f.orch.Acquire(context.Background(), fileDesc("inventory", model.ModeReadWrite, path))
	require.NoError(t, err)
	defer h.Close()

	entry, err := f.registry.Get("inventory")
	require.NoError(t, err)
	assert.Equal(t, path, entry.ActivePath)
	assert.Equal(t, 1, entry.AcquireCount)

	events, err := f.journal.Read("inventory")
	require.NoError(t, err)
	var types []model.JournalEventType
	for _, ev := range events {
		types = append(types, ev.EventType)
	}
	assert.Contains(t, types, model.EventAcquireStart)
	assert.Contains(t, types, model.EventAcquireComplete)
}

func TestHandle_HealthCheckDetectsRemoval(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	h, _, err := f.orch.Acquire(context.Background(), fileDesc("inventory", model.ModeReadWrite, path))
	require.NoError(t, err)
	defer h.Close()

	status := h.HealthCheck(context.Background())
	assert.False(t, status.Degraded)
	assert.False(t, status.LastHealthCheck.IsZero())

	require.NoError(t, os.Remove(path))
	status = h.HealthCheck(context.Background())
	assert.True(t, status.Degraded)
	require.NotNil(t, status.LastAnalysis)
}

func TestHandle_WatcherMarksDegraded(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	h, _, err := f.orch.Acquire(context.Background(), fileDesc("inventory", model.ModeReadWrite, path))
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		return h.Status().Degraded
	}, 3*time.Second, 20*time.Millisecond, "removal should be observed by the watcher")
}

func TestOrchestrator_StatusFallsBackToRegistry(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	h, _, err := f.orch.Acquire(context.Background(), fileDesc("inventory", model.ModeReadWrite, path))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	status, err := f.orch.Status("inventory")
	require.NoError(t, err)
	assert.Equal(t, path, status.Path)
	assert.Equal(t, model.OperatingPrimary, status.Mode)

	_, err = f.orch.Status("unknown")
	require.ErrorIs(t, err, errclass.ErrNotFound)
}

func TestOrchestrator_HealthCheckAll(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "inventory.dat")
	second := filepath.Join(dir, "ledger.dat")
	require.NoError(t, os.WriteFile(first, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("y"), 0644))

	h1, _, err := f.orch.Acquire(context.Background(), fileDesc("inventory", model.ModeReadWrite, first))
	require.NoError(t, err)
	defer h1.Close()
	h2, _, err := f.orch.Acquire(context.Background(), fileDesc("ledger", model.ModeReadWrite, second))
	require.NoError(t, err)
	defer h2.Close()

	statuses, err := f.orch.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.False(t, s.Degraded)
	}
}

func TestOrchestrator_Close(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, _, err := f.orch.Acquire(context.Background(), fileDesc("inventory", model.ModeReadWrite, path))
	require.NoError(t, err)

	require.NoError(t, f.orch.Close())
	state, _, err := f.locks.Status("inventory")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateFree, state)
}

func TestAcquire_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.orch.Acquire(ctx, fileDesc("inventory", model.ModeReadWrite))
	require.Error(t, err)
}

func dbDesc(name, path string) model.ResourceDescriptor {
	return model.ResourceDescriptor{
		Name:               name,
		Kind:               model.KindDatabase,
		CandidateTemplates: []string{path},
		Mode:               model.ModeReadWrite,
	}
}

// repairableDatabase builds a database whose freelist trunk page is garbage:
// the header and table pages stay intact, so the checker reports it
// repairable rather than corrupt.
func repairableDatabase(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE machines (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	filler := strings.Repeat("x", 200)
	for i := 0; i < 200; i++ {
		_, err = db.Exec("INSERT INTO machines (name) VALUES (?)", filler)
		require.NoError(t, err)
	}
	_, err = db.Exec("DELETE FROM machines WHERE id > 20")
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

// Repair rewrites the database file in place, so the damaged bytes must land
// in the backup store before the rebuild touches them.
func TestAcquire_RepairSnapshotsDamagedDatabaseFirst(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "inventory.db")
	repairableDatabase(t, path)

	h, status, err := f.orch.Acquire(context.Background(), dbDesc("inventory", path))
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, model.OperatingPrimary, status.Mode)

	records, err := f.store.List("inventory")
	require.NoError(t, err)
	require.NotEmpty(t, records, "repair must leave the damaged bytes in the store")
	assert.Equal(t, "repair", records[0].Protecting)
	assert.True(t, records[0].Released,
		"the guard returns to the retention pool once acquisition is confirmed")

	report := integrity.NewChecker(logging.Nop()).Check(context.Background(), path, model.KindDatabase, nil)
	assert.True(t, report.Healthy())
}

// A backup restore overwrites the live target; whatever occupied it must be
// snapshotted first so unsaved work is recoverable by hand.
func TestAcquire_RestorePreservesOverwrittenContent(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.db")
	desc := dbDesc("inventory", path)

	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE machines (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO machines (name) VALUES ('lathe')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = f.store.Snapshot(context.Background(), desc, path, "")
	require.NoError(t, err)

	// Clobber the live database with content that only exists here.
	require.NoError(t, os.WriteFile(path, []byte("unsaved-work"), 0644))

	h, status, err := f.orch.Acquire(context.Background(), desc)
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, model.OperatingFallback, status.Mode)

	records, err := f.store.List("inventory")
	require.NoError(t, err)
	var guard *model.BackupRecord
	for i := range records {
		if records[i].Protecting == string(model.StrategyBackupRestore) {
			guard = &records[i]
		}
	}
	require.NotNil(t, guard, "the overwritten content must be snapshotted before the restore")
	assert.True(t, guard.Released)

	// The restored database serves the backed-up rows again.
	db, err = sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM machines").Scan(&n))
	assert.Equal(t, 1, n)
}
