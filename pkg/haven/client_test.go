package haven_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-project/haven/pkg/config"
	"github.com/haven-project/haven/pkg/haven"
	"github.com/haven-project/haven/pkg/logging"
	"github.com/haven-project/haven/pkg/model"
)

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

func TestOpenOrInit_CreatesVault(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vault")
	log := logging.Nop()
	c, err := haven.OpenOrInit(haven.Options{VaultDir: dir, Logger: &log})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, dir, c.VaultDir())
	assert.NotEmpty(t, c.VaultID())
	assert.DirExists(t, filepath.Join(dir, "backups"))
}

func TestOpen_MissingVaultFails(t *testing.T) {
	log := logging.Nop()
	_, err := haven.Open(haven.Options{
		VaultDir: filepath.Join(t.TempDir(), "absent"),
		Logger:   &log,
	})
	require.Error(t, err)
}

func TestClient_AcquireAndStatus(t *testing.T) {
	c := newClient(t)
	path := filepath.Join(t.TempDir(), "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	h, status, err := c.Acquire(context.Background(), fileDesc("inventory", model.ModeReadWrite, path))
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, path, status.Path)
	assert.Equal(t, model.OperatingPrimary, status.Mode)

	got, err := c.Status("inventory")
	require.NoError(t, err)
	assert.Equal(t, path, got.Path)
}

func TestClient_SnapshotRestoreRoundTrip(t *testing.T) {
	c := newClient(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))
	desc := fileDesc("inventory", model.ModeReadWrite, path)

	rec, err := c.Snapshot(context.Background(), desc, path)
	require.NoError(t, err)
	assert.Equal(t, "inventory", rec.Resource)

	require.NoError(t, os.WriteFile(path, []byte("drifted"), 0644))
	_, err = c.Restore(context.Background(), "inventory", rec.ID, "")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestClient_BackupListingAndStats(t *testing.T) {
	c := newClient(t)
	path := filepath.Join(t.TempDir(), "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))
	desc := fileDesc("inventory", model.ModeReadWrite, path)

	_, err := c.Snapshot(context.Background(), desc, path)
	require.NoError(t, err)
	_, err = c.Snapshot(context.Background(), desc, path)
	require.NoError(t, err)

	recs, err := c.Backups("inventory")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	resources, err := c.BackupResources()
	require.NoError(t, err)
	assert.Equal(t, []string{"inventory"}, resources)

	stats, err := c.BackupStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCount)
	assert.Greater(t, stats.TotalBytes, int64(0))
}

func TestClient_VerifyBackup(t *testing.T) {
	c := newClient(t)
	path := filepath.Join(t.TempDir(), "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	rec, err := c.Snapshot(context.Background(), fileDesc("inventory", model.ModeReadWrite, path), path)
	require.NoError(t, err)

	verified, err := c.VerifyBackup(context.Background(), "inventory", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, verified.ID)
}

func TestClient_DiffBetweenBackups(t *testing.T) {
	c := newClient(t)
	path := filepath.Join(t.TempDir(), "inventory.dat")
	desc := fileDesc("inventory", model.ModeReadWrite, path)

	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))
	a, err := c.Snapshot(context.Background(), desc, path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("v2 longer"), 0644))
	b, err := c.Snapshot(context.Background(), desc, path)
	require.NoError(t, err)

	result, err := c.Diff("inventory", a.ID, b.ID)
	require.NoError(t, err)
	assert.Len(t, result.Modified, 1)

	live, err := c.DiffLive("inventory", b.ID, path)
	require.NoError(t, err)
	assert.True(t, live.Empty())
}

func TestClient_DoctorOnFreshVault(t *testing.T) {
	c := newClient(t)

	result, err := c.Doctor(true)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
}

func TestClient_JournalAndChain(t *testing.T) {
	c := newClient(t)
	path := filepath.Join(t.TempDir(), "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	_, err := c.Snapshot(context.Background(), fileDesc("inventory", model.ModeReadWrite, path), path)
	require.NoError(t, err)

	entries, err := c.Journal("inventory")
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	require.NoError(t, c.VerifyJournal())
}

func TestClient_LockStatusAndForceUnlock(t *testing.T) {
	c := newClient(t)
	path := filepath.Join(t.TempDir(), "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	h, _, err := c.Acquire(context.Background(), fileDesc("inventory", model.ModeReadWrite, path))
	require.NoError(t, err)

	state, rec, err := c.LockStatus("inventory")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateHeld, state)
	require.NotNil(t, rec)

	require.NoError(t, c.ForceUnlock("inventory"))
	state, _, err = c.LockStatus("inventory")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateFree, state)
	h.Close()
}

func TestClient_RegisterAndResources(t *testing.T) {
	c := newClient(t)
	path := filepath.Join(t.TempDir(), "inventory.dat")

	require.NoError(t, c.Register(fileDesc("inventory", model.ModeCreateIfAbsent, path)))

	entries, err := c.Resources()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "inventory", entries[0].Descriptor.Name)
}

func TestClient_PrunePlanEmpty(t *testing.T) {
	c := newClient(t)
	path := filepath.Join(t.TempDir(), "inventory.dat")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	rec, err := c.Snapshot(context.Background(), fileDesc("inventory", model.ModeReadWrite, path), path)
	require.NoError(t, err)
	require.NoError(t, c.ReleaseBackup("inventory", rec.ID))

	plan, err := c.PrunePlan("inventory")
	require.NoError(t, err)
	assert.Empty(t, plan.ToDelete)

	result, err := c.Prune(context.Background(), "inventory")
	require.NoError(t, err)
	assert.Empty(t, result.Deleted)
}

func TestClient_MetricsHandler(t *testing.T) {
	c := newClient(t)
	assert.NotNil(t, c.MetricsHandler())
}
