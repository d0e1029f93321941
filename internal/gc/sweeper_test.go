package gc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-project/haven/internal/backup"
	"github.com/haven-project/haven/internal/compression"
	"github.com/haven-project/haven/internal/gc"
	"github.com/haven-project/haven/internal/journal"
	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/logging"
	"github.com/haven-project/haven/pkg/model"
)

type fixture struct {
	vault   *vault.Vault
	store   *backup.Store
	sweeper *gc.Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	v, err := vault.Init(t.TempDir())
	require.NoError(t, err)
	jrn := journal.NewAppender(v.JournalPath())
	store := backup.NewStore(v, jrn, model.DefaultRetentionPolicy(),
		compression.NewCompressor(compression.LevelNone), logging.Nop())
	return &fixture{
		vault:   v,
		store:   store,
		sweeper: gc.NewSweeper(v, jrn, logging.Nop()),
	}
}

func (f *fixture) snapshot(t *testing.T, resource, content string) *model.BackupRecord {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.dat")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	rec, err := f.store.Snapshot(context.Background(), model.ResourceDescriptor{
		Name:               resource,
		Kind:               model.KindFile,
		CandidateTemplates: []string{path},
		Mode:               model.ModeReadWrite,
	}, path, "")
	require.NoError(t, err)
	return rec
}

func TestPlan_CleanVaultIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.snapshot(t, "inventory", "v1")

	plan, err := f.sweeper.Plan()
	require.NoError(t, err)
	assert.Zero(t, plan.Total())
}

func TestSweep_RemovesOrphanPayload(t *testing.T) {
	f := newFixture(t)
	f.snapshot(t, "inventory", "v1")

	orphan := f.vault.BackupPayloadDir("inventory", "0000000000000-deadbeef")
	require.NoError(t, os.MkdirAll(orphan, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(orphan, "payload"), []byte("lost"), 0644))

	plan, err := f.sweeper.Plan()
	require.NoError(t, err)
	require.Equal(t, []string{orphan}, plan.OrphanPayloads)
	assert.Greater(t, plan.EstimatedBytes, int64(0))

	result, err := f.sweeper.Run(plan.PlanID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.NoDirExists(t, orphan)
}

func TestSweep_KeepsRecordedPayloads(t *testing.T) {
	f := newFixture(t)
	rec := f.snapshot(t, "inventory", "v1")

	plan, err := f.sweeper.Plan()
	require.NoError(t, err)
	result, err := f.sweeper.Run(plan.PlanID)
	require.NoError(t, err)

	assert.Zero(t, result.Removed)
	assert.DirExists(t, rec.StoragePath)
}

func TestSweep_RemovesStaleIntent(t *testing.T) {
	f := newFixture(t)

	intent := f.vault.IntentPath("0000000000000-deadbeef")
	require.NoError(t, os.WriteFile(intent, []byte("{}"), 0644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(intent, old, old))

	plan, err := f.sweeper.Plan()
	require.NoError(t, err)
	require.Len(t, plan.StaleIntents, 1)

	result, err := f.sweeper.Run(plan.PlanID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.NoFileExists(t, intent)
}

func TestSweep_KeepsFreshIntent(t *testing.T) {
	f := newFixture(t)

	intent := f.vault.IntentPath("0000000000000-deadbeef")
	require.NoError(t, os.WriteFile(intent, []byte("{}"), 0644))

	plan, err := f.sweeper.Plan()
	require.NoError(t, err)
	assert.Empty(t, plan.StaleIntents)
	assert.FileExists(t, intent)
}

func TestSweep_RemovesOrphanTempFiles(t *testing.T) {
	f := newFixture(t)

	tmp := filepath.Join(f.vault.Root, ".haven-tmp-12345")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0644))

	plan, err := f.sweeper.Plan()
	require.NoError(t, err)
	require.Len(t, plan.TempFiles, 1)

	result, err := f.sweeper.Run(plan.PlanID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.NoFileExists(t, tmp)
}

func TestSweep_RevalidatesBeforeDeleting(t *testing.T) {
	f := newFixture(t)

	orphan := f.vault.BackupPayloadDir("inventory", "0000000000000-deadbeef")
	require.NoError(t, os.MkdirAll(orphan, 0755))

	plan, err := f.sweeper.Plan()
	require.NoError(t, err)
	require.Len(t, plan.OrphanPayloads, 1)

	// A record appears between planning and running: the payload must
	// survive the sweep.
	recDir := f.vault.BackupRecordsDir("inventory")
	require.NoError(t, os.MkdirAll(recDir, 0755))
	rec := model.BackupRecord{
		ID:          "0000000000000-deadbeef",
		Resource:    "inventory",
		StoragePath: orphan,
	}
	writeRecord(t, f.vault, &rec)

	result, err := f.sweeper.Run(plan.PlanID)
	require.NoError(t, err)
	assert.Zero(t, result.Removed)
	assert.Equal(t, 1, result.Skipped)
	assert.DirExists(t, orphan)
}

func TestRun_UnknownPlanFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.sweeper.Run("no-such-plan")
	require.Error(t, err)
}

func writeRecord(t *testing.T, v *vault.Vault, rec *model.BackupRecord) {
	t.Helper()
	data := []byte(`{"backup_id":"` + string(rec.ID) + `","resource":"` + rec.Resource +
		`","storage_path":"` + rec.StoragePath + `"}`)
	require.NoError(t, os.WriteFile(v.BackupRecordPath(rec.Resource, string(rec.ID)), data, 0644))
}
