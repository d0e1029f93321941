package diff_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/haven-project/haven/internal/backup"
	"github.com/haven-project/haven/internal/compression"
	"github.com/haven-project/haven/internal/diff"
	"github.com/haven-project/haven/internal/journal"
	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/logging"
	"github.com/haven-project/haven/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	vault  *vault.Vault
	store  *backup.Store
	differ *diff.Differ
}

func newFixture(t *testing.T, level compression.Level) *fixture {
	t.Helper()
	v, err := vault.Init(t.TempDir())
	require.NoError(t, err)
	jrn := journal.NewAppender(v.JournalPath())
	return &fixture{
		vault: v,
		store: backup.NewStore(v, jrn, model.DefaultRetentionPolicy(),
			compression.NewCompressor(level), logging.Nop()),
		differ: diff.NewDiffer(v, logging.Nop()),
	}
}

func fileDesc(name string) model.ResourceDescriptor {
	return model.ResourceDescriptor{Name: name, Kind: model.KindFile, Mode: model.ModeReadWrite}
}

func bundleDesc(name string, members ...string) model.ResourceDescriptor {
	return model.ResourceDescriptor{
		Name: name, Kind: model.KindBundle, Mode: model.ModeReadWrite,
		BundleManifest: members,
	}
}

func (f *fixture) snapshotFile(t *testing.T, name, content string) *model.BackupRecord {
	t.Helper()
	src := filepath.Join(t.TempDir(), name+".dat")
	require.NoError(t, os.WriteFile(src, []byte(content), 0644))
	rec, err := f.store.Snapshot(context.Background(), fileDesc(name), src, "")
	require.NoError(t, err)
	return rec
}

func TestDiff_Identical(t *testing.T) {
	f := newFixture(t, compression.LevelNone)
	a := f.snapshotFile(t, "inventory", "same content")
	b := f.snapshotFile(t, "inventory", "same content")

	result, err := f.differ.Diff("inventory", a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Equal(t, a.CreatedAt, result.FromTime)
}

func TestDiff_Modified(t *testing.T) {
	f := newFixture(t, compression.LevelNone)
	a := f.snapshotFile(t, "inventory", "version one")
	b := f.snapshotFile(t, "inventory", "version two!")

	result, err := f.differ.Diff("inventory", a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, result.Modified, 1)
	assert.Equal(t, "payload", result.Modified[0].Path)
	assert.NotEqual(t, result.Modified[0].OldHash, result.Modified[0].NewHash)
	assert.Contains(t, result.FormatHuman(), "Modified (1)")
}

func TestDiff_EmptyFromShowsAllAdded(t *testing.T) {
	f := newFixture(t, compression.LevelNone)
	rec := f.snapshotFile(t, "inventory", "content")

	result, err := f.differ.Diff("inventory", "", rec.ID)
	require.NoError(t, err)
	require.Len(t, result.Added, 1)
	assert.Empty(t, result.Removed)
}

func TestDiff_Bundle(t *testing.T) {
	f := newFixture(t, compression.LevelNone)
	dir := t.TempDir()
	src := filepath.Join(dir, "reports")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("aaa"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.txt"), []byte("bbb"), 0644))

	desc := bundleDesc("reports", "a.txt", "b.txt")
	first, err := f.store.Snapshot(context.Background(), desc, src, "")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(src, "b.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("changed"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "c.txt"), []byte("ccc"), 0644))
	second, err := f.store.Snapshot(context.Background(), desc, src, "")
	require.NoError(t, err)

	result, err := f.differ.Diff("reports", first.ID, second.ID)
	require.NoError(t, err)
	require.Len(t, result.Added, 1)
	assert.Equal(t, "payload/c.txt", result.Added[0].Path)
	require.Len(t, result.Removed, 1)
	assert.Equal(t, "payload/b.txt", result.Removed[0].Path)
	require.Len(t, result.Modified, 1)
	assert.Equal(t, "payload/a.txt", result.Modified[0].Path)
}

func TestDiffLive_UnchangedCompressed(t *testing.T) {
	// The payload is stored gzipped; hashing through decompression must make
	// it compare equal to the identical live file.
	f := newFixture(t, compression.LevelDefault)
	src := filepath.Join(t.TempDir(), "inventory.dat")
	require.NoError(t, os.WriteFile(src, []byte("live content that compresses"), 0644))

	rec, err := f.store.Snapshot(context.Background(), fileDesc("inventory"), src, "")
	require.NoError(t, err)
	require.True(t, rec.Compressed)

	result, err := f.differ.DiffLive("inventory", rec.ID, src)
	require.NoError(t, err)
	assert.True(t, result.Empty(), "unchanged live file should produce no diff: %+v", result)
}

func TestDiffLive_DriftedFile(t *testing.T) {
	f := newFixture(t, compression.LevelNone)
	src := filepath.Join(t.TempDir(), "inventory.dat")
	require.NoError(t, os.WriteFile(src, []byte("original"), 0644))

	rec, err := f.store.Snapshot(context.Background(), fileDesc("inventory"), src, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(src, []byte("drifted"), 0644))
	result, err := f.differ.DiffLive("inventory", rec.ID, src)
	require.NoError(t, err)
	require.Len(t, result.Modified, 1)
}

func TestDiffLive_MissingLivePath(t *testing.T) {
	f := newFixture(t, compression.LevelNone)
	rec := f.snapshotFile(t, "inventory", "content")

	result, err := f.differ.DiffLive("inventory", rec.ID, filepath.Join(t.TempDir(), "gone.dat"))
	require.NoError(t, err)
	require.Len(t, result.Removed, 1, "everything in the backup is missing live")
}

func TestDiff_ShortIDPrefix(t *testing.T) {
	f := newFixture(t, compression.LevelNone)
	a := f.snapshotFile(t, "inventory", "one")
	b := f.snapshotFile(t, "inventory", "two")

	// 18 characters cover the timestamp plus half the random suffix, enough
	// to be unique even for snapshots taken in the same millisecond.
	result, err := f.differ.Diff("inventory", a.ID[:18], b.ID[:18])
	require.NoError(t, err)
	assert.Equal(t, a.ID, result.FromID, "prefix resolves to the full ID")
	assert.Equal(t, b.ID, result.ToID)
	require.Len(t, result.Modified, 1)
}

func TestDiff_UnknownBackup(t *testing.T) {
	f := newFixture(t, compression.LevelNone)
	f.snapshotFile(t, "inventory", "content")

	_, err := f.differ.Diff("inventory", "", "fffffffffffff-00000000")
	require.ErrorIs(t, err, errclass.ErrNotFound)

	_, err = f.differ.Diff("ghost", "", "fffffffffffff-00000000")
	require.ErrorIs(t, err, errclass.ErrNotFound)
}
