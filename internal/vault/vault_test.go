package vault_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	dir := t.TempDir()

	v, err := vault.Init(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, v.Root)
	assert.Equal(t, vault.FormatVersion, v.FormatVersion)
	assert.NotEmpty(t, v.VaultID)

	for _, sub := range []string{"backups", "records", "intents", "journal", "locks", "registry"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err, sub)
		assert.True(t, info.IsDir())
	}
}

func TestInit_AlreadyInitialized(t *testing.T) {
	dir := t.TempDir()
	_, err := vault.Init(dir)
	require.NoError(t, err)

	_, err = vault.Init(dir)
	require.ErrorIs(t, err, errclass.ErrConfiguration)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	created, err := vault.Init(dir)
	require.NoError(t, err)

	opened, err := vault.Open(dir)
	require.NoError(t, err)
	assert.Equal(t, created.VaultID, opened.VaultID)
}

func TestOpen_Missing(t *testing.T) {
	_, err := vault.Open(filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, errclass.ErrNotFound)
}

func TestOpen_FutureFormat(t *testing.T) {
	dir := t.TempDir()
	_, err := vault.Init(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, vault.FormatVersionFile), []byte("99\n"), 0644))

	_, err = vault.Open(dir)
	require.ErrorIs(t, err, errclass.ErrFormatUnsupported)
}

func TestOpenOrInit(t *testing.T) {
	dir := t.TempDir()

	v1, err := vault.OpenOrInit(dir)
	require.NoError(t, err)
	v2, err := vault.OpenOrInit(dir)
	require.NoError(t, err)
	assert.Equal(t, v1.VaultID, v2.VaultID)
}

func TestPathHelpers(t *testing.T) {
	dir := t.TempDir()
	v, err := vault.Init(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "backups", "inv", "b1"), v.BackupPayloadDir("inv", "b1"))
	assert.Equal(t, filepath.Join(dir, "records", "inv", "b1.json"), v.BackupRecordPath("inv", "b1"))
	assert.Equal(t, filepath.Join(dir, "journal", "journal.jsonl"), v.JournalPath())
	assert.Equal(t, filepath.Join(dir, "locks", "inv.lock.json"), v.LockPath("inv"))
	assert.Equal(t, filepath.Join(dir, "registry", "inv.json"), v.RegistryPath("inv"))
}
