package compression_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haven-project/haven/internal/compression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		level   compression.Level
		enabled bool
	}{
		{"none", compression.LevelNone, false},
		{"0", compression.LevelNone, false},
		{"fast", compression.LevelFast, true},
		{"default", compression.LevelDefault, true},
		{"MAX", compression.LevelMax, true},
	}
	for _, tt := range tests {
		c, err := compression.ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.level, c.Level)
		assert.Equal(t, tt.enabled, c.IsEnabled())
	}

	_, err := compression.ParseLevel("turbo")
	require.Error(t, err)
}

func TestCompressDecompressFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	payload := strings.Repeat("compressible content ", 200)
	require.NoError(t, os.WriteFile(path, []byte(payload), 0644))

	c := compression.NewCompressor(compression.LevelDefault)
	gzPath, err := c.CompressFile(path)
	require.NoError(t, err)
	assert.Equal(t, path+".gz", gzPath)
	assert.NoFileExists(t, path)

	info, err := os.Stat(gzPath)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(payload)))

	restored, err := compression.DecompressFile(gzPath)
	require.NoError(t, err)
	assert.Equal(t, path, restored)
	assert.NoFileExists(t, gzPath)

	data, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestCompressFile_Disabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	c := compression.NewCompressor(compression.LevelNone)
	out, err := c.CompressFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, out)
	assert.FileExists(t, path)
}

func TestCompressDecompressDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("aaa"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.txt"), []byte("bbb"), 0644))

	c := compression.NewCompressor(compression.LevelFast)
	n, err := c.CompressDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(dir, "a.txt.gz"))

	n, err = compression.DecompressDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(dir, "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bbb", string(data))
}

func TestDecompressFile_NotCompressed(t *testing.T) {
	out, err := compression.DecompressFile("/tmp/plain.txt")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/plain.txt", out)
}

func TestIsCompressedFile(t *testing.T) {
	assert.True(t, compression.IsCompressedFile("payload.db.gz"))
	assert.False(t, compression.IsCompressedFile("payload.db"))
}
