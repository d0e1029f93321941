package pathutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName_Valid(t *testing.T) {
	for _, name := range []string{"inventory", "app.db", "update-files", "v2_data", "a"} {
		assert.NoError(t, pathutil.ValidateName(name), name)
	}
}

func TestValidateName_Invalid(t *testing.T) {
	cases := []string{
		"",
		"..",
		"a..b",
		"a/b",
		`a\b`,
		"a b",
		"a\x00b",
		"ünvan",
	}
	for _, name := range cases {
		err := pathutil.ValidateName(name)
		require.ErrorIs(t, err, errclass.ErrNameInvalid, "%q", name)
	}
}

func TestNormalizeName_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed form.
	decomposed := "café"
	assert.Equal(t, "café", pathutil.NormalizeName(decomposed))
}

func TestValidatePathSafety_Inside(t *testing.T) {
	root := t.TempDir()
	assert.NoError(t, pathutil.ValidatePathSafety(root, filepath.Join(root, "backups", "b1")))
	assert.NoError(t, pathutil.ValidatePathSafety(root, root))
}

func TestValidatePathSafety_Escape(t *testing.T) {
	root := t.TempDir()
	err := pathutil.ValidatePathSafety(root, filepath.Join(root, "..", "outside"))
	require.ErrorIs(t, err, errclass.ErrConfiguration)
}

func TestValidatePathSafety_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(outside, link))

	err := pathutil.ValidatePathSafety(root, filepath.Join(link, "file"))
	require.ErrorIs(t, err, errclass.ErrConfiguration)
}
