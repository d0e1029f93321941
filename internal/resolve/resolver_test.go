package resolve_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/haven-project/haven/internal/resolve"
	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/logging"
	"github.com/haven-project/haven/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver() *resolve.Resolver {
	return resolve.NewResolver("tezgah", logging.Nop())
}

func descriptor(templates ...string) model.ResourceDescriptor {
	return model.ResourceDescriptor{
		Name:               "inventory",
		Kind:               model.KindDatabase,
		CandidateTemplates: templates,
		Mode:               model.ModeReadWrite,
	}
}

func TestResolve_ExplicitFirst(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "inventory.db")

	candidates, err := newResolver().Resolve(context.Background(), descriptor(explicit))
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	assert.Equal(t, explicit, candidates[0].Path)
	assert.Equal(t, model.OriginExplicit, candidates[0].Origin)
	assert.Equal(t, 0, candidates[0].Rank)
	assert.False(t, candidates[0].CreationRequired)
}

func TestResolve_ImplicitTail(t *testing.T) {
	candidates, err := newResolver().Resolve(context.Background(), descriptor())
	require.NoError(t, err)
	require.NotEmpty(t, candidates, "implicit locations always yield candidates")

	origins := make(map[model.CandidateOrigin]bool)
	for _, c := range candidates {
		origins[c.Origin] = true
		assert.NotEqual(t, model.OriginExplicit, c.Origin)
	}
	assert.True(t, origins[model.OriginTempDir], "temp dir is always present")

	last := candidates[len(candidates)-1]
	assert.Equal(t, model.OriginTempDir, last.Origin)
	assert.Equal(t, filepath.Join(os.TempDir(), "tezgah", "inventory.db"), last.Path)
}

func TestResolve_TemplateExpansion(t *testing.T) {
	t.Setenv("HAVEN_TEST_DATA", t.TempDir())

	candidates, err := newResolver().Resolve(context.Background(),
		descriptor("${HAVEN_TEST_DATA}/{appname}/inventory.db"))
	require.NoError(t, err)

	expected := filepath.Join(os.Getenv("HAVEN_TEST_DATA"), "tezgah", "inventory.db")
	assert.Equal(t, expected, candidates[0].Path)
	assert.True(t, candidates[0].CreationRequired, "parent dir does not exist yet")
}

func TestResolve_SkipsBadTemplates(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "inventory.db")

	candidates, err := newResolver().Resolve(context.Background(),
		descriptor("${HAVEN_DEFINITELY_UNDEFINED}/inventory.db", good))
	require.NoError(t, err)

	assert.Equal(t, good, candidates[0].Path)
	assert.Equal(t, model.OriginExplicit, candidates[0].Origin)
}

func TestResolve_InvalidName(t *testing.T) {
	desc := descriptor()
	desc.Name = "bad/name"
	_, err := newResolver().Resolve(context.Background(), desc)
	require.ErrorIs(t, err, errclass.ErrNameInvalid)
}

func TestResolve_InvalidKind(t *testing.T) {
	desc := descriptor()
	desc.Kind = "blob"
	_, err := newResolver().Resolve(context.Background(), desc)
	require.ErrorIs(t, err, errclass.ErrConfiguration)
}

func TestResolve_InvalidMode(t *testing.T) {
	desc := descriptor()
	desc.Mode = "append"
	_, err := newResolver().Resolve(context.Background(), desc)
	require.ErrorIs(t, err, errclass.ErrConfiguration)
}

func TestResolve_DeduplicatesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.db")

	candidates, err := newResolver().Resolve(context.Background(), descriptor(path, path))
	require.NoError(t, err)

	count := 0
	for _, c := range candidates {
		if c.Path == path {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestResolve_BundleHasNoExtension(t *testing.T) {
	desc := model.ResourceDescriptor{
		Name: "reports",
		Kind: model.KindBundle,
		Mode: model.ModeReadWrite,
	}
	candidates, err := newResolver().Resolve(context.Background(), desc)
	require.NoError(t, err)

	last := candidates[len(candidates)-1]
	assert.Equal(t, filepath.Join(os.TempDir(), "tezgah", "reports"), last.Path)
}

func TestEnsureParent(t *testing.T) {
	dir := t.TempDir()
	c := model.Candidate{
		Path:             filepath.Join(dir, "deep", "nested", "inventory.db"),
		CreationRequired: true,
	}

	r := newResolver()
	err := r.EnsureParent(c, model.ModeReadWrite)
	require.ErrorIs(t, err, errclass.ErrNotFound, "rw mode cannot create")

	require.NoError(t, r.EnsureParent(c, model.ModeCreateIfAbsent))
	assert.DirExists(t, filepath.Join(dir, "deep", "nested"))

	// Already-present parents are a no-op regardless of mode.
	c.CreationRequired = false
	require.NoError(t, r.EnsureParent(c, model.ModeReadOnly))
}
