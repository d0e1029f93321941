package jsonutil_test

import (
	"testing"

	"github.com/haven-project/haven/pkg/jsonutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalMarshal_SortsKeys(t *testing.T) {
	data, err := jsonutil.CanonicalMarshal(map[string]any{
		"zeta":  1,
		"alpha": 2,
		"mid":   []any{"b", "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":["b","a"],"zeta":1}`, string(data))
}

func TestCanonicalMarshal_StructDeterminism(t *testing.T) {
	type rec struct {
		Name  string            `json:"name"`
		Count int               `json:"count"`
		Tags  map[string]string `json:"tags"`
	}
	v := rec{Name: "inventory", Count: 3, Tags: map[string]string{"b": "2", "a": "1"}}

	first, err := jsonutil.CanonicalMarshal(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := jsonutil.CanonicalMarshal(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCanonicalMarshal_Null(t *testing.T) {
	data, err := jsonutil.CanonicalMarshal(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestCanonicalSHA256(t *testing.T) {
	h1, err := jsonutil.CanonicalSHA256(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	h2, err := jsonutil.CanonicalSHA256(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	h3, err := jsonutil.CanonicalSHA256(map[string]any{"a": 1, "b": 3})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestCanonicalMarshal_Unmarshalable(t *testing.T) {
	_, err := jsonutil.CanonicalSHA256(func() {})
	require.Error(t, err)
}
