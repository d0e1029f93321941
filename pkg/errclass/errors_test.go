package errclass_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/haven-project/haven/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHavenError_Error(t *testing.T) {
	err := errclass.ErrLocked.WithMessage("database is locked")
	assert.Equal(t, "E_LOCKED: database is locked", err.Error())
}

func TestHavenError_ErrorBareCode(t *testing.T) {
	assert.Equal(t, "E_CORRUPT", errclass.ErrCorrupt.Error())
}

func TestHavenError_Is(t *testing.T) {
	err := errclass.ErrLockConflict.WithMessage("specific message")
	require.True(t, errors.Is(err, errclass.ErrLockConflict))
	require.False(t, errors.Is(err, errclass.ErrLockExpired))
}

func TestHavenError_IsThroughWrap(t *testing.T) {
	err := fmt.Errorf("acquire: %w", errclass.ErrDiskFull.WithMessage("no space"))
	require.True(t, errors.Is(err, errclass.ErrDiskFull))
}

func TestHavenError_WithMessagef(t *testing.T) {
	err := errclass.ErrNotFound.WithMessagef("resource %q missing", "inventory")
	assert.Equal(t, `E_NOT_FOUND: resource "inventory" missing`, err.Error())
	// The sentinel itself must stay pristine.
	assert.Empty(t, errclass.ErrNotFound.Message)
}

func TestCode(t *testing.T) {
	assert.Equal(t, "E_LOCKED", errclass.Code(errclass.ErrLocked))
	assert.Equal(t, "E_CORRUPT", errclass.Code(fmt.Errorf("wrap: %w", errclass.ErrCorrupt)))
	assert.Empty(t, errclass.Code(errors.New("plain")))
	assert.Empty(t, errclass.Code(nil))
}

func TestTaxonomyErrorsDefined(t *testing.T) {
	// One sentinel per taxonomy kind.
	all := []error{
		errclass.ErrNotFound,
		errclass.ErrPermissionDenied,
		errclass.ErrLocked,
		errclass.ErrCorrupt,
		errclass.ErrDiskFull,
		errclass.ErrConfiguration,
		errclass.ErrUnknown,
	}
	assert.Len(t, all, 7)
}
