//go:build conformance

package conformance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-project/haven/pkg/model"
)

func TestLock_HeldWhileHandleOpenFreeAfterClose(t *testing.T) {
	c := newClient(t)
	path := writeFile(t, "inventory.dat", "x")
	desc := fileDesc("inventory", model.ModeReadWrite, path)

	h, _, err := c.Acquire(context.Background(), desc)
	require.NoError(t, err)

	state, rec, err := c.LockStatus("inventory")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateHeld, state)
	require.NotNil(t, rec)
	assert.Equal(t, "inventory", rec.Resource)

	require.NoError(t, h.Close())

	state, _, err = c.LockStatus("inventory")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateFree, state)
}

func TestLock_SecondAcquireConflictsWithOpenHandle(t *testing.T) {
	c := newClient(t)
	path := writeFile(t, "inventory.dat", "x")
	desc := fileDesc("inventory", model.ModeReadWrite, path)

	h, _, err := c.Acquire(context.Background(), desc)
	require.NoError(t, err)
	defer h.Close()

	_, _, err = c.Acquire(context.Background(), desc)
	require.Error(t, err)
}

func TestLock_ForceUnlockFreesAbandonedLease(t *testing.T) {
	c := newClient(t)
	path := writeFile(t, "inventory.dat", "x")
	desc := fileDesc("inventory", model.ModeReadWrite, path)

	h, _, err := c.Acquire(context.Background(), desc)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, c.ForceUnlock("inventory"))

	state, _, err := c.LockStatus("inventory")
	require.NoError(t, err)
	assert.Equal(t, model.LockStateFree, state)
}

func TestLock_ReacquireAfterClose(t *testing.T) {
	c := newClient(t)
	path := writeFile(t, "inventory.dat", "x")
	desc := fileDesc("inventory", model.ModeReadWrite, path)

	for i := 0; i < 3; i++ {
		h, status, err := c.Acquire(context.Background(), desc)
		require.NoError(t, err)
		assert.Equal(t, model.OperatingPrimary, status.Mode)
		require.NoError(t, h.Close())
	}

	entry, err := c.Resource("inventory")
	require.NoError(t, err)
	assert.Equal(t, 3, entry.AcquireCount)
}
