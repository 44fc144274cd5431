package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/voxide/voxrag/internal/errors"
)

func TestAcquireDirLock_Exclusive(t *testing.T) {
	// Given: a held lock on a data directory
	dir := t.TempDir()
	l, err := AcquireDirLock(dir)
	require.NoError(t, err)
	defer func() { _ = l.Release() }()

	// When: a second acquire is attempted on the same directory
	_, err = AcquireDirLock(dir)

	// Then: it fails fast with the lock error
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeDataDirLocked, verrors.GetCode(err))
	assert.True(t, verrors.IsFatal(err))
}

func TestAcquireDirLock_ReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	l, err := AcquireDirLock(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	l2, err := AcquireDirLock(dir)
	require.NoError(t, err)
	assert.NoError(t, l2.Release())
}
