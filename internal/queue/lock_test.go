package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faizalindrak/mass-email-sender-desktop/internal/hostlog"
)

func TestAcquireAndReleaseLock(t *testing.T) {
	root := t.TempDir()

	handle, err := AcquireLock(root, hostlog.Discard())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, LockFileName))

	data, err := os.ReadFile(filepath.Join(root, LockFileName))
	require.NoError(t, err)
	var rec lockRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, os.Getpid(), rec.OwnerPID)
	assert.WithinDuration(t, time.Now(), rec.AcquiredAt, time.Minute)

	require.NoError(t, handle.Release())
	assert.NoFileExists(t, filepath.Join(root, LockFileName))
}

func TestAcquireContendsWithLiveOwner(t *testing.T) {
	root := t.TempDir()

	// Our own pid is certainly alive.
	handle, err := AcquireLock(root, hostlog.Discard())
	require.NoError(t, err)
	defer handle.Release()

	_, err = AcquireLock(root, hostlog.Discard())
	require.ErrorIs(t, err, ErrLockContention)
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	root := t.TempDir()

	// A pid far beyond any live process on the test machine.
	stale := lockRecord{OwnerPID: 1 << 30, AcquiredAt: time.Now().Add(-time.Hour)}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, LockFileName), data, 0o644))

	handle, err := AcquireLock(root, hostlog.Discard())
	require.NoError(t, err)
	defer handle.Release()

	// The reclaimed record now names this process.
	data, err = os.ReadFile(filepath.Join(root, LockFileName))
	require.NoError(t, err)
	var rec lockRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, os.Getpid(), rec.OwnerPID)
}

func TestAcquireReclaimsCorruptLock(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, LockFileName), []byte("garbage"), 0o644))

	handle, err := AcquireLock(root, hostlog.Discard())
	require.NoError(t, err)
	defer handle.Release()
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(1))
	assert.Equal(t, 800*time.Millisecond, retryDelay(2))
	assert.Equal(t, time.Second, retryDelay(3))
	assert.Equal(t, time.Second, retryDelay(4))
}
