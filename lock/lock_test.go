package lock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProcessLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock_file")
	l1 := NewProcessLock(path)
	unlock, err := l1.TryLock()
	require.NoError(t, err)

	l2 := NewProcessLock(path)
	_, err = l2.TryLock()
	require.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, unlock())

	l3 := NewProcessLock(path)
	unlock3, err := l3.TryLock()
	require.NoError(t, err)
	require.NoError(t, unlock3())
}

func TestUserLockAcquireAndExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_file")
	ul := NewUserLock(path)

	now := time.Unix(1_000_000, 0)
	require.True(t, ul.CanAcquire("session-a", now))
	require.NoError(t, ul.Acquire("session-a", now, 30*time.Second))

	// Same session may refresh.
	require.True(t, ul.CanAcquire("session-a", now.Add(10*time.Second)))
	// A different, live session may not.
	require.False(t, ul.CanAcquire("session-b", now.Add(10*time.Second)))

	// After the 30s TTL elapses, scenario 6: a second client's begin_commit
	// succeeds.
	require.True(t, ul.CanAcquire("session-b", now.Add(31*time.Second)))
}

func TestUserLockClearUnlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_file")
	ul := NewUserLock(path)
	now := time.Unix(0, 0)

	require.NoError(t, ul.Acquire("session-a", now, 30*time.Second))
	require.NoError(t, ul.Clear())
	require.True(t, ul.CanAcquire("session-b", now))
}

func TestUserLockFailsClosedOnCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_file")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	ul := NewUserLock(path)
	require.False(t, ul.CanAcquire("session-a", time.Unix(0, 0)))
}
