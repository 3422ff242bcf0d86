package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// userLockDescriptor is the on-disk shape of a UserLock's user_file.
type userLockDescriptor struct {
	SessionToken string `json:"session_token"`
	Expires      int64  `json:"expires"`
}

// UserLock is the session-scoped, time-bounded reservation of a
// repository's write path (spec §4.4). It is read outside the process
// lock, which is safe because it is only ever updated via atomic rename.
type UserLock struct {
	path string
}

// NewUserLock returns a UserLock backed by the file at path
// (conventionally <repo_root>/user_file).
func NewUserLock(path string) *UserLock {
	return &UserLock{path: path}
}

// read returns the current descriptor. An absent or empty file means
// unlocked. A malformed record is surfaced via ok=false: per the documented
// decision in DESIGN.md this implementation fails closed, unlike the
// source's fail-open behavior on JSON parse errors.
func (l *UserLock) read() (desc userLockDescriptor, unlocked bool, ok bool) {
	data, err := os.ReadFile(l.path)
	if err != nil || len(data) == 0 {
		return userLockDescriptor{}, true, true
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return userLockDescriptor{}, false, false
	}
	return desc, false, true
}

// CanAcquire reports whether sessionToken may take the lock at now: the
// file is absent/empty, or expired, or already held by sessionToken.
// A malformed record fails closed (cannot acquire, manual intervention
// required) per the DESIGN.md decision.
func (l *UserLock) CanAcquire(sessionToken string, now time.Time) bool {
	desc, unlocked, ok := l.read()
	if !ok {
		return false
	}
	if unlocked {
		return true
	}
	if desc.Expires < now.Unix() {
		return true
	}
	return desc.SessionToken == sessionToken
}

// Acquire writes/refreshes the lock for sessionToken, extending its expiry
// to now+ttl. Callers must have already checked CanAcquire.
func (l *UserLock) Acquire(sessionToken string, now time.Time, ttl time.Duration) error {
	return l.write(userLockDescriptor{
		SessionToken: sessionToken,
		Expires:      now.Add(ttl).Unix(),
	})
}

// Clear releases the lock by writing an empty file, as commit/rollback do.
func (l *UserLock) Clear() error {
	return l.write(userLockDescriptor{})
}

// Held reports whether the lock is currently held (non-expired) by any
// session, and if so returns its token.
func (l *UserLock) Held(now time.Time) (token string, held bool) {
	desc, unlocked, ok := l.read()
	if !ok || unlocked {
		return "", false
	}
	if desc.Expires < now.Unix() {
		return "", false
	}
	return desc.SessionToken, true
}

func (l *UserLock) write(desc userLockDescriptor) error {
	if desc == (userLockDescriptor{}) {
		return l.writeRaw(nil)
	}
	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("marshal user lock: %w", err)
	}
	return l.writeRaw(data)
}

func (l *UserLock) writeRaw(data []byte) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "userlock-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("create temp user lock: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp user lock: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp user lock: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp user lock: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("publish user lock: %w", err)
	}
	return nil
}
