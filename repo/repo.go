// Package repo builds the immutable repository registry from configuration
// at startup, replacing the teacher's process-global driver-factory
// singleton with owned, per-repository handles passed down to the
// dispatcher, per DESIGN NOTES §9.
package repo

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/reposync/reposyncd/auth"
	"github.com/reposync/reposyncd/auth/authstore"
	"github.com/reposync/reposyncd/configuration"
	"github.com/reposync/reposyncd/lock"
	"github.com/reposync/reposyncd/storage"
)

// Repository is one named repository's full set of owned handles.
type Repository struct {
	Name  string
	Root  string
	Users map[string]auth.User

	Objects *storage.ObjectStore
	Chain   *storage.CommitChain
	Staging *storage.Staging

	ProcessLock *lock.ProcessLock
	UserLock    *lock.UserLock

	Auth *auth.Authenticator

	ChallengeTTL time.Duration
	SessionTTL   time.Duration
	UserLockTTL  time.Duration

	authStore *authstore.Store
}

// Close releases the repository's long-lived handles (the auth store's
// bbolt file descriptor).
func (r *Repository) Close() error {
	if r.authStore != nil {
		return r.authStore.Close()
	}
	return nil
}

// Registry is the immutable map of configured repositories, built once at
// startup and never mutated thereafter.
type Registry struct {
	repos map[string]*Repository
}

// Build constructs a Registry from cfg, opening each repository's auth
// store. Callers own the returned Registry and must Close it on shutdown.
func Build(cfg *configuration.Configuration) (*Registry, error) {
	users := map[string]auth.User{}
	for name, u := range cfg.Users {
		pub, err := auth.DecodePublicKey(u.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", name, err)
		}
		grants := make(map[string]bool, len(u.UsesRepositories))
		for _, repoName := range u.UsesRepositories {
			grants[repoName] = true
		}
		users[name] = auth.User{PublicKey: pub, UsesRepositories: grants}
	}

	challengeTTL := time.Duration(cfg.Auth.ChallengeTTLSeconds) * time.Second
	sessionTTL := time.Duration(cfg.Auth.SessionTTLSeconds) * time.Second
	userLockTTL := time.Duration(cfg.Auth.UserLockTTLSeconds) * time.Second

	repos := make(map[string]*Repository, len(cfg.Repositories))
	for name, rc := range cfg.Repositories {
		authDBPath := filepath.Join(rc.Path, "auth_transient.db")
		store, err := authstore.Open(authDBPath)
		if err != nil {
			return nil, fmt.Errorf("repository %q: open auth store: %w", name, err)
		}

		repos[name] = &Repository{
			Name:         name,
			Root:         rc.Path,
			Users:        users,
			Objects:      storage.NewObjectStore(rc.Path),
			Chain:        storage.NewCommitChain(rc.Path),
			Staging:      storage.NewStaging(rc.Path),
			ProcessLock:  lock.NewProcessLock(filepath.Join(rc.Path, "lock_file")),
			UserLock:     lock.NewUserLock(filepath.Join(rc.Path, "user_file")),
			Auth:         auth.NewAuthenticator(store, users, challengeTTL, sessionTTL),
			ChallengeTTL: challengeTTL,
			SessionTTL:   sessionTTL,
			UserLockTTL:  userLockTTL,
			authStore:    store,
		}
	}

	return &Registry{repos: repos}, nil
}

// Get returns the named repository, or nil if unknown.
func (r *Registry) Get(name string) *Repository {
	return r.repos[name]
}

// Close closes every repository's owned handles.
func (r *Registry) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
