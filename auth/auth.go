// Package auth implements the challenge/session protocol from spec §4.5:
// short-lived signed challenges and longer-lived per-IP session tokens.
// Shaped after the teacher's registry/auth/token accesscontroller
// (registration/verification pipeline), but verifies Ed25519 detached
// signatures instead of JWTs, and persists its two relations through
// auth/authstore instead of an in-process cache.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/reposync/reposyncd/auth/authstore"
)

const tokenBytes = 35

// User is the subset of a configured user identity the authenticator needs.
type User struct {
	PublicKey        ed25519.PublicKey
	UsesRepositories map[string]bool
}

// Authenticator runs the challenge/session protocol against one
// repository's auth store.
type Authenticator struct {
	store        *authstore.Store
	users        map[string]User
	challengeTTL time.Duration
	sessionTTL   time.Duration
}

// NewAuthenticator returns an Authenticator backed by store.
func NewAuthenticator(store *authstore.Store, users map[string]User, challengeTTL, sessionTTL time.Duration) *Authenticator {
	return &Authenticator{store: store, users: users, challengeTTL: challengeTTL, sessionTTL: sessionTTL}
}

// DecodePublicKey base64-decodes a configured user's public key field.
func DecodePublicKey(b64 string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has wrong length %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// BeginAuth issues a fresh 30s challenge for the requesting IP.
func (a *Authenticator) BeginAuth(ip string, now time.Time) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	err = a.store.PutChallenge(authstore.Challenge{
		Token:   token,
		Expires: now.Add(a.challengeTTL).Unix(),
		IP:      ip,
	})
	if err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return token, nil
}

// AuthenticateRequest carries whichever of the resume/new-session fields
// the client supplied; exactly one mode applies.
type AuthenticateRequest struct {
	IP           string
	Repository   string
	SessionToken string // resume mode

	User      string // new-session mode
	AuthToken string
	Signature []byte
}

// Authenticate runs either the resume or new-session protocol and returns
// a valid session token, or an opaque error (spec: auth failures never
// distinguish cause).
func (a *Authenticator) Authenticate(req AuthenticateRequest, now time.Time) (string, error) {
	if req.SessionToken != "" {
		return a.resume(req, now)
	}
	return a.newSession(req, now)
}

var errAuthFailed = fmt.Errorf("authentication failed")

func (a *Authenticator) resume(req AuthenticateRequest, now time.Time) (string, error) {
	if err := a.store.GCSessionsExcept(now, ""); err != nil {
		return "", fmt.Errorf("gc sessions: %w", err)
	}
	sess, ok, err := a.store.GetSession(req.SessionToken)
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	if !ok || sess.IP != req.IP {
		return "", errAuthFailed
	}
	return req.SessionToken, nil
}

func (a *Authenticator) newSession(req AuthenticateRequest, now time.Time) (string, error) {
	user, ok := a.users[req.User]
	if !ok {
		return "", errAuthFailed
	}
	if !user.UsesRepositories[req.Repository] {
		return "", errAuthFailed
	}

	raw, err := base64.StdEncoding.DecodeString(req.AuthToken)
	if err != nil {
		return "", errAuthFailed
	}
	if !ed25519.Verify(user.PublicKey, raw, req.Signature) {
		return "", errAuthFailed
	}

	challenge, ok, err := a.store.GetChallenge(req.AuthToken)
	if err != nil {
		return "", fmt.Errorf("lookup challenge: %w", err)
	}
	if !ok || challenge.IP != req.IP || challenge.Expires < now.Unix() {
		return "", errAuthFailed
	}

	if err := a.store.DeleteChallenge(req.AuthToken); err != nil {
		return "", fmt.Errorf("consume challenge: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	err = a.store.PutSession(authstore.Session{
		Token:    token,
		Expires:  now.Add(a.sessionTTL).Unix(),
		IP:       req.IP,
		Username: req.User,
	})
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Authorize runs have_authenticated_user: GCs expired sessions (excluding
// heldByToken, which may be mid-upload past its nominal expiry), then
// validates sessionToken against ip and repository access, refreshing its
// expiry on success.
func (a *Authenticator) Authorize(sessionToken, ip, repository string, now time.Time, heldByToken string) (username string, err error) {
	if err := a.store.GCSessionsExcept(now, heldByToken); err != nil {
		return "", fmt.Errorf("gc sessions: %w", err)
	}
	sess, ok, err := a.store.GetSession(sessionToken)
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	if !ok || sess.IP != ip {
		return "", errAuthFailed
	}
	user, ok := a.users[sess.Username]
	if !ok || !user.UsesRepositories[repository] {
		return "", errAuthFailed
	}
	if err := a.store.RefreshSession(sessionToken, now.Add(a.sessionTTL).Unix()); err != nil {
		return "", fmt.Errorf("refresh session: %w", err)
	}
	return sess.Username, nil
}
