package server

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reposync/reposyncd/configuration"
	"github.com/reposync/reposyncd/repo"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cfgYAML := fmt.Sprintf(`
version: 0.1
repositories:
  main:
    path: %s
users:
  alice:
    public_key: %s
    uses_repositories: [main]
`, t.TempDir(), base64.StdEncoding.EncodeToString(pub))

	cfg, err := configuration.Parse(strings.NewReader(cfgYAML))
	require.NoError(t, err)

	registry, err := repo.Build(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	app := NewApp(registry, nil)

	_ = priv
	return app, base64.StdEncoding.EncodeToString(priv)
}

func doRequest(t *testing.T, app *App, endpoint string, headers map[string]string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/"+endpoint, bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.1:12345"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func authenticateSession(t *testing.T, app *App, privB64 string) string {
	t.Helper()
	priv, err := base64.StdEncoding.DecodeString(privB64)
	require.NoError(t, err)

	rec := doRequest(t, app, "begin_auth", map[string]string{"repository": "main"}, nil)
	require.Equal(t, "ok", rec.Header().Get("status"))
	var beginResp struct {
		AuthToken string `json:"auth_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &beginResp))

	raw, err := base64.StdEncoding.DecodeString(beginResp.AuthToken)
	require.NoError(t, err)
	sig := ed25519.Sign(ed25519.PrivateKey(priv), raw)

	body, _ := json.Marshal(map[string]string{
		"user":       "alice",
		"auth_token": beginResp.AuthToken,
		"signature":  base64.StdEncoding.EncodeToString(sig),
	})
	rec = doRequest(t, app, "authenticate", map[string]string{"repository": "main"}, body)
	require.Equal(t, "ok", rec.Header().Get("status"))
	var authResp struct {
		SessionToken string `json:"session_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authResp))
	require.NotEmpty(t, authResp.SessionToken)
	return authResp.SessionToken
}

func TestInitialCommitScenario(t *testing.T) {
	app, privB64 := newTestApp(t)
	session := authenticateSession(t, app, privB64)

	headers := map[string]string{"repository": "main", "session_token": session}

	beginHeaders := map[string]string{"repository": "main", "session_token": session, "previous_revision": "root"}
	rec := doRequest(t, app, "begin_commit", beginHeaders, nil)
	require.Equal(t, "ok", rec.Header().Get("status"))

	pushHeaders := map[string]string{"repository": "main", "session_token": session, "path": "/test1"}
	rec = doRequest(t, app, "push_file", pushHeaders, []byte("test file jhgrtelkj"))
	require.Equal(t, "ok", rec.Header().Get("status"))

	content2 := make([]byte, 256)
	for i := range content2 {
		content2[i] = byte(i)
	}
	pushHeaders2 := map[string]string{"repository": "main", "session_token": session, "path": "/test2"}
	rec = doRequest(t, app, "push_file", pushHeaders2, content2)
	require.Equal(t, "ok", rec.Header().Get("status"))

	commitHeaders := map[string]string{
		"repository":     "main",
		"session_token":  session,
		"mode":           "commit",
		"commit_message": "test commit",
	}
	rec = doRequest(t, app, "commit", commitHeaders, nil)
	require.Equal(t, "ok", rec.Header().Get("status"))

	var commitResp struct {
		Head string `json:"head"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &commitResp))
	require.NotEmpty(t, commitResp.Head)

	rec = doRequest(t, app, "list_versions", headers, nil)
	require.Equal(t, "ok", rec.Header().Get("status"))
	var versions struct {
		Versions []struct {
			Message string `json:"message"`
		} `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &versions))
	require.Len(t, versions.Versions, 1)
	require.Equal(t, "test commit", versions.Versions[0].Message)

	rec = doRequest(t, app, "list_files", map[string]string{
		"repository": "main", "session_token": session, "version_id": commitResp.Head,
	}, nil)
	require.Equal(t, "ok", rec.Header().Get("status"))
	var files struct {
		Files []string `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.ElementsMatch(t, []string{"/test1", "/test2"}, files.Files)
}

func TestUnknownRepositoryRejected(t *testing.T) {
	app, _ := newTestApp(t)
	rec := doRequest(t, app, "begin_auth", map[string]string{"repository": "nope"}, nil)
	require.Equal(t, "fail", rec.Header().Get("status"))
	require.Equal(t, "The requested repository does not exist", rec.Header().Get("msg"))
}

func TestMutatingWithoutActiveCommitRejected(t *testing.T) {
	app, privB64 := newTestApp(t)
	session := authenticateSession(t, app, privB64)

	rec := doRequest(t, app, "push_file", map[string]string{
		"repository": "main", "session_token": session, "path": "/x",
	}, []byte("data"))
	require.Equal(t, "fail", rec.Header().Get("status"))
	require.Equal(t, "A commit must be started before attempting this operation.", rec.Header().Get("msg"))
}
