package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/reposync/reposyncd/internal/vctx"
	"github.com/reposync/reposyncd/repo"
)

// requestContext carries the per-request state resolved by the dispatcher
// before a handler runs, following the shape of the teacher's
// registry/handlers.Context built in App.context.
type requestContext struct {
	context.Context

	Repo         *repo.Repository
	RepoName     string
	RemoteIP     string
	SessionToken string
	Username     string
	Now          time.Time
}

func remoteIP(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}

func (app *App) newRequestContext(r *http.Request) *requestContext {
	repoName := r.Header.Get("repository")
	sessionToken := r.Header.Get("session_token")

	ctx := vctx.WithFields(r.Context(), map[string]interface{}{
		"repository": repoName,
		"remote_ip":  remoteIP(r),
	})

	return &requestContext{
		Context:      ctx,
		RepoName:     repoName,
		RemoteIP:     remoteIP(r),
		SessionToken: sessionToken,
		Repo:         app.Registry.Get(repoName),
		Now:          app.now(),
	}
}
