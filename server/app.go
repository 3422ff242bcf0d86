// Package server implements the request dispatcher (C7): endpoint routing,
// precondition enforcement (auth, lock, commit-state), and response framing.
// Grounded on the teacher's registry/handlers/app.go App/Context/
// dispatchFunc/register pattern, adapted from Docker's media-type
// negotiation to this protocol's JSON/raw-bytes framing.
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/reposync/reposyncd/notify"
	"github.com/reposync/reposyncd/repo"
)

// App holds the process-wide state the dispatcher needs: the repository
// registry and an optional event bridge. It owns no per-repository mutable
// state itself (DESIGN NOTES §9).
type App struct {
	Registry *repo.Registry
	Notify   *notify.Bridge
	router   *mux.Router

	// nowFunc allows tests to pin the clock; defaults to time.Now.
	nowFunc func() time.Time
}

// NewApp builds an App with its router fully registered.
func NewApp(registry *repo.Registry, bridge *notify.Bridge) *App {
	app := &App{Registry: registry, Notify: bridge, nowFunc: time.Now}
	app.router = mux.NewRouter()
	app.register()
	return app
}

func (app *App) now() time.Time {
	if app.nowFunc != nil {
		return app.nowFunc()
	}
	return time.Now()
}

// ServeHTTP implements http.Handler.
func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	app.router.ServeHTTP(w, r)
}

type endpointKind int

const (
	kindAuth endpointKind = iota
	kindRead
	kindMutating
	kindBeginCommit
)

type endpoint struct {
	name    string
	kind    endpointKind
	handler func(*requestContext, http.ResponseWriter, *http.Request) error
}

func (app *App) register() {
	endpoints := []endpoint{
		{"begin_auth", kindAuth, app.handleBeginAuth},
		{"authenticate", kindAuth, app.handleAuthenticate},
		{"find_changed", kindRead, app.handleFindChanged},
		{"pull_file", kindRead, app.handlePullFile},
		{"list_versions", kindRead, app.handleListVersions},
		{"list_changes", kindRead, app.handleListChanges},
		{"list_files", kindRead, app.handleListFiles},
		{"begin_commit", kindBeginCommit, app.handleBeginCommit},
		{"push_file", kindMutating, app.handlePushFile},
		{"delete_files", kindMutating, app.handleDeleteFiles},
		{"commit", kindMutating, app.handleCommit},
	}
	for _, ep := range endpoints {
		app.router.Handle("/"+ep.name, app.dispatch(ep)).Methods(http.MethodPost)
	}
}
