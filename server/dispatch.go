package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/reposync/reposyncd/apierror"
	"github.com/reposync/reposyncd/internal/vctx"
	"github.com/reposync/reposyncd/metrics"
)

// dispatch wraps ep.handler with the precondition ordering from spec §4.7,
// mirroring the teacher's App.dispatcher: resolve a per-request context,
// enforce preconditions, invoke the handler, and serialize any resulting
// error onto the wire exactly once.
func (app *App) dispatch(ep endpoint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := app.newRequestContext(r)
		logger := vctx.GetLogger(rc.Context)

		if err := app.checkPreconditions(rc, ep); err != nil {
			logger.Infof("%s: precondition failed: %v", ep.name, err)
			writeFail(w, err)
			return
		}

		var unlock func() error
		if ep.kind == kindMutating || ep.kind == kindBeginCommit {
			var err error
			start := time.Now()
			unlock, err = rc.Repo.ProcessLock.TryLock()
			metrics.LockWaitSeconds.WithLabelValues(rc.RepoName).Observe(time.Since(start).Seconds())
			if err != nil {
				writeFail(w, apierror.New(apierror.CodeLockFail, err))
				return
			}
			defer unlock()
			// Check the user lock again under the process lock, so two
			// concurrent begin_commit requests cannot both take it.
			if !rc.Repo.UserLock.CanAcquire(rc.SessionToken, rc.Now) {
				writeFail(w, apierror.New(apierror.CodeLockFail, nil))
				return
			}
		}

		if err := ep.handler(rc, w, r); err != nil {
			logger.Errorf("%s: %v", ep.name, err)
			writeFail(w, err)
			return
		}
	})
}

// checkPreconditions runs the repository, session, user-lock and (for
// mutating endpoints) active-commit checks. The process lock is taken
// afterwards by dispatch, so it can be released deterministically via
// defer, and dispatch checks the user lock again while holding it.
func (app *App) checkPreconditions(rc *requestContext, ep endpoint) error {
	if rc.RepoName == "" {
		return apierror.New(apierror.CodeNoSuchRepo, nil)
	}
	if rc.RepoName != "" && rc.Repo == nil {
		return apierror.New(apierror.CodeNoSuchRepo, nil)
	}

	if ep.kind == kindAuth {
		return nil
	}

	username, err := rc.Repo.Auth.Authorize(rc.SessionToken, rc.RemoteIP, rc.RepoName, rc.Now, heldToken(rc))
	if err != nil {
		return apierror.New(apierror.CodeAuthFail, err)
	}
	rc.Username = username

	if ep.kind == kindRead {
		return nil
	}

	// kindMutating and kindBeginCommit both need the user lock.
	if !rc.Repo.UserLock.CanAcquire(rc.SessionToken, rc.Now) {
		return apierror.New(apierror.CodeLockFail, nil)
	}

	if ep.kind == kindMutating {
		active, err := rc.Repo.Staging.Active()
		if err != nil {
			return apierror.New(apierror.CodeUnknown, err)
		}
		if !active {
			return apierror.New(apierror.CodeNoActiveCommit, nil)
		}
	}

	return nil
}

// heldToken returns the session token currently holding the repository's
// user lock, so Authorize's session GC can exclude it (a live upload must
// not be GC'd out from under itself even past its nominal expiry).
func heldToken(rc *requestContext) string {
	token, held := rc.Repo.UserLock.Held(rc.Now)
	if !held {
		return ""
	}
	return token
}

func writeOK(w http.ResponseWriter, body interface{}) {
	w.Header().Set("status", "ok")
	if body == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func writeFail(w http.ResponseWriter, err error) {
	w.Header().Set("status", "fail")
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		w.Header().Set("msg", apiErr.Msg())
		return
	}
	// Unmodeled internal failure: terse, no detail leaked (spec §7).
	w.Header().Set("msg", "")
}
