package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reposync/reposyncd/apierror"
	"github.com/reposync/reposyncd/auth"
	"github.com/reposync/reposyncd/changes"
	"github.com/reposync/reposyncd/metrics"
	"github.com/reposync/reposyncd/notify"
	"github.com/reposync/reposyncd/storage"
)

func (app *App) handleBeginAuth(rc *requestContext, w http.ResponseWriter, r *http.Request) error {
	token, err := rc.Repo.Auth.BeginAuth(rc.RemoteIP, rc.Now)
	if err != nil {
		return fmt.Errorf("begin_auth: %w", err)
	}
	writeOK(w, map[string]string{"auth_token": token})
	return nil
}

type authenticateBody struct {
	User      string `json:"user"`
	AuthToken string `json:"auth_token"`
	Signature string `json:"signature"` // base64
}

func (app *App) handleAuthenticate(rc *requestContext, w http.ResponseWriter, r *http.Request) error {
	if rc.SessionToken != "" {
		token, err := rc.Repo.Auth.Authenticate(auth.AuthenticateRequest{
			IP:           rc.RemoteIP,
			Repository:   rc.RepoName,
			SessionToken: rc.SessionToken,
		}, rc.Now)
		if err != nil {
			return apierror.New(apierror.CodeAuthFail, err)
		}
		writeOK(w, map[string]string{"session_token": token})
		return nil
	}

	var body authenticateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return apierror.New(apierror.CodeAuthFail, err)
	}
	sig, err := base64.StdEncoding.DecodeString(body.Signature)
	if err != nil {
		return apierror.New(apierror.CodeAuthFail, err)
	}

	token, err := rc.Repo.Auth.Authenticate(auth.AuthenticateRequest{
		IP:         rc.RemoteIP,
		Repository: rc.RepoName,
		User:       body.User,
		AuthToken:  body.AuthToken,
		Signature:  sig,
	}, rc.Now)
	if err != nil {
		return apierror.New(apierror.CodeAuthFail, err)
	}
	writeOK(w, map[string]string{"session_token": token})
	return nil
}

type findChangedBody struct {
	ClientChanges       []storage.Change     `json:"client_changes"`
	ConflictResolutions []changes.Resolution `json:"conflict_resolutions"`
}

func (app *App) handleFindChanged(rc *requestContext, w http.ResponseWriter, r *http.Request) error {
	previousRevision := r.Header.Get("previous_revision")
	if !storage.ValidateRevisionID(previousRevision) {
		return apierror.New(apierror.CodeTraversal, fmt.Errorf("malformed previous_revision: %q", previousRevision))
	}

	var body findChangedBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return apierror.New(apierror.CodeNeedResolveConflicts, err)
		}
	}

	head, err := rc.Repo.Chain.GetHead()
	if err != nil {
		return fmt.Errorf("find_changed: get head: %w", err)
	}
	serverChanges, err := rc.Repo.Chain.GetChangesSince(previousRevision, head)
	if err != nil {
		return fmt.Errorf("find_changed: changes since: %w", err)
	}

	merged, err := changes.Merge(serverChanges, body.ClientChanges, body.ConflictResolutions)
	if err != nil {
		return apierror.New(apierror.CodeNeedResolveConflicts, err)
	}
	if len(merged.Conflict) > 0 {
		metrics.Conflicts.WithLabelValues(rc.RepoName).Inc()
	}

	writeOK(w, map[string]interface{}{"head": head, "sorted_changes": merged})
	return nil
}

func (app *App) handlePullFile(rc *requestContext, w http.ResponseWriter, r *http.Request) error {
	path := r.Header.Get("path")
	entry, ok, err := rc.Repo.Chain.GetFileInfoFromPath(path)
	if err != nil {
		return fmt.Errorf("pull_file: %w", err)
	}
	if !ok {
		return apierror.New(apierror.CodeTraversal, fmt.Errorf("no such file: %s", path))
	}

	digest, err := entry.Digest()
	if err != nil {
		return fmt.Errorf("pull_file: %w", err)
	}
	info, _ := json.Marshal(struct {
		storage.Entry
		Digest string `json:"digest"`
	}{entry, digest.String()})
	w.Header().Set("file_info_json", string(info))
	w.Header().Set("status", "ok")
	w.Header().Set("Content-Type", "application/octet-stream")

	rc2, err := rc.Repo.Objects.Open(entry.Hash)
	if err != nil {
		return fmt.Errorf("pull_file: open object: %w", err)
	}
	defer rc2.Close()
	_, err = io.Copy(w, rc2)
	return err
}

func (app *App) handleListVersions(rc *requestContext, w http.ResponseWriter, r *http.Request) error {
	versions, err := rc.Repo.Chain.GetCommitChain()
	if err != nil {
		return fmt.Errorf("list_versions: %w", err)
	}
	writeOK(w, map[string]interface{}{"versions": versions})
	return nil
}

func (app *App) handleListChanges(rc *requestContext, w http.ResponseWriter, r *http.Request) error {
	versionID := r.Header.Get("version_id")
	if !storage.ValidateRevisionID(versionID) {
		return apierror.New(apierror.CodeTraversal, fmt.Errorf("malformed version_id: %q", versionID))
	}
	list, err := rc.Repo.Chain.GetCommitChanges(versionID)
	if err != nil {
		return fmt.Errorf("list_changes: %w", err)
	}
	writeOK(w, map[string]interface{}{"changes": list})
	return nil
}

func (app *App) handleListFiles(rc *requestContext, w http.ResponseWriter, r *http.Request) error {
	versionID := r.Header.Get("version_id")
	if !storage.ValidateRevisionID(versionID) {
		return apierror.New(apierror.CodeTraversal, fmt.Errorf("malformed version_id: %q", versionID))
	}
	files, err := rc.Repo.Chain.GetCommitFiles(versionID)
	if err != nil {
		return fmt.Errorf("list_files: %w", err)
	}
	writeOK(w, map[string]interface{}{"files": files})
	return nil
}

func (app *App) handleBeginCommit(rc *requestContext, w http.ResponseWriter, r *http.Request) error {
	previousRevision := r.Header.Get("previous_revision")
	if !storage.ValidateRevisionID(previousRevision) {
		return apierror.New(apierror.CodeTraversal, fmt.Errorf("malformed previous_revision: %q", previousRevision))
	}

	head, err := rc.Repo.Chain.GetHead()
	if err != nil {
		return fmt.Errorf("begin_commit: get head: %w", err)
	}
	if previousRevision != head {
		return apierror.New(apierror.CodeNeedUpdate, nil)
	}

	// Any prior dangling staging is rolled back implicitly.
	if err := rc.Repo.Staging.Rollback(); err != nil {
		return fmt.Errorf("begin_commit: implicit rollback: %w", err)
	}
	if err := rc.Repo.Staging.Begin(head); err != nil {
		return fmt.Errorf("begin_commit: %w", err)
	}
	if err := rc.Repo.UserLock.Acquire(rc.SessionToken, rc.Now, rc.Repo.UserLockTTL); err != nil {
		return fmt.Errorf("begin_commit: acquire user lock: %w", err)
	}

	writeOK(w, nil)
	return nil
}

func (app *App) handlePushFile(rc *requestContext, w http.ResponseWriter, r *http.Request) error {
	start := time.Now()
	defer func() {
		metrics.BlobUploadSeconds.WithLabelValues(rc.RepoName).Observe(time.Since(start).Seconds())
	}()

	path := r.Header.Get("path")
	if !storage.ValidatePath(path) {
		return apierror.New(apierror.CodeTraversal, fmt.Errorf("path traversal rejected: %s", path))
	}

	hash, size, err := rc.Repo.Objects.Put(r.Body)
	if err != nil {
		return fmt.Errorf("push_file: %w", err)
	}
	if err := rc.Repo.Staging.Put(path, hash, size, rc.Now); err != nil {
		return fmt.Errorf("push_file: stage put: %w", err)
	}
	if err := rc.Repo.UserLock.Acquire(rc.SessionToken, rc.Now, rc.Repo.UserLockTTL); err != nil {
		return fmt.Errorf("push_file: refresh user lock: %w", err)
	}

	writeOK(w, nil)
	return nil
}

type deleteFilesBody struct {
	Files []string `json:"files"`
}

func (app *App) handleDeleteFiles(rc *requestContext, w http.ResponseWriter, r *http.Request) error {
	var body deleteFilesBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return apierror.New(apierror.CodeTraversal, err)
	}
	for _, path := range body.Files {
		if !storage.ValidatePath(path) {
			return apierror.New(apierror.CodeTraversal, fmt.Errorf("path traversal rejected: %s", path))
		}
	}
	for _, path := range body.Files {
		if err := rc.Repo.Staging.Delete(path); err != nil {
			return apierror.New(apierror.CodeTraversal, fmt.Errorf("delete_files: %w", err))
		}
	}
	if err := rc.Repo.UserLock.Acquire(rc.SessionToken, rc.Now, rc.Repo.UserLockTTL); err != nil {
		return fmt.Errorf("delete_files: refresh user lock: %w", err)
	}

	writeOK(w, nil)
	return nil
}

func (app *App) handleCommit(rc *requestContext, w http.ResponseWriter, r *http.Request) error {
	mode := r.Header.Get("mode")
	message := r.Header.Get("commit_message")

	defer rc.Repo.UserLock.Clear()

	if mode != "commit" {
		if err := rc.Repo.Staging.Rollback(); err != nil {
			return fmt.Errorf("commit: rollback: %w", err)
		}
		metrics.Rollbacks.WithLabelValues(rc.RepoName).Inc()
		if app.Notify != nil {
			_ = app.Notify.Publish(notify.Event{
				Action:     notify.ActionRollback,
				Repository: rc.RepoName,
				Author:     rc.Username,
				Timestamp:  rc.Now,
			})
		}
		writeOK(w, nil)
		return nil
	}

	base, err := rc.Repo.Staging.BaseRevision()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	head, err := rc.Repo.Chain.GetHead()
	if err != nil {
		return fmt.Errorf("commit: get head: %w", err)
	}
	if base != head {
		return apierror.New(apierror.CodeNeedUpdate, nil)
	}

	baseManifest, err := rc.Repo.Chain.GetManifest(base)
	if err != nil {
		return fmt.Errorf("commit: base manifest: %w", err)
	}
	manifest, err := rc.Repo.Staging.ApplyTo(baseManifest)
	if err != nil {
		return fmt.Errorf("commit: apply staged changes: %w", err)
	}

	rev, err := rc.Repo.Chain.Advance(base, manifest, rc.Username, message, rc.Now)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := rc.Repo.Staging.Rollback(); err != nil {
		return fmt.Errorf("commit: clear staging: %w", err)
	}
	metrics.Commits.WithLabelValues(rc.RepoName).Inc()

	if app.Notify != nil {
		_ = app.Notify.Publish(notify.Event{
			Action:     notify.ActionCommit,
			Repository: rc.RepoName,
			RevisionID: rev.ID,
			Author:     rc.Username,
			Timestamp:  rc.Now,
		})
	}

	writeOK(w, map[string]string{"head": rev.ID})
	return nil
}
