package api

import (
	"errors"
	"net/http"

	"github.com/ssavin/vetsync/internal/config"
	"github.com/ssavin/vetsync/internal/session"
	"github.com/ssavin/vetsync/internal/syncer"
)

// syncError maps engine sentinels onto HTTP statuses. A sync already running
// is a conflict, an unreachable server is upstream unavailability, a missing
// branch is a client configuration problem; anything else is a bad gateway.
func syncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		httpError(w, http.StatusConflict, "sync_in_progress", "%v", err)
	case errors.Is(err, syncer.ErrOffline):
		httpError(w, http.StatusServiceUnavailable, "server_offline", "%v", err)
	case errors.Is(err, syncer.ErrBranchNotConfigured):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusBadGateway, "sync_error", "%v", err)
	}
}

func handleSyncStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Engine.Status())
	}
}

func handleSyncCheck(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		online := deps.Engine.CheckConnection(r.Context())
		writeJSON(w, http.StatusOK, map[string]bool{"online": online})
	}
}

func handleSyncUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Engine.UploadPendingChanges(r.Context()); err != nil {
			syncError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deps.Engine.Status())
	}
}

func handleSyncDownload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Engine.DownloadInitialData(r.Context()); err != nil {
			syncError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deps.Engine.Status())
	}
}

func handleSyncFull(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Engine.FullSync(r.Context()); err != nil {
			syncError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deps.Engine.Status())
	}
}

func handleLogin(deps Deps) http.HandlerFunc {
	type loginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Username == "" || req.Password == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "username and password are required")
			return
		}

		user, err := deps.Engine.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
			return
		}

		s := session.New(user.Username, user.FullName, user.Role)
		if err := session.Save(deps.DataDir, s); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving session: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleLogout(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := session.Clear(deps.DataDir); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "clearing session: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s, err := session.Load(deps.DataDir)
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				httpError(w, http.StatusNotFound, "not_found_error", "no active session")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "loading session: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// handleBranches lists server branches. Override query parameters let the
// settings screen probe candidate coordinates before anything is saved.
func handleBranches(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		branches, err := deps.Engine.FetchBranches(r.Context(), q.Get("serverUrl"), q.Get("apiKey"))
		if err != nil {
			httpError(w, http.StatusBadGateway, "sync_error", "fetching branches: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
	}
}

// handlePutSettings persists new main-server coordinates and applies them to
// the running engine, so a restart is never needed after setup.
func handlePutSettings(deps Deps) http.HandlerFunc {
	type settingsRequest struct {
		ServerURL  string `json:"serverUrl"`
		APIKey     string `json:"apiKey"`
		BranchID   string `json:"branchId"`
		BranchName string `json:"branchName"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req settingsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ServerURL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "serverUrl is required")
			return
		}

		rc := config.RemoteConfig{
			ServerURL:  req.ServerURL,
			APIKey:     req.APIKey,
			BranchID:   req.BranchID,
			BranchName: req.BranchName,
		}
		if err := config.SaveRemote(deps.Settings, rc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving settings: %v", err)
			return
		}

		deps.Engine.Reconfigure(req.ServerURL, req.APIKey)
		deps.Engine.SetBranch(req.BranchID)

		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	}
}
