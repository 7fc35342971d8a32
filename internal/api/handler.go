// Package api is the local REST surface the companion UI talks to. It owns
// the store-write-then-enqueue orchestration for locally created entities;
// the sync engine and local store stay free of HTTP concerns.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ssavin/vetsync/internal/config"
	"github.com/ssavin/vetsync/internal/storage"
	"github.com/ssavin/vetsync/internal/syncer"
)

const maxBodySize = 1 << 20 // 1MB

const defaultListLimit = 50

type Deps struct {
	Store    *storage.Store
	Engine   *syncer.Engine
	Token    string
	DataDir  string
	Settings config.ConfigBackend
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/clients", handleListClients(deps))
		r.Post("/clients", handleCreateClient(deps))
		r.Get("/clients/{id}/patients", handlePatientsByClient(deps))
		r.Post("/patients", handleCreatePatient(deps))
		r.Get("/nomenclature", handleListNomenclature(deps))
		r.Get("/appointments", handleListAppointments(deps))
		r.Post("/appointments", handleCreateAppointment(deps))
		r.Get("/invoices", handleListInvoices(deps))
		r.Post("/invoices", handleCreateInvoice(deps))
		r.Get("/queue", handleListQueue(deps))

		r.Get("/sync/status", handleSyncStatus(deps))
		r.Post("/sync/check", handleSyncCheck(deps))
		r.Post("/sync/upload", handleSyncUpload(deps))
		r.Post("/sync/download", handleSyncDownload(deps))
		r.Post("/sync/full", handleSyncFull(deps))

		r.Post("/login", handleLogin(deps))
		r.Post("/logout", handleLogout(deps))
		r.Get("/session", handleGetSession(deps))
		r.Get("/branches", handleBranches(deps))
		r.Put("/settings", handlePutSettings(deps))
	})

	return r
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultListLimit
}
