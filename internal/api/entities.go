package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ssavin/vetsync/internal/storage"
	"github.com/ssavin/vetsync/internal/syncer"
)

// createResponse is returned by every entity-creation handler. The local
// write has already committed when it is sent; QueueID identifies the outbox
// row that will carry the change to the server.
type createResponse struct {
	ID      int64 `json:"id"`
	QueueID int64 `json:"queue_id"`
}

// enqueue records the outbox row for an already-committed entity write. A
// failure here is reported loudly rather than losing the change silently:
// the entity exists locally but will not reach the server.
func enqueue(w http.ResponseWriter, deps Deps, id int64, actionType, payload string, encodeErr error) {
	if encodeErr != nil {
		httpError(w, http.StatusInternalServerError, "api_error",
			"record %d saved locally but payload encoding failed: %v", id, encodeErr)
		return
	}
	queueID, err := deps.Store.AddToSyncQueue(actionType, payload)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error",
			"record %d saved locally but could not be queued for sync: %v", id, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: id, QueueID: queueID})
}

// --- Clients ---

func handleListClients(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			clients []storage.Client
			err     error
		)
		if q := r.URL.Query().Get("q"); q != "" {
			clients, err = deps.Store.SearchClients(q)
		} else {
			clients, err = deps.Store.ListClients()
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing clients: %v", err)
			return
		}
		if clients == nil {
			clients = []storage.Client{}
		}
		writeJSON(w, http.StatusOK, clients)
	}
}

func handleCreateClient(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c storage.Client
		if !decodeBody(w, r, &c) {
			return
		}

		id, err := deps.Store.CreateClient(c)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "creating client: %v", err)
			return
		}
		c.ID = id

		payload, err := syncer.EncodeClientPayload(c)
		enqueue(w, deps, id, storage.ActionCreateClient, payload, err)
	}
}

// --- Patients ---

func handlePatientsByClient(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid client id")
			return
		}
		patients, err := deps.Store.PatientsByClient(clientID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing patients: %v", err)
			return
		}
		if patients == nil {
			patients = []storage.Patient{}
		}
		writeJSON(w, http.StatusOK, patients)
	}
}

func handleCreatePatient(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p storage.Patient
		if !decodeBody(w, r, &p) {
			return
		}

		id, err := deps.Store.CreatePatient(p)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "creating patient: %v", err)
			return
		}
		p.ID = id

		payload, err := syncer.EncodePatientPayload(p)
		enqueue(w, deps, id, storage.ActionCreatePatient, payload, err)
	}
}

// --- Nomenclature ---

func handleListNomenclature(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			items []storage.NomenclatureItem
			err   error
		)
		if q := r.URL.Query().Get("q"); q != "" {
			items, err = deps.Store.SearchNomenclature(q)
		} else {
			items, err = deps.Store.ListNomenclature()
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing nomenclature: %v", err)
			return
		}
		if items == nil {
			items = []storage.NomenclatureItem{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// --- Appointments ---

func handleListAppointments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointments, err := deps.Store.RecentAppointments(queryLimit(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing appointments: %v", err)
			return
		}
		if appointments == nil {
			appointments = []storage.Appointment{}
		}
		writeJSON(w, http.StatusOK, appointments)
	}
}

func handleCreateAppointment(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var a storage.Appointment
		if !decodeBody(w, r, &a) {
			return
		}

		id, err := deps.Store.CreateAppointment(a)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "creating appointment: %v", err)
			return
		}
		a.ID = id

		payload, err := syncer.EncodeAppointmentPayload(a)
		enqueue(w, deps, id, storage.ActionCreateAppointment, payload, err)
	}
}

// --- Invoices ---

func handleListInvoices(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoices, err := deps.Store.RecentInvoices(queryLimit(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing invoices: %v", err)
			return
		}
		if invoices == nil {
			invoices = []storage.Invoice{}
		}
		writeJSON(w, http.StatusOK, invoices)
	}
}

func handleCreateInvoice(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var inv storage.Invoice
		if !decodeBody(w, r, &inv) {
			return
		}

		id, err := deps.Store.CreateInvoice(inv)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "creating invoice: %v", err)
			return
		}
		inv.ID = id
		if inv.PaymentStatus == "" {
			inv.PaymentStatus = storage.PaymentPending
		}

		payload, err := syncer.EncodeInvoicePayload(inv)
		enqueue(w, deps, id, storage.ActionCreateInvoice, payload, err)
	}
}

// --- Queue ---

func handleListQueue(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Store.RecentSyncItems(queryLimit(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing queue: %v", err)
			return
		}
		if items == nil {
			items = []storage.SyncQueueItem{}
		}
		pending, err := deps.Store.PendingSyncCount()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "counting pending items: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items":   items,
			"pending": pending,
		})
	}
}
