package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ssavin/vetsync/internal/storage"
	"github.com/ssavin/vetsync/internal/syncer"
)

const testToken = "test-token"

// memSettings is an in-memory settings backend for handler tests.
type memSettings struct {
	strings map[string]string
	ints    map[string]int
}

func newMemSettings() *memSettings {
	return &memSettings{strings: make(map[string]string), ints: make(map[string]int)}
}

func (m *memSettings) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}
func (m *memSettings) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}
func (m *memSettings) SetString(key, val string) error { m.strings[key] = val; return nil }
func (m *memSettings) SetInt(key string, val int) error { m.ints[key] = val; return nil }
func (m *memSettings) Delete(key string) error {
	delete(m.strings, key)
	delete(m.ints, key)
	return nil
}

type testAPI struct {
	handler  http.Handler
	store    *storage.Store
	settings *memSettings
	dataDir  string
}

func newTestAPI(t *testing.T, remoteURL, branchID string) *testAPI {
	t.Helper()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	engine := syncer.New(store, syncer.Options{
		ServerURL: remoteURL,
		APIKey:    "remote-key",
		BranchID:  branchID,
	})

	settings := newMemSettings()
	dataDir := t.TempDir()
	handler := NewHandler(Deps{
		Store:    store,
		Engine:   engine,
		Token:    testToken,
		DataDir:  dataDir,
		Settings: settings,
	})
	return &testAPI{handler: handler, store: store, settings: settings, dataDir: dataDir}
}

func (a *testAPI) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func TestHealthIsPublic(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", w.Code)
	}
}

func TestBearerAuthRequired(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	for _, auth := range []string{"", "Bearer wrong", "Basic abc"} {
		req := httptest.NewRequest("GET", "/clients", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		a.handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("auth %q: status = %d, want 401", auth, w.Code)
		}
	}
}

func TestCreateClientEnqueuesSyncAction(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	w := a.request(t, "POST", "/clients", map[string]string{
		"full_name": "Иванова Мария",
		"phone":     "+7 900 111-22-33",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		ID      int64 `json:"id"`
		QueueID int64 `json:"queue_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ID == 0 || resp.QueueID == 0 {
		t.Fatalf("response = %+v, want non-zero ids", resp)
	}

	item, err := a.store.GetSyncItem(resp.QueueID)
	if err != nil {
		t.Fatalf("GetSyncItem error: %v", err)
	}
	if item.ActionType != storage.ActionCreateClient || item.Status != storage.QueuePending {
		t.Errorf("queue item = %+v", item)
	}
	localID, err := syncer.DecodePayloadLocalID(item.Payload)
	if err != nil {
		t.Fatalf("DecodePayloadLocalID error: %v", err)
	}
	if localID != resp.ID {
		t.Errorf("payload local_id = %d, want %d", localID, resp.ID)
	}
}

func TestCreateClientValidationError(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	w := a.request(t, "POST", "/clients", map[string]string{"phone": "123"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	// Nothing may be queued for a rejected write.
	count, err := a.store.PendingSyncCount()
	if err != nil {
		t.Fatalf("PendingSyncCount error: %v", err)
	}
	if count != 0 {
		t.Errorf("pending count = %d, want 0", count)
	}
}

func TestListClientsEmptyIsArray(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	w := a.request(t, "GET", "/clients", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestCreatePatientAndListByClient(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	w := a.request(t, "POST", "/clients", map[string]string{
		"full_name": "Иванова Мария",
		"phone":     "+7 900 111-22-33",
	})
	var client struct {
		ID int64 `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &client)

	w = a.request(t, "POST", "/patients", map[string]any{
		"name":      "Барсик",
		"species":   "кошка",
		"client_id": client.ID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create patient status = %d, body %s", w.Code, w.Body.String())
	}

	w = a.request(t, "GET", fmt.Sprintf("/clients/%d/patients", client.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list patients status = %d", w.Code)
	}
	var patients []storage.Patient
	if err := json.Unmarshal(w.Body.Bytes(), &patients); err != nil {
		t.Fatalf("decoding patients: %v", err)
	}
	if len(patients) != 1 || patients[0].Name != "Барсик" {
		t.Errorf("patients = %+v", patients)
	}

	w = a.request(t, "GET", "/clients/abc/patients", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestCreateInvoiceEnqueues(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	w := a.request(t, "POST", "/clients", map[string]string{
		"full_name": "Иванова Мария",
		"phone":     "+7 900 111-22-33",
	})
	var client struct {
		ID int64 `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &client)

	w = a.request(t, "POST", "/invoices", map[string]any{
		"client_id": client.ID,
		"items": []map[string]any{
			{"nomenclature_id": 1, "name": "Осмотр", "quantity": 1, "price": 500, "total": 500},
		},
		"total_amount": 500,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	// One queue row for the client plus one for the invoice.
	count, err := a.store.PendingSyncCount()
	if err != nil {
		t.Fatalf("PendingSyncCount error: %v", err)
	}
	if count != 2 {
		t.Errorf("pending count = %d, want 2", count)
	}
}

func TestQueueEndpoint(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	a.request(t, "POST", "/clients", map[string]string{
		"full_name": "Иванова Мария",
		"phone":     "+7 900 111-22-33",
	})

	w := a.request(t, "GET", "/queue", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Pending int                     `json:"pending"`
		Items   []storage.SyncQueueItem `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Pending != 1 || len(resp.Items) != 1 {
		t.Errorf("queue response = %+v", resp)
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	w := a.request(t, "GET", "/sync/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status struct {
		IsOnline     bool `json:"isOnline"`
		PendingCount int  `json:"pendingCount"`
		IsSyncing    bool `json:"isSyncing"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if status.IsOnline || status.IsSyncing {
		t.Errorf("fresh status = %+v", status)
	}
}

func TestSyncFullOfflineMapsTo503(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "branch-1")

	w := a.request(t, "POST", "/sync/full", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestSyncDownloadWithoutBranchMapsTo400(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	w := a.request(t, "POST", "/sync/download", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSyncCheckReportsOffline(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	w := a.request(t, "POST", "/sync/check", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]bool
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["online"] {
		t.Error("expected online=false for dead remote")
	}
}

func TestLoginLogoutSession(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sync/login" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{
				"id": 1, "username": "sokolova", "full_name": "Доктор Соколова", "role": "doctor",
			},
		})
	}))
	defer remote.Close()

	a := newTestAPI(t, remote.URL, "")

	if w := a.request(t, "GET", "/session", nil); w.Code != http.StatusNotFound {
		t.Errorf("session before login status = %d, want 404", w.Code)
	}

	w := a.request(t, "POST", "/login", map[string]string{"username": "sokolova", "password": "pw"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}

	w = a.request(t, "GET", "/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("session status = %d", w.Code)
	}
	var s struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	json.Unmarshal(w.Body.Bytes(), &s)
	if s.Username != "sokolova" || s.Role != "doctor" {
		t.Errorf("session = %+v", s)
	}

	if w := a.request(t, "POST", "/logout", nil); w.Code != http.StatusOK {
		t.Errorf("logout status = %d", w.Code)
	}
	if w := a.request(t, "GET", "/session", nil); w.Code != http.StatusNotFound {
		t.Errorf("session after logout status = %d, want 404", w.Code)
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	w := a.request(t, "POST", "/login", map[string]string{"username": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPutSettingsPersistsAndReconfigures(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer remote.Close()

	// Engine starts pointed at a dead address; settings must repoint it.
	a := newTestAPI(t, "http://127.0.0.1:1", "")

	w := a.request(t, "PUT", "/settings", map[string]string{
		"serverUrl":  remote.URL,
		"apiKey":     "k-9",
		"branchId":   "b2",
		"branchName": "Северная",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	if got := a.settings.strings["remote.server_url"]; got != remote.URL {
		t.Errorf("persisted server_url = %q", got)
	}
	if got := a.settings.strings["remote.api_key"]; got != "k-9" {
		t.Errorf("persisted api_key = %q", got)
	}
	if got := a.settings.strings["remote.branch_name"]; got != "Северная" {
		t.Errorf("persisted branch_name = %q", got)
	}

	// The running engine now reaches the new server.
	if w := a.request(t, "POST", "/sync/check", nil); w.Code != http.StatusOK {
		t.Fatalf("sync check status = %d", w.Code)
	} else {
		var resp map[string]bool
		json.Unmarshal(w.Body.Bytes(), &resp)
		if !resp["online"] {
			t.Error("expected online=true after settings update")
		}
	}

	w = a.request(t, "PUT", "/settings", map[string]string{"apiKey": "no-url"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing serverUrl status = %d, want 400", w.Code)
	}
}
