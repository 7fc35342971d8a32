package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ssavin/vetsync/internal/remote"
	"github.com/ssavin/vetsync/internal/storage"
)

const defaultUploadBatch = 50

var (
	// ErrOffline is returned when a sync is attempted while the server is
	// unreachable.
	ErrOffline = errors.New("server is offline")
	// ErrSyncInProgress is returned when a second sync trigger arrives while
	// one is already running.
	ErrSyncInProgress = errors.New("sync already running")
	// ErrBranchNotConfigured is returned by the download leg before any
	// network call when no branch is selected. It is a configuration error,
	// never retried automatically.
	ErrBranchNotConfigured = errors.New("branch not configured: select a branch in settings before downloading")
)

// Store is the slice of the local store the engine needs.
type Store interface {
	PendingSyncItems(limit int) ([]storage.SyncQueueItem, error)
	UpdateSyncItemStatus(id int64, status, errorMessage string) error
	PendingSyncCount() (int, error)
	ReplaceAllNomenclature(items []storage.NomenclatureItem) error
	ImportClient(c storage.Client) (storage.MergeOutcome, error)
	ImportPatient(p storage.Patient) (storage.MergeOutcome, error)
	ClientIDByServerID(serverID int64) (int64, error)
	SetClientServerID(localID, serverID int64) error
	SetPatientServerID(localID, serverID int64) error
}

// Options configures a new Engine.
type Options struct {
	ServerURL   string
	APIKey      string
	BranchID    string
	UploadBatch int // max queue items per upload request; defaults to 50
	Logger      *slog.Logger
}

// Engine drives the synchronization protocol between the local store and the
// main server. It is the only component that talks to the transport adapter,
// and the only writer of the shared Status.
type Engine struct {
	store  Store
	status *Broadcaster
	logger *slog.Logger
	batch  int

	// mu guards the transport configuration. The client is swapped whole on
	// reconfiguration, never mutated.
	mu       sync.Mutex
	remote   *remote.Client
	apiKey   string
	branchID string

	// flight is the single-flight guard: upload, download and full sync all
	// contend on it, so a timer tick can never overlap a manual sync.
	flight sync.Mutex

	autoMu     sync.Mutex
	autoCancel context.CancelFunc
}

func New(store Store, opts Options) *Engine {
	batch := opts.UploadBatch
	if batch <= 0 {
		batch = defaultUploadBatch
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		status:   NewBroadcaster(),
		logger:   logger,
		batch:    batch,
		remote:   remote.New(opts.ServerURL, opts.APIKey),
		apiKey:   opts.APIKey,
		branchID: opts.BranchID,
	}
}

// Reconfigure swaps the transport for a new server URL and API key. The new
// client takes effect for all subsequent operations; one already in flight
// finishes on the old client.
func (e *Engine) Reconfigure(serverURL, apiKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remote = remote.New(serverURL, apiKey)
	e.apiKey = apiKey
	e.logger.Info("transport reconfigured", "server_url", serverURL)
}

// SetBranch selects the branch whose reference data downloads are scoped to.
func (e *Engine) SetBranch(branchID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.branchID = branchID
}

func (e *Engine) client() *remote.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remote
}

func (e *Engine) branch() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.branchID
}

// Status returns a snapshot of the current sync status.
func (e *Engine) Status() Status {
	return e.status.Current()
}

// Subscribe registers a status observer.
func (e *Engine) Subscribe() (<-chan Status, func()) {
	return e.status.Subscribe()
}

// CheckConnection probes the server and records the result in the shared
// status. Connectivity failure is an expected condition: it never returns an
// error, only false.
func (e *Engine) CheckConnection(ctx context.Context) bool {
	err := e.client().Health(ctx)
	if err != nil {
		e.logger.Debug("connection check failed", "error", err)
		e.status.update(func(s *Status) { s.IsOnline = false })
		return false
	}
	e.status.update(func(s *Status) { s.IsOnline = true })
	return true
}

// UploadPendingChanges drains one FIFO batch of queued mutations to the
// server and applies the per-item results. Rejected when a sync is already
// running.
func (e *Engine) UploadPendingChanges(ctx context.Context) error {
	if !e.flight.TryLock() {
		return ErrSyncInProgress
	}
	defer e.flight.Unlock()
	return e.upload(ctx)
}

// DownloadInitialData fetches the branch-scoped reference snapshot and
// applies it to the local store. Rejected when a sync is already running.
func (e *Engine) DownloadInitialData(ctx context.Context) error {
	if !e.flight.TryLock() {
		return ErrSyncInProgress
	}
	defer e.flight.Unlock()
	return e.download(ctx)
}

// FullSync is the user-triggered pass: connection check, then upload, then
// download. Uploading first guarantees locally originated changes reach the
// server before the download can echo back a stale view of them.
func (e *Engine) FullSync(ctx context.Context) error {
	if !e.flight.TryLock() {
		return ErrSyncInProgress
	}
	defer e.flight.Unlock()

	if !e.checkConnectionLocked(ctx) {
		return ErrOffline
	}
	if err := e.upload(ctx); err != nil {
		return fmt.Errorf("uploading pending changes: %w", err)
	}
	if err := e.download(ctx); err != nil {
		return fmt.Errorf("downloading initial data: %w", err)
	}
	return nil
}

func (e *Engine) checkConnectionLocked(ctx context.Context) bool {
	return e.CheckConnection(ctx)
}

// upload performs the actual drain. Caller holds the flight lock.
func (e *Engine) upload(ctx context.Context) error {
	items, err := e.store.PendingSyncItems(e.batch)
	if err != nil {
		return fmt.Errorf("fetching pending queue items: %w", err)
	}

	if len(items) == 0 {
		// Nothing to send, but still refresh the published count.
		e.refreshPendingCount()
		return nil
	}

	e.status.update(func(s *Status) { s.IsSyncing = true })
	defer e.status.update(func(s *Status) { s.IsSyncing = false })

	actions := make([]remote.UploadAction, len(items))
	submitted := make(map[int64]storage.SyncQueueItem, len(items))
	for i, item := range items {
		actions[i] = remote.UploadAction{
			QueueID:    item.ID,
			ActionType: item.ActionType,
			Payload:    []byte(item.Payload),
		}
		submitted[item.ID] = item
	}

	results, err := e.client().UploadChanges(ctx, actions)
	if err != nil {
		return err
	}

	handled := make(map[int64]bool, len(results))
	for _, r := range results {
		item, ok := submitted[r.QueueID]
		if !ok {
			e.logger.Warn("upload result for unsubmitted queue id", "queue_id", r.QueueID)
			continue
		}
		if handled[r.QueueID] {
			e.logger.Warn("duplicate upload result", "queue_id", r.QueueID)
			continue
		}
		handled[r.QueueID] = true

		if r.Status == storage.QueueSuccess {
			if err := e.store.UpdateSyncItemStatus(r.QueueID, storage.QueueSuccess, ""); err != nil {
				e.logger.Error("marking queue item success", "queue_id", r.QueueID, "error", err)
				continue
			}
			if r.ServerID != 0 {
				e.recordServerID(item, r.ServerID)
			}
		} else {
			if err := e.store.UpdateSyncItemStatus(r.QueueID, storage.QueueError, r.Message); err != nil {
				e.logger.Error("marking queue item error", "queue_id", r.QueueID, "error", err)
				continue
			}
			e.logger.Warn("queue item rejected by server", "queue_id", r.QueueID, "message", r.Message)
		}
	}

	for id := range submitted {
		if !handled[id] {
			// Left pending; it will be retried on the next upload cycle.
			e.logger.Warn("no upload result for queue item", "queue_id", id)
		}
	}

	remaining := e.refreshPendingCount()
	e.status.update(func(s *Status) { s.LastSync = time.Now().UTC() })
	e.logger.Info("upload completed", "sent", len(items), "remaining", remaining)
	return nil
}

// recordServerID writes a server-assigned identity back onto the entity row
// the queue payload originated from.
func (e *Engine) recordServerID(item storage.SyncQueueItem, serverID int64) {
	localID, err := DecodePayloadLocalID(item.Payload)
	if err != nil {
		e.logger.Warn("cannot correlate server id", "queue_id", item.ID, "error", err)
		return
	}

	switch item.ActionType {
	case storage.ActionCreateClient:
		err = e.store.SetClientServerID(localID, serverID)
	case storage.ActionCreatePatient:
		err = e.store.SetPatientServerID(localID, serverID)
	default:
		return
	}
	if err != nil {
		e.logger.Warn("recording server id", "queue_id", item.ID, "local_id", localID, "error", err)
	}
}

// download performs the actual reference-data refresh. Caller holds the
// flight lock.
func (e *Engine) download(ctx context.Context) error {
	branch := e.branch()
	if branch == "" {
		return ErrBranchNotConfigured
	}

	e.status.update(func(s *Status) { s.IsSyncing = true })
	defer e.status.update(func(s *Status) { s.IsSyncing = false })

	data, err := e.client().InitialData(ctx, branch)
	if err != nil {
		return err
	}

	nomenclature := make([]storage.NomenclatureItem, len(data.Nomenclature))
	for i, n := range data.Nomenclature {
		nomenclature[i] = storage.NomenclatureItem{
			ID:       n.ID,
			Name:     n.Name,
			Type:     n.Type,
			Price:    n.Price,
			Category: n.Category,
		}
	}
	if err := e.store.ReplaceAllNomenclature(nomenclature); err != nil {
		return fmt.Errorf("replacing nomenclature: %w", err)
	}

	// Clients and patients are merged best-effort: rows already present
	// locally are skipped, never overwritten, so unsynced local edits
	// survive a concurrent download.
	var clientsInserted, clientsSkipped int
	for _, rc := range data.Clients {
		outcome, err := e.store.ImportClient(storage.Client{
			ServerID: rc.ID,
			FullName: rc.FullName,
			Phone:    rc.Phone,
			Email:    rc.Email,
			Address:  rc.Address,
		})
		if err != nil {
			e.logger.Warn("skipping client import", "server_id", rc.ID, "error", err)
			continue
		}
		if outcome == storage.MergeInserted {
			clientsInserted++
		} else {
			clientsSkipped++
		}
	}

	var patientsInserted, patientsSkipped int
	for _, rp := range data.Patients {
		ownerID, err := e.store.ClientIDByServerID(rp.ClientID)
		if err != nil {
			e.logger.Warn("skipping patient import: owner not mirrored", "server_id", rp.ID, "owner_server_id", rp.ClientID)
			patientsSkipped++
			continue
		}
		outcome, err := e.store.ImportPatient(storage.Patient{
			ServerID:  rp.ID,
			Name:      rp.Name,
			Species:   rp.Species,
			Breed:     rp.Breed,
			BirthDate: rp.BirthDate,
			Gender:    rp.Gender,
			ClientID:  ownerID,
		})
		if err != nil {
			e.logger.Warn("skipping patient import", "server_id", rp.ID, "error", err)
			continue
		}
		if outcome == storage.MergeInserted {
			patientsInserted++
		} else {
			patientsSkipped++
		}
	}

	e.status.update(func(s *Status) { s.LastSync = time.Now().UTC() })
	e.logger.Info("download completed",
		"nomenclature", len(nomenclature),
		"clients_inserted", clientsInserted, "clients_skipped", clientsSkipped,
		"patients_inserted", patientsInserted, "patients_skipped", patientsSkipped,
	)
	return nil
}

func (e *Engine) refreshPendingCount() int {
	count, err := e.store.PendingSyncCount()
	if err != nil {
		e.logger.Error("counting pending queue items", "error", err)
		return -1
	}
	e.status.update(func(s *Status) { s.PendingCount = count })
	return count
}

// Login exchanges user credentials with the server. Authentication failures
// carry the server's message and are never retried here.
func (e *Engine) Login(ctx context.Context, username, password string) (remote.User, error) {
	return e.client().Login(ctx, username, password)
}

// FetchBranches lists the server's branches. When override coordinates are
// supplied (pre-configuration mode, before settings are saved), a one-off
// transport client is built so a failed setup attempt cannot corrupt the
// working configuration.
func (e *Engine) FetchBranches(ctx context.Context, overrideURL, overrideKey string) ([]remote.Branch, error) {
	c := e.client()
	if overrideURL != "" || overrideKey != "" {
		baseURL := overrideURL
		if baseURL == "" {
			baseURL = c.BaseURL()
		}
		apiKey := overrideKey
		if apiKey == "" {
			e.mu.Lock()
			apiKey = e.apiKey
			e.mu.Unlock()
		}
		c = remote.New(baseURL, apiKey)
	}
	return c.Branches(ctx)
}
