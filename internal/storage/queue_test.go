package storage

import (
	"errors"
	"fmt"
	"testing"
)

func TestAddToSyncQueue(t *testing.T) {
	s := newTestStore(t)

	id, err := s.AddToSyncQueue(ActionCreateClient, `{"v":1,"local_id":1}`)
	if err != nil {
		t.Fatalf("AddToSyncQueue error: %v", err)
	}

	item, err := s.GetSyncItem(id)
	if err != nil {
		t.Fatalf("GetSyncItem error: %v", err)
	}
	if item.Status != QueuePending {
		t.Errorf("Status = %q, want pending", item.Status)
	}
	if item.ActionType != ActionCreateClient {
		t.Errorf("ActionType = %q, want %q", item.ActionType, ActionCreateClient)
	}
	if item.CreatedAt.IsZero() || item.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}

	if _, err := s.AddToSyncQueue("", "{}"); err == nil {
		t.Error("expected error for empty action type")
	}
}

func TestPendingSyncItemsFIFO(t *testing.T) {
	s := newTestStore(t)

	// Rows created within the same second share created_at; the id tiebreak
	// must keep insertion order.
	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := s.AddToSyncQueue(ActionCreateClient, fmt.Sprintf(`{"v":1,"local_id":%d}`, i+1))
		if err != nil {
			t.Fatalf("AddToSyncQueue error: %v", err)
		}
		ids = append(ids, id)
	}

	items, err := s.PendingSyncItems(10)
	if err != nil {
		t.Fatalf("PendingSyncItems error: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("got %d items, want 5", len(items))
	}
	for i, item := range items {
		if item.ID != ids[i] {
			t.Errorf("item %d has id %d, want %d (FIFO order)", i, item.ID, ids[i])
		}
	}

	// Limit bounds the batch but keeps order from the head.
	batch, err := s.PendingSyncItems(2)
	if err != nil {
		t.Fatalf("PendingSyncItems(2) error: %v", err)
	}
	if len(batch) != 2 || batch[0].ID != ids[0] || batch[1].ID != ids[1] {
		t.Errorf("limited batch = %+v, want first two in order", batch)
	}
}

func TestPendingSyncItemsExcludesTerminal(t *testing.T) {
	s := newTestStore(t)

	okID, err := s.AddToSyncQueue(ActionCreateClient, `{"v":1,"local_id":1}`)
	if err != nil {
		t.Fatalf("AddToSyncQueue error: %v", err)
	}
	badID, err := s.AddToSyncQueue(ActionCreatePatient, `{"v":1,"local_id":2}`)
	if err != nil {
		t.Fatalf("AddToSyncQueue error: %v", err)
	}
	stillID, err := s.AddToSyncQueue(ActionCreateInvoice, `{"v":1,"local_id":3}`)
	if err != nil {
		t.Fatalf("AddToSyncQueue error: %v", err)
	}

	if err := s.UpdateSyncItemStatus(okID, QueueSuccess, ""); err != nil {
		t.Fatalf("UpdateSyncItemStatus error: %v", err)
	}
	if err := s.UpdateSyncItemStatus(badID, QueueError, "validation failed"); err != nil {
		t.Fatalf("UpdateSyncItemStatus error: %v", err)
	}

	pending, err := s.PendingSyncItems(10)
	if err != nil {
		t.Fatalf("PendingSyncItems error: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != stillID {
		t.Errorf("pending = %+v, want only item %d", pending, stillID)
	}

	count, err := s.PendingSyncCount()
	if err != nil {
		t.Fatalf("PendingSyncCount error: %v", err)
	}
	if count != 1 {
		t.Errorf("PendingSyncCount = %d, want 1", count)
	}

	failed, err := s.GetSyncItem(badID)
	if err != nil {
		t.Fatalf("GetSyncItem error: %v", err)
	}
	if failed.ErrorMessage != "validation failed" {
		t.Errorf("ErrorMessage = %q", failed.ErrorMessage)
	}
}

func TestUpdateSyncItemStatus(t *testing.T) {
	s := newTestStore(t)

	id, err := s.AddToSyncQueue(ActionCreateClient, `{"v":1,"local_id":1}`)
	if err != nil {
		t.Fatalf("AddToSyncQueue error: %v", err)
	}

	if err := s.UpdateSyncItemStatus(id, "bogus", ""); err == nil {
		t.Error("expected error for invalid status")
	}
	if err := s.UpdateSyncItemStatus(999, QueueSuccess, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("update on missing row error = %v, want ErrNotFound", err)
	}

	// Applying the same terminal status twice is a no-op, not an error.
	if err := s.UpdateSyncItemStatus(id, QueueSuccess, ""); err != nil {
		t.Fatalf("first update error: %v", err)
	}
	if err := s.UpdateSyncItemStatus(id, QueueSuccess, ""); err != nil {
		t.Fatalf("second update error: %v", err)
	}

	item, err := s.GetSyncItem(id)
	if err != nil {
		t.Fatalf("GetSyncItem error: %v", err)
	}
	if item.Status != QueueSuccess {
		t.Errorf("Status = %q, want success", item.Status)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	id, err := s1.AddToSyncQueue(ActionCreateClient, `{"v":1,"local_id":7}`)
	if err != nil {
		t.Fatalf("AddToSyncQueue error: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()

	pending, err := s2.PendingSyncItems(10)
	if err != nil {
		t.Fatalf("PendingSyncItems error: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Errorf("pending after reopen = %+v, want item %d", pending, id)
	}
	if pending[0].Payload != `{"v":1,"local_id":7}` {
		t.Errorf("Payload = %q", pending[0].Payload)
	}
}

func TestRecentSyncItemsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	var last int64
	for i := 0; i < 3; i++ {
		id, err := s.AddToSyncQueue(ActionCreateClient, fmt.Sprintf(`{"v":1,"local_id":%d}`, i+1))
		if err != nil {
			t.Fatalf("AddToSyncQueue error: %v", err)
		}
		last = id
	}

	recent, err := s.RecentSyncItems(2)
	if err != nil {
		t.Fatalf("RecentSyncItems error: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != last {
		t.Errorf("recent = %+v, want newest first", recent)
	}
}
