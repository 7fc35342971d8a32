package syncer

import (
	"sync"
	"time"
)

// Status is the shared sync state record pushed to the presentation layer.
// It is updated exclusively by the Engine.
type Status struct {
	IsOnline     bool      `json:"isOnline"`
	PendingCount int       `json:"pendingCount"`
	IsSyncing    bool      `json:"isSyncing"`
	LastSync     time.Time `json:"lastSync,omitzero"`
}

// Broadcaster holds the current Status and fans updates out to any number of
// subscribers. Publishing never blocks; a subscriber that falls behind misses
// intermediate snapshots, not the final one it reads via Current.
type Broadcaster struct {
	mu      sync.Mutex
	current Status
	subs    map[int]chan Status
	nextID  int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Status)}
}

// Current returns a snapshot of the latest status.
func (b *Broadcaster) Current() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe registers an observer. The returned cancel function must be
// called to release the subscription.
func (b *Broadcaster) Subscribe() (<-chan Status, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Status, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// update applies mutate to the current status and pushes the result to all
// subscribers.
func (b *Broadcaster) update(mutate func(*Status)) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	mutate(&b.current)
	snapshot := b.current
	for _, ch := range b.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
	return snapshot
}
