package syncer

import (
	"context"
	"errors"
	"time"
)

const defaultAutoSyncInterval = time.Minute

// StartAutoSync begins the periodic heartbeat: a connection check plus an
// upload of pending changes on every tick. The download leg is deliberately
// omitted; full reference refreshes happen only on explicit FullSync.
// Calling StartAutoSync again replaces the previous timer.
func (e *Engine) StartAutoSync(interval time.Duration) {
	if interval <= 0 {
		interval = defaultAutoSyncInterval
	}

	e.autoMu.Lock()
	defer e.autoMu.Unlock()

	if e.autoCancel != nil {
		e.autoCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.autoCancel = cancel

	go e.runAutoSync(ctx, interval)
	e.logger.Info("auto-sync started", "interval", interval)
}

// StopAutoSync prevents future ticks. A tick already in progress runs to
// completion; there is no cancellation of in-flight work.
func (e *Engine) StopAutoSync() {
	e.autoMu.Lock()
	defer e.autoMu.Unlock()

	if e.autoCancel != nil {
		e.autoCancel()
		e.autoCancel = nil
		e.logger.Info("auto-sync stopped")
	}
}

func (e *Engine) runAutoSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.autoTick()
		}
	}
}

// autoTick is one heartbeat. It uses a background context so that
// StopAutoSync cannot abort work already underway. A failed tick is not
// retried; the next interval is the next attempt.
func (e *Engine) autoTick() {
	ctx := context.Background()

	if e.CheckConnection(ctx) {
		if err := e.UploadPendingChanges(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
			e.logger.Warn("auto-sync upload failed", "error", err)
		}
	}

	// Keep the published pending count fresh even while offline.
	e.refreshPendingCount()
}
