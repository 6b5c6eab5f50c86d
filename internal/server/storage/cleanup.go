package storage

import (
	"context"
	"log/slog"
	"time"
)

// RecordChecker reports whether a stored blob has a committed file record.
type RecordChecker interface {
	FileExists(ctx context.Context, storagePath string) (bool, error)
}

// CleanupService periodically removes stored files that never got a file
// record, which is what an interrupted upload leaves behind.
type CleanupService struct {
	records  RecordChecker
	store    Store
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	done     chan struct{}
}

// NewCleanupService creates a new cleanup service. Files younger than grace
// are left alone so that uploads in progress are not touched.
func NewCleanupService(records RecordChecker, store Store, interval, grace time.Duration) *CleanupService {
	return &CleanupService{
		records:  records,
		store:    store,
		interval: interval,
		grace:    grace,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup loop in a background goroutine.
// A non-positive interval disables the loop.
func (cs *CleanupService) Start(ctx context.Context) {
	if cs.interval <= 0 {
		slog.Info("cleanup service disabled")
		close(cs.done)
		return
	}
	slog.Info("cleanup service started", "interval", cs.interval, "grace", cs.grace)

	go func() {
		defer close(cs.done)
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		cs.RunOnce(ctx)

		for {
			select {
			case <-ticker.C:
				cs.RunOnce(ctx)
			case <-ctx.Done():
				slog.Info("cleanup service stopping")
				return
			}
		}
	}()
}

// Wait blocks until the cleanup service has fully stopped.
func (cs *CleanupService) Wait() {
	<-cs.done
}

// RunOnce performs a single sweep and returns the number of removed files.
func (cs *CleanupService) RunOnce(ctx context.Context) int {
	cutoff := cs.now().Add(-cs.grace)
	var orphans []string

	err := cs.store.Walk(ctx, func(name string, modTime time.Time) error {
		if modTime.After(cutoff) {
			return nil
		}
		exists, err := cs.records.FileExists(ctx, name)
		if err != nil {
			return err
		}
		if !exists {
			orphans = append(orphans, name)
		}
		return nil
	})
	if err != nil {
		slog.Error("failed to scan stored files", "error", err)
		return 0
	}

	if len(orphans) == 0 {
		slog.Debug("no orphaned files to clean up")
		return 0
	}

	var cleaned, failed int
	for _, name := range orphans {
		if err := cs.store.Delete(ctx, name); err != nil {
			slog.Error("failed to delete orphaned file", "name", name, "error", err)
			failed++
			continue
		}
		cleaned++
	}

	slog.Info("cleanup cycle complete",
		"cleaned", cleaned,
		"failed", failed,
		"total_orphaned", len(orphans),
	)
	return cleaned
}
