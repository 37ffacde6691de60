package scope

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/reelhq/reel/pkg/logger"
)

type (
	// OwnerChecker reports whether an item is still actively owned by a
	// worker. The acquisition service backs this with its queue ledger.
	OwnerChecker interface {
		IsActive(id uuid.UUID) bool
	}

	// Janitor periodically sweeps the scratch root for scope directories
	// which have outlived the crash grace period without an active owner.
	// This recovers disk space after process-level crashes which skipped
	// the normal Close path.
	Janitor struct {
		root     string
		grace    time.Duration
		interval time.Duration
		owners   OwnerChecker
	}
)

func NewJanitor(root string, grace time.Duration, interval time.Duration, owners OwnerChecker) *Janitor {
	return &Janitor{root: root, grace: grace, interval: interval, owners: owners}
}

// Run sweeps on a fixed interval until the provided context is cancelled.
func (janitor *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(janitor.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			janitor.Sweep()
		case <-ctx.Done():
			return nil
		}
	}
}

// Sweep removes every scope directory beneath the root whose mtime is
// older than the grace period and whose owning item is no longer active.
// Directories newer than the grace period are left untouched even when
// unowned, as a worker may be between creating the scope and registering
// activity.
func (janitor *Janitor) Sweep() {
	entries, err := os.ReadDir(janitor.root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("Janitor failed to read scratch root %s: %s\n", janitor.root, err.Error())
		}
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id, ok := OwnerID(entry.Name())
		if !ok {
			continue
		}

		if janitor.owners != nil && janitor.owners.IsActive(id) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if time.Since(info.ModTime()) <= janitor.grace {
			continue
		}

		stalePath := filepath.Join(janitor.root, entry.Name())
		log.Emit(logger.REMOVE, "Reaping stale scope dir %s (no active owner)\n", stalePath)
		if err := os.RemoveAll(stalePath); err != nil {
			log.Warnf("Failed to reap stale scope dir %s: %s\n", stalePath, err.Error())
		}
	}
}
