package failure

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	// sweepBatchSize bounds how many due records a single sweep may
	// re-dispatch, protecting the worker pool from a thundering herd
	// after downtime.
	sweepBatchSize = 10

	defaultSweepInterval = time.Minute
)

type (
	// Requeuer re-enqueues a claimed failure through the normal download
	// worker path. The acquisition service implements this.
	Requeuer interface {
		RequeueDownload(failed *FailedDownload) error
	}

	// downloadClaimer is the slice of Service the sweeper depends on:
	// claiming due records and re-failing the ones it cannot dispatch.
	downloadClaimer interface {
		ClaimDueDownloads(batch int) ([]*FailedDownload, error)
		FailDownload(id uuid.UUID, message string) error
	}

	// Sweeper periodically claims due pending download failures and
	// pushes them back through the acquisition pipeline. Each claimed
	// record has already transitioned to 'retrying'; its eventual outcome
	// resolves or re-fails it.
	Sweeper struct {
		claimer  downloadClaimer
		requeuer Requeuer
		interval time.Duration
	}
)

func NewSweeper(claimer downloadClaimer, requeuer Requeuer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &Sweeper{claimer: claimer, requeuer: requeuer, interval: interval}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (sweeper *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweeper.SweepOnce()
		case <-ctx.Done():
			return nil
		}
	}
}

// SweepOnce claims one batch of due records and re-dispatches them. A
// record which cannot be re-enqueued is immediately re-failed so the
// backoff policy reschedules (or terminates) it.
func (sweeper *Sweeper) SweepOnce() {
	claimed, err := sweeper.claimer.ClaimDueDownloads(sweepBatchSize)
	if err != nil {
		log.Errorf("Retry sweep failed to claim due records: %s\n", err.Error())
		return
	}

	if len(claimed) == 0 {
		return
	}

	log.Infof("Retry sweep re-dispatching %d failed download(s)\n", len(claimed))
	for _, record := range claimed {
		if err := sweeper.requeuer.RequeueDownload(record); err != nil {
			log.Errorf("Failed to requeue download %s for retry: %s\n", record.URL, err.Error())
			if err := sweeper.claimer.FailDownload(record.ID, "retry could not be dispatched: "+err.Error()); err != nil {
				log.Errorf("Failed to re-fail download %s: %s\n", record.URL, err.Error())
			}
		}
	}
}
