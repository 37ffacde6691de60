package acquisition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reelhq/reel/internal/artifact"
	"github.com/reelhq/reel/internal/download"
	"github.com/reelhq/reel/internal/event"
	"github.com/reelhq/reel/internal/failure"
	"github.com/reelhq/reel/internal/scope"
	"github.com/reelhq/reel/internal/upload"
	"github.com/reelhq/reel/pkg/logger"
	"github.com/reelhq/reel/pkg/worker"
)

var log = logger.Get("AcquireServ")

type (
	canonicalizer interface {
		Canonicalize(ctx context.Context, sourcePath string, title string, source string) (*artifact.Artifact, error)
	}

	uploadProcessor interface {
		Process(ctx context.Context, filePath string, originalName string, onProgress upload.ProgressCallback) ([]*artifact.Artifact, error)
	}

	failureLedger interface {
		RecordDownloadFailure(url string, method string, message string) (*failure.FailedDownload, error)
		FailDownload(id uuid.UUID, message string) error
		ResolveDownload(id uuid.UUID) error
		ResolveDownloadByURL(url string) error
		RecordUploadFailure(filename string, mimeType string, message string) (*failure.FailedUpload, error)
	}

	// Service drains the queue ledger with a pool of sleeping
	// workers. Claiming an item (QUEUED -> ACTIVE) happens under the
	// service mutex so exactly one worker ever executes a given item; the
	// execution itself runs outside the lock.
	Service struct {
		*sync.Mutex
		ledger     Ledger
		resolver   *download.Resolver
		uploads    uploadProcessor
		artifacts  canonicalizer
		failures   failureLedger
		eventBus   event.EventDispatcher
		workerPool *worker.WorkerPool

		scratchPath string
		jobTimeout  time.Duration
		runCtx      context.Context
	}
)

// New constructs the acquisition service and populates its worker pool.
// jobTimeout should come from JobTimeout so it respects the configured
// handler timeouts.
func New(
	config Config,
	jobTimeout time.Duration,
	ledger Ledger,
	resolver *download.Resolver,
	uploads uploadProcessor,
	artifacts canonicalizer,
	failures failureLedger,
	eventBus event.EventDispatcher,
) *Service {
	service := &Service{
		Mutex:       &sync.Mutex{},
		ledger:      ledger,
		resolver:    resolver,
		uploads:     uploads,
		artifacts:   artifacts,
		failures:    failures,
		eventBus:    eventBus,
		workerPool:  worker.NewWorkerPool(),
		scratchPath: config.ScratchPath,
		jobTimeout:  jobTimeout,
		runCtx:      context.Background(),
	}

	for i := 0; i < config.Parallelism; i++ {
		label := fmt.Sprintf("acquisition-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.PerformItemAcquisition))
	}

	return service
}

// Run starts the worker pool and blocks until the context is cancelled,
// at which point the pool is drained and closed. Items queued before Run
// are picked up immediately.
func (service *Service) Run(ctx context.Context) error {
	service.Lock()
	service.runCtx = ctx
	service.Unlock()

	if err := service.workerPool.Start(); err != nil {
		return err
	}
	service.workerPool.WakeupWorkers()

	<-ctx.Done()
	service.workerPool.Close()
	return nil
}

// QueueDownload validates the URL against the resolver's policy and, if
// acceptable, adds a queued download item to the ledger. A ValidationError
// is returned for URLs that can never succeed; those are rejected without
// touching the failure ledger.
func (service *Service) QueueDownload(url string) (*Item, error) {
	if _, err := service.resolver.Resolve(url); err != nil {
		return nil, err
	}

	item := &Item{
		ID:          uuid.New(),
		Kind:        DOWNLOAD,
		State:       QUEUED,
		Source:      url,
		DisplayName: url,
		AddedAt:     time.Now(),
	}

	if err := service.ledger.Put(item); err != nil {
		return nil, err
	}

	log.Emit(logger.NEW, "Queued download of %s as item %s\n", url, item.ID)
	service.eventBus.Dispatch(event.DOWNLOAD_UPDATE, item.ID)
	service.workerPool.WakeupWorkers()
	return item, nil
}

// RequeueDownload dispatches a claimed failure-ledger record back through
// the normal worker path, linking the item to the record so the outcome
// resolves or re-fails it.
func (service *Service) RequeueDownload(record *failure.FailedDownload) error {
	failureID := record.ID
	item := &Item{
		ID:          uuid.New(),
		Kind:        DOWNLOAD,
		State:       QUEUED,
		Source:      record.URL,
		DisplayName: record.URL,
		AddedAt:     time.Now(),
		FailureID:   &failureID,
	}

	if err := service.ledger.Put(item); err != nil {
		return err
	}

	log.Emit(logger.NEW, "Requeued failed download %s (retry %d) as item %s\n", record.URL, record.RetryCount, item.ID)
	service.eventBus.Dispatch(event.DOWNLOAD_UPDATE, item.ID)
	service.workerPool.WakeupWorkers()
	return nil
}

// QueueUpload adds a queued upload item for a file already staged on disk
// by the API layer. originalName is the client-provided filename and
// drives archive/video detection; mimeType is the client-declared content
// type, retained for failure reporting.
func (service *Service) QueueUpload(stagedPath string, originalName string, mimeType string) (*Item, error) {
	item := &Item{
		ID:          uuid.New(),
		Kind:        UPLOAD,
		State:       QUEUED,
		Source:      originalName,
		DisplayName: originalName,
		AddedAt:     time.Now(),
		StagedPath:  stagedPath,
		MimeType:    mimeType,
	}

	if err := service.ledger.Put(item); err != nil {
		return nil, err
	}

	log.Emit(logger.NEW, "Queued upload of '%s' as item %s\n", originalName, item.ID)
	service.eventBus.Dispatch(event.UPLOAD_UPDATE, item.ID)
	service.workerPool.WakeupWorkers()
	return item, nil
}

func (service *Service) GetItem(id uuid.UUID) (*Item, error) {
	return service.ledger.Get(id)
}

// ListItems returns the current ledger contents in queueing order.
func (service *Service) ListItems() ([]*Item, error) {
	items, err := service.ledger.List()
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].AddedAt.Before(items[j].AddedAt) })
	return items, nil
}

// CancelItem removes an item from the ledger. For queued items this is a
// true cancellation; for active items it is advisory, the executing
// worker notices the missing entry before canonicalization and discards
// its work.
func (service *Service) CancelItem(id uuid.UUID) error {
	service.Lock()
	defer service.Unlock()

	item, err := service.ledger.Get(id)
	if err != nil {
		return err
	}

	if item.Kind == UPLOAD && item.State == QUEUED && item.StagedPath != "" {
		if err := os.Remove(item.StagedPath); err != nil {
			log.Warnf("Failed to remove staged upload for cancelled item %s: %s\n", id, err.Error())
		}
	}

	if err := service.ledger.Remove(id); err != nil {
		return err
	}

	log.Emit(logger.REMOVE, "Cancelled item %s ('%s', was %s)\n", id, item.DisplayName, item.State)
	return nil
}

// IsActive reports whether the given ID still owns a queue entry. The
// scope janitor consults this before reaping scratch directories.
func (service *Service) IsActive(id uuid.UUID) bool {
	_, err := service.ledger.Get(id)
	return err == nil
}

// PerformItemAcquisition is the worker task: claim the oldest queued item
// and execute it. Returns false when the queue holds no claimable work,
// sending the worker back to sleep.
func (service *Service) PerformItemAcquisition(w worker.Worker) (bool, error) {
	item := service.claimQueuedItem()
	if item == nil {
		return false, nil
	}

	attemptCtx, cancel := context.WithTimeout(service.baseContext(), service.jobTimeout)
	defer cancel()

	switch item.Kind {
	case DOWNLOAD:
		service.executeDownload(attemptCtx, item)
	case UPLOAD:
		service.executeUpload(attemptCtx, item)
	}

	return true, nil
}

// claimQueuedItem transitions the oldest QUEUED item to ACTIVE under the
// service mutex and returns it, or nil when nothing is claimable.
func (service *Service) claimQueuedItem() *Item {
	service.Lock()
	defer service.Unlock()

	items, err := service.ledger.List()
	if err != nil {
		log.Errorf("Failed to list queue ledger while claiming: %s\n", err.Error())
		return nil
	}

	var claimed *Item
	for _, item := range items {
		if item.State != QUEUED {
			continue
		}
		if claimed == nil || item.AddedAt.Before(claimed.AddedAt) {
			claimed = item
		}
	}

	if claimed == nil {
		return nil
	}

	claimed.State = ACTIVE
	if err := service.ledger.Update(claimed); err != nil {
		log.Errorf("Failed to mark item %s active: %s\n", claimed.ID, err.Error())
		return nil
	}

	service.dispatchUpdate(claimed)
	return claimed
}

func (service *Service) dispatchUpdate(item *Item) {
	if item.Kind == UPLOAD {
		service.eventBus.Dispatch(event.UPLOAD_UPDATE, item.ID)
	} else {
		service.eventBus.Dispatch(event.DOWNLOAD_UPDATE, item.ID)
	}
}

// executeDownload runs a single download attempt to completion: resolve
// the handlers for the URL, try each in order inside a fresh resource
// scope, and canonicalize the first success.
func (service *Service) executeDownload(ctx context.Context, item *Item) {
	attemptScope, err := scope.New(service.scratchPath, item.ID)
	if err != nil {
		service.failDownloadItem(item, "", err)
		return
	}
	defer attemptScope.Close()

	handlers, err := service.resolver.Resolve(item.Source)
	if err != nil {
		service.failDownloadItem(item, "", err)
		return
	}

	onProgress := func(percent float64) { service.updateItemProgress(item, percent) }

	var result *download.Result
	var lastErr error
	var lastMethod string
	for index, handler := range handlers {
		lastMethod = handler.Name()
		result, lastErr = handler.Download(ctx, item.Source, attemptScope.Dir(), onProgress)
		if lastErr == nil {
			break
		}

		result = nil
		if index < len(handlers)-1 {
			log.Warnf("Handler '%s' failed for %s (%s), falling back\n", handler.Name(), item.Source, lastErr.Error())
		}
		if ctx.Err() != nil {
			break
		}
	}

	if result == nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			lastErr = fmt.Errorf("attempt timed out after %s: %w", service.jobTimeout, lastErr)
		}

		service.failDownloadItem(item, lastMethod, lastErr)
		return
	}

	// A removed ledger entry means the item was cancelled mid-transfer;
	// the downloaded file dies with the scope.
	if _, err := service.ledger.Get(item.ID); err != nil {
		log.Emit(logger.REMOVE, "Item %s was cancelled during transfer, discarding downloaded file\n", item.ID)
		return
	}

	artifactRecord, err := service.artifacts.Canonicalize(ctx, result.Path, result.DisplayName, item.Source)
	if err != nil {
		service.failDownloadItem(item, lastMethod, err)
		return
	}

	service.ledger.Remove(item.ID)
	if item.FailureID != nil {
		if err := service.failures.ResolveDownload(*item.FailureID); err != nil {
			log.Warnf("Failed to resolve failure record %s after successful retry: %s\n", *item.FailureID, err.Error())
		}
	} else if err := service.failures.ResolveDownloadByURL(item.Source); err != nil {
		log.Warnf("Failed to resolve lingering failure record for %s: %s\n", item.Source, err.Error())
	}

	log.Emit(logger.SUCCESS, "Download %s completed via '%s' (artifact %s)\n", item.ID, lastMethod, artifactRecord.ID)
	service.eventBus.Dispatch(event.DOWNLOAD_COMPLETE, item.ID)
}

// executeUpload hands the staged file to the upload processor. The
// processor consumes the staged file and its own scratch space on every
// outcome.
func (service *Service) executeUpload(ctx context.Context, item *Item) {
	base := item.Progress
	onProgress := func(percent float64) {
		service.updateItemProgress(item, base+percent*(100-base)/100)
	}

	results, err := service.uploads.Process(ctx, item.StagedPath, item.Source, onProgress)
	if err != nil {
		item.State = FAILED
		item.ErrorMessage = err.Error()
		if updateErr := service.ledger.Update(item); updateErr != nil && !errors.Is(updateErr, ErrItemNotFound) {
			log.Warnf("Failed to record error on ledger entry %s: %s\n", item.ID, updateErr.Error())
		}
		service.eventBus.Dispatch(event.UPLOAD_UPDATE, item.ID)

		// Unsupported files are rejections; a retry record would only
		// invite the operator to retry something that can never work.
		if !errors.Is(err, upload.ErrUnsupportedFile) {
			if _, recordErr := service.failures.RecordUploadFailure(item.Source, item.MimeType, err.Error()); recordErr != nil {
				log.Errorf("Failed to record upload failure for '%s': %s\n", item.Source, recordErr.Error())
			}
		}

		service.ledger.Remove(item.ID)
		log.Errorf("Upload %s ('%s') failed: %s\n", item.ID, item.Source, err.Error())
		return
	}

	service.ledger.Remove(item.ID)
	log.Emit(logger.SUCCESS, "Upload %s ('%s') produced %d artifact(s)\n", item.ID, item.Source, len(results))
	service.eventBus.Dispatch(event.UPLOAD_COMPLETE, item.ID)
}

// failDownloadItem applies the failure protocol: the error is written to
// the ledger entry, a durable failure record is created or updated
// (validation errors excepted), and the ledger entry is removed.
func (service *Service) failDownloadItem(item *Item, method string, cause error) {
	message := cause.Error()

	item.State = FAILED
	item.ErrorMessage = message
	if err := service.ledger.Update(item); err != nil && !errors.Is(err, ErrItemNotFound) {
		log.Warnf("Failed to record error on ledger entry %s: %s\n", item.ID, err.Error())
	}
	service.eventBus.Dispatch(event.DOWNLOAD_UPDATE, item.ID)

	if !download.IsValidationError(cause) {
		if item.FailureID != nil {
			if err := service.failures.FailDownload(*item.FailureID, message); err != nil {
				log.Errorf("Failed to re-fail record %s: %s\n", *item.FailureID, err.Error())
			}
		} else if _, err := service.failures.RecordDownloadFailure(item.Source, method, message); err != nil {
			log.Errorf("Failed to record download failure for %s: %s\n", item.Source, err.Error())
		}
	}

	service.ledger.Remove(item.ID)
	log.Errorf("Download %s (%s) failed: %s\n", item.ID, item.Source, message)
}

// updateItemProgress records transfer progress on the ledger entry. Kept
// deliberately quiet: a missing entry just means the item was cancelled.
func (service *Service) updateItemProgress(item *Item, percent float64) {
	item.Progress = percent
	if err := service.ledger.Update(item); err != nil {
		return
	}

	if item.Kind == UPLOAD {
		service.eventBus.Dispatch(event.UPLOAD_UPDATE, item.ID)
	} else {
		service.eventBus.Dispatch(event.DOWNLOAD_PROGRESS, item.ID)
	}
}

func (service *Service) baseContext() context.Context {
	service.Lock()
	defer service.Unlock()
	return service.runCtx
}
