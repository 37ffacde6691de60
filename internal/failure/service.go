package failure

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/reelhq/reel/pkg/logger"
)

var log = logger.Get("FailureServ")

// Service is the high-level surface over the failure ledgers used by the
// acquisition pipeline, the retry sweep and the API. All single-record
// transitions go through the claim statements in the store so concurrent
// writers cannot double-dispatch a retry.
type Service struct {
	db         *sqlx.DB
	store      *Store
	maxRetries int
}

func NewService(db *sqlx.DB, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &Service{db: db, store: NewStore(), maxRetries: maxRetries}
}

// RecordDownloadFailure creates or updates the failure record for the URL
// and applies the retry state machine to it. Repeated failures of the same
// URL accumulate on a single record.
func (service *Service) RecordDownloadFailure(url string, method string, message string) (*FailedDownload, error) {
	record, err := service.store.GetDownloadByURL(service.db, url)
	if err != nil {
		if !errors.Is(err, ErrDownloadNotFound) {
			return nil, err
		}

		record = NewFailedDownload(url, method)
	}

	record.MarkFailed(message, service.maxRetries, time.Now())
	if err := service.store.SaveDownload(service.db, record); err != nil {
		return nil, err
	}

	log.Emit(logger.NEW, "Recorded download failure for %s (retry %d/%d, status %s)\n", url, record.RetryCount, service.maxRetries, record.Status)
	return record, nil
}

// FailDownload re-fails a previously claimed record after an unsuccessful
// retry attempt, rescheduling or terminating it per the backoff policy.
func (service *Service) FailDownload(id uuid.UUID, message string) error {
	record, err := service.store.GetDownload(service.db, id)
	if err != nil {
		return err
	}

	record.MarkFailed(message, service.maxRetries, time.Now())
	return service.store.SaveDownload(service.db, record)
}

// ResolveDownload terminally resolves the record; called when a retry (or
// an unrelated fresh attempt for the same URL) succeeds.
func (service *Service) ResolveDownload(id uuid.UUID) error {
	record, err := service.store.GetDownload(service.db, id)
	if err != nil {
		return err
	}

	record.MarkResolved()
	return service.store.SaveDownload(service.db, record)
}

// ResolveDownloadByURL resolves any lingering failure record for the URL.
// A no-op if the URL never failed.
func (service *Service) ResolveDownloadByURL(url string) error {
	record, err := service.store.GetDownloadByURL(service.db, url)
	if err != nil {
		if errors.Is(err, ErrDownloadNotFound) {
			return nil
		}

		return err
	}

	record.MarkResolved()
	return service.store.SaveDownload(service.db, record)
}

// ClaimDownload transitions a single pending record to 'retrying' on
// behalf of an operator-triggered manual retry.
func (service *Service) ClaimDownload(id uuid.UUID) (*FailedDownload, error) {
	return service.store.ClaimDownload(service.db, id, time.Now())
}

// ClaimDueDownloads transitions up to 'batch' due pending records to
// 'retrying' and returns them for re-dispatch.
func (service *Service) ClaimDueDownloads(batch int) ([]*FailedDownload, error) {
	return service.store.ClaimDueDownloads(service.db, batch, time.Now())
}

func (service *Service) ListFailedDownloads() ([]*FailedDownload, error) {
	return service.store.ListDownloads(service.db)
}

func (service *Service) DismissDownload(id uuid.UUID) error {
	return service.store.DeleteDownload(service.db, id)
}

// RecordUploadFailure records a failed upload attempt. Uploads carry no
// scheduling; the record simply surfaces in the operator-facing list.
func (service *Service) RecordUploadFailure(filename string, mimeType string, message string) (*FailedUpload, error) {
	record := NewFailedUpload(filename, mimeType)
	record.MarkFailed(message, service.maxRetries, time.Now())
	if err := service.store.SaveUpload(service.db, record); err != nil {
		return nil, err
	}

	log.Emit(logger.NEW, "Recorded upload failure for %s: %s\n", filename, message)
	return record, nil
}

func (service *Service) ListFailedUploads() ([]*FailedUpload, error) {
	return service.store.ListUploads(service.db)
}

func (service *Service) DismissUpload(id uuid.UUID) error {
	return service.store.DeleteUpload(service.db, id)
}
