package failure

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/reelhq/reel/internal/database"
)

var (
	ErrDownloadNotFound = errors.New("failed download record does not exist")
	ErrUploadNotFound   = errors.New("failed upload record does not exist")

	// ErrNotClaimable indicates a record could not be transitioned to
	// 'retrying' because it is not currently 'pending' - typically a
	// concurrent sweep or operator got there first.
	ErrNotClaimable = errors.New("record is not pending and cannot be claimed for retry")

	psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
)

type Store struct{}

func NewStore() *Store { return &Store{} }

// GetDownloadByURL finds the failure record for the given URL, if any.
// Records are upserted keyed by URL so that repeated failures of the same
// item accumulate on one row.
func (store *Store) GetDownloadByURL(db database.Queryable, url string) (*FailedDownload, error) {
	query, args, err := psql.Select("*").From("failed_downloads").Where(squirrel.Eq{"url": url}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct query: %w", err)
	}

	var result FailedDownload
	if err := db.Get(&result, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDownloadNotFound
		}

		return nil, err
	}

	return &result, nil
}

func (store *Store) GetDownload(db database.Queryable, id uuid.UUID) (*FailedDownload, error) {
	query, args, err := psql.Select("*").From("failed_downloads").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct query: %w", err)
	}

	var result FailedDownload
	if err := db.Get(&result, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDownloadNotFound
		}

		return nil, err
	}

	return &result, nil
}

func (store *Store) ListDownloads(db database.Queryable) ([]*FailedDownload, error) {
	query, args, err := psql.Select("*").From("failed_downloads").OrderBy("last_attempt_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct query: %w", err)
	}

	var results []*FailedDownload
	if err := db.Select(&results, query, args...); err != nil {
		return nil, err
	}

	return results, nil
}

// SaveDownload inserts or fully updates the record (keyed by ID). The
// state-machine transitions are applied to the model beforehand; this
// method only persists the outcome.
func (store *Store) SaveDownload(db database.Queryable, failed *FailedDownload) error {
	_, err := db.Exec(`
		INSERT INTO failed_downloads(id, url, method, error_message, retry_count, status, last_attempt_at, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, current_timestamp, current_timestamp)
		ON CONFLICT (id) DO UPDATE SET
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count,
			status = EXCLUDED.status,
			last_attempt_at = EXCLUDED.last_attempt_at,
			next_retry_at = EXCLUDED.next_retry_at,
			updated_at = current_timestamp
	`, failed.ID, failed.URL, failed.Method, failed.ErrorMessage, failed.RetryCount, failed.Status, failed.LastAttemptAt, failed.NextRetryAt)

	return err
}

// ClaimDueDownloads atomically transitions up to 'batch' due pending
// records to 'retrying' and returns them. The single guarded statement
// (with SKIP LOCKED) ensures no two sweeps, or a sweep and a manual retry,
// can dispatch the same record twice.
func (store *Store) ClaimDueDownloads(db database.Queryable, batch int, now time.Time) ([]*FailedDownload, error) {
	var claimed []*FailedDownload
	err := db.Select(&claimed, `
		UPDATE failed_downloads SET
			status = 'retrying',
			retry_count = retry_count + 1,
			last_attempt_at = $1,
			next_retry_at = NULL,
			updated_at = current_timestamp
		WHERE id IN (
			SELECT id FROM failed_downloads
			WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $1)
			ORDER BY last_attempt_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, now, batch)
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// ClaimDownload is the manual-retry equivalent of ClaimDueDownloads for a
// single record, ignoring any scheduled NextRetryAt: the operator has
// asked for the retry to happen now.
func (store *Store) ClaimDownload(db database.Queryable, id uuid.UUID, now time.Time) (*FailedDownload, error) {
	var claimed []*FailedDownload
	err := db.Select(&claimed, `
		UPDATE failed_downloads SET
			status = 'retrying',
			retry_count = retry_count + 1,
			last_attempt_at = $1,
			next_retry_at = NULL,
			updated_at = current_timestamp
		WHERE id = $2 AND status = 'pending'
		RETURNING *
	`, now, id)
	if err != nil {
		return nil, err
	}

	if len(claimed) == 0 {
		if _, err := store.GetDownload(db, id); err != nil {
			return nil, err
		}

		return nil, ErrNotClaimable
	}

	return claimed[0], nil
}

func (store *Store) DeleteDownload(db database.Queryable, id uuid.UUID) error {
	result, err := db.Exec(`DELETE FROM failed_downloads WHERE id = $1`, id)
	if err != nil {
		return err
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrDownloadNotFound
	}

	return nil
}

func (store *Store) ListUploads(db database.Queryable) ([]*FailedUpload, error) {
	query, args, err := psql.Select("*").From("failed_uploads").OrderBy("last_attempt_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct query: %w", err)
	}

	var results []*FailedUpload
	if err := db.Select(&results, query, args...); err != nil {
		return nil, err
	}

	return results, nil
}

func (store *Store) SaveUpload(db database.Queryable, failed *FailedUpload) error {
	_, err := db.Exec(`
		INSERT INTO failed_uploads(id, filename, mime_type, error_message, retry_count, status, last_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, current_timestamp, current_timestamp)
		ON CONFLICT (id) DO UPDATE SET
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count,
			status = EXCLUDED.status,
			last_attempt_at = EXCLUDED.last_attempt_at,
			updated_at = current_timestamp
	`, failed.ID, failed.Filename, failed.MimeType, failed.ErrorMessage, failed.RetryCount, failed.Status, failed.LastAttemptAt)

	return err
}

func (store *Store) DeleteUpload(db database.Queryable, id uuid.UUID) error {
	result, err := db.Exec(`DELETE FROM failed_uploads WHERE id = $1`, id)
	if err != nil {
		return err
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrUploadNotFound
	}

	return nil
}
