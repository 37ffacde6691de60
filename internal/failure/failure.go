// Package failure holds the durable record of downloads and uploads which
// could not be acquired, along with the retry/backoff state machine which
// governs when a failed download becomes eligible for another attempt.
// Unlike the volatile queue ledger, these records outlive any single worker
// execution and are only ever deleted by explicit operator action.
package failure

import (
	"time"

	"github.com/google/uuid"
)

type (
	DownloadStatus string
	UploadStatus   string

	// FailedDownload is the durable record for a URL acquisition which
	// failed at least once. While status is 'pending' the record is either
	// immediately retryable (nil NextRetryAt) or scheduled for the future;
	// 'failed' and 'resolved' are terminal and always carry a nil
	// NextRetryAt.
	FailedDownload struct {
		ID            uuid.UUID      `db:"id"`
		URL           string         `db:"url"`
		Method        string         `db:"method"`
		ErrorMessage  string         `db:"error_message"`
		RetryCount    int            `db:"retry_count"`
		Status        DownloadStatus `db:"status"`
		LastAttemptAt time.Time      `db:"last_attempt_at"`
		NextRetryAt   *time.Time     `db:"next_retry_at"`
		CreatedAt     time.Time      `db:"created_at"`
		UpdatedAt     time.Time      `db:"updated_at"`
	}

	// FailedUpload follows a simpler counter-only policy: uploads are
	// user-initiated, so no autonomous sweep reschedules them. They
	// surface in an operator-facing listing for manual handling.
	FailedUpload struct {
		ID            uuid.UUID    `db:"id"`
		Filename      string       `db:"filename"`
		MimeType      string       `db:"mime_type"`
		ErrorMessage  string       `db:"error_message"`
		RetryCount    int          `db:"retry_count"`
		Status        UploadStatus `db:"status"`
		LastAttemptAt time.Time    `db:"last_attempt_at"`
		CreatedAt     time.Time    `db:"created_at"`
		UpdatedAt     time.Time    `db:"updated_at"`
	}
)

const (
	DownloadPending  DownloadStatus = "pending"
	DownloadRetrying DownloadStatus = "retrying"
	DownloadFailed   DownloadStatus = "failed"
	DownloadResolved DownloadStatus = "resolved"

	UploadPending  UploadStatus = "pending"
	UploadFailed   UploadStatus = "failed"
	UploadResolved UploadStatus = "resolved"
)

const (
	// DefaultMaxRetries bounds the retry state machine; once the count
	// reaches it the record transitions to the terminal 'failed' state.
	DefaultMaxRetries = 5

	// backoffBase is multiplied by 2^retryCount to produce the delay
	// before the next scheduled retry: 10, 20, 40, 80, 160 minutes for
	// retries one through five.
	backoffBase = 5 * time.Minute
)

func NewFailedDownload(url string, method string) *FailedDownload {
	return &FailedDownload{
		ID:     uuid.New(),
		URL:    url,
		Method: method,
		Status: DownloadPending,
	}
}

func NewFailedUpload(filename string, mimeType string) *FailedUpload {
	return &FailedUpload{
		ID:       uuid.New(),
		Filename: filename,
		MimeType: mimeType,
		Status:   UploadPending,
	}
}

// MarkRetrying transitions the record out of 'pending' immediately before
// a retry attempt begins. Transitioning first is what prevents a sweep and
// a manual retry from double-dispatching the same record.
func (failed *FailedDownload) MarkRetrying(now time.Time) {
	failed.Status = DownloadRetrying
	failed.LastAttemptAt = now
	failed.RetryCount++
	failed.NextRetryAt = nil
}

// MarkFailed records another unsuccessful attempt. If the retry budget is
// exhausted the record becomes terminally 'failed'; otherwise it returns
// to 'pending' with an exponentially backed-off NextRetryAt.
func (failed *FailedDownload) MarkFailed(message string, maxRetries int, now time.Time) {
	failed.ErrorMessage = message
	failed.LastAttemptAt = now

	if failed.RetryCount+1 >= maxRetries {
		failed.Status = DownloadFailed
		failed.NextRetryAt = nil
		return
	}

	failed.RetryCount++
	next := now.Add(backoffBase * (1 << failed.RetryCount))
	failed.Status = DownloadPending
	failed.NextRetryAt = &next
}

// MarkResolved is terminal and idempotent: a later attempt succeeded, or
// an operator dismissed the failure.
func (failed *FailedDownload) MarkResolved() {
	failed.Status = DownloadResolved
	failed.NextRetryAt = nil
}

// IsDue reports whether a pending record is eligible for retry at the
// given instant.
func (failed *FailedDownload) IsDue(now time.Time) bool {
	if failed.Status != DownloadPending {
		return false
	}

	return failed.NextRetryAt == nil || !failed.NextRetryAt.After(now)
}

// MarkFailed increments the linear retry counter; once the fixed threshold
// is reached the upload is terminally 'failed'. No scheduling is involved.
func (failed *FailedUpload) MarkFailed(message string, maxRetries int, now time.Time) {
	failed.ErrorMessage = message
	failed.LastAttemptAt = now
	failed.RetryCount++

	if failed.RetryCount >= maxRetries {
		failed.Status = UploadFailed
	} else {
		failed.Status = UploadPending
	}
}

func (failed *FailedUpload) MarkResolved() {
	failed.Status = UploadResolved
}
