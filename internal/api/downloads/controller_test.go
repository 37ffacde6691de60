package downloads_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/reelhq/reel/internal/acquisition"
	"github.com/reelhq/reel/internal/api/downloads"
	"github.com/reelhq/reel/internal/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcquisition struct {
	requeued   []*failure.FailedDownload
	requeueErr error
}

func (service *fakeAcquisition) QueueDownload(url string) (*acquisition.Item, error) {
	return &acquisition.Item{ID: uuid.New(), Source: url, DisplayName: url}, nil
}

func (service *fakeAcquisition) RequeueDownload(record *failure.FailedDownload) error {
	if service.requeueErr != nil {
		return service.requeueErr
	}

	service.requeued = append(service.requeued, record)
	return nil
}

func (service *fakeAcquisition) ListItems() ([]*acquisition.Item, error) { return nil, nil }
func (service *fakeAcquisition) CancelItem(uuid.UUID) error              { return nil }

// fakeFailures applies the real claim semantics: only a pending record may
// transition to retrying, and claiming takes it off the schedule.
type fakeFailures struct {
	records    map[uuid.UUID]*failure.FailedDownload
	rolledBack map[uuid.UUID]string
}

func (service *fakeFailures) ListFailedDownloads() ([]*failure.FailedDownload, error) {
	return nil, nil
}

func (service *fakeFailures) ClaimDownload(id uuid.UUID) (*failure.FailedDownload, error) {
	record, ok := service.records[id]
	if !ok {
		return nil, failure.ErrDownloadNotFound
	}
	if record.Status != failure.DownloadPending {
		return nil, failure.ErrNotClaimable
	}

	record.MarkRetrying(time.Now())
	return record, nil
}

func (service *fakeFailures) FailDownload(id uuid.UUID, message string) error {
	if service.rolledBack == nil {
		service.rolledBack = map[uuid.UUID]string{}
	}

	service.rolledBack[id] = message
	return nil
}

func (service *fakeFailures) DismissDownload(id uuid.UUID) error {
	if _, ok := service.records[id]; !ok {
		return failure.ErrDownloadNotFound
	}

	delete(service.records, id)
	return nil
}

func newRetryFixture(t *testing.T) (*echo.Echo, *fakeAcquisition, *fakeFailures, *failure.FailedDownload) {
	t.Helper()

	record := failure.NewFailedDownload("https://example.com/video", "extractor")
	record.MarkFailed("server returned 503", failure.DefaultMaxRetries, time.Now().Add(-time.Minute*15))

	acquisitionServ := &fakeAcquisition{}
	failureServ := &fakeFailures{records: map[uuid.UUID]*failure.FailedDownload{record.ID: record}}

	ec := echo.New()
	downloads.New(validator.New(), acquisitionServ, failureServ).SetRoutes(ec.Group("/downloads"))
	return ec, acquisitionServ, failureServ, record
}

func postRetry(ec *echo.Echo, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/downloads/failed/"+id+"/retry/", nil)
	rec := httptest.NewRecorder()
	ec.ServeHTTP(rec, req)
	return rec
}

func Test_RetryFailed_ClaimsThenDispatches(t *testing.T) {
	t.Parallel()

	ec, acquisitionServ, _, record := newRetryFixture(t)

	rec := postRetry(ec, record.ID.String())
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, acquisitionServ.requeued, 1)
	assert.Equal(t, record.ID, acquisitionServ.requeued[0].ID)
	assert.Equal(t, failure.DownloadRetrying, record.Status, "the record must be claimed before dispatch")
}

func Test_RetryFailed_AlreadyClaimedRecord_Conflicts(t *testing.T) {
	t.Parallel()

	ec, acquisitionServ, _, record := newRetryFixture(t)

	require.Equal(t, http.StatusAccepted, postRetry(ec, record.ID.String()).Code)

	// The record left 'pending' on the first claim; retrying it again must
	// not double-dispatch.
	rec := postRetry(ec, record.ID.String())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, acquisitionServ.requeued, 1)
}

func Test_RetryFailed_UnknownRecord_NotFound(t *testing.T) {
	t.Parallel()

	ec, _, _, _ := newRetryFixture(t)
	assert.Equal(t, http.StatusNotFound, postRetry(ec, uuid.NewString()).Code)
}

func Test_RetryFailed_DispatchError_RollsTheRecordBack(t *testing.T) {
	t.Parallel()

	ec, acquisitionServ, failureServ, record := newRetryFixture(t)
	acquisitionServ.requeueErr = errors.New("worker pool closed")

	rec := postRetry(ec, record.ID.String())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, failureServ.rolledBack, record.ID, "an undispatchable claim must go back on the schedule")
}
