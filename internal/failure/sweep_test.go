package failure_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/reelhq/reel/internal/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClaimer mimics the store's claim semantics: each claim drains the due
// list and transitions the claimed records out of pending, so a record can
// only ever be dispatched once.
type fakeClaimer struct {
	due      []*failure.FailedDownload
	claimErr error
	refailed map[uuid.UUID]string
}

func (claimer *fakeClaimer) ClaimDueDownloads(batch int) ([]*failure.FailedDownload, error) {
	if claimer.claimErr != nil {
		return nil, claimer.claimErr
	}

	if batch > len(claimer.due) {
		batch = len(claimer.due)
	}

	claimed := claimer.due[:batch]
	claimer.due = claimer.due[batch:]
	for _, record := range claimed {
		record.MarkRetrying(time.Now())
	}

	return claimed, nil
}

func (claimer *fakeClaimer) FailDownload(id uuid.UUID, message string) error {
	if claimer.refailed == nil {
		claimer.refailed = map[uuid.UUID]string{}
	}

	claimer.refailed[id] = message
	return nil
}

type fakeRequeuer struct {
	requeued []string
	errFor   map[string]error
}

func (requeuer *fakeRequeuer) RequeueDownload(record *failure.FailedDownload) error {
	if err := requeuer.errFor[record.URL]; err != nil {
		return err
	}

	requeuer.requeued = append(requeuer.requeued, record.URL)
	return nil
}

func dueRecord(url string) *failure.FailedDownload {
	record := failure.NewFailedDownload(url, "extractor")
	record.MarkFailed("server returned 503", failure.DefaultMaxRetries, time.Now().Add(-time.Minute*15))
	return record
}

func Test_SweepOnce_ClaimGatesDispatch(t *testing.T) {
	t.Parallel()

	first, second := dueRecord("https://example.com/one"), dueRecord("https://example.com/two")
	claimer := &fakeClaimer{due: []*failure.FailedDownload{first, second}}
	requeuer := &fakeRequeuer{}

	sweeper := failure.NewSweeper(claimer, requeuer, time.Minute)
	sweeper.SweepOnce()

	assert.ElementsMatch(t, []string{first.URL, second.URL}, requeuer.requeued)
	assert.Equal(t, failure.DownloadRetrying, first.Status, "dispatch must only happen after the record left pending")
	assert.Equal(t, failure.DownloadRetrying, second.Status)

	// The records were claimed; a second sweep finds nothing to dispatch.
	sweeper.SweepOnce()
	assert.Len(t, requeuer.requeued, 2)
}

func Test_SweepOnce_RequeueError_RefailsTheRecord(t *testing.T) {
	t.Parallel()

	healthy, stuck := dueRecord("https://example.com/ok"), dueRecord("https://example.com/stuck")
	claimer := &fakeClaimer{due: []*failure.FailedDownload{healthy, stuck}}
	requeuer := &fakeRequeuer{errFor: map[string]error{stuck.URL: errors.New("worker pool closed")}}

	failure.NewSweeper(claimer, requeuer, time.Minute).SweepOnce()

	assert.Equal(t, []string{healthy.URL}, requeuer.requeued)
	require.Contains(t, claimer.refailed, stuck.ID, "an undispatchable record must go back on the schedule")
	assert.Contains(t, claimer.refailed[stuck.ID], "worker pool closed")
	assert.NotContains(t, claimer.refailed, healthy.ID)
}

func Test_SweepOnce_ClaimFailure_DispatchesNothing(t *testing.T) {
	t.Parallel()

	claimer := &fakeClaimer{claimErr: fmt.Errorf("connection refused")}
	requeuer := &fakeRequeuer{}

	failure.NewSweeper(claimer, requeuer, time.Minute).SweepOnce()
	assert.Empty(t, requeuer.requeued)
}

func Test_SweepOnce_BatchBound(t *testing.T) {
	t.Parallel()

	claimer := &fakeClaimer{}
	for i := 0; i < 15; i++ {
		claimer.due = append(claimer.due, dueRecord(fmt.Sprintf("https://example.com/video-%d", i)))
	}
	requeuer := &fakeRequeuer{}

	sweeper := failure.NewSweeper(claimer, requeuer, time.Minute)
	sweeper.SweepOnce()
	assert.Len(t, requeuer.requeued, 10, "a single sweep dispatches at most one batch")

	sweeper.SweepOnce()
	assert.Len(t, requeuer.requeued, 15)
}
