package acquisition_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/reelhq/reel/internal/acquisition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queuedItem(source string) *acquisition.Item {
	return &acquisition.Item{
		ID:          uuid.New(),
		Kind:        acquisition.DOWNLOAD,
		State:       acquisition.QUEUED,
		Source:      source,
		DisplayName: source,
		AddedAt:     time.Now(),
	}
}

func Test_MemoryLedger_RoundTrip(t *testing.T) {
	t.Parallel()

	ledger := acquisition.NewMemoryLedger()
	item := queuedItem("https://example.com/video.mp4")
	require.NoError(t, ledger.Put(item))

	fetched, err := ledger.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Source, fetched.Source)
	assert.Equal(t, acquisition.QUEUED, fetched.State)

	fetched.State = acquisition.ACTIVE
	fetched.Progress = 42
	require.NoError(t, ledger.Update(fetched))

	refetched, err := ledger.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, acquisition.ACTIVE, refetched.State)
	assert.Equal(t, float64(42), refetched.Progress)

	require.NoError(t, ledger.Remove(item.ID))
	_, err = ledger.Get(item.ID)
	assert.ErrorIs(t, err, acquisition.ErrItemNotFound)
}

func Test_MemoryLedger_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ledger := acquisition.NewMemoryLedger()
	item := queuedItem("https://example.com/video.mp4")
	require.NoError(t, ledger.Put(item))

	// Mutating a fetched item must not leak into the ledger's storage.
	fetched, err := ledger.Get(item.ID)
	require.NoError(t, err)
	fetched.State = acquisition.FAILED

	refetched, err := ledger.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, acquisition.QUEUED, refetched.State)
}

func Test_MemoryLedger_UpdateAndRemoveMissingItem(t *testing.T) {
	t.Parallel()

	ledger := acquisition.NewMemoryLedger()
	assert.ErrorIs(t, ledger.Update(queuedItem("https://example.com/a")), acquisition.ErrItemNotFound)
	assert.ErrorIs(t, ledger.Remove(uuid.New()), acquisition.ErrItemNotFound)
}

func Test_MemoryLedger_ListReturnsAllItems(t *testing.T) {
	t.Parallel()

	ledger := acquisition.NewMemoryLedger()
	first := queuedItem("https://example.com/a")
	second := queuedItem("https://example.com/b")
	require.NoError(t, ledger.Put(first))
	require.NoError(t, ledger.Put(second))

	items, err := ledger.List()
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

// The Redis ledger persists items as JSON; the enum fields must encode by
// name rather than ordinal so entries survive code reordering.
func Test_Item_StateAndKindSurviveJSON(t *testing.T) {
	t.Parallel()

	item := queuedItem("report.zip")
	item.Kind = acquisition.UPLOAD
	item.State = acquisition.ACTIVE

	encoded, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"UPLOAD"`)
	assert.Contains(t, string(encoded), `"ACTIVE"`)

	var decoded acquisition.Item
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, acquisition.UPLOAD, decoded.Kind)
	assert.Equal(t, acquisition.ACTIVE, decoded.State)

	// Every state arm must survive the round trip, including COMPLETED,
	// which only ever appears on the wire.
	for _, state := range []acquisition.ItemState{acquisition.QUEUED, acquisition.ACTIVE, acquisition.COMPLETED, acquisition.FAILED} {
		item.State = state
		encoded, err := json.Marshal(item)
		require.NoError(t, err)

		var roundTripped acquisition.Item
		require.NoError(t, json.Unmarshal(encoded, &roundTripped))
		assert.Equal(t, state, roundTripped.State, state.String())
	}
}
