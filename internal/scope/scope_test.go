package scope_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/reelhq/reel/internal/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticOwners struct{ active map[uuid.UUID]bool }

func (owners *staticOwners) IsActive(id uuid.UUID) bool { return owners.active[id] }

func Test_Scope_CreateAndClose(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "scratch")
	id := uuid.New()

	attemptScope, err := scope.New(root, id)
	require.NoError(t, err)
	assert.Equal(t, id, attemptScope.ID())
	assert.DirExists(t, attemptScope.Dir())

	require.NoError(t, os.WriteFile(filepath.Join(attemptScope.Dir(), "partial.mp4"), []byte("bytes"), 0o644))

	attemptScope.Close()
	assert.NoDirExists(t, attemptScope.Dir())

	// Close is idempotent.
	attemptScope.Close()
}

func Test_OwnerID_ParsesScopeDirNames(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	parsed, ok := scope.OwnerID(scope.DirPrefix + id.String())
	assert.True(t, ok)
	assert.Equal(t, id, parsed)

	_, ok = scope.OwnerID("some-other-dir")
	assert.False(t, ok)
	_, ok = scope.OwnerID(scope.DirPrefix + "not-a-uuid")
	assert.False(t, ok)
	_, ok = scope.OwnerID(scope.DirPrefix)
	assert.False(t, ok)
}

func Test_Janitor_ReapsStaleUnownedScopes(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "scratch")
	staleID, freshID, ownedID := uuid.New(), uuid.New(), uuid.New()

	staleScope, err := scope.New(root, staleID)
	require.NoError(t, err)
	freshScope, err := scope.New(root, freshID)
	require.NoError(t, err)
	ownedScope, err := scope.New(root, ownedID)
	require.NoError(t, err)

	// Age the stale and owned dirs well past the grace period.
	old := time.Now().Add(-time.Minute * 10)
	require.NoError(t, os.Chtimes(staleScope.Dir(), old, old))
	require.NoError(t, os.Chtimes(ownedScope.Dir(), old, old))

	// An unrelated dir beneath the root must never be touched.
	bystanderDir := filepath.Join(root, "keep-me")
	require.NoError(t, os.Mkdir(bystanderDir, 0o755))
	require.NoError(t, os.Chtimes(bystanderDir, old, old))

	owners := &staticOwners{active: map[uuid.UUID]bool{ownedID: true}}
	janitor := scope.NewJanitor(root, time.Minute*5, time.Minute, owners)
	janitor.Sweep()

	assert.NoDirExists(t, staleScope.Dir(), "stale unowned scope should be reaped")
	assert.DirExists(t, freshScope.Dir(), "scopes within the grace period are preserved")
	assert.DirExists(t, ownedScope.Dir(), "actively owned scopes are preserved regardless of age")
	assert.DirExists(t, bystanderDir)
}

func Test_Janitor_MissingRootIsNotAnError(t *testing.T) {
	t.Parallel()

	janitor := scope.NewJanitor(filepath.Join(t.TempDir(), "does-not-exist"), time.Minute, time.Minute, nil)
	janitor.Sweep()
}
