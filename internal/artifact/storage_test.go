package artifact_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/reelhq/reel/internal/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageFile(t *testing.T, dir string, name string, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func Test_DiskStorage_PutConsumesSourceFile(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	storage, err := artifact.NewDiskStorage(filepath.Join(tempDir, "media"), "/api/reel/v0/media")
	require.NoError(t, err)

	source := stageFile(t, tempDir, "movie.mp4", "movie bytes")
	canonicalPath, err := storage.Put(source)
	require.NoError(t, err)

	assert.Equal(t, "movie.mp4", canonicalPath)
	assert.True(t, storage.Exists(canonicalPath))
	assert.NoFileExists(t, source, "the source file is moved, not copied")

	content, err := os.ReadFile(filepath.Join(tempDir, "media", canonicalPath))
	require.NoError(t, err)
	assert.Equal(t, "movie bytes", string(content))
}

func Test_DiskStorage_CollidingNamesGetNumericSuffixes(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	storage, err := artifact.NewDiskStorage(filepath.Join(tempDir, "media"), "/api/reel/v0/media")
	require.NoError(t, err)

	first, err := storage.Put(stageFile(t, tempDir, "movie.mp4", "first"))
	require.NoError(t, err)
	second, err := storage.Put(stageFile(t, tempDir, "movie.mp4", "second"))
	require.NoError(t, err)
	third, err := storage.Put(stageFile(t, tempDir, "movie.mp4", "third"))
	require.NoError(t, err)

	assert.Equal(t, "movie.mp4", first)
	assert.Equal(t, "movie-1.mp4", second)
	assert.Equal(t, "movie-2.mp4", third)

	// Each stored file keeps its own content.
	content, err := os.ReadFile(filepath.Join(tempDir, "media", second))
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))
}

func Test_DiskStorage_URLJoinsBasePath(t *testing.T) {
	t.Parallel()

	storage, err := artifact.NewDiskStorage(filepath.Join(t.TempDir(), "media"), "/api/reel/v0/media/")
	require.NoError(t, err)

	assert.Equal(t, "/api/reel/v0/media/movie.mp4", storage.URL("movie.mp4"))
}

func Test_DiskStorage_Delete(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	storage, err := artifact.NewDiskStorage(filepath.Join(tempDir, "media"), "/api/reel/v0/media")
	require.NoError(t, err)

	canonicalPath, err := storage.Put(stageFile(t, tempDir, "movie.mp4", "bytes"))
	require.NoError(t, err)

	require.NoError(t, storage.Delete(canonicalPath))
	assert.False(t, storage.Exists(canonicalPath))
}
