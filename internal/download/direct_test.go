package download_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelhq/reel/internal/download"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mp4Payload produces n bytes beginning with a valid MP4 'ftyp' box so the
// result sniffs as video/mp4.
func mp4Payload(n int) []byte {
	header := []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom")
	payload := make([]byte, n)
	copy(payload, header)
	return payload
}

func Test_DirectDownload_StreamsMediaToWorkDir(t *testing.T) {
	t.Parallel()

	payload := mp4Payload(4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "reel/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		w.Write(payload)
	}))
	defer server.Close()

	workDir := t.TempDir()
	handler := download.NewDirectHandler(time.Second * 10)

	var lastProgress float64
	result, err := handler.Download(context.Background(), server.URL+"/files/clip.mp4", workDir, func(percent float64) { lastProgress = percent })

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workDir, "clip.mp4"), result.Path)
	assert.Equal(t, "clip", result.DisplayName)
	assert.Equal(t, "video/mp4", result.MimeType)
	assert.Equal(t, int64(len(payload)), result.Size)
	assert.Equal(t, float64(100), lastProgress)

	content, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Len(t, content, len(payload))
}

func Test_DirectDownload_NonMediaContent_FailsAndRemovesFile(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>not a video</body></html>"))
	}))
	defer server.Close()

	workDir := t.TempDir()
	handler := download.NewDirectHandler(time.Second * 10)

	_, err := handler.Download(context.Background(), server.URL+"/watch.mp4", workDir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an accepted media type")
	assert.True(t, download.IsValidationError(err), "non-media content is a rejection, never scheduled for retry")

	entries, readErr := os.ReadDir(workDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "rejected downloads must not leave files behind")
}

func Test_DirectDownload_ErrorStatus_Fails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	handler := download.NewDirectHandler(time.Second * 10)
	_, err := handler.Download(context.Background(), server.URL+"/missing.mp4", t.TempDir(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func Test_DirectDownload_UnsupportedScheme_IsValidationError(t *testing.T) {
	t.Parallel()

	handler := download.NewDirectHandler(time.Second * 10)
	_, err := handler.Download(context.Background(), "ftp://example.com/file.mp4", t.TempDir(), nil)

	require.Error(t, err)
	assert.True(t, download.IsValidationError(err))
}

func Test_DirectDownload_FilenameFromContentDisposition(t *testing.T) {
	t.Parallel()

	payload := mp4Payload(1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="episode one.mp4"`)
		w.Write(payload)
	}))
	defer server.Close()

	handler := download.NewDirectHandler(time.Second * 10)
	result, err := handler.Download(context.Background(), server.URL+"/stream", t.TempDir(), nil)

	require.NoError(t, err)
	assert.Equal(t, "episode one.mp4", filepath.Base(result.Path))
	assert.Equal(t, "episode one", result.DisplayName)
}
