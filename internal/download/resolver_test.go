package download_test

import (
	"context"
	"testing"

	"github.com/reelhq/reel/internal/download"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedHandler struct{ name string }

func (handler *namedHandler) Name() string { return handler.name }
func (handler *namedHandler) Download(context.Context, string, string, download.ProgressCallback) (*download.Result, error) {
	return nil, nil
}

func newTestResolver(markers []string) *download.Resolver {
	return download.NewResolver(&namedHandler{"extractor"}, &namedHandler{"direct"}, markers)
}

func handlerNames(handlers []download.Handler) []string {
	names := make([]string, len(handlers))
	for k, v := range handlers {
		names[k] = v.Name()
	}

	return names
}

func Test_Resolve_TrustedPlatform_ReturnsExtractorOnly(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(nil)
	tests := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=abc",
		"https://youtu.be/abc",
		"http://m.youtube.com/watch?v=abc",
		"https://YOUTU.BE/ABC",
	}

	for _, url := range tests {
		handlers, err := resolver.Resolve(url)
		require.NoError(t, err, url)
		assert.Equal(t, []string{"extractor"}, handlerNames(handlers), url)
	}
}

func Test_Resolve_GenericURL_ReturnsExtractorThenDirect(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(nil)
	tests := []string{
		"https://example.com/media/video.mp4",
		"http://cdn.somewhere.net/clip",
		"https://vimeo.com/12345",
	}

	for _, url := range tests {
		handlers, err := resolver.Resolve(url)
		require.NoError(t, err, url)
		assert.Equal(t, []string{"extractor", "direct"}, handlerNames(handlers), url)
	}
}

func Test_Resolve_InvalidURL_YieldsValidationError(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver(nil)
	tests := []string{
		"://missing-scheme",
		"ftp://example.com/file.mp4",
		"file:///etc/passwd",
		"https://",
		"not a url at all",
	}

	for _, url := range tests {
		_, err := resolver.Resolve(url)
		require.Error(t, err, url)
		assert.True(t, download.IsValidationError(err), "expected validation error for %s, got %v", url, err)
	}
}

func Test_Resolve_CustomMarkers_OverrideDefaults(t *testing.T) {
	t.Parallel()

	resolver := newTestResolver([]string{"vimeo.com"})

	handlers, err := resolver.Resolve("https://vimeo.com/12345")
	require.NoError(t, err)
	assert.Equal(t, []string{"extractor"}, handlerNames(handlers))

	// The default youtube markers no longer apply.
	handlers, err = resolver.Resolve("https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"extractor", "direct"}, handlerNames(handlers))
}
