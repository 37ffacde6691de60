// Package download contains the URL acquisition handlers and the resolver
// which orders them. Handlers produce a downloaded media file inside the
// caller's working directory, or an error describing why they could not.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type (
	// ProgressCallback is invoked with a 0-100 percentage during an active
	// transfer. Implementations must be cheap and non-blocking as they are
	// called synchronously from the transfer's I/O loop.
	ProgressCallback func(percent float64)

	// Result is a successful download: a file on disk within the working
	// directory, plus display metadata for the eventual artifact record.
	Result struct {
		Path        string
		DisplayName string
		MimeType    string
		Size        int64
	}

	// Handler is a single acquisition strategy for a URL. Implementations
	// must honour the provided context (aborting the underlying transfer
	// or subprocess when it is cancelled) and must not write outside of
	// the provided working directory.
	Handler interface {
		Name() string
		Download(ctx context.Context, url string, workDir string, onProgress ProgressCallback) (*Result, error)
	}

	// ValidationError marks a failure which is the caller's fault (bad URL,
	// unsupported scheme, non-media content on a direct fetch of an invalid
	// target). These are surfaced immediately and never scheduled for retry.
	ValidationError struct {
		reason string
	}
)

func (e *ValidationError) Error() string { return e.reason }

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether the given error (or anything it wraps)
// is a rejection rather than an infrastructure failure.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// acceptedMediaPrefixes are the MIME type prefixes a download result must
// carry to be considered media. Anything else is treated as a download
// failure, never a partial success.
var acceptedMediaPrefixes = []string{"video/", "audio/"}

// inspectMediaFile sniffs the content of the file at path and returns its
// MIME type and size. A non-media type is a ValidationError: retrying the
// same URL can never turn an HTML page into a video.
func inspectMediaFile(path string) (string, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, fmt.Errorf("downloaded file inaccessible: %w", err)
	}

	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to detect MIME type of downloaded file: %w", err)
	}

	mime := detected.String()
	for _, prefix := range acceptedMediaPrefixes {
		if strings.HasPrefix(mime, prefix) {
			return mime, info.Size(), nil
		}
	}

	return "", 0, NewValidationError("downloaded file is '%s', not an accepted media type", mime)
}
