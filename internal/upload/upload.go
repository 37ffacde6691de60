// Package upload accepts locally provided media files and fans archives
// out into their contained video files, canonicalizing each one through
// the artifact service.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/reelhq/reel/internal/artifact"
	"github.com/reelhq/reel/internal/scope"
	"github.com/reelhq/reel/pkg/logger"
)

var (
	log = logger.Get("Upload")

	// ErrNoVideoFiles indicates an archive contained nothing worth keeping.
	ErrNoVideoFiles = errors.New("no video files found in archive")

	// ErrUnsupportedFile indicates the upload is neither a recognized video
	// file nor a recognized archive. These are rejections, not failures;
	// retrying an unsupported file cannot change the outcome.
	ErrUnsupportedFile = errors.New("file is not a recognized video or archive")
)

// videoExtensions are the container formats accepted from uploads and from
// archive contents.
var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".mov": {}, ".avi": {}, ".webm": {},
	".m4v": {}, ".flv": {}, ".wmv": {}, ".mpg": {}, ".mpeg": {}, ".ts": {},
}

// IsVideoFile reports whether the filename carries a recognized video
// container extension.
func IsVideoFile(name string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ProgressCallback receives aggregate processing progress from 0 to 100.
type ProgressCallback func(percent float64)

// Canonicalizer is the slice of the artifact service the upload path needs.
type Canonicalizer interface {
	Canonicalize(ctx context.Context, sourcePath string, title string, source string) (*artifact.Artifact, error)
}

// Service turns uploaded files into artifacts. Archives are unpacked into
// a fresh resource scope and every contained video file becomes its own
// artifact; a plain video file is canonicalized directly.
type Service struct {
	canonicalizer Canonicalizer
	scratchRoot   string
}

func NewService(canonicalizer Canonicalizer, scratchRoot string) *Service {
	return &Service{canonicalizer: canonicalizer, scratchRoot: scratchRoot}
}

// Process consumes the uploaded file at filePath. The file and any scratch
// space used for extraction are removed before returning, on success and
// on failure alike.
func (service *Service) Process(ctx context.Context, filePath string, originalName string, onProgress ProgressCallback) ([]*artifact.Artifact, error) {
	defer os.Remove(filePath)

	switch {
	case IsArchive(originalName):
		return service.processArchive(ctx, filePath, originalName, onProgress)
	case IsVideoFile(originalName):
		result, err := service.canonicalizer.Canonicalize(ctx, filePath, titleFromFilename(originalName), originalName)
		if err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(100)
		}

		return []*artifact.Artifact{result}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, originalName)
	}
}

// processArchive unpacks the archive into a scope-owned scratch dir, walks
// it for video files and canonicalizes each one. Progress is reported as
// the fraction of discovered video files processed so far.
func (service *Service) processArchive(ctx context.Context, filePath string, originalName string, onProgress ProgressCallback) ([]*artifact.Artifact, error) {
	extractionScope, err := scope.New(service.scratchRoot, uuid.New())
	if err != nil {
		return nil, err
	}
	defer extractionScope.Close()

	log.Debugf("Unpacking archive '%s' into %s\n", originalName, extractionScope.Dir())
	if err := unpack(ctx, filePath, extractionScope.Dir()); err != nil {
		return nil, fmt.Errorf("failed to unpack '%s': %w", originalName, err)
	}

	videoPaths, err := findVideoFiles(extractionScope.Dir())
	if err != nil {
		return nil, err
	}
	if len(videoPaths) == 0 {
		return nil, ErrNoVideoFiles
	}

	results := make([]*artifact.Artifact, 0, len(videoPaths))
	for processed, videoPath := range videoPaths {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := service.canonicalizer.Canonicalize(ctx, videoPath, titleFromFilename(filepath.Base(videoPath)), originalName)
		if err != nil {
			return results, fmt.Errorf("failed to canonicalize '%s' from archive: %w", filepath.Base(videoPath), err)
		}

		results = append(results, result)
		if onProgress != nil {
			onProgress(float64(processed+1) / float64(len(videoPaths)) * 100)
		}
	}

	log.Emit(logger.SUCCESS, "Archive '%s' produced %d artifact(s)\n", originalName, len(results))
	return results, nil
}

// findVideoFiles walks the extraction dir recursively, returning the paths
// of all recognized video files in walk order.
func findVideoFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsVideoFile(d.Name()) {
			paths = append(paths, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan extracted archive: %w", err)
	}

	return paths, nil
}

func titleFromFilename(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
