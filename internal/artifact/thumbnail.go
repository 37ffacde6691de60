package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reelhq/reel/pkg/run"
)

// thumbnailTimeout bounds the frame grab; thumbnailing is best-effort and
// must never hold up canonicalization for long.
const thumbnailTimeout = time.Second * 30

// Thumbnailer produces an optional preview image for a canonicalized
// media file. An empty path with a nil error means the media type has no
// thumbnail representation - that is not a failure.
type Thumbnailer interface {
	Generate(ctx context.Context, sourcePath string, mimeType string) (string, error)
}

// ffmpegThumbnailer grabs a frame one second into the video using the
// external ffmpeg binary.
type ffmpegThumbnailer struct {
	binaryPath string
	outputDir  string
	runner     run.Runner
}

func NewFfmpegThumbnailer(binaryPath string, outputDir string, runner run.Runner) (Thumbnailer, error) {
	if err := os.MkdirAll(outputDir, os.ModeDir|os.ModePerm); err != nil {
		return nil, fmt.Errorf("thumbnail dir '%s' could not be created: %w", outputDir, err)
	}

	return &ffmpegThumbnailer{binaryPath: binaryPath, outputDir: outputDir, runner: runner}, nil
}

func (thumbnailer *ffmpegThumbnailer) Generate(ctx context.Context, sourcePath string, mimeType string) (string, error) {
	if !strings.HasPrefix(mimeType, "video/") {
		return "", nil
	}

	base := filepath.Base(sourcePath)
	outputPath := filepath.Join(thumbnailer.outputDir, strings.TrimSuffix(base, filepath.Ext(base))+".jpg")

	grabCtx, cancel := context.WithTimeout(ctx, thumbnailTimeout)
	defer cancel()

	result, err := thumbnailer.runner.Run(grabCtx, thumbnailer.binaryPath, []string{
		"-y", "-ss", "00:00:01", "-i", sourcePath, "-frames:v", "1", "-q:v", "4", outputPath,
	}, nil)
	if err != nil {
		return "", err
	}

	if result.Code != 0 {
		return "", fmt.Errorf("ffmpeg exited with code %d: %s", result.Code, result.Tail())
	}

	return outputPath, nil
}
