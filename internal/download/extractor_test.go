package download_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reelhq/reel/internal/download"
	"github.com/reelhq/reel/pkg/run"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner substitutes the external tool: each Run call pops the next
// scripted invocation, emits its lines to the callback, and reports its
// exit code. Transfer invocations may also drop files into the output dir.
type scriptedRunner struct {
	invocations []scriptedInvocation
	argHistory  [][]string
}

type scriptedInvocation struct {
	lines    []string
	exitCode int
	tail     string
	produce  func(args []string)
}

func (runner *scriptedRunner) Run(_ context.Context, _ string, args []string, onLine run.LineCallback) (*run.ExitResult, error) {
	runner.argHistory = append(runner.argHistory, args)

	invocation := runner.invocations[0]
	runner.invocations = runner.invocations[1:]

	for _, line := range invocation.lines {
		if onLine != nil {
			onLine(line)
		}
	}
	if invocation.produce != nil {
		invocation.produce(args)
	}

	return run.NewExitResult(invocation.exitCode, invocation.tail), nil
}

// outputDirFromArgs extracts the directory from the '-o <dir>/template'
// argument the handler passes to the tool.
func outputDirFromArgs(args []string) string {
	for k, v := range args {
		if v == "-o" && k+1 < len(args) {
			return filepath.Dir(args[k+1])
		}
	}

	return ""
}

func newExtractorConfig() download.ExtractorConfig {
	return download.ExtractorConfig{
		BinaryPath:             "yt-dlp",
		Format:                 "bestvideo*+bestaudio/best",
		MergeOutputFormat:      "mp4",
		MetadataTimeoutSeconds: 5,
		TransferTimeoutSeconds: 30,
	}
}

func Test_Extractor_SuccessfulTransfer_UsesProbedTitle(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	runner := &scriptedRunner{invocations: []scriptedInvocation{
		{lines: []string{`{"title": "Never Gonna Give You Up"}`}},
		{
			lines: []string{"[download]  50.0% of 4MiB", "[download] 100% of 4MiB"},
			produce: func(args []string) {
				os.WriteFile(filepath.Join(outputDirFromArgs(args), "video.mp4"), mp4Payload(2048), 0o644)
			},
		},
	}}

	handler := download.NewExtractorHandler(newExtractorConfig(), runner)

	var progress []float64
	result, err := handler.Download(context.Background(), "https://youtu.be/abc", workDir, func(percent float64) { progress = append(progress, percent) })

	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", result.DisplayName)
	assert.Equal(t, "video/mp4", result.MimeType)
	assert.Equal(t, int64(2048), result.Size)
	assert.Equal(t, []float64{50, 100}, progress)
}

func Test_Extractor_FailedProbe_FallsBackToFilename(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	runner := &scriptedRunner{invocations: []scriptedInvocation{
		{exitCode: 1, tail: "metadata unavailable"},
		{produce: func(args []string) {
			os.WriteFile(filepath.Join(outputDirFromArgs(args), "Cool Video.mp4"), mp4Payload(1024), 0o644)
		}},
	}}

	handler := download.NewExtractorHandler(newExtractorConfig(), runner)
	result, err := handler.Download(context.Background(), "https://youtu.be/abc", workDir, nil)

	require.NoError(t, err)
	assert.Equal(t, "Cool Video", result.DisplayName)
}

func Test_Extractor_AgeRestrictedFailure_CarriesGuidance(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{invocations: []scriptedInvocation{
		{lines: []string{`{"title": "Restricted"}`}},
		{exitCode: 1, tail: "ERROR: Sign in to confirm your age. This video may be inappropriate for some users."},
	}}

	handler := download.NewExtractorHandler(newExtractorConfig(), runner)
	_, err := handler.Download(context.Background(), "https://youtu.be/abc", t.TempDir(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "age-restricted")
	assert.Contains(t, err.Error(), "cookies")
}

func Test_Extractor_InvalidCookiesFailure_SuggestsRefresh(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{invocations: []scriptedInvocation{
		{lines: []string{`{"title": "Video"}`}},
		{exitCode: 1, tail: "ERROR: The provided cookies are invalid or expired"},
	}}

	handler := download.NewExtractorHandler(newExtractorConfig(), runner)
	_, err := handler.Download(context.Background(), "https://youtu.be/abc", t.TempDir(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh the cookies")
}

func Test_Extractor_IgnoresInProgressScratchFiles(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	runner := &scriptedRunner{invocations: []scriptedInvocation{
		{lines: []string{`{"title": "Video"}`}},
		{produce: func(args []string) {
			dir := outputDirFromArgs(args)
			os.WriteFile(filepath.Join(dir, "video.mp4.part"), []byte("partial"), 0o644)
			os.WriteFile(filepath.Join(dir, "video.ytdl"), []byte("state"), 0o644)
			os.WriteFile(filepath.Join(dir, "video.mp4"), mp4Payload(512), 0o644)
		}},
	}}

	handler := download.NewExtractorHandler(newExtractorConfig(), runner)
	result, err := handler.Download(context.Background(), "https://youtu.be/abc", workDir, nil)

	require.NoError(t, err)
	assert.Equal(t, "video.mp4", filepath.Base(result.Path))
}

func Test_Extractor_CookiesConfigPropagatesToArgs(t *testing.T) {
	t.Parallel()

	config := newExtractorConfig()
	config.CookiesPath = "/etc/reel/cookies.txt"
	config.EmbedSubtitles = true
	config.SubtitleLangs = "en,de"

	runner := &scriptedRunner{invocations: []scriptedInvocation{
		{lines: []string{`{"title": "Video"}`}},
		{produce: func(args []string) {
			os.WriteFile(filepath.Join(outputDirFromArgs(args), "video.mp4"), mp4Payload(512), 0o644)
		}},
	}}

	handler := download.NewExtractorHandler(config, runner)
	_, err := handler.Download(context.Background(), "https://youtu.be/abc", t.TempDir(), nil)
	require.NoError(t, err)

	require.Len(t, runner.argHistory, 2)
	transferArgs := strings.Join(runner.argHistory[1], " ")
	assert.Contains(t, transferArgs, "--cookies /etc/reel/cookies.txt")
	assert.Contains(t, transferArgs, "--embed-subs --sub-langs en,de")
	assert.Contains(t, transferArgs, "--merge-output-format mp4")
}
