package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/reelhq/reel/pkg/logger"
	"github.com/reelhq/reel/pkg/run"
)

var log = logger.Get("Download")

// progressMatcher picks the percentage out of the extractor tool's
// '[download]  42.3% of ...' progress lines.
var progressMatcher = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)

type (
	// ExtractorConfig controls the invocation of the external extraction
	// tool (yt-dlp or compatible).
	ExtractorConfig struct {
		BinaryPath         string `yaml:"binary_path" env:"EXTRACTOR_BIN" env-default:"yt-dlp"`
		Format             string `yaml:"format" env:"EXTRACTOR_FORMAT" env-default:"bestvideo*+bestaudio/best"`
		MergeOutputFormat  string `yaml:"merge_output_format" env:"EXTRACTOR_MERGE_FORMAT" env-default:"mp4"`
		CookiesPath        string `yaml:"cookies_path" env:"EXTRACTOR_COOKIES"`
		CookiesFromBrowser string `yaml:"cookies_from_browser" env:"EXTRACTOR_COOKIES_BROWSER"`
		EmbedSubtitles     bool   `yaml:"embed_subtitles" env:"EXTRACTOR_EMBED_SUBS"`
		SubtitleLangs      string `yaml:"subtitle_langs" env:"EXTRACTOR_SUB_LANGS" env-default:"en"`

		// The metadata probe is a cheap call and uses a much shorter
		// timeout than the transfer itself.
		MetadataTimeoutSeconds int `yaml:"metadata_timeout_seconds" env:"EXTRACTOR_METADATA_TIMEOUT" env-default:"120"`
		TransferTimeoutSeconds int `yaml:"transfer_timeout_seconds" env:"EXTRACTOR_TRANSFER_TIMEOUT" env-default:"600"`
	}

	extractorHandler struct {
		config ExtractorConfig
		runner run.Runner
	}
)

func (config *ExtractorConfig) MetadataTimeout() time.Duration {
	return time.Duration(config.MetadataTimeoutSeconds) * time.Second
}

func (config *ExtractorConfig) TransferTimeout() time.Duration {
	return time.Duration(config.TransferTimeoutSeconds) * time.Second
}

// NewExtractorHandler creates the extractor-backed handler. The runner is
// injected so tests can substitute a fake which never spawns a process.
func NewExtractorHandler(config ExtractorConfig, runner run.Runner) Handler {
	return &extractorHandler{config: config, runner: runner}
}

func (handler *extractorHandler) Name() string { return "extractor" }

// Download runs the extraction tool against the URL, streaming its output
// to parse transfer progress, and returns the produced media file. The
// display title is obtained from a metadata probe beforehand; if the probe
// fails the file's own name is used instead.
func (handler *extractorHandler) Download(ctx context.Context, url string, workDir string, onProgress ProgressCallback) (*Result, error) {
	title, err := handler.probeTitle(ctx, url)
	if err != nil {
		log.Warnf("Metadata probe for %s failed (%s), display title will fall back to the file name\n", url, err.Error())
	}

	transferCtx, cancel := context.WithTimeout(ctx, handler.config.TransferTimeout())
	defer cancel()

	result, err := handler.runner.Run(transferCtx, handler.config.BinaryPath, handler.transferArgs(url, workDir), func(line string) {
		if groups := progressMatcher.FindStringSubmatch(line); groups != nil {
			if percent, err := strconv.ParseFloat(groups[1], 64); err == nil {
				onProgress(percent)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("extractor execution failed: %w", err)
	}

	if result.Code != 0 {
		return nil, handler.classifyToolError(result.Tail())
	}

	outputPath, err := newestFile(workDir)
	if err != nil {
		return nil, err
	}

	mime, size, err := inspectMediaFile(outputPath)
	if err != nil {
		return nil, err
	}

	if title == "" {
		title = strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
	}

	return &Result{Path: outputPath, DisplayName: title, MimeType: mime, Size: size}, nil
}

// probeTitle asks the tool for the item's metadata (JSON dump, no actual
// transfer) to obtain a human-friendly display title.
func (handler *extractorHandler) probeTitle(ctx context.Context, url string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, handler.config.MetadataTimeout())
	defer cancel()

	var lastLine string
	result, err := handler.runner.Run(probeCtx, handler.config.BinaryPath, handler.metadataArgs(url), func(line string) {
		if strings.HasPrefix(line, "{") {
			lastLine = line
		}
	})
	if err != nil {
		return "", err
	}
	if result.Code != 0 {
		return "", fmt.Errorf("metadata probe exited with code %d: %s", result.Code, result.Tail())
	}

	var metadata struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(lastLine), &metadata); err != nil {
		return "", fmt.Errorf("metadata probe produced unparseable output: %w", err)
	}

	return metadata.Title, nil
}

func (handler *extractorHandler) commonArgs() []string {
	args := []string{"--no-playlist", "--no-warnings"}
	if handler.config.CookiesPath != "" {
		args = append(args, "--cookies", handler.config.CookiesPath)
	} else if handler.config.CookiesFromBrowser != "" {
		args = append(args, "--cookies-from-browser", handler.config.CookiesFromBrowser)
	}

	return args
}

func (handler *extractorHandler) metadataArgs(url string) []string {
	return append(handler.commonArgs(), "--dump-json", url)
}

func (handler *extractorHandler) transferArgs(url string, workDir string) []string {
	args := handler.commonArgs()
	args = append(args, "-f", handler.config.Format, "--merge-output-format", handler.config.MergeOutputFormat)
	if handler.config.EmbedSubtitles {
		args = append(args, "--embed-subs", "--sub-langs", handler.config.SubtitleLangs)
	}

	args = append(args, "-o", filepath.Join(workDir, "%(title)s.%(ext)s"), url)
	return args
}

// classifyToolError maps well-known extractor failure modes to messages
// containing actionable operator guidance; anything unrecognized surfaces
// the raw tool output.
func (handler *extractorHandler) classifyToolError(output string) error {
	lowered := strings.ToLower(output)

	if strings.Contains(lowered, "cookies") && strings.Contains(lowered, "invalid") {
		return fmt.Errorf("the extractor rejected the configured cookies; refresh the cookies file or browser profile and retry: %s", output)
	}

	if strings.Contains(lowered, "age-restricted") || strings.Contains(lowered, "sign in to confirm your age") {
		return fmt.Errorf("this video is age-restricted; provide authentication cookies from a signed-in browser session to download it: %s", output)
	}

	return errors.New(output)
}

// newestFile returns the most recently modified regular file in dir,
// ignoring the extractor's in-progress scratch files.
func newestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read work dir: %w", err)
	}

	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch filepath.Ext(entry.Name()) {
		case ".part", ".ytdl", ".tmp":
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, entry.Name())
			newestMod = info.ModTime()
		}
	}

	if newest == "" {
		return "", errors.New("extractor reported success but produced no output file")
	}

	return newest, nil
}
