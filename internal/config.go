package internal

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/reelhq/reel/internal/acquisition"
	"github.com/reelhq/reel/internal/api"
	"github.com/reelhq/reel/internal/database"
	"github.com/reelhq/reel/internal/download"
)

type (
	// ReelConfig is the struct used to contain the various user config
	// supplied by file or environment.
	ReelConfig struct {
		Acquisition acquisition.Config       `yaml:"acquisition"`
		Extractor   download.ExtractorConfig `yaml:"extractor"`
		Storage     StorageConfig            `yaml:"storage"`
		Database    database.DatabaseConfig  `yaml:"database" env-required:"true"`
		RestConfig  api.RestConfig           `yaml:"api"`
	}

	// StorageConfig locates the permanent artifact storage and the tools
	// used to post-process canonicalized media.
	StorageConfig struct {
		MediaDirPath     string `yaml:"media_dir" env:"STORAGE_MEDIA_DIR" env-default:"/var/lib/reel/media"`
		ThumbnailDirPath string `yaml:"thumbnail_dir" env:"STORAGE_THUMBNAIL_DIR" env-default:"/var/lib/reel/thumbnails"`
		FfmpegBinaryPath string `yaml:"ffmpeg_binary" env:"FFMPEG_BIN" env-default:"ffmpeg"`
	}
)

// LoadFromFile loads a configuration file formatted in YAML in to a
// ReelConfig struct, with environment variables taking precedence.
func (config *ReelConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	return nil
}
