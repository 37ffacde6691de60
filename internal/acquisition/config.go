package acquisition

import "time"

// minimumJobTimeout is the floor for a single acquisition attempt. The
// effective timeout is this or the largest configured handler timeout,
// whichever is greater.
const minimumJobTimeout = time.Minute * 5

// Config controls the acquisition pipeline: how many workers drain the
// queue, where their scratch space lives, and which hosts are considered
// trusted platforms (no direct-fetch fallback).
type Config struct {
	Parallelism            int         `yaml:"parallelism" env:"ACQUISITION_PARALLELISM" env-default:"2"`
	ScratchPath            string      `yaml:"scratch_path" env:"ACQUISITION_SCRATCH_PATH" env-default:"/tmp/reel/scratch"`
	TrustedPlatformMarkers []string    `yaml:"trusted_platform_markers" env:"ACQUISITION_TRUSTED_MARKERS"`
	Redis                  RedisConfig `yaml:"redis"`
}

// JobTimeout computes the per-attempt deadline from the timeouts of the
// configured handlers.
func JobTimeout(handlerTimeouts ...time.Duration) time.Duration {
	timeout := minimumJobTimeout
	for _, handlerTimeout := range handlerTimeouts {
		if handlerTimeout > timeout {
			timeout = handlerTimeout
		}
	}

	return timeout
}
