package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/reelhq/reel/internal"
	"github.com/reelhq/reel/pkg/logger"
)

var log = logger.Get("Main")

// main loads the user's Reel configuration (by default from their home
// directory) and runs the server until interrupted.
func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	logLevel := flag.Int("log-level", int(logger.INFO.Level()), "minimum log level to output (0 is most verbose)")
	flag.Parse()

	logger.SetMinLoggingLevel(*logLevel)

	config := internal.ReelConfig{}
	if err := config.LoadFromFile(*configPath); err != nil {
		log.Emit(logger.FATAL, "Failed to load config from %s: %s\n", *configPath, err.Error())
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Reel stopped due to error: %s\n", err.Error())
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Reel shut down\n")
}

func defaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return "config.yaml"
	}

	return filepath.Join(home, ".config", "reel", "config.yaml")
}
