package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/reelhq/reel/internal/acquisition"
	"github.com/reelhq/reel/internal/api"
	"github.com/reelhq/reel/internal/artifact"
	"github.com/reelhq/reel/internal/database"
	"github.com/reelhq/reel/internal/download"
	"github.com/reelhq/reel/internal/event"
	"github.com/reelhq/reel/internal/failure"
	"github.com/reelhq/reel/internal/scope"
	"github.com/reelhq/reel/internal/upload"
	"github.com/reelhq/reel/pkg/logger"
	"github.com/reelhq/reel/pkg/run"
)

var log = logger.Get("Core")

const (
	// Scope dirs which outlive this grace period with no owning queue
	// entry are presumed orphaned by a crash and reaped.
	janitorGracePeriod   = time.Minute * 5
	janitorSweepInterval = time.Minute

	retrySweepInterval = time.Minute

	mediaRoutePrefix = "/api/reel/v0/media"
)

type (
	RunnableService interface {
		Run(context.Context) error
	}

	// reelImpl represents the top-level object for the server, and is
	// responsible for initialising the database connection, services,
	// event handling, et cetera...
	reelImpl struct {
		eventBus event.EventCoordinator
		config   ReelConfig
	}
)

func New(config ReelConfig) *reelImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Reel services using config: %#v\n", config)
	return &reelImpl{
		eventBus: event.New(),
		config:   config,
	}
}

// Run will start all of Reel by bringing up all required services and
// connections. This function will not return until Reel is stopped; to
// stop Reel, the provided context must be cancelled. Errors from which
// Reel cannot recover will also cause Reel to stop.
func (reel *reelImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	db := database.New()
	if err := db.Connect(reel.config.Database); err != nil {
		return err
	}

	failureService := failure.NewService(db.GetSqlxDb(), failure.DefaultMaxRetries)

	storage, err := artifact.NewDiskStorage(reel.config.Storage.MediaDirPath, mediaRoutePrefix)
	if err != nil {
		return fmt.Errorf("failed to initialise artifact storage: %w", err)
	}

	runner := run.NewRunner()
	thumbnailer, err := artifact.NewFfmpegThumbnailer(reel.config.Storage.FfmpegBinaryPath, reel.config.Storage.ThumbnailDirPath, runner)
	if err != nil {
		return fmt.Errorf("failed to initialise thumbnailer: %w", err)
	}

	artifactService := artifact.NewService(db.GetSqlxDb(), storage, thumbnailer, reel.eventBus)
	uploadService := upload.NewService(artifactService, reel.config.Acquisition.ScratchPath)

	// The direct handler shares the overall attempt deadline; it has no
	// transfer timeout of its own.
	jobTimeout := acquisition.JobTimeout(reel.config.Extractor.TransferTimeout())
	resolver := download.NewResolver(
		download.NewExtractorHandler(reel.config.Extractor, runner),
		download.NewDirectHandler(jobTimeout),
		reel.config.Acquisition.TrustedPlatformMarkers,
	)

	ledger, err := reel.buildLedger()
	if err != nil {
		return err
	}

	acquisitionService := acquisition.New(
		reel.config.Acquisition, jobTimeout, ledger, resolver,
		uploadService, artifactService, failureService, reel.eventBus,
	)

	janitor := scope.NewJanitor(reel.config.Acquisition.ScratchPath, janitorGracePeriod, janitorSweepInterval, acquisitionService)
	sweeper := failure.NewSweeper(failureService, acquisitionService, retrySweepInterval)

	gateway, err := api.NewRestGateway(
		&reel.config.RestConfig, validator.New(),
		acquisitionService, failureService, artifactService,
		reel.config.Storage.MediaDirPath,
	)
	if err != nil {
		return fmt.Errorf("failed to initialise REST gateway: %w", err)
	}

	wg := &sync.WaitGroup{}
	reel.spawnAsyncService(ctx, wg, acquisitionService, "acquisition-service", crashHandler)
	reel.spawnAsyncService(ctx, wg, sweeper, "failure-sweeper", crashHandler)
	reel.spawnAsyncService(ctx, wg, janitor, "scope-janitor", crashHandler)
	reel.spawnAsyncService(ctx, wg, newActivityService(reel.eventBus), "activity-service", crashHandler)
	reel.spawnAsyncService(ctx, wg, gateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Reel services spawned!\n")

	wg.Wait()
	return nil
}

// buildLedger selects the queue ledger implementation: Redis when an
// address is configured, otherwise the process-local in-memory ledger.
func (reel *reelImpl) buildLedger() (acquisition.Ledger, error) {
	if addr := reel.config.Acquisition.Redis.Address; addr != "" {
		log.Emit(logger.INFO, "Using Redis queue ledger at %s\n", addr)
		return acquisition.NewRedisLedger(reel.config.Acquisition.Redis)
	}

	return acquisition.NewMemoryLedger(), nil
}

// spawnAsyncService will run the provided function/service as its own
// go-routine, ensuring that the Reel service waitgroup is updated correctly.
func (reel *reelImpl) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
