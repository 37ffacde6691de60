// Package api wires the Echo HTTP router to the controllers which expose
// the acquisition pipeline: download queueing and polling, upload staging,
// failure ledger management and the artifact catalog.
package api

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/reelhq/reel/internal/api/artifacts"
	"github.com/reelhq/reel/internal/api/downloads"
	"github.com/reelhq/reel/internal/api/uploads"
	"github.com/reelhq/reel/pkg/logger"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr   string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
		StagingDir string `yaml:"staging_dir" env:"API_STAGING_DIR" env-default:"/tmp/reel/staging"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	acquisitionService interface {
		downloads.AcquisitionService
		uploads.AcquisitionService
	}

	failureService interface {
		downloads.FailureService
		uploads.FailureService
	}

	// The RestGateway is a thin wrapper around the Echo HTTP router. Its
	// sole responsibility is to create the routes Reel exposes and serve
	// the stored media files beneath the same prefix.
	RestGateway struct {
		config              *RestConfig
		ec                  *echo.Echo
		downloadsController controller
		uploadsController   controller
		artifactsController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers. mediaRoot, when non-empty, is
// served statically as the artifact media location.
func NewRestGateway(
	config *RestConfig,
	validate *validator.Validate,
	acquisitionServ acquisitionService,
	failureServ failureService,
	artifactServ artifacts.ArtifactService,
	mediaRoot string,
) (*RestGateway, error) {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	uploadsController, err := uploads.New(acquisitionServ, failureServ, config.StagingDir)
	if err != nil {
		return nil, err
	}

	gateway := &RestGateway{
		config:              config,
		ec:                  ec,
		downloadsController: downloads.New(validate, acquisitionServ, failureServ),
		uploadsController:   uploadsController,
		artifactsController: artifacts.New(artifactServ),
	}

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	downloadGroup := ec.Group("/api/reel/v0/downloads")
	gateway.downloadsController.SetRoutes(downloadGroup)

	uploadGroup := ec.Group("/api/reel/v0/uploads")
	gateway.uploadsController.SetRoutes(uploadGroup)

	artifactGroup := ec.Group("/api/reel/v0/artifacts")
	gateway.artifactsController.SetRoutes(artifactGroup)

	if mediaRoot != "" {
		ec.Static("/api/reel/v0/media", mediaRoot)
	}

	return gateway, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)

	go func() {
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	<-ctx.Done()
	gateway.ec.Close()

	// Parent context cancellation is an orderly shutdown, not an error.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
