package uploads

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/reelhq/reel/internal/acquisition"
	"github.com/reelhq/reel/internal/failure"
	"github.com/reelhq/reel/pkg/logger"
)

type (
	AcquisitionService interface {
		QueueUpload(stagedPath string, originalName string, mimeType string) (*acquisition.Item, error)
	}

	FailureService interface {
		ListFailedUploads() ([]*failure.FailedUpload, error)
		DismissUpload(id uuid.UUID) error
	}

	// Controller is the struct which is responsible for defining the
	// routes for this controller. Incoming multipart bodies are staged to
	// the configured directory before the upload is queued; the worker
	// consumes the staged file.
	Controller struct {
		service    AcquisitionService
		failures   FailureService
		stagingDir string
	}
)

var controllerLogger = logger.Get("UploadsController")

func New(service AcquisitionService, failures FailureService, stagingDir string) (*Controller, error) {
	if err := os.MkdirAll(stagingDir, os.ModeDir|os.ModePerm); err != nil {
		return nil, err
	}

	return &Controller{service: service, failures: failures, stagingDir: stagingDir}, nil
}

// SetRoutes accepts the Echo group for the upload endpoints
// and sets the routes on them.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.create)
	eg.GET("/failed/", controller.listFailed)
	eg.DELETE("/failed/:id/", controller.dismissFailed)
}

// create stages the multipart 'file' part to disk and queues it for
// processing. The response is a 202; archive fan-out and canonicalization
// happen asynchronously.
func (controller *Controller) create(ec echo.Context) error {
	header, err := ec.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart body must carry a 'file' part")
	}

	source, err := header.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer source.Close()

	staged, err := os.CreateTemp(controller.stagingDir, "upload-*")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if _, err := io.Copy(staged, source); err != nil {
		staged.Close()
		os.Remove(staged.Name())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := staged.Close(); err != nil {
		os.Remove(staged.Name())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	item, err := controller.service.QueueUpload(staged.Name(), header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		os.Remove(staged.Name())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	controllerLogger.Debugf("Staged upload '%s' (%d bytes) as item %s\n", header.Filename, header.Size, item.ID)
	return ec.JSON(http.StatusAccepted, NewItemDto(item))
}

func (controller *Controller) listFailed(ec echo.Context) error {
	records, err := controller.failures.ListFailedUploads()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	dtos := make([]*FailedUploadDto, len(records))
	for k, v := range records {
		dtos[k] = NewFailedUploadDto(v)
	}

	return ec.JSON(http.StatusOK, dtos)
}

func (controller *Controller) dismissFailed(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed upload ID is not a valid UUID")
	}

	if err := controller.failures.DismissUpload(id); err != nil {
		if errors.Is(err, failure.ErrUploadNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.NoContent(http.StatusOK)
}
