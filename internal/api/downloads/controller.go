package downloads

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/reelhq/reel/internal/acquisition"
	"github.com/reelhq/reel/internal/download"
	"github.com/reelhq/reel/internal/failure"
)

type (
	NewDownloadRequest struct {
		URL string `json:"url" validate:"required"`
	}

	// AcquisitionService is the slice of the acquisition service this
	// controller needs: queueing, polling and cancellation.
	AcquisitionService interface {
		QueueDownload(url string) (*acquisition.Item, error)
		RequeueDownload(record *failure.FailedDownload) error
		ListItems() ([]*acquisition.Item, error)
		CancelItem(id uuid.UUID) error
	}

	FailureService interface {
		ListFailedDownloads() ([]*failure.FailedDownload, error)
		ClaimDownload(id uuid.UUID) (*failure.FailedDownload, error)
		FailDownload(id uuid.UUID, message string) error
		DismissDownload(id uuid.UUID) error
	}

	// Controller is the struct which is responsible for defining the
	// routes for this controller. Additionally, it holds references to
	// the services used to queue and retry downloads.
	Controller struct {
		validate *validator.Validate
		service  AcquisitionService
		failures FailureService
	}
)

func New(validate *validator.Validate, service AcquisitionService, failures FailureService) *Controller {
	return &Controller{validate: validate, service: service, failures: failures}
}

// SetRoutes accepts the Echo group for the download endpoints
// and sets the routes on them.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.POST("/", controller.create)
	eg.GET("/", controller.list)
	eg.DELETE("/:id/", controller.delete)
	eg.GET("/failed/", controller.listFailed)
	eg.POST("/failed/:id/retry/", controller.retryFailed)
	eg.DELETE("/failed/:id/", controller.dismissFailed)
}

// create validates the submitted URL and queues it for acquisition. The
// response is a 202 as the download happens asynchronously; the returned
// DTO carries the ID the client polls for.
func (controller *Controller) create(ec echo.Context) error {
	var request NewDownloadRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	item, err := controller.service.QueueDownload(request.URL)
	if err != nil {
		if download.IsValidationError(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusAccepted, NewItemDto(item))
}

// list returns the full queue ledger; this is the UI polling endpoint.
func (controller *Controller) list(ec echo.Context) error {
	items, err := controller.service.ListItems()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	dtos := make([]*ItemDto, len(items))
	for k, v := range items {
		dtos[k] = NewItemDto(v)
	}

	return ec.JSON(http.StatusOK, dtos)
}

// delete cancels the download. A queued item simply never runs; for
// active items cancellation is advisory and honoured by the worker
// before canonicalization.
func (controller *Controller) delete(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Download ID is not a valid UUID")
	}

	if err := controller.service.CancelItem(id); err != nil {
		if errors.Is(err, acquisition.ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.NoContent(http.StatusOK)
}

func (controller *Controller) listFailed(ec echo.Context) error {
	records, err := controller.failures.ListFailedDownloads()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	dtos := make([]*FailedDownloadDto, len(records))
	for k, v := range records {
		dtos[k] = NewFailedDownloadDto(v)
	}

	return ec.JSON(http.StatusOK, dtos)
}

// retryFailed claims the failure record (pending -> retrying) and
// dispatches it back through the acquisition pipeline. Claiming first
// means a concurrent sweep cannot dispatch the same record twice.
func (controller *Controller) retryFailed(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed download ID is not a valid UUID")
	}

	record, err := controller.failures.ClaimDownload(id)
	if err != nil {
		switch {
		case errors.Is(err, failure.ErrDownloadNotFound):
			return echo.NewHTTPError(http.StatusNotFound)
		case errors.Is(err, failure.ErrNotClaimable):
			return echo.NewHTTPError(http.StatusConflict, "record is not awaiting retry")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	if err := controller.service.RequeueDownload(record); err != nil {
		// Put the record back on the schedule rather than leaving it
		// stuck in 'retrying'.
		controller.failures.FailDownload(record.ID, err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.NoContent(http.StatusAccepted)
}

func (controller *Controller) dismissFailed(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed download ID is not a valid UUID")
	}

	if err := controller.failures.DismissDownload(id); err != nil {
		if errors.Is(err, failure.ErrDownloadNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.NoContent(http.StatusOK)
}
