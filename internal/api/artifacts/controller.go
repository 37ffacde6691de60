package artifacts

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/reelhq/reel/internal/artifact"
)

type (
	ArtifactService interface {
		Get(id uuid.UUID) (*artifact.Artifact, error)
		List() ([]*artifact.Artifact, error)
		Delete(id uuid.UUID) error
		URL(record *artifact.Artifact) string
	}

	ArtifactDto struct {
		Id            uuid.UUID `json:"id"`
		Title         string    `json:"title"`
		Source        string    `json:"source"`
		URL           string    `json:"url"`
		MimeType      string    `json:"mime_type"`
		SizeBytes     int64     `json:"size_bytes"`
		ThumbnailPath *string   `json:"thumbnail_path"`
		CreatedAt     time.Time `json:"created_at"`
	}

	// Controller is the struct which is responsible for defining the
	// routes for the artifact catalog surface.
	Controller struct {
		service ArtifactService
	}
)

func New(service ArtifactService) *Controller {
	return &Controller{service: service}
}

// SetRoutes accepts the Echo group for the artifact endpoints
// and sets the routes on them.
func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
	eg.GET("/:id/", controller.get)
	eg.DELETE("/:id/", controller.delete)
}

func (controller *Controller) list(ec echo.Context) error {
	records, err := controller.service.List()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	dtos := make([]*ArtifactDto, len(records))
	for k, v := range records {
		dtos[k] = controller.newDto(v)
	}

	return ec.JSON(http.StatusOK, dtos)
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Artifact ID is not a valid UUID")
	}

	record, err := controller.service.Get(id)
	if err != nil {
		if errors.Is(err, artifact.ErrArtifactNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.JSON(http.StatusOK, controller.newDto(record))
}

func (controller *Controller) delete(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Artifact ID is not a valid UUID")
	}

	if err := controller.service.Delete(id); err != nil {
		if errors.Is(err, artifact.ErrArtifactNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.NoContent(http.StatusOK)
}

func (controller *Controller) newDto(record *artifact.Artifact) *ArtifactDto {
	return &ArtifactDto{
		Id:            record.ID,
		Title:         record.Title,
		Source:        record.Source,
		URL:           controller.service.URL(record),
		MimeType:      record.MimeType,
		SizeBytes:     record.Size,
		ThumbnailPath: record.ThumbnailPath,
		CreatedAt:     record.CreatedAt,
	}
}
