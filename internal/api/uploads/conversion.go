package uploads

import (
	"time"

	"github.com/google/uuid"
	"github.com/reelhq/reel/internal/acquisition"
	"github.com/reelhq/reel/internal/failure"
)

type (
	ItemDto struct {
		Id          uuid.UUID `json:"id"`
		Kind        string    `json:"kind"`
		State       string    `json:"state"`
		DisplayName string    `json:"display_name"`
		Progress    float64   `json:"progress"`
		AddedAt     time.Time `json:"added_at"`
	}

	FailedUploadDto struct {
		Id            uuid.UUID `json:"id"`
		Filename      string    `json:"filename"`
		MimeType      string    `json:"mime_type"`
		ErrorMessage  string    `json:"error_message"`
		RetryCount    int       `json:"retry_count"`
		Status        string    `json:"status"`
		LastAttemptAt time.Time `json:"last_attempt_at"`
	}
)

func NewItemDto(item *acquisition.Item) *ItemDto {
	return &ItemDto{
		Id:          item.ID,
		Kind:        item.Kind.String(),
		State:       item.State.String(),
		DisplayName: item.DisplayName,
		Progress:    item.Progress,
		AddedAt:     item.AddedAt,
	}
}

func NewFailedUploadDto(record *failure.FailedUpload) *FailedUploadDto {
	return &FailedUploadDto{
		Id:            record.ID,
		Filename:      record.Filename,
		MimeType:      record.MimeType,
		ErrorMessage:  record.ErrorMessage,
		RetryCount:    record.RetryCount,
		Status:        string(record.Status),
		LastAttemptAt: record.LastAttemptAt,
	}
}
