package downloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/reelhq/reel/internal/acquisition"
	"github.com/reelhq/reel/internal/failure"
)

type (
	// ItemDto is the response used by endpoints that return queue ledger
	// entries (e.g., list, create).
	ItemDto struct {
		Id           uuid.UUID `json:"id"`
		Kind         string    `json:"kind"`
		State        string    `json:"state"`
		Source       string    `json:"source"`
		DisplayName  string    `json:"display_name"`
		Progress     float64   `json:"progress"`
		AddedAt      time.Time `json:"added_at"`
		ErrorMessage string    `json:"error_message,omitempty"`
	}

	FailedDownloadDto struct {
		Id            uuid.UUID  `json:"id"`
		URL           string     `json:"url"`
		Method        string     `json:"method"`
		ErrorMessage  string     `json:"error_message"`
		RetryCount    int        `json:"retry_count"`
		Status        string     `json:"status"`
		LastAttemptAt time.Time  `json:"last_attempt_at"`
		NextRetryAt   *time.Time `json:"next_retry_at"`
	}
)

func NewItemDto(item *acquisition.Item) *ItemDto {
	return &ItemDto{
		Id:           item.ID,
		Kind:         item.Kind.String(),
		State:        item.State.String(),
		Source:       item.Source,
		DisplayName:  item.DisplayName,
		Progress:     item.Progress,
		AddedAt:      item.AddedAt,
		ErrorMessage: item.ErrorMessage,
	}
}

func NewFailedDownloadDto(record *failure.FailedDownload) *FailedDownloadDto {
	return &FailedDownloadDto{
		Id:            record.ID,
		URL:           record.URL,
		Method:        record.Method,
		ErrorMessage:  record.ErrorMessage,
		RetryCount:    record.RetryCount,
		Status:        string(record.Status),
		LastAttemptAt: record.LastAttemptAt,
		NextRetryAt:   record.NextRetryAt,
	}
}
