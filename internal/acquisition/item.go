// Package acquisition owns the volatile queue of in-flight downloads and
// uploads: the ledger the UI polls, the worker pool which drains it, and
// the wiring between handlers, the failure ledger and the artifact
// canonicalizer.
package acquisition

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	ItemKind  int
	ItemState int
)

const (
	DOWNLOAD ItemKind = iota
	UPLOAD
)

// COMPLETED exists for the wire enum only: a successful item leaves the
// ledger as part of its terminal transition, so pollers observe completion
// through the entry's absence (and the completion event), never the state.
const (
	QUEUED ItemState = iota
	ACTIVE
	COMPLETED
	FAILED
)

// Item is a single entry in the queue ledger. The ledger is volatile;
// losing its contents only degrades UI feedback, never correctness, as
// durable failure state lives in the failure ledger.
//
// StagedPath and MimeType are only populated for uploads (the temp file
// holding the uploaded bytes and the client-declared content type),
// ErrorMessage only in the FAILED state, and FailureID only when the item
// is a retry dispatched from the failure ledger.
type Item struct {
	ID           uuid.UUID  `json:"id"`
	Kind         ItemKind   `json:"kind"`
	State        ItemState  `json:"state"`
	Source       string     `json:"source"`
	DisplayName  string     `json:"display_name"`
	Progress     float64    `json:"progress"`
	AddedAt      time.Time  `json:"added_at"`
	StagedPath   string     `json:"staged_path,omitempty"`
	MimeType     string     `json:"mime_type,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	FailureID    *uuid.UUID `json:"failure_id,omitempty"`
}

func (kind ItemKind) String() string {
	switch kind {
	case DOWNLOAD:
		return "DOWNLOAD"
	case UPLOAD:
		return "UPLOAD"
	}

	return fmt.Sprintf("UNKNOWN[%d]", kind)
}

func (state ItemState) String() string {
	switch state {
	case QUEUED:
		return "QUEUED"
	case ACTIVE:
		return "ACTIVE"
	case COMPLETED:
		return "COMPLETED"
	case FAILED:
		return "FAILED"
	}

	return fmt.Sprintf("UNKNOWN[%d]", state)
}

func (kind ItemKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(kind.String())
}

func (kind *ItemKind) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw {
	case "DOWNLOAD":
		*kind = DOWNLOAD
	case "UPLOAD":
		*kind = UPLOAD
	default:
		return fmt.Errorf("unknown item kind '%s'", raw)
	}

	return nil
}

func (state ItemState) MarshalJSON() ([]byte, error) {
	return json.Marshal(state.String())
}

func (state *ItemState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw {
	case "QUEUED":
		*state = QUEUED
	case "ACTIVE":
		*state = ACTIVE
	case "COMPLETED":
		*state = COMPLETED
	case "FAILED":
		*state = FAILED
	default:
		return fmt.Errorf("unknown item state '%s'", raw)
	}

	return nil
}
