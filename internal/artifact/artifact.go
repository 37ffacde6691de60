// Package artifact owns the canonical media records produced by the
// acquisition pipeline: moving an acquired file into permanent storage,
// deriving its MIME type, inserting the catalog row and requesting an
// optional thumbnail.
package artifact

import (
	"time"

	"github.com/google/uuid"
)

// Artifact is the canonical record for a successfully acquired piece of
// media. Rows are insert-only; the single permitted mutation is attaching
// a thumbnail path after the asynchronous thumbnail step.
type Artifact struct {
	ID            uuid.UUID `db:"id"`
	Title         string    `db:"title"`
	Source        string    `db:"source"`
	CanonicalPath string    `db:"canonical_path"`
	MimeType      string    `db:"mime_type"`
	Size          int64     `db:"size_bytes"`
	ThumbnailPath *string   `db:"thumbnail_path"`
	CreatedAt     time.Time `db:"created_at"`
}
