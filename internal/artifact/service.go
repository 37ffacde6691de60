package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/reelhq/reel/internal/database"
	"github.com/reelhq/reel/internal/event"
	"github.com/reelhq/reel/pkg/logger"
)

var log = logger.Get("ArtifactServ")

// Service canonicalizes acquired media and exposes the resulting catalog.
// Canonicalization moves the file into permanent storage, derives the MIME
// type from content, inserts exactly one artifact row, and then attempts a
// best-effort thumbnail which is attached asynchronously to the row.
type Service struct {
	db          database.Queryable
	store       *Store
	storage     Storage
	thumbnailer Thumbnailer
	eventBus    event.EventDispatcher
}

func NewService(db database.Queryable, storage Storage, thumbnailer Thumbnailer, eventBus event.EventDispatcher) *Service {
	return &Service{
		db:          db,
		store:       NewStore(),
		storage:     storage,
		thumbnailer: thumbnailer,
		eventBus:    eventBus,
	}
}

// Canonicalize turns the file at sourcePath into a permanent artifact. The
// source file is consumed (moved) on success. 'source' describes where the
// media came from (the originating URL or uploaded filename) and is kept
// on the record for the operator.
func (service *Service) Canonicalize(ctx context.Context, sourcePath string, title string, source string) (*Artifact, error) {
	canonicalPath, err := service.storage.Put(sourcePath)
	if err != nil {
		return nil, err
	}

	storedPath := filepath.Join(service.storageRootRelative(canonicalPath))
	detected, err := mimetype.DetectFile(storedPath)
	if err != nil {
		service.storage.Delete(canonicalPath)
		return nil, fmt.Errorf("failed to derive MIME type for stored file: %w", err)
	}

	info, err := os.Stat(storedPath)
	if err != nil {
		service.storage.Delete(canonicalPath)
		return nil, fmt.Errorf("stored file inaccessible: %w", err)
	}

	if title == "" {
		title = filepath.Base(canonicalPath)
	}

	record := &Artifact{
		ID:            uuid.New(),
		Title:         title,
		Source:        source,
		CanonicalPath: canonicalPath,
		MimeType:      detected.String(),
		Size:          info.Size(),
	}

	if err := service.store.Save(service.db, record); err != nil {
		service.storage.Delete(canonicalPath)
		return nil, err
	}

	log.Emit(logger.SUCCESS, "Canonicalized '%s' (%s, %d bytes) as artifact %s\n", title, record.MimeType, record.Size, record.ID)
	service.eventBus.Dispatch(event.NEW_ARTIFACT, record.ID)

	go service.attachThumbnail(record, storedPath)
	return record, nil
}

func (service *Service) Get(id uuid.UUID) (*Artifact, error) {
	return service.store.Get(service.db, id)
}

func (service *Service) List() ([]*Artifact, error) {
	return service.store.List(service.db)
}

// Delete removes the catalog row along with the stored media file and any
// thumbnail. File removal failures are logged only; the row removal is
// what matters.
func (service *Service) Delete(id uuid.UUID) error {
	record, err := service.store.Get(service.db, id)
	if err != nil {
		return err
	}

	if err := service.store.Delete(service.db, id); err != nil {
		return err
	}

	if err := service.storage.Delete(record.CanonicalPath); err != nil {
		log.Warnf("Failed to delete stored file for artifact %s: %s\n", id, err.Error())
	}
	if record.ThumbnailPath != nil {
		if err := os.Remove(*record.ThumbnailPath); err != nil {
			log.Warnf("Failed to delete thumbnail for artifact %s: %s\n", id, err.Error())
		}
	}

	return nil
}

// URL returns the public URL for an artifact's media file.
func (service *Service) URL(record *Artifact) string {
	return service.storage.URL(record.CanonicalPath)
}

// attachThumbnail runs the frame grab and records the result. Thumbnail
// failures never affect the already-inserted artifact.
func (service *Service) attachThumbnail(record *Artifact, storedPath string) {
	thumbnailPath, err := service.thumbnailer.Generate(context.Background(), storedPath, record.MimeType)
	if err != nil {
		log.Warnf("Thumbnail generation for artifact %s failed: %s\n", record.ID, err.Error())
		return
	}
	if thumbnailPath == "" {
		return
	}

	if err := service.store.AttachThumbnail(service.db, record.ID, thumbnailPath); err != nil {
		log.Warnf("Failed to attach thumbnail to artifact %s: %s\n", record.ID, err.Error())
	}
}

// storageRootRelative resolves the canonical (storage-relative) path to an
// absolute path on disk for content inspection.
func (service *Service) storageRootRelative(canonicalPath string) string {
	if disk, ok := service.storage.(*diskStorage); ok {
		return filepath.Join(disk.root, canonicalPath)
	}

	return canonicalPath
}
