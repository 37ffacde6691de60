package artifact

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/reelhq/reel/internal/database"
)

var (
	ErrArtifactNotFound = errors.New("artifact does not exist")

	psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
)

type Store struct{}

func NewStore() *Store { return &Store{} }

func (store *Store) Save(db database.Queryable, artifact *Artifact) error {
	_, err := db.Exec(`
		INSERT INTO artifacts(id, title, source, canonical_path, mime_type, size_bytes, thumbnail_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, current_timestamp)
	`, artifact.ID, artifact.Title, artifact.Source, artifact.CanonicalPath, artifact.MimeType, artifact.Size, artifact.ThumbnailPath)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}

	return nil
}

// AttachThumbnail records the thumbnail path for an existing artifact.
// This is the only mutation artifacts support.
func (store *Store) AttachThumbnail(db database.Queryable, id uuid.UUID, thumbnailPath string) error {
	result, err := db.Exec(`UPDATE artifacts SET thumbnail_path = $1 WHERE id = $2`, thumbnailPath, id)
	if err != nil {
		return err
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrArtifactNotFound
	}

	return nil
}

func (store *Store) Get(db database.Queryable, id uuid.UUID) (*Artifact, error) {
	query, args, err := psql.Select("*").From("artifacts").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct query: %w", err)
	}

	var result Artifact
	if err := db.Get(&result, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArtifactNotFound
		}

		return nil, err
	}

	return &result, nil
}

func (store *Store) List(db database.Queryable) ([]*Artifact, error) {
	query, args, err := psql.Select("*").From("artifacts").OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct query: %w", err)
	}

	var results []*Artifact
	if err := db.Select(&results, query, args...); err != nil {
		return nil, err
	}

	return results, nil
}

func (store *Store) Delete(db database.Queryable, id uuid.UUID) error {
	result, err := db.Exec(`DELETE FROM artifacts WHERE id = $1`, id)
	if err != nil {
		return err
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrArtifactNotFound
	}

	return nil
}
