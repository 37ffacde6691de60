package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Storage is the permanent home of canonicalized media files. Paths
// returned by Put are storage-relative and stable; they are what gets
// recorded on the artifact row.
type Storage interface {
	Put(sourcePath string) (string, error)
	URL(canonicalPath string) string
	Exists(canonicalPath string) bool
	Delete(canonicalPath string) error
}

// diskStorage stores media as flat files beneath a root directory, served
// by the HTTP layer under a base URL.
type diskStorage struct {
	root    string
	baseURL string
}

func NewDiskStorage(root string, baseURL string) (Storage, error) {
	if err := os.MkdirAll(root, os.ModeDir|os.ModePerm); err != nil {
		return nil, fmt.Errorf("storage root '%s' could not be created: %w", root, err)
	}

	return &diskStorage{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Put moves the source file into storage under a collision-safe name and
// returns the storage-relative path. The source file no longer exists
// afterwards.
func (storage *diskStorage) Put(sourcePath string) (string, error) {
	name := storage.availableName(filepath.Base(sourcePath))
	target := filepath.Join(storage.root, name)

	if err := moveFile(sourcePath, target); err != nil {
		return "", fmt.Errorf("failed to move '%s' into storage: %w", sourcePath, err)
	}

	return name, nil
}

func (storage *diskStorage) URL(canonicalPath string) string {
	return storage.baseURL + "/" + canonicalPath
}

func (storage *diskStorage) Exists(canonicalPath string) bool {
	_, err := os.Stat(filepath.Join(storage.root, canonicalPath))
	return err == nil
}

func (storage *diskStorage) Delete(canonicalPath string) error {
	return os.Remove(filepath.Join(storage.root, canonicalPath))
}

// availableName appends a numeric suffix to the base name until it does
// not clash with an existing stored file.
func (storage *diskStorage) availableName(base string) string {
	candidate := base
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; storage.Exists(candidate); i++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}

	return candidate
}

// moveFile renames where possible and falls back to copy-then-remove for
// cross-device moves, as the scratch area and the storage root commonly
// live on different filesystems.
func moveFile(source string, target string) error {
	if err := os.Rename(source, target); err == nil {
		return nil
	}

	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(target)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(target)
		return err
	}

	return os.Remove(source)
}
