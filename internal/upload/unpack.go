package upload

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// archiveExtensions are the archive forms we accept from uploads. Compound
// extensions must be checked before their plain suffix ('.tar.gz' before
// '.gz').
var archiveExtensions = []string{
	".tar.gz", ".tar.bz2", ".tar.xz", ".tgz", ".tar", ".zip", ".rar", ".7z",
}

// IsArchive reports whether the filename carries a recognized archive
// extension.
func IsArchive(name string) bool {
	lowered := strings.ToLower(name)
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(lowered, ext) {
			return true
		}
	}

	return false
}

// unpack extracts every regular file from the archive at archivePath into
// destDir, flattening nothing; the directory structure inside the archive
// is preserved. Symlinks are skipped, an uploaded archive has no business
// pointing outside itself.
func unpack(ctx context.Context, archivePath string, destDir string) error {
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer closer.Close()
	}

	if err := os.MkdirAll(destDir, os.ModeDir|os.ModePerm); err != nil {
		return fmt.Errorf("failed to create extraction dir: %w", err)
	}

	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}

		targetPath := filepath.Join(destDir, path)
		if d.IsDir() {
			return os.MkdirAll(targetPath, os.ModeDir|os.ModePerm)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat archive entry %s: %w", path, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		return extractRegularFile(fsys, path, targetPath)
	})
}

func extractRegularFile(fsys fs.FS, path string, targetPath string) error {
	srcFile, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", path, err)
	}
	defer srcFile.Close()

	if err := os.MkdirAll(filepath.Dir(targetPath), os.ModeDir|os.ModePerm); err != nil {
		return fmt.Errorf("failed to create parent dir for %s: %w", path, err)
	}

	dstFile, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("failed to create extracted file %s: %w", targetPath, err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		os.Remove(targetPath)
		return fmt.Errorf("failed to extract %s: %w", path, err)
	}

	return dstFile.Close()
}
