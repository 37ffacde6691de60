// Package scope manages the per-attempt temporary working directories used
// while acquiring media. A scope is created when a worker begins processing
// an item and MUST be closed on every exit path; a periodic janitor reaps
// directories orphaned by a crashed process.
package scope

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/reelhq/reel/pkg/logger"
)

var log = logger.Get("Scope")

// DirPrefix is the name prefix of every scope directory beneath the
// scratch root. The janitor only ever considers directories carrying
// this prefix.
const DirPrefix = "scope-"

// Scope is a unique temporary working directory for a single acquisition
// attempt. All intermediate files (partial downloads, unpacked archives)
// must live inside it so that Close can reclaim everything at once.
type Scope struct {
	id     uuid.UUID
	dir    string
	closed bool
}

// New creates the working directory for the given item beneath root,
// creating root itself if required.
func New(root string, id uuid.UUID) (*Scope, error) {
	if err := os.MkdirAll(root, os.ModeDir|os.ModePerm); err != nil {
		return nil, fmt.Errorf("scratch root '%s' could not be created: %w", root, err)
	}

	dir := filepath.Join(root, DirPrefix+id.String())
	if err := os.MkdirAll(dir, os.ModeDir|os.ModePerm); err != nil {
		return nil, fmt.Errorf("scope dir '%s' could not be created: %w", dir, err)
	}

	return &Scope{id: id, dir: dir}, nil
}

func (scope *Scope) ID() uuid.UUID { return scope.id }
func (scope *Scope) Dir() string   { return scope.dir }

// Close removes the scope directory and everything inside it. Removal
// failures are logged but never escalated; they must not mask the outcome
// of the attempt the scope belonged to. Close is idempotent.
func (scope *Scope) Close() {
	if scope.closed {
		return
	}

	scope.closed = true
	if err := os.RemoveAll(scope.dir); err != nil {
		log.Warnf("Failed to remove scope dir %s: %s\n", scope.dir, err.Error())
	}
}

// OwnerID extracts the item ID from a scope directory name. The second
// return is false if the name does not look like a scope directory.
func OwnerID(dirName string) (uuid.UUID, bool) {
	if len(dirName) <= len(DirPrefix) || dirName[:len(DirPrefix)] != DirPrefix {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(dirName[len(DirPrefix):])
	if err != nil {
		return uuid.Nil, false
	}

	return id, true
}
