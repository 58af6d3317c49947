package license

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "profileapi/internal/errors"
)

// BlobRepository stores the installed license blob. Implementations
// must report a missing blob as ErrNoLicense; installation is a plain
// overwrite.
type BlobRepository interface {
	Read() (string, error)
	Write(blob string) error
}

// FileRepository persists the blob to a local file. Writes go through
// a temp file and rename so a crash mid-write leaves either the old or
// the new blob, never a torn one. A corrupted file is still caught by
// the codec's authentication check on the next read.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileRepository creates a repository over the given file path
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Read returns the stored blob
func (r *FileRepository) Read() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apperrors.ErrNoLicense
		}
		return "", fmt.Errorf("failed to read license file: %w", err)
	}
	return string(data), nil
}

// Write installs the blob, replacing any existing one
func (r *FileRepository) Write(blob string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".license-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write license blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set license file mode: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to install license file: %w", err)
	}
	return nil
}

// Path returns the backing file path
func (r *FileRepository) Path() string {
	return r.path
}

// MemoryRepository is an in-memory BlobRepository for tests and
// ephemeral deployments.
type MemoryRepository struct {
	mu   sync.RWMutex
	blob string
	set  bool
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Read returns the stored blob
func (r *MemoryRepository) Read() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.set {
		return "", apperrors.ErrNoLicense
	}
	return r.blob, nil
}

// Write replaces the stored blob
func (r *MemoryRepository) Write(blob string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blob = blob
	r.set = true
	return nil
}

// Clear removes the stored blob
func (r *MemoryRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blob = ""
	r.set = false
}
