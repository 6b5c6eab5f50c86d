package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSystemStore stores uploaded files on the local filesystem under a single root.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// Init creates the storage directory if it doesn't exist and pins the root to
// an absolute path.
func (fs *FileSystemStore) Init(_ context.Context) error {
	if err := os.MkdirAll(fs.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	abs, err := filepath.Abs(fs.basePath)
	if err != nil {
		return fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	fs.basePath = filepath.Clean(abs)
	return nil
}

// Save streams data into a new file. Existing files are never overwritten.
// On a write error the partial file is removed.
func (fs *FileSystemStore) Save(ctx context.Context, name string, data io.Reader) (int64, error) {
	filePath, err := fs.resolve(name)
	if err != nil {
		return 0, err
	}

	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, ErrObjectExists
		}
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(file, ctxReader{ctx: ctx, r: data})
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	return n, nil
}

// Open returns the stored file for reading. The returned body is an *os.File
// and therefore seekable.
func (fs *FileSystemStore) Open(_ context.Context, name string) (*Object, error) {
	filePath, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Lstat(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrObjectNotFound
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &Object{Body: file, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes a stored file. Missing files are not an error.
func (fs *FileSystemStore) Delete(_ context.Context, name string) error {
	filePath, err := fs.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Walk calls fn for every regular file directly under the root.
func (fs *FileSystemStore) Walk(ctx context.Context, fn func(name string, modTime time.Time) error) error {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return fmt.Errorf("failed to list storage directory: %w", err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat stored file: %w", err)
		}
		if err := fn(entry.Name(), info.ModTime()); err != nil {
			return err
		}
	}
	return nil
}

// resolve maps a storage name to a path under the root, refusing anything
// that would land outside it.
func (fs *FileSystemStore) resolve(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	joined := filepath.Clean(filepath.Join(fs.basePath, name))
	if !isWithin(fs.basePath, joined) || joined == filepath.Clean(fs.basePath) {
		return "", ErrInvalidName
	}
	return joined, nil
}

func isWithin(root, candidate string) bool {
	root = filepath.Clean(root)
	sep := string(filepath.Separator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(candidate, root)
}
