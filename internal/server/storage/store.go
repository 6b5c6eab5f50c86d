package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// MaxNameLength is the longest storage name accepted by every backend. It is
// the common single-component limit of local filesystems.
const MaxNameLength = 255

var (
	ErrObjectNotFound = errors.New("stored file not found")
	ErrInvalidName    = errors.New("invalid storage name")
	ErrObjectExists   = errors.New("stored file already exists")
)

// Object is an open stored file. Body may also implement io.ReadSeeker,
// in which case callers can serve byte ranges from it.
type Object struct {
	Body    io.ReadCloser
	Size    int64
	ModTime time.Time
}

// Store defines the interface for file storage backends. Every name lives in a
// single flat namespace; backends reject names that are not a single element.
type Store interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, name string, data io.Reader) (int64, error)
	Open(ctx context.Context, name string) (*Object, error)
	Delete(ctx context.Context, name string) error
	Walk(ctx context.Context, fn func(name string, modTime time.Time) error) error
}

// ValidateName rejects anything that is not a plain file name: empty names,
// dot entries, separators, absolute or volume paths and NUL bytes.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return ErrInvalidName
	}
	if filepath.IsAbs(name) || filepath.VolumeName(name) != "" || !filepath.IsLocal(name) {
		return ErrInvalidName
	}
	if len(name) > MaxNameLength {
		return ErrInvalidName
	}
	return nil
}

// ctxReader stops a copy as soon as the context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
