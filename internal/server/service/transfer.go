package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"depot/internal/server/auth"
	"depot/internal/server/database"
	"depot/internal/server/storage"
)

// storagePrefixLen is the uuid plus the underscore in front of every display name.
const storagePrefixLen = 36 + 1

// maxDisplayName bounds the sanitized filename so that the storage name
// stays within storage.MaxNameLength.
const maxDisplayName = storage.MaxNameLength - storagePrefixLen

// FileRecordStore persists metadata of uploaded files.
type FileRecordStore interface {
	CreateFile(ctx context.Context, f *database.FileRecord) error
	GetFileByStoragePath(ctx context.Context, storagePath string) (*database.FileRecord, error)
}

// AccountFinder resolves an uploader to an account ID.
type AccountFinder interface {
	FindByUsername(ctx context.Context, username string) (*database.Account, error)
}

// UploadedFile describes one stored part of an upload.
type UploadedFile struct {
	Filename   string `json:"filename"`
	StoredName string `json:"stored_name"`
	Size       int64  `json:"size"`
}

// FileTransferService streams uploads into storage and serves them back.
type FileTransferService struct {
	store    storage.Store
	records  FileRecordStore
	accounts AccountFinder
}

// NewFileTransferService creates a new file transfer service.
func NewFileTransferService(store storage.Store, records FileRecordStore, accounts AccountFinder) *FileTransferService {
	return &FileTransferService{
		store:    store,
		records:  records,
		accounts: accounts,
	}
}

// Upload stores every part of a multipart stream under a fresh storage name
// and records it. Parts are copied straight from the request body.
// uploader may be nil for anonymous uploads.
func (s *FileTransferService) Upload(ctx context.Context, mr *multipart.Reader, uploader *auth.Claims) ([]UploadedFile, error) {
	uploaderID := s.resolveUploader(ctx, uploader)
	files := []UploadedFile{}

	for {
		part, err := mr.NextPart()
		// A bare io.EOF marks the closing boundary; a wrapped one is a truncated body.
		if err == io.EOF {
			break
		}
		if err != nil {
			if isTooLarge(err) {
				return files, ErrFileTooLarge
			}
			return files, fmt.Errorf("%w: malformed multipart body", ErrInvalidInput)
		}

		file, err := s.storePart(ctx, part, uploaderID)
		part.Close()
		if err != nil {
			return files, err
		}
		files = append(files, *file)
	}

	return files, nil
}

func (s *FileTransferService) storePart(ctx context.Context, part *multipart.Part, uploaderID *int64) (*UploadedFile, error) {
	id := uuid.NewString()
	display := sanitizeFilename(part.FileName())
	if display == "" {
		display = "upload-" + id
	}
	storedName := id + "_" + display

	size, err := s.store.Save(ctx, storedName, part)
	if err != nil {
		s.discard(storedName)
		if isTooLarge(err) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("failed to store %s: %w", storedName, err)
	}

	record := &database.FileRecord{
		Filename:    display,
		StoragePath: storedName,
		UploaderID:  uploaderID,
		Size:        size,
	}
	if err := s.records.CreateFile(ctx, record); err != nil {
		s.discard(storedName)
		return nil, err
	}

	slog.Info("file uploaded",
		"filename", display,
		"stored_name", storedName,
		"size", size,
	)
	return &UploadedFile{Filename: display, StoredName: storedName, Size: size}, nil
}

// Download is an open stored file together with the name it was uploaded as.
type Download struct {
	*storage.Object
	Filename string
}

// Open returns a stored file for download. name must be a single path
// element inside the storage root.
func (s *FileTransferService) Open(ctx context.Context, name string) (*Download, error) {
	obj, err := s.store.Open(ctx, name)
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		return nil, ErrInvalidFilename
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return &Download{Object: obj, Filename: s.displayName(ctx, name)}, nil
}

// displayName looks up the uploaded filename of a blob. Blobs without a
// record are served under their storage name.
func (s *FileTransferService) displayName(ctx context.Context, name string) string {
	record, err := s.records.GetFileByStoragePath(ctx, name)
	if err != nil {
		if !errors.Is(err, database.ErrFileNotFound) {
			slog.Warn("failed to look up file record", "stored_name", name, "error", err)
		}
		return name
	}
	return record.Filename
}

func (s *FileTransferService) resolveUploader(ctx context.Context, uploader *auth.Claims) *int64 {
	if uploader == nil || s.accounts == nil {
		return nil
	}
	account, err := s.accounts.FindByUsername(ctx, uploader.Username())
	if err != nil {
		if !errors.Is(err, database.ErrAccountNotFound) {
			slog.Warn("failed to resolve uploader", "username", uploader.Username(), "error", err)
		}
		return nil
	}
	return &account.ID
}

// discard removes a partially written blob. It runs on a fresh context since
// the request context is usually what failed. The sweeper catches leftovers.
func (s *FileTransferService) discard(name string) {
	if err := s.store.Delete(context.Background(), name); err != nil {
		slog.Warn("failed to remove partial upload", "stored_name", name, "error", err)
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// sanitizeFilename strips directory components and control characters and
// limits length. An empty result means the caller must synthesize a name.
func sanitizeFilename(name string) string {
	// Normalize Windows-style backslashes before taking the base name.
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if len(name) > maxDisplayName {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:maxDisplayName-len(ext)], "") + ext
	}

	switch name {
	case "", ".", "..", "/":
		return ""
	}
	return name
}
