package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateFile inserts a file record and fills in its ID and CreatedAt.
func (r *Repository) CreateFile(ctx context.Context, f *FileRecord) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO files (filename, storage_path, uploader_id, size)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, f.Filename, f.StoragePath, f.UploaderID, f.Size).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

// GetFileByStoragePath retrieves the record of a stored blob.
func (r *Repository) GetFileByStoragePath(ctx context.Context, storagePath string) (*FileRecord, error) {
	f := &FileRecord{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, filename, storage_path, uploader_id, size, created_at
		FROM files WHERE storage_path = $1
	`, storagePath).Scan(&f.ID, &f.Filename, &f.StoragePath, &f.UploaderID, &f.Size, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file record: %w", err)
	}
	return f, nil
}

// FileExists reports whether a record exists for the stored blob.
func (r *Repository) FileExists(ctx context.Context, storagePath string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM files WHERE storage_path = $1)", storagePath,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check file record: %w", err)
	}
	return exists, nil
}
