package database

import "time"

// Account is a stored user credential.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// FileRecord links an uploaded blob to its display name and uploader.
type FileRecord struct {
	ID          int64
	Filename    string
	StoragePath string
	UploaderID  *int64 // nil for anonymous uploads
	Size        int64
	CreatedAt   time.Time
}

// Stats holds aggregate server statistics.
type Stats struct {
	Accounts    int64
	Files       int64
	StorageUsed int64
}
