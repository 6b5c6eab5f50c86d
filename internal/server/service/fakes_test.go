package service

import (
	"context"
	"sync"
	"time"

	"depot/internal/server/database"
)

type memAccounts struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[string]*database.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: map[string]*database.Account{}}
}

func (m *memAccounts) FindByUsername(_ context.Context, username string) (*database.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[username]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) InsertAccount(_ context.Context, a *database.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.Username]; ok {
		return database.ErrDuplicateUsername
	}
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Now()
	cp := *a
	m.accounts[a.Username] = &cp
	return nil
}

func (m *memAccounts) UpdatePassword(_ context.Context, username, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[username]
	if !ok {
		return database.ErrAccountNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

type memRecords struct {
	mu      sync.Mutex
	records []database.FileRecord
	err     error
}

func (m *memRecords) CreateFile(_ context.Context, f *database.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	f.ID = int64(len(m.records) + 1)
	m.records = append(m.records, *f)
	return nil
}

func (m *memRecords) GetFileByStoragePath(_ context.Context, storagePath string) (*database.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].StoragePath == storagePath {
			cp := m.records[i]
			return &cp, nil
		}
	}
	return nil, database.ErrFileNotFound
}
