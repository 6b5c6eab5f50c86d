package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depot/internal/server/auth"
	"depot/internal/server/database"
	"depot/internal/server/storage"
)

type testPart struct {
	field    string
	filename string
	content  []byte
}

func buildMultipart(t *testing.T, parts ...testPart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		var dst io.Writer
		var err error
		if p.filename != "" {
			dst, err = w.CreateFormFile(p.field, p.filename)
		} else {
			dst, err = w.CreateFormField(p.field)
		}
		require.NoError(t, err)
		_, err = dst.Write(p.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.Boundary()
}

func newTestTransfer(t *testing.T) (*FileTransferService, *memRecords, *memAccounts, string) {
	t.Helper()
	dir := t.TempDir()
	store := storage.NewFileSystemStore(dir)
	require.NoError(t, store.Init(context.Background()))
	records := &memRecords{}
	accounts := newMemAccounts()
	return NewFileTransferService(store, records, accounts), records, accounts, dir
}

func TestUpload_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, records, _, _ := newTestTransfer(t)

	binary := make([]byte, 256*1024)
	_, err := rand.Read(binary)
	require.NoError(t, err)

	body, boundary := buildMultipart(t,
		testPart{"file", "report.pdf", binary},
		testPart{"file", "notes.txt", []byte("hello")},
	)

	files, err := svc.Upload(ctx, multipart.NewReader(body, boundary), nil)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Len(t, records.records, 2)

	assert.Equal(t, "report.pdf", files[0].Filename)
	assert.True(t, strings.HasSuffix(files[0].StoredName, "_report.pdf"))
	assert.Equal(t, int64(len(binary)), files[0].Size)
	assert.Nil(t, records.records[0].UploaderID)
	assert.Equal(t, files[0].StoredName, records.records[0].StoragePath)

	obj, err := svc.Open(ctx, files[0].StoredName)
	require.NoError(t, err)
	defer obj.Body.Close()
	assert.Equal(t, "report.pdf", obj.Filename)
	got, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(binary, got), "downloaded bytes differ from upload")
}

func TestUpload_LongNameFitsStorage(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestTransfer(t)

	long := strings.Repeat("a", 230) + ".txt"
	body, boundary := buildMultipart(t, testPart{"file", long, []byte("long")})
	files, err := svc.Upload(ctx, multipart.NewReader(body, boundary), nil)
	require.NoError(t, err)
	require.Len(t, files, 1)

	assert.LessOrEqual(t, len(files[0].StoredName), storage.MaxNameLength)
	assert.True(t, strings.HasSuffix(files[0].Filename, ".txt"))

	obj, err := svc.Open(ctx, files[0].StoredName)
	require.NoError(t, err)
	defer obj.Body.Close()
	got, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "long", string(got))
}

func TestUpload_EmptyBody(t *testing.T) {
	svc, records, _, _ := newTestTransfer(t)
	body, boundary := buildMultipart(t)

	files, err := svc.Upload(context.Background(), multipart.NewReader(body, boundary), nil)
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
	assert.Empty(t, records.records)
}

func TestOpen_WithoutRecord(t *testing.T) {
	ctx := context.Background()
	svc, _, _, dir := newTestTransfer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orphan.bin"), []byte("x"), 0o644))

	obj, err := svc.Open(ctx, "orphan.bin")
	require.NoError(t, err)
	defer obj.Body.Close()
	assert.Equal(t, "orphan.bin", obj.Filename)
}

func TestUpload_SameNameTwice(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestTransfer(t)

	body, boundary := buildMultipart(t,
		testPart{"file", "same.txt", []byte("one")},
		testPart{"file", "same.txt", []byte("two")},
	)
	files, err := svc.Upload(ctx, multipart.NewReader(body, boundary), nil)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.NotEqual(t, files[0].StoredName, files[1].StoredName)
}

func TestUpload_Names(t *testing.T) {
	ctx := context.Background()
	svc, _, _, dir := newTestTransfer(t)

	body, boundary := buildMultipart(t,
		testPart{"file", "../../etc/passwd", []byte("evil")},
		testPart{"file", "C:\\Users\\me\\doc.txt", []byte("win")},
		testPart{"note", "", []byte("field without filename")},
	)
	files, err := svc.Upload(ctx, multipart.NewReader(body, boundary), nil)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "passwd", files[0].Filename)
	assert.Equal(t, "doc.txt", files[1].Filename)
	assert.True(t, strings.HasPrefix(files[2].Filename, "upload-"))

	for _, f := range files {
		_, err := os.Stat(filepath.Join(dir, f.StoredName))
		assert.NoError(t, err, "expected %s inside the storage root", f.StoredName)
	}
}

func TestUpload_RecordsUploader(t *testing.T) {
	ctx := context.Background()
	svc, records, accounts, _ := newTestTransfer(t)
	require.NoError(t, accounts.InsertAccount(ctx, &database.Account{Username: "bob", Role: "user"}))

	bob := &auth.Claims{Role: "user"}
	bob.Subject = "bob"
	body, boundary := buildMultipart(t, testPart{"file", "a.txt", []byte("a")})

	_, err := svc.Upload(ctx, multipart.NewReader(body, boundary), bob)
	require.NoError(t, err)
	require.Len(t, records.records, 1)
	require.NotNil(t, records.records[0].UploaderID)
	assert.Equal(t, int64(1), *records.records[0].UploaderID)
}

func TestUpload_RecordFailureRemovesBlob(t *testing.T) {
	ctx := context.Background()
	svc, records, _, dir := newTestTransfer(t)
	records.err = errors.New("db down")

	body, boundary := buildMultipart(t, testPart{"file", "a.txt", []byte("a")})
	_, err := svc.Upload(ctx, multipart.NewReader(body, boundary), nil)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_TooLarge(t *testing.T) {
	ctx := context.Background()
	svc, records, _, dir := newTestTransfer(t)

	body, boundary := buildMultipart(t, testPart{"file", "big.bin", bytes.Repeat([]byte("x"), 64*1024)})
	limited := http.MaxBytesReader(httptest.NewRecorder(), io.NopCloser(body), 1024)

	_, err := svc.Upload(ctx, multipart.NewReader(limited, boundary), nil)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, records.records)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_Malformed(t *testing.T) {
	svc, _, _, _ := newTestTransfer(t)
	_, err := svc.Upload(context.Background(), multipart.NewReader(strings.NewReader("garbage"), "xyz"), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	svc, _, _, dir := newTestTransfer(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.txt"), []byte("s"), 0o644))

	for _, name := range []string{"../secret.txt", "../../etc/passwd", "/etc/passwd", "a/b", ""} {
		_, err := svc.Open(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidFilename, "name %q", name)
	}

	_, err := svc.Open(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{"C:\\temp\\file.txt", "file.txt"},
		{"dir/", "dir"},
		{"", ""},
		{".", ""},
		{"..", ""},
		{"/", ""},
		{"a\x00b\nc.txt", "abc.txt"},
		{"  spaced.txt  ", "spaced.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFilename(tt.input))
		})
	}

	t.Run("long names are truncated", func(t *testing.T) {
		got := sanitizeFilename(strings.Repeat("a", 400) + ".txt")
		assert.Len(t, got, maxDisplayName)
		assert.True(t, strings.HasSuffix(got, ".txt"))
	})
}
