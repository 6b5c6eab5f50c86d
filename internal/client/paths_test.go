package client

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setupTestFiles(t *testing.T, files map[string]string) []string {
	t.Helper()
	tmpDir := t.TempDir()
	var paths []string

	for filename, content := range files {
		filePath := filepath.Join(tmpDir, filename)
		if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create test file %s: %v", filename, err)
		}
		paths = append(paths, filePath)
	}

	return paths
}

func assertValidationError(t *testing.T, err error, expectedArg string, expectedCause string) {
	t.Helper()
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if expectedArg != "" && validationErr.Arg != expectedArg {
		t.Errorf("expected Arg to be %q, got %q", expectedArg, validationErr.Arg)
	}
	if expectedCause != "" && validationErr.Cause != expectedCause {
		t.Errorf("expected Cause to be %q, got %q", expectedCause, validationErr.Cause)
	}
}

func TestParsePaths(t *testing.T) {
	t.Run("empty args returns error", func(t *testing.T) {
		result, err := ParsePaths(nil)
		if result != nil {
			t.Error("expected nil result for empty args")
		}
		assertValidationError(t, err, "<files>", "no files provided")
	})

	t.Run("mixed files and directories", func(t *testing.T) {
		tmpDir := t.TempDir()
		subDir := filepath.Join(tmpDir, "subdir")
		if err := os.Mkdir(subDir, 0o755); err != nil {
			t.Fatal(err)
		}
		testFile := filepath.Join(tmpDir, "test.txt")
		if err := os.WriteFile(testFile, []byte("content"), 0o644); err != nil {
			t.Fatal(err)
		}

		result, err := ParsePaths([]string{testFile, subDir})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(result) != 2 {
			t.Fatalf("expected 2 results, got %d", len(result))
		}
		if result[0].Kind != PathFile || result[1].Kind != PathDir {
			t.Errorf("unexpected kinds: %v, %v", result[0].Kind, result[1].Kind)
		}
	})

	t.Run("nonexistent path returns error", func(t *testing.T) {
		_, err := ParsePaths([]string{"/nonexistent/path/file.txt"})
		assertValidationError(t, err, "/nonexistent/path/file.txt", "not found or not accessible")
	})

	t.Run("path cleaning", func(t *testing.T) {
		paths := setupTestFiles(t, map[string]string{"test.txt": "content"})
		messy := filepath.Join(filepath.Dir(paths[0]), ".", "test.txt")

		result, err := ParsePaths([]string{messy})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result[0].FullPath != paths[0] {
			t.Errorf("expected %s, got %s", paths[0], result[0].FullPath)
		}
	})
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Arg: "test.txt", Cause: "file not found"}
	expected := `invalid argument "test.txt": file not found`
	if err.Error() != expected {
		t.Errorf("expected error message %q, got %q", expected, err.Error())
	}
}
