package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/errors"
)

func TestValidatePath_TraversalRejected(t *testing.T) {
	cfg := config.DefaultConfig()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../backup.jsonl"},
		{"deep traversal", "../../etc/backup.jsonl"},
		{"mid-path traversal", "/tmp/../etc/backup.jsonl"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, PathCheckWrite, cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_ExtensionRequired(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	for _, path := range []string{"/tmp/backup", "/tmp/backup.json", "/tmp/backup.txt"} {
		t.Run(path, func(t *testing.T) {
			err := ValidatePath(path, PathCheckWrite, cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_DirectoryRestriction(t *testing.T) {
	cfg := config.DefaultConfig()

	err := ValidatePath(filepath.Join(t.TempDir(), "backup.jsonl"), PathCheckWrite, cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest outside allowed dirs, got: %v", err)
	}
}

func TestValidatePath_AllowedPaths(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{tmpDir, "relative/ignored"}

	testFile := filepath.Join(tmpDir, "test.jsonl")
	if err := os.WriteFile(testFile, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if err := ValidatePath(testFile, PathCheckRead, cfg); err != nil {
		t.Errorf("expected success for path in AllowedPaths, got: %v", err)
	}
	if err := ValidatePath(filepath.Join(tmpDir, "out.jsonl"), PathCheckWrite, cfg); err != nil {
		t.Errorf("expected success for write in AllowedPaths, got: %v", err)
	}
}

func TestValidatePath_AllowUnsafePaths(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	if err := ValidatePath(filepath.Join(t.TempDir(), "out.jsonl"), PathCheckWrite, cfg); err != nil {
		t.Errorf("expected success with AllowUnsafePaths, got: %v", err)
	}
}

func TestValidatePath_FileNotFound_ReadMode(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{tmpDir}

	err := ValidatePath(filepath.Join(tmpDir, "missing.jsonl"), PathCheckRead, cfg)
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got: %v", err)
	}
}

func TestValidatePath_NestedPathRejected(t *testing.T) {
	allowedDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowedDir}

	subDir := filepath.Join(allowedDir, "subdir")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	err := ValidatePath(filepath.Join(subDir, "out.jsonl"), PathCheckWrite, cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for nested path, got: %v", err)
	}
}

func TestValidatePath_SymlinkRejected_EvenWithUnsafePaths(t *testing.T) {
	tmpDir := t.TempDir()
	targetFile := filepath.Join(t.TempDir(), "secret.jsonl")
	if err := os.WriteFile(targetFile, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to create target file: %v", err)
	}
	symlink := filepath.Join(tmpDir, "link.jsonl")
	if err := os.Symlink(targetFile, symlink); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	for _, unsafe := range []bool{false, true} {
		cfg := config.DefaultConfig()
		cfg.AllowedPaths = []string{tmpDir}
		cfg.AllowUnsafePaths = unsafe

		for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
			err := ValidatePath(symlink, mode, cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("unsafe=%v mode=%d: expected ErrInvalidRequest, got: %v", unsafe, mode, err)
			}
		}
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path     string
		contains bool
	}{
		{"/home/user/file.txt", false},
		{"../file.txt", true},
		{"/home/../etc/passwd", true},
		{"./file.txt", false},
		{"file..name.txt", false},
		{"/tmp/a/b/../c.jsonl", true},
	}

	for _, tc := range tests {
		if got := containsTraversal(tc.path); got != tc.contains {
			t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.contains)
		}
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Q3 research", "Q3-research"},
		{"path/to/file", "path-to-file"},
		{"path\\to\\file", "path-to-file"},
		{"foo..bar", "foo-bar"},
		{"../../../etc/passwd", "etc-passwd"},
		{"foo\x00bar", "foobar"},
		{"../../..", "unnamed"},
		{"", "unnamed"},
		{"bundle-中文", "bundle-中文"},
		{"a---b", "a-b"},
	}

	for _, tc := range tests {
		if got := SanitizeForFilename(tc.input); got != tc.expected {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}
