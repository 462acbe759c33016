package helpers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBytesToSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes uint64
		want  string
	}{
		{"Zero bytes", 0, "0B"},
		{"Bytes", 500, "500.00B"},
		{"Kilobytes", 1024, "1.00KB"},
		{"Kilobytes fractional", 1536, "1.50KB"},
		{"Megabytes", 1024 * 1024, "1.00MB"},
		{"Megabytes fractional", 1024*1024 + 512*1024, "1.50MB"},
		{"Gigabytes", 1024 * 1024 * 1024, "1.00GB"},
		{"Terabytes", 1024 * 1024 * 1024 * 1024, "1.00TB"},
		{"Large Terabytes", 1536 * 1024 * 1024 * 1024, "1.50TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToSize(tt.bytes)
			if got != tt.want {
				t.Errorf("BytesToSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestFileChecksum(t *testing.T) {
	tempDir := t.TempDir()

	testFilePath := filepath.Join(tempDir, "track.flac")
	if err := os.WriteFile(testFilePath, []byte("fake audio payload"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	sum, err := FileChecksum(testFilePath)
	if err != nil {
		t.Fatalf("FileChecksum(%q) returned error: %v", testFilePath, err)
	}
	if len(sum) != 64 {
		t.Errorf("FileChecksum(%q) = %q, want a 64-char hex digest", testFilePath, sum)
	}

	// Same content in a different file must hash identically.
	copyPath := filepath.Join(tempDir, "track_copy.flac")
	if err := os.WriteFile(copyPath, []byte("fake audio payload"), 0644); err != nil {
		t.Fatalf("Failed to create copy file: %v", err)
	}
	copySum, err := FileChecksum(copyPath)
	if err != nil {
		t.Fatalf("FileChecksum(%q) returned error: %v", copyPath, err)
	}
	if copySum != sum {
		t.Errorf("FileChecksum mismatch for identical content: %q vs %q", sum, copySum)
	}

	// Different content must hash differently.
	otherPath := filepath.Join(tempDir, "other.flac")
	if err := os.WriteFile(otherPath, []byte("different audio payload"), 0644); err != nil {
		t.Fatalf("Failed to create other file: %v", err)
	}
	otherSum, err := FileChecksum(otherPath)
	if err != nil {
		t.Fatalf("FileChecksum(%q) returned error: %v", otherPath, err)
	}
	if otherSum == sum {
		t.Errorf("FileChecksum produced the same digest for different content: %q", sum)
	}

	if _, err := FileChecksum(filepath.Join(tempDir, "missing.flac")); err == nil {
		t.Error("FileChecksum on a missing file should return an error")
	}
}

func TestCheckAndMakeDir(t *testing.T) {
	baseTempDir := t.TempDir()

	tests := []struct {
		name       string
		dirToMake  string // Relative to baseTempDir
		wantResult bool
		wantExists bool
	}{
		{
			name:       "Create simple directory",
			dirToMake:  "new_dir",
			wantResult: true,
			wantExists: true,
		},
		{
			name:       "Create nested directory",
			dirToMake:  filepath.Join("nested", "dir", "to", "create"),
			wantResult: true,
			wantExists: true,
		},
		{
			name:       "Attempt to create directory that is a file",
			dirToMake:  "existing_file.txt",
			wantResult: false,
			wantExists: false,
		},
		{
			name:       "Directory already exists",
			dirToMake:  "already_exists",
			wantResult: true,
			wantExists: true,
		},
	}

	// Pre-create structures needed for certain tests
	preExistingDir := filepath.Join(baseTempDir, "already_exists")
	if err := os.Mkdir(preExistingDir, 0755); err != nil {
		t.Fatalf("Failed to pre-create directory %s: %v", preExistingDir, err)
	}
	preExistingFile := filepath.Join(baseTempDir, "existing_file.txt")
	if _, err := os.Create(preExistingFile); err != nil {
		t.Fatalf("Failed to pre-create file %s: %v", preExistingFile, err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fullPathToMake := filepath.Join(baseTempDir, tt.dirToMake)
			gotResult := CheckAndMakeDir(fullPathToMake)

			if gotResult != tt.wantResult {
				t.Errorf("CheckAndMakeDir(%q) = %v, want %v", fullPathToMake, gotResult, tt.wantResult)
			}

			info, err := os.Stat(fullPathToMake)
			gotExists := err == nil && info.IsDir()

			if gotExists != tt.wantExists {
				t.Errorf("CheckAndMakeDir(%q): directory exists = %v, want %v", fullPathToMake, gotExists, tt.wantExists)
			}
		})
	}
}
