package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestPDFLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	os.WriteFile(path, []byte("%PDF-1.4"), 0o644)

	uploads, err := NewPDFLoader(0).Load(context.Background(), []string{path})

	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(uploads))
	}
	if uploads[0].Name != "report.pdf" || string(uploads[0].Data) != "%PDF-1.4" {
		t.Errorf("unexpected upload: %s %q", uploads[0].Name, uploads[0].Data)
	}
}

func TestPDFLoader_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "b.pdf"), []byte("b"), 0o644)
	os.WriteFile(filepath.Join(dir, "a.PDF"), []byte("a"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644)
	os.Mkdir(filepath.Join(dir, "nested.pdf"), 0o755)

	uploads, err := NewPDFLoader(0).Load(context.Background(), []string{dir})

	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(uploads))
	}
	if uploads[0].Name != "a.PDF" || uploads[1].Name != "b.pdf" {
		t.Errorf("unexpected order: %s, %s", uploads[0].Name, uploads[1].Name)
	}
}

func TestPDFLoader_RejectsOtherFormats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	os.WriteFile(path, []byte("Hello World"), 0o644)

	if _, err := NewPDFLoader(0).Load(context.Background(), []string{path}); err == nil {
		t.Error("text files should be rejected")
	}
}

func TestPDFLoader_MaxFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.pdf")
	os.WriteFile(path, make([]byte, 100), 0o644)

	if _, err := NewPDFLoader(10).Load(context.Background(), []string{path}); err == nil {
		t.Error("oversized file should be rejected")
	}
}

func TestPDFLoader_MissingPath(t *testing.T) {
	if _, err := NewPDFLoader(0).Load(context.Background(), []string{"/does/not/exist.pdf"}); err == nil {
		t.Error("missing file should error")
	}
}
