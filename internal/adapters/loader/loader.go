// Package loader reads local documents so they can be ingested without the
// HTTP upload path.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
)

// PDFLoader loads PDF files from disk as uploads.
type PDFLoader struct {
	maxFileSize int64 // bytes; 0 means unlimited
}

// NewPDFLoader creates a PDF loader that refuses files above maxFileSize bytes.
func NewPDFLoader(maxFileSize int64) *PDFLoader {
	return &PDFLoader{maxFileSize: maxFileSize}
}

// Load reads the given paths. A directory contributes every PDF directly
// inside it, in name order.
func (l *PDFLoader) Load(ctx context.Context, paths []string) ([]entities.Upload, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var inDir []string
		for _, e := range entries {
			if !e.IsDir() && l.supported(e.Name()) {
				inDir = append(inDir, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(inDir)
		files = append(files, inDir...)
	}

	uploads := make([]entities.Upload, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !l.supported(path) {
			return nil, fmt.Errorf("%s: only PDF files are supported", path)
		}
		upload, err := l.loadFile(path)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func (l *PDFLoader) loadFile(path string) (entities.Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return entities.Upload{}, err
	}
	if l.maxFileSize > 0 && info.Size() > l.maxFileSize {
		return entities.Upload{}, fmt.Errorf("%s: file exceeds %d bytes", path, l.maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return entities.Upload{}, err
	}
	return entities.Upload{Name: filepath.Base(path), Data: data}, nil
}

// SupportedExtensions returns file extensions.
func (l *PDFLoader) SupportedExtensions() []string {
	return []string{".pdf"}
}

func (l *PDFLoader) supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range l.SupportedExtensions() {
		if ext == e {
			return true
		}
	}
	return false
}
