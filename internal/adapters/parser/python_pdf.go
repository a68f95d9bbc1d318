// Package parser provides document parsing adapters.
// PDF text extraction is delegated to an external Python service.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// PythonPDFParser implements ports.DocumentParser by calling the PDF service.
type PythonPDFParser struct {
	serviceURL string
	client     *http.Client
	log        *zap.Logger
}

// NewPythonPDFParser creates a new PDF parser that calls the Python service.
func NewPythonPDFParser(serviceURL string, timeout time.Duration, log *zap.Logger) *PythonPDFParser {
	if serviceURL == "" {
		serviceURL = "http://localhost:8081"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PythonPDFParser{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		log: log.Named("pdf_parser"),
	}
}

// parseResponse is the Python service response format.
type parseResponse struct {
	Pages   []string `json:"pages"`
	Library string   `json:"library,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ParsePages extracts the text of every page, in order.
func (p *PythonPDFParser) ParsePages(ctx context.Context, data []byte, filename string) ([]string, error) {
	endpoint := p.serviceURL + "/parse?filename=" + url.QueryEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling PDF service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}

	// The service reports unreadable documents in the body.
	if result.Error != "" {
		return nil, errs.E(errs.InvalidInput, "parser.parse_pages", fmt.Errorf("%s: %s", filename, result.Error))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("PDF service returned status %d", resp.StatusCode)
	}

	pages := make([]string, len(result.Pages))
	for i, text := range result.Pages {
		pages[i] = cleanPageText(text)
	}

	p.log.Debug("parsed document",
		zap.String("file", filename),
		zap.Int("pages", len(pages)),
		zap.String("library", result.Library),
	)
	return pages, nil
}

// SupportedFormats returns formats this parser handles.
func (p *PythonPDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// IsServiceHealthy checks if the Python service is running.
func (p *PythonPDFParser) IsServiceHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serviceURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// StartService launches pdf_service.py from scriptDir and waits until it
// answers health checks. The returned function stops it.
func (p *PythonPDFParser) StartService(ctx context.Context, scriptDir string) (func(), error) {
	scriptPath := filepath.Join(scriptDir, "pdf_service.py")
	if _, err := os.Stat(scriptPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("pdf_service.py not found at %s", scriptPath)
	}

	cmd := exec.Command("python3", scriptPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting Python service: %w", err)
	}

	stop := func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
			cmd.Wait()
		}
	}

	_, err := backoff.Retry(ctx, func() (bool, error) {
		if !p.IsServiceHealthy(ctx) {
			return false, errors.New("PDF service not ready")
		}
		return true, nil
	}, backoff.WithBackOff(backoff.NewConstantBackOff(250*time.Millisecond)), backoff.WithMaxElapsedTime(15*time.Second))
	if err != nil {
		stop()
		return nil, fmt.Errorf("waiting for PDF service: %w", err)
	}

	p.log.Info("PDF service started", zap.String("script", scriptPath))
	return stop, nil
}

// cleanPageText drops control characters the extractor sometimes leaks.
func cleanPageText(content string) string {
	var cleaned strings.Builder
	cleaned.Grow(len(content))
	for _, r := range content {
		if r == '\n' || r == '\t' || (r >= 32 && r != 127 && r != '\uFFFD') {
			cleaned.WriteRune(r)
		}
	}
	return strings.TrimSpace(cleaned.String())
}
