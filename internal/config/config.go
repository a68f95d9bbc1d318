// Package config loads the service configuration from YAML, .env and the
// environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// StorageConfig selects where session data lives.
type StorageConfig struct {
	Root    string `yaml:"root"`
	Backend string `yaml:"backend"` // sqlite or memory
	Watch   bool   `yaml:"watch"`   // drop sessions whose directory disappears
}

// EmbeddingConfig configures the embedding service and its gateway.
type EmbeddingConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// LLMConfig configures the language model service.
type LLMConfig struct {
	BaseURL      string                 `yaml:"base_url"`
	DefaultModel string                 `yaml:"default_model"`
	Temperature  float64                `yaml:"temperature"`
	Timeout      time.Duration          `yaml:"timeout"`
	Models       []entities.ModelOption `yaml:"models"`
}

// PDFConfig configures the PDF text extraction service.
type PDFConfig struct {
	ServiceURL string        `yaml:"service_url"`
	Timeout    time.Duration `yaml:"timeout"`
	ScriptDir  string        `yaml:"script_dir"` // start pdf_service.py from here when set
}

// RetrievalConfig tunes chunking and search.
type RetrievalConfig struct {
	ChunkSize        int `yaml:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap"`
	DocumentK        int `yaml:"document_k"`
	MemoryK          int `yaml:"memory_k"`
	EmbedConcurrency int `yaml:"embed_concurrency"`
}

// PromptConfig configures prompt templates.
type PromptConfig struct {
	DefaultTemplate string `yaml:"default_template"`
	StrictTemplates bool   `yaml:"strict_templates"`
}

// LogConfig configures logging.
type LogConfig struct {
	File       string `yaml:"file"`
	Production bool   `yaml:"production"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	PDF       PDFConfig       `yaml:"pdf"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads .env if present, then config.yaml from the path in
// DOCCHAT_CONFIG or the working directory.
func LoadDefault() (*AppConfig, string, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	path := os.Getenv("DOCCHAT_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate rejects settings the service cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("storage.backend must be sqlite or memory, got %q", c.Storage.Backend)
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Retrieval.ChunkOverlap, c.Retrieval.ChunkSize)
	}
	return nil
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	key string
	set func(*AppConfig, string)
}{
	{"DOCCHAT_ADDR", func(c *AppConfig, v string) { c.Server.Addr = v }},
	{"DOCCHAT_STORAGE_ROOT", func(c *AppConfig, v string) { c.Storage.Root = v }},
	{"OLLAMA_BASE_URL", func(c *AppConfig, v string) { c.Embedding.BaseURL = v; c.LLM.BaseURL = v }},
	{"DOCCHAT_LLM_MODEL", func(c *AppConfig, v string) { c.LLM.DefaultModel = v }},
	{"DOCCHAT_EMBED_MODEL", func(c *AppConfig, v string) { c.Embedding.Model = v }},
	{"DOCCHAT_PDF_SERVICE_URL", func(c *AppConfig, v string) { c.PDF.ServiceURL = v }},
	{"DOCCHAT_LOG_FILE", func(c *AppConfig, v string) { c.Log.File = v }},
}

func applyEnv(cfg *AppConfig) {
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			o.set(cfg, v)
		}
	}
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadMB:     50,
			CORSOrigins:     []string{"http://localhost:3000"},
		},
		Storage: StorageConfig{Root: "./sessions", Backend: "sqlite", Watch: true},
		Embedding: EmbeddingConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "nomic-embed-text",
			Timeout:        60 * time.Second,
			MaxRetries:     3,
			InitialBackoff: 200 * time.Millisecond,
			CacheTTL:       10 * time.Minute,
		},
		LLM: LLMConfig{
			BaseURL:      "http://localhost:11434",
			DefaultModel: "llama3.2",
			Timeout:      5 * time.Minute,
			Models: []entities.ModelOption{
				{Name: "Llama3.2", ID: "llama3.2"},
				{Name: "Llama3-8b", ID: "llama3:8b"},
				{Name: "Gemma2-9B", ID: "gemma2:9b"},
				{Name: "Mixtral-8x7B", ID: "mixtral:8x7b"},
			},
		},
		PDF: PDFConfig{ServiceURL: "http://localhost:8081", Timeout: 60 * time.Second},
		Retrieval: RetrievalConfig{
			ChunkSize:        1000,
			ChunkOverlap:     200,
			DocumentK:        4,
			MemoryK:          3,
			EmbedConcurrency: 4,
		},
		Log: LogConfig{File: "logs/docchat.log"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = def.Server.RequestTimeout
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if cfg.Server.MaxUploadMB <= 0 {
		cfg.Server.MaxUploadMB = def.Server.MaxUploadMB
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = def.Storage.Root
	}
	cfg.Storage.Root = filepath.Clean(cfg.Storage.Root)
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if cfg.Embedding.MaxRetries <= 0 {
		cfg.Embedding.MaxRetries = def.Embedding.MaxRetries
	}
	if cfg.Embedding.CacheTTL <= 0 {
		cfg.Embedding.CacheTTL = def.Embedding.CacheTTL
	}
	if cfg.LLM.DefaultModel == "" {
		cfg.LLM.DefaultModel = def.LLM.DefaultModel
	}
	if len(cfg.LLM.Models) == 0 {
		cfg.LLM.Models = []entities.ModelOption{{Name: cfg.LLM.DefaultModel, ID: cfg.LLM.DefaultModel}}
	}
	if cfg.Retrieval.ChunkSize <= 0 {
		cfg.Retrieval.ChunkSize = def.Retrieval.ChunkSize
	}
	if cfg.Retrieval.ChunkOverlap < 0 {
		cfg.Retrieval.ChunkOverlap = def.Retrieval.ChunkOverlap
	}
	if cfg.Retrieval.DocumentK <= 0 {
		cfg.Retrieval.DocumentK = def.Retrieval.DocumentK
	}
	if cfg.Retrieval.MemoryK <= 0 {
		cfg.Retrieval.MemoryK = def.Retrieval.MemoryK
	}
	if cfg.Retrieval.EmbedConcurrency <= 0 {
		cfg.Retrieval.EmbedConcurrency = def.Retrieval.EmbedConcurrency
	}
}
