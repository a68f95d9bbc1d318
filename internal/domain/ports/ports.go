// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions, adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMService completes prompts with a language model.
type LLMService interface {
	// Complete returns the model's answer to prompt. An empty modelID selects
	// the adapter's default model.
	Complete(ctx context.Context, prompt, modelID string) (string, error)
}

// DocumentIndexStore persists a session's chunk vectors.
type DocumentIndexStore interface {
	// Save writes the whole index for a session. It replaces any previous
	// index and leaves nothing behind on failure.
	Save(ctx context.Context, sessionID string, chunks []entities.Chunk) error

	// Search returns the topK chunks most similar to embedding.
	// Returns errs.ErrIndexNotFound when the session has no index.
	Search(ctx context.Context, sessionID string, embedding []float32, topK int) ([]entities.ScoredChunk, error)

	// Exists reports whether the session has an index.
	Exists(ctx context.Context, sessionID string) (bool, error)

	// Files lists the distinct source files in the session's index.
	Files(ctx context.Context, sessionID string) ([]string, error)

	// Delete removes the session's index. Deleting a missing index is a no-op.
	Delete(ctx context.Context, sessionID string) error
}

// ConversationStore persists a session's conversation turns.
type ConversationStore interface {
	// Append adds one turn atomically, creating the store when absent.
	Append(ctx context.Context, sessionID string, turn entities.ConversationTurn) error

	// Search returns the topK turns most similar to embedding.
	// Returns errs.ErrMemoryNotFound when the session has no store.
	Search(ctx context.Context, sessionID string, embedding []float32, topK int) ([]entities.ScoredTurn, error)

	// Exists reports whether the session has a store.
	Exists(ctx context.Context, sessionID string) (bool, error)

	// Delete removes the session's store. Deleting a missing store is a no-op.
	Delete(ctx context.Context, sessionID string) error
}

// SessionRegistry tracks session metadata and transcripts.
// Vectors never live here.
type SessionRegistry interface {
	Create(id string, files []string) error
	MarkProcessed(id string) error
	Get(id string) (*entities.Session, bool)
	Exists(id string) bool
	IsProcessed(id string) bool
	AppendMessage(id, role, content string) error
	History(id string) []entities.Message
	ClearHistory(id string) error
	SetSystemPrompt(id, prompt string) error
	SystemPrompt(id string) (string, bool)
	ResetSystemPrompt(id string) error
	Delete(id string)
	IDs() []string
}

// DocumentParser extracts per-page text from binary documents.
type DocumentParser interface {
	// ParsePages returns the text of each page, in page order.
	ParsePages(ctx context.Context, data []byte, filename string) ([]string, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf").
	SupportedFormats() []string
}

// MemoryObserver is told about contained conversation memory failures,
// which would otherwise only show up in logs.
type MemoryObserver interface {
	MemoryWriteFailed(ctx context.Context, sessionID string, err error)
	MemoryReadFailed(ctx context.Context, sessionID string, err error)
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
