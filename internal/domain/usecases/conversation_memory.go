package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// DefaultMemoryK is the number of prior turns retrieved per question.
const DefaultMemoryK = 3

// memoryBlockSeparator joins retrieved turns in the chat context.
const memoryBlockSeparator = "\n\n---\n\n"

// ConversationMemory keeps a session's past turns searchable.
// Writers to the same session are serialized; readers are not.
type ConversationMemory struct {
	embedder ports.EmbeddingService
	store    ports.ConversationStore
	observer ports.MemoryObserver
	defaultK int
	log      *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex // sessionID -> writer lock
}

// NewConversationMemory creates a ConversationMemory. observer may be nil.
func NewConversationMemory(
	embedder ports.EmbeddingService,
	store ports.ConversationStore,
	observer ports.MemoryObserver,
	defaultK int,
	log *zap.Logger,
) *ConversationMemory {
	if defaultK <= 0 {
		defaultK = DefaultMemoryK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversationMemory{
		embedder: embedder,
		store:    store,
		observer: observer,
		defaultK: defaultK,
		log:      log.Named("conversation_memory"),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *ConversationMemory) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// RecordTurn embeds a finished exchange and appends it to the session's
// store. The embedding is computed before anything is written.
func (m *ConversationMemory) RecordTurn(ctx context.Context, sessionID, question, answer string, sources []string) error {
	const op = "conversation_memory.record_turn"

	turn := entities.ConversationTurn{
		ID:              uuid.NewString(),
		UserQuestion:    question,
		AssistantAnswer: answer,
		Sources:         append([]string(nil), sources...),
		CreatedAt:       m.now(),
	}

	emb, err := m.embedder.Embed(ctx, turn.SearchText())
	if err != nil {
		return m.writeFailed(ctx, sessionID, errs.Reclassify(errs.MemoryWrite, op, fmt.Errorf("embedding turn: %w", err)))
	}
	turn.Embedding = emb

	l := m.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	if err := m.store.Append(ctx, sessionID, turn); err != nil {
		return m.writeFailed(ctx, sessionID, errs.Reclassify(errs.MemoryWrite, op, fmt.Errorf("appending turn: %w", err)))
	}
	return nil
}

func (m *ConversationMemory) writeFailed(ctx context.Context, sessionID string, err error) error {
	m.log.Warn("failed to record conversation turn",
		zap.String("session_id", sessionID),
		zap.Error(err),
	)
	if m.observer != nil {
		m.observer.MemoryWriteFailed(ctx, sessionID, err)
	}
	return err
}

// RetrieveContext returns the turns most similar to question, formatted for
// the prompt. It never fails: a missing store or any read error yields an
// empty context.
func (m *ConversationMemory) RetrieveContext(ctx context.Context, sessionID, question string, k int) entities.MemoryContext {
	const op = "conversation_memory.retrieve_context"
	if k <= 0 {
		k = m.defaultK
	}

	ok, err := m.store.Exists(ctx, sessionID)
	if err != nil {
		m.readFailed(ctx, sessionID, errs.Reclassify(errs.MemoryRead, op, err))
		return entities.MemoryContext{}
	}
	if !ok {
		return entities.MemoryContext{}
	}

	emb, err := m.embedder.Embed(ctx, question)
	if err != nil {
		m.readFailed(ctx, sessionID, errs.Reclassify(errs.MemoryRead, op, fmt.Errorf("embedding query: %w", err)))
		return entities.MemoryContext{}
	}

	results, err := m.store.Search(ctx, sessionID, emb, k)
	if errors.Is(err, errs.ErrMemoryNotFound) {
		return entities.MemoryContext{}
	}
	if err != nil {
		m.readFailed(ctx, sessionID, errs.Reclassify(errs.MemoryRead, op, fmt.Errorf("searching turns: %w", err)))
		return entities.MemoryContext{}
	}

	blocks := make([]string, 0, len(results))
	sources := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, r.Turn.ContextBlock())
		sources = append(sources, r.Turn.Provenance())
	}
	if len(blocks) == 0 {
		return entities.MemoryContext{}
	}
	return entities.MemoryContext{
		Text:    strings.Join(blocks, memoryBlockSeparator),
		Sources: sources,
	}
}

func (m *ConversationMemory) readFailed(ctx context.Context, sessionID string, err error) {
	m.log.Warn("failed to retrieve conversation context",
		zap.String("session_id", sessionID),
		zap.Error(err),
	)
	if m.observer != nil {
		m.observer.MemoryReadFailed(ctx, sessionID, err)
	}
}

// Clear deletes the session's conversation memory. Clearing an empty or
// missing memory succeeds.
func (m *ConversationMemory) Clear(ctx context.Context, sessionID string) error {
	l := m.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	if err := m.store.Delete(ctx, sessionID); err != nil {
		return errs.E(errs.Internal, "conversation_memory.clear", err)
	}
	m.log.Info("conversation memory cleared", zap.String("session_id", sessionID))
	return nil
}

// Forget drops the writer lock of a deleted session.
func (m *ConversationMemory) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, sessionID)
}
