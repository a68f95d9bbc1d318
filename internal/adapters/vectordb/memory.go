package vectordb

import (
	"context"
	"sort"
	"sync"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// InMemoryDocumentIndex is a volatile ports.DocumentIndexStore, selected with
// storage.backend "memory". Sessions are still keyed separately.
type InMemoryDocumentIndex struct {
	mu       sync.RWMutex
	sessions map[string][]entities.Chunk // sessionID -> chunks
}

// NewInMemoryDocumentIndex creates an empty in-memory document index.
func NewInMemoryDocumentIndex() *InMemoryDocumentIndex {
	return &InMemoryDocumentIndex{sessions: make(map[string][]entities.Chunk)}
}

// Save replaces the session's chunks.
func (s *InMemoryDocumentIndex) Save(ctx context.Context, sessionID string, chunks []entities.Chunk) error {
	stored := make([]entities.Chunk, len(chunks))
	copy(stored, chunks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = stored
	return nil
}

// Search finds the most similar chunks to a query embedding.
func (s *InMemoryDocumentIndex) Search(ctx context.Context, sessionID string, embedding []float32, topK int) ([]entities.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, ok := s.sessions[sessionID]
	if !ok {
		return nil, errs.ErrIndexNotFound
	}

	results := make([]entities.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, entities.ScoredChunk{
			Chunk: chunk,
			Score: cosineSimilarity(embedding, chunk.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Exists reports whether the session has chunks.
func (s *InMemoryDocumentIndex) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok, nil
}

// Files lists the session's source files in ingestion order.
func (s *InMemoryDocumentIndex) Files(ctx context.Context, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, ok := s.sessions[sessionID]
	if !ok {
		return nil, errs.ErrIndexNotFound
	}
	seen := make(map[string]bool)
	var files []string
	for _, c := range chunks {
		if !seen[c.File] {
			seen[c.File] = true
			files = append(files, c.File)
		}
	}
	return files, nil
}

// Delete removes the session's chunks.
func (s *InMemoryDocumentIndex) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// InMemoryConversationStore is a volatile ports.ConversationStore.
type InMemoryConversationStore struct {
	mu       sync.RWMutex
	sessions map[string][]entities.ConversationTurn
}

// NewInMemoryConversationStore creates an empty in-memory conversation store.
func NewInMemoryConversationStore() *InMemoryConversationStore {
	return &InMemoryConversationStore{sessions: make(map[string][]entities.ConversationTurn)}
}

// Append adds one turn to the session.
func (s *InMemoryConversationStore) Append(ctx context.Context, sessionID string, turn entities.ConversationTurn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], turn)
	return nil
}

// Search finds the turns most similar to a query embedding.
func (s *InMemoryConversationStore) Search(ctx context.Context, sessionID string, embedding []float32, topK int) ([]entities.ScoredTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.sessions[sessionID]
	if !ok {
		return nil, errs.ErrMemoryNotFound
	}

	results := make([]entities.ScoredTurn, 0, len(turns))
	for _, turn := range turns {
		results = append(results, entities.ScoredTurn{
			Turn:  turn,
			Score: cosineSimilarity(embedding, turn.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Exists reports whether the session has turns.
func (s *InMemoryConversationStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok, nil
}

// Delete removes all turns of the session.
func (s *InMemoryConversationStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Count returns the number of stored turns.
func (s *InMemoryConversationStore) Count(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID]), nil
}
