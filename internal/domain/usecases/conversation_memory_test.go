package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

func TestConversationMemory_MissingStoreIsEmpty(t *testing.T) {
	s := newTestStack(t)

	mem := s.memory.RetrieveContext(context.Background(), "s1", "anything", 3)

	assert.True(t, mem.Empty())
	assert.Empty(t, mem.Sources)
	assert.Zero(t, s.observer.reads)
	assert.Zero(t, s.embedder.calls, "no embedding needed without a store")
}

func TestConversationMemory_RecordAndRetrieve(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	s.memory.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local) }

	err := s.memory.RecordTurn(ctx, "s1", "What is the capital of France?", "Paris.", []string{"a.pdf (page 3)"})
	require.NoError(t, err)

	mem := s.memory.RetrieveContext(ctx, "s1", "capital of France", 3)

	assert.Equal(t, "Previous Q: What is the capital of France?\nPrevious A: Paris.\nSources: a.pdf (page 3)", mem.Text)
	assert.Equal(t, []string{"Previous conversation from 2024-05-06 07:08:09"}, mem.Sources)
}

func TestConversationMemory_RecallRanksRelevantTurnFirst(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.memory.RecordTurn(ctx, "s1", "How tall is Mount Everest?", "About 8849 meters.", nil)
	s.memory.RecordTurn(ctx, "s1", "Who wrote Hamlet?", "Shakespeare.", nil)

	mem := s.memory.RetrieveContext(ctx, "s1", "Who wrote Hamlet?", 1)

	assert.Contains(t, mem.Text, "Shakespeare")
	assert.NotContains(t, mem.Text, "Everest")
}

func TestConversationMemory_BlocksJoinedWithSeparator(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.memory.RecordTurn(ctx, "s1", "q1", "a1", nil)
	s.memory.RecordTurn(ctx, "s1", "q2", "a2", nil)

	mem := s.memory.RetrieveContext(ctx, "s1", "q", 3)

	assert.Equal(t, 1, strings.Count(mem.Text, memoryBlockSeparator))
	assert.Len(t, mem.Sources, 2)
}

func TestConversationMemory_ClearEmptiesAndIsIdempotent(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	require.NoError(t, s.memory.RecordTurn(ctx, "s1", "q", "a", nil))
	require.NoError(t, s.memory.Clear(ctx, "s1"))

	assert.True(t, s.memory.RetrieveContext(ctx, "s1", "q", 3).Empty())
	require.NoError(t, s.memory.Clear(ctx, "s1"))
	require.NoError(t, s.memory.Clear(ctx, "never-used"))
}

func TestConversationMemory_SessionIsolation(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.memory.RecordTurn(ctx, "s1", "My name is Alex", "Hello Alex", nil)

	mem := s.memory.RetrieveContext(ctx, "s2", "What is my name?", 3)
	assert.True(t, mem.Empty())
}

func TestConversationMemory_EmbeddingFailureWritesNothing(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	s.embedder.err = errors.New("embedding service down")

	err := s.memory.RecordTurn(ctx, "s1", "q", "a", nil)

	assert.True(t, errs.Is(err, errs.MemoryWrite))
	assert.Equal(t, 1, s.observer.writes)
	ok, _ := s.turns.Exists(ctx, "s1")
	assert.False(t, ok)
}

func TestConversationMemory_ClassifiedEmbeddingFailuresStayMemoryErrors(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	require.NoError(t, s.memory.RecordTurn(ctx, "s1", "My name is Alex", "Hello Alex", nil))

	s.embedder.err = errs.E(errs.EmbeddingService, "gateway.embed", errors.New("status 400"))

	err := s.memory.RecordTurn(ctx, "s1", "q", "a", nil)
	assert.True(t, errs.Is(err, errs.MemoryWrite), "got %v", errs.KindOf(err))
	assert.Equal(t, 1, s.observer.writes)

	mem := s.memory.RetrieveContext(ctx, "s1", "What is my name?", 3)
	assert.True(t, mem.Empty())
	assert.Equal(t, 1, s.observer.reads)
}

func TestConversationMemory_ReadFailureDegradesToEmpty(t *testing.T) {
	obs := &countingObserver{}
	m := NewConversationMemory(&hashEmbedder{}, brokenConversationStore{}, obs, 3, nil)

	mem := m.RetrieveContext(context.Background(), "s1", "q", 3)

	assert.True(t, mem.Empty())
	assert.Equal(t, 1, obs.reads)
}

func TestConversationMemory_StoreWriteFailureIsClassified(t *testing.T) {
	obs := &countingObserver{}
	m := NewConversationMemory(&hashEmbedder{}, brokenConversationStore{}, obs, 3, nil)

	err := m.RecordTurn(context.Background(), "s1", "q", "a", nil)

	assert.True(t, errs.Is(err, errs.MemoryWrite))
	assert.True(t, errors.Is(err, errDisk))
	assert.Equal(t, 1, obs.writes)
}

func TestConversationMemory_ConcurrentRecordsAllLand(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.memory.RecordTurn(ctx, "s1", fmt.Sprintf("question %d", i), "answer", nil)
		}()
	}
	wg.Wait()

	count, err := s.turns.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 20, count)
	assert.Zero(t, s.observer.writes)
}
