package usecases

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/0xcro3dile/docchat-go/internal/adapters/session"
	"github.com/0xcro3dile/docchat-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
)

const testDims = 256

// hashEmbedder implements ports.EmbeddingService with a bag-of-words hash,
// so texts sharing words are close.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, testDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%testDims]++
	}
	return vec, nil
}

func (m *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		emb, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		result[i] = emb
	}
	return result, nil
}

// mockLLM implements ports.LLMService and records the prompts it receives.
type mockLLM struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
	models   []string
	block    bool // wait for ctx to end
}

func (m *mockLLM) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.models = append(m.models, modelID)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if m.err != nil {
		return "", m.err
	}
	if m.response != "" {
		return m.response, nil
	}
	return "mocked answer", nil
}

func (m *mockLLM) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// countingObserver implements ports.MemoryObserver.
type countingObserver struct {
	mu     sync.Mutex
	writes int
	reads  int
}

func (o *countingObserver) MemoryWriteFailed(ctx context.Context, sessionID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes++
}

func (o *countingObserver) MemoryReadFailed(ctx context.Context, sessionID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reads++
}

// brokenConversationStore implements ports.ConversationStore and fails
// every read and write.
type brokenConversationStore struct{}

var errDisk = errors.New("disk I/O error")

func (brokenConversationStore) Append(ctx context.Context, sessionID string, turn entities.ConversationTurn) error {
	return errDisk
}

func (brokenConversationStore) Search(ctx context.Context, sessionID string, embedding []float32, topK int) ([]entities.ScoredTurn, error) {
	return nil, errDisk
}

func (brokenConversationStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	return true, nil
}

func (brokenConversationStore) Delete(ctx context.Context, sessionID string) error {
	return nil
}

// mockParser implements ports.DocumentParser from canned pages.
type mockParser struct {
	pages map[string][]string
	err   error
}

func (m *mockParser) ParsePages(ctx context.Context, data []byte, filename string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.pages[filename], nil
}

func (m *mockParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// faultyRegistry is a real registry that fails chosen writes.
type faultyRegistry struct {
	*session.Registry
	failRole          string
	failMarkProcessed bool
}

var errRegistry = errors.New("registry write failed")

func (r *faultyRegistry) AppendMessage(id, role, content string) error {
	if role == r.failRole {
		return errRegistry
	}
	return r.Registry.AppendMessage(id, role, content)
}

func (r *faultyRegistry) MarkProcessed(id string) error {
	if r.failMarkProcessed {
		return errRegistry
	}
	return r.Registry.MarkProcessed(id)
}

// testStack wires the usecases over sqlite stores in a temp dir.
type testStack struct {
	root     string
	embedder *hashEmbedder
	llm      *mockLLM
	observer *countingObserver
	docs     *vectordb.SQLiteDocumentIndex
	turns    *vectordb.SQLiteConversationStore
	registry *session.Registry
	index    *DocumentIndex
	memory   *ConversationMemory
	composer *Composer
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	root := t.TempDir()

	docs, err := vectordb.NewSQLiteDocumentIndex(root)
	if err != nil {
		t.Fatalf("document index: %v", err)
	}
	turns, err := vectordb.NewSQLiteConversationStore(root)
	if err != nil {
		t.Fatalf("conversation store: %v", err)
	}

	s := &testStack{
		root:     root,
		embedder: &hashEmbedder{},
		llm:      &mockLLM{},
		observer: &countingObserver{},
		docs:     docs,
		turns:    turns,
		registry: session.NewRegistry(),
	}
	s.index = NewDocumentIndex(s.embedder, docs, 2, 0, nil)
	s.memory = NewConversationMemory(s.embedder, turns, s.observer, 0, nil)
	s.composer = NewComposer(s.index, s.memory, s.llm, s.registry, ComposerConfig{}, nil)
	return s
}

// build indexes pages for sessionID and registers the session.
func (s *testStack) build(t *testing.T, sessionID string, pages ...entities.Page) {
	t.Helper()
	chunks := NewSplitter(0, -1).SplitPages(pages)
	if err := s.index.Build(context.Background(), sessionID, chunks); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	s.registry.Create(sessionID, nil)
	s.registry.MarkProcessed(sessionID)
}
