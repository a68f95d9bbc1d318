package vectordb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

func TestSQLiteDocumentIndex_SaveAndSearch(t *testing.T) {
	store, err := NewSQLiteDocumentIndex(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	chunks := []entities.Chunk{
		{ID: "c1", File: "a.pdf", Page: 3, Content: "hello", Embedding: []float32{1.0, 0.0, 0.0}},
		{ID: "c2", File: "a.pdf", Page: 4, Content: "world", Embedding: []float32{0.0, 1.0, 0.0}},
	}

	if err := store.Save(ctx, "s1", chunks); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	results, err := store.Search(ctx, "s1", []float32{1.0, 0.0, 0.0}, 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "c1" {
		t.Error("c1 should be top result")
	}
	if got := results[0].Chunk.Citation(); got != "a.pdf (page 3)" {
		t.Errorf("metadata not preserved, got citation %q", got)
	}
}

func TestSQLiteDocumentIndex_MissingIndex(t *testing.T) {
	store, _ := NewSQLiteDocumentIndex(t.TempDir())
	ctx := context.Background()

	_, err := store.Search(ctx, "nope", []float32{1, 0, 0}, 4)
	if !errors.Is(err, errs.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}

	ok, err := store.Exists(ctx, "nope")
	if err != nil || ok {
		t.Errorf("expected missing index, got ok=%v err=%v", ok, err)
	}
}

func TestSQLiteDocumentIndex_SessionIsolation(t *testing.T) {
	store, _ := NewSQLiteDocumentIndex(t.TempDir())
	ctx := context.Background()

	store.Save(ctx, "s1", []entities.Chunk{{ID: "a", File: "one.pdf", Page: 1, Embedding: []float32{1, 0}}})
	store.Save(ctx, "s2", []entities.Chunk{{ID: "b", File: "two.pdf", Page: 1, Embedding: []float32{1, 0}}})

	results, err := store.Search(ctx, "s1", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	for _, r := range results {
		if r.Chunk.File != "one.pdf" {
			t.Errorf("session s1 leaked chunk from %s", r.Chunk.File)
		}
	}
}

func TestSQLiteDocumentIndex_FailedSaveLeavesNoIndex(t *testing.T) {
	store, _ := NewSQLiteDocumentIndex(t.TempDir())
	ctx := context.Background()

	// Duplicate primary keys abort the transaction halfway through.
	err := store.Save(ctx, "s1", []entities.Chunk{
		{ID: "dup", File: "a.pdf", Page: 1, Embedding: []float32{1}},
		{ID: "dup", File: "a.pdf", Page: 2, Embedding: []float32{1}},
	})
	if err == nil {
		t.Fatal("expected save to fail")
	}

	if ok, _ := store.Exists(ctx, "s1"); ok {
		t.Error("failed save must not publish an index")
	}
	entries, _ := os.ReadDir(filepath.Join(store.root, "s1"))
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %d", len(entries))
	}
}

func TestSQLiteDocumentIndex_Files(t *testing.T) {
	store, _ := NewSQLiteDocumentIndex(t.TempDir())
	ctx := context.Background()

	store.Save(ctx, "s1", []entities.Chunk{
		{ID: "1", File: "b.pdf", Page: 1, Embedding: []float32{1}},
		{ID: "2", File: "a.pdf", Page: 1, Embedding: []float32{1}},
		{ID: "3", File: "b.pdf", Page: 2, Embedding: []float32{1}},
	})

	files, err := store.Files(ctx, "s1")
	if err != nil {
		t.Fatalf("files failed: %v", err)
	}
	if len(files) != 2 || files[0] != "b.pdf" || files[1] != "a.pdf" {
		t.Errorf("unexpected files: %v", files)
	}
}

func TestSQLiteDocumentIndex_RejectsUnsafeSessionID(t *testing.T) {
	store, _ := NewSQLiteDocumentIndex(t.TempDir())

	if err := store.Save(context.Background(), "../escape", nil); err == nil {
		t.Error("expected unsafe session id to be rejected")
	}
}

func TestSQLiteConversationStore_AppendAndSearch(t *testing.T) {
	store, err := NewSQLiteConversationStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)

	store.Append(ctx, "s1", entities.ConversationTurn{
		ID: "t1", UserQuestion: "q1", AssistantAnswer: "a1",
		Sources: []string{"a.pdf (page 1)"}, CreatedAt: created, Embedding: []float32{1, 0},
	})
	store.Append(ctx, "s1", entities.ConversationTurn{
		ID: "t2", UserQuestion: "q2", AssistantAnswer: "a2", CreatedAt: created, Embedding: []float32{0, 1},
	})

	results, err := store.Search(ctx, "s1", []float32{0, 1}, 3)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Turn.ID != "t2" {
		t.Errorf("t2 should be top result, got %s", results[0].Turn.ID)
	}
	if !results[1].Turn.CreatedAt.Equal(created) {
		t.Errorf("timestamp not preserved: %v", results[1].Turn.CreatedAt)
	}
	if len(results[1].Turn.Sources) != 1 {
		t.Errorf("sources not preserved: %v", results[1].Turn.Sources)
	}
}

func TestSQLiteConversationStore_MissingStore(t *testing.T) {
	store, _ := NewSQLiteConversationStore(t.TempDir())

	_, err := store.Search(context.Background(), "s1", []float32{1}, 3)
	if !errors.Is(err, errs.ErrMemoryNotFound) {
		t.Errorf("expected ErrMemoryNotFound, got %v", err)
	}
}

func TestSQLiteConversationStore_DeleteIsIdempotent(t *testing.T) {
	store, _ := NewSQLiteConversationStore(t.TempDir())
	ctx := context.Background()

	store.Append(ctx, "s1", entities.ConversationTurn{ID: "t1", Embedding: []float32{1}})

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}

	count, _ := store.Count(ctx, "s1")
	if count != 0 {
		t.Errorf("expected 0 turns after delete, got %d", count)
	}
}

func TestSQLiteConversationStore_CancelledAppendWritesNothing(t *testing.T) {
	store, _ := NewSQLiteConversationStore(t.TempDir())
	ctx := context.Background()

	store.Append(ctx, "s1", entities.ConversationTurn{ID: "t1", Embedding: []float32{1}})

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := store.Append(cancelled, "s1", entities.ConversationTurn{ID: "t2", Embedding: []float32{1}}); err == nil {
		t.Fatal("expected cancelled append to fail")
	}

	count, err := store.Count(ctx, "s1")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected existing store untouched, got %d turns", count)
	}
}

func TestSQLiteConversationStore_FailedFirstAppendLeavesNoStore(t *testing.T) {
	store, _ := NewSQLiteConversationStore(t.TempDir())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	store.Append(cancelled, "s1", entities.ConversationTurn{ID: "t1", Embedding: []float32{1}})

	_, err := store.Search(context.Background(), "s1", []float32{1}, 3)
	if !errors.Is(err, errs.ErrMemoryNotFound) {
		t.Errorf("expected no store after failed first append, got %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	same := cosineSimilarity(a, b)
	diff := cosineSimilarity(a, c)

	if same != 1.0 {
		t.Errorf("same vectors should have score 1.0, got %f", same)
	}
	if diff != 0.0 {
		t.Errorf("orthogonal vectors should have score 0.0, got %f", diff)
	}
	if cosineSimilarity(a, []float32{1, 0}) != 0 {
		t.Error("mismatched dimensions should score 0")
	}
}
