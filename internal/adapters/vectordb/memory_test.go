package vectordb

import (
	"context"
	"errors"
	"testing"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

func TestInMemoryDocumentIndex_SaveAndSearch(t *testing.T) {
	store := NewInMemoryDocumentIndex()
	ctx := context.Background()

	chunks := []entities.Chunk{
		{ID: "c1", File: "b.pdf", Page: 1, Content: "hello", Embedding: []float32{1, 0, 0}},
		{ID: "c2", File: "a.pdf", Page: 2, Content: "world", Embedding: []float32{0, 1, 0}},
		{ID: "c3", File: "b.pdf", Page: 5, Content: "again", Embedding: []float32{0.9, 0.1, 0}},
	}
	if err := store.Save(ctx, "s1", chunks); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	results, err := store.Search(ctx, "s1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 || results[0].Chunk.ID != "c1" || results[1].Chunk.ID != "c3" {
		t.Errorf("unexpected ranking: %+v", results)
	}

	files, _ := store.Files(ctx, "s1")
	if len(files) != 2 || files[0] != "b.pdf" || files[1] != "a.pdf" {
		t.Errorf("files should keep ingestion order, got %v", files)
	}
}

func TestInMemoryDocumentIndex_IsolationAndDelete(t *testing.T) {
	store := NewInMemoryDocumentIndex()
	ctx := context.Background()

	store.Save(ctx, "s1", []entities.Chunk{{ID: "c1", File: "a.pdf", Embedding: []float32{1, 0}}})

	if _, err := store.Search(ctx, "s2", []float32{1, 0}, 4); !errors.Is(err, errs.ErrIndexNotFound) {
		t.Errorf("other sessions should see no index, got %v", err)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if ok, _ := store.Exists(ctx, "s1"); ok {
		t.Error("index should be gone after delete")
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
}

func TestInMemoryDocumentIndex_SaveCopiesInput(t *testing.T) {
	store := NewInMemoryDocumentIndex()
	ctx := context.Background()

	chunks := []entities.Chunk{{ID: "c1", File: "a.pdf", Embedding: []float32{1, 0}}}
	store.Save(ctx, "s1", chunks)
	chunks[0].ID = "mutated"

	results, _ := store.Search(ctx, "s1", []float32{1, 0}, 1)
	if results[0].Chunk.ID != "c1" {
		t.Error("stored chunks should not alias the caller's slice")
	}
}

func TestInMemoryConversationStore_AppendSearchDelete(t *testing.T) {
	store := NewInMemoryConversationStore()
	ctx := context.Background()

	if _, err := store.Search(ctx, "s1", []float32{1, 0}, 3); !errors.Is(err, errs.ErrMemoryNotFound) {
		t.Errorf("expected ErrMemoryNotFound, got %v", err)
	}

	store.Append(ctx, "s1", entities.ConversationTurn{ID: "t1", UserQuestion: "capital?", Embedding: []float32{1, 0}})
	store.Append(ctx, "s1", entities.ConversationTurn{ID: "t2", UserQuestion: "name?", Embedding: []float32{0, 1}})

	results, err := store.Search(ctx, "s1", []float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].Turn.ID != "t2" {
		t.Errorf("unexpected result: %+v", results)
	}
	if n, _ := store.Count(ctx, "s1"); n != 2 {
		t.Errorf("expected 2 turns, got %d", n)
	}

	store.Delete(ctx, "s1")
	if ok, _ := store.Exists(ctx, "s1"); ok {
		t.Error("store should be gone after delete")
	}
}

func TestInMemoryConversationStore_CancelledAppend(t *testing.T) {
	store := NewInMemoryConversationStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Append(ctx, "s1", entities.ConversationTurn{ID: "t1"}); err == nil {
		t.Error("cancelled append should fail")
	}
	if ok, _ := store.Exists(context.Background(), "s1"); ok {
		t.Error("cancelled append should not create the store")
	}
}
