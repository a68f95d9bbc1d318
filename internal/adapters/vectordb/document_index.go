package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// SQLiteDocumentIndex implements ports.DocumentIndexStore with one sqlite
// file per session. The file is written once and only read afterwards.
type SQLiteDocumentIndex struct {
	root string
}

// NewSQLiteDocumentIndex creates a document index store rooted at root.
func NewSQLiteDocumentIndex(root string) (*SQLiteDocumentIndex, error) {
	if root == "" {
		root = "./sessions"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &SQLiteDocumentIndex{root: root}, nil
}

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	file TEXT NOT NULL,
	page INTEGER NOT NULL,
	position INTEGER NOT NULL,
	content TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file);
`

func (s *SQLiteDocumentIndex) path(sessionID string) (string, error) {
	dir, err := SessionDir(s.root, sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DocumentIndexFile), nil
}

// Save writes all chunks into a temporary file and renames it into place,
// so a reader sees either the complete index or none.
func (s *SQLiteDocumentIndex) Save(ctx context.Context, sessionID string, chunks []entities.Chunk) error {
	final, err := s.path(sessionID)
	if err != nil {
		return err
	}
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+DocumentIndexFile+"."+uuid.NewString()+".tmp")
	if err := writeChunks(ctx, tmp, chunks); err != nil {
		removeDB(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		removeDB(tmp)
		return fmt.Errorf("publishing index: %w", err)
	}
	return nil
}

func writeChunks(ctx context.Context, path string, chunks []entities.Chunk) error {
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, chunkSchema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file, page, position, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		embeddingJSON, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			chunk.ID,
			chunk.File,
			chunk.Page,
			chunk.Position,
			chunk.Content,
			embeddingJSON,
		)
		if err != nil {
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index: %w", err)
	}
	return db.Close()
}

// Search finds the most similar chunks to a query embedding.
func (s *SQLiteDocumentIndex) Search(ctx context.Context, sessionID string, embedding []float32, topK int) ([]entities.ScoredChunk, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	ok, err := fileExists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrIndexNotFound
	}

	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	// Brute force over the session's chunks; a session holds a handful of PDFs.
	rows, err := db.QueryContext(ctx, `
		SELECT id, file, page, position, content, embedding
		FROM chunks
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var results []entities.ScoredChunk
	for rows.Next() {
		var chunk entities.Chunk
		var embeddingJSON []byte

		err := rows.Scan(&chunk.ID, &chunk.File, &chunk.Page, &chunk.Position, &chunk.Content, &embeddingJSON)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		if err := json.Unmarshal(embeddingJSON, &chunk.Embedding); err != nil {
			continue // Skip corrupted embeddings
		}

		results = append(results, entities.ScoredChunk{
			Chunk: chunk,
			Score: cosineSimilarity(embedding, chunk.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Exists reports whether the session has a published index.
func (s *SQLiteDocumentIndex) Exists(ctx context.Context, sessionID string) (bool, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return false, err
	}
	return fileExists(path)
}

// Files lists the session's source files in ingestion order.
func (s *SQLiteDocumentIndex) Files(ctx context.Context, sessionID string) ([]string, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	ok, err := fileExists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrIndexNotFound
	}

	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT file FROM chunks GROUP BY file ORDER BY MIN(rowid)`)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Delete removes the session's index.
func (s *SQLiteDocumentIndex) Delete(ctx context.Context, sessionID string) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	return removeDB(path)
}
