package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// SQLiteConversationStore implements ports.ConversationStore with one sqlite
// file per session. Appends are single transactions; callers serialize
// writers per session.
type SQLiteConversationStore struct {
	root string
}

// NewSQLiteConversationStore creates a conversation store rooted at root.
func NewSQLiteConversationStore(root string) (*SQLiteConversationStore, error) {
	if root == "" {
		root = "./sessions"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &SQLiteConversationStore{root: root}, nil
}

const turnSchema = `
CREATE TABLE IF NOT EXISTS turns (
	id TEXT PRIMARY KEY,
	user_question TEXT NOT NULL,
	assistant_answer TEXT NOT NULL,
	sources TEXT NOT NULL,
	created_at TEXT NOT NULL,
	embedding BLOB NOT NULL
);
`

func (s *SQLiteConversationStore) path(sessionID string) (string, error) {
	dir, err := SessionDir(s.root, sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConversationMemoryFile), nil
}

// Append stores one turn. A failed or cancelled append rolls back, and a
// store created by the failed call is removed again.
func (s *SQLiteConversationStore) Append(ctx context.Context, sessionID string, turn entities.ConversationTurn) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	existed, err := fileExists(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	if err := appendTurn(ctx, path, turn); err != nil {
		if !existed {
			removeDB(path)
		}
		return err
	}
	return nil
}

func appendTurn(ctx context.Context, path string, turn entities.ConversationTurn) error {
	sources := turn.Sources
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}
	embeddingJSON, err := json.Marshal(turn.Embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}

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

	if _, err := tx.ExecContext(ctx, turnSchema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (id, user_question, assistant_answer, sources, created_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		turn.ID,
		turn.UserQuestion,
		turn.AssistantAnswer,
		string(sourcesJSON),
		turn.CreatedAt.UTC().Format(time.RFC3339Nano),
		embeddingJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	return nil
}

// Search finds the turns most similar to a query embedding.
func (s *SQLiteConversationStore) Search(ctx context.Context, sessionID string, embedding []float32, topK int) ([]entities.ScoredTurn, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	ok, err := fileExists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrMemoryNotFound
	}

	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT id, user_question, assistant_answer, sources, created_at, embedding
		FROM turns
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var results []entities.ScoredTurn
	for rows.Next() {
		var turn entities.ConversationTurn
		var sourcesJSON, createdAt string
		var embeddingJSON []byte

		err := rows.Scan(&turn.ID, &turn.UserQuestion, &turn.AssistantAnswer, &sourcesJSON, &createdAt, &embeddingJSON)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if err := json.Unmarshal(embeddingJSON, &turn.Embedding); err != nil {
			continue // Skip corrupted embeddings
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &turn.Sources); err != nil {
			turn.Sources = nil
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			turn.CreatedAt = ts.Local()
		}

		results = append(results, entities.ScoredTurn{
			Turn:  turn,
			Score: cosineSimilarity(embedding, turn.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Exists reports whether the session has a conversation store.
func (s *SQLiteConversationStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return false, err
	}
	return fileExists(path)
}

// Delete removes the session's conversation store.
func (s *SQLiteConversationStore) Delete(ctx context.Context, sessionID string) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	return removeDB(path)
}

// Count returns the number of stored turns, zero when the store is missing.
func (s *SQLiteConversationStore) Count(ctx context.Context, sessionID string) (int, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return 0, err
	}
	ok, err := fileExists(path)
	if err != nil || !ok {
		return 0, err
	}

	db, err := openReadOnly(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns").Scan(&count)
	return count, err
}
