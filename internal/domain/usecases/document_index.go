package usecases

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// DefaultDocumentK is the number of chunks retrieved per question.
const DefaultDocumentK = 4

const defaultEmbedConcurrency = 4

// DocumentIndex builds and queries a session's document vectors.
type DocumentIndex struct {
	embedder    ports.EmbeddingService
	store       ports.DocumentIndexStore
	concurrency int
	defaultK    int
	log         *zap.Logger
}

// NewDocumentIndex creates a DocumentIndex with injected dependencies.
func NewDocumentIndex(
	embedder ports.EmbeddingService,
	store ports.DocumentIndexStore,
	concurrency, defaultK int,
	log *zap.Logger,
) *DocumentIndex {
	if concurrency <= 0 {
		concurrency = defaultEmbedConcurrency
	}
	if defaultK <= 0 {
		defaultK = DefaultDocumentK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentIndex{
		embedder:    embedder,
		store:       store,
		concurrency: concurrency,
		defaultK:    defaultK,
		log:         log.Named("document_index"),
	}
}

// Build embeds every chunk and persists the whole index in one step.
// On failure no index is left behind.
func (d *DocumentIndex) Build(ctx context.Context, sessionID string, chunks []entities.Chunk) error {
	const op = "document_index.build"
	if !entities.ValidSessionID(sessionID) {
		return errs.E(errs.InvalidInput, op, fmt.Errorf("invalid session id %q", sessionID))
	}
	if len(chunks) == 0 {
		return errs.E(errs.InvalidInput, op, errors.New("no text could be extracted from the documents"))
	}

	embedded := make([]entities.Chunk, len(chunks))
	copy(embedded, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i := range embedded {
		g.Go(func() error {
			emb, err := d.embedder.Embed(gctx, embedded[i].Content)
			if err != nil {
				return fmt.Errorf("embedding chunk %d: %w", i, err)
			}
			embedded[i].Embedding = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errs.E(errs.EmbeddingService, op, err)
	}

	if err := d.store.Save(ctx, sessionID, embedded); err != nil {
		return errs.E(errs.Internal, op, fmt.Errorf("saving index: %w", err))
	}

	d.log.Info("index built",
		zap.String("session_id", sessionID),
		zap.Int("chunks", len(embedded)),
	)
	return nil
}

// Query returns the k chunks nearest to the question. k <= 0 selects the
// configured default.
func (d *DocumentIndex) Query(ctx context.Context, sessionID, question string, k int) ([]entities.ScoredChunk, error) {
	const op = "document_index.query"
	if k <= 0 {
		k = d.defaultK
	}

	ok, err := d.store.Exists(ctx, sessionID)
	if err != nil {
		return nil, errs.E(errs.Internal, op, err)
	}
	if !ok {
		return nil, errs.E(errs.IndexNotFound, op, errs.ErrIndexNotFound)
	}

	queryEmbedding, err := d.embedder.Embed(ctx, question)
	if err != nil {
		return nil, errs.E(errs.EmbeddingService, op, fmt.Errorf("embedding query: %w", err))
	}

	results, err := d.store.Search(ctx, sessionID, queryEmbedding, k)
	if err != nil {
		if errors.Is(err, errs.ErrIndexNotFound) {
			return nil, errs.E(errs.IndexNotFound, op, err)
		}
		return nil, errs.E(errs.Internal, op, fmt.Errorf("searching vectors: %w", err))
	}
	return results, nil
}

// Exists reports whether the session has a built index.
func (d *DocumentIndex) Exists(ctx context.Context, sessionID string) (bool, error) {
	return d.store.Exists(ctx, sessionID)
}

// Files lists the distinct documents of a built index.
func (d *DocumentIndex) Files(ctx context.Context, sessionID string) ([]string, error) {
	files, err := d.store.Files(ctx, sessionID)
	if errors.Is(err, errs.ErrIndexNotFound) {
		return nil, errs.E(errs.IndexNotFound, "document_index.files", err)
	}
	return files, err
}

// Delete removes the session's index.
func (d *DocumentIndex) Delete(ctx context.Context, sessionID string) error {
	if err := d.store.Delete(ctx, sessionID); err != nil {
		return errs.E(errs.Internal, "document_index.delete", err)
	}
	return nil
}
