package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

func TestOTelObserver_CountsFailures(t *testing.T) {
	obs, err := NewOTelObserver()
	require.NoError(t, err)
	ctx := context.Background()

	obs.MemoryWriteFailed(ctx, "s1", errors.New("disk full"))
	obs.MemoryWriteFailed(ctx, "s2", errors.New("disk full"))
	obs.MemoryReadFailed(ctx, "s1", errors.New("locked"))

	assert.Equal(t, MemoryFailures{Writes: 2, Reads: 1}, obs.Snapshot())
}

func TestCause_NamesUnderlyingKind(t *testing.T) {
	embed := errs.E(errs.EmbeddingService, "gateway.embed", errors.New("status 400"))

	assert.Equal(t, "embedding service error",
		cause(errs.Reclassify(errs.MemoryWrite, "record_turn", fmt.Errorf("embedding turn: %w", embed))))
	assert.Equal(t, "internal error",
		cause(errs.Reclassify(errs.MemoryRead, "retrieve_context", errors.New("disk I/O error"))))
	assert.Equal(t, "internal error", cause(errors.New("plain")))
}

func TestOTelObserver_StartsAtZero(t *testing.T) {
	obs, err := NewOTelObserver()
	require.NoError(t, err)

	assert.Equal(t, MemoryFailures{}, obs.Snapshot())
}
