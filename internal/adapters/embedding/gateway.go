package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// GatewayConfig tunes retries and memoisation.
type GatewayConfig struct {
	MaxRetries     int           // attempts in total; <= 0 selects 3
	InitialBackoff time.Duration // first retry delay; <= 0 selects 200ms
	CacheTTL       time.Duration // <= 0 selects 10m
}

// Gateway implements ports.EmbeddingService on top of another one, retrying
// transient failures and remembering recent results by text.
type Gateway struct {
	next  ports.EmbeddingService
	cfg   GatewayConfig
	cache *cache.Cache
	log   *zap.Logger
}

// NewGateway wraps next.
func NewGateway(next ports.EmbeddingService, cfg GatewayConfig, log *zap.Logger) *Gateway {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		next:  next,
		cfg:   cfg,
		cache: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		log:   log.Named("embedding_gateway"),
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the embedding of text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, found := g.cache.Get(key); found {
		return v.([]float32), nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.InitialBackoff

	attempt := 0
	emb, err := backoff.Retry(ctx, func() ([]float32, error) {
		attempt++
		emb, err := g.next.Embed(ctx, text)
		if err == nil {
			return emb, nil
		}
		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		g.log.Debug("embedding attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(g.cfg.MaxRetries)))
	if err != nil {
		return nil, errs.E(errs.EmbeddingService, "embedding.embed", fmt.Errorf("after %d attempts: %w", attempt, err))
	}

	g.cache.Set(key, emb, cache.DefaultExpiration)
	return emb, nil
}

// EmbedBatch embeds texts in order.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := g.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

// retryable reports whether another attempt might succeed.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}
