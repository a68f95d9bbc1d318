package usecases

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// ComposerConfig tunes how the composer builds prompts.
type ComposerConfig struct {
	DocumentK       int
	MemoryK         int
	DefaultTemplate string // configured default; empty selects DefaultTemplate
	StrictTemplates bool   // reject templates with missing placeholders
}

// Composer answers a question from the session's documents and its
// conversation memory.
type Composer struct {
	index    *DocumentIndex
	memory   *ConversationMemory
	llm      ports.LLMService
	registry ports.SessionRegistry
	cfg      ComposerConfig
	log      *zap.Logger
}

// NewComposer creates a Composer with injected dependencies.
func NewComposer(
	index *DocumentIndex,
	memory *ConversationMemory,
	llm ports.LLMService,
	registry ports.SessionRegistry,
	cfg ComposerConfig,
	log *zap.Logger,
) *Composer {
	if cfg.DocumentK <= 0 {
		cfg.DocumentK = DefaultDocumentK
	}
	if cfg.MemoryK <= 0 {
		cfg.MemoryK = DefaultMemoryK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{
		index:    index,
		memory:   memory,
		llm:      llm,
		registry: registry,
		cfg:      cfg,
		log:      log.Named("composer"),
	}
}

// Answer runs one chat turn: retrieve, compose, complete, remember.
func (c *Composer) Answer(ctx context.Context, sessionID string, req entities.ChatRequest) (*entities.Answer, error) {
	const op = "composer.answer"
	log := c.log.With(zap.String("session_id", sessionID))

	// 1. The session must have been processed.
	ok, err := c.index.Exists(ctx, sessionID)
	if err != nil {
		return nil, errs.E(errs.Internal, op, err)
	}
	if !ok {
		return nil, errs.E(errs.IndexNotFound, op, errs.ErrIndexNotFound)
	}

	// 2. Document passages.
	hits, err := c.index.Query(ctx, sessionID, req.Question, c.cfg.DocumentK)
	if err != nil {
		return nil, err
	}

	// 3. Conversation memory.
	var mem entities.MemoryContext
	if req.UseMemory {
		mem = c.memory.RetrieveContext(ctx, sessionID, req.Question, c.cfg.MemoryK)
	}

	// 4-5. Template.
	template, err := c.template(sessionID, req.PromptOverride, log)
	if err != nil {
		return nil, errs.E(errs.InvalidInput, op, err)
	}

	// 6. Completion.
	passages := make([]string, len(hits))
	for i, h := range hits {
		passages[i] = h.Chunk.Content
	}
	prompt := RenderPrompt(template, strings.Join(passages, "\n\n"), mem.Text, req.Question)

	text, err := c.llm.Complete(ctx, prompt, req.ModelID)
	if err != nil {
		return nil, errs.E(errs.ModelService, op, fmt.Errorf("generating response: %w", err))
	}

	// 7. Citations.
	sources := citations(hits)

	// 8. Remember the exchange. A failure here never fails the answer.
	if req.UseMemory {
		if err := c.memory.RecordTurn(ctx, sessionID, req.Question, text, sources); err != nil {
			log.Debug("continuing without recording turn", zap.Error(err))
		}
	}

	return &entities.Answer{
		Text:          text,
		Sources:       sources,
		MemorySources: mem.Sources,
	}, nil
}

// template resolves the request override, then the session override, then
// the configured default, then the built-in one.
func (c *Composer) template(sessionID, override string, log *zap.Logger) (string, error) {
	template := override
	if template == "" && c.registry != nil {
		template, _ = c.registry.SystemPrompt(sessionID)
	}
	if template == "" {
		template = c.cfg.DefaultTemplate
	}
	if template == "" {
		template = DefaultTemplate
	}

	if c.cfg.StrictTemplates {
		if err := ValidateTemplate(template); err != nil {
			return "", err
		}
		return template, nil
	}

	completed, missing := CompleteTemplate(template)
	for _, p := range missing {
		log.Warn("prompt template missing placeholder, appending section", zap.String("placeholder", p))
	}
	return completed, nil
}

// citations returns the distinct "{file} (page {n})" strings in first-seen order.
func citations(hits []entities.ScoredChunk) []string {
	seen := make(map[string]bool, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		c := h.Chunk.Citation()
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// PreviewMemory returns the memory context that would accompany question.
func (c *Composer) PreviewMemory(ctx context.Context, sessionID, question string) entities.MemoryContext {
	return c.memory.RetrieveContext(ctx, sessionID, question, c.cfg.MemoryK)
}
