package usecases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// ServiceConfig holds the facade's settings.
type ServiceConfig struct {
	StorageRoot     string // session directories live here; empty for volatile storage
	RequestTimeout  time.Duration
	Models          []entities.ModelOption
	DefaultTemplate string
	StrictTemplates bool
}

// ChatService is the set of operations the transport layer consumes.
type ChatService struct {
	registry ports.SessionRegistry
	parser   ports.DocumentParser
	splitter *Splitter
	index    *DocumentIndex
	memory   *ConversationMemory
	composer *Composer
	cfg      ServiceConfig
	log      *zap.Logger
}

// NewChatService wires the facade.
func NewChatService(
	registry ports.SessionRegistry,
	parser ports.DocumentParser,
	splitter *Splitter,
	index *DocumentIndex,
	memory *ConversationMemory,
	composer *Composer,
	cfg ServiceConfig,
	log *zap.Logger,
) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DefaultTemplate == "" {
		cfg.DefaultTemplate = DefaultTemplate
	}
	return &ChatService{
		registry: registry,
		parser:   parser,
		splitter: splitter,
		index:    index,
		memory:   memory,
		composer: composer,
		cfg:      cfg,
		log:      log.Named("chat_service"),
	}
}

// Ingest creates a session from uploaded PDFs and builds its index.
func (s *ChatService) Ingest(ctx context.Context, uploads []entities.Upload) (string, error) {
	const op = "chat_service.ingest"
	if len(uploads) == 0 {
		return "", errs.E(errs.InvalidInput, op, errors.New("no files uploaded"))
	}
	names := make([]string, len(uploads))
	for i, u := range uploads {
		if !strings.HasSuffix(strings.ToLower(u.Name), ".pdf") {
			return "", errs.E(errs.InvalidInput, op, fmt.Errorf("%s is not a PDF file", u.Name))
		}
		names[i] = u.Name
	}

	var pages []entities.Page
	for doc, u := range uploads {
		texts, err := s.parser.ParsePages(ctx, u.Data, u.Name)
		if err != nil {
			return "", errs.E(errs.Internal, op, fmt.Errorf("parsing %s: %w", u.Name, err))
		}
		for i, text := range texts {
			pages = append(pages, entities.Page{Document: doc, File: u.Name, Number: i + 1, Text: text})
		}
	}

	sessionID := uuid.NewString()
	if err := s.ProcessDocuments(ctx, sessionID, names, s.splitter.SplitPages(pages)); err != nil {
		return "", err
	}
	return sessionID, nil
}

// ProcessDocuments builds the session's document index and registers the
// session as processed. A failed build leaves no session behind.
func (s *ChatService) ProcessDocuments(ctx context.Context, sessionID string, files []string, chunks []entities.Chunk) error {
	created := false
	if !s.registry.Exists(sessionID) {
		if err := s.registry.Create(sessionID, files); err != nil {
			return err
		}
		created = true
	}

	if err := s.index.Build(ctx, sessionID, chunks); err != nil {
		if created {
			s.registry.Delete(sessionID)
		}
		return err
	}
	if err := s.registry.MarkProcessed(sessionID); err != nil {
		return err
	}

	s.log.Info("documents processed",
		zap.String("session_id", sessionID),
		zap.Strings("files", files),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

func (s *ChatService) requireSession(op, sessionID string) error {
	if !s.registry.Exists(sessionID) {
		return errs.E(errs.SessionNotFound, op, fmt.Errorf("session not found: %s", sessionID))
	}
	return nil
}

// AnswerQuestion answers one question within the request timeout and
// records the exchange in the transcript.
func (s *ChatService) AnswerQuestion(ctx context.Context, sessionID string, req entities.ChatRequest) (*entities.Answer, error) {
	const op = "chat_service.answer_question"
	if err := s.requireSession(op, sessionID); err != nil {
		return nil, err
	}
	if !s.registry.IsProcessed(sessionID) {
		return nil, errs.E(errs.IndexNotFound, op, errs.ErrIndexNotFound)
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, errs.E(errs.InvalidInput, op, errors.New("question must not be empty"))
	}

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	answer, err := s.composer.Answer(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}

	// The session may have been deleted while the model was answering.
	err = s.registry.AppendMessage(sessionID, entities.RoleUser, req.Question)
	if err == nil {
		err = s.registry.AppendMessage(sessionID, entities.RoleAssistant, answer.Text)
	}
	if err != nil {
		s.log.Warn("answer not added to transcript", zap.String("session_id", sessionID), zap.Error(err))
	}
	return answer, nil
}

// PreviewMemoryContext shows what conversation memory would contribute to
// question without answering it.
func (s *ChatService) PreviewMemoryContext(ctx context.Context, sessionID, question string) (entities.MemoryContext, error) {
	if err := s.requireSession("chat_service.preview_memory_context", sessionID); err != nil {
		return entities.MemoryContext{}, err
	}
	return s.composer.PreviewMemory(ctx, sessionID, question), nil
}

// ClearMemory empties both the transcript and the conversation memory.
func (s *ChatService) ClearMemory(ctx context.Context, sessionID string) error {
	const op = "chat_service.clear_memory"
	if err := s.requireSession(op, sessionID); err != nil {
		return err
	}
	if err := s.registry.ClearHistory(sessionID); err != nil {
		return err
	}
	return s.memory.Clear(ctx, sessionID)
}

// SystemPrompt returns the prompt in effect for the session and whether it
// is the default one.
func (s *ChatService) SystemPrompt(sessionID string) (string, bool, error) {
	if err := s.requireSession("chat_service.system_prompt", sessionID); err != nil {
		return "", false, err
	}
	if prompt, ok := s.registry.SystemPrompt(sessionID); ok {
		return prompt, false, nil
	}
	return s.cfg.DefaultTemplate, true, nil
}

// SetSystemPrompt stores a prompt override for the session.
func (s *ChatService) SetSystemPrompt(sessionID, prompt string) error {
	const op = "chat_service.set_system_prompt"
	if err := s.requireSession(op, sessionID); err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return errs.E(errs.InvalidInput, op, errors.New("system prompt must not be empty"))
	}
	if s.cfg.StrictTemplates {
		if err := ValidateTemplate(prompt); err != nil {
			return errs.E(errs.InvalidInput, op, err)
		}
	}
	return s.registry.SetSystemPrompt(sessionID, prompt)
}

// ResetSystemPrompt returns the session to the default prompt.
func (s *ChatService) ResetSystemPrompt(sessionID string) error {
	if err := s.requireSession("chat_service.reset_system_prompt", sessionID); err != nil {
		return err
	}
	return s.registry.ResetSystemPrompt(sessionID)
}

// History returns the session transcript.
func (s *ChatService) History(sessionID string) ([]entities.Message, error) {
	if err := s.requireSession("chat_service.history", sessionID); err != nil {
		return nil, err
	}
	return s.registry.History(sessionID), nil
}

// Session returns the session's metadata.
func (s *ChatService) Session(sessionID string) (*entities.Session, error) {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return nil, errs.E(errs.SessionNotFound, "chat_service.session", fmt.Errorf("session not found: %s", sessionID))
	}
	return sess, nil
}

// DeleteSession removes everything the session owns.
func (s *ChatService) DeleteSession(ctx context.Context, sessionID string) error {
	const op = "chat_service.delete_session"
	if err := s.requireSession(op, sessionID); err != nil {
		return err
	}
	s.registry.Delete(sessionID)

	if err := s.memory.Clear(ctx, sessionID); err != nil {
		return err
	}
	s.memory.Forget(sessionID)
	if err := s.index.Delete(ctx, sessionID); err != nil {
		return err
	}
	if s.cfg.StorageRoot != "" {
		if err := os.RemoveAll(filepath.Join(s.cfg.StorageRoot, sessionID)); err != nil {
			return errs.E(errs.Internal, op, fmt.Errorf("removing session directory: %w", err))
		}
	}

	s.log.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// RestoreSessions registers every session directory that holds a document
// index. Transcripts and prompt overrides are not persisted.
func (s *ChatService) RestoreSessions(ctx context.Context) (int, error) {
	if s.cfg.StorageRoot == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(s.cfg.StorageRoot)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errs.E(errs.Internal, "chat_service.restore_sessions", err)
	}

	restored := 0
	for _, e := range entries {
		id := e.Name()
		if !e.IsDir() || !entities.ValidSessionID(id) || s.registry.Exists(id) {
			continue
		}
		ok, err := s.index.Exists(ctx, id)
		if err != nil || !ok {
			continue
		}
		files, err := s.index.Files(ctx, id)
		if err != nil {
			s.log.Warn("skipping unreadable session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if err := s.registry.Create(id, files); err != nil {
			s.log.Warn("skipping session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if err := s.registry.MarkProcessed(id); err != nil {
			s.log.Warn("skipping session", zap.String("session_id", id), zap.Error(err))
			s.registry.Delete(id)
			continue
		}
		restored++
	}

	s.log.Info("sessions restored", zap.Int("count", restored))
	return restored, nil
}

// Models returns the selectable language models.
func (s *ChatService) Models() []entities.ModelOption {
	return append([]entities.ModelOption(nil), s.cfg.Models...)
}
