// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/infrastructure/telemetry"
)

// ChatAPI is the set of chat operations the server exposes.
type ChatAPI interface {
	Ingest(ctx context.Context, uploads []entities.Upload) (string, error)
	AnswerQuestion(ctx context.Context, sessionID string, req entities.ChatRequest) (*entities.Answer, error)
	PreviewMemoryContext(ctx context.Context, sessionID, question string) (entities.MemoryContext, error)
	ClearMemory(ctx context.Context, sessionID string) error
	SystemPrompt(sessionID string) (string, bool, error)
	SetSystemPrompt(sessionID, prompt string) error
	ResetSystemPrompt(sessionID string) error
	History(sessionID string) ([]entities.Message, error)
	Session(sessionID string) (*entities.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Models() []entities.ModelOption
}

// HealthReporter supplies the contained failure counts shown on /api/health.
type HealthReporter interface {
	Snapshot() telemetry.MemoryFailures
}

// Config holds the server settings.
type Config struct {
	Addr            string
	MaxUploadBytes  int64
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Server is the HTTP server for the chat API.
type Server struct {
	api    ChatAPI
	health HealthReporter
	cfg    Config
	log    *zap.Logger
}

// NewServer creates a new HTTP server. health may be nil.
func NewServer(api ChatAPI, health HealthReporter, cfg Config, log *zap.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{api: api, health: health, cfg: cfg, log: log.Named("http")}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("POST /api/sessions", s.handleUpload)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/chat", s.handleChat)
	mux.HandleFunc("GET /api/sessions/{id}/system-prompt", s.handleGetSystemPrompt)
	mux.HandleFunc("PUT /api/sessions/{id}/system-prompt", s.handleSetSystemPrompt)
	mux.HandleFunc("DELETE /api/sessions/{id}/system-prompt", s.handleResetSystemPrompt)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/sessions/{id}/history", s.handleClearHistory)
	mux.HandleFunc("GET /api/sessions/{id}/memory-context", s.handleMemoryContext)

	return s.recoverMiddleware(s.corsMiddleware(s.loggingMiddleware(mux)))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	s.log.Info("docchat server starting", zap.String("addr", s.cfg.Addr))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type chatRequest struct {
	Question       string `json:"question"`
	ModelName      string `json:"model_name"`
	SystemPrompt   string `json:"system_prompt"`
	UseChatHistory *bool  `json:"use_chat_history"`
}

type chatResponse struct {
	Answer          string   `json:"answer"`
	Sources         []string `json:"sources"`
	SessionID       string   `json:"session_id"`
	ChatContextUsed []string `json:"chat_context_used"`
}

type sessionResponse struct {
	SessionID       string             `json:"session_id"`
	Files           []string           `json:"files"`
	Processed       bool               `json:"processed"`
	ChatHistory     []entities.Message `json:"chat_history"`
	HasSystemPrompt bool               `json:"has_system_prompt"`
	CreatedAt       time.Time          `json:"created_at"`
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if s.health != nil {
		body["memory"] = s.health.Snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": s.api.Models()})
}

// handleUpload processes a multipart upload of PDFs into a new session.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, r, errs.E(errs.InvalidInput, "http.upload", fmt.Errorf("reading upload: %w", err)))
		return
	}

	var uploads []entities.Upload
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				s.writeError(w, r, errs.E(errs.InvalidInput, "http.upload", err))
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				s.writeError(w, r, errs.E(errs.InvalidInput, "http.upload", err))
				return
			}
			uploads = append(uploads, entities.Upload{Name: fh.Filename, Data: data})
		}
	}

	sessionID, err := s.api.Ingest(r.Context(), uploads)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Documents processed successfully",
		"session_id": sessionID,
		"processed":  true,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.api.Session(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:       sess.ID,
		Files:           nonNil(sess.Files),
		Processed:       sess.Processed,
		ChatHistory:     nonNilMessages(sess.Transcript),
		HasSystemPrompt: sess.SystemPrompt != "",
		CreatedAt:       sess.CreatedAt,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.api.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted"})
}

// handleChat answers one question for the session.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errs.E(errs.InvalidInput, "http.chat", fmt.Errorf("decoding request: %w", err)))
		return
	}
	useMemory := true
	if req.UseChatHistory != nil {
		useMemory = *req.UseChatHistory
	}

	sessionID := r.PathValue("id")
	answer, err := s.api.AnswerQuestion(r.Context(), sessionID, entities.ChatRequest{
		Question:       req.Question,
		ModelID:        req.ModelName,
		PromptOverride: req.SystemPrompt,
		UseMemory:      useMemory,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Answer:          answer.Text,
		Sources:         nonNil(answer.Sources),
		SessionID:       sessionID,
		ChatContextUsed: nonNil(answer.MemorySources),
	})
}

func (s *Server) handleGetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	prompt, isDefault, err := s.api.SystemPrompt(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"system_prompt": prompt,
		"is_default":    isDefault,
	})
}

func (s *Server) handleSetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SystemPrompt string `json:"system_prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errs.E(errs.InvalidInput, "http.set_system_prompt", fmt.Errorf("decoding request: %w", err)))
		return
	}
	if err := s.api.SetSystemPrompt(r.PathValue("id"), req.SystemPrompt); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "System prompt updated successfully"})
}

func (s *Server) handleResetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.api.ResetSystemPrompt(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "System prompt reset to default"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.api.History(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": nonNilMessages(history)})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.api.ClearMemory(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat history cleared"})
}

// handleMemoryContext previews the conversation context for a question.
func (s *Server) handleMemoryContext(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("question")
	if strings.TrimSpace(question) == "" {
		s.writeError(w, r, errs.E(errs.InvalidInput, "http.memory_context", errors.New("question is required")))
		return
	}
	mc, err := s.api.PreviewMemoryContext(r.Context(), r.PathValue("id"), question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chat_context":    mc.Text,
		"context_sources": nonNil(mc.Sources),
		"has_context":     !mc.Empty(),
	})
}

// statusFor maps an error classification to an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.SessionNotFound:
		return http.StatusNotFound
	case errs.IndexNotFound, errs.InvalidInput:
		return http.StatusBadRequest
	case errs.EmbeddingService, errs.ModelService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := s.log.With(zap.String("path", r.URL.Path), zap.Error(err))
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status))
	} else {
		log.Debug("request rejected", zap.Int("status", status))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMessages(m []entities.Message) []entities.Message {
	if m == nil {
		return []entities.Message{}
	}
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.cfg.CORSOrigins))
	for _, o := range s.cfg.CORSOrigins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case origin == "":
		case allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		case allowed["*"]:
			// A wildcard never carries credentials.
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.log.Error("panic serving request",
					zap.String("path", r.URL.Path),
					zap.Any("panic", v),
					zap.Stack("stack"),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
