// Package session provides the in-process session registry.
// It holds metadata and transcripts only; vectors live on disk.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

var errNotFound = errors.New("session not found")

// Registry implements ports.SessionRegistry with a single RWMutex.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*entities.Session),
		now:      time.Now,
	}
}

func notFound(op, id string) error {
	return errs.E(errs.SessionNotFound, op, fmt.Errorf("%w: %s", errNotFound, id))
}

// Create registers a new, unprocessed session.
func (r *Registry) Create(id string, files []string) error {
	const op = "session.create"
	if !entities.ValidSessionID(id) {
		return errs.E(errs.InvalidInput, op, fmt.Errorf("invalid session id %q", id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return errs.E(errs.InvalidInput, op, fmt.Errorf("session already exists: %s", id))
	}
	r.sessions[id] = &entities.Session{
		ID:        id,
		Files:     append([]string(nil), files...),
		CreatedAt: r.now(),
	}
	return nil
}

// MarkProcessed records that the session's document index is built.
func (r *Registry) MarkProcessed(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return notFound("session.mark_processed", id)
	}
	sess.Processed = true
	return nil
}

// Get returns a copy of the session.
func (r *Registry) Get(id string) (*entities.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	cp := *sess
	cp.Files = append([]string(nil), sess.Files...)
	cp.Transcript = append([]entities.Message(nil), sess.Transcript...)
	return &cp, true
}

// Exists reports whether the session is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// IsProcessed reports whether the session has a built index.
func (r *Registry) IsProcessed(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return ok && sess.Processed
}

// AppendMessage adds one entry to the session's transcript.
func (r *Registry) AppendMessage(id, role, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return notFound("session.append_message", id)
	}
	sess.Transcript = append(sess.Transcript, entities.Message{Role: role, Content: content})
	return nil
}

// History returns a copy of the transcript; nil for unknown sessions.
func (r *Registry) History(id string) []entities.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil
	}
	return append([]entities.Message{}, sess.Transcript...)
}

// ClearHistory empties the transcript.
func (r *Registry) ClearHistory(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return notFound("session.clear_history", id)
	}
	sess.Transcript = nil
	return nil
}

// SetSystemPrompt stores the session's prompt override.
func (r *Registry) SetSystemPrompt(id, prompt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return notFound("session.set_system_prompt", id)
	}
	sess.SystemPrompt = prompt
	return nil
}

// SystemPrompt returns the session's override, if any.
func (r *Registry) SystemPrompt(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok || sess.SystemPrompt == "" {
		return "", false
	}
	return sess.SystemPrompt, true
}

// ResetSystemPrompt drops the session's override.
func (r *Registry) ResetSystemPrompt(id string) error {
	return r.SetSystemPrompt(id, "")
}

// Delete forgets the session. Unknown ids are ignored.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// IDs returns the registered session ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
