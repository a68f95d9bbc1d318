// Package errs classifies failures so callers can decide how to surface them.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the class of a failure.
type Kind int

const (
	Internal Kind = iota
	InvalidInput
	SessionNotFound
	IndexNotFound
	EmbeddingService
	ModelService
	MemoryWrite
	MemoryRead
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid input"
	case SessionNotFound:
		return "session not found"
	case IndexNotFound:
		return "index not found"
	case EmbeddingService:
		return "embedding service error"
	case ModelService:
		return "model service error"
	case MemoryWrite:
		return "memory write error"
	case MemoryRead:
		return "memory read error"
	default:
		return "internal error"
	}
}

// ErrIndexNotFound is returned by index stores when a session has no document index.
var ErrIndexNotFound = errors.New("no processed documents found for this session")

// ErrMemoryNotFound is returned by conversation stores when a session has no memory yet.
var ErrMemoryNotFound = errors.New("no conversation memory for this session")

// Error is a classified failure raised by the operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E classifies err. An already classified err keeps its kind unless
// it is Internal, and gains no second layer of wrapping.
func E(kind Kind, op string, err error) error {
	var ce *Error
	if errors.As(err, &ce) && ce.Kind != Internal {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Reclassify wraps err under kind even when err is already classified.
// Contained failures use it so their own kind wins over the cause's.
func Reclassify(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
