// Package entities contains core business entities.
// These are pure domain objects with no knowledge of storage, embedding or transport.
package entities

import (
	"fmt"
	"strings"
	"time"
)

// Page is the extracted text of one PDF page.
type Page struct {
	Document int // position of the source upload in its batch
	File     string
	Number   int // 1-based
	Text     string
}

// Upload is a raw document received for ingestion.
type Upload struct {
	Name string
	Data []byte
}

// Chunk is a contiguous span of one page's text.
// A chunk never spans two pages.
type Chunk struct {
	ID        string
	File      string
	Page      int
	Position  int // order within the page
	Content   string
	Embedding []float32 // populated by the index before persisting
}

// Citation returns the human-readable source reference of the chunk.
func (c Chunk) Citation() string {
	return fmt.Sprintf("%s (page %d)", c.File, c.Page)
}

// ScoredChunk is a document index search hit.
type ScoredChunk struct {
	Chunk Chunk
	Score float64 // cosine similarity
}

// ConversationTurn is one question/answer exchange kept in conversation memory.
// Turns are immutable once created and ordered by insertion only.
type ConversationTurn struct {
	ID              string
	UserQuestion    string
	AssistantAnswer string
	Sources         []string
	CreatedAt       time.Time
	Embedding       []float32
}

// TimestampLayout is the provenance timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

// SearchText is the blob that gets embedded for similarity search.
func (t ConversationTurn) SearchText() string {
	var sb strings.Builder
	sb.WriteString("User Question: ")
	sb.WriteString(t.UserQuestion)
	sb.WriteString("\nAssistant Answer: ")
	sb.WriteString(t.AssistantAnswer)
	if len(t.Sources) > 0 {
		sb.WriteString("\nSources: ")
		sb.WriteString(strings.Join(t.Sources, ", "))
	}
	return sb.String()
}

// ContextBlock renders the turn for inclusion in a prompt.
func (t ConversationTurn) ContextBlock() string {
	var sb strings.Builder
	sb.WriteString("Previous Q: ")
	sb.WriteString(t.UserQuestion)
	sb.WriteString("\nPrevious A: ")
	sb.WriteString(t.AssistantAnswer)
	if len(t.Sources) > 0 {
		sb.WriteString("\nSources: ")
		sb.WriteString(strings.Join(t.Sources, ", "))
	}
	return sb.String()
}

// Provenance is the attribution string shown to the user.
func (t ConversationTurn) Provenance() string {
	if t.CreatedAt.IsZero() {
		return "Previous conversation from unknown time"
	}
	return "Previous conversation from " + t.CreatedAt.Format(TimestampLayout)
}

// ScoredTurn is a conversation memory search hit.
type ScoredTurn struct {
	Turn  ConversationTurn
	Score float64
}

// MemoryContext is the conversation context retrieved for a question.
type MemoryContext struct {
	Text    string
	Sources []string
}

// Empty reports whether no prior conversation was retrieved.
func (m MemoryContext) Empty() bool {
	return m.Text == ""
}

// Message roles used in the session transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one transcript entry, kept for display and export.
type Message struct {
	Role    string `json:"type"`
	Content string `json:"content"`
}

// Session is the unit of isolation.
type Session struct {
	ID           string
	Files        []string
	Processed    bool
	Transcript   []Message
	SystemPrompt string // empty when no override is set
	CreatedAt    time.Time
}

// ChatRequest is a single chat turn request.
type ChatRequest struct {
	Question       string
	ModelID        string
	PromptOverride string
	UseMemory      bool
}

// Answer is the result of a chat turn.
type Answer struct {
	Text          string
	Sources       []string // document citations
	MemorySources []string // conversation provenance
}

// ValidSessionID reports whether id is usable as a single storage path element.
func ValidSessionID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

// ModelOption is a selectable language model.
type ModelOption struct {
	Name string `json:"name" yaml:"name"`
	ID   string `json:"id" yaml:"id"`
}
