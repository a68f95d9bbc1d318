package usecases

import (
	"fmt"
	"strings"
)

// Template placeholders.
const (
	PlaceholderContext     = "{context}"
	PlaceholderChatContext = "{chat_context}"
	PlaceholderInput       = "{input}"
)

// DefaultTemplate is used when neither the request, the session nor the
// configuration provides a template.
const DefaultTemplate = `You are an expert assistant that answers user questions using the provided document context and previous conversation history.

Use both the document context and the chat history to give a direct, confident and fluent answer, as if you already knew the information, without explicitly referencing the sources.

Guidelines:
- Use the document context as your primary source of information
- Use the chat history to follow the conversation and keep continuity
- Do not say "According to the context", "Based on the document" or "In our previous conversation"
- Never fabricate information that is not present in the document context or chat history
- If neither contains enough information, say that the answer is not available
- Build on previous answers when relevant, without repeating them

Document Context:
--------------------
{context}
--------------------

Previous Conversation Context:
--------------------
{chat_context}
--------------------

Answer the following user question naturally and directly using the information from both contexts:
User Query: {input}
`

// templateSections are appended for missing placeholders, in this order.
var templateSections = []struct {
	placeholder string
	section     string
}{
	{PlaceholderContext, "\n\nDocument Context:\n" + PlaceholderContext},
	{PlaceholderChatContext, "\n\nChat History Context:\n" + PlaceholderChatContext},
	{PlaceholderInput, "\n\nQuestion: " + PlaceholderInput},
}

// MissingPlaceholders lists the placeholders a template lacks.
func MissingPlaceholders(template string) []string {
	var missing []string
	for _, s := range templateSections {
		if !strings.Contains(template, s.placeholder) {
			missing = append(missing, s.placeholder)
		}
	}
	return missing
}

// CompleteTemplate appends a section for every missing placeholder so the
// model always sees all three inputs.
func CompleteTemplate(template string) (string, []string) {
	missing := MissingPlaceholders(template)
	if len(missing) == 0 {
		return template, nil
	}
	var sb strings.Builder
	sb.WriteString(template)
	for _, s := range templateSections {
		if !strings.Contains(template, s.placeholder) {
			sb.WriteString(s.section)
		}
	}
	return sb.String(), missing
}

// RenderPrompt substitutes all placeholders in a single pass, so values that
// themselves contain placeholder text are left untouched.
func RenderPrompt(template, docContext, chatContext, question string) string {
	r := strings.NewReplacer(
		PlaceholderContext, docContext,
		PlaceholderChatContext, chatContext,
		PlaceholderInput, question,
	)
	return r.Replace(template)
}

// ValidateTemplate rejects a template that lacks any placeholder.
func ValidateTemplate(template string) error {
	if missing := MissingPlaceholders(template); len(missing) > 0 {
		return fmt.Errorf("prompt template is missing %s", strings.Join(missing, ", "))
	}
	return nil
}
