// Package prompt turns a session's context and history into the message
// sequence sent to the generation service.
package prompt

import (
	"fmt"

	"ai-voice-chat/backend/internal/models"
)

// HistoryWindow is how many trailing log entries are considered for a prompt
const HistoryWindow = 10

// DefaultUserName is used when the session has not told us a name
const DefaultUserName = "friend"

const systemTemplate = `You are a friendly, casual AI companion chatting with %s. Your personality: %s.

How to talk:
- Sound like a close friend, with casual language and contractions
- Be warm and genuinely interested in what they say
- Keep replies short, usually 1-3 sentences
- Ask follow-up questions so the conversation keeps going
- Don't start every reply the same way
- Remember what was said earlier in the conversation

You're not a help desk. You're having a real conversation with a friend.`

// Builder assembles prompts using a personality catalog
type Builder struct {
	catalog *Catalog
}

// NewBuilder creates a builder. A nil catalog means the built-in personalities.
func NewBuilder(catalog *Catalog) *Builder {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Builder{catalog: catalog}
}

// Catalog returns the personalities the builder knows
func (b *Builder) Catalog() *Catalog {
	return b.catalog
}

// BuildSystemPrompt renders the system instruction for record
func (b *Builder) BuildSystemPrompt(record models.ContextRecord) string {
	personality := record.Personality
	if personality == "" {
		personality = models.DefaultPersonality
	}
	return fmt.Sprintf(systemTemplate, record.DisplayName(DefaultUserName), b.catalog.Describe(personality))
}

// Assemble produces system prompt, trimmed history, then the new user turn
func (b *Builder) Assemble(record models.ContextRecord, messages []models.Message, newUserText string) []models.Turn {
	history := BuildHistory(messages)

	turns := make([]models.Turn, 0, len(history)+2)
	turns = append(turns, models.Turn{Role: models.RoleSystem, Content: b.BuildSystemPrompt(record)})
	turns = append(turns, history...)
	turns = append(turns, models.Turn{Role: models.RoleUser, Content: newUserText})
	return turns
}

// BuildHistory keeps the user and assistant turns among the last HistoryWindow entries
func BuildHistory(messages []models.Message) []models.Turn {
	if len(messages) > HistoryWindow {
		messages = messages[len(messages)-HistoryWindow:]
	}

	history := make([]models.Turn, 0, len(messages))
	for _, m := range messages {
		if !m.Role.IsConversational() {
			continue
		}
		history = append(history, models.Turn{Role: m.Role, Content: m.Content})
	}
	return history
}
