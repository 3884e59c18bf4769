package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-voice-chat/backend/internal/models"
)

func TestBuildSystemPrompt_Defaults(t *testing.T) {
	b := NewBuilder(nil)

	got := b.BuildSystemPrompt(models.DefaultContext())

	assert.Contains(t, got, "friend")
	assert.Contains(t, got, "casual")
	assert.Contains(t, got, "1-3 sentences")
	assert.Contains(t, got, "follow-up questions")
	assert.Contains(t, got, "Don't start every reply the same way")
}

func TestBuildSystemPrompt_UsesNameAndPersonality(t *testing.T) {
	b := NewBuilder(nil)
	name := "Al"
	record := models.DefaultContext()
	record.UserName = &name
	record.Personality = "playful_banter"

	got := b.BuildSystemPrompt(record)

	assert.Contains(t, got, "chatting with Al.")
	assert.Contains(t, got, "playful back-and-forth")
}

func TestBuildSystemPrompt_EmptyNameFallsBack(t *testing.T) {
	b := NewBuilder(nil)
	empty := ""
	record := models.DefaultContext()
	record.UserName = &empty

	assert.Contains(t, b.BuildSystemPrompt(record), "chatting with friend.")
}

func TestBuildHistory_DropsSystemEntries(t *testing.T) {
	messages := []models.Message{{Role: models.RoleSystem, Content: "sys"}}
	for i := 0; i < 9; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		messages = append(messages, models.Message{Role: role, Content: fmt.Sprintf("m%d", i), Timestamp: int64(i)})
	}

	history := BuildHistory(messages)

	require.Len(t, history, 9)
	for i, turn := range history {
		assert.Equal(t, fmt.Sprintf("m%d", i), turn.Content)
		assert.NotEqual(t, models.RoleSystem, turn.Role)
	}
}

func TestBuildHistory_KeepsLastTen(t *testing.T) {
	var messages []models.Message
	for i := 0; i < 25; i++ {
		messages = append(messages, models.Message{Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	history := BuildHistory(messages)

	require.Len(t, history, HistoryWindow)
	assert.Equal(t, "m15", history[0].Content)
	assert.Equal(t, "m24", history[9].Content)
}

func TestBuildHistory_Empty(t *testing.T) {
	assert.Empty(t, BuildHistory(nil))
}

func TestAssemble_EmptyContext(t *testing.T) {
	b := NewBuilder(nil)

	turns := b.Assemble(models.DefaultContext(), nil, "hi")

	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleSystem, turns[0].Role)
	assert.Contains(t, turns[0].Content, "friend")
	assert.Contains(t, turns[0].Content, "casual")
	assert.Equal(t, models.Turn{Role: models.RoleUser, Content: "hi"}, turns[1])
}

func TestAssemble_SystemFirstUserLast(t *testing.T) {
	b := NewBuilder(nil)
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "stray"},
		{Role: models.RoleUser, Content: "a"},
		{Role: models.RoleAssistant, Content: "b"},
	}

	turns := b.Assemble(models.DefaultContext(), messages, "c")

	systems := 0
	for _, turn := range turns {
		if turn.Role == models.RoleSystem {
			systems++
		}
	}
	assert.Equal(t, 1, systems)
	assert.Equal(t, models.RoleSystem, turns[0].Role)
	assert.Equal(t, models.Turn{Role: models.RoleUser, Content: "c"}, turns[len(turns)-1])
	assert.Len(t, turns, 4)
}

func TestCatalog_LoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	doc := `personas:
  - name: night_owl
    description: a sleepy friend who chats late at night
  - name: casual_friend
    description: an overridden casual friend
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	assert.True(t, c.Has("night_owl"))
	assert.True(t, c.Has("curious_explorer"))
	assert.Equal(t, "an overridden casual friend", c.Describe(models.DefaultPersonality))
	assert.Equal(t, "an overridden casual friend", c.Describe("unknown"))
	assert.Len(t, c.Names(), 5)
}

func TestCatalog_RejectsIncompleteEntry(t *testing.T) {
	c := DefaultCatalog()
	err := c.Merge([]byte("personas:\n  - name: nameless\n"))
	assert.Error(t, err)
}

func TestLoadCatalog_EmptyPath(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, []string{"casual_friend", "curious_explorer", "playful_banter", "supportive_listener"}, c.Names())
}
