package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/AtharvSharma0077/ChatbotAI/internal/db"
	"github.com/AtharvSharma0077/ChatbotAI/internal/llm"
	"github.com/AtharvSharma0077/ChatbotAI/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubCompleter records every turn list it is asked to complete.
type stubCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]llm.Turn
}

func (s *stubCompleter) Complete(_ context.Context, turns []llm.Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]llm.Turn(nil), turns...))
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubCompleter) lastCall(t *testing.T) []llm.Turn {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.calls)
	return s.calls[len(s.calls)-1]
}

func setupService(t *testing.T, completer Completer) (*Service, *db.Database) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		database.Close()
	})

	return NewService(database, completer, zap.NewNop(), 0), database
}

// collectOne reads the single record an exchange emits and verifies the
// stream closes afterwards.
func collectOne(t *testing.T, stream <-chan Record) Record {
	t.Helper()
	record, ok := <-stream
	require.True(t, ok, "expected one record before close")
	_, more := <-stream
	require.False(t, more, "stream must close after one record")
	return record
}

func TestExchange_UnknownConversation(t *testing.T) {
	svc, database := setupService(t, &stubCompleter{reply: "hello"})
	ctx := context.Background()

	stream, err := svc.Exchange(ctx, "nonexistent", "hi")
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Nil(t, stream)

	messages, err := database.ListMessages(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, messages, "a failed lookup must write nothing")
}

func TestExchange_Success(t *testing.T) {
	completer := &stubCompleter{reply: "Hello! How can I help you today?"}
	svc, database := setupService(t, completer)
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "")
	require.NoError(t, err)

	stream, err := svc.Exchange(ctx, conv.ID, "Hi")
	require.NoError(t, err)
	record := collectOne(t, stream)

	require.Equal(t, "message", record.Type)
	reply, ok := record.Data.(*models.Message)
	require.True(t, ok)
	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, completer.reply, reply.Content)
	assert.Equal(t, conv.ID, reply.ConversationID)

	messages, err := database.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "Hi", messages[0].Content)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	assert.True(t, messages[1].Timestamp.After(messages[0].Timestamp),
		"assistant timestamp must be strictly after the user's")

	updated, err := database.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hi", updated.Title, "first exchange replaces the sentinel title")
	assert.True(t, updated.UpdatedAt.After(conv.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(conv.CreatedAt))
}

func TestExchange_TitleTruncation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "short content verbatim",
			content: "Plan my trip",
			want:    "Plan my trip",
		},
		{
			name:    "exactly fifty characters verbatim",
			content: strings.Repeat("a", 50),
			want:    strings.Repeat("a", 50),
		},
		{
			name:    "long content truncated with ellipsis",
			content: strings.Repeat("b", 60),
			want:    strings.Repeat("b", 50) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, database := setupService(t, &stubCompleter{reply: "ok"})
			ctx := context.Background()

			conv, err := database.CreateConversation(ctx, "")
			require.NoError(t, err)

			stream, err := svc.Exchange(ctx, conv.ID, tt.content)
			require.NoError(t, err)
			record := collectOne(t, stream)
			require.Equal(t, "message", record.Type)

			updated, err := database.GetConversation(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, updated.Title)
		})
	}
}

func TestExchange_ExistingTitleKept(t *testing.T) {
	svc, database := setupService(t, &stubCompleter{reply: "ok"})
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "Named already")
	require.NoError(t, err)

	stream, err := svc.Exchange(ctx, conv.ID, "something new")
	require.NoError(t, err)
	collectOne(t, stream)

	updated, err := database.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Named already", updated.Title)
}

func TestExchange_ProviderFailure(t *testing.T) {
	completer := &stubCompleter{err: &llm.ProviderError{Err: llm.ErrNotConfigured}}
	svc, database := setupService(t, completer)
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "")
	require.NoError(t, err)

	stream, err := svc.Exchange(ctx, conv.ID, "Hi")
	require.NoError(t, err)
	record := collectOne(t, stream)

	require.Equal(t, "error", record.Type)
	detail, ok := record.Data.(string)
	require.True(t, ok)
	assert.Contains(t, detail, "completion provider")

	// The user message stays recorded; no assistant message, no metadata
	// update.
	messages, err := database.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.RoleUser, messages[0].Role)

	unchanged, err := database.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTitle, unchanged.Title)
	assert.True(t, unchanged.UpdatedAt.Equal(conv.UpdatedAt))
}

func TestExchange_HistoryAssembly(t *testing.T) {
	completer := &stubCompleter{reply: "reply"}
	svc, database := setupService(t, completer)
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "")
	require.NoError(t, err)

	for _, content := range []string{"first", "second"} {
		stream, err := svc.Exchange(ctx, conv.ID, content)
		require.NoError(t, err)
		record := collectOne(t, stream)
		require.Equal(t, "message", record.Type)
	}

	stream, err := svc.Exchange(ctx, conv.ID, "third")
	require.NoError(t, err)
	collectOne(t, stream)

	turns := completer.lastCall(t)
	require.Len(t, turns, 5, "four prior messages plus the trailing user turn")

	wantRoles := []models.Role{
		models.RoleUser, models.RoleAssistant,
		models.RoleUser, models.RoleAssistant,
		models.RoleUser,
	}
	wantTexts := []string{"first", "reply", "second", "reply", "third"}
	for i, turn := range turns {
		assert.Equal(t, wantRoles[i], turn.Role, "turn %d role", i)
		assert.Equal(t, wantTexts[i], turn.Text, "turn %d text", i)
	}

	// The newest user content appears exactly once, at the end.
	occurrences := 0
	for _, turn := range turns {
		if turn.Text == "third" {
			occurrences++
		}
	}
	assert.Equal(t, 1, occurrences)
}

func TestBuildTurns_DropsPersistedUserMessage(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "a"},
		{Role: models.RoleAssistant, Content: "b"},
		{Role: models.RoleUser, Content: "c"}, // the just-persisted message
	}

	turns := buildTurns(history, "c")
	require.Len(t, turns, 3)
	assert.Equal(t, llm.Turn{Role: models.RoleUser, Text: "a"}, turns[0])
	assert.Equal(t, llm.Turn{Role: models.RoleAssistant, Text: "b"}, turns[1])
	assert.Equal(t, llm.Turn{Role: models.RoleUser, Text: "c"}, turns[2])
}

func TestBuildTurns_EmptyHistory(t *testing.T) {
	turns := buildTurns(nil, "hello")
	require.Len(t, turns, 1)
	assert.Equal(t, llm.Turn{Role: models.RoleUser, Text: "hello"}, turns[0])
}

func TestTrimToBudget(t *testing.T) {
	counter := newTokenCounter()
	if counter.enc == nil {
		t.Skip("token encoding unavailable in this environment")
	}

	turns := []llm.Turn{
		{Role: models.RoleUser, Text: strings.Repeat("history ", 100)},
		{Role: models.RoleAssistant, Text: strings.Repeat("older reply ", 100)},
		{Role: models.RoleUser, Text: "the question"},
	}

	trimmed := trimToBudget(turns, counter, 10)
	require.Len(t, trimmed, 1, "only the trailing user turn fits a tiny budget")
	assert.Equal(t, "the question", trimmed[0].Text)

	// A budget of zero disables trimming entirely.
	assert.Len(t, trimToBudget(turns, counter, 0), 3)
}

func TestExchange_StorageFailureAfterUserMessage(t *testing.T) {
	// A store that fails on history load still leaves the user message
	// committed and reports one error record.
	svc, database := setupService(t, &stubCompleter{reply: "ok"})
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "")
	require.NoError(t, err)

	failing := &failingStore{Store: svc.store}
	svc.store = failing

	stream, err := svc.Exchange(ctx, conv.ID, "Hi")
	require.NoError(t, err)
	record := collectOne(t, stream)
	require.Equal(t, "error", record.Type)

	messages, err := database.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1, "the user message survives the failure")
	assert.Equal(t, models.RoleUser, messages[0].Role)
}

// failingStore delegates everything except ListMessages, which always fails.
type failingStore struct {
	Store
}

func (f *failingStore) ListMessages(context.Context, string) ([]models.Message, error) {
	return nil, errors.New("storage unavailable")
}
