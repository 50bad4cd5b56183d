package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mygpt-backend/internal/model"
)

func newChat(id, userID, text string) (*model.Chat, model.ChatSummary) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	chat := &model.Chat{
		ID:     id,
		UserID: userID,
		History: []model.Turn{
			{Role: model.RoleUser, Text: text, ModelUsed: model.ModeText, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return chat, model.ChatSummary{ID: id, Title: model.Title(text), CreatedAt: now}
}

func question(text string) *model.Turn {
	return &model.Turn{Text: text, ModelUsed: model.ModeText}
}

func answer(text string) model.Turn {
	return model.Turn{Text: text, ModelUsed: model.ModeText}
}

// exerciseStorage runs the behavior every Storage implementation shares.
func exerciseStorage(t *testing.T, s Storage) {
	chat, summary := newChat("chat-1", "alice", "hello")
	require.NoError(t, s.CreateChat(chat, summary))

	t.Run("get", func(t *testing.T) {
		got, err := s.GetChat("alice", "chat-1")
		require.NoError(t, err)
		require.Len(t, got.History, 1)
		assert.Equal(t, "hello", got.History[0].Text)
		assert.Equal(t, model.RoleUser, got.History[0].Role)
	})

	t.Run("other owner gets not found", func(t *testing.T) {
		_, err := s.GetChat("bob", "chat-1")
		assert.ErrorIs(t, err, ErrChatNotFound)

		_, err = s.AppendTurns("bob", "chat-1", question("hi"), answer("no"))
		assert.ErrorIs(t, err, ErrChatNotFound)

		_, err = s.GetChat("alice", "missing")
		assert.ErrorIs(t, err, ErrChatNotFound)
	})

	t.Run("duplicate question is dropped", func(t *testing.T) {
		n, err := s.AppendTurns("alice", "chat-1", question("hello"), answer("Hi!"))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.GetChat("alice", "chat-1")
		require.NoError(t, err)
		require.Len(t, got.History, 2)
		assert.Equal(t, model.RoleModel, got.History[1].Role)
	})

	t.Run("new question is appended", func(t *testing.T) {
		q := question("and you?")
		q.Img = "/uploads/me.png"
		q.AIImg = "/should/not/stick.png"
		a := answer("fine")
		a.Img = "/should/not/stick.png"
		a.AIImg = "/ai-generated/x.png"

		n, err := s.AppendTurns("alice", "chat-1", q, a)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := s.GetChat("alice", "chat-1")
		require.NoError(t, err)
		require.Len(t, got.History, 4)

		user, reply := got.History[2], got.History[3]
		assert.Equal(t, model.RoleUser, user.Role)
		assert.Equal(t, "/uploads/me.png", user.Img)
		assert.Empty(t, user.AIImg)
		assert.Equal(t, model.RoleModel, reply.Role)
		assert.Empty(t, reply.Img)
		assert.Equal(t, "/ai-generated/x.png", reply.AIImg)
	})

	t.Run("summaries are per user", func(t *testing.T) {
		other, otherSummary := newChat("chat-2", "bob", strings.Repeat("x", 60))
		require.NoError(t, s.CreateChat(other, otherSummary))

		alice, err := s.ListSummaries("alice")
		require.NoError(t, err)
		require.Len(t, alice, 1)
		assert.Equal(t, "chat-1", alice[0].ID)
		assert.Equal(t, "hello", alice[0].Title)

		bob, err := s.ListSummaries("bob")
		require.NoError(t, err)
		require.Len(t, bob, 1)
		assert.Len(t, bob[0].Title, model.TitleLength)

		none, err := s.ListSummaries("carol")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("invalid chat", func(t *testing.T) {
		err := s.CreateChat(&model.Chat{ID: ""}, model.ChatSummary{})
		assert.ErrorIs(t, err, ErrInvalidData)
	})
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	require.NoError(t, s.Init())
	defer s.Close()

	exerciseStorage(t, s)
}

func TestDiskStorage(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStorage(dir, 1)
	require.NoError(t, s.Init())

	exerciseStorage(t, s)
	require.NoError(t, s.Backup())
	require.NoError(t, s.Close())

	// a fresh instance reads everything back from disk
	reopened := NewDiskStorage(dir, 10)
	require.NoError(t, reopened.Init())
	got, err := reopened.GetChat("alice", "chat-1")
	require.NoError(t, err)
	assert.Len(t, got.History, 4)

	backups, err := filepath.Glob(filepath.Join(dir, "backup", "backup_*", "chats", "*.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, backups)
}

func TestSQLiteStorage(t *testing.T) {
	s := NewSQLStorage(DialectSQLite, filepath.Join(t.TempDir(), "chats.db"))
	if err := s.Init(); err != nil {
		if strings.Contains(err.Error(), "CGO_ENABLED") {
			t.Skip("sqlite driver needs cgo")
		}
		require.NoError(t, err)
	}
	defer s.Close()

	exerciseStorage(t, s)
}

func TestUnsupportedDialect(t *testing.T) {
	err := NewSQLStorage("oracle", "").Init()
	assert.True(t, errors.Is(err, ErrUnsupportedType), fmt.Sprint(err))
}

func TestRebind(t *testing.T) {
	pg := NewSQLStorage(DialectPostgres, "")
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := NewSQLStorage(DialectSQLite, "")
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestPlanAppend(t *testing.T) {
	history := []model.Turn{{Role: model.RoleUser, Text: "same"}}

	turns := planAppend(history, question("same"), answer("reply"))
	require.Len(t, turns, 1)
	assert.Equal(t, model.RoleModel, turns[0].Role)

	turns = planAppend(history, question("different"), answer("reply"))
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)

	turns = planAppend(history, nil, answer("reply"))
	assert.Len(t, turns, 1)

	withImage := question("")
	withImage.Img = "/uploads/a.png"
	turns = planAppend(nil, withImage, answer("reply"))
	assert.Len(t, turns, 2)
}
