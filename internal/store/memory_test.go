package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMessagesOrderedAndCopied(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c, err := m.CreateChat(ctx, "u1", "title")
	require.NoError(t, err)

	for _, content := range []string{"a", "b", "c"} {
		_, err := m.CreateMessage(ctx, NewMessage{ChatID: c.ID, UserID: "u1", Role: RoleAssistant, Content: content})
		require.NoError(t, err)
	}
	first, err := m.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, first, 3)
	for i := 1; i < len(first); i++ {
		assert.True(t, first[i].CreatedAt.After(first[i-1].CreatedAt))
	}

	first[0].Content = "mutated"
	second, err := m.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", second[0].Content)
}

func TestMemoryChatLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c, _ := m.CreateChat(ctx, "u1", "one")
	_, _ = m.CreateChat(ctx, "u2", "other")

	stage := "completed"
	done := true
	require.NoError(t, m.UpdateChat(ctx, c.ID, ChatUpdate{CurrentStage: &stage, IsCompleted: &done}))
	got, ok, err := m.GetChat(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.IsCompleted)
	assert.Equal(t, "completed", got.CurrentStage)

	_, err = m.CreateMessage(ctx, NewMessage{ChatID: c.ID, UserID: "u1", Role: RoleUser, Content: "latest"})
	require.NoError(t, err)
	list, err := m.ListChats(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "latest", list[0].LastMessage)

	require.NoError(t, m.DeleteChat(ctx, c.ID))
	_, ok, _ = m.GetChat(ctx, c.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, m.DeleteChat(ctx, c.ID), ErrChatNotFound)
	assert.ErrorIs(t, m.UpdateChat(ctx, "missing", ChatUpdate{}), ErrChatNotFound)
}

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	u, err := m.CreateUser(ctx, "A@b.co", "A", "hash")
	require.NoError(t, err)
	_, err = m.CreateUser(ctx, "a@B.co ", "B", "hash")
	assert.ErrorIs(t, err, ErrEmailTaken)

	key := " gsk_1 "
	require.NoError(t, m.UpdateUser(ctx, u.ID, UserUpdate{APIKey: &key}))
	got, err := m.GetUserAPIKey(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "gsk_1", got)

	byEmail, ok, err := m.GetUserByEmail(ctx, "a@b.co")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, "gsk_1", byEmail.APIKey)

	assert.ErrorIs(t, m.UpdateUser(ctx, "missing", UserUpdate{}), ErrUserNotFound)
}
