//go:build integration

package store_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/ori/internal/store"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "ori",
				"POSTGRES_PASSWORD": "ori",
				"POSTGRES_DB":       "ori",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://ori:ori@%s:%s/ori?sslmode=disable", host, port.Port())
}

func findMigrationsDir(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		candidate := filepath.Join(dir, "migrations")
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("migrations directory not found")
		}
		dir = parent
	}
}

func TestPostgresRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := startPostgres(t)
	m, err := migrate.New("file://"+findMigrationsDir(t), dsn)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, dsn)
	require.NoError(t, err)
	defer st.Close()

	u, err := st.CreateUser(ctx, "Ada@Example.com", "Ada", "hash")
	require.NoError(t, err)
	_, err = st.CreateUser(ctx, "ada@example.com", "Dup", "hash")
	assert.ErrorIs(t, err, store.ErrEmailTaken)
	key := "gsk-1"
	require.NoError(t, st.UpdateUser(ctx, u.ID, store.UserUpdate{APIKey: &key}))
	got, err := st.GetUserAPIKey(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	chat, err := st.CreateChat(ctx, u.ID, "Capital of France")
	require.NoError(t, err)
	for i, content := range []string{"q", "a1", "a2"} {
		role := store.RoleAssistant
		if i == 0 {
			role = store.RoleUser
		}
		_, err := st.CreateMessage(ctx, store.NewMessage{ChatID: chat.ID, UserID: u.ID, Role: role, Content: content})
		require.NoError(t, err)
	}
	msgs, err := st.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "a2", msgs[2].Content)

	done := "completed"
	require.NoError(t, st.UpdateChat(ctx, chat.ID, store.ChatUpdate{CurrentStage: &done}))
	chats, err := st.ListChats(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "a2", chats[0].LastMessage)

	require.NoError(t, st.DeleteChat(ctx, chat.ID))
	_, ok, err := st.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
