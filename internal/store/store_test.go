package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestCreateChat(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`INSERT INTO chats \(id, user_id, title, current_stage, is_completed, created_at, updated_at\)`).
		WithArgs(sqlmock.AnyArg(), "user-1", "What is the capital", "Initial response").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	c, err := st.CreateChat(context.Background(), "user-1", "What is the capital")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Initial response", c.CurrentStage)
	assert.False(t, c.IsCompleted)
	assert.Equal(t, now, c.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetChatMissing(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(`SELECT id, user_id, title, current_stage, is_completed, created_at, updated_at\s+FROM chats`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "current_stage", "is_completed", "created_at", "updated_at"}))

	_, ok, err := st.GetChat(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateChatBuildsSetList(t *testing.T) {
	st, mock := newMock(t)
	stage := "completed"
	done := true
	at := time.Now()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chats SET current_stage=$1, is_completed=$2, updated_at=$3 WHERE id=$4`)).
		WithArgs(stage, done, at, "chat-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, st.UpdateChat(context.Background(), "chat-1", ChatUpdate{CurrentStage: &stage, IsCompleted: &done, UpdatedAt: &at}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateChatNotFound(t *testing.T) {
	st, mock := newMock(t)
	stage := "Web search"
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chats SET current_stage=$1 WHERE id=$2`)).
		WithArgs(stage, "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.UpdateChat(context.Background(), "gone", ChatUpdate{CurrentStage: &stage})
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestUpdateChatNoFields(t *testing.T) {
	st, mock := newMock(t)
	require.NoError(t, st.UpdateChat(context.Background(), "chat-1", ChatUpdate{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessageNullableColumns(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), "chat-1", "user-1", RoleUser, "hello", nullString(""), nullString("")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	m, err := st.CreateMessage(context.Background(), NewMessage{ChatID: "chat-1", UserID: "user-1", Role: RoleUser, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, now, m.CreatedAt)
	assert.Empty(t, m.Stage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesOrdered(t *testing.T) {
	st, mock := newMock(t)
	t0 := time.Now()
	mock.ExpectQuery(`SELECT id, chat_id, user_id, role, content, stage, search_results, created_at\s+FROM messages\s+WHERE chat_id=\$1\s+ORDER BY created_at ASC, seq ASC`).
		WithArgs("chat-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "chat_id", "user_id", "role", "content", "stage", "search_results", "created_at"}).
			AddRow("m1", "chat-1", "u", "user", "q", nil, nil, t0).
			AddRow("m2", "chat-1", "u", "assistant", "[[q]]", "Web search", "Search results for query 'q':\n\nx", t0.Add(time.Millisecond)))

	msgs, err := st.ListMessages(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Empty(t, msgs[0].Stage)
	assert.Equal(t, "Web search", msgs[1].Stage)
	assert.Contains(t, msgs[1].SearchResults, "Search results")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteChat(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM messages WHERE chat_id=\$1`).WithArgs("chat-1").WillReturnResult(sqlmock.NewResult(0, 6))
	mock.ExpectExec(`DELETE FROM chats WHERE id=\$1`).WithArgs("chat-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, st.DeleteChat(context.Background(), "chat-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserAPIKey(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(`SELECT api_key FROM users WHERE id=\$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"api_key"}).AddRow(" gsk_123 "))
	mock.ExpectQuery(`SELECT api_key FROM users WHERE id=\$1`).
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"api_key"}))

	key, err := st.GetUserAPIKey(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "gsk_123", key)

	key, err = st.GetUserAPIKey(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Empty(t, key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "a@b.co", "A", "hash").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := st.CreateUser(context.Background(), " A@b.co ", "A", "hash")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestGetUserByEmail(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT id, email, name, password_hash, api_key, created_at FROM users WHERE email=\$1`).
		WithArgs("a@b.co").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "api_key", "created_at"}).
			AddRow("u1", "a@b.co", "A", "hash", nil, now))

	u, ok, err := st.GetUserByEmail(context.Background(), "A@B.co")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1", u.ID)
	assert.Empty(t, u.APIKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserClearsAPIKey(t *testing.T) {
	st, mock := newMock(t)
	empty := "  "
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET api_key=$1 WHERE id=$2`)).
		WithArgs(nullString(""), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, st.UpdateUser(context.Background(), "u1", UserUpdate{APIKey: &empty}))
	require.NoError(t, mock.ExpectationsWereMet())
}
