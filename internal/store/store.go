package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/ori/internal/stages"
)

// Store is the Postgres-backed persistence gateway.
type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// Chat operations

func (s *Store) CreateChat(ctx context.Context, userID, title string) (Chat, error) {
	c := Chat{
		ID:           uuid.NewString(),
		UserID:       userID,
		Title:        title,
		CurrentStage: stages.First().Name(),
	}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO chats (id, user_id, title, current_stage, is_completed, created_at, updated_at)
VALUES ($1,$2,$3,$4,false,NOW(),NOW())
RETURNING created_at, updated_at
`, c.ID, c.UserID, c.Title, c.CurrentStage).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Chat{}, err
	}
	return c, nil
}

func (s *Store) GetChat(ctx context.Context, id string) (Chat, bool, error) {
	if id == "" {
		return Chat{}, false, fmt.Errorf("chat id required")
	}
	var c Chat
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, title, current_stage, is_completed, created_at, updated_at
FROM chats
WHERE id=$1
`, id).Scan(&c.ID, &c.UserID, &c.Title, &c.CurrentStage, &c.IsCompleted, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chat{}, false, nil
		}
		return Chat{}, false, err
	}
	return c, true, nil
}

func (s *Store) UpdateChat(ctx context.Context, id string, upd ChatUpdate) error {
	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.CurrentStage != nil {
		add("current_stage", *upd.CurrentStage)
	}
	if upd.IsCompleted != nil {
		add("is_completed", *upd.IsCompleted)
	}
	if upd.UpdatedAt != nil {
		add("updated_at", *upd.UpdatedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE chats SET %s WHERE id=$%d`, strings.Join(sets, ", "), len(args))
	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// ListChats returns the user's most recently updated chats with a preview of the latest message.
func (s *Store) ListChats(ctx context.Context, userID string, limit int) ([]ChatSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT c.id, c.title, c.updated_at, COALESCE(m.content, '')
FROM chats c
LEFT JOIN LATERAL (
  SELECT content FROM messages WHERE chat_id = c.id ORDER BY created_at DESC, seq DESC LIMIT 1
) m ON true
WHERE c.user_id=$1
ORDER BY c.updated_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChatSummary
	for rows.Next() {
		var cs ChatSummary
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.UpdatedAt, &cs.LastMessage); err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// DeleteChat removes a chat and its messages. The pipeline itself never calls this.
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrChatNotFound
	}
	return tx.Commit()
}

// Message operations

func (s *Store) CreateMessage(ctx context.Context, in NewMessage) (Message, error) {
	m := Message{
		ID:            uuid.NewString(),
		ChatID:        in.ChatID,
		UserID:        in.UserID,
		Role:          in.Role,
		Content:       in.Content,
		Stage:         in.Stage,
		SearchResults: in.SearchResults,
	}
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO messages (id, chat_id, user_id, role, content, stage, search_results, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,clock_timestamp())
RETURNING created_at
`, m.ID, m.ChatID, m.UserID, m.Role, m.Content, nullString(m.Stage), nullString(m.SearchResults)).Scan(&m.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// ListMessages returns the chat's messages ordered by creation time.
func (s *Store) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, chat_id, user_id, role, content, stage, search_results, created_at
FROM messages
WHERE chat_id=$1
ORDER BY created_at ASC, seq ASC
`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		var stage, results sql.NullString
		if err := rows.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Role, &m.Content, &stage, &results, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Stage = stage.String
		m.SearchResults = results.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// User operations

// GetUserAPIKey returns the completion API key stored for the user, or "" when none is set.
func (s *Store) GetUserAPIKey(ctx context.Context, userID string) (string, error) {
	var key sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT api_key FROM users WHERE id=$1`, userID).Scan(&key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(key.String), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
