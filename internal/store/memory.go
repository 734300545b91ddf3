package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/ori/internal/stages"
)

// Memory is an in-process gateway used by the CLI and tests.
type Memory struct {
	mu       sync.RWMutex
	chats    map[string]Chat
	messages map[string][]Message
	apiKeys  map[string]string
	users    map[string]User
	last     time.Time
}

func NewMemory() *Memory {
	return &Memory{
		chats:    make(map[string]Chat),
		messages: make(map[string][]Message),
		apiKeys:  make(map[string]string),
		users:    make(map[string]User),
	}
}

// tick returns a strictly increasing timestamp so createdAt ordering is total.
func (m *Memory) tick() time.Time {
	t := time.Now().UTC()
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

func (m *Memory) CreateChat(ctx context.Context, userID, title string) (Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tick()
	c := Chat{
		ID:           uuid.NewString(),
		UserID:       userID,
		Title:        title,
		CurrentStage: stages.First().Name(),
		CreatedAt:    t,
		UpdatedAt:    t,
	}
	m.chats[c.ID] = c
	return c, nil
}

func (m *Memory) GetChat(ctx context.Context, id string) (Chat, bool, error) {
	if id == "" {
		return Chat{}, false, fmt.Errorf("chat id required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[id]
	return c, ok, nil
}

func (m *Memory) UpdateChat(ctx context.Context, id string, upd ChatUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chats[id]
	if !ok {
		return ErrChatNotFound
	}
	if upd.CurrentStage != nil {
		c.CurrentStage = *upd.CurrentStage
	}
	if upd.IsCompleted != nil {
		c.IsCompleted = *upd.IsCompleted
	}
	if upd.UpdatedAt != nil {
		c.UpdatedAt = *upd.UpdatedAt
	}
	m.chats[id] = c
	return nil
}

func (m *Memory) ListChats(ctx context.Context, userID string, limit int) ([]ChatSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ChatSummary
	for _, c := range m.chats {
		if c.UserID != userID {
			continue
		}
		cs := ChatSummary{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt}
		if msgs := m.messages[c.ID]; len(msgs) > 0 {
			cs.LastMessage = msgs[len(msgs)-1].Content
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteChat(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[id]; !ok {
		return ErrChatNotFound
	}
	delete(m.chats, id)
	delete(m.messages, id)
	return nil
}

func (m *Memory) CreateMessage(ctx context.Context, in NewMessage) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[in.ChatID]; !ok {
		return Message{}, ErrChatNotFound
	}
	msg := Message{
		ID:            uuid.NewString(),
		ChatID:        in.ChatID,
		UserID:        in.UserID,
		Role:          in.Role,
		Content:       in.Content,
		Stage:         in.Stage,
		SearchResults: in.SearchResults,
		CreatedAt:     m.tick(),
	}
	m.messages[in.ChatID] = append(m.messages[in.ChatID], msg)
	return msg, nil
}

func (m *Memory) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[chatID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *Memory) GetUserAPIKey(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.apiKeys[userID], nil
}

// SetUserAPIKey stores a completion API key for the user.
func (m *Memory) SetUserAPIKey(userID, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKeys[userID] = key
}

func (m *Memory) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = normalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return User{}, ErrEmailTaken
		}
	}
	u := User{ID: uuid.NewString(), Email: email, Name: name, PasswordHash: passwordHash, CreatedAt: m.tick()}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = normalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			u.APIKey = m.apiKeys[u.ID]
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (m *Memory) GetUser(ctx context.Context, id string) (User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, false, nil
	}
	u.APIKey = m.apiKeys[id]
	return u, true, nil
}

func (m *Memory) UpdateUser(ctx context.Context, id string, upd UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		for otherID, other := range m.users {
			if otherID != id && other.Email == email {
				return ErrEmailTaken
			}
		}
		u.Email = email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.APIKey != nil {
		m.apiKeys[id] = strings.TrimSpace(*upd.APIKey)
	}
	m.users[id] = u
	return nil
}
