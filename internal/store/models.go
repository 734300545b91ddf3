package store

import (
	"errors"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrChatNotFound is returned by updates against a chat that does not exist.
	ErrChatNotFound = errors.New("chat not found")
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already exists")
)

// User is an account. APIKey is the completion key the user stored, if any.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	APIKey       string
	CreatedAt    time.Time
}

// UserUpdate lists the mutable user fields; nil fields are left untouched.
type UserUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
	APIKey       *string
}

// Chat is one conversation. CurrentStage holds the name of the stage most
// recently entered, or stages.CompletedMarker.
type Chat struct {
	ID           string
	UserID       string
	Title        string
	CurrentStage string
	IsCompleted  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChatUpdate lists the mutable chat fields; nil fields are left untouched.
type ChatUpdate struct {
	CurrentStage *string
	IsCompleted  *bool
	UpdatedAt    *time.Time
}

// Message is immutable once created. Stage and SearchResults are empty when absent.
type Message struct {
	ID            string
	ChatID        string
	UserID        string
	Role          string
	Content       string
	Stage         string
	SearchResults string
	CreatedAt     time.Time
}

// NewMessage carries the fields supplied when appending a message.
type NewMessage struct {
	ChatID        string
	UserID        string
	Role          string
	Content       string
	Stage         string
	SearchResults string
}

// ChatSummary is a row of the recent chats listing.
type ChatSummary struct {
	ID          string
	Title       string
	UpdatedAt   time.Time
	LastMessage string
}
