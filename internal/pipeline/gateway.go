package pipeline

import (
	"context"

	"github.com/mohammad-safakhou/ori/internal/store"
	"github.com/mohammad-safakhou/ori/internal/streaming"
)

// Gateway is the persistence the orchestrator needs. It never deletes.
type Gateway interface {
	CreateChat(ctx context.Context, userID, title string) (store.Chat, error)
	GetChat(ctx context.Context, id string) (store.Chat, bool, error)
	UpdateChat(ctx context.Context, id string, upd store.ChatUpdate) error
	CreateMessage(ctx context.Context, in store.NewMessage) (store.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]store.Message, error)
}

// CredentialSource resolves the completion API key stored for a user.
type CredentialSource interface {
	GetUserAPIKey(ctx context.Context, userID string) (string, error)
}

// EventAppender records emitted events so they can be replayed later.
type EventAppender interface {
	Append(ctx context.Context, chatID string, e streaming.Event) (uint64, error)
}
