package server

import (
	"time"

	"github.com/mohammad-safakhou/ori/internal/pipeline"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// ProfileUpdateRequest changes account details. Omitted fields are kept;
// an empty apiKey clears the stored key.
type ProfileUpdateRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	CurrentPassword string  `json:"currentPassword"`
	NewPassword     string  `json:"newPassword"`
	APIKey          *string `json:"apiKey"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	HasAPIKey bool   `json:"hasApiKey"`
}

// ChatRequest submits a chat turn in push mode.
type ChatRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

// StepRequest asks for one stage in pull mode.
type StepRequest struct {
	ChatID          string                 `json:"chatId"`
	Message         string                 `json:"message"`
	Stage           string                 `json:"stage"`
	OriginalPrompt  string                 `json:"originalPrompt"`
	PreviousResults []pipeline.PriorOutput `json:"previousResults"`
}

// StepResponse is the single-stage result.
type StepResponse struct {
	MessageID     string `json:"messageId"`
	Content       string `json:"content"`
	SearchResults string `json:"searchResults,omitempty"`
	ChatID        string `json:"chatId"`
	Stage         string `json:"stage"`
	NextStage     string `json:"nextStage"`
	Completed     bool   `json:"completed"`
}

// ChatResponse describes a chat record.
type ChatResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CurrentStage string    `json:"currentStage"`
	IsCompleted  bool      `json:"isCompleted"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ChatSummaryResponse is a row of the recent chats listing.
type ChatSummaryResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	UpdatedAt   time.Time `json:"updatedAt"`
	LastMessage string    `json:"lastMessage"`
}

// MessageResponse is a stored message.
type MessageResponse struct {
	ID            string    `json:"id"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	Stage         string    `json:"stage,omitempty"`
	SearchResults string    `json:"searchResults,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
