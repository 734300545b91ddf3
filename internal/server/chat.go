package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/ori/internal/helpers"
	"github.com/mohammad-safakhou/ori/internal/pipeline"
	"github.com/mohammad-safakhou/ori/internal/runtime"
	"github.com/mohammad-safakhou/ori/internal/store"
	"github.com/mohammad-safakhou/ori/internal/streaming"
)

const (
	recentChatsLimit = 10
	defaultChatTitle = "New Chat"
	previewLength    = 120
)

// Repository is the chat storage behind the HTTP API.
type Repository interface {
	pipeline.Gateway
	pipeline.CredentialSource
	ListChats(ctx context.Context, userID string, limit int) ([]store.ChatSummary, error)
	DeleteChat(ctx context.Context, id string) error
}

// EventStore replays and drops per-chat progress history.
type EventStore interface {
	Replay(ctx context.Context, chatID string, since uint64) ([]streaming.Event, error)
	Delete(ctx context.Context, chatID string) error
}

type ChatHandler struct {
	Repo   Repository
	Orch   *pipeline.Orchestrator
	Events EventStore
	Logger *zap.Logger
}

func (h *ChatHandler) Register(api *echo.Group, secret []byte) {
	g := api.Group("", runtime.EchoAuthMiddleware(secret))
	g.POST("/chat", h.push)
	g.POST("/chat/step", h.step)
	g.POST("/chats", h.createChat)
	g.GET("/chats", h.listChats)
	g.DELETE("/chats/:chatId", h.deleteChat)
	g.GET("/chats/:chatId/events", h.events)
	g.GET("/messages/:chatId", h.listMessages)
}

// push
//
//	@Summary		Run a chat turn through every stage
//	@Description	Streams data-prefixed JSON events: step, message, error, end
//	@Tags			chat
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		text/event-stream
//	@Param			payload	body	ChatRequest	true	"Chat turn"
//	@Router			/api/chat [post]
func (h *ChatHandler) push(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	run, err := h.Orch.Prepare(c.Request().Context(), pipeline.PushRequest{
		UserID:  userID(c),
		ChatID:  strings.TrimSpace(req.ChatID),
		Message: req.Message,
	})
	if err != nil {
		return toHTTPError(err)
	}

	w := startEventStream(c)
	w.Header().Set("X-Chat-Id", run.ChatID())
	w.WriteHeader(http.StatusOK)
	w.Flush()
	if err := run.Execute(c.Request().Context(), streaming.NewWriterSink(w)); err != nil {
		h.Logger.Warn("chat run stopped", zap.String("chat_id", run.ChatID()), zap.Error(err))
	}
	return nil
}

// step
//
//	@Summary	Run a single stage
//	@Tags		chat
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		StepRequest	true	"Stage request"
//	@Success	200		{object}	StepResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Failure	403		{object}	HTTPError
//	@Failure	502		{object}	HTTPError
//	@Router		/api/chat/step [post]
func (h *ChatHandler) step(c echo.Context) error {
	var req StepRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.Orch.Step(c.Request().Context(), pipeline.StepRequest{
		UserID:         userID(c),
		ChatID:         strings.TrimSpace(req.ChatID),
		Message:        req.Message,
		Stage:          req.Stage,
		OriginalPrompt: req.OriginalPrompt,
		Prior:          req.PreviousResults,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, StepResponse{
		MessageID:     res.MessageID,
		Content:       res.Content,
		SearchResults: res.SearchResults,
		ChatID:        res.ChatID,
		Stage:         res.Stage,
		NextStage:     res.NextStage,
		Completed:     res.Completed,
	})
}

func (h *ChatHandler) createChat(c echo.Context) error {
	chat, err := h.Repo.CreateChat(c.Request().Context(), userID(c), defaultChatTitle)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, chatResponse(chat))
}

func (h *ChatHandler) listChats(c echo.Context) error {
	items, err := h.Repo.ListChats(c.Request().Context(), userID(c), recentChatsLimit)
	if err != nil {
		return toHTTPError(err)
	}
	out := make([]ChatSummaryResponse, 0, len(items))
	for _, it := range items {
		out = append(out, ChatSummaryResponse{ID: it.ID, Title: it.Title, UpdatedAt: it.UpdatedAt, LastMessage: helpers.Preview(it.LastMessage, previewLength)})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ChatHandler) deleteChat(c echo.Context) error {
	ctx := c.Request().Context()
	chatID := c.Param("chatId")
	if _, err := h.ownedChat(ctx, userID(c), chatID); err != nil {
		return toHTTPError(err)
	}
	if err := h.Repo.DeleteChat(ctx, chatID); err != nil {
		return toHTTPError(err)
	}
	if h.Events != nil {
		if err := h.Events.Delete(ctx, chatID); err != nil {
			h.Logger.Warn("event log cleanup failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Chat and associated messages deleted successfully"})
}

func (h *ChatHandler) listMessages(c echo.Context) error {
	ctx := c.Request().Context()
	chatID := c.Param("chatId")
	if chatID == pipeline.NewChatID {
		return c.JSON(http.StatusOK, []MessageResponse{})
	}
	if _, err := h.ownedChat(ctx, userID(c), chatID); err != nil {
		return toHTTPError(err)
	}
	msgs, err := h.Repo.ListMessages(ctx, chatID)
	if err != nil {
		return toHTTPError(err)
	}
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			ID:            m.ID,
			Role:          m.Role,
			Content:       m.Content,
			Stage:         m.Stage,
			SearchResults: m.SearchResults,
			CreatedAt:     m.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// events
//
//	@Summary		Replay progress events of a chat
//	@Description	Events with a sequence number greater than since (or Last-Event-ID)
//	@Tags			chat
//	@Security		BearerAuth
//	@Produce		text/event-stream
//	@Param			since	query	int	false	"Last sequence number seen"
//	@Router			/api/chats/{chatId}/events [get]
func (h *ChatHandler) events(c echo.Context) error {
	if h.Events == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "event log disabled")
	}
	ctx := c.Request().Context()
	chatID := c.Param("chatId")
	if _, err := h.ownedChat(ctx, userID(c), chatID); err != nil {
		return toHTTPError(err)
	}
	raw := c.QueryParam("since")
	if raw == "" {
		raw = c.Request().Header.Get("Last-Event-ID")
	}
	var since uint64
	if raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be a non-negative integer")
		}
		since = n
	}
	evts, err := h.Events.Replay(ctx, chatID, since)
	if err != nil {
		return toHTTPError(err)
	}
	w := startEventStream(c)
	w.WriteHeader(http.StatusOK)
	for _, e := range evts {
		if err := streaming.Encode(w, e); err != nil {
			return nil
		}
	}
	w.Flush()
	return nil
}

func (h *ChatHandler) ownedChat(ctx context.Context, userID, chatID string) (store.Chat, error) {
	chat, ok, err := h.Repo.GetChat(ctx, chatID)
	if err != nil {
		return store.Chat{}, err
	}
	if !ok {
		return store.Chat{}, pipeline.ErrNotFound
	}
	if chat.UserID != userID {
		return store.Chat{}, pipeline.ErrForbidden
	}
	return chat, nil
}

func startEventStream(c echo.Context) *echo.Response {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return w
}

func chatResponse(c store.Chat) ChatResponse {
	return ChatResponse{
		ID:           c.ID,
		Title:        c.Title,
		CurrentStage: c.CurrentStage,
		IsCompleted:  c.IsCompleted,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
