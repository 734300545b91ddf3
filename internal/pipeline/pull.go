package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/ori/internal/metrics"
	"github.com/mohammad-safakhou/ori/internal/stages"
	"github.com/mohammad-safakhou/ori/internal/store"
)

// StepRequest asks for a single stage. Prior holds the outputs of the
// stages before it, in catalog order, as returned by earlier steps.
type StepRequest struct {
	UserID         string
	ChatID         string
	Message        string
	Stage          string
	OriginalPrompt string
	Prior          []PriorOutput
}

// StepResult is the outcome of one pull-mode stage.
type StepResult struct {
	ChatID        string
	MessageID     string
	Stage         string
	Content       string
	SearchResults string
	// NextStage is the stage to request next, or stages.CompletedMarker.
	NextStage string
	Completed bool
}

// Step runs exactly one stage. On failure the chat stays parked at the
// requested stage so the same request can be retried. A stage already
// answered in the chat's current turn is not run again.
func (o *Orchestrator) Step(ctx context.Context, req StepRequest) (StepResult, error) {
	stage, ok := stages.Parse(req.Stage)
	if !ok {
		return StepResult{}, fmt.Errorf("%w: %q", ErrInvalidStage, req.Stage)
	}
	original := req.OriginalPrompt
	if strings.TrimSpace(original) == "" {
		original = req.Message
	}
	if strings.TrimSpace(original) == "" {
		return StepResult{}, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	chat, found, err := o.resolveChat(ctx, req.UserID, req.ChatID)
	if err != nil {
		return StepResult{}, err
	}
	completer, err := o.completerFor(ctx, req.UserID)
	if err != nil {
		return StepResult{}, err
	}
	if !found {
		chat, err = o.gateway.CreateChat(ctx, req.UserID, o.title(original))
		if err != nil {
			return StepResult{}, fmt.Errorf("create chat: %w", err)
		}
	}
	log := o.logger.With(zap.String("chat_id", chat.ID), zap.String("stage", stage.Name()), zap.String("mode", "pull"))

	var turn chatTurn
	if found {
		if turn, err = o.loadTurn(ctx, chat.ID); err != nil {
			return StepResult{}, err
		}
	}
	if stage == stages.First() {
		content := userContent(req.Message, original)
		if !turn.startedWith(content) {
			if err := o.persistUserMessage(ctx, chat, content); err != nil {
				return StepResult{}, err
			}
			turn = chatTurn{}
		}
	}
	if prev, ok := turn.answers[stage]; ok {
		// Already answered in this turn: hand back the stored message and
		// leave the chat where it is.
		metrics.PipelineRuns.WithLabelValues("pull", "replayed").Inc()
		log.Info("step already answered", zap.String("message_id", prev.ID))
		res := StepResult{
			ChatID:        chat.ID,
			MessageID:     prev.ID,
			Stage:         stage.Name(),
			Content:       prev.Content,
			SearchResults: prev.SearchResults,
			NextStage:     stage.NextName(),
		}
		_, more := stage.Next()
		res.Completed = !more
		return res, nil
	}
	if err := o.gateway.UpdateChat(ctx, chat.ID, store.ChatUpdate{CurrentStage: stringPtr(stage.Name())}); err != nil {
		return StepResult{}, fmt.Errorf("enter stage: %w", err)
	}

	msg, err := o.runStage(ctx, stageRun{
		chat:      chat,
		completer: completer,
		stage:     stage,
		history:   BuildPullContext(original, req.Prior),
		original:  original,
		mode:      "pull",
	})
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("pull", "error").Inc()
		return StepResult{}, err
	}

	res := StepResult{
		ChatID:        chat.ID,
		MessageID:     msg.ID,
		Stage:         stage.Name(),
		Content:       msg.Content,
		SearchResults: msg.SearchResults,
		NextStage:     stage.NextName(),
	}
	upd := store.ChatUpdate{CurrentStage: stringPtr(res.NextStage)}
	if _, more := stage.Next(); !more {
		now := o.now()
		upd.IsCompleted = boolPtr(true)
		upd.UpdatedAt = &now
		res.Completed = true
	}
	if err := o.gateway.UpdateChat(ctx, chat.ID, upd); err != nil {
		return StepResult{}, fmt.Errorf("advance stage: %w", err)
	}
	metrics.PipelineRuns.WithLabelValues("pull", "ok").Inc()
	log.Info("step finished", zap.String("next_stage", res.NextStage))
	return res, nil
}

// chatTurn is the latest user message of a chat and the stage answers
// persisted after it.
type chatTurn struct {
	user    *store.Message
	answers map[stages.Stage]store.Message
}

func (t chatTurn) startedWith(content string) bool {
	return t.user != nil && t.user.Content == content
}

func (o *Orchestrator) loadTurn(ctx context.Context, chatID string) (chatTurn, error) {
	msgs, err := o.gateway.ListMessages(ctx, chatID)
	if err != nil {
		return chatTurn{}, fmt.Errorf("list messages: %w", err)
	}
	var turn chatTurn
	for i := range msgs {
		m := msgs[i]
		switch m.Role {
		case store.RoleUser:
			turn = chatTurn{user: &m}
		case store.RoleAssistant:
			st, ok := stages.Parse(m.Stage)
			if !ok || turn.user == nil {
				continue
			}
			if turn.answers == nil {
				turn.answers = map[stages.Stage]store.Message{}
			}
			if _, dup := turn.answers[st]; !dup {
				turn.answers[st] = m
			}
		}
	}
	return turn, nil
}

func userContent(message, original string) string {
	if strings.TrimSpace(message) == "" {
		return original
	}
	return message
}

func (o *Orchestrator) persistUserMessage(ctx context.Context, chat store.Chat, content string) error {
	if _, err := o.gateway.CreateMessage(ctx, store.NewMessage{
		ChatID:  chat.ID,
		UserID:  chat.UserID,
		Role:    store.RoleUser,
		Content: content,
	}); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	return nil
}
