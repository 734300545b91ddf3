package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/ori/internal/metrics"
	"github.com/mohammad-safakhou/ori/internal/stages"
	"github.com/mohammad-safakhou/ori/internal/store"
	"github.com/mohammad-safakhou/ori/internal/streaming"
	"github.com/mohammad-safakhou/ori/provider"
)

// PushRequest submits one chat turn to be run through every stage.
type PushRequest struct {
	UserID  string
	ChatID  string
	Message string
}

// Run is a prepared push-mode run: the chat is resolved and the user
// message persisted, but no stage has started.
type Run struct {
	o         *Orchestrator
	chat      store.Chat
	completer provider.Completer
	original  string
}

// ChatID is the chat this run writes to.
func (r *Run) ChatID() string { return r.chat.ID }

// Prepare performs every check that can reject a turn. Errors returned here
// leave no state behind other than what was created before the failure.
func (o *Orchestrator) Prepare(ctx context.Context, req PushRequest) (*Run, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	chat, found, err := o.resolveChat(ctx, req.UserID, req.ChatID)
	if err != nil {
		return nil, err
	}
	completer, err := o.completerFor(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !found {
		chat, err = o.gateway.CreateChat(ctx, req.UserID, o.title(text))
		if err != nil {
			return nil, fmt.Errorf("create chat: %w", err)
		}
	}
	if _, err := o.gateway.CreateMessage(ctx, store.NewMessage{
		ChatID:  chat.ID,
		UserID:  req.UserID,
		Role:    store.RoleUser,
		Content: req.Message,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	return &Run{o: o, chat: chat, completer: completer, original: req.Message}, nil
}

// Execute runs every stage in catalog order and reports progress to sink.
// Cancelling ctx does not stop the run; a caller that goes away only stops
// receiving events. The returned error is non-nil only when the run stopped
// early under FailClosed or could not be marked complete.
func (r *Run) Execute(ctx context.Context, sink streaming.Sink) error {
	ctx = context.WithoutCancel(ctx)
	o := r.o
	log := o.logger.With(zap.String("chat_id", r.chat.ID), zap.String("mode", "push"))
	if sink == nil {
		sink = streaming.Discard
	}

	var outputs []StageOutput
	failed := 0
	for _, st := range stages.All() {
		upd := store.ChatUpdate{CurrentStage: stringPtr(st.Name())}
		if st == stages.First() {
			// A new turn on a completed chat reopens it.
			upd.IsCompleted = boolPtr(false)
		}
		err := o.gateway.UpdateChat(ctx, r.chat.ID, upd)
		if err != nil {
			err = fmt.Errorf("enter stage: %w", err)
		} else {
			r.emit(ctx, sink, log, streaming.StepEvent(st.Index(), stages.Count(), st.Description()))
			var msg store.Message
			msg, err = o.runStage(ctx, stageRun{
				chat:      r.chat,
				completer: r.completer,
				stage:     st,
				history:   BuildPushContext(r.original, outputs),
				original:  r.original,
				mode:      "push",
			})
			if err == nil {
				outputs = append(outputs, StageOutput{Stage: st, Content: msg.Content, SearchResults: msg.SearchResults})
				r.emit(ctx, sink, log, streaming.MessageEvent(msg.ID, msg.Content, st.Name(), msg.SearchResults))
				continue
			}
		}

		failed++
		r.emit(ctx, sink, log, streaming.ErrorEvent(err.Error(), st.Name()))
		if o.settings.FailMode == FailClosed {
			metrics.PipelineRuns.WithLabelValues("push", "aborted").Inc()
			log.Warn("run stopped after stage failure", zap.String("stage", st.Name()), zap.Error(err))
			return fmt.Errorf("stage %q: %w", st.Name(), err)
		}
	}

	now := o.now()
	if err := o.gateway.UpdateChat(ctx, r.chat.ID, store.ChatUpdate{
		CurrentStage: stringPtr(stages.CompletedMarker),
		IsCompleted:  boolPtr(true),
		UpdatedAt:    &now,
	}); err != nil {
		r.emit(ctx, sink, log, streaming.ErrorEvent(err.Error(), ""))
		metrics.PipelineRuns.WithLabelValues("push", "error").Inc()
		return fmt.Errorf("complete chat: %w", err)
	}
	r.emit(ctx, sink, log, streaming.EndEvent())

	status := "completed"
	if failed > 0 {
		status = "partial"
	}
	metrics.PipelineRuns.WithLabelValues("push", status).Inc()
	log.Info("run finished", zap.Int("failed_stages", failed))
	return nil
}

// emit records e in the event log, if any, then hands it to sink. Delivery
// failures are logged and otherwise ignored.
func (r *Run) emit(ctx context.Context, sink streaming.Sink, log *zap.Logger, e streaming.Event) {
	if r.o.events != nil {
		seq, err := r.o.events.Append(ctx, r.chat.ID, e)
		if err != nil {
			log.Warn("event log append failed", zap.String("type", string(e.Type)), zap.Error(err))
		} else {
			e.Seq = seq
		}
	}
	metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()
	if err := sink.Emit(ctx, e); err != nil {
		log.Debug("event delivery failed", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

// Run prepares and executes a push-mode turn.
func (o *Orchestrator) Run(ctx context.Context, req PushRequest, sink streaming.Sink) (string, error) {
	run, err := o.Prepare(ctx, req)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("push", "rejected").Inc()
		return "", err
	}
	return run.ChatID(), run.Execute(ctx, sink)
}
