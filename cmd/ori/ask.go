package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/ori/config"
	"github.com/mohammad-safakhou/ori/internal/pipeline"
	"github.com/mohammad-safakhou/ori/internal/runtime"
	srv "github.com/mohammad-safakhou/ori/internal/server"
	"github.com/mohammad-safakhou/ori/internal/stages"
	"github.com/mohammad-safakhou/ori/internal/store"
	"github.com/mohammad-safakhou/ori/internal/streaming"
)

const localUser = "local"

func askCMD(cfgPath *string) *cobra.Command {
	var raw bool
	var pull bool
	ask := &cobra.Command{
		Use:   "ask [question]",
		Short: "Run one question through every stage without a server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath, config.WithOverride("storage.driver", "memory"))
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.LLM.APIKey) == "" {
				return errors.New("llm.api_key (ORI_LLM_API_KEY) is required")
			}
			logger, err := runtime.NewLogger(cfg.General)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if !cfg.General.Debug {
				logger = zap.NewNop()
			}

			orch, err := srv.NewOrchestrator(cfg, store.NewMemory(), nil, logger)
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			if pull {
				return askPull(cmd.Context(), orch, question, out)
			}
			var sink streaming.Sink = streaming.NewWriterSink(out)
			if !raw {
				sink = textSink(out)
			}
			_, err = orch.Run(cmd.Context(), pipeline.PushRequest{UserID: localUser, ChatID: pipeline.NewChatID, Message: question}, sink)
			return err
		},
	}
	ask.Flags().BoolVar(&raw, "raw", false, "print the event stream as sent to HTTP clients")
	ask.Flags().BoolVar(&pull, "pull", false, "drive the stages one request at a time")
	return ask
}

// textSink renders events for a terminal.
func textSink(w io.Writer) streaming.Sink {
	return streaming.SinkFunc(func(_ context.Context, e streaming.Event) error {
		var err error
		switch e.Type {
		case streaming.TypeStep:
			_, err = fmt.Fprintf(w, "==> [%d/%d] %s\n", e.Index, e.Total, e.Description)
		case streaming.TypeMessage:
			_, err = fmt.Fprintf(w, "%s\n\n", e.Content)
		case streaming.TypeError:
			_, err = fmt.Fprintf(os.Stderr, "error in %s: %s\n\n", e.Stage, e.Message)
		case streaming.TypeEnd:
			_, err = fmt.Fprintln(w, "==> done")
		}
		return err
	})
}

func askPull(ctx context.Context, orch *pipeline.Orchestrator, question string, w io.Writer) error {
	chatID := pipeline.NewChatID
	var prior []pipeline.PriorOutput
	stage := stages.First().Name()
	for stage != stages.CompletedMarker {
		res, err := orch.Step(ctx, pipeline.StepRequest{
			UserID:         localUser,
			ChatID:         chatID,
			Message:        question,
			Stage:          stage,
			OriginalPrompt: question,
			Prior:          prior,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}
		if _, err := fmt.Fprintf(w, "==> %s\n%s\n\n", res.Stage, res.Content); err != nil {
			return err
		}
		chatID = res.ChatID
		prior = append(prior, pipeline.PriorOutput{Content: res.Content, SearchResults: res.SearchResults})
		stage = res.NextStage
	}
	return nil
}
