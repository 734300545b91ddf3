package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/mohammad-safakhou/ori/internal/stages"
	"github.com/mohammad-safakhou/ori/internal/streaming"
	"github.com/mohammad-safakhou/ori/provider"
	"github.com/mohammad-safakhou/ori/provider/models"
)

// scriptedCompleter answers per stage and records what it was sent.
type scriptedCompleter struct {
	mu        sync.Mutex
	replies   map[stages.Stage]string
	failures  map[stages.Stage][]error
	histories map[stages.Stage][][]models.Message
	originals []string
	calls     map[stages.Stage]int
}

func newScriptedCompleter() *scriptedCompleter {
	return &scriptedCompleter{
		replies: map[stages.Stage]string{
			stages.InitialResponse:    "Paris.",
			stages.VerifiedResponse:   "Paris is the capital of France.",
			stages.WebSearch:          "[[capital of France population]]",
			stages.ValidatedReasoning: "Paris, about 2.1 million people.",
			stages.FinalResponse:      "The capital of France is Paris.",
		},
		failures:  map[stages.Stage][]error{},
		histories: map[stages.Stage][][]models.Message{},
		calls:     map[stages.Stage]int{},
	}
}

// failWith queues errors returned by the next calls for stage.
func (c *scriptedCompleter) failWith(stage stages.Stage, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[stage] = append(c.failures[stage], errs...)
}

func (c *scriptedCompleter) Complete(_ context.Context, history []models.Message, stage stages.Stage, original string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[stage]++
	c.originals = append(c.originals, original)
	c.histories[stage] = append(c.histories[stage], append([]models.Message(nil), history...))
	if q := c.failures[stage]; len(q) > 0 {
		c.failures[stage] = q[1:]
		return "", q[0]
	}
	reply, ok := c.replies[stage]
	if !ok {
		return "", fmt.Errorf("no reply scripted for %s", stage)
	}
	return reply, nil
}

func (c *scriptedCompleter) lastHistory(stage stages.Stage) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.histories[stage]
	if len(h) == 0 {
		return nil
	}
	return h[len(h)-1]
}

// keyRecorder returns a factory handing out c and remembering the keys used.
func keyRecorder(c provider.Completer, keys *[]string) provider.Factory {
	return func(apiKey string) provider.Completer {
		*keys = append(*keys, apiKey)
		return c
	}
}

type searchFunc func(ctx context.Context, modelOutput string) string

func (f searchFunc) Search(ctx context.Context, modelOutput string) string { return f(ctx, modelOutput) }

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []streaming.Event
	err    error
}

func (r *recorder) Emit(_ context.Context, e streaming.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) ofType(t streaming.EventType) []streaming.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []streaming.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// seqLog is an in-memory EventAppender.
type seqLog struct {
	mu     sync.Mutex
	seq    map[string]uint64
	chatID []string
}

func (l *seqLog) Append(_ context.Context, chatID string, _ streaming.Event) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seq == nil {
		l.seq = map[string]uint64{}
	}
	l.seq[chatID]++
	l.chatID = append(l.chatID, chatID)
	return l.seq[chatID], nil
}
