package streaming

import (
	"encoding/json"
	"fmt"
)

// EventType names a progress record.
type EventType string

const (
	TypeStep    EventType = "step"
	TypeMessage EventType = "message"
	TypeError   EventType = "error"
	TypeEnd     EventType = "end"
)

// Event is one progress record of a pipeline run.
//
// On the wire the "step" field is polymorphic: the 1-based stage index for
// step events and the stage name for message and error events.
type Event struct {
	Type EventType

	// step
	Index       int
	Total       int
	Description string

	// message
	ID            string
	Content       string
	SearchResults string

	// message, error
	Stage string

	// error
	Message string

	// Seq is assigned by the event log and never serialized.
	Seq uint64
}

func StepEvent(index, total int, description string) Event {
	return Event{Type: TypeStep, Index: index, Total: total, Description: description}
}

func MessageEvent(id, content, stage, searchResults string) Event {
	return Event{Type: TypeMessage, ID: id, Content: content, Stage: stage, SearchResults: searchResults}
}

// ErrorEvent reports a failure; stage may be empty when no stage was running.
func ErrorEvent(message, stage string) Event {
	return Event{Type: TypeError, Message: message, Stage: stage}
}

func EndEvent() Event { return Event{Type: TypeEnd} }

type wireEvent struct {
	Type          EventType       `json:"type"`
	ID            string          `json:"id,omitempty"`
	Content       *string         `json:"content,omitempty"`
	Step          json.RawMessage `json:"step,omitempty"`
	Total         int             `json:"total,omitempty"`
	Description   string          `json:"description,omitempty"`
	SearchResults string          `json:"searchResults,omitempty"`
	Message       *string         `json:"message,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{Type: e.Type}
	switch e.Type {
	case TypeStep:
		w.Step, _ = json.Marshal(e.Index)
		w.Total = e.Total
		w.Description = e.Description
	case TypeMessage:
		w.ID = e.ID
		content := e.Content
		w.Content = &content
		w.Step, _ = json.Marshal(e.Stage)
		w.SearchResults = e.SearchResults
	case TypeError:
		msg := e.Message
		w.Message = &msg
		if e.Stage != "" {
			w.Step, _ = json.Marshal(e.Stage)
		}
	case TypeEnd:
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	return json.Marshal(w)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := Event{
		Type:          w.Type,
		ID:            w.ID,
		Total:         w.Total,
		Description:   w.Description,
		SearchResults: w.SearchResults,
	}
	if w.Content != nil {
		out.Content = *w.Content
	}
	if w.Message != nil {
		out.Message = *w.Message
	}
	if len(w.Step) > 0 {
		switch w.Type {
		case TypeStep:
			if err := json.Unmarshal(w.Step, &out.Index); err != nil {
				return fmt.Errorf("step index: %w", err)
			}
		default:
			if err := json.Unmarshal(w.Step, &out.Stage); err != nil {
				return fmt.Errorf("step name: %w", err)
			}
		}
	}
	*e = out
	return nil
}
