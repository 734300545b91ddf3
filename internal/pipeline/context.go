package pipeline

import (
	"fmt"

	"github.com/mohammad-safakhou/ori/internal/stages"
	"github.com/mohammad-safakhou/ori/internal/store"
	"github.com/mohammad-safakhou/ori/provider/models"
)

// StageOutput is the result of one successful stage.
type StageOutput struct {
	Stage         stages.Stage
	Content       string
	SearchResults string
}

// PriorOutput is a stage result carried by a pull-mode caller.
type PriorOutput struct {
	Content       string `json:"content"`
	SearchResults string `json:"searchResults,omitempty"`
}

// BuildPushContext returns the context for the stage following outputs.
// Failed stages are simply absent from outputs.
func BuildPushContext(original string, outputs []StageOutput) []models.Message {
	history := make([]models.Message, 0, 1+3*len(outputs))
	history = append(history, models.Message{Role: models.RoleUser, Content: original})
	for _, out := range outputs {
		history = append(history, models.Message{Role: models.RoleAssistant, Content: out.Content})
		if out.SearchResults != "" {
			history = append(history, models.Message{Role: models.RoleSystem, Content: out.SearchResults})
		}
		history = append(history, models.Message{Role: models.RoleUser, Content: "proceed to stage " + out.Stage.NextName()})
	}
	return history
}

// BuildPullContext rebuilds context from caller-held outputs, the i-th
// output being labelled as catalog stage i.
func BuildPullContext(original string, prior []PriorOutput) []models.Message {
	if len(prior) == 0 {
		return []models.Message{{Role: models.RoleUser, Content: original}}
	}
	history := make([]models.Message, 0, 2*len(prior))
	for i, p := range prior {
		label := fmt.Sprintf("[Stage %d]", i+1)
		if name := stages.Stage(i).Name(); name != "" {
			label = fmt.Sprintf("[Stage %d: %s]", i+1, name)
		}
		history = append(history, models.Message{Role: models.RoleAssistant, Content: label + " " + p.Content})
		if p.SearchResults != "" {
			history = append(history, models.Message{Role: models.RoleSystem, Content: p.SearchResults})
		}
	}
	return history
}

// ReplayContext rebuilds from persisted messages the push context that
// stage saw (or would see) when run live in the chat's latest turn.
func ReplayContext(messages []store.Message, stage stages.Stage) []models.Message {
	original, outputs := outputsFromMessages(messages)
	kept := outputs[:0:0]
	for _, out := range outputs {
		if out.Stage < stage {
			kept = append(kept, out)
		}
	}
	return BuildPushContext(original, kept)
}

func outputsFromMessages(messages []store.Message) (string, []StageOutput) {
	var original string
	var outputs []StageOutput
	for _, m := range messages {
		switch {
		case m.Role == store.RoleUser && m.Stage == "":
			// Each user message opens a new turn; only the last one is replayed.
			original = m.Content
			outputs = nil
		case m.Role == store.RoleAssistant:
			st, ok := stages.Parse(m.Stage)
			if !ok {
				continue
			}
			outputs = append(outputs, StageOutput{Stage: st, Content: m.Content, SearchResults: m.SearchResults})
		}
	}
	return original, outputs
}
