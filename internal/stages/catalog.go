package stages

import "strings"

// Stage identifies one step of the fixed reasoning sequence.
type Stage int

const (
	InitialResponse Stage = iota
	VerifiedResponse
	WebSearch
	ValidatedReasoning
	FinalResponse
)

// CompletedMarker is persisted as the chat's current stage once every stage has run.
const CompletedMarker = "completed"

// Persona is prepended to every stage prompt.
const Persona = "You are an AI assistant named Ori, an AI-powered agent operations platform. " +
	"You will never say your actual model name and only refer to yourself as Ori, this is imperative. " +
	"You will be provided with a question or set of instructions to follow. " +
	"You can search the internet with [[search query]] and you will be provided with search results. " +
	"You will then provide a response in accordance with the instructions."

// Definition is the static configuration of a stage.
type Definition struct {
	Name        string
	Description string
	Prompt      string
}

var catalog = [...]Definition{
	InitialResponse: {
		Name:        "Initial response",
		Description: "Drafting an initial answer",
		Prompt:      "This is the initial response step. Provide a concise answer based on your current knowledge.",
	},
	VerifiedResponse: {
		Name:        "Verified response",
		Description: "Reviewing the draft for accuracy and completeness",
		Prompt:      "This is the verified response step. Review and refine the initial response, ensuring accuracy and completeness.",
	},
	WebSearch: {
		Name:        "Web search",
		Description: "Searching the web for supporting information",
		Prompt: "This is the web search step. Identify the key topic that requires additional information and formulate a single search query. " +
			"Respond with the query wrapped in double brackets, like [[your query]], and nothing else.",
	},
	ValidatedReasoning: {
		Name:        "Validated reasoning",
		Description: "Checking the answer against the search results",
		Prompt:      "This is the validated reasoning step. Integrate the web search results provided in the conversation with your initial knowledge to provide a comprehensive answer.",
	},
	FinalResponse: {
		Name:        "Final response",
		Description: "Writing the final answer",
		Prompt:      "This is the final response step. Summarize all findings and provide a definitive answer to the user's query.",
	},
}

// All returns every stage in catalog order.
func All() []Stage {
	out := make([]Stage, len(catalog))
	for i := range catalog {
		out[i] = Stage(i)
	}
	return out
}

// Count is the number of stages in the catalog.
func Count() int { return len(catalog) }

// First is the state a new chat starts in.
func First() Stage { return InitialResponse }

// Valid reports whether s is a catalog stage.
func (s Stage) Valid() bool { return s >= 0 && int(s) < len(catalog) }

func (s Stage) Definition() Definition {
	if !s.Valid() {
		return Definition{}
	}
	return catalog[s]
}

func (s Stage) Name() string        { return s.Definition().Name }
func (s Stage) Description() string { return s.Definition().Description }
func (s Stage) String() string      { return s.Name() }

// Index is the 1-based position used in progress events.
func (s Stage) Index() int { return int(s) + 1 }

// SearchesWeb reports whether the stage triggers the search adapter.
func (s Stage) SearchesWeb() bool { return s == WebSearch }

// SystemPrompt is the persona followed by the stage's prompt fragment.
func (s Stage) SystemPrompt() string {
	if !s.Valid() {
		return Persona
	}
	return Persona + " " + catalog[s].Prompt
}

// Next is the transition function. ok is false when s is the last stage.
func (s Stage) Next() (next Stage, ok bool) {
	if !s.Valid() || int(s) == len(catalog)-1 {
		return s, false
	}
	return s + 1, true
}

// NextName returns the name of the following stage or CompletedMarker.
func (s Stage) NextName() string {
	if n, ok := s.Next(); ok {
		return n.Name()
	}
	return CompletedMarker
}

// Parse resolves a stage by name, ignoring case and surrounding space.
func Parse(name string) (Stage, bool) {
	name = strings.TrimSpace(name)
	for i, d := range catalog {
		if strings.EqualFold(d.Name, name) {
			return Stage(i), true
		}
	}
	return 0, false
}
