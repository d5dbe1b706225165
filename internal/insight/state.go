package insight

import (
	"fmt"
	"time"

	"github.com/KaramelBytes/nutrilens-cli/internal/ai"
)

// Status names the phase of the insight state machine.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State is one of Idle, Loading, Success or Failure.
type State interface {
	Status() Status
	isState()
}

// Idle is the state before the first run.
type Idle struct{}

// Loading is published as soon as a run starts.
type Loading struct {
	RunID     string
	StartedAt time.Time
}

// Success carries one insight per task, in task order.
type Success struct {
	RunID      string
	Insights   []Insight
	FinishedAt time.Time
}

// Usage adds up the token usage of every insight in the run.
func (s Success) Usage() (total ai.Usage, estimated bool) {
	for _, in := range s.Insights {
		total.PromptTokens += in.Usage.PromptTokens
		total.CompletionTokens += in.Usage.CompletionTokens
		total.TotalTokens += in.Usage.TotalTokens
		estimated = estimated || in.Estimated
	}
	return total, estimated
}

// Failure means the run could not start generating at all.
type Failure struct {
	RunID      string
	Message    string
	FinishedAt time.Time
}

func (Idle) Status() Status    { return StatusIdle }
func (Loading) Status() Status { return StatusLoading }
func (Success) Status() Status { return StatusSuccess }
func (Failure) Status() Status { return StatusError }

func (Idle) isState()    {}
func (Loading) isState() {}
func (Success) isState() {}
func (Failure) isState() {}

// Insight is the titled outcome of one task. Failed insights carry the
// error text in place of the analysis.
type Insight struct {
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	Failed    bool     `json:"failed,omitempty"`
	Usage     ai.Usage `json:"usage,omitzero"`
	Estimated bool     `json:"usage_estimated,omitempty"`
}

// View is the serializable form of a State.
type View struct {
	Status   Status    `json:"status"`
	RunID    string    `json:"run_id,omitempty"`
	Insights []Insight `json:"insights,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at,omitzero"`
}

// Describe flattens s into a View.
func Describe(s State) View {
	switch st := s.(type) {
	case Idle:
		return View{Status: StatusIdle}
	case Loading:
		return View{Status: StatusLoading, RunID: st.RunID, At: st.StartedAt}
	case Success:
		return View{Status: StatusSuccess, RunID: st.RunID, Insights: st.Insights, At: st.FinishedAt}
	case Failure:
		return View{Status: StatusError, RunID: st.RunID, Error: st.Message, At: st.FinishedAt}
	default:
		panic(fmt.Sprintf("insight: unknown state %T", s))
	}
}
