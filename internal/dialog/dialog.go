// Package dialog drives multi-step conversations: one dialog per chat at a
// time, advanced step by step as inbound events arrive. The engine only does
// session bookkeeping; business actions happen inside step handlers.
package dialog

import (
	"context"
	"fmt"
)

// EventKind discriminates the inbound updates a step is willing to consume.
type EventKind int

const (
	// EventText is a plain text message from the participant.
	EventText EventKind = iota
	// EventButton is an inline-button press (callback payload in Data).
	EventButton
)

// Event is one inbound update routed into an active session.
type Event struct {
	Kind          EventKind
	ChatID        int64
	ParticipantID int64
	Username      string
	Text          string
	Data          string
}

// Scratch accumulates values collected across the steps of one session.
// It is owned by the session and discarded with it.
type Scratch map[string]any

// String returns the scratch value for key as a string, or "" when absent.
func (s Scratch) String(key string) string {
	if v, ok := s[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// Int64 returns the scratch value for key as an int64.
func (s Scratch) Int64(key string) (int64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// Outcome tags what a step handler decided.
type Outcome int

const (
	// OutcomeRetry keeps the session at the current step.
	OutcomeRetry Outcome = iota
	// OutcomeAdvance moves the session to Result.Next.
	OutcomeAdvance
	// OutcomeDone terminates the session.
	OutcomeDone
)

// Result is a step handler's declared transition plus the reply to deliver.
type Result struct {
	Outcome Outcome
	Next    string
	Reply   string
	// Markup optionally attaches a keyboard to the reply. The engine treats
	// it as opaque; the transport layer knows what to do with it.
	Markup any
}

// Retry keeps the current step and sends reply back into the chat.
func Retry(reply string) Result {
	return Result{Outcome: OutcomeRetry, Reply: reply}
}

// Advance moves to the named step. An empty reply falls back to the next
// step's prompt.
func Advance(next, reply string) Result {
	return Result{Outcome: OutcomeAdvance, Next: next, Reply: reply}
}

// Done terminates the session with a final reply.
func Done(reply string) Result {
	return Result{Outcome: OutcomeDone, Reply: reply}
}

// Handler consumes the inbound event and the session scratch and declares
// the transition. Side effects (directory writes, message dispatch) belong
// here, not in the engine.
type Handler func(ctx context.Context, ev Event, sc Scratch) (Result, error)

// Step is one stop in a dialog definition.
type Step struct {
	Name   string
	Prompt string
	// PromptMarkup optionally attaches a keyboard to the prompt.
	PromptMarkup any
	Accepts      []EventKind
	Handle       Handler
}

func (s Step) accepts(kind EventKind) bool {
	if len(s.Accepts) == 0 {
		return kind == EventText
	}
	for _, k := range s.Accepts {
		if k == kind {
			return true
		}
	}
	return false
}

// Definition is a named, ordered set of steps. The first step is the entry
// point.
type Definition struct {
	Name  string
	Steps []Step
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("dialog: definition without a name")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("dialog %q: no steps", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for _, st := range d.Steps {
		if st.Name == "" {
			return fmt.Errorf("dialog %q: step without a name", d.Name)
		}
		if st.Handle == nil {
			return fmt.Errorf("dialog %q: step %q has no handler", d.Name, st.Name)
		}
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("dialog %q: duplicate step %q", d.Name, st.Name)
		}
		seen[st.Name] = struct{}{}
	}
	return nil
}

func (d *Definition) step(name string) (Step, bool) {
	for _, st := range d.Steps {
		if st.Name == name {
			return st, true
		}
	}
	return Step{}, false
}
