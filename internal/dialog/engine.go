package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tradebot/core/logger"

	"log/slog"
)

// ErrUnknownDialog reports a start request for an unregistered definition.
var ErrUnknownDialog = errors.New("dialog: unknown dialog")

// Turn is what the engine hands back to the transport layer after a start or
// an advance: replies to deliver into the chat, in order.
type Turn struct {
	Replies []string
	// Markup attaches to the last reply when non-nil.
	Markup any
	// Done reports that the session terminated on this turn.
	Done bool
}

func (t *Turn) push(reply string, markup any) {
	if reply != "" {
		t.Replies = append(t.Replies, reply)
	}
	if markup != nil {
		t.Markup = markup
	}
}

// Options configures the engine.
type Options struct {
	// IdleTTL auto-cancels sessions with no input for this long. Zero
	// disables expiry and retains the legacy keep-forever behaviour.
	IdleTTL time.Duration
	// SweepInterval overrides how often the janitor scans for idle
	// sessions; defaults to a quarter of IdleTTL.
	SweepInterval time.Duration
	// OnExpire is invoked (outside engine locks) for every expired session.
	OnExpire func(chatID int64, dialogName string)
}

// session is the per-chat conversation state. mu serializes event handling
// for the chat so same-chat events are processed strictly in arrival order.
type session struct {
	mu            sync.Mutex
	def           *Definition
	step          string
	scratch       Scratch
	participantID int64
	lastEvent     time.Time
	ended         bool
}

// Engine registers dialog definitions and tracks at most one session per
// chat. Different chats advance independently.
type Engine struct {
	opts Options

	mu       sync.Mutex
	defs     map[string]*Definition
	sessions map[int64]*session

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewEngine constructs an engine and starts the idle-expiry janitor when
// IdleTTL is set.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		opts:     opts,
		defs:     make(map[string]*Definition),
		sessions: make(map[int64]*session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if opts.IdleTTL > 0 {
		go e.sweepLoop()
	} else {
		close(e.done)
	}
	return e
}

// Register adds a dialog definition. Definitions are fixed at wiring time;
// duplicate names are a programmer error.
func (e *Engine) Register(def Definition) error {
	if err := def.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.defs[def.Name]; dup {
		return fmt.Errorf("dialog: duplicate definition %q", def.Name)
	}
	d := def
	e.defs[def.Name] = &d
	return nil
}

// Start creates the session for the chat and returns the entry step's
// prompt. A session already running for the chat is discarded; replaced
// reports that so the caller can tell the participant.
func (e *Engine) Start(ctx context.Context, chatID, participantID int64, name string, initial Scratch) (Turn, bool, error) {
	e.mu.Lock()
	def, ok := e.defs[name]
	if !ok {
		e.mu.Unlock()
		return Turn{}, false, fmt.Errorf("%w: %s", ErrUnknownDialog, name)
	}

	prev, replaced := e.sessions[chatID]

	sc := Scratch{}
	for k, v := range initial {
		sc[k] = v
	}
	s := &session{
		def:           def,
		step:          def.Steps[0].Name,
		scratch:       sc,
		participantID: participantID,
		lastEvent:     time.Now(),
	}
	e.sessions[chatID] = s
	e.mu.Unlock()

	if replaced {
		prev.mu.Lock()
		prev.ended = true
		prev.mu.Unlock()
		logger.Warn(ctx, "service.dialog", "dialog.replace",
			slog.Int64("chat_id", chatID),
			slog.String("dialog", prev.def.Name),
		)
	}
	logger.Info(ctx, "service.dialog", "dialog.start",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.Int64("participant_id", participantID),
		slog.String("dialog", name),
		slog.String("step", def.Steps[0].Name),
	)

	var t Turn
	t.push(def.Steps[0].Prompt, def.Steps[0].PromptMarkup)
	return t, replaced, nil
}

// Advance routes an inbound event into the chat's session. The second return
// value reports whether a session existed; false is the normal "not in a
// dialog" signal, not an error.
func (e *Engine) Advance(ctx context.Context, ev Event) (Turn, bool, error) {
	e.mu.Lock()
	s, ok := e.sessions[ev.ChatID]
	e.mu.Unlock()
	if !ok {
		return Turn{}, false, nil
	}

	s.mu.Lock()
	t, handled, err := e.advanceLocked(ctx, s, ev)
	ended := s.ended
	s.mu.Unlock()

	// Map cleanup happens only after the session lock is released; no
	// code path holds e.mu and a session lock at the same time.
	if ended {
		e.detach(ev.ChatID, s)
	}
	return t, handled, err
}

// advanceLocked runs one event against the session. The caller holds s.mu.
// Terminal paths mark the session ended and leave map removal to Advance.
func (e *Engine) advanceLocked(ctx context.Context, s *session, ev Event) (Turn, bool, error) {
	if s.ended {
		// Cancelled or replaced while this event was queued.
		return Turn{}, false, nil
	}

	if ev.ParticipantID != s.participantID {
		// Somebody else in the chat; only the participant who started
		// the dialog may drive it.
		logger.Debug(ctx, "service.dialog", "dialog.ignore",
			slog.Int64("chat_id", ev.ChatID),
			slog.Int64("participant_id", ev.ParticipantID),
			slog.String("dialog", s.def.Name),
			slog.String("cause", "foreign_participant"),
		)
		return Turn{}, true, nil
	}

	step, ok := s.def.step(s.step)
	if !ok {
		// Definitions are static; a missing step is a wiring bug.
		s.ended = true
		return Turn{}, true, fmt.Errorf("dialog %q: step %q not defined", s.def.Name, s.step)
	}

	if !step.accepts(ev.Kind) {
		logger.Debug(ctx, "service.dialog", "dialog.ignore",
			slog.Int64("chat_id", ev.ChatID),
			slog.String("dialog", s.def.Name),
			slog.String("step", step.Name),
		)
		return Turn{}, true, nil
	}

	s.lastEvent = time.Now()
	res, err := step.Handle(ctx, ev, s.scratch)
	if err != nil {
		logger.Error(ctx, "service.dialog", "dialog.step",
			slog.String("status", "fail"),
			slog.Int64("chat_id", ev.ChatID),
			slog.String("dialog", s.def.Name),
			slog.String("step", step.Name),
			slog.String("err", err.Error()),
		)
		return Turn{}, true, err
	}

	var t Turn
	switch res.Outcome {
	case OutcomeRetry:
		t.push(res.Reply, res.Markup)

	case OutcomeAdvance:
		next, ok := s.def.step(res.Next)
		if !ok {
			s.ended = true
			return Turn{}, true, fmt.Errorf("dialog %q: transition to undefined step %q", s.def.Name, res.Next)
		}
		s.step = next.Name
		t.push(res.Reply, res.Markup)
		if len(t.Replies) == 0 || next.Prompt != "" {
			t.push(next.Prompt, next.PromptMarkup)
		}
		logger.Debug(ctx, "service.dialog", "dialog.step",
			slog.String("status", "ok"),
			slog.Int64("chat_id", ev.ChatID),
			slog.String("dialog", s.def.Name),
			slog.String("step", next.Name),
		)

	case OutcomeDone:
		s.ended = true
		t.push(res.Reply, res.Markup)
		t.Done = true
		logger.Info(ctx, "service.dialog", "dialog.done",
			slog.String("status", "ok"),
			slog.Int64("chat_id", ev.ChatID),
			slog.String("dialog", s.def.Name),
		)
	}
	return t, true, nil
}

// Cancel drops the session for the chat, reporting whether one existed.
func (e *Engine) Cancel(chatID int64) bool {
	e.mu.Lock()
	s, ok := e.sessions[chatID]
	if ok {
		delete(e.sessions, chatID)
	}
	e.mu.Unlock()
	if ok {
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
	}
	return ok
}

// InProgress reports whether the chat currently runs a dialog.
func (e *Engine) InProgress(chatID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[chatID]
	return ok
}

// Close stops the idle-expiry janitor.
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}

// detach drops the chat's map entry if s is still the current session.
// Callers must not hold s.mu.
func (e *Engine) detach(chatID int64, s *session) {
	e.mu.Lock()
	if cur, ok := e.sessions[chatID]; ok && cur == s {
		delete(e.sessions, chatID)
	}
	e.mu.Unlock()
}

func (e *Engine) sweepLoop() {
	defer close(e.done)
	interval := e.opts.SweepInterval
	if interval <= 0 {
		interval = e.opts.IdleTTL / 4
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.sweep(time.Now())
		}
	}
}

type expired struct {
	chatID int64
	dialog string
}

// sweep cancels sessions idle beyond the TTL and notifies via OnExpire.
func (e *Engine) sweep(now time.Time) {
	e.mu.Lock()
	candidates := make(map[int64]*session, len(e.sessions))
	for chatID, s := range e.sessions {
		candidates[chatID] = s
	}
	e.mu.Unlock()

	var victims []expired
	for chatID, s := range candidates {
		s.mu.Lock()
		idle := !s.ended && now.Sub(s.lastEvent) >= e.opts.IdleTTL
		if idle {
			s.ended = true
		}
		name := s.def.Name
		s.mu.Unlock()
		if idle {
			e.detach(chatID, s)
			victims = append(victims, expired{chatID: chatID, dialog: name})
		}
	}

	for _, v := range victims {
		logger.Info(context.Background(), "service.dialog", "dialog.expire",
			slog.Int64("chat_id", v.chatID),
			slog.String("dialog", v.dialog),
		)
		if e.opts.OnExpire != nil {
			e.opts.OnExpire(v.chatID, v.dialog)
		}
	}
}
