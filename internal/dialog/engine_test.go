package dialog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoStepDef collects a word on the first step and terminates on the second.
func twoStepDef(name string) Definition {
	return Definition{
		Name: name,
		Steps: []Step{
			{
				Name:   "first",
				Prompt: "say a word",
				Handle: func(_ context.Context, ev Event, sc Scratch) (Result, error) {
					if ev.Text == "" {
						return Retry("try again"), nil
					}
					sc["word"] = ev.Text
					return Advance("second", "got it"), nil
				},
			},
			{
				Name:   "second",
				Prompt: "confirm?",
				Handle: func(_ context.Context, _ Event, sc Scratch) (Result, error) {
					return Done(fmt.Sprintf("word was %s", sc.String("word"))), nil
				},
			},
		},
	}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e := NewEngine(opts)
	t.Cleanup(e.Close)
	return e
}

func TestStartUnknownDialog(t *testing.T) {
	e := newTestEngine(t, Options{})
	_, _, err := e.Start(context.Background(), 1, 1, "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownDialog)
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEngine(t, Options{})

	err := e.Register(Definition{Name: "empty"})
	assert.Error(t, err)

	require.NoError(t, e.Register(twoStepDef("demo")))
	err = e.Register(twoStepDef("demo"))
	assert.Error(t, err)
}

func TestStartReturnsEntryPrompt(t *testing.T) {
	e := newTestEngine(t, Options{})
	require.NoError(t, e.Register(twoStepDef("demo")))

	turn, replaced, err := e.Start(context.Background(), 1, 10, "demo", nil)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, []string{"say a word"}, turn.Replies)
	assert.True(t, e.InProgress(1))
}

func TestRetryKeepsStep(t *testing.T) {
	e := newTestEngine(t, Options{})
	require.NoError(t, e.Register(twoStepDef("demo")))
	ctx := context.Background()

	_, _, err := e.Start(ctx, 1, 10, "demo", nil)
	require.NoError(t, err)

	turn, handled, err := e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: ""})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"try again"}, turn.Replies)
	assert.False(t, turn.Done)

	// Still on the first step: a word advances now.
	turn, handled, err = e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "hello"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"got it", "confirm?"}, turn.Replies)
}

func TestAdvanceToDone(t *testing.T) {
	e := newTestEngine(t, Options{})
	require.NoError(t, e.Register(twoStepDef("demo")))
	ctx := context.Background()

	_, _, err := e.Start(ctx, 1, 10, "demo", nil)
	require.NoError(t, err)
	_, _, err = e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "hello"})
	require.NoError(t, err)

	turn, handled, err := e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "yes"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, turn.Done)
	assert.Equal(t, []string{"word was hello"}, turn.Replies)
	assert.False(t, e.InProgress(1))

	// The terminated session consumes nothing further.
	_, handled, err = e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "more"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestStartReplacesRunningSession(t *testing.T) {
	e := newTestEngine(t, Options{})
	require.NoError(t, e.Register(twoStepDef("demo")))
	ctx := context.Background()

	_, _, err := e.Start(ctx, 1, 10, "demo", nil)
	require.NoError(t, err)
	_, _, err = e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "hello"})
	require.NoError(t, err)

	turn, replaced, err := e.Start(ctx, 1, 10, "demo", nil)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, []string{"say a word"}, turn.Replies)

	// The fresh session starts from scratch: an empty word retries again,
	// proving the collected state from the old session is gone.
	turn, _, err = e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "other"})
	require.NoError(t, err)
	assert.Equal(t, []string{"got it", "confirm?"}, turn.Replies)
	turn, _, err = e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"word was other"}, turn.Replies)
}

func TestChatsAdvanceIndependently(t *testing.T) {
	e := newTestEngine(t, Options{})
	require.NoError(t, e.Register(twoStepDef("demo")))
	ctx := context.Background()

	_, _, err := e.Start(ctx, 1, 10, "demo", nil)
	require.NoError(t, err)
	_, _, err = e.Start(ctx, 2, 20, "demo", nil)
	require.NoError(t, err)

	_, _, err = e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "one"})
	require.NoError(t, err)

	// Chat 2 is still on the first step.
	turn, handled, err := e.Advance(ctx, Event{Kind: EventText, ChatID: 2, ParticipantID: 20, Text: "two"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"got it", "confirm?"}, turn.Replies)
}

func TestAdvanceWithoutSession(t *testing.T) {
	e := newTestEngine(t, Options{})
	turn, handled, err := e.Advance(context.Background(), Event{Kind: EventText, ChatID: 7, Text: "hi"})
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, turn.Replies)
}

func TestUnacceptedEventKindIgnored(t *testing.T) {
	e := newTestEngine(t, Options{})
	require.NoError(t, e.Register(twoStepDef("demo")))
	ctx := context.Background()

	_, _, err := e.Start(ctx, 1, 10, "demo", nil)
	require.NoError(t, err)

	// The first step only accepts text; a button press neither advances nor
	// cancels.
	turn, handled, err := e.Advance(ctx, Event{Kind: EventButton, ChatID: 1, ParticipantID: 10, Data: "x"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Empty(t, turn.Replies)
	assert.True(t, e.InProgress(1))
}

func TestCancel(t *testing.T) {
	e := newTestEngine(t, Options{})
	require.NoError(t, e.Register(twoStepDef("demo")))
	ctx := context.Background()

	assert.False(t, e.Cancel(1))

	_, _, err := e.Start(ctx, 1, 10, "demo", nil)
	require.NoError(t, err)
	assert.True(t, e.Cancel(1))
	assert.False(t, e.InProgress(1))

	_, handled, err := e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "hi"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestAdvanceIgnoresOtherParticipants(t *testing.T) {
	e := newTestEngine(t, Options{})
	require.NoError(t, e.Register(twoStepDef("demo")))
	ctx := context.Background()

	_, _, err := e.Start(ctx, 1, 10, "demo", nil)
	require.NoError(t, err)

	// Another chat member cannot drive the session.
	turn, handled, err := e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 99, Text: "hijack"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Empty(t, turn.Replies)
	assert.True(t, e.InProgress(1))

	// The owner still advances from the first step, unaffected.
	turn, _, err = e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []string{"got it", "confirm?"}, turn.Replies)
	turn, _, err = e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"word was hello"}, turn.Replies)
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	var expiredChat int64
	var expiredDialog string
	e := newTestEngine(t, Options{
		IdleTTL:       time.Hour,
		SweepInterval: time.Hour,
		OnExpire: func(chatID int64, dialogName string) {
			expiredChat = chatID
			expiredDialog = dialogName
		},
	})
	require.NoError(t, e.Register(twoStepDef("demo")))
	ctx := context.Background()

	_, _, err := e.Start(ctx, 1, 10, "demo", nil)
	require.NoError(t, err)

	// Not idle for long enough yet.
	e.sweep(time.Now().Add(30 * time.Minute))
	assert.True(t, e.InProgress(1))

	e.sweep(time.Now().Add(2 * time.Hour))
	assert.False(t, e.InProgress(1))
	assert.Equal(t, int64(1), expiredChat)
	assert.Equal(t, "demo", expiredDialog)
}

func TestSweepDuringSlowStepDoesNotDeadlock(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	def := Definition{
		Name: "slow",
		Steps: []Step{
			{
				Name:   "only",
				Prompt: "go",
				Handle: func(_ context.Context, _ Event, _ Scratch) (Result, error) {
					close(entered)
					<-release
					return Done("bye"), nil
				},
			},
		},
	}
	e := newTestEngine(t, Options{IdleTTL: time.Hour, SweepInterval: time.Hour})
	require.NoError(t, e.Register(def))
	ctx := context.Background()

	_, _, err := e.Start(ctx, 1, 10, "slow", nil)
	require.NoError(t, err)

	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		_, _, err := e.Advance(ctx, Event{Kind: EventText, ChatID: 1, ParticipantID: 10, Text: "run"})
		assert.NoError(t, err)
	}()
	<-entered

	// A sweep that fires while the step handler is still running must not
	// wedge the engine when the handler then terminates the session.
	swept := make(chan struct{})
	go func() {
		defer close(swept)
		e.sweep(time.Now().Add(2 * time.Hour))
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case <-advanced:
	case <-time.After(2 * time.Second):
		t.Fatal("Advance did not return")
	}
	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not return")
	}
	assert.False(t, e.InProgress(1))
}

func TestScratchAccessors(t *testing.T) {
	sc := Scratch{"name": "Alice", "id": int64(7), "odd": 3.14}

	assert.Equal(t, "Alice", sc.String("name"))
	assert.Equal(t, "", sc.String("missing"))
	assert.Equal(t, "", sc.String("id"))

	id, ok := sc.Int64("id")
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	_, ok = sc.Int64("odd")
	assert.False(t, ok)
	_, ok = sc.Int64("missing")
	assert.False(t, ok)
}
