package flows

import (
	"context"
	"testing"

	"tradebot/internal/adminmsg"
	"tradebot/internal/dialog"
	"tradebot/internal/directory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCourier struct {
	sent    []int64
	texts   []string
	failFor map[int64]error
}

func (c *recordingCourier) SendText(_ context.Context, recipientID int64, text string) error {
	if err, ok := c.failFor[recipientID]; ok {
		return err
	}
	c.sent = append(c.sent, recipientID)
	c.texts = append(c.texts, text)
	return nil
}

type fixture struct {
	engine  *dialog.Engine
	dir     *directory.Directory
	courier *recordingCourier
}

func newFixture(t *testing.T, domains []string) *fixture {
	t.Helper()
	dir := directory.New(directory.NewMemoryStore(), decimal.NewFromInt(10000))
	courier := &recordingCourier{failFor: map[int64]error{}}
	engine := dialog.NewEngine(dialog.Options{})
	t.Cleanup(engine.Close)
	require.NoError(t, Register(engine, Deps{
		Directory:    dir,
		Messenger:    adminmsg.New(dir, courier),
		EmailDomains: domains,
	}))
	return &fixture{engine: engine, dir: dir, courier: courier}
}

func (f *fixture) text(t *testing.T, chatID, participantID int64, text string) dialog.Turn {
	t.Helper()
	turn, handled, err := f.engine.Advance(context.Background(), dialog.Event{
		Kind:          dialog.EventText,
		ChatID:        chatID,
		ParticipantID: participantID,
		Username:      "tester",
		Text:          text,
	})
	require.NoError(t, err)
	require.True(t, handled)
	return turn
}

func TestRegistrationHappyPath(t *testing.T) {
	f := newFixture(t, []string{"gmail.com"})
	ctx := context.Background()

	turn, _, err := f.engine.Start(ctx, 101, 101, DialogRegistration, nil)
	require.NoError(t, err)
	require.Len(t, turn.Replies, 1)
	assert.Contains(t, turn.Replies[0], "full name")

	turn = f.text(t, 101, 101, "Alice Smith")
	require.Len(t, turn.Replies, 2)
	assert.Contains(t, turn.Replies[0], "Alice Smith")
	assert.Contains(t, turn.Replies[1], "email")

	turn = f.text(t, 101, 101, "Alice.Smith@GMAIL.com")
	assert.True(t, turn.Done)
	require.Len(t, turn.Replies, 1)
	assert.Contains(t, turn.Replies[0], "Registration complete")

	p, found, err := f.dir.Find(ctx, 101)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, directory.StatusPending, p.Status)
	assert.Equal(t, "Alice Smith", p.Name)
	assert.Equal(t, "tester", p.Username)
	assert.Equal(t, "alice.smith@gmail.com", p.Email)
}

func TestRegistrationRetriesOnBadInput(t *testing.T) {
	f := newFixture(t, []string{"gmail.com", "yahoo.com"})
	ctx := context.Background()

	_, _, err := f.engine.Start(ctx, 101, 101, DialogRegistration, nil)
	require.NoError(t, err)

	turn := f.text(t, 101, 101, "A")
	assert.False(t, turn.Done)
	assert.Contains(t, turn.Replies[0], "too short")

	f.text(t, 101, 101, "Alice")

	turn = f.text(t, 101, 101, "not-an-email")
	assert.False(t, turn.Done)
	assert.Contains(t, turn.Replies[0], "valid email")

	turn = f.text(t, 101, 101, "alice@corp.example")
	assert.False(t, turn.Done)
	assert.Contains(t, turn.Replies[0], "gmail.com, yahoo.com")

	turn = f.text(t, 101, 101, "alice@yahoo.com")
	assert.True(t, turn.Done)
}

func TestRegistrationAlreadyRegistered(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.dir.Register(ctx, directory.Participant{ID: 101, Name: "Alice"}))

	_, _, err := f.engine.Start(ctx, 101, 101, DialogRegistration, nil)
	require.NoError(t, err)
	f.text(t, 101, 101, "Alice")

	turn := f.text(t, 101, 101, "alice@anywhere.io")
	assert.True(t, turn.Done)
	assert.Contains(t, turn.Replies[0], "already registered")
}

func TestCheckEmailWithoutAllowList(t *testing.T) {
	assert.Empty(t, checkEmail("alice@corp.example", nil))
	assert.NotEmpty(t, checkEmail("alice@localhost", nil))
	assert.NotEmpty(t, checkEmail("nonsense", nil))
}
