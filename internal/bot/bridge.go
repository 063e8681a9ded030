package bot

import (
	tghelpers "tradebot/core/telegram/helpers"
	"tradebot/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

// dialogBridge routes telebot updates into the dialog engine and delivers
// the resulting turn back into the chat. Replies of one turn are sent
// synchronously so their order is preserved.
type dialogBridge struct {
	engine *dialog.Engine
}

// InProgress reports whether the chat runs a dialog; the message router uses
// it to decide between dialog routing and command/fallback routing.
func (b *dialogBridge) InProgress(chatID int64) bool {
	return b.engine.InProgress(chatID)
}

// Handle consumes a text update for an in-progress dialog.
func (b *dialogBridge) Handle(c tele.Context) error {
	return b.advance(c, eventFromText(c))
}

// HandleButton consumes an inline-button press routed to a dialog step.
func (b *dialogBridge) HandleButton(c tele.Context, data string) error {
	ev := eventFromText(c)
	ev.Kind = dialog.EventButton
	ev.Text = ""
	ev.Data = data
	return b.advance(c, ev)
}

func (b *dialogBridge) advance(c tele.Context, ev dialog.Event) error {
	ctx := tghelpers.BuildContext(c)
	turn, handled, err := b.engine.Advance(ctx, ev)
	if err != nil {
		_ = c.Send(genericErrorText)
		return err
	}
	if !handled {
		return nil
	}
	return sendTurn(c, turn)
}

// start begins a dialog for the chat, telling the participant when an
// in-progress session was discarded.
func (b *dialogBridge) start(c tele.Context, name string, initial dialog.Scratch) error {
	ctx := tghelpers.BuildContext(c)
	turn, replaced, err := b.engine.Start(ctx, c.Chat().ID, c.Sender().ID, name, initial)
	if err != nil {
		_ = c.Send(genericErrorText)
		return err
	}
	if replaced {
		if err := c.Send("Your previous session was cancelled."); err != nil {
			return err
		}
	}
	return sendTurn(c, turn)
}

func eventFromText(c tele.Context) dialog.Event {
	ev := dialog.Event{
		Kind: dialog.EventText,
		Text: c.Text(),
	}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	}
	if sender := c.Sender(); sender != nil {
		ev.ParticipantID = sender.ID
		ev.Username = sender.Username
	}
	return ev
}

// sendTurn delivers the turn's replies in order, attaching the markup to the
// last one.
func sendTurn(c tele.Context, t dialog.Turn) error {
	for i, reply := range t.Replies {
		last := i == len(t.Replies)-1
		if last && t.Markup != nil {
			if rm, ok := t.Markup.(*tele.ReplyMarkup); ok {
				if err := c.Send(reply, rm); err != nil {
					return err
				}
				continue
			}
		}
		if err := c.Send(reply); err != nil {
			return err
		}
	}
	return nil
}
