package bot

import (
	"context"
	"errors"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

// errTransportNotStarted is returned for sends attempted before the bot is
// connected to the platform.
var errTransportNotStarted = errors.New("bot: transport not started")

// telebotCourier adapts the running telebot instance to the adminmsg.Courier
// boundary. The bot handle arrives only once the runtime is up, hence the
// atomic pointer.
type telebotCourier struct {
	bot atomic.Pointer[tele.Bot]
}

func newCourier() *telebotCourier {
	return &telebotCourier{}
}

func (tc *telebotCourier) attach(b *tele.Bot) {
	tc.bot.Store(b)
}

// SendText makes a single delivery attempt to the recipient's chat.
func (tc *telebotCourier) SendText(_ context.Context, recipientID int64, text string) error {
	b := tc.bot.Load()
	if b == nil {
		return errTransportNotStarted
	}
	_, err := b.Send(&tele.User{ID: recipientID}, text)
	return err
}
