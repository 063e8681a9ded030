package bot

import (
	"errors"
	"fmt"
	"strconv"

	coretelegram "tradebot/core/telegram"
	"tradebot/core/telegram/callbacks"
	"tradebot/core/telegram/commands"
	tghelpers "tradebot/core/telegram/helpers"
	"tradebot/core/telegram/keyboard"
	"tradebot/internal/directory"
	"tradebot/internal/flows"

	"github.com/samber/lo"
	tele "gopkg.in/telebot.v4"
)

// Inline-button keys registered with the callback router.
const (
	callbackRegister = "reg"
	callbackApprove  = "approve"
)

func (a *App) registerCommands(reg *coretelegram.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Welcome and registration",
	})
	reg.RegisterCommand("/register", commands.Command{
		Handler:     a.handleRegister,
		Description: "Create your trading account",
		Aliases:     []string{"signup"},
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handleCancel,
		Description: "Cancel the current operation",
	})
	reg.RegisterCommand("/dashboard", commands.Command{
		Handler:      a.handleDashboard,
		Description:  "Participant overview",
		OperatorOnly: true,
	})
	reg.RegisterCommand("/approve", commands.Command{
		Handler:      a.handleApprove,
		Description:  "Approve a pending participant",
		OperatorOnly: true,
	})
	reg.RegisterCommand("/message", commands.Command{
		Handler:      a.handleMessage,
		Description:  "Message one participant",
		OperatorOnly: true,
	})
	reg.RegisterCommand("/broadcast", commands.Command{
		Handler:      a.handleBroadcast,
		Description:  "Broadcast to active participants",
		OperatorOnly: true,
	})
}

func (a *App) registerCallbacks(reg *coretelegram.Registry) error {
	if err := reg.RegisterCallback(callbackRegister, a.handleRegister); err != nil {
		return err
	}
	if err := reg.RegisterCallback(callbackApprove, a.handleApproveButton); err != nil {
		return err
	}
	return reg.RegisterCallback(flows.CallbackBroadcastAll, func(c tele.Context) error {
		return a.bridge.HandleButton(c, "all")
	})
}

// handleStart greets newcomers with the product blurb and a register button;
// known participants get their account status instead.
func (a *App) handleStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if sender := c.Sender(); sender != nil {
		p, found, err := a.dir.Find(ctx, sender.ID)
		if err != nil {
			return err
		}
		if found {
			return tghelpers.SendMD(c, statusText(p))
		}
	}

	markup := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "📝 Register", Unique: callbackRegister},
	})
	if logo := a.cfg.Assets.LogoURL; logo != "" {
		photo := &tele.Photo{
			File:    tele.FromURL(logo),
			Caption: welcomeText,
		}
		return c.Send(photo, &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup})
	}
	return tghelpers.SendMD(c, welcomeText, markup)
}

func (a *App) handleRegister(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if sender := c.Sender(); sender != nil {
		if _, found, err := a.dir.Find(ctx, sender.ID); err != nil {
			return err
		} else if found {
			return c.Send("You are already registered.")
		}
	}
	return a.bridge.start(c, flows.DialogRegistration, nil)
}

func (a *App) handleCancel(c tele.Context) error {
	if a.engine.Cancel(c.Chat().ID) {
		return c.Send(cancelledText)
	}
	return c.Send(nothingToCancel)
}

// handleDashboard shows directory counts plus one approve button per pending
// participant.
func (a *App) handleDashboard(c tele.Context) error {
	return a.renderDashboard(c, false)
}

func (a *App) renderDashboard(c tele.Context, edit bool) error {
	ctx := tghelpers.BuildContext(c)
	pending, active, err := a.dir.Counts(ctx)
	if err != nil {
		return err
	}
	waiting, err := a.dir.ListPending(ctx)
	if err != nil {
		return err
	}

	rows := lo.Map(waiting, func(p directory.Participant, _ int) []keyboard.InlineBtn {
		return []keyboard.InlineBtn{{
			Text:   fmt.Sprintf("✅ Approve %s (%d)", p.Name, p.ID),
			Unique: callbackApprove,
			Data:   strconv.FormatInt(p.ID, 10),
		}}
	})
	if edit {
		return tghelpers.EditOrSendMD(c, dashboardText(active, pending), keyboard.InlineButtonsRows(rows...))
	}
	return tghelpers.SendMD(c, dashboardText(active, pending), keyboard.InlineButtonsRows(rows...))
}

// handleApprove approves by explicit id: /approve 12345.
func (a *App) handleApprove(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /approve <participant id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Usage: /approve <participant id>")
	}
	return a.approve(c, id)
}

// handleApproveButton approves via a dashboard button press and refreshes
// the dashboard message in place.
func (a *App) handleApproveButton(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Malformed approval"})
	}
	if err := a.approve(c, id); err != nil {
		return err
	}
	return a.renderDashboard(c, true)
}

func (a *App) approve(c tele.Context, id int64) error {
	ctx := tghelpers.BuildContext(c)
	p, err := a.dir.Approve(ctx, id)
	if errors.Is(err, directory.ErrNotPending) {
		return c.Send(fmt.Sprintf("Participant %d is not pending approval.", id))
	}
	if err != nil {
		return err
	}

	// Tell the participant; a failed notice does not undo the approval.
	if err := a.messenger.SendDirect(ctx, p.ID, approvedNoticeText(p)); err != nil {
		return c.Send(fmt.Sprintf("%s approved, but the notification failed: %v", p.Name, err))
	}
	return c.Send(fmt.Sprintf("%s (%d) approved and notified.", p.Name, p.ID))
}

func (a *App) handleMessage(c tele.Context) error {
	return a.bridge.start(c, flows.DialogDirectMessage, nil)
}

func (a *App) handleBroadcast(c tele.Context) error {
	return a.bridge.start(c, flows.DialogBroadcast, nil)
}
