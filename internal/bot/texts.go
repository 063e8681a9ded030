package bot

import (
	"fmt"

	"tradebot/core/telegram/format"
	"tradebot/internal/directory"
)

const welcomeText = `✨ *Welcome to Tradebot* ✨

🚀 Automated trading with realtime signals and managed portfolios.
💰 Zero usage fees for early participants.

Press the button below to register, or use /register.`

const (
	cancelledText     = "Okay, cancelled. Nothing was saved."
	nothingToCancel   = "You don't have anything in progress."
	notUnderstoodText = "I didn't understand that. Try /start."
	deniedText        = "This command is reserved for operators."
	genericErrorText  = "Something went wrong on our side. Please try again."
)

func dashboardText(active, pending int) string {
	return fmt.Sprintf(`👑 *Operator Dashboard*

▸ Active participants: %d
▸ Pending approvals: %d`, active, pending)
}

// statusText greets an already-known participant on /start.
func statusText(p directory.Participant) string {
	name, err := format.EscapeMarkdown(p.Name, format.MarkdownV1, "")
	if err != nil {
		name = p.Name
	}
	if p.Active() {
		return fmt.Sprintf("Welcome back, *%s*! Your account is active.\nBalance: %s USDT · trading enabled.",
			name, p.Portfolio.Balance.StringFixed(2))
	}
	return fmt.Sprintf("Hi *%s*, your registration is still awaiting operator approval. We'll let you know!", name)
}

func approvedNoticeText(p directory.Participant) string {
	return fmt.Sprintf("🎉 Congratulations %s! Your account has been approved. Trading is now enabled with a starting balance of %s USDT.",
		p.Name, p.Portfolio.Balance.StringFixed(2))
}

func expiredSessionText(dialogName string) string {
	return fmt.Sprintf("Your %s session expired after inactivity. Start again whenever you're ready.", humanDialogName(dialogName))
}

func humanDialogName(name string) string {
	switch name {
	case "registration":
		return "registration"
	case "direct_message":
		return "direct message"
	case "broadcast":
		return "broadcast"
	}
	return name
}
