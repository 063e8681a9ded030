package flows

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tradebot/core/telegram/keyboard"
	"tradebot/internal/dialog"
	"tradebot/internal/directory"

	"github.com/samber/lo"
)

// Broadcast step names.
const (
	StepAwaitingRecipients    = "awaiting_recipients"
	StepAwaitingBroadcastBody = "awaiting_broadcast_body"
)

// CallbackBroadcastAll is the inline-button key that selects every active
// participant as the recipient set.
const CallbackBroadcastAll = "bcast_all"

const scratchRecipientIDs = "recipient_ids"

// Broadcast builds the operator fan-out flow. The recipient-selection step
// narrows the active snapshot; pressing "all" (or sending nothing specific)
// keeps the full set.
func Broadcast(deps Deps) dialog.Definition {
	return dialog.Definition{
		Name: DialogBroadcast,
		Steps: []dialog.Step{
			{
				Name:   StepAwaitingRecipients,
				Prompt: "Who should receive this broadcast? Press the button for everyone, or send participant IDs separated by spaces.",
				PromptMarkup: keyboard.InlineButtons([]keyboard.InlineBtn{
					{Text: "📢 All active participants", Unique: CallbackBroadcastAll, Data: "all"},
				}),
				Accepts: []dialog.EventKind{dialog.EventText, dialog.EventButton},
				Handle: func(_ context.Context, ev dialog.Event, sc dialog.Scratch) (dialog.Result, error) {
					if ev.Kind == dialog.EventButton {
						// Full active snapshot; no narrowing.
						return dialog.Advance(StepAwaitingBroadcastBody, "Broadcasting to all active participants."), nil
					}

					fields := strings.Fields(ev.Text)
					if len(fields) == 0 {
						return dialog.Retry("Send participant IDs separated by spaces, or press the button."), nil
					}
					ids := make([]int64, 0, len(fields))
					for _, f := range fields {
						id, err := strconv.ParseInt(f, 10, 64)
						if err != nil {
							return dialog.Retry(fmt.Sprintf("%q is not a numeric participant ID. Try again.", f)), nil
						}
						ids = append(ids, id)
					}
					sc[scratchRecipientIDs] = ids
					return dialog.Advance(StepAwaitingBroadcastBody,
						fmt.Sprintf("Broadcasting to %d selected participant(s).", len(ids))), nil
				},
			},
			{
				Name:   StepAwaitingBroadcastBody,
				Prompt: "Now send the broadcast text.",
				Handle: func(ctx context.Context, ev dialog.Event, sc dialog.Scratch) (dialog.Result, error) {
					body := strings.TrimSpace(ev.Text)
					if body == "" {
						return dialog.Retry("The broadcast is empty. Send some text or /cancel."), nil
					}

					recipients, err := selectRecipients(ctx, deps, sc)
					if err != nil {
						return dialog.Result{}, err
					}
					res, err := deps.Messenger.Broadcast(ctx, body, recipients)
					if err != nil {
						return dialog.Result{}, err
					}
					return dialog.Done(fmt.Sprintf("Broadcast finished: %d delivered, %d failed.", res.Succeeded, res.Failed)), nil
				},
			},
		},
	}
}

// selectRecipients narrows the active snapshot to the ids collected during
// the selection step. Nil means "everyone currently active" and lets the
// messenger resolve its own snapshot.
func selectRecipients(ctx context.Context, deps Deps, sc dialog.Scratch) ([]directory.Participant, error) {
	raw, ok := sc[scratchRecipientIDs]
	if !ok {
		return nil, nil
	}
	ids, ok := raw.([]int64)
	if !ok {
		return nil, fmt.Errorf("broadcast: malformed recipient ids in scratch")
	}

	active, err := deps.Directory.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	wanted := lo.SliceToMap(ids, func(id int64) (int64, struct{}) { return id, struct{}{} })
	narrowed := lo.Filter(active, func(p directory.Participant, _ int) bool {
		_, keep := wanted[p.ID]
		return keep
	})
	// An explicitly selected-but-empty set still broadcasts to nobody
	// rather than falling back to everyone.
	return narrowed, nil
}
