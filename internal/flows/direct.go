package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tradebot/internal/adminmsg"
	"tradebot/internal/dialog"
)

// Direct-message step names.
const (
	StepAwaitingRecipientID = "awaiting_recipient_id"
	StepAwaitingMessageBody = "awaiting_message_body"
)

const scratchRecipientID = "recipient_id"

// DirectMessage builds the operator flow for messaging one participant.
func DirectMessage(deps Deps) dialog.Definition {
	return dialog.Definition{
		Name: DialogDirectMessage,
		Steps: []dialog.Step{
			{
				Name:   StepAwaitingRecipientID,
				Prompt: "Send the numeric ID of the participant you want to message.",
				Handle: func(ctx context.Context, ev dialog.Event, sc dialog.Scratch) (dialog.Result, error) {
					id, err := strconv.ParseInt(strings.TrimSpace(ev.Text), 10, 64)
					if err != nil {
						return dialog.Retry("That's not a numeric participant ID. Try again or /cancel."), nil
					}
					p, found, err := deps.Directory.Find(ctx, id)
					if err != nil {
						return dialog.Result{}, err
					}
					if !found {
						return dialog.Retry(fmt.Sprintf("No participant with ID %d. Try again or /cancel.", id)), nil
					}
					sc[scratchRecipientID] = id
					return dialog.Advance(StepAwaitingMessageBody,
						fmt.Sprintf("Messaging %s (%d).", p.Name, id)), nil
				},
			},
			{
				Name:   StepAwaitingMessageBody,
				Prompt: "Now send the message text.",
				Handle: func(ctx context.Context, ev dialog.Event, sc dialog.Scratch) (dialog.Result, error) {
					body := strings.TrimSpace(ev.Text)
					if body == "" {
						return dialog.Retry("The message is empty. Send some text or /cancel."), nil
					}
					id, ok := sc.Int64(scratchRecipientID)
					if !ok {
						return dialog.Result{}, fmt.Errorf("direct message: recipient id missing from scratch")
					}
					err := deps.Messenger.SendDirect(ctx, id, body)
					var dErr *adminmsg.DeliveryError
					if errors.As(err, &dErr) {
						return dialog.Done(fmt.Sprintf("Delivery to %d failed: %v.", dErr.RecipientID, dErr.Err)), nil
					}
					if err != nil {
						return dialog.Result{}, err
					}
					return dialog.Done("Message delivered."), nil
				},
			},
		},
	}
}
