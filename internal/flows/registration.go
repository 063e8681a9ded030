package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tradebot/internal/dialog"
	"tradebot/internal/directory"

	"github.com/go-playground/validator/v10"
)

// Registration step names.
const (
	StepAwaitingName  = "awaiting_name"
	StepAwaitingEmail = "awaiting_email"
)

// Scratch keys used by the registration flow.
const (
	scratchName     = "name"
	scratchUsername = "username"
)

var validate = validator.New()

// Registration builds the sign-up flow: name, then email with retry on
// validation failure, then insertion into the pending directory.
func Registration(deps Deps) dialog.Definition {
	return dialog.Definition{
		Name: DialogRegistration,
		Steps: []dialog.Step{
			{
				Name:   StepAwaitingName,
				Prompt: "Welcome aboard! What's your full name?",
				Handle: func(_ context.Context, ev dialog.Event, sc dialog.Scratch) (dialog.Result, error) {
					name := strings.TrimSpace(ev.Text)
					if len(name) < 2 {
						return dialog.Retry("That name looks too short. Please send your full name."), nil
					}
					sc[scratchName] = name
					sc[scratchUsername] = ev.Username
					return dialog.Advance(StepAwaitingEmail,
						fmt.Sprintf("Thanks, %s!", name)), nil
				},
			},
			{
				Name:   StepAwaitingEmail,
				Prompt: "Which email address should we link to your trading account?",
				Handle: func(ctx context.Context, ev dialog.Event, sc dialog.Scratch) (dialog.Result, error) {
					email := strings.ToLower(strings.TrimSpace(ev.Text))
					if reason := checkEmail(email, deps.EmailDomains); reason != "" {
						return dialog.Retry(reason), nil
					}

					p := directory.Participant{
						ID:       ev.ParticipantID,
						Name:     sc.String(scratchName),
						Username: sc.String(scratchUsername),
						Email:    email,
					}
					err := deps.Directory.Register(ctx, p)
					if errors.Is(err, directory.ErrAlreadyRegistered) {
						return dialog.Done("You are already registered. An operator will be in touch if anything is pending."), nil
					}
					if err != nil {
						return dialog.Result{}, err
					}
					return dialog.Done("Registration complete! An operator will review your application shortly."), nil
				},
			},
		},
	}
}

// checkEmail returns an empty string when the address is acceptable, or the
// retry message to send back otherwise.
func checkEmail(email string, allowedDomains []string) string {
	if err := validate.Var(email, "required,email"); err != nil {
		return "That doesn't look like a valid email address. Please try again."
	}
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return "That doesn't look like a valid email address. Please try again."
	}
	domain := email[at+1:]

	if len(allowedDomains) == 0 {
		if !strings.Contains(domain, ".") {
			return "The email domain looks incomplete. Please try again."
		}
		return ""
	}
	for _, d := range allowedDomains {
		if strings.EqualFold(domain, d) {
			return ""
		}
	}
	return "We can only accept emails from: " + strings.Join(allowedDomains, ", ") + ". Please try again."
}
