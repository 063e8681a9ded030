package directory

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status describes where a participant sits in the onboarding lifecycle.
type Status string

const (
	// StatusPending marks a participant that registered but awaits operator approval.
	StatusPending Status = "pending"
	// StatusActive marks a participant approved by an operator.
	StatusActive Status = "active"
)

// Portfolio is the trading-account stub attached to every participant.
type Portfolio struct {
	Balance        decimal.Decimal
	TradingEnabled bool
}

// Participant is an end-user tracked by the directory, keyed by the
// platform-assigned identifier.
type Participant struct {
	ID         int64
	Name       string
	Username   string
	Email      string
	Portfolio  Portfolio
	Status     Status
	CreatedAt  time.Time
	ApprovedAt time.Time
}

// Active reports whether the participant has been approved.
func (p Participant) Active() bool {
	return p.Status == StatusActive
}
