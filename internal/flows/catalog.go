// Package flows holds the fixed dialog catalog: the registration flow every
// participant walks through, and the operator-only direct-message and
// broadcast flows.
package flows

import (
	"fmt"

	"tradebot/internal/adminmsg"
	"tradebot/internal/dialog"
	"tradebot/internal/directory"
)

// Dialog names as registered with the engine.
const (
	DialogRegistration  = "registration"
	DialogDirectMessage = "direct_message"
	DialogBroadcast     = "broadcast"
)

// Deps carries the collaborators the step handlers close over.
type Deps struct {
	Directory *directory.Directory
	Messenger *adminmsg.Service
	// EmailDomains is the allow-list for registration emails. Empty means
	// any domain containing a dot is accepted.
	EmailDomains []string
}

// Register installs the full catalog into the engine.
func Register(engine *dialog.Engine, deps Deps) error {
	for _, def := range []dialog.Definition{
		Registration(deps),
		DirectMessage(deps),
		Broadcast(deps),
	} {
		if err := engine.Register(def); err != nil {
			return fmt.Errorf("flows: %w", err)
		}
	}
	return nil
}
