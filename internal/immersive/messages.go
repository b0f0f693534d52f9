package immersive

import (
	"github.com/DoyleJ11/tilecast/internal/engine"
	"github.com/DoyleJ11/tilecast/internal/layout"
	"github.com/DoyleJ11/tilecast/internal/platform"
)

type Msg interface{ isAppMsg() }

// HostCommand carries SetColor / SetCast from the host's controls.
type HostCommand struct {
	Cmd   engine.Command
	Reply chan error
}

func (HostCommand) isAppMsg() {}

type Start struct{ Reply chan error }

func (Start) isAppMsg() {}

type Stop struct{ Reply chan error }

func (Stop) isAppMsg() {}

// Inbound is a direct platform message from the other instance of the app.
type Inbound struct{ Msg platform.Message }

func (Inbound) isAppMsg() {}

// RelayUpdate arrived over the session relay.
type RelayUpdate struct{ Update engine.Update }

func (RelayUpdate) isAppMsg() {}

type RosterChanged struct{ Changes []engine.RosterChange }

func (RosterChanged) isAppMsg() {}

// Connected fires when the platform links this instance with its peer.
type Connected struct{}

func (Connected) isAppMsg() {}

type MeetingEnded struct{}

func (MeetingEnded) isAppMsg() {}

type Resized struct{ Canvas layout.Canvas }

func (Resized) isAppMsg() {}

type Shutdown struct{}

func (Shutdown) isAppMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isAppMsg() {}

type View struct {
	State   engine.State
	Roster  []engine.Participant
	Running platform.RunningContext
	Drawn   []int
	Ended   bool
}
