// Package platform describes what the immersive layout needs from the host
// video client: placing live video and static images on the shared surface,
// the meeting roster, and direct messaging between app instances.
package platform

import (
	"context"
	"image"

	"github.com/DoyleJ11/tilecast/internal/engine"
)

type FitMode string

const (
	// FitCover fills the placement rectangle, cropping the feed if needed.
	FitCover FitMode = "cover"
	// FitContain keeps the feed's own aspect ratio inside the rectangle.
	FitContain FitMode = "contain"
)

// VideoPlacement positions one participant's live feed. Coordinates are device
// independent pixels.
type VideoPlacement struct {
	ParticipantID string
	X, Y          int
	Width, Height int
	ZIndex        int
	FitMode       FitMode
}

// ImagePatch is a raster placed on the surface, transparent where video shows through.
type ImagePatch struct {
	Image  *image.RGBA
	X, Y   int
	ZIndex int
}

type RunningContext string

const (
	ContextInMeeting   RunningContext = "inMeeting"
	ContextInImmersive RunningContext = "inImmersive"
	ContextInClient    RunningContext = "inMainClient"
)

// Message is the payload carried by the platform's direct messaging between
// the in-meeting and immersive instances of the app.
type Message struct {
	Color        *engine.Color        `json:"color,omitempty"`
	UpdateCast   []string             `json:"updateCast"`
	Participants []engine.Participant `json:"participants,omitempty"`
	IsHost       bool                 `json:"isHost,omitempty"`
	SessionID    string               `json:"uuid,omitempty"`
	Ended        bool                 `json:"ended,omitempty"`
	Epoch        int64                `json:"epoch,omitempty"`
	Version      int                  `json:"version,omitempty"`
}

// Platform is the host client surface. Every call may fail; callers treat a
// failure as non-fatal for the surrounding batch.
type Platform interface {
	PlaceVideo(ctx context.Context, v VideoPlacement) error
	RemoveVideo(ctx context.Context, participantID string) error
	PlaceImage(ctx context.Context, p ImagePatch) (imageID string, err error)
	RemoveImage(ctx context.Context, imageID string) error
	RemoveVirtualBackground(ctx context.Context, participantID string) error

	Roster(ctx context.Context) ([]engine.Participant, error)
	Self(ctx context.Context) (engine.Participant, error)
	SessionID(ctx context.Context) (string, error)

	SendMessage(ctx context.Context, m Message) error
	SendInvitation(ctx context.Context) error

	EnterImmersive(ctx context.Context) error
	ExitImmersive(ctx context.Context) error
	RunningContext(ctx context.Context) (RunningContext, error)
}
